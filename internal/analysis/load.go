// Package analysis turns persisted trial records into comparative
// statistics. Every function is pure and deterministic: the same
// records and options always produce the same report, so any published
// number can be recomputed from the stored run.
package analysis

import (
	"sort"

	"github.com/ahrav/guardtax/internal/domain"
)

// Dataset is the grouped, filtered view of a run's records that all
// metric computations consume.
type Dataset struct {
	// ByMechanism holds judged records per mechanism, in input order.
	ByMechanism map[string][]domain.TrialRecord

	// ErrorsByMechanism counts records dropped because the mechanism
	// call failed.
	ErrorsByMechanism map[string]int

	// LowConfidence counts records dropped by the confidence filter.
	LowConfidence int

	// TotalRecords is the raw record count before any filtering.
	TotalRecords int
}

// Load groups records by mechanism and applies the exclusion rules:
// errored records never reach aggregates, and records whose verdict
// confidence falls below minConfidence are dropped. Both exclusions are
// counted so the report can disclose them.
func Load(records []domain.TrialRecord, minConfidence float64) *Dataset {
	ds := &Dataset{
		ByMechanism:       make(map[string][]domain.TrialRecord),
		ErrorsByMechanism: make(map[string]int),
		TotalRecords:      len(records),
	}

	for _, rec := range records {
		if rec.Errored() {
			ds.ErrorsByMechanism[rec.Mechanism]++
			continue
		}
		if rec.Verdict == nil {
			// A record with neither error nor verdict should not exist;
			// treat it as errored rather than guessing a classification.
			ds.ErrorsByMechanism[rec.Mechanism]++
			continue
		}
		if rec.Verdict.Confidence < minConfidence {
			ds.LowConfidence++
			continue
		}
		ds.ByMechanism[rec.Mechanism] = append(ds.ByMechanism[rec.Mechanism], rec)
	}
	return ds
}

// Mechanisms returns the mechanism names present, sorted.
func (d *Dataset) Mechanisms() []string {
	names := make([]string, 0, len(d.ByMechanism))
	for name := range d.ByMechanism {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Latencies extracts the latency sample for one mechanism.
func (d *Dataset) Latencies(mechanism string) []float64 {
	recs := d.ByMechanism[mechanism]
	out := make([]float64, len(recs))
	for i, rec := range recs {
		out[i] = rec.LatencyMs
	}
	return out
}

// TokenTotals extracts the total-token sample for one mechanism.
func (d *Dataset) TokenTotals(mechanism string) []float64 {
	recs := d.ByMechanism[mechanism]
	out := make([]float64, len(recs))
	for i, rec := range recs {
		out[i] = float64(rec.Tokens.Total)
	}
	return out
}
