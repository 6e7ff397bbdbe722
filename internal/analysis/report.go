package analysis

import (
	"encoding/json"
	"fmt"
	"time"
)

// BaselineName is preferred as the comparison baseline when present.
const BaselineName = "control"

// MechanismReport is the per-mechanism block of the run report.
type MechanismReport struct {
	Name      string           `json:"name"`
	Trials    int              `json:"trials"`
	Errors    int              `json:"errors"`
	ErrorRate float64          `json:"error_rate"`
	Confusion ConfusionMetrics `json:"confusion"`
	Latency   LatencyStats     `json:"latency"`
	Tokens    TokenStats       `json:"tokens"`
}

// Comparison is one guardrail-vs-baseline contrast.
type Comparison struct {
	Mechanism string `json:"mechanism"`
	Baseline  string `json:"baseline"`

	// LatencyDeltaMs is the median latency difference; the percent form
	// is relative to the baseline median.
	LatencyDeltaMs  float64 `json:"latency_delta_ms"`
	LatencyDeltaPct float64 `json:"latency_delta_pct"`

	// TokenTax is mean extra tokens per trial over the baseline.
	TokenTax    float64 `json:"token_tax"`
	TokenTaxPct float64 `json:"token_tax_pct"`

	// Latency significance: two-sided Mann-Whitney U with Bonferroni
	// correction over the family of baseline contrasts.
	UStatistic       float64 `json:"u_statistic"`
	PValue           float64 `json:"p_value"`
	PAdjusted        float64 `json:"p_adjusted"`
	SignificantAt05  bool    `json:"significant_at_0_05"`
	SignificantAt01  bool    `json:"significant_at_0_01"`
	CliffsDelta      float64 `json:"cliffs_delta"`
	EffectMagnitude  string  `json:"effect_magnitude"`
}

// Report is the full analysis output for one run.
type Report struct {
	GeneratedAt time.Time `json:"generated_at"`
	Baseline    string    `json:"baseline"`

	// Dropped discloses records excluded from every aggregate.
	DroppedErrors        int `json:"dropped_errors"`
	DroppedLowConfidence int `json:"dropped_low_confidence"`
	TotalRecords         int `json:"total_records"`

	Mechanisms  []MechanismReport `json:"mechanisms"`
	Comparisons []Comparison      `json:"comparisons"`
}

// BuildReport assembles the full report from a grouped dataset.
func BuildReport(ds *Dataset, now time.Time) (*Report, error) {
	names := ds.Mechanisms()
	if len(names) == 0 {
		return nil, fmt.Errorf("no judged records to analyze")
	}

	baseline := names[0]
	for _, name := range names {
		if name == BaselineName {
			baseline = name
			break
		}
	}

	report := &Report{
		GeneratedAt:          now,
		Baseline:             baseline,
		DroppedLowConfidence: ds.LowConfidence,
		TotalRecords:         ds.TotalRecords,
	}

	for _, name := range names {
		recs := ds.ByMechanism[name]
		errors := ds.ErrorsByMechanism[name]
		total := len(recs) + errors

		report.DroppedErrors += errors
		report.Mechanisms = append(report.Mechanisms, MechanismReport{
			Name:      name,
			Trials:    len(recs),
			Errors:    errors,
			ErrorRate: ratio(errors, total),
			Confusion: Confusion(recs),
			Latency:   Latency(ds.Latencies(name)),
			Tokens:    Tokens(ds.TokenTotals(name)),
		})
	}

	baseLatency := ds.Latencies(baseline)
	baseTokens := Tokens(ds.TokenTotals(baseline))
	baseMedian := Latency(baseLatency).Median

	// The correction family is the set of baseline contrasts; each
	// guardrail is tested against the baseline exactly once.
	family := len(names) - 1

	for _, name := range names {
		if name == baseline {
			continue
		}

		latencies := ds.Latencies(name)
		u, p := MannWhitneyU(latencies, baseLatency)
		adjusted := BonferroniAdjust(p, family)
		delta := CliffsDelta(latencies, baseLatency)

		mechMedian := Latency(latencies).Median
		mechTokens := Tokens(ds.TokenTotals(name))
		tax := TokenTax(mechTokens, baseTokens)

		c := Comparison{
			Mechanism:       name,
			Baseline:        baseline,
			LatencyDeltaMs:  mechMedian - baseMedian,
			TokenTax:        tax,
			UStatistic:      u,
			PValue:          p,
			PAdjusted:       adjusted,
			SignificantAt05: adjusted < 0.05,
			SignificantAt01: adjusted < 0.01,
			CliffsDelta:     delta,
			EffectMagnitude: EffectMagnitude(delta),
		}
		if baseMedian > 0 {
			c.LatencyDeltaPct = c.LatencyDeltaMs / baseMedian * 100
		}
		if baseTokens.MeanTotal > 0 {
			c.TokenTaxPct = tax / baseTokens.MeanTotal * 100
		}
		report.Comparisons = append(report.Comparisons, c)
	}

	return report, nil
}

// JSON renders the report as indented JSON for export.
func (r *Report) JSON() ([]byte, error) {
	return json.MarshalIndent(r, "", "  ")
}
