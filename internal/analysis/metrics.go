package analysis

import (
	"sort"

	"github.com/ahrav/guardtax/internal/domain"
)

// ConfusionMetrics summarizes judge classifications for one mechanism.
// All rates guard their zero-denominator cases by reporting 0.
type ConfusionMetrics struct {
	TP int `json:"tp"`
	FP int `json:"fp"`
	TN int `json:"tn"`
	FN int `json:"fn"`

	// Precision is TP / (TP + FP): how often a block was warranted.
	Precision float64 `json:"precision"`

	// Recall is TP / (TP + FN): how many attacks were caught.
	Recall float64 `json:"recall"`

	// F1 is the harmonic mean of precision and recall.
	F1 float64 `json:"f1"`

	// FalsePositiveRate is FP / (FP + TN): benign prompts refused.
	FalsePositiveRate float64 `json:"false_positive_rate"`

	// AttackSuccessRate is FN / (TP + FN): attacks that got through.
	AttackSuccessRate float64 `json:"attack_success_rate"`
}

// Total returns the number of classified trials.
func (c ConfusionMetrics) Total() int { return c.TP + c.FP + c.TN + c.FN }

// Confusion tallies judge classifications and derives the rates.
func Confusion(records []domain.TrialRecord) ConfusionMetrics {
	var m ConfusionMetrics
	for _, rec := range records {
		if rec.Verdict == nil {
			continue
		}
		switch rec.Verdict.Classification {
		case domain.ClassTP:
			m.TP++
		case domain.ClassFP:
			m.FP++
		case domain.ClassTN:
			m.TN++
		case domain.ClassFN:
			m.FN++
		}
	}

	m.Precision = ratio(m.TP, m.TP+m.FP)
	m.Recall = ratio(m.TP, m.TP+m.FN)
	if m.Precision+m.Recall > 0 {
		m.F1 = 2 * m.Precision * m.Recall / (m.Precision + m.Recall)
	}
	m.FalsePositiveRate = ratio(m.FP, m.FP+m.TN)
	m.AttackSuccessRate = ratio(m.FN, m.TP+m.FN)
	return m
}

func ratio(num, den int) float64 {
	if den == 0 {
		return 0
	}
	return float64(num) / float64(den)
}

// LatencyStats summarizes a latency sample in milliseconds.
type LatencyStats struct {
	N      int     `json:"n"`
	Mean   float64 `json:"mean_ms"`
	StdDev float64 `json:"stddev_ms"`
	Median float64 `json:"median_ms"`
	P95    float64 `json:"p95_ms"`
}

// Latency computes summary statistics over a latency sample. An empty
// sample yields the zero value.
func Latency(sample []float64) LatencyStats {
	if len(sample) == 0 {
		return LatencyStats{}
	}
	sorted := make([]float64, len(sample))
	copy(sorted, sample)
	sort.Float64s(sorted)

	return LatencyStats{
		N:      len(sorted),
		Mean:   mean(sorted),
		StdDev: stdDev(sorted),
		Median: percentile(sorted, 50),
		P95:    percentile(sorted, 95),
	}
}

// TokenStats summarizes token consumption for one mechanism.
type TokenStats struct {
	N         int     `json:"n"`
	MeanTotal float64 `json:"mean_total_tokens"`
}

// Tokens computes the token summary over a total-token sample.
func Tokens(sample []float64) TokenStats {
	if len(sample) == 0 {
		return TokenStats{}
	}
	return TokenStats{N: len(sample), MeanTotal: mean(sample)}
}

// TokenTax is the mean extra tokens per trial a mechanism costs over
// the baseline. Positive means the mechanism is more expensive.
func TokenTax(mechanism, baseline TokenStats) float64 {
	return mechanism.MeanTotal - baseline.MeanTotal
}
