package analysis

import (
	"math"
	"sort"
)

// percentile computes the p-th percentile of sorted values using linear
// interpolation between order statistics. For n values the p-th
// percentile sits at rank p/100*(n-1); fractional ranks interpolate
// between the neighboring values.
func percentile(sorted []float64, p float64) float64 {
	n := len(sorted)
	switch n {
	case 0:
		return math.NaN()
	case 1:
		return sorted[0]
	}

	rank := p / 100 * float64(n-1)
	lo := int(math.Floor(rank))
	hi := int(math.Ceil(rank))
	if lo == hi {
		return sorted[lo]
	}
	frac := rank - float64(lo)
	return sorted[lo] + frac*(sorted[hi]-sorted[lo])
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return math.NaN()
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// stdDev is the sample standard deviation (n-1 denominator).
func stdDev(values []float64) float64 {
	n := len(values)
	if n < 2 {
		return 0
	}
	m := mean(values)
	var sum float64
	for _, v := range values {
		d := v - m
		sum += d * d
	}
	return math.Sqrt(sum / float64(n-1))
}

// MannWhitneyU runs the two-sided Mann-Whitney U test on two
// independent samples using the normal approximation with tie
// correction and continuity correction. It returns the U statistic
// (the smaller of U1, U2) and the two-sided p-value.
//
// Degenerate inputs (an empty sample, or all values tied across both
// samples) yield p = 1: no evidence of a difference.
func MannWhitneyU(a, b []float64) (u, p float64) {
	n1, n2 := float64(len(a)), float64(len(b))
	if n1 == 0 || n2 == 0 {
		return 0, 1
	}

	ranks, tieTerm := rankCombined(a, b)
	var r1 float64
	for i := range a {
		r1 += ranks[i]
	}

	u1 := r1 - n1*(n1+1)/2
	u2 := n1*n2 - u1
	u = math.Min(u1, u2)

	n := n1 + n2
	meanU := n1 * n2 / 2
	variance := n1 * n2 / 12 * ((n + 1) - tieTerm/(n*(n-1)))
	if variance <= 0 {
		return u, 1
	}

	z := (math.Abs(u-meanU) - 0.5) / math.Sqrt(variance)
	if z < 0 {
		z = 0
	}
	return u, math.Erfc(z / math.Sqrt2)
}

// rankCombined assigns average ranks to the concatenation a||b and
// returns them in input order along with the tie correction term
// sum(t^3 - t) over tie groups.
func rankCombined(a, b []float64) (ranks []float64, tieTerm float64) {
	n := len(a) + len(b)
	values := make([]float64, 0, n)
	values = append(values, a...)
	values = append(values, b...)

	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	sort.Slice(idx, func(i, j int) bool { return values[idx[i]] < values[idx[j]] })

	ranks = make([]float64, n)
	for i := 0; i < n; {
		j := i
		for j < n && values[idx[j]] == values[idx[i]] {
			j++
		}
		// Positions i..j-1 share the same value; all get the average rank.
		avg := float64(i+j+1) / 2
		for k := i; k < j; k++ {
			ranks[idx[k]] = avg
		}
		t := float64(j - i)
		tieTerm += t*t*t - t
		i = j
	}
	return ranks, tieTerm
}

// BonferroniAdjust applies the Bonferroni correction for a family of
// comparisons, clamping at 1.
func BonferroniAdjust(p float64, familySize int) float64 {
	if familySize < 1 {
		familySize = 1
	}
	return math.Min(1, p*float64(familySize))
}

// Effect magnitude labels per the Romano et al. thresholds on |delta|.
const (
	EffectNegligible = "negligible"
	EffectSmall      = "small"
	EffectMedium     = "medium"
	EffectLarge      = "large"
)

// CliffsDelta computes Cliff's delta for two samples: the probability a
// value from a exceeds one from b minus the reverse. Ties contribute to
// neither count but remain in the denominator. The result is in [-1, 1]
// with sign preserved.
func CliffsDelta(a, b []float64) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	var greater, less int
	for _, x := range a {
		for _, y := range b {
			switch {
			case x > y:
				greater++
			case x < y:
				less++
			}
		}
	}
	return float64(greater-less) / float64(len(a)*len(b))
}

// EffectMagnitude buckets a Cliff's delta value.
func EffectMagnitude(delta float64) string {
	d := math.Abs(delta)
	switch {
	case d < 0.147:
		return EffectNegligible
	case d < 0.33:
		return EffectSmall
	case d < 0.474:
		return EffectMedium
	default:
		return EffectLarge
	}
}
