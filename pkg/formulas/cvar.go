package formulas

import (
	"math"
	"sort"
)

// CalculateCVaR calculates Conditional Value at Risk (CVaR) at the specified
// confidence level from a sample of returns. CVaR is the expected return given
// that the return falls into the worst (1-confidence) tail, so the result is
// negative for loss-making tails.
func CalculateCVaR(returns []float64, confidence float64) float64 {
	if len(returns) == 0 {
		return 0.0
	}
	if len(returns) == 1 {
		return returns[0]
	}

	sorted := make([]float64, len(returns))
	copy(sorted, returns)
	sort.Float64s(sorted)

	tailProbability := 1.0 - confidence
	tailCount := int(math.Ceil(float64(len(sorted)) * tailProbability))
	if tailCount == 0 {
		tailCount = 1
	}
	if tailCount > len(sorted) {
		tailCount = len(sorted)
	}

	sum := 0.0
	for _, r := range sorted[:tailCount] {
		sum += r
	}
	return sum / float64(tailCount)
}

// CalculateVaR returns the Value-at-Risk threshold: the return not undercut
// with probability `confidence` in the sample.
func CalculateVaR(returns []float64, confidence float64) float64 {
	if len(returns) == 0 {
		return 0.0
	}

	sorted := make([]float64, len(returns))
	copy(sorted, returns)
	sort.Float64s(sorted)

	idx := int(math.Ceil(float64(len(sorted))*(1.0-confidence))) - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

// WeightedTailMean computes the probability-weighted mean of the worst
// (1-confidence) tail of a discrete return distribution. The boundary sample
// is counted with partial probability so the tail mass is exactly
// 1-confidence. This is the discrete CVaR the Rockafellar-Uryasev program
// attains at its optimum.
func WeightedTailMean(returns, probs []float64, confidence float64) float64 {
	if len(returns) == 0 || len(returns) != len(probs) {
		return 0.0
	}

	type sample struct {
		r float64
		p float64
	}
	samples := make([]sample, len(returns))
	for i := range returns {
		samples[i] = sample{r: returns[i], p: probs[i]}
	}
	sort.Slice(samples, func(i, j int) bool { return samples[i].r < samples[j].r })

	tailMass := 1.0 - confidence
	if tailMass <= 0 {
		return samples[0].r
	}

	remaining := tailMass
	sum := 0.0
	for _, s := range samples {
		if remaining <= 0 {
			break
		}
		take := math.Min(s.p, remaining)
		sum += take * s.r
		remaining -= take
	}
	return sum / tailMass
}
