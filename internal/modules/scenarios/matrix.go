package scenarios

import (
	"fmt"
	"math"
)

// probTolerance is the floating tolerance for the probability-sum invariant.
const probTolerance = 1e-9

// ScenarioMatrix is a finite empirical distribution of joint asset returns:
// one row per scenario, one column per asset, one probability per row.
type ScenarioMatrix struct {
	Assets  []string    `json:"assets" msgpack:"assets"`
	Returns [][]float64 `json:"returns" msgpack:"returns"`
	Probs   []float64   `json:"probs" msgpack:"probs"`
}

// NumScenarios returns the number of rows.
func (m *ScenarioMatrix) NumScenarios() int { return len(m.Returns) }

// NumAssets returns the number of columns.
func (m *ScenarioMatrix) NumAssets() int { return len(m.Assets) }

// Validate enforces the matrix contract: consistent shape and probability
// weights summing to 1 within tolerance.
func (m *ScenarioMatrix) Validate() error {
	if m.NumAssets() == 0 {
		return fmt.Errorf("scenario matrix has no assets")
	}
	if m.NumScenarios() == 0 {
		return fmt.Errorf("scenario matrix has no scenarios")
	}
	if len(m.Probs) != m.NumScenarios() {
		return fmt.Errorf("scenario matrix has %d probabilities for %d scenarios", len(m.Probs), m.NumScenarios())
	}
	sum := 0.0
	for i, p := range m.Probs {
		if p < 0 {
			return fmt.Errorf("scenario %d has negative probability %v", i, p)
		}
		sum += p
	}
	if math.Abs(sum-1.0) > probTolerance {
		return fmt.Errorf("scenario probabilities sum to %v, want 1", sum)
	}
	for i, row := range m.Returns {
		if len(row) != m.NumAssets() {
			return fmt.Errorf("scenario %d has %d returns, want %d", i, len(row), m.NumAssets())
		}
	}
	return nil
}

// MeanReturns computes the probability-weighted mean return per asset.
func (m *ScenarioMatrix) MeanReturns() []float64 {
	mu := make([]float64, m.NumAssets())
	for s, row := range m.Returns {
		for i, r := range row {
			mu[i] += m.Probs[s] * r
		}
	}
	return mu
}

// PortfolioReturns projects the scenarios onto a weight vector, yielding the
// scenario distribution of portfolio returns.
func (m *ScenarioMatrix) PortfolioReturns(weights []float64) []float64 {
	out := make([]float64, m.NumScenarios())
	for s, row := range m.Returns {
		var total float64
		for i, r := range row {
			total += weights[i] * r
		}
		out[s] = total
	}
	return out
}

// UniformProbs returns a probability vector of n equal weights.
func UniformProbs(n int) []float64 {
	probs := make([]float64, n)
	for i := range probs {
		probs[i] = 1.0 / float64(n)
	}
	return probs
}
