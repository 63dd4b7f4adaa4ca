package formulas

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCalculateCVaR(t *testing.T) {
	tests := []struct {
		name       string
		returns    []float64
		confidence float64
		want       float64
		tolerance  float64
	}{
		{
			name:       "worst of twenty at 95",
			returns:    []float64{-0.20, -0.10, -0.05, -0.02, 0.0, 0.01, 0.01, 0.02, 0.02, 0.03, 0.03, 0.03, 0.04, 0.04, 0.05, 0.05, 0.06, 0.07, 0.08, 0.10},
			confidence: 0.95,
			want:       -0.20,
			tolerance:  1e-9,
		},
		{
			name:       "two worst of ten at 80",
			returns:    []float64{-0.10, -0.06, -0.02, 0.0, 0.01, 0.02, 0.03, 0.04, 0.05, 0.06},
			confidence: 0.80,
			want:       -0.08, // mean of -0.10 and -0.06
			tolerance:  1e-9,
		},
		{
			name:       "empty returns zero",
			returns:    nil,
			confidence: 0.95,
			want:       0.0,
			tolerance:  1e-12,
		},
		{
			name:       "single observation",
			returns:    []float64{-0.03},
			confidence: 0.95,
			want:       -0.03,
			tolerance:  1e-12,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CalculateCVaR(tt.returns, tt.confidence)
			assert.InDelta(t, tt.want, got, tt.tolerance)
		})
	}
}

func TestCalculateVaR(t *testing.T) {
	returns := []float64{-0.10, -0.06, -0.02, 0.0, 0.01, 0.02, 0.03, 0.04, 0.05, 0.06}

	// ceil(10 * 0.2) = 2nd worst return.
	assert.InDelta(t, -0.06, CalculateVaR(returns, 0.80), 1e-9)
	// ceil(10 * 0.05) = worst return.
	assert.InDelta(t, -0.10, CalculateVaR(returns, 0.95), 1e-9)
	assert.Equal(t, 0.0, CalculateVaR(nil, 0.95))
}

func TestWeightedTailMean(t *testing.T) {
	t.Run("uniform probabilities match sample CVaR", func(t *testing.T) {
		returns := []float64{-0.10, -0.06, -0.02, 0.0, 0.04}
		probs := []float64{0.2, 0.2, 0.2, 0.2, 0.2}

		// Tail mass 0.2 is exactly the worst sample.
		assert.InDelta(t, -0.10, WeightedTailMean(returns, probs, 0.80), 1e-9)
	})

	t.Run("boundary sample counted partially", func(t *testing.T) {
		returns := []float64{-0.10, -0.04, 0.02, 0.05}
		probs := []float64{0.25, 0.25, 0.25, 0.25}

		// Tail mass 0.30: all of -0.10 (0.25) plus 0.05 of -0.04.
		want := (0.25*-0.10 + 0.05*-0.04) / 0.30
		assert.InDelta(t, want, WeightedTailMean(returns, probs, 0.70), 1e-9)
	})

	t.Run("length mismatch returns zero", func(t *testing.T) {
		assert.Equal(t, 0.0, WeightedTailMean([]float64{0.1}, []float64{0.5, 0.5}, 0.95))
	})
}
