package optimization

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func floatPtr(v float64) *float64 { return &v }
func intPtr(v int) *int           { return &v }

func TestConstraintSet_Validate(t *testing.T) {
	symbols := []string{"AAA", "BBB", "CCC"}

	tests := []struct {
		name    string
		cs      ConstraintSet
		wantErr string
	}{
		{
			name: "long only baseline is valid",
			cs:   NewLongOnly(1.0),
		},
		{
			name:    "zero budget",
			cs:      ConstraintSet{Budget: 0},
			wantErr: "budget",
		},
		{
			name:    "leverage below budget",
			cs:      ConstraintSet{Budget: 1.0, Leverage: floatPtr(0.5)},
			wantErr: "leverage",
		},
		{
			name:    "negative turnover",
			cs:      ConstraintSet{Budget: 1.0, Turnover: floatPtr(-0.1)},
			wantErr: "turnover",
		},
		{
			name:    "zero cardinality",
			cs:      ConstraintSet{Budget: 1.0, Cardinality: intPtr(0)},
			wantErr: "cardinality",
		},
		{
			name: "bound for unknown symbol",
			cs: ConstraintSet{
				Budget: 1.0,
				Bounds: map[string]Bound{"ZZZ": {Lower: 0, Upper: 0.5}},
			},
			wantErr: "unknown asset",
		},
		{
			name: "lower above upper",
			cs: ConstraintSet{
				Budget: 1.0,
				Bounds: map[string]Bound{"AAA": {Lower: 0.6, Upper: 0.4}},
			},
			wantErr: "above upper",
		},
		{
			name: "negative lower without shorting",
			cs: ConstraintSet{
				Budget: 1.0,
				Bounds: map[string]Bound{"AAA": {Lower: -0.2, Upper: 0.4}},
			},
			wantErr: "shorting is disabled",
		},
		{
			name: "upper bounds cannot reach budget",
			cs: ConstraintSet{
				Budget: 1.0,
				Bounds: map[string]Bound{
					"AAA": {Lower: 0, Upper: 0.2},
					"BBB": {Lower: 0, Upper: 0.2},
					"CCC": {Lower: 0, Upper: 0.2},
				},
			},
			wantErr: "below budget",
		},
		{
			name: "bad group bound",
			cs: ConstraintSet{
				Budget:      1.0,
				GroupBounds: []GroupBound{{Group: "tech", Lower: 0.8, Upper: 0.2}},
			},
			wantErr: "group tech",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cs.Validate(symbols)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			var infErr *InfeasibleConstraintSetError
			require.ErrorAs(t, err, &infErr)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestConstraintSet_BoundsFor(t *testing.T) {
	cs := ConstraintSet{
		Budget: 1.0,
		Bounds: map[string]Bound{"AAA": {Lower: 0.1, Upper: 0.3}},
	}

	assert.Equal(t, Bound{Lower: 0.1, Upper: 0.3}, cs.BoundsFor("AAA"))
	assert.Equal(t, Bound{Lower: 0, Upper: 1.0}, cs.BoundsFor("BBB"), "default long-only range")

	cs.AllowShort = true
	assert.Equal(t, Bound{Lower: -1.0, Upper: 1.0}, cs.BoundsFor("BBB"), "default range with shorting")
}

func TestConfig_Validate_ModeExclusivity(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"min cvar", Config{Alpha: 0.95, Mode: ModeMinCVaR}, false},
		{"target return", Config{Alpha: 0.95, Mode: ModeTargetReturn, TargetReturn: 0.01}, false},
		{"risk aversion", Config{Alpha: 0.95, Mode: ModeRiskAversion, RiskAversion: 2.0}, false},
		{"alpha at one", Config{Alpha: 1.0, Mode: ModeMinCVaR}, true},
		{"alpha zero", Config{Alpha: 0, Mode: ModeMinCVaR}, true},
		{"target mode with lambda", Config{Alpha: 0.95, Mode: ModeTargetReturn, TargetReturn: 0.01, RiskAversion: 1}, true},
		{"aversion mode with target", Config{Alpha: 0.95, Mode: ModeRiskAversion, RiskAversion: 1, TargetReturn: 0.01}, true},
		{"min cvar with stray target", Config{Alpha: 0.95, Mode: ModeMinCVaR, TargetReturn: 0.01}, true},
		{"negative lambda", Config{Alpha: 0.95, Mode: ModeRiskAversion, RiskAversion: -1}, true},
		{"unknown mode", Config{Alpha: 0.95, Mode: "sortino"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
