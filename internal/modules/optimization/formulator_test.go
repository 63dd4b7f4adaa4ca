package optimization

import (
	"fmt"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/tailrisk/internal/modules/program"
	"github.com/aristath/tailrisk/internal/modules/scenarios"
)

func testMatrix() *scenarios.ScenarioMatrix {
	return &scenarios.ScenarioMatrix{
		Assets: []string{"AAA", "BBB", "CCC"},
		Returns: [][]float64{
			{0.02, -0.01, 0.03},
			{-0.05, 0.04, 0.01},
			{0.01, 0.01, 0.01},
			{-0.02, -0.02, 0.06},
			{0.03, 0.00, -0.01},
		},
		Probs: scenarios.UniformProbs(5),
	}
}

func TestFormulator_Build_Canonical(t *testing.T) {
	f := NewFormulator(zerolog.Nop())
	matrix := testMatrix()

	prog, lay, err := f.Build(matrix, NewLongOnly(1.0), Config{Alpha: 0.95, Mode: ModeMinCVaR}, nil)
	require.NoError(t, err)

	// 3 weights + zeta + 5 shortfalls.
	assert.Equal(t, 9, prog.NumVariables())
	assert.False(t, prog.IsMixedInteger())
	assert.Equal(t, program.Minimize, prog.Sense)

	// Budget row plus one shortfall row per scenario.
	require.Len(t, prog.Constraints, 6)
	budget := prog.Constraints[0]
	assert.Equal(t, "budget", budget.Name)
	assert.Equal(t, program.EQ, budget.Op)
	assert.Equal(t, 1.0, budget.RHS)

	// Objective: zeta coefficient 1, each u_s weighted p_s/(1-alpha).
	assert.Equal(t, 1.0, prog.Objective[lay.zeta])
	for s := 0; s < 5; s++ {
		assert.InDelta(t, 0.2/0.05, prog.Objective[lay.u+s], 1e-9)
	}

	// Shortfall row s: -r_s.w - zeta - u_s <= 0.
	row := prog.Constraints[1]
	assert.Equal(t, program.LE, row.Op)
	assert.InDelta(t, -0.02, row.Coeffs[lay.wPos], 1e-12)
	assert.Equal(t, -1.0, row.Coeffs[lay.zeta])
	assert.Equal(t, -1.0, row.Coeffs[lay.u])
}

func TestFormulator_Build_Rejections(t *testing.T) {
	f := NewFormulator(zerolog.Nop())

	t.Run("empty scenario matrix", func(t *testing.T) {
		_, _, err := f.Build(&scenarios.ScenarioMatrix{Assets: []string{"AAA"}}, NewLongOnly(1.0), Config{Alpha: 0.95, Mode: ModeMinCVaR}, nil)
		var invErr *InvalidScenarioMatrixError
		assert.ErrorAs(t, err, &invErr)
	})

	t.Run("infeasible constraint set", func(t *testing.T) {
		cs := ConstraintSet{Budget: 1.0, Leverage: floatPtr(0.5)}
		_, _, err := f.Build(testMatrix(), cs, Config{Alpha: 0.95, Mode: ModeMinCVaR}, nil)
		var infErr *InfeasibleConstraintSetError
		assert.ErrorAs(t, err, &infErr)
	})

	t.Run("invalid config", func(t *testing.T) {
		_, _, err := f.Build(testMatrix(), NewLongOnly(1.0), Config{Alpha: 2.0, Mode: ModeMinCVaR}, nil)
		assert.Error(t, err)
	})
}

func TestFormulator_Build_TurnoverRows(t *testing.T) {
	f := NewFormulator(zerolog.Nop())
	cs := NewLongOnly(1.0)
	cs.Turnover = floatPtr(0.2)
	cfg := Config{Alpha: 0.95, Mode: ModeMinCVaR}

	prev := map[string]float64{"AAA": 0.4, "BBB": 0.3, "CCC": 0.3}

	withPrev, lay, err := f.Build(testMatrix(), cs, cfg, prev)
	require.NoError(t, err)
	assert.NotEqual(t, -1, lay.t)

	names := make(map[string]bool)
	for _, c := range withPrev.Constraints {
		names[c.Name] = true
	}
	assert.True(t, names["turnover_total"])
	assert.True(t, names["turnover_up_AAA"])
	assert.True(t, names["turnover_down_CCC"])

	// Without a previous portfolio the turnover machinery is dropped.
	withoutPrev, lay2, err := f.Build(testMatrix(), cs, cfg, nil)
	require.NoError(t, err)
	assert.Equal(t, -1, lay2.t)
	for _, c := range withoutPrev.Constraints {
		assert.NotContains(t, c.Name, "turnover")
	}
}

func TestFormulator_Build_CardinalityMarksMixedInteger(t *testing.T) {
	f := NewFormulator(zerolog.Nop())
	cs := NewLongOnly(1.0)
	cs.Cardinality = intPtr(2)

	prog, lay, err := f.Build(testMatrix(), cs, Config{Alpha: 0.95, Mode: ModeMinCVaR}, nil)
	require.NoError(t, err)

	assert.True(t, prog.IsMixedInteger())
	assert.NotEqual(t, -1, lay.b)
	for i := 0; i < 3; i++ {
		assert.Equal(t, program.Binary, prog.Variables[lay.b+i].Type)
	}

	var total *program.Constraint
	for i := range prog.Constraints {
		if prog.Constraints[i].Name == "cardinality_total" {
			total = &prog.Constraints[i]
		}
	}
	require.NotNil(t, total)
	assert.Equal(t, 2.0, total.RHS)
}

func TestFormulator_Build_ShortSellingSplitsWeights(t *testing.T) {
	f := NewFormulator(zerolog.Nop())
	cs := NewLongOnly(1.0)
	cs.AllowShort = true
	cs.Leverage = floatPtr(1.6)

	prog, lay, err := f.Build(testMatrix(), cs, Config{Alpha: 0.95, Mode: ModeMinCVaR}, nil)
	require.NoError(t, err)

	assert.True(t, lay.short)
	assert.NotEqual(t, -1, lay.wNeg)

	// Budget row nets out the split: +1 on positive parts, -1 on negatives.
	budget := prog.Constraints[0]
	for i := 0; i < 3; i++ {
		assert.Equal(t, 1.0, budget.Coeffs[lay.wPos+i])
		assert.Equal(t, -1.0, budget.Coeffs[lay.wNeg+i])
	}

	// Leverage row sums both parts with +1.
	var leverage *program.Constraint
	for i := range prog.Constraints {
		if prog.Constraints[i].Name == "leverage" {
			leverage = &prog.Constraints[i]
		}
	}
	require.NotNil(t, leverage)
	for i := 0; i < 3; i++ {
		assert.Equal(t, 1.0, leverage.Coeffs[lay.wPos+i])
		assert.Equal(t, 1.0, leverage.Coeffs[lay.wNeg+i])
	}
	assert.Equal(t, 1.6, leverage.RHS)
}

func TestFormulator_Build_GroupBounds(t *testing.T) {
	f := NewFormulator(zerolog.Nop())
	cs := NewLongOnly(1.0)
	cs.Groups = map[string]string{"AAA": "tech", "BBB": "tech", "CCC": "energy"}
	cs.GroupBounds = []GroupBound{
		{Group: "tech", Lower: 0.1, Upper: 0.7},
		{Group: "utilities", Lower: 0, Upper: 0.5}, // no members, skipped
	}

	prog, lay, err := f.Build(testMatrix(), cs, Config{Alpha: 0.95, Mode: ModeMinCVaR}, nil)
	require.NoError(t, err)

	byName := make(map[string]program.Constraint)
	for _, c := range prog.Constraints {
		byName[c.Name] = c
	}

	upper, ok := byName["group_upper_tech"]
	require.True(t, ok)
	assert.Equal(t, 1.0, upper.Coeffs[lay.wPos+0])
	assert.Equal(t, 1.0, upper.Coeffs[lay.wPos+1])
	assert.Equal(t, 0.0, upper.Coeffs[lay.wPos+2])
	assert.Equal(t, 0.7, upper.RHS)

	_, ok = byName["group_lower_tech"]
	assert.True(t, ok)
	_, ok = byName["group_upper_utilities"]
	assert.False(t, ok, "groups without members produce no rows")
}

func TestFormulator_Build_RiskAversionObjective(t *testing.T) {
	f := NewFormulator(zerolog.Nop())
	matrix := testMatrix()
	lambda := 3.0

	prog, lay, err := f.Build(matrix, NewLongOnly(1.0), Config{Alpha: 0.95, Mode: ModeRiskAversion, RiskAversion: lambda}, nil)
	require.NoError(t, err)

	mu := matrix.MeanReturns()
	for i := range mu {
		assert.InDelta(t, -lambda*mu[i], prog.Objective[lay.wPos+i], 1e-12,
			fmt.Sprintf("weight %d objective coefficient", i))
	}
}
