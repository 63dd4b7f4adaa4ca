package optimization

import (
	"fmt"
	"math"

	"github.com/rs/zerolog"

	"github.com/aristath/tailrisk/internal/modules/program"
	"github.com/aristath/tailrisk/internal/modules/scenarios"
)

// Formulator compiles a scenario matrix, a constraint set and an optimization
// config into the canonical Rockafellar-Uryasev program:
//
//	minimize  zeta + 1/(1-alpha) * sum_s p_s * u_s   [- lambda * mu'w]
//	s.t.      u_s >= -(w . r_s) - zeta  for every scenario s
//	          u_s >= 0
//	          sum w_i = budget, plus the rows injected from the ConstraintSet
//
// The formulator performs no solving; it hands a plain program record to any
// Solver backend. A cardinality bound adds binary indicators and marks the
// program mixed-integer.
type Formulator struct {
	log zerolog.Logger
}

// NewFormulator creates a new Mean-CVaR formulator.
func NewFormulator(log zerolog.Logger) *Formulator {
	return &Formulator{
		log: log.With().Str("component", "formulator").Logger(),
	}
}

// layout records where each variable block starts in the flat variable vector
// so weights can be recovered from a solution.
type layout struct {
	nAssets int
	short   bool
	wPos    int // weights (positive part when short selling is allowed)
	wNeg    int // negative parts, -1 when long-only
	zeta    int
	u       int // per-scenario shortfalls
	t       int // turnover auxiliaries, -1 when inactive
	b       int // cardinality binaries, -1 when inactive
}

// weights recovers the asset weight vector from a solution vector.
func (l *layout) weights(x []float64) []float64 {
	w := make([]float64, l.nAssets)
	for i := range w {
		w[i] = x[l.wPos+i]
		if l.short {
			w[i] -= x[l.wNeg+i]
		}
	}
	return w
}

// Build compiles the canonical program. prev supplies the previous portfolio's
// weights for the turnover constraint; when prev is nil or the constraint set
// carries no turnover bound, the turnover rows are omitted entirely.
func (f *Formulator) Build(
	matrix *scenarios.ScenarioMatrix,
	cs ConstraintSet,
	cfg Config,
	prev map[string]float64,
) (*program.Program, *layout, error) {
	if matrix == nil || matrix.NumScenarios() == 0 {
		return nil, nil, &InvalidScenarioMatrixError{Reason: "no scenarios supplied"}
	}
	if err := matrix.Validate(); err != nil {
		return nil, nil, &InvalidScenarioMatrixError{Reason: err.Error()}
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, fmt.Errorf("invalid optimization config: %w", err)
	}
	if err := cs.Validate(matrix.Assets); err != nil {
		return nil, nil, err
	}

	n := matrix.NumAssets()
	nScen := matrix.NumScenarios()
	withTurnover := cs.Turnover != nil && prev != nil
	withCardinality := cs.Cardinality != nil

	lay := &layout{nAssets: n, short: cs.AllowShort, wNeg: -1, t: -1, b: -1}

	var vars []program.Variable
	next := 0
	addBlock := func(count int) int {
		start := next
		next += count
		return start
	}

	lay.wPos = addBlock(n)
	if cs.AllowShort {
		lay.wNeg = addBlock(n)
	}
	lay.zeta = addBlock(1)
	lay.u = addBlock(nScen)
	if withTurnover {
		lay.t = addBlock(n)
	}
	if withCardinality {
		lay.b = addBlock(n)
	}

	vars = make([]program.Variable, next)
	for i, symbol := range matrix.Assets {
		bound := cs.BoundsFor(symbol)
		if cs.AllowShort {
			vars[lay.wPos+i] = program.Variable{
				Name: "w_pos_" + symbol, Type: program.Continuous,
				Lower: 0, Upper: math.Max(0, bound.Upper),
			}
			vars[lay.wNeg+i] = program.Variable{
				Name: "w_neg_" + symbol, Type: program.Continuous,
				Lower: 0, Upper: math.Max(0, -bound.Lower),
			}
		} else {
			vars[lay.wPos+i] = program.Variable{
				Name: "w_" + symbol, Type: program.Continuous,
				Lower: math.Max(0, bound.Lower), Upper: bound.Upper,
			}
		}
	}
	vars[lay.zeta] = program.Variable{
		Name: "zeta", Type: program.Continuous,
		Lower: math.Inf(-1), Upper: math.Inf(1),
	}
	for s := 0; s < nScen; s++ {
		vars[lay.u+s] = program.Variable{
			Name: fmt.Sprintf("u_%d", s), Type: program.Continuous,
			Lower: 0, Upper: math.Inf(1),
		}
	}
	if withTurnover {
		for i, symbol := range matrix.Assets {
			vars[lay.t+i] = program.Variable{
				Name: "turnover_" + symbol, Type: program.Continuous,
				Lower: 0, Upper: math.Inf(1),
			}
		}
	}
	if withCardinality {
		for i, symbol := range matrix.Assets {
			vars[lay.b+i] = program.Variable{
				Name: "held_" + symbol, Type: program.Binary,
				Lower: 0, Upper: 1,
			}
		}
	}

	// Objective: zeta + 1/(1-alpha) * sum p_s u_s, optionally minus the
	// risk-aversion return term.
	obj := make([]float64, next)
	obj[lay.zeta] = 1
	tailScale := 1.0 / (1.0 - cfg.Alpha)
	for s := 0; s < nScen; s++ {
		obj[lay.u+s] = tailScale * matrix.Probs[s]
	}
	mu := matrix.MeanReturns()
	if cfg.Mode == ModeRiskAversion {
		for i := range mu {
			f.addWeightCoeff(obj, lay, i, -cfg.RiskAversion*mu[i])
		}
	}

	var cons []program.Constraint

	// Budget: sum w_i = budget.
	budgetRow := make([]float64, next)
	for i := 0; i < n; i++ {
		f.addWeightCoeff(budgetRow, lay, i, 1)
	}
	cons = append(cons, program.Constraint{Name: "budget", Coeffs: budgetRow, Op: program.EQ, RHS: cs.Budget})

	// Scenario shortfalls: -(w . r_s) - zeta - u_s <= 0.
	for s := 0; s < nScen; s++ {
		row := make([]float64, next)
		for i, r := range matrix.Returns[s] {
			f.addWeightCoeff(row, lay, i, -r)
		}
		row[lay.zeta] = -1
		row[lay.u+s] = -1
		cons = append(cons, program.Constraint{
			Name: fmt.Sprintf("shortfall_%d", s), Coeffs: row, Op: program.LE, RHS: 0,
		})
	}

	// Target return: mu'w >= target.
	if cfg.Mode == ModeTargetReturn {
		row := make([]float64, next)
		for i := range mu {
			f.addWeightCoeff(row, lay, i, mu[i])
		}
		cons = append(cons, program.Constraint{Name: "target_return", Coeffs: row, Op: program.GE, RHS: cfg.TargetReturn})
	}

	// Leverage: sum |w_i| <= L, linear via the positive/negative split.
	if cs.Leverage != nil {
		row := make([]float64, next)
		for i := 0; i < n; i++ {
			row[lay.wPos+i] = 1
			if cs.AllowShort {
				row[lay.wNeg+i] = 1
			}
		}
		cons = append(cons, program.Constraint{Name: "leverage", Coeffs: row, Op: program.LE, RHS: *cs.Leverage})
	}

	// Group concentration bounds.
	for _, gb := range cs.GroupBounds {
		row := make([]float64, next)
		members := 0
		for i, symbol := range matrix.Assets {
			if cs.Groups[symbol] == gb.Group {
				f.addWeightCoeff(row, lay, i, 1)
				members++
			}
		}
		if members == 0 {
			continue
		}
		cons = append(cons, program.Constraint{
			Name: "group_upper_" + gb.Group, Coeffs: row, Op: program.LE, RHS: gb.Upper,
		})
		if gb.Lower > 0 {
			lower := make([]float64, next)
			copy(lower, row)
			cons = append(cons, program.Constraint{
				Name: "group_lower_" + gb.Group, Coeffs: lower, Op: program.GE, RHS: gb.Lower,
			})
		}
	}

	// Turnover: t_i >= |w_i - prev_i|, sum t_i <= T.
	if withTurnover {
		sumRow := make([]float64, next)
		for i, symbol := range matrix.Assets {
			prevWeight := prev[symbol]

			upper := make([]float64, next)
			f.addWeightCoeff(upper, lay, i, 1)
			upper[lay.t+i] = -1
			cons = append(cons, program.Constraint{
				Name: "turnover_up_" + symbol, Coeffs: upper, Op: program.LE, RHS: prevWeight,
			})

			lower := make([]float64, next)
			f.addWeightCoeff(lower, lay, i, -1)
			lower[lay.t+i] = -1
			cons = append(cons, program.Constraint{
				Name: "turnover_down_" + symbol, Coeffs: lower, Op: program.LE, RHS: -prevWeight,
			})

			sumRow[lay.t+i] = 1
		}
		cons = append(cons, program.Constraint{Name: "turnover_total", Coeffs: sumRow, Op: program.LE, RHS: *cs.Turnover})
	}

	// Cardinality: w_i inactive unless its indicator is on, sum b_i <= K.
	if withCardinality {
		sumRow := make([]float64, next)
		for i, symbol := range matrix.Assets {
			bound := cs.BoundsFor(symbol)

			row := make([]float64, next)
			row[lay.wPos+i] = 1
			row[lay.b+i] = -math.Max(0, bound.Upper)
			cons = append(cons, program.Constraint{
				Name: "cardinality_long_" + symbol, Coeffs: row, Op: program.LE, RHS: 0,
			})

			if cs.AllowShort {
				short := make([]float64, next)
				short[lay.wNeg+i] = 1
				short[lay.b+i] = -math.Max(0, -bound.Lower)
				cons = append(cons, program.Constraint{
					Name: "cardinality_short_" + symbol, Coeffs: short, Op: program.LE, RHS: 0,
				})
			}

			sumRow[lay.b+i] = 1
		}
		cons = append(cons, program.Constraint{Name: "cardinality_total", Coeffs: sumRow, Op: program.LE, RHS: float64(*cs.Cardinality)})
	}

	prog := &program.Program{
		Name:        "mean_cvar",
		Sense:       program.Minimize,
		Objective:   obj,
		Variables:   vars,
		Constraints: cons,
	}

	f.log.Debug().
		Int("assets", n).
		Int("scenarios", nScen).
		Int("variables", prog.NumVariables()).
		Int("constraints", len(cons)).
		Bool("mixed_integer", prog.IsMixedInteger()).
		Str("mode", string(cfg.Mode)).
		Msg("Built canonical program")

	return prog, lay, nil
}

// addWeightCoeff adds coeff to the net weight w_i = w_pos_i - w_neg_i.
func (f *Formulator) addWeightCoeff(row []float64, lay *layout, i int, coeff float64) {
	row[lay.wPos+i] += coeff
	if lay.short {
		row[lay.wNeg+i] -= coeff
	}
}
