// Package optimization contains the Mean-CVaR formulator, the constraint
// model and the portfolio optimizer orchestrating formulation and solving.
package optimization

import (
	"context"
	"math"
	"sync"

	"github.com/rs/zerolog"

	"github.com/aristath/tailrisk/internal/modules/program"
	"github.com/aristath/tailrisk/internal/modules/scenarios"
	"github.com/aristath/tailrisk/internal/modules/solver"
	"github.com/aristath/tailrisk/pkg/formulas"
)

// weightEpsilon zeroes out solver noise below this magnitude.
const weightEpsilon = 1e-10

// Optimizer performs single point-in-time Mean-CVaR optimizations and
// efficient-frontier sweeps. It holds no state across calls; the previous
// portfolio needed for turnover is supplied explicitly by the caller.
type Optimizer struct {
	formulator *Formulator
	solver     solver.Solver
	log        zerolog.Logger
}

// NewOptimizer creates an optimizer backed by the given solver.
func NewOptimizer(sol solver.Solver, log zerolog.Logger) *Optimizer {
	return &Optimizer{
		formulator: NewFormulator(log),
		solver:     sol,
		log:        log.With().Str("component", "optimizer").Logger(),
	}
}

// Optimize formulates and solves one Mean-CVaR program. Solver-level
// INFEASIBLE/UNBOUNDED/TIMEOUT outcomes are returned as result statuses with
// no portfolio; the error return fires only for malformed inputs detected
// before dispatch.
func (o *Optimizer) Optimize(
	ctx context.Context,
	matrix *scenarios.ScenarioMatrix,
	cs ConstraintSet,
	cfg Config,
	prev map[string]float64,
) (*OptimizationResult, error) {
	prog, lay, err := o.formulator.Build(matrix, cs, cfg, prev)
	if err != nil {
		return nil, err
	}

	sol, err := o.solver.Solve(ctx, prog)
	if err != nil {
		return nil, err
	}

	result := &OptimizationResult{
		Status:    sol.Status,
		Objective: sol.Objective,
		SolveTime: sol.SolveTime,
		Message:   sol.Message,
	}
	if sol.Status != program.StatusOptimal {
		o.log.Debug().
			Str("status", string(sol.Status)).
			Msg("Solve ended without an optimal portfolio")
		return result, nil
	}

	result.Portfolio = o.extractPortfolio(matrix, cfg, lay, sol.Values)
	return result, nil
}

// Sweep traces the efficient frontier: one independent Optimize call per
// target return, preserving input order. Calls share no mutable state and run
// in parallel. Per-target solver failures surface as result statuses; the
// error return fires only when the shared inputs are malformed.
func (o *Optimizer) Sweep(
	ctx context.Context,
	matrix *scenarios.ScenarioMatrix,
	cs ConstraintSet,
	alpha float64,
	targetReturns []float64,
) ([]*OptimizationResult, error) {
	// Validate shared inputs once, so input errors fail the sweep instead of
	// being duplicated into every point.
	probe := Config{Alpha: alpha, Mode: ModeMinCVaR}
	if _, _, err := o.formulator.Build(matrix, cs, probe, nil); err != nil {
		return nil, err
	}

	results := make([]*OptimizationResult, len(targetReturns))
	var wg sync.WaitGroup
	for idx, target := range targetReturns {
		wg.Add(1)
		go func(idx int, target float64) {
			defer wg.Done()
			cfg := Config{Alpha: alpha, Mode: ModeTargetReturn, TargetReturn: target}
			res, err := o.Optimize(ctx, matrix, cs, cfg, nil)
			if err != nil {
				res = &OptimizationResult{Status: program.StatusError, Message: err.Error()}
			}
			results[idx] = res
		}(idx, target)
	}
	wg.Wait()

	return results, nil
}

// extractPortfolio recovers weights from the solution vector and computes the
// portfolio's expected return and discrete CVaR from the scenario
// distribution directly, which stays correct in risk-aversion mode where the
// objective mixes CVaR with the return term.
func (o *Optimizer) extractPortfolio(
	matrix *scenarios.ScenarioMatrix,
	cfg Config,
	lay *layout,
	values []float64,
) *Portfolio {
	raw := lay.weights(values)
	weights := make(map[string]float64, len(raw))
	for i, symbol := range matrix.Assets {
		w := raw[i]
		if math.Abs(w) < weightEpsilon {
			w = 0
		}
		weights[symbol] = w
	}

	scenarioReturns := matrix.PortfolioReturns(raw)
	expected := 0.0
	for s, r := range scenarioReturns {
		expected += matrix.Probs[s] * r
	}

	return &Portfolio{
		Weights:        weights,
		Alpha:          cfg.Alpha,
		CVaR:           -formulas.WeightedTailMean(scenarioReturns, matrix.Probs, cfg.Alpha),
		ExpectedReturn: expected,
	}
}
