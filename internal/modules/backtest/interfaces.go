package backtest

import (
	"context"

	"github.com/aristath/tailrisk/internal/modules/optimization"
	"github.com/aristath/tailrisk/internal/modules/scenarios"
	"github.com/aristath/tailrisk/internal/modules/universe"
)

// PortfolioOptimizer is the single-period optimization contract the
// backtester drives. Satisfied by optimization.Optimizer; kept small so tests
// can substitute stubs.
type PortfolioOptimizer interface {
	Optimize(
		ctx context.Context,
		matrix *scenarios.ScenarioMatrix,
		cs optimization.ConstraintSet,
		cfg optimization.Config,
		prev map[string]float64,
	) (*optimization.OptimizationResult, error)
}

// ScenarioSource builds the scenario distribution for one period from the
// history window available at that time. Satisfied by scenarios.Generator.
type ScenarioSource interface {
	Generate(hist *universe.History, nScenarios int, method scenarios.Method, seed uint64) (*scenarios.ScenarioMatrix, error)
}
