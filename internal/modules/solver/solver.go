// Package solver provides backends that solve canonical programs produced by
// the Mean-CVaR formulator. Backends are substitutable behind the Solver
// interface so alternative LP/MILP engines can be plugged in without touching
// the formulator or the backtester.
package solver

import (
	"context"

	"github.com/aristath/tailrisk/internal/modules/program"
)

// Solver solves a canonical program within the deadline carried by ctx.
// Infeasibility, unboundedness and timeouts are reported as solution statuses,
// never as errors; the error return is reserved for malformed programs.
type Solver interface {
	Solve(ctx context.Context, prog *program.Program) (*program.Solution, error)
}
