package solver

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize/convex/lp"

	"github.com/aristath/tailrisk/internal/modules/program"
)

const (
	// simplexTol is the feasibility tolerance handed to gonum's simplex.
	simplexTol = 1e-10
	// integralityTol decides when a relaxed binary counts as integral.
	integralityTol = 1e-6
	// pruneTol guards against re-expanding nodes that cannot beat the incumbent.
	pruneTol = 1e-9
)

// SimplexSolver solves continuous programs with gonum's dense simplex and
// mixed-integer programs with depth-first branch-and-bound over the binary
// variables, using the simplex relaxation as the bound.
type SimplexSolver struct {
	log zerolog.Logger
}

// NewSimplexSolver creates the reference solver backend.
func NewSimplexSolver(log zerolog.Logger) *SimplexSolver {
	return &SimplexSolver{
		log: log.With().Str("component", "solver").Logger(),
	}
}

// Solve implements the Solver interface. A context deadline acts as the time
// budget: when exceeded, the solution carries StatusTimeout (with the best
// integral incumbent found so far for mixed-integer programs).
func (s *SimplexSolver) Solve(ctx context.Context, prog *program.Program) (*program.Solution, error) {
	if prog == nil {
		return nil, fmt.Errorf("nil program")
	}
	if err := prog.Validate(); err != nil {
		return nil, fmt.Errorf("invalid program: %w", err)
	}

	start := time.Now()
	var sol *program.Solution
	if prog.IsMixedInteger() {
		sol = s.branchAndBound(ctx, prog)
	} else {
		sol = s.solveContinuous(ctx, prog)
	}
	sol.SolveTime = time.Since(start)

	s.log.Debug().
		Str("program", prog.Name).
		Str("status", string(sol.Status)).
		Float64("objective", sol.Objective).
		Dur("solve_time", sol.SolveTime).
		Msg("Solve finished")

	return sol, nil
}

// solveContinuous runs the simplex in a goroutine so the caller's deadline is
// honored even when the pivot loop runs long. The worker is not cancellable
// mid-pivot; its result is discarded after a timeout.
func (s *SimplexSolver) solveContinuous(ctx context.Context, prog *program.Program) *program.Solution {
	if ctx.Err() != nil {
		return &program.Solution{Status: program.StatusTimeout, Message: ctx.Err().Error()}
	}

	type answer struct {
		obj float64
		x   []float64
		err error
	}
	done := make(chan answer, 1)
	go func() {
		obj, x, err := s.solveRelaxation(prog, nil)
		done <- answer{obj: obj, x: x, err: err}
	}()

	select {
	case <-ctx.Done():
		return &program.Solution{Status: program.StatusTimeout, Message: ctx.Err().Error()}
	case a := <-done:
		if a.err != nil {
			return statusFromSimplexError(a.err)
		}
		return &program.Solution{Status: program.StatusOptimal, Objective: signedObjective(prog, a.obj), Values: a.x}
	}
}

// branchAndBound explores binary fixings depth-first, bounding each node with
// the continuous relaxation. The deadline is checked between nodes.
func (s *SimplexSolver) branchAndBound(ctx context.Context, prog *program.Program) *program.Solution {
	type node struct {
		fixed map[int]float64
	}

	binaries := make([]int, 0)
	for i, v := range prog.Variables {
		if v.Type == program.Binary {
			binaries = append(binaries, i)
		}
	}

	incumbentObj := math.Inf(1)
	var incumbent []float64
	stack := []node{{fixed: map[int]float64{}}}
	nodes := 0

	for len(stack) > 0 {
		if ctx.Err() != nil {
			if incumbent != nil {
				return &program.Solution{
					Status:    program.StatusTimeout,
					Objective: signedObjective(prog, incumbentObj),
					Values:    incumbent,
					Message:   "time budget exhausted before proving optimality",
				}
			}
			return &program.Solution{Status: program.StatusTimeout, Message: ctx.Err().Error()}
		}

		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		nodes++

		obj, x, err := s.solveRelaxation(prog, cur.fixed)
		if err != nil {
			if errors.Is(err, lp.ErrInfeasible) {
				continue // prune
			}
			return statusFromSimplexError(err)
		}
		if obj >= incumbentObj-pruneTol {
			continue // bound
		}

		branchVar := -1
		branchFrac := 0.0
		for _, bi := range binaries {
			if _, isFixed := cur.fixed[bi]; isFixed {
				continue
			}
			frac := math.Abs(x[bi] - math.Round(x[bi]))
			if frac > integralityTol && frac > branchFrac {
				branchFrac = frac
				branchVar = bi
			}
		}

		if branchVar < 0 {
			// Integral solution: new incumbent.
			incumbentObj = obj
			incumbent = roundBinaries(x, binaries)
			continue
		}

		for _, fix := range []float64{0, 1} {
			child := make(map[int]float64, len(cur.fixed)+1)
			for k, v := range cur.fixed {
				child[k] = v
			}
			child[branchVar] = fix
			stack = append(stack, node{fixed: child})
		}
	}

	s.log.Debug().Int("nodes", nodes).Msg("Branch-and-bound search exhausted")

	if incumbent == nil {
		return &program.Solution{Status: program.StatusInfeasible}
	}
	return &program.Solution{
		Status:    program.StatusOptimal,
		Objective: signedObjective(prog, incumbentObj),
		Values:    incumbent,
	}
}

// solveRelaxation solves the continuous relaxation of prog, with binary
// variables relaxed to [0,1] and optionally fixed by the branch-and-bound
// search. It reduces the program to the standard form gonum's simplex accepts:
// every variable split into positive and negative parts, one slack variable
// per inequality row.
func (s *SimplexSolver) solveRelaxation(prog *program.Program, fixed map[int]float64) (float64, []float64, error) {
	n := prog.NumVariables()

	c := make([]float64, n)
	copy(c, prog.Objective)
	if prog.Sense == program.Maximize {
		for i := range c {
			c[i] = -c[i]
		}
	}

	// Collect general-form rows: G x <= h and A x = b. Variable bounds become
	// inequality rows because the standard-form variables are free splits.
	var g [][]float64
	var h []float64
	var aeq [][]float64
	var beq []float64

	for _, con := range prog.Constraints {
		switch con.Op {
		case program.LE:
			g = append(g, con.Coeffs)
			h = append(h, con.RHS)
		case program.GE:
			neg := make([]float64, n)
			for i, v := range con.Coeffs {
				neg[i] = -v
			}
			g = append(g, neg)
			h = append(h, -con.RHS)
		case program.EQ:
			aeq = append(aeq, con.Coeffs)
			beq = append(beq, con.RHS)
		}
	}

	for i, v := range prog.Variables {
		lower, upper := v.Lower, v.Upper
		if v.Type == program.Binary {
			lower = math.Max(lower, 0)
			upper = math.Min(upper, 1)
			if fv, ok := fixed[i]; ok {
				lower, upper = fv, fv
			}
		}
		if !math.IsInf(upper, 1) {
			row := make([]float64, n)
			row[i] = 1
			g = append(g, row)
			h = append(h, upper)
		}
		if !math.IsInf(lower, -1) {
			row := make([]float64, n)
			row[i] = -1
			g = append(g, row)
			h = append(h, -lower)
		}
	}

	nIneq := len(g)
	nEq := len(aeq)
	nStd := 2*n + nIneq

	cStd := make([]float64, nStd)
	for i := 0; i < n; i++ {
		cStd[i] = c[i]
		cStd[n+i] = -c[i]
	}

	aStd := mat.NewDense(nIneq+nEq, nStd, nil)
	bStd := make([]float64, nIneq+nEq)
	for r, row := range g {
		for i, v := range row {
			aStd.Set(r, i, v)
			aStd.Set(r, n+i, -v)
		}
		aStd.Set(r, 2*n+r, 1)
		bStd[r] = h[r]
	}
	for r, row := range aeq {
		for i, v := range row {
			aStd.Set(nIneq+r, i, v)
			aStd.Set(nIneq+r, n+i, -v)
		}
		bStd[nIneq+r] = beq[r]
	}

	_, xStd, err := lp.Simplex(cStd, aStd, bStd, simplexTol, nil)
	if err != nil {
		return 0, nil, err
	}

	x := make([]float64, n)
	obj := 0.0
	for i := 0; i < n; i++ {
		x[i] = xStd[i] - xStd[n+i]
		obj += c[i] * x[i]
	}
	return obj, x, nil
}

// signedObjective converts the internal minimization objective back to the
// program's declared sense.
func signedObjective(prog *program.Program, obj float64) float64 {
	if prog.Sense == program.Maximize {
		return -obj
	}
	return obj
}

func roundBinaries(x []float64, binaries []int) []float64 {
	out := make([]float64, len(x))
	copy(out, x)
	for _, bi := range binaries {
		out[bi] = math.Round(out[bi])
	}
	return out
}

func statusFromSimplexError(err error) *program.Solution {
	switch {
	case errors.Is(err, lp.ErrInfeasible):
		return &program.Solution{Status: program.StatusInfeasible}
	case errors.Is(err, lp.ErrUnbounded):
		return &program.Solution{Status: program.StatusUnbounded}
	default:
		return &program.Solution{Status: program.StatusError, Message: err.Error()}
	}
}
