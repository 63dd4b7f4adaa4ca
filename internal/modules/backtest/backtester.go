// Package backtest replays a rebalancing policy over a returns history: at
// each period it decides whether to re-solve, applies the resulting weights
// net of transaction costs, and lets the held weights drift with realized
// returns until the next rebalance. Scenario estimation only ever sees rows
// strictly before the period being traded, so the replay is free of
// look-ahead.
package backtest

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/tailrisk/internal/modules/optimization"
	"github.com/aristath/tailrisk/internal/modules/program"
	"github.com/aristath/tailrisk/internal/modules/scenarios"
	"github.com/aristath/tailrisk/internal/modules/universe"
	"github.com/aristath/tailrisk/pkg/formulas"
)

// Trigger selects when the backtester re-solves.
type Trigger string

const (
	// TriggerAlways re-solves at every period.
	TriggerAlways Trigger = "always"
	// TriggerPeriodic re-solves every RebalanceEvery periods.
	TriggerPeriodic Trigger = "periodic"
	// TriggerThreshold re-solves when drifted weights deviate from the last
	// solved targets by more than DriftTolerance in L1 norm.
	TriggerThreshold Trigger = "threshold"
)

// Fallback is the policy applied when a scheduled solve does not come back
// OPTIMAL.
type Fallback string

const (
	// FallbackHold keeps the previously held weights and moves on.
	FallbackHold Fallback = "hold"
	// FallbackAbort stops the run at the failing period.
	FallbackAbort Fallback = "abort"
)

// State is the terminal state of a run.
type State string

const (
	StateCompleted State = "COMPLETED"
	StateAborted   State = "ABORTED"
)

// Config drives one backtest run. Lookback is the number of history rows fed
// to scenario estimation each period; the first Lookback rows of the input
// history are warmup and are never traded.
type Config struct {
	Constraints  optimization.ConstraintSet `json:"constraints"`
	Optimization optimization.Config        `json:"optimization"`

	Lookback  int              `json:"lookback"`
	Scenarios int              `json:"scenarios"`
	Method    scenarios.Method `json:"method"`
	Seed      uint64           `json:"seed"`

	Trigger        Trigger `json:"trigger"`
	RebalanceEvery int     `json:"rebalance_every,omitempty"`
	DriftTolerance float64 `json:"drift_tolerance,omitempty"`

	Fallback     Fallback      `json:"fallback"`
	CostRate     float64       `json:"cost_rate"`
	SolveTimeout time.Duration `json:"solve_timeout,omitempty"`

	// Progress, when set, receives each period record as it is produced.
	// Called from the run's goroutine; must not block.
	Progress func(PeriodRecord) `json:"-"`
}

// Validate rejects configurations that cannot produce a well-defined run.
func (c *Config) Validate() error {
	if c.Lookback < 1 {
		return fmt.Errorf("lookback must be at least 1, got %d", c.Lookback)
	}
	if c.Scenarios < 1 {
		return fmt.Errorf("scenario count must be at least 1, got %d", c.Scenarios)
	}
	switch c.Trigger {
	case TriggerAlways, TriggerThreshold:
	case TriggerPeriodic:
		if c.RebalanceEvery < 1 {
			return fmt.Errorf("periodic trigger needs rebalance_every >= 1, got %d", c.RebalanceEvery)
		}
	default:
		return fmt.Errorf("unknown trigger %q", c.Trigger)
	}
	if c.Trigger == TriggerThreshold && c.DriftTolerance < 0 {
		return fmt.Errorf("drift tolerance must be non-negative, got %f", c.DriftTolerance)
	}
	switch c.Fallback {
	case FallbackHold, FallbackAbort:
	default:
		return fmt.Errorf("unknown fallback %q", c.Fallback)
	}
	if c.CostRate < 0 {
		return fmt.Errorf("cost rate must be non-negative, got %f", c.CostRate)
	}
	return nil
}

// PeriodRecord is the outcome of one traded period.
type PeriodRecord struct {
	Index           int                `json:"index"`
	Date            time.Time          `json:"date"`
	Weights         map[string]float64 `json:"weights"`
	Solved          bool               `json:"solved"`
	SolveStatus     program.Status     `json:"solve_status,omitempty"`
	Rebalanced      bool               `json:"rebalanced"`
	Turnover        float64            `json:"turnover"`
	TransactionCost float64            `json:"transaction_cost"`
	GrossReturn     float64            `json:"gross_return"`
	NetReturn       float64            `json:"net_return"`
}

// Summary aggregates a completed run.
type Summary struct {
	CumulativeReturn     float64   `json:"cumulative_return"`
	AnnualizedVolatility float64   `json:"annualized_volatility"`
	SharpeRatio          float64   `json:"sharpe_ratio"`
	MaxDrawdown          float64   `json:"max_drawdown"`
	RealizedCVaR         float64   `json:"realized_cvar"`
	TotalCosts           float64   `json:"total_costs"`
	RollingVolatility    []float64 `json:"rolling_volatility,omitempty"`
}

// Result is the full output of a run. CumulativeReturns[t] is the compounded
// net return through traded period t.
type Result struct {
	State             State          `json:"state"`
	Records           []PeriodRecord `json:"records"`
	CumulativeReturns []float64      `json:"cumulative_returns"`
	Summary           Summary        `json:"summary"`
}

// rollingVolWindow is the window for the summary's rolling realized
// volatility series.
const rollingVolWindow = 20

// Backtester replays one policy. Safe for reuse across runs; each Run call is
// independent.
type Backtester struct {
	source    ScenarioSource
	optimizer PortfolioOptimizer
	log       zerolog.Logger
}

// NewBacktester wires a backtester from its collaborators.
func NewBacktester(source ScenarioSource, opt PortfolioOptimizer, log zerolog.Logger) *Backtester {
	return &Backtester{
		source:    source,
		optimizer: opt,
		log:       log.With().Str("component", "backtester").Logger(),
	}
}

// Run replays cfg over hist. The first cfg.Lookback rows are warmup; every
// later row is traded in order. The first traded period always solves
// regardless of trigger, since there is no prior portfolio to hold.
//
// An aborted run still returns the records accumulated up to the failing
// period alongside the error.
func (b *Backtester) Run(ctx context.Context, hist *universe.History, cfg Config) (*Result, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid backtest config: %w", err)
	}
	if err := hist.Validate(); err != nil {
		return nil, fmt.Errorf("invalid history: %w", err)
	}
	if hist.NumPeriods() <= cfg.Lookback {
		return nil, fmt.Errorf("history has %d rows, need more than the %d-row lookback", hist.NumPeriods(), cfg.Lookback)
	}
	if err := cfg.Constraints.Validate(hist.Symbols()); err != nil {
		return nil, err
	}
	if err := cfg.Optimization.Validate(); err != nil {
		return nil, err
	}

	symbols := hist.Symbols()
	res := &Result{State: StateCompleted}

	// held is what the book looks like entering the period, after drift.
	// target is the last solved allocation, the reference for drift triggers.
	var held, target map[string]float64
	lastSolve := -1

	for t := cfg.Lookback; t < hist.NumPeriods(); t++ {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		idx := t - cfg.Lookback
		rec := PeriodRecord{Index: idx, Date: hist.Dates[t]}

		if b.shouldSolve(cfg, idx, lastSolve, held, target) {
			rec.Solved = true
			weights, status, err := b.solvePeriod(ctx, hist, cfg, t, held)
			rec.SolveStatus = status
			switch {
			case err != nil && cfg.Fallback == FallbackAbort:
				res.State = StateAborted
				return res, fmt.Errorf("period %d: %w", idx, err)
			case err != nil:
				if held == nil {
					// Nothing to hold before the first successful solve.
					res.State = StateAborted
					return res, fmt.Errorf("period %d: %w", idx, err)
				}
				b.log.Warn().Int("period", idx).Err(err).Msg("Solve failed, holding previous weights")
			case status != program.StatusOptimal && cfg.Fallback == FallbackAbort:
				res.State = StateAborted
				return res, fmt.Errorf("period %d: solve ended %s", idx, status)
			case status != program.StatusOptimal:
				if held == nil {
					res.State = StateAborted
					return res, fmt.Errorf("period %d: solve ended %s with no prior portfolio to hold", idx, status)
				}
				b.log.Warn().Int("period", idx).Str("status", string(status)).Msg("Solve not optimal, holding previous weights")
			default:
				rec.Rebalanced = true
				rec.Turnover = turnoverBetween(symbols, held, weights)
				rec.TransactionCost = cfg.CostRate * rec.Turnover
				held = weights
				target = copyWeights(weights)
				lastSolve = idx
			}
		}

		rec.Weights = copyWeights(held)
		rec.GrossReturn = portfolioReturn(hist, t, held)
		rec.NetReturn = rec.GrossReturn - rec.TransactionCost
		res.Records = append(res.Records, rec)
		if cfg.Progress != nil {
			cfg.Progress(rec)
		}

		held = driftWeights(hist, t, held)
	}

	b.summarize(res)
	return res, nil
}

// solvePeriod estimates scenarios from the lookback window ending just before
// row t and runs one optimization.
func (b *Backtester) solvePeriod(
	ctx context.Context,
	hist *universe.History,
	cfg Config,
	t int,
	prev map[string]float64,
) (map[string]float64, program.Status, error) {
	window := hist.Window(t-cfg.Lookback, t)
	matrix, err := b.source.Generate(window, cfg.Scenarios, cfg.Method, cfg.Seed+uint64(t))
	if err != nil {
		return nil, program.StatusError, fmt.Errorf("scenario generation: %w", err)
	}

	solveCtx := ctx
	if cfg.SolveTimeout > 0 {
		var cancel context.CancelFunc
		solveCtx, cancel = context.WithTimeout(ctx, cfg.SolveTimeout)
		defer cancel()
	}

	result, err := b.optimizer.Optimize(solveCtx, matrix, cfg.Constraints, cfg.Optimization, prev)
	if err != nil {
		return nil, program.StatusError, fmt.Errorf("optimize: %w", err)
	}
	if result.Status != program.StatusOptimal {
		return nil, result.Status, nil
	}
	return result.Portfolio.Weights, result.Status, nil
}

func (b *Backtester) shouldSolve(cfg Config, idx, lastSolve int, held, target map[string]float64) bool {
	if held == nil {
		return true
	}
	switch cfg.Trigger {
	case TriggerPeriodic:
		return idx-lastSolve >= cfg.RebalanceEvery
	case TriggerThreshold:
		return weightDrift(held, target) > cfg.DriftTolerance
	default:
		return true
	}
}

func (b *Backtester) summarize(res *Result) {
	net := make([]float64, len(res.Records))
	totalCosts := 0.0
	for i, rec := range res.Records {
		net[i] = rec.NetReturn
		totalCosts += rec.TransactionCost
	}

	res.CumulativeReturns = formulas.CumulativeSeries(net)
	res.Summary = Summary{
		CumulativeReturn:     formulas.CumulativeReturn(net),
		AnnualizedVolatility: formulas.AnnualizedVolatility(net),
		SharpeRatio:          formulas.SharpeRatio(net, 0),
		MaxDrawdown:          formulas.MaxDrawdown(net),
		RealizedCVaR:         formulas.CalculateCVaR(net, 0.95),
		TotalCosts:           totalCosts,
	}
	if len(net) >= rollingVolWindow {
		res.Summary.RollingVolatility = formulas.RollingVolatility(net, rollingVolWindow)
	}
}

// portfolioReturn is the realized return of holding w over row t.
func portfolioReturn(hist *universe.History, t int, w map[string]float64) float64 {
	total := 0.0
	for j, a := range hist.Assets {
		total += w[a.Symbol] * hist.Returns[t][j]
	}
	return total
}

// driftWeights evolves held weights through the row-t returns:
// w_i <- w_i (1 + r_i) / (1 + w·r). Degenerate when the portfolio loses its
// full value; weights are left unchanged in that case.
func driftWeights(hist *universe.History, t int, w map[string]float64) map[string]float64 {
	if w == nil {
		return nil
	}
	gross := 1.0 + portfolioReturn(hist, t, w)
	if math.Abs(gross) < 1e-12 {
		return w
	}
	out := make(map[string]float64, len(w))
	for j, a := range hist.Assets {
		out[a.Symbol] = w[a.Symbol] * (1.0 + hist.Returns[t][j]) / gross
	}
	return out
}

func turnoverBetween(symbols []string, prev, next map[string]float64) float64 {
	if prev == nil {
		return 0
	}
	total := 0.0
	for _, s := range symbols {
		total += math.Abs(next[s] - prev[s])
	}
	return total
}

func weightDrift(held, target map[string]float64) float64 {
	total := 0.0
	for s, w := range target {
		total += math.Abs(held[s] - w)
	}
	return total
}

func copyWeights(w map[string]float64) map[string]float64 {
	if w == nil {
		return nil
	}
	out := make(map[string]float64, len(w))
	for k, v := range w {
		out[k] = v
	}
	return out
}
