package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/tailrisk/internal/modules/optimization"
	"github.com/aristath/tailrisk/internal/modules/program"
	"github.com/aristath/tailrisk/internal/modules/scenarios"
	"github.com/aristath/tailrisk/internal/modules/snapshots"
	"github.com/aristath/tailrisk/internal/modules/universe"
)

// ReoptimizeJob periodically re-solves the portfolio from the latest stored
// returns and archives the result.
type ReoptimizeJob struct {
	log       zerolog.Logger
	repo      *universe.Repository
	generator *scenarios.Generator
	optimizer *optimization.Optimizer
	store     *snapshots.Store
	cfg       ReoptimizeConfig
}

// ReoptimizeConfig holds the standing solve parameters for the scheduled run.
type ReoptimizeConfig struct {
	Constraints   optimization.ConstraintSet
	Optimization  optimization.Config
	Method        scenarios.Method
	ScenarioCount int
	Lookback      int
	Seed          uint64
	SolveTimeout  time.Duration
}

// NewReoptimizeJob creates the scheduled re-optimization job.
func NewReoptimizeJob(
	log zerolog.Logger,
	repo *universe.Repository,
	gen *scenarios.Generator,
	opt *optimization.Optimizer,
	store *snapshots.Store,
	cfg ReoptimizeConfig,
) *ReoptimizeJob {
	return &ReoptimizeJob{
		log:       log.With().Str("job", "reoptimize").Logger(),
		repo:      repo,
		generator: gen,
		optimizer: opt,
		store:     store,
		cfg:       cfg,
	}
}

// Name returns the job name
func (j *ReoptimizeJob) Name() string {
	return "reoptimize"
}

// Run loads the universe, re-solves, and stores the outcome. An empty
// universe is skipped, not failed, so the job can be scheduled before any
// assets are loaded.
func (j *ReoptimizeJob) Run() error {
	start := time.Now()

	assets, err := j.repo.ListAssets()
	if err != nil {
		return fmt.Errorf("failed to list assets: %w", err)
	}
	if len(assets) == 0 {
		j.log.Info().Msg("No assets in universe, skipping re-optimization")
		return nil
	}

	hist, err := j.repo.LoadHistory(assets, j.cfg.Lookback)
	if err != nil {
		return fmt.Errorf("failed to load history: %w", err)
	}

	// Tie the seed to the day so repeated runs within a day reproduce.
	seed := j.cfg.Seed + uint64(time.Now().UTC().Truncate(24*time.Hour).Unix())
	matrix, err := j.generator.Generate(hist, j.cfg.ScenarioCount, j.cfg.Method, seed)
	if err != nil {
		return fmt.Errorf("scenario generation failed: %w", err)
	}

	ctx := context.Background()
	if j.cfg.SolveTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, j.cfg.SolveTimeout)
		defer cancel()
	}

	result, err := j.optimizer.Optimize(ctx, matrix, j.cfg.Constraints, j.cfg.Optimization, nil)
	if err != nil {
		return fmt.Errorf("optimization failed: %w", err)
	}

	id, err := j.store.Save(snapshots.KindResult, result)
	if err != nil {
		return fmt.Errorf("failed to store result: %w", err)
	}

	evt := j.log.Info().
		Str("snapshot", id).
		Str("status", string(result.Status)).
		Dur("duration", time.Since(start))
	if result.Status == program.StatusOptimal {
		evt = evt.Float64("cvar", result.Portfolio.CVaR).
			Float64("expected_return", result.Portfolio.ExpectedReturn)
	}
	evt.Msg("Re-optimization completed")

	return nil
}
