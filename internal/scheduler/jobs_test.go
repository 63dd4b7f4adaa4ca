package scheduler

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/tailrisk/internal/database"
	"github.com/aristath/tailrisk/internal/modules/optimization"
	"github.com/aristath/tailrisk/internal/modules/scenarios"
	"github.com/aristath/tailrisk/internal/modules/snapshots"
	"github.com/aristath/tailrisk/internal/modules/solver"
	"github.com/aristath/tailrisk/internal/modules/universe"
)

func testDBs(t *testing.T) (*database.DB, *database.DB) {
	t.Helper()
	dir := t.TempDir()

	history, err := database.New(database.Config{
		Path:    filepath.Join(dir, "history.db"),
		Profile: database.ProfileHistory,
		Name:    "history",
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = history.Close() })

	artifacts, err := database.New(database.Config{
		Path:    filepath.Join(dir, "artifacts.db"),
		Profile: database.ProfileArtifacts,
		Name:    "artifacts",
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = artifacts.Close() })

	return history, artifacts
}

func TestReoptimizeJob_Run(t *testing.T) {
	historyDB, artifactsDB := testDBs(t)
	log := zerolog.Nop()
	repo := universe.NewRepository(historyDB, log)
	store := snapshots.NewStore(artifactsDB, log)

	require.NoError(t, repo.SaveAsset(universe.Asset{Symbol: "AAA"}))
	require.NoError(t, repo.SaveAsset(universe.Asset{Symbol: "BBB"}))
	dates := make([]time.Time, 12)
	retA := make([]float64, 12)
	retB := make([]float64, 12)
	start := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	for i := range dates {
		dates[i] = start.AddDate(0, 0, i)
		retA[i] = 0.005 * float64(i%3-1)
		retB[i] = -0.004 * float64(i%4-2)
	}
	require.NoError(t, repo.SaveReturns("AAA", dates, retA))
	require.NoError(t, repo.SaveReturns("BBB", dates, retB))

	job := NewReoptimizeJob(log, repo,
		scenarios.NewGenerator(log),
		optimization.NewOptimizer(solver.NewSimplexSolver(log), log),
		store,
		ReoptimizeConfig{
			Constraints:   optimization.NewLongOnly(1.0),
			Optimization:  optimization.Config{Alpha: 0.95, Mode: optimization.ModeMinCVaR},
			Method:        scenarios.MethodHistorical,
			ScenarioCount: 20,
			Lookback:      10,
			Seed:          5,
			SolveTimeout:  30 * time.Second,
		})

	assert.Equal(t, "reoptimize", job.Name())
	require.NoError(t, job.Run())

	snaps, err := store.List(snapshots.KindResult, 0)
	require.NoError(t, err)
	require.Len(t, snaps, 1)

	var result optimization.OptimizationResult
	require.NoError(t, snaps[0].Decode(&result))
	assert.EqualValues(t, "OPTIMAL", result.Status)
}

func TestReoptimizeJob_EmptyUniverseSkips(t *testing.T) {
	historyDB, artifactsDB := testDBs(t)
	log := zerolog.Nop()
	repo := universe.NewRepository(historyDB, log)
	store := snapshots.NewStore(artifactsDB, log)

	job := NewReoptimizeJob(log, repo,
		scenarios.NewGenerator(log),
		optimization.NewOptimizer(solver.NewSimplexSolver(log), log),
		store,
		ReoptimizeConfig{
			Constraints:   optimization.NewLongOnly(1.0),
			Optimization:  optimization.Config{Alpha: 0.95, Mode: optimization.ModeMinCVaR},
			Method:        scenarios.MethodHistorical,
			ScenarioCount: 20,
			Lookback:      10,
		})

	require.NoError(t, job.Run())

	snaps, err := store.List(snapshots.KindResult, 0)
	require.NoError(t, err)
	assert.Empty(t, snaps)
}

func TestMaintenanceJob_Run(t *testing.T) {
	historyDB, artifactsDB := testDBs(t)
	log := zerolog.Nop()
	store := snapshots.NewStore(artifactsDB, log)

	// Fresh snapshots survive the retention pass.
	id, err := store.Save(snapshots.KindResult, map[string]string{"label": "keep"})
	require.NoError(t, err)

	job := NewMaintenanceJob(log, historyDB, artifactsDB, store)
	assert.Equal(t, "maintenance", job.Name())
	require.NoError(t, job.Run())

	_, err = store.Load(id)
	assert.NoError(t, err)
}
