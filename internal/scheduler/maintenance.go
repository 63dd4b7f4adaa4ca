package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/tailrisk/internal/database"
	"github.com/aristath/tailrisk/internal/modules/snapshots"
)

// snapshotRetention is how long solve/backtest artifacts are kept.
const snapshotRetention = 90 * 24 * time.Hour

// MaintenanceJob keeps the databases healthy: integrity checks, WAL
// checkpoints, and snapshot retention.
type MaintenanceJob struct {
	log       zerolog.Logger
	history   *database.DB
	artifacts *database.DB
	store     *snapshots.Store
}

// NewMaintenanceJob creates a new maintenance job
func NewMaintenanceJob(log zerolog.Logger, history, artifacts *database.DB, store *snapshots.Store) *MaintenanceJob {
	return &MaintenanceJob{
		log:       log.With().Str("job", "maintenance").Logger(),
		history:   history,
		artifacts: artifacts,
		store:     store,
	}
}

// Name returns the job name
func (j *MaintenanceJob) Name() string {
	return "maintenance"
}

// Run executes the maintenance pass
func (j *MaintenanceJob) Run() error {
	start := time.Now()

	for name, db := range map[string]*database.DB{
		"history":   j.history,
		"artifacts": j.artifacts,
	} {
		if db == nil {
			continue
		}
		if err := db.HealthCheck(context.Background()); err != nil {
			return fmt.Errorf("database %s failed health check: %w", name, err)
		}
		j.checkpointWAL(name, db)
	}

	cutoff := time.Now().Add(-snapshotRetention)
	for _, kind := range []snapshots.Kind{snapshots.KindProgram, snapshots.KindResult, snapshots.KindBacktest} {
		if _, err := j.store.Prune(kind, cutoff); err != nil {
			j.log.Error().Err(err).Str("kind", string(kind)).Msg("Failed to prune snapshots")
		}
	}

	j.log.Info().Dur("duration", time.Since(start)).Msg("Maintenance completed")
	return nil
}

// checkpointWAL runs a passive checkpoint and flags a growing WAL.
func (j *MaintenanceJob) checkpointWAL(name string, db *database.DB) {
	var busy, frames, checkpointed int
	err := db.Conn().QueryRow("PRAGMA wal_checkpoint(PASSIVE)").Scan(&busy, &frames, &checkpointed)
	if err != nil {
		j.log.Warn().Err(err).Str("database", name).Msg("Failed to checkpoint WAL")
		return
	}

	if frames > 1000 {
		j.log.Warn().
			Str("database", name).
			Int("wal_frames", frames).
			Int("checkpointed", checkpointed).
			Msg("WAL file is large, checkpoint may be needed")
	} else {
		j.log.Debug().
			Str("database", name).
			Int("wal_frames", frames).
			Msg("WAL checkpoint status OK")
	}
}
