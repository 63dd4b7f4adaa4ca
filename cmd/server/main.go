// Package main is the entry point for the tailrisk portfolio optimization
// service. It wires the returns store, scenario generator, solver, and HTTP
// API, starts the scheduler, and runs until interrupted.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aristath/tailrisk/internal/config"
	"github.com/aristath/tailrisk/internal/database"
	"github.com/aristath/tailrisk/internal/modules/backtest"
	"github.com/aristath/tailrisk/internal/modules/optimization"
	"github.com/aristath/tailrisk/internal/modules/scenarios"
	"github.com/aristath/tailrisk/internal/modules/snapshots"
	"github.com/aristath/tailrisk/internal/modules/solver"
	"github.com/aristath/tailrisk/internal/modules/universe"
	"github.com/aristath/tailrisk/internal/reliability"
	"github.com/aristath/tailrisk/internal/scheduler"
	"github.com/aristath/tailrisk/internal/server"
	"github.com/aristath/tailrisk/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		// Use fallback logger if config fails
		fallbackLog := logger.New(logger.Config{Level: "info", Pretty: true})
		fallbackLog.Fatal().Err(err).Msg("Failed to load configuration")
	}

	log := logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Pretty: cfg.DevMode,
	})
	logger.SetGlobalLogger(log)

	log.Info().Str("data_dir", cfg.DataDir).Msg("Starting tailrisk")

	// Databases: one for the returns history, one for solve artifacts.
	historyDB, err := database.New(database.Config{
		Path:    cfg.HistoryDBPath(),
		Profile: database.ProfileHistory,
		Name:    "history",
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open history database")
	}
	defer historyDB.Close()

	artifactsDB, err := database.New(database.Config{
		Path:    cfg.ArtifactsDBPath(),
		Profile: database.ProfileArtifacts,
		Name:    "artifacts",
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open artifacts database")
	}
	defer artifactsDB.Close()

	// Core services.
	repo := universe.NewRepository(historyDB, log)
	generator := scenarios.NewGenerator(log)
	simplex := solver.NewSimplexSolver(log)
	optimizer := optimization.NewOptimizer(simplex, log)
	backtester := backtest.NewBacktester(generator, optimizer, log)
	store := snapshots.NewStore(artifactsDB, log)

	var exporter *reliability.Exporter
	if cfg.Export.Enabled {
		exporter, err = reliability.NewExporter(context.Background(), cfg.Export, store, log)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to initialize S3 exporter")
		}
		log.Info().Str("bucket", cfg.Export.Bucket).Msg("Artifact export enabled")
	}

	// Background jobs.
	sched := scheduler.New(log)
	maintenance := scheduler.NewMaintenanceJob(log, historyDB, artifactsDB, store)
	if err := sched.AddJob("0 0 3 * * *", maintenance); err != nil {
		log.Fatal().Err(err).Msg("Failed to register maintenance job")
	}
	if cfg.ReoptimizeSchedule != "" {
		reoptimize := scheduler.NewReoptimizeJob(log, repo, generator, optimizer, store, scheduler.ReoptimizeConfig{
			Constraints:   optimization.NewLongOnly(1.0),
			Optimization:  optimization.Config{Alpha: cfg.DefaultAlpha, Mode: optimization.ModeMinCVaR},
			Method:        scenarios.MethodHistorical,
			ScenarioCount: cfg.ScenarioCount,
			Lookback:      cfg.LookbackPeriods,
			SolveTimeout:  cfg.SolveTimeout,
		})
		if err := sched.AddJob(cfg.ReoptimizeSchedule, reoptimize); err != nil {
			log.Fatal().Err(err).Msg("Failed to register reoptimize job")
		}
	}
	sched.Start()
	defer sched.Stop()

	srv := server.New(server.Config{
		Log:         log,
		Config:      cfg,
		HistoryDB:   historyDB,
		ArtifactsDB: artifactsDB,
		Repo:        repo,
		Generator:   generator,
		Optimizer:   optimizer,
		Backtester:  backtester,
		Store:       store,
		Exporter:    exporter,
	})

	go func() {
		if err := srv.Start(); err != nil {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	log.Info().Int("port", cfg.Port).Msg("Server started successfully")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server stopped")
}
