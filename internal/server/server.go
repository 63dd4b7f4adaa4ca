// Package server provides the HTTP API over the optimization engine.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"github.com/aristath/tailrisk/internal/config"
	"github.com/aristath/tailrisk/internal/database"
	"github.com/aristath/tailrisk/internal/modules/backtest"
	"github.com/aristath/tailrisk/internal/modules/optimization"
	"github.com/aristath/tailrisk/internal/modules/scenarios"
	"github.com/aristath/tailrisk/internal/modules/snapshots"
	"github.com/aristath/tailrisk/internal/modules/universe"
	"github.com/aristath/tailrisk/internal/reliability"
)

// Config holds server configuration
type Config struct {
	Log         zerolog.Logger
	Config      *config.Config
	HistoryDB   *database.DB
	ArtifactsDB *database.DB
	Repo        *universe.Repository
	Generator   *scenarios.Generator
	Optimizer   *optimization.Optimizer
	Backtester  *backtest.Backtester
	Store       *snapshots.Store
	Exporter    *reliability.Exporter // nil when export is disabled
}

// Server represents the HTTP server
type Server struct {
	router *chi.Mux
	server *http.Server
	log    zerolog.Logger
	cfg    *config.Config

	historyDB   *database.DB
	artifactsDB *database.DB

	repo      *universe.Repository
	generator *scenarios.Generator
	optimizer *optimization.Optimizer
	store     *snapshots.Store
	exporter  *reliability.Exporter

	backtests *backtestRunner
}

// New creates a new HTTP server
func New(cfg Config) *Server {
	s := &Server{
		router:      chi.NewRouter(),
		log:         cfg.Log.With().Str("component", "server").Logger(),
		cfg:         cfg.Config,
		historyDB:   cfg.HistoryDB,
		artifactsDB: cfg.ArtifactsDB,
		repo:        cfg.Repo,
		generator:   cfg.Generator,
		optimizer:   cfg.Optimizer,
		store:       cfg.Store,
		exporter:    cfg.Exporter,
		backtests:   newBacktestRunner(cfg.Backtester, cfg.Repo, cfg.Store, cfg.Log),
	}

	s.setupMiddleware(cfg.Config.DevMode)
	s.setupRoutes()

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Config.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 0, // streaming endpoints manage their own deadlines
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// setupMiddleware configures middleware
func (s *Server) setupMiddleware(devMode bool) {
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.loggingMiddleware)

	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	if !devMode {
		s.router.Use(middleware.Compress(5))
	}
}

// setupRoutes configures all routes
func (s *Server) setupRoutes() {
	s.router.Get("/health", s.handleHealth)

	s.router.Route("/api", func(r chi.Router) {
		r.Post("/optimize", s.handleOptimize)
		r.Post("/frontier", s.handleFrontier)

		r.Route("/backtest", func(r chi.Router) {
			r.Post("/", s.handleStartBacktest)
			r.Get("/{id}", s.handleBacktestStatus)
			r.Get("/{id}/stream", s.handleBacktestStream)
		})

		r.Route("/universe", func(r chi.Router) {
			r.Get("/assets", s.handleListAssets)
			r.Post("/assets", s.handleSaveAsset)
			r.Post("/returns", s.handleSaveReturns)
		})

		r.Route("/snapshots", func(r chi.Router) {
			r.Get("/{kind}", s.handleListSnapshots)
			r.Post("/{id}/export", s.handleExportSnapshot)
		})

		r.Get("/system/status", s.handleSystemStatus)
	})
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.log.Info().Int("port", s.cfg.Port).Msg("Starting HTTP server")
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("Shutting down HTTP server")
	return s.server.Shutdown(ctx)
}

// loggingMiddleware logs HTTP requests
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		s.log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Dur("duration_ms", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("HTTP request")
	})
}
