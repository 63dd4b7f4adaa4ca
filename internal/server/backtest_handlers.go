package server

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/aristath/tailrisk/internal/modules/backtest"
	"github.com/aristath/tailrisk/internal/modules/snapshots"
	"github.com/aristath/tailrisk/internal/modules/universe"
)

// BacktestRequest is the body of POST /api/backtest.
type BacktestRequest struct {
	Config backtest.Config `json:"config"`
	// Symbols restricts the universe; empty means every stored asset.
	Symbols []string `json:"symbols,omitempty"`
	// Periods is how many history rows to load, warmup included. Must exceed
	// the config's lookback so at least one period trades.
	Periods int `json:"periods"`
}

// RunStatus is the externally visible state of an async backtest run.
type RunStatus string

const (
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunAborted   RunStatus = "aborted"
	RunFailed    RunStatus = "failed"
)

// backtestRun tracks one in-flight or finished run.
type backtestRun struct {
	mu       sync.Mutex
	id       string
	status   RunStatus
	started  time.Time
	records  []backtest.PeriodRecord
	result   *backtest.Result
	errMsg   string
	snapshot string
	watchers []chan backtest.PeriodRecord
}

func (r *backtestRun) appendRecord(rec backtest.PeriodRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = append(r.records, rec)
	for _, ch := range r.watchers {
		select {
		case ch <- rec:
		default: // slow watcher, drop rather than stall the run
		}
	}
}

func (r *backtestRun) finish(status RunStatus, result *backtest.Result, errMsg, snapshot string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.status = status
	r.result = result
	r.errMsg = errMsg
	r.snapshot = snapshot
	for _, ch := range r.watchers {
		close(ch)
	}
	r.watchers = nil
}

// watch returns a channel of live records plus a replay of what already
// happened. The channel is nil when the run already finished.
func (r *backtestRun) watch() ([]backtest.PeriodRecord, chan backtest.PeriodRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()
	replay := make([]backtest.PeriodRecord, len(r.records))
	copy(replay, r.records)
	if r.status != RunRunning {
		return replay, nil
	}
	ch := make(chan backtest.PeriodRecord, 64)
	r.watchers = append(r.watchers, ch)
	return replay, ch
}

func (r *backtestRun) statusView() map[string]interface{} {
	r.mu.Lock()
	defer r.mu.Unlock()
	view := map[string]interface{}{
		"id":      r.id,
		"status":  r.status,
		"started": r.started,
		"periods": len(r.records),
	}
	if r.result != nil {
		view["result"] = r.result
	}
	if r.errMsg != "" {
		view["error"] = r.errMsg
	}
	if r.snapshot != "" {
		view["snapshot"] = r.snapshot
	}
	return view
}

// backtestRunner owns the async run registry.
type backtestRunner struct {
	mu         sync.Mutex
	runs       map[string]*backtestRun
	backtester *backtest.Backtester
	repo       *universe.Repository
	store      *snapshots.Store
	log        zerolog.Logger
}

func newBacktestRunner(bt *backtest.Backtester, repo *universe.Repository, store *snapshots.Store, log zerolog.Logger) *backtestRunner {
	return &backtestRunner{
		runs:       make(map[string]*backtestRun),
		backtester: bt,
		repo:       repo,
		store:      store,
		log:        log.With().Str("component", "backtest_runner").Logger(),
	}
}

func (br *backtestRunner) start(hist *universe.History, cfg backtest.Config) *backtestRun {
	run := &backtestRun{
		id:      uuid.New().String(),
		status:  RunRunning,
		started: time.Now(),
	}
	br.mu.Lock()
	br.runs[run.id] = run
	br.mu.Unlock()

	cfg.Progress = run.appendRecord

	go func() {
		result, err := br.backtester.Run(context.Background(), hist, cfg)
		switch {
		case err != nil && result != nil && result.State == backtest.StateAborted:
			run.finish(RunAborted, result, err.Error(), "")
		case err != nil:
			run.finish(RunFailed, nil, err.Error(), "")
		default:
			snapshotID, serr := br.store.Save(snapshots.KindBacktest, result)
			if serr != nil {
				br.log.Error().Err(serr).Str("run", run.id).Msg("Failed to store backtest result")
			}
			run.finish(RunCompleted, result, "", snapshotID)
		}
		br.log.Info().Str("run", run.id).Str("status", string(run.status)).Msg("Backtest finished")
	}()

	return run
}

func (br *backtestRunner) get(id string) *backtestRun {
	br.mu.Lock()
	defer br.mu.Unlock()
	return br.runs[id]
}

// handleStartBacktest launches a run and returns its id immediately.
func (s *Server) handleStartBacktest(w http.ResponseWriter, r *http.Request) {
	var req BacktestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if err := req.Config.Validate(); err != nil {
		s.writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	if req.Periods <= req.Config.Lookback {
		s.writeError(w, http.StatusUnprocessableEntity, "periods must exceed the lookback window")
		return
	}

	assets, err := s.selectAssets(req.Symbols)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	hist, err := s.repo.LoadHistory(assets, req.Periods)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	run := s.backtests.start(hist, req.Config)
	s.writeJSON(w, http.StatusAccepted, map[string]string{"id": run.id})
}

// handleBacktestStatus reports a run's current state, including the full
// result once finished.
func (s *Server) handleBacktestStatus(w http.ResponseWriter, r *http.Request) {
	run := s.backtests.get(chi.URLParam(r, "id"))
	if run == nil {
		s.writeError(w, http.StatusNotFound, "unknown backtest run")
		return
	}
	s.writeJSON(w, http.StatusOK, run.statusView())
}

// handleBacktestStream streams period records over a websocket: first a
// replay of completed periods, then live records until the run ends.
func (s *Server) handleBacktestStream(w http.ResponseWriter, r *http.Request) {
	run := s.backtests.get(chi.URLParam(r, "id"))
	if run == nil {
		s.writeError(w, http.StatusNotFound, "unknown backtest run")
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		s.log.Warn().Err(err).Msg("Websocket accept failed")
		return
	}
	defer conn.Close(websocket.StatusInternalError, "stream ended unexpectedly")

	ctx := r.Context()
	replay, live := run.watch()

	for _, rec := range replay {
		if err := wsjson.Write(ctx, conn, streamEvent{Type: "period", Record: &rec}); err != nil {
			return
		}
	}
	if live != nil {
		for rec := range live {
			rec := rec
			if err := wsjson.Write(ctx, conn, streamEvent{Type: "period", Record: &rec}); err != nil {
				return
			}
		}
	}

	if err := wsjson.Write(ctx, conn, streamEvent{Type: "done", Status: run.statusView()}); err != nil {
		return
	}
	conn.Close(websocket.StatusNormalClosure, "")
}

type streamEvent struct {
	Type   string                 `json:"type"`
	Record *backtest.PeriodRecord `json:"record,omitempty"`
	Status map[string]interface{} `json:"status,omitempty"`
}
