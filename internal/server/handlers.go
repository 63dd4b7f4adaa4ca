package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/aristath/tailrisk/internal/modules/optimization"
	"github.com/aristath/tailrisk/internal/modules/scenarios"
	"github.com/aristath/tailrisk/internal/modules/snapshots"
	"github.com/aristath/tailrisk/internal/modules/universe"
)

// ScenarioSpec tells the server how to turn stored history into a scenario
// set. Zero values fall back to the configured defaults.
type ScenarioSpec struct {
	Method   scenarios.Method `json:"method,omitempty"`
	Count    int              `json:"count,omitempty"`
	Seed     uint64           `json:"seed,omitempty"`
	Lookback int              `json:"lookback,omitempty"`
}

// OptimizeRequest is the body of POST /api/optimize.
type OptimizeRequest struct {
	Optimization optimization.Config        `json:"optimization"`
	Constraints  optimization.ConstraintSet `json:"constraints"`
	Scenarios    ScenarioSpec               `json:"scenarios"`
	PrevWeights  map[string]float64         `json:"prev_weights,omitempty"`
	// Symbols restricts the universe; empty means every stored asset.
	Symbols []string `json:"symbols,omitempty"`
}

// FrontierRequest is the body of POST /api/frontier.
type FrontierRequest struct {
	OptimizeRequest
	TargetReturns []float64 `json:"target_returns"`
}

// handleOptimize runs one solve against the stored universe.
func (s *Server) handleOptimize(w http.ResponseWriter, r *http.Request) {
	var req OptimizeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	s.applyDefaults(&req)

	matrix, err := s.buildMatrix(req.Symbols, req.Scenarios)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.SolveTimeout)
	defer cancel()

	result, err := s.optimizer.Optimize(ctx, matrix, req.Constraints, req.Optimization, req.PrevWeights)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	snapshotID, err := s.store.Save(snapshots.KindResult, result)
	if err != nil {
		s.log.Error().Err(err).Msg("Failed to store optimization result")
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"result":   result,
		"snapshot": snapshotID,
	})
}

// handleFrontier sweeps the efficient frontier over the requested target
// returns.
func (s *Server) handleFrontier(w http.ResponseWriter, r *http.Request) {
	var req FrontierRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if len(req.TargetReturns) == 0 {
		s.writeError(w, http.StatusBadRequest, "target_returns must not be empty")
		return
	}
	s.applyDefaults(&req.OptimizeRequest)

	matrix, err := s.buildMatrix(req.Symbols, req.Scenarios)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.SolveTimeout)
	defer cancel()

	results, err := s.optimizer.Sweep(ctx, matrix, req.Constraints, req.Optimization.Alpha, req.TargetReturns)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"target_returns": req.TargetReturns,
		"results":        results,
	})
}

// buildMatrix loads the requested slice of the universe and generates
// scenarios from it.
func (s *Server) buildMatrix(symbols []string, spec ScenarioSpec) (*scenarios.ScenarioMatrix, error) {
	assets, err := s.selectAssets(symbols)
	if err != nil {
		return nil, err
	}
	hist, err := s.repo.LoadHistory(assets, spec.Lookback)
	if err != nil {
		return nil, err
	}
	return s.generator.Generate(hist, spec.Count, spec.Method, spec.Seed)
}

func (s *Server) selectAssets(symbols []string) ([]universe.Asset, error) {
	assets, err := s.repo.ListAssets()
	if err != nil {
		return nil, err
	}
	if len(symbols) == 0 {
		return assets, nil
	}

	bySymbol := make(map[string]universe.Asset, len(assets))
	for _, a := range assets {
		bySymbol[a.Symbol] = a
	}
	out := make([]universe.Asset, 0, len(symbols))
	for _, sym := range symbols {
		a, ok := bySymbol[sym]
		if !ok {
			return nil, &optimization.InvalidScenarioMatrixError{Reason: "unknown symbol " + sym}
		}
		out = append(out, a)
	}
	return out, nil
}

func (s *Server) applyDefaults(req *OptimizeRequest) {
	if req.Optimization.Alpha == 0 {
		req.Optimization.Alpha = s.cfg.DefaultAlpha
	}
	if req.Optimization.Mode == "" {
		req.Optimization.Mode = optimization.ModeMinCVaR
	}
	if req.Scenarios.Method == "" {
		req.Scenarios.Method = scenarios.MethodHistorical
	}
	if req.Scenarios.Count == 0 {
		req.Scenarios.Count = s.cfg.ScenarioCount
	}
	if req.Scenarios.Lookback == 0 {
		req.Scenarios.Lookback = s.cfg.LookbackPeriods
	}
	if req.Constraints.Budget == 0 {
		req.Constraints = optimization.NewLongOnly(1.0)
	}
}

// writeDomainError maps typed domain errors to 422 and everything else to
// 500.
func (s *Server) writeDomainError(w http.ResponseWriter, err error) {
	var insufficient *scenarios.InsufficientDataError
	var degenerate *scenarios.DegenerateDistributionError
	var invalidMatrix *optimization.InvalidScenarioMatrixError
	var infeasibleSet *optimization.InfeasibleConstraintSetError

	switch {
	case errors.As(err, &insufficient),
		errors.As(err, &degenerate),
		errors.As(err, &invalidMatrix),
		errors.As(err, &infeasibleSet):
		s.writeError(w, http.StatusUnprocessableEntity, err.Error())
	default:
		s.log.Error().Err(err).Msg("Request failed")
		s.writeError(w, http.StatusInternalServerError, err.Error())
	}
}

// writeJSON writes a JSON response
func (s *Server) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}
