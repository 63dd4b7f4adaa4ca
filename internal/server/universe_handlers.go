package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/aristath/tailrisk/internal/modules/snapshots"
	"github.com/aristath/tailrisk/internal/modules/universe"
)

// handleListAssets returns the stored universe.
func (s *Server) handleListAssets(w http.ResponseWriter, r *http.Request) {
	assets, err := s.repo.ListAssets()
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if assets == nil {
		assets = []universe.Asset{}
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{"assets": assets})
}

// handleSaveAsset upserts one asset.
func (s *Server) handleSaveAsset(w http.ResponseWriter, r *http.Request) {
	var asset universe.Asset
	if err := json.NewDecoder(r.Body).Decode(&asset); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if asset.Symbol == "" {
		s.writeError(w, http.StatusUnprocessableEntity, "symbol must not be empty")
		return
	}
	if err := s.repo.SaveAsset(asset); err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "saved"})
}

// SaveReturnsRequest is the body of POST /api/universe/returns.
type SaveReturnsRequest struct {
	Symbol  string    `json:"symbol"`
	Dates   []string  `json:"dates"` // "2006-01-02"
	Returns []float64 `json:"returns"`
}

// handleSaveReturns bulk-inserts return observations for one asset.
func (s *Server) handleSaveReturns(w http.ResponseWriter, r *http.Request) {
	var req SaveReturnsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.Symbol == "" {
		s.writeError(w, http.StatusUnprocessableEntity, "symbol must not be empty")
		return
	}
	if len(req.Dates) != len(req.Returns) {
		s.writeError(w, http.StatusUnprocessableEntity, "dates and returns must have equal length")
		return
	}

	dates := make([]time.Time, len(req.Dates))
	for i, d := range req.Dates {
		parsed, err := time.Parse("2006-01-02", d)
		if err != nil {
			s.writeError(w, http.StatusUnprocessableEntity, "bad date "+d)
			return
		}
		dates[i] = parsed
	}

	if err := s.repo.SaveReturns(req.Symbol, dates, req.Returns); err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "saved",
		"periods": len(dates),
	})
}

// handleListSnapshots lists stored artifacts of one kind, newest first.
func (s *Server) handleListSnapshots(w http.ResponseWriter, r *http.Request) {
	kind := snapshots.Kind(chi.URLParam(r, "kind"))
	switch kind {
	case snapshots.KindProgram, snapshots.KindResult, snapshots.KindBacktest:
	default:
		s.writeError(w, http.StatusNotFound, "unknown snapshot kind")
		return
	}

	snaps, err := s.store.List(kind, 100)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if snaps == nil {
		snaps = []*snapshots.Snapshot{}
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{"snapshots": snaps})
}

// handleExportSnapshot pushes one stored artifact to the configured bucket.
func (s *Server) handleExportSnapshot(w http.ResponseWriter, r *http.Request) {
	if s.exporter == nil {
		s.writeError(w, http.StatusServiceUnavailable, "export is not configured")
		return
	}

	key, err := s.exporter.ExportSnapshot(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"key": key})
}
