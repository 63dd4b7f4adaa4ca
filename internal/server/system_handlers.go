package server

import (
	"net/http"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
)

// handleHealth handles health check requests
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "healthy",
		"service": "tailrisk",
		"version": "1.0.0",
	})
}

// SystemStatusResponse reports process and database health.
type SystemStatusResponse struct {
	Status      string  `json:"status"`
	CPUPercent  float64 `json:"cpu_percent"`
	MemPercent  float64 `json:"mem_percent"`
	HistoryDB   string  `json:"history_db"`
	ArtifactsDB string  `json:"artifacts_db"`
}

// handleSystemStatus reports CPU, memory, and database health in one call.
func (s *Server) handleSystemStatus(w http.ResponseWriter, r *http.Request) {
	cpuPct, memPct := s.systemStats()

	resp := SystemStatusResponse{
		Status:      "ok",
		CPUPercent:  cpuPct,
		MemPercent:  memPct,
		HistoryDB:   "ok",
		ArtifactsDB: "ok",
	}

	if err := s.historyDB.HealthCheck(r.Context()); err != nil {
		resp.Status = "degraded"
		resp.HistoryDB = err.Error()
	}
	if err := s.artifactsDB.HealthCheck(r.Context()); err != nil {
		resp.Status = "degraded"
		resp.ArtifactsDB = err.Error()
	}

	status := http.StatusOK
	if resp.Status != "ok" {
		status = http.StatusServiceUnavailable
	}
	s.writeJSON(w, status, resp)
}

// systemStats returns CPU and memory usage percentages, zero on error.
func (s *Server) systemStats() (float64, float64) {
	var cpuPct, memPct float64

	if pcts, err := cpu.Percent(100*time.Millisecond, false); err == nil && len(pcts) > 0 {
		cpuPct = pcts[0]
	} else if err != nil {
		s.log.Debug().Err(err).Msg("Failed to read CPU usage")
	}

	if stat, err := mem.VirtualMemory(); err == nil {
		memPct = stat.UsedPercent
	} else {
		s.log.Debug().Err(err).Msg("Failed to read memory usage")
	}

	return cpuPct, memPct
}
