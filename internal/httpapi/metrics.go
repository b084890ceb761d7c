package httpapi

import (
	"net/http"
	"time"

	"github.com/gastown-ops/rigwatch/internal/history"
)

// parseRange reads start/end query params (RFC3339), defaulting to the
// last hour when absent.
func parseRange(r *http.Request) (start, end time.Time, ok bool) {
	end = time.Now()
	start = end.Add(-time.Hour)

	if v := r.URL.Query().Get("start"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return start, end, false
		}
		start = t
	}
	if v := r.URL.Query().Get("end"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return start, end, false
		}
		end = t
	}
	return start, end, true
}

// handleMetricsHistory serves GET /api/metrics/history?start=&end=
// &interval=minute|hour|day|auto, backed by the Historical Store's
// aggregate series.
func (s *Server) handleMetricsHistory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	start, end, ok := parseRange(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "start/end must be RFC3339 timestamps")
		return
	}

	interval := history.Interval(r.URL.Query().Get("interval"))
	if interval == "" {
		interval = history.IntervalAuto
	}

	points, err := s.history.QueryRange(r.Context(), start, end, interval)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, points)
}

// handleMetricsSummary serves GET /api/metrics/summary?start=&end=.
func (s *Server) handleMetricsSummary(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	start, end, ok := parseRange(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "start/end must be RFC3339 timestamps")
		return
	}

	summary, err := s.history.GetSummary(r.Context(), start, end)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// handleMetricsAgents serves GET /api/metrics/agents?agent=&start=&end=.
// An empty or "all" agent aggregates every agent's completions.
func (s *Server) handleMetricsAgents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	start, end, ok := parseRange(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "start/end must be RFC3339 timestamps")
		return
	}

	agent := r.URL.Query().Get("agent")
	eff, err := s.history.GetAgentEfficiency(r.Context(), agent, start, end)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, eff)
}

// handleMetricsStorage serves GET /api/metrics/storage: the Historical
// Store's own retention footprint.
func (s *Server) handleMetricsStorage(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	stats, err := s.history.StorageStats(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, stats)
}
