package httpapi

import (
	"encoding/json"
	"net/http"
	"sort"
	"strings"

	"github.com/gastown-ops/rigwatch/internal/anomaly"
)

// handleAlerts serves GET /api/alerts: the currently active alerts.
func (s *Server) handleAlerts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	writeJSON(w, http.StatusOK, s.anomalie.Active())
}

// handleAlertHistory serves GET /api/alerts/history: every alert ever
// raised by the anomaly detector or the alerting engine, oldest first.
func (s *Server) handleAlertHistory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	combined := append(s.anomalie.History(), s.alerts.History()...)
	sort.SliceStable(combined, func(i, j int) bool {
		return combined[i].Timestamp.Before(combined[j].Timestamp)
	})
	writeJSON(w, http.StatusOK, combined)
}

// handleAlertThresholds serves GET/PUT /api/alerts/thresholds, the
// anomaly detector's tunable sensitivity cut points.
func (s *Server) handleAlertThresholds(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, s.anomalie.Thresholds())
	case http.MethodPut:
		var t anomaly.Thresholds
		if err := json.NewDecoder(r.Body).Decode(&t); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		s.anomalie.SetThresholds(t)
		writeJSON(w, http.StatusOK, t)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

// handleAlertByID serves POST /api/alerts/:id/acknowledge,
// POST /api/alerts/:id/resolve and DELETE /api/alerts/:id.
func (s *Server) handleAlertByID(w http.ResponseWriter, r *http.Request) {
	rest := pathSegment(r.URL.Path, "/api/alerts/")
	if rest == "" {
		writeError(w, http.StatusNotFound, "not found")
		return
	}

	parts := strings.SplitN(rest, "/", 2)
	id := parts[0]

	switch {
	case len(parts) == 2 && parts[1] == "acknowledge" && r.Method == http.MethodPost:
		if !s.anomalie.Acknowledge(id) {
			writeError(w, http.StatusNotFound, "alert not found")
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "acknowledged"})
	case len(parts) == 2 && parts[1] == "resolve" && r.Method == http.MethodPost:
		if !s.anomalie.Resolve(id) {
			writeError(w, http.StatusNotFound, "alert not found")
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "resolved"})
	case len(parts) == 1 && r.Method == http.MethodDelete:
		if !s.anomalie.Dismiss(id) {
			writeError(w, http.StatusNotFound, "alert not found")
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "dismissed"})
	default:
		writeError(w, http.StatusNotFound, "not found")
	}
}
