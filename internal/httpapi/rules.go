package httpapi

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/gastown-ops/rigwatch/internal/alerting"
	"github.com/gastown-ops/rigwatch/internal/model"
)

// handleRules serves GET/POST/PUT/DELETE /api/rules: list, create,
// replace and remove alerting rules.
func (s *Server) handleRules(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, s.alerts.Rules())
	case http.MethodPost:
		var rule model.Rule
		if err := json.NewDecoder(r.Body).Decode(&rule); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if rule.ID == "" {
			rule.ID = uuid.NewString()
		}
		if err := s.alerts.AddRule(rule); err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusCreated, rule)
	case http.MethodPut:
		var rule model.Rule
		if err := json.NewDecoder(r.Body).Decode(&rule); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if rule.ID == "" {
			writeError(w, http.StatusBadRequest, "id is required")
			return
		}
		if err := s.alerts.UpdateRule(rule); err != nil {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, rule)
	case http.MethodDelete:
		id := r.URL.Query().Get("id")
		if id == "" {
			writeError(w, http.StatusBadRequest, "id query parameter is required")
			return
		}
		if err := s.alerts.DeleteRule(id); err != nil {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

// handleRuleByID serves POST /api/rules/:id/toggle and
// GET /api/rules/:id/stats.
func (s *Server) handleRuleByID(w http.ResponseWriter, r *http.Request) {
	rest := pathSegment(r.URL.Path, "/api/rules/")
	parts := strings.SplitN(rest, "/", 2)
	if len(parts) != 2 {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	id, action := parts[0], parts[1]

	switch {
	case action == "toggle" && r.Method == http.MethodPost:
		if err := s.alerts.ToggleRule(id); err != nil {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "toggled"})
	case action == "stats" && r.Method == http.MethodGet:
		stats, ok := s.alerts.Stats(id)
		if !ok {
			stats = alerting.RuleStats{RuleID: id}
		}
		writeJSON(w, http.StatusOK, stats)
	default:
		writeError(w, http.StatusNotFound, "not found")
	}
}

// handleRuleTest serves POST /api/rules/test: evaluates a rule's
// condition against the current state/metrics snapshot without firing
// actions or touching cooldown state.
func (s *Server) handleRuleTest(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var rule model.Rule
	if err := json.NewDecoder(r.Body).Decode(&rule); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	snap := s.state.Snapshot()
	matched := s.alerts.TestRule(rule, alerting.EvalInput{Snapshot: snap})
	writeJSON(w, http.StatusOK, map[string]bool{"matched": matched})
}
