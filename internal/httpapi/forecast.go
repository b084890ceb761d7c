package httpapi

import "net/http"

// handleForecast serves the Load Forecaster's current multi-horizon
// prediction, per spec.md §4.6.
func (s *Server) handleForecast(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if s.forecast == nil {
		writeJSON(w, http.StatusOK, nil)
		return
	}
	writeJSON(w, http.StatusOK, s.forecast.Compute())
}

// handleErrorPatterns serves the Error-Pattern Analyzer's current
// clusters, per spec.md §4.5.4.
func (s *Server) handleErrorPatterns(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	writeJSON(w, http.StatusOK, s.errors.GetPatterns())
}

// handleErrorSummary serves the Error-Pattern Analyzer's aggregated
// totals and top-5 clusters.
func (s *Server) handleErrorSummary(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	writeJSON(w, http.StatusOK, s.errors.GetSummary())
}
