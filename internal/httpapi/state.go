package httpapi

import "net/http"

// handleState serves GET /api/state: the full reconstitutable
// snapshot, per spec.md §3/§6.
func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	writeJSON(w, http.StatusOK, s.state.Snapshot())
}

// handleRigs serves GET /api/rigs: the list of known rig names.
func (s *Server) handleRigs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	snap := s.state.Snapshot()
	names := make([]string, 0, len(snap.Rigs))
	for name := range snap.Rigs {
		names = append(names, name)
	}
	writeJSON(w, http.StatusOK, names)
}

// handleHooks serves GET /api/hooks: the rig -> agent -> hook map.
func (s *Server) handleHooks(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	writeJSON(w, http.StatusOK, s.state.Snapshot().Hooks)
}
