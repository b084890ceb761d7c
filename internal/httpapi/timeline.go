package httpapi

import (
	"net/http"
	"strconv"
	"time"
)

// timelineBounds is the response shape of GET /api/timeline: the Event
// Buffer's oldest/newest timestamps plus its current size stats.
type timelineBounds struct {
	Oldest time.Time `json:"oldest"`
	Newest time.Time `json:"newest"`
	Count  int       `json:"count"`
}

// handleTimelineBounds serves GET /api/timeline: the replayable window.
func (s *Server) handleTimelineBounds(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	oldest, newest, ok := s.events.GetTimelineBounds()
	stats := s.events.GetStats()
	if !ok {
		writeJSON(w, http.StatusOK, timelineBounds{Count: stats.Count})
		return
	}
	writeJSON(w, http.StatusOK, timelineBounds{Oldest: oldest, Newest: newest, Count: stats.Count})
}

// handleTimelineStateAt serves GET /api/timeline/state/:timestamp: the
// folded replay state as of an RFC3339 (or unix-milli) timestamp.
func (s *Server) handleTimelineStateAt(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	raw := pathSegment(r.URL.Path, "/api/timeline/state/")
	if raw == "" {
		writeError(w, http.StatusBadRequest, "timestamp is required")
		return
	}
	t, err := parseTimestamp(raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, "timestamp must be RFC3339 or unix-millis")
		return
	}
	writeJSON(w, http.StatusOK, s.events.GetStateAtTime(t))
}

// handleTimelineEvents serves GET /api/timeline/events?start=&end=: the
// raw events falling within the inclusive range.
func (s *Server) handleTimelineEvents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	start, end, ok := parseRange(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "start/end must be RFC3339 timestamps")
		return
	}
	writeJSON(w, http.StatusOK, s.events.GetEventsBetween(start, end))
}

// handleTimelineEventsAll serves GET /api/timeline/events/all: a
// compact type+timestamp marker per buffered event, for rendering a
// scrubber without shipping full payloads.
func (s *Server) handleTimelineEventsAll(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	writeJSON(w, http.StatusOK, s.events.GetEventMarkers())
}

// parseTimestamp accepts either RFC3339 or a unix-millis integer, the
// two encodings a JS client is likely to send a Date as.
func parseTimestamp(raw string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	ms, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return time.Time{}, err
	}
	return time.UnixMilli(ms), nil
}
