// Package httpapi implements the HTTP Read API of spec.md §6: a flat
// net/http.ServeMux of JSON (and one CSV) endpoints over the State
// Manager, Event Buffer, Historical Store and Alerting/Anomaly
// subsystems.
//
// Grounded on control_plane/api.go's handler idiom (one HandlerFunc per
// resource, manual r.Method switch, manual path-segment parsing for
// :id-style segments, json.NewDecoder/http.Error) and control_plane/main.go's
// flat http.Handle(path, middleware(handler)) registration style. The
// teacher's pack carries no HTTP router dependency, so rigwatch doesn't
// add one either.
package httpapi

import (
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/gastown-ops/rigwatch/internal/alerting"
	"github.com/gastown-ops/rigwatch/internal/anomaly"
	"github.com/gastown-ops/rigwatch/internal/errorpattern"
	"github.com/gastown-ops/rigwatch/internal/eventbuffer"
	"github.com/gastown-ops/rigwatch/internal/forecast"
	"github.com/gastown-ops/rigwatch/internal/history"
	httpmw "github.com/gastown-ops/rigwatch/internal/httpapi/middleware"
	"github.com/gastown-ops/rigwatch/internal/state"
)

// Server bundles the subsystems the read API reads from and writes to.
type Server struct {
	state     *state.Manager
	events    *eventbuffer.Buffer
	history   history.Store
	alerts    *alerting.Engine
	anomalie  *anomaly.Detector
	errors    *errorpattern.Analyzer
	forecast  *forecast.Forecaster
	logger    *log.Logger

	mux *http.ServeMux
}

// NewServer constructs a Server and registers every route.
func NewServer(
	stateMgr *state.Manager,
	events *eventbuffer.Buffer,
	hist history.Store,
	alerts *alerting.Engine,
	detector *anomaly.Detector,
	errors *errorpattern.Analyzer,
	forecaster *forecast.Forecaster,
	logger *log.Logger,
) *Server {
	if logger == nil {
		logger = log.Default()
	}
	s := &Server{
		state:    stateMgr,
		events:   events,
		history:  hist,
		alerts:   alerts,
		anomalie: detector,
		errors:   errors,
		forecast: forecaster,
		logger:   logger,
		mux:      http.NewServeMux(),
	}
	s.routes()
	return s
}

// Handler returns the fully wrapped http.Handler (CORS + request log)
// suitable for http.ListenAndServe.
func (s *Server) Handler() http.Handler {
	return httpmw.CORS(s.logRequests(s.mux))
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Printf("[httpapi] %s %s %s", r.Method, r.URL.Path, time.Since(start))
	})
}

func (s *Server) routes() {
	s.mux.HandleFunc("/api/state", s.handleState)
	s.mux.HandleFunc("/api/rigs", s.handleRigs)
	s.mux.HandleFunc("/api/hooks", s.handleHooks)

	s.mux.HandleFunc("/api/alerts/thresholds", s.handleAlertThresholds)
	s.mux.HandleFunc("/api/alerts/history", s.handleAlertHistory)
	s.mux.HandleFunc("/api/alerts/", s.handleAlertByID)
	s.mux.HandleFunc("/api/alerts", s.handleAlerts)

	s.mux.HandleFunc("/api/rules/test", s.handleRuleTest)
	s.mux.HandleFunc("/api/rules/", s.handleRuleByID)
	s.mux.HandleFunc("/api/rules", s.handleRules)

	s.mux.HandleFunc("/api/events/export", s.handleEventsExport)

	s.mux.HandleFunc("/api/metrics/history", s.handleMetricsHistory)
	s.mux.HandleFunc("/api/metrics/summary", s.handleMetricsSummary)
	s.mux.HandleFunc("/api/metrics/agents", s.handleMetricsAgents)
	s.mux.HandleFunc("/api/metrics/storage", s.handleMetricsStorage)

	s.mux.HandleFunc("/api/timeline/state/", s.handleTimelineStateAt)
	s.mux.HandleFunc("/api/timeline/events/all", s.handleTimelineEventsAll)
	s.mux.HandleFunc("/api/timeline/events", s.handleTimelineEvents)
	s.mux.HandleFunc("/api/timeline", s.handleTimelineBounds)

	s.mux.HandleFunc("/api/forecast", s.handleForecast)
	s.mux.HandleFunc("/api/errors/patterns", s.handleErrorPatterns)
	s.mux.HandleFunc("/api/errors/summary", s.handleErrorSummary)

	s.mux.Handle("/metrics", promhttp.Handler())
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	http.Error(w, msg, status)
}

// pathSegment returns the path segment following prefix, e.g.
// pathSegment("/api/alerts/abc123/resolve", "/api/alerts/") -> "abc123/resolve".
func pathSegment(path, prefix string) string {
	if len(path) <= len(prefix) {
		return ""
	}
	return path[len(prefix):]
}
