// Package metrics implements the Metrics Collector and Health
// Calculator of spec.md §4.5.1-4.5.2: rolling poll-duration/event-volume
// buffers, derived rates, and a weighted composite health score.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus vectors exported at /metrics, following
// control_plane/observability/metrics.go's naming and bucket
// conventions verbatim (rigwatch_ prefix in place of flux_).
var (
	PollDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "rigwatch_poll_duration_seconds",
		Help:    "Duration of one ingestion poll cycle",
		Buckets: prometheus.ExponentialBuckets(0.01, 2, 10),
	})

	PollsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rigwatch_polls_total",
		Help: "Total ingestion poll cycles by outcome",
	}, []string{"outcome"}) // success, failure

	EventVolume = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rigwatch_events_total",
		Help: "Total events observed, by bus topic",
	}, []string{"topic"})

	HealthScoreGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "rigwatch_health_score",
		Help: "Current composite health score (0-100)",
	})

	HealthComponentGauge = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "rigwatch_health_component",
		Help: "Current health sub-score by component",
	}, []string{"component"}) // uptime, errorRate, throughput, latency

	ActiveAlerts = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "rigwatch_active_alerts",
		Help: "Currently open alerts by severity",
	}, []string{"severity"})

	ErrorPatterns = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "rigwatch_error_patterns",
		Help: "Currently tracked error-pattern clusters",
	})

	WSConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "rigwatch_ws_connections",
		Help: "Currently connected push-channel clients",
	})
)
