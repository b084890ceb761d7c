// Package app wires the independently-testable subsystems (bus, state,
// ingestion, metrics, anomaly detection, alerting, error patterns,
// forecasting, history, fan-out, HTTP API) into one running service,
// the way control_plane/main.go wires its own subsystems together in a
// single imperative constructor: no framework, no DI container, just an
// ordered sequence of "build this, subscribe it to that" steps.
package app

import (
	"context"
	"log"
	"time"

	"github.com/gastown-ops/rigwatch/internal/alerting"
	"github.com/gastown-ops/rigwatch/internal/anomaly"
	"github.com/gastown-ops/rigwatch/internal/bus"
	"github.com/gastown-ops/rigwatch/internal/errorpattern"
	"github.com/gastown-ops/rigwatch/internal/eventbuffer"
	"github.com/gastown-ops/rigwatch/internal/fanout"
	"github.com/gastown-ops/rigwatch/internal/forecast"
	"github.com/gastown-ops/rigwatch/internal/history"
	"github.com/gastown-ops/rigwatch/internal/httpapi"
	"github.com/gastown-ops/rigwatch/internal/ingest"
	"github.com/gastown-ops/rigwatch/internal/metrics"
	"github.com/gastown-ops/rigwatch/internal/model"
	"github.com/gastown-ops/rigwatch/internal/state"
)

const forecastSampleInterval = 10 * time.Second

// timelineAdapter satisfies fanout.TimelineProvider over the Event
// Buffer's GetStateAtTime, which returns the richer model.ReplayState
// the HTTP API's /api/timeline endpoints want, while the Fan-out Hub
// only needs the bare snapshot.
type timelineAdapter struct {
	events *eventbuffer.Buffer
}

func (t timelineAdapter) StateAt(at time.Time) (model.Snapshot, bool) {
	replay := t.events.GetStateAtTime(at)
	return replay.Snapshot, true
}

// App bundles every constructed subsystem plus the goroutines that
// connect them over the Bus, so cmd/rigwatch only needs to construct
// one of these and register its Stoppers with the lifecycle
// Controller.
type App struct {
	Bus     *bus.Bus
	Events  *eventbuffer.Buffer
	State   *state.Manager
	Metrics *metrics.Collector
	Health  *metrics.HealthCalculator
	Anomaly *anomaly.Detector
	Errors  *errorpattern.Analyzer
	Forecast *forecast.Forecaster
	Alerts  *alerting.Engine
	History history.Store
	Hub     *fanout.Hub
	HTTP    *httpapi.Server

	Poller      *ingest.Poller
	FileWatcher *ingest.FileWatcher
	LogsWatcher *ingest.LogsWatcher

	logger *log.Logger
	unsubs []func()
}

// Config carries everything App needs that isn't just a constructed
// subsystem: paths, the store backend, and the logger every subsystem
// shares.
type Config struct {
	GTDir         string
	HistoryStore  history.Store
	RuleStore     *alerting.RuleStore
	CooldownStore alerting.CooldownStore
	PollerConfig  ingest.PollerConfig
	Logger        *log.Logger
}

// New constructs every subsystem and wires their bus subscriptions, but
// starts nothing: callers drive Poller.Run/FileWatcher.Run/
// LogsWatcher.Run/Metrics.Run/Hub.Run themselves (typically via
// lifecycle.Controller) and call Close when shutting down.
func New(cfg Config) (*App, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = log.Default()
	}

	b := bus.New(logger)
	events := eventbuffer.New(24*time.Hour, 50000)
	stateMgr := state.New(b, events, logger)

	collector := metrics.NewCollector(b, stateMgr, stateMgr.Snapshot, logger)
	health := metrics.NewHealthCalculator()
	detector := anomaly.NewDetector(b)
	analyzer := errorpattern.NewAnalyzer()
	forecaster := forecast.New()

	cooldown := cfg.CooldownStore
	if cooldown == nil {
		cooldown = alerting.NewMemoryCooldownStore()
	}
	engine := alerting.NewEngine(cfg.RuleStore, cooldown, b, logger)
	if err := engine.Initialize(); err != nil {
		return nil, err
	}

	poller := ingest.NewPoller(cfg.PollerConfig, nil, stateMgr, collector, logger)
	poller.SetHooksLookup(func(rig string) map[string]model.Hook {
		return stateMgr.Snapshot().Hooks[rig]
	})

	hub := fanout.New(
		b,
		stateMgr.Snapshot,
		collector.PublicSnapshot,
		func() model.HealthScore { return health.Compute(collector.PublicSnapshot(), totalAgents(stateMgr.Snapshot())) },
		collector,
		func() { poller.PollNow(context.Background()) },
		timelineAdapter{events: events},
		logger,
	)

	httpSrv := httpapi.NewServer(stateMgr, events, cfg.HistoryStore, engine, detector, analyzer, forecaster, logger)

	fileWatcher, err := ingest.NewFileWatcher(cfg.GTDir, stateMgr)
	if err != nil {
		return nil, err
	}
	logsWatcher := ingest.NewLogsWatcher(cfg.GTDir, stateMgr)

	a := &App{
		Bus:         b,
		Events:      events,
		State:       stateMgr,
		Metrics:     collector,
		Health:      health,
		Anomaly:     detector,
		Errors:      analyzer,
		Forecast:    forecaster,
		Alerts:      engine,
		History:     cfg.HistoryStore,
		Hub:         hub,
		HTTP:        httpSrv,
		Poller:      poller,
		FileWatcher: fileWatcher,
		LogsWatcher: logsWatcher,
		logger:      logger,
	}
	a.wireBus()
	return a, nil
}

// wireBus subscribes the cross-cutting subsystems (anomaly detection,
// alerting, error-pattern analysis, historical recording) to the topics
// the State Manager and Metrics Collector already publish, closing the
// loop the individual packages leave open on purpose so each stays
// independently testable.
func (a *App) wireBus() {
	a.unsubs = append(a.unsubs, a.Bus.Subscribe(bus.TopicMetrics, func(msg bus.Message) error {
		ms, ok := msg.Payload.(model.MetricsSnapshot)
		if !ok {
			return nil
		}
		snap := a.State.Snapshot()

		a.Anomaly.RecordUpdate()
		for _, alert := range a.Anomaly.Evaluate(ms, snap) {
			a.Bus.Publish(bus.TopicAlertRaised, "alert", alert)
		}
		a.Alerts.Evaluate(context.Background(), alerting.EvalInput{Snapshot: snap, Metrics: ms})

		if a.History != nil {
			if err := a.History.RecordMetrics(context.Background(), ms); err != nil {
				a.logger.Printf("[app] failed to record metrics history: %v", err)
			}
		}
		return nil
	}))

	a.unsubs = append(a.unsubs, a.Bus.Subscribe(bus.TopicEvent, func(msg bus.Message) error {
		switch msg.Type {
		case "log":
			if entry, ok := msg.Payload.(model.LogEntry); ok {
				a.Errors.Ingest(entry)
				if entry.Level == model.LevelError {
					a.Anomaly.RecordErrorLog(msg.Timestamp)
					a.Alerts.RecordErrorLog(entry.Rig, entry.Agent, msg.Timestamp)
				}
			}
		case "error":
			a.Anomaly.RecordErrorLog(msg.Timestamp)
		}
		a.Alerts.Evaluate(context.Background(), alerting.EvalInput{
			Snapshot:  a.State.Snapshot(),
			Metrics:   a.Metrics.PublicSnapshot(),
			EventType: msg.Type,
		})
		return nil
	}))

	a.unsubs = append(a.unsubs, a.Bus.Subscribe(bus.TopicUpdate, func(msg bus.Message) error {
		if msg.Type != "agentStats" || a.History == nil {
			return nil
		}
		payload, ok := msg.Payload.(map[string]interface{})
		if !ok {
			return nil
		}
		key, _ := payload["key"].(string)
		stats, ok := payload["stats"].(model.AgentStats)
		if !ok || len(stats.Completions) == 0 {
			return nil
		}
		latest := stats.Completions[len(stats.Completions)-1]
		durationMs := int64(0)
		if latest.Duration != nil {
			durationMs = latest.Duration.Milliseconds()
		}
		err := a.History.RecordAgentCompletion(context.Background(), key, history.AgentCompletion{
			Timestamp:  latest.CompletedAt,
			BeadID:     latest.BeadID,
			DurationMs: durationMs,
		})
		if err != nil {
			a.logger.Printf("[app] failed to record agent completion history: %v", err)
		}
		return nil
	}))
}

// RunForecastSampler blocks, recording a fleet-wide active/hooked
// sample every forecastSampleInterval until ctx is canceled. Grounded
// on the same ticker-loop shape as metrics.Collector.Run.
func (a *App) RunForecastSampler(ctx context.Context) {
	ticker := time.NewTicker(forecastSampleInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			snap := a.State.Snapshot()
			active, hooked := 0, 0
			for rig, agents := range snap.Agents {
				hooks := snap.Hooks[rig]
				for _, agent := range agents {
					if agent.Status == model.AgentRunning {
						active++
					}
					if h, ok := hooks[agent.Name]; ok && h.Bead != "" {
						hooked++
					}
				}
			}
			a.Forecast.RecordSample(active, hooked)
		}
	}
}

// Close unsubscribes every bus handler App registered and stops the
// Metrics Collector's own bus subscription.
func (a *App) Close() {
	for _, unsub := range a.unsubs {
		unsub()
	}
	a.Metrics.Close()
}

func totalAgents(snap model.Snapshot) int {
	total := 0
	for _, agents := range snap.Agents {
		total += len(agents)
	}
	return total
}
