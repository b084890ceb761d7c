package app

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gastown-ops/rigwatch/internal/alerting"
	"github.com/gastown-ops/rigwatch/internal/bus"
	"github.com/gastown-ops/rigwatch/internal/history"
	"github.com/gastown-ops/rigwatch/internal/ingest"
	"github.com/gastown-ops/rigwatch/internal/model"
)

func newTestApp(t *testing.T) *App {
	t.Helper()
	gtDir := t.TempDir()

	hist, err := history.NewJSONStore(filepath.Join(t.TempDir(), "history.json"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = hist.Close() })

	a, err := New(Config{
		GTDir:        gtDir,
		HistoryStore: hist,
		RuleStore:    alerting.NewRuleStore(filepath.Join(t.TempDir(), "rules.json")),
		PollerConfig: ingest.DefaultPollerConfig(gtDir),
	})
	require.NoError(t, err)
	t.Cleanup(a.Close)
	return a
}

func TestNewWiresEveryBusSubscription(t *testing.T) {
	a := newTestApp(t)
	assert.Len(t, a.unsubs, 3)
}

func TestMetricsPublicationFeedsAnomalyAndHistory(t *testing.T) {
	a := newTestApp(t)

	for i := 0; i < 3; i++ {
		a.Metrics.ObservePoll(10*time.Millisecond, false)
	}
	a.Bus.Publish(bus.TopicMetrics, "", a.Metrics.PublicSnapshot())

	stats, err := a.History.StorageStats(t.Context())
	require.NoError(t, err)
	assert.Equal(t, 1, stats.RawSamples)
}

func TestLogEventFeedsErrorPatternAnalyzer(t *testing.T) {
	a := newTestApp(t)

	a.Bus.Publish(bus.TopicEvent, "log", model.LogEntry{
		Timestamp: time.Now(),
		Level:     model.LevelError,
		Message:   "dial tcp 127.0.0.1:5432: connection refused",
		Rig:       "alpha",
		Agent:     "polecat-1",
	})

	summary := a.Errors.GetSummary()
	assert.Equal(t, 1, summary.TotalErrors)
}

func TestAgentStatsUpdateRecordsHistoryCompletion(t *testing.T) {
	a := newTestApp(t)

	completedAt := time.Now()
	duration := 90 * time.Second
	a.Bus.Publish(bus.TopicUpdate, "agentStats", map[string]interface{}{
		"key": "alpha/polecat-1",
		"stats": model.AgentStats{
			Completions: []model.Completion{
				{BeadID: "rw-1", Title: "fix bug", CompletedAt: completedAt, Duration: &duration},
			},
			TotalCompleted: 1,
		},
	})

	eff, err := a.History.GetAgentEfficiency(t.Context(), "alpha/polecat-1", completedAt.Add(-time.Hour), completedAt.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, eff.CompletionCount)
}

func TestForecastReportsInsufficientDataBeforeAnySample(t *testing.T) {
	a := newTestApp(t)
	a.State.UpdateRigs(map[string]model.Rig{"alpha": {Name: "alpha"}})
	a.State.UpdateAgents("alpha", []model.Agent{{Name: "polecat-1", Role: model.RolePolecat, Status: model.AgentRunning}})

	f := a.Forecast.Compute()
	assert.True(t, f.Insufficient)
}
