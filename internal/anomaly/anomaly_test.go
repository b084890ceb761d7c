package anomaly

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gastown-ops/rigwatch/internal/model"
)

func TestCheckSlowResponseThresholds(t *testing.T) {
	d := NewDetector(nil)
	a := d.checkSlowResponse(model.MetricsSnapshot{AvgPollDuration: 2500})
	require.NotNil(t, a)
	assert.Equal(t, model.SeverityWarning, a.Severity)

	d2 := NewDetector(nil)
	a2 := d2.checkSlowResponse(model.MetricsSnapshot{AvgPollDuration: 6000})
	require.NotNil(t, a2)
	assert.Equal(t, model.SeverityCritical, a2.Severity)
}

func TestCheckLowSuccessRateRequiresMinimumPolls(t *testing.T) {
	d := NewDetector(nil)
	assert.Nil(t, d.checkLowSuccessRate(model.MetricsSnapshot{TotalPolls: 3, SuccessRate: 10}))

	a := d.checkLowSuccessRate(model.MetricsSnapshot{TotalPolls: 10, SuccessRate: 60})
	require.NotNil(t, a)
	assert.Equal(t, model.SeverityCritical, a.Severity)
}

func TestRaiseRespectsCooldown(t *testing.T) {
	d := NewDetector(nil)
	d.cooldown = time.Hour

	first := d.checkSlowResponse(model.MetricsSnapshot{AvgPollDuration: 3000})
	require.NotNil(t, first)
	second := d.checkSlowResponse(model.MetricsSnapshot{AvgPollDuration: 3000})
	assert.Nil(t, second)
}

func TestCheckFlappingDetectsRapidChanges(t *testing.T) {
	d := NewDetector(nil)
	now := time.Now()
	hist := make([]model.HistoryEntry, 0, 5)
	for i := 0; i < 5; i++ {
		hist = append(hist, model.HistoryEntry{Timestamp: now.Add(-time.Duration(i) * time.Second)})
	}
	snap := model.Snapshot{AgentHistory: map[string][]model.HistoryEntry{"alpha/w1": hist}}

	d.mu.Lock()
	alerts := d.checkFlapping(snap)
	d.mu.Unlock()

	require.Len(t, alerts, 1)
	assert.Equal(t, "AGENT_STATUS_FLAPPING", alerts[0].Type)
}

func TestRecordErrorLogTriggersHighErrorRate(t *testing.T) {
	d := NewDetector(nil)
	now := time.Now()
	for i := 0; i < 6; i++ {
		d.RecordErrorLog(now)
	}

	d.mu.Lock()
	a := d.checkHighErrorRate(now)
	d.mu.Unlock()

	require.NotNil(t, a)
	assert.Equal(t, model.SeverityWarning, a.Severity)
}

func TestCheckStaleDataAfterWindow(t *testing.T) {
	d := NewDetector(nil)
	d.lastUpdate = time.Now().Add(-time.Minute)

	d.mu.Lock()
	a := d.checkStaleData()
	d.mu.Unlock()

	require.NotNil(t, a)
	assert.Equal(t, "STALE_DATA", a.Type)
}

func TestAlertLifecycle(t *testing.T) {
	d := NewDetector(nil)
	d.mu.Lock()
	alert := d.raiseLocked("TEST", "alpha/w1", model.SeverityWarning, "test", nil)
	d.mu.Unlock()
	require.NotNil(t, alert)

	assert.True(t, d.Acknowledge(alert.ID))
	assert.True(t, d.Resolve(alert.ID))
	assert.True(t, d.Dismiss(alert.ID))
	assert.False(t, d.Dismiss(alert.ID))
}

func TestPruneActiveCapsAtMaxAlerts(t *testing.T) {
	d := NewDetector(nil)
	d.maxAlerts = 2
	d.cooldown = 0

	d.mu.Lock()
	for i := 0; i < 5; i++ {
		d.raiseLocked("TEST", string(rune('a'+i)), model.SeverityInfo, "x", nil)
	}
	d.mu.Unlock()

	assert.Len(t, d.Active(), 2)
}
