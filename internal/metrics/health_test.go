package metrics

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/gastown-ops/rigwatch/internal/model"
)

func TestLatencyScoreAnchors(t *testing.T) {
	assert.Equal(t, 100.0, latencyScore(50))
	assert.Equal(t, 80.0, latencyScore(250))
	assert.Equal(t, 50.0, latencyScore(500))
	assert.Equal(t, 20.0, latencyScore(1000))
	assert.Equal(t, 0.0, latencyScore(2000))
	assert.Equal(t, 0.0, latencyScore(5000))
}

func TestUptimeScoreNoAgents(t *testing.T) {
	assert.Equal(t, 75.0, uptimeScore(map[string]int{}, 0))
}

func TestUptimeScoreAllActive(t *testing.T) {
	score := uptimeScore(map[string]int{"active": 4}, 4)
	assert.Equal(t, 100.0, score)
}

func TestErrorRateScoreSteps(t *testing.T) {
	assert.Equal(t, 100.0, errorRateScore(100))
	assert.Equal(t, 95.0, errorRateScore(99.5))
	assert.Equal(t, 90.0, errorRateScore(98.5))
	assert.Equal(t, 75.0, errorRateScore(96))
	assert.Equal(t, 50.0, errorRateScore(92))
	assert.Equal(t, 25.0, errorRateScore(85))
	assert.Equal(t, 70.0/4, errorRateScore(70))
}

func TestHealthCalculatorComputeAndHistory(t *testing.T) {
	h := NewHealthCalculator()
	ms := model.MetricsSnapshot{
		SuccessRate:     99.95,
		AvgPollDuration: 80,
		UpdateFrequency: 10,
		AgentActivity:   map[string]int{"active": 2, "hooked": 1, "idle": 1},
	}

	first := h.Compute(ms, 4)
	assert.Equal(t, model.HealthHealthy, first.Status)

	h.Compute(ms, 4)
	assert.Len(t, h.History(), 2)
}

func TestHealthStatusBuckets(t *testing.T) {
	assert.Equal(t, model.HealthHealthy, statusFor(85))
	assert.Equal(t, model.HealthDegraded, statusFor(60))
	assert.Equal(t, model.HealthCritical, statusFor(20))
}

func TestHealthCalculatorHistoryCapped(t *testing.T) {
	h := NewHealthCalculator()
	h.maxLen = 3
	ms := model.MetricsSnapshot{SuccessRate: 100, AgentActivity: map[string]int{}}
	for i := 0; i < 10; i++ {
		h.Compute(ms, 0)
	}
	assert.Len(t, h.History(), 3)
}
