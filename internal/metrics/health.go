package metrics

import (
	"math"
	"sync"
	"time"

	"github.com/gastown-ops/rigwatch/internal/model"
)

const (
	weightErrorRate  = 0.35
	weightUptime     = 0.30
	weightLatency    = 0.20
	weightThroughput = 0.15

	defaultHealthHistory = 60
)

// HealthCalculator combines four weighted sub-scores into a single
// composite HealthScore, per spec.md §4.5.2, keeping a rolling history
// of past scores.
type HealthCalculator struct {
	mu      sync.Mutex
	history []model.HealthScore
	maxLen  int

	// updateFrequencyHistory backs the throughput sub-score's
	// current-vs-historical-mean comparison.
	updateFrequencyHistory []float64
}

// NewHealthCalculator constructs a calculator retaining the default 60
// most recent scores.
func NewHealthCalculator() *HealthCalculator {
	return &HealthCalculator{maxLen: defaultHealthHistory}
}

// Compute derives a HealthScore from the current MetricsSnapshot and
// agent population (running+hooked+idle counted as "up").
func (h *HealthCalculator) Compute(ms model.MetricsSnapshot, totalAgents int) model.HealthScore {
	h.mu.Lock()
	defer h.mu.Unlock()

	comps := model.HealthComponents{
		Uptime:     uptimeScore(ms.AgentActivity, totalAgents),
		ErrorRate:  errorRateScore(ms.SuccessRate),
		Latency:    latencyScore(float64(ms.AvgPollDuration)),
		Throughput: h.throughputScore(ms.UpdateFrequency),
	}

	h.updateFrequencyHistory = append(h.updateFrequencyHistory, ms.UpdateFrequency)
	if len(h.updateFrequencyHistory) > 500 {
		h.updateFrequencyHistory = h.updateFrequencyHistory[len(h.updateFrequencyHistory)-500:]
	}

	score := comps.ErrorRate*weightErrorRate +
		comps.Uptime*weightUptime +
		comps.Latency*weightLatency +
		comps.Throughput*weightThroughput

	result := model.HealthScore{
		Score:      math.Round(score*10) / 10,
		Status:     statusFor(score),
		Components: comps,
		Timestamp:  time.Now(),
	}

	h.history = append(h.history, result)
	if len(h.history) > h.maxLen {
		h.history = h.history[len(h.history)-h.maxLen:]
	}

	HealthScoreGauge.Set(result.Score)
	HealthComponentGauge.WithLabelValues("uptime").Set(comps.Uptime)
	HealthComponentGauge.WithLabelValues("errorRate").Set(comps.ErrorRate)
	HealthComponentGauge.WithLabelValues("latency").Set(comps.Latency)
	HealthComponentGauge.WithLabelValues("throughput").Set(comps.Throughput)

	return result
}

// History returns a copy of the retained score history, oldest first.
func (h *HealthCalculator) History() []model.HealthScore {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]model.HealthScore(nil), h.history...)
}

func statusFor(score float64) model.HealthStatus {
	switch {
	case score >= 80:
		return model.HealthHealthy
	case score >= 50:
		return model.HealthDegraded
	default:
		return model.HealthCritical
	}
}

// latencyScore is piecewise-linear from 100 at <=100ms down to 0 beyond
// 2000ms, with documented anchors at 250/500/1000ms.
func latencyScore(avgMs float64) float64 {
	anchors := []struct{ x, y float64 }{
		{0, 100}, {100, 100}, {250, 80}, {500, 50}, {1000, 20}, {2000, 0},
	}
	if avgMs >= 2000 {
		return 0
	}
	for i := 0; i < len(anchors)-1; i++ {
		a, b := anchors[i], anchors[i+1]
		if avgMs >= a.x && avgMs <= b.x {
			frac := (avgMs - a.x) / (b.x - a.x)
			return a.y + frac*(b.y-a.y)
		}
	}
	return 0
}

// uptimeScore: 75 if there are no agents; otherwise running =
// active+hooked+idle over total, with a small bonus for agents that are
// actively doing something (active+hooked), capped at 100.
func uptimeScore(activity map[string]int, total int) float64 {
	if total == 0 {
		return 75
	}
	running := activity["active"] + activity["hooked"] + activity["idle"]
	base := float64(running) / float64(total) * 100
	bonus := float64(activity["active"]+activity["hooked"]) / float64(total) * 10
	score := base + bonus
	if score > 100 {
		score = 100
	}
	return score
}

// errorRateScore step-maps a success rate percentage to a score.
func errorRateScore(successRate float64) float64 {
	switch {
	case successRate >= 99.9:
		return 100
	case successRate >= 99:
		return 95
	case successRate >= 98:
		return 90
	case successRate >= 95:
		return 75
	case successRate >= 90:
		return 50
	case successRate >= 80:
		return 25
	default:
		return successRate / 4
	}
}

// throughputScore compares current updateFrequency to the historical
// mean via a ratio, per spec.md §4.5.2. With no prior history the ratio
// is undefined, so a neutral 100 is reported (matches the code-
// documented special case the spec defers to "documented in code").
func (h *HealthCalculator) throughputScore(current float64) float64 {
	if len(h.updateFrequencyHistory) == 0 {
		return 100
	}
	mean := meanFloat(h.updateFrequencyHistory)
	if mean == 0 {
		if current == 0 {
			return 100
		}
		return 60
	}
	ratio := current / mean
	switch {
	case ratio >= 0.7 && ratio <= 1.5:
		return 100
	case ratio >= 0.5 && ratio <= 2.0:
		return 80
	case ratio >= 0.3 && ratio <= 3.0:
		return 60
	case ratio >= 0.1:
		return 40
	default:
		return 20
	}
}

func meanFloat(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}
