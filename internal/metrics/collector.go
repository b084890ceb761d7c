package metrics

import (
	"context"
	"log"
	"math"
	"sync"
	"time"

	"github.com/gastown-ops/rigwatch/internal/bus"
	"github.com/gastown-ops/rigwatch/internal/model"
)

const (
	rotateInterval  = 60 * time.Second
	maxPollSamples  = 500
	maxEventSamples = 500
)

// StateSink is the subset of *state.Manager the Collector writes
// derived metrics to.
type StateSink interface {
	UpdateMetrics(model.MetricsSnapshot)
}

// SnapshotProvider returns the current full state snapshot, used once
// per rotation to derive agentActivity counts.
type SnapshotProvider func() model.Snapshot

// Collector maintains the rolling pollDurations/eventVolume buffers of
// spec.md §4.5.1 and derives avgPollDuration/updateFrequency/
// successRate/agentActivity on every 60s rotation.
//
// Grounded on control_plane/observability/metrics.go's promauto gauge/
// counter/histogram vectors for the exported side, and on
// control_plane/main.go's ticker-loop shape for the rotation cycle.
type Collector struct {
	mu sync.Mutex

	pollDurations []int64
	eventVolume   []int
	timestamps    []time.Time

	totalPolls, successfulPolls, failedPolls int
	totalEvents                              int
	currentIntervalEvents                    int
	wsConnections, totalWSConnections, totalWSMessages int

	sink     StateSink
	snapshot SnapshotProvider
	bus      *bus.Bus
	unsub    func()
	logger   *log.Logger
}

// NewCollector constructs a Collector that subscribes to b's event
// topic to count event volume and writes derived metrics to sink.
func NewCollector(b *bus.Bus, sink StateSink, snap SnapshotProvider, logger *log.Logger) *Collector {
	if logger == nil {
		logger = log.Default()
	}
	c := &Collector{sink: sink, snapshot: snap, bus: b, logger: logger}
	if b != nil {
		c.unsub = b.Subscribe(bus.TopicEvent, func(bus.Message) error {
			c.mu.Lock()
			c.currentIntervalEvents++
			c.totalEvents++
			c.mu.Unlock()
			return nil
		})
	}
	return c
}

// Close unsubscribes the Collector from the bus.
func (c *Collector) Close() {
	if c.unsub != nil {
		c.unsub()
	}
}

// ObservePoll records one poll cycle's duration and outcome. It
// satisfies ingest.MetricsSink.
func (c *Collector) ObservePoll(duration time.Duration, success bool) {
	ms := duration.Milliseconds()

	c.mu.Lock()
	c.pollDurations = append(c.pollDurations, ms)
	if len(c.pollDurations) > maxPollSamples {
		c.pollDurations = c.pollDurations[len(c.pollDurations)-maxPollSamples:]
	}
	c.totalPolls++
	if success {
		c.successfulPolls++
	} else {
		c.failedPolls++
	}
	c.mu.Unlock()

	PollDuration.Observe(duration.Seconds())
	outcome := "success"
	if !success {
		outcome = "failure"
	}
	PollsTotal.WithLabelValues(outcome).Inc()
}

// RecordWSConnection/RecordWSDisconnection/RecordWSMessage track the
// fan-out layer's connection lifecycle counters, per spec.md §4.8.
func (c *Collector) RecordWSConnection() {
	c.mu.Lock()
	c.wsConnections++
	c.totalWSConnections++
	c.mu.Unlock()
	WSConnections.Set(float64(c.wsConnections))
}

func (c *Collector) RecordWSDisconnection() {
	c.mu.Lock()
	if c.wsConnections > 0 {
		c.wsConnections--
	}
	c.mu.Unlock()
	WSConnections.Set(float64(c.wsConnections))
}

func (c *Collector) RecordWSMessage() {
	c.mu.Lock()
	c.totalWSMessages++
	c.mu.Unlock()
}

// Run rotates the interval every 60s until ctx is done, publishing a
// fresh MetricsSnapshot to sink after each rotation.
func (c *Collector) Run(ctx context.Context) {
	ticker := time.NewTicker(rotateInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.rotate()
		}
	}
}

func (c *Collector) rotate() {
	c.mu.Lock()
	c.eventVolume = append(c.eventVolume, c.currentIntervalEvents)
	if len(c.eventVolume) > maxEventSamples {
		c.eventVolume = c.eventVolume[len(c.eventVolume)-maxEventSamples:]
	}
	c.timestamps = append(c.timestamps, time.Now())
	if len(c.timestamps) > maxEventSamples {
		c.timestamps = c.timestamps[len(c.timestamps)-maxEventSamples:]
	}
	c.currentIntervalEvents = 0
	snap := c.Snapshot()
	c.mu.Unlock()

	if c.sink != nil {
		c.sink.UpdateMetrics(snap)
	}
}

// Snapshot computes the current derived MetricsSnapshot. Callers must
// hold c.mu, or accept the benign race of reading a slightly-stale
// buffer (Snapshot is also exposed unlocked via PublicSnapshot for
// callers outside the package).
func (c *Collector) Snapshot() model.MetricsSnapshot {
	ms := model.MetricsSnapshot{
		PollDurations:      append([]int64(nil), c.pollDurations...),
		EventVolume:        append([]int(nil), c.eventVolume...),
		Timestamps:         append([]time.Time(nil), c.timestamps...),
		TotalPolls:         c.totalPolls,
		SuccessfulPolls:    c.successfulPolls,
		FailedPolls:        c.failedPolls,
		TotalEvents:        c.totalEvents,
		WSConnections:      c.wsConnections,
		TotalWSConnections: c.totalWSConnections,
		TotalWSMessages:    c.totalWSMessages,
	}
	ms.AvgPollDuration = avgInt64(ms.PollDurations)
	ms.UpdateFrequency = avgLastN(ms.EventVolume, 5)
	ms.SuccessRate = successRate(c.totalPolls, c.successfulPolls)
	ms.AgentActivity = c.agentActivity()
	return ms
}

// PublicSnapshot acquires the lock and returns Snapshot()'s result, for
// use by callers outside this package (e.g. the HTTP API).
func (c *Collector) PublicSnapshot() model.MetricsSnapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.Snapshot()
}

func (c *Collector) agentActivity() map[string]int {
	counts := map[string]int{"error": 0, "active": 0, "hooked": 0, "idle": 0}
	if c.snapshot == nil {
		return counts
	}
	snap := c.snapshot()
	for rig, agents := range snap.Agents {
		hooks := snap.Hooks[rig]
		for _, a := range agents {
			switch {
			case a.Status == model.AgentUnknown:
				counts["error"]++
			case a.Status == model.AgentRunning:
				counts["active"]++
			default:
				if h, ok := hooks[a.Name]; ok && h.Bead != "" {
					counts["hooked"]++
				} else {
					counts["idle"]++
				}
			}
		}
	}
	return counts
}

func avgInt64(xs []int64) int64 {
	if len(xs) == 0 {
		return 0
	}
	var sum int64
	for _, x := range xs {
		sum += x
	}
	return int64(math.Round(float64(sum) / float64(len(xs))))
}

func avgLastN(xs []int, n int) float64 {
	if len(xs) == 0 {
		return 0
	}
	start := 0
	if len(xs) > n {
		start = len(xs) - n
	}
	tail := xs[start:]
	var sum int
	for _, x := range tail {
		sum += x
	}
	avg := float64(sum) / float64(len(tail))
	return math.Round(avg*10) / 10
}

func successRate(total, successful int) float64 {
	if total == 0 {
		return 100
	}
	rate := 100 * float64(successful) / float64(total)
	return math.Round(rate*10) / 10
}
