package metrics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gastown-ops/rigwatch/internal/bus"
	"github.com/gastown-ops/rigwatch/internal/model"
)

type fakeMetricsStateSink struct {
	last model.MetricsSnapshot
}

func (f *fakeMetricsStateSink) UpdateMetrics(ms model.MetricsSnapshot) { f.last = ms }

func TestObservePollAccumulates(t *testing.T) {
	c := NewCollector(nil, nil, nil, nil)
	c.ObservePoll(50*time.Millisecond, true)
	c.ObservePoll(150*time.Millisecond, false)

	snap := c.PublicSnapshot()
	assert.Equal(t, 2, snap.TotalPolls)
	assert.Equal(t, 1, snap.SuccessfulPolls)
	assert.Equal(t, 1, snap.FailedPolls)
	assert.Equal(t, int64(100), snap.AvgPollDuration)
	assert.Equal(t, 50.0, snap.SuccessRate)
}

func TestSuccessRateDefaultsTo100WithNoPolls(t *testing.T) {
	c := NewCollector(nil, nil, nil, nil)
	assert.Equal(t, 100.0, c.PublicSnapshot().SuccessRate)
}

func TestCollectorCountsEventsFromBus(t *testing.T) {
	b := bus.New(nil)
	sink := &fakeMetricsStateSink{}
	c := NewCollector(b, sink, nil, nil)
	defer c.Close()

	b.Publish(bus.TopicEvent, "bead_status_change", nil)
	b.Publish(bus.TopicEvent, "bead_status_change", nil)

	c.rotate()
	snap := c.PublicSnapshot()
	require.Len(t, snap.EventVolume, 1)
	assert.Equal(t, 2, snap.EventVolume[0])
	assert.Equal(t, 2, sink.last.TotalEvents)
}

func TestAgentActivityDerivation(t *testing.T) {
	snap := model.Snapshot{
		Agents: map[string][]model.Agent{
			"alpha": {
				{Name: "w1", Status: model.AgentRunning},
				{Name: "w2", Status: model.AgentUnknown},
				{Name: "w3", Status: model.AgentIdle},
				{Name: "w4", Status: model.AgentIdle},
			},
		},
		Hooks: map[string]map[string]model.Hook{
			"alpha": {"w3": {Bead: "rw-1"}},
		},
	}
	c := NewCollector(nil, nil, func() model.Snapshot { return snap }, nil)
	activity := c.agentActivity()

	assert.Equal(t, 1, activity["active"])
	assert.Equal(t, 1, activity["error"])
	assert.Equal(t, 1, activity["hooked"])
	assert.Equal(t, 1, activity["idle"])
}

func TestWSConnectionLifecycleCounters(t *testing.T) {
	c := NewCollector(nil, nil, nil, nil)
	c.RecordWSConnection()
	c.RecordWSConnection()
	c.RecordWSMessage()
	c.RecordWSDisconnection()

	snap := c.PublicSnapshot()
	assert.Equal(t, 1, snap.WSConnections)
	assert.Equal(t, 2, snap.TotalWSConnections)
	assert.Equal(t, 1, snap.TotalWSMessages)
}
