package eventbuffer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gastown-ops/rigwatch/internal/model"
)

func TestAddEventSortedOutOfOrder(t *testing.T) {
	b := New(0, 0)
	base := time.Now()
	b.AddEvent(model.Event{Type: "a", Timestamp: base.Add(10 * time.Second)})
	b.AddEvent(model.Event{Type: "b", Timestamp: base})
	b.AddEvent(model.Event{Type: "c", Timestamp: base.Add(5 * time.Second)})

	markers := b.GetEventMarkers()
	require.Len(t, markers, 3)
	assert.Equal(t, "b", markers[0].Type)
	assert.Equal(t, "c", markers[1].Type)
	assert.Equal(t, "a", markers[2].Type)
}

func TestAddEventAssignsTimestampWhenMissing(t *testing.T) {
	b := New(0, 0)
	before := time.Now()
	b.AddEvent(model.Event{Type: "x"})
	after := time.Now()

	markers := b.GetEventMarkers()
	require.Len(t, markers, 1)
	assert.True(t, !markers[0].Timestamp.Before(before) && !markers[0].Timestamp.After(after))
}

func TestMaxEventsTruncation(t *testing.T) {
	b := New(time.Hour, 3)
	base := time.Now()
	for i := 0; i < 5; i++ {
		b.AddEvent(model.Event{Type: "e", Timestamp: base.Add(time.Duration(i) * time.Second)})
	}
	stats := b.GetStats()
	assert.Equal(t, 3, stats.Count)
}

func TestMaxAgePruning(t *testing.T) {
	b := New(time.Millisecond, 100)
	b.AddEvent(model.Event{Type: "old", Timestamp: time.Now().Add(-time.Hour)})
	time.Sleep(2 * time.Millisecond)
	b.AddEvent(model.Event{Type: "new", Timestamp: time.Now()})

	markers := b.GetEventMarkers()
	require.Len(t, markers, 1)
	assert.Equal(t, "new", markers[0].Type)
}

func TestGetEventsBetween(t *testing.T) {
	b := New(0, 0)
	base := time.Now()
	for i := 0; i < 5; i++ {
		b.AddEvent(model.Event{Type: "e", Timestamp: base.Add(time.Duration(i) * time.Minute)})
	}
	events := b.GetEventsBetween(base.Add(time.Minute), base.Add(3*time.Minute))
	assert.Len(t, events, 3)
}

func TestGetEventAtTime(t *testing.T) {
	b := New(0, 0)
	base := time.Now()
	b.AddEvent(model.Event{Type: "a", Timestamp: base})
	b.AddEvent(model.Event{Type: "b", Timestamp: base.Add(time.Minute)})

	e := b.GetEventAtTime(base.Add(30 * time.Second))
	require.NotNil(t, e)
	assert.Equal(t, "a", e.Type)

	none := b.GetEventAtTime(base.Add(-time.Minute))
	assert.Nil(t, none)
}

func TestGetStateAtTimeReplay(t *testing.T) {
	b := New(0, 0)
	base := time.Now()

	h0 := model.Snapshot{
		Hooks: map[string]map[string]model.Hook{
			"alpha": {"a1": {Rig: "alpha", Agent: "a1", Bead: "rw-1"}},
		},
	}
	b.AddEvent(model.Event{Type: "snapshot", Timestamp: base, Payload: h0})
	b.AddEvent(model.Event{
		Type:      "hooks:updated",
		Timestamp: base.Add(10 * time.Second),
		Payload: map[string]map[string]model.Hook{
			"alpha": {"a1": {Rig: "alpha", Agent: "a1", Bead: "rw-1", Title: "active"}},
		},
	})

	before := b.GetStateAtTime(base.Add(5 * time.Second))
	assert.True(t, before.IsReplay)
	assert.Equal(t, "rw-1", before.Snapshot.Hooks["alpha"]["a1"].Bead)
	assert.Equal(t, "", before.Snapshot.Hooks["alpha"]["a1"].Title)

	after := b.GetStateAtTime(base.Add(15 * time.Second))
	assert.True(t, after.IsReplay)
	assert.Equal(t, "active", after.Snapshot.Hooks["alpha"]["a1"].Title)
}

func TestClear(t *testing.T) {
	b := New(0, 0)
	b.AddEvent(model.Event{Type: "a"})
	b.Clear()
	assert.Equal(t, 0, b.GetStats().Count)
}
