// Package eventbuffer implements a bounded, time-ordered sequence of
// events supporting binary-search range queries and point-in-time state
// replay. Grounded on the teacher's timeline/store.go (control_plane),
// generalized from a flat append-only event log to a sorted, pruned,
// replay-capable buffer per spec.md §4.2.
package eventbuffer

import (
	"sort"
	"sync"
	"time"

	"github.com/gastown-ops/rigwatch/internal/model"
)

const (
	defaultMaxAge     = 3 * time.Hour
	defaultMaxEvents  = 10000
)

// Stats summarizes the current buffer contents.
type Stats struct {
	Count     int       `json:"count"`
	OldestAt  time.Time `json:"oldestAt"`
	NewestAt  time.Time `json:"newestAt"`
}

// Buffer is a bounded, timestamp-sorted sequence of events.
type Buffer struct {
	mu         sync.RWMutex
	events     []model.Event
	maxAge     time.Duration
	maxEvents  int
}

// New constructs a Buffer with the given retention limits. A zero
// maxAge or maxEvents falls back to the spec defaults (3h / 10000).
func New(maxAge time.Duration, maxEvents int) *Buffer {
	if maxAge <= 0 {
		maxAge = defaultMaxAge
	}
	if maxEvents <= 0 {
		maxEvents = defaultMaxEvents
	}
	return &Buffer{maxAge: maxAge, maxEvents: maxEvents}
}

// AddEvent inserts e in sorted position (assigning Timestamp if zero),
// then prunes entries older than maxAge and truncates to maxEvents,
// keeping the newest entries.
func (b *Buffer) AddEvent(e model.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}

	idx := sort.Search(len(b.events), func(i int) bool {
		return b.events[i].Timestamp.After(e.Timestamp)
	})
	b.events = append(b.events, model.Event{})
	copy(b.events[idx+1:], b.events[idx:])
	b.events[idx] = e

	b.pruneLocked()
}

func (b *Buffer) pruneLocked() {
	cutoff := time.Now().Add(-b.maxAge)
	start := sort.Search(len(b.events), func(i int) bool {
		return b.events[i].Timestamp.After(cutoff) || b.events[i].Timestamp.Equal(cutoff)
	})
	if start > 0 {
		b.events = append([]model.Event{}, b.events[start:]...)
	}

	if len(b.events) > b.maxEvents {
		excess := len(b.events) - b.maxEvents
		b.events = append([]model.Event{}, b.events[excess:]...)
	}
}

// GetEventsBetween returns the inclusive range [start,end] via two
// binary searches over the sorted slice.
func (b *Buffer) GetEventsBetween(start, end time.Time) []model.Event {
	b.mu.RLock()
	defer b.mu.RUnlock()

	lo := sort.Search(len(b.events), func(i int) bool {
		return !b.events[i].Timestamp.Before(start)
	})
	hi := sort.Search(len(b.events), func(i int) bool {
		return b.events[i].Timestamp.After(end)
	})
	if lo >= hi {
		return nil
	}
	out := make([]model.Event, hi-lo)
	copy(out, b.events[lo:hi])
	return out
}

// GetEventAtTime returns the most recent event with timestamp <= t, or
// nil if none exists.
func (b *Buffer) GetEventAtTime(t time.Time) *model.Event {
	b.mu.RLock()
	defer b.mu.RUnlock()

	idx := sort.Search(len(b.events), func(i int) bool {
		return b.events[i].Timestamp.After(t)
	})
	if idx == 0 {
		return nil
	}
	e := b.events[idx-1]
	return &e
}

// GetStateAtTime folds events up to and including t into a ReplayState:
// "snapshot" events replace the entire state; "hooks:updated" events
// merge their hook map into the running state. The result is always
// tagged IsReplay.
func (b *Buffer) GetStateAtTime(t time.Time) model.ReplayState {
	b.mu.RLock()
	events := make([]model.Event, len(b.events))
	copy(events, b.events)
	b.mu.RUnlock()

	var state model.Snapshot
	for _, e := range events {
		if e.Timestamp.After(t) {
			break
		}
		switch e.Type {
		case "snapshot":
			if snap, ok := e.Payload.(model.Snapshot); ok {
				state = snap
				// Copy the hook maps so later hooks:updated merges never
				// write into the snapshot stored in the buffer.
				state.Hooks = make(map[string]map[string]model.Hook, len(snap.Hooks))
				for rig, agentHooks := range snap.Hooks {
					inner := make(map[string]model.Hook, len(agentHooks))
					for agent, hook := range agentHooks {
						inner[agent] = hook
					}
					state.Hooks[rig] = inner
				}
			}
		case "hooks:updated":
			if hooks, ok := e.Payload.(map[string]map[string]model.Hook); ok {
				if state.Hooks == nil {
					state.Hooks = map[string]map[string]model.Hook{}
				}
				for rig, agentHooks := range hooks {
					if state.Hooks[rig] == nil {
						state.Hooks[rig] = map[string]model.Hook{}
					}
					for agent, hook := range agentHooks {
						state.Hooks[rig][agent] = hook
					}
				}
			}
		}
	}
	state.IsReplay = true
	return model.ReplayState{Snapshot: state, IsReplay: true}
}

// EventMarker is a compact timeline annotation for a single event.
type EventMarker struct {
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
}

// GetEventMarkers returns a compact marker per event, oldest-first.
func (b *Buffer) GetEventMarkers() []EventMarker {
	b.mu.RLock()
	defer b.mu.RUnlock()

	markers := make([]EventMarker, len(b.events))
	for i, e := range b.events {
		markers[i] = EventMarker{Type: e.Type, Timestamp: e.Timestamp}
	}
	return markers
}

// GetTimelineBounds returns the oldest and newest event timestamps; ok is
// false when the buffer is empty.
func (b *Buffer) GetTimelineBounds() (oldest, newest time.Time, ok bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if len(b.events) == 0 {
		return time.Time{}, time.Time{}, false
	}
	return b.events[0].Timestamp, b.events[len(b.events)-1].Timestamp, true
}

// GetStats summarizes the buffer's current contents.
func (b *Buffer) GetStats() Stats {
	b.mu.RLock()
	defer b.mu.RUnlock()

	s := Stats{Count: len(b.events)}
	if len(b.events) > 0 {
		s.OldestAt = b.events[0].Timestamp
		s.NewestAt = b.events[len(b.events)-1].Timestamp
	}
	return s
}

// Clear empties the buffer.
func (b *Buffer) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = nil
}
