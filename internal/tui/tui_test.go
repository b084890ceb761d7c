package tui

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gastown-ops/rigwatch/internal/fanout"
	"github.com/gastown-ops/rigwatch/internal/model"
)

func TestNewClientRewritesHTTPToWS(t *testing.T) {
	c := newClient("http://localhost:3001")
	assert.Equal(t, "ws://localhost:3001/ws", c.wsURL)
}

func TestNewClientRewritesHTTPSToWSS(t *testing.T) {
	c := newClient("https://rigwatch.example.com/")
	assert.Equal(t, "wss://rigwatch.example.com/ws", c.wsURL)
}

func TestDecodeAsRoundTripsSnapshot(t *testing.T) {
	raw := map[string]interface{}{
		"rigs": map[string]interface{}{
			"alpha": map[string]interface{}{"name": "alpha", "polecats": 2},
		},
	}
	snap, ok := decodeAs[model.Snapshot](raw)
	require.True(t, ok)
	assert.Equal(t, "alpha", snap.Rigs["alpha"].Name)
	assert.Equal(t, 2, snap.Rigs["alpha"].Polecats)
}

func TestDescribeFrameFormatsKnownTypes(t *testing.T) {
	ts := time.Date(2026, 1, 1, 10, 30, 0, 0, time.UTC)
	line := describeFrame(fanout.Frame{Type: "state", Timestamp: ts})
	assert.Contains(t, line, "10:30:00")
	assert.Contains(t, line, "[state]")
}

func TestApplyFrameMergesHooksUpdate(t *testing.T) {
	m := &Model{}
	m.applyFrame(fanout.Frame{
		Type:      "hooks:updated",
		Timestamp: time.Now(),
		Data: map[string]interface{}{
			"alpha": map[string]interface{}{
				"a1": map[string]interface{}{"rig": "alpha", "agent": "a1", "bead": "rw-1"},
			},
		},
	})
	require.Contains(t, m.snapshot.Hooks, "alpha")
	assert.Equal(t, "rw-1", m.snapshot.Hooks["alpha"]["a1"].Bead)
	assert.Len(t, m.feed, 1)
}

func TestApplyFrameCapsFeedAt500(t *testing.T) {
	m := &Model{}
	for i := 0; i < 510; i++ {
		m.applyFrame(fanout.Frame{Type: "log", Timestamp: time.Now()})
	}
	assert.Len(t, m.feed, 500)
}
