package ingest

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseHookMapJSON(t *testing.T) {
	out := []byte(`{"w1":{"bead":"rw-1","title":"Fix thing","molecule":"m1","autonomousMode":true}}`)
	hooks := parseHookMap(out, "alpha")
	require.Contains(t, hooks, "w1")
	h := hooks["w1"]
	assert.Equal(t, "alpha", h.Rig)
	assert.Equal(t, "w1", h.Agent)
	assert.Equal(t, "rw-1", h.Bead)
	assert.True(t, h.AutonomousMode)
}

func TestParseHookMapTextFallback(t *testing.T) {
	out := []byte("w1\nHook Status: hooked\nHooked: rw-2: Fix other thing\nAUTONOMOUS MODE\n\nw2\nHook Status: none\n")
	hooks := parseHookMap(out, "alpha")
	require.Contains(t, hooks, "w1")
	assert.Equal(t, "rw-2", hooks["w1"].Bead)
}

func TestFirstAgentName(t *testing.T) {
	assert.Equal(t, "w1", firstAgentName("w1\nHook Status: hooked\n"))
	assert.Empty(t, firstAgentName("Hook Status: hooked\n"))
	assert.Empty(t, firstAgentName(""))
}
