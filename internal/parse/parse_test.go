package parse

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gastown-ops/rigwatch/internal/model"
)

func TestParseRigListJSON(t *testing.T) {
	out := []byte(`{"alpha":{"name":"alpha","polecats":3,"crew":1,"agents":["mayor","w1"],"status":"active"}}`)
	rigs := ParseRigList(out)
	require.Contains(t, rigs, "alpha")
	assert.Equal(t, 3, rigs["alpha"].Polecats)
	assert.Equal(t, 1, rigs["alpha"].Crew)
	assert.Equal(t, []string{"mayor", "w1"}, rigs["alpha"].Agents)
}

func TestParseRigListText(t *testing.T) {
	out := "  alpha\n    Polecats: 2 | Crew: 1\n    Agents: [mayor witness w1]\n  beta\n    Polecats: 0 | Crew: 0\n    Agents: []\n"
	rigs := ParseRigList([]byte(out))
	require.Contains(t, rigs, "alpha")
	require.Contains(t, rigs, "beta")
	assert.Equal(t, 2, rigs["alpha"].Polecats)
	assert.Equal(t, []string{"mayor", "witness", "w1"}, rigs["alpha"].Agents)
}

func TestParseBeadsTextSymbols(t *testing.T) {
	out := "?  rw-1 P1 fix the thing\n●  rw-2 high in progress work\n✓  rw-3 done already\n✗  rw-4 closed out\nnot a bead line\n"
	beads := ParseBeadsText(out, "alpha")
	require.Len(t, beads, 4)
	assert.Equal(t, model.BeadOpen, beads[0].Status)
	assert.Equal(t, model.PriorityCritical, beads[0].Priority)
	assert.Equal(t, model.BeadHooked, beads[1].Status)
	assert.Equal(t, model.PriorityHigh, beads[1].Priority)
	assert.Equal(t, model.BeadDone, beads[2].Status)
	assert.Equal(t, model.BeadClosed, beads[3].Status)
}

func TestParseBeadsTextPriorityIsCaseInsensitive(t *testing.T) {
	out := "?  rw-1 Critical fix the thing\n●  rw-2 HIGH in progress work\n?  rw-3 p2 normal casing\n"
	beads := ParseBeadsText(out, "alpha")
	require.Len(t, beads, 3)
	assert.Equal(t, model.PriorityCritical, beads[0].Priority)
	assert.Equal(t, model.PriorityHigh, beads[1].Priority)
	assert.Equal(t, model.PriorityHigh, beads[2].Priority)
}

func TestParseBeadsRoundTripIdempotence(t *testing.T) {
	out := "? rw-1 P1 fix the thing\n"
	first := ParseBeadsText(out, "alpha")
	second := ParseBeadsText(out, "alpha")
	assert.Equal(t, first, second)
}

func TestParseHookOutputNil(t *testing.T) {
	assert.Nil(t, ParseHookOutput("no hook info here", "alpha", "w1"))
}

func TestParseHookOutputFull(t *testing.T) {
	out := "Hook Status: active\nRole: polecat\nAUTONOMOUS MODE\nHooked: rw-7: fix the parser\nMolecule: mol-1\nAttached: 2026-01-01T00:00:00Z\n"
	hook := ParseHookOutput(out, "alpha", "w1")
	require.NotNil(t, hook)
	assert.True(t, hook.AutonomousMode)
	assert.Equal(t, "rw-7", hook.Bead)
	assert.Equal(t, "fix the parser", hook.Title)
	assert.Equal(t, "mol-1", hook.Molecule)
	require.NotNil(t, hook.AttachedAt)
}

func TestNormalizeErrorPatternOrder(t *testing.T) {
	msg := "failed writing /var/log/rig1/agent.log at 12:03:45 from 10.0.0.5:8080 id=abc123def456789 request 42931"
	pattern := NormalizeErrorPattern(msg)
	assert.Contains(t, pattern, "<path>")
	assert.Contains(t, pattern, "<id>")
	assert.Contains(t, pattern, "<time>")
	assert.Contains(t, pattern, "<ip>")
	assert.Contains(t, pattern, "<ip>:<num>")
	assert.Contains(t, pattern, "<num>")
	assert.NotContains(t, pattern, "<uuid>")
}

func TestNormalizeErrorPatternTruncates(t *testing.T) {
	long := ""
	for i := 0; i < 50; i++ {
		long += "word "
	}
	pattern := NormalizeErrorPattern(long)
	assert.LessOrEqual(t, len(pattern), 203)
	assert.Contains(t, pattern, "...")
}
