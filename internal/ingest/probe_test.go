package ingest

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gastown-ops/rigwatch/internal/model"
)

type fakeRunner struct {
	outputs map[string][]byte
	errs    map[string]error
}

func (f *fakeRunner) key(name string, args ...string) string {
	s := name
	for _, a := range args {
		s += "|" + a
	}
	return s
}

func (f *fakeRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	k := f.key(name, args...)
	if err, ok := f.errs[k]; ok {
		return nil, err
	}
	return f.outputs[k], nil
}

func TestProbeAgentStatusRejectsBadIdentifiers(t *testing.T) {
	status := ProbeAgentStatus(context.Background(), &fakeRunner{}, "ok", "bad;name", "")
	assert.Equal(t, model.AgentUnknown, status)
}

func TestProbeAgentStatusProcessPresent(t *testing.T) {
	r := &fakeRunner{outputs: map[string][]byte{
		"ps|-eo|pid,args": []byte("1 [GAS TOWN] alpha/w1"),
	}}
	status := ProbeAgentStatus(context.Background(), r, "alpha", "w1", "")
	assert.Equal(t, model.AgentRunning, status)
}

func TestProbeAgentStatusSessionPresent(t *testing.T) {
	r := &fakeRunner{
		outputs: map[string][]byte{
			"tmux|list-sessions|-F|#{session_name}": []byte("gt-alpha-w1\nother"),
		},
		errs: map[string]error{
			"ps|-eo|pid,args": errors.New("no ps"),
		},
	}
	status := ProbeAgentStatus(context.Background(), r, "alpha", "w1", "")
	assert.Equal(t, model.AgentRunning, status)
}

func TestProbeAgentStatusRecentActivityFallback(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".events.jsonl"), []byte("{}"), 0o644))

	r := &fakeRunner{errs: map[string]error{
		"ps|-eo|pid,args":                        errors.New("no ps"),
		"tmux|list-sessions|-F|#{session_name}": errors.New("no tmux"),
	}}
	status := ProbeAgentStatus(context.Background(), r, "alpha", "w1", dir)
	assert.Equal(t, model.AgentIdle, status)
}

func TestProbeAgentStatusStoppedWhenNoSignal(t *testing.T) {
	dir := t.TempDir()
	old := time.Now().Add(-2 * time.Hour)
	path := filepath.Join(dir, ".events.jsonl")
	require.NoError(t, os.WriteFile(path, []byte("{}"), 0o644))
	require.NoError(t, os.Chtimes(path, old, old))

	r := &fakeRunner{errs: map[string]error{
		"ps|-eo|pid,args":                        errors.New("no ps"),
		"tmux|list-sessions|-F|#{session_name}": errors.New("no tmux"),
	}}
	status := ProbeAgentStatus(context.Background(), r, "alpha", "w1", dir)
	assert.Equal(t, model.AgentStopped, status)
}
