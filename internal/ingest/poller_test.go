package ingest

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gastown-ops/rigwatch/internal/model"
)

type fakeStateSink struct {
	rigs    map[string]model.Rig
	agents  map[string][]model.Agent
	beads   map[string][]model.Bead
	hooks   map[string]map[string]model.Hook
	stats   []model.Completion
	errors  []model.ErrorRecord
}

func newFakeStateSink() *fakeStateSink {
	return &fakeStateSink{
		agents: map[string][]model.Agent{},
		beads:  map[string][]model.Bead{},
		hooks:  map[string]map[string]model.Hook{},
	}
}

func (f *fakeStateSink) UpdateRigs(r map[string]model.Rig)             { f.rigs = r }
func (f *fakeStateSink) UpdateAgents(rig string, a []model.Agent)      { f.agents[rig] = a }
func (f *fakeStateSink) UpdateBeads(rig string, b []model.Bead)        { f.beads[rig] = b }
func (f *fakeStateSink) UpdateHooks(rig string, h map[string]model.Hook) { f.hooks[rig] = h }
func (f *fakeStateSink) UpdateAgentStats(key string, c model.Completion) {
	f.stats = append(f.stats, c)
}
func (f *fakeStateSink) AddError(e model.ErrorRecord) model.ErrorRecord {
	f.errors = append(f.errors, e)
	return e
}

type fakeMetricsSink struct {
	observed int
	lastOK   bool
}

func (f *fakeMetricsSink) ObservePoll(d time.Duration, ok bool) {
	f.observed++
	f.lastOK = ok
}

func TestPollRigsSuccess(t *testing.T) {
	sink := newFakeStateSink()
	runner := &fakeRunner{outputs: map[string][]byte{
		"gt|rig|list|--json": []byte(`{"alpha":{"name":"alpha","polecats":1}}`),
	}}
	p := NewPoller(DefaultPollerConfig(""), runner, sink, nil, nil)

	ok := p.pollRigs(context.Background())
	assert.True(t, ok)
	assert.Contains(t, sink.rigs, "alpha")
}

func TestPollRigsRetriesThenRecordsError(t *testing.T) {
	sink := newFakeStateSink()
	runner := &fakeRunner{errs: map[string]error{
		"gt|rig|list|--json": assertError("boom"),
	}}
	cfg := DefaultPollerConfig("")
	cfg.InitialBackoff = time.Millisecond
	cfg.MaxBackoff = 2 * time.Millisecond
	cfg.MaxAttempts = 3
	p := NewPoller(cfg, runner, sink, nil, nil)

	ok := p.pollRigs(context.Background())
	assert.False(t, ok)
	require.Len(t, sink.errors, 1)
	assert.Equal(t, "poll:rigs", sink.errors[0].Source)
	assert.Equal(t, 3, sink.errors[0].RetryCount)
}

func TestPollBeadsForRigTracksCompletionDuration(t *testing.T) {
	sink := newFakeStateSink()
	runner := &fakeRunner{}
	p := NewPoller(DefaultPollerConfig(""), runner, sink, nil, nil)
	p.SetHooksLookup(func(rig string) map[string]model.Hook {
		return map[string]model.Hook{"w1": {Rig: rig, Agent: "w1", Bead: "rw-1"}}
	})

	runner.outputs = map[string][]byte{
		"bd|list|--json": []byte(`[{"id":"rw-1","status":"in_progress"}]`),
	}
	require.NoError(t, p.pollBeadsForRig(context.Background(), "alpha"))

	runner.outputs = map[string][]byte{
		"bd|list|--json": []byte(`[{"id":"rw-1","status":"done"}]`),
	}
	require.NoError(t, p.pollBeadsForRig(context.Background(), "alpha"))

	require.Len(t, sink.stats, 1)
	assert.Equal(t, "rw-1", sink.stats[0].BeadID)
	require.NotNil(t, sink.stats[0].Duration)
}

func TestPollAgentsForRigProbesEachName(t *testing.T) {
	sink := newFakeStateSink()
	runner := &fakeRunner{errs: map[string]error{
		"ps|-eo|pid,args":                        assertError("no ps"),
		"tmux|list-sessions|-F|#{session_name}": assertError("no tmux"),
	}}
	runner.outputs = map[string][]byte{
		"gt|polecat|list|alpha": []byte("w1\nw2\n"),
	}
	p := NewPoller(DefaultPollerConfig(""), runner, sink, nil, nil)

	require.NoError(t, p.pollAgentsForRig(context.Background(), "alpha"))
	require.Len(t, sink.agents["alpha"], 2)
}

func TestListRigDirsFiltersBadNames(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(dir, "alpha"), 0o755))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "bad name"), 0o755))

	rigs, err := listRigDirs(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{"alpha"}, rigs)
}

func TestSplitNonEmptyLines(t *testing.T) {
	assert.Equal(t, []string{"a", "b"}, splitNonEmptyLines("a\n\n  b  \n"))
}

type simpleErr string

func (e simpleErr) Error() string { return string(e) }

func assertError(s string) error { return simpleErr(s) }
