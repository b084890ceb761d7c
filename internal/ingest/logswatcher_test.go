package ingest

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gastown-ops/rigwatch/internal/model"
)

type fakeLogSink struct {
	entries []model.LogEntry
}

func (f *fakeLogSink) AddLog(e model.LogEntry) {
	f.entries = append(f.entries, e)
}

func writeLines(t *testing.T, path string, lines []string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0o644))
}

func TestLogsWatcherHandleAddReplaysLastLines(t *testing.T) {
	dir := t.TempDir()
	rigDir := filepath.Join(dir, "alpha", "polecats", "w1")
	require.NoError(t, os.MkdirAll(rigDir, 0o755))
	path := filepath.Join(rigDir, "agent.log")

	lines := make([]string, 0, 60)
	for i := 0; i < 60; i++ {
		lines = append(lines, "line "+strings.Repeat("x", 1)+" "+string(rune('a'+i%26)))
	}
	writeLines(t, path, lines)

	sink := &fakeLogSink{}
	lw := NewLogsWatcher(dir, sink)
	lw.HandleAdd(path)

	assert.Len(t, sink.entries, replayLastLines)
	assert.Equal(t, "alpha", sink.entries[0].Rig)
	assert.Equal(t, "w1", sink.entries[0].Agent)
	assert.Equal(t, "agent", sink.entries[0].LogType)
}

func TestLogsWatcherHandleChangeReadsDelta(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "alpha", "agent.log")
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	writeLines(t, path, []string{"[2026-07-31T00:00:00Z] [info] first"})

	sink := &fakeLogSink{}
	lw := NewLogsWatcher(dir, sink)
	lw.HandleAdd(path)
	require.Len(t, sink.entries, 1)

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	_, err = f.WriteString("[2026-07-31T00:00:01Z] [error] boom\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	lw.HandleChange(path)
	require.Len(t, sink.entries, 2)
	assert.Equal(t, model.LevelError, sink.entries[1].Level)
	assert.Equal(t, "boom", sink.entries[1].Message)
}

func TestLogsWatcherHandleChangeDetectsRotation(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "alpha", "agent.log")
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	writeLines(t, path, []string{"one", "two", "three"})

	sink := &fakeLogSink{}
	lw := NewLogsWatcher(dir, sink)
	lw.HandleAdd(path)
	require.Len(t, sink.entries, 3)

	// Simulate rotation: file truncated and replaced with fewer, shorter bytes.
	writeLines(t, path, []string{"new"})
	lw.HandleChange(path)

	require.Len(t, sink.entries, 4)
	assert.Equal(t, "new", sink.entries[3].Message)
}

func TestDeriveLogContextRigLevel(t *testing.T) {
	rig, agent, logType := deriveLogContext("/gt", "/gt/alpha/poller.log")
	assert.Equal(t, "alpha", rig)
	assert.Empty(t, agent)
	assert.Equal(t, "poller", logType)
}
