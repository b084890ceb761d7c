package ingest

import (
	"bufio"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/gastown-ops/rigwatch/internal/model"
	"github.com/gastown-ops/rigwatch/internal/parse"
)

const replayLastLines = 50

// LogSink receives parsed log entries from the Logs Watcher.
type LogSink interface {
	AddLog(model.LogEntry)
}

// LogsWatcher tails arbitrary log files by byte offset, detecting
// truncation/rotation by comparing the new file size against the
// recorded offset, per spec.md §4.4.3.
//
// Grounded on the same steveyegge-gastown fetcher.go tailing idiom as
// FileWatcher, generalized to byte-offset tracking (rather than line
// count) because log files are free text, not JSONL.
type LogsWatcher struct {
	root string
	sink LogSink

	mu      sync.Mutex
	offsets map[string]int64
}

// NewLogsWatcher constructs a watcher rooted at root.
func NewLogsWatcher(root string, sink LogSink) *LogsWatcher {
	return &LogsWatcher{root: root, sink: sink, offsets: map[string]int64{}}
}

// HandleAdd initializes the offset for path at its current size and
// replays the last replayLastLines lines for context.
func (lw *LogsWatcher) HandleAdd(path string) {
	info, err := os.Stat(path)
	if err != nil {
		return
	}

	lw.mu.Lock()
	lw.offsets[path] = info.Size()
	lw.mu.Unlock()

	lines, err := readAllLines(path)
	if err != nil {
		return
	}
	start := 0
	if len(lines) > replayLastLines {
		start = len(lines) - replayLastLines
	}
	for _, line := range lines[start:] {
		lw.emit(path, line)
	}
}

// HandleChange reads the delta since the recorded offset, resetting to
// zero first if the file shrank (rotation detected).
func (lw *LogsWatcher) HandleChange(path string) {
	info, err := os.Stat(path)
	if err != nil {
		return
	}

	lw.mu.Lock()
	offset := lw.offsets[path]
	if info.Size() < offset {
		offset = 0
	}
	lw.mu.Unlock()

	f, err := os.Open(path)
	if err != nil {
		return
	}
	defer f.Close()

	if _, err := f.Seek(offset, 0); err != nil {
		return
	}

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		lw.emit(path, scanner.Text())
	}

	newOffset := info.Size()
	lw.mu.Lock()
	lw.offsets[path] = newOffset
	lw.mu.Unlock()
}

func (lw *LogsWatcher) emit(path, line string) {
	if strings.TrimSpace(line) == "" {
		return
	}
	rig, agent, logType := deriveLogContext(lw.root, path)
	entry := parse.ParseLogLine(line, time.Now())
	entry.Rig = rig
	entry.Agent = agent
	entry.LogType = logType
	entry.Source = path
	lw.sink.AddLog(entry)
}

// deriveLogContext infers {rig, agent, logType} from a log file's path
// relative to root, assuming the GT_DIR convention
// <rig>/polecats/<agent>/<logType>.log (or <rig>/<logType>.log for
// rig-level logs).
func deriveLogContext(root, path string) (rig, agent, logType string) {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		rel = path
	}
	parts := strings.Split(filepath.ToSlash(rel), "/")
	logType = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))

	if len(parts) == 0 {
		return "", "", logType
	}
	rig = parts[0]
	if len(parts) >= 3 && (parts[1] == "polecats" || parts[1] == "crew") {
		agent = parts[2]
	}
	return rig, agent, logType
}

// Run wires an fsnotify watcher rooted at root to HandleAdd/HandleChange
// for files with a .log extension, blocking until stop is closed.
func (lw *LogsWatcher) Run(stop <-chan struct{}) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()
	if err := addWatchDirs(w, lw.root); err != nil {
		return err
	}

	for {
		select {
		case <-stop:
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Ext(ev.Name) != ".log" {
				continue
			}
			switch {
			case ev.Op&fsnotify.Create != 0:
				lw.HandleAdd(ev.Name)
			case ev.Op&fsnotify.Write != 0:
				lw.HandleChange(ev.Name)
			}
		case <-w.Errors:
		}
	}
}
