package ingest

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/gastown-ops/rigwatch/internal/model"
)

const stabilityWindow = 100 * time.Millisecond

// EventSink receives derived events and mail records from the File
// Watcher.
type EventSink interface {
	AddEvent(model.Event)
	AddMail(model.MailEvent)
}

// FileWatcher tails append-only event/feed/mail/beads files under
// GT_DIR using fsnotify, re-reading only the lines appended since the
// last observed line count, per spec.md §4.4.2.
//
// Grounded on steveyegge-gastown's ActivityWatcher
// (internal/web/fetcher.go: tailEventsFile) for the "seek to EOF, tail
// new lines, parse each as JSON" idiom, generalized from a single
// `.events.jsonl` file to the full pattern set
// (.events.jsonl/.feed.jsonl/mail/**/.beads/issues.jsonl) and rebuilt on
// fsnotify instead of a polling ticker, since fsnotify is the library
// the pack carries for this concern (steveyegge-beads' storage layer).
type FileWatcher struct {
	root   string
	sink   EventSink
	watcher *fsnotify.Watcher

	mu            sync.Mutex
	lastLineCount map[string]int
	stableTimers  map[string]*time.Timer
}

// NewFileWatcher constructs a watcher rooted at root (GT_DIR).
func NewFileWatcher(root string, sink EventSink) (*FileWatcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &FileWatcher{
		root:          root,
		sink:          sink,
		watcher:       w,
		lastLineCount: map[string]int{},
		stableTimers:  map[string]*time.Timer{},
	}, nil
}

// watchedFile reports whether path matches one of the tracked patterns:
// */.events.jsonl, */.feed.jsonl, per-agent mail/**, */.beads/issues.jsonl.
func watchedFile(path string) bool {
	base := filepath.Base(path)
	switch base {
	case ".events.jsonl", ".feed.jsonl", "issues.jsonl":
		return true
	}
	return strings.Contains(filepath.ToSlash(path), "/mail/")
}

// Run adds root (recursively, one level per rig/agent directory found at
// call time) to the watch list and processes events until stop is closed.
func (fw *FileWatcher) Run(stop <-chan struct{}) error {
	if err := addWatchDirs(fw.watcher, fw.root); err != nil {
		return err
	}
	defer fw.watcher.Close()

	for {
		select {
		case <-stop:
			return nil
		case ev, ok := <-fw.watcher.Events:
			if !ok {
				return nil
			}
			fw.handleFsEvent(ev)
		case <-fw.watcher.Errors:
			// Errors are surfaced via the caller's sink in a fuller
			// build; dropped here to keep the watch loop alive.
		}
	}
}

func addWatchDirs(w *fsnotify.Watcher, root string) error {
	return filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil
		}
		if info.IsDir() {
			_ = w.Add(path)
		}
		return nil
	})
}

func (fw *FileWatcher) handleFsEvent(ev fsnotify.Event) {
	if !watchedFile(ev.Name) {
		return
	}
	if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
		return
	}

	fw.mu.Lock()
	if t, ok := fw.stableTimers[ev.Name]; ok {
		t.Stop()
	}
	fw.stableTimers[ev.Name] = time.AfterFunc(stabilityWindow, func() {
		fw.processFile(ev.Name)
	})
	fw.mu.Unlock()
}

func (fw *FileWatcher) processFile(path string) {
	lines, err := readAllLines(path)
	if err != nil {
		return
	}

	fw.mu.Lock()
	prevCount := fw.lastLineCount[path]
	fw.lastLineCount[path] = len(lines)
	fw.mu.Unlock()

	if prevCount > len(lines) {
		prevCount = 0
	}
	newLines := lines[prevCount:]

	isMail := strings.Contains(filepath.ToSlash(path), "/mail/")
	for _, line := range newLines {
		if line == "" {
			continue
		}
		if isMail {
			fw.emitMail(path, line)
			continue
		}
		fw.emitEvent(line)
	}
}

func (fw *FileWatcher) emitEvent(line string) {
	var raw map[string]interface{}
	if err := json.Unmarshal([]byte(line), &raw); err != nil {
		return
	}
	evtType, _ := raw["type"].(string)
	fw.sink.AddEvent(model.Event{
		Type:      evtType,
		Timestamp: time.Now(),
		Payload:   raw,
	})
}

func (fw *FileWatcher) emitMail(path, content string) string {
	preview := content
	if len(preview) > 100 {
		preview = preview[:100]
	}
	fw.sink.AddMail(model.MailEvent{
		Preview: preview, Path: path, Timestamp: time.Now(),
	})
	return preview
}

func readAllLines(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	return lines, scanner.Err()
}
