package state

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"

	"github.com/gastown-ops/rigwatch/internal/model"
)

const lockTimeout = 5 * time.Second

// Persist writes the manager's full reconstitutable state (snapshot plus
// change-detection maps) to path, guarded by an exclusive file lock so a
// concurrent reader never observes a partially written file.
//
// Grounded on steveyegge-beads' cmd/bd/jsonl_lock.go use of gofrs/flock
// to serialize JSONL access between writers and readers; rigwatch uses
// the same lock-file-beside-the-data-file convention.
func (m *Manager) Persist(path string) error {
	lockPath := path + ".lock"
	fl := flock.New(lockPath)

	ctx, cancel := context.WithTimeout(context.Background(), lockTimeout)
	defer cancel()
	locked, err := fl.TryLockContext(ctx, 50*time.Millisecond)
	if err != nil {
		return fmt.Errorf("acquiring state lock: %w", err)
	}
	if !locked {
		return fmt.Errorf("acquiring state lock: timed out after %s", lockTimeout)
	}
	defer fl.Unlock()

	ps := m.PersistedState()
	data, err := json.Marshal(ps)
	if err != nil {
		return fmt.Errorf("marshaling state: %w", err)
	}

	tmpPath := path + ".tmp"
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating state directory: %w", err)
	}
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return fmt.Errorf("writing state file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("renaming state file: %w", err)
	}
	return nil
}

// LoadPersisted reads and restores a previously persisted state from
// path. It is a no-op (returning nil) if the file does not exist, so a
// first-ever startup proceeds with empty state.
func (m *Manager) LoadPersisted(path string) error {
	lockPath := path + ".lock"
	fl := flock.New(lockPath)

	ctx, cancel := context.WithTimeout(context.Background(), lockTimeout)
	defer cancel()
	locked, err := fl.TryRLockContext(ctx, 50*time.Millisecond)
	if err != nil {
		return fmt.Errorf("acquiring state lock: %w", err)
	}
	if locked {
		defer fl.Unlock()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("reading state file: %w", err)
	}

	var ps model.PersistedState
	if err := json.Unmarshal(data, &ps); err != nil {
		return fmt.Errorf("unmarshaling state file: %w", err)
	}
	m.Restore(ps)
	return nil
}
