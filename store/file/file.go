// Package file provides a CheckpointStore that writes each checkpoint as
// a JSON file on disk. It needs no external services and is a reasonable
// default for CLI pipelines whose runs must survive restarts.
package file

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/draftforge/taskgraph/store"
)

// FileCheckpointStore persists checkpoints as one JSON file per
// checkpoint under a base directory.
type FileCheckpointStore struct {
	mu  sync.RWMutex
	dir string
}

// NewFileCheckpointStore creates the base directory if needed.
func NewFileCheckpointStore(dir string) (*FileCheckpointStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create checkpoint directory: %w", err)
	}
	return &FileCheckpointStore{dir: dir}, nil
}

func (f *FileCheckpointStore) path(checkpointID string) string {
	return filepath.Join(f.dir, checkpointID+".json")
}

// Save stores a checkpoint. The write goes to a temp file first so a
// crash mid-write never leaves a truncated checkpoint behind.
func (f *FileCheckpointStore) Save(_ context.Context, checkpoint *store.Checkpoint) error {
	if checkpoint == nil || checkpoint.ID == "" {
		return fmt.Errorf("checkpoint must have an ID")
	}

	data, err := json.MarshalIndent(checkpoint, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal checkpoint: %w", err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	tmp, err := os.CreateTemp(f.dir, checkpoint.ID+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to write checkpoint: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to close checkpoint file: %w", err)
	}
	if err := os.Rename(tmp.Name(), f.path(checkpoint.ID)); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to finalize checkpoint file: %w", err)
	}
	return nil
}

// Load retrieves a checkpoint by ID.
func (f *FileCheckpointStore) Load(_ context.Context, checkpointID string) (*store.Checkpoint, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	return f.read(f.path(checkpointID))
}

// Latest returns the highest-version checkpoint for a run.
func (f *FileCheckpointStore) Latest(ctx context.Context, runID string) (*store.Checkpoint, error) {
	checkpoints, err := f.List(ctx, runID)
	if err != nil {
		return nil, err
	}
	if len(checkpoints) == 0 {
		return nil, fmt.Errorf("%w: run %s", store.ErrNotFound, runID)
	}
	return checkpoints[len(checkpoints)-1], nil
}

// List returns all checkpoints for a run, oldest version first.
func (f *FileCheckpointStore) List(_ context.Context, runID string) ([]*store.Checkpoint, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	entries, err := os.ReadDir(f.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read checkpoint directory: %w", err)
	}

	var checkpoints []*store.Checkpoint
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		cp, err := f.read(filepath.Join(f.dir, entry.Name()))
		if err != nil {
			return nil, err
		}
		if cp.RunID == runID {
			checkpoints = append(checkpoints, cp)
		}
	}
	sort.Slice(checkpoints, func(i, j int) bool {
		return checkpoints[i].Version < checkpoints[j].Version
	})
	return checkpoints, nil
}

// Delete removes a checkpoint. Deleting a missing checkpoint is not an
// error.
func (f *FileCheckpointStore) Delete(_ context.Context, checkpointID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := os.Remove(f.path(checkpointID)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete checkpoint: %w", err)
	}
	return nil
}

// Clear removes all checkpoints for a run.
func (f *FileCheckpointStore) Clear(ctx context.Context, runID string) error {
	checkpoints, err := f.List(ctx, runID)
	if err != nil {
		return err
	}
	for _, cp := range checkpoints {
		if err := f.Delete(ctx, cp.ID); err != nil {
			return err
		}
	}
	return nil
}

func (f *FileCheckpointStore) read(path string) (*store.Checkpoint, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", store.ErrNotFound, strings.TrimSuffix(filepath.Base(path), ".json"))
		}
		return nil, fmt.Errorf("failed to read checkpoint: %w", err)
	}
	var cp store.Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return nil, fmt.Errorf("failed to unmarshal checkpoint: %w", err)
	}
	return &cp, nil
}

var _ store.CheckpointStore = (*FileCheckpointStore)(nil)
