// Package memory provides an in-memory CheckpointStore for tests and
// single-process runs.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/draftforge/taskgraph/store"
)

// MemoryCheckpointStore keeps checkpoints in process memory. Safe for
// concurrent use; contents are lost when the process exits.
type MemoryCheckpointStore struct {
	mu          sync.RWMutex
	checkpoints map[string]*store.Checkpoint // checkpoint ID -> checkpoint
	byRun       map[string][]string          // run ID -> checkpoint IDs in save order
}

// NewMemoryCheckpointStore creates an empty in-memory store.
func NewMemoryCheckpointStore() *MemoryCheckpointStore {
	return &MemoryCheckpointStore{
		checkpoints: make(map[string]*store.Checkpoint),
		byRun:       make(map[string][]string),
	}
}

// Save stores a checkpoint.
func (m *MemoryCheckpointStore) Save(_ context.Context, checkpoint *store.Checkpoint) error {
	if checkpoint == nil || checkpoint.ID == "" {
		return fmt.Errorf("checkpoint must have an ID")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *checkpoint
	if _, exists := m.checkpoints[checkpoint.ID]; !exists {
		m.byRun[checkpoint.RunID] = append(m.byRun[checkpoint.RunID], checkpoint.ID)
	}
	m.checkpoints[checkpoint.ID] = &cp
	return nil
}

// Load retrieves a checkpoint by ID.
func (m *MemoryCheckpointStore) Load(_ context.Context, checkpointID string) (*store.Checkpoint, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	cp, ok := m.checkpoints[checkpointID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", store.ErrNotFound, checkpointID)
	}
	out := *cp
	return &out, nil
}

// Latest returns the highest-version checkpoint for a run.
func (m *MemoryCheckpointStore) Latest(_ context.Context, runID string) (*store.Checkpoint, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ids := m.byRun[runID]
	if len(ids) == 0 {
		return nil, fmt.Errorf("%w: run %s", store.ErrNotFound, runID)
	}

	var latest *store.Checkpoint
	for _, id := range ids {
		cp := m.checkpoints[id]
		if latest == nil || cp.Version > latest.Version {
			latest = cp
		}
	}
	out := *latest
	return &out, nil
}

// List returns all checkpoints for a run, oldest version first.
func (m *MemoryCheckpointStore) List(_ context.Context, runID string) ([]*store.Checkpoint, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ids := m.byRun[runID]
	out := make([]*store.Checkpoint, 0, len(ids))
	for _, id := range ids {
		cp := *m.checkpoints[id]
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Version < out[j].Version })
	return out, nil
}

// Delete removes a checkpoint.
func (m *MemoryCheckpointStore) Delete(_ context.Context, checkpointID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp, ok := m.checkpoints[checkpointID]
	if !ok {
		return nil
	}
	delete(m.checkpoints, checkpointID)

	ids := m.byRun[cp.RunID]
	for i, id := range ids {
		if id == checkpointID {
			m.byRun[cp.RunID] = append(ids[:i], ids[i+1:]...)
			break
		}
	}
	return nil
}

// Clear removes all checkpoints for a run.
func (m *MemoryCheckpointStore) Clear(_ context.Context, runID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, id := range m.byRun[runID] {
		delete(m.checkpoints, id)
	}
	delete(m.byRun, runID)
	return nil
}

var _ store.CheckpointStore = (*MemoryCheckpointStore)(nil)
