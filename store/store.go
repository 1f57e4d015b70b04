// Package store defines checkpoint persistence for task-graph runs and is
// implemented by the memory, file, sqlite, postgres, and redis backends.
package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a run or checkpoint does not exist.
var ErrNotFound = errors.New("checkpoint not found")

// SuspendRecord captures an outstanding suspend: the step awaiting
// resumption and the opaque payload surfaced to the caller.
type SuspendRecord struct {
	Step    string `json:"step"`
	Payload any    `json:"payload"`
}

// Checkpoint is a saved point of a run. It fully determines resumable
// continuation: no in-memory-only data is required to resume.
type Checkpoint struct {
	// ID uniquely identifies this checkpoint.
	ID string `json:"id"`

	// RunID identifies the run this checkpoint belongs to.
	RunID string `json:"run_id"`

	// State is the shared state after the last completed merge.
	State map[string]any `json:"state"`

	// Frontier lists the steps now eligible to run.
	Frontier []string `json:"frontier"`

	// Suspended is non-nil while the run awaits an external input.
	Suspended *SuspendRecord `json:"suspended,omitempty"`

	// CycleCounters holds per-cycle iteration counts, keyed by head step.
	CycleCounters map[string]int `json:"cycle_counters,omitempty"`

	// Step is the scheduler's sequence number at save time.
	Step int `json:"step"`

	// Version increases monotonically per run.
	Version int `json:"version"`

	// Timestamp is when the checkpoint was written.
	Timestamp time.Time `json:"timestamp"`

	// Metadata carries free-form annotations.
	Metadata map[string]any `json:"metadata,omitempty"`
}

// CheckpointStore persists run checkpoints. Implementations must be safe
// for concurrent calls across distinct run ids; per-run saves are
// serialized by the scheduler and are never concurrent for one run id.
type CheckpointStore interface {
	// Save stores a checkpoint.
	Save(ctx context.Context, checkpoint *Checkpoint) error

	// Load retrieves a checkpoint by ID.
	Load(ctx context.Context, checkpointID string) (*Checkpoint, error)

	// Latest returns the highest-version checkpoint for a run, or
	// ErrNotFound if the run has none.
	Latest(ctx context.Context, runID string) (*Checkpoint, error)

	// List returns all checkpoints for a run, oldest first.
	List(ctx context.Context, runID string) ([]*Checkpoint, error)

	// Delete removes a checkpoint.
	Delete(ctx context.Context, checkpointID string) error

	// Clear removes all checkpoints for a run.
	Clear(ctx context.Context, runID string) error
}
