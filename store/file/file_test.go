package file

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/draftforge/taskgraph/store"
)

func checkpoint(id, runID string, version int) *store.Checkpoint {
	return &store.Checkpoint{
		ID:        id,
		RunID:     runID,
		State:     map[string]any{"draft": "the document", "approved": version > 1},
		Frontier:  []string{"publish"},
		Suspended: &store.SuspendRecord{Step: "confirm", Payload: "confirm?"},
		CycleCounters: map[string]int{
			"review": version,
		},
		Step:      version,
		Version:   version,
		Timestamp: time.Now().UTC().Truncate(time.Second),
	}
}

func TestFileCheckpointStore_New(t *testing.T) {
	t.Parallel()

	t.Run("creates directory if missing", func(t *testing.T) {
		t.Parallel()
		dir := filepath.Join(t.TempDir(), "checkpoints")

		fs, err := NewFileCheckpointStore(dir)
		if err != nil {
			t.Fatalf("Failed to create store: %v", err)
		}
		if fs == nil {
			t.Fatal("Store should not be nil")
		}
		if _, err := os.Stat(dir); os.IsNotExist(err) {
			t.Error("Directory should have been created")
		}
	})

	t.Run("works with existing directory", func(t *testing.T) {
		t.Parallel()
		if _, err := NewFileCheckpointStore(t.TempDir()); err != nil {
			t.Fatalf("Failed to create store: %v", err)
		}
	})
}

func TestFileCheckpointStore_SaveAndLoad(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	fs, err := NewFileCheckpointStore(t.TempDir())
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}

	cp := checkpoint("cp-1", "run-1", 1)
	if err := fs.Save(ctx, cp); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	loaded, err := fs.Load(ctx, "cp-1")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if loaded.RunID != "run-1" {
		t.Errorf("RunID = %q, want %q", loaded.RunID, "run-1")
	}
	if loaded.Suspended == nil || loaded.Suspended.Step != "confirm" {
		t.Errorf("suspend record not round-tripped: %+v", loaded.Suspended)
	}
	if loaded.CycleCounters["review"] != 1 {
		t.Errorf("cycle counters not round-tripped: %+v", loaded.CycleCounters)
	}
	if got := loaded.State["draft"]; got != "the document" {
		t.Errorf("State[draft] = %v, want %q", got, "the document")
	}

	if _, err := fs.Load(ctx, "missing"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("Load of missing checkpoint = %v, want ErrNotFound", err)
	}
}

func TestFileCheckpointStore_LatestAndList(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	fs, err := NewFileCheckpointStore(t.TempDir())
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}

	for _, v := range []int{2, 3, 1} {
		if err := fs.Save(ctx, checkpoint(fmt.Sprintf("cp-%d", v), "run-1", v)); err != nil {
			t.Fatalf("Save failed: %v", err)
		}
	}
	if err := fs.Save(ctx, checkpoint("cp-other", "run-2", 7)); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	latest, err := fs.Latest(ctx, "run-1")
	if err != nil {
		t.Fatalf("Latest failed: %v", err)
	}
	if latest.Version != 3 {
		t.Errorf("Latest version = %d, want 3", latest.Version)
	}

	list, err := fs.List(ctx, "run-1")
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(list) != 3 {
		t.Fatalf("List returned %d checkpoints, want 3", len(list))
	}
	for i, cp := range list {
		if cp.Version != i+1 {
			t.Errorf("list[%d].Version = %d, want %d", i, cp.Version, i+1)
		}
	}

	if _, err := fs.Latest(ctx, "missing"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("Latest for unknown run = %v, want ErrNotFound", err)
	}
}

func TestFileCheckpointStore_DeleteAndClear(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	fs, err := NewFileCheckpointStore(t.TempDir())
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}

	for v := 1; v <= 2; v++ {
		if err := fs.Save(ctx, checkpoint(fmt.Sprintf("cp-%d", v), "run-1", v)); err != nil {
			t.Fatalf("Save failed: %v", err)
		}
	}

	if err := fs.Delete(ctx, "cp-1"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if err := fs.Delete(ctx, "cp-1"); err != nil {
		t.Errorf("Delete of missing checkpoint should be a no-op, got %v", err)
	}

	if err := fs.Clear(ctx, "run-1"); err != nil {
		t.Fatalf("Clear failed: %v", err)
	}
	list, err := fs.List(ctx, "run-1")
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(list) != 0 {
		t.Errorf("List after clear returned %d checkpoints, want 0", len(list))
	}
}

func TestFileCheckpointStore_Overwrite(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	fs, err := NewFileCheckpointStore(t.TempDir())
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}

	cp := checkpoint("cp-1", "run-1", 1)
	if err := fs.Save(ctx, cp); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	cp.Version = 5
	if err := fs.Save(ctx, cp); err != nil {
		t.Fatalf("Re-save failed: %v", err)
	}

	loaded, err := fs.Load(ctx, "cp-1")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if loaded.Version != 5 {
		t.Errorf("Version after overwrite = %d, want 5", loaded.Version)
	}
}
