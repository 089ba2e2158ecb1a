package testsupport

import (
	"path/filepath"
	"testing"
	"time"

	"clipline/internal/checkpoint"
	"clipline/internal/export"
	"clipline/internal/model"
)

// MustOpenCheckpointStore opens a checkpoint.Store for runID under dir and
// registers cleanup to release its lock.
func MustOpenCheckpointStore(t testing.TB, dir string, runID model.RunID) *checkpoint.Store {
	t.Helper()

	store := checkpoint.NewStore(dir)
	if err := store.Open(runID); err != nil {
		t.Fatalf("checkpoint.Open: %v", err)
	}
	t.Cleanup(func() {
		_ = store.Close()
	})
	return store
}

// MustOpenExportStore opens an export.Store backed by a fresh SQLite file
// under dir and registers cleanup to close it.
func MustOpenExportStore(t testing.TB, dir string) *export.Store {
	t.Helper()

	store, err := export.OpenStore(filepath.Join(dir, "export.db"))
	if err != nil {
		t.Fatalf("export.OpenStore: %v", err)
	}
	t.Cleanup(func() {
		_ = store.Close()
	})
	return store
}

// NewCheckpoint builds a minimal checkpoint for the given run and stage,
// stamped with the current time.
func NewCheckpoint(runID model.RunID, stage model.Stage) model.Checkpoint {
	now := time.Now()
	return model.Checkpoint{
		RunID:     runID,
		Stage:     stage,
		CreatedAt: now,
		UpdatedAt: now,
	}
}
