package checkpoint_test

import (
	"errors"
	"testing"
	"time"

	"clipline/internal/checkpoint"
	"clipline/internal/model"
	"clipline/internal/pipelineerr"
)

func TestSaveAndLoadRoundTrips(t *testing.T) {
	dir := t.TempDir()
	runID := model.NewRunID()

	store := checkpoint.NewStore(dir)
	if err := store.Open(runID); err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer store.Close()

	cp := model.Checkpoint{
		RunID:          runID,
		Stage:          model.StageTranscribe,
		StageProgress:  0.5,
		CompletedItems: []string{"seg-1", "seg-2"},
		CreatedAt:      time.Now(),
		UpdatedAt:      time.Now(),
	}
	if err := store.Save(cp); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded, err := store.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded == nil {
		t.Fatal("expected a checkpoint")
	}
	if loaded.Stage != model.StageTranscribe || len(loaded.CompletedItems) != 2 {
		t.Fatalf("unexpected loaded checkpoint: %+v", loaded)
	}
}

func TestSaveRejectsStageRegression(t *testing.T) {
	dir := t.TempDir()
	runID := model.NewRunID()

	store := checkpoint.NewStore(dir)
	if err := store.Open(runID); err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer store.Close()

	if err := store.Save(model.Checkpoint{RunID: runID, Stage: model.StageAnalyze}); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := store.Save(model.Checkpoint{RunID: runID, Stage: model.StageFetch}); err == nil {
		t.Fatal("expected stage regression to be rejected")
	}
}

func TestOpenRefusesSecondProcess(t *testing.T) {
	dir := t.TempDir()
	runID := model.NewRunID()

	first := checkpoint.NewStore(dir)
	if err := first.Open(runID); err != nil {
		t.Fatalf("first Open: %v", err)
	}
	defer first.Close()

	second := checkpoint.NewStore(dir)
	err := second.Open(runID)
	if err == nil {
		t.Fatal("expected second Open to fail")
	}
	if !errors.Is(pipelineerr.Classify(err), pipelineerr.ErrCorruptState) {
		t.Fatalf("expected corrupt_state classification, got %v", pipelineerr.Classify(err))
	}
}

func TestDeleteRemovesCheckpoint(t *testing.T) {
	dir := t.TempDir()
	runID := model.NewRunID()

	store := checkpoint.NewStore(dir)
	if err := store.Open(runID); err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer store.Close()

	if err := store.Save(model.Checkpoint{RunID: runID, Stage: model.StageFetch}); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := store.Delete(); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	loaded, err := store.Load()
	if err != nil {
		t.Fatalf("Load after delete: %v", err)
	}
	if loaded != nil {
		t.Fatalf("expected nil checkpoint after delete, got %+v", loaded)
	}
}

func TestListIncompleteSkipsTerminalRuns(t *testing.T) {
	dir := t.TempDir()

	active := model.NewRunID()
	done := model.NewRunID()

	activeStore := checkpoint.NewStore(dir)
	if err := activeStore.Open(active); err != nil {
		t.Fatalf("Open active: %v", err)
	}
	if err := activeStore.Save(model.Checkpoint{RunID: active, Stage: model.StageTranslate, UpdatedAt: time.Now()}); err != nil {
		t.Fatalf("Save active: %v", err)
	}
	activeStore.Close()

	doneStore := checkpoint.NewStore(dir)
	if err := doneStore.Open(done); err != nil {
		t.Fatalf("Open done: %v", err)
	}
	if err := doneStore.Save(model.Checkpoint{RunID: done, Stage: model.StageCompleted, UpdatedAt: time.Now()}); err != nil {
		t.Fatalf("Save done: %v", err)
	}
	doneStore.Close()

	incomplete, err := checkpoint.ListIncomplete(dir)
	if err != nil {
		t.Fatalf("ListIncomplete: %v", err)
	}
	if len(incomplete) != 1 || incomplete[0].RunID != active {
		t.Fatalf("expected only the active run, got %+v", incomplete)
	}
}
