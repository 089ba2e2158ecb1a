package daemon_test

import (
	"context"
	"testing"

	"clipline/internal/daemon"
	"clipline/internal/model"
	"clipline/internal/testsupport"
)

type fakeRunner struct {
	runCalls    int
	resumeCalls int
	runErr      error
}

func (f *fakeRunner) Run(context.Context, string) (model.RunID, error) {
	f.runCalls++
	if f.runErr != nil {
		return "", f.runErr
	}
	return model.NewRunID(), nil
}

func (f *fakeRunner) Resume(context.Context, model.RunID) error {
	f.resumeCalls++
	return nil
}

func TestStartAcquiresLockAndStopReleasesIt(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	d, err := daemon.New(cfg, nil, nil, &fakeRunner{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if !d.Status().Running {
		t.Fatal("expected daemon to report running")
	}

	second, err := daemon.New(cfg, nil, nil, &fakeRunner{})
	if err != nil {
		t.Fatalf("New second: %v", err)
	}
	if err := second.Start(context.Background()); err == nil {
		t.Fatal("expected second daemon to fail acquiring the lock")
	}

	d.Stop()
	if d.Status().Running {
		t.Fatal("expected daemon to report stopped")
	}
}

func TestRunURLDelegatesToRunner(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	runner := &fakeRunner{}
	d, err := daemon.New(cfg, nil, nil, runner)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if _, err := d.RunURL(context.Background(), "https://example.com/video"); err != nil {
		t.Fatalf("RunURL: %v", err)
	}
	if runner.runCalls != 1 {
		t.Fatalf("expected 1 run call, got %d", runner.runCalls)
	}
}

func TestListIncompleteRunsEmptyByDefault(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	d, err := daemon.New(cfg, nil, nil, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	runs, err := d.ListIncompleteRuns(context.Background())
	if err != nil {
		t.Fatalf("ListIncompleteRuns: %v", err)
	}
	if len(runs) != 0 {
		t.Fatalf("expected no runs, got %d", len(runs))
	}
}
