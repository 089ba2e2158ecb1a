package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync/atomic"

	"github.com/gofrs/flock"

	"clipline/internal/checkpoint"
	"clipline/internal/config"
	"clipline/internal/logging"
	"clipline/internal/model"
	"clipline/internal/notifications"
)

// Runner drives one pipeline run to completion. It is satisfied by the
// pipeline coordinator; the daemon depends only on this narrow interface so
// it can be exercised with a fake in tests.
type Runner interface {
	Run(ctx context.Context, sourceURL string) (model.RunID, error)
	Resume(ctx context.Context, runID model.RunID) error
}

// Daemon coordinates background pipeline execution and enforces
// single-instance execution via a lock file.
type Daemon struct {
	cfg      *config.Config
	logger   *slog.Logger
	notifier notifications.Service
	runner   Runner

	checkpointDir string
	lockPath      string
	lock          *flock.Flock

	running atomic.Bool
	cancel  context.CancelFunc
}

// Status represents daemon runtime information.
type Status struct {
	Running       bool
	CheckpointDir string
	LockFilePath  string
}

// New constructs a daemon with initialized dependencies. runner may be nil
// for status-only daemons (e.g. inspecting checkpoints without executing
// pipeline stages).
func New(cfg *config.Config, logger *slog.Logger, notifier notifications.Service, runner Runner) (*Daemon, error) {
	if cfg == nil {
		return nil, errors.New("daemon requires config")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	if notifier == nil {
		notifier = notifications.NewService(cfg)
	}

	checkpointDir := cfg.StateDir("checkpoints")
	lockPath := filepath.Join(cfg.Paths.StateRoot, "cliplined.lock")
	return &Daemon{
		cfg:           cfg,
		logger:        logging.NewComponentLogger(logger, "daemon"),
		notifier:      notifier,
		runner:        runner,
		checkpointDir: checkpointDir,
		lockPath:      lockPath,
		lock:          flock.New(lockPath),
	}, nil
}

// Start acquires the daemon lock. It returns an error if another cliplined
// instance already holds it.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire daemon lock: %w", err)
	}
	if !ok {
		return errors.New("another cliplined instance is already running")
	}

	_, d.cancel = context.WithCancel(ctx)
	d.running.Store(true)
	d.logger.Info("daemon started", logging.String("lock", d.lockPath))
	return nil
}

// Stop cancels the context derived in Start and releases the daemon lock.
// Start hands that context to no work, so Stop does not cancel runs that
// callers started with their own contexts.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.running.Store(false)
	d.logger.Info("daemon stopped")
}

// Close stops the daemon if running. It exists for symmetry with other
// resource-owning components and to satisfy io.Closer-shaped call sites.
func (d *Daemon) Close() error {
	d.Stop()
	return nil
}

// RunURL starts a new pipeline run for sourceURL via the configured Runner.
func (d *Daemon) RunURL(ctx context.Context, sourceURL string) (model.RunID, error) {
	if d.runner == nil {
		return "", errors.New("daemon has no pipeline runner configured")
	}
	runID, err := d.runner.Run(ctx, sourceURL)
	if err != nil {
		_ = d.notifier.Publish(ctx, notifications.EventError, notifications.Payload{
			"stage": "run",
			"error": err.Error(),
		})
		return "", err
	}
	return runID, nil
}

// ResumeRun resumes a previously checkpointed run.
func (d *Daemon) ResumeRun(ctx context.Context, runID model.RunID) error {
	if d.runner == nil {
		return errors.New("daemon has no pipeline runner configured")
	}
	return d.runner.Resume(ctx, runID)
}

// ListIncompleteRuns returns every checkpoint that has not reached a
// terminal stage, most recently updated last.
func (d *Daemon) ListIncompleteRuns(context.Context) ([]model.Checkpoint, error) {
	return checkpoint.ListIncomplete(d.checkpointDir)
}

// TestNotification triggers a test notification using the current
// configuration.
func (d *Daemon) TestNotification(ctx context.Context) (bool, string, error) {
	if d.cfg == nil {
		return false, "configuration unavailable", errors.New("configuration unavailable")
	}
	if d.cfg.Notifications.NtfyTopic == "" {
		return false, "ntfy topic not configured", nil
	}
	if err := d.notifier.Publish(ctx, notifications.EventRunCompleted, notifications.Payload{
		"run_id":   "test",
		"duration": "0s",
	}); err != nil {
		return false, "failed to send notification", err
	}
	return true, "test notification sent", nil
}

// Status returns the current daemon status.
func (d *Daemon) Status() Status {
	return Status{
		Running:       d.running.Load(),
		CheckpointDir: d.checkpointDir,
		LockFilePath:  d.lockPath,
	}
}
