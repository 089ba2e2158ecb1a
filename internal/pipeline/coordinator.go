package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/rand"
	"os"
	"path/filepath"
	"sync"
	"time"

	"clipline/internal/checkpoint"
	"clipline/internal/logging"
	"clipline/internal/model"
	"clipline/internal/notifications"
	"clipline/internal/pipelineerr"
)

const (
	backoffBase   = 1 * time.Second
	backoffFactor = 2
	backoffCap    = 60 * time.Second
)

// Coordinator drives one run at a time through every pipeline stage,
// grounded on the teacher's workflow.Manager: prepare, execute with
// cancellation support, classify, persist, notify, repeated per stage.
// Unlike the teacher's Manager it owns no background poll loop — each Run
// or Resume call drives exactly one run to completion or cancellation.
type Coordinator struct {
	deps   Deps
	logger *slog.Logger

	mu      sync.Mutex
	cancels map[model.RunID]context.CancelFunc
}

// New builds a Coordinator from deps. logger defaults to a no-op logger.
func New(deps Deps, logger *slog.Logger) *Coordinator {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Coordinator{
		deps:    deps,
		logger:  logging.NewComponentLogger(logger, "pipeline.coordinator"),
		cancels: make(map[model.RunID]context.CancelFunc),
	}
}

// Run starts a fresh pipeline run for sourceURL and blocks until it
// completes, fails, or is cancelled. It satisfies daemon.Runner.
func (c *Coordinator) Run(ctx context.Context, sourceURL string) (model.RunID, error) {
	runID := model.NewRunID()
	now := time.Now().UTC()
	initial := model.Checkpoint{
		RunID:     runID,
		Stage:     model.StageFetch,
		CreatedAt: now,
		UpdatedAt: now,
	}
	_, err := c.execute(ctx, runID, sourceURL, initial)
	return runID, err
}

// Resume continues a previously checkpointed run from its last completed
// item boundary. It satisfies daemon.Runner.
func (c *Coordinator) Resume(ctx context.Context, runID model.RunID) error {
	store := checkpoint.NewStore(c.deps.CheckpointDir)
	if err := store.Open(runID); err != nil {
		return err
	}
	saved, err := store.Load()
	if err != nil {
		_ = store.Close()
		return err
	}
	_ = store.Close()
	if saved == nil {
		return pipelineerr.Wrap(pipelineerr.ErrCorruptState, "", "pipeline.resume", "no checkpoint found for run "+string(runID), nil)
	}
	_, err = c.execute(ctx, runID, "", *saved)
	return err
}

// Cancel requests cancellation of runID's in-flight run. It is a no-op if
// the run is not currently active. Idempotent.
func (c *Coordinator) Cancel(runID model.RunID) {
	c.mu.Lock()
	cancel, ok := c.cancels[runID]
	c.mu.Unlock()
	if ok {
		cancel()
	}
}

// RunFromCheckpoint is the spec-named alias for Resume, kept alongside it
// because external callers (cmd/clipline) refer to the operation by this
// name while daemon.Runner's narrower interface calls it Resume.
func (c *Coordinator) RunFromCheckpoint(ctx context.Context, runID model.RunID) (model.Project, error) {
	store := checkpoint.NewStore(c.deps.CheckpointDir)
	if err := store.Open(runID); err != nil {
		return model.Project{}, err
	}
	saved, err := store.Load()
	if err != nil {
		_ = store.Close()
		return model.Project{}, err
	}
	_ = store.Close()
	if saved == nil {
		return model.Project{}, pipelineerr.Wrap(pipelineerr.ErrCorruptState, "", "pipeline.resume", "no checkpoint found for run "+string(runID), nil)
	}
	return c.execute(ctx, runID, "", *saved)
}

func (c *Coordinator) execute(ctx context.Context, runID model.RunID, sourceURL string, start model.Checkpoint) (model.Project, error) {
	store := checkpoint.NewStore(c.deps.CheckpointDir)
	if err := store.Open(runID); err != nil {
		return model.Project{}, err
	}
	defer store.Close()

	runCtx, cancel := context.WithCancel(ctx)
	c.mu.Lock()
	c.cancels[runID] = cancel
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.cancels, runID)
		c.mu.Unlock()
		cancel()
	}()

	run := &runExecution{
		coord:      c,
		runID:      runID,
		store:      store,
		checkpoint: start,
		artifacts:  newArtifactStore(c.deps.TempDir, runID),
	}

	if start.Stage == model.StageFetch && sourceURL != "" {
		run.sourceURL = sourceURL
	}

	project, err := run.drive(runCtx)
	if err != nil {
		c.notify(ctx, notifications.EventError, notifications.Payload{
			"run_id": string(runID),
			"stage":  string(run.checkpoint.Stage),
			"error":  err.Error(),
		})
		return model.Project{}, err
	}

	if c.deps.Config != nil && c.deps.Config.Checkpoint.CleanupOnSuccess {
		_ = store.Delete()
		_ = run.artifacts.removeAll()
	}
	c.notify(ctx, notifications.EventRunCompleted, notifications.Payload{
		"run_id": string(runID),
	})
	return project, nil
}

func (c *Coordinator) notify(ctx context.Context, event notifications.Event, payload notifications.Payload) {
	if c.deps.Notifier == nil {
		return
	}
	_ = c.deps.Notifier.Publish(ctx, event, payload)
}

func (c *Coordinator) reportProgress(runID model.RunID, stage model.Stage, completedWeight, stageProgress float64, message string) {
	if c.deps.OnProgress == nil {
		return
	}
	overall := completedWeight + stage.Weight()*stageProgress
	if overall > 1 {
		overall = 1
	}
	c.deps.OnProgress(runID, stage, overall, message)
}

// retryBudget returns the configured per-stage retry budget: the number of
// retries after a stage's first attempt, defaulting to 3 (spec §9's stage
// retry policy).
func (c *Coordinator) retryBudget() int {
	if c.deps.Config != nil && c.deps.Config.Stage.RetryBudget > 0 {
		return c.deps.Config.Stage.RetryBudget
	}
	return 3
}

// withStageRetry retries fn up to the coordinator's retry budget with full
// jitter exponential backoff, matching llmrouter's backoff shape, and only
// for pipelineerr-classified retryable failures.
func (c *Coordinator) withStageRetry(ctx context.Context, stage model.Stage, fn func() error) error {
	budget := c.retryBudget()
	var lastErr error
	for attempt := 0; attempt <= budget; attempt++ {
		if attempt > 0 {
			delay := backoffDelay(attempt)
			c.logger.Warn("retrying stage after transient failure",
				logging.String("stage", string(stage)),
				logging.Int("attempt", attempt),
				logging.Duration("delay", delay),
				logging.Error(lastErr))
			select {
			case <-ctx.Done():
				return pipelineerr.Wrap(pipelineerr.ErrCancelled, stage, "pipeline.retry", "cancelled during backoff", ctx.Err())
			case <-time.After(delay):
			}
		}
		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err
		if !pipelineerr.Retryable(err) {
			return err
		}
	}
	return lastErr
}

func backoffDelay(attempt int) time.Duration {
	d := backoffBase
	for i := 1; i < attempt; i++ {
		d *= backoffFactor
		if d > backoffCap {
			d = backoffCap
			break
		}
	}
	jittered := time.Duration(rand.Int63n(int64(d) + 1))
	return jittered
}

// runExecution holds the mutable state of a single Run/Resume call: the
// checkpoint under construction and any stage output already recovered
// from a previous attempt.
type runExecution struct {
	coord      *Coordinator
	runID      model.RunID
	store      *checkpoint.Store
	checkpoint model.Checkpoint
	artifacts  *artifactStore
	sourceURL  string
}

// advanceStage advances the checkpoint's stage cursor and persists it,
// resetting per-stage item tracking.
func (r *runExecution) advanceStage(next model.Stage) error {
	now := time.Now().UTC()
	r.checkpoint = model.Checkpoint{
		RunID:          r.runID,
		Stage:          next,
		StageProgress:  0,
		CompletedItems: nil,
		CreatedAt:      r.checkpoint.CreatedAt,
		UpdatedAt:      now,
	}
	return r.store.Save(r.checkpoint)
}

func (r *runExecution) saveItemProgress(item string, progress float64) error {
	r.checkpoint = r.checkpoint.WithCompletedItem(item)
	r.checkpoint.StageProgress = progress
	r.checkpoint.UpdatedAt = time.Now().UTC()
	return r.store.Save(r.checkpoint)
}

// completedWeight sums the static weight of every stage strictly before
// the checkpoint's current stage, the baseline for weighted progress.
func (r *runExecution) completedWeight() float64 {
	var sum float64
	for _, s := range model.Sequence {
		if s == r.checkpoint.Stage {
			break
		}
		sum += s.Weight()
	}
	return sum
}

// artifactStore persists intermediate stage outputs as JSON sidecars under
// the run's temp directory, since model.Checkpoint deliberately carries
// only cursor state (stage, completed items) and not stage payloads. This
// mirrors the checkpoint store's own atomic-JSON-file idiom rather than
// inventing a second persistence mechanism.
type artifactStore struct {
	dir string
}

func newArtifactStore(tempDir string, runID model.RunID) *artifactStore {
	return &artifactStore{dir: filepath.Join(tempDir, string(runID), "artifacts")}
}

func (a *artifactStore) save(name string, v any) error {
	if err := os.MkdirAll(a.dir, 0o755); err != nil {
		return fmt.Errorf("create artifact dir: %w", err)
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal artifact %s: %w", name, err)
	}
	return os.WriteFile(filepath.Join(a.dir, name+".json"), data, 0o644)
}

func (a *artifactStore) load(name string, v any) (bool, error) {
	data, err := os.ReadFile(filepath.Join(a.dir, name+".json"))
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return false, fmt.Errorf("unmarshal artifact %s: %w", name, err)
	}
	return true, nil
}

func (a *artifactStore) removeAll() error {
	return os.RemoveAll(a.dir)
}
