package stagerunner

import (
	"context"
	"time"

	"clipline/internal/model"
	"clipline/internal/pipelineerr"
)

// progressThrottle is spec §4.2's "one callback per 200ms" ceiling.
const progressThrottle = 200 * time.Millisecond

// defaultMinSuccessRate is used when Options.MinSuccessRate is unset.
const defaultMinSuccessRate = 0.90

// Status classifies a completed stage run's overall outcome.
type Status string

const (
	StatusSuccess Status = "SUCCESS"
	StatusPartial Status = "PARTIAL"
	StatusFailed  Status = "FAILED"
)

// ItemOutcome is one item's result from a WorkerFunc.
type ItemOutcome struct {
	Item   string
	Output any
	Err    error
}

// WorkerFunc processes a single item. It must return promptly after ctx is
// cancelled; StageRunner does not forcibly interrupt it.
type WorkerFunc func(ctx context.Context, item string) (any, error)

// ProgressFunc receives stage-relative progress in [0,1] and the item
// currently being processed. Calls are throttled to progressThrottle.
type ProgressFunc func(stageProgress float64, currentItem string)

// CheckpointFunc is invoked after each item completes (success or failure)
// so the caller can persist an updated checkpoint. Returning an error aborts
// the run with that error.
type CheckpointFunc func(completedItem string, outcome ItemOutcome) error

// Options configures one Run call.
type Options struct {
	MinSuccessRate float64
	OnProgress     ProgressFunc
	OnItemDone     CheckpointFunc
}

// Result is the outcome of running every item in a stage.
type Result struct {
	Status    Status
	Succeeded []ItemOutcome
	Failed    []ItemOutcome
}

// Run executes worker over items in order, skipping any already present in
// checkpoint.CompletedItems, polling ctx for cancellation between items, and
// reporting throttled progress. It never itself writes to a checkpoint
// store; Options.OnItemDone is the caller's hook for durability.
func Run(ctx context.Context, items []string, worker WorkerFunc, checkpoint model.Checkpoint, opts Options) (Result, error) {
	minRate := opts.MinSuccessRate
	if minRate <= 0 {
		minRate = defaultMinSuccessRate
	}

	pending := make([]string, 0, len(items))
	for _, item := range items {
		if !checkpoint.HasCompleted(item) {
			pending = append(pending, item)
		}
	}

	var result Result
	lastEmit := time.Time{}
	total := len(items)
	done := total - len(pending)

	emit := func(force bool, currentItem string) {
		if opts.OnProgress == nil {
			return
		}
		if !force && time.Since(lastEmit) < progressThrottle {
			return
		}
		lastEmit = time.Now()
		progress := 1.0
		if total > 0 {
			progress = float64(done) / float64(total)
		}
		opts.OnProgress(progress, currentItem)
	}

	emit(true, "")

	for _, item := range pending {
		select {
		case <-ctx.Done():
			return result, pipelineerr.Wrap(pipelineerr.ErrCancelled, checkpoint.Stage, "stagerunner.run",
				"cancelled before item "+item, ctx.Err())
		default:
		}

		emit(false, item)
		output, err := worker(ctx, item)
		outcome := ItemOutcome{Item: item, Output: output, Err: err}
		done++

		if err != nil {
			result.Failed = append(result.Failed, outcome)
		} else {
			result.Succeeded = append(result.Succeeded, outcome)
		}

		if opts.OnItemDone != nil {
			if hookErr := opts.OnItemDone(item, outcome); hookErr != nil {
				return result, hookErr
			}
		}
		emit(done == total, item)
	}

	result.Status = classify(len(items), len(result.Failed), minRate)
	return result, nil
}

func classify(total, failed int, minSuccessRate float64) Status {
	if total == 0 || failed == 0 {
		return StatusSuccess
	}
	successRate := float64(total-failed) / float64(total)
	if successRate >= minSuccessRate {
		return StatusPartial
	}
	return StatusFailed
}
