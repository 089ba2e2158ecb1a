package export

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"clipline/internal/logging"
	"clipline/internal/model"
	"clipline/internal/pipelineerr"
	"clipline/internal/resource"
)

const (
	defaultMaxRetries    = 2
	acquireTimeout       = 5 * time.Minute
	defaultParallelLimit = 2
)

// ExportFunc produces one derivative file for a plan item.
type ExportFunc func(ctx context.Context, runID model.RunID, item model.ExportPlanItem) (model.ExportedFile, error)

// Policy configures one ExportBatch call. A MaxRetries of zero or less
// takes the default of 2. ContinueOnError and RetryFailed get no implicit
// default, so a zero Policy does not retry failed requests. ContinueOnError
// does not change how a batch runs: a failed request never stops its
// siblings, whatever its value.
type Policy struct {
	ContinueOnError bool
	RetryFailed     bool
	MaxRetries      int
	OnProgress      func(done, total int)
}

// BatchExporter processes an ExportPlan's items with parallel_exports
// concurrency, gated by a resource.Gate and persisted through a Store so a
// crash mid-batch leaves a resumable record of what already succeeded.
type BatchExporter struct {
	gate   *resource.Gate
	store  *Store
	export ExportFunc
	logger *slog.Logger
}

// New constructs a BatchExporter. gate enforces the parallelism ceiling;
// store persists request state; export performs the actual file production
// for one item.
func New(gate *resource.Gate, store *Store, export ExportFunc, logger *slog.Logger) *BatchExporter {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &BatchExporter{gate: gate, store: store, export: export, logger: logging.NewComponentLogger(logger, "export.batcher")}
}

// ExportBatch enqueues plan's items and processes them concurrently,
// applying policy's retry-failed rule. A failed item never cancels the
// others. It returns once every item has either succeeded or exhausted its
// retries.
func (b *BatchExporter) ExportBatch(ctx context.Context, plan model.ExportPlan, policy Policy) (model.ExportResult, error) {
	if policy.MaxRetries <= 0 {
		policy.MaxRetries = defaultMaxRetries
	}

	requests, err := b.store.EnqueuePlan(ctx, plan)
	if err != nil {
		return model.ExportResult{}, pipelineerr.Wrap(pipelineerr.ErrCorruptState, model.StageExport, "export.enqueue",
			"could not persist export plan", err)
	}

	total := len(requests)
	var (
		mu     sync.Mutex
		wg     sync.WaitGroup
		result model.ExportResult
		done   int
	)

	reportProgress := func() {
		mu.Lock()
		d := done
		mu.Unlock()
		if policy.OnProgress != nil {
			policy.OnProgress(d, total)
		}
	}

	var process func(req Request)
	process = func(req Request) {
		defer wg.Done()

		ticket, err := b.gate.AcquireWithTimeout(ctx, resource.JobExport, acquireTimeout)
		if err != nil {
			b.finishFailure(ctx, req, err, &mu, &result, &done)
			reportProgress()
			return
		}

		_ = b.store.MarkRunning(ctx, req.ID)
		file, execErr := b.export(ctx, req.RunID, req.Item)
		ticket.Release()

		if execErr == nil {
			_ = b.store.MarkSucceeded(ctx, req.ID)
			mu.Lock()
			result.Files = append(result.Files, file)
			result.Successful++
			done++
			mu.Unlock()
			reportProgress()
			return
		}

		attempts, _ := b.store.Attempts(ctx, req.ID)
		if policy.RetryFailed && attempts <= policy.MaxRetries {
			b.logger.Warn("export item failed, retrying",
				logging.String("target_path", req.Item.TargetPath),
				logging.Int("attempt", attempts),
				logging.Error(execErr))
			wg.Add(1)
			go process(req)
			return
		}

		b.finishFailure(ctx, req, execErr, &mu, &result, &done)
		reportProgress()

		if !policy.ContinueOnError {
			return
		}
	}

	for _, req := range requests {
		wg.Add(1)
		go process(req)
	}
	wg.Wait()

	return result, nil
}

func (b *BatchExporter) finishFailure(ctx context.Context, req Request, err error, mu *sync.Mutex, result *model.ExportResult, done *int) {
	_ = b.store.MarkFailed(ctx, req.ID, err.Error())
	mu.Lock()
	result.Failed++
	*done++
	mu.Unlock()
	b.logger.Error("export item failed permanently",
		logging.String("target_path", req.Item.TargetPath),
		logging.Error(err))
}
