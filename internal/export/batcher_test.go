package export_test

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"clipline/internal/config"
	"clipline/internal/export"
	"clipline/internal/model"
	"clipline/internal/resource"
	"clipline/internal/testsupport"
)

func idleGate(t testing.TB, cfg config.Resource) *resource.Gate {
	t.Helper()
	return resource.NewGate(cfg, resource.NewMonitor())
}

func plan(n int) model.ExportPlan {
	items := make([]model.ExportPlanItem, n)
	for i := range items {
		items[i] = model.ExportPlanItem{
			Type:       model.ExportFileShort,
			SourcePath: fmt.Sprintf("clip_%d.mp4", i),
			TargetPath: fmt.Sprintf("out_%d.mp4", i),
		}
	}
	return model.ExportPlan{RunID: model.RunID("run-1"), Items: items}
}

func TestExportBatchRespectsParallelLimit(t *testing.T) {
	cfg := config.Resource{MaxCPUPercent: 80, MaxMemoryPercent: 70, MaxParallelExports: 2, MaxParallelEncodes: 1}
	gate := idleGate(t, cfg)
	store := testsupport.MustOpenExportStore(t, t.TempDir())

	var (
		active      int32
		maxObserved int32
	)
	exportFn := func(ctx context.Context, runID model.RunID, item model.ExportPlanItem) (model.ExportedFile, error) {
		n := atomic.AddInt32(&active, 1)
		for {
			cur := atomic.LoadInt32(&maxObserved)
			if n <= cur || atomic.CompareAndSwapInt32(&maxObserved, cur, n) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		atomic.AddInt32(&active, -1)
		return model.ExportedFile{Type: item.Type, Path: item.TargetPath}, nil
	}

	batcher := export.New(gate, store, exportFn, nil)
	result, err := batcher.ExportBatch(context.Background(), plan(8), export.Policy{ContinueOnError: true})
	if err != nil {
		t.Fatalf("ExportBatch returned error: %v", err)
	}
	if result.Successful != 8 {
		t.Fatalf("expected 8 successful exports, got %d", result.Successful)
	}
	if maxObserved > 2 {
		t.Fatalf("observed %d concurrent exports, ceiling is max_parallel_exports=2", maxObserved)
	}
}

func TestExportBatchRetriesFailedItemsUpToMaxRetries(t *testing.T) {
	cfg := config.Resource{MaxCPUPercent: 80, MaxMemoryPercent: 70, MaxParallelExports: 2, MaxParallelEncodes: 1}
	gate := idleGate(t, cfg)
	store := testsupport.MustOpenExportStore(t, t.TempDir())

	var mu sync.Mutex
	attempts := map[string]int{}
	exportFn := func(ctx context.Context, runID model.RunID, item model.ExportPlanItem) (model.ExportedFile, error) {
		mu.Lock()
		attempts[item.TargetPath]++
		n := attempts[item.TargetPath]
		mu.Unlock()
		if n < 2 {
			return model.ExportedFile{}, fmt.Errorf("transient failure")
		}
		return model.ExportedFile{Type: item.Type, Path: item.TargetPath}, nil
	}

	batcher := export.New(gate, store, exportFn, nil)
	result, err := batcher.ExportBatch(context.Background(), plan(1), export.Policy{RetryFailed: true, MaxRetries: 2})
	if err != nil {
		t.Fatalf("ExportBatch returned error: %v", err)
	}
	if result.Successful != 1 || result.Failed != 0 {
		t.Fatalf("expected item to succeed after retry, got successful=%d failed=%d", result.Successful, result.Failed)
	}
}

func TestExportBatchGivesUpAfterMaxRetries(t *testing.T) {
	cfg := config.Resource{MaxCPUPercent: 80, MaxMemoryPercent: 70, MaxParallelExports: 2, MaxParallelEncodes: 1}
	gate := idleGate(t, cfg)
	store := testsupport.MustOpenExportStore(t, t.TempDir())

	exportFn := func(ctx context.Context, runID model.RunID, item model.ExportPlanItem) (model.ExportedFile, error) {
		return model.ExportedFile{}, fmt.Errorf("permanent failure")
	}

	batcher := export.New(gate, store, exportFn, nil)
	result, err := batcher.ExportBatch(context.Background(), plan(1), export.Policy{RetryFailed: true, MaxRetries: 2, ContinueOnError: true})
	if err != nil {
		t.Fatalf("ExportBatch returned error: %v", err)
	}
	if result.Failed != 1 || result.Successful != 0 {
		t.Fatalf("expected item to be marked permanently failed, got successful=%d failed=%d", result.Successful, result.Failed)
	}
}
