package resource_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"clipline/internal/config"
	"clipline/internal/resource"
)

func idleMonitor() *resource.Monitor {
	// A Monitor that is never Start()-ed reports a zero-value Snapshot,
	// which has CPUPercent/MemPercent == 0 and HasGPU == false -- always
	// admissible under any positive ceiling.
	return resource.NewMonitor()
}

func TestCanStartTrueUnderCeilings(t *testing.T) {
	cfg := config.Resource{MaxCPUPercent: 80, MaxMemoryPercent: 70, MaxGPUPercent: 90, MaxParallelExports: 2, MaxParallelEncodes: 1}
	gate := resource.NewGate(cfg, idleMonitor())
	if !gate.CanStart(resource.JobExport) {
		t.Fatal("expected admission under idle snapshot")
	}
}

func TestAcquireRespectsParallelExportCeiling(t *testing.T) {
	cfg := config.Resource{MaxCPUPercent: 80, MaxMemoryPercent: 70, MaxGPUPercent: 90, MaxParallelExports: 2, MaxParallelEncodes: 1}
	gate := resource.NewGate(cfg, idleMonitor())

	t1, err := gate.AcquireWithTimeout(context.Background(), resource.JobExport, time.Second)
	if err != nil {
		t.Fatalf("acquire 1: %v", err)
	}
	t2, err := gate.AcquireWithTimeout(context.Background(), resource.JobExport, time.Second)
	if err != nil {
		t.Fatalf("acquire 2: %v", err)
	}

	if _, err := gate.AcquireWithTimeout(context.Background(), resource.JobExport, 50*time.Millisecond); err == nil {
		t.Fatal("expected third acquire to time out at max_parallel_exports=2")
	}

	t1.Release()
	t3, err := gate.AcquireWithTimeout(context.Background(), resource.JobExport, time.Second)
	if err != nil {
		t.Fatalf("acquire after release: %v", err)
	}
	t2.Release()
	t3.Release()
}

func TestAcquireRespectsEncodeCeiling(t *testing.T) {
	cfg := config.Resource{MaxCPUPercent: 80, MaxMemoryPercent: 70, MaxGPUPercent: 90, MaxParallelExports: 5, MaxParallelEncodes: 1}
	gate := resource.NewGate(cfg, idleMonitor())

	t1, err := gate.AcquireWithTimeout(context.Background(), resource.JobEncode, time.Second)
	if err != nil {
		t.Fatalf("acquire encode 1: %v", err)
	}
	if _, err := gate.AcquireWithTimeout(context.Background(), resource.JobEncode, 50*time.Millisecond); err == nil {
		t.Fatal("expected second encode acquire to time out at max_parallel_encodes=1")
	}
	t1.Release()
}

func TestReleaseIsIdempotent(t *testing.T) {
	cfg := config.Resource{MaxCPUPercent: 80, MaxMemoryPercent: 70, MaxParallelExports: 1}
	gate := resource.NewGate(cfg, idleMonitor())
	ticket, err := gate.AcquireWithTimeout(context.Background(), resource.JobExport, time.Second)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	ticket.Release()
	ticket.Release()
	total, _ := gate.ActiveJobs()
	if total != 0 {
		t.Fatalf("expected 0 active jobs after double release, got %d", total)
	}
}

func TestConcurrentAcquireNeverExceedsCeiling(t *testing.T) {
	cfg := config.Resource{MaxCPUPercent: 80, MaxMemoryPercent: 70, MaxParallelExports: 3}
	gate := resource.NewGate(cfg, idleMonitor())

	var wg sync.WaitGroup
	var mu sync.Mutex
	maxObserved := 0
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ticket, err := gate.AcquireWithTimeout(context.Background(), resource.JobExport, 2*time.Second)
			if err != nil {
				return
			}
			mu.Lock()
			total, _ := gate.ActiveJobs()
			if total > maxObserved {
				maxObserved = total
			}
			mu.Unlock()
			time.Sleep(20 * time.Millisecond)
			ticket.Release()
		}()
	}
	wg.Wait()
	if maxObserved > 3 {
		t.Fatalf("observed %d active jobs, ceiling is 3", maxObserved)
	}
}
