package resource

import (
	"context"
	"sync"
	"time"

	"clipline/internal/config"
	"clipline/internal/model"
	"clipline/internal/pipelineerr"
)

// JobKind names the category of subprocess a Gate ticket authorizes.
// Encode jobs are throttled more tightly than the general export pool.
type JobKind string

const (
	JobEncode JobKind = "encode"
	JobExport JobKind = "export"
	JobFetch  JobKind = "fetch"
)

// pollInterval is how often AcquireWithTimeout re-evaluates the admission
// predicate while waiting.
const pollInterval = 1 * time.Second

// Ticket represents one admitted job slot. Release is mandatory; a leaked
// ticket permanently occupies a slot in the registry.
type Ticket struct {
	kind    JobKind
	gate    *Gate
	release sync.Once
}

// Release frees the slot the ticket holds. Safe to call more than once.
func (t *Ticket) Release() {
	if t == nil {
		return
	}
	t.release.Do(func() {
		t.gate.mu.Lock()
		t.gate.active--
		if t.kind == JobEncode {
			t.gate.activeEncodes--
		}
		t.gate.mu.Unlock()
	})
}

// Gate is the admission controller described in spec §4.8: a predicate over
// a live Monitor snapshot plus an active-job registry, both guarded by a
// single mutex so registration and predicate evaluation never race.
type Gate struct {
	cfg     config.Resource
	monitor *Monitor

	mu            sync.Mutex
	active        int
	activeEncodes int
}

// NewGate builds a Gate reading ceilings from cfg and live samples from
// monitor. monitor must already be started by the caller; wiring.Build
// starts it and Bundle.Close stops it.
func NewGate(cfg config.Resource, monitor *Monitor) *Gate {
	return &Gate{cfg: cfg, monitor: monitor}
}

// CanStart reports whether every admission condition holds right now. It
// takes no lock beyond the registry read, matching spec §4.8's requirement
// that ticket-returning callers observe the predicate true at the instant
// of return.
func (g *Gate) CanStart(kind JobKind) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.canStartLocked(kind)
}

func (g *Gate) canStartLocked(kind JobKind) bool {
	snap := g.monitor.Snapshot()

	maxCPU := orDefault(g.cfg.MaxCPUPercent, 80)
	maxMem := orDefault(g.cfg.MaxMemoryPercent, 70)
	maxGPU := orDefault(g.cfg.MaxGPUPercent, 90)
	maxExports := orDefaultInt(g.cfg.MaxParallelExports, 2)
	maxEncodes := orDefaultInt(g.cfg.MaxParallelEncodes, 1)

	if snap.CPUPercent >= maxCPU {
		return false
	}
	if snap.MemPercent >= maxMem {
		return false
	}
	if snap.HasGPU && snap.GPUPercent >= maxGPU {
		return false
	}
	if g.active >= maxExports {
		return false
	}
	if kind == JobEncode && g.activeEncodes >= maxEncodes {
		return false
	}
	return true
}

// AcquireWithTimeout blocks, polling every second, until CanStart(kind)
// holds and a slot is reserved, or until timeout elapses. On success it
// returns a Ticket whose Release must be called exactly once when the job
// finishes.
func (g *Gate) AcquireWithTimeout(ctx context.Context, kind JobKind, timeout time.Duration) (*Ticket, error) {
	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		g.mu.Lock()
		if g.canStartLocked(kind) {
			g.active++
			if kind == JobEncode {
				g.activeEncodes++
			}
			g.mu.Unlock()
			return &Ticket{kind: kind, gate: g}, nil
		}
		g.mu.Unlock()

		if time.Now().After(deadline) {
			return nil, pipelineerr.Wrap(pipelineerr.ErrResourceExhausted, "", "resource.acquire",
				"timed out waiting for resource admission", nil)
		}

		select {
		case <-ctx.Done():
			return nil, pipelineerr.Wrap(pipelineerr.ErrCancelled, "", "resource.acquire", "cancelled while waiting for admission", ctx.Err())
		case <-ticker.C:
		}
	}
}

// ActiveJobs reports the current registry counts, primarily for status
// reporting and tests.
func (g *Gate) ActiveJobs() (total, encodes int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.active, g.activeEncodes
}

func orDefault(v, def float64) float64 {
	if v <= 0 {
		return def
	}
	return v
}

func orDefaultInt(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

// StageForJobKind maps a pipeline stage to the JobKind its subprocess
// launches should be gated as. EDIT_VIDEO is the only encode-class stage;
// FETCH is tagged JobFetch, which the Gate admits exactly like an export
// job; everything else that shells out (extract-audio's ffmpeg, transcribe's
// whisper.cpp, export's copies) is JobExport. Every kind counts against the
// same MaxParallelExports slots; only encodes have a second ceiling.
func StageForJobKind(stage model.Stage) JobKind {
	switch stage {
	case model.StageEditVideo:
		return JobEncode
	case model.StageFetch:
		return JobFetch
	default:
		return JobExport
	}
}
