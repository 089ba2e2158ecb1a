package main

import (
	"context"
	"log"
	"log/slog"
	"os/signal"
	"sync"
	"syscall"

	"clipline/internal/config"
	"clipline/internal/daemon"
	"clipline/internal/logging"
	"clipline/internal/model"
	"clipline/internal/wiring"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, _, _, err := config.Load("")
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger, err := logging.NewFromConfig(cfg)
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}

	onProgress := func(runID model.RunID, stage model.Stage, overall float64, message string) {
		logger.Info("run progress",
			logging.String("run_id", string(runID)),
			logging.String("stage", string(stage)),
			logging.Float64("overall_progress", overall),
			logging.String("message", message))
	}

	bundle, err := wiring.Build(ctx, cfg, logger, onProgress, nil)
	if err != nil {
		logger.Error("wire pipeline", logging.Error(err))
		return
	}
	defer bundle.Close()

	d, err := daemon.New(cfg, logger, bundle.Notifier, bundle.Coordinator)
	if err != nil {
		logger.Error("create daemon", logging.Error(err))
		return
	}
	defer d.Close()

	if err := d.Start(ctx); err != nil {
		logger.Error("daemon start", logging.Error(err))
		return
	}

	logger.Info("cliplined started", logging.String("checkpoint_dir", cfg.StateDir("checkpoints")))
	go resumeIncompleteRuns(ctx, d, logger)

	<-ctx.Done()
	logger.Info("cliplined shutting down")
}

// resumeIncompleteRuns resumes every run left checkpointed short of a
// terminal stage, one goroutine per run since each run is independent and
// Coordinator's cancellation bookkeeping is keyed per run id.
func resumeIncompleteRuns(ctx context.Context, d *daemon.Daemon, logger *slog.Logger) {
	runs, err := d.ListIncompleteRuns(ctx)
	if err != nil {
		logger.Warn("list incomplete runs", logging.Error(err))
		return
	}
	if len(runs) == 0 {
		return
	}

	var wg sync.WaitGroup
	for _, cp := range runs {
		wg.Add(1)
		go func(runID model.RunID) {
			defer wg.Done()
			logger.Info("resuming run", logging.String("run_id", string(runID)))
			if err := d.ResumeRun(ctx, runID); err != nil {
				logger.Error("resume run failed", logging.String("run_id", string(runID)), logging.Error(err))
			}
		}(cp.RunID)
	}
	wg.Wait()
}
