package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"clipline/internal/checkpoint"
	"clipline/internal/logging"
	"clipline/internal/model"
	"clipline/internal/wiring"
)

func newExportCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "export <run-id>",
		Short: "Re-run the export stage for a run whose edit already completed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			runID := model.RunID(args[0])

			if err := rewindToExport(cfg.StateDir("checkpoints"), runID); err != nil {
				return err
			}

			logger, err := logging.NewFromConfig(cfg)
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}
			bundle, err := wiring.Build(cmd.Context(), cfg, logger, nil, nil)
			if err != nil {
				return fmt.Errorf("wire pipeline: %w", err)
			}
			defer bundle.Close()

			project, err := bundle.Coordinator.RunFromCheckpoint(cmd.Context(), runID)
			if err != nil {
				return fmt.Errorf("export %s: %w", runID, err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Run %s exported %d video(s).\n", runID, len(project.Videos))
			return nil
		},
	}
}

// rewindToExport resets a run's checkpoint cursor to the EXPORT stage,
// clearing its completed-item list so stagerunner treats it as a fresh
// export attempt. Every stage before EXPORT already has its output cached
// in the run's artifact store, so nothing upstream is recomputed.
func rewindToExport(checkpointDir string, runID model.RunID) error {
	store := checkpoint.NewStore(checkpointDir)
	if err := store.Open(runID); err != nil {
		return fmt.Errorf("open checkpoint: %w", err)
	}
	defer store.Close()

	current, err := store.Load()
	if err != nil {
		return fmt.Errorf("load checkpoint: %w", err)
	}
	if current == nil {
		return fmt.Errorf("no checkpoint found for run %s", runID)
	}

	current.Stage = model.StageExport
	current.StageProgress = 0
	current.CompletedItems = nil
	current.CurrentItem = ""
	current.CurrentItemProgress = 0
	return store.Save(*current)
}
