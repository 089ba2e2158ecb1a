package main

import (
	"fmt"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"clipline/internal/logging"
	"clipline/internal/model"
	"clipline/internal/wiring"
)

func newResumeCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "resume <run-id>",
		Short: "Resume a checkpointed run from its last completed item",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger, err := logging.NewFromConfig(cfg)
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}

			bar := progressbar.NewOptions(100,
				progressbar.OptionSetDescription("resuming"),
				progressbar.OptionShowCount(),
				progressbar.OptionClearOnFinish(),
			)
			onProgress := func(runID model.RunID, stage model.Stage, overall float64, message string) {
				bar.Describe(fmt.Sprintf("%s: %s", stage, message))
				_ = bar.Set(int(overall * 100))
			}

			bundle, err := wiring.Build(cmd.Context(), cfg, logger, onProgress, nil)
			if err != nil {
				return fmt.Errorf("wire pipeline: %w", err)
			}
			defer bundle.Close()

			runID := model.RunID(args[0])
			project, err := bundle.Coordinator.RunFromCheckpoint(cmd.Context(), runID)
			_ = bar.Finish()
			if err != nil {
				return fmt.Errorf("resume %s: %w", runID, err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Run %s resumed and completed with %d segments, %d highlights.\n",
				runID, len(project.Segments), len(project.Highlights))
			return nil
		},
	}
}
