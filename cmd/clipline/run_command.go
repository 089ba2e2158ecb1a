package main

import (
	"fmt"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"clipline/internal/logging"
	"clipline/internal/model"
	"clipline/internal/wiring"
)

func newRunCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "run <url>",
		Short: "Fetch, transcribe, and process a video from a URL",
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
				progressbar.OptionSetDescription("starting"),
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

			runID, err := bundle.Coordinator.Run(cmd.Context(), args[0])
			_ = bar.Finish()
			if err != nil {
				return fmt.Errorf("run %s: %w", runID, err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Run %s completed.\n", runID)
			return nil
		},
	}
}
