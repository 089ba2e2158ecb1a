package main

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"clipline/internal/checkpoint"
	"clipline/internal/textutil"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "List incomplete runs and their checkpointed progress",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}

			runs, err := checkpoint.ListIncomplete(cfg.StateDir("checkpoints"))
			if err != nil {
				return fmt.Errorf("list checkpoints: %w", err)
			}

			out := cmd.OutOrStdout()
			if len(runs) == 0 {
				fmt.Fprintln(out, "No incomplete runs.")
				return nil
			}

			headers := []string{"Run ID", "Stage", "Progress", "Retries", "Last Error", "Updated"}
			rows := make([][]string, 0, len(runs))
			for _, cp := range runs {
				lastErr := textutil.Ternary(cp.LastError != "", cp.LastError, "-")
				rows = append(rows, []string{
					string(cp.RunID),
					string(cp.Stage),
					fmt.Sprintf("%.0f%%", cp.StageProgress*100),
					fmt.Sprintf("%d", cp.RetryCount),
					lastErr,
					humanize.Time(cp.UpdatedAt),
				})
			}
			fmt.Fprintln(out, renderTable(headers, rows, []columnAlignment{alignLeft, alignLeft, alignRight, alignRight, alignLeft, alignLeft}))
			return nil
		},
	}
}
