package cli

import (
	"context"

	"github.com/spf13/cobra"

	"paper-ledger/internal/errors"
)

// addAnalyticsCommands adds trade review commands.
func addAnalyticsCommands(rootCmd *cobra.Command, app *App) {
	cmd := &cobra.Command{
		Use:     "analytics",
		Aliases: []string{"review"},
		Short:   "Trade analytics and learning progress",
		Long:    "Review closed trades, behavioral patterns and score trends.",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show <trade-id>",
		Short: "Show the analysis of a closed trade",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withLedger(cmd, app, func(ctx context.Context, output *Output) error {
				a, err := app.Queries.GetAnalytics(ctx, args[0])
				if err != nil {
					return err
				}
				if output.IsJSON() {
					return output.JSON(a)
				}
				printAnalytics(output, a)
				return nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "reanalyze <trade-id>",
		Short: "Recompute the analysis of a closed trade",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withLedger(cmd, app, func(ctx context.Context, output *Output) error {
				a, err := app.Worker.Reanalyze(ctx, args[0])
				if err != nil && !errors.Is(err, errors.ErrAnalyticsIncomplete) {
					return err
				}
				if output.IsJSON() {
					return output.JSON(a)
				}
				printAnalytics(output, a)
				return nil
			})
		},
	})

	patterns := &cobra.Command{
		Use:   "patterns",
		Short: "Detect overtrading, revenge trading and FOMO",
		RunE: func(cmd *cobra.Command, args []string) error {
			userID, _ := cmd.Flags().GetString("user")
			return withLedger(cmd, app, func(ctx context.Context, output *Output) error {
				report, err := app.Queries.DetectPatterns(ctx, userID)
				if err != nil {
					return err
				}
				if output.IsJSON() {
					return output.JSON(report)
				}
				printPatterns(output, report)
				return nil
			})
		},
	}
	patterns.Flags().String("user", "", "user ID")
	patterns.MarkFlagRequired("user")
	cmd.AddCommand(patterns)

	progress := &cobra.Command{
		Use:   "progress",
		Short: "Show the trend of analytics scores",
		RunE: func(cmd *cobra.Command, args []string) error {
			userID, _ := cmd.Flags().GetString("user")
			days, _ := cmd.Flags().GetInt("days")
			return withLedger(cmd, app, func(ctx context.Context, output *Output) error {
				p, err := app.Queries.GetLearningProgress(ctx, userID, days)
				if err != nil {
					return err
				}
				if output.IsJSON() {
					return output.JSON(p)
				}
				printProgress(output, p)
				return nil
			})
		},
	}
	progress.Flags().String("user", "", "user ID")
	progress.Flags().Int("days", 30, "window in days")
	progress.MarkFlagRequired("user")
	cmd.AddCommand(progress)

	rootCmd.AddCommand(cmd)
}
