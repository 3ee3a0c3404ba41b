package cli

import (
	"context"

	"github.com/spf13/cobra"
)

// addGateCommands adds qualification gate commands.
func addGateCommands(rootCmd *cobra.Command, app *App) {
	cmd := &cobra.Command{
		Use:   "gate",
		Short: "Qualification gate",
		Long:  "Record completed learning modules and check whether a user may trade.",
	}

	complete := &cobra.Command{
		Use:   "complete-module",
		Short: "Record a completed learning module",
		RunE: func(cmd *cobra.Command, args []string) error {
			userID, _ := cmd.Flags().GetString("user")
			return withLedger(cmd, app, func(ctx context.Context, output *Output) error {
				if err := app.Gate.CompleteModule(ctx, userID); err != nil {
					return err
				}
				return printGateStatus(ctx, app, output, userID)
			})
		},
	}
	complete.Flags().String("user", "", "user ID")
	complete.MarkFlagRequired("user")
	cmd.AddCommand(complete)

	status := &cobra.Command{
		Use:   "status",
		Short: "Show qualification progress",
		RunE: func(cmd *cobra.Command, args []string) error {
			userID, _ := cmd.Flags().GetString("user")
			return withLedger(cmd, app, func(ctx context.Context, output *Output) error {
				return printGateStatus(ctx, app, output, userID)
			})
		},
	}
	status.Flags().String("user", "", "user ID")
	status.MarkFlagRequired("user")
	cmd.AddCommand(status)

	rootCmd.AddCommand(cmd)
}

func printGateStatus(ctx context.Context, app *App, output *Output, userID string) error {
	progress, err := app.Gate.Status(ctx, userID)
	if err != nil {
		return err
	}
	authorized, err := app.Gate.IsAuthorized(ctx, userID)
	if err != nil {
		return err
	}
	if output.IsJSON() {
		return output.JSON(map[string]interface{}{
			"progress":   progress,
			"authorized": authorized,
		})
	}
	printProgressRecord(output, progress, authorized)
	return nil
}
