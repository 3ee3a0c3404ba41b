package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

// addUserCommands adds user data commands.
func addUserCommands(rootCmd *cobra.Command, app *App) {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "User data management",
	}

	erase := &cobra.Command{
		Use:   "erase <user-id>",
		Short: "Delete every trade, session, analysis and progress record of a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			confirmed, _ := cmd.Flags().GetBool("yes")
			if !confirmed {
				return fmt.Errorf("erasing %s cannot be undone; pass --yes to confirm", args[0])
			}
			return withLedger(cmd, app, func(ctx context.Context, output *Output) error {
				result, err := app.Manager.EraseUser(ctx, args[0])
				if err != nil {
					return err
				}
				if output.IsJSON() {
					return output.JSON(result)
				}
				output.Success("✓ Erased %s", args[0])
				output.Printf("  Trades:    %d\n", result.Trades)
				output.Printf("  Sessions:  %d\n", result.Sessions)
				output.Printf("  Analytics: %d\n", result.Analytics)
				output.Printf("  Progress:  %d\n", result.Progress)
				return nil
			})
		},
	}
	erase.Flags().Bool("yes", false, "confirm the erasure")
	cmd.AddCommand(erase)

	rootCmd.AddCommand(cmd)
}
