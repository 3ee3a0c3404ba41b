package cli

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"paper-ledger/internal/feed"
	"paper-ledger/internal/models"
)

// addTickCommands adds price feed commands.
func addTickCommands(rootCmd *cobra.Command, app *App) {
	cmd := &cobra.Command{
		Use:   "tick",
		Short: "Price feed management",
		Long:  "Record quotes into the price feed and inspect the latest quote.",
	}

	push := &cobra.Command{
		Use:   "push <symbol> <price>",
		Short: "Record a quote and revalue open trades in the symbol",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			price, err := parsePrice(args[1])
			if err != nil {
				return err
			}
			atFlag, _ := cmd.Flags().GetString("at")
			at, err := parseTime(atFlag)
			if err != nil {
				return err
			}
			tick := models.Tick{
				Symbol:    feed.NormalizeSymbol(args[0]),
				Price:     price,
				Timestamp: time.Now().UTC(),
				Bid:       optionalFloat(cmd, "bid"),
				Ask:       optionalFloat(cmd, "ask"),
			}
			if at != nil {
				tick.Timestamp = *at
			}
			if cmd.Flags().Changed("volume") {
				v, _ := cmd.Flags().GetInt64("volume")
				tick.Volume = &v
			}
			if err := feed.Validate(&tick); err != nil {
				return err
			}

			return withLedger(cmd, app, func(ctx context.Context, output *Output) error {
				if err := app.Feed.Record(ctx, tick); err != nil {
					return err
				}
				revalued, err := app.Manager.RepriceAt(ctx, tick.Symbol, tick.Price)
				if err != nil {
					return err
				}
				if output.IsJSON() {
					return output.JSON(map[string]interface{}{
						"tick":     tick,
						"revalued": revalued,
					})
				}
				output.Success("✓ %s %.2f recorded", tick.Symbol, tick.Price)
				if revalued > 0 {
					output.Dim("Revalued %d open trades", revalued)
				}
				return nil
			})
		},
	}
	push.Flags().String("at", "", "quote time, RFC3339 (default: now)")
	push.Flags().Float64("bid", 0, "bid price")
	push.Flags().Float64("ask", 0, "ask price")
	push.Flags().Int64("volume", 0, "traded volume")
	cmd.AddCommand(push)

	cmd.AddCommand(&cobra.Command{
		Use:   "latest <symbol>",
		Short: "Show the latest quote for a symbol",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withLedger(cmd, app, func(ctx context.Context, output *Output) error {
				tick, err := app.Feed.LatestTick(ctx, args[0])
				if err != nil {
					return err
				}
				if output.IsJSON() {
					return output.JSON(tick)
				}
				output.Printf("%s %.2f at %s\n", tick.Symbol, tick.Price, tick.Timestamp.Format(time.RFC3339))
				return nil
			})
		},
	})

	rootCmd.AddCommand(cmd)
}
