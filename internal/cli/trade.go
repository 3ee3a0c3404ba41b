package cli

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"paper-ledger/internal/models"
)

// addTradeCommands adds simulated trade commands.
func addTradeCommands(rootCmd *cobra.Command, app *App) {
	cmd := &cobra.Command{
		Use:   "trade",
		Short: "Simulated trade management",
		Long:  "Open, revalue, close and cancel simulated trades.",
	}

	cmd.AddCommand(newTradeOpenCmd(app))
	cmd.AddCommand(newTradeCloseCmd(app))
	cmd.AddCommand(newTradeCancelCmd(app))
	cmd.AddCommand(newTradeRevalueCmd(app))
	cmd.AddCommand(newTradeListCmd(app))
	cmd.AddCommand(newTradeShowCmd(app))

	rootCmd.AddCommand(cmd)
}

func newTradeOpenCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "open <symbol> <buy|sell> <quantity>",
		Short: "Open a simulated trade",
		Long: `Open a simulated trade in the user's session.

Market and stop orders fill at the latest quote; limit and stop-limit
orders fill at their limit price.`,
		Example: `  ledger trade open AAPL buy 10 --user alice
  ledger trade open MSFT sell 5 --user alice --type limit --limit 410 --stop 415 --tp 395`,
		Args: cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			qty, err := strconv.Atoi(args[2])
			if err != nil {
				return fmt.Errorf("invalid quantity %q", args[2])
			}
			userID, _ := cmd.Flags().GetString("user")
			sessionID, _ := cmd.Flags().GetString("session")
			orderType, _ := cmd.Flags().GetString("type")

			order := models.Order{
				UserID:     userID,
				SessionID:  sessionID,
				Symbol:     args[0],
				Side:       models.OrderSide(args[1]),
				Quantity:   qty,
				Type:       models.OrderType(orderType),
				LimitPrice: optionalFloat(cmd, "limit"),
				StopPrice:  optionalFloat(cmd, "stop"),
				TakeProfit: optionalFloat(cmd, "tp"),
			}

			return withLedger(cmd, app, func(ctx context.Context, output *Output) error {
				if order.SessionID == "" {
					session, err := app.Store.GetActiveSession(ctx, order.UserID)
					if err != nil {
						return fmt.Errorf("no active session for %s, run 'ledger session start': %w", order.UserID, err)
					}
					order.SessionID = session.ID
				}

				trade, err := app.Manager.Open(ctx, order)
				if err != nil {
					return err
				}
				if output.IsJSON() {
					return output.JSON(trade)
				}
				output.Success("✓ Opened %s %s x%d at %.2f", trade.Side, trade.Symbol, trade.Quantity, trade.EntryPrice)
				output.Dim("Trade ID: %s", trade.ID)
				return nil
			})
		},
	}
	cmd.Flags().String("user", "", "user ID")
	cmd.Flags().String("session", "", "session ID (default: the user's active session)")
	cmd.Flags().String("type", string(models.OrderTypeMarket), "order type (market, limit, stop, stop_limit)")
	cmd.Flags().Float64("limit", 0, "limit price")
	cmd.Flags().Float64("stop", 0, "stop price")
	cmd.Flags().Float64("tp", 0, "take-profit price")
	cmd.MarkFlagRequired("user")
	return cmd
}

func newTradeCloseCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "close <trade-id>",
		Short: "Close an open trade",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			atFlag, _ := cmd.Flags().GetString("at")
			at, err := parseTime(atFlag)
			if err != nil {
				return err
			}
			return withLedger(cmd, app, func(ctx context.Context, output *Output) error {
				price := optionalFloat(cmd, "price")
				if price == nil {
					trade, err := app.Queries.GetTrade(ctx, args[0])
					if err != nil {
						return err
					}
					tick, err := app.Feed.LatestTick(ctx, trade.Symbol)
					if err != nil {
						return err
					}
					price = &tick.Price
				}

				trade, err := app.Manager.Close(ctx, args[0], *price, at)
				if err != nil {
					return err
				}
				if output.IsJSON() {
					return output.JSON(trade)
				}
				output.Success("✓ Closed %s %s at %.2f: %s", trade.Symbol, trade.Side, *trade.ExitPrice, output.FormatPnL(trade.RealizedPnL()))
				output.Dim("Run 'ledger analytics show %s' for the trade review.", trade.ID)
				return nil
			})
		},
	}
	cmd.Flags().Float64("price", 0, "exit price (default: latest quote)")
	cmd.Flags().String("at", "", "exit time, RFC3339 (default: now)")
	return cmd
}

func newTradeCancelCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <trade-id>",
		Short: "Cancel an open trade without realizing P&L",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withLedger(cmd, app, func(ctx context.Context, output *Output) error {
				trade, err := app.Manager.Cancel(ctx, args[0])
				if err != nil {
					return err
				}
				if output.IsJSON() {
					return output.JSON(trade)
				}
				output.Success("✓ Cancelled trade %s", trade.ID)
				return nil
			})
		},
	}
}

func newTradeRevalueCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "revalue <trade-id>",
		Short: "Mark an open trade to a price and update its excursions",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			price, _ := cmd.Flags().GetFloat64("price")
			return withLedger(cmd, app, func(ctx context.Context, output *Output) error {
				floating, err := app.Manager.Revalue(ctx, args[0], price)
				if err != nil {
					return err
				}
				trade, err := app.Queries.GetTrade(ctx, args[0])
				if err != nil {
					return err
				}
				if output.IsJSON() {
					return output.JSON(map[string]interface{}{
						"trade_id":     trade.ID,
						"price":        price,
						"floating_pnl": floating,
						"mfe":          trade.MFE,
						"mae":          trade.MAE,
					})
				}
				output.Printf("Floating P&L: %s (MFE %s, MAE %s)\n",
					output.FormatPnL(floating), output.FormatPnL(trade.MFE), output.FormatPnL(trade.MAE))
				return nil
			})
		},
	}
	cmd.Flags().Float64("price", 0, "mark price")
	cmd.MarkFlagRequired("price")
	return cmd
}

func newTradeListCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List trades",
		RunE: func(cmd *cobra.Command, args []string) error {
			userID, _ := cmd.Flags().GetString("user")
			sessionID, _ := cmd.Flags().GetString("session")
			symbol, _ := cmd.Flags().GetString("symbol")
			status, _ := cmd.Flags().GetString("status")
			limit, _ := cmd.Flags().GetInt("limit")
			return withLedger(cmd, app, func(ctx context.Context, output *Output) error {
				trades, err := app.Queries.GetTrades(ctx, models.TradeFilter{
					UserID:    userID,
					SessionID: sessionID,
					Symbol:    symbol,
					Status:    models.TradeStatus(status),
					Limit:     limit,
				})
				if err != nil {
					return err
				}
				if output.IsJSON() {
					return output.JSON(trades)
				}
				printTrades(output, trades)
				return nil
			})
		},
	}
	cmd.Flags().String("user", "", "filter by user ID")
	cmd.Flags().String("session", "", "filter by session ID")
	cmd.Flags().String("symbol", "", "filter by symbol")
	cmd.Flags().String("status", "", "filter by status (open, closed, cancelled)")
	cmd.Flags().Int("limit", 50, "maximum trades to show")
	return cmd
}

func newTradeShowCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "show <trade-id>",
		Short: "Show one trade",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withLedger(cmd, app, func(ctx context.Context, output *Output) error {
				trade, err := app.Queries.GetTrade(ctx, args[0])
				if err != nil {
					return err
				}
				if output.IsJSON() {
					return output.JSON(trade)
				}
				printTrade(output, trade)
				return nil
			})
		},
	}
}
