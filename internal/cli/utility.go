package cli

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"paper-ledger/internal/models"
)

// addUtilityCommands adds export commands.
func addUtilityCommands(rootCmd *cobra.Command, app *App) {
	rootCmd.AddCommand(newExportCmd(app))
}

func newExportCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export data to files",
		Long:  "Export trades or tick history to CSV or JSON files.",
	}

	trades := &cobra.Command{
		Use:   "trades",
		Short: "Export trade history",
		RunE: func(cmd *cobra.Command, args []string) error {
			format, _ := cmd.Flags().GetString("format")
			outFile, _ := cmd.Flags().GetString("output")
			userID, _ := cmd.Flags().GetString("user")
			if outFile == "" {
				outFile = fmt.Sprintf("trades.%s", format)
			}

			return withLedger(cmd, app, func(ctx context.Context, output *Output) error {
				list, err := app.Queries.GetTrades(ctx, models.TradeFilter{UserID: userID})
				if err != nil {
					return err
				}
				if err := writeExport(outFile, format, list, tradeRecords(list)); err != nil {
					return err
				}
				output.Success("✓ Exported %d trades to %s", len(list), outFile)
				return nil
			})
		},
	}
	trades.Flags().String("user", "", "filter by user ID")
	addExportFlags(trades)
	cmd.AddCommand(trades)

	ticks := &cobra.Command{
		Use:   "ticks <symbol>",
		Short: "Export tick history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			format, _ := cmd.Flags().GetString("format")
			outFile, _ := cmd.Flags().GetString("output")
			hours, _ := cmd.Flags().GetInt("hours")
			if outFile == "" {
				outFile = fmt.Sprintf("%s_ticks.%s", args[0], format)
			}

			return withLedger(cmd, app, func(ctx context.Context, output *Output) error {
				to := time.Now().UTC()
				list, err := app.Feed.TickHistory(ctx, args[0], to.Add(-time.Duration(hours)*time.Hour), to)
				if err != nil {
					return err
				}
				if len(list) == 0 {
					output.Warning("No ticks available for %s", args[0])
					return nil
				}
				if err := writeExport(outFile, format, list, tickRecords(list)); err != nil {
					return err
				}
				output.Success("✓ Exported %d ticks to %s", len(list), outFile)
				return nil
			})
		},
	}
	ticks.Flags().Int("hours", 24, "hours of history to export")
	addExportFlags(ticks)
	cmd.AddCommand(ticks)

	return cmd
}

func addExportFlags(cmd *cobra.Command) {
	cmd.Flags().String("format", "csv", "output format (csv, json)")
	cmd.Flags().String("output", "", "output file")
}

// writeExport writes records as CSV or data as JSON.
func writeExport(path, format string, data interface{}, records [][]string) error {
	if format != "csv" && format != "json" {
		return fmt.Errorf("unsupported format %q", format)
	}
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer file.Close()

	if format == "json" {
		return writeJSON(file, data)
	}
	writer := csv.NewWriter(file)
	if err := writer.WriteAll(records); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

func writeJSON(w io.Writer, data interface{}) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(data)
}

func tradeRecords(trades []models.Trade) [][]string {
	records := [][]string{{"id", "user_id", "session_id", "symbol", "side", "quantity", "entry_time", "entry_price", "exit_time", "exit_price", "pnl", "status"}}
	for _, t := range trades {
		exitTime, exitPrice, pnl := "", "", ""
		if t.ExitTime != nil {
			exitTime = t.ExitTime.Format(time.RFC3339)
		}
		if t.ExitPrice != nil {
			exitPrice = strconv.FormatFloat(*t.ExitPrice, 'f', 2, 64)
		}
		if t.PnL != nil {
			pnl = strconv.FormatFloat(*t.PnL, 'f', 2, 64)
		}
		records = append(records, []string{
			t.ID, t.UserID, t.SessionID, t.Symbol, string(t.Side),
			strconv.Itoa(t.Quantity),
			t.EntryTime.Format(time.RFC3339),
			strconv.FormatFloat(t.EntryPrice, 'f', 2, 64),
			exitTime, exitPrice, pnl,
			string(t.Status),
		})
	}
	return records
}

func tickRecords(ticks []models.Tick) [][]string {
	records := [][]string{{"timestamp", "symbol", "price"}}
	for _, t := range ticks {
		records = append(records, []string{
			t.Timestamp.Format(time.RFC3339Nano),
			t.Symbol,
			strconv.FormatFloat(t.Price, 'f', -1, 64),
		})
	}
	return records
}
