package cli

import (
	"github.com/spf13/cobra"
)

// addHelpCommands adds guide commands.
func addHelpCommands(rootCmd *cobra.Command) {
	rootCmd.AddCommand(newQuickstartCmd())
}

func newQuickstartCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "quickstart",
		Short: "New user guide",
		Long:  "Step-by-step guide for new users.",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)

			output.Bold("Paper Ledger - Quick Start Guide")
			output.Println()

			steps := []struct {
				title string
				desc  string
				cmd   string
			}{
				{"Check Configuration", "A config.toml template is written on first run.", "ledger config path"},
				{"Complete Learning Modules", "Trading unlocks after the required modules.", "ledger gate complete-module --user alice"},
				{"Start a Session", "Trades are grouped into one active session per user.", "ledger session start --user alice"},
				{"Feed a Quote", "Market orders fill at the latest quote.", "ledger tick push AAPL 189.50"},
				{"Open a Trade", "Stops and targets feed the risk review.", "ledger trade open AAPL buy 10 --user alice --stop 185 --tp 197"},
				{"Close the Trade", "Closing realizes P&L and queues the analysis.", "ledger trade close <trade-id> --price 193.20"},
				{"Review", "Timing, risk and missed opportunities per trade.", "ledger analytics show <trade-id>"},
				{"End the Session", "Completed sessions count as simulations.", "ledger session end <session-id>"},
			}

			for i, s := range steps {
				output.Printf("%s Step %d: %s\n", output.Green("→"), i+1, s.title)
				output.Printf("  %s\n", s.desc)
				output.Printf("  %s\n\n", output.DimText(s.cmd))
			}

			output.Bold("Running as a Service")
			output.Println()
			output.Printf("  %s - read-only API on server.addr, metrics on /metrics\n", output.Yellow("ledger serve"))
			output.Printf("  %s - set events.nats_url to publish events and receive ticks\n", output.Yellow("NATS"))
			output.Println()

			output.Bold("Getting Help")
			output.Println()
			output.Printf("  %s - Help for any command\n", output.Yellow("ledger help <command>"))
			output.Printf("  %s - Machine-readable output\n", output.Yellow("ledger <command> --json"))

			return nil
		},
	}
}
