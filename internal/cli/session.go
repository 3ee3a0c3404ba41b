package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"paper-ledger/internal/models"
)

// addSessionCommands adds trading session commands.
func addSessionCommands(rootCmd *cobra.Command, app *App) {
	cmd := &cobra.Command{
		Use:   "session",
		Short: "Trading session management",
		Long:  "Start, pause, resume and end trading sessions and review their statistics.",
	}

	start := &cobra.Command{
		Use:   "start",
		Short: "Start a new session, completing any unfinished one",
		RunE: func(cmd *cobra.Command, args []string) error {
			userID, _ := cmd.Flags().GetString("user")
			return withLedger(cmd, app, func(ctx context.Context, output *Output) error {
				session, err := app.Aggregator.Start(ctx, userID)
				if err != nil {
					return err
				}
				if output.IsJSON() {
					return output.JSON(session)
				}
				output.Success("✓ Session %s started", session.ID)
				return nil
			})
		},
	}
	start.Flags().String("user", "", "user ID")
	start.MarkFlagRequired("user")
	cmd.AddCommand(start)

	cmd.AddCommand(newSessionTransitionCmd(app, "pause", "Pause an active session", app.pause))
	cmd.AddCommand(newSessionTransitionCmd(app, "resume", "Resume a paused session", app.resume))
	cmd.AddCommand(newSessionTransitionCmd(app, "end", "Complete a session", app.end))

	cmd.AddCommand(&cobra.Command{
		Use:   "rebuild <session-id>",
		Short: "Recompute session statistics from its closed trades",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withLedger(cmd, app, func(ctx context.Context, output *Output) error {
				session, err := app.Aggregator.Rebuild(ctx, args[0])
				if err != nil {
					return err
				}
				if output.IsJSON() {
					return output.JSON(session)
				}
				printSession(output, session)
				return nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "summary <session-id>",
		Short: "Show session statistics and insights",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withLedger(cmd, app, func(ctx context.Context, output *Output) error {
				summary, err := app.Queries.GetSessionSummary(ctx, args[0])
				if err != nil {
					return err
				}
				if output.IsJSON() {
					return output.JSON(summary)
				}
				printSummary(output, summary)
				return nil
			})
		},
	})

	list := &cobra.Command{
		Use:   "list",
		Short: "List sessions of a user",
		RunE: func(cmd *cobra.Command, args []string) error {
			userID, _ := cmd.Flags().GetString("user")
			status, _ := cmd.Flags().GetString("status")
			limit, _ := cmd.Flags().GetInt("limit")
			return withLedger(cmd, app, func(ctx context.Context, output *Output) error {
				sessions, err := app.Queries.GetSessions(ctx, models.SessionFilter{
					UserID: userID,
					Status: models.SessionStatus(status),
					Limit:  limit,
				})
				if err != nil {
					return err
				}
				if output.IsJSON() {
					return output.JSON(sessions)
				}
				if len(sessions) == 0 {
					output.Info("No sessions found.")
					return nil
				}
				table := NewTable(output, "ID", "Started", "Status", "Trades", "Win %", "P&L")
				for _, s := range sessions {
					table.AddRow(
						s.ID,
						s.StartTime.Format("2006-01-02 15:04"),
						string(s.Status),
						fmt.Sprintf("%d", s.TradeCount),
						fmt.Sprintf("%.1f", s.WinRate),
						output.FormatPnL(s.TotalPnL),
					)
				}
				table.Render()
				return nil
			})
		},
	}
	list.Flags().String("user", "", "user ID")
	list.Flags().String("status", "", "filter by status (active, paused, completed)")
	list.Flags().Int("limit", 20, "maximum sessions to show")
	cmd.AddCommand(list)

	rootCmd.AddCommand(cmd)
}

type sessionTransition func(ctx context.Context, sessionID string) (*models.TradingSession, error)

func (a *App) pause(ctx context.Context, id string) (*models.TradingSession, error) {
	return a.Aggregator.Pause(ctx, id)
}

func (a *App) resume(ctx context.Context, id string) (*models.TradingSession, error) {
	return a.Aggregator.Resume(ctx, id)
}

func (a *App) end(ctx context.Context, id string) (*models.TradingSession, error) {
	return a.Aggregator.End(ctx, id)
}

func newSessionTransitionCmd(app *App, use, short string, apply sessionTransition) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <session-id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withLedger(cmd, app, func(ctx context.Context, output *Output) error {
				session, err := apply(ctx, args[0])
				if err != nil {
					return err
				}
				if output.IsJSON() {
					return output.JSON(session)
				}
				output.Success("✓ Session %s is now %s", session.ID, session.Status)
				if session.Status == models.SessionCompleted {
					output.Println()
					printSession(output, session)
				}
				return nil
			})
		},
	}
}
