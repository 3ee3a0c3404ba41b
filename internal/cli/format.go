package cli

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"paper-ledger/internal/logging"
	"paper-ledger/internal/models"
	"paper-ledger/pkg/utils"
)

// withLedger opens the ledger for one command and releases it afterwards.
// Queued analyses finish before the command returns.
func withLedger(cmd *cobra.Command, app *App, fn func(ctx context.Context, output *Output) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	ctx = logging.WithLogger(ctx, logging.WithOperation(app.Logger, cmd.CommandPath()))
	if err := app.Open(ctx); err != nil {
		return err
	}
	defer func() {
		if err := app.Close(); err != nil {
			logger := logging.FromContext(ctx)
			logger.Warn().Err(err).Msg("Failed to close ledger cleanly")
		}
	}()
	return fn(ctx, NewOutput(cmd))
}

// parseTime parses an RFC3339 flag value; empty means nil.
func parseTime(value string) (*time.Time, error) {
	if value == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return nil, fmt.Errorf("invalid time %q, expected RFC3339: %w", value, err)
	}
	return &t, nil
}

func parsePrice(value string) (float64, error) {
	price, err := strconv.ParseFloat(value, 64)
	if err != nil || price <= 0 {
		return 0, fmt.Errorf("invalid price %q", value)
	}
	return price, nil
}

// optionalFloat returns the flag value when it was set explicitly.
func optionalFloat(cmd *cobra.Command, name string) *float64 {
	if !cmd.Flags().Changed(name) {
		return nil
	}
	v, _ := cmd.Flags().GetFloat64(name)
	return &v
}

func formatPrice(p *float64) string {
	if p == nil {
		return "-"
	}
	return fmt.Sprintf("%.2f", *p)
}

func statusText(o *Output, status models.TradeStatus) string {
	switch status {
	case models.TradeOpen:
		return o.Yellow(string(status))
	case models.TradeClosed:
		return o.Green(string(status))
	}
	return o.DimText(string(status))
}

func printTrade(o *Output, t *models.Trade) {
	o.Bold("Trade %s", t.ID)
	o.Printf("  Symbol:      %s %s x%d (%s)\n", t.Symbol, strings.ToUpper(string(t.Side)), t.Quantity, t.OrderType)
	o.Printf("  Session:     %s\n", t.SessionID)
	o.Printf("  Status:      %s\n", statusText(o, t.Status))
	o.Printf("  Entry:       %.2f at %s\n", t.EntryPrice, t.EntryTime.Format(time.RFC3339))
	if t.StopPrice != nil || t.TakeProfit != nil {
		o.Printf("  Stop/Target: %s / %s\n", formatPrice(t.StopPrice), formatPrice(t.TakeProfit))
	}
	if t.ExitPrice != nil && t.ExitTime != nil {
		o.Printf("  Exit:        %.2f at %s\n", *t.ExitPrice, t.ExitTime.Format(time.RFC3339))
	}
	if t.PnL != nil {
		pct := 0.0
		if t.PnLPercent != nil {
			pct = *t.PnLPercent
		}
		o.Printf("  P&L:         %s (%s)\n", o.FormatPnL(*t.PnL), o.FormatPercent(pct))
		o.Printf("  Held:        %s\n", utils.FormatDuration(t.Holding()))
	}
	o.Printf("  MFE/MAE:     %s / %s\n", o.FormatPnL(t.MFE), o.FormatPnL(t.MAE))
}

func printTrades(o *Output, trades []models.Trade) {
	if len(trades) == 0 {
		o.Info("No trades found.")
		return
	}
	table := NewTable(o, "ID", "Entered", "Symbol", "Side", "Qty", "Entry", "Exit", "P&L", "Status")
	for i := range trades {
		t := &trades[i]
		pnl := "-"
		if t.PnL != nil {
			pnl = o.FormatPnL(*t.PnL)
		}
		table.AddRow(
			utils.TruncateString(t.ID, 8),
			t.EntryTime.Format("01-02 15:04:05"),
			t.Symbol,
			string(t.Side),
			utils.FormatQuantity(int64(t.Quantity)),
			fmt.Sprintf("%.2f", t.EntryPrice),
			formatPrice(t.ExitPrice),
			pnl,
			statusText(o, t.Status),
		)
	}
	table.Render()
}

func printSession(o *Output, s *models.TradingSession) {
	o.Bold("Session %s", s.ID)
	o.Printf("  User:        %s\n", s.UserID)
	o.Printf("  Status:      %s\n", s.Status)
	o.Printf("  Started:     %s\n", s.StartTime.Format(time.RFC3339))
	if s.EndTime != nil {
		o.Printf("  Ended:       %s\n", s.EndTime.Format(time.RFC3339))
	}
	o.Printf("  Trades:      %d (%d wins / %d losses, %.1f%% win rate)\n", s.TradeCount, s.WinCount, s.LossCount, s.WinRate)
	o.Printf("  Total P&L:   %s\n", o.FormatPnL(s.TotalPnL))
	if s.TradeCount > 0 {
		o.Printf("  Avg Win/Loss: %s / %s\n", o.FormatPnL(s.AverageWin), o.FormatPnL(s.AverageLoss))
		o.Printf("  Best/Worst:  %s / %s\n", o.FormatPnL(s.LargestWin), o.FormatPnL(s.LargestLoss))
		o.Printf("  Avg Hold:    %s\n", utils.FormatDuration(time.Duration(s.AverageHoldSeconds*float64(time.Second))))
		o.Printf("  Volume:      %s\n", utils.FormatCurrency(s.TotalVolume))
	}
	if len(s.Symbols) > 0 {
		o.Printf("  Symbols:     %s\n", strings.Join(s.Symbols, ", "))
	}
}

func printSummary(o *Output, summary *models.SessionSummary) {
	printSession(o, &summary.Session)
	o.Printf("  Duration:    %s\n", utils.FormatDuration(time.Duration(summary.DurationSeconds)*time.Second))
	o.Printf("  Open Trades: %d\n", summary.OpenTrades)
	o.Printf("  Profit Factor: %.2f   Expectancy: %s\n", summary.ProfitFactor, o.FormatPnL(summary.Expectancy))
	if summary.BestTrade != nil {
		o.Printf("  Best Trade:  %s %s\n", summary.BestTrade.Symbol, o.FormatPnL(summary.BestTrade.RealizedPnL()))
	}
	if summary.WorstTrade != nil {
		o.Printf("  Worst Trade: %s %s\n", summary.WorstTrade.Symbol, o.FormatPnL(summary.WorstTrade.RealizedPnL()))
	}
	if len(summary.Insights) > 0 {
		o.Println()
		o.Bold("Insights")
		for _, insight := range summary.Insights {
			o.Printf("  • %s\n", insight)
		}
	}
}

func printAnalytics(o *Output, a *models.TradeAnalytics) {
	o.Bold("Analytics for %s (%s)", a.TradeID, a.Symbol)
	if !a.Complete {
		o.Warning("Tick coverage was insufficient; timing and quality scores are degraded.")
	}

	f := a.Financial
	o.Printf("  P&L:         %s (%s), net %s after %.2f commission\n",
		o.FormatPnL(f.PnL), o.FormatPercent(f.PnLPercent), o.FormatPnL(f.NetPnL), f.Commission)
	o.Printf("  Risk/Reward: %.2f   Drawdown: %s   Run-up: %s\n", f.RiskReward, o.FormatPnL(f.MaxDrawdown), o.FormatPnL(f.MaxRunUp))

	tm := a.Timing
	o.Printf("  Timing:      entry %s, exit %s (score %s)\n", tm.EntryTiming, tm.ExitTiming, o.FormatScore(tm.Score))
	o.Printf("  Market:      %s (volatility %.2f, consistency %.2f)\n", tm.MarketCondition, tm.Volatility, tm.DirectionalConsistency)

	l := a.Learning
	o.Println()
	o.Bold("Scores")
	o.Printf("  Entry %s  Exit %s  Risk %s  Overall %s\n",
		o.FormatScore(l.EntryQuality), o.FormatScore(l.ExitQuality), o.FormatScore(l.RiskManagement), o.FormatScore(l.Overall))
	if len(l.Strengths) > 0 {
		o.Printf("  Strengths:   %s\n", o.Green(strings.Join(l.Strengths, ", ")))
	}
	if len(l.ImprovementAreas) > 0 {
		o.Printf("  Improve:     %s\n", o.Yellow(strings.Join(l.ImprovementAreas, ", ")))
	}

	if len(a.MissedOpportunities) > 0 {
		o.Println()
		o.Bold("Missed Opportunities")
		for _, m := range a.MissedOpportunities {
			o.Printf("  [%s] %s: %s (%s)\n", m.Severity, m.Type, m.Description, o.FormatPnL(m.PotentialGain))
			if m.Tip != "" {
				o.Dim("      %s", m.Tip)
			}
		}
	}
}

func printPatterns(o *Output, r *models.PatternReport) {
	o.Bold("Behavior patterns for %s", r.UserID)
	o.Dim("%d trades between %s and %s", r.TradeCount, r.WindowStart.Format(time.RFC3339), r.WindowEnd.Format(time.RFC3339))
	if len(r.Flags) == 0 {
		o.Success("✓ No behavioral patterns detected")
		return
	}
	for _, f := range r.Flags {
		line := fmt.Sprintf("  [%s] %s: %s", f.Severity, f.Type, f.Description)
		if f.Severity == models.SeverityHigh {
			o.Println(o.Red(line))
		} else {
			o.Println(o.Yellow(line))
		}
		o.Dim("      trades: %s", strings.Join(f.TradeIDs, ", "))
	}
}

func printProgress(o *Output, p *models.LearningProgress) {
	o.Bold("Learning progress for %s (last %d days)", p.UserID, p.WindowDays)
	if p.TradesAnalyzed == 0 {
		o.Info("No analyzed trades in this window.")
		return
	}
	o.Printf("  Trades:      %d analyzed\n", p.TradesAnalyzed)
	o.Printf("  Averages:    overall %s, entry %s, exit %s, risk %s\n",
		o.FormatScore(p.AverageOverall), o.FormatScore(p.AverageEntry), o.FormatScore(p.AverageExit), o.FormatScore(p.AverageRisk))

	trend := p.Trend
	switch trend {
	case "improving":
		trend = o.Green(trend)
	case "declining":
		trend = o.Red(trend)
	}
	o.Printf("  Trend:       %s (%+.2f per day)\n", trend, p.Slope)

	if len(p.Daily) > 0 {
		table := NewTable(o, "Date", "Trades", "Overall")
		for _, d := range p.Daily {
			table.AddRow(d.Date.Format("2006-01-02"), fmt.Sprintf("%d", d.Trades), o.FormatScore(d.Overall))
		}
		o.Println()
		table.Render()
	}
	printTags(o, "Strengths", p.CommonStrengths)
	printTags(o, "Focus Areas", p.CommonImprovements)
}

func printTags(o *Output, title string, tags []models.TagCount) {
	if len(tags) == 0 {
		return
	}
	parts := make([]string, len(tags))
	for i, t := range tags {
		parts[i] = fmt.Sprintf("%s (%d)", t.Tag, t.Count)
	}
	o.Printf("  %-12s %s\n", title+":", strings.Join(parts, ", "))
}

func printProgressRecord(o *Output, p *models.UserProgress, authorized bool) {
	o.Bold("Qualification for %s", p.UserID)
	o.Printf("  Modules:     %d\n", p.CompletedModules)
	o.Printf("  Simulations: %d\n", p.SimulationCount)
	if authorized {
		o.Success("✓ Qualified to trade")
	} else {
		o.Warning("Not yet qualified to trade")
	}
}
