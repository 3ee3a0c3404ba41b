package ledger

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"paper-ledger/internal/analytics"
	"paper-ledger/internal/errors"
	"paper-ledger/internal/finmath"
	"paper-ledger/internal/models"
	"paper-ledger/internal/store"
)

// trendThreshold is the per-day slope of the overall score that counts as
// a change in direction.
const trendThreshold = 0.5

// Queries is the read-only reporting surface of the ledger.
type Queries struct {
	store    store.Repository
	detector *analytics.PatternDetector
	now      func() time.Time
}

// NewQueries creates the query surface. A nil clock uses time.Now.
func NewQueries(st store.Repository, detector *analytics.PatternDetector, clock func() time.Time) *Queries {
	if clock == nil {
		clock = time.Now
	}
	return &Queries{store: st, detector: detector, now: clock}
}

// GetTrades returns trades matching filter, newest entry first.
func (q *Queries) GetTrades(ctx context.Context, filter models.TradeFilter) ([]models.Trade, error) {
	return q.store.ListTrades(ctx, filter)
}

// GetTrade returns one trade.
func (q *Queries) GetTrade(ctx context.Context, tradeID string) (*models.Trade, error) {
	return q.store.GetTrade(ctx, tradeID)
}

// GetSessions returns sessions matching filter, newest first.
func (q *Queries) GetSessions(ctx context.Context, filter models.SessionFilter) ([]models.TradingSession, error) {
	return q.store.ListSessions(ctx, filter)
}

// GetAnalytics returns the stored analytics of a trade.
func (q *Queries) GetAnalytics(ctx context.Context, tradeID string) (*models.TradeAnalytics, error) {
	return q.store.GetAnalytics(ctx, tradeID)
}

// GetSessionSummary reports a session's duration, aggregates, best and worst
// trades and insights derived from the aggregates.
func (q *Queries) GetSessionSummary(ctx context.Context, sessionID string) (*models.SessionSummary, error) {
	session, err := q.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	trades, err := q.store.ListTrades(ctx, models.TradeFilter{SessionID: sessionID})
	if err != nil {
		return nil, fmt.Errorf("failed to load session trades: %w", err)
	}

	summary := &models.SessionSummary{
		Session:         *session,
		DurationSeconds: int64(session.Duration(q.now().UTC()) / time.Second),
	}

	var grossWin, grossLoss float64
	for i := range trades {
		t := &trades[i]
		switch t.Status {
		case models.TradeOpen:
			summary.OpenTrades++
			continue
		case models.TradeCancelled:
			continue
		}
		pnl := t.RealizedPnL()
		if pnl > 0 {
			grossWin = finmath.Add(grossWin, pnl)
		} else {
			grossLoss = finmath.Add(grossLoss, -pnl)
		}
		if summary.BestTrade == nil || pnl > summary.BestTrade.RealizedPnL() {
			summary.BestTrade = t
		}
		if summary.WorstTrade == nil || pnl < summary.WorstTrade.RealizedPnL() {
			summary.WorstTrade = t
		}
	}
	if grossLoss > 0 {
		summary.ProfitFactor = grossWin / grossLoss
	}
	if session.TradeCount > 0 {
		summary.Expectancy = session.TotalPnL / float64(session.TradeCount)
	}
	summary.Insights = sessionInsights(session)
	return summary, nil
}

func sessionInsights(s *models.TradingSession) []string {
	insights := []string{}
	if s.TradeCount == 0 {
		return append(insights, "No trades were closed in this session yet.")
	}

	switch {
	case s.TotalPnL > 0:
		insights = append(insights, fmt.Sprintf("Profitable session: %.2f net across %d trades.", s.TotalPnL, s.TradeCount))
	case s.TotalPnL < 0:
		insights = append(insights, fmt.Sprintf("Losing session: %.2f net across %d trades.", s.TotalPnL, s.TradeCount))
	}

	switch {
	case s.WinRate >= 60:
		insights = append(insights, fmt.Sprintf("Strong win rate of %.1f%%.", s.WinRate))
	case s.WinRate < 40:
		insights = append(insights, fmt.Sprintf("Win rate of %.1f%% is low; review your entry criteria.", s.WinRate))
	}

	if s.LossCount > 0 && s.WinCount > 0 && math.Abs(s.AverageLoss) > s.AverageWin {
		insights = append(insights, "Average loss is larger than average win; cut losers sooner or let winners run.")
	}
	if s.WinCount > 0 && s.LossCount > 0 && s.AverageWin >= 2*math.Abs(s.AverageLoss) {
		insights = append(insights, "Winners are at least twice the size of losers: good reward-to-risk.")
	}
	if s.AverageHoldSeconds < 60 {
		insights = append(insights, "Average hold under a minute; very short trades are dominated by noise and costs.")
	}
	if len(s.Symbols) > 5 {
		insights = append(insights, fmt.Sprintf("Traded %d different symbols; focusing on fewer instruments builds familiarity.", len(s.Symbols)))
	}
	return insights
}

// GetLearningProgress reports the trend of analytics scores over the last
// windowDays days.
func (q *Queries) GetLearningProgress(ctx context.Context, userID string, windowDays int) (*models.LearningProgress, error) {
	if windowDays <= 0 {
		return nil, errors.NewValidationError("window_days", windowDays, "window must be at least one day")
	}
	end := q.now().UTC()
	start := end.AddDate(0, 0, -windowDays)

	records, err := q.store.ListAnalytics(ctx, models.AnalyticsFilter{UserID: userID, StartDate: start, EndDate: end})
	if err != nil {
		return nil, fmt.Errorf("failed to load analytics: %w", err)
	}

	progress := &models.LearningProgress{
		UserID:             userID,
		WindowDays:         windowDays,
		TradesAnalyzed:     len(records),
		Trend:              "stable",
		Daily:              []models.DailyScore{},
		CommonStrengths:    []models.TagCount{},
		CommonImprovements: []models.TagCount{},
	}
	if len(records) == 0 {
		return progress, nil
	}

	var overall, entry, exit, risk []float64
	byDay := make(map[time.Time][]float64)
	strengths := make(map[string]int)
	improvements := make(map[string]int)
	for _, r := range records {
		overall = append(overall, r.Learning.Overall)
		entry = append(entry, r.Learning.EntryQuality)
		exit = append(exit, r.Learning.ExitQuality)
		risk = append(risk, r.Learning.RiskManagement)

		day := r.GeneratedAt.UTC().Truncate(24 * time.Hour)
		byDay[day] = append(byDay[day], r.Learning.Overall)
		for _, tag := range r.Learning.Strengths {
			strengths[tag]++
		}
		for _, tag := range r.Learning.ImprovementAreas {
			improvements[tag]++
		}
	}
	progress.AverageOverall = finmath.Mean(overall)
	progress.AverageEntry = finmath.Mean(entry)
	progress.AverageExit = finmath.Mean(exit)
	progress.AverageRisk = finmath.Mean(risk)

	days := make([]time.Time, 0, len(byDay))
	for day := range byDay {
		days = append(days, day)
	}
	sort.Slice(days, func(i, j int) bool { return days[i].Before(days[j]) })
	series := make([]float64, 0, len(days))
	offsets := make([]float64, 0, len(days))
	for _, day := range days {
		scores := byDay[day]
		avg := finmath.Mean(scores)
		progress.Daily = append(progress.Daily, models.DailyScore{Date: day, Overall: avg, Trades: len(scores)})
		series = append(series, avg)
		offsets = append(offsets, day.Sub(days[0]).Hours()/24)
	}

	// slope is per calendar day, not per active day
	progress.Slope = finmath.SlopeXY(offsets, series)
	switch {
	case progress.Slope > trendThreshold:
		progress.Trend = "improving"
	case progress.Slope < -trendThreshold:
		progress.Trend = "declining"
	}

	progress.CommonStrengths = topTags(strengths, 3)
	progress.CommonImprovements = topTags(improvements, 3)
	return progress, nil
}

func topTags(counts map[string]int, n int) []models.TagCount {
	tags := make([]models.TagCount, 0, len(counts))
	for tag, count := range counts {
		tags = append(tags, models.TagCount{Tag: tag, Count: count})
	}
	sort.Slice(tags, func(i, j int) bool {
		if tags[i].Count != tags[j].Count {
			return tags[i].Count > tags[j].Count
		}
		return tags[i].Tag < tags[j].Tag
	})
	if len(tags) > n {
		tags = tags[:n]
	}
	return tags
}

// DetectPatterns loads the user's trades inside the detector window and
// reports behavioral patterns.
func (q *Queries) DetectPatterns(ctx context.Context, userID string) (*models.PatternReport, error) {
	if q.detector == nil {
		return nil, fmt.Errorf("pattern detection is not configured")
	}
	filter := models.TradeFilter{UserID: userID}
	if w := q.detector.Window(); w > 0 {
		filter.StartDate = q.now().UTC().Add(-w)
	}
	trades, err := q.store.ListTrades(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to load recent trades: %w", err)
	}
	return q.detector.DetectPatterns(ctx, userID, trades)
}
