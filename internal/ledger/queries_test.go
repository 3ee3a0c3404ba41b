package ledger

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"paper-ledger/internal/analytics"
	"paper-ledger/internal/config"
	"paper-ledger/internal/errors"
	"paper-ledger/internal/models"
)

func newQueries(h *harness, patterns config.PatternsConfig) *Queries {
	detector := analytics.NewPatternDetector(patterns, h.feed, h.clock.Now, zerolog.Nop())
	return NewQueries(h.store, detector, h.clock.Now)
}

func TestGetSessionSummary(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	s := h.start(t, "u1")
	h.quote(t, "AAPL", 100)

	var best string
	for i, exit := range []float64{105, 98, 103} {
		tr, err := h.manager.Open(ctx, marketBuy("u1", s.ID, "AAPL", 10))
		require.NoError(t, err)
		if i == 0 {
			best = tr.ID
		}
		h.clock.Advance(2 * time.Minute)
		_, err = h.manager.Close(ctx, tr.ID, exit, nil)
		require.NoError(t, err)
	}
	_, err := h.manager.Open(ctx, marketBuy("u1", s.ID, "AAPL", 1))
	require.NoError(t, err)

	q := newQueries(h, config.Default().Patterns)
	summary, err := q.GetSessionSummary(ctx, s.ID)
	require.NoError(t, err)

	assert.Equal(t, int64(6*60), summary.DurationSeconds)
	assert.Equal(t, 1, summary.OpenTrades)
	require.NotNil(t, summary.BestTrade)
	assert.Equal(t, best, summary.BestTrade.ID)
	require.NotNil(t, summary.WorstTrade)
	assert.InDelta(t, -20.0, summary.WorstTrade.RealizedPnL(), 1e-9)
	assert.InDelta(t, 4.0, summary.ProfitFactor, 1e-9)
	assert.InDelta(t, 20.0, summary.Expectancy, 1e-9)
	assert.Equal(t, 3, summary.Session.TradeCount)
	assert.Contains(t, summary.Insights[0], "Profitable session")
	assert.Contains(t, summary.Insights, "Strong win rate of 66.7%.")

	_, err = q.GetSessionSummary(ctx, "missing")
	assert.True(t, errors.Is(err, errors.ErrNotFound))
}

func TestGetSessionSummaryEmpty(t *testing.T) {
	h := newHarness(t, nil)
	s := h.start(t, "u1")
	summary, err := newQueries(h, config.Default().Patterns).GetSessionSummary(context.Background(), s.ID)
	require.NoError(t, err)
	assert.Nil(t, summary.BestTrade)
	assert.Equal(t, []string{"No trades were closed in this session yet."}, summary.Insights)
}

func TestGetLearningProgress(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	s := h.start(t, "u1")
	h.quote(t, "AAPL", 100)

	scores := []float64{50, 60, 70}
	for i, score := range scores {
		tr, err := h.manager.Open(ctx, marketBuy("u1", s.ID, "AAPL", 1))
		require.NoError(t, err)
		_, err = h.manager.Close(ctx, tr.ID, 101, nil)
		require.NoError(t, err)

		strengths := []string{"risk_management"}
		if i == 2 {
			strengths = append(strengths, "entry_timing")
		}
		require.NoError(t, h.store.SaveAnalytics(ctx, &models.TradeAnalytics{
			TradeID:     tr.ID,
			UserID:      "u1",
			Symbol:      "AAPL",
			GeneratedAt: baseTime.Add(time.Duration(i) * 24 * time.Hour),
			Complete:    true,
			Learning: models.LearningScores{
				Overall:          score,
				EntryQuality:     score,
				ExitQuality:      score,
				RiskManagement:   score,
				Strengths:        strengths,
				ImprovementAreas: []string{"take_profit"},
			},
		}))
	}
	h.clock.Advance(3 * 24 * time.Hour)

	q := newQueries(h, config.Default().Patterns)
	progress, err := q.GetLearningProgress(ctx, "u1", 7)
	require.NoError(t, err)

	assert.Equal(t, 3, progress.TradesAnalyzed)
	assert.InDelta(t, 60.0, progress.AverageOverall, 1e-9)
	assert.Equal(t, "improving", progress.Trend)
	assert.InDelta(t, 10.0, progress.Slope, 1e-9)
	require.Len(t, progress.Daily, 3)
	assert.Equal(t, 50.0, progress.Daily[0].Overall)
	require.NotEmpty(t, progress.CommonStrengths)
	assert.Equal(t, models.TagCount{Tag: "risk_management", Count: 3}, progress.CommonStrengths[0])
	assert.Equal(t, []models.TagCount{{Tag: "take_profit", Count: 3}}, progress.CommonImprovements)

	narrow, err := q.GetLearningProgress(ctx, "u1", 1)
	require.NoError(t, err)
	assert.Equal(t, 1, narrow.TradesAnalyzed)
	assert.Equal(t, "stable", narrow.Trend)

	_, err = q.GetLearningProgress(ctx, "u1", 0)
	assert.True(t, errors.Is(err, errors.ErrInvalidOrder))
}

func TestGetLearningProgressSlopeSpansCalendarDays(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	s := h.start(t, "u1")
	h.quote(t, "AAPL", 100)

	for i, day := range []int{0, 2} {
		tr, err := h.manager.Open(ctx, marketBuy("u1", s.ID, "AAPL", 1))
		require.NoError(t, err)
		_, err = h.manager.Close(ctx, tr.ID, 101, nil)
		require.NoError(t, err)
		require.NoError(t, h.store.SaveAnalytics(ctx, &models.TradeAnalytics{
			TradeID:     tr.ID,
			UserID:      "u1",
			Symbol:      "AAPL",
			GeneratedAt: baseTime.Add(time.Duration(day) * 24 * time.Hour),
			Complete:    true,
			Learning:    models.LearningScores{Overall: 50 + 10*float64(i)},
		}))
	}
	h.clock.Advance(3 * 24 * time.Hour)

	progress, err := newQueries(h, config.Default().Patterns).GetLearningProgress(ctx, "u1", 7)
	require.NoError(t, err)
	require.Len(t, progress.Daily, 2)
	assert.InDelta(t, 5.0, progress.Slope, 1e-9)
	assert.Equal(t, "improving", progress.Trend)
}

// five trades opened within one minute with a limit of three per hour.
func TestDetectPatternsOvertrading(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	s := h.start(t, "u1")
	h.quote(t, "AAPL", 100)

	for i := 0; i < 5; i++ {
		_, err := h.manager.Open(ctx, marketBuy("u1", s.ID, "AAPL", 1))
		require.NoError(t, err, fmt.Sprintf("open %d", i))
		h.clock.Advance(10 * time.Second)
	}

	cfg := config.Default().Patterns
	cfg.OvertradingPerHour = 3
	report, err := newQueries(h, cfg).DetectPatterns(ctx, "u1")
	require.NoError(t, err)

	assert.Equal(t, 5, report.TradeCount)
	assert.True(t, report.Has(models.PatternOvertrading))
	assert.False(t, report.Has(models.PatternRevengeTrading))
}
