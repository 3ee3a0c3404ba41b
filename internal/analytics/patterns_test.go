package analytics

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"paper-ledger/internal/config"
	"paper-ledger/internal/feed"
	"paper-ledger/internal/models"
)

func patternsConfig() config.PatternsConfig {
	cfg := config.Default().Patterns
	cfg.CorrelationGroups = map[string][]string{"megacap_tech": {"AAPL", "MSFT", "GOOGL"}}
	return cfg
}

func openTrade(id, symbol string, entry time.Time, price float64) models.Trade {
	return models.Trade{
		ID:         id,
		UserID:     "u1",
		Symbol:     symbol,
		Side:       models.OrderSideBuy,
		Quantity:   1,
		EntryPrice: price,
		EntryTime:  entry,
		Status:     models.TradeOpen,
	}
}

func losingTrade(id, symbol string, entry, exit time.Time) models.Trade {
	t := openTrade(id, symbol, entry, 100)
	t.Status = models.TradeClosed
	t.ExitTime = &exit
	t.ExitPrice = models.Float(95)
	t.PnL = models.Float(-5)
	return t
}

func TestOvertradingFiveTradesInOneMinute(t *testing.T) {
	cfg := patternsConfig()
	cfg.OvertradingPerHour = 3
	now := t0.Add(time.Hour)
	d := NewPatternDetector(cfg, nil, func() time.Time { return now }, zerolog.Nop())

	var trades []models.Trade
	for i := 0; i < 5; i++ {
		trades = append(trades, openTrade(fmt.Sprintf("t%d", i), "AAPL", t0.Add(time.Duration(i)*12*time.Second), 100))
	}

	report, err := d.DetectPatterns(context.Background(), "u1", trades)
	require.NoError(t, err)
	require.True(t, report.Has(models.PatternOvertrading))
	flag := report.Flags[0]
	assert.Equal(t, 5, flag.Occurrences)
	assert.Len(t, flag.TradeIDs, 5)
	assert.Equal(t, models.SeverityMedium, flag.Severity)
	assert.True(t, flag.DetectedAt.Equal(now))
}

func TestOvertradingNeedsSameHour(t *testing.T) {
	cfg := patternsConfig()
	cfg.OvertradingPerHour = 3
	d := NewPatternDetector(cfg, nil, func() time.Time { return t0.Add(6 * time.Hour) }, zerolog.Nop())

	var trades []models.Trade
	for i := 0; i < 5; i++ {
		trades = append(trades, openTrade(fmt.Sprintf("t%d", i), "AAPL", t0.Add(time.Duration(i)*61*time.Minute), 100))
	}
	report, err := d.DetectPatterns(context.Background(), "u1", trades)
	require.NoError(t, err)
	assert.False(t, report.Has(models.PatternOvertrading))
}

func TestRevengeTradingInCorrelatedSymbol(t *testing.T) {
	d := NewPatternDetector(patternsConfig(), nil, func() time.Time { return t0.Add(2 * time.Hour) }, zerolog.Nop())

	loss := losingTrade("loss", "AAPL", t0, t0.Add(10*time.Minute))
	trades := []models.Trade{
		loss,
		openTrade("revenge", "MSFT", t0.Add(15*time.Minute), 400),
		openTrade("unrelated", "XOM", t0.Add(12*time.Minute), 110),
		openTrade("later", "AAPL", t0.Add(time.Hour), 100),
	}

	report, err := d.DetectPatterns(context.Background(), "u1", trades)
	require.NoError(t, err)
	require.True(t, report.Has(models.PatternRevengeTrading))
	for _, f := range report.Flags {
		if f.Type == models.PatternRevengeTrading {
			assert.Equal(t, []string{"revenge"}, f.TradeIDs)
		}
	}
}

func TestFOMODetection(t *testing.T) {
	ctx := context.Background()
	mem := feed.NewMemoryFeed()
	require.NoError(t, mem.Record(ctx, models.Tick{Symbol: "TSLA", Price: 200, Timestamp: t0.Add(-10 * time.Minute)}))
	require.NoError(t, mem.Record(ctx, models.Tick{Symbol: "TSLA", Price: 206, Timestamp: t0}))

	d := NewPatternDetector(patternsConfig(), mem, func() time.Time { return t0.Add(time.Hour) }, zerolog.Nop())
	chase := openTrade("chase", "TSLA", t0, 206)
	fade := openTrade("fade", "TSLA", t0, 206)
	fade.Side = models.OrderSideSell

	report, err := d.DetectPatterns(ctx, "u1", []models.Trade{chase, fade})
	require.NoError(t, err)
	require.True(t, report.Has(models.PatternFOMO))
	for _, f := range report.Flags {
		if f.Type == models.PatternFOMO {
			assert.Equal(t, []string{"chase"}, f.TradeIDs)
		}
	}
}

func TestDetectPatternsIgnoresOldAndCancelledTrades(t *testing.T) {
	cfg := patternsConfig()
	cfg.OvertradingPerHour = 1
	now := t0.Add(48 * time.Hour)
	d := NewPatternDetector(cfg, nil, func() time.Time { return now }, zerolog.Nop())

	old := openTrade("old1", "AAPL", t0, 100)
	old2 := openTrade("old2", "AAPL", t0.Add(time.Minute), 100)
	cancelled := openTrade("cxl", "AAPL", now.Add(-time.Minute), 100)
	cancelled.Status = models.TradeCancelled
	recent := openTrade("recent", "AAPL", now.Add(-2*time.Minute), 100)

	report, err := d.DetectPatterns(context.Background(), "u1", []models.Trade{old, old2, cancelled, recent})
	require.NoError(t, err)
	assert.Equal(t, 1, report.TradeCount)
	assert.Empty(t, report.Flags)
}
