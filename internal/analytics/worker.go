package analytics

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"paper-ledger/internal/errors"
	"paper-ledger/internal/events"
	"paper-ledger/internal/feed"
	"paper-ledger/internal/logging"
	"paper-ledger/internal/metrics"
	"paper-ledger/internal/models"
	"paper-ledger/internal/workers"
	"paper-ledger/pkg/utils"
)

// Store is the persistence the worker needs.
type Store interface {
	GetTrade(ctx context.Context, id string) (*models.Trade, error)
	SaveAnalytics(ctx context.Context, analytics *models.TradeAnalytics) error
}

// Worker analyzes closed trades in the background.
type Worker struct {
	engine *Engine
	store  Store
	feed   feed.PriceFeed
	pool   *workers.Pool
	retry  utils.RetryConfig
	logger zerolog.Logger
}

// NewWorker creates an analytics worker that runs on pool.
func NewWorker(engine *Engine, st Store, priceFeed feed.PriceFeed, pool *workers.Pool, retry utils.RetryConfig, logger zerolog.Logger) *Worker {
	if retry.Retryable == nil {
		retry.Retryable = retryable
	}
	return &Worker{
		engine: engine,
		store:  st,
		feed:   priceFeed,
		pool:   pool,
		retry:  retry,
		logger: logger.With().Str("component", "analytics_worker").Logger(),
	}
}

// Attach queues every closed trade for analysis. Closing never waits on it.
func (w *Worker) Attach(bus *events.Bus) {
	bus.Subscribe(events.TradeClosed, func(e events.Event) {
		if e.Trade == nil {
			return
		}
		trade := *e.Trade
		if !w.pool.Submit(func(ctx context.Context) {
			if _, err := w.Process(ctx, &trade); err != nil && !errors.Is(err, errors.ErrAnalyticsIncomplete) {
				w.logger.Error().Err(err).Str("trade_id", trade.ID).Msg("Trade analysis failed")
			}
		}) {
			metrics.AnalyticsFailures.Inc()
			w.logger.Warn().Str("trade_id", trade.ID).Msg("Analytics queue full, trade not analyzed")
		}
	})
}

// Process analyzes trade and saves the result, replacing any earlier one.
// An incomplete analysis is still saved and returned with
// ErrAnalyticsIncomplete.
func (w *Worker) Process(ctx context.Context, trade *models.Trade) (*models.TradeAnalytics, error) {
	start := time.Now()
	defer func() { metrics.AnalyticsDuration.Observe(time.Since(start).Seconds()) }()

	from, to := w.engine.HistoryRange(trade)
	ticks, historyErr := utils.RetryWithResult(ctx, w.retry, func() ([]models.Tick, error) {
		return w.feed.TickHistory(ctx, trade.Symbol, from, to)
	})
	if historyErr != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		// Without history the analysis degrades to unknown timing.
		tradeLogger := logging.WithTradeID(w.logger, trade.ID)
		tradeLogger.Warn().Err(historyErr).Msg("Tick history unavailable, saving degraded analysis")
		ticks = nil
	}

	result, analyzeErr := w.engine.Analyze(trade, ticks)
	if result == nil {
		metrics.AnalyticsFailures.Inc()
		return nil, analyzeErr
	}
	if historyErr != nil && analyzeErr != nil {
		analyzeErr = fmt.Errorf("%w: tick history: %v", analyzeErr, historyErr)
	}

	if err := utils.Retry(ctx, w.retry, func() error {
		return w.store.SaveAnalytics(ctx, result)
	}); err != nil {
		metrics.AnalyticsFailures.Inc()
		return nil, fmt.Errorf("failed to save analytics for %s: %w", trade.ID, err)
	}

	logger := logging.WithTradeID(w.logger, trade.ID)
	event := logger.Info()
	if analyzeErr != nil {
		event = logger.Warn().Err(analyzeErr)
	}
	event.
		Str("symbol", trade.Symbol).
		Int("ticks", len(ticks)).
		Bool("complete", result.Complete).
		Float64("overall", result.Learning.Overall).
		Msg("Trade analyzed")
	return result, analyzeErr
}

// Reanalyze recomputes the analytics of a closed trade and replaces the
// stored record.
func (w *Worker) Reanalyze(ctx context.Context, tradeID string) (*models.TradeAnalytics, error) {
	trade, err := w.store.GetTrade(ctx, tradeID)
	if err != nil {
		return nil, err
	}
	return w.Process(ctx, trade)
}

// retryable skips errors that another attempt cannot fix.
func retryable(err error) bool {
	var unsupportedValue *json.UnsupportedValueError
	var unsupportedType *json.UnsupportedTypeError
	if errors.As(err, &unsupportedValue) || errors.As(err, &unsupportedType) {
		return false
	}
	return !errors.Is(err, errors.ErrNotFound) &&
		!errors.Is(err, errors.ErrInvalidOrder) &&
		!errors.Is(err, context.Canceled) &&
		!errors.Is(err, context.DeadlineExceeded)
}
