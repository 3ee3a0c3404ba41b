package feed

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"paper-ledger/internal/errors"
	"paper-ledger/internal/models"
	"paper-ledger/internal/resilience"
)

// GuardedFeed puts a circuit breaker in front of a remote feed. Missing
// quotes are answers, not outages, and never trip the breaker.
type GuardedFeed struct {
	inner   RecordingFeed
	breaker *resilience.Breaker
	logger  zerolog.Logger
}

// NewGuardedFeed wraps inner with a breaker.
func NewGuardedFeed(inner RecordingFeed, breaker *resilience.Breaker, logger zerolog.Logger) *GuardedFeed {
	breaker.IsFailure = func(err error) bool {
		return !errors.Is(err, errors.ErrNoQuote) && !errors.Is(err, errors.ErrInvalidOrder)
	}
	return &GuardedFeed{inner: inner, breaker: breaker, logger: logger}
}

// LatestTick implements PriceFeed.
func (g *GuardedFeed) LatestTick(ctx context.Context, symbol string) (models.Tick, error) {
	tick, err := resilience.Call(g.breaker, func() (models.Tick, error) {
		return g.inner.LatestTick(ctx, symbol)
	})
	return tick, g.translate(err, symbol)
}

// TickHistory implements PriceFeed.
func (g *GuardedFeed) TickHistory(ctx context.Context, symbol string, from, to time.Time) ([]models.Tick, error) {
	ticks, err := resilience.Call(g.breaker, func() ([]models.Tick, error) {
		return g.inner.TickHistory(ctx, symbol, from, to)
	})
	return ticks, g.translate(err, symbol)
}

// Record implements Recorder.
func (g *GuardedFeed) Record(ctx context.Context, tick models.Tick) error {
	err := g.breaker.Do(func() error {
		return g.inner.Record(ctx, tick)
	})
	return g.translate(err, tick.Symbol)
}

// State returns the breaker state.
func (g *GuardedFeed) State() resilience.State {
	return g.breaker.State()
}

func (g *GuardedFeed) translate(err error, symbol string) error {
	if errors.Is(err, resilience.ErrOpen) {
		g.logger.Warn().Str("feed", g.breaker.Name()).Str("symbol", symbol).Msg("Price feed unavailable, breaker open")
		return errors.Wrapf(errors.ErrNoQuote, "feed %s unavailable", g.breaker.Name())
	}
	return err
}
