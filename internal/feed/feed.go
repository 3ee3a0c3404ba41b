// Package feed provides price feed implementations for the ledger.
package feed

import (
	"context"
	"strings"
	"time"

	"paper-ledger/internal/errors"
	"paper-ledger/internal/models"
)

// PriceFeed provides validated quotes to the ledger.
type PriceFeed interface {
	// LatestTick returns the most recent tick, or an error matching
	// errors.ErrNoQuote when none is known.
	LatestTick(ctx context.Context, symbol string) (models.Tick, error)
	// TickHistory returns ticks within [from, to], oldest first.
	TickHistory(ctx context.Context, symbol string, from, to time.Time) ([]models.Tick, error)
}

// Recorder ingests ticks into a feed.
type Recorder interface {
	Record(ctx context.Context, tick models.Tick) error
}

// RecordingFeed is a feed that can also ingest ticks.
type RecordingFeed interface {
	PriceFeed
	Recorder
}

// NormalizeSymbol upper-cases and trims a symbol.
func NormalizeSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}

// Validate checks that a tick is usable and normalizes its symbol and timestamp.
func Validate(tick *models.Tick) error {
	tick.Symbol = NormalizeSymbol(tick.Symbol)
	if tick.Symbol == "" {
		return errors.NewValidationError("symbol", tick.Symbol, "symbol is required")
	}
	if tick.Price <= 0 {
		return errors.NewValidationError("price", tick.Price, "price must be positive")
	}
	if tick.Timestamp.IsZero() {
		return errors.NewValidationError("timestamp", tick.Timestamp, "timestamp is required")
	}
	if tick.Bid != nil && tick.Ask != nil && *tick.Bid > *tick.Ask {
		return errors.NewValidationError("bid", *tick.Bid, "bid above ask")
	}
	tick.Timestamp = tick.Timestamp.UTC()
	return nil
}

func noQuote(symbol string) error {
	return errors.NewDataError("tick", symbol, "no quote", errors.ErrNoQuote)
}
