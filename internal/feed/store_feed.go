package feed

import (
	"context"
	"time"

	"paper-ledger/internal/models"
)

// TickStore is the subset of the store used by StoreFeed.
type TickStore interface {
	SaveTicks(ctx context.Context, ticks []models.Tick) error
	LatestTick(ctx context.Context, symbol string) (models.Tick, error)
	TickHistory(ctx context.Context, symbol string, from, to time.Time) ([]models.Tick, error)
}

// StoreFeed serves ticks from the ledger database.
type StoreFeed struct {
	store TickStore
}

// NewStoreFeed creates a feed backed by the ticks table.
func NewStoreFeed(store TickStore) *StoreFeed {
	return &StoreFeed{store: store}
}

// Record implements Recorder.
func (f *StoreFeed) Record(ctx context.Context, tick models.Tick) error {
	if err := Validate(&tick); err != nil {
		return err
	}
	return f.store.SaveTicks(ctx, []models.Tick{tick})
}

// LatestTick implements PriceFeed.
func (f *StoreFeed) LatestTick(ctx context.Context, symbol string) (models.Tick, error) {
	return f.store.LatestTick(ctx, NormalizeSymbol(symbol))
}

// TickHistory implements PriceFeed.
func (f *StoreFeed) TickHistory(ctx context.Context, symbol string, from, to time.Time) ([]models.Tick, error) {
	return f.store.TickHistory(ctx, NormalizeSymbol(symbol), from, to)
}
