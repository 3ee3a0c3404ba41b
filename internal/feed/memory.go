package feed

import (
	"context"
	"sort"
	"sync"
	"time"

	"paper-ledger/internal/models"
)

// MemoryFeed keeps ticks in process memory.
type MemoryFeed struct {
	mu    sync.RWMutex
	ticks map[string][]models.Tick
}

// NewMemoryFeed creates an empty in-memory feed.
func NewMemoryFeed() *MemoryFeed {
	return &MemoryFeed{ticks: make(map[string][]models.Tick)}
}

// Record implements Recorder. Ticks are kept ordered by timestamp; a tick
// with an existing timestamp replaces the earlier one.
func (f *MemoryFeed) Record(_ context.Context, tick models.Tick) error {
	if err := Validate(&tick); err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	ticks := f.ticks[tick.Symbol]
	i := sort.Search(len(ticks), func(i int) bool { return !ticks[i].Timestamp.Before(tick.Timestamp) })
	if i < len(ticks) && ticks[i].Timestamp.Equal(tick.Timestamp) {
		ticks[i] = tick
		return nil
	}
	ticks = append(ticks, models.Tick{})
	copy(ticks[i+1:], ticks[i:])
	ticks[i] = tick
	f.ticks[tick.Symbol] = ticks
	return nil
}

// LatestTick implements PriceFeed.
func (f *MemoryFeed) LatestTick(_ context.Context, symbol string) (models.Tick, error) {
	symbol = NormalizeSymbol(symbol)

	f.mu.RLock()
	defer f.mu.RUnlock()

	ticks := f.ticks[symbol]
	if len(ticks) == 0 {
		return models.Tick{}, noQuote(symbol)
	}
	return ticks[len(ticks)-1], nil
}

// TickHistory implements PriceFeed.
func (f *MemoryFeed) TickHistory(_ context.Context, symbol string, from, to time.Time) ([]models.Tick, error) {
	symbol = NormalizeSymbol(symbol)

	f.mu.RLock()
	defer f.mu.RUnlock()

	var out []models.Tick
	for _, t := range f.ticks[symbol] {
		if t.Timestamp.Before(from) || t.Timestamp.After(to) {
			continue
		}
		out = append(out, t)
	}
	return out, nil
}
