package ledger

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"paper-ledger/internal/feed"
	"paper-ledger/internal/models"
)

// Repricer revalues open trades as ticks arrive on the hub and, when an
// interval is set, on a fixed schedule from the latest stored quotes.
type Repricer struct {
	manager  *Manager
	hub      *feed.Hub
	interval time.Duration
	logger   zerolog.Logger
}

// NewRepricer creates a repricer. hub may be nil for polling only; an
// interval of zero disables polling.
func NewRepricer(manager *Manager, hub *feed.Hub, interval time.Duration, logger zerolog.Logger) *Repricer {
	return &Repricer{
		manager:  manager,
		hub:      hub,
		interval: interval,
		logger:   logger.With().Str("component", "repricer").Logger(),
	}
}

// Run blocks until ctx is cancelled or the hub stops.
func (r *Repricer) Run(ctx context.Context) error {
	var ticks <-chan models.Tick
	if r.hub != nil {
		ticks = r.hub.Subscribe("", "repricer")
		defer r.hub.Unsubscribe("", ticks)
	}

	var poll <-chan time.Time
	if r.interval > 0 {
		ticker := time.NewTicker(r.interval)
		defer ticker.Stop()
		poll = ticker.C
	}

	if ticks == nil && poll == nil {
		<-ctx.Done()
		return nil
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case tick, ok := <-ticks:
			if !ok {
				return nil
			}
			if _, err := r.manager.RepriceAt(ctx, tick.Symbol, tick.Price); err != nil && ctx.Err() == nil {
				r.logger.Warn().Err(err).Str("symbol", tick.Symbol).Msg("Repricing failed")
			}
		case <-poll:
			r.RepriceAll(ctx)
		}
	}
}

// RepriceAll revalues every open trade from the latest quote of its symbol.
func (r *Repricer) RepriceAll(ctx context.Context) int {
	open, err := r.manager.store.ListTrades(ctx, models.TradeFilter{Status: models.TradeOpen})
	if err != nil {
		r.logger.Warn().Err(err).Msg("Failed to list open trades")
		return 0
	}
	seen := make(map[string]bool)
	total := 0
	for _, t := range open {
		if seen[t.Symbol] {
			continue
		}
		seen[t.Symbol] = true
		n, err := r.manager.Reprice(ctx, t.Symbol)
		if err != nil {
			r.logger.Warn().Err(err).Str("symbol", t.Symbol).Msg("Repricing failed")
			continue
		}
		total += n
	}
	r.logger.Debug().Int("symbols", len(seen)).Int("revalued", total).Msg("Repricing pass complete")
	return total
}
