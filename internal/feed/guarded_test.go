package feed

import (
	"context"
	stderrors "errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"paper-ledger/internal/errors"
	"paper-ledger/internal/models"
	"paper-ledger/internal/resilience"
)

// flakyFeed fails every call while down is set.
type flakyFeed struct {
	*MemoryFeed
	down  bool
	calls int
}

var errRedisDown = stderrors.New("dial tcp: connection refused")

func (f *flakyFeed) LatestTick(ctx context.Context, symbol string) (models.Tick, error) {
	f.calls++
	if f.down {
		return models.Tick{}, errRedisDown
	}
	return f.MemoryFeed.LatestTick(ctx, symbol)
}

func TestGuardedFeedOpensOnOutage(t *testing.T) {
	ctx := context.Background()
	inner := &flakyFeed{MemoryFeed: NewMemoryFeed()}
	require.NoError(t, inner.Record(ctx, models.Tick{Symbol: "AAPL", Price: 190, Timestamp: t0}))

	breaker := resilience.New("redis", resilience.Config{FailureThreshold: 2, Cooldown: time.Hour}, nil)
	g := NewGuardedFeed(inner, breaker, zerolog.Nop())

	tick, err := g.LatestTick(ctx, "AAPL")
	require.NoError(t, err)
	assert.Equal(t, 190.0, tick.Price)

	inner.down = true
	for i := 0; i < 2; i++ {
		_, err = g.LatestTick(ctx, "AAPL")
		assert.ErrorIs(t, err, errRedisDown)
	}
	assert.Equal(t, resilience.StateOpen, g.State())

	_, err = g.LatestTick(ctx, "AAPL")
	assert.ErrorIs(t, err, errors.ErrNoQuote)
	assert.Equal(t, 3, inner.calls)
}

func TestGuardedFeedMissingQuoteDoesNotTrip(t *testing.T) {
	ctx := context.Background()
	breaker := resilience.New("redis", resilience.Config{FailureThreshold: 1}, nil)
	g := NewGuardedFeed(NewMemoryFeed(), breaker, zerolog.Nop())

	for i := 0; i < 3; i++ {
		_, err := g.LatestTick(ctx, "MSFT")
		assert.ErrorIs(t, err, errors.ErrNoQuote)
	}
	assert.Equal(t, resilience.StateClosed, g.State())

	require.NoError(t, g.Record(ctx, models.Tick{Symbol: "msft", Price: 410, Timestamp: t0}))
	ticks, err := g.TickHistory(ctx, "MSFT", t0.Add(-time.Minute), t0.Add(time.Minute))
	require.NoError(t, err)
	assert.Len(t, ticks, 1)
}
