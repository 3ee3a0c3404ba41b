package feed

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"paper-ledger/internal/errors"
	"paper-ledger/internal/models"
	"paper-ledger/internal/store"
)

var t0 = time.Date(2024, 3, 1, 14, 30, 0, 0, time.UTC)

func sampleTicks() []models.Tick {
	return []models.Tick{
		{Symbol: "aapl", Price: 151, Timestamp: t0.Add(2 * time.Minute)},
		{Symbol: "AAPL", Price: 150, Timestamp: t0},
		{Symbol: "AAPL", Price: 152, Timestamp: t0.Add(time.Minute)},
		{Symbol: "MSFT", Price: 400, Timestamp: t0.Add(time.Minute)},
	}
}

// exerciseFeed runs the same checks against any feed implementation.
func exerciseFeed(t *testing.T, f RecordingFeed) {
	t.Helper()
	ctx := context.Background()

	_, err := f.LatestTick(ctx, "AAPL")
	assert.True(t, errors.Is(err, errors.ErrNoQuote))

	for _, tick := range sampleTicks() {
		require.NoError(t, f.Record(ctx, tick))
	}

	latest, err := f.LatestTick(ctx, "aapl")
	require.NoError(t, err)
	assert.Equal(t, 151.0, latest.Price)

	hist, err := f.TickHistory(ctx, "AAPL", t0, t0.Add(time.Minute))
	require.NoError(t, err)
	require.Len(t, hist, 2)
	assert.Equal(t, 150.0, hist[0].Price)
	assert.Equal(t, 152.0, hist[1].Price)

	err = f.Record(ctx, models.Tick{Symbol: "AAPL", Price: -1, Timestamp: t0})
	assert.True(t, errors.Is(err, errors.ErrInvalidOrder))
}

func TestMemoryFeed(t *testing.T) {
	exerciseFeed(t, NewMemoryFeed())
}

func TestStoreFeed(t *testing.T) {
	s, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "feed.db"))
	require.NoError(t, err)
	defer s.Close()

	exerciseFeed(t, NewStoreFeed(s))
}

func TestRedisFeed(t *testing.T) {
	addr := os.Getenv("LEDGER_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("LEDGER_TEST_REDIS_ADDR not set")
	}
	client := redis.NewClient(&redis.Options{Addr: addr, DB: 15})
	ctx := context.Background()
	require.NoError(t, client.FlushDB(ctx).Err())
	defer client.Close()

	exerciseFeed(t, NewRedisFeedWithClient(client, 100))
}

func TestValidate(t *testing.T) {
	tick := models.Tick{Symbol: " msft ", Price: 10, Timestamp: t0}
	require.NoError(t, Validate(&tick))
	assert.Equal(t, "MSFT", tick.Symbol)

	assert.Error(t, Validate(&models.Tick{Price: 10, Timestamp: t0}))
	assert.Error(t, Validate(&models.Tick{Symbol: "X", Price: 10}))
	assert.Error(t, Validate(&models.Tick{Symbol: "X", Price: 10, Timestamp: t0, Bid: models.Float(11), Ask: models.Float(10)}))
}

func TestHubFanOut(t *testing.T) {
	mem := NewMemoryFeed()
	hub := NewHub(DefaultHubConfig(), mem, zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	hub.Start(ctx)
	defer hub.Stop()

	aapl := hub.Subscribe("AAPL", "a")
	all := hub.Subscribe("", "all")
	assert.Equal(t, 1, hub.SubscriberCount("aapl"))

	require.NoError(t, hub.Ingest(ctx, models.Tick{Symbol: "aapl", Price: 150, Timestamp: t0}))
	require.NoError(t, hub.Ingest(ctx, models.Tick{Symbol: "MSFT", Price: 400, Timestamp: t0}))

	select {
	case tick := <-aapl:
		assert.Equal(t, "AAPL", tick.Symbol)
	case <-time.After(time.Second):
		t.Fatal("AAPL subscriber did not receive tick")
	}

	got := 0
	for got < 2 {
		select {
		case <-all:
			got++
		case <-time.After(time.Second):
			t.Fatalf("wildcard subscriber received %d ticks, want 2", got)
		}
	}

	// recorded through the recorder as well
	latest, err := mem.LatestTick(ctx, "MSFT")
	require.NoError(t, err)
	assert.Equal(t, 400.0, latest.Price)

	hub.Unsubscribe("AAPL", aapl)
	assert.Equal(t, 0, hub.SubscriberCount("AAPL"))
}

func TestHubDropsForSlowConsumer(t *testing.T) {
	hub := NewHub(HubConfig{BufferSize: 100, SubscriberBufferSize: 1}, nil, zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	slow := hub.Subscribe("AAPL", "slow")
	hub.Start(ctx)
	defer hub.Stop()

	for i := 0; i < 5; i++ {
		hub.Publish(models.Tick{Symbol: "AAPL", Price: 150, Timestamp: t0.Add(time.Duration(i) * time.Second)})
	}

	assert.Eventually(t, func() bool {
		m := hub.Metrics()
		return m.TicksBroadcast+m.TicksDropped == 5
	}, time.Second, 10*time.Millisecond)

	m := hub.Metrics()
	assert.Equal(t, uint64(1), m.TicksBroadcast)
	assert.Equal(t, uint64(4), m.TicksDropped)
	assert.Len(t, slow, 1)
}
