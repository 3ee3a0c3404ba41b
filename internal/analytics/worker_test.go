package analytics

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"paper-ledger/internal/errors"
	"paper-ledger/internal/events"
	"paper-ledger/internal/feed"
	"paper-ledger/internal/models"
	"paper-ledger/internal/workers"
	"paper-ledger/pkg/utils"
)

type memStore struct {
	mu        sync.Mutex
	trades    map[string]*models.Trade
	saved     map[string]*models.TradeAnalytics
	saves     int
	failSaves int
}

func newMemStore() *memStore {
	return &memStore{trades: make(map[string]*models.Trade), saved: make(map[string]*models.TradeAnalytics)}
}

func (m *memStore) GetTrade(_ context.Context, id string) (*models.Trade, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.trades[id]
	if !ok {
		return nil, errors.Wrapf(errors.ErrNotFound, "trade %s", id)
	}
	c := *t
	return &c, nil
}

func (m *memStore) SaveAnalytics(_ context.Context, a *models.TradeAnalytics) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saves++
	if m.failSaves > 0 {
		m.failSaves--
		return errors.ErrDatabaseError
	}
	m.saved[a.TradeID] = a
	return nil
}

func (m *memStore) get(id string) *models.TradeAnalytics {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saved[id]
}

func fastRetry() utils.RetryConfig {
	return utils.RetryConfig{MaxAttempts: 3, InitialDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond, BackoffFactor: 2}
}

func newTestWorker(t *testing.T, st *memStore) (*Worker, *feed.MemoryFeed) {
	t.Helper()
	ctx := context.Background()
	mem := feed.NewMemoryFeed()
	for _, tk := range sampleHistory() {
		require.NoError(t, mem.Record(ctx, tk))
	}
	pool := workers.NewPool("analytics", 2, 16, zerolog.Nop())
	pool.Start(ctx)
	t.Cleanup(pool.Stop)
	return NewWorker(testEngine(), st, mem, pool, fastRetry(), zerolog.Nop()), mem
}

func TestWorkerAnalyzesClosedTrades(t *testing.T) {
	st := newMemStore()
	st.failSaves = 1
	w, _ := newTestWorker(t, st)
	bus := events.NewBus(zerolog.Nop())
	w.Attach(bus)

	trade := closedBuy(100, 104, 10, 10*time.Minute)
	bus.PublishTrade(events.TradeClosed, trade)
	bus.PublishTrade(events.TradeOpened, trade)

	require.Eventually(t, func() bool { return st.get(trade.ID) != nil }, 2*time.Second, 5*time.Millisecond)
	a := st.get(trade.ID)
	assert.True(t, a.Complete)
	assert.Equal(t, models.TimingEarly, a.Timing.EntryTiming)
	assert.Equal(t, 2, st.saves, "first save fails and is retried")
}

func TestWorkerSavesIncompleteAnalysis(t *testing.T) {
	st := newMemStore()
	w, _ := newTestWorker(t, st)

	trade := closedBuy(50, 51, 1, time.Minute)
	trade.Symbol = "NOTICKS"
	a, err := w.Process(context.Background(), trade)
	assert.True(t, errors.Is(err, errors.ErrAnalyticsIncomplete))
	require.NotNil(t, a)
	assert.False(t, st.get(trade.ID).Complete)
}

func TestReanalyzeReplaces(t *testing.T) {
	st := newMemStore()
	w, mem := newTestWorker(t, st)
	ctx := context.Background()

	trade := closedBuy(100, 104, 10, 10*time.Minute)
	trade.ID = "re"
	st.trades[trade.ID] = trade

	first, err := w.Reanalyze(ctx, "re")
	require.NoError(t, err)
	require.NoError(t, mem.Record(ctx, models.Tick{Symbol: "AAPL", Price: 120, Timestamp: t0.Add(20 * time.Minute)}))

	second, err := w.Reanalyze(ctx, "re")
	require.NoError(t, err)
	assert.Greater(t, second.MissedOpportunities[len(second.MissedOpportunities)-1].PotentialGain,
		first.MissedOpportunities[len(first.MissedOpportunities)-1].PotentialGain)
	assert.Same(t, second, st.get("re"))

	_, err = w.Reanalyze(ctx, "missing")
	assert.True(t, errors.Is(err, errors.ErrNotFound))
}

// downFeed serves no history at all.
type downFeed struct{ calls int }

func (f *downFeed) LatestTick(context.Context, string) (models.Tick, error) {
	return models.Tick{}, errors.ErrNoQuote
}

func (f *downFeed) TickHistory(context.Context, string, time.Time, time.Time) ([]models.Tick, error) {
	f.calls++
	return nil, errors.ErrDatabaseError
}

func TestWorkerSavesDegradedAnalysisWithoutHistory(t *testing.T) {
	st := newMemStore()
	down := &downFeed{}
	w := NewWorker(testEngine(), st, down, nil, fastRetry(), zerolog.Nop())

	trade := closedBuy(100, 104, 10, 10*time.Minute)
	a, err := w.Process(context.Background(), trade)
	assert.True(t, errors.Is(err, errors.ErrAnalyticsIncomplete))
	require.NotNil(t, a)
	assert.Equal(t, 3, down.calls)

	saved := st.get(trade.ID)
	require.NotNil(t, saved)
	assert.False(t, saved.Complete)
	assert.Equal(t, models.TimingUnknown, saved.Timing.EntryTiming)
	assert.Equal(t, models.MarketUnknown, saved.Timing.MarketCondition)
	assert.InDelta(t, 40.0, saved.Financial.PnL, 1e-9)
}

func TestRetryableSkipsEncodeErrors(t *testing.T) {
	encodeErr := fmt.Errorf("failed to encode analytics: %w", &json.UnsupportedValueError{Str: "NaN"})
	assert.False(t, retryable(encodeErr))
	assert.False(t, retryable(errors.Wrapf(errors.ErrNotFound, "trade t1")))
	assert.True(t, retryable(errors.ErrDatabaseError))
}
