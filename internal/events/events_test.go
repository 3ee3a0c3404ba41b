package events

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"paper-ledger/internal/models"
)

func TestBusDeliversByType(t *testing.T) {
	bus := NewBus(zerolog.Nop())

	var closed, all []Event
	bus.Subscribe(TradeClosed, func(e Event) { closed = append(closed, e) })
	bus.SubscribeAll(func(e Event) { all = append(all, e) })

	tr := &models.Trade{ID: "t1", UserID: "u1", Symbol: "AAPL"}
	bus.PublishTrade(TradeOpened, tr)
	bus.PublishTrade(TradeClosed, tr)

	require.Len(t, closed, 1)
	assert.Equal(t, "t1", closed[0].Trade.ID)
	assert.Equal(t, "u1", closed[0].UserID)
	assert.NotEmpty(t, closed[0].ID)
	assert.False(t, closed[0].Timestamp.IsZero())
	assert.Len(t, all, 2)

	// the payload is a copy
	tr.Symbol = "MSFT"
	assert.Equal(t, "AAPL", closed[0].Trade.Symbol)
}

func TestBusSurvivesPanickingSubscriber(t *testing.T) {
	bus := NewBus(zerolog.Nop())
	got := 0
	bus.Subscribe(SimulationClosed, func(Event) { panic("boom") })
	bus.Subscribe(SimulationClosed, func(Event) { got++ })

	bus.PublishSession(SimulationClosed, &models.TradingSession{ID: "s1", UserID: "u1"})
	assert.Equal(t, 1, got)
}

type fakePublisher struct {
	mu       sync.Mutex
	subjects []string
	payloads [][]byte
}

func (f *fakePublisher) Publish(subject string, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subjects = append(f.subjects, subject)
	f.payloads = append(f.payloads, data)
	return nil
}

func TestNATSBridgeForwardsJSON(t *testing.T) {
	bus := NewBus(zerolog.Nop())
	pub := &fakePublisher{}
	NewNATSBridge(pub, "paper", zerolog.Nop()).Attach(bus)

	bus.PublishSession(SessionStarted, &models.TradingSession{ID: "s1", UserID: "u1"})

	require.Len(t, pub.subjects, 1)
	assert.Equal(t, "paper.session.started", pub.subjects[0])

	var e Event
	require.NoError(t, json.Unmarshal(pub.payloads[0], &e))
	assert.Equal(t, SessionStarted, e.Type)
	assert.Equal(t, "s1", e.Session.ID)
}

func TestHandleTickDecodesAndRejects(t *testing.T) {
	var got []models.Tick
	handler := func(_ context.Context, tick models.Tick) error {
		if tick.Price <= 0 {
			return errors.New("bad price")
		}
		got = append(got, tick)
		return nil
	}

	assert.True(t, handleTick(context.Background(), []byte(`{"symbol":"AAPL","price":101.5,"timestamp":"2024-03-01T14:30:00Z"}`), handler, zerolog.Nop()))
	assert.False(t, handleTick(context.Background(), []byte(`{"symbol":"AAPL","price":0}`), handler, zerolog.Nop()))
	assert.False(t, handleTick(context.Background(), []byte(`not json`), handler, zerolog.Nop()))

	require.Len(t, got, 1)
	assert.Equal(t, "AAPL", got[0].Symbol)
	assert.Equal(t, 101.5, got[0].Price)
	assert.Equal(t, "ledger.ticks", TickSubject(""))
	assert.Equal(t, "paper.ticks", TickSubject("paper"))
}
