// Package events provides the in-process ledger event bus.
package events

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"paper-ledger/internal/models"
)

// EventType represents different types of ledger events.
type EventType string

const (
	TradeOpened      EventType = "trade.opened"
	TradeClosed      EventType = "trade.closed"
	TradeCancelled   EventType = "trade.cancelled"
	SessionStarted   EventType = "session.started"
	SessionPaused    EventType = "session.paused"
	SessionResumed   EventType = "session.resumed"
	SimulationClosed EventType = "simulation.closed"
)

// Event is a ledger event. Trade is set for trade events and Session for
// session events.
type Event struct {
	ID        string                 `json:"id"`
	Type      EventType              `json:"type"`
	Timestamp time.Time              `json:"timestamp"`
	UserID    string                 `json:"user_id"`
	Trade     *models.Trade          `json:"trade,omitempty"`
	Session   *models.TradingSession `json:"session,omitempty"`
}

// Subscriber handles events. Subscribers run on the publishing goroutine
// and must hand long work off to a worker pool.
type Subscriber func(Event)

// Bus manages event publishing and subscriptions.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[EventType][]Subscriber
	allSubs     []Subscriber
	logger      zerolog.Logger
	now         func() time.Time
}

// NewBus creates a new event bus.
func NewBus(logger zerolog.Logger) *Bus {
	return &Bus{
		subscribers: make(map[EventType][]Subscriber),
		logger:      logger.With().Str("component", "events").Logger(),
		now:         time.Now,
	}
}

// Subscribe registers a subscriber for a specific event type.
func (b *Bus) Subscribe(eventType EventType, subscriber Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[eventType] = append(b.subscribers[eventType], subscriber)
}

// SubscribeAll registers a subscriber for all events.
func (b *Bus) SubscribeAll(subscriber Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.allSubs = append(b.allSubs, subscriber)
}

// Publish delivers an event to all subscribers. A panicking subscriber is
// logged and does not prevent delivery to the others.
func (b *Bus) Publish(event Event) {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = b.now().UTC()
	}

	b.mu.RLock()
	subs := make([]Subscriber, 0, len(b.subscribers[event.Type])+len(b.allSubs))
	subs = append(subs, b.subscribers[event.Type]...)
	subs = append(subs, b.allSubs...)
	b.mu.RUnlock()

	for _, sub := range subs {
		b.deliver(sub, event)
	}
}

func (b *Bus) deliver(sub Subscriber, event Event) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error().
				Str("event_type", string(event.Type)).
				Interface("panic", r).
				Msg("Event subscriber panicked")
		}
	}()
	sub(event)
}

// PublishTrade publishes a trade event carrying a copy of trade.
func (b *Bus) PublishTrade(eventType EventType, trade *models.Trade) {
	t := *trade
	b.Publish(Event{Type: eventType, UserID: t.UserID, Trade: &t})
}

// PublishSession publishes a session event carrying a copy of session.
func (b *Bus) PublishSession(eventType EventType, session *models.TradingSession) {
	s := *session
	s.Symbols = append([]string(nil), session.Symbols...)
	b.Publish(Event{Type: eventType, UserID: s.UserID, Session: &s})
}
