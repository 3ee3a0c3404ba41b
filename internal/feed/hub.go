package feed

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"paper-ledger/internal/models"
)

// HubConfig holds configuration for the tick Hub.
type HubConfig struct {
	// BufferSize is the size of the internal tick channel buffer.
	BufferSize int
	// SubscriberBufferSize is the size of each subscriber's channel buffer.
	SubscriberBufferSize int
	// SlowConsumerDropThreshold is the number of drops before a warning is logged.
	SlowConsumerDropThreshold int
}

// DefaultHubConfig returns the default hub configuration.
func DefaultHubConfig() HubConfig {
	return HubConfig{
		BufferSize:                1000,
		SubscriberBufferSize:      100,
		SlowConsumerDropThreshold: 10,
	}
}

// Hub fans ingested ticks out to per-symbol subscribers. Slow subscribers
// lose ticks rather than blocking the broadcast loop.
type Hub struct {
	config   HubConfig
	recorder Recorder
	logger   zerolog.Logger

	mu          sync.RWMutex
	subscribers map[string][]*Subscriber
	wildcard    []*Subscriber
	tickChan    chan models.Tick
	done        chan struct{}
	started     bool

	metricsMu      sync.Mutex
	ticksReceived  uint64
	ticksBroadcast uint64
	ticksDropped   uint64
}

// Subscriber represents a channel subscriber with metadata.
type Subscriber struct {
	ID           string
	Channel      chan models.Tick
	DroppedCount int
	CreatedAt    time.Time
}

// NewHub creates a hub that persists ticks through recorder before
// broadcasting them. recorder may be nil.
func NewHub(config HubConfig, recorder Recorder, logger zerolog.Logger) *Hub {
	if config.BufferSize <= 0 {
		config.BufferSize = DefaultHubConfig().BufferSize
	}
	if config.SubscriberBufferSize <= 0 {
		config.SubscriberBufferSize = DefaultHubConfig().SubscriberBufferSize
	}
	return &Hub{
		config:      config,
		recorder:    recorder,
		logger:      logger.With().Str("component", "hub").Logger(),
		subscribers: make(map[string][]*Subscriber),
		tickChan:    make(chan models.Tick, config.BufferSize),
		done:        make(chan struct{}),
	}
}

// Start begins the hub's distribution loop.
func (h *Hub) Start(ctx context.Context) {
	h.mu.Lock()
	if h.started {
		h.mu.Unlock()
		return
	}
	h.started = true
	h.mu.Unlock()

	go h.broadcastLoop(ctx)
}

func (h *Hub) broadcastLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-h.done:
			return
		case tick := <-h.tickChan:
			h.metricsMu.Lock()
			h.ticksReceived++
			h.metricsMu.Unlock()

			h.broadcast(tick)
		}
	}
}

// Stop stops the hub and closes all subscriber channels.
func (h *Hub) Stop() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.started {
		return
	}
	close(h.done)
	h.started = false

	for symbol, subs := range h.subscribers {
		for _, sub := range subs {
			close(sub.Channel)
		}
		delete(h.subscribers, symbol)
	}
	for _, sub := range h.wildcard {
		close(sub.Channel)
	}
	h.wildcard = nil
}

// Subscribe adds a subscriber for a symbol. An empty symbol receives every tick.
func (h *Hub) Subscribe(symbol, id string) <-chan models.Tick {
	sub := &Subscriber{
		ID:        id,
		Channel:   make(chan models.Tick, h.config.SubscriberBufferSize),
		CreatedAt: time.Now(),
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if symbol == "" {
		h.wildcard = append(h.wildcard, sub)
	} else {
		symbol = NormalizeSymbol(symbol)
		h.subscribers[symbol] = append(h.subscribers[symbol], sub)
	}
	return sub.Channel
}

// Unsubscribe removes a subscriber channel.
func (h *Hub) Unsubscribe(symbol string, ch <-chan models.Tick) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if symbol == "" {
		h.wildcard = removeSubscriber(h.wildcard, ch)
		return
	}
	symbol = NormalizeSymbol(symbol)
	h.subscribers[symbol] = removeSubscriber(h.subscribers[symbol], ch)
	if len(h.subscribers[symbol]) == 0 {
		delete(h.subscribers, symbol)
	}
}

func removeSubscriber(subs []*Subscriber, ch <-chan models.Tick) []*Subscriber {
	for i, sub := range subs {
		if sub.Channel == ch {
			close(sub.Channel)
			return append(subs[:i], subs[i+1:]...)
		}
	}
	return subs
}

// Ingest validates and records a tick, then queues it for broadcast.
func (h *Hub) Ingest(ctx context.Context, tick models.Tick) error {
	if err := Validate(&tick); err != nil {
		return err
	}
	if h.recorder != nil {
		if err := h.recorder.Record(ctx, tick); err != nil {
			return err
		}
	}
	h.Publish(tick)
	return nil
}

// Publish queues a tick for broadcast without recording it.
// This is non-blocking; if the internal buffer is full, the tick is dropped.
func (h *Hub) Publish(tick models.Tick) {
	select {
	case h.tickChan <- tick:
	default:
		h.metricsMu.Lock()
		h.ticksDropped++
		h.metricsMu.Unlock()
	}
}

func (h *Hub) broadcast(tick models.Tick) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	h.deliver(h.subscribers[tick.Symbol], tick)
	h.deliver(h.wildcard, tick)
}

// deliver must be called with h.mu held.
func (h *Hub) deliver(subs []*Subscriber, tick models.Tick) {
	for _, sub := range subs {
		select {
		case sub.Channel <- tick:
			h.metricsMu.Lock()
			h.ticksBroadcast++
			h.metricsMu.Unlock()
		default:
			sub.DroppedCount++
			h.metricsMu.Lock()
			h.ticksDropped++
			h.metricsMu.Unlock()
			if t := h.config.SlowConsumerDropThreshold; t > 0 && sub.DroppedCount%t == 0 {
				h.logger.Warn().
					Str("subscriber", sub.ID).
					Str("symbol", tick.Symbol).
					Int("dropped", sub.DroppedCount).
					Msg("Slow tick consumer")
			}
		}
	}
}

// SubscriberCount returns the number of subscribers for a symbol.
func (h *Hub) SubscriberCount(symbol string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if symbol == "" {
		return len(h.wildcard)
	}
	return len(h.subscribers[NormalizeSymbol(symbol)])
}

// HubMetrics contains hub performance metrics.
type HubMetrics struct {
	TicksReceived  uint64
	TicksBroadcast uint64
	TicksDropped   uint64
}

// Metrics returns hub metrics.
func (h *Hub) Metrics() HubMetrics {
	h.metricsMu.Lock()
	defer h.metricsMu.Unlock()
	return HubMetrics{
		TicksReceived:  h.ticksReceived,
		TicksBroadcast: h.ticksBroadcast,
		TicksDropped:   h.ticksDropped,
	}
}
