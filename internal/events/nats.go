package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"paper-ledger/internal/security"
)

// Publisher is the subset of *nats.Conn used by the bridge.
type Publisher interface {
	Publish(subject string, data []byte) error
}

// NATSBridge forwards every bus event as JSON to "<prefix>.<event type>".
type NATSBridge struct {
	pub    Publisher
	prefix string
	logger zerolog.Logger
}

// ConnectNATS dials a NATS server with reconnects enabled.
func ConnectNATS(url string, logger zerolog.Logger) (*nats.Conn, error) {
	nc, err := nats.Connect(url,
		nats.Name("paper-ledger"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn().Err(err).Msg("NATS disconnected")
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info().Str("url", security.Redact(c.ConnectedUrl())).Msg("NATS reconnected")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS at %s: %w", security.Redact(url), err)
	}
	return nc, nil
}

// NewNATSBridge creates a bridge publishing under prefix.
func NewNATSBridge(pub Publisher, prefix string, logger zerolog.Logger) *NATSBridge {
	if prefix == "" {
		prefix = "ledger"
	}
	return &NATSBridge{
		pub:    pub,
		prefix: prefix,
		logger: logger.With().Str("component", "nats_bridge").Logger(),
	}
}

// Attach subscribes the bridge to every event on bus.
func (n *NATSBridge) Attach(bus *Bus) {
	bus.SubscribeAll(n.Forward)
}

// Subject returns the subject an event type is published on.
func (n *NATSBridge) Subject(t EventType) string {
	return n.prefix + "." + string(t)
}

// Forward publishes one event. Failures are logged, never returned.
func (n *NATSBridge) Forward(event Event) {
	data, err := json.Marshal(event)
	if err != nil {
		n.logger.Error().Err(err).Str("event_type", string(event.Type)).Msg("Failed to encode event")
		return
	}
	if err := n.pub.Publish(n.Subject(event.Type), data); err != nil {
		n.logger.Warn().Err(err).Str("event_type", string(event.Type)).Msg("Failed to publish event")
	}
}
