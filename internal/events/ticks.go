package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"paper-ledger/internal/models"
)

// TickHandler ingests one decoded tick.
type TickHandler func(ctx context.Context, tick models.Tick) error

// TickSubject returns the subject ticks are received on under prefix.
func TickSubject(prefix string) string {
	if prefix == "" {
		prefix = "ledger"
	}
	return prefix + ".ticks"
}

// SubscribeTicks decodes JSON ticks published on subject and hands them to
// handler until ctx is cancelled. Bad payloads are logged and dropped.
func SubscribeTicks(ctx context.Context, nc *nats.Conn, subject string, handler TickHandler, logger zerolog.Logger) (*nats.Subscription, error) {
	logger = logger.With().Str("component", "tick_ingress").Str("subject", subject).Logger()
	sub, err := nc.Subscribe(subject, func(msg *nats.Msg) {
		handleTick(ctx, msg.Data, handler, logger)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe to %s: %w", subject, err)
	}
	go func() {
		<-ctx.Done()
		if err := sub.Unsubscribe(); err != nil && err != nats.ErrConnectionClosed {
			logger.Debug().Err(err).Msg("Tick subscription already closed")
		}
	}()
	return sub, nil
}

func handleTick(ctx context.Context, data []byte, handler TickHandler, logger zerolog.Logger) bool {
	var tick models.Tick
	if err := json.Unmarshal(data, &tick); err != nil {
		logger.Warn().Err(err).Msg("Dropping malformed tick")
		return false
	}
	if err := handler(ctx, tick); err != nil {
		logger.Warn().Err(err).Str("symbol", tick.Symbol).Msg("Tick rejected")
		return false
	}
	return true
}
