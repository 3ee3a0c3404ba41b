// Package gate decides whether a user may place simulated trades.
package gate

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"paper-ledger/internal/audit"
	"paper-ledger/internal/config"
	"paper-ledger/internal/events"
	"paper-ledger/internal/logging"
	"paper-ledger/internal/models"
)

// Gate reports whether a user is qualified to trade.
type Gate interface {
	IsAuthorized(ctx context.Context, userID string) (bool, error)
}

// AllowAll authorizes every user.
type AllowAll struct{}

// IsAuthorized implements Gate.
func (AllowAll) IsAuthorized(context.Context, string) (bool, error) { return true, nil }

// ProgressStore is the persistence a ProgressGate needs.
type ProgressStore interface {
	GetProgress(ctx context.Context, userID string) (*models.UserProgress, error)
	IncrementModules(ctx context.Context, userID string, at time.Time) error
	IncrementSimulations(ctx context.Context, userID string, at time.Time) error
}

// ProgressGate authorizes users from their recorded learning progress.
type ProgressGate struct {
	store  ProgressStore
	cfg    config.GateConfig
	audit  audit.Sink
	logger zerolog.Logger
	now    func() time.Time
}

// NewProgressGate creates a store-backed gate.
func NewProgressGate(store ProgressStore, cfg config.GateConfig, sink audit.Sink, logger zerolog.Logger) *ProgressGate {
	if sink == nil {
		sink = audit.Nop{}
	}
	return &ProgressGate{
		store:  store,
		cfg:    cfg,
		audit:  sink,
		logger: logger.With().Str("component", "gate").Logger(),
		now:    time.Now,
	}
}

// IsAuthorized implements Gate. A disabled gate authorizes everyone.
func (g *ProgressGate) IsAuthorized(ctx context.Context, userID string) (bool, error) {
	if !g.cfg.Enabled {
		return true, nil
	}
	p, err := g.store.GetProgress(ctx, userID)
	if err != nil {
		return false, fmt.Errorf("failed to load progress for %s: %w", userID, err)
	}
	return p.CompletedModules >= g.cfg.RequiredModules && p.SimulationCount >= g.cfg.MinSimulations, nil
}

// Status returns the user's progress record.
func (g *ProgressGate) Status(ctx context.Context, userID string) (*models.UserProgress, error) {
	return g.store.GetProgress(ctx, userID)
}

// CompleteModule records one completed learning module.
func (g *ProgressGate) CompleteModule(ctx context.Context, userID string) error {
	if err := g.store.IncrementModules(ctx, userID, g.now().UTC()); err != nil {
		return fmt.Errorf("failed to record module completion: %w", err)
	}
	_ = g.audit.Log(ctx, audit.Event{EventType: audit.ModuleCompleted, UserID: userID, Success: true})
	return nil
}

// Attach counts every closed simulation towards the user's progress.
func (g *ProgressGate) Attach(bus *events.Bus) {
	bus.Subscribe(events.SimulationClosed, func(e events.Event) {
		if err := g.store.IncrementSimulations(context.Background(), e.UserID, g.now().UTC()); err != nil {
			logger := g.logger
			if e.Session != nil {
				logger = logging.WithSessionID(logger, e.Session.ID)
			}
			logger.Error().Err(err).Str("user_id", e.UserID).Msg("Failed to count simulation")
		}
	})
}
