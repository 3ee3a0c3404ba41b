// Package ledger implements the paper trade lifecycle and session statistics.
package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"paper-ledger/internal/audit"
	"paper-ledger/internal/errors"
	"paper-ledger/internal/events"
	"paper-ledger/internal/logging"
	"paper-ledger/internal/metrics"
	"paper-ledger/internal/models"
	"paper-ledger/internal/store"
)

// Aggregator owns trading sessions and their running statistics.
type Aggregator struct {
	store  store.Store
	bus    *events.Bus
	audit  audit.Sink
	logger zerolog.Logger
	now    func() time.Time

	userLocks    *keyedMutex
	sessionLocks *keyedMutex
}

// NewAggregator creates a session aggregator. A nil clock uses time.Now.
func NewAggregator(st store.Store, bus *events.Bus, sink audit.Sink, clock func() time.Time, logger zerolog.Logger) *Aggregator {
	if sink == nil {
		sink = audit.Nop{}
	}
	if clock == nil {
		clock = time.Now
	}
	return &Aggregator{
		store:        st,
		bus:          bus,
		audit:        sink,
		logger:       logger.With().Str("component", "aggregator").Logger(),
		now:          clock,
		userLocks:    newKeyedMutex(),
		sessionLocks: newKeyedMutex(),
	}
}

// LockSession serializes work on one session. It must be taken before the
// store transaction that touches the session, and after any trade lock.
func (a *Aggregator) LockSession(sessionID string) func() {
	return a.sessionLocks.Lock(sessionID)
}

// Start completes the user's current session, if any, and opens a new active
// one. The superseded session ends at the new session's start time.
func (a *Aggregator) Start(ctx context.Context, userID string) (*models.TradingSession, error) {
	if userID == "" {
		return nil, errors.NewValidationError("user_id", userID, "user ID is required")
	}
	unlockUser := a.userLocks.Lock(userID)
	defer unlockUser()

	var current []models.TradingSession
	for _, status := range []models.SessionStatus{models.SessionActive, models.SessionPaused} {
		found, err := a.store.ListSessions(ctx, models.SessionFilter{UserID: userID, Status: status})
		if err != nil {
			return nil, fmt.Errorf("failed to list sessions: %w", err)
		}
		current = append(current, found...)
	}
	for _, s := range current {
		unlock := a.LockSession(s.ID)
		defer unlock()
	}

	now := a.now().UTC()
	created := &models.TradingSession{
		ID:        uuid.NewString(),
		UserID:    userID,
		StartTime: now,
		Status:    models.SessionActive,
		Symbols:   []string{},
		CreatedAt: now,
		UpdatedAt: now,
	}

	var superseded []*models.TradingSession
	var previous []models.SessionStatus
	err := a.store.WithTx(ctx, func(tx store.Repository) error {
		superseded, previous = superseded[:0], previous[:0]
		for _, c := range current {
			s, err := tx.GetSession(ctx, c.ID)
			if err != nil {
				return err
			}
			if s.IsTerminal() {
				continue
			}
			previous = append(previous, s.Status)
			s.Status = models.SessionCompleted
			s.EndTime = &now
			s.UpdatedAt = now
			if err := tx.UpdateSession(ctx, s); err != nil {
				return err
			}
			superseded = append(superseded, s)
		}
		created.Version = 0
		return tx.InsertSession(ctx, created)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to start session for %s: %w", userID, err)
	}

	for i, s := range superseded {
		a.completed(ctx, s, previous[i], "superseded")
	}
	metrics.ActiveSessions.Inc()
	logging.LogSessionTransition(logging.WithUserID(a.logger, userID), created.ID, "", string(models.SessionActive))
	a.bus.PublishSession(events.SessionStarted, created)
	_ = a.audit.Log(ctx, audit.Event{
		EventType: audit.SessionStarted,
		UserID:    userID,
		SessionID: created.ID,
		Success:   true,
	})
	return created, nil
}

// Pause moves an active session to paused.
func (a *Aggregator) Pause(ctx context.Context, sessionID string) (*models.TradingSession, error) {
	return a.transition(ctx, sessionID, "pause", func(s *models.TradingSession, _ time.Time) bool {
		if s.Status != models.SessionActive {
			return false
		}
		s.Status = models.SessionPaused
		return true
	})
}

// Resume moves a paused session back to active.
func (a *Aggregator) Resume(ctx context.Context, sessionID string) (*models.TradingSession, error) {
	return a.transition(ctx, sessionID, "resume", func(s *models.TradingSession, _ time.Time) bool {
		if s.Status != models.SessionPaused {
			return false
		}
		s.Status = models.SessionActive
		return true
	})
}

// End completes an active or paused session.
func (a *Aggregator) End(ctx context.Context, sessionID string) (*models.TradingSession, error) {
	return a.transition(ctx, sessionID, "end", func(s *models.TradingSession, now time.Time) bool {
		if s.IsTerminal() {
			return false
		}
		s.Status = models.SessionCompleted
		s.EndTime = &now
		return true
	})
}

func (a *Aggregator) transition(ctx context.Context, sessionID, action string, apply func(*models.TradingSession, time.Time) bool) (*models.TradingSession, error) {
	unlock := a.LockSession(sessionID)
	defer unlock()

	s, err := a.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	from := s.Status
	now := a.now().UTC()
	if !apply(s, now) {
		return nil, errors.NewSessionError(sessionID, action, string(from), errors.ErrInvalidTransition)
	}
	s.UpdatedAt = now
	if err := a.store.UpdateSession(ctx, s); err != nil {
		return nil, fmt.Errorf("failed to %s session: %w", action, err)
	}

	switch s.Status {
	case models.SessionPaused:
		logging.LogSessionTransition(a.logger, s.ID, string(from), string(s.Status))
		a.bus.PublishSession(events.SessionPaused, s)
		_ = a.audit.Log(ctx, audit.Event{EventType: audit.SessionPaused, UserID: s.UserID, SessionID: s.ID, Success: true})
	case models.SessionActive:
		logging.LogSessionTransition(a.logger, s.ID, string(from), string(s.Status))
		a.bus.PublishSession(events.SessionResumed, s)
		_ = a.audit.Log(ctx, audit.Event{EventType: audit.SessionResumed, UserID: s.UserID, SessionID: s.ID, Success: true})
	case models.SessionCompleted:
		a.completed(ctx, s, from, "ended")
	}
	return s, nil
}

// completed runs the after-commit side effects of a session completion.
func (a *Aggregator) completed(ctx context.Context, s *models.TradingSession, from models.SessionStatus, reason string) {
	metrics.ActiveSessions.Dec()
	logging.LogSessionTransition(a.logger, s.ID, string(from), string(models.SessionCompleted))
	a.bus.PublishSession(events.SimulationClosed, s)
	_ = a.audit.Log(ctx, audit.Event{
		EventType: audit.SessionCompleted,
		UserID:    s.UserID,
		SessionID: s.ID,
		Details:   map[string]interface{}{"reason": reason, "trade_count": s.TradeCount, "total_pnl": s.TotalPnL},
		Success:   true,
	})
}

// RecordClose folds a closed trade into its session inside tx. The caller
// must hold LockSession for trade.SessionID.
func (a *Aggregator) RecordClose(ctx context.Context, tx store.Repository, trade *models.Trade) (*models.TradingSession, error) {
	s, err := tx.GetSession(ctx, trade.SessionID)
	if err != nil {
		return nil, err
	}
	updated := Apply(*s, *trade)
	updated.UpdatedAt = a.now().UTC()
	if err := tx.UpdateSession(ctx, &updated); err != nil {
		return nil, err
	}
	return &updated, nil
}

// Rebuild recomputes a session's aggregates from its stored closed trades
// and persists the result.
func (a *Aggregator) Rebuild(ctx context.Context, sessionID string) (*models.TradingSession, error) {
	unlock := a.LockSession(sessionID)
	defer unlock()

	var rebuilt models.TradingSession
	err := a.store.WithTx(ctx, func(tx store.Repository) error {
		s, err := tx.GetSession(ctx, sessionID)
		if err != nil {
			return err
		}
		trades, err := tx.ListTrades(ctx, models.TradeFilter{SessionID: sessionID, Status: models.TradeClosed})
		if err != nil {
			return err
		}
		rebuilt = Recompute(*s, trades)
		rebuilt.UpdatedAt = a.now().UTC()
		return tx.UpdateSession(ctx, &rebuilt)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to rebuild session %s: %w", sessionID, err)
	}
	return &rebuilt, nil
}
