// Package store provides data persistence interfaces and implementations.
package store

import (
	"context"
	"time"

	"paper-ledger/internal/models"
)

// Repository is the set of persistence operations available both on the
// store and inside a transaction.
type Repository interface {
	// Trades
	InsertTrade(ctx context.Context, trade *models.Trade) error
	GetTrade(ctx context.Context, id string) (*models.Trade, error)
	UpdateTrade(ctx context.Context, trade *models.Trade) error
	UpdateExcursion(ctx context.Context, trade *models.Trade) error
	ListTrades(ctx context.Context, filter models.TradeFilter) ([]models.Trade, error)

	// Sessions
	InsertSession(ctx context.Context, session *models.TradingSession) error
	GetSession(ctx context.Context, id string) (*models.TradingSession, error)
	GetActiveSession(ctx context.Context, userID string) (*models.TradingSession, error)
	UpdateSession(ctx context.Context, session *models.TradingSession) error
	ListSessions(ctx context.Context, filter models.SessionFilter) ([]models.TradingSession, error)

	// Ticks
	SaveTicks(ctx context.Context, ticks []models.Tick) error
	LatestTick(ctx context.Context, symbol string) (models.Tick, error)
	TickHistory(ctx context.Context, symbol string, from, to time.Time) ([]models.Tick, error)

	// Analytics
	SaveAnalytics(ctx context.Context, analytics *models.TradeAnalytics) error
	GetAnalytics(ctx context.Context, tradeID string) (*models.TradeAnalytics, error)
	ListAnalytics(ctx context.Context, filter models.AnalyticsFilter) ([]models.TradeAnalytics, error)

	// Qualification progress
	GetProgress(ctx context.Context, userID string) (*models.UserProgress, error)
	IncrementModules(ctx context.Context, userID string, at time.Time) error
	IncrementSimulations(ctx context.Context, userID string, at time.Time) error

	// Erasure
	DeleteUserData(ctx context.Context, userID string) (*ErasureResult, error)
}

// Store defines the interface for data persistence.
type Store interface {
	Repository

	// WithTx runs fn inside a single transaction. The transaction commits
	// when fn returns nil and rolls back otherwise.
	WithTx(ctx context.Context, fn func(tx Repository) error) error

	Ping(ctx context.Context) error
	Close() error
}

// ErasureResult counts the rows removed for a user.
type ErasureResult struct {
	Trades    int64 `json:"trades"`
	Sessions  int64 `json:"sessions"`
	Analytics int64 `json:"analytics"`
	Progress  int64 `json:"progress"`
}
