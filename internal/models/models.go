// Package models provides domain models for the paper trading ledger.
package models

import (
	"time"
)

// OrderSide represents the side of a trade.
type OrderSide string

const (
	OrderSideBuy  OrderSide = "buy"
	OrderSideSell OrderSide = "sell"
)

// Valid reports whether the side is known.
func (s OrderSide) Valid() bool {
	return s == OrderSideBuy || s == OrderSideSell
}

// OrderType represents the type of an order.
type OrderType string

const (
	OrderTypeMarket    OrderType = "market"
	OrderTypeLimit     OrderType = "limit"
	OrderTypeStop      OrderType = "stop"
	OrderTypeStopLimit OrderType = "stop_limit"
)

// Valid reports whether the order type is known.
func (t OrderType) Valid() bool {
	switch t {
	case OrderTypeMarket, OrderTypeLimit, OrderTypeStop, OrderTypeStopLimit:
		return true
	}
	return false
}

// UsesLimitPrice reports whether the order executes at its limit price.
func (t OrderType) UsesLimitPrice() bool {
	return t == OrderTypeLimit || t == OrderTypeStopLimit
}

// TradeStatus represents the lifecycle status of a trade.
type TradeStatus string

const (
	TradeOpen      TradeStatus = "open"
	TradeClosed    TradeStatus = "closed"
	TradeCancelled TradeStatus = "cancelled"
)

// SessionStatus represents the lifecycle status of a trading session.
type SessionStatus string

const (
	SessionActive    SessionStatus = "active"
	SessionPaused    SessionStatus = "paused"
	SessionCompleted SessionStatus = "completed"
)

// Tick represents a single validated price observation.
type Tick struct {
	Symbol    string    `json:"symbol"`
	Price     float64   `json:"price"`
	Timestamp time.Time `json:"timestamp"`
	Bid       *float64  `json:"bid,omitempty"`
	Ask       *float64  `json:"ask,omitempty"`
	Volume    *int64    `json:"volume,omitempty"`
}

// Order is a request to open a simulated trade.
type Order struct {
	UserID     string
	SessionID  string
	Symbol     string
	Side       OrderSide
	Quantity   int
	Type       OrderType
	LimitPrice *float64
	StopPrice  *float64
	TakeProfit *float64
}

// UserProgress is the qualification record of a user.
type UserProgress struct {
	UserID           string    `json:"user_id"`
	CompletedModules int       `json:"completed_modules"`
	SimulationCount  int       `json:"simulation_count"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// Float returns a pointer to v.
func Float(v float64) *float64 {
	return &v
}
