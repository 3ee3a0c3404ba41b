package models

import "time"

// Trade represents one simulated position.
type Trade struct {
	ID         string      `json:"id"`
	UserID     string      `json:"user_id"`
	SessionID  string      `json:"session_id"`
	Symbol     string      `json:"symbol"`
	Side       OrderSide   `json:"side"`
	Quantity   int         `json:"quantity"`
	OrderType  OrderType   `json:"order_type"`
	LimitPrice *float64    `json:"limit_price,omitempty"`
	StopPrice  *float64    `json:"stop_price,omitempty"`
	TakeProfit *float64    `json:"take_profit,omitempty"`
	EntryPrice float64     `json:"entry_price"`
	EntryTime  time.Time   `json:"entry_time"`
	ExitPrice  *float64    `json:"exit_price,omitempty"`
	ExitTime   *time.Time  `json:"exit_time,omitempty"`
	Status     TradeStatus `json:"status"`
	PnL        *float64    `json:"pnl,omitempty"`
	PnLPercent *float64    `json:"pnl_percent,omitempty"`
	// MFE and MAE are the best and worst floating P&L seen while open.
	MFE            float64   `json:"mfe"`
	MAE            float64   `json:"mae"`
	HoldingSeconds *int64    `json:"holding_seconds,omitempty"`
	Version        int64     `json:"version"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Direction returns +1 for long trades and -1 for short trades.
func (t *Trade) Direction() float64 {
	if t.Side == OrderSideSell {
		return -1
	}
	return 1
}

// IsOpen reports whether the trade is still open.
func (t *Trade) IsOpen() bool {
	return t.Status == TradeOpen
}

// Notional returns the entry value of the position.
func (t *Trade) Notional() float64 {
	return t.EntryPrice * float64(t.Quantity)
}

// RealizedPnL returns the realized P&L, or zero if the trade is not closed.
func (t *Trade) RealizedPnL() float64 {
	if t.PnL == nil {
		return 0
	}
	return *t.PnL
}

// Holding returns the holding period, or zero if the trade is not closed.
func (t *Trade) Holding() time.Duration {
	if t.HoldingSeconds == nil {
		return 0
	}
	return time.Duration(*t.HoldingSeconds) * time.Second
}

// TradeFilter represents filters for querying trades.
type TradeFilter struct {
	UserID    string
	SessionID string
	Symbol    string
	Status    TradeStatus
	StartDate time.Time
	EndDate   time.Time
	Limit     int
}
