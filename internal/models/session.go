package models

import "time"

// TradingSession represents one continuous trading period for a user.
type TradingSession struct {
	ID        string        `json:"id"`
	UserID    string        `json:"user_id"`
	StartTime time.Time     `json:"start_time"`
	EndTime   *time.Time    `json:"end_time,omitempty"`
	Status    SessionStatus `json:"status"`

	TradeCount int `json:"trade_count"`
	WinCount   int `json:"win_count"`
	LossCount  int `json:"loss_count"`

	TotalPnL           float64  `json:"total_pnl"`
	WinRate            float64  `json:"win_rate"`
	AverageWin         float64  `json:"average_win"`
	AverageLoss        float64  `json:"average_loss"`
	LargestWin         float64  `json:"largest_win"`
	LargestLoss        float64  `json:"largest_loss"`
	AverageHoldSeconds float64  `json:"average_hold_seconds"`
	TotalVolume        float64  `json:"total_volume"`
	Symbols            []string `json:"symbols"`

	Version   int64     `json:"version"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// IsTerminal reports whether the session can no longer change status.
func (s *TradingSession) IsTerminal() bool {
	return s.Status == SessionCompleted
}

// Duration returns the session length, measured to now for unfinished sessions.
func (s *TradingSession) Duration(now time.Time) time.Duration {
	end := now
	if s.EndTime != nil {
		end = *s.EndTime
	}
	return end.Sub(s.StartTime)
}

// SessionFilter represents filters for querying sessions.
type SessionFilter struct {
	UserID string
	Status SessionStatus
	Limit  int
}

// SessionSummary is the read-only report of a session.
type SessionSummary struct {
	Session         TradingSession `json:"session"`
	DurationSeconds int64          `json:"duration_seconds"`
	OpenTrades      int            `json:"open_trades"`
	BestTrade       *Trade         `json:"best_trade,omitempty"`
	WorstTrade      *Trade         `json:"worst_trade,omitempty"`
	ProfitFactor    float64        `json:"profit_factor"`
	Expectancy      float64        `json:"expectancy"`
	Insights        []string       `json:"insights"`
}
