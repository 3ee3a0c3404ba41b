package models

import "time"

// TimingClass classifies entry and exit timing.
type TimingClass string

const (
	TimingEarly   TimingClass = "early"
	TimingOptimal TimingClass = "optimal"
	TimingLate    TimingClass = "late"
	TimingUnknown TimingClass = "unknown"
)

// MarketCondition is the regime inferred from tick history.
type MarketCondition string

const (
	MarketTrending MarketCondition = "trending"
	MarketRanging  MarketCondition = "ranging"
	MarketVolatile MarketCondition = "volatile"
	MarketUnknown  MarketCondition = "unknown"
)

// Severity grades missed opportunities and behavior flags.
type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// OpportunityType names a kind of missed opportunity.
type OpportunityType string

const (
	OpportunityBetterEntry  OpportunityType = "better_entry"
	OpportunityHeldPastPeak OpportunityType = "held_past_peak"
	OpportunityEarlyExit    OpportunityType = "early_exit"
)

// PatternType names a behavioral pattern.
type PatternType string

const (
	PatternOvertrading    PatternType = "overtrading"
	PatternRevengeTrading PatternType = "revenge_trading"
	PatternFOMO           PatternType = "fomo"
)

// TradeAnalytics is the derived analysis of one closed trade.
type TradeAnalytics struct {
	TradeID     string    `json:"trade_id"`
	UserID      string    `json:"user_id"`
	Symbol      string    `json:"symbol"`
	GeneratedAt time.Time `json:"generated_at"`
	// Complete is false when tick coverage was insufficient.
	Complete            bool                `json:"complete"`
	Financial           FinancialMetrics    `json:"financial"`
	Timing              TimingMetrics       `json:"timing"`
	Learning            LearningScores      `json:"learning"`
	MissedOpportunities []MissedOpportunity `json:"missed_opportunities"`
	Patterns            []BehaviorFlag      `json:"patterns"`
}

// FinancialMetrics holds money-related analytics.
type FinancialMetrics struct {
	PnL         float64 `json:"pnl"`
	PnLPercent  float64 `json:"pnl_percent"`
	RiskReward  float64 `json:"risk_reward"`
	MaxDrawdown float64 `json:"max_drawdown"`
	MaxRunUp    float64 `json:"max_run_up"`
	Commission  float64 `json:"commission"`
	NetPnL      float64 `json:"net_pnl"`
}

// TimingMetrics holds entry/exit timing analytics.
type TimingMetrics struct {
	EntryTiming            TimingClass     `json:"entry_timing"`
	ExitTiming             TimingClass     `json:"exit_timing"`
	Score                  float64         `json:"score"`
	MarketCondition        MarketCondition `json:"market_condition"`
	Volatility             float64         `json:"volatility"`
	DirectionalConsistency float64         `json:"directional_consistency"`
}

// LearningScores are the 0-100 teaching scores.
type LearningScores struct {
	EntryQuality     float64  `json:"entry_quality"`
	ExitQuality      float64  `json:"exit_quality"`
	RiskManagement   float64  `json:"risk_management"`
	Overall          float64  `json:"overall"`
	ImprovementAreas []string `json:"improvement_areas"`
	Strengths        []string `json:"strengths"`
}

// MissedOpportunity records profit that the tick history shows was available.
type MissedOpportunity struct {
	Type             OpportunityType `json:"type"`
	Description      string          `json:"description"`
	PotentialGain    float64         `json:"potential_gain"`
	PotentialPercent float64         `json:"potential_percent"`
	Severity         Severity        `json:"severity"`
	Timestamp        time.Time       `json:"timestamp"`
	Tip              string          `json:"tip"`
}

// BehaviorFlag is a behavioral pattern found across recent trades.
type BehaviorFlag struct {
	Type        PatternType `json:"type"`
	Description string      `json:"description"`
	Severity    Severity    `json:"severity"`
	TradeIDs    []string    `json:"trade_ids"`
	Occurrences int         `json:"occurrences"`
	DetectedAt  time.Time   `json:"detected_at"`
}

// PatternReport is the aggregate behavioral view for a user.
type PatternReport struct {
	UserID      string         `json:"user_id"`
	WindowStart time.Time      `json:"window_start"`
	WindowEnd   time.Time      `json:"window_end"`
	TradeCount  int            `json:"trade_count"`
	Flags       []BehaviorFlag `json:"flags"`
}

// Has reports whether the report contains a flag of the given type.
func (r *PatternReport) Has(p PatternType) bool {
	for _, f := range r.Flags {
		if f.Type == p {
			return true
		}
	}
	return false
}

// LearningProgress is the rolling analytics trend for a user.
type LearningProgress struct {
	UserID             string          `json:"user_id"`
	WindowDays         int             `json:"window_days"`
	TradesAnalyzed     int             `json:"trades_analyzed"`
	AverageOverall     float64         `json:"average_overall"`
	AverageEntry       float64         `json:"average_entry"`
	AverageExit        float64         `json:"average_exit"`
	AverageRisk        float64         `json:"average_risk"`
	Trend              string          `json:"trend"`
	Slope              float64         `json:"slope"`
	Daily              []DailyScore    `json:"daily"`
	CommonStrengths    []TagCount      `json:"common_strengths"`
	CommonImprovements []TagCount      `json:"common_improvements"`
}

// DailyScore is the average overall score of one day.
type DailyScore struct {
	Date    time.Time `json:"date"`
	Overall float64   `json:"overall"`
	Trades  int       `json:"trades"`
}

// TagCount is a tag and how often it appeared.
type TagCount struct {
	Tag   string `json:"tag"`
	Count int    `json:"count"`
}

// AnalyticsFilter represents filters for querying analytics records.
type AnalyticsFilter struct {
	UserID    string
	StartDate time.Time
	EndDate   time.Time
	Limit     int
}
