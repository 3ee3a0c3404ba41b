// Package analytics scores closed paper trades and detects behavioral patterns.
package analytics

import (
	"fmt"
	"math"
	"sort"
	"time"

	"paper-ledger/internal/config"
	"paper-ledger/internal/errors"
	"paper-ledger/internal/finmath"
	"paper-ledger/internal/models"
)

var timingScores = map[models.TimingClass]float64{
	models.TimingOptimal: 100,
	models.TimingEarly:   60,
	models.TimingLate:    40,
	models.TimingUnknown: 50,
}

const (
	unknownQuality   = 50.0
	missingStopCost  = 25.0
	missingTPCost    = 15.0
	maxRiskPenalty   = 40.0
	strengthScore    = 80.0
	improvementScore = 50.0
)

// Engine computes TradeAnalytics from a closed trade and its tick history.
type Engine struct {
	cfg config.AnalyticsConfig
	now func() time.Time
}

// NewEngine creates an analytics engine. A nil clock uses time.Now.
func NewEngine(cfg config.AnalyticsConfig, clock func() time.Time) *Engine {
	if clock == nil {
		clock = time.Now
	}
	if cfg.EntryWeight+cfg.ExitWeight+cfg.RiskWeight <= 0 {
		cfg.EntryWeight, cfg.ExitWeight, cfg.RiskWeight = 0.3, 0.3, 0.4
	}
	if cfg.MinTicks < 1 {
		cfg.MinTicks = 1
	}
	return &Engine{cfg: cfg, now: clock}
}

// Config returns the engine thresholds.
func (e *Engine) Config() config.AnalyticsConfig {
	return e.cfg
}

// HistoryRange returns the tick window Analyze wants for trade.
func (e *Engine) HistoryRange(trade *models.Trade) (from, to time.Time) {
	from = trade.EntryTime.Add(-e.cfg.EntryWindow)
	to = trade.EntryTime
	if trade.ExitTime != nil {
		to = *trade.ExitTime
	}
	return from, to.Add(e.cfg.PostExitWindow)
}

// coverage splits tick history into the windows the analysis reads.
type coverage struct {
	entry    []models.Tick // within EntryWindow of entry
	inTrade  []models.Tick // [entry, exit]
	postExit []models.Tick // (exit, exit+PostExitWindow]
	market   []models.Tick // [entry-EntryWindow, exit]
}

func (e *Engine) split(trade *models.Trade, ticks []models.Tick) coverage {
	var c coverage
	entry, exit := trade.EntryTime, *trade.ExitTime
	for _, t := range ticks {
		ts := t.Timestamp
		if absDuration(ts.Sub(entry)) <= e.cfg.EntryWindow {
			c.entry = append(c.entry, t)
		}
		if !ts.Before(entry) && !ts.After(exit) {
			c.inTrade = append(c.inTrade, t)
		}
		if ts.After(exit) && !ts.After(exit.Add(e.cfg.PostExitWindow)) {
			c.postExit = append(c.postExit, t)
		}
		if !ts.Before(entry.Add(-e.cfg.EntryWindow)) && !ts.After(exit) {
			c.market = append(c.market, t)
		}
	}
	return c
}

// Analyze scores a closed trade. When tick coverage is insufficient it
// returns a degraded result together with ErrAnalyticsIncomplete.
func (e *Engine) Analyze(trade *models.Trade, ticks []models.Tick) (*models.TradeAnalytics, error) {
	if trade == nil {
		return nil, errors.NewValidationError("trade", nil, "trade is required")
	}
	if trade.Status != models.TradeClosed || trade.ExitPrice == nil || trade.ExitTime == nil {
		return nil, errors.NewTradeError(trade.ID, trade.Symbol, "analyze", "trade is "+string(trade.Status), errors.ErrNotClosed)
	}

	c := e.split(trade, sortTicks(trade.Symbol, ticks))

	result := &models.TradeAnalytics{
		TradeID:             trade.ID,
		UserID:              trade.UserID,
		Symbol:              trade.Symbol,
		GeneratedAt:         e.now().UTC(),
		Complete:            len(c.entry) >= e.cfg.MinTicks && len(c.inTrade) >= e.cfg.MinTicks,
		MissedOpportunities: []models.MissedOpportunity{},
		Patterns:            []models.BehaviorFlag{},
	}
	result.Financial = e.financial(trade, c)

	entry := e.entryOptimum(trade, c)
	exit := e.exitOptimum(trade, c)
	result.Timing = e.timing(trade, c, entry, exit)
	result.Learning = e.learning(trade, result.Financial, entry, exit)
	result.MissedOpportunities = e.missedOpportunities(trade, c, entry)

	if !result.Complete {
		return result, errors.NewDataError("ticks", trade.Symbol,
			fmt.Sprintf("%d entry-window and %d in-trade ticks, need %d", len(c.entry), len(c.inTrade), e.cfg.MinTicks),
			errors.ErrAnalyticsIncomplete)
	}
	return result, nil
}

// ============================================================================
// Financial
// ============================================================================

func (e *Engine) financial(trade *models.Trade, c coverage) models.FinancialMetrics {
	pnl := trade.RealizedPnL()
	exitNotional := finmath.Notional(*trade.ExitPrice, trade.Quantity)

	m := models.FinancialMetrics{
		PnL:         pnl,
		MaxDrawdown: math.Min(trade.MAE, math.Min(pnl, 0)),
		MaxRunUp:    math.Max(trade.MFE, math.Max(pnl, 0)),
		Commission:  finmath.Commission(e.cfg.CommissionPerTrade, e.cfg.CommissionRate, trade.Notional(), exitNotional),
	}
	if trade.PnLPercent != nil {
		m.PnLPercent = *trade.PnLPercent
	}
	m.NetPnL = finmath.Sub(pnl, m.Commission)

	for _, t := range c.inTrade {
		floating := finmath.PnL(trade.EntryPrice, t.Price, trade.Quantity, trade.Direction())
		m.MaxDrawdown = math.Min(m.MaxDrawdown, floating)
		m.MaxRunUp = math.Max(m.MaxRunUp, floating)
	}

	switch {
	case trade.TakeProfit != nil && trade.StopPrice != nil && *trade.StopPrice != trade.EntryPrice:
		m.RiskReward = math.Abs(*trade.TakeProfit-trade.EntryPrice) / math.Abs(trade.EntryPrice-*trade.StopPrice)
	case trade.MAE < 0:
		m.RiskReward = trade.MFE / math.Abs(trade.MAE)
	}
	return m
}

// ============================================================================
// Timing
// ============================================================================

// optimum is the best price available for a leg of the trade.
type optimum struct {
	known  bool
	price  float64
	at     time.Time
	spread float64 // price range over the window, including the fill
	class  models.TimingClass
}

func (e *Engine) entryOptimum(trade *models.Trade, c coverage) optimum {
	if len(c.entry) < e.cfg.MinTicks {
		return optimum{class: models.TimingUnknown}
	}
	// best entry is the lowest price for a buy, the highest for a sell
	price, at := extreme(c.entry, trade.Direction() < 0)
	o := optimum{known: true, price: price, at: at, spread: spread(c.entry, trade.EntryPrice)}

	switch {
	case e.withinTolerance((trade.EntryPrice-price)*trade.Direction(), price):
		o.class = models.TimingOptimal
	case at.After(trade.EntryTime):
		o.class = models.TimingEarly
	default:
		o.class = models.TimingLate
	}
	return o
}

func (e *Engine) exitOptimum(trade *models.Trade, c coverage) optimum {
	if len(c.inTrade) < e.cfg.MinTicks {
		return optimum{class: models.TimingUnknown}
	}
	window := append(append([]models.Tick{}, c.inTrade...), c.postExit...)
	exitPrice := *trade.ExitPrice
	price, at := extreme(window, trade.Direction() > 0)
	o := optimum{known: true, price: price, at: at, spread: spread(window, exitPrice)}

	switch {
	case e.withinTolerance((price-exitPrice)*trade.Direction(), price):
		o.class = models.TimingOptimal
	case at.After(*trade.ExitTime):
		o.class = models.TimingEarly
	default:
		o.class = models.TimingLate
	}
	return o
}

// withinTolerance reports whether an adverse price distance is inside the
// optimal tolerance, measured as a percentage of ref.
func (e *Engine) withinTolerance(adverse, ref float64) bool {
	if adverse <= 0 || ref == 0 {
		return true
	}
	return adverse/ref*100 <= e.cfg.OptimalTolerancePct
}

func (e *Engine) timing(trade *models.Trade, c coverage, entry, exit optimum) models.TimingMetrics {
	m := models.TimingMetrics{
		EntryTiming:     entry.class,
		ExitTiming:      exit.class,
		Score:           (timingScores[entry.class] + timingScores[exit.class]) / 2,
		MarketCondition: models.MarketUnknown,
	}

	if len(c.market) < e.cfg.MinTicks || len(c.market) < 3 {
		return m
	}
	returns := make([]float64, 0, len(c.market)-1)
	up, down := 0, 0
	for i := 1; i < len(c.market); i++ {
		prev, cur := c.market[i-1].Price, c.market[i].Price
		// a zero price has no defined return
		if prev <= 0 {
			continue
		}
		r := (cur - prev) / prev * 100
		returns = append(returns, r)
		switch {
		case r > 0:
			up++
		case r < 0:
			down++
		}
	}
	if len(returns) < 2 {
		return m
	}
	m.Volatility = finmath.StdDev(returns)
	if moves := up + down; moves > 0 {
		m.DirectionalConsistency = float64(max(up, down)) / float64(moves)
	}

	switch {
	case m.Volatility > e.cfg.VolatileThreshold:
		m.MarketCondition = models.MarketVolatile
	case m.DirectionalConsistency >= e.cfg.TrendConsistency:
		m.MarketCondition = models.MarketTrending
	default:
		m.MarketCondition = models.MarketRanging
	}
	return m
}

// ============================================================================
// Learning scores
// ============================================================================

func (e *Engine) learning(trade *models.Trade, fin models.FinancialMetrics, entry, exit optimum) models.LearningScores {
	s := models.LearningScores{
		EntryQuality:     quality(trade.EntryPrice, entry),
		ExitQuality:      quality(*trade.ExitPrice, exit),
		RiskManagement:   100,
		ImprovementAreas: []string{},
		Strengths:        []string{},
	}

	if trade.StopPrice == nil {
		s.RiskManagement -= missingStopCost
		s.ImprovementAreas = append(s.ImprovementAreas, "stop_loss")
	}
	if trade.TakeProfit == nil {
		s.RiskManagement -= missingTPCost
		s.ImprovementAreas = append(s.ImprovementAreas, "take_profit")
	}
	budget := e.cfg.RiskBudgetPct
	maePct := finmath.Percent(-fin.MaxDrawdown, trade.Notional())
	if budget > 0 && maePct > budget {
		s.RiskManagement -= math.Min(maxRiskPenalty, (maePct-budget)/budget*maxRiskPenalty)
		s.ImprovementAreas = append(s.ImprovementAreas, "position_sizing")
	}
	s.RiskManagement = finmath.Clamp(s.RiskManagement, 0, 100)

	total := e.cfg.EntryWeight + e.cfg.ExitWeight + e.cfg.RiskWeight
	s.Overall = finmath.Clamp(
		(s.EntryQuality*e.cfg.EntryWeight+s.ExitQuality*e.cfg.ExitWeight+s.RiskManagement*e.cfg.RiskWeight)/total,
		0, 100)

	if entry.known && s.EntryQuality >= strengthScore {
		s.Strengths = append(s.Strengths, "entry_timing")
	}
	if exit.known && s.ExitQuality >= strengthScore {
		s.Strengths = append(s.Strengths, "exit_timing")
	}
	if s.RiskManagement >= strengthScore {
		s.Strengths = append(s.Strengths, "risk_management")
	}
	if fin.NetPnL > 0 {
		s.Strengths = append(s.Strengths, "profitable_after_costs")
	}
	if entry.known && s.EntryQuality < improvementScore {
		s.ImprovementAreas = append(s.ImprovementAreas, "entry_timing")
	}
	if exit.known && s.ExitQuality < improvementScore {
		s.ImprovementAreas = append(s.ImprovementAreas, "exit_timing")
	}
	if fin.PnL > 0 && fin.NetPnL <= 0 {
		s.ImprovementAreas = append(s.ImprovementAreas, "commission_drag")
	}
	return s
}

// quality is 100 minus the distance from the optimum as a share of the
// window's price range.
func quality(fill float64, o optimum) float64 {
	if !o.known {
		return unknownQuality
	}
	if o.spread == 0 {
		return 100
	}
	return finmath.Clamp(100-math.Abs(fill-o.price)/o.spread*100, 0, 100)
}

// ============================================================================
// Missed opportunities
// ============================================================================

func (e *Engine) missedOpportunities(trade *models.Trade, c coverage, entry optimum) []models.MissedOpportunity {
	out := []models.MissedOpportunity{}
	dir := trade.Direction()
	notional := trade.Notional()
	exitPrice := *trade.ExitPrice

	if entry.known {
		gain := finmath.PnL(entry.price, trade.EntryPrice, trade.Quantity, dir)
		if o, ok := e.opportunity(models.OpportunityBetterEntry, gain, notional, entry.at); ok {
			o.Description = fmt.Sprintf("Entered at %.2f; %.2f was available within %s of entry",
				trade.EntryPrice, entry.price, e.cfg.EntryWindow)
			o.Tip = "Wait for a pullback toward support (or resistance when shorting) before entering."
			out = append(out, o)
		}
	}

	if len(c.inTrade) > 0 {
		peak, at := extreme(c.inTrade, dir > 0)
		gain := finmath.PnL(exitPrice, peak, trade.Quantity, dir)
		if o, ok := e.opportunity(models.OpportunityHeldPastPeak, gain, notional, at); ok {
			o.Description = fmt.Sprintf("Price reached %.2f while the trade was open; exited at %.2f", peak, exitPrice)
			o.Tip = "Use a trailing stop or take-profit to lock in gains near the peak."
			out = append(out, o)
		}
	}

	if len(c.postExit) > 0 {
		peak, at := extreme(c.postExit, dir > 0)
		gain := finmath.PnL(exitPrice, peak, trade.Quantity, dir)
		if o, ok := e.opportunity(models.OpportunityEarlyExit, gain, notional, at); ok {
			o.Description = fmt.Sprintf("Price moved on to %.2f within %s after the exit at %.2f",
				peak, e.cfg.PostExitWindow, exitPrice)
			o.Tip = "Let winners run while the trend holds; scale out instead of closing the full position."
			out = append(out, o)
		}
	}
	return out
}

func (e *Engine) opportunity(kind models.OpportunityType, gain, notional float64, at time.Time) (models.MissedOpportunity, bool) {
	if gain <= 0 || gain < e.cfg.MinGain {
		return models.MissedOpportunity{}, false
	}
	pct := finmath.Percent(gain, notional)
	if pct < e.cfg.MinGainPct {
		return models.MissedOpportunity{}, false
	}
	return models.MissedOpportunity{
		Type:             kind,
		PotentialGain:    gain,
		PotentialPercent: pct,
		Severity:         e.severity(pct),
		Timestamp:        at.UTC(),
	}, true
}

func (e *Engine) severity(pct float64) models.Severity {
	switch {
	case pct >= e.cfg.SeverityHighPct:
		return models.SeverityHigh
	case pct >= e.cfg.SeverityMediumPct:
		return models.SeverityMedium
	default:
		return models.SeverityLow
	}
}

// ============================================================================
// Helpers
// ============================================================================

// sortTicks returns the ticks for symbol ordered by timestamp.
func sortTicks(symbol string, ticks []models.Tick) []models.Tick {
	out := make([]models.Tick, 0, len(ticks))
	for _, t := range ticks {
		if t.Symbol == "" || t.Symbol == symbol {
			out = append(out, t)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out
}

// extreme returns the highest (wantMax) or lowest price and the time it
// was first seen. ticks must not be empty.
func extreme(ticks []models.Tick, wantMax bool) (float64, time.Time) {
	price, at := ticks[0].Price, ticks[0].Timestamp
	for _, t := range ticks[1:] {
		if (wantMax && t.Price > price) || (!wantMax && t.Price < price) {
			price, at = t.Price, t.Timestamp
		}
	}
	return price, at
}

func spread(ticks []models.Tick, fill float64) float64 {
	lo, hi := fill, fill
	for _, t := range ticks {
		lo = math.Min(lo, t.Price)
		hi = math.Max(hi, t.Price)
	}
	return hi - lo
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}
