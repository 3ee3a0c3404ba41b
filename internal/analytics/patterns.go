package analytics

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"paper-ledger/internal/config"
	"paper-ledger/internal/feed"
	"paper-ledger/internal/models"
)

// PatternDetector finds behavioral patterns across a user's recent trades.
type PatternDetector struct {
	cfg    config.PatternsConfig
	feed   feed.PriceFeed
	now    func() time.Time
	logger zerolog.Logger
}

// NewPatternDetector creates a detector. priceFeed may be nil, in which
// case FOMO detection is skipped. A nil clock uses time.Now.
func NewPatternDetector(cfg config.PatternsConfig, priceFeed feed.PriceFeed, clock func() time.Time, logger zerolog.Logger) *PatternDetector {
	if clock == nil {
		clock = time.Now
	}
	return &PatternDetector{
		cfg:    cfg,
		feed:   priceFeed,
		now:    clock,
		logger: logger.With().Str("component", "patterns").Logger(),
	}
}

// Window returns the lookback the detector evaluates.
func (d *PatternDetector) Window() time.Duration {
	return d.cfg.Window
}

// DetectPatterns evaluates the trades of userID entered within the rolling
// window ending now. Cancelled trades are ignored.
func (d *PatternDetector) DetectPatterns(ctx context.Context, userID string, trades []models.Trade) (*models.PatternReport, error) {
	end := d.now().UTC()
	start := end.Add(-d.cfg.Window)

	recent := make([]models.Trade, 0, len(trades))
	for _, t := range trades {
		if t.UserID != userID || t.Status == models.TradeCancelled {
			continue
		}
		if d.cfg.Window > 0 && t.EntryTime.Before(start) {
			continue
		}
		recent = append(recent, t)
	}
	sort.SliceStable(recent, func(i, j int) bool { return recent[i].EntryTime.Before(recent[j].EntryTime) })

	report := &models.PatternReport{
		UserID:      userID,
		WindowStart: start,
		WindowEnd:   end,
		TradeCount:  len(recent),
		Flags:       []models.BehaviorFlag{},
	}

	if f, ok := d.overtrading(recent, end); ok {
		report.Flags = append(report.Flags, f)
	}
	if f, ok := d.revengeTrading(recent, end); ok {
		report.Flags = append(report.Flags, f)
	}
	f, ok, err := d.fomo(ctx, recent, end)
	if err != nil {
		return nil, err
	}
	if ok {
		report.Flags = append(report.Flags, f)
	}
	return report, nil
}

// overtrading flags more than OvertradingPerHour entries in any 60-minute
// span. trades must be sorted by entry time.
func (d *PatternDetector) overtrading(trades []models.Trade, now time.Time) (models.BehaviorFlag, bool) {
	limit := d.cfg.OvertradingPerHour
	if limit <= 0 || len(trades) <= limit {
		return models.BehaviorFlag{}, false
	}

	bestStart, bestCount := 0, 0
	lo := 0
	for hi := range trades {
		for trades[hi].EntryTime.Sub(trades[lo].EntryTime) >= time.Hour {
			lo++
		}
		if n := hi - lo + 1; n > bestCount {
			bestStart, bestCount = lo, n
		}
	}
	if bestCount <= limit {
		return models.BehaviorFlag{}, false
	}

	ids := make([]string, 0, bestCount)
	for _, t := range trades[bestStart : bestStart+bestCount] {
		ids = append(ids, t.ID)
	}
	severity := models.SeverityMedium
	if bestCount >= 2*limit {
		severity = models.SeverityHigh
	}
	return models.BehaviorFlag{
		Type:        models.PatternOvertrading,
		Description: fmt.Sprintf("%d trades opened within one hour (limit %d)", bestCount, limit),
		Severity:    severity,
		TradeIDs:    ids,
		Occurrences: bestCount,
		DetectedAt:  now,
	}, true
}

// revengeTrading flags entries made within RevengeCooldown of a losing
// close in the same symbol or correlation group.
func (d *PatternDetector) revengeTrading(trades []models.Trade, now time.Time) (models.BehaviorFlag, bool) {
	if d.cfg.RevengeCooldown <= 0 {
		return models.BehaviorFlag{}, false
	}

	var ids []string
	seen := make(map[string]bool)
	for _, loss := range trades {
		if loss.Status != models.TradeClosed || loss.RealizedPnL() >= 0 || loss.ExitTime == nil {
			continue
		}
		closedAt := *loss.ExitTime
		for _, t := range trades {
			if t.ID == loss.ID || seen[t.ID] {
				continue
			}
			if t.EntryTime.Before(closedAt) || t.EntryTime.Sub(closedAt) > d.cfg.RevengeCooldown {
				continue
			}
			if !d.related(loss.Symbol, t.Symbol) {
				continue
			}
			seen[t.ID] = true
			ids = append(ids, t.ID)
		}
	}
	if len(ids) == 0 {
		return models.BehaviorFlag{}, false
	}

	severity := models.SeverityMedium
	if len(ids) >= 3 {
		severity = models.SeverityHigh
	}
	return models.BehaviorFlag{
		Type:        models.PatternRevengeTrading,
		Description: fmt.Sprintf("%d trades opened within %s of a losing close in a related symbol", len(ids), d.cfg.RevengeCooldown),
		Severity:    severity,
		TradeIDs:    ids,
		Occurrences: len(ids),
		DetectedAt:  now,
	}, true
}

func (d *PatternDetector) related(a, b string) bool {
	if a == b {
		return true
	}
	ga := d.cfg.CorrelationGroup(a)
	return ga != "" && ga == d.cfg.CorrelationGroup(b)
}

// fomo flags entries made after the price already moved more than
// FOMOMovePct in the trade direction over FOMOLookback.
func (d *PatternDetector) fomo(ctx context.Context, trades []models.Trade, now time.Time) (models.BehaviorFlag, bool, error) {
	if d.feed == nil || d.cfg.FOMOLookback <= 0 || d.cfg.FOMOMovePct <= 0 {
		return models.BehaviorFlag{}, false, nil
	}

	var ids []string
	worst := 0.0
	for _, t := range trades {
		if err := ctx.Err(); err != nil {
			return models.BehaviorFlag{}, false, err
		}
		ticks, err := d.feed.TickHistory(ctx, t.Symbol, t.EntryTime.Add(-d.cfg.FOMOLookback), t.EntryTime)
		if err != nil {
			d.logger.Warn().Err(err).Str("trade_id", t.ID).Msg("Tick history unavailable for FOMO check")
			continue
		}
		if len(ticks) == 0 || ticks[0].Price <= 0 {
			continue
		}
		ref := ticks[0].Price
		move := (t.EntryPrice - ref) / ref * 100 * t.Direction()
		if move > d.cfg.FOMOMovePct {
			ids = append(ids, t.ID)
			if move > worst {
				worst = move
			}
		}
	}
	if len(ids) == 0 {
		return models.BehaviorFlag{}, false, nil
	}

	severity := models.SeverityMedium
	if worst >= 2*d.cfg.FOMOMovePct {
		severity = models.SeverityHigh
	}
	return models.BehaviorFlag{
		Type:        models.PatternFOMO,
		Description: fmt.Sprintf("%d entries chased a move of more than %.1f%% within %s", len(ids), d.cfg.FOMOMovePct, d.cfg.FOMOLookback),
		Severity:    severity,
		TradeIDs:    ids,
		Occurrences: len(ids),
		DetectedAt:  now,
	}, true, nil
}
