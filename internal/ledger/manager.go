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
	"paper-ledger/internal/feed"
	"paper-ledger/internal/finmath"
	"paper-ledger/internal/gate"
	"paper-ledger/internal/logging"
	"paper-ledger/internal/metrics"
	"paper-ledger/internal/models"
	"paper-ledger/internal/store"
)

// Manager owns the trade lifecycle: open, revalue, close and cancel.
type Manager struct {
	feed       feed.PriceFeed
	store      store.Store
	gate       gate.Gate
	aggregator *Aggregator
	bus        *events.Bus
	audit      audit.Sink
	now        func() time.Time
	logger     zerolog.Logger

	tradeLocks *keyedMutex
}

// NewManager creates a trade lifecycle manager. A nil clock uses time.Now
// and a nil audit sink discards events.
func NewManager(
	priceFeed feed.PriceFeed,
	st store.Store,
	g gate.Gate,
	aggregator *Aggregator,
	bus *events.Bus,
	sink audit.Sink,
	clock func() time.Time,
	logger zerolog.Logger,
) *Manager {
	if sink == nil {
		sink = audit.Nop{}
	}
	if clock == nil {
		clock = time.Now
	}
	return &Manager{
		feed:       priceFeed,
		store:      st,
		gate:       g,
		aggregator: aggregator,
		bus:        bus,
		audit:      sink,
		now:        clock,
		logger:     logger.With().Str("component", "ledger").Logger(),
		tradeLocks: newKeyedMutex(),
	}
}

// ============================================================================
// Open
// ============================================================================

// Open validates an order and creates an open trade at the resolved
// execution price.
func (m *Manager) Open(ctx context.Context, order models.Order) (*models.Trade, error) {
	order.Symbol = feed.NormalizeSymbol(order.Symbol)

	ok, err := m.gate.IsAuthorized(ctx, order.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to check qualification: %w", err)
	}
	if !ok {
		return nil, m.reject(ctx, order, "not_qualified",
			errors.NewTradeError("", order.Symbol, "open", "user has not completed the required learning modules", errors.ErrNotQualified))
	}

	if err := validateOrder(order); err != nil {
		return nil, m.reject(ctx, order, "invalid_order", err)
	}

	unlock := m.aggregator.LockSession(order.SessionID)
	defer unlock()

	session, err := m.store.GetSession(ctx, order.SessionID)
	if err != nil {
		return nil, m.reject(ctx, order, "session", err)
	}
	if session.UserID != order.UserID {
		return nil, m.reject(ctx, order, "invalid_order",
			errors.NewSessionError(session.ID, "open", string(session.Status), errors.Wrap(errors.ErrInvalidOrder, "session belongs to another user")))
	}
	if session.Status != models.SessionActive {
		return nil, m.reject(ctx, order, "invalid_order",
			errors.NewSessionError(session.ID, "open", string(session.Status), errors.Wrap(errors.ErrInvalidOrder, "session is not active")))
	}

	price, err := m.executionPrice(ctx, order)
	if err != nil {
		return nil, m.reject(ctx, order, "no_quote", err)
	}

	now := m.now().UTC()
	trade := &models.Trade{
		ID:         uuid.NewString(),
		UserID:     order.UserID,
		SessionID:  order.SessionID,
		Symbol:     order.Symbol,
		Side:       order.Side,
		Quantity:   order.Quantity,
		OrderType:  order.Type,
		LimitPrice: order.LimitPrice,
		StopPrice:  order.StopPrice,
		TakeProfit: order.TakeProfit,
		EntryPrice: price,
		EntryTime:  now,
		Status:     models.TradeOpen,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := m.store.InsertTrade(ctx, trade); err != nil {
		return nil, fmt.Errorf("failed to open trade: %w", err)
	}

	metrics.TradesOpened.WithLabelValues(string(trade.Side), string(trade.OrderType)).Inc()
	logging.LogTradeOpened(m.logger, trade.ID, trade.Symbol, string(trade.Side), trade.Quantity, trade.EntryPrice)
	m.bus.PublishTrade(events.TradeOpened, trade)
	_ = m.audit.Log(ctx, audit.Event{
		EventType: audit.TradeOpened,
		UserID:    trade.UserID,
		SessionID: trade.SessionID,
		TradeID:   trade.ID,
		Symbol:    trade.Symbol,
		Details: map[string]interface{}{
			"side":        trade.Side,
			"quantity":    trade.Quantity,
			"order_type":  trade.OrderType,
			"entry_price": trade.EntryPrice,
		},
		Success: true,
	})
	return trade, nil
}

func validateOrder(o models.Order) error {
	if o.UserID == "" {
		return errors.NewValidationError("user_id", o.UserID, "user ID is required")
	}
	if o.SessionID == "" {
		return errors.NewValidationError("session_id", o.SessionID, "session ID is required")
	}
	if o.Symbol == "" {
		return errors.NewValidationError("symbol", o.Symbol, "symbol is required")
	}
	if o.Quantity <= 0 {
		return errors.NewValidationError("quantity", o.Quantity, "quantity must be positive")
	}
	if !o.Side.Valid() {
		return errors.NewValidationError("side", o.Side, "side must be buy or sell")
	}
	if !o.Type.Valid() {
		return errors.NewValidationError("order_type", o.Type, "unknown order type")
	}
	if o.Type.UsesLimitPrice() && (o.LimitPrice == nil || *o.LimitPrice <= 0) {
		return errors.NewValidationError("limit_price", o.LimitPrice, "limit price is required for "+string(o.Type)+" orders")
	}
	if (o.Type == models.OrderTypeStop || o.Type == models.OrderTypeStopLimit) && (o.StopPrice == nil || *o.StopPrice <= 0) {
		return errors.NewValidationError("stop_price", o.StopPrice, "stop price is required for "+string(o.Type)+" orders")
	}
	if o.TakeProfit != nil && *o.TakeProfit <= 0 {
		return errors.NewValidationError("take_profit", *o.TakeProfit, "take-profit must be positive")
	}
	if o.StopPrice != nil && *o.StopPrice <= 0 {
		return errors.NewValidationError("stop_price", *o.StopPrice, "stop price must be positive")
	}
	return nil
}

func (m *Manager) executionPrice(ctx context.Context, o models.Order) (float64, error) {
	if o.Type.UsesLimitPrice() {
		return *o.LimitPrice, nil
	}
	tick, err := m.feed.LatestTick(ctx, o.Symbol)
	if err != nil {
		return 0, err
	}
	return tick.Price, nil
}

func (m *Manager) reject(ctx context.Context, o models.Order, reason string, err error) error {
	metrics.Rejections.WithLabelValues("open", reason).Inc()
	m.logger.Warn().Err(err).
		Str("user_id", o.UserID).
		Str("session_id", o.SessionID).
		Str("symbol", o.Symbol).
		Msg("Order rejected")
	_ = m.audit.Log(ctx, audit.Event{
		EventType: audit.TradeRejected,
		UserID:    o.UserID,
		SessionID: o.SessionID,
		Symbol:    o.Symbol,
		Details:   map[string]interface{}{"reason": reason},
		Success:   false,
		ErrorMsg:  err.Error(),
	})
	return err
}

// ============================================================================
// Revalue / Reprice
// ============================================================================

// Revalue marks an open trade to price and widens its excursion extrema.
// It returns the floating P&L. Non-open trades yield ErrNotOpen unchanged.
func (m *Manager) Revalue(ctx context.Context, tradeID string, price float64) (float64, error) {
	unlock := m.tradeLocks.Lock(tradeID)
	defer unlock()

	trade, err := m.store.GetTrade(ctx, tradeID)
	if err != nil {
		return 0, err
	}
	if !trade.IsOpen() {
		return 0, errors.NewTradeError(trade.ID, trade.Symbol, "revalue", "trade is "+string(trade.Status), errors.ErrNotOpen)
	}

	floating := finmath.PnL(trade.EntryPrice, price, trade.Quantity, trade.Direction())
	if floating <= trade.MFE && floating >= trade.MAE {
		metrics.Revaluations.Inc()
		return floating, nil
	}
	if floating > trade.MFE {
		trade.MFE = floating
	}
	if floating < trade.MAE {
		trade.MAE = floating
	}
	trade.UpdatedAt = m.now().UTC()
	if err := m.store.UpdateExcursion(ctx, trade); err != nil {
		return 0, fmt.Errorf("failed to revalue trade %s: %w", tradeID, err)
	}
	metrics.Revaluations.Inc()
	m.logger.Debug().
		Str("trade_id", trade.ID).
		Float64("price", price).
		Float64("floating_pnl", floating).
		Float64("mfe", trade.MFE).
		Float64("mae", trade.MAE).
		Msg("Trade revalued")
	return floating, nil
}

// Reprice revalues every open trade on symbol from the latest quote. A
// missing quote is a skip. It returns the number of trades revalued.
func (m *Manager) Reprice(ctx context.Context, symbol string) (int, error) {
	symbol = feed.NormalizeSymbol(symbol)
	tick, err := m.feed.LatestTick(ctx, symbol)
	if errors.Is(err, errors.ErrNoQuote) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return m.RepriceAt(ctx, symbol, tick.Price)
}

// RepriceAt revalues every open trade on symbol at price. Trades closed or
// modified concurrently are skipped.
func (m *Manager) RepriceAt(ctx context.Context, symbol string, price float64) (int, error) {
	trades, err := m.store.ListTrades(ctx, models.TradeFilter{Symbol: feed.NormalizeSymbol(symbol), Status: models.TradeOpen})
	if err != nil {
		return 0, fmt.Errorf("failed to list open trades: %w", err)
	}
	n := 0
	for _, t := range trades {
		if ctx.Err() != nil {
			return n, ctx.Err()
		}
		_, err := m.Revalue(ctx, t.ID, price)
		switch {
		case err == nil:
			n++
		case errors.Is(err, errors.ErrNotOpen), errors.Is(err, errors.ErrConflict), errors.Is(err, errors.ErrNotFound):
		default:
			m.logger.Warn().Err(err).Str("trade_id", t.ID).Msg("Revaluation failed")
		}
	}
	return n, nil
}

// ============================================================================
// Close / Cancel
// ============================================================================

// Close realizes an open trade at exitPrice. The trade update and the
// session aggregates commit in one transaction. A nil exitTime uses the
// manager's clock.
func (m *Manager) Close(ctx context.Context, tradeID string, exitPrice float64, exitTime *time.Time) (*models.Trade, error) {
	if exitPrice <= 0 {
		return nil, errors.NewValidationError("exit_price", exitPrice, "exit price must be positive")
	}
	unlockTrade := m.tradeLocks.Lock(tradeID)
	defer unlockTrade()

	trade, err := m.store.GetTrade(ctx, tradeID)
	if err != nil {
		return nil, err
	}
	if !trade.IsOpen() {
		metrics.Rejections.WithLabelValues("close", "not_open").Inc()
		return nil, errors.NewTradeError(trade.ID, trade.Symbol, "close", "trade is "+string(trade.Status), errors.ErrNotOpen)
	}

	unlockSession := m.aggregator.LockSession(trade.SessionID)
	defer unlockSession()

	now := m.now().UTC()
	exit := now
	if exitTime != nil {
		exit = exitTime.UTC()
	}
	if exit.Before(trade.EntryTime) {
		return nil, errors.NewValidationError("exit_time", exit, "exit time precedes entry time")
	}

	pnl := finmath.PnL(trade.EntryPrice, exitPrice, trade.Quantity, trade.Direction())
	pct := finmath.Percent(pnl, trade.Notional())
	holding := int64(exit.Sub(trade.EntryTime) / time.Second)

	closed := *trade
	closed.Status = models.TradeClosed
	closed.ExitPrice = &exitPrice
	closed.ExitTime = &exit
	closed.PnL = &pnl
	closed.PnLPercent = &pct
	closed.HoldingSeconds = &holding
	closed.UpdatedAt = now

	var session *models.TradingSession
	err = m.store.WithTx(ctx, func(tx store.Repository) error {
		t := closed
		if err := tx.UpdateTrade(ctx, &t); err != nil {
			return err
		}
		s, err := m.aggregator.RecordClose(ctx, tx, &t)
		if err != nil {
			return err
		}
		closed.Version = t.Version
		session = s
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to close trade %s: %w", tradeID, err)
	}

	metrics.TradesClosed.WithLabelValues(metrics.Outcome(pnl)).Inc()
	logging.LogTradeClosed(m.logger, closed.ID, closed.Symbol, exitPrice, pnl)
	m.bus.PublishTrade(events.TradeClosed, &closed)
	_ = m.audit.Log(ctx, audit.Event{
		EventType: audit.TradeClosed,
		UserID:    closed.UserID,
		SessionID: closed.SessionID,
		TradeID:   closed.ID,
		Symbol:    closed.Symbol,
		Details: map[string]interface{}{
			"exit_price":      exitPrice,
			"pnl":             pnl,
			"pnl_percent":     pct,
			"holding_seconds": holding,
			"session_trades":  session.TradeCount,
		},
		Success: true,
	})
	return &closed, nil
}

// Cancel cancels an open trade without realizing P&L.
func (m *Manager) Cancel(ctx context.Context, tradeID string) (*models.Trade, error) {
	unlock := m.tradeLocks.Lock(tradeID)
	defer unlock()

	trade, err := m.store.GetTrade(ctx, tradeID)
	if err != nil {
		return nil, err
	}
	if !trade.IsOpen() {
		metrics.Rejections.WithLabelValues("cancel", "not_open").Inc()
		return nil, errors.NewTradeError(trade.ID, trade.Symbol, "cancel", "trade is "+string(trade.Status), errors.ErrNotOpen)
	}

	trade.Status = models.TradeCancelled
	trade.UpdatedAt = m.now().UTC()
	if err := m.store.UpdateTrade(ctx, trade); err != nil {
		return nil, fmt.Errorf("failed to cancel trade %s: %w", tradeID, err)
	}

	metrics.TradesCancelled.Inc()
	m.logger.Info().Str("trade_id", trade.ID).Str("symbol", trade.Symbol).Msg("Trade cancelled")
	m.bus.PublishTrade(events.TradeCancelled, trade)
	_ = m.audit.Log(ctx, audit.Event{
		EventType: audit.TradeCancelled,
		UserID:    trade.UserID,
		SessionID: trade.SessionID,
		TradeID:   trade.ID,
		Symbol:    trade.Symbol,
		Success:   true,
	})
	return trade, nil
}

// ============================================================================
// Erasure
// ============================================================================

// EraseUser removes all ledger data of a user in one transaction.
func (m *Manager) EraseUser(ctx context.Context, userID string) (*store.ErasureResult, error) {
	if userID == "" {
		return nil, errors.NewValidationError("user_id", userID, "user ID is required")
	}
	var result *store.ErasureResult
	err := m.store.WithTx(ctx, func(tx store.Repository) error {
		r, err := tx.DeleteUserData(ctx, userID)
		result = r
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to erase user %s: %w", userID, err)
	}
	m.logger.Info().
		Str("user_id", userID).
		Int64("trades", result.Trades).
		Int64("sessions", result.Sessions).
		Msg("User data erased")
	_ = m.audit.Log(ctx, audit.Event{
		EventType: audit.UserErased,
		UserID:    userID,
		Details: map[string]interface{}{
			"trades":    result.Trades,
			"sessions":  result.Sessions,
			"analytics": result.Analytics,
			"progress":  result.Progress,
		},
		Success: true,
	})
	return result, nil
}
