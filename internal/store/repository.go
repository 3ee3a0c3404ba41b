package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"paper-ledger/internal/errors"
	"paper-ledger/internal/models"
)

type rowScanner interface {
	Scan(dest ...interface{}) error
}

// ============================================================================
// Trades Methods
// ============================================================================

const tradeColumns = `id, user_id, session_id, symbol, side, quantity, order_type, limit_price, stop_price, take_profit,
	entry_price, entry_time, exit_price, exit_time, status, pnl, pnl_percent, mfe, mae, holding_seconds,
	version, created_at, updated_at`

// InsertTrade saves a new trade.
func (r *repo) InsertTrade(ctx context.Context, t *models.Trade) error {
	if t.Version == 0 {
		t.Version = 1
	}
	_, err := r.exec(ctx, `INSERT INTO trades (`+tradeColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.UserID, t.SessionID, t.Symbol, string(t.Side), t.Quantity, string(t.OrderType),
		nullFloat(t.LimitPrice), nullFloat(t.StopPrice), nullFloat(t.TakeProfit),
		t.EntryPrice, t.EntryTime.UTC(), nullFloat(t.ExitPrice), nullTime(t.ExitTime), string(t.Status),
		nullFloat(t.PnL), nullFloat(t.PnLPercent), t.MFE, t.MAE, nullInt64(t.HoldingSeconds),
		t.Version, t.CreatedAt.UTC(), t.UpdatedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to insert trade: %w", err)
	}
	return nil
}

// GetTrade retrieves a trade by ID.
func (r *repo) GetTrade(ctx context.Context, id string) (*models.Trade, error) {
	row := r.queryRow(ctx, `SELECT `+tradeColumns+` FROM trades WHERE id = ?`, id)
	t, err := scanTrade(row)
	if err == sql.ErrNoRows {
		return nil, errors.Wrapf(errors.ErrNotFound, "trade %s", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get trade: %w", translate(err))
	}
	return t, nil
}

// UpdateTrade writes the mutable trade fields if the stored version still
// matches t.Version. On success t.Version is advanced.
func (r *repo) UpdateTrade(ctx context.Context, t *models.Trade) error {
	res, err := r.exec(ctx, `
		UPDATE trades SET stop_price = ?, take_profit = ?, exit_price = ?, exit_time = ?, status = ?,
			pnl = ?, pnl_percent = ?, mfe = ?, mae = ?, holding_seconds = ?,
			version = version + 1, updated_at = ?
		WHERE id = ? AND version = ?`,
		nullFloat(t.StopPrice), nullFloat(t.TakeProfit), nullFloat(t.ExitPrice), nullTime(t.ExitTime), string(t.Status),
		nullFloat(t.PnL), nullFloat(t.PnLPercent), t.MFE, t.MAE, nullInt64(t.HoldingSeconds),
		t.UpdatedAt.UTC(), t.ID, t.Version)
	if err != nil {
		return fmt.Errorf("failed to update trade: %w", err)
	}
	if err := expectOne(res, "trade", t.ID); err != nil {
		return err
	}
	t.Version++
	return nil
}

// UpdateExcursion writes only MFE and MAE, with the same version check as UpdateTrade.
func (r *repo) UpdateExcursion(ctx context.Context, t *models.Trade) error {
	res, err := r.exec(ctx, `
		UPDATE trades SET mfe = ?, mae = ?, version = version + 1, updated_at = ?
		WHERE id = ? AND version = ? AND status = ?`,
		t.MFE, t.MAE, t.UpdatedAt.UTC(), t.ID, t.Version, string(models.TradeOpen))
	if err != nil {
		return fmt.Errorf("failed to update excursion: %w", err)
	}
	if err := expectOne(res, "trade", t.ID); err != nil {
		return err
	}
	t.Version++
	return nil
}

// ListTrades retrieves trades matching filter, newest entry first.
func (r *repo) ListTrades(ctx context.Context, filter models.TradeFilter) ([]models.Trade, error) {
	query := "SELECT " + tradeColumns + " FROM trades WHERE 1=1"
	args := []interface{}{}

	if filter.UserID != "" {
		query += " AND user_id = ?"
		args = append(args, filter.UserID)
	}
	if filter.SessionID != "" {
		query += " AND session_id = ?"
		args = append(args, filter.SessionID)
	}
	if filter.Symbol != "" {
		query += " AND symbol = ?"
		args = append(args, filter.Symbol)
	}
	if filter.Status != "" {
		query += " AND status = ?"
		args = append(args, string(filter.Status))
	}
	if !filter.StartDate.IsZero() {
		query += " AND entry_time >= ?"
		args = append(args, filter.StartDate.UTC())
	}
	if !filter.EndDate.IsZero() {
		query += " AND entry_time <= ?"
		args = append(args, filter.EndDate.UTC())
	}

	query += " ORDER BY entry_time DESC, id ASC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := r.query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query trades: %w", err)
	}
	defer rows.Close()

	var trades []models.Trade
	for rows.Next() {
		t, err := scanTrade(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan trade: %w", err)
		}
		trades = append(trades, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating trades: %w", err)
	}
	return trades, nil
}

func scanTrade(row rowScanner) (*models.Trade, error) {
	var t models.Trade
	var side, orderType, status string
	var limit, stop, takeProfit, exitPrice, pnl, pnlPct sql.NullFloat64
	var exitTime sql.NullTime
	var holding sql.NullInt64

	err := row.Scan(&t.ID, &t.UserID, &t.SessionID, &t.Symbol, &side, &t.Quantity, &orderType,
		&limit, &stop, &takeProfit, &t.EntryPrice, &t.EntryTime, &exitPrice, &exitTime, &status,
		&pnl, &pnlPct, &t.MFE, &t.MAE, &holding, &t.Version, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, err
	}

	t.Side = models.OrderSide(side)
	t.OrderType = models.OrderType(orderType)
	t.Status = models.TradeStatus(status)
	t.LimitPrice = floatPtr(limit)
	t.StopPrice = floatPtr(stop)
	t.TakeProfit = floatPtr(takeProfit)
	t.ExitPrice = floatPtr(exitPrice)
	t.ExitTime = timePtr(exitTime)
	t.PnL = floatPtr(pnl)
	t.PnLPercent = floatPtr(pnlPct)
	t.HoldingSeconds = int64Ptr(holding)
	t.EntryTime = t.EntryTime.UTC()
	t.CreatedAt = t.CreatedAt.UTC()
	t.UpdatedAt = t.UpdatedAt.UTC()
	return &t, nil
}

// ============================================================================
// Sessions Methods
// ============================================================================

const sessionColumns = `id, user_id, start_time, end_time, status, trade_count, win_count, loss_count,
	total_pnl, win_rate, average_win, average_loss, largest_win, largest_loss, average_hold_seconds,
	total_volume, symbols, version, created_at, updated_at`

// InsertSession saves a new session. A second active session for the same
// user violates the partial unique index and yields ErrConflict.
func (r *repo) InsertSession(ctx context.Context, s *models.TradingSession) error {
	if s.Version == 0 {
		s.Version = 1
	}
	symbols, err := encodeSymbols(s.Symbols)
	if err != nil {
		return err
	}
	_, err = r.exec(ctx, `INSERT INTO sessions (`+sessionColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		s.ID, s.UserID, s.StartTime.UTC(), nullTime(s.EndTime), string(s.Status),
		s.TradeCount, s.WinCount, s.LossCount, s.TotalPnL, s.WinRate, s.AverageWin, s.AverageLoss,
		s.LargestWin, s.LargestLoss, s.AverageHoldSeconds, s.TotalVolume, symbols,
		s.Version, s.CreatedAt.UTC(), s.UpdatedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to insert session: %w", err)
	}
	return nil
}

// GetSession retrieves a session by ID.
func (r *repo) GetSession(ctx context.Context, id string) (*models.TradingSession, error) {
	row := r.queryRow(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE id = ?`, id)
	s, err := scanSession(row)
	if err == sql.ErrNoRows {
		return nil, errors.Wrapf(errors.ErrNotFound, "session %s", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", translate(err))
	}
	return s, nil
}

// GetActiveSession retrieves the active session of a user.
func (r *repo) GetActiveSession(ctx context.Context, userID string) (*models.TradingSession, error) {
	row := r.queryRow(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE user_id = ? AND status = ?`,
		userID, string(models.SessionActive))
	s, err := scanSession(row)
	if err == sql.ErrNoRows {
		return nil, errors.Wrapf(errors.ErrNotFound, "active session for user %s", userID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get active session: %w", translate(err))
	}
	return s, nil
}

// UpdateSession writes status and aggregates if the stored version matches.
func (r *repo) UpdateSession(ctx context.Context, s *models.TradingSession) error {
	symbols, err := encodeSymbols(s.Symbols)
	if err != nil {
		return err
	}
	res, err := r.exec(ctx, `
		UPDATE sessions SET end_time = ?, status = ?, trade_count = ?, win_count = ?, loss_count = ?,
			total_pnl = ?, win_rate = ?, average_win = ?, average_loss = ?, largest_win = ?, largest_loss = ?,
			average_hold_seconds = ?, total_volume = ?, symbols = ?, version = version + 1, updated_at = ?
		WHERE id = ? AND version = ?`,
		nullTime(s.EndTime), string(s.Status), s.TradeCount, s.WinCount, s.LossCount,
		s.TotalPnL, s.WinRate, s.AverageWin, s.AverageLoss, s.LargestWin, s.LargestLoss,
		s.AverageHoldSeconds, s.TotalVolume, symbols, s.UpdatedAt.UTC(), s.ID, s.Version)
	if err != nil {
		return fmt.Errorf("failed to update session: %w", err)
	}
	if err := expectOne(res, "session", s.ID); err != nil {
		return err
	}
	s.Version++
	return nil
}

// ListSessions retrieves sessions matching filter, newest first.
func (r *repo) ListSessions(ctx context.Context, filter models.SessionFilter) ([]models.TradingSession, error) {
	query := "SELECT " + sessionColumns + " FROM sessions WHERE 1=1"
	args := []interface{}{}

	if filter.UserID != "" {
		query += " AND user_id = ?"
		args = append(args, filter.UserID)
	}
	if filter.Status != "" {
		query += " AND status = ?"
		args = append(args, string(filter.Status))
	}

	query += " ORDER BY start_time DESC, id ASC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := r.query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query sessions: %w", err)
	}
	defer rows.Close()

	var sessions []models.TradingSession
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		sessions = append(sessions, *s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating sessions: %w", err)
	}
	return sessions, nil
}

func scanSession(row rowScanner) (*models.TradingSession, error) {
	var s models.TradingSession
	var status, symbols string
	var endTime sql.NullTime

	err := row.Scan(&s.ID, &s.UserID, &s.StartTime, &endTime, &status, &s.TradeCount, &s.WinCount, &s.LossCount,
		&s.TotalPnL, &s.WinRate, &s.AverageWin, &s.AverageLoss, &s.LargestWin, &s.LargestLoss,
		&s.AverageHoldSeconds, &s.TotalVolume, &symbols, &s.Version, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return nil, err
	}

	s.Status = models.SessionStatus(status)
	s.EndTime = timePtr(endTime)
	s.StartTime = s.StartTime.UTC()
	s.CreatedAt = s.CreatedAt.UTC()
	s.UpdatedAt = s.UpdatedAt.UTC()
	if err := json.Unmarshal([]byte(symbols), &s.Symbols); err != nil {
		return nil, fmt.Errorf("failed to decode session symbols: %w", err)
	}
	if s.Symbols == nil {
		s.Symbols = []string{}
	}
	return &s, nil
}

func encodeSymbols(symbols []string) (string, error) {
	if symbols == nil {
		symbols = []string{}
	}
	data, err := json.Marshal(symbols)
	if err != nil {
		return "", fmt.Errorf("failed to encode session symbols: %w", err)
	}
	return string(data), nil
}

// ============================================================================
// Ticks Methods
// ============================================================================

// SaveTicks stores ticks, replacing any tick with the same symbol and timestamp.
func (r *repo) SaveTicks(ctx context.Context, ticks []models.Tick) error {
	for _, t := range ticks {
		var volume interface{}
		if t.Volume != nil {
			volume = *t.Volume
		}
		_, err := r.exec(ctx, `
			INSERT INTO ticks (symbol, ts, price, bid, ask, volume) VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT (symbol, ts) DO UPDATE SET price = excluded.price, bid = excluded.bid,
				ask = excluded.ask, volume = excluded.volume`,
			t.Symbol, t.Timestamp.UTC(), t.Price, nullFloat(t.Bid), nullFloat(t.Ask), volume)
		if err != nil {
			return fmt.Errorf("failed to insert tick: %w", err)
		}
	}
	return nil
}

// LatestTick returns the most recent tick for symbol, or ErrNoQuote.
func (r *repo) LatestTick(ctx context.Context, symbol string) (models.Tick, error) {
	row := r.queryRow(ctx, `SELECT symbol, ts, price, bid, ask, volume FROM ticks
		WHERE symbol = ? ORDER BY ts DESC LIMIT 1`, symbol)
	t, err := scanTick(row)
	if err == sql.ErrNoRows {
		return models.Tick{}, errors.NewDataError("tick", symbol, "no ticks recorded", errors.ErrNoQuote)
	}
	if err != nil {
		return models.Tick{}, fmt.Errorf("failed to get latest tick: %w", translate(err))
	}
	return t, nil
}

// TickHistory returns ticks for symbol within [from, to], oldest first.
func (r *repo) TickHistory(ctx context.Context, symbol string, from, to time.Time) ([]models.Tick, error) {
	rows, err := r.query(ctx, `SELECT symbol, ts, price, bid, ask, volume FROM ticks
		WHERE symbol = ? AND ts >= ? AND ts <= ? ORDER BY ts ASC`, symbol, from.UTC(), to.UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to query ticks: %w", err)
	}
	defer rows.Close()

	var ticks []models.Tick
	for rows.Next() {
		t, err := scanTick(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan tick: %w", err)
		}
		ticks = append(ticks, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating ticks: %w", err)
	}
	return ticks, nil
}

func scanTick(row rowScanner) (models.Tick, error) {
	var t models.Tick
	var bid, ask sql.NullFloat64
	var volume sql.NullInt64
	if err := row.Scan(&t.Symbol, &t.Timestamp, &t.Price, &bid, &ask, &volume); err != nil {
		return models.Tick{}, err
	}
	t.Timestamp = t.Timestamp.UTC()
	t.Bid = floatPtr(bid)
	t.Ask = floatPtr(ask)
	t.Volume = int64Ptr(volume)
	return t, nil
}

// ============================================================================
// Analytics Methods
// ============================================================================

// SaveAnalytics stores analytics for a trade, replacing any previous record.
func (r *repo) SaveAnalytics(ctx context.Context, a *models.TradeAnalytics) error {
	payload, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("failed to encode analytics: %w", err)
	}
	_, err = r.exec(ctx, `
		INSERT INTO trade_analytics (trade_id, user_id, symbol, complete, overall_score, generated_at, payload)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (trade_id) DO UPDATE SET user_id = excluded.user_id, symbol = excluded.symbol,
			complete = excluded.complete, overall_score = excluded.overall_score,
			generated_at = excluded.generated_at, payload = excluded.payload`,
		a.TradeID, a.UserID, a.Symbol, a.Complete, a.Learning.Overall, a.GeneratedAt.UTC(), string(payload))
	if err != nil {
		return fmt.Errorf("failed to save analytics: %w", err)
	}
	return nil
}

// GetAnalytics retrieves the analytics of a trade.
func (r *repo) GetAnalytics(ctx context.Context, tradeID string) (*models.TradeAnalytics, error) {
	var payload string
	err := r.queryRow(ctx, `SELECT payload FROM trade_analytics WHERE trade_id = ?`, tradeID).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, errors.Wrapf(errors.ErrNotFound, "analytics for trade %s", tradeID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get analytics: %w", translate(err))
	}
	return decodeAnalytics(payload)
}

// ListAnalytics retrieves analytics matching filter, oldest first.
func (r *repo) ListAnalytics(ctx context.Context, filter models.AnalyticsFilter) ([]models.TradeAnalytics, error) {
	query := "SELECT payload FROM trade_analytics WHERE 1=1"
	args := []interface{}{}

	if filter.UserID != "" {
		query += " AND user_id = ?"
		args = append(args, filter.UserID)
	}
	if !filter.StartDate.IsZero() {
		query += " AND generated_at >= ?"
		args = append(args, filter.StartDate.UTC())
	}
	if !filter.EndDate.IsZero() {
		query += " AND generated_at <= ?"
		args = append(args, filter.EndDate.UTC())
	}

	query += " ORDER BY generated_at ASC, trade_id ASC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := r.query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query analytics: %w", err)
	}
	defer rows.Close()

	var out []models.TradeAnalytics
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("failed to scan analytics: %w", err)
		}
		a, err := decodeAnalytics(payload)
		if err != nil {
			return nil, err
		}
		out = append(out, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating analytics: %w", err)
	}
	return out, nil
}

func decodeAnalytics(payload string) (*models.TradeAnalytics, error) {
	var a models.TradeAnalytics
	if err := json.Unmarshal([]byte(payload), &a); err != nil {
		return nil, fmt.Errorf("failed to decode analytics: %w", err)
	}
	return &a, nil
}

// ============================================================================
// Progress Methods
// ============================================================================

// GetProgress returns the qualification record of a user. Users without a
// record get a zero-valued one.
func (r *repo) GetProgress(ctx context.Context, userID string) (*models.UserProgress, error) {
	p := &models.UserProgress{UserID: userID}
	var updated sql.NullTime
	err := r.queryRow(ctx, `SELECT completed_modules, simulation_count, updated_at FROM user_progress WHERE user_id = ?`,
		userID).Scan(&p.CompletedModules, &p.SimulationCount, &updated)
	if err == sql.ErrNoRows {
		return p, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get progress: %w", translate(err))
	}
	if updated.Valid {
		p.UpdatedAt = updated.Time.UTC()
	}
	return p, nil
}

// IncrementModules records one more completed learning module.
func (r *repo) IncrementModules(ctx context.Context, userID string, at time.Time) error {
	_, err := r.exec(ctx, `
		INSERT INTO user_progress (user_id, completed_modules, simulation_count, updated_at) VALUES (?, 1, 0, ?)
		ON CONFLICT (user_id) DO UPDATE SET completed_modules = user_progress.completed_modules + 1,
			updated_at = excluded.updated_at`, userID, at.UTC())
	if err != nil {
		return fmt.Errorf("failed to increment modules: %w", err)
	}
	return nil
}

// IncrementSimulations records one more completed simulation.
func (r *repo) IncrementSimulations(ctx context.Context, userID string, at time.Time) error {
	_, err := r.exec(ctx, `
		INSERT INTO user_progress (user_id, completed_modules, simulation_count, updated_at) VALUES (?, 0, 1, ?)
		ON CONFLICT (user_id) DO UPDATE SET simulation_count = user_progress.simulation_count + 1,
			updated_at = excluded.updated_at`, userID, at.UTC())
	if err != nil {
		return fmt.Errorf("failed to increment simulations: %w", err)
	}
	return nil
}

// ============================================================================
// Erasure Methods
// ============================================================================

// DeleteUserData removes every row belonging to userID.
func (r *repo) DeleteUserData(ctx context.Context, userID string) (*ErasureResult, error) {
	result := &ErasureResult{}
	steps := []struct {
		table string
		count *int64
	}{
		{"trade_analytics", &result.Analytics},
		{"trades", &result.Trades},
		{"sessions", &result.Sessions},
		{"user_progress", &result.Progress},
	}
	for _, step := range steps {
		res, err := r.exec(ctx, "DELETE FROM "+step.table+" WHERE user_id = ?", userID)
		if err != nil {
			return nil, fmt.Errorf("failed to erase %s: %w", step.table, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return nil, fmt.Errorf("failed to count erased %s: %w", step.table, translate(err))
		}
		*step.count = n
	}
	return result, nil
}

func expectOne(res sql.Result, kind, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", translate(err))
	}
	if n == 0 {
		return errors.Wrapf(errors.ErrConflict, "%s %s was modified concurrently", kind, id)
	}
	return nil
}
