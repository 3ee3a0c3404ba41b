package store

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"paper-ledger/internal/errors"
	"paper-ledger/internal/models"
)

func newMockStore(t *testing.T) (*SQLStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewWithDB(db, DialectPostgres), mock
}

func TestRebind(t *testing.T) {
	pg := &repo{dialect: DialectPostgres}
	lite := &repo{dialect: DialectSQLite}

	q := "SELECT a FROM t WHERE x = ? AND y = ? LIMIT ?"
	assert.Equal(t, "SELECT a FROM t WHERE x = $1 AND y = $2 LIMIT $3", pg.rebind(q))
	assert.Equal(t, q, lite.rebind(q))
}

func TestPostgresGetTradeUsesNumberedPlaceholders(t *testing.T) {
	s, mock := newMockStore(t)
	now := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

	cols := []string{"id", "user_id", "session_id", "symbol", "side", "quantity", "order_type", "limit_price",
		"stop_price", "take_profit", "entry_price", "entry_time", "exit_price", "exit_time", "status", "pnl",
		"pnl_percent", "mfe", "mae", "holding_seconds", "version", "created_at", "updated_at"}
	rows := sqlmock.NewRows(cols).AddRow("t1", "u1", "s1", "AAPL", "buy", 10, "limit", 149.5,
		nil, nil, 149.5, now, nil, nil, "open", nil, nil, 3.0, -1.5, nil, int64(4), now, now)

	mock.ExpectQuery(regexp.QuoteMeta("FROM trades WHERE id = $1")).
		WithArgs("t1").
		WillReturnRows(rows)

	tr, err := s.GetTrade(context.Background(), "t1")
	require.NoError(t, err)
	assert.Equal(t, models.OrderTypeLimit, tr.OrderType)
	require.NotNil(t, tr.LimitPrice)
	assert.Equal(t, 149.5, *tr.LimitPrice)
	assert.Nil(t, tr.StopPrice)
	assert.Equal(t, int64(4), tr.Version)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresUpdateConflict(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE trades SET mfe = $1, mae = $2")).
		WillReturnResult(sqlmock.NewResult(0, 0))

	tr := &models.Trade{ID: "t1", Version: 3, MFE: 1, MAE: -1}
	err := s.UpdateExcursion(context.Background(), tr)
	assert.True(t, errors.Is(err, errors.ErrConflict))
	assert.Equal(t, int64(3), tr.Version)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresWithTxCommitAndRollback(t *testing.T) {
	s, mock := newMockStore(t)
	ctx := context.Background()

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO user_progress")).
		WithArgs("u1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, s.WithTx(ctx, func(tx Repository) error {
		return tx.IncrementModules(ctx, "u1", time.Now())
	}))

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO user_progress")).
		WillReturnError(assert.AnError)
	mock.ExpectRollback()

	err := s.WithTx(ctx, func(tx Repository) error {
		return tx.IncrementSimulations(ctx, "u1", time.Now())
	})
	assert.True(t, errors.Is(err, errors.ErrDatabaseError))
	assert.NoError(t, mock.ExpectationsWereMet())
}
