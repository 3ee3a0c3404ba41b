package store

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/mattn/go-sqlite3"

	"paper-ledger/internal/errors"
)

// Dialect identifies the SQL flavour of the underlying database.
type Dialect string

const (
	DialectSQLite   Dialect = "sqlite"
	DialectPostgres Dialect = "postgres"
)

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// repo implements Repository over a querier.
type repo struct {
	q       querier
	dialect Dialect
}

// SQLStore implements Store on database/sql.
type SQLStore struct {
	*repo
	db *sql.DB
}

// Open opens a store for the given driver ("sqlite" or "postgres") and
// ensures the schema exists.
func Open(driver, dsn string, maxOpenConns int) (*SQLStore, error) {
	switch Dialect(driver) {
	case DialectSQLite:
		return NewSQLiteStore(dsn)
	case DialectPostgres:
		return NewPostgresStore(dsn, maxOpenConns)
	default:
		return nil, errors.Wrapf(errors.ErrConfigInvalid, "unknown store driver %q", driver)
	}
}

// NewSQLiteStore creates a new SQLite-based data store.
func NewSQLiteStore(dbPath string) (*SQLStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// A single writer keeps transactions serialized on one file.
	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(time.Hour)

	return initStore(db, DialectSQLite)
}

// NewPostgresStore creates a new PostgreSQL-based data store using pgx.
func NewPostgresStore(dsn string, maxOpenConns int) (*SQLStore, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if maxOpenConns <= 0 {
		maxOpenConns = 10
	}
	db.SetMaxOpenConns(maxOpenConns)
	db.SetMaxIdleConns(maxOpenConns / 2)
	db.SetConnMaxLifetime(time.Hour)

	return initStore(db, DialectPostgres)
}

func initStore(db *sql.DB, dialect Dialect) (*SQLStore, error) {
	s := NewWithDB(db, dialect)
	if err := s.Migrate(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return s, nil
}

// NewWithDB wraps an existing connection without touching the schema.
func NewWithDB(db *sql.DB, dialect Dialect) *SQLStore {
	return &SQLStore{
		repo: &repo{q: db, dialect: dialect},
		db:   db,
	}
}

// Migrate creates all required tables and indexes.
func (s *SQLStore) Migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema: %w", err)
		}
	}
	return nil
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		start_time TIMESTAMP NOT NULL,
		end_time TIMESTAMP,
		status TEXT NOT NULL,
		trade_count INTEGER NOT NULL DEFAULT 0,
		win_count INTEGER NOT NULL DEFAULT 0,
		loss_count INTEGER NOT NULL DEFAULT 0,
		total_pnl DOUBLE PRECISION NOT NULL DEFAULT 0,
		win_rate DOUBLE PRECISION NOT NULL DEFAULT 0,
		average_win DOUBLE PRECISION NOT NULL DEFAULT 0,
		average_loss DOUBLE PRECISION NOT NULL DEFAULT 0,
		largest_win DOUBLE PRECISION NOT NULL DEFAULT 0,
		largest_loss DOUBLE PRECISION NOT NULL DEFAULT 0,
		average_hold_seconds DOUBLE PRECISION NOT NULL DEFAULT 0,
		total_volume DOUBLE PRECISION NOT NULL DEFAULT 0,
		symbols TEXT NOT NULL DEFAULT '[]',
		version BIGINT NOT NULL DEFAULT 1,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	)`,
	// At most one active session per user.
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_sessions_one_active ON sessions(user_id) WHERE status = 'active'`,
	`CREATE INDEX IF NOT EXISTS idx_sessions_user ON sessions(user_id)`,

	`CREATE TABLE IF NOT EXISTS trades (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		session_id TEXT NOT NULL REFERENCES sessions(id),
		symbol TEXT NOT NULL,
		side TEXT NOT NULL,
		quantity INTEGER NOT NULL CHECK (quantity > 0),
		order_type TEXT NOT NULL,
		limit_price DOUBLE PRECISION,
		stop_price DOUBLE PRECISION,
		take_profit DOUBLE PRECISION,
		entry_price DOUBLE PRECISION NOT NULL,
		entry_time TIMESTAMP NOT NULL,
		exit_price DOUBLE PRECISION,
		exit_time TIMESTAMP,
		status TEXT NOT NULL,
		pnl DOUBLE PRECISION,
		pnl_percent DOUBLE PRECISION,
		mfe DOUBLE PRECISION NOT NULL DEFAULT 0,
		mae DOUBLE PRECISION NOT NULL DEFAULT 0,
		holding_seconds BIGINT,
		version BIGINT NOT NULL DEFAULT 1,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_trades_user ON trades(user_id, entry_time)`,
	`CREATE INDEX IF NOT EXISTS idx_trades_session ON trades(session_id)`,
	`CREATE INDEX IF NOT EXISTS idx_trades_symbol_status ON trades(symbol, status)`,

	`CREATE TABLE IF NOT EXISTS ticks (
		symbol TEXT NOT NULL,
		ts TIMESTAMP NOT NULL,
		price DOUBLE PRECISION NOT NULL,
		bid DOUBLE PRECISION,
		ask DOUBLE PRECISION,
		volume BIGINT,
		PRIMARY KEY (symbol, ts)
	)`,

	`CREATE TABLE IF NOT EXISTS trade_analytics (
		trade_id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		symbol TEXT NOT NULL,
		complete BOOLEAN NOT NULL,
		overall_score DOUBLE PRECISION NOT NULL,
		generated_at TIMESTAMP NOT NULL,
		payload TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_analytics_user ON trade_analytics(user_id, generated_at)`,

	`CREATE TABLE IF NOT EXISTS user_progress (
		user_id TEXT PRIMARY KEY,
		completed_modules INTEGER NOT NULL DEFAULT 0,
		simulation_count INTEGER NOT NULL DEFAULT 0,
		updated_at TIMESTAMP NOT NULL
	)`,
}

// WithTx runs fn inside a single transaction.
func (s *SQLStore) WithTx(ctx context.Context, fn func(tx Repository) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", translate(err))
	}
	defer tx.Rollback()

	if err := fn(&repo{q: tx, dialect: s.dialect}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", translate(err))
	}
	return nil
}

// Ping verifies the database connection.
func (s *SQLStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *SQLStore) Close() error {
	return s.db.Close()
}

// rebind rewrites '?' placeholders into '$n' for PostgreSQL.
func (r *repo) rebind(query string) string {
	if r.dialect != DialectPostgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}

func (r *repo) exec(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	res, err := r.q.ExecContext(ctx, r.rebind(query), args...)
	return res, translate(err)
}

func (r *repo) query(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error) {
	rows, err := r.q.QueryContext(ctx, r.rebind(query), args...)
	return rows, translate(err)
}

func (r *repo) queryRow(ctx context.Context, query string, args ...interface{}) *sql.Row {
	return r.q.QueryRowContext(ctx, r.rebind(query), args...)
}

// translate maps driver constraint violations onto ErrConflict and other
// driver failures onto ErrDatabaseError.
func translate(err error) error {
	if err == nil {
		return nil
	}
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) && sqliteErr.Code == sqlite3.ErrConstraint {
		return fmt.Errorf("%w: %v", errors.ErrConflict, err)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return fmt.Errorf("%w: %v", errors.ErrConflict, err)
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return fmt.Errorf("%w: %v", errors.ErrDatabaseError, err)
}

func nullFloat(p *float64) interface{} {
	if p == nil {
		return nil
	}
	return *p
}

func nullInt64(p *int64) interface{} {
	if p == nil {
		return nil
	}
	return *p
}

func nullTime(p *time.Time) interface{} {
	if p == nil {
		return nil
	}
	return p.UTC()
}

func floatPtr(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}

func int64Ptr(v sql.NullInt64) *int64 {
	if !v.Valid {
		return nil
	}
	i := v.Int64
	return &i
}

func timePtr(v sql.NullTime) *time.Time {
	if !v.Valid {
		return nil
	}
	t := v.Time.UTC()
	return &t
}
