package cli

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"paper-ledger/internal/analytics"
	"paper-ledger/internal/audit"
	"paper-ledger/internal/config"
	"paper-ledger/internal/events"
	"paper-ledger/internal/feed"
	"paper-ledger/internal/gate"
	"paper-ledger/internal/ledger"
	"paper-ledger/internal/resilience"
	"paper-ledger/internal/store"
	"paper-ledger/internal/workers"
	"paper-ledger/pkg/utils"
)

// App holds the application dependencies. The ledger components are built
// lazily by Open so that commands like version and config never touch the
// database.
type App struct {
	Config    *config.Config
	ConfigDir string
	Logger    zerolog.Logger

	Store      store.Store
	Feed       feed.RecordingFeed
	Bus        *events.Bus
	Audit      audit.Sink
	Gate       *gate.ProgressGate
	Aggregator *ledger.Aggregator
	Manager    *ledger.Manager
	Queries    *ledger.Queries
	Engine     *analytics.Engine
	Detector   *analytics.PatternDetector
	Pool       *workers.Pool
	Worker     *analytics.Worker
	NATS       *nats.Conn

	closers []func() error
}

// Open wires the ledger from the loaded configuration. It is safe to call
// more than once.
func (a *App) Open(ctx context.Context) error {
	if a.Manager != nil {
		return nil
	}
	cfg := a.Config

	st, err := store.Open(cfg.Store.Driver, cfg.Store.DSN, cfg.Store.MaxOpenConns)
	if err != nil {
		return fmt.Errorf("failed to open %s store: %w", cfg.Store.Driver, err)
	}
	a.Store = st
	a.closers = append(a.closers, st.Close)
	a.Logger.Debug().Str("driver", cfg.Store.Driver).Msg("Store initialized")

	priceFeed, err := a.openFeed(ctx, st)
	if err != nil {
		return err
	}
	a.Feed = priceFeed

	if err := a.openAudit(); err != nil {
		return err
	}

	a.Bus = events.NewBus(a.Logger)
	if cfg.Events.NATSURL != "" {
		nc, err := events.ConnectNATS(cfg.Events.NATSURL, a.Logger)
		if err != nil {
			a.Logger.Warn().Err(err).Msg("NATS unavailable, events stay in process")
		} else {
			a.NATS = nc
			a.closers = append(a.closers, func() error { return nc.Drain() })
			events.NewNATSBridge(nc, cfg.Events.SubjectPrefix, a.Logger).Attach(a.Bus)
		}
	}

	a.Gate = gate.NewProgressGate(st, cfg.Gate, a.Audit, a.Logger)
	a.Gate.Attach(a.Bus)

	a.Aggregator = ledger.NewAggregator(st, a.Bus, a.Audit, nil, a.Logger)
	a.Manager = ledger.NewManager(priceFeed, st, a.Gate, a.Aggregator, a.Bus, a.Audit, nil, a.Logger)

	a.Engine = analytics.NewEngine(cfg.Analytics, nil)
	a.Detector = analytics.NewPatternDetector(cfg.Patterns, priceFeed, nil, a.Logger)
	a.Queries = ledger.NewQueries(st, a.Detector, nil)

	a.Pool = workers.NewPool("analytics", cfg.Workers.Analytics, cfg.Workers.QueueSize, a.Logger)
	a.Pool.Start(ctx)
	// Stopping the pool drains queued analyses, so it closes before the store.
	a.closers = append(a.closers, func() error { a.Pool.Stop(); return nil })

	retry := utils.DefaultRetryConfig()
	retry.MaxAttempts = cfg.Workers.RetryAttempts
	retry.InitialDelay = cfg.Workers.RetryInitialDelay
	a.Worker = analytics.NewWorker(a.Engine, st, priceFeed, a.Pool, retry, a.Logger)
	a.Worker.Attach(a.Bus)

	return nil
}

func (a *App) openFeed(ctx context.Context, st store.Store) (feed.RecordingFeed, error) {
	cfg := a.Config.Feed
	switch cfg.Source {
	case "redis":
		rf, err := feed.NewRedisFeed(ctx, feed.RedisConfig{
			Addr:         cfg.RedisAddr,
			Password:     cfg.RedisPassword,
			DB:           cfg.RedisDB,
			HistoryLimit: cfg.HistoryLimit,
		})
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, rf.Close)
		breaker := resilience.New("redis", resilience.Config{
			FailureThreshold: cfg.BreakerFailures,
			Cooldown:         cfg.BreakerCooldown,
		}, nil)
		return feed.NewGuardedFeed(rf, breaker, a.Logger), nil
	case "memory":
		return feed.NewMemoryFeed(), nil
	default:
		return feed.NewStoreFeed(st), nil
	}
}

func (a *App) openAudit() error {
	cfg := a.Config.Audit
	if !cfg.Enabled {
		a.Audit = audit.Nop{}
		return nil
	}
	dir := cfg.Dir
	if dir == "" {
		dir = filepath.Join(a.ConfigDir, "audit")
	}
	logger, err := audit.NewLogger(audit.Config{
		LogDir:     dir,
		MaxSize:    cfg.MaxSize,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAge,
		Compress:   true,
	})
	if err != nil {
		return fmt.Errorf("failed to open audit log: %w", err)
	}
	a.Audit = logger
	a.closers = append(a.closers, logger.Close)
	return nil
}

// Close releases everything Open acquired, newest first.
func (a *App) Close() error {
	var first error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil && first == nil {
			first = err
		}
	}
	a.closers = nil
	return first
}
