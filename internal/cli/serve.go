package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"paper-ledger/internal/api"
	"paper-ledger/internal/events"
	"paper-ledger/internal/feed"
	"paper-ledger/internal/ledger"
)

// addServeCommand adds the long-running server command.
func addServeCommand(rootCmd *cobra.Command, app *App) {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the read-only API, repricer and analytics workers",
		Long: `Run the ledger as a service.

The HTTP API serves trades, session summaries, analytics, learning progress
and behavior patterns. When a NATS server is configured, quotes published
on <prefix>.ticks are recorded and used to revalue open trades, and ledger
events are published on <prefix>.<event>.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			cmd.SetContext(ctx)

			return withLedger(cmd, app, func(ctx context.Context, output *Output) error {
				return serve(ctx, app)
			})
		},
	}
	cmd.Flags().String("addr", "", "listen address (overrides server.addr)")
	cmd.PreRun = func(cmd *cobra.Command, args []string) {
		if addr, _ := cmd.Flags().GetString("addr"); addr != "" {
			app.Config.Server.Addr = addr
		}
	}
	rootCmd.AddCommand(cmd)
}

func serve(ctx context.Context, app *App) error {
	cfg := app.Config
	logger := app.Logger.With().Str("component", "serve").Logger()

	hub := feed.NewHub(feed.HubConfig{BufferSize: cfg.Feed.HubBuffer}, app.Feed, app.Logger)
	repricer := ledger.NewRepricer(app.Manager, hub, cfg.Workers.RepriceInterval, app.Logger)
	server := api.NewServer(cfg.Server, app.Queries, app.Store, app.Logger)

	g, gctx := errgroup.WithContext(ctx)
	hub.Start(gctx)

	if app.NATS != nil {
		subject := events.TickSubject(cfg.Events.SubjectPrefix)
		if _, err := events.SubscribeTicks(gctx, app.NATS, subject, hub.Ingest, app.Logger); err != nil {
			return err
		}
		logger.Info().Str("subject", subject).Msg("Receiving ticks from NATS")
	}

	g.Go(func() error { return server.Run(gctx) })
	g.Go(func() error { return repricer.Run(gctx) })
	g.Go(func() error {
		<-gctx.Done()
		hub.Stop()
		return nil
	})

	logger.Info().Str("addr", cfg.Server.Addr).Msg("Ledger service started")
	err := g.Wait()
	logger.Info().Msg("Ledger service stopped")
	return err
}
