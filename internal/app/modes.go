package app

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/predictionamm/internal/domain"
	"github.com/alanyoungcy/predictionamm/internal/engine"
	"github.com/alanyoungcy/predictionamm/internal/pipeline"
	"github.com/alanyoungcy/predictionamm/internal/server"
	"github.com/alanyoungcy/predictionamm/internal/server/handler"
	"github.com/alanyoungcy/predictionamm/internal/server/middleware"
)

// ServerMode serves the HTTP API and, when configured, the WebSocket feed
// and the scheduled archive. It blocks until ctx is cancelled or a component
// fails.
func (a *App) ServerMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting server mode")

	g, ctx := errgroup.WithContext(ctx)
	eng := deps.Engine
	now := time.Now

	h := server.Handlers{
		Health:   handler.NewHealthHandler(a.cfg.Mode, deps.Checks, a.logger),
		Admin:    handler.NewAdminHandler(eng, now, a.logger),
		Markets:  handler.NewMarketHandler(eng, now, a.logger),
		Bets:     handler.NewBetHandler(eng, now, a.logger),
		Treasury: handler.NewTreasuryHandler(eng, now, a.logger),
		Events:   handler.NewEventHandler(eng, deps.AuditStore, a.logger),
	}

	if deps.Archiver != nil {
		trigger := make(chan struct{}, 1)
		h.Pipeline = handler.NewPipelineHandler(trigger, a.logger)
		archiver := pipeline.NewArchiver(deps.Archiver, a.logger)
		g.Go(func() error {
			return archiver.RunCron(ctx, a.cfg.Archive.Cron, trigger)
		})
	}

	sd := server.Deps{Hub: deps.Hub, RateLimiter: deps.RateLimiter}
	if deps.Metrics != nil {
		sd.Metrics = deps.Metrics.Handler()
	}
	if deps.Hub != nil {
		g.Go(func() error {
			return deps.Hub.Run(ctx)
		})
	}

	srv := server.NewServer(server.Config{
		Port:        a.cfg.Server.Port,
		CORSOrigins: a.cfg.Server.CORSOrigins,
		APIKey:      a.cfg.Server.APIKey,
		RateLimit:   a.cfg.Server.RateLimit,
		RateWindow:  a.cfg.Server.RateWindow.Duration,
	}, h, sd, a.logger)

	g.Go(func() error {
		return srv.Start()
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownPeriod.Duration)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return ctx.Err()
	})

	return g.Wait()
}

// ArchiveMode runs one archive pass and returns.
func (a *App) ArchiveMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting archive mode")
	return pipeline.NewArchiver(deps.Archiver, a.logger).Run(ctx)
}

// InitMode initializes the ledger with the configured owner. Running it
// against an initialized ledger is not an error.
func (a *App) InitMode(ctx context.Context, deps *Dependencies) error {
	owner := middleware.NormalizeAddress(a.cfg.House.Owner)
	err := deps.Engine.Initialize(ctx, engine.Call{Caller: owner, Now: time.Now()})
	switch {
	case errors.Is(err, domain.ErrInitialized):
		a.logger.InfoContext(ctx, "ledger already initialized")
		return nil
	case err != nil:
		return err
	}

	status, err := deps.Engine.GetHouseStatus(ctx)
	if err != nil {
		return err
	}
	a.logger.InfoContext(ctx, "ledger initialized",
		slog.String("owner", owner),
		slog.Uint64("house_balance", status.Balance),
	)
	return nil
}
