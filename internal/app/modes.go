package app

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/brianmcmichael/ajna-core/internal/archive"
	"github.com/brianmcmichael/ajna-core/internal/server"
	"github.com/brianmcmichael/ajna-core/internal/server/handler"
	"github.com/brianmcmichael/ajna-core/internal/server/ws"
)

// ServeMode starts the HTTP API and the WebSocket hub.
func (a *App) ServeMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting serve mode")

	g, ctx := errgroup.WithContext(ctx)
	a.startHTTPServer(ctx, g, deps)
	return g.Wait()
}

// ArchiverMode runs the cold-storage archival loop and nothing else.
func (a *App) ArchiverMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting archiver mode")

	if deps.Archiver == nil {
		return fmt.Errorf("app: archiver mode requires s3 to be enabled")
	}

	g, ctx := errgroup.WithContext(ctx)
	a.startArchiver(ctx, g, deps)
	return g.Wait()
}

// AllMode runs the API server and the archival loop in one process.
func (a *App) AllMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting all mode")

	g, ctx := errgroup.WithContext(ctx)

	a.startHTTPServer(ctx, g, deps)

	if deps.Archiver != nil {
		a.startArchiver(ctx, g, deps)
	} else {
		a.logger.WarnContext(ctx, "s3 is disabled, running without archival")
	}

	return g.Wait()
}

// startHTTPServer builds the handler set from the wired dependencies and adds
// the HTTP server (and WebSocket hub, when a signal bus exists) to the given
// errgroup. The server is shut down gracefully when the context is cancelled.
func (a *App) startHTTPServer(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	startedAt := time.Now().UTC()

	health := handler.NewHealthHandler(a.logger)
	for name, check := range deps.HealthChecks {
		health = health.WithCheck(name, check)
	}

	handlers := server.Handlers{
		Health:    health,
		Status:    handler.NewStatusHandler(a.cfg.Mode, a.cfg.Pools.Backend, startedAt, deps.Service, a.logger),
		Positions: handler.NewPositionHandler(deps.Service, a.logger),
		Registry:  handler.NewRegistryHandler(deps.Service, a.logger),
		Permits:   handler.NewPermitHandler(deps.Service, a.logger),
		Multicall: handler.NewMulticallHandler(deps.Service, a.logger),
	}

	// Pool seeding endpoints only make sense against the simulated backend;
	// on-chain pools move liquidity through their own contracts.
	if deps.Sim != nil {
		handlers.Pools = handler.NewPoolHandler(deps.Sim, a.logger)
	}

	var hub *ws.Hub
	if deps.SignalBus != nil {
		hub = ws.NewHub(deps.SignalBus, a.logger, ws.Config{
			Mode:        a.cfg.Mode,
			PoolBackend: a.cfg.Pools.Backend,
			StartedAt:   startedAt,
		})
		g.Go(func() error {
			err := hub.Run(ctx)
			if ctx.Err() != nil {
				return nil // clean shutdown
			}
			return fmt.Errorf("ws hub: %w", err)
		})
	} else {
		a.logger.WarnContext(ctx, "redis is disabled, /ws endpoint is not registered")
	}

	srv := server.NewServer(server.Config{
		Port:            a.cfg.Server.Port,
		CORSOrigins:     a.cfg.Server.CORSOrigins,
		APIKey:          a.cfg.Server.APIKey,
		RateLimit:       a.cfg.Server.RateLimit,
		RateLimitWindow: a.cfg.Server.RateLimitWindow.Duration,
	}, handlers, hub, deps.RateLimiter, a.logger)

	g.Go(func() error {
		return srv.Start()
	})

	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})
}

// startArchiver adds the archival cron loop to the given errgroup.
func (a *App) startArchiver(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	runner := archive.NewRunner(deps.Archiver, deps.LockManager, a.cfg.Archive.RetentionDays, a.logger)

	g.Go(func() error {
		err := runner.RunCron(ctx, a.cfg.Archive.Cron)
		if ctx.Err() != nil {
			return nil // clean shutdown
		}
		return fmt.Errorf("archiver: %w", err)
	})
}
