// Package app wires tailbot's dependencies and runs the configured mode.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/tailbot/internal/config"
	"github.com/alanyoungcy/tailbot/internal/domain"
	"github.com/alanyoungcy/tailbot/internal/server"
	"github.com/alanyoungcy/tailbot/internal/server/handler"
	"github.com/alanyoungcy/tailbot/internal/server/ws"
)

const shutdownTimeout = 30 * time.Second

// App owns the configuration, the logger and the cleanup functions that run
// in reverse order on Close.
type App struct {
	cfg     *config.Config
	logger  *slog.Logger
	closers []func()
}

func New(cfg *config.Config, logger *slog.Logger) *App {
	return &App{cfg: cfg, logger: logger}
}

// Run wires the dependencies and blocks until ctx is cancelled or a
// component fails.
//
// In "trade" mode the scheduler starts immediately. In "server" mode it stays
// idle until POST /api/trading/start. Both serve HTTP when server.enabled.
func (a *App) Run(ctx context.Context) error {
	mode := strings.ToLower(a.cfg.Mode)
	a.logger.InfoContext(ctx, "app: starting",
		slog.String("mode", mode),
		slog.String("store", a.cfg.Store.Driver),
		slog.Bool("redis", a.cfg.Redis.Enabled),
		slog.Bool("s3", a.cfg.S3.Enabled),
	)

	deps, cleanup, err := Wire(ctx, a.cfg, a.logger)
	if err != nil {
		return fmt.Errorf("app: wire dependencies: %w", err)
	}
	a.closers = append(a.closers, cleanup)

	if mode == "trade" {
		switch err := deps.Scheduler.Start(ctx); {
		case errors.Is(err, domain.ErrTradingDisabled):
			a.logger.WarnContext(ctx, "app: trading disabled, scheduler not started")
		case err != nil:
			return fmt.Errorf("app: start scheduler: %w", err)
		}
	}

	g, gctx := errgroup.WithContext(ctx)

	if a.cfg.Server.Enabled {
		srv, hub := a.buildServer(mode, deps)
		g.Go(func() error { return hub.Run(gctx) })
		g.Go(srv.Start)
		g.Go(func() error {
			<-gctx.Done()
			sctx, cancel := context.WithTimeout(context.WithoutCancel(gctx), shutdownTimeout)
			defer cancel()
			return srv.Shutdown(sctx)
		})
	}

	if deps.ArchiveJob != nil {
		g.Go(func() error { return deps.ArchiveJob.Run(gctx) })
	}

	g.Go(func() error {
		<-gctx.Done()
		sctx, cancel := context.WithTimeout(context.WithoutCancel(gctx), shutdownTimeout)
		defer cancel()
		return deps.Scheduler.Stop(sctx)
	})

	err = g.Wait()
	a.logger.Info("app: stopped")
	return err
}

func (a *App) buildServer(mode string, deps *Dependencies) (*server.Server, *ws.Hub) {
	sched := deps.Scheduler
	hub := ws.NewHub(deps.Bus, func() any { return sched.Status() }, a.logger)

	handlers := server.Handlers{
		Health:  handler.NewHealthHandler(deps.Checks),
		Trading: handler.NewTradingHandler(sched, mode, a.logger),
		Account: handler.NewAccountHandler(deps.Clob, a.logger),
		Markets: handler.NewMarketHandler(deps.Feed, sched.Settings),
		History: handler.NewHistoryHandler(deps.Store, a.logger),
	}
	cfg := server.Config{
		Port:        a.cfg.Server.Port,
		CORSOrigins: a.cfg.Server.CORSOrigins,
		APIKey:      a.cfg.Server.APIKey,
		RateLimit:   a.cfg.Server.RateLimit,
		Limiter:     deps.Limiter,
	}
	return server.NewServer(cfg, handlers, hub, a.logger.With(slog.String("component", "http"))), hub
}

// Close releases resources in reverse registration order. Calling it again
// is a no-op.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
