package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"civic/internal/aggregation/handler"
	"civic/internal/app"
	"civic/internal/platform/config"
	"civic/internal/platform/httpserver"
	"civic/internal/platform/logger"
	"civic/internal/platform/metrics"
	httptransport "civic/internal/transport/http"
)

// main wires configuration, the engine and the HTTP surface, then runs until
// SIGINT or SIGTERM.
func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	log := logger.New(cfg.Log.Level, cfg.Log.Format)
	slog.SetDefault(log)

	if err := run(cfg, log); err != nil {
		log.Error("server stopped with error", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	engine, err := app.Build(ctx, cfg, log, app.WithMetrics())
	if err != nil {
		return err
	}
	defer func() {
		if err := engine.Close(); err != nil {
			log.Warn("failed to release resources", "error", err)
		}
	}()

	checks := make(map[string]httptransport.HealthCheck, len(engine.Checks))
	for name, check := range engine.Checks {
		checks[name] = check
	}
	router := httptransport.NewRouter(httptransport.Deps{
		Resolve:        handler.New(engine.Service, log),
		Metrics:        metrics.New(),
		Checks:         checks,
		AdminToken:     cfg.Server.AdminToken,
		RequestTimeout: cfg.Server.MaxDeadline + cfg.Server.DefaultDeadline,
		Logger:         log,
	})
	srv := httpserver.New(cfg.Server.Addr, router)

	log.Info("starting civic engine",
		"addr", cfg.Server.Addr,
		"providers", cfg.Geo.Providers,
		"cache", cfg.Cache.Backend,
		"directory", cfg.Directory.Backend,
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return httpserver.Run(gctx, srv, cfg.Server.ShutdownTimeout, log)
	})
	g.Go(func() error {
		return engine.Run(gctx)
	})
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
