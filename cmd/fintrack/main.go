package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"fintrack/internal/backend"
	"fintrack/internal/cache"
	"fintrack/internal/cli"
	"fintrack/internal/config"
	apphttp "fintrack/internal/http"
	"fintrack/internal/log"
	"fintrack/internal/middleware/ratelimit"
	"fintrack/internal/session"
	"fintrack/internal/worker"
	"golang.org/x/sync/errgroup"
)

const (
	shutdownTimeout = 30 * time.Second
	cacheSweep      = time.Minute
	syncTimeout     = 10 * time.Second
)

func main() {
	cli.LoadEnvFile()
	cfg := cli.LoadAndValidateConfig()
	logger := cli.SetupLogger(cfg)

	ctx, stop := cli.SignalContext()
	defer stop()

	svc := cli.InitServices(ctx, logger, cfg)
	err := run(ctx, cfg, logger, svc)
	if cerr := svc.Cleanup(); cerr != nil {
		logger.Warn("Cleanup failed", log.FieldError, cerr)
	}
	if err != nil {
		logger.Error("Server error", log.FieldError, err)
		os.Exit(1)
	}
	logger.Info("Server stopped gracefully")
}

func run(ctx context.Context, cfg *config.Config, logger *log.Logger, svc *backend.Services) error {
	sessions := session.NewRegistry(session.Deps{
		Identity: svc.Identity,
		Store:    svc.Store,
		Prefs:    svc.Prefs,
		Logger:   logger,
	}, cfg.SessionCacheSize, cfg.SessionIdleTTL)

	caches := cache.NewManager(logger)
	caches.Register(sessions.Cache())

	rl := ratelimit.DefaultConfig()
	rl.Requests = cfg.RateLimit

	srv, err := apphttp.NewServer(":"+cfg.Port, apphttp.Deps{
		Sessions:       sessions,
		Sheets:         svc.Sheets,
		Health:         svc.Health,
		Logger:         logger,
		RateLimit:      rl,
		TrustedProxies: cfg.TrustedProxies,
		SyncTimeout:    syncTimeout,
	})
	if err != nil {
		return err
	}
	srv.ReadTimeout = 10 * time.Second
	srv.IdleTimeout = 60 * time.Second
	srv.MaxHeaderBytes = 1 << 16 // 64KB

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("Starting fintrack server",
			"port", cfg.Port,
			"data_backend", cfg.DataBackend,
			"notify_backend", cfg.NotifyBackend)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error { return srv.Limiter().Run(gctx) })
	g.Go(func() error { return caches.Run(gctx, cacheSweep) })
	if svc.Bus != nil {
		listener := worker.NewChangeListener(svc.Bus, svc.Store, svc.Store.Hub().ActiveOwners, cfg.RefreshInterval, logger)
		g.Go(func() error { return listener.Run(gctx) })
	}
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
