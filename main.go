package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"mosaic-keeper/api"
	"mosaic-keeper/config"
	"mosaic-keeper/identity"
	"mosaic-keeper/kv"
	"mosaic-keeper/logging"
	"mosaic-keeper/metrics"
	"mosaic-keeper/orchestrator"
	"mosaic-keeper/page"
	"mosaic-keeper/preset"
)

func main() {
	cfg, err := config.Load(config.Path())
	if err != nil {
		slog.Error("failed to load config", slog.Any("err", err))
		os.Exit(1)
	}
	log := logging.Init(logging.Options{
		Level:     cfg.Logging.Level,
		Format:    cfg.Logging.Format,
		AddSource: cfg.Logging.Source,
		File:      cfg.Logging.File,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	opts := kv.Options{Backend: cfg.Store.Backend, Path: cfg.Store.Path}
	if cfg.Store.Backend == kv.BackendPostgres {
		opts.DSN, err = cfg.Store.PostgresDSN(config.OSKeyring{})
		if err != nil {
			log.Error("failed to prepare postgres dsn", slog.Any("err", err))
			os.Exit(1)
		}
	}
	store, err := kv.Open(ctx, opts)
	if err != nil {
		log.Error("failed to open store", slog.String("backend", cfg.Store.Backend), slog.Any("err", err))
		os.Exit(1)
	}
	defer store.Close()

	m := metrics.New()
	presets := preset.NewManager(store,
		preset.WithLogger(logging.WithComponent("preset")),
		preset.WithMetrics(m),
	)
	resolver := identity.NewResolver(
		identity.WithRetry(identity.RetryPolicy{Retries: cfg.Resolve.Retries, Delay: cfg.Resolve.Delay()}),
		identity.WithLogger(log),
		identity.WithMetrics(m),
	)
	pages := page.NewManager(page.WithPeerTimeout(cfg.Server.PeerTimeout()))
	orch := orchestrator.New(presets, resolver, pages, orchestrator.WithLogger(log))

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           api.RegisterRoutes(pages, orch, m),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Info("mosaic-keeper listening", slog.String("addr", cfg.Server.Addr), slog.String("store", cfg.Store.Backend))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Error("server error", slog.Any("err", err))
		os.Exit(1)
	}
}
