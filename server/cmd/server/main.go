package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/qualitypulse/qualitypulse/server/internal/api"
	"github.com/qualitypulse/qualitypulse/server/internal/auth"
	"github.com/qualitypulse/qualitypulse/server/internal/catalog"
	"github.com/qualitypulse/qualitypulse/server/internal/config"
	"github.com/qualitypulse/qualitypulse/server/internal/notify"
	"github.com/qualitypulse/qualitypulse/server/internal/receiver"
	"github.com/qualitypulse/qualitypulse/server/internal/store"
	"github.com/qualitypulse/qualitypulse/server/internal/ws"
)

func main() {
	configPath := flag.String("config", "", "path to config file (environment only when empty)")
	flag.Parse()

	level := new(slog.LevelVar)
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	slog.Info("qualitypulse-server starting", "config", *configPath)

	var cfg *config.Config
	var err error
	if *configPath != "" {
		cfg, err = config.Load(*configPath)
	} else {
		cfg, err = config.FromEnv()
	}
	if err != nil {
		slog.Error("failed to load config", "err", err)
		os.Exit(1)
	}
	level.Set(cfg.Server.SlogLevel())

	slog.Info("config loaded",
		"http_port", cfg.Server.HTTPPort,
		"catalog", cfg.Server.CatalogPath,
		"auth_mode", cfg.Server.Auth.Mode,
		"storage", cfg.Server.Storage.Backend,
		"orphan_retention", cfg.Server.Entities.OrphanRetention,
	)

	set, err := catalog.Load(cfg.Server.CatalogPath)
	if err != nil {
		slog.Error("failed to load catalog", "err", err)
		os.Exit(1)
	}
	cat := catalog.New(set)
	slog.Info("catalog loaded", "metrics", len(set.Metrics()))

	st, err := store.Open(cfg.Server.Storage.Backend, cfg.Server.Storage.Path)
	if err != nil {
		slog.Error("failed to open store", "err", err)
		os.Exit(1)
	}
	defer st.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	go func() {
		if err := cat.Watch(ctx, cfg.Server.CatalogPath); err != nil {
			slog.Error("catalog watcher stopped", "err", err)
		}
	}()

	// WebSocket hub: streams inserted measurements to clients.
	hub := ws.New(st)
	go hub.Run(ctx)

	recv := receiver.New(cat, st,
		receiver.WithNotifier(notify.NewWebhooks(cfg.Server.Notify.Webhooks)),
		receiver.WithPublisher(hub),
		receiver.WithOrphanRetention(cfg.Server.Entities.OrphanRetention),
	)

	httpSrv := &http.Server{
		Addr: fmt.Sprintf(":%d", cfg.Server.HTTPPort),
		Handler: api.New(api.Deps{
			Catalog:  cat,
			Store:    st,
			Receiver: recv,
			Auth: auth.APIKey(
				cfg.Server.Auth.Mode,
				cfg.Server.Auth.EffectiveHeader(),
				cfg.Server.Auth.Key(),
			),
			Stream: hub,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		slog.Info("HTTP server listening", "port", cfg.Server.HTTPPort)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("HTTP server stopped", "err", err)
			cancel()
		}
	}()

	<-ctx.Done()
	slog.Info("qualitypulse-server shutting down")
	shutdownCtx, stop := context.WithTimeout(context.Background(), 10*time.Second)
	defer stop()
	httpSrv.Shutdown(shutdownCtx) //nolint:errcheck
}
