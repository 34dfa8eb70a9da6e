package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/qualitypulse/qualitypulse/collector/internal/collect"
	"github.com/qualitypulse/qualitypulse/collector/internal/config"
	"github.com/qualitypulse/qualitypulse/collector/internal/connector"
	"github.com/qualitypulse/qualitypulse/collector/internal/scheduler"
	"github.com/qualitypulse/qualitypulse/collector/internal/shipper"
)

func main() {
	configPath := flag.String("config", "", "path to config file (environment only when empty)")
	insecure := flag.Bool("insecure-skip-verify", false, "skip TLS certificate verification of sources")
	flag.Parse()

	level := new(slog.LevelVar)
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	slog.Info("qualitypulse-collector starting", "config", *configPath)

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
	level.Set(cfg.Collector.SlogLevel())
	slog.Info("config loaded",
		"server", cfg.Collector.ServerURL(),
		"sleep_duration", cfg.Collector.SleepDuration,
		"measurement_limit", cfg.Collector.MeasurementLimit,
		"source_timeout", cfg.Collector.SourceTimeout,
	)

	registry, err := connector.Default()
	if err != nil {
		slog.Error("failed to build connector registry", "err", err)
		os.Exit(1)
	}
	slog.Info("connectors registered", "count", len(registry.Keys()))

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	collector := collect.New(registry, connector.NewTransport(*insecure), cfg.Collector.SourceTimeout)
	client := shipper.New(cfg.Collector)
	sched := scheduler.New(client, collector, client, scheduler.SettingsFrom(cfg.Collector))

	// Scheduler tunables, source timeout and log level follow the config file.
	// Server address and auth changes need a restart.
	if *configPath != "" {
		go func() {
			if err := config.Watch(ctx, *configPath, func(updated *config.Config) {
				level.Set(updated.Collector.SlogLevel())
				collector.SetSourceTimeout(updated.Collector.SourceTimeout)
				sched.Update(scheduler.SettingsFrom(updated.Collector))
				slog.Info("config hot-reloaded")
			}); err != nil {
				slog.Error("config watcher stopped", "err", err)
			}
		}()
	}

	sched.Run(ctx)
	slog.Info("qualitypulse-collector shutting down")
}
