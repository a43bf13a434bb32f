package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/fishnet-exporter/fishnet-exporter/exporter/internal/api"
	"github.com/fishnet-exporter/fishnet-exporter/exporter/internal/collector"
	"github.com/fishnet-exporter/fishnet-exporter/exporter/internal/config"
	"github.com/fishnet-exporter/fishnet-exporter/exporter/internal/federation"
	"github.com/fishnet-exporter/fishnet-exporter/exporter/internal/metricset"
	"github.com/fishnet-exporter/fishnet-exporter/exporter/internal/scheduler"
	"github.com/fishnet-exporter/fishnet-exporter/exporter/internal/status"
	"github.com/fishnet-exporter/fishnet-exporter/exporter/internal/ws"
)

func main() {
	configPath := flag.String("config", config.DefaultPath, "path to fishnet_config.yaml")
	flag.Parse()

	level := new(slog.LevelVar)
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	slog.Info("fishnet-exporter starting", "config", *configPath)

	cfg, err := config.LoadOrDefault(*configPath)
	if err != nil {
		slog.Error("failed to load config, using defaults", "err", err)
	}
	level.Set(levelOf(cfg.Exporter.LogLevel))

	mode := cfg.FederationMode()
	slog.Info("config loaded",
		"servers", len(cfg.Servers),
		"port", cfg.Exporter.Port,
		"scrape_interval", cfg.Exporter.ScrapeInterval,
		"namespace", cfg.Exporter.Namespace,
		"counter_mode", cfg.Exporter.CounterMode,
		"federation", modeName(mode),
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	provider := config.NewProvider(cfg)

	// The catalogue and namespace are fixed for the life of the process.
	set := metricset.New(collector.Catalogue(cfg.Exporter.Namespace))
	coll := collector.New(set, status.NewFetcher(status.DefaultTimeout), cfg.Exporter.Namespace)

	var hooks []scheduler.Hook
	opts := api.Options{
		UpMetric: coll.Names().Up,
		Mode:     modeName(mode),
	}

	switch mode {
	case config.ModeClient:
		origin := originID(cfg.Exporter.ID)
		pusher := federation.NewPusher(set, provider, origin)
		go pusher.Run(ctx)
		hooks = append(hooks, pusher.AfterCollect)
		slog.Info("federation client enabled",
			"central_url", cfg.MetricsServer.CentralURL,
			"origin", origin,
			"auth", cfg.MetricsServer.Token() != "",
		)
	case config.ModeCentral:
		receiver := federation.NewReceiver(set)
		go receiver.Run(ctx)
		opts.Receiver = receiver
		opts.Token = func() string { return provider.Current().MetricsServer.Token() }
		if cfg.MetricsServer.Token() == "" {
			slog.Warn("federation central enabled without auth_key, /metrics/push is open")
		} else {
			slog.Info("federation central enabled")
		}
	}

	// WebSocket hub: live snapshots for dashboards.
	hub := ws.New(set, ws.DefaultInterval)
	go hub.Run(ctx)
	opts.Stream = hub

	sched := scheduler.New(coll, provider, hooks...)
	go sched.Run(ctx)

	go func() {
		if err := config.Watch(ctx, *configPath, func(updated *config.Config) {
			warnRestartOnly(provider.Current(), updated)
			level.Set(levelOf(updated.Exporter.LogLevel))
			provider.Store(updated)
			slog.Info("config hot-reloaded",
				"servers", len(updated.Servers),
				"scrape_interval", updated.Exporter.ScrapeInterval,
			)
		}); err != nil {
			slog.Error("config watcher stopped", "err", err)
		}
	}()

	httpSrv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Exporter.Port),
		Handler:           api.New(set, opts),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		slog.Info("HTTP server listening", "port", cfg.Exporter.Port)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("HTTP server stopped", "err", err)
			cancel()
		}
	}()

	<-ctx.Done()
	slog.Info("fishnet-exporter shutting down")

	shutdownCtx, stop := context.WithTimeout(context.Background(), 5*time.Second)
	defer stop()
	httpSrv.Shutdown(shutdownCtx) //nolint:errcheck
}

// levelOf maps exporter.log_level to a slog level. Unknown values mean info.
func levelOf(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func modeName(mode string) string {
	if mode == "" {
		return "standalone"
	}
	return mode
}

// originID returns the identity sent to the central instance.
func originID(id string) string {
	if id != "" {
		return id
	}
	if host, err := os.Hostname(); err == nil && host != "" {
		return host
	}
	return "unknown"
}

// warnRestartOnly logs settings that a reload cannot apply.
func warnRestartOnly(old, updated *config.Config) {
	if old.Exporter.Port != updated.Exporter.Port {
		slog.Warn("config: port change needs a restart",
			"current", old.Exporter.Port, "configured", updated.Exporter.Port)
	}
	if old.Exporter.Namespace != updated.Exporter.Namespace {
		slog.Warn("config: namespace change needs a restart",
			"current", old.Exporter.Namespace, "configured", updated.Exporter.Namespace)
	}
	if old.FederationMode() != updated.FederationMode() {
		slog.Warn("config: federation mode change needs a restart",
			"current", modeName(old.FederationMode()), "configured", modeName(updated.FederationMode()))
	}
}
