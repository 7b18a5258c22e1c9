package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/opensource-finance/heron/internal/api"
	"github.com/opensource-finance/heron/internal/bus"
	"github.com/opensource-finance/heron/internal/cache"
	"github.com/opensource-finance/heron/internal/domain"
	"github.com/opensource-finance/heron/internal/liststore"
	"github.com/opensource-finance/heron/internal/metrics"
	"github.com/opensource-finance/heron/internal/session"
	"github.com/opensource-finance/heron/internal/worker"
)

// Version information (set via ldflags)
var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

func main() {
	cfg := domain.LoadConfig()
	slog.SetDefault(newLogger(cfg.Logging))

	slog.Info("starting heron",
		"version", Version,
		"commit", Commit,
		"build_date", BuildDate,
	)
	slog.Info("configuration loaded",
		"tier", cfg.Tier,
		"store", cfg.Store.Driver,
		"cache", cfg.Cache.Type,
		"eventbus", cfg.EventBus.Type,
		"workspace", cfg.Client.WorkspaceURL,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		slog.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	checks := map[string]api.Pinger{}

	// Initialize list access
	var handles session.HandleFactory
	switch cfg.Store.Driver {
	case "rest":
		handles = session.RESTHandles(cfg.Store)
		slog.Info("remote list API configured", "timeout", cfg.Store.HTTPTimeout)
	default:
		store, err := liststore.New(cfg.Store)
		if err != nil {
			slog.Error("failed to initialize list store", "error", err)
			os.Exit(1)
		}
		defer store.Close()
		handles = session.StoreHandles(store)
		checks["store"] = store
		slog.Info("list store initialized", "driver", cfg.Store.Driver)
	}

	// Initialize Cache
	cacheImpl, err := cache.New(cfg.Cache)
	if err != nil {
		slog.Error("failed to initialize cache", "error", err)
		os.Exit(1)
	}
	if cacheImpl != nil {
		defer cacheImpl.Close()
		checks["cache"] = cacheImpl
	}
	slog.Info("cache initialized", "type", cfg.Cache.Type, "ttl", cfg.Cache.CacheDuration)

	// Initialize EventBus
	busImpl, err := bus.New(cfg.EventBus)
	if err != nil {
		slog.Error("failed to initialize event bus", "error", err)
		os.Exit(1)
	}
	defer busImpl.Close()
	checks["bus"] = busImpl
	slog.Info("event bus initialized", "type", cfg.EventBus.Type)

	opts := []session.Option{
		session.WithEventBus(busImpl),
		session.WithMetrics(metrics.Default()),
		session.WithCacheDuration(cfg.Cache.CacheDuration),
	}
	if cacheImpl != nil {
		opts = append(opts, session.WithMirror(cacheImpl))
	}

	// Email triggers follow every session the pool opens.
	var notifier *worker.Worker
	if cfg.Notify.Enabled {
		notifier = worker.NewWorker(busImpl, worker.Config{Collection: cfg.Notify.Collection})
		opts = append(opts, session.OnSession(func(s *session.Session) {
			if err := notifier.Watch(s); err != nil {
				slog.Error("failed to watch workspace", "workspace", s.Workspace(), "error", err)
			}
		}))
	}

	pool, err := session.NewPool(cfg.Client, handles, opts...)
	if err != nil {
		slog.Error("failed to initialize session pool", "error", err)
		os.Exit(1)
	}
	if _, err := pool.Default(); err != nil {
		slog.Error("failed to open default workspace", "workspace", cfg.Client.WorkspaceURL, "error", err)
		os.Exit(1)
	}

	srv := api.NewServer(cfg.Server, pool, cfg.Client.WorkspaceURL, checks, Version)

	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			slog.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	slog.Info("heron is ready",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
	)

	printBanner(cfg, Version)

	<-ctx.Done()
	slog.Info("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}

	// Drain in-flight triggers after the server stops accepting writes
	if notifier != nil {
		if err := notifier.Stop(); err != nil {
			slog.Error("failed to stop trigger worker", "error", err)
		}
	}

	slog.Info("heron shutdown complete")
}

func newLogger(cfg domain.LoggingConfig) *slog.Logger {
	level := slog.LevelInfo
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "text" {
		return slog.New(slog.NewTextHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, opts))
}

func printBanner(cfg *domain.Config, version string) {
	fmt.Println()
	fmt.Println("  HERON  RAID / RCA / lessons list access")
	fmt.Println()
	fmt.Printf("  Version:    %s\n", version)
	fmt.Printf("  Tier:       %s\n", cfg.Tier)
	fmt.Printf("  Workspace:  %s\n", cfg.Client.WorkspaceURL)
	fmt.Printf("  Server:     http://%s:%d\n", cfg.Server.Host, cfg.Server.Port)
	fmt.Println()
	fmt.Println("  Endpoints:")
	fmt.Println("    GET|POST       /raid                        - List or create RAID items")
	fmt.Println("    GET|PUT|DELETE /raid/{raidId}               - Read, update or delete a RAID item")
	fmt.Println("    GET|POST       /rca                         - List or create RCAs")
	fmt.Println("    GET|PUT|DELETE /rca/{id}                    - Read, update or delete an RCA")
	fmt.Println("    GET|POST       /knowledge/{kind}            - lessons, best-practices, components")
	fmt.Println("    GET            /health, /ready, /metrics")
	fmt.Println()
	fmt.Println("  Send X-Workspace-URL to work on another workspace.")
	fmt.Println()
}
