package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/terminal-bench/gridflow/internal/alertstore"
	"github.com/terminal-bench/gridflow/internal/api"
	"github.com/terminal-bench/gridflow/internal/config"
	"github.com/terminal-bench/gridflow/internal/engine"
	"github.com/terminal-bench/gridflow/internal/feed"
	"github.com/terminal-bench/gridflow/internal/grid"
	"github.com/terminal-bench/gridflow/internal/telemetry"
	"github.com/terminal-bench/gridflow/pkg/messaging"
)

// alertRefreshInterval is how often store-backed alerts are reloaded.
const alertRefreshInterval = 10 * time.Second

func main() {
	logger, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("failed to load config", zap.Error(err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var cache *redis.Client
	if cfg.RedisURL != "" {
		cache = redis.NewClient(&redis.Options{Addr: cfg.RedisURL})
	}

	feedClient := feed.NewClient(cfg.FeedBaseURL, cfg.FetchTimeout)
	reconciler := feed.NewReconciler(feedClient, cache, logger.With(zap.String("component", "feed")))

	// Capacities are static: fetched once, zero-valued table on failure so
	// the overlay degrades to full-fraction scaling instead of crashing.
	caps, err := feedClient.FetchCapacities(ctx)
	if err != nil {
		logger.Warn("capacities fetch failed, overlay will use unit scaling", zap.Error(err))
		caps = grid.Capacities{}
	}

	tel := telemetry.NewWriter(cfg.InfluxURL, cfg.InfluxToken, cfg.InfluxOrg, cfg.InfluxBucket)
	defer tel.Close()

	hub := engine.NewHub()
	eng := engine.New(engine.Config{
		Reconciler:   reconciler,
		Capacities:   caps,
		Hub:          hub,
		Telemetry:    tel,
		Logger:       logger.With(zap.String("component", "engine")),
		TickInterval: cfg.TickInterval,
		PollInterval: cfg.PollInterval,
	})

	if cfg.NATSURL != "" {
		natsClient, err := messaging.NewClient(cfg.NATSURL, messaging.Options{
			Name:          "gridflow-engine",
			ReconnectWait: time.Second,
			MaxReconnects: 5,
		})
		if err != nil {
			logger.Fatal("failed to connect to NATS", zap.Error(err))
		}
		defer natsClient.Close()

		if err := eng.BindMessaging(natsClient); err != nil {
			logger.Fatal("failed to bind live inputs", zap.Error(err))
		}
	}

	alerts, err := alertstore.Open(cfg.DatabaseURL, logger.With(zap.String("component", "alertstore")))
	if err != nil {
		logger.Fatal("failed to open alert store", zap.Error(err))
	}
	defer alerts.Close()

	eng.Start(ctx)
	defer eng.Stop()

	server := api.NewServer(eng, hub, alerts, cfg.JWTSecret, logger.With(zap.String("component", "api")))
	srv := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: server.Handler(),
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("listening", zap.String("addr", cfg.ListenAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	if alerts != nil {
		g.Go(func() error {
			ticker := time.NewTicker(alertRefreshInterval)
			defer ticker.Stop()
			for {
				select {
				case <-ticker.C:
					list, err := alerts.Active(gctx)
					if err != nil {
						logger.Warn("alert refresh failed", zap.Error(err))
						continue
					}
					eng.SetStoredAlerts(list)
				case <-gctx.Done():
					return nil
				}
			}
		})
	}

	g.Go(func() error {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		select {
		case <-quit:
		case <-gctx.Done():
		}
		cancel()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Fatal("engine exited", zap.Error(err))
	}
	logger.Info("shutdown complete")
}
