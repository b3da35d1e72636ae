package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/Sternrassler/exhibit-client/pkg/client"
	"github.com/Sternrassler/exhibit-client/pkg/logging"
	"github.com/Sternrassler/exhibit-client/pkg/metrics"
	"github.com/Sternrassler/exhibit-client/pkg/store"
)

// app holds the long-lived dependencies shared by the commands.
type app struct {
	cfg     appConfig
	logger  zerolog.Logger
	redis   *redis.Client
	catalog *client.Client
	saved   *store.Store
	metrics *http.Server
}

func newApp(ctx context.Context, cfg appConfig) (*app, error) {
	a := &app{
		cfg:    cfg,
		logger: logging.NewLogger(logging.ComponentCLI),
	}

	if cfg.Redis != "" {
		a.redis = redis.NewClient(&redis.Options{Addr: cfg.Redis})
		if err := a.redis.Ping(ctx).Err(); err != nil {
			a.Close()
			return nil, fmt.Errorf("connect to redis at %s: %w", cfg.Redis, err)
		}
		a.logger.Info().Str("addr", cfg.Redis).Msg("Connected to Redis")
	}

	clientCfg := client.DefaultConfig(a.redis, cfg.UserAgent)
	clientCfg.BaseURL = cfg.BaseURL
	clientCfg.RequestsPerSecond = cfg.RequestsPerSecond

	catalog, err := client.New(clientCfg)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("create catalog client: %w", err)
	}
	a.catalog = catalog

	saved, err := store.Open(cfg.DB)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("open saved items: %w", err)
	}
	a.saved = saved

	if cfg.MetricsAddr != "" {
		a.metrics = metrics.NewServer(cfg.MetricsAddr)
		go func() {
			if err := a.metrics.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				a.logger.Error().Err(err).Str("addr", cfg.MetricsAddr).Msg("Metrics server failed")
			}
		}()
		a.logger.Info().Str("addr", cfg.MetricsAddr).Msg("Serving metrics")
	}

	return a, nil
}

// Close releases everything newApp opened.
func (a *app) Close() {
	if a.metrics != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		_ = a.metrics.Shutdown(ctx)
		cancel()
	}
	if a.saved != nil {
		_ = a.saved.Close()
	}
	if a.catalog != nil {
		_ = a.catalog.Close()
	}
	if a.redis != nil {
		_ = a.redis.Close()
	}
}
