package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/jonboulle/clockwork"

	httpadapter "github.com/riverwatch/telemetry-ingest/internal/adapter/http"
	"github.com/riverwatch/telemetry-ingest/internal/adapter/openmeteo"
	"github.com/riverwatch/telemetry-ingest/internal/adapter/postgres"
	"github.com/riverwatch/telemetry-ingest/internal/adapter/usgs"
	"github.com/riverwatch/telemetry-ingest/internal/config"
	"github.com/riverwatch/telemetry-ingest/internal/observability"
	"github.com/riverwatch/telemetry-ingest/internal/pipeline"
	"github.com/riverwatch/telemetry-ingest/internal/ratelimit"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg)
	metrics := observability.NewMetrics()
	clock := clockwork.NewRealClock()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := postgres.New(ctx, cfg.DatabaseURL, logger)
	if err != nil {
		logger.Error("failed to connect database", "error", err)
		os.Exit(1)
	}
	defer store.Close()

	limiter := ratelimit.New(clock, cfg.FetchMinInterval)
	usgsClient := usgs.NewClient(cfg, limiter, metrics, logger)
	weatherClient := openmeteo.NewClient(cfg, limiter, metrics, logger)

	cascade := pipeline.NewCascade(usgsClient, clock, logger, metrics, cfg.LiveFreshness, cfg.DelayedFreshness)
	observations := pipeline.NewRunner(store, cascade, clock, logger, metrics, cfg.DefaultTimezone)
	weather := pipeline.NewWeatherRunner(store, weatherClient, clock, logger, metrics, cfg.DefaultTimezone)

	srv := httpadapter.NewServer(cfg.HTTPAddr, observations, weather, store, logger)

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}

	logger.Info("shutdown complete")
}
