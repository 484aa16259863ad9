package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	DatabaseURL     string
	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration

	// Telemetry provider endpoints, overridable for tests and mirrors.
	USGSInstantURL string
	USGSDailyURL   string
	OpenMeteoURL   string

	ProviderTimeout time.Duration

	// Minimum spacing between requests to the same external domain.
	// Scraped content domains require the full 60s; the telemetry APIs
	// tolerate a much shorter interval.
	FetchMinInterval time.Duration

	// Freshness windows for accepting observations as current.
	LiveFreshness    time.Duration
	DelayedFreshness time.Duration

	// DefaultTimezone governs run-level observation dates for rivers
	// without an explicit zone.
	DefaultTimezone string
}

// Load reads configuration from the environment, applying defaults where
// unset. A .env file in the working directory is honored when present.
func Load() (*Config, error) {
	_ = godotenv.Load()

	shutdownTimeout, err := envDuration("SHUTDOWN_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, err
	}
	providerTimeout, err := envDuration("PROVIDER_TIMEOUT", 15*time.Second)
	if err != nil {
		return nil, err
	}
	fetchMinInterval, err := envDuration("FETCH_MIN_INTERVAL", time.Second)
	if err != nil {
		return nil, err
	}
	liveFreshness, err := envDuration("LIVE_FRESHNESS", 72*time.Hour)
	if err != nil {
		return nil, err
	}
	delayedFreshness, err := envDuration("DELAYED_FRESHNESS", 240*time.Hour)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		DatabaseURL:      os.Getenv("DATABASE_URL"),
		HTTPAddr:         envOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:         envOrDefault("LOG_LEVEL", "info"),
		LogFormat:        envOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout:  shutdownTimeout,
		USGSInstantURL:   envOrDefault("USGS_IV_URL", "https://waterservices.usgs.gov/nwis/iv/"),
		USGSDailyURL:     envOrDefault("USGS_DV_URL", "https://waterservices.usgs.gov/nwis/dv/"),
		OpenMeteoURL:     envOrDefault("OPEN_METEO_URL", "https://api.open-meteo.com/v1/forecast"),
		ProviderTimeout:  providerTimeout,
		FetchMinInterval: fetchMinInterval,
		LiveFreshness:    liveFreshness,
		DelayedFreshness: delayedFreshness,
		DefaultTimezone:  envOrDefault("DEFAULT_TIMEZONE", "America/Denver"),
	}

	if cfg.DatabaseURL == "" {
		return nil, errors.New("DATABASE_URL is required")
	}
	if _, err := time.LoadLocation(cfg.DefaultTimezone); err != nil {
		return nil, fmt.Errorf("invalid DEFAULT_TIMEZONE: %w", err)
	}

	return cfg, nil
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) (time.Duration, error) {
	s := os.Getenv(key)
	if s == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil || d < 0 {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return d, nil
}
