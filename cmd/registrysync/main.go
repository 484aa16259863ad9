// Command registrysync refreshes the station capability registry. It probes
// every site referenced by a role mapping, a legacy override, or a river
// default against the instantaneous-values service and records which
// parameters each site actually reports. The ingestion cascade consults the
// registry when a river's mapped sites come up empty.
//
// Usage:
//
//	go run ./cmd/registrysync
//	go run ./cmd/registrysync -sites 06041000,06043500
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/jonboulle/clockwork"

	"github.com/riverwatch/telemetry-ingest/internal/adapter/postgres"
	"github.com/riverwatch/telemetry-ingest/internal/adapter/usgs"
	"github.com/riverwatch/telemetry-ingest/internal/config"
	"github.com/riverwatch/telemetry-ingest/internal/observability"
	"github.com/riverwatch/telemetry-ingest/internal/ratelimit"
)

func main() {
	sitesFlag := flag.String("sites", "", "comma-separated site IDs to probe instead of the mapped set")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	logger := observability.NewLogger(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger, *sitesFlag); err != nil {
		logger.Error("registry sync failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger, sitesFlag string) error {
	store, err := postgres.New(ctx, cfg.DatabaseURL, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	clock := clockwork.NewRealClock()
	limiter := ratelimit.New(clock, cfg.FetchMinInterval)
	client := usgs.NewClient(cfg, limiter, observability.NewMetrics(), logger)

	var sites []string
	if sitesFlag != "" {
		for _, s := range strings.Split(sitesFlag, ",") {
			if s = strings.TrimSpace(s); s != "" {
				sites = append(sites, s)
			}
		}
	} else {
		sites, err = store.MappedSiteIDs(ctx)
		if err != nil {
			return err
		}
	}

	logger.Info("probing sites", "count", len(sites))

	var probed, failed int
	for _, site := range sites {
		capability, err := client.Probe(ctx, site)
		if err != nil {
			// A probe failure leaves the existing registry row untouched
			// rather than recording a false negative.
			logger.Warn("probe failed", "site", site, "error", err)
			failed++
			continue
		}
		if err := store.UpsertStationCapability(ctx, capability); err != nil {
			return err
		}
		probed++
		logger.Info("site probed", "site", site,
			"has_flow", capability.HasFlow, "has_temperature", capability.HasTemperature)
	}

	logger.Info("registry sync finished", "probed", probed, "failed", failed)
	return nil
}
