// Command runaudit inspects the run ledger. With no flags it lists recent
// runs and flags entries stuck in the running state, which mark runs that
// died before closing their ledger entry. With -run it prints the per-river
// site logs for one run.
//
// Usage:
//
//	go run ./cmd/runaudit
//	go run ./cmd/runaudit -limit 50
//	go run ./cmd/runaudit -run 1234
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"text/tabwriter"
	"time"

	"github.com/riverwatch/telemetry-ingest/internal/adapter/postgres"
	"github.com/riverwatch/telemetry-ingest/internal/config"
	"github.com/riverwatch/telemetry-ingest/internal/domain"
	"github.com/riverwatch/telemetry-ingest/internal/observability"
)

// orphanAge is how long a run may sit in running state before it is
// presumed dead.
const orphanAge = 2 * time.Hour

func main() {
	runID := flag.Int64("run", 0, "print site logs for this run ID")
	limit := flag.Int("limit", 20, "number of recent runs to list")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	logger := observability.NewLogger(cfg)

	ctx := context.Background()
	store, err := postgres.New(ctx, cfg.DatabaseURL, logger)
	if err != nil {
		logger.Error("failed to connect database", "error", err)
		os.Exit(1)
	}
	defer store.Close()

	if *runID != 0 {
		err = printSiteLogs(ctx, store, *runID)
	} else {
		err = printRuns(ctx, store, *limit)
	}
	if err != nil {
		logger.Error("audit failed", "error", err)
		os.Exit(1)
	}
}

func printRuns(ctx context.Context, store *postgres.Store, limit int) error {
	runs, err := store.RecentRuns(ctx, limit)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tKIND\tCADENCE\tSTATUS\tSTARTED\tDURATION\tOK\tFAILED\tNOTE")
	for _, r := range runs {
		status := string(r.Status)
		duration := "-"
		switch {
		case r.FinishedAt != nil:
			duration = r.FinishedAt.Sub(r.StartedAt).Round(time.Second).String()
		case r.Status == domain.RunRunning && time.Since(r.StartedAt) > orphanAge:
			status = "running (ORPHANED)"
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\t%d\t%d\t%s\n",
			r.ID, r.Kind, r.Cadence, status,
			r.StartedAt.Format(time.RFC3339), duration,
			r.RiversOK, r.RiversFailed, r.Note)
	}
	return w.Flush()
}

func printSiteLogs(ctx context.Context, store *postgres.Store, runID int64) error {
	logs, err := store.SiteLogs(ctx, runID)
	if err != nil {
		return err
	}
	if len(logs) == 0 {
		fmt.Printf("no site logs for run %d\n", runID)
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "RIVER\tSTATUS\tFLOW\tFLOW SRC\tFLOW REASON\tTEMP\tTEMP SRC\tTEMP REASON\tERROR")
	for _, l := range logs {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			l.RiverID, l.Status,
			fmtValue(l.FlowValue), l.FlowSource, l.FlowReason,
			fmtValue(l.TempValue), l.TempSource, l.TempReason,
			l.Error)
	}
	return w.Flush()
}

func fmtValue(v *float64) string {
	if v == nil {
		return "-"
	}
	return fmt.Sprintf("%.1f", *v)
}
