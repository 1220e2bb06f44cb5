package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"

	"github.com/jackc/pgx/v5"

	"github.com/sweeney/attention-monitor/internal/attention"
	"github.com/sweeney/attention-monitor/internal/export"
	"github.com/sweeney/attention-monitor/internal/log"
	"github.com/sweeney/attention-monitor/internal/store"
)

func runReport(ctx context.Context, args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("report", flag.ContinueOnError)
	var common commonFlags
	common.register(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if common.subject == "" {
		return errors.New("report: -subject is required")
	}

	cfg, err := common.load()
	if err != nil {
		return err
	}
	if cfg.PostgresURL == "" {
		return errors.New("report: a Postgres URL is required (-postgres or postgres_url)")
	}

	pool, err := store.ConnectPostgres(ctx, cfg.PostgresURL)
	if err != nil {
		return err
	}
	defer pool.Close()
	return latestReport(ctx, store.NewReportRepository(pool), common.subject, stdout)
}

// reportReader reads stored sessions. *store.ReportRepository satisfies it.
type reportReader interface {
	LatestSession(ctx context.Context, subject string) (string, error)
	Records(ctx context.Context, sessionID string) ([]attention.Record, error)
}

// latestReport writes the per-slide records of the subject's most recent
// stored session as CSV.
func latestReport(ctx context.Context, repo reportReader, subject string, w io.Writer) error {
	id, err := repo.LatestSession(ctx, subject)
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("report: no stored session for subject %q", subject)
	}
	if err != nil {
		return fmt.Errorf("report: latest session: %w", err)
	}
	records, err := repo.Records(ctx, id)
	if err != nil {
		return fmt.Errorf("report: session %s: %w", id, err)
	}
	flagged, total := attention.Summary(records)
	log.Info("report: latest session", "subject", subject, "session", id, "flagged", flagged, "slides", total)
	return export.WriteRecords(w, records)
}
