package main

import (
	"bytes"
	"context"
	"encoding/csv"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v3"

	"github.com/sweeney/attention-monitor/internal/store"
)

func TestLatestReport(t *testing.T) {
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("mock pool: %v", err)
	}
	defer mock.Close()

	mock.ExpectQuery(`SELECT id FROM attention_sessions`).
		WithArgs("p01").
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow("session-7"))
	mock.ExpectQuery(`FROM attention_slides`).
		WithArgs("session-7").
		WillReturnRows(pgxmock.NewRows([]string{
			"slide", "period_start", "period_end", "mind_wandering", "velocity_flag", "blink_rate_flag",
			"blink_duration_flag", "blink_rate", "mean_blink_duration", "erratic_ratio",
		}).
			AddRow(0, 0.0, 5.0, false, false, false, false, 0.4, 0.15, 0.0).
			AddRow(1, 5.0, 9.5, true, true, false, false, 0.2, 0.1, 0.8))

	var out bytes.Buffer
	if err := latestReport(context.Background(), store.NewReportRepository(mock), "p01", &out); err != nil {
		t.Fatalf("latestReport: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}

	rows, err := csv.NewReader(&out).ReadAll()
	if err != nil {
		t.Fatalf("output is not CSV: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("got %d rows, want header and 2 slides: %v", len(rows), rows)
	}
	if rows[2][0] != "1" || rows[2][1] != "5.000-9.500" || rows[2][2] != "true" {
		t.Errorf("second slide row = %v", rows[2])
	}
}

func TestLatestReportNoSession(t *testing.T) {
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("mock pool: %v", err)
	}
	defer mock.Close()

	mock.ExpectQuery(`SELECT id FROM attention_sessions`).
		WithArgs("nobody").
		WillReturnError(pgx.ErrNoRows)

	err = latestReport(context.Background(), store.NewReportRepository(mock), "nobody", &bytes.Buffer{})
	if err == nil {
		t.Fatal("expected error for a subject without sessions")
	}
}

func TestRunReportRequiresSubjectAndDatabase(t *testing.T) {
	if err := run(context.Background(), []string{"report"}, &bytes.Buffer{}); err == nil {
		t.Error("expected error without -subject")
	}
	if err := run(context.Background(), []string{"report", "-subject", "p01"}, &bytes.Buffer{}); err == nil {
		t.Error("expected error without a Postgres URL")
	}
}
