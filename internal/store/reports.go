package store

import (
	"context"
	"fmt"
	"time"

	"github.com/sweeney/attention-monitor/internal/attention"
	"github.com/sweeney/attention-monitor/internal/session"
)

// Schema creates the report tables.
const Schema = `
CREATE TABLE IF NOT EXISTS attention_sessions (
	id                 TEXT PRIMARY KEY,
	subject            TEXT NOT NULL,
	start_time         DOUBLE PRECISION NOT NULL,
	end_time           DOUBLE PRECISION NOT NULL,
	ear_threshold      DOUBLE PRECISION NOT NULL,
	velocity_threshold DOUBLE PRECISION NOT NULL,
	created_at         TIMESTAMPTZ NOT NULL
);
CREATE TABLE IF NOT EXISTS attention_blinks (
	session_id TEXT NOT NULL REFERENCES attention_sessions(id) ON DELETE CASCADE,
	start_time DOUBLE PRECISION NOT NULL,
	end_time   DOUBLE PRECISION NOT NULL,
	duration   DOUBLE PRECISION NOT NULL,
	slide      INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS attention_slides (
	session_id          TEXT NOT NULL REFERENCES attention_sessions(id) ON DELETE CASCADE,
	slide               INTEGER NOT NULL,
	period_start        DOUBLE PRECISION NOT NULL,
	period_end          DOUBLE PRECISION NOT NULL,
	mind_wandering      BOOLEAN NOT NULL,
	velocity_flag       BOOLEAN NOT NULL,
	blink_rate_flag     BOOLEAN NOT NULL,
	blink_duration_flag BOOLEAN NOT NULL,
	blink_rate          DOUBLE PRECISION NOT NULL,
	mean_blink_duration DOUBLE PRECISION NOT NULL,
	erratic_ratio       DOUBLE PRECISION NOT NULL,
	PRIMARY KEY (session_id, slide)
);
`

// ReportRepository stores finished session reports.
type ReportRepository struct {
	db  Querier
	now func() time.Time
}

// NewReportRepository creates a repository over db.
func NewReportRepository(db Querier) *ReportRepository {
	return &ReportRepository{db: db, now: time.Now}
}

// Migrate creates the tables if they do not exist.
func (r *ReportRepository) Migrate(ctx context.Context) error {
	if _, err := r.db.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

// Save stores the report of one subject's session in one transaction: the
// session row, every slide-tagged blink and every per-slide record. Nothing
// is stored if any insert fails.
func (r *ReportRepository) Save(ctx context.Context, subject string, rep session.Report) (err error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin save %s: %w", rep.SessionID, err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	_, err = tx.Exec(ctx, `
		INSERT INTO attention_sessions (id, subject, start_time, end_time, ear_threshold, velocity_threshold, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
	`, rep.SessionID, subject, rep.Start, rep.End, rep.Thresholds.EAR, rep.Thresholds.Velocity, r.now())
	if err != nil {
		return fmt.Errorf("insert session %s: %w", rep.SessionID, err)
	}

	for _, b := range rep.Blinks {
		_, err = tx.Exec(ctx, `
			INSERT INTO attention_blinks (session_id, start_time, end_time, duration, slide)
			VALUES ($1,$2,$3,$4,$5)
		`, rep.SessionID, b.Event.Start, b.Event.End, b.Event.Duration, b.Slide)
		if err != nil {
			return fmt.Errorf("insert blink at %.3f: %w", b.Event.Start, err)
		}
	}

	for _, rec := range rep.Records {
		_, err = tx.Exec(ctx, `
			INSERT INTO attention_slides (session_id, slide, period_start, period_end, mind_wandering,
				velocity_flag, blink_rate_flag, blink_duration_flag, blink_rate, mean_blink_duration, erratic_ratio)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
		`, rep.SessionID, rec.Slide, rec.PeriodStart, rec.PeriodEnd, rec.MindWandering,
			rec.VelocityFlag, rec.BlinkRateFlag, rec.BlinkDurationFlag,
			rec.Metrics.BlinkRate, rec.Metrics.MeanBlinkDuration, rec.Metrics.ErraticRatio)
		if err != nil {
			return fmt.Errorf("insert slide %d: %w", rec.Slide, err)
		}
	}

	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit save %s: %w", rep.SessionID, err)
	}
	return nil
}

// Records returns the per-slide records of a session ordered by slide.
func (r *ReportRepository) Records(ctx context.Context, sessionID string) ([]attention.Record, error) {
	rows, err := r.db.Query(ctx, `
		SELECT slide, period_start, period_end, mind_wandering, velocity_flag, blink_rate_flag, blink_duration_flag,
			blink_rate, mean_blink_duration, erratic_ratio
		FROM attention_slides WHERE session_id=$1
		ORDER BY slide
	`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []attention.Record
	for rows.Next() {
		var rec attention.Record
		if err := rows.Scan(&rec.Slide, &rec.PeriodStart, &rec.PeriodEnd, &rec.MindWandering,
			&rec.VelocityFlag, &rec.BlinkRateFlag, &rec.BlinkDurationFlag,
			&rec.Metrics.BlinkRate, &rec.Metrics.MeanBlinkDuration, &rec.Metrics.ErraticRatio); err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// LatestSession returns the id of the subject's most recent session.
func (r *ReportRepository) LatestSession(ctx context.Context, subject string) (string, error) {
	var id string
	err := r.db.QueryRow(ctx, `
		SELECT id FROM attention_sessions WHERE subject=$1
		ORDER BY created_at DESC
		LIMIT 1
	`, subject).Scan(&id)
	return id, err
}
