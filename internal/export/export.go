// Package export writes session results as CSV tables.
package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/sweeney/attention-monitor/internal/attention"
	"github.com/sweeney/attention-monitor/internal/calibration"
	"github.com/sweeney/attention-monitor/internal/geometry"
	"github.com/sweeney/attention-monitor/internal/logic"
	"github.com/sweeney/attention-monitor/internal/session"
	"github.com/sweeney/attention-monitor/internal/slides"
)

// File names written by WriteReport.
const (
	BlinksFile     = "blinks.csv"
	GazeFile       = "gaze.csv"
	ReportFile     = "report.csv"
	CrossCheckFile = "crosscheck.csv"
)

func num(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func vec(v *geometry.Vec2) string {
	if v == nil {
		return ""
	}
	return fmt.Sprintf("(%s, %s)", num(v.X), num(v.Y))
}

func dim(s geometry.Size) string {
	return fmt.Sprintf("(%s, %s)", num(s.W), num(s.H))
}

func write(w io.Writer, header []string, rows [][]string) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return err
	}
	if err := cw.WriteAll(rows); err != nil {
		return fmt.Errorf("write csv: %w", err)
	}
	return nil
}

// WriteBlinks writes one row per slide-tagged blink interval.
func WriteBlinks(w io.Writer, blinks []slides.Tagged[logic.Blink]) error {
	rows := make([][]string, 0, len(blinks))
	for _, b := range blinks {
		rows = append(rows, []string{
			num(b.Event.Start), num(b.Event.End), num(b.Event.Duration), strconv.Itoa(b.Slide),
		})
	}
	return write(w, []string{"start_time", "end_time", "duration", "slide"}, rows)
}

// WriteGaze writes one row per slide-tagged gaze point. Offsets and eye
// dimensions are written as "(x, y)" pairs.
func WriteGaze(w io.Writer, gaze []slides.Tagged[logic.GazeSample]) error {
	rows := make([][]string, 0, len(gaze))
	for _, g := range gaze {
		s := g.Event
		rows = append(rows, []string{
			vec(s.Left), vec(s.Right), num(s.Start), num(s.End),
			dim(s.LeftFrame), dim(s.RightFrame), strconv.Itoa(g.Slide),
		})
	}
	header := []string{
		"left_eye_from_center", "right_eye_from_center", "start_time", "end_time",
		"left_eye_dim", "right_eye_dim", "slide",
	}
	return write(w, header, rows)
}

// WriteRecords writes the per-slide mind-wandering table.
func WriteRecords(w io.Writer, records []attention.Record) error {
	rows := make([][]string, 0, len(records))
	for _, r := range records {
		m := r.Metrics
		wps := ""
		if m.WordsPerSecond != nil {
			wps = num(*m.WordsPerSecond)
		}
		rows = append(rows, []string{
			strconv.Itoa(r.Slide),
			r.TimePeriod(),
			strconv.FormatBool(r.MindWandering),
			strconv.FormatBool(r.VelocityFlag),
			strconv.FormatBool(r.BlinkRateFlag),
			strconv.FormatBool(r.BlinkDurationFlag),
			strconv.Itoa(m.BlinkCount),
			num(m.BlinkRate),
			num(m.MeanBlinkDuration),
			strconv.Itoa(m.FixationCount),
			strconv.Itoa(m.ErraticCount),
			num(m.ErraticRatio),
			wps,
		})
	}
	header := []string{
		"slide", "time_period", "mind_wandering", "velocity_flag", "blink_rate_flag",
		"blink_duration_flag", "blink_count", "blink_rate", "mean_blink_duration",
		"fixation_count", "erratic_fixations", "erratic_ratio", "words_per_second",
	}
	return write(w, header, rows)
}

// WriteCrossCheck writes the self-report cross-check. Unmatched reports
// have empty period columns and slide -1.
func WriteCrossCheck(w io.Writer, matches []attention.Match) error {
	rows := make([][]string, 0, len(matches))
	for _, m := range matches {
		start, end := "", ""
		if m.Matched {
			start, end = num(m.PeriodStart), num(m.PeriodEnd)
		}
		rows = append(rows, []string{
			num(m.ReportTime), strconv.FormatBool(m.Matched), start, end, strconv.Itoa(m.Slide),
		})
	}
	return write(w, []string{"user_time", "matched", "computed_time_start", "computed_time_end", "slide"}, rows)
}

// WriteThresholds writes calibrated thresholds in the single-row layout
// earlier sessions were saved in.
func WriteThresholds(w io.Writer, t calibration.Thresholds) error {
	return write(w, []string{"avg_ear", "avg_velocity"}, [][]string{{num(t.EAR), num(t.Velocity)}})
}

// WriteReport writes every table of a session report into dir, creating it
// if needed.
func WriteReport(dir string, r session.Report) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}

	tables := []struct {
		name  string
		write func(io.Writer) error
	}{
		{BlinksFile, func(w io.Writer) error { return WriteBlinks(w, r.Blinks) }},
		{GazeFile, func(w io.Writer) error { return WriteGaze(w, r.Gaze) }},
		{ReportFile, func(w io.Writer) error { return WriteRecords(w, r.Records) }},
		{CrossCheckFile, func(w io.Writer) error { return WriteCrossCheck(w, r.CrossCheck) }},
	}
	for _, t := range tables {
		if err := writeFile(filepath.Join(dir, t.name), t.write); err != nil {
			return err
		}
	}
	return nil
}

func writeFile(path string, fn func(io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := fn(f); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close %s: %w", path, err)
	}
	return nil
}
