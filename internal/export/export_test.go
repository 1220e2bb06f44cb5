package export

import (
	"bytes"
	"encoding/csv"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sweeney/attention-monitor/internal/attention"
	"github.com/sweeney/attention-monitor/internal/calibration"
	"github.com/sweeney/attention-monitor/internal/geometry"
	"github.com/sweeney/attention-monitor/internal/logic"
	"github.com/sweeney/attention-monitor/internal/session"
	"github.com/sweeney/attention-monitor/internal/slides"
)

func readCSV(t *testing.T, data string) [][]string {
	t.Helper()
	rows, err := csv.NewReader(strings.NewReader(data)).ReadAll()
	if err != nil {
		t.Fatalf("parse csv: %v\n%s", err, data)
	}
	return rows
}

func TestWriteBlinks(t *testing.T) {
	var buf bytes.Buffer
	blinks := []slides.Tagged[logic.Blink]{
		{Event: logic.NewBlink(3, 3.25), Slide: 0},
		{Event: logic.NewBlink(5, 5.5), Slide: 1},
	}
	if err := WriteBlinks(&buf, blinks); err != nil {
		t.Fatalf("WriteBlinks: %v", err)
	}

	want := "start_time,end_time,duration,slide\n3,3.25,0.25,0\n5,5.5,0.5,1\n"
	if buf.String() != want {
		t.Errorf("got:\n%s\nwant:\n%s", buf.String(), want)
	}
}

func TestWriteGaze(t *testing.T) {
	var buf bytes.Buffer
	gaze := []slides.Tagged[logic.GazeSample]{{
		Event: logic.GazeSample{
			Start:      1,
			End:        1.5,
			Left:       &geometry.Vec2{X: 2, Y: -1},
			Right:      &geometry.Vec2{X: 3.5, Y: 0},
			LeftFrame:  geometry.Size{W: 30, H: 14},
			RightFrame: geometry.Size{W: 31, H: 15},
		},
		Slide: 2,
	}}
	if err := WriteGaze(&buf, gaze); err != nil {
		t.Fatalf("WriteGaze: %v", err)
	}

	rows := readCSV(t, buf.String())
	if len(rows) != 2 {
		t.Fatalf("rows = %d, want 2", len(rows))
	}
	want := []string{"(2, -1)", "(3.5, 0)", "1", "1.5", "(30, 14)", "(31, 15)", "2"}
	for i := range want {
		if rows[1][i] != want[i] {
			t.Errorf("column %s = %q, want %q", rows[0][i], rows[1][i], want[i])
		}
	}
}

func TestWriteRecords(t *testing.T) {
	wps := 2.5
	records := []attention.Record{
		{
			Slide: 0, PeriodStart: 0, PeriodEnd: 5,
			Metrics: attention.Metrics{BlinkCount: 2, BlinkRate: 0.4, MeanBlinkDuration: 0.2, WordsPerSecond: &wps},
		},
		{
			Slide: 1, PeriodStart: 5, Open: true, MindWandering: true, VelocityFlag: true,
			Metrics: attention.Metrics{FixationCount: 4, ErraticCount: 2, ErraticRatio: 0.5},
		},
	}

	var buf bytes.Buffer
	if err := WriteRecords(&buf, records); err != nil {
		t.Fatalf("WriteRecords: %v", err)
	}
	rows := readCSV(t, buf.String())
	if len(rows) != 3 {
		t.Fatalf("rows = %d, want 3", len(rows))
	}

	col := func(row []string, name string) string {
		for i, h := range rows[0] {
			if h == name {
				return row[i]
			}
		}
		t.Fatalf("no column %q", name)
		return ""
	}
	if got := col(rows[1], "time_period"); got != "0.000-5.000" {
		t.Errorf("time_period = %q", got)
	}
	if got := col(rows[1], "words_per_second"); got != "2.5" {
		t.Errorf("words_per_second = %q", got)
	}
	if got := col(rows[2], "time_period"); got != "5.000-" {
		t.Errorf("open time_period = %q", got)
	}
	if got := col(rows[2], "mind_wandering"); got != "true" {
		t.Errorf("mind_wandering = %q", got)
	}
	if got := col(rows[2], "words_per_second"); got != "" {
		t.Errorf("words_per_second without word counts = %q, want empty", got)
	}
}

func TestWriteCrossCheck(t *testing.T) {
	var buf bytes.Buffer
	matches := []attention.Match{
		{ReportTime: 7, Matched: true, Slide: 1, PeriodStart: 5, PeriodEnd: 9},
		{ReportTime: 3, Slide: -1},
	}
	if err := WriteCrossCheck(&buf, matches); err != nil {
		t.Fatalf("WriteCrossCheck: %v", err)
	}

	want := "user_time,matched,computed_time_start,computed_time_end,slide\n7,true,5,9,1\n3,false,,,-1\n"
	if buf.String() != want {
		t.Errorf("got:\n%s\nwant:\n%s", buf.String(), want)
	}
}

func TestWriteThresholds(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteThresholds(&buf, calibration.Thresholds{EAR: 0.25, Velocity: 30}); err != nil {
		t.Fatalf("WriteThresholds: %v", err)
	}
	if want := "avg_ear,avg_velocity\n0.25,30\n"; buf.String() != want {
		t.Errorf("got %q, want %q", buf.String(), want)
	}
}

func TestWriteReport(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "out")
	r := session.Report{
		Blinks:     []slides.Tagged[logic.Blink]{{Event: logic.NewBlink(1, 1.2)}},
		Records:    []attention.Record{{Slide: 0, PeriodStart: 0, PeriodEnd: 4}},
		CrossCheck: []attention.Match{{ReportTime: 2, Slide: -1}},
	}
	if err := WriteReport(dir, r); err != nil {
		t.Fatalf("WriteReport: %v", err)
	}

	for name, rows := range map[string]int{BlinksFile: 2, GazeFile: 1, ReportFile: 2, CrossCheckFile: 2} {
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			t.Fatalf("read %s: %v", name, err)
		}
		if got := len(readCSV(t, string(data))); got != rows {
			t.Errorf("%s: %d rows, want %d", name, got, rows)
		}
	}
}

func TestWriteReportBadDir(t *testing.T) {
	file := filepath.Join(t.TempDir(), "file")
	if err := os.WriteFile(file, nil, 0o644); err != nil {
		t.Fatal(err)
	}
	if err := WriteReport(filepath.Join(file, "out"), session.Report{}); err == nil {
		t.Error("expected error when output dir cannot be created")
	}
}
