package web

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/sweeney/attention-monitor/internal/attention"
	"github.com/sweeney/attention-monitor/internal/calibration"
	"github.com/sweeney/attention-monitor/internal/logic"
	"github.com/sweeney/attention-monitor/internal/session"
	"github.com/sweeney/attention-monitor/internal/status"
)

func newTestServer(t *testing.T) (*Server, *status.Tracker) {
	t.Helper()
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	cfg := status.Config{
		Subject:       "p01",
		WindowSeconds: 60,
		HeartbeatMs:   900000,
		Broker:        "tcp://192.168.1.200:1883",
		HTTPAddr:      ":8080",
		GPIOPin:       -1,
	}
	tr := status.NewTracker("sess-1", start, cfg)
	return New(":0", tr), tr
}

func get(t *testing.T, srv *Server, path string) (*http.Response, []byte) {
	t.Helper()
	resp, err := srv.app.Test(httptest.NewRequest(http.MethodGet, path, nil))
	if err != nil {
		t.Fatalf("GET %s: %v", path, err)
	}
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	return resp, body
}

func TestJSONEndpoint(t *testing.T) {
	srv, tr := newTestServer(t)
	th := calibration.Thresholds{EAR: 0.22, Velocity: 14}
	tr.Update(status.Progress{
		Phase:      session.PhaseTracking,
		Thresholds: &th,
		Blinks:     logic.BlinkCounts{Blinks: 5, Merged: 2},
		Window:     logic.WindowStats{Count: 5, RatePerMinute: 15},
	})
	tr.SetMQTTConnected(true)

	resp, body := get(t, srv, "/index.json")
	if resp.StatusCode != 200 {
		t.Errorf("status: got %d, want 200", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type: got %q, want application/json", ct)
	}

	var sj status.StatusJSON
	if err := json.Unmarshal(body, &sj); err != nil {
		t.Fatalf("decode JSON: %v", err)
	}

	if sj.Status.Phase != "tracking" {
		t.Errorf("Phase: got %q, want tracking", sj.Status.Phase)
	}
	if !sj.Status.Ready {
		t.Error("expected Ready=true")
	}
	if !sj.Status.MQTT.Connected {
		t.Error("expected MQTT.Connected=true")
	}
	if sj.Status.MQTT.Broker != "tcp://192.168.1.200:1883" {
		t.Errorf("MQTT.Broker: got %q, want tcp://192.168.1.200:1883", sj.Status.MQTT.Broker)
	}
	if sj.Status.Blinks.Total != 5 {
		t.Errorf("Blinks.Total: got %d, want 5", sj.Status.Blinks.Total)
	}
	if sj.Status.Window.RatePerMinute != 15 {
		t.Errorf("Window.RatePerMinute: got %v, want 15", sj.Status.Window.RatePerMinute)
	}
	if sj.Status.Session != "sess-1" || sj.Status.Subject != "p01" {
		t.Errorf("Session/Subject: got %q/%q", sj.Status.Session, sj.Status.Subject)
	}
}

func TestJSONUnknownPhaseBeforeFirstUpdate(t *testing.T) {
	srv, _ := newTestServer(t)

	_, body := get(t, srv, "/index.json")
	var sj status.StatusJSON
	json.Unmarshal(body, &sj)

	if sj.Status.Phase != "UNKNOWN" {
		t.Errorf("Phase before first update: got %q, want UNKNOWN", sj.Status.Phase)
	}
	if sj.Status.Ready {
		t.Error("expected Ready=false before calibration")
	}
}

func TestReportEndpoint(t *testing.T) {
	srv, tr := newTestServer(t)
	tr.SetRecords([]attention.Record{
		{Slide: 0, PeriodStart: 0, PeriodEnd: 5},
		{Slide: 1, PeriodStart: 5, PeriodEnd: 9, MindWandering: true, VelocityFlag: true},
	})

	resp, body := get(t, srv, "/report.json")
	if resp.StatusCode != 200 {
		t.Fatalf("status: got %d, want 200", resp.StatusCode)
	}

	var rj status.ReportJSON
	if err := json.Unmarshal(body, &rj); err != nil {
		t.Fatalf("decode JSON: %v", err)
	}
	if rj.Flagged != 1 || rj.Total != 2 {
		t.Errorf("Flagged/Total: got %d/%d, want 1/2", rj.Flagged, rj.Total)
	}
	if rj.Session != "sess-1" {
		t.Errorf("Session: got %q", rj.Session)
	}
}

func TestHealthEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, body := get(t, srv, "/health")
	if resp.StatusCode != 200 {
		t.Errorf("status: got %d, want 200", resp.StatusCode)
	}
	if !strings.Contains(string(body), `"ok"`) {
		t.Errorf("body: got %s", body)
	}
}

func TestHTMLEndpointRoot(t *testing.T) {
	srv, tr := newTestServer(t)
	th := calibration.Thresholds{EAR: 0.2, Velocity: 10}
	tr.Update(status.Progress{Phase: session.PhaseTracking, Thresholds: &th, Slide: 1})
	tr.SetRecords([]attention.Record{{Slide: 0, PeriodStart: 0, PeriodEnd: 5, MindWandering: true}})

	resp, body := get(t, srv, "/")
	if resp.StatusCode != 200 {
		t.Errorf("status: got %d, want 200", resp.StatusCode)
	}
	ct := resp.Header.Get("Content-Type")
	if !strings.HasPrefix(ct, "text/html") {
		t.Errorf("Content-Type: got %q, want text/html", ct)
	}
	for _, want := range []string{"sess-1", "tracking", "0.000-5.000", `class="flagged"`} {
		if !strings.Contains(string(body), want) {
			t.Errorf("page missing %q", want)
		}
	}
}

func TestHTMLEndpointBeforeCalibration(t *testing.T) {
	srv, tr := newTestServer(t)
	tr.Update(status.Progress{Phase: session.PhaseCalibrating})

	_, body := get(t, srv, "/index.html")
	if !strings.Contains(string(body), "not calibrated") {
		t.Error("page should say the session is not calibrated")
	}
}

func TestNotFoundForUnknownPath(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, _ := get(t, srv, "/nonexistent")
	if resp.StatusCode != 404 {
		t.Errorf("status: got %d, want 404", resp.StatusCode)
	}
}

func TestStateChangesReflectedInResponse(t *testing.T) {
	srv, tr := newTestServer(t)

	_, body := get(t, srv, "/index.json")
	var sj1 status.StatusJSON
	json.Unmarshal(body, &sj1)
	if sj1.Status.Ready {
		t.Error("expected Ready=false initially")
	}

	th := calibration.Thresholds{EAR: 0.2, Velocity: 10}
	tr.Update(status.Progress{Phase: session.PhaseTracking, Thresholds: &th, SessionTime: 30})
	tr.SetMQTTConnected(true)

	_, body = get(t, srv, "/index.json")
	var sj2 status.StatusJSON
	json.Unmarshal(body, &sj2)

	if !sj2.Status.Ready {
		t.Error("expected Ready=true after update")
	}
	if sj2.Status.SessionTime != 30 {
		t.Errorf("SessionTime: got %v, want 30", sj2.Status.SessionTime)
	}
	if !sj2.Status.MQTT.Connected {
		t.Error("expected MQTT connected after update")
	}
}
