package status

import (
	"encoding/json"
	"time"

	"github.com/sweeney/attention-monitor/internal/attention"
	"github.com/sweeney/attention-monitor/internal/calibration"
	"github.com/sweeney/attention-monitor/internal/logic"
	"github.com/sweeney/attention-monitor/internal/session"
)

// StatusJSON is the top-level JSON envelope for status output.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	Event         string                  `json:"event,omitempty"`
	Reason        string                  `json:"reason,omitempty"`
	Session       string                  `json:"session"`
	Subject       string                  `json:"subject,omitempty"`
	Phase         string                  `json:"phase"`
	Ready         bool                    `json:"ready"`
	Thresholds    *calibration.Thresholds `json:"thresholds,omitempty"`
	SessionTime   float64                 `json:"session_time"`
	Slide         int                     `json:"slide"`
	UptimeSeconds int64                   `json:"uptime_seconds"`
	StartTime     string                  `json:"start_time"`
	Timestamp     string                  `json:"timestamp"`
	MQTT          MQTTStatus              `json:"mqtt"`
	Frames        session.FrameCounts     `json:"frames"`
	Blinks        BlinksJSON              `json:"blinks"`
	Window        logic.WindowStats       `json:"window"`
	Config        ConfigJSON              `json:"config"`
}

// MQTTStatus reports MQTT connection state.
type MQTTStatus struct {
	Connected bool   `json:"connected"`
	Broker    string `json:"broker"`
}

// BlinksJSON is the JSON representation of blink detector counts.
type BlinksJSON struct {
	Total     int `json:"total"`
	Merged    int `json:"merged"`
	Discarded int `json:"discarded"`
}

// ConfigJSON is the JSON representation of daemon config.
type ConfigJSON struct {
	WindowSeconds float64 `json:"window_seconds"`
	HeartbeatMs   int64   `json:"heartbeat_ms"`
	Broker        string  `json:"broker"`
	HTTPAddr      string  `json:"http_addr"`
	GPIOPin       int     `json:"gpio_pin"`
}

// ReportJSON is the JSON envelope for the per-slide records.
type ReportJSON struct {
	Session   string             `json:"session"`
	Flagged   int                `json:"flagged"`
	Total     int                `json:"total"`
	Records   []attention.Record `json:"records"`
	Timestamp string             `json:"timestamp"`
}

func buildInner(snap Snapshot) StatusInner {
	phase := string(snap.Progress.Phase)
	if phase == "" {
		phase = "UNKNOWN"
	}

	return StatusInner{
		Session:       snap.SessionID,
		Subject:       snap.Config.Subject,
		Phase:         phase,
		Ready:         snap.Calibrated(),
		Thresholds:    snap.Progress.Thresholds,
		SessionTime:   snap.Progress.SessionTime,
		Slide:         snap.Progress.Slide,
		UptimeSeconds: int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:     snap.StartTime.UTC().Format(time.RFC3339),
		Timestamp:     snap.Now.UTC().Format(time.RFC3339),
		MQTT:          MQTTStatus{Connected: snap.MQTTConnected, Broker: snap.Config.Broker},
		Frames:        snap.Progress.Frames,
		Blinks: BlinksJSON{
			Total:     snap.Progress.Blinks.Blinks,
			Merged:    snap.Progress.Blinks.Merged,
			Discarded: snap.Progress.Blinks.Discarded,
		},
		Window: snap.Progress.Window,
		Config: ConfigJSON{
			WindowSeconds: snap.Config.WindowSeconds,
			HeartbeatMs:   snap.Config.HeartbeatMs,
			Broker:        snap.Config.Broker,
			HTTPAddr:      snap.Config.HTTPAddr,
			GPIOPin:       snap.Config.GPIOPin,
		},
	}
}

// FormatJSON returns the JSON status for the web endpoint (no event/reason).
func FormatJSON(snap Snapshot) []byte {
	data, _ := json.MarshalIndent(StatusJSON{Status: buildInner(snap)}, "", "  ")
	return data
}

// FormatStatusEvent returns the JSON status for an MQTT system event.
func FormatStatusEvent(snap Snapshot, event, reason string) []byte {
	inner := buildInner(snap)
	inner.Event = event
	inner.Reason = reason

	data, _ := json.Marshal(StatusJSON{Status: inner})
	return data
}

// FormatReport returns the JSON per-slide report for the web endpoint.
func FormatReport(snap Snapshot) []byte {
	flagged, total := attention.Summary(snap.Records)
	records := snap.Records
	if records == nil {
		records = []attention.Record{}
	}
	data, _ := json.MarshalIndent(ReportJSON{
		Session:   snap.SessionID,
		Flagged:   flagged,
		Total:     total,
		Records:   records,
		Timestamp: snap.Now.UTC().Format(time.RFC3339),
	}, "", "  ")
	return data
}
