// Package mqtt publishes pipeline events to an MQTT broker and receives the
// live frame and control streams, with an abstraction for testing.
package mqtt

import (
	"encoding/json"
	"time"

	"github.com/sweeney/attention-monitor/internal/attention"
	"github.com/sweeney/attention-monitor/internal/calibration"
	"github.com/sweeney/attention-monitor/internal/logic"
)

// DefaultPrefix is the topic prefix used when none is configured.
const DefaultPrefix = "attention"

// Topics are the MQTT topics under one prefix.
type Topics struct {
	Events   string // outbound blink, gaze, calibration and slide events
	System   string // outbound lifecycle and status events
	Frames   string // inbound landmark frames
	Controls string // inbound control signals
}

// NewTopics derives the topic set from prefix.
func NewTopics(prefix string) Topics {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return Topics{
		Events:   prefix + "/events",
		System:   prefix + "/system",
		Frames:   prefix + "/frames",
		Controls: prefix + "/controls",
	}
}

// EventType names the kind of a pipeline event.
type EventType string

const (
	EventBlink      EventType = "BLINK"
	EventGaze       EventType = "GAZE"
	EventCalibrated EventType = "CALIBRATED"
	EventSlide      EventType = "SLIDE_REPORT"
)

// Event is one pipeline output addressed to subscribers.
type Event struct {
	Timestamp  time.Time // wall clock at publication
	SessionID  string
	Type       EventType
	Blink      *logic.Blink
	Gaze       *logic.GazeSample
	Thresholds *calibration.Thresholds
	Record     *attention.Record
	Stats      *logic.WindowStats
}

// Publisher publishes events to MQTT.
type Publisher interface {
	// Publish sends a pipeline event to the broker.
	// Returns error if publishing fails (should not crash the process).
	Publish(event Event) error

	// PublishSystem sends a system lifecycle event to the broker.
	PublishSystem(event SystemEvent) error

	// Close disconnects from the broker.
	Close() error
}

// ConnectionStatus reports whether the MQTT connection is active.
type ConnectionStatus interface {
	IsConnected() bool
}

// SystemEvent represents a system lifecycle event (e.g., startup, shutdown, heartbeat).
type SystemEvent struct {
	Timestamp  time.Time
	Event      string // e.g., "STARTUP", "SHUTDOWN", "HEARTBEAT"
	Reason     string // e.g., "SIGTERM", "SIGINT" (shutdown only)
	RawPayload []byte // Pre-formatted JSON payload; if set, FormatSystemPayload returns it directly
	Retained   bool   // Whether the message should be retained by the broker
}

// Payload represents the MQTT message payload structure.
type Payload struct {
	Attention AttentionPayload `json:"attention"`
}

// AttentionPayload contains the event details.
type AttentionPayload struct {
	Timestamp  string                  `json:"timestamp"`
	Session    string                  `json:"session"`
	Event      string                  `json:"event"`
	Blink      *logic.Blink            `json:"blink,omitempty"`
	Gaze       *GazePayload            `json:"gaze,omitempty"`
	Thresholds *calibration.Thresholds `json:"thresholds,omitempty"`
	Record     *attention.Record       `json:"record,omitempty"`
	Stats      *logic.WindowStats      `json:"stats,omitempty"`
}

// GazePayload flattens a gaze point into the persisted column layout.
type GazePayload struct {
	StartTime   float64    `json:"start_time"`
	EndTime     float64    `json:"end_time"`
	LeftOffset  [2]float64 `json:"left_offset"`
	RightOffset [2]float64 `json:"right_offset"`
	LeftEyeDim  [2]float64 `json:"left_eye_dim"`
	RightEyeDim [2]float64 `json:"right_eye_dim"`
}

func gazePayload(g *logic.GazeSample) *GazePayload {
	if g == nil || !g.Defined() {
		return nil
	}
	return &GazePayload{
		StartTime:   g.Start,
		EndTime:     g.End,
		LeftOffset:  [2]float64{g.Left.X, g.Left.Y},
		RightOffset: [2]float64{g.Right.X, g.Right.Y},
		LeftEyeDim:  [2]float64{g.LeftFrame.W, g.LeftFrame.H},
		RightEyeDim: [2]float64{g.RightFrame.W, g.RightFrame.H},
	}
}

// FormatPayload creates the JSON payload for a pipeline event.
func FormatPayload(event Event) ([]byte, error) {
	payload := Payload{
		Attention: AttentionPayload{
			Timestamp:  event.Timestamp.UTC().Format(time.RFC3339),
			Session:    event.SessionID,
			Event:      string(event.Type),
			Blink:      event.Blink,
			Gaze:       gazePayload(event.Gaze),
			Thresholds: event.Thresholds,
			Record:     event.Record,
			Stats:      event.Stats,
		},
	}
	return json.Marshal(payload)
}

// SystemPayload represents the MQTT message payload for system events.
// Used for simple events (LWT, RECONNECTED) that don't carry a full status snapshot.
type SystemPayload struct {
	System SystemPayloadInner `json:"system"`
}

// SystemPayloadInner contains the system event details.
type SystemPayloadInner struct {
	Timestamp string `json:"timestamp"`
	Event     string `json:"event"`
	Reason    string `json:"reason,omitempty"`
}

// FormatSystemPayload creates the JSON payload for a system event.
// If event.RawPayload is set, it is returned directly (used for full status snapshots).
func FormatSystemPayload(event SystemEvent) ([]byte, error) {
	if event.RawPayload != nil {
		return event.RawPayload, nil
	}

	payload := SystemPayload{
		System: SystemPayloadInner{
			Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
			Event:     event.Event,
			Reason:    event.Reason,
		},
	}
	return json.Marshal(payload)
}
