// Package status provides a thread-safe status tracker for a live session.
// It is read by HTTP handlers and the heartbeat publisher.
package status

import (
	"sync"
	"time"

	"github.com/sweeney/attention-monitor/internal/attention"
	"github.com/sweeney/attention-monitor/internal/calibration"
	"github.com/sweeney/attention-monitor/internal/logic"
	"github.com/sweeney/attention-monitor/internal/session"
)

// Config contains daemon configuration for display.
type Config struct {
	Subject       string
	WindowSeconds float64
	HeartbeatMs   int64
	Broker        string
	HTTPAddr      string
	GPIOPin       int // -1 when no clicker is attached
}

// Progress is the session state published after every processed batch.
type Progress struct {
	Phase       session.Phase
	Thresholds  *calibration.Thresholds // nil until calibrated
	Frames      session.FrameCounts
	Blinks      logic.BlinkCounts
	Window      logic.WindowStats
	SessionTime float64
	Slide       int
}

// Snapshot is a point-in-time view of daemon state.
// It is a value type, safe to use after the lock is released.
type Snapshot struct {
	SessionID     string
	Progress      Progress
	Records       []attention.Record
	StartTime     time.Time
	Now           time.Time
	MQTTConnected bool
	Config        Config
}

// Uptime returns the duration since the daemon started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// Calibrated reports whether thresholds are known.
func (s Snapshot) Calibrated() bool {
	return s.Progress.Thresholds != nil
}

// Tracker holds mutable daemon state behind an RWMutex.
type Tracker struct {
	mu   sync.RWMutex
	snap Snapshot
}

// NewTracker creates a Tracker with the given start time and config.
func NewTracker(sessionID string, startTime time.Time, cfg Config) *Tracker {
	return &Tracker{
		snap: Snapshot{
			SessionID: sessionID,
			StartTime: startTime,
			Config:    cfg,
		},
	}
}

// Update replaces the session progress.
// Called from runLoop after every processed batch.
func (t *Tracker) Update(p Progress) {
	if p.Thresholds != nil {
		th := *p.Thresholds
		p.Thresholds = &th
	}
	t.mu.Lock()
	t.snap.Progress = p
	t.mu.Unlock()
}

// SetRecords replaces the per-slide records, typically once the session
// has been finished or a slide has closed.
func (t *Tracker) SetRecords(records []attention.Record) {
	cp := append([]attention.Record(nil), records...)
	t.mu.Lock()
	t.snap.Records = cp
	t.mu.Unlock()
}

// SetMQTTConnected sets the MQTT connection status.
func (t *Tracker) SetMQTTConnected(connected bool) {
	t.mu.Lock()
	t.snap.MQTTConnected = connected
	t.mu.Unlock()
}

// Snapshot returns a point-in-time copy of the daemon state.
// The Now field is set to the current time at the moment of the call.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	s := t.snap
	t.mu.RUnlock()
	s.Now = time.Now()
	return s
}
