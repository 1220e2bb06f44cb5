// Package logic contains the pure event-detection logic for ocular streams.
// This package has NO external dependencies (no MQTT, files, clocks or goroutines).
// Time is always the session timestamp in seconds carried by each sample.
package logic

import "github.com/sweeney/attention-monitor/internal/geometry"

// BlinkState is the state of the blink state machine.
type BlinkState string

const (
	StateOpen    BlinkState = "OPEN"
	StateClosing BlinkState = "CLOSING"
	StateClosed  BlinkState = "CLOSED"
)

// ReopenPolicy decides when a closed blink counts as reopened.
type ReopenPolicy string

const (
	// ReopenBoth ends a blink only when both eyes are above threshold.
	ReopenBoth ReopenPolicy = "both"
	// ReopenEither ends a blink as soon as one eye is above threshold.
	ReopenEither ReopenPolicy = "either"
)

// Valid reports whether p is a known policy.
func (p ReopenPolicy) Valid() bool {
	return p == ReopenBoth || p == ReopenEither
}

// EARSample is one processed frame as seen by the blink state machine.
type EARSample struct {
	Time      float64
	Left      float64
	Right     float64
	Threshold float64
}

// Blink is a completed blink interval.
type Blink struct {
	Start    float64 `json:"start_time"`
	End      float64 `json:"end_time"`
	Duration float64 `json:"duration"`
}

// NewBlink builds a blink with its duration derived from the span.
func NewBlink(start, end float64) Blink {
	return Blink{Start: start, End: end, Duration: end - start}
}

// Span returns the start and end time.
func (b Blink) Span() (float64, float64) { return b.Start, b.End }

// WithSpan returns a copy covering [start, end] with the duration recomputed.
func (b Blink) WithSpan(start, end float64) Blink { return NewBlink(start, end) }

// GazeSample is one change-triggered gaze point. Its end time is explicit:
// it is the time the next, different, gaze vector was observed.
type GazeSample struct {
	Start      float64        `json:"start_time"`
	End        float64        `json:"end_time"`
	Left       *geometry.Vec2 `json:"left_offset"`
	Right      *geometry.Vec2 `json:"right_offset"`
	LeftFrame  geometry.Size  `json:"left_eye_dim"`
	RightFrame geometry.Size  `json:"right_eye_dim"`
}

// Span returns the start and end time.
func (g GazeSample) Span() (float64, float64) { return g.Start, g.End }

// WithSpan returns a copy covering [start, end].
func (g GazeSample) WithSpan(start, end float64) GazeSample {
	g.Start = start
	g.End = end
	return g
}

// Defined reports whether both offsets are present.
func (g GazeSample) Defined() bool {
	return g.Left != nil && g.Right != nil
}

// Horizontal returns the gaze signal used for velocity estimation: the mean
// of the left and right horizontal offsets.
func (g GazeSample) Horizontal() float64 {
	return (g.Left.X + g.Right.X) / 2
}

// FixationSegment is a contiguous run of low-velocity gaze samples.
type FixationSegment struct {
	Start        float64 `json:"start_time"`
	End          float64 `json:"end_time"`
	MeanVelocity float64 `json:"mean_velocity"`
	Duration     float64 `json:"duration"`
	Samples      int     `json:"samples"`
}

// BlinkCounts tracks blink detector activity since the session started.
type BlinkCounts struct {
	Blinks    int // completed blinks emitted
	Merged    int // re-closures inside the debounce window folded into one blink
	Discarded int // blinks still open when the stream ended
}
