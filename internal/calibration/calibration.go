// Package calibration derives the per-session closed-eye EAR threshold and
// fixation velocity threshold from labeled warm-up intervals.
package calibration

import (
	"errors"
	"fmt"
	"sort"

	"github.com/sweeney/attention-monitor/internal/control"
	"github.com/sweeney/attention-monitor/internal/geometry"
	"github.com/sweeney/attention-monitor/internal/logic"
)

var (
	// ErrInsufficientCalibrationData means an interval held too few samples
	// to derive a threshold. The session must not proceed.
	ErrInsufficientCalibrationData = errors.New("insufficient calibration data")

	// ErrInvalidPlan is returned for unpaired or overlapping calibration markers.
	ErrInvalidPlan = errors.New("invalid calibration plan")
)

// Target says which threshold an interval calibrates.
type Target string

const (
	TargetAny     Target = ""
	TargetEAR     Target = "ear"
	TargetReading Target = "reading"
)

// ParseTarget validates a control event target label.
func ParseTarget(s string) (Target, error) {
	switch t := Target(s); t {
	case TargetAny, TargetEAR, TargetReading:
		return t, nil
	default:
		return "", fmt.Errorf("%w: unknown target %q", ErrInvalidPlan, s)
	}
}

// Thresholds are the immutable per-session thresholds shared by the blink
// detector and the fixation segmenter.
type Thresholds struct {
	EAR      float64 `json:"ear_threshold"`
	Velocity float64 `json:"velocity_threshold"`
}

// Interval is a closed calibration interval [Start, End].
type Interval struct {
	Start  float64 `json:"start"`
	End    float64 `json:"end"`
	Target Target  `json:"target,omitempty"`
}

// Contains reports whether t lies in the interval, bounds included.
func (iv Interval) Contains(t float64) bool {
	return t >= iv.Start && t <= iv.End
}

// Serves reports whether the interval calibrates target.
func (iv Interval) Serves(target Target) bool {
	return iv.Target == TargetAny || iv.Target == target
}

// Plan is the ordered list of calibration intervals of a session.
type Plan []Interval

// End returns the end of the last interval.
func (p Plan) End() float64 {
	var end float64
	for _, iv := range p {
		if iv.End > end {
			end = iv.End
		}
	}
	return end
}

// Covers reports whether t falls inside an interval serving target.
func (p Plan) Covers(t float64, target Target) bool {
	for _, iv := range p {
		if iv.Serves(target) && iv.Contains(t) {
			return true
		}
	}
	return false
}

// Has reports whether any interval serves target.
func (p Plan) Has(target Target) bool {
	for _, iv := range p {
		if iv.Serves(target) {
			return true
		}
	}
	return false
}

// PlanFromEvents pairs start_calibrating/end_calibrating markers into a plan.
// Other actions are ignored. Events must be in time order.
func PlanFromEvents(events []control.Event) (Plan, error) {
	var (
		plan Plan
		open *Interval
	)
	for _, ev := range events {
		switch ev.Action {
		case control.StartCalibrating:
			if open != nil {
				return nil, fmt.Errorf("%w: start at %.3f while interval from %.3f is open", ErrInvalidPlan, ev.Time, open.Start)
			}
			target, err := ParseTarget(ev.Target)
			if err != nil {
				return nil, err
			}
			open = &Interval{Start: ev.Time, Target: target}
		case control.EndCalibrating:
			if open == nil {
				return nil, fmt.Errorf("%w: end at %.3f without start", ErrInvalidPlan, ev.Time)
			}
			if ev.Time < open.Start {
				return nil, fmt.Errorf("%w: end %.3f before start %.3f", ErrInvalidPlan, ev.Time, open.Start)
			}
			open.End = ev.Time
			plan = append(plan, *open)
			open = nil
		}
	}
	if open != nil {
		return nil, fmt.Errorf("%w: interval from %.3f never ended", ErrInvalidPlan, open.Start)
	}
	return plan, nil
}

// Median returns the median of xs, averaging the two middle values for an
// even count. xs is not modified. The median of nothing is zero.
func Median(xs []float64) float64 {
	n := len(xs)
	if n == 0 {
		return 0
	}
	s := make([]float64, n)
	copy(s, xs)
	sort.Float64s(s)
	if n%2 == 1 {
		return s[n/2]
	}
	return (s[n/2-1] + s[n/2]) / 2
}

// Calibrate computes thresholds from EAR samples (the per-frame mean of both
// eyes) and the change-triggered gaze series recorded while reading.
//
// The EAR threshold is the median sample, robust to the bimodal mix of open
// and blinking frames. The velocity threshold is the mean absolute gaze
// velocity while reading.
func Calibrate(ear []float64, gaze []logic.GazeSample, minGazeSamples int) (Thresholds, error) {
	if len(ear) == 0 {
		return Thresholds{}, fmt.Errorf("ear interval has no samples: %w", ErrInsufficientCalibrationData)
	}
	defined := logic.DefinedSamples(gaze)
	if len(defined) < minGazeSamples || len(defined) == 0 {
		return Thresholds{}, fmt.Errorf("reading interval has %d gaze samples, need %d: %w",
			len(defined), minGazeSamples, ErrInsufficientCalibrationData)
	}
	velocity := logic.MeanAbsVelocity(defined)
	if velocity <= 0 {
		return Thresholds{}, fmt.Errorf("reading interval shows no gaze movement: %w", ErrInsufficientCalibrationData)
	}
	return Thresholds{EAR: Median(ear), Velocity: velocity}, nil
}

// Collector accumulates calibration samples frame by frame.
//
// With a plan (offline) interval membership comes from the plan and the
// collector is ready once a frame arrives after the plan's last interval.
// Without one (live) intervals are opened and closed by control events and
// the collector is ready once closed intervals cover both thresholds and no
// interval is open, whether or not they collected samples.
type Collector struct {
	minGaze int
	plan    Plan
	planned bool

	open *Interval

	ear      []float64
	gaze     []logic.GazeSample
	lastGaze *[2]geometry.Vec2
}

// NewCollector creates a collector requiring at least minGazeSamples gaze
// points from the reading interval.
func NewCollector(minGazeSamples int) *Collector {
	return &Collector{minGaze: minGazeSamples}
}

// WithPlan fixes the calibration intervals up front.
func (c *Collector) WithPlan(p Plan) *Collector {
	c.plan = p
	c.planned = true
	return c
}

// Plan returns the intervals known so far.
func (c *Collector) Plan() Plan {
	return c.plan
}

// Begin opens a live calibration interval. It is a no-op with a fixed plan.
func (c *Collector) Begin(t float64, target string) error {
	if c.planned {
		return nil
	}
	if c.open != nil {
		return fmt.Errorf("%w: start at %.3f while interval from %.3f is open", ErrInvalidPlan, t, c.open.Start)
	}
	tg, err := ParseTarget(target)
	if err != nil {
		return err
	}
	c.open = &Interval{Start: t, End: t, Target: tg}
	return nil
}

// End closes the open live calibration interval.
func (c *Collector) End(t float64) error {
	if c.planned {
		return nil
	}
	if c.open == nil {
		return fmt.Errorf("%w: end at %.3f without start", ErrInvalidPlan, t)
	}
	iv := *c.open
	iv.End = t
	c.plan = append(c.plan, iv)
	c.open = nil
	return nil
}

func (c *Collector) covers(t float64, target Target) bool {
	if c.open != nil && c.open.Serves(target) && t >= c.open.Start {
		return true
	}
	return c.plan.Covers(t, target)
}

// Observe offers one frame. ear is the mean EAR of both eyes (nil on a
// detection gap); left and right are the gaze offsets (nil when a pupil was
// not found). It reports whether the frame lay inside any calibration
// interval.
func (c *Collector) Observe(t float64, ear *float64, left, right *geometry.Vec2) bool {
	inEAR := c.covers(t, TargetEAR)
	inReading := c.covers(t, TargetReading)

	if inEAR && ear != nil {
		c.ear = append(c.ear, *ear)
	}
	if inReading {
		c.observeGaze(t, left, right)
	} else {
		c.lastGaze = nil
	}
	return inEAR || inReading
}

func (c *Collector) observeGaze(t float64, left, right *geometry.Vec2) {
	if left == nil || right == nil {
		c.lastGaze = nil
		return
	}
	cur := [2]geometry.Vec2{*left, *right}
	if c.lastGaze != nil && *c.lastGaze == cur {
		return
	}
	if n := len(c.gaze); n > 0 && c.lastGaze != nil {
		c.gaze[n-1].End = t
	}
	l, r := cur[0], cur[1]
	c.gaze = append(c.gaze, logic.GazeSample{Start: t, End: t, Left: &l, Right: &r})
	c.lastGaze = &cur
}

// Ready reports whether calibration can be finalized at time t.
func (c *Collector) Ready(t float64) bool {
	if c.open != nil {
		return false
	}
	if c.planned {
		return t > c.plan.End()
	}
	return c.plan.Has(TargetEAR) && c.plan.Has(TargetReading)
}

// Samples returns the number of EAR and gaze samples collected.
func (c *Collector) Samples() (ear, gaze int) {
	return len(c.ear), len(c.gaze)
}

// Thresholds computes the thresholds from everything collected.
func (c *Collector) Thresholds() (Thresholds, error) {
	return Calibrate(c.ear, c.gaze, c.minGaze)
}
