// Package session runs the per-subject pipeline: calibration, blink and gaze
// tracking, and the per-slide mind-wandering report.
//
// A Session is not safe for concurrent use. Live producers publish into an
// eventlog.Log and a single consumer feeds the session in timestamp order.
package session

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/sweeney/attention-monitor/internal/attention"
	"github.com/sweeney/attention-monitor/internal/calibration"
	"github.com/sweeney/attention-monitor/internal/control"
	"github.com/sweeney/attention-monitor/internal/frames"
	"github.com/sweeney/attention-monitor/internal/geometry"
	"github.com/sweeney/attention-monitor/internal/log"
	"github.com/sweeney/attention-monitor/internal/logic"
	"github.com/sweeney/attention-monitor/internal/slides"
)

var (
	// ErrFinished is returned for input after Finish.
	ErrFinished = errors.New("session finished")

	// ErrFailed is returned for input after calibration failed.
	ErrFailed = errors.New("session failed")
)

// Phase is the lifecycle stage of a session.
type Phase string

const (
	PhaseCalibrating Phase = "calibrating"
	PhaseTracking    Phase = "tracking"
	PhaseFailed      Phase = "failed"
	PhaseFinished    Phase = "finished"
)

// Config holds the pipeline parameters.
type Config struct {
	Debounce       float64 // blink debounce window, seconds
	ReopenPolicy   logic.ReopenPolicy
	WindowSeconds  float64 // lookback for live blink statistics
	MinGazeSamples int     // minimum reading-interval gaze points
	Classifier     attention.Config
	WordCounts     []int
}

// DefaultConfig returns the pipeline defaults.
func DefaultConfig() Config {
	return Config{
		Debounce:       0.05,
		ReopenPolicy:   logic.ReopenBoth,
		WindowSeconds:  60,
		MinGazeSamples: 3,
		Classifier:     attention.DefaultConfig(),
	}
}

// FrameCounts tracks how frames were handled.
type FrameCounts struct {
	Processed  int `json:"processed"`
	Calibrated int `json:"calibration"`
	Gaps       int `json:"gaps"`
	Invalid    int `json:"invalid"`
	Dropped    int `json:"dropped"`
}

// Output is what one frame produced.
type Output struct {
	Blinks []logic.Blink
	Gaze   []logic.GazeSample
	// Calibrated is set on the frame that finalized calibration.
	Calibrated *calibration.Thresholds
	Stats      logic.WindowStats
}

// Report is the outcome of a session.
type Report struct {
	SessionID   string                            `json:"session_id"`
	Start       float64                           `json:"start"`
	End         float64                           `json:"end"`
	Thresholds  calibration.Thresholds            `json:"thresholds"`
	Transitions []float64                         `json:"transitions"`
	Blinks      []slides.Tagged[logic.Blink]      `json:"blinks"`
	Gaze        []slides.Tagged[logic.GazeSample] `json:"gaze"`
	Records     []attention.Record                `json:"records"`
	CrossCheck  []attention.Match                 `json:"cross_check"`
	BlinkCounts logic.BlinkCounts                 `json:"blink_counts"`
	Frames      FrameCounts                       `json:"frames"`
}

// Option configures a Session.
type Option func(*Session)

// WithThresholds starts the session already calibrated, skipping the
// calibration intervals.
func WithThresholds(t calibration.Thresholds) Option {
	return func(s *Session) {
		s.thresholds = t
		s.phase = PhaseTracking
	}
}

// WithPlan fixes the calibration intervals up front (offline mode).
func WithPlan(p calibration.Plan) Option {
	return func(s *Session) {
		s.collector.WithPlan(p)
	}
}

// WithLogger overrides the session logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Session) {
		s.logger = l
	}
}

// Session is the pipeline state of one subject.
type Session struct {
	id     string
	cfg    Config
	logger *slog.Logger

	phase      Phase
	err        error
	thresholds calibration.Thresholds
	collector  *calibration.Collector

	blinkDet *logic.BlinkDetector
	gazeRec  *logic.GazeRecorder

	blinks      []logic.Blink
	gaze        []logic.GazeSample
	transitions []float64
	selfReports []float64

	seen      bool
	firstTime float64
	lastTime  float64
	counts    FrameCounts
}

// New creates a session.
func New(id string, cfg Config, opts ...Option) *Session {
	s := &Session{
		id:        id,
		cfg:       cfg,
		phase:     PhaseCalibrating,
		collector: calibration.NewCollector(cfg.MinGazeSamples),
		blinkDet:  logic.NewBlinkDetector(cfg.Debounce, cfg.ReopenPolicy),
		gazeRec:   logic.NewGazeRecorder(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = log.With("session", id)
	}
	return s
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// Phase returns the current phase.
func (s *Session) Phase() Phase { return s.phase }

// Thresholds returns the thresholds in use; zero until calibrated.
func (s *Session) Thresholds() calibration.Thresholds { return s.thresholds }

// Counts returns the frame counters.
func (s *Session) Counts() FrameCounts { return s.counts }

// BlinkCounts returns the blink detector counters.
func (s *Session) BlinkCounts() logic.BlinkCounts { return s.blinkDet.Counts() }

// LastTime returns the timestamp of the latest frame.
func (s *Session) LastTime() float64 { return s.lastTime }

// Slide returns the index of the slide shown at the latest frame.
func (s *Session) Slide() int { return slides.SlideOf(s.transitions, s.lastTime) }

func (s *Session) usable() error {
	switch s.phase {
	case PhaseFinished:
		return ErrFinished
	case PhaseFailed:
		return fmt.Errorf("%w: %w", ErrFailed, s.err)
	}
	return nil
}

// HandleControl applies one control signal.
func (s *Session) HandleControl(ev control.Event) error {
	if err := s.usable(); err != nil {
		return err
	}
	switch ev.Action {
	case control.SlideTransition:
		if n := len(s.transitions); n > 0 && ev.Time <= s.transitions[n-1] {
			return fmt.Errorf("%w: %.3f after %.3f", slides.ErrUnorderedTransitions, ev.Time, s.transitions[n-1])
		}
		s.transitions = append(s.transitions, ev.Time)
		s.logger.Info("session: slide transition", "slide", len(s.transitions), "time", ev.Time)

	case control.StartCalibrating:
		if s.phase != PhaseCalibrating {
			s.logger.Warn("session: calibration marker after calibration, ignoring", "time", ev.Time)
			return nil
		}
		return s.collector.Begin(ev.Time, ev.Target)

	case control.EndCalibrating:
		if s.phase != PhaseCalibrating {
			return nil
		}
		return s.collector.End(ev.Time)

	case control.MindWandering:
		s.selfReports = append(s.selfReports, ev.Time)
		s.logger.Info("session: self-reported lapse", "time", ev.Time)

	default:
		return fmt.Errorf("%w: %q", control.ErrUnknownAction, ev.Action)
	}
	return nil
}

// HandleFrame processes one frame. Per-frame problems (no face, no pupil,
// bad geometry) are counted and never returned. An error means the session
// cannot continue: calibration failed or the session is over.
func (s *Session) HandleFrame(f frames.Frame) (Output, error) {
	if err := s.usable(); err != nil {
		return Output{}, err
	}
	if s.seen && f.Time < s.lastTime {
		s.logger.Debug("session: out-of-order frame dropped", "frame", f.Index, "time", f.Time)
		s.counts.Dropped++
		return Output{}, nil
	}
	if !s.seen {
		s.firstTime = f.Time
	}
	s.seen = true
	s.lastTime = f.Time

	left, right, earErr := f.Face.EARs()
	switch {
	case earErr == nil:
	case geometry.IsDetectionGap(earErr):
		s.counts.Gaps++
	default:
		s.counts.Invalid++
		s.logger.Debug("session: invalid frame geometry", "frame", f.Index, "error", earErr)
	}
	gl, gr := f.Face.Gaze()

	var out Output
	if s.phase == PhaseCalibrating {
		if !s.collector.Ready(f.Time) {
			var mean *float64
			if earErr == nil {
				m := (left + right) / 2
				mean = &m
			}
			if s.collector.Observe(f.Time, mean, gl, gr) {
				s.counts.Calibrated++
			} else {
				s.counts.Dropped++
			}
			return out, nil
		}
		th, err := s.calibrate()
		if err != nil {
			return out, err
		}
		out.Calibrated = &th
	}

	s.counts.Processed++
	if earErr == nil {
		sample := logic.EARSample{Time: f.Time, Left: left, Right: right, Threshold: s.thresholds.EAR}
		if b := s.blinkDet.Process(sample); b != nil {
			s.blinks = append(s.blinks, *b)
			out.Blinks = append(out.Blinks, *b)
		}
	}

	var lf, rf geometry.Size
	if f.Face.Detected() {
		lf, rf = f.Face.Left.Frame, f.Face.Right.Frame
	}
	if g := s.gazeRec.Observe(f.Time, gl, gr, lf, rf); g != nil {
		s.gaze = append(s.gaze, *g)
		out.Gaze = append(out.Gaze, *g)
	}

	out.Stats = logic.BlinkWindow(s.blinks, f.Time, s.cfg.WindowSeconds)
	return out, nil
}

func (s *Session) calibrate() (calibration.Thresholds, error) {
	ear, gaze := s.collector.Samples()
	th, err := s.collector.Thresholds()
	if err != nil {
		s.phase = PhaseFailed
		s.err = err
		s.logger.Error("session: calibration failed", "ear_samples", ear, "gaze_samples", gaze, "error", err)
		return th, err
	}
	s.thresholds = th
	s.phase = PhaseTracking
	s.logger.Info("session: calibrated",
		"ear_threshold", th.EAR,
		"velocity_threshold", th.Velocity,
		"ear_samples", ear,
		"gaze_samples", gaze,
	)
	return th, nil
}

// Report builds the per-slide report over everything completed so far,
// with the last slide ending at end. Open blink and gaze state is left
// untouched.
func (s *Session) Report(end float64) Report {
	r := Report{
		SessionID:   s.id,
		Start:       s.firstTime,
		End:         end,
		Thresholds:  s.thresholds,
		Transitions: append([]float64(nil), s.transitions...),
		BlinkCounts: s.blinkDet.Counts(),
		Frames:      s.counts,
	}
	if s.phase != PhaseTracking && s.phase != PhaseFinished {
		return r
	}

	r.Blinks = slides.Split(s.transitions, s.blinks)
	r.Gaze = slides.Split(s.transitions, s.gaze)
	blinksBySlide := slides.Group(r.Blinks)
	gazeBySlide := slides.Group(r.Gaze)

	classifier := attention.NewClassifier(s.cfg.Classifier, s.thresholds.Velocity).
		WithWordCounts(s.cfg.WordCounts)
	for _, w := range slides.Windows(s.transitions, 0, end) {
		segments := logic.SegmentFixations(gazeBySlide[w.Index], s.thresholds.Velocity)
		r.Records = append(r.Records, classifier.Classify(w, blinksBySlide[w.Index], segments))
	}
	r.CrossCheck = attention.CrossCheck(s.selfReports, r.Records)
	return r
}

// Finish ends the session at end (the last frame time when end is not
// positive). A blink or gaze point still open has no known end and is
// discarded. Calibration that never completed is attempted once more so
// its error surfaces.
func (s *Session) Finish(end float64) (Report, error) {
	if err := s.usable(); err != nil {
		return Report{}, err
	}
	if s.phase == PhaseCalibrating {
		if _, err := s.calibrate(); err != nil {
			return Report{}, err
		}
	}
	if end <= 0 {
		end = s.lastTime
	}

	if s.blinkDet.Finish() {
		s.logger.Debug("session: open blink discarded at end")
	}
	if s.gazeRec.Discard() {
		s.logger.Debug("session: open gaze point discarded at end")
	}

	s.phase = PhaseFinished
	r := s.Report(end)
	flagged, total := attention.Summary(r.Records)
	s.logger.Info("session: finished",
		"blinks", len(s.blinks),
		"gaze_points", len(s.gaze),
		"slides", total,
		"mind_wandering_slides", flagged,
	)
	return r, nil
}
