// Package attention classifies each slide as mind-wandering or attentive from
// its blink and fixation features.
package attention

import (
	"fmt"

	"github.com/sweeney/attention-monitor/internal/logic"
	"github.com/sweeney/attention-monitor/internal/slides"
)

// Config holds the classifier thresholds.
type Config struct {
	BlinkRateThreshold    float64 // blinks per second
	DurationLow           float64 // seconds
	DurationHigh          float64 // seconds
	ErraticRatioThreshold float64
	// ErraticVelocityFactor scales the calibrated velocity threshold to the
	// mean velocity above which a fixation counts as erratic.
	ErraticVelocityFactor float64
}

// DefaultConfig returns the classifier defaults.
func DefaultConfig() Config {
	return Config{
		BlinkRateThreshold:    0.5,
		DurationLow:           0.1,
		DurationHigh:          0.4,
		ErraticRatioThreshold: 0.3,
		ErraticVelocityFactor: 1.5,
	}
}

// Metrics are the per-slide features behind the flags.
type Metrics struct {
	BlinkCount        int      `json:"blink_count"`
	BlinkRate         float64  `json:"blink_rate"`
	MeanBlinkDuration float64  `json:"mean_blink_duration"`
	FixationCount     int      `json:"fixation_count"`
	ErraticCount      int      `json:"erratic_fixations"`
	ErraticRatio      float64  `json:"erratic_ratio"`
	WordsPerSecond    *float64 `json:"words_per_second,omitempty"`
}

// Record is the mind-wandering verdict for one slide.
type Record struct {
	Slide             int     `json:"slide"`
	PeriodStart       float64 `json:"period_start"`
	PeriodEnd         float64 `json:"period_end"`
	Open              bool    `json:"open,omitempty"`
	MindWandering     bool    `json:"mind_wandering"`
	VelocityFlag      bool    `json:"velocity_flag"`
	BlinkRateFlag     bool    `json:"blink_rate_flag"`
	BlinkDurationFlag bool    `json:"blink_duration_flag"`
	Metrics           Metrics `json:"metrics"`
}

// TimePeriod formats the slide span for tabular output.
func (r Record) TimePeriod() string {
	if r.Open {
		return fmt.Sprintf("%.3f-", r.PeriodStart)
	}
	return fmt.Sprintf("%.3f-%.3f", r.PeriodStart, r.PeriodEnd)
}

// Contains reports whether t falls within the slide period, bounds included.
func (r Record) Contains(t float64) bool {
	return t >= r.PeriodStart && (r.Open || t <= r.PeriodEnd)
}

// Classifier applies the thresholds of one session.
type Classifier struct {
	cfg               Config
	velocityThreshold float64
	wordCounts        []int
}

// NewClassifier creates a classifier for a session whose calibrated fixation
// velocity threshold is velocityThreshold.
func NewClassifier(cfg Config, velocityThreshold float64) *Classifier {
	return &Classifier{cfg: cfg, velocityThreshold: velocityThreshold}
}

// WithWordCounts sets the number of words on each slide, enabling the
// reading-rate metric.
func (c *Classifier) WithWordCounts(counts []int) *Classifier {
	c.wordCounts = counts
	return c
}

// Classify judges one slide. blinks and segments must already be restricted
// to the slide. A slide with no blinks or no fixations reports the
// corresponding flags as false.
func (c *Classifier) Classify(w slides.Window, blinks []logic.Blink, segments []logic.FixationSegment) Record {
	r := Record{
		Slide:       w.Index,
		PeriodStart: w.Start,
		PeriodEnd:   w.End,
		Open:        w.Open,
	}
	m := &r.Metrics

	m.BlinkCount = len(blinks)
	if len(blinks) > 0 {
		var total float64
		for _, b := range blinks {
			total += b.Duration
		}
		m.MeanBlinkDuration = total / float64(len(blinks))
		if span := w.Duration(); span > 0 {
			m.BlinkRate = float64(len(blinks)) / span
		}
		r.BlinkRateFlag = m.BlinkRate > c.cfg.BlinkRateThreshold
		r.BlinkDurationFlag = m.MeanBlinkDuration < c.cfg.DurationLow || m.MeanBlinkDuration > c.cfg.DurationHigh
	}

	m.FixationCount = len(segments)
	if len(segments) > 0 {
		limit := c.cfg.ErraticVelocityFactor * c.velocityThreshold
		for _, s := range segments {
			if s.MeanVelocity > limit {
				m.ErraticCount++
			}
		}
		m.ErraticRatio = float64(m.ErraticCount) / float64(len(segments))
		r.VelocityFlag = m.ErraticRatio > c.cfg.ErraticRatioThreshold
	}

	if w.Index < len(c.wordCounts) && w.Duration() > 0 {
		wps := float64(c.wordCounts[w.Index]) / w.Duration()
		m.WordsPerSecond = &wps
	}

	r.MindWandering = r.VelocityFlag || r.BlinkRateFlag || r.BlinkDurationFlag
	return r
}

// Match pairs a subject self-report with the computed verdict.
type Match struct {
	ReportTime  float64 `json:"report_time"`
	Matched     bool    `json:"matched"`
	Slide       int     `json:"slide"`
	PeriodStart float64 `json:"period_start"`
	PeriodEnd   float64 `json:"period_end"`
}

// CrossCheck matches each self-reported lapse against the slides flagged as
// mind-wandering. A report inside several flagged periods yields one match
// per period; a report inside none yields an unmatched row.
func CrossCheck(reports []float64, records []Record) []Match {
	var out []Match
	for _, t := range reports {
		matched := false
		for _, r := range records {
			if !r.MindWandering || !r.Contains(t) {
				continue
			}
			matched = true
			out = append(out, Match{
				ReportTime:  t,
				Matched:     true,
				Slide:       r.Slide,
				PeriodStart: r.PeriodStart,
				PeriodEnd:   r.PeriodEnd,
			})
		}
		if !matched {
			out = append(out, Match{ReportTime: t, Slide: -1})
		}
	}
	return out
}

// Summary counts flagged slides.
func Summary(records []Record) (flagged, total int) {
	for _, r := range records {
		if r.MindWandering {
			flagged++
		}
	}
	return flagged, len(records)
}
