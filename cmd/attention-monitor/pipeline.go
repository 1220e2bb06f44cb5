package main

import (
	"errors"
	"time"

	"github.com/sweeney/attention-monitor/internal/calibration"
	"github.com/sweeney/attention-monitor/internal/control"
	"github.com/sweeney/attention-monitor/internal/eventlog"
	"github.com/sweeney/attention-monitor/internal/frames"
	"github.com/sweeney/attention-monitor/internal/log"
	"github.com/sweeney/attention-monitor/internal/logic"
	"github.com/sweeney/attention-monitor/internal/mqtt"
	"github.com/sweeney/attention-monitor/internal/session"
	"github.com/sweeney/attention-monitor/internal/status"
)

// pipeline feeds ordered log entries to a session and fans its output out to
// the publisher and the status tracker. Both are optional.
type pipeline struct {
	sess    *session.Session
	pub     mqtt.Publisher
	tracker *status.Tracker
	now     func() time.Time

	stats logic.WindowStats
}

func newPipeline(sess *session.Session, pub mqtt.Publisher, tracker *status.Tracker) *pipeline {
	return &pipeline{
		sess:    sess,
		pub:     pub,
		tracker: tracker,
		now:     time.Now,
	}
}

// apply processes entries in order. It returns an error only when the
// session cannot continue.
func (p *pipeline) apply(entries []eventlog.Entry) error {
	defer p.update()
	for _, e := range entries {
		var err error
		switch e.Kind {
		case eventlog.KindControl:
			err = p.control(e.Control)
		case eventlog.KindFrame:
			err = p.frame(e.Frame)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func (p *pipeline) control(ev control.Event) error {
	err := p.sess.HandleControl(ev)
	switch {
	case errors.Is(err, session.ErrFinished), errors.Is(err, session.ErrFailed):
		return err
	case err != nil:
		log.Warn("pipeline: control signal rejected", "action", ev.Action, "t", ev.Time, "error", err)
		return nil
	}
	if ev.Action == control.SlideTransition && p.sess.Phase() == session.PhaseTracking {
		p.closeSlide(ev.Time)
	}
	return nil
}

// closeSlide publishes the verdict for the slide that ended at t. It is
// provisional: a blink still open at t is not part of it.
func (p *pipeline) closeSlide(t float64) {
	records := p.sess.Report(t).Records
	if len(records) < 2 {
		return
	}
	closed := records[:len(records)-1]
	rec := closed[len(closed)-1]
	p.publish(mqtt.Event{Type: mqtt.EventSlide, Record: &rec})
	if p.tracker != nil {
		p.tracker.SetRecords(closed)
	}
}

func (p *pipeline) frame(f frames.Frame) error {
	out, err := p.sess.HandleFrame(f)
	if err != nil {
		return err
	}
	p.stats = out.Stats

	if out.Calibrated != nil {
		p.publish(mqtt.Event{Type: mqtt.EventCalibrated, Thresholds: out.Calibrated})
	}
	for i := range out.Blinks {
		b := out.Blinks[i]
		stats := out.Stats
		p.publish(mqtt.Event{Type: mqtt.EventBlink, Blink: &b, Stats: &stats})
	}
	for i := range out.Gaze {
		g := out.Gaze[i]
		p.publish(mqtt.Event{Type: mqtt.EventGaze, Gaze: &g})
	}
	return nil
}

// finish ends the session and publishes the final per-slide records.
func (p *pipeline) finish(end float64) (session.Report, error) {
	r, err := p.sess.Finish(end)
	p.update()
	if err != nil {
		return r, err
	}
	for i := range r.Records {
		rec := r.Records[i]
		p.publish(mqtt.Event{Type: mqtt.EventSlide, Record: &rec})
	}
	if p.tracker != nil {
		p.tracker.SetRecords(r.Records)
	}
	return r, nil
}

func (p *pipeline) publish(ev mqtt.Event) {
	if p.pub == nil {
		return
	}
	ev.Timestamp = p.now()
	ev.SessionID = p.sess.ID()
	if err := p.pub.Publish(ev); err != nil {
		// Don't stop the session on publish failure
		log.Warn("pipeline: publish failed", "event", ev.Type, "error", err)
	}
}

func (p *pipeline) thresholds() *calibration.Thresholds {
	switch p.sess.Phase() {
	case session.PhaseTracking, session.PhaseFinished:
		th := p.sess.Thresholds()
		return &th
	}
	return nil
}

func (p *pipeline) update() {
	if p.tracker == nil {
		return
	}
	p.tracker.Update(status.Progress{
		Phase:       p.sess.Phase(),
		Thresholds:  p.thresholds(),
		Frames:      p.sess.Counts(),
		Blinks:      p.sess.BlinkCounts(),
		Window:      p.stats,
		SessionTime: p.sess.LastTime(),
		Slide:       p.sess.Slide(),
	})
}
