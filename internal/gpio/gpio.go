// Package gpio reads a presenter clicker or foot pedal wired to a GPIO line
// and turns its debounced presses into slide transitions.
// The real implementation uses the Linux GPIO character device.
// The fake implementation allows testing without hardware.
package gpio

import (
	"context"
	"time"

	"github.com/sweeney/attention-monitor/internal/control"
	"github.com/sweeney/attention-monitor/internal/log"
)

// Button reads the level of a momentary switch.
type Button interface {
	// Pressed returns the logical switch state.
	// The line is pulled up, so raw inactive (0) = pressed.
	Pressed() (bool, error)

	// Close releases GPIO resources.
	Close() error
}

// PollInterval is how often Watch samples the button.
const PollInterval = 10 * time.Millisecond

// Clicker turns polled button levels into debounced presses. A level must
// hold for the debounce window before it is accepted. The first observation
// is taken as the baseline and never reported as a press.
type Clicker struct {
	debounce  time.Duration
	baselined bool
	stable    bool
	candidate bool
	since     time.Time
}

// NewClicker creates a Clicker with the given debounce window.
func NewClicker(debounce time.Duration) *Clicker {
	return &Clicker{debounce: debounce}
}

// Observe feeds one sample and reports whether it completed a press.
func (c *Clicker) Observe(pressed bool, now time.Time) bool {
	if !c.baselined {
		c.baselined = true
		c.stable, c.candidate, c.since = pressed, pressed, now
		return false
	}

	if pressed != c.candidate {
		c.candidate = pressed
		c.since = now
	}
	if c.candidate == c.stable || now.Sub(c.since) < c.debounce {
		return false
	}
	c.stable = c.candidate
	return c.stable
}

// Sink receives the slide transitions. *eventlog.Log satisfies it.
type Sink interface {
	PushControl(ev control.Event)
}

// Watch samples b on every tick and pushes a slide transition, stamped with
// the session clock, for every debounced press. It returns when ctx is
// cancelled or ticks is closed. Read errors are logged and skipped.
func Watch(ctx context.Context, b Button, ticks <-chan time.Time, c *Clicker, clock *control.Clock, sink Sink) {
	for {
		select {
		case <-ctx.Done():
			return
		case now, ok := <-ticks:
			if !ok {
				return
			}
			pressed, err := b.Pressed()
			if err != nil {
				log.Warn("gpio: read failed", "error", err)
				continue
			}
			if !c.Observe(pressed, now) {
				continue
			}
			ev := control.Event{Action: control.SlideTransition, Time: clock.Now()}
			log.Info("gpio: slide transition", "t", ev.Time)
			sink.PushControl(ev)
		}
	}
}
