package logic

// BlinkDetector turns a stream of EAR samples into debounced blink intervals.
//
// A blink starts when both eyes are at or below threshold. Reopening moves
// the machine to CLOSING; if the eyes close again within the debounce
// window the reopen is discarded and the same blink continues, otherwise the
// blink is emitted ending at the first reopened frame.
type BlinkDetector struct {
	debounce float64
	policy   ReopenPolicy

	state      BlinkState
	blinkStart float64
	reopenAt   float64
	counts     BlinkCounts
}

// NewBlinkDetector creates a detector with the given debounce window in
// seconds and reopen policy.
func NewBlinkDetector(debounce float64, policy ReopenPolicy) *BlinkDetector {
	return &BlinkDetector{
		debounce: debounce,
		policy:   policy,
		state:    StateOpen,
	}
}

// Process takes the next sample and returns the blink it completes, if any.
// Frames without a usable EAR must not be passed in: a gap is not "open".
func (d *BlinkDetector) Process(s EARSample) *Blink {
	switch d.state {
	case StateClosed:
		if d.reopened(s) {
			d.state = StateClosing
			d.reopenAt = s.Time
		}
		return nil

	case StateClosing:
		if s.Time-d.reopenAt > d.debounce {
			b := NewBlink(d.blinkStart, d.reopenAt)
			d.counts.Blinks++
			d.state = StateOpen
			// The sample that closes the window may itself start the next blink
			d.startIfClosed(s)
			return &b
		}
		if !d.reopened(s) {
			d.state = StateClosed
			d.counts.Merged++
		}
		return nil

	default:
		d.startIfClosed(s)
		return nil
	}
}

func (d *BlinkDetector) startIfClosed(s EARSample) {
	if s.Left <= s.Threshold && s.Right <= s.Threshold {
		d.state = StateClosed
		d.blinkStart = s.Time
	}
}

func (d *BlinkDetector) reopened(s EARSample) bool {
	leftOpen := s.Left > s.Threshold
	rightOpen := s.Right > s.Threshold
	if d.policy == ReopenEither {
		return leftOpen || rightOpen
	}
	return leftOpen && rightOpen
}

// Finish ends the stream. A blink still in progress has no known end and is
// discarded; it reports whether one was.
func (d *BlinkDetector) Finish() bool {
	open := d.state != StateOpen
	if open {
		d.counts.Discarded++
	}
	d.state = StateOpen
	return open
}

// State returns the current machine state.
func (d *BlinkDetector) State() BlinkState {
	return d.state
}

// Counts returns a snapshot of the activity counters.
func (d *BlinkDetector) Counts() BlinkCounts {
	return d.counts
}
