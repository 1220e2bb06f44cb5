package logic

import "github.com/sweeney/attention-monitor/internal/geometry"

// GazeRecorder logs gaze vectors only when they change. Each emitted sample
// carries an explicit end time: the time the next different vector (or a
// gap) was observed.
type GazeRecorder struct {
	open bool
	cur  GazeSample
}

// NewGazeRecorder creates an empty recorder.
func NewGazeRecorder() *GazeRecorder {
	return &GazeRecorder{}
}

// Observe feeds the gaze vectors of one frame. left and right are nil when
// the pupil was not found; that closes the current point and opens a gap.
// It returns the point closed by this observation, if any.
func (r *GazeRecorder) Observe(t float64, left, right *geometry.Vec2, leftFrame, rightFrame geometry.Size) *GazeSample {
	defined := left != nil && right != nil
	if !defined {
		left, right = nil, nil
	}

	if r.open && defined && *r.cur.Left == *left && *r.cur.Right == *right {
		return nil
	}
	if !r.open && !defined {
		return nil
	}

	var closed *GazeSample
	if r.open {
		s := r.cur
		s.End = t
		closed = &s
	}

	r.open = defined
	if defined {
		l, rr := *left, *right
		r.cur = GazeSample{
			Start:      t,
			Left:       &l,
			Right:      &rr,
			LeftFrame:  leftFrame,
			RightFrame: rightFrame,
		}
	}
	return closed
}

// Discard drops the point still open at stream end; its end is unknown.
// It reports whether one was open.
func (r *GazeRecorder) Discard() bool {
	open := r.open
	r.open = false
	r.cur = GazeSample{}
	return open
}
