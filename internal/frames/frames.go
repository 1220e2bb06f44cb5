// Package frames decodes the per-frame landmark stream produced by the face
// and pupil collaborators.
package frames

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/sweeney/attention-monitor/internal/geometry"
)

// ErrMalformedFrame is returned for a frame record that cannot be decoded.
// The frame is skipped; the stream continues.
var ErrMalformedFrame = errors.New("malformed frame")

// Frame is one processed video frame.
type Frame struct {
	Index int
	// Time is the session timestamp: Index divided by the frame rate.
	Time float64
	Face geometry.Face
}

// Source yields frames in order. Next returns io.EOF after the last frame.
type Source interface {
	Next(ctx context.Context) (Frame, error)
}

type wireEye struct {
	Points []*[]float64 `json:"points"`
	Pupil  *[]float64   `json:"pupil"`
	Size   *[]float64   `json:"size,omitempty"`
}

type wireFrame struct {
	Frame int      `json:"frame"`
	Face  *bool    `json:"face,omitempty"`
	Left  *wireEye `json:"left,omitempty"`
	Right *wireEye `json:"right,omitempty"`
}

func pair(v []float64) (float64, float64, bool) {
	if len(v) != 2 {
		return 0, 0, false
	}
	return v[0], v[1], true
}

// eye converts the wire form. A null or short landmark is an absent point,
// never a zero coordinate, and fails with geometry.ErrInvalidGeometry. A null
// pupil is a missing pupil; a short one is invalid.
func (w *wireEye) eye() (*geometry.Eye, error) {
	if w == nil {
		return nil, nil
	}
	e := &geometry.Eye{Points: make([]geometry.Point, len(w.Points))}
	for i, p := range w.Points {
		if p == nil {
			return nil, fmt.Errorf("%w: point %d is absent", geometry.ErrInvalidGeometry, i)
		}
		x, y, ok := pair(*p)
		if !ok {
			return nil, fmt.Errorf("%w: point %d has %d coordinates", geometry.ErrInvalidGeometry, i, len(*p))
		}
		e.Points[i] = geometry.Point{X: x, Y: y}
	}
	if w.Pupil != nil {
		x, y, ok := pair(*w.Pupil)
		if !ok {
			return nil, fmt.Errorf("%w: pupil has %d coordinates", geometry.ErrInvalidGeometry, len(*w.Pupil))
		}
		e.Pupil = &geometry.Point{X: x, Y: y}
	}
	if w.Size != nil {
		width, height, ok := pair(*w.Size)
		if !ok {
			return nil, fmt.Errorf("%w: frame size has %d values", geometry.ErrInvalidGeometry, len(*w.Size))
		}
		e.Frame = geometry.Size{W: width, H: height}
	} else if _, size, err := geometry.EyeFrame(e.Points, geometry.DefaultFrameMargin); err == nil {
		e.Frame = size
	}
	return e, nil
}

func wire(e *geometry.Eye) *wireEye {
	if e == nil {
		return nil
	}
	w := &wireEye{Points: make([]*[]float64, len(e.Points))}
	for i, p := range e.Points {
		w.Points[i] = &[]float64{p.X, p.Y}
	}
	if e.Pupil != nil {
		w.Pupil = &[]float64{e.Pupil.X, e.Pupil.Y}
	}
	w.Size = &[]float64{e.Frame.W, e.Frame.H}
	return w
}

// Parse decodes one JSON frame record. Absent or short landmark
// coordinates fail with an error wrapping both ErrMalformedFrame and
// geometry.ErrInvalidGeometry.
func Parse(data []byte, fps float64) (Frame, error) {
	var w wireFrame
	if err := json.Unmarshal(data, &w); err != nil {
		return Frame{}, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	if w.Frame < 0 {
		return Frame{}, fmt.Errorf("%w: negative frame index %d", ErrMalformedFrame, w.Frame)
	}
	f := Frame{Index: w.Frame, Time: float64(w.Frame) / fps}
	if w.Face != nil && !*w.Face {
		return f, nil
	}
	left, err := w.Left.eye()
	if err != nil {
		return Frame{}, fmt.Errorf("%w: frame %d left eye: %w", ErrMalformedFrame, w.Frame, err)
	}
	right, err := w.Right.eye()
	if err != nil {
		return Frame{}, fmt.Errorf("%w: frame %d right eye: %w", ErrMalformedFrame, w.Frame, err)
	}
	f.Face = geometry.Face{Left: left, Right: right}
	return f, nil
}

// Encode produces the JSON record Parse accepts.
func Encode(f Frame) ([]byte, error) {
	detected := f.Face.Detected()
	w := wireFrame{Frame: f.Index, Face: &detected}
	if detected {
		w.Left = wire(f.Face.Left)
		w.Right = wire(f.Face.Right)
	}
	return json.Marshal(w)
}

// Decoder reads JSON-lines frame files.
type Decoder struct {
	sc   *bufio.Scanner
	fps  float64
	line int
}

// NewDecoder reads frames from r, one JSON object per line.
func NewDecoder(r io.Reader, fps float64) *Decoder {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	return &Decoder{sc: sc, fps: fps}
}

// Next returns the next frame. Blank lines are skipped. A malformed line
// returns an error wrapping ErrMalformedFrame and the decoder stays usable.
func (d *Decoder) Next(ctx context.Context) (Frame, error) {
	for {
		if err := ctx.Err(); err != nil {
			return Frame{}, err
		}
		if !d.sc.Scan() {
			if err := d.sc.Err(); err != nil {
				return Frame{}, err
			}
			return Frame{}, io.EOF
		}
		d.line++
		b := d.sc.Bytes()
		if len(b) == 0 {
			continue
		}
		f, err := Parse(b, d.fps)
		if err != nil {
			return Frame{}, fmt.Errorf("line %d: %w", d.line, err)
		}
		return f, nil
	}
}

// SliceSource replays a fixed list of frames. Used by tests and offline
// tooling.
type SliceSource struct {
	frames []Frame
	pos    int
}

// NewSliceSource creates a source over frames.
func NewSliceSource(frames []Frame) *SliceSource {
	return &SliceSource{frames: frames}
}

// Next returns the next frame or io.EOF.
func (s *SliceSource) Next(ctx context.Context) (Frame, error) {
	if err := ctx.Err(); err != nil {
		return Frame{}, err
	}
	if s.pos >= len(s.frames) {
		return Frame{}, io.EOF
	}
	f := s.frames[s.pos]
	s.pos++
	return f, nil
}

// Drain reads src to the end. Malformed frames are passed to skip, if set,
// and otherwise abort the read.
func Drain(ctx context.Context, src Source, skip func(error)) ([]Frame, error) {
	var out []Frame
	for {
		f, err := src.Next(ctx)
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if errors.Is(err, ErrMalformedFrame) && skip != nil {
			skip(err)
			continue
		}
		if err != nil {
			return out, err
		}
		out = append(out, f)
	}
}
