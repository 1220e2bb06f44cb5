// Package geometry holds the per-frame eye geometry produced by the landmark
// and pupil collaborators, and the pure functions derived from it: the eye
// aspect ratio and the gaze offset vector.
package geometry

import (
	"errors"
	"fmt"
	"math"
)

// Eye contour landmark indices, in the fixed anatomical order the landmark
// collaborator emits them.
const (
	OuterCorner = 0
	UpperOuter  = 1
	UpperInner  = 2
	InnerCorner = 3
	LowerInner  = 4
	LowerOuter  = 5
	NumPoints   = 6
)

// DefaultFrameMargin is the padding in pixels added around the landmark
// bounding box when the eye region is cropped for pupil detection.
const DefaultFrameMargin = 10

var (
	// ErrInvalidGeometry is an input contract violation: wrong point count or
	// a missing/non-finite point. The frame is skipped.
	ErrInvalidGeometry = errors.New("invalid eye geometry")

	// ErrDegenerateGeometry means the outer and inner corners coincide, so
	// the aspect ratio is undefined. Treated as a detection gap.
	ErrDegenerateGeometry = errors.New("degenerate eye geometry")

	// ErrNoPupil means pupil detection failed for the eye in this frame.
	ErrNoPupil = errors.New("pupil not found")

	// ErrNoFace means the landmark collaborator reported no face for the frame.
	ErrNoFace = errors.New("no face detected")
)

// IsDetectionGap reports whether err is an expected per-frame gap rather
// than a contract violation.
func IsDetectionGap(err error) bool {
	return errors.Is(err, ErrNoFace) || errors.Is(err, ErrNoPupil) || errors.Is(err, ErrDegenerateGeometry)
}

// Point is a 2-D image coordinate.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Sub returns p - q.
func (p Point) Sub(q Point) Vec2 {
	return Vec2{X: p.X - q.X, Y: p.Y - q.Y}
}

func (p Point) finite() bool {
	return !math.IsNaN(p.X) && !math.IsNaN(p.Y) && !math.IsInf(p.X, 0) && !math.IsInf(p.Y, 0)
}

// Vec2 is a 2-D offset.
type Vec2 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Norm returns the Euclidean length of v.
func (v Vec2) Norm() float64 {
	return math.Hypot(v.X, v.Y)
}

// Size is the width and height of a cropped eye frame in pixels.
type Size struct {
	W float64 `json:"w"`
	H float64 `json:"h"`
}

// Center returns the center of a frame of this size in frame coordinates.
func (s Size) Center() Point {
	return Point{X: s.W / 2, Y: s.H / 2}
}

// Eye is the geometry of one eye in one frame.
type Eye struct {
	// Points are the six contour landmarks in anatomical order.
	Points []Point
	// Pupil is the pupil centroid relative to the eye frame origin; nil
	// when the pupil collaborator did not find one.
	Pupil *Point
	// Frame is the size of the cropped eye frame the pupil was searched in.
	Frame Size
}

// Validate checks the six-point contract.
func (e Eye) Validate() error {
	if len(e.Points) != NumPoints {
		return fmt.Errorf("%w: expected %d points, got %d", ErrInvalidGeometry, NumPoints, len(e.Points))
	}
	for i, p := range e.Points {
		if !p.finite() {
			return fmt.Errorf("%w: point %d is not finite", ErrInvalidGeometry, i)
		}
	}
	return nil
}

func dist(a, b Point) float64 {
	return math.Hypot(a.X-b.X, a.Y-b.Y)
}

// EAR returns the eye aspect ratio
//
//	(|p1-p5| + |p2-p4|) / (2 |p0-p3|)
//
// It never returns NaN or Inf: a zero corner distance yields ErrDegenerateGeometry.
func EAR(e Eye) (float64, error) {
	if err := e.Validate(); err != nil {
		return 0, err
	}
	p := e.Points
	width := dist(p[OuterCorner], p[InnerCorner])
	if width == 0 {
		return 0, ErrDegenerateGeometry
	}
	a := dist(p[UpperOuter], p[LowerOuter])
	b := dist(p[UpperInner], p[LowerInner])
	return (a + b) / (2 * width), nil
}

// EyeFrame returns the origin and size of the eye crop: the landmark bounding
// box padded by margin on every side.
func EyeFrame(points []Point, margin float64) (Point, Size, error) {
	if len(points) != NumPoints {
		return Point{}, Size{}, fmt.Errorf("%w: expected %d points, got %d", ErrInvalidGeometry, NumPoints, len(points))
	}
	minX, minY := math.Inf(1), math.Inf(1)
	maxX, maxY := math.Inf(-1), math.Inf(-1)
	for _, p := range points {
		minX = math.Min(minX, p.X)
		minY = math.Min(minY, p.Y)
		maxX = math.Max(maxX, p.X)
		maxY = math.Max(maxY, p.Y)
	}
	origin := Point{X: minX - margin, Y: minY - margin}
	return origin, Size{W: maxX - minX + 2*margin, H: maxY - minY + 2*margin}, nil
}

// GazeVector returns the pupil offset from the center of the eye frame.
func GazeVector(e Eye) (Vec2, error) {
	if e.Pupil == nil {
		return Vec2{}, ErrNoPupil
	}
	return e.Pupil.Sub(e.Frame.Center()), nil
}

// Face is the output of the landmark collaborator for one frame. A nil eye
// means no face was detected, which is distinct from zero coordinates.
type Face struct {
	Left  *Eye
	Right *Eye
}

// Detected reports whether both eyes are present.
func (f Face) Detected() bool {
	return f.Left != nil && f.Right != nil
}

// EARs returns the left and right aspect ratios.
func (f Face) EARs() (left, right float64, err error) {
	if !f.Detected() {
		return 0, 0, ErrNoFace
	}
	if left, err = EAR(*f.Left); err != nil {
		return 0, 0, fmt.Errorf("left eye: %w", err)
	}
	if right, err = EAR(*f.Right); err != nil {
		return 0, 0, fmt.Errorf("right eye: %w", err)
	}
	return left, right, nil
}

// Gaze returns both gaze vectors, or nil for both when either eye has no
// pupil. A gap propagates as a gap, never as an interpolated value.
func (f Face) Gaze() (left, right *Vec2) {
	if !f.Detected() {
		return nil, nil
	}
	l, err := GazeVector(*f.Left)
	if err != nil {
		return nil, nil
	}
	r, err := GazeVector(*f.Right)
	if err != nil {
		return nil, nil
	}
	return &l, &r
}
