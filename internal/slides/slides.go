// Package slides assigns timestamped events to presentation slides, splitting
// events that straddle a slide transition.
package slides

import (
	"errors"
	"fmt"
	"sort"
)

// ErrUnorderedTransitions is returned when transition timestamps are not
// strictly increasing.
var ErrUnorderedTransitions = errors.New("slide transitions not strictly increasing")

// Spanned is an event with a time span that can be re-spanned into a piece.
type Spanned[E any] interface {
	Span() (start, end float64)
	WithSpan(start, end float64) E
}

// Tagged is an event, or a piece of one, assigned to a slide.
type Tagged[E any] struct {
	Event E   `json:"event"`
	Slide int `json:"slide"`
}

// Window is the span of one slide. The last slide is open-ended.
type Window struct {
	Index int     `json:"slide"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Open  bool    `json:"open"`
}

// Duration returns the slide length, or zero for an open slide.
func (w Window) Duration() float64 {
	if w.Open {
		return 0
	}
	return w.End - w.Start
}

// Validate checks that transitions are strictly increasing.
func Validate(transitions []float64) error {
	for i := 1; i < len(transitions); i++ {
		if transitions[i] <= transitions[i-1] {
			return fmt.Errorf("%w: %.3f after %.3f", ErrUnorderedTransitions, transitions[i], transitions[i-1])
		}
	}
	return nil
}

// SlideOf returns the slide shown at t: the number of transitions at or
// before t. Slide 0 precedes the first transition.
func SlideOf(transitions []float64, t float64) int {
	return sort.Search(len(transitions), func(i int) bool { return transitions[i] > t })
}

// Split tags each event with its slide. An event whose start and end fall on
// different slides is cut at every transition strictly inside it; each piece
// gets its own span and is tagged by the slide of its midpoint.
func Split[E Spanned[E]](transitions []float64, events []E) []Tagged[E] {
	out := make([]Tagged[E], 0, len(events))
	for _, ev := range events {
		start, end := ev.Span()
		first, last := SlideOf(transitions, start), SlideOf(transitions, end)
		if first == last {
			out = append(out, Tagged[E]{Event: ev, Slide: first})
			continue
		}

		cut := start
		for _, tr := range transitions {
			if tr <= start || tr >= end {
				continue
			}
			out = append(out, piece(transitions, ev, cut, tr))
			cut = tr
		}
		out = append(out, piece(transitions, ev, cut, end))
	}
	return out
}

func piece[E Spanned[E]](transitions []float64, ev E, start, end float64) Tagged[E] {
	return Tagged[E]{
		Event: ev.WithSpan(start, end),
		Slide: SlideOf(transitions, (start+end)/2),
	}
}

// Windows returns one window per slide. The last slide is open unless
// sessionEnd is positive, in which case it closes there.
func Windows(transitions []float64, sessionStart, sessionEnd float64) []Window {
	windows := make([]Window, 0, len(transitions)+1)
	start := sessionStart
	for i, tr := range transitions {
		windows = append(windows, Window{Index: i, Start: start, End: tr})
		start = tr
	}
	last := Window{Index: len(transitions), Start: start, End: sessionEnd}
	if sessionEnd <= start {
		last.Open = true
		last.End = start
	}
	return append(windows, last)
}

// Group collects tagged events by slide.
func Group[E any](tagged []Tagged[E]) map[int][]E {
	out := make(map[int][]E)
	for _, t := range tagged {
		out[t.Slide] = append(out[t.Slide], t.Event)
	}
	return out
}
