package slides

import (
	"errors"
	"math"
	"testing"

	"github.com/sweeney/attention-monitor/internal/logic"
)

func TestSlideOf(t *testing.T) {
	transitions := []float64{5, 8}
	tests := []struct {
		t    float64
		want int
	}{
		{0, 0},
		{4.99, 0},
		{5, 1},
		{7.5, 1},
		{8, 2},
		{100, 2},
	}

	for _, tt := range tests {
		if got := SlideOf(transitions, tt.t); got != tt.want {
			t.Errorf("SlideOf(%v) = %d, want %d", tt.t, got, tt.want)
		}
	}
	if got := SlideOf(nil, 3); got != 0 {
		t.Errorf("no transitions should mean slide 0, got %d", got)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		in   []float64
		ok   bool
	}{
		{"empty", nil, true},
		{"increasing", []float64{1, 2, 3}, true},
		{"duplicate", []float64{1, 2, 2}, false},
		{"decreasing", []float64{3, 1}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.in)
			if tt.ok && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
			if !tt.ok && !errors.Is(err, ErrUnorderedTransitions) {
				t.Errorf("expected ErrUnorderedTransitions, got %v", err)
			}
		})
	}
}

func TestSplitStraddlingBlink(t *testing.T) {
	parts := Split([]float64{5, 8}, []logic.Blink{logic.NewBlink(4, 9)})
	if len(parts) != 3 {
		t.Fatalf("expected 3 pieces, got %d", len(parts))
	}

	want := []struct {
		start, end float64
		slide      int
	}{
		{4, 5, 0},
		{5, 8, 1},
		{8, 9, 2},
	}
	var total float64
	for i, w := range want {
		p := parts[i]
		if p.Event.Start != w.start || p.Event.End != w.end || p.Slide != w.slide {
			t.Errorf("piece %d = [%v, %v] slide %d, want [%v, %v] slide %d",
				i, p.Event.Start, p.Event.End, p.Slide, w.start, w.end, w.slide)
		}
		if p.Event.Duration != p.Event.End-p.Event.Start {
			t.Errorf("piece %d duration %v does not match its span", i, p.Event.Duration)
		}
		total += p.Event.Duration
	}
	if math.Abs(total-5) > 1e-9 {
		t.Errorf("piece durations sum to %v, want 5", total)
	}
}

func TestSplitContainedEvent(t *testing.T) {
	b := logic.NewBlink(5.5, 5.7)
	parts := Split([]float64{5, 8}, []logic.Blink{b})
	if len(parts) != 1 || parts[0].Slide != 1 || parts[0].Event != b {
		t.Errorf("expected whole blink on slide 1, got %+v", parts)
	}
}

func TestSplitEndingOnTransition(t *testing.T) {
	parts := Split([]float64{5}, []logic.Blink{logic.NewBlink(4.8, 5)})
	if len(parts) != 1 {
		t.Fatalf("expected a single piece, got %d", len(parts))
	}
	if parts[0].Slide != 0 || parts[0].Event.Start != 4.8 || parts[0].Event.End != 5 {
		t.Errorf("unexpected piece %+v", parts[0])
	}
}

func TestSplitGazeKeepsOffsets(t *testing.T) {
	g := logic.GazeSample{Start: 1, End: 3}
	parts := Split([]float64{2}, []logic.GazeSample{g})
	if len(parts) != 2 {
		t.Fatalf("expected 2 pieces, got %d", len(parts))
	}
	if parts[0].Event.End != 2 || parts[1].Event.Start != 2 || parts[1].Slide != 1 {
		t.Errorf("unexpected pieces %+v", parts)
	}
}

func TestWindows(t *testing.T) {
	w := Windows([]float64{5, 8}, 0, 12)
	if len(w) != 3 {
		t.Fatalf("expected 3 windows, got %d", len(w))
	}
	if w[1].Start != 5 || w[1].End != 8 || w[1].Duration() != 3 {
		t.Errorf("unexpected middle window %+v", w[1])
	}
	if w[2].Open || w[2].End != 12 {
		t.Errorf("last window should close at session end, got %+v", w[2])
	}

	open := Windows([]float64{5}, 0, 0)
	if !open[1].Open || open[1].Duration() != 0 {
		t.Errorf("last window should be open without a session end, got %+v", open[1])
	}
}

func TestGroup(t *testing.T) {
	parts := Split([]float64{5}, []logic.Blink{logic.NewBlink(1, 1.1), logic.NewBlink(6, 6.2), logic.NewBlink(7, 7.1)})
	groups := Group(parts)
	if len(groups[0]) != 1 || len(groups[1]) != 2 {
		t.Errorf("unexpected grouping %+v", groups)
	}
}
