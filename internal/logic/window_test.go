package logic

import "testing"

func TestBlinkWindow(t *testing.T) {
	blinks := []Blink{NewBlink(10, 10.2), NewBlink(20, 20.1), NewBlink(70, 70.3)}

	stats := BlinkWindow(blinks, 75, 60)
	if stats.Count != 2 {
		t.Fatalf("expected 2 blinks in window, got %d", stats.Count)
	}
	if want := 2 / (55.0 / 60); !approx(stats.RatePerMinute, want) {
		t.Errorf("rate = %.4f, want %.4f", stats.RatePerMinute, want)
	}
	if !approx(stats.MeanDuration, 0.2) {
		t.Errorf("mean duration = %.4f, want 0.2", stats.MeanDuration)
	}
}

func TestBlinkWindowBounds(t *testing.T) {
	tests := []struct {
		name  string
		start float64
		in    bool
	}{
		{"at lower bound excluded", 15, false},
		{"just inside lower bound", 15.01, true},
		{"at now included", 75, true},
		{"after now excluded", 75.5, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stats := BlinkWindow([]Blink{NewBlink(tt.start, tt.start+0.1)}, 75, 60)
			if got := stats.Count == 1; got != tt.in {
				t.Errorf("included = %v, want %v", got, tt.in)
			}
		})
	}
}

func TestBlinkWindowEmpty(t *testing.T) {
	if stats := BlinkWindow(nil, 75, 60); stats != (WindowStats{}) {
		t.Errorf("expected zero stats, got %+v", stats)
	}
}

func TestBlinkWindowZeroElapsed(t *testing.T) {
	stats := BlinkWindow([]Blink{NewBlink(75, 75.1)}, 75, 60)
	if stats.Count != 1 || stats.RatePerMinute != 0 {
		t.Errorf("expected count 1 with zero rate, got %+v", stats)
	}
}
