package logic

import (
	"math"
	"testing"
)

const (
	testThreshold = 0.2
	testDebounce  = 0.05
	fps           = 30.0
)

func approx(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

// feed runs one sample per frame at 30fps. closed[i] describes frame i as
// (leftClosed, rightClosed).
func feed(d *BlinkDetector, frames [][2]bool) []Blink {
	var blinks []Blink
	for i, f := range frames {
		s := EARSample{Time: float64(i) / fps, Left: 0.3, Right: 0.3, Threshold: testThreshold}
		if f[0] {
			s.Left = 0.1
		}
		if f[1] {
			s.Right = 0.1
		}
		if b := d.Process(s); b != nil {
			blinks = append(blinks, *b)
		}
	}
	return blinks
}

// pattern builds frames from a string: 'c' both closed, 'o' both open,
// 'l' only the left eye open.
func pattern(p string) [][2]bool {
	out := make([][2]bool, len(p))
	for i, ch := range p {
		switch ch {
		case 'c':
			out[i] = [2]bool{true, true}
		case 'l':
			out[i] = [2]bool{false, true}
		}
	}
	return out
}

func TestNewBlinkDetector(t *testing.T) {
	d := NewBlinkDetector(testDebounce, ReopenBoth)
	if d == nil {
		t.Fatal("NewBlinkDetector returned nil")
	}
	if d.State() != StateOpen {
		t.Errorf("expected initial state OPEN, got %s", d.State())
	}
	if d.Counts() != (BlinkCounts{}) {
		t.Errorf("expected zero counts, got %+v", d.Counts())
	}
}

func TestSustainedClosureIsOneBlink(t *testing.T) {
	d := NewBlinkDetector(testDebounce, ReopenBoth)
	blinks := feed(d, pattern("ooocccccc"+"oooooo"))

	if len(blinks) != 1 {
		t.Fatalf("expected 1 blink, got %d", len(blinks))
	}
	b := blinks[0]
	if !approx(b.Start, 3/fps) || !approx(b.End, 9/fps) {
		t.Errorf("expected blink [%.4f, %.4f], got [%.4f, %.4f]", 3/fps, 9/fps, b.Start, b.End)
	}
	if !approx(b.Duration, b.End-b.Start) {
		t.Errorf("duration %.4f does not match span", b.Duration)
	}
}

func TestShortReopenIsMerged(t *testing.T) {
	d := NewBlinkDetector(testDebounce, ReopenBoth)
	// one open frame (33ms) inside the 50ms debounce window
	blinks := feed(d, pattern("ooocccoccc"+"oooooo"))

	if len(blinks) != 1 {
		t.Fatalf("expected 1 merged blink, got %d", len(blinks))
	}
	if !approx(blinks[0].Start, 3/fps) || !approx(blinks[0].End, 10/fps) {
		t.Errorf("unexpected span [%.4f, %.4f]", blinks[0].Start, blinks[0].End)
	}
	if got := d.Counts().Merged; got != 1 {
		t.Errorf("expected 1 merge, got %d", got)
	}
}

func TestLongReopenSplitsBlinks(t *testing.T) {
	d := NewBlinkDetector(testDebounce, ReopenBoth)
	blinks := feed(d, pattern("ooocccooocccooooo"))

	if len(blinks) != 2 {
		t.Fatalf("expected 2 blinks, got %d", len(blinks))
	}
	if !approx(blinks[0].End, 6/fps) {
		t.Errorf("first blink should end at first reopen, got %.4f", blinks[0].End)
	}
	if !approx(blinks[1].Start, 9/fps) {
		t.Errorf("second blink should start at 9/fps, got %.4f", blinks[1].Start)
	}
	if blinks[1].Start < blinks[0].End {
		t.Error("blinks overlap")
	}
}

func TestClosingFrameCanStartNextBlink(t *testing.T) {
	d := NewBlinkDetector(testDebounce, ReopenBoth)
	// reopen at frame 6, frame 7 still open, frame 8 closes past the window
	blinks := feed(d, pattern("ooocccooccoooo"))

	if len(blinks) != 2 {
		t.Fatalf("expected 2 blinks, got %d", len(blinks))
	}
	if !approx(blinks[1].Start, 8/fps) {
		t.Errorf("expected second blink to start at 8/fps, got %.4f", blinks[1].Start)
	}
}

func TestOneEyeClosedIsNotABlink(t *testing.T) {
	d := NewBlinkDetector(testDebounce, ReopenBoth)
	blinks := feed(d, pattern("oolllllllooo"))
	if len(blinks) != 0 {
		t.Errorf("expected no blinks for one-eyed closure, got %d", len(blinks))
	}
	if d.State() != StateOpen {
		t.Errorf("expected OPEN, got %s", d.State())
	}
}

func TestReopenPolicy(t *testing.T) {
	tests := []struct {
		name   string
		policy ReopenPolicy
		want   int
	}{
		{"both keeps blink open while one eye is closed", ReopenBoth, 0},
		{"either ends blink when one eye opens", ReopenEither, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := NewBlinkDetector(testDebounce, tt.policy)
			blinks := feed(d, pattern("ooocccllllll"))
			if len(blinks) != tt.want {
				t.Fatalf("expected %d blinks, got %d", tt.want, len(blinks))
			}
			if tt.want == 1 && !approx(blinks[0].End, 6/fps) {
				t.Errorf("expected end at 6/fps, got %.4f", blinks[0].End)
			}
		})
	}
}

func TestThresholdIsClosed(t *testing.T) {
	d := NewBlinkDetector(testDebounce, ReopenBoth)
	d.Process(EARSample{Time: 0, Left: testThreshold, Right: testThreshold, Threshold: testThreshold})
	if d.State() != StateClosed {
		t.Errorf("EAR equal to threshold should count as closed, got %s", d.State())
	}
}

func TestFinishDiscardsOpenBlink(t *testing.T) {
	tests := []struct {
		name    string
		frames  string
		discard bool
	}{
		{"closed at end", "oooccc", true},
		{"closing at end", "ooocccoo", true},
		{"open at end", "ooo", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := NewBlinkDetector(testDebounce, ReopenBoth)
			if blinks := feed(d, pattern(tt.frames)); len(blinks) != 0 {
				t.Fatalf("expected no completed blinks, got %d", len(blinks))
			}
			if got := d.Finish(); got != tt.discard {
				t.Errorf("Finish() = %v, want %v", got, tt.discard)
			}
			if d.State() != StateOpen {
				t.Errorf("expected OPEN after Finish, got %s", d.State())
			}
		})
	}
}

func TestReopenPolicyValid(t *testing.T) {
	if !ReopenBoth.Valid() || !ReopenEither.Valid() {
		t.Error("known policies should be valid")
	}
	if ReopenPolicy("any").Valid() {
		t.Error("unknown policy should be invalid")
	}
}
