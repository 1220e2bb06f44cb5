package gpio

import (
	"errors"
	"testing"
)

func TestFakeButtonPressed(t *testing.T) {
	f := NewFakeButton([]bool{false, true, false})

	for i, want := range []bool{false, true, false, false} {
		got, err := f.Pressed()
		if err != nil {
			t.Fatalf("sample %d: unexpected error: %v", i, err)
		}
		if got != want {
			t.Errorf("sample %d: expected %v, got %v", i, want, got)
		}
	}
}

func TestFakeButtonNoSamples(t *testing.T) {
	f := NewFakeButton(nil)

	if _, err := f.Pressed(); err == nil {
		t.Error("expected error with no samples")
	}
}

func TestFakeButtonError(t *testing.T) {
	f := NewFakeButton([]bool{true})
	f.ReadError = errors.New("simulated error")

	_, err := f.Pressed()
	if err == nil || err.Error() != "simulated error" {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestFakeButtonCloseAndReset(t *testing.T) {
	f := NewFakeButton([]bool{true, false})

	if err := f.Close(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if !f.Closed {
		t.Error("should be closed after Close()")
	}

	f.Pressed()
	f.Reset()
	if f.Closed {
		t.Error("Reset should clear Closed")
	}
	if got, _ := f.Pressed(); !got {
		t.Error("after reset: expected first sample again")
	}
}
