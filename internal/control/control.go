// Package control models the operator control signals: slide transitions,
// calibration markers and subject self-reports, each stamped with the session
// timestamp in seconds.
package control

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"sync/atomic"
)

// Action is a recognized control action.
type Action string

const (
	SlideTransition  Action = "slide_transition"
	StartCalibrating Action = "start_calibrating"
	EndCalibrating   Action = "end_calibrating"
	MindWandering    Action = "mind_wandering"
)

var (
	// ErrUnknownAction is returned for an action name that is not recognized.
	ErrUnknownAction = errors.New("unknown control action")

	// ErrMalformedLog is returned when a control log row cannot be parsed.
	ErrMalformedLog = errors.New("malformed control log")
)

// ParseAction validates an action name.
func ParseAction(s string) (Action, error) {
	switch a := Action(strings.TrimSpace(s)); a {
	case SlideTransition, StartCalibrating, EndCalibrating, MindWandering:
		return a, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownAction, s)
	}
}

// Event is one control signal.
type Event struct {
	Action Action  `json:"action"`
	Time   float64 `json:"time"`
	// Target optionally labels a calibration marker ("ear" or "reading").
	Target string `json:"target,omitempty"`
}

// ReadCSV parses a control log with header "action,time[,target]".
func ReadCSV(r io.Reader) ([]Event, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err == io.EOF {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	cols := map[string]int{}
	for i, h := range header {
		cols[strings.ToLower(strings.TrimSpace(h))] = i
	}
	actionCol, ok1 := cols["action"]
	timeCol, ok2 := cols["time"]
	if !ok1 || !ok2 {
		return nil, fmt.Errorf("%w: header must contain action and time, got %v", ErrMalformedLog, header)
	}
	targetCol, hasTarget := cols["target"]

	var events []Event
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		if len(rec) <= actionCol || len(rec) <= timeCol {
			return nil, fmt.Errorf("%w: line %d has %d fields", ErrMalformedLog, line, len(rec))
		}
		action, err := ParseAction(rec[actionCol])
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		t, err := strconv.ParseFloat(strings.TrimSpace(rec[timeCol]), 64)
		if err != nil || math.IsNaN(t) || math.IsInf(t, 0) || t < 0 {
			return nil, fmt.Errorf("%w: line %d: bad time %q", ErrMalformedLog, line, rec[timeCol])
		}
		ev := Event{Action: action, Time: t}
		if hasTarget && len(rec) > targetCol {
			ev.Target = strings.ToLower(strings.TrimSpace(rec[targetCol]))
		}
		events = append(events, ev)
	}
	return events, nil
}

// WriteCSV writes events in the format ReadCSV accepts.
func WriteCSV(w io.Writer, events []Event) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"action", "time", "target"}); err != nil {
		return err
	}
	for _, ev := range events {
		row := []string{string(ev.Action), strconv.FormatFloat(ev.Time, 'f', -1, 64), ev.Target}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// Transitions returns the times of the slide transitions in events, in the
// order they appear.
func Transitions(events []Event) []float64 {
	var out []float64
	for _, ev := range events {
		if ev.Action == SlideTransition {
			out = append(out, ev.Time)
		}
	}
	return out
}

// Clock holds the latest session timestamp received so that asynchronous
// producers (the GPIO clicker) can stamp their events on the same timeline.
// Safe for concurrent use.
type Clock struct {
	bits atomic.Uint64
}

// Set advances the clock. Earlier times are ignored.
func (c *Clock) Set(t float64) {
	for {
		old := c.bits.Load()
		if t <= math.Float64frombits(old) {
			return
		}
		if c.bits.CompareAndSwap(old, math.Float64bits(t)) {
			return
		}
	}
}

// Now returns the latest session time.
func (c *Clock) Now() float64 {
	return math.Float64frombits(c.bits.Load())
}
