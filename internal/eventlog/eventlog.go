// Package eventlog merges concurrently produced frames and control signals
// into one stream ordered by session timestamp.
package eventlog

import (
	"container/heap"
	"sync"

	"github.com/sweeney/attention-monitor/internal/control"
	"github.com/sweeney/attention-monitor/internal/frames"
)

// Kind orders entries that share a timestamp: controls before frames, so a
// slide transition or calibration marker at t applies to the frame at t.
type Kind int

const (
	KindControl Kind = iota
	KindFrame
)

// Entry is one item of the log. Exactly one of Frame and Control is set
// according to Kind.
type Entry struct {
	Time    float64
	Kind    Kind
	Frame   frames.Frame
	Control control.Event
	seq     uint64
}

type entryHeap []Entry

func (h entryHeap) Len() int { return len(h) }
func (h entryHeap) Less(i, j int) bool {
	if h[i].Time != h[j].Time {
		return h[i].Time < h[j].Time
	}
	if h[i].Kind != h[j].Kind {
		return h[i].Kind < h[j].Kind
	}
	return h[i].seq < h[j].seq
}
func (h entryHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h *entryHeap) Push(x any)   { *h = append(*h, x.(Entry)) }
func (h *entryHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	*h = old[:n-1]
	return e
}

// Log is safe for concurrent producers and a single consumer.
//
// Entries become ready once they are older than the watermark: the latest
// frame time seen minus the reorder tolerance. Late entries that arrive
// behind an already released timestamp are still released, in order among
// themselves.
type Log struct {
	mu        sync.Mutex
	h         entryHeap
	seq       uint64
	latest    float64
	tolerance float64
	notify    chan struct{}
	clock     control.Clock
}

// New creates a log that holds entries back for tolerance seconds of frame
// time to absorb producer reordering.
func New(tolerance float64) *Log {
	return &Log{
		tolerance: tolerance,
		notify:    make(chan struct{}, 1),
	}
}

func (l *Log) push(e Entry) {
	l.mu.Lock()
	e.seq = l.seq
	l.seq++
	heap.Push(&l.h, e)
	if e.Kind == KindFrame && e.Time > l.latest {
		l.latest = e.Time
	}
	l.mu.Unlock()
	if e.Kind == KindFrame {
		l.clock.Set(e.Time)
	}

	select {
	case l.notify <- struct{}{}:
	default:
	}
}

// PushFrame appends a frame.
func (l *Log) PushFrame(f frames.Frame) {
	l.push(Entry{Time: f.Time, Kind: KindFrame, Frame: f})
}

// PushControl appends a control event.
func (l *Log) PushControl(ev control.Event) {
	l.push(Entry{Time: ev.Time, Kind: KindControl, Control: ev})
}

// Ready pops every entry at or below the watermark, in order.
func (l *Log) Ready() []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()

	watermark := l.latest - l.tolerance
	var out []Entry
	for len(l.h) > 0 && l.h[0].Time <= watermark {
		out = append(out, heap.Pop(&l.h).(Entry))
	}
	return out
}

// Flush pops every remaining entry, in order.
func (l *Log) Flush() []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]Entry, 0, len(l.h))
	for len(l.h) > 0 {
		out = append(out, heap.Pop(&l.h).(Entry))
	}
	return out
}

// Len returns the number of pending entries.
func (l *Log) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.h)
}

// Clock follows the newest frame pushed, not the newest frame released, so
// producers that stamp their own events (the slide clicker) stay on the
// timeline of the frames being received.
func (l *Log) Clock() *control.Clock {
	return &l.clock
}

// Notify returns a channel that receives after a push. Signals coalesce.
func (l *Log) Notify() <-chan struct{} {
	return l.notify
}
