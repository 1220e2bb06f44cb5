package mqtt

import "github.com/sweeney/attention-monitor/internal/log"

// priority decides what a full replay buffer gives up first.
type priority int

const (
	// priorityLow: gaze points and heartbeats, superseded by the next one.
	priorityLow priority = iota
	// priorityNormal: blink intervals.
	priorityNormal
	// priorityKeep: per-slide records, calibration results and lifecycle
	// events. Never evicted.
	priorityKeep
)

// eventPriority ranks pipeline events.
func eventPriority(t EventType) priority {
	switch t {
	case EventGaze:
		return priorityLow
	case EventBlink:
		return priorityNormal
	default:
		return priorityKeep
	}
}

// systemPriority ranks system events. Heartbeats repeat; the rest mark
// session boundaries.
func systemPriority(event string) priority {
	if event == "HEARTBEAT" {
		return priorityLow
	}
	return priorityKeep
}

// bufferedMsg stores a serialized MQTT message for replay after reconnection.
type bufferedMsg struct {
	topic    string
	payload  []byte
	qos      byte
	retained bool
	priority priority
}

// replayBuffer holds messages in publish order while disconnected. When
// full it evicts the oldest message of the lowest priority present, so gaze
// points go before blinks. Messages of priorityKeep are never evicted: the
// buffer grows past its capacity rather than lose a slide verdict.
// Not safe for concurrent use; the caller synchronizes.
type replayBuffer struct {
	msgs     []bufferedMsg
	capacity int
	dropped  int // evictions since last drain
}

func newReplayBuffer(capacity int) *replayBuffer {
	return &replayBuffer{capacity: capacity}
}

func (r *replayBuffer) push(msg bufferedMsg) {
	if len(r.msgs) >= r.capacity && !r.evict(msg.priority) && msg.priority != priorityKeep {
		// everything buffered outranks msg
		r.drop("incoming", msg.priority)
		return
	}
	r.msgs = append(r.msgs, msg)
}

// evict removes the oldest message of the lowest priority present, provided
// it is at most limit. It reports whether one was removed.
func (r *replayBuffer) evict(limit priority) bool {
	victim := -1
	for i, m := range r.msgs {
		if m.priority > limit || m.priority == priorityKeep {
			continue
		}
		if victim < 0 || m.priority < r.msgs[victim].priority {
			victim = i
		}
	}
	if victim < 0 {
		return false
	}
	r.drop("oldest", r.msgs[victim].priority)
	r.msgs = append(r.msgs[:victim], r.msgs[victim+1:]...)
	return true
}

func (r *replayBuffer) drop(which string, p priority) {
	if r.dropped == 0 {
		log.Warn("mqtt: replay buffer full, dropping messages", "capacity", r.capacity, "first_dropped", which, "priority", int(p))
	}
	r.dropped++
}

// drainAll returns the buffered messages in publish order and empties the
// buffer.
func (r *replayBuffer) drainAll() []bufferedMsg {
	if len(r.msgs) == 0 {
		return nil
	}
	out := r.msgs
	if r.dropped > 0 {
		log.Info("mqtt: replay buffer dropped messages while offline", "count", r.dropped)
	}
	r.msgs = nil
	r.dropped = 0
	return out
}

func (r *replayBuffer) len() int {
	return len(r.msgs)
}
