package mqtt

import (
	"encoding/json"
	"errors"
	"fmt"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/sweeney/attention-monitor/internal/control"
	"github.com/sweeney/attention-monitor/internal/frames"
	"github.com/sweeney/attention-monitor/internal/log"
)

// ErrMalformedControl is returned for control messages that cannot be decoded.
var ErrMalformedControl = errors.New("malformed control message")

// Sink receives the inbound streams. *eventlog.Log satisfies it.
type Sink interface {
	PushFrame(f frames.Frame)
	PushControl(ev control.Event)
}

// ParseControl decodes a control message:
//
//	{"action":"slide_transition","time":12.5}
func ParseControl(data []byte) (control.Event, error) {
	var ev control.Event
	if err := json.Unmarshal(data, &ev); err != nil {
		return control.Event{}, fmt.Errorf("%w: %v", ErrMalformedControl, err)
	}
	action, err := control.ParseAction(string(ev.Action))
	if err != nil {
		return control.Event{}, fmt.Errorf("%w: %v", ErrMalformedControl, err)
	}
	if ev.Time < 0 {
		return control.Event{}, fmt.Errorf("%w: negative time %g", ErrMalformedControl, ev.Time)
	}
	ev.Action = action
	return ev, nil
}

type subscriber struct {
	topics Topics
	sink   Sink
	fps    float64
}

func (s *subscriber) subscribe(c paho.Client) {
	filters := map[string]byte{s.topics.Frames: 0, s.topics.Controls: 1}
	token := c.SubscribeMultiple(filters, func(_ paho.Client, msg paho.Message) {
		s.handle(msg.Topic(), msg.Payload())
	})
	token.Wait()
	if err := token.Error(); err != nil {
		log.Error("mqtt: subscribe failed", "error", err)
		return
	}
	log.Info("mqtt: subscribed", "frames", s.topics.Frames, "controls", s.topics.Controls)
}

// handle routes one inbound message. Malformed messages are logged and
// dropped; they never stop the stream.
func (s *subscriber) handle(topic string, payload []byte) {
	switch topic {
	case s.topics.Frames:
		f, err := frames.Parse(payload, s.fps)
		if err != nil {
			log.Warn("mqtt: dropping frame", "error", err)
			return
		}
		s.sink.PushFrame(f)
	case s.topics.Controls:
		ev, err := ParseControl(payload)
		if err != nil {
			log.Warn("mqtt: dropping control", "error", err)
			return
		}
		s.sink.PushControl(ev)
	default:
		log.Debug("mqtt: unexpected topic", "topic", topic)
	}
}
