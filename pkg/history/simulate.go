package history

import (
	"context"
	"time"

	"github.com/wendylw/mock-driven-testing-sub001/pkg/model"
)

// SimulatedEvent is one element of a scripted sequence.
type SimulatedEvent struct {
	DeviceType model.DeviceType `yaml:"device_type" json:"deviceType"`
	DeviceID   string           `yaml:"device_id" json:"deviceId,omitempty"`
	Name       model.EventName  `yaml:"event" json:"event"`
	Payload    model.Payload    `yaml:"payload" json:"payload,omitempty"`

	// Delay is waited before the event is appended.
	Delay time.Duration `yaml:"delay" json:"delay,omitempty"`
}

// SimulateEvent appends an injected event marked simulated.
func (h *History) SimulateEvent(deviceType model.DeviceType, name model.EventName, payload model.Payload) model.Event {
	return h.simulate(SimulatedEvent{DeviceType: deviceType, Name: name, Payload: payload})
}

func (h *History) simulate(s SimulatedEvent) model.Event {
	payload := s.Payload.Clone()
	if payload == nil {
		payload = model.Payload{}
	}
	payload["simulated"] = true
	deviceID := s.DeviceID
	if deviceID == "" {
		deviceID, _ = payload["deviceId"].(string)
	}
	e := model.NewEvent(s.DeviceType, deviceID, s.Name, payload, h.sched.Now())
	h.Append(e)
	return e
}

// SimulateEventSequence appends each event after its delay. It stops at the
// first cancelled wait and returns the events appended so far.
func (h *History) SimulateEventSequence(ctx context.Context, seq []SimulatedEvent) ([]model.Event, error) {
	out := make([]model.Event, 0, len(seq))
	for _, s := range seq {
		if err := h.sched.Sleep(ctx, s.Delay); err != nil {
			return out, err
		}
		out = append(out, h.simulate(s))
	}
	return out, nil
}
