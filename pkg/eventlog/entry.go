package eventlog

import (
	"time"

	"github.com/wendylw/mock-driven-testing-sub001/pkg/model"
)

// Entry is the archived form of an event.
// CBOR encoding uses integer keys for compactness.
type Entry struct {
	// Timestamp when the event occurred (nanosecond precision).
	Timestamp time.Time `cbor:"1,keyasint"`

	// ID is the event's unique identifier.
	ID string `cbor:"2,keyasint"`

	// DeviceType is the source type, including the orchestrator and flow
	// pseudo-sources.
	DeviceType model.DeviceType `cbor:"3,keyasint"`

	// DeviceID is the emitting device (or flow instance).
	DeviceID string `cbor:"4,keyasint,omitempty"`

	// Name is the event name.
	Name model.EventName `cbor:"5,keyasint"`

	// Payload is the event data.
	Payload map[string]any `cbor:"6,keyasint,omitempty"`

	// Simulated is set for events injected through the simulation API
	// rather than produced by a device.
	Simulated bool `cbor:"7,keyasint,omitempty"`
}

// FromEvent converts an event to its archived form.
func FromEvent(e model.Event) Entry {
	entry := Entry{
		Timestamp:  e.Timestamp(),
		ID:         e.ID(),
		DeviceType: e.DeviceType(),
		DeviceID:   e.DeviceID(),
		Name:       e.Name(),
		Payload:    e.Payload(),
	}
	if v, ok := e.Value("simulated"); ok {
		entry.Simulated, _ = v.(bool)
	}
	return entry
}

// Event restores the archived event.
func (e Entry) Event() model.Event {
	return model.RestoreEvent(e.ID, e.DeviceType, e.DeviceID, e.Name, e.Payload, e.Timestamp)
}

// Topic returns the entry's (device type, name) pair.
func (e Entry) Topic() model.Topic {
	return model.Topic{DeviceType: e.DeviceType, Name: e.Name}
}
