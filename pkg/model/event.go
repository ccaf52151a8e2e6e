package model

import (
	"time"

	"github.com/google/uuid"
)

// Payload carries event-specific data.
type Payload map[string]any

// Clone returns a deep copy of nested maps and slices.
func (p Payload) Clone() Payload {
	if p == nil {
		return Payload{}
	}
	out := make(Payload, len(p))
	for k, v := range p {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch val := v.(type) {
	case Payload:
		return val.Clone()
	case map[string]any:
		return map[string]any(Payload(val).Clone())
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = cloneValue(item)
		}
		return out
	case []string:
		return append([]string(nil), val...)
	default:
		return v
	}
}

// Topic addresses a class of events.
type Topic struct {
	DeviceType DeviceType
	Name       EventName
}

// String renders the composite "{deviceType}:{eventName}" form.
func (t Topic) String() string {
	return string(t.DeviceType) + ":" + string(t.Name)
}

// Event is an immutable record of something a device or orchestrator did.
// Construct events with NewEvent; the payload is copied on the way in and
// on the way out.
type Event struct {
	id         string
	deviceType DeviceType
	deviceID   string
	name       EventName
	payload    Payload
	timestamp  time.Time
}

// NewEvent creates an event with a fresh UUID.
func NewEvent(deviceType DeviceType, deviceID string, name EventName, payload Payload, ts time.Time) Event {
	return Event{
		id:         uuid.NewString(),
		deviceType: deviceType,
		deviceID:   deviceID,
		name:       name,
		payload:    payload.Clone(),
		timestamp:  ts,
	}
}

// RestoreEvent rebuilds an event read back from an archive, keeping its ID.
func RestoreEvent(id string, deviceType DeviceType, deviceID string, name EventName, payload Payload, ts time.Time) Event {
	e := NewEvent(deviceType, deviceID, name, payload, ts)
	e.id = id
	return e
}

// ID returns the unique event identifier.
func (e Event) ID() string { return e.id }

// DeviceType returns the event source type.
func (e Event) DeviceType() DeviceType { return e.deviceType }

// DeviceID returns the registry key of the emitting device (may equal the type name).
func (e Event) DeviceID() string { return e.deviceID }

// Name returns the event name.
func (e Event) Name() EventName { return e.name }

// Timestamp returns when the event was created.
func (e Event) Timestamp() time.Time { return e.timestamp }

// Topic returns the (type, name) pair of the event.
func (e Event) Topic() Topic { return Topic{DeviceType: e.deviceType, Name: e.name} }

// Payload returns a copy of the event payload.
func (e Event) Payload() Payload { return e.payload.Clone() }

// Value returns a single payload field.
func (e Event) Value(key string) (any, bool) {
	v, ok := e.payload[key]
	return v, ok
}

// String returns a short human-readable form.
func (e Event) String() string {
	return e.Topic().String()
}

// Record is the serialisable form of an Event.
type Record struct {
	ID         string     `json:"id"`
	DeviceType DeviceType `json:"deviceType"`
	DeviceID   string     `json:"deviceId,omitempty"`
	Name       EventName  `json:"eventName"`
	Payload    Payload    `json:"payload,omitempty"`
	Timestamp  time.Time  `json:"timestamp"`
}

// Record returns the serialisable form of the event.
func (e Event) Record() Record {
	return Record{
		ID:         e.id,
		DeviceType: e.deviceType,
		DeviceID:   e.deviceID,
		Name:       e.name,
		Payload:    e.payload.Clone(),
		Timestamp:  e.timestamp,
	}
}

// Event rebuilds the immutable event from its record.
func (r Record) Event() Event {
	return RestoreEvent(r.ID, r.DeviceType, r.DeviceID, r.Name, r.Payload, r.Timestamp)
}
