package eventlog

import (
	"context"
	"log/slog"

	"github.com/wendylw/mock-driven-testing-sub001/pkg/model"
)

// Recorder receives every event accepted into history.
// Pass nil or NoopRecorder to disable archiving.
type Recorder interface {
	// Record stores an event. Implementations must be thread-safe and
	// should not block.
	Record(e model.Event)
}

// NoopRecorder discards all events.
type NoopRecorder struct{}

// Record discards the event.
func (NoopRecorder) Record(model.Event) {}

// SlogRecorder writes events to an slog.Logger at Debug level.
type SlogRecorder struct {
	logger *slog.Logger
}

// NewSlogRecorder creates a recorder that writes to the given logger.
func NewSlogRecorder(logger *slog.Logger) *SlogRecorder {
	return &SlogRecorder{logger: logger}
}

// Record logs the event.
func (r *SlogRecorder) Record(e model.Event) {
	attrs := []slog.Attr{
		slog.String("event_id", e.ID()),
		slog.String("device_type", string(e.DeviceType())),
		slog.String("name", string(e.Name())),
	}
	if e.DeviceID() != "" {
		attrs = append(attrs, slog.String("device_id", e.DeviceID()))
	}
	if payload := e.Payload(); len(payload) > 0 {
		attrs = append(attrs, slog.Any("payload", map[string]any(payload)))
	}
	r.logger.LogAttrs(context.Background(), slog.LevelDebug, "event", attrs...)
}

// MultiRecorder sends events to several recorders.
type MultiRecorder struct {
	recorders []Recorder
}

// NewMultiRecorder creates a recorder that fans out to all non-nil
// recorders.
func NewMultiRecorder(recorders ...Recorder) *MultiRecorder {
	m := &MultiRecorder{}
	for _, r := range recorders {
		if r != nil {
			m.recorders = append(m.recorders, r)
		}
	}
	return m
}

// Record sends the event to every recorder.
func (m *MultiRecorder) Record(e model.Event) {
	for _, r := range m.recorders {
		r.Record(e)
	}
}

// Compile-time interface satisfaction checks.
var (
	_ Recorder = NoopRecorder{}
	_ Recorder = (*SlogRecorder)(nil)
	_ Recorder = (*MultiRecorder)(nil)
	_ Recorder = (*FileRecorder)(nil)
)
