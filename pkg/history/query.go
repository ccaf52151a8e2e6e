package history

import (
	"time"

	"github.com/wendylw/mock-driven-testing-sub001/pkg/model"
)

// Filter selects retained events. Zero fields match everything.
type Filter struct {
	DeviceType model.DeviceType
	DeviceID   string
	Name       model.EventName
	Since      time.Time
	Until      time.Time
	Simulated  *bool

	// Limit keeps only the most recent N matches.
	Limit int
}

func (f Filter) matches(e model.Event) bool {
	if f.DeviceType != "" && e.DeviceType() != f.DeviceType {
		return false
	}
	if f.DeviceID != "" && e.DeviceID() != f.DeviceID {
		return false
	}
	if f.Name != "" && e.Name() != f.Name {
		return false
	}
	if !f.Since.IsZero() && e.Timestamp().Before(f.Since) {
		return false
	}
	if !f.Until.IsZero() && !e.Timestamp().Before(f.Until) {
		return false
	}
	if f.Simulated != nil && isSimulated(e) != *f.Simulated {
		return false
	}
	return true
}

func isSimulated(e model.Event) bool {
	v, _ := e.Value("simulated")
	b, _ := v.(bool)
	return b
}

// Query returns matching events in insertion order.
func (h *History) Query(f Filter) []model.Event {
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []model.Event
	for _, e := range h.events {
		if f.matches(e) {
			out = append(out, e)
		}
	}
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[len(out)-f.Limit:]
	}
	return out
}

// Events returns the retained events of a device type ("" for all), oldest
// first, limited to the most recent limit when limit > 0.
func (h *History) Events(deviceType model.DeviceType, limit int) []model.Event {
	return h.Query(Filter{DeviceType: deviceType, Limit: limit})
}

// Stats summarises the retained events.
type Stats struct {
	Total        int                      `json:"total"`
	Capacity     int                      `json:"capacity"`
	ByDeviceType map[model.DeviceType]int `json:"byDeviceType"`
	ByName       map[model.EventName]int  `json:"byName"`
	Recent       int                      `json:"recent"`
	Window       time.Duration            `json:"window"`
	Oldest       *time.Time               `json:"oldest,omitempty"`
	Newest       *time.Time               `json:"newest,omitempty"`
	Patterns     int                      `json:"patterns"`
}

// Stats returns counts by device type and name, and how many events fall in
// the recent window.
func (h *History) Stats() Stats {
	now := h.sched.Now()
	h.mu.Lock()
	defer h.mu.Unlock()

	st := Stats{
		Total:        len(h.events),
		Capacity:     h.capacity,
		ByDeviceType: make(map[model.DeviceType]int),
		ByName:       make(map[model.EventName]int),
		Window:       h.window,
		Patterns:     len(h.patterns),
	}
	cutoff := now.Add(-h.window)
	for _, e := range h.events {
		st.ByDeviceType[e.DeviceType()]++
		st.ByName[e.Name()]++
		if !e.Timestamp().Before(cutoff) {
			st.Recent++
		}
	}
	if n := len(h.events); n > 0 {
		oldest, newest := h.events[0].Timestamp(), h.events[n-1].Timestamp()
		st.Oldest, st.Newest = &oldest, &newest
	}
	return st
}
