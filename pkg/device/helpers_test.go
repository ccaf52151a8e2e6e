package device

import (
	"sync"

	"github.com/wendylw/mock-driven-testing-sub001/pkg/model"
)

// quickConfig has no delays, no background faults and no injected errors.
func quickConfig(t model.DeviceType) Config {
	cfg := DefaultConfig(t)
	cfg.MinResponseDelay = 0
	cfg.MaxResponseDelay = 0
	cfg.ErrorCheckInterval = 0
	cfg.ErrorRate = 0
	return cfg
}

type recorder struct {
	mu     sync.Mutex
	events []model.Event
}

func record(s Simulator) *recorder {
	r := &recorder{}
	s.OnEvent(func(e model.Event) {
		r.mu.Lock()
		r.events = append(r.events, e)
		r.mu.Unlock()
	})
	return r
}

func (r *recorder) names() []model.EventName {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]model.EventName, len(r.events))
	for i, e := range r.events {
		out[i] = e.Name()
	}
	return out
}

func (r *recorder) count(name model.EventName) int {
	n := 0
	for _, got := range r.names() {
		if got == name {
			n++
		}
	}
	return n
}

func (r *recorder) last(name model.EventName) (model.Event, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.events) - 1; i >= 0; i-- {
		if r.events[i].Name() == name {
			return r.events[i], true
		}
	}
	return model.Event{}, false
}
