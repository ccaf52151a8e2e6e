package history

import (
	"errors"
	"fmt"
	"time"

	"github.com/wendylw/mock-driven-testing-sub001/pkg/model"
)

// Pattern errors.
var (
	ErrEmptyPattern     = errors.New("pattern has no expectations")
	ErrDuplicatePattern = errors.New("pattern already defined")
	ErrPatternNotFound  = errors.New("pattern not found")
)

// Expectation is one position of a pattern.
type Expectation struct {
	DeviceType model.DeviceType `yaml:"device_type" json:"deviceType"`
	Name       model.EventName  `yaml:"event" json:"event"`
}

func (x Expectation) matches(e model.Event) bool {
	return e.DeviceType() == x.DeviceType && e.Name() == x.Name
}

func (x Expectation) String() string {
	return model.Topic{DeviceType: x.DeviceType, Name: x.Name}.String()
}

// Pattern is a named, ordered sequence of expectations.
type Pattern struct {
	Name     string        `yaml:"name" json:"name"`
	Sequence []Expectation `yaml:"sequence" json:"sequence"`
}

// Match is reported when the trailing events equal a pattern.
type Match struct {
	Pattern   string
	Events    []model.Event
	Timestamp time.Time
}

// DefinePattern registers a pattern. Names are unique.
func (h *History) DefinePattern(name string, sequence []Expectation) error {
	if len(sequence) == 0 {
		return fmt.Errorf("%w: %s", ErrEmptyPattern, name)
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, p := range h.patterns {
		if p.Name == name {
			return fmt.Errorf("%w: %s", ErrDuplicatePattern, name)
		}
	}
	h.patterns = append(h.patterns, &Pattern{Name: name, Sequence: append([]Expectation(nil), sequence...)})
	h.debugLog("pattern defined", "pattern", name, "length", len(sequence))
	return nil
}

// RemovePattern unregisters a pattern.
func (h *History) RemovePattern(name string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	for i, p := range h.patterns {
		if p.Name == name {
			h.patterns = append(h.patterns[:i], h.patterns[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("%w: %s", ErrPatternNotFound, name)
}

// Patterns returns copies of the registered patterns in definition order.
func (h *History) Patterns() []Pattern {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]Pattern, len(h.patterns))
	for i, p := range h.patterns {
		out[i] = Pattern{Name: p.Name, Sequence: append([]Expectation(nil), p.Sequence...)}
	}
	return out
}

// matchLocked checks every pattern against the trailing events. Caller
// holds mu.
func (h *History) matchLocked() []Match {
	var matches []Match
	n := len(h.events)
	for _, p := range h.patterns {
		k := len(p.Sequence)
		if k > n {
			continue
		}
		window := h.events[n-k:]
		ok := true
		for i, x := range p.Sequence {
			if !x.matches(window[i]) {
				ok = false
				break
			}
		}
		if ok {
			matches = append(matches, Match{
				Pattern:   p.Name,
				Events:    append([]model.Event(nil), window...),
				Timestamp: h.sched.Now(),
			})
		}
	}
	return matches
}

// publishMatch notifies listeners and subscribers. The notification is not
// retained.
func (h *History) publishMatch(m Match) {
	h.debugLog("pattern matched", "pattern", m.Pattern)
	if h.observer != nil {
		h.observer.PatternMatched(m.Pattern)
	}

	h.subMu.RLock()
	listeners := make([]func(Match), 0, len(h.matchSubs))
	for _, s := range h.matchSubs {
		listeners = append(listeners, s.cb)
	}
	h.subMu.RUnlock()
	for _, cb := range listeners {
		h.safeMatch(m, cb)
	}

	refs := make([]any, len(m.Events))
	for i, e := range m.Events {
		refs[i] = map[string]any{
			"id":         e.ID(),
			"deviceType": string(e.DeviceType()),
			"deviceId":   e.DeviceID(),
			"name":       string(e.Name()),
		}
	}
	note := model.NewEvent(model.Orchestrator, "", model.EventPatternMatched, model.Payload{
		"pattern":   m.Pattern,
		"events":    refs,
		"timestamp": m.Timestamp,
	}, m.Timestamp)
	h.recorder.Record(note)
	h.dispatch(note)
}

func (h *History) safeMatch(m Match, cb func(Match)) {
	defer func() {
		if r := recover(); r != nil {
			h.warnLog("pattern listener panicked", "pattern", m.Pattern, "panic", r)
		}
	}()
	cb(m)
}
