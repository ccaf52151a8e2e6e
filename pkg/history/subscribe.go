package history

import (
	"slices"
	"sync"

	"github.com/wendylw/mock-driven-testing-sub001/pkg/model"
)

// Callback receives published events.
type Callback func(model.Event)

type subscription struct {
	id         uint64
	deviceType model.DeviceType
	topic      *model.Topic
	cb         Callback
}

func (s *subscription) matches(e model.Event) bool {
	switch {
	case s.topic != nil:
		return e.Topic() == *s.topic
	case s.deviceType != "":
		return e.DeviceType() == s.deviceType
	}
	return true
}

// Subscribe delivers every event from the given device type. The returned
// function unsubscribes and may be called more than once.
func (h *History) Subscribe(deviceType model.DeviceType, cb Callback) func() {
	return h.add(&subscription{deviceType: deviceType, cb: cb})
}

// SubscribeTopic delivers events with exactly the given (type, name) pair.
func (h *History) SubscribeTopic(topic model.Topic, cb Callback) func() {
	return h.add(&subscription{topic: &topic, cb: cb})
}

// SubscribeAll delivers every event.
func (h *History) SubscribeAll(cb Callback) func() {
	return h.add(&subscription{cb: cb})
}

func (h *History) add(s *subscription) func() {
	h.subMu.Lock()
	s.id = h.nextSub
	h.nextSub++
	h.subs = append(h.subs, s)
	h.subMu.Unlock()
	return h.remover(func() {
		h.subs = slices.DeleteFunc(h.subs, func(x *subscription) bool { return x.id == s.id })
	})
}

type matchSubscription struct {
	id uint64
	cb func(Match)
}

// OnPatternMatched registers a listener for pattern matches.
func (h *History) OnPatternMatched(cb func(Match)) func() {
	h.subMu.Lock()
	id := h.nextSub
	h.nextSub++
	h.matchSubs = append(h.matchSubs, matchSubscription{id: id, cb: cb})
	h.subMu.Unlock()
	return h.remover(func() {
		h.matchSubs = slices.DeleteFunc(h.matchSubs, func(x matchSubscription) bool { return x.id == id })
	})
}

func (h *History) remover(del func()) func() {
	var once sync.Once
	return func() {
		once.Do(func() {
			h.subMu.Lock()
			del()
			h.subMu.Unlock()
		})
	}
}

// dispatch calls matching subscribers in registration order, outside any
// history lock.
func (h *History) dispatch(e model.Event) {
	h.subMu.RLock()
	var targets []Callback
	for _, s := range h.subs {
		if s.matches(e) {
			targets = append(targets, s.cb)
		}
	}
	h.subMu.RUnlock()

	for _, cb := range targets {
		h.safeCall(e, cb)
	}
}

func (h *History) safeCall(e model.Event, cb Callback) {
	defer func() {
		if r := recover(); r != nil {
			h.warnLog("subscriber panicked", "topic", e.Topic().String(), "event", e.ID(), "panic", r)
		}
	}()
	cb(e)
}
