package history

import (
	"log/slog"
	"sync"
	"time"

	"github.com/wendylw/mock-driven-testing-sub001/pkg/clock"
	"github.com/wendylw/mock-driven-testing-sub001/pkg/eventlog"
	"github.com/wendylw/mock-driven-testing-sub001/pkg/model"
)

// Defaults.
const (
	DefaultCapacity     = 1000
	DefaultRecentWindow = 5 * time.Minute
)

// Observer is notified about history activity, typically for metrics.
type Observer interface {
	EventAppended(e model.Event, size int)
	PatternMatched(pattern string)
}

// Option configures a History.
type Option func(*History)

// WithCapacity bounds the number of retained events. Values below one keep
// the default.
func WithCapacity(n int) Option {
	return func(h *History) {
		if n > 0 {
			h.capacity = n
		}
	}
}

// WithRecentWindow sets the window used for Stats().Recent.
func WithRecentWindow(d time.Duration) Option {
	return func(h *History) {
		if d > 0 {
			h.window = d
		}
	}
}

// WithScheduler sets the time source for simulated events and stats.
func WithScheduler(s clock.Scheduler) Option {
	return func(h *History) {
		h.sched = s
	}
}

// WithLogger sets the logger. Nil disables logging.
func WithLogger(l *slog.Logger) Option {
	return func(h *History) {
		h.logger = l
	}
}

// WithRecorder archives every published event.
func WithRecorder(r eventlog.Recorder) Option {
	return func(h *History) {
		h.recorder = r
	}
}

// WithObserver registers an observer.
func WithObserver(o Observer) Option {
	return func(h *History) {
		h.observer = o
	}
}

// History is the event bus and bounded event history.
// It is safe for concurrent use.
type History struct {
	capacity int
	window   time.Duration
	sched    clock.Scheduler
	logger   *slog.Logger
	recorder eventlog.Recorder
	observer Observer

	mu       sync.Mutex
	events   []model.Event
	patterns []*Pattern

	subMu     sync.RWMutex
	subs      []*subscription
	matchSubs []matchSubscription
	nextSub   uint64
}

// New creates an empty history.
func New(opts ...Option) *History {
	h := &History{
		capacity: DefaultCapacity,
		window:   DefaultRecentWindow,
	}
	for _, opt := range opts {
		opt(h)
	}
	if h.sched == nil {
		h.sched = clock.New()
	}
	if h.recorder == nil {
		h.recorder = eventlog.NoopRecorder{}
	}
	return h
}

// Capacity returns the retention bound.
func (h *History) Capacity() int {
	return h.capacity
}

// Now returns the history's current time.
func (h *History) Now() time.Time {
	return h.sched.Now()
}

// Append records an event, runs pattern matching and notifies subscribers.
func (h *History) Append(e model.Event) {
	h.mu.Lock()
	h.events = append(h.events, e)
	if over := len(h.events) - h.capacity; over > 0 {
		copy(h.events, h.events[over:])
		clear(h.events[h.capacity:])
		h.events = h.events[:h.capacity]
	}
	size := len(h.events)
	matches := h.matchLocked()
	h.mu.Unlock()

	h.recorder.Record(e)
	if h.observer != nil {
		h.observer.EventAppended(e, size)
	}
	h.dispatch(e)

	for _, m := range matches {
		h.publishMatch(m)
	}
}

// Len returns the number of retained events.
func (h *History) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.events)
}

// Clear drops every retained event. Patterns and subscribers are kept.
func (h *History) Clear() {
	h.mu.Lock()
	h.events = nil
	h.mu.Unlock()
	h.debugLog("history cleared")
}

func (h *History) debugLog(msg string, args ...any) {
	if h.logger != nil {
		h.logger.Debug(msg, args...)
	}
}

func (h *History) warnLog(msg string, args ...any) {
	if h.logger != nil {
		h.logger.Warn(msg, args...)
	}
}
