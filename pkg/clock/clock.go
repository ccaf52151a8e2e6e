package clock

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// Scheduler is a source of time and of cancellable delayed tasks.
type Scheduler interface {
	// Now returns the current time.
	Now() time.Time

	// Sleep waits for d or until ctx is done, whichever comes first.
	// A non-positive d returns immediately.
	Sleep(ctx context.Context, d time.Duration) error

	// AfterFunc runs fn once after d.
	AfterFunc(d time.Duration, fn func()) Task

	// Every runs fn every d until the returned task is stopped.
	Every(d time.Duration, fn func()) Task
}

// Task is a scheduled unit of work.
type Task interface {
	// Stop prevents future runs. It does not wait: a run that already
	// began, or whose timer fired as Stop was called, may still finish.
	// No timer is armed after Stop returns. Stop may be called from
	// inside the task's own function.
	// Returns false if the task had already fired (one-shot) or was
	// already stopped.
	Stop() bool
}

// Clockwork is a Scheduler backed by a clockwork.Clock.
type Clockwork struct {
	clk clockwork.Clock
}

// New returns a Scheduler driven by the wall clock.
func New() *Clockwork {
	return &Clockwork{clk: clockwork.NewRealClock()}
}

// FromClock wraps an existing clockwork clock.
func FromClock(clk clockwork.Clock) *Clockwork {
	return &Clockwork{clk: clk}
}

// Now returns the current time.
func (c *Clockwork) Now() time.Time {
	return c.clk.Now()
}

// Sleep waits for d or until ctx is done.
func (c *Clockwork) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := c.clk.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.Chan():
		return nil
	}
}

// AfterFunc runs fn once after d.
func (c *Clockwork) AfterFunc(d time.Duration, fn func()) Task {
	return c.clk.AfterFunc(d, fn)
}

// Every runs fn every d until stopped. Runs never overlap: the next run is
// armed only after the previous one returns. A non-positive d yields a task
// that never runs. Callers whose fn must ignore a run that raced with Stop
// bind fn to their own state (see device connection epochs).
func (c *Clockwork) Every(d time.Duration, fn func()) Task {
	t := &periodic{}
	if d <= 0 {
		t.stopped = true
		return t
	}
	var arm func()
	arm = func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		if t.stopped {
			return
		}
		t.timer = c.clk.AfterFunc(d, func() {
			t.mu.Lock()
			stopped := t.stopped
			t.mu.Unlock()
			if stopped {
				return
			}
			fn()
			arm()
		})
	}
	arm()
	return t
}

// periodic is the Task returned by Every.
type periodic struct {
	mu      sync.Mutex
	timer   clockwork.Timer
	stopped bool
}

func (p *periodic) Stop() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stopped {
		return false
	}
	p.stopped = true
	if p.timer != nil {
		p.timer.Stop()
	}
	return true
}

// Fake is a virtual-time Scheduler for tests.
type Fake struct {
	*Clockwork
	fake clockwork.FakeClock
}

// NewFake returns a virtual-time scheduler starting at a fixed instant.
func NewFake() *Fake {
	fc := clockwork.NewFakeClockAt(time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC))
	return &Fake{Clockwork: FromClock(fc), fake: fc}
}

// Advance moves virtual time forward, firing any timers that come due.
func (f *Fake) Advance(d time.Duration) {
	f.fake.Advance(d)
}

// BlockUntil blocks until exactly n timers or sleepers are pending.
func (f *Fake) BlockUntil(n int) {
	f.fake.BlockUntil(n)
}

// Compile-time interface satisfaction checks.
var (
	_ Scheduler = (*Clockwork)(nil)
	_ Scheduler = (*Fake)(nil)
)
