package connection

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/wendylw/mock-driven-testing-sub001/pkg/clock"
)

// ConnectFunc is called to establish a connection.
// It should return nil on success or an error on failure.
type ConnectFunc func(ctx context.Context) error

// Result describes a finished reconnection sequence.
type Result struct {
	// Attempts is the number of connect calls made.
	Attempts int

	// Connected reports whether the last attempt succeeded.
	Connected bool

	// LastErr is the error from the last failed attempt.
	LastErr error
}

// Reconnector runs bounded reconnection sequences on a scheduler.
type Reconnector struct {
	mu sync.RWMutex

	sched   clock.Scheduler
	backoff *Backoff

	// Callbacks
	onAttempt   func(attempt int, delay time.Duration)
	onExhausted func(attempts int, lastErr error)
}

// NewReconnector creates a reconnector. A nil backoff uses NewBackoff.
func NewReconnector(sched clock.Scheduler, backoff *Backoff) *Reconnector {
	if backoff == nil {
		backoff = NewBackoff()
	}
	if sched == nil {
		sched = clock.New()
	}
	return &Reconnector{sched: sched, backoff: backoff}
}

// Backoff returns the delay policy in use.
func (r *Reconnector) Backoff() *Backoff {
	return r.backoff
}

// Attempt calls connect up to maxAttempts times, waiting Backoff.Delay(n)
// before attempt n, and stops at the first success. When every attempt
// fails it returns ErrReconnectExhausted wrapping the last error. A
// cancelled ctx aborts the sequence with ctx.Err().
func (r *Reconnector) Attempt(ctx context.Context, connect ConnectFunc, maxAttempts int) (Result, error) {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}

	r.mu.RLock()
	onAttempt := r.onAttempt
	onExhausted := r.onExhausted
	r.mu.RUnlock()

	var res Result
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		delay := r.backoff.Delay(attempt)
		if onAttempt != nil {
			onAttempt(attempt, delay)
		}

		if err := r.sched.Sleep(ctx, delay); err != nil {
			return res, err
		}

		res.Attempts = attempt
		err := connect(ctx)
		if err == nil {
			res.Connected = true
			res.LastErr = nil
			return res, nil
		}
		res.LastErr = err

		if ctx.Err() != nil {
			return res, ctx.Err()
		}
	}

	if onExhausted != nil {
		onExhausted(res.Attempts, res.LastErr)
	}
	return res, fmt.Errorf("%w after %d attempts: %w", ErrReconnectExhausted, res.Attempts, res.LastErr)
}

// OnAttempt sets a callback invoked before each wait.
func (r *Reconnector) OnAttempt(fn func(attempt int, delay time.Duration)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onAttempt = fn
}

// OnExhausted sets a callback invoked when every attempt failed.
func (r *Reconnector) OnExhausted(fn func(attempts int, lastErr error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onExhausted = fn
}
