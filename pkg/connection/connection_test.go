package connection

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wendylw/mock-driven-testing-sub001/pkg/clock"
)

func TestStateString(t *testing.T) {
	tests := []struct {
		state State
		want  string
	}{
		{StateDisconnected, "DISCONNECTED"},
		{StateConnecting, "CONNECTING"},
		{StateConnected, "CONNECTED"},
		{State(99), "UNKNOWN"},
	}

	for _, tt := range tests {
		if got := tt.state.String(); got != tt.want {
			t.Errorf("State(%d).String() = %q, want %q", tt.state, got, tt.want)
		}
	}
}

func TestBackoff(t *testing.T) {
	t.Run("DefaultLinear", func(t *testing.T) {
		b := NewBackoff()
		assert.Equal(t, []time.Duration{2 * time.Second, 4 * time.Second, 6 * time.Second}, b.Sequence(3))
		assert.Equal(t, 4*time.Second, b.Delay(2))
	})

	t.Run("Exponential", func(t *testing.T) {
		b := NewBackoffWithConfig(BackoffConfig{
			Mode: ModeExponential,
			Base: 100 * time.Millisecond,
			Max:  500 * time.Millisecond,
		})
		expected := []time.Duration{
			100 * time.Millisecond,
			200 * time.Millisecond,
			400 * time.Millisecond,
			500 * time.Millisecond, // Max
		}
		assert.Equal(t, expected, b.Sequence(4))
	})

	t.Run("Jitter", func(t *testing.T) {
		b := NewBackoffWithConfig(BackoffConfig{Base: time.Second, Jitter: 0.25})
		for i := 0; i < 20; i++ {
			d := b.Delay(1)
			if d < time.Second || d > 1250*time.Millisecond {
				t.Fatalf("Delay(1) = %v out of range [1s, 1.25s]", d)
			}
		}
	})

	t.Run("AttemptBelowOne", func(t *testing.T) {
		assert.Equal(t, 2*time.Second, NewBackoff().Delay(0))
	})
}

func TestReconnectorStopsOnFirstSuccess(t *testing.T) {
	sched := clock.NewFake()
	r := NewReconnector(sched, nil)

	calls := 0
	connect := func(ctx context.Context) error {
		calls++
		if calls < 2 {
			return errors.New("refused")
		}
		return nil
	}

	done := make(chan Result, 1)
	go func() {
		res, err := r.Attempt(context.Background(), connect, 3)
		assert.NoError(t, err)
		done <- res
	}()

	sched.BlockUntil(1)
	sched.Advance(2 * time.Second)
	sched.BlockUntil(1)
	sched.Advance(4 * time.Second)

	select {
	case res := <-done:
		assert.True(t, res.Connected)
		assert.Equal(t, 2, res.Attempts)
	case <-time.After(time.Second):
		t.Fatal("Attempt did not finish")
	}
}

func TestReconnectorExhausts(t *testing.T) {
	sched := clock.NewFake()
	r := NewReconnector(sched, nil)

	var mu sync.Mutex
	var delays []time.Duration
	r.OnAttempt(func(attempt int, delay time.Duration) {
		mu.Lock()
		delays = append(delays, delay)
		mu.Unlock()
	})

	exhausted := make(chan int, 1)
	r.OnExhausted(func(attempts int, lastErr error) { exhausted <- attempts })

	refused := errors.New("refused")
	calls := 0
	connect := func(ctx context.Context) error {
		calls++
		return refused
	}

	done := make(chan error, 1)
	go func() {
		_, err := r.Attempt(context.Background(), connect, 3)
		done <- err
	}()

	for _, d := range []time.Duration{2 * time.Second, 4 * time.Second, 6 * time.Second} {
		sched.BlockUntil(1)
		sched.Advance(d)
	}

	var err error
	select {
	case err = <-done:
	case <-time.After(time.Second):
		t.Fatal("Attempt did not finish")
	}

	require.ErrorIs(t, err, ErrReconnectExhausted)
	assert.ErrorIs(t, err, refused)
	assert.Equal(t, 3, calls)
	assert.Equal(t, 3, <-exhausted)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []time.Duration{2 * time.Second, 4 * time.Second, 6 * time.Second}, delays)
}

func TestReconnectorCancelled(t *testing.T) {
	sched := clock.NewFake()
	r := NewReconnector(sched, nil)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() {
		_, err := r.Attempt(ctx, func(context.Context) error { return nil }, 3)
		done <- err
	}()

	sched.BlockUntil(1)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("Attempt did not return after cancel")
	}
}
