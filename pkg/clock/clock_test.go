package clock

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSleepZeroReturnsImmediately(t *testing.T) {
	f := NewFake()
	require.NoError(t, f.Sleep(context.Background(), 0))
}

func TestSleepCancelled(t *testing.T) {
	f := NewFake()
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- f.Sleep(ctx, time.Hour) }()

	f.BlockUntil(1)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("Sleep did not return after cancel")
	}
}

func TestSleepAdvance(t *testing.T) {
	f := NewFake()

	done := make(chan error, 1)
	go func() { done <- f.Sleep(context.Background(), 2*time.Second) }()

	f.BlockUntil(1)
	f.Advance(2 * time.Second)

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Sleep did not return after Advance")
	}
}

func TestEveryStops(t *testing.T) {
	f := NewFake()
	var runs atomic.Int32

	task := f.Every(10*time.Second, func() { runs.Add(1) })

	for i := 1; i <= 3; i++ {
		f.BlockUntil(1)
		f.Advance(10 * time.Second)
		want := int32(i)
		require.Eventually(t, func() bool { return runs.Load() == want },
			time.Second, time.Millisecond)
	}

	assert.True(t, task.Stop())
	assert.False(t, task.Stop())

	f.Advance(time.Minute)
	time.Sleep(10 * time.Millisecond)
	assert.Equal(t, int32(3), runs.Load())
}

func TestEveryStopFromInsideRun(t *testing.T) {
	f := NewFake()
	var runs atomic.Int32
	var task Task

	ready := make(chan struct{})
	task = f.Every(time.Second, func() {
		<-ready
		runs.Add(1)
		task.Stop()
	})
	close(ready)

	f.BlockUntil(1)
	f.Advance(time.Second)
	require.Eventually(t, func() bool { return runs.Load() == 1 },
		time.Second, time.Millisecond)

	f.Advance(time.Minute)
	time.Sleep(10 * time.Millisecond)
	assert.Equal(t, int32(1), runs.Load())
	assert.False(t, task.Stop())
}

func TestEveryStopDuringRun(t *testing.T) {
	f := NewFake()
	var runs atomic.Int32
	entered := make(chan struct{})
	release := make(chan struct{})

	task := f.Every(time.Second, func() {
		if runs.Add(1) == 1 {
			close(entered)
			<-release
		}
	})

	f.BlockUntil(1)
	f.Advance(time.Second)
	<-entered
	assert.True(t, task.Stop(), "Stop does not wait for the run in progress")
	close(release)

	f.Advance(time.Minute)
	time.Sleep(10 * time.Millisecond)
	assert.Equal(t, int32(1), runs.Load())
}

func TestAfterFuncStop(t *testing.T) {
	f := NewFake()
	var fired atomic.Bool

	task := f.AfterFunc(time.Second, func() { fired.Store(true) })
	assert.True(t, task.Stop())

	f.Advance(2 * time.Second)
	time.Sleep(10 * time.Millisecond)
	assert.False(t, fired.Load())
}

func TestNowAdvances(t *testing.T) {
	f := NewFake()
	start := f.Now()
	f.Advance(90 * time.Second)
	assert.Equal(t, 90*time.Second, f.Now().Sub(start))
}
