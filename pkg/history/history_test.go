package history

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wendylw/mock-driven-testing-sub001/pkg/clock"
	"github.com/wendylw/mock-driven-testing-sub001/pkg/model"
)

func event(sched clock.Scheduler, t model.DeviceType, name model.EventName) model.Event {
	return model.NewEvent(t, string(t)+"-1", name, model.Payload{}, sched.Now())
}

func TestAppendAndQuery(t *testing.T) {
	sched := clock.NewFake()
	h := New(WithScheduler(sched))

	h.Append(event(sched, model.Printer, model.EventConnected))
	sched.Advance(time.Second)
	h.Append(event(sched, model.Scanner, model.EventBarcodeScanned))
	sched.Advance(time.Second)
	h.Append(event(sched, model.Printer, model.EventPrintComplete))

	assert.Equal(t, 3, h.Len())
	assert.Len(t, h.Events(model.Printer, 0), 2)
	assert.Len(t, h.Events("", 0), 3)

	latest := h.Events("", 1)
	require.Len(t, latest, 1)
	assert.Equal(t, model.EventPrintComplete, latest[0].Name())

	since := h.Query(Filter{Since: sched.Now().Add(-time.Second)})
	assert.Len(t, since, 2)
	named := h.Query(Filter{Name: model.EventBarcodeScanned, DeviceID: "scanner-1"})
	assert.Len(t, named, 1)
}

func TestCapacityDropsOldest(t *testing.T) {
	sched := clock.NewFake()
	h := New(WithScheduler(sched), WithCapacity(10))

	for i := 0; i < 25; i++ {
		h.Append(model.NewEvent(model.Scale, fmt.Sprintf("scale-%d", i), model.EventWeightChanged, nil, sched.Now()))
	}

	events := h.Events("", 0)
	require.Len(t, events, 10)
	assert.Equal(t, "scale-15", events[0].DeviceID())
	assert.Equal(t, "scale-24", events[9].DeviceID())
}

func TestCapacityDefault(t *testing.T) {
	h := New(WithCapacity(0))
	assert.Equal(t, DefaultCapacity, h.Capacity())
}

func TestSubscribeByTypeTopicAndAll(t *testing.T) {
	sched := clock.NewFake()
	h := New(WithScheduler(sched))

	var byType, byTopic, all []model.EventName
	h.Subscribe(model.Printer, func(e model.Event) { byType = append(byType, e.Name()) })
	h.SubscribeTopic(model.Topic{DeviceType: model.Printer, Name: model.EventPrintComplete}, func(e model.Event) {
		byTopic = append(byTopic, e.Name())
	})
	h.SubscribeAll(func(e model.Event) { all = append(all, e.Name()) })

	h.Append(event(sched, model.Printer, model.EventPrintStarted))
	h.Append(event(sched, model.Printer, model.EventPrintComplete))
	h.Append(event(sched, model.Scanner, model.EventPrintComplete))

	assert.Equal(t, []model.EventName{model.EventPrintStarted, model.EventPrintComplete}, byType)
	assert.Equal(t, []model.EventName{model.EventPrintComplete}, byTopic)
	assert.Len(t, all, 3)
}

func TestUnsubscribe(t *testing.T) {
	sched := clock.NewFake()
	h := New(WithScheduler(sched))

	calls := 0
	unsubscribe := h.SubscribeAll(func(model.Event) { calls++ })
	h.Append(event(sched, model.Printer, model.EventConnected))
	unsubscribe()
	unsubscribe()
	h.Append(event(sched, model.Printer, model.EventConnected))

	assert.Equal(t, 1, calls)
}

func TestSubscriberPanicRecovered(t *testing.T) {
	sched := clock.NewFake()
	var logs bytes.Buffer
	h := New(WithScheduler(sched), WithLogger(slog.New(slog.NewTextHandler(&logs, nil))))

	h.SubscribeAll(func(model.Event) { panic("boom") })
	var got []model.Event
	h.SubscribeAll(func(e model.Event) { got = append(got, e) })

	require.NotPanics(t, func() { h.Append(event(sched, model.Printer, model.EventConnected)) })

	assert.Len(t, got, 1)
	assert.Equal(t, 1, h.Len())
	assert.Contains(t, logs.String(), "subscriber panicked")
}

func TestSubscriberMayAppend(t *testing.T) {
	sched := clock.NewFake()
	h := New(WithScheduler(sched))

	h.SubscribeTopic(model.Topic{DeviceType: model.Printer, Name: model.EventPaperOut}, func(model.Event) {
		h.Append(event(sched, model.Printer, model.EventPrintError))
	})
	h.Append(event(sched, model.Printer, model.EventPaperOut))

	assert.Equal(t, 2, h.Len())
}

func TestConcurrentAppend(t *testing.T) {
	h := New(WithCapacity(5000))
	sched := clock.New()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				h.Append(event(sched, model.Scanner, model.EventBarcodeScanned))
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 800, h.Len())
}

func TestStats(t *testing.T) {
	sched := clock.NewFake()
	h := New(WithScheduler(sched), WithRecentWindow(time.Minute))

	h.Append(event(sched, model.Printer, model.EventConnected))
	sched.Advance(2 * time.Minute)
	h.Append(event(sched, model.Printer, model.EventPrintComplete))
	h.Append(event(sched, model.Scale, model.EventConnected))

	st := h.Stats()
	assert.Equal(t, 3, st.Total)
	assert.Equal(t, 2, st.ByDeviceType[model.Printer])
	assert.Equal(t, 1, st.ByDeviceType[model.Scale])
	assert.Equal(t, 2, st.ByName[model.EventConnected])
	assert.Equal(t, 2, st.Recent)
	assert.Equal(t, time.Minute, st.Window)
	require.NotNil(t, st.Oldest)
	assert.Equal(t, 2*time.Minute, st.Newest.Sub(*st.Oldest))
}

func TestStatsEmpty(t *testing.T) {
	st := New().Stats()
	assert.Zero(t, st.Total)
	assert.Nil(t, st.Oldest)
}

func TestClear(t *testing.T) {
	sched := clock.NewFake()
	h := New(WithScheduler(sched))
	require.NoError(t, h.DefinePattern("p", []Expectation{{model.Printer, model.EventConnected}}))
	h.Append(event(sched, model.Printer, model.EventConnected))

	h.Clear()

	assert.Zero(t, h.Len())
	assert.Len(t, h.Patterns(), 1)
}

func TestSimulateEvent(t *testing.T) {
	sched := clock.NewFake()
	h := New(WithScheduler(sched))

	payload := model.Payload{"barcode": "123", "deviceId": "scanner-7"}
	e := h.SimulateEvent(model.Scanner, model.EventBarcodeScanned, payload)

	simulated, _ := e.Value("simulated")
	assert.Equal(t, true, simulated)
	assert.Equal(t, "scanner-7", e.DeviceID())
	_, leaked := payload["simulated"]
	assert.False(t, leaked)

	yes, no := true, false
	assert.Len(t, h.Query(Filter{Simulated: &yes}), 1)
	assert.Empty(t, h.Query(Filter{Simulated: &no}))
}

func TestSimulateEventSequence(t *testing.T) {
	sched := clock.NewFake()
	h := New(WithScheduler(sched))

	seq := []SimulatedEvent{
		{DeviceType: model.CardReader, Name: model.EventCardInserted},
		{DeviceType: model.CardReader, Name: model.EventCardRead, Delay: time.Second},
		{DeviceType: model.CardReader, Name: model.EventPaymentProcessed, Delay: 2 * time.Second},
	}

	done := make(chan []model.Event, 1)
	go func() {
		events, err := h.SimulateEventSequence(context.Background(), seq)
		assert.NoError(t, err)
		done <- events
	}()

	sched.BlockUntil(1)
	assert.Equal(t, 1, h.Len())
	sched.Advance(time.Second)
	sched.BlockUntil(1)
	assert.Equal(t, 2, h.Len())
	sched.Advance(2 * time.Second)

	events := <-done
	require.Len(t, events, 3)
	assert.Equal(t, 3*time.Second, events[2].Timestamp().Sub(events[0].Timestamp()))
}

func TestSimulateEventSequenceCancelled(t *testing.T) {
	h := New(WithScheduler(clock.NewFake()))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	events, err := h.SimulateEventSequence(ctx, []SimulatedEvent{
		{DeviceType: model.Printer, Name: model.EventPaperOut, Delay: time.Second},
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, events)
}

type stubObserver struct {
	mu       sync.Mutex
	appended int
	size     int
	matched  []string
}

func (o *stubObserver) EventAppended(_ model.Event, size int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.appended++
	o.size = size
}

func (o *stubObserver) PatternMatched(name string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.matched = append(o.matched, name)
}

func TestObserver(t *testing.T) {
	sched := clock.NewFake()
	obs := &stubObserver{}
	h := New(WithScheduler(sched), WithObserver(obs), WithCapacity(2))
	require.NoError(t, h.DefinePattern("connect", []Expectation{{model.Printer, model.EventConnected}}))

	for i := 0; i < 3; i++ {
		h.Append(event(sched, model.Printer, model.EventConnected))
	}

	assert.Equal(t, 3, obs.appended)
	assert.Equal(t, 2, obs.size)
	assert.Equal(t, []string{"connect", "connect", "connect"}, obs.matched)
}
