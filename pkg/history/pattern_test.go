package history

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wendylw/mock-driven-testing-sub001/pkg/clock"
	"github.com/wendylw/mock-driven-testing-sub001/pkg/model"
)

var checkout = []Expectation{
	{model.Scanner, model.EventBarcodeScanned},
	{model.CardReader, model.EventPaymentProcessed},
	{model.Printer, model.EventPrintComplete},
}

func TestDefinePatternErrors(t *testing.T) {
	h := New()

	assert.ErrorIs(t, h.DefinePattern("empty", nil), ErrEmptyPattern)
	require.NoError(t, h.DefinePattern("checkout", checkout))
	assert.ErrorIs(t, h.DefinePattern("checkout", checkout), ErrDuplicatePattern)
	assert.ErrorIs(t, h.RemovePattern("missing"), ErrPatternNotFound)
}

func TestPatternMatchesExactTrailingWindow(t *testing.T) {
	sched := clock.NewFake()
	h := New(WithScheduler(sched))
	require.NoError(t, h.DefinePattern("checkout", checkout))

	var matches []Match
	h.OnPatternMatched(func(m Match) { matches = append(matches, m) })

	h.Append(event(sched, model.Scanner, model.EventBarcodeScanned))
	h.Append(event(sched, model.CardReader, model.EventPaymentProcessed))
	assert.Empty(t, matches)
	h.Append(event(sched, model.Printer, model.EventPrintComplete))

	require.Len(t, matches, 1)
	assert.Equal(t, "checkout", matches[0].Pattern)
	require.Len(t, matches[0].Events, 3)
	assert.Equal(t, model.EventBarcodeScanned, matches[0].Events[0].Name())
}

func TestPatternInterleavedEventBreaksMatch(t *testing.T) {
	sched := clock.NewFake()
	h := New(WithScheduler(sched))
	require.NoError(t, h.DefinePattern("checkout", checkout))

	matched := 0
	h.OnPatternMatched(func(Match) { matched++ })

	h.Append(event(sched, model.Scanner, model.EventBarcodeScanned))
	h.Append(event(sched, model.CardReader, model.EventPaymentProcessed))
	h.Append(event(sched, model.CashDrawer, model.EventDrawerOpened))
	h.Append(event(sched, model.Printer, model.EventPrintComplete))

	assert.Zero(t, matched)
}

func TestPatternWrongDeviceType(t *testing.T) {
	sched := clock.NewFake()
	h := New(WithScheduler(sched))
	require.NoError(t, h.DefinePattern("scan", []Expectation{{model.Scanner, model.EventBarcodeScanned}}))

	matched := 0
	h.OnPatternMatched(func(Match) { matched++ })
	h.Append(event(sched, model.NFCReader, model.EventBarcodeScanned))

	assert.Zero(t, matched)
}

func TestPatternsCheckedIndependently(t *testing.T) {
	sched := clock.NewFake()
	h := New(WithScheduler(sched))
	require.NoError(t, h.DefinePattern("checkout", checkout))
	require.NoError(t, h.DefinePattern("receipt", []Expectation{{model.Printer, model.EventPrintComplete}}))

	var names []string
	h.OnPatternMatched(func(m Match) { names = append(names, m.Pattern) })

	for _, x := range checkout {
		h.Append(event(sched, x.DeviceType, x.Name))
	}

	assert.Equal(t, []string{"checkout", "receipt"}, names)
}

func TestPatternNotificationNotRetained(t *testing.T) {
	sched := clock.NewFake()
	h := New(WithScheduler(sched))
	require.NoError(t, h.DefinePattern("connect", []Expectation{{model.Printer, model.EventConnected}}))

	var notes []model.Event
	h.SubscribeTopic(model.Topic{DeviceType: model.Orchestrator, Name: model.EventPatternMatched}, func(e model.Event) {
		notes = append(notes, e)
	})

	h.Append(event(sched, model.Printer, model.EventConnected))

	assert.Equal(t, 1, h.Len())
	require.Len(t, notes, 1)
	pattern, _ := notes[0].Value("pattern")
	assert.Equal(t, "connect", pattern)
	refs, _ := notes[0].Value("events")
	assert.Len(t, refs, 1)
}

func TestPatternMatchAfterEviction(t *testing.T) {
	sched := clock.NewFake()
	h := New(WithScheduler(sched), WithCapacity(2))
	require.NoError(t, h.DefinePattern("checkout", checkout))

	matched := 0
	h.OnPatternMatched(func(Match) { matched++ })
	for _, x := range checkout {
		h.Append(event(sched, x.DeviceType, x.Name))
	}

	assert.Zero(t, matched, "the pattern is longer than the retained window")
}

func TestRemovePattern(t *testing.T) {
	sched := clock.NewFake()
	h := New(WithScheduler(sched))
	require.NoError(t, h.DefinePattern("receipt", []Expectation{{model.Printer, model.EventPrintComplete}}))
	require.NoError(t, h.RemovePattern("receipt"))

	matched := 0
	h.OnPatternMatched(func(Match) { matched++ })
	h.Append(event(sched, model.Printer, model.EventPrintComplete))

	assert.Zero(t, matched)
	assert.Empty(t, h.Patterns())
}

func TestPatternListenerPanicRecovered(t *testing.T) {
	sched := clock.NewFake()
	h := New(WithScheduler(sched))
	require.NoError(t, h.DefinePattern("receipt", []Expectation{{model.Printer, model.EventPrintComplete}}))

	h.OnPatternMatched(func(Match) { panic("boom") })
	matched := 0
	h.OnPatternMatched(func(Match) { matched++ })

	require.NotPanics(t, func() { h.Append(event(sched, model.Printer, model.EventPrintComplete)) })
	assert.Equal(t, 1, matched)
}
