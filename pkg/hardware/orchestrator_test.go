package hardware

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wendylw/mock-driven-testing-sub001/pkg/clock"
	"github.com/wendylw/mock-driven-testing-sub001/pkg/connection"
	"github.com/wendylw/mock-driven-testing-sub001/pkg/device"
	"github.com/wendylw/mock-driven-testing-sub001/pkg/history"
	"github.com/wendylw/mock-driven-testing-sub001/pkg/metrics"
	"github.com/wendylw/mock-driven-testing-sub001/pkg/model"
	"github.com/wendylw/mock-driven-testing-sub001/pkg/statestore"
)

func ptr[T any](v T) *T { return &v }

// quick has no delays, no background faults, no injected errors and no
// auto-connect.
func quick() device.ConfigPatch {
	return device.ConfigPatch{
		MinResponseDelay:   ptr(time.Duration(0)),
		MaxResponseDelay:   ptr(time.Duration(0)),
		ErrorCheckInterval: ptr(time.Duration(0)),
		ErrorRate:          device.Rate(0),
		AutoConnect:        ptr(false),
	}
}

func failing() device.ConfigPatch {
	p := quick()
	p.ErrorRate = device.Rate(100)
	return p
}

type fixture struct {
	sched *clock.Fake
	hist  *history.History
	orch  *Orchestrator
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	sched := clock.NewFake()
	hist := history.New(history.WithScheduler(sched))
	orch := New(hist, append([]Option{WithScheduler(sched)}, opts...)...)
	t.Cleanup(orch.Destroy)
	return &fixture{sched: sched, hist: hist, orch: orch}
}

func (f *fixture) names(t model.DeviceType) []model.EventName {
	var out []model.EventName
	for _, e := range f.hist.Events(t, 0) {
		out = append(out, e.Name())
	}
	return out
}

func TestRegisterDevice(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	sim, err := f.orch.RegisterDevice(ctx, model.Printer, quick())
	require.NoError(t, err)
	assert.Equal(t, "printer", sim.ID())
	assert.Equal(t, []string{"printer"}, f.orch.Devices())

	cfg, err := f.orch.DeviceConfig("printer")
	require.NoError(t, err)
	assert.Zero(t, cfg.ErrorRate)
	assert.NotEmpty(t, cfg.ErrorRules)

	_, err = f.orch.RegisterDevice(ctx, model.Printer, quick())
	assert.ErrorIs(t, err, ErrAlreadyRegistered)

	_, err = f.orch.RegisterDevice(ctx, model.DeviceType("toaster"), quick())
	var regErr *RegistrationError
	require.ErrorAs(t, err, &regErr)
	assert.Equal(t, "toaster", regErr.ID)
	assert.ErrorIs(t, err, model.ErrUnknownDeviceType)
}

func TestRegisterSameTypeTwice(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.orch.RegisterDeviceAs(ctx, "front", model.Printer, quick())
	require.NoError(t, err)
	_, err = f.orch.RegisterDeviceAs(ctx, "kitchen", model.Printer, quick())
	require.NoError(t, err)
	require.NoError(t, f.orch.ConnectDevice(ctx, "front"))
	require.NoError(t, f.orch.ConnectDevice(ctx, "kitchen"))

	require.NoError(t, f.orch.TriggerDeviceEvent("front", "paperOut", nil))

	front, err := f.orch.Printer("front")
	require.NoError(t, err)
	kitchen, err := f.orch.Printer("kitchen")
	require.NoError(t, err)
	assert.Zero(t, front.PaperLevel())
	assert.Equal(t, device.PaperFull, kitchen.PaperLevel())
}

func TestRegisterDevicesPartialFailure(t *testing.T) {
	f := newFixture(t)

	errs := f.orch.RegisterDevices(context.Background(), []Registration{
		{Type: model.Printer, Config: quick()},
		{ID: "toaster-1", Type: model.DeviceType("toaster")},
		{ID: "lane-scanner", Type: model.Scanner, Config: quick()},
	})

	require.Len(t, errs, 3)
	assert.NoError(t, errs["printer"])
	assert.ErrorIs(t, errs["toaster-1"], model.ErrUnknownDeviceType)
	assert.NoError(t, errs["lane-scanner"])
	assert.Equal(t, []string{"printer", "lane-scanner"}, f.orch.Devices())
}

func TestEventsForwardedToHistory(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	var completed []model.Event
	f.hist.SubscribeTopic(model.Topic{DeviceType: model.Printer, Name: model.EventPrintComplete}, func(e model.Event) {
		completed = append(completed, e)
	})

	_, err := f.orch.RegisterDevice(ctx, model.Printer, quick())
	require.NoError(t, err)
	require.NoError(t, f.orch.ConnectDevice(ctx, "printer"))

	res, err := f.orch.Operate(ctx, "printer", "print", Params{"text": "receipt"})
	require.NoError(t, err)
	pr, ok := res.(device.PrintResult)
	require.True(t, ok)
	assert.True(t, pr.Success)
	assert.NotEmpty(t, pr.PrintID)

	assert.Equal(t, []model.EventName{model.EventConnected, model.EventPrintStarted, model.EventPrintComplete}, f.names(model.Printer))
	require.Len(t, completed, 1)
	success, _ := completed[0].Value("success")
	assert.Equal(t, true, success)
}

func TestAutoConnect(t *testing.T) {
	f := newFixture(t)
	patch := quick()
	patch.AutoConnect = ptr(true)

	sim, err := f.orch.RegisterDevice(context.Background(), model.Scale, patch)
	require.NoError(t, err)

	require.Eventually(t, sim.IsConnected, time.Second, time.Millisecond)
	assert.Equal(t, []string{"scale"}, f.orch.ConnectedDevices())
}

func TestAutoConnectFailureIsNotFatal(t *testing.T) {
	f := newFixture(t)
	patch := failing()
	patch.AutoConnect = ptr(true)

	_, err := f.orch.RegisterDevice(context.Background(), model.Scanner, patch)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return len(f.hist.Query(history.Filter{Name: model.EventConnectionError})) == 1
	}, time.Second, time.Millisecond)
	assert.Empty(t, f.orch.ConnectedDevices())
}

func TestBatchOperations(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.orch.RegisterDevices(ctx, []Registration{
		{Type: model.Printer, Config: quick()},
		{Type: model.CashDrawer, Config: quick()},
		{Type: model.CardReader, Config: failing()},
	})

	errs := f.orch.ConnectAllDevices(ctx)
	require.Len(t, errs, 3)
	assert.NoError(t, errs["printer"])
	assert.NoError(t, errs["cashDrawer"])
	assert.ErrorIs(t, errs["cardReader"], device.ErrConnectionFailed)
	assert.ElementsMatch(t, []string{"printer", "cashDrawer"}, f.orch.ConnectedDevices())

	require.NoError(t, f.orch.TriggerDeviceEvent("printer", "paperOut", nil))
	for id, err := range f.orch.ResetAllDevices() {
		assert.NoError(t, err, id)
	}
	p, err := f.orch.Printer("printer")
	require.NoError(t, err)
	assert.Equal(t, device.PaperFull, p.PaperLevel())

	for id, err := range f.orch.DisconnectAllDevices() {
		assert.NoError(t, err, id)
	}
	assert.Empty(t, f.orch.ConnectedDevices())
}

func TestStatuses(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.orch.RegisterDevices(ctx, []Registration{
		{Type: model.Scale, Config: quick()},
		{Type: model.NFCReader, Config: quick()},
	})
	require.NoError(t, f.orch.ConnectDevice(ctx, "nfcReader"))

	st, err := f.orch.DeviceStatus("nfcReader")
	require.NoError(t, err)
	assert.True(t, st.Connected)
	assert.Equal(t, connection.StateConnected, st.ConnectionState)

	all := f.orch.AllDeviceStatuses()
	require.Len(t, all, 2)
	assert.Equal(t, "scale", all[0].DeviceID)
	assert.False(t, all[0].Connected)

	_, err = f.orch.DeviceStatus("missing")
	assert.ErrorIs(t, err, ErrDeviceNotFound)
}

func TestUnknownDeviceID(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	assert.ErrorIs(t, f.orch.ConnectDevice(ctx, "nope"), ErrDeviceNotFound)
	assert.ErrorIs(t, f.orch.DisconnectDevice("nope"), ErrDeviceNotFound)
	assert.ErrorIs(t, f.orch.ResetDevice("nope"), ErrDeviceNotFound)
	assert.ErrorIs(t, f.orch.TriggerDeviceEvent("nope", "paperOut", nil), ErrDeviceNotFound)
	assert.ErrorIs(t, f.orch.UpdateDeviceConfig(ctx, "nope", quick()), ErrDeviceNotFound)
	assert.ErrorIs(t, f.orch.RemoveDevice("nope"), ErrDeviceNotFound)
	_, err := f.orch.Operate(ctx, "nope", "print", nil)
	assert.ErrorIs(t, err, ErrDeviceNotFound)
}

func TestTriggerUnknownEvent(t *testing.T) {
	f := newFixture(t)
	_, err := f.orch.RegisterDevice(context.Background(), model.Scale, quick())
	require.NoError(t, err)

	err = f.orch.TriggerDeviceEvent("scale", "explode", nil)
	var unknown *device.UnknownEventError
	assert.ErrorAs(t, err, &unknown)
}

func TestReconnectionBound(t *testing.T) {
	f := newFixture(t)
	_, err := f.orch.RegisterDevice(context.Background(), model.Printer, failing())
	require.NoError(t, err)

	type outcome struct {
		res connection.Result
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		res, err := f.orch.AttemptReconnection(context.Background(), "printer", 3)
		done <- outcome{res, err}
	}()

	for attempt := 1; attempt <= 3; attempt++ {
		f.sched.BlockUntil(1)
		f.sched.Advance(time.Duration(attempt) * 2 * time.Second)
	}

	out := <-done
	assert.ErrorIs(t, out.err, connection.ErrReconnectExhausted)
	assert.Equal(t, 3, out.res.Attempts)
	assert.False(t, out.res.Connected)

	assert.Len(t, f.hist.Query(history.Filter{DeviceID: "printer", Name: model.EventConnectionError}), 3)

	var delays []any
	for _, e := range f.hist.Query(history.Filter{DeviceType: model.Orchestrator, Name: model.EventReconnecting}) {
		d, _ := e.Value("delay")
		delays = append(delays, d)
	}
	assert.Equal(t, []any{"2s", "4s", "6s"}, delays)

	failed := f.hist.Query(history.Filter{DeviceType: model.Orchestrator, Name: model.EventReconnectFailed})
	require.Len(t, failed, 1)
	attempts, _ := failed[0].Value("attempts")
	assert.Equal(t, 3, attempts)
}

func TestReconnectionOneInFlight(t *testing.T) {
	f := newFixture(t)
	_, err := f.orch.RegisterDevice(context.Background(), model.Printer, quick())
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		_, err := f.orch.AttemptReconnection(context.Background(), "printer", 1)
		done <- err
	}()
	f.sched.BlockUntil(1)

	_, err = f.orch.AttemptReconnection(context.Background(), "printer", 1)
	assert.ErrorIs(t, err, ErrReconnectInProgress)

	f.sched.Advance(2 * time.Second)
	require.NoError(t, <-done)
}

func TestConnectionLostTriggersRecovery(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := metrics.NewMetrics(reg)
	require.NoError(t, err)
	f := newFixture(t, WithMetrics(m))
	ctx := context.Background()

	sim, err := f.orch.RegisterDevice(ctx, model.Scanner, quick())
	require.NoError(t, err)
	require.NoError(t, f.orch.ConnectDevice(ctx, "scanner"))

	require.NoError(t, f.orch.TriggerDeviceEvent("scanner", "connectionLost", nil))
	assert.False(t, sim.IsConnected())

	f.sched.BlockUntil(1)
	f.sched.Advance(2 * time.Second)

	require.Eventually(t, func() bool {
		return len(f.hist.Query(history.Filter{Name: model.EventReconnected})) == 1
	}, time.Second, time.Millisecond)
	assert.True(t, sim.IsConnected())

	ok := f.hist.Query(history.Filter{Name: model.EventReconnected})[0]
	attempts, _ := ok.Value("attempts")
	assert.Equal(t, 1, attempts)

	assert.Equal(t, []model.EventName{
		model.EventConnected,
		model.EventError,
		model.EventDisconnected,
		model.EventConnected,
	}, f.names(model.Scanner))

	count, err := testutil.GatherAndCount(reg, "possim_orchestrator_reconnects_total")
	require.NoError(t, err)
	assert.Equal(t, 2, count, "one attempt series and one recovered series")
}

func TestUpdateDeviceConfigPersists(t *testing.T) {
	store := statestore.NewMemoryStore()
	ctx := context.Background()

	f := newFixture(t, WithStateStore(store))
	_, err := f.orch.RegisterDevice(ctx, model.Printer, quick())
	require.NoError(t, err)
	require.NoError(t, f.orch.UpdateDeviceConfig(ctx, "printer", device.ConfigPatch{ErrorRate: device.Rate(42)}))

	cfg, err := f.orch.DeviceConfig("printer")
	require.NoError(t, err)
	assert.Equal(t, 42.0, cfg.ErrorRate)
	f.orch.Destroy()

	again := newFixture(t, WithStateStore(store))
	_, err = again.orch.RegisterDevice(ctx, model.Printer, device.ConfigPatch{})
	require.NoError(t, err)
	cfg, err = again.orch.DeviceConfig("printer")
	require.NoError(t, err)
	assert.Equal(t, 42.0, cfg.ErrorRate)
	assert.False(t, cfg.AutoConnect)

	_, err = again.orch.RegisterDeviceAs(ctx, "printer-2", model.Printer, device.ConfigPatch{ErrorRate: device.Rate(7)})
	require.NoError(t, err)
	cfg, err = again.orch.DeviceConfig("printer-2")
	require.NoError(t, err)
	assert.Equal(t, 7.0, cfg.ErrorRate)
}

func TestUpdateDeviceConfigRejectsInvalid(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.orch.RegisterDevice(ctx, model.Scale, quick())
	require.NoError(t, err)

	err = f.orch.UpdateDeviceConfig(ctx, "scale", device.ConfigPatch{ErrorRate: device.Rate(-1)})
	assert.ErrorIs(t, err, device.ErrInvalidConfig)
}

func TestRemoveDevice(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sim, err := f.orch.RegisterDevice(ctx, model.CashDrawer, quick())
	require.NoError(t, err)
	require.NoError(t, f.orch.ConnectDevice(ctx, "cashDrawer"))

	require.NoError(t, f.orch.RemoveDevice("cashDrawer"))
	assert.False(t, sim.IsConnected())
	assert.Empty(t, f.orch.Devices())

	before := f.hist.Len()
	require.NoError(t, sim.Connect(ctx))
	assert.Equal(t, before, f.hist.Len(), "removed devices are detached from history")
}

func TestDestroy(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.orch.RegisterDevices(ctx, []Registration{
		{Type: model.Printer, Config: quick()},
		{Type: model.Scanner, Config: quick()},
	})
	for id, err := range f.orch.ConnectAllDevices(ctx) {
		require.NoError(t, err, id)
	}

	// Leave a recovery sequence waiting on its first backoff.
	require.NoError(t, f.orch.TriggerDeviceEvent("scanner", "connectionLost", nil))
	f.sched.BlockUntil(1)

	f.orch.Destroy()

	assert.Empty(t, f.orch.Devices())
	assert.Empty(t, f.hist.Query(history.Filter{Name: model.EventReconnected}))
	printer := f.names(model.Printer)
	assert.Equal(t, model.EventDisconnected, printer[len(printer)-1])

	f.orch.Destroy()
	_, err := f.orch.RegisterDevice(ctx, model.Scale, quick())
	assert.ErrorIs(t, err, ErrDestroyed)
}

func TestOperate(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := metrics.NewMetrics(reg)
	require.NoError(t, err)
	f := newFixture(t, WithMetrics(m))
	ctx := context.Background()

	f.orch.RegisterDevices(ctx, []Registration{
		{Type: model.Scanner, Config: quick()},
		{Type: model.CardReader, Config: quick()},
		{Type: model.Scale, Config: quick()},
	})

	_, err = f.orch.Operate(ctx, "scanner", "scan", nil)
	assert.ErrorIs(t, err, device.ErrNotConnected)

	for id, err := range f.orch.ConnectAllDevices(ctx) {
		require.NoError(t, err, id)
	}

	_, err = f.orch.Operate(ctx, "scanner", "startScanning", nil)
	require.NoError(t, err)
	res, err := f.orch.Operate(ctx, "scanner", "scan", nil)
	require.NoError(t, err)
	assert.Len(t, res.(device.ScanResult).Barcode, 13)

	_, err = f.orch.Operate(ctx, "cardReader", "processPayment", Params{})
	assert.ErrorIs(t, err, device.ErrInvalidArgument)
	_, err = f.orch.Operate(ctx, "cardReader", "readCard", nil)
	require.NoError(t, err)
	res, err = f.orch.Operate(ctx, "cardReader", "processPayment", Params{"amount": 1250})
	require.NoError(t, err)
	assert.True(t, res.(device.PaymentResult).Approved)

	_, err = f.orch.Operate(ctx, "scale", "print", nil)
	assert.ErrorIs(t, err, ErrUnknownAction)

	count, err := testutil.GatherAndCount(reg, "possim_device_operations_total")
	require.NoError(t, err)
	assert.Positive(t, count)
}

func TestActions(t *testing.T) {
	for _, dt := range model.AllDeviceTypes() {
		assert.NotEmpty(t, Actions(dt), dt)
	}
	assert.Empty(t, Actions(model.Flow))
}

func TestTypedAccessors(t *testing.T) {
	f := newFixture(t)
	_, err := f.orch.RegisterDevice(context.Background(), model.NFCReader, quick())
	require.NoError(t, err)

	_, err = f.orch.NFCReader("nfcReader")
	assert.NoError(t, err)
	_, err = f.orch.Scale("nfcReader")
	assert.ErrorIs(t, err, ErrTypeMismatch)
	_, err = f.orch.CashDrawer("missing")
	assert.ErrorIs(t, err, ErrDeviceNotFound)
}
