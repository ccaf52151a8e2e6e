package hardware

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/wendylw/mock-driven-testing-sub001/pkg/clock"
	"github.com/wendylw/mock-driven-testing-sub001/pkg/connection"
	"github.com/wendylw/mock-driven-testing-sub001/pkg/device"
	"github.com/wendylw/mock-driven-testing-sub001/pkg/history"
	"github.com/wendylw/mock-driven-testing-sub001/pkg/metrics"
	"github.com/wendylw/mock-driven-testing-sub001/pkg/model"
	"github.com/wendylw/mock-driven-testing-sub001/pkg/statestore"
)

// batchLimit bounds how many devices a batch operation touches at once.
const batchLimit = 8

// Registration describes a device to register.
type Registration struct {
	ID     string             `yaml:"id" json:"id"`
	Type   model.DeviceType   `yaml:"type" json:"type"`
	Config device.ConfigPatch `yaml:"config" json:"config"`
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithScheduler sets the time source shared by every simulator.
func WithScheduler(s clock.Scheduler) Option {
	return func(o *Orchestrator) {
		o.sched = s
	}
}

// WithLogger sets the logger. Nil disables logging.
func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) {
		o.logger = l
	}
}

// WithStateStore persists device configuration.
func WithStateStore(s statestore.Store) Option {
	return func(o *Orchestrator) {
		o.store = s
	}
}

// WithMetrics records device activity.
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *Orchestrator) {
		o.metrics = m
	}
}

// WithReconnectBackoff sets the delay policy between reconnection attempts.
func WithReconnectBackoff(b *connection.Backoff) Option {
	return func(o *Orchestrator) {
		o.backoff = b
	}
}

// WithMaxReconnectAttempts sets how many times a lost device is reconnected
// before giving up.
func WithMaxReconnectAttempts(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.maxAttempts = n
		}
	}
}

type entry struct {
	sim          device.Simulator
	detach       func()
	reconnecting atomic.Bool
}

// Orchestrator owns the registered simulators.
type Orchestrator struct {
	hist        *history.History
	sched       clock.Scheduler
	logger      *slog.Logger
	store       statestore.Store
	metrics     *metrics.Metrics
	backoff     *connection.Backoff
	maxAttempts int

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu        sync.RWMutex
	devices   map[string]*entry
	order     []string
	destroyed bool
}

// New creates an orchestrator that records device events in hist.
func New(hist *history.History, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		hist:        hist,
		maxAttempts: connection.DefaultMaxAttempts,
		devices:     make(map[string]*entry),
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.sched == nil {
		o.sched = clock.New()
	}
	if o.hist == nil {
		o.hist = history.New(history.WithScheduler(o.sched), history.WithLogger(o.logger))
	}
	if o.backoff == nil {
		o.backoff = connection.NewBackoff()
	}
	o.ctx, o.cancel = context.WithCancel(context.Background())
	return o
}

// History returns the event history devices publish into.
func (o *Orchestrator) History() *history.History {
	return o.hist
}

// RegisterDevice registers a device of type t using the type name as id.
func (o *Orchestrator) RegisterDevice(ctx context.Context, t model.DeviceType, patch device.ConfigPatch) (device.Simulator, error) {
	return o.RegisterDeviceAs(ctx, string(t), t, patch)
}

// RegisterDeviceAs registers a device of type t under id. Configuration
// persisted for id is applied before patch. When the resulting
// configuration has AutoConnect set the device connects in the background;
// a failed connection is logged, not returned.
func (o *Orchestrator) RegisterDeviceAs(ctx context.Context, id string, t model.DeviceType, patch device.ConfigPatch) (device.Simulator, error) {
	sim, err := o.register(ctx, id, t, patch)
	if err != nil {
		o.warnLog("device registration failed", "device", id, "type", string(t), "error", err)
		return nil, err
	}
	return sim, nil
}

func (o *Orchestrator) register(ctx context.Context, id string, t model.DeviceType, patch device.ConfigPatch) (device.Simulator, error) {
	regErr := func(err error) error {
		return &RegistrationError{ID: id, Type: t, Err: err}
	}
	if !t.IsDevice() {
		return nil, regErr(fmt.Errorf("%w: %q", model.ErrUnknownDeviceType, t))
	}

	o.mu.RLock()
	_, exists := o.devices[id]
	destroyed := o.destroyed
	o.mu.RUnlock()
	switch {
	case destroyed:
		return nil, regErr(ErrDestroyed)
	case exists:
		return nil, regErr(ErrAlreadyRegistered)
	}

	cfg := device.DefaultConfig(t)
	persisted, err := o.loadConfig(ctx, id)
	if err != nil {
		return nil, regErr(err)
	}
	cfg = cfg.Merge(persisted).Merge(patch)

	sim, err := device.New(id, t,
		device.WithConfig(cfg),
		device.WithScheduler(o.sched),
		device.WithLogger(o.logger),
	)
	if err != nil {
		return nil, regErr(err)
	}

	en := &entry{sim: sim}
	o.mu.Lock()
	if _, exists := o.devices[id]; exists {
		o.mu.Unlock()
		return nil, regErr(ErrAlreadyRegistered)
	}
	en.detach = sim.OnEvent(o.handle)
	o.devices[id] = en
	o.order = append(o.order, id)
	autoConnect := cfg.AutoConnect && !o.destroyed
	if autoConnect {
		o.wg.Add(1)
	}
	o.mu.Unlock()

	o.metrics.SetConnected(id, false)
	o.debugLog("device registered", "device", id, "type", string(t), "autoConnect", cfg.AutoConnect)

	if autoConnect {
		go func() {
			defer o.wg.Done()
			if err := sim.Connect(o.ctx); err != nil && o.ctx.Err() == nil {
				o.warnLog("auto-connect failed", "device", id, "error", err)
			}
		}()
	}
	return sim, nil
}

// RegisterDevices registers every device and returns the errors by id.
// A failed registration does not stop the others.
func (o *Orchestrator) RegisterDevices(ctx context.Context, regs []Registration) map[string]error {
	out := make(map[string]error, len(regs))
	for _, r := range regs {
		id := r.ID
		if id == "" {
			id = string(r.Type)
		}
		_, err := o.RegisterDeviceAs(ctx, id, r.Type, r.Config)
		out[id] = err
	}
	return out
}

// RemoveDevice disconnects a device and removes it from the registry.
func (o *Orchestrator) RemoveDevice(id string) error {
	o.mu.Lock()
	en, ok := o.devices[id]
	if !ok {
		o.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrDeviceNotFound, id)
	}
	delete(o.devices, id)
	o.order = slices.DeleteFunc(o.order, func(x string) bool { return x == id })
	o.mu.Unlock()

	en.sim.Disconnect()
	en.detach()
	o.metrics.ForgetDevice(id)
	return nil
}

// Device returns the simulator registered under id.
func (o *Orchestrator) Device(id string) (device.Simulator, error) {
	en, err := o.lookup(id)
	if err != nil {
		return nil, err
	}
	return en.sim, nil
}

// Devices returns the registered ids in registration order.
func (o *Orchestrator) Devices() []string {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return slices.Clone(o.order)
}

func (o *Orchestrator) lookup(id string) (*entry, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	en, ok := o.devices[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrDeviceNotFound, id)
	}
	return en, nil
}

func (o *Orchestrator) entries() []*entry {
	o.mu.RLock()
	defer o.mu.RUnlock()
	out := make([]*entry, 0, len(o.order))
	for _, id := range o.order {
		out = append(out, o.devices[id])
	}
	return out
}

// ConnectDevice connects one device.
func (o *Orchestrator) ConnectDevice(ctx context.Context, id string) error {
	en, err := o.lookup(id)
	if err != nil {
		return err
	}
	return en.sim.Connect(ctx)
}

// DisconnectDevice disconnects one device.
func (o *Orchestrator) DisconnectDevice(id string) error {
	en, err := o.lookup(id)
	if err != nil {
		return err
	}
	en.sim.Disconnect()
	return nil
}

// ResetDevice restores a device's initial operational state.
func (o *Orchestrator) ResetDevice(id string) error {
	en, err := o.lookup(id)
	if err != nil {
		return err
	}
	en.sim.Reset()
	return nil
}

// ConnectAllDevices connects every device concurrently. The result holds
// an entry per device; nil means connected.
func (o *Orchestrator) ConnectAllDevices(ctx context.Context) map[string]error {
	return o.batch(func(en *entry) error { return en.sim.Connect(ctx) })
}

// DisconnectAllDevices disconnects every device.
func (o *Orchestrator) DisconnectAllDevices() map[string]error {
	return o.batch(func(en *entry) error {
		en.sim.Disconnect()
		return nil
	})
}

// ResetAllDevices resets every device.
func (o *Orchestrator) ResetAllDevices() map[string]error {
	return o.batch(func(en *entry) error {
		en.sim.Reset()
		return nil
	})
}

func (o *Orchestrator) batch(fn func(*entry) error) map[string]error {
	var (
		mu  sync.Mutex
		out = make(map[string]error)
		g   errgroup.Group
	)
	g.SetLimit(batchLimit)
	for _, en := range o.entries() {
		g.Go(func() error {
			err := fn(en)
			mu.Lock()
			out[en.sim.ID()] = err
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return out
}

// DeviceStatus returns the status of one device.
func (o *Orchestrator) DeviceStatus(id string) (device.Status, error) {
	en, err := o.lookup(id)
	if err != nil {
		return device.Status{}, err
	}
	return en.sim.Status(), nil
}

// AllDeviceStatuses returns the status of every device in registration order.
func (o *Orchestrator) AllDeviceStatuses() []device.Status {
	entries := o.entries()
	out := make([]device.Status, 0, len(entries))
	for _, en := range entries {
		out = append(out, en.sim.Status())
	}
	return out
}

// ConnectedDevices returns the ids of connected devices.
func (o *Orchestrator) ConnectedDevices() []string {
	var out []string
	for _, en := range o.entries() {
		if en.sim.IsConnected() {
			out = append(out, en.sim.ID())
		}
	}
	return out
}

// TriggerDeviceEvent forwards a scripted event to a device.
func (o *Orchestrator) TriggerDeviceEvent(id, eventType string, data map[string]any) error {
	en, err := o.lookup(id)
	if err != nil {
		return err
	}
	return en.sim.TriggerExternalEvent(eventType, data)
}

// DeviceConfig returns the live configuration of a device.
func (o *Orchestrator) DeviceConfig(id string) (device.Config, error) {
	en, err := o.lookup(id)
	if err != nil {
		return device.Config{}, err
	}
	return en.sim.Config(), nil
}

// UpdateDeviceConfig applies a partial configuration to a live device and
// persists the result. Operations already in progress keep the
// configuration they started with.
func (o *Orchestrator) UpdateDeviceConfig(ctx context.Context, id string, patch device.ConfigPatch) error {
	en, err := o.lookup(id)
	if err != nil {
		return err
	}
	if err := en.sim.UpdateConfig(patch); err != nil {
		return err
	}
	return o.saveConfig(ctx, id, en.sim.Config())
}

func configKey(id string) string {
	return "device/" + id + "/config"
}

func (o *Orchestrator) loadConfig(ctx context.Context, id string) (device.ConfigPatch, error) {
	var p device.ConfigPatch
	if o.store == nil {
		return p, nil
	}
	err := statestore.GetJSON(ctx, o.store, configKey(id), &p)
	if errors.Is(err, statestore.ErrNotFound) {
		return device.ConfigPatch{}, nil
	}
	if err != nil {
		return p, fmt.Errorf("load config: %w", err)
	}
	return p, nil
}

func (o *Orchestrator) saveConfig(ctx context.Context, id string, cfg device.Config) error {
	if o.store == nil {
		return nil
	}
	if err := statestore.PutJSON(ctx, o.store, configKey(id), cfg); err != nil {
		return fmt.Errorf("save config: %w", err)
	}
	return nil
}

// handle receives every event emitted by a registered simulator.
func (o *Orchestrator) handle(e model.Event) {
	o.hist.Append(e)

	id := e.DeviceID()
	switch e.Name() {
	case model.EventConnected:
		o.metrics.SetConnected(id, true)
	case model.EventDisconnected:
		o.metrics.SetConnected(id, false)
	case model.EventError:
		errType, _ := e.Value("type")
		s, _ := errType.(string)
		o.metrics.CountFault(id, s)
		if s == device.ErrTypeConnectionLost {
			o.startRecovery(id)
		}
	}
}

// startRecovery reconnects id in the background.
func (o *Orchestrator) startRecovery(id string) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	if o.destroyed {
		return
	}
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		_, err := o.AttemptReconnection(o.ctx, id, o.maxAttempts)
		if errors.Is(err, ErrReconnectInProgress) {
			o.debugLog("reconnection already running", "device", id)
		}
	}()
}

// Destroy disconnects every device, stops background reconnection and
// clears the registry. It is safe to call more than once.
func (o *Orchestrator) Destroy() {
	o.mu.Lock()
	if o.destroyed {
		o.mu.Unlock()
		return
	}
	o.destroyed = true
	o.mu.Unlock()

	o.cancel()
	o.wg.Wait()

	o.mu.Lock()
	entries := make([]*entry, 0, len(o.order))
	for _, id := range o.order {
		entries = append(entries, o.devices[id])
	}
	o.devices = make(map[string]*entry)
	o.order = nil
	o.mu.Unlock()

	for _, en := range entries {
		en.sim.Disconnect()
		en.detach()
		o.metrics.ForgetDevice(en.sim.ID())
	}
	o.debugLog("orchestrator destroyed", "devices", len(entries))
}

func (o *Orchestrator) debugLog(msg string, args ...any) {
	if o.logger != nil {
		o.logger.Debug(msg, args...)
	}
}

func (o *Orchestrator) infoLog(msg string, args ...any) {
	if o.logger != nil {
		o.logger.Info(msg, args...)
	}
}

func (o *Orchestrator) warnLog(msg string, args ...any) {
	if o.logger != nil {
		o.logger.Warn(msg, args...)
	}
}

func (o *Orchestrator) errorLog(msg string, args ...any) {
	if o.logger != nil {
		o.logger.Error(msg, args...)
	}
}
