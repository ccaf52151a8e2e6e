package device

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/wendylw/mock-driven-testing-sub001/pkg/clock"
	"github.com/wendylw/mock-driven-testing-sub001/pkg/connection"
	"github.com/wendylw/mock-driven-testing-sub001/pkg/model"
)

// Simulator is the behaviour shared by every simulated peripheral.
type Simulator interface {
	// ID returns the device identifier.
	ID() string

	// Type returns the device type.
	Type() model.DeviceType

	// Connect establishes the simulated connection. It is a no-op when the
	// device is already connected.
	Connect(ctx context.Context) error

	// Disconnect drops the connection. Pending operations become stale.
	Disconnect()

	// IsConnected reports whether the device is connected.
	IsConnected() bool

	// ConnectionState returns the current connection state.
	ConnectionState() connection.State

	// Status returns a snapshot of the device.
	Status() Status

	// Reset restores the variant's default operational state.
	Reset()

	// TriggerExternalEvent scripts a physical condition on the device.
	TriggerExternalEvent(eventType string, data map[string]any) error

	// Config returns a copy of the current configuration.
	Config() Config

	// UpdateConfig merges a partial update into the configuration.
	UpdateConfig(p ConfigPatch) error

	// OnEvent registers a listener for every event the device emits. The
	// returned function removes it.
	OnEvent(fn func(model.Event)) (remove func())
}

// Status is a point-in-time snapshot of a device.
type Status struct {
	DeviceID        string           `json:"deviceId"`
	DeviceType      model.DeviceType `json:"deviceType"`
	Connected       bool             `json:"connected"`
	ConnectionState connection.State `json:"connectionState"`
	State           any              `json:"state"`
	Timestamp       time.Time        `json:"timestamp"`
}

// Completion carries the outcome shared by every capability operation.
type Completion struct {
	// Stale is set when the device disconnected while the operation was
	// waiting. No state was changed.
	Stale bool `json:"stale,omitempty"`
}

// Option configures a simulator.
type Option func(*options)

type options struct {
	config    *Config
	patch     ConfigPatch
	scheduler clock.Scheduler
	logger    *slog.Logger
	seed      *int64
}

// WithConfig replaces the default configuration of the device type.
func WithConfig(c Config) Option {
	return func(o *options) {
		cfg := c.clone()
		o.config = &cfg
	}
}

// WithConfigPatch applies a partial update on top of the configuration.
func WithConfigPatch(p ConfigPatch) Option {
	return func(o *options) {
		o.patch = p
	}
}

// WithScheduler sets the time source. Defaults to the wall clock.
func WithScheduler(s clock.Scheduler) Option {
	return func(o *options) {
		o.scheduler = s
	}
}

// WithLogger sets the logger for debug output. Nil disables logging.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// WithSeed makes delays and error rolls deterministic.
func WithSeed(seed int64) Option {
	return func(o *options) {
		o.seed = &seed
	}
}

// emission is an event waiting to be delivered outside the lock.
type emission struct {
	name    model.EventName
	payload model.Payload
}

// variant is implemented by each device type. All methods are called with
// base.mu held.
type variant interface {
	resetState()
	snapshot() any
	external(eventType string, data map[string]any) ([]emission, bool)
}

// base holds the connection, configuration, fault task and listeners
// shared by every variant.
type base struct {
	id     string
	typ    model.DeviceType
	sched  clock.Scheduler
	logger *slog.Logger
	v      variant

	rngMu sync.Mutex
	rng   *rand.Rand

	mu        sync.Mutex
	state     connection.State
	epoch     uint64
	cfg       Config
	faultTask clock.Task

	listenerMu   sync.RWMutex
	listeners    map[uint64]func(model.Event)
	nextListener uint64
}

func newBase(id string, t model.DeviceType, opts []Option) (*base, error) {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	cfg := DefaultConfig(t)
	if o.config != nil {
		cfg = *o.config
	}
	cfg = cfg.Merge(o.patch)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if o.scheduler == nil {
		o.scheduler = clock.New()
	}
	seed := time.Now().UnixNano()
	if o.seed != nil {
		seed = *o.seed
	}
	return &base{
		id:        id,
		typ:       t,
		sched:     o.scheduler,
		logger:    o.logger,
		rng:       rand.New(rand.NewSource(seed)),
		state:     connection.StateDisconnected,
		cfg:       cfg,
		listeners: make(map[uint64]func(model.Event)),
	}, nil
}

func (b *base) ID() string {
	return b.id
}

func (b *base) Type() model.DeviceType {
	return b.typ
}

func (b *base) IsConnected() bool {
	return b.ConnectionState() == connection.StateConnected
}

func (b *base) ConnectionState() connection.State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

func (b *base) Config() Config {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.cfg.clone()
}

func (b *base) UpdateConfig(p ConfigPatch) error {
	b.mu.Lock()
	next := b.cfg.Merge(p)
	if err := next.Validate(); err != nil {
		b.mu.Unlock()
		return err
	}
	intervalChanged := next.ErrorCheckInterval != b.cfg.ErrorCheckInterval
	b.cfg = next
	if intervalChanged && b.state == connection.StateConnected {
		b.restartFaultTaskLocked()
	}
	b.mu.Unlock()
	b.debugLog("config updated", "errorRate", next.ErrorRate, "rules", len(next.ErrorRules))
	return nil
}

func (b *base) OnEvent(fn func(model.Event)) func() {
	b.listenerMu.Lock()
	id := b.nextListener
	b.nextListener++
	b.listeners[id] = fn
	b.listenerMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.listenerMu.Lock()
			delete(b.listeners, id)
			b.listenerMu.Unlock()
		})
	}
}

func (b *base) Status() Status {
	b.mu.Lock()
	defer b.mu.Unlock()
	return Status{
		DeviceID:        b.id,
		DeviceType:      b.typ,
		Connected:       b.state == connection.StateConnected,
		ConnectionState: b.state,
		State:           b.v.snapshot(),
		Timestamp:       b.sched.Now(),
	}
}

func (b *base) Reset() {
	b.mu.Lock()
	b.v.resetState()
	snap := b.v.snapshot()
	b.mu.Unlock()
	b.emit(model.EventReset, model.Payload{"state": snap})
}

func (b *base) Connect(ctx context.Context) error {
	b.mu.Lock()
	switch b.state {
	case connection.StateConnected:
		b.mu.Unlock()
		return nil
	case connection.StateConnecting:
		b.mu.Unlock()
		return ErrAlreadyConnecting
	}
	b.state = connection.StateConnecting
	cfg := b.cfg.clone()
	b.mu.Unlock()

	b.debugLog("connecting")
	if err := b.sched.Sleep(ctx, b.responseDelay(cfg)); err != nil {
		b.abortConnecting()
		return err
	}

	if b.roll(cfg.RateFor(OpConnection)) {
		b.abortConnecting()
		errType := b.pick(cfg.errorTypesFor(OpConnection, ErrTypeConnectionLost), ErrTypeConnectionTimeout)
		cerr := &ConnectionError{
			DeviceID:   b.id,
			DeviceType: b.typ,
			ErrorType:  errType,
			Message:    ErrorMessage(errType),
		}
		b.debugLog("connection failed", "errorType", errType)
		b.emit(model.EventConnectionError, model.Payload{"type": errType, "message": cerr.Message})
		return cerr
	}

	b.mu.Lock()
	if b.state != connection.StateConnecting {
		b.mu.Unlock()
		return ErrConnectAborted
	}
	b.state = connection.StateConnected
	b.epoch++
	b.restartFaultTaskLocked()
	b.mu.Unlock()

	b.debugLog("connected")
	b.emit(model.EventConnected, model.Payload{})
	return nil
}

func (b *base) abortConnecting() {
	b.mu.Lock()
	if b.state == connection.StateConnecting {
		b.state = connection.StateDisconnected
	}
	b.mu.Unlock()
}

func (b *base) Disconnect() {
	b.drop("requested", nil)
}

// drop moves the device to Disconnected and emits the pending event (if
// any) followed by disconnected. It does nothing when already disconnected.
func (b *base) drop(reason string, before *emission) {
	b.dropFor(nil, reason, before)
}

// dropFor is drop bound to a connection epoch; see raiseFor.
func (b *base) dropFor(epoch *uint64, reason string, before *emission) {
	b.mu.Lock()
	if b.state == connection.StateDisconnected || (epoch != nil && b.epoch != *epoch) {
		b.mu.Unlock()
		return
	}
	b.state = connection.StateDisconnected
	b.epoch++
	b.stopFaultTaskLocked()
	b.mu.Unlock()

	b.debugLog("disconnected", "reason", reason)
	if before != nil {
		b.emit(before.name, before.payload)
	}
	b.emit(model.EventDisconnected, model.Payload{"reason": reason})
}

// restartFaultTaskLocked (re)arms the periodic fault check. Caller holds mu.
func (b *base) restartFaultTaskLocked() {
	b.stopFaultTaskLocked()
	if b.cfg.ErrorCheckInterval <= 0 {
		return
	}
	epoch := b.epoch
	b.faultTask = b.sched.Every(b.cfg.ErrorCheckInterval, func() { b.checkFault(epoch) })
}

func (b *base) stopFaultTaskLocked() {
	if b.faultTask != nil {
		b.faultTask.Stop()
		b.faultTask = nil
	}
}

// checkFault is one run of the fault task armed for epoch. A run that
// fires after the connection it was armed for has ended does nothing.
func (b *base) checkFault(epoch uint64) {
	b.mu.Lock()
	if b.state != connection.StateConnected || b.epoch != epoch {
		b.mu.Unlock()
		return
	}
	cfg := b.cfg.clone()
	b.mu.Unlock()

	if len(cfg.ErrorRules) == 0 || !b.roll(cfg.ErrorRate) {
		return
	}
	rule := cfg.ErrorRules[b.intn(len(cfg.ErrorRules))]
	b.raiseFor(&epoch, rule.ErrorType, rule.Operation, true)
}

// raise emits an error event. A connectionLost error also drops the
// connection.
func (b *base) raise(errType, operation string, simulated bool) {
	b.raiseFor(nil, errType, operation, simulated)
}

// raiseFor is raise bound to a connection epoch. When epoch is set and the
// device has since disconnected or reconnected, nothing is emitted.
func (b *base) raiseFor(epoch *uint64, errType, operation string, simulated bool) {
	payload := model.Payload{
		"type":      errType,
		"message":   ErrorMessage(errType),
		"simulated": simulated,
	}
	if operation != "" {
		payload["operation"] = operation
	}
	b.mu.Lock()
	if epoch != nil && (b.epoch != *epoch || b.state != connection.StateConnected) {
		b.mu.Unlock()
		return
	}
	connected := b.state != connection.StateDisconnected
	b.mu.Unlock()

	b.debugLog("fault raised", "errorType", errType, "simulated", simulated)
	if errType == ErrTypeConnectionLost && connected {
		b.dropFor(epoch, ErrTypeConnectionLost, &emission{name: model.EventError, payload: payload})
		return
	}
	b.emit(model.EventError, payload)
}

func (b *base) TriggerExternalEvent(eventType string, data map[string]any) error {
	switch eventType {
	case "error":
		errType, _ := data["type"].(string)
		if errType == "" {
			errType = ErrTypeGeneric
		}
		op, _ := data["operation"].(string)
		b.raise(errType, op, false)
		return nil
	case "disconnect", ErrTypeConnectionLost:
		b.raise(ErrTypeConnectionLost, OpConnection, false)
		return nil
	}

	b.mu.Lock()
	events, ok := b.v.external(eventType, data)
	b.mu.Unlock()
	if !ok {
		return &UnknownEventError{DeviceType: b.typ, EventType: eventType}
	}
	b.debugLog("external event", "eventType", eventType)
	b.emitAll(events)
	return nil
}

// opContext is captured when an operation starts.
type opContext struct {
	epoch uint64
	cfg   Config
}

// begin checks the connection and captures the epoch.
func (b *base) begin(op string) (opContext, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state != connection.StateConnected {
		return opContext{}, fmt.Errorf("%s %s: %s: %w", b.typ, b.id, op, ErrNotConnected)
	}
	return opContext{epoch: b.epoch, cfg: b.cfg.clone()}, nil
}

// await waits the response delay and rolls the operation's error rate. On
// failure the failure event (if any) is emitted and an OperationError is
// returned.
func (b *base) await(ctx context.Context, oc opContext, op string, failure model.EventName) error {
	if err := b.sched.Sleep(ctx, b.responseDelay(oc.cfg)); err != nil {
		return err
	}
	if !b.roll(oc.cfg.RateFor(op)) {
		return nil
	}
	errType := b.pick(oc.cfg.errorTypesFor(op, ErrTypeConnectionLost), ErrTypeGeneric)
	return b.refuse(op, errType, failure)
}

// refuse builds an OperationError and emits the failure event.
func (b *base) refuse(op, errType string, failure model.EventName) error {
	oerr := &OperationError{
		DeviceID:   b.id,
		DeviceType: b.typ,
		Operation:  op,
		ErrorType:  errType,
		Message:    ErrorMessage(errType),
	}
	b.debugLog("operation failed", "operation", op, "errorType", errType)
	if failure != "" {
		b.emit(failure, model.Payload{"type": errType, "message": oerr.Message, "operation": op})
	}
	return oerr
}

// commit runs fn under the lock if the operation's epoch is still current.
// It returns false for stale completions.
func (b *base) commit(oc opContext, op string, fn func()) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.epoch != oc.epoch || b.state != connection.StateConnected {
		b.debugLog("stale completion discarded", "operation", op)
		return false
	}
	fn()
	return true
}

// read runs fn under the lock.
func (b *base) read(fn func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	fn()
}

func (b *base) emit(name model.EventName, payload model.Payload) {
	ev := model.NewEvent(b.typ, b.id, name, payload, b.sched.Now())

	b.listenerMu.RLock()
	fns := make([]func(model.Event), 0, len(b.listeners))
	for id := uint64(0); id < b.nextListener; id++ {
		if fn, ok := b.listeners[id]; ok {
			fns = append(fns, fn)
		}
	}
	b.listenerMu.RUnlock()

	for _, fn := range fns {
		fn(ev)
	}
}

func (b *base) emitAll(events []emission) {
	for _, e := range events {
		b.emit(e.name, e.payload)
	}
}

func (b *base) responseDelay(cfg Config) time.Duration {
	spread := cfg.MaxResponseDelay - cfg.MinResponseDelay
	if spread <= 0 {
		return cfg.MinResponseDelay
	}
	return cfg.MinResponseDelay + time.Duration(b.int63n(int64(spread)+1))
}

// roll reports whether an event with the given percentage fires.
func (b *base) roll(percent float64) bool {
	if percent <= 0 {
		return false
	}
	if percent >= 100 {
		return true
	}
	b.rngMu.Lock()
	defer b.rngMu.Unlock()
	return b.rng.Float64() < percent/100
}

func (b *base) pick(choices []string, fallback string) string {
	if len(choices) == 0 {
		return fallback
	}
	return choices[b.intn(len(choices))]
}

func (b *base) intn(n int) int {
	b.rngMu.Lock()
	defer b.rngMu.Unlock()
	return b.rng.Intn(n)
}

func (b *base) int63n(n int64) int64 {
	b.rngMu.Lock()
	defer b.rngMu.Unlock()
	return b.rng.Int63n(n)
}

func (b *base) debugLog(msg string, args ...any) {
	if b.logger != nil {
		b.logger.Debug(msg, append([]any{"device", b.id, "type", string(b.typ)}, args...)...)
	}
}
