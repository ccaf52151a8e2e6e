package flow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/wendylw/mock-driven-testing-sub001/pkg/clock"
	"github.com/wendylw/mock-driven-testing-sub001/pkg/history"
	"github.com/wendylw/mock-driven-testing-sub001/pkg/metrics"
	"github.com/wendylw/mock-driven-testing-sub001/pkg/model"
	"github.com/wendylw/mock-driven-testing-sub001/pkg/statestore"
)

// Flow errors.
var (
	ErrEmptyFlow        = errors.New("flow has no steps")
	ErrDuplicateFlow    = errors.New("flow already registered")
	ErrFlowNotFound     = errors.New("flow not found")
	ErrInstanceNotFound = errors.New("flow instance not found")
)

// Status is the lifecycle stage of a flow instance.
type Status string

// Instance statuses. Transitions only go forward.
const (
	StatusStarted    Status = "started"
	StatusInProgress Status = "inProgress"
	StatusCompleted  Status = "completed"
)

// Instance is one run of a flow.
type Instance struct {
	ID          string         `json:"id"`
	Flow        string         `json:"flow"`
	Status      Status         `json:"status"`
	CurrentStep int            `json:"currentStep"`
	Steps       []Step         `json:"steps"`
	Data        map[string]any `json:"data,omitempty"`
	StartedAt   time.Time      `json:"startedAt"`
	UpdatedAt   time.Time      `json:"updatedAt"`
	CompletedAt *time.Time     `json:"completedAt,omitempty"`
}

// TotalSteps returns the number of steps in the flow.
func (i *Instance) TotalSteps() int {
	return len(i.Steps)
}

// Step returns the step awaiting acknowledgement. The second result is
// false once the flow has completed.
func (i *Instance) Step() (Step, bool) {
	if i.CurrentStep >= len(i.Steps) {
		return Step{}, false
	}
	return i.Steps[i.CurrentStep], true
}

func (i *Instance) clone() *Instance {
	out := *i
	out.Steps = slices.Clone(i.Steps)
	out.Data = model.Payload(i.Data).Clone()
	if i.CompletedAt != nil {
		at := *i.CompletedAt
		out.CompletedAt = &at
	}
	return &out
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithStateStore persists instances under "flow/<id>".
func WithStateStore(s statestore.Store) Option {
	return func(o *Orchestrator) {
		o.store = s
	}
}

// WithScheduler sets the time source for instance timestamps.
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

// WithMetrics counts flow transitions.
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *Orchestrator) {
		o.metrics = m
	}
}

// WithRetention keeps at most n completed instances, evicting the oldest
// completion first. Active instances are never evicted. Zero keeps every
// instance until RemoveInstance is called.
func WithRetention(n int) Option {
	return func(o *Orchestrator) {
		if n >= 0 {
			o.retention = n
		}
	}
}

// Orchestrator registers flows and owns their instances.
type Orchestrator struct {
	hist      *history.History
	store     statestore.Store
	sched     clock.Scheduler
	logger    *slog.Logger
	metrics   *metrics.Metrics
	retention int

	mu        sync.Mutex
	storeMu   sync.Mutex // taken before mu is released, so writes land in mutation order
	flows     map[string]Definition
	instances map[string]*Instance
	completed []string // completed instance ids, oldest first
}

// New creates a flow orchestrator that publishes progress to hist.
func New(hist *history.History, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		hist:      hist,
		flows:     make(map[string]Definition),
		instances: make(map[string]*Instance),
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
	return o
}

// RegisterFlow registers a flow under name.
func (o *Orchestrator) RegisterFlow(name string, steps []Step) error {
	if len(steps) == 0 {
		return fmt.Errorf("%w: %s", ErrEmptyFlow, name)
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	if _, ok := o.flows[name]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateFlow, name)
	}
	o.flows[name] = Definition{Name: name, Steps: slices.Clone(steps)}
	return nil
}

// Register registers every definition. It stops at the first error.
func (o *Orchestrator) Register(defs ...Definition) error {
	for _, d := range defs {
		if err := o.RegisterFlow(d.Name, d.Steps); err != nil {
			return err
		}
		o.mu.Lock()
		def := o.flows[d.Name]
		def.Description = d.Description
		o.flows[d.Name] = def
		o.mu.Unlock()
	}
	return nil
}

// Flows returns the registered definitions sorted by name.
func (o *Orchestrator) Flows() []Definition {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]Definition, 0, len(o.flows))
	for _, d := range o.flows {
		d.Steps = slices.Clone(d.Steps)
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// StartFlow starts an instance of the named flow and announces its first
// step. It returns the instance id.
func (o *Orchestrator) StartFlow(ctx context.Context, name string, data map[string]any) (string, error) {
	o.mu.Lock()
	def, ok := o.flows[name]
	if !ok {
		o.mu.Unlock()
		return "", fmt.Errorf("%w: %s", ErrFlowNotFound, name)
	}
	now := o.sched.Now()
	inst := &Instance{
		ID:        uuid.NewString(),
		Flow:      name,
		Status:    StatusStarted,
		Steps:     slices.Clone(def.Steps),
		Data:      model.Payload(data).Clone(),
		StartedAt: now,
		UpdatedAt: now,
	}
	o.instances[inst.ID] = inst
	events := []model.Event{o.event(inst, model.EventFlowStarted, model.Payload{
		"flowId":     inst.ID,
		"flowName":   name,
		"totalSteps": len(inst.Steps),
		"data":       model.Payload(inst.Data).Clone(),
	})}
	events = append(events, o.executeStepLocked(inst)...)
	snap := inst.clone()
	evicted := o.evictLocked()
	o.storeMu.Lock()
	o.mu.Unlock()
	err := o.persist(ctx, snap, evicted)
	o.storeMu.Unlock()

	o.metrics.CountFlow(name, string(StatusStarted))
	o.debugLog("flow started", "flow", name, "id", inst.ID)
	o.publish(events)
	return inst.ID, err
}

// AdvanceFlow acknowledges the current step of an instance and announces
// the next one, or completes the flow after its last step. Advancing a
// completed instance does nothing.
func (o *Orchestrator) AdvanceFlow(ctx context.Context, id string) error {
	o.mu.Lock()
	inst, ok := o.instances[id]
	if !ok {
		o.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrInstanceNotFound, id)
	}
	if inst.Status == StatusCompleted {
		o.mu.Unlock()
		return nil
	}
	inst.CurrentStep++
	events := o.executeStepLocked(inst)
	snap := inst.clone()
	evicted := o.evictLocked()
	o.storeMu.Lock()
	o.mu.Unlock()
	err := o.persist(ctx, snap, evicted)
	o.storeMu.Unlock()

	o.publish(events)
	return err
}

// executeStepLocked announces the current step, or completes the instance
// when no steps remain. Caller holds mu.
func (o *Orchestrator) executeStepLocked(inst *Instance) []model.Event {
	now := o.sched.Now()
	inst.UpdatedAt = now

	step, ok := inst.Step()
	if !ok {
		inst.CurrentStep = len(inst.Steps)
		inst.Status = StatusCompleted
		inst.CompletedAt = &now
		o.completed = append(o.completed, inst.ID)
		o.metrics.CountFlow(inst.Flow, string(StatusCompleted))
		o.debugLog("flow completed", "flow", inst.Flow, "id", inst.ID)
		return []model.Event{o.event(inst, model.EventFlowCompleted, model.Payload{
			"flowId":   inst.ID,
			"flowName": inst.Flow,
			"data":     model.Payload(inst.Data).Clone(),
		})}
	}

	inst.Status = StatusInProgress
	return []model.Event{o.event(inst, model.EventFlowStep, model.Payload{
		"flowId":     inst.ID,
		"flowName":   inst.Flow,
		"step":       step.payload(),
		"stepIndex":  inst.CurrentStep,
		"totalSteps": len(inst.Steps),
	})}
}

// evictLocked applies the retention limit and returns the evicted ids.
func (o *Orchestrator) evictLocked() []string {
	if o.retention <= 0 || len(o.completed) <= o.retention {
		return nil
	}
	n := len(o.completed) - o.retention
	evicted := slices.Clone(o.completed[:n])
	o.completed = slices.Delete(o.completed, 0, n)
	for _, id := range evicted {
		delete(o.instances, id)
	}
	o.debugLog("flow instances evicted", "count", n)
	return evicted
}

// Instance returns a copy of an instance.
func (o *Orchestrator) Instance(id string) (*Instance, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	inst, ok := o.instances[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrInstanceNotFound, id)
	}
	return inst.clone(), nil
}

// Instances returns copies of every retained instance, oldest first.
func (o *Orchestrator) Instances() []*Instance {
	o.mu.Lock()
	out := make([]*Instance, 0, len(o.instances))
	for _, inst := range o.instances {
		out = append(out, inst.clone())
	}
	o.mu.Unlock()
	sort.Slice(out, func(i, j int) bool {
		if !out[i].StartedAt.Equal(out[j].StartedAt) {
			return out[i].StartedAt.Before(out[j].StartedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// RemoveInstance forgets an instance and deletes its persisted state.
func (o *Orchestrator) RemoveInstance(ctx context.Context, id string) error {
	o.mu.Lock()
	if _, ok := o.instances[id]; !ok {
		o.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrInstanceNotFound, id)
	}
	delete(o.instances, id)
	o.completed = slices.DeleteFunc(o.completed, func(x string) bool { return x == id })
	o.storeMu.Lock()
	defer o.storeMu.Unlock()
	o.mu.Unlock()

	if o.store == nil {
		return nil
	}
	return o.store.Delete(ctx, instanceKey(id))
}

// Restore loads instances persisted by a previous run. Instances already
// known are left untouched. It returns the number of instances loaded.
func (o *Orchestrator) Restore(ctx context.Context) (int, error) {
	if o.store == nil {
		return 0, nil
	}
	keys, err := o.store.Keys(ctx, keyPrefix)
	if err != nil {
		return 0, fmt.Errorf("list flow instances: %w", err)
	}

	var loaded []*Instance
	for _, key := range keys {
		var inst Instance
		if err := statestore.GetJSON(ctx, o.store, key, &inst); err != nil {
			return 0, fmt.Errorf("load %s: %w", key, err)
		}
		if inst.ID != strings.TrimPrefix(key, keyPrefix) {
			o.warnLog("skipping mismatched flow instance", "key", key, "id", inst.ID)
			continue
		}
		loaded = append(loaded, &inst)
	}
	sort.Slice(loaded, func(i, j int) bool {
		a, b := loaded[i].CompletedAt, loaded[j].CompletedAt
		if a == nil || b == nil {
			return b != nil
		}
		return a.Before(*b)
	})

	o.mu.Lock()
	n := 0
	for _, inst := range loaded {
		if _, ok := o.instances[inst.ID]; ok {
			continue
		}
		o.instances[inst.ID] = inst
		if inst.Status == StatusCompleted {
			o.completed = append(o.completed, inst.ID)
		}
		n++
	}
	evicted := o.evictLocked()
	o.storeMu.Lock()
	defer o.storeMu.Unlock()
	o.mu.Unlock()

	for _, id := range evicted {
		if err := o.store.Delete(ctx, instanceKey(id)); err != nil {
			return n, err
		}
	}
	return n, nil
}

const keyPrefix = "flow/"

func instanceKey(id string) string {
	return keyPrefix + id
}

func (o *Orchestrator) persist(ctx context.Context, inst *Instance, evicted []string) error {
	if o.store == nil {
		return nil
	}
	var errs []error
	if !slices.Contains(evicted, inst.ID) {
		if err := statestore.PutJSON(ctx, o.store, instanceKey(inst.ID), inst); err != nil {
			errs = append(errs, fmt.Errorf("save flow instance: %w", err))
		}
	}
	for _, id := range evicted {
		if err := o.store.Delete(ctx, instanceKey(id)); err != nil {
			errs = append(errs, fmt.Errorf("delete flow instance: %w", err))
		}
	}
	return errors.Join(errs...)
}

func (o *Orchestrator) event(inst *Instance, name model.EventName, payload model.Payload) model.Event {
	return model.NewEvent(model.Flow, inst.ID, name, payload, o.sched.Now())
}

func (o *Orchestrator) publish(events []model.Event) {
	for _, e := range events {
		o.hist.Append(e)
	}
}

func (o *Orchestrator) debugLog(msg string, args ...any) {
	if o.logger != nil {
		o.logger.Debug(msg, args...)
	}
}

func (o *Orchestrator) warnLog(msg string, args ...any) {
	if o.logger != nil {
		o.logger.Warn(msg, args...)
	}
}
