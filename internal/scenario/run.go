package scenario

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/wendylw/mock-driven-testing-sub001/pkg/clock"
	"github.com/wendylw/mock-driven-testing-sub001/pkg/device"
	"github.com/wendylw/mock-driven-testing-sub001/pkg/flow"
	"github.com/wendylw/mock-driven-testing-sub001/pkg/hardware"
	"github.com/wendylw/mock-driven-testing-sub001/pkg/history"
)

// Run is the state of one scenario execution.
type Run struct {
	Clock    *clock.Fake
	History  *history.History
	Hardware *hardware.Orchestrator
	Flows    *flow.Orchestrator

	tick, poll time.Duration
	origin     time.Time

	mu      sync.Mutex
	outputs map[string]any
	matches map[string]int
	detach  func()
}

func newRun(ctx context.Context, sc *Scenario, cfg *Config) (*Run, error) {
	fake := clock.NewFake()
	hist := history.New(history.WithScheduler(fake), history.WithLogger(cfg.Logger))

	r := &Run{
		Clock:    fake,
		History:  hist,
		Hardware: hardware.New(hist, hardware.WithScheduler(fake), hardware.WithLogger(cfg.Logger)),
		Flows:    flow.New(hist, flow.WithScheduler(fake), flow.WithLogger(cfg.Logger)),
		tick:     cfg.Tick,
		poll:     cfg.Poll,
		origin:   fake.Now(),
		outputs:  make(map[string]any),
		matches:  make(map[string]int),
	}
	r.detach = hist.OnPatternMatched(func(m history.Match) {
		r.mu.Lock()
		r.matches[m.Pattern]++
		r.mu.Unlock()
	})

	for _, p := range sc.Patterns {
		if err := hist.DefinePattern(p.Name, p.Sequence); err != nil {
			r.Close()
			return nil, err
		}
	}
	if err := r.Flows.Register(sc.Flows...); err != nil {
		r.Close()
		return nil, err
	}

	regs := make([]hardware.Registration, len(sc.Devices))
	for i, d := range sc.Devices {
		d.Config = quiet(d.Config)
		regs[i] = d
	}
	var errs []error
	for id, err := range r.Hardware.RegisterDevices(ctx, regs) {
		if err != nil {
			errs = append(errs, fmt.Errorf("device %s: %w", id, err))
		}
	}
	if err := errors.Join(errs...); err != nil {
		r.Close()
		return nil, err
	}
	return r, nil
}

// quiet fills unset config fields so a scenario device starts
// disconnected, answers without delay and never fails by itself.
func quiet(p device.ConfigPatch) device.ConfigPatch {
	zero := time.Duration(0)
	if p.MinResponseDelay == nil {
		p.MinResponseDelay = &zero
	}
	if p.MaxResponseDelay == nil {
		p.MaxResponseDelay = p.MinResponseDelay
	}
	if p.ErrorCheckInterval == nil {
		p.ErrorCheckInterval = &zero
	}
	if p.ErrorRate == nil {
		p.ErrorRate = device.Rate(0)
	}
	if p.AutoConnect == nil {
		off := false
		p.AutoConnect = &off
	}
	return p
}

// Close releases every device of the run.
func (r *Run) Close() {
	r.detach()
	r.Hardware.Destroy()
}

// Elapsed returns how far virtual time has moved since the run started.
func (r *Run) Elapsed() time.Duration {
	return r.Clock.Now().Sub(r.origin)
}

// Matches returns how often a pattern matched during the run.
func (r *Run) Matches(pattern string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.matches[pattern]
}

// Get returns an output of an earlier step.
func (r *Run) Get(key string) (any, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.outputs[key]
	return v, ok
}

func (r *Run) set(key string, value any) {
	r.mu.Lock()
	r.outputs[key] = value
	r.mu.Unlock()
}

// pump runs fn while moving virtual time forward until it returns, so
// operations with configured response delays complete.
func (r *Run) pump(ctx context.Context, fn func() error) error {
	done := make(chan error, 1)
	go func() { done <- fn() }()

	ticker := time.NewTicker(r.poll)
	defer ticker.Stop()
	for {
		select {
		case err := <-done:
			return err
		case <-ctx.Done():
			return fmt.Errorf("operation did not complete: %w", ctx.Err())
		case <-ticker.C:
			r.Clock.Advance(r.tick)
		}
	}
}

// eventually polls check until it passes or ctx expires, returning the
// last failure.
func (r *Run) eventually(ctx context.Context, check func() error) error {
	ticker := time.NewTicker(r.poll)
	defer ticker.Stop()
	for {
		err := check()
		if err == nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return err
		case <-ticker.C:
		}
	}
}

// interpolate replaces "{{name}}" string parameters with outputs of
// earlier steps. Nested maps and lists are resolved as well.
func (r *Run) interpolate(params map[string]any) map[string]any {
	if params == nil {
		return nil
	}
	out := make(map[string]any, len(params))
	for k, v := range params {
		out[k] = r.resolve(v)
	}
	return out
}

func (r *Run) resolve(v any) any {
	switch val := v.(type) {
	case string:
		if strings.HasPrefix(val, "{{") && strings.HasSuffix(val, "}}") {
			if got, ok := r.Get(strings.TrimSpace(val[2 : len(val)-2])); ok {
				return got
			}
		}
		return val
	case map[string]any:
		return r.interpolate(val)
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = r.resolve(item)
		}
		return out
	}
	return v
}
