package scenario

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Config configures the scenario engine.
type Config struct {
	// DefaultTimeout is the wall-clock limit for a scenario without its own.
	DefaultTimeout time.Duration

	// StepTimeout is the wall-clock limit for a step without its own. Event
	// expectations keep polling until it expires.
	StepTimeout time.Duration

	// Tick is how far virtual time moves each time a blocked device
	// operation is pumped.
	Tick time.Duration

	// Poll is the wall-clock interval between pumps and expectation checks.
	Poll time.Duration

	// StopOnFirstFailure stops RunSuite after the first failed scenario.
	StopOnFirstFailure bool

	// Logger receives device and orchestrator logs of every run. Nil
	// disables logging.
	Logger *slog.Logger

	// OnResult is called after each scenario completes in RunSuite.
	OnResult func(*Result)
}

// DefaultConfig returns the default engine configuration.
func DefaultConfig() *Config {
	return &Config{
		DefaultTimeout: 30 * time.Second,
		StepTimeout:    2 * time.Second,
		Tick:           10 * time.Millisecond,
		Poll:           time.Millisecond,
	}
}

// Handler executes a step action. It returns outputs to make available to
// expectations and later steps.
type Handler func(ctx context.Context, step *Step, run *Run) (map[string]any, error)

// Engine executes scenarios.
type Engine struct {
	config   *Config
	handlers map[string]Handler
	mu       sync.RWMutex
}

// New creates an engine with the built-in actions registered.
func New(config *Config) *Engine {
	if config == nil {
		config = DefaultConfig()
	}
	e := &Engine{
		config:   config,
		handlers: make(map[string]Handler),
	}
	for name, h := range builtinHandlers() {
		e.handlers[name] = h
	}
	return e
}

// RegisterHandler adds or replaces an action handler.
func (e *Engine) RegisterHandler(action string, handler Handler) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.handlers[action] = handler
}

// Run executes a single scenario against a fresh set of devices.
func (e *Engine) Run(ctx context.Context, sc *Scenario) *Result {
	result := &Result{Scenario: sc}
	start := time.Now()
	defer func() { result.Duration = time.Since(start) }()

	timeout := e.config.DefaultTimeout
	if sc.Timeout != "" {
		if d, err := time.ParseDuration(sc.Timeout); err == nil {
			timeout = d
		}
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	run, err := newRun(runCtx, sc, e.config)
	if err != nil {
		result.Error = fmt.Errorf("setup failed: %w", err)
		return result
	}
	defer run.Close()

	result.Passed = true
	for i := range sc.Steps {
		sr := e.executeStep(runCtx, &sc.Steps[i], i, run)
		result.StepResults = append(result.StepResults, sr)
		if !sr.Passed {
			result.Passed = false
			result.Error = fmt.Errorf("step %d (%s): %w", i+1, sr.Step.Action, sr.Error)
			break
		}
	}

	result.VirtualElapsed = run.Elapsed()
	result.Events = run.History.Len()
	return result
}

func (e *Engine) executeStep(ctx context.Context, step *Step, index int, run *Run) *StepResult {
	result := &StepResult{
		Step:          step,
		StepIndex:     index,
		ExpectResults: make(map[string]*ExpectResult),
		Output:        make(map[string]any),
	}
	start := time.Now()
	defer func() { result.Duration = time.Since(start) }()

	timeout := e.config.StepTimeout
	if step.Timeout != "" {
		if d, err := time.ParseDuration(step.Timeout); err == nil {
			timeout = d
		}
	}
	stepCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	e.mu.RLock()
	handler, ok := e.handlers[step.Action]
	e.mu.RUnlock()
	if !ok {
		result.Error = fmt.Errorf("unknown action: %s", step.Action)
		return result
	}

	resolved := *step
	resolved.Params = run.interpolate(step.Params)
	outputs, err := handler(stepCtx, &resolved, run)
	if err != nil {
		result.Error = err
		return result
	}
	for k, v := range outputs {
		run.set(k, v)
		result.Output[k] = v
	}

	result.Passed = true
	for key, expected := range step.Expect {
		er := checkOutput(key, expected, result.Output)
		result.ExpectResults[key] = er
		if !er.Passed {
			result.Passed = false
			result.Error = fmt.Errorf("expectation failed: %s - %s", key, er.Message)
		}
	}
	return result
}

// RunSuite executes scenarios in order.
func (e *Engine) RunSuite(ctx context.Context, name string, scenarios []*Scenario) *SuiteResult {
	result := &SuiteResult{Name: name}
	start := time.Now()
	defer func() { result.Duration = time.Since(start) }()

	for _, sc := range scenarios {
		if ctx.Err() != nil {
			return result
		}

		r := e.Run(ctx, sc)
		result.Results = append(result.Results, r)
		if r.Passed {
			result.PassCount++
		} else {
			result.FailCount++
		}

		if e.config.OnResult != nil {
			e.config.OnResult(r)
		}
		if !r.Passed && e.config.StopOnFirstFailure {
			break
		}
	}
	return result
}
