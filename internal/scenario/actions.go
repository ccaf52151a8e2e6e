package scenario

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/wendylw/mock-driven-testing-sub001/pkg/device"
	"github.com/wendylw/mock-driven-testing-sub001/pkg/hardware"
	"github.com/wendylw/mock-driven-testing-sub001/pkg/history"
	"github.com/wendylw/mock-driven-testing-sub001/pkg/model"
)

// Built-in action names.
const (
	ActionConnect       = "connect"
	ActionDisconnect    = "disconnect"
	ActionReset         = "reset"
	ActionOperate       = "operate"
	ActionTrigger       = "trigger"
	ActionSimulate      = "simulate"
	ActionAdvance       = "advance"
	ActionStartFlow     = "start_flow"
	ActionAdvanceFlow   = "advance_flow"
	ActionClearHistory  = "clear_history"
	ActionExpectEvents  = "expect_events"
	ActionExpectPattern = "expect_pattern"
	ActionExpectStatus  = "expect_status"
)

func builtinHandlers() map[string]Handler {
	return map[string]Handler{
		ActionConnect:       handleConnect,
		ActionDisconnect:    handleDisconnect,
		ActionReset:         handleReset,
		ActionOperate:       handleOperate,
		ActionTrigger:       handleTrigger,
		ActionSimulate:      handleSimulate,
		ActionAdvance:       handleAdvance,
		ActionStartFlow:     handleStartFlow,
		ActionAdvanceFlow:   handleAdvanceFlow,
		ActionClearHistory:  handleClearHistory,
		ActionExpectEvents:  handleExpectEvents,
		ActionExpectPattern: handleExpectPattern,
		ActionExpectStatus:  handleExpectStatus,
	}
}

func stringParam(params map[string]any, key string) string {
	s, _ := params[key].(string)
	return s
}

func intParam(params map[string]any, key string) (int, bool) {
	switch n := params[key].(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	}
	return 0, false
}

func boolParam(params map[string]any, key string) bool {
	b, _ := params[key].(bool)
	return b
}

// durationParam accepts Go duration strings or a number of milliseconds.
func durationParam(params map[string]any, key string) (time.Duration, error) {
	switch v := params[key].(type) {
	case nil:
		return 0, fmt.Errorf("%s is required", key)
	case string:
		return time.ParseDuration(v)
	case int:
		return time.Duration(v) * time.Millisecond, nil
	case float64:
		return time.Duration(v * float64(time.Millisecond)), nil
	}
	return 0, fmt.Errorf("%s: unsupported value %v", key, params[key])
}

func mapParam(params map[string]any, key string) map[string]any {
	m, _ := params[key].(map[string]any)
	return m
}

func requireDevice(params map[string]any) (string, error) {
	id := stringParam(params, "device")
	if id == "" {
		return "", errors.New("device is required")
	}
	return id, nil
}

// batchOutputs turns a per-device error map into outputs and a joined
// error.
func batchOutputs(results map[string]error) (map[string]any, error) {
	failed := 0
	var errs []error
	for id, err := range results {
		if err != nil {
			failed++
			errs = append(errs, fmt.Errorf("%s: %w", id, err))
		}
	}
	return map[string]any{"devices": len(results), "failed": failed}, errors.Join(errs...)
}

func handleConnect(ctx context.Context, step *Step, run *Run) (map[string]any, error) {
	if boolParam(step.Params, "all") {
		var results map[string]error
		err := run.pump(ctx, func() error {
			results = run.Hardware.ConnectAllDevices(ctx)
			return nil
		})
		if err != nil {
			return nil, err
		}
		return batchOutputs(results)
	}
	id, err := requireDevice(step.Params)
	if err != nil {
		return nil, err
	}
	err = run.pump(ctx, func() error { return run.Hardware.ConnectDevice(ctx, id) })
	if err != nil && !boolParam(step.Params, "allow_error") {
		return nil, err
	}
	return map[string]any{"connected": err == nil, "error": errorType(err)}, nil
}

func handleDisconnect(_ context.Context, step *Step, run *Run) (map[string]any, error) {
	if boolParam(step.Params, "all") {
		return batchOutputs(run.Hardware.DisconnectAllDevices())
	}
	id, err := requireDevice(step.Params)
	if err != nil {
		return nil, err
	}
	if err := run.Hardware.DisconnectDevice(id); err != nil {
		return nil, err
	}
	return map[string]any{"connected": false}, nil
}

func handleReset(_ context.Context, step *Step, run *Run) (map[string]any, error) {
	if boolParam(step.Params, "all") {
		return batchOutputs(run.Hardware.ResetAllDevices())
	}
	id, err := requireDevice(step.Params)
	if err != nil {
		return nil, err
	}
	return nil, run.Hardware.ResetDevice(id)
}

// handleOperate runs a capability action. Parameters other than device,
// op and allow_error are passed to the action. A refused operation fails
// the step unless allow_error is set; its error type is output as "error".
func handleOperate(ctx context.Context, step *Step, run *Run) (map[string]any, error) {
	id, err := requireDevice(step.Params)
	if err != nil {
		return nil, err
	}
	op := stringParam(step.Params, "op")
	if op == "" {
		return nil, errors.New("op is required")
	}

	params := hardware.Params{}
	for k, v := range step.Params {
		switch k {
		case "device", "op", "allow_error":
		default:
			params[k] = v
		}
	}

	var res any
	err = run.pump(ctx, func() error {
		var opErr error
		res, opErr = run.Hardware.Operate(ctx, id, op, params)
		return opErr
	})
	if err != nil && !boolParam(step.Params, "allow_error") {
		return nil, err
	}

	out := map[string]any{"error": errorType(err)}
	if res != nil {
		normalized, nerr := normalize(res)
		if nerr != nil {
			return nil, nerr
		}
		out["result"] = normalized
	}
	return out, nil
}

// errorType returns the device error type of err, its message for other
// errors, or "" for nil.
func errorType(err error) string {
	if err == nil {
		return ""
	}
	var opErr *device.OperationError
	if errors.As(err, &opErr) {
		return opErr.ErrorType
	}
	var connErr *device.ConnectionError
	if errors.As(err, &connErr) {
		return connErr.ErrorType
	}
	return err.Error()
}

// normalize converts a typed value to the generic form expectations compare
// against.
func normalize(v any) (any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode result: %w", err)
	}
	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("decode result: %w", err)
	}
	return out, nil
}

func handleTrigger(_ context.Context, step *Step, run *Run) (map[string]any, error) {
	id, err := requireDevice(step.Params)
	if err != nil {
		return nil, err
	}
	event := stringParam(step.Params, "event")
	if event == "" {
		return nil, errors.New("event is required")
	}
	return nil, run.Hardware.TriggerDeviceEvent(id, event, mapParam(step.Params, "data"))
}

// handleSimulate appends a simulated event, or a sequence of them when
// "sequence" is given. Sequence delays advance virtual time.
func handleSimulate(ctx context.Context, step *Step, run *Run) (map[string]any, error) {
	if raw, ok := step.Params["sequence"].([]any); ok {
		seq := make([]history.SimulatedEvent, 0, len(raw))
		for i, item := range raw {
			m, ok := item.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("sequence[%d]: expected a mapping", i)
			}
			se, err := simulatedEvent(m)
			if err != nil {
				return nil, fmt.Errorf("sequence[%d]: %w", i, err)
			}
			if _, has := m["delay"]; has {
				if se.Delay, err = durationParam(m, "delay"); err != nil {
					return nil, fmt.Errorf("sequence[%d]: %w", i, err)
				}
			}
			seq = append(seq, se)
		}
		var appended []model.Event
		err := run.pump(ctx, func() error {
			var serr error
			appended, serr = run.History.SimulateEventSequence(ctx, seq)
			return serr
		})
		if err != nil {
			return nil, err
		}
		return map[string]any{"simulated": len(appended)}, nil
	}

	se, err := simulatedEvent(step.Params)
	if err != nil {
		return nil, err
	}
	e := run.History.SimulateEvent(se.DeviceType, se.Name, withDeviceID(se))
	return map[string]any{"simulated": 1, "event_id": e.ID()}, nil
}

func simulatedEvent(m map[string]any) (history.SimulatedEvent, error) {
	t, err := model.ParseDeviceType(stringParam(m, "device_type"))
	if err != nil {
		return history.SimulatedEvent{}, err
	}
	name := stringParam(m, "event")
	if name == "" {
		return history.SimulatedEvent{}, errors.New("event is required")
	}
	return history.SimulatedEvent{
		DeviceType: t,
		DeviceID:   stringParam(m, "device"),
		Name:       model.EventName(name),
		Payload:    model.Payload(mapParam(m, "payload")),
	}, nil
}

func withDeviceID(se history.SimulatedEvent) model.Payload {
	p := se.Payload.Clone()
	if se.DeviceID != "" {
		p["deviceId"] = se.DeviceID
	}
	return p
}

// handleAdvance moves virtual time. With "waiters" it first waits until
// that many timers are pending, so that a timer armed by a background
// goroutine is not skipped.
func handleAdvance(ctx context.Context, step *Step, run *Run) (map[string]any, error) {
	d, err := durationParam(step.Params, "duration")
	if err != nil {
		return nil, err
	}
	if d < 0 {
		return nil, fmt.Errorf("duration %s is negative", d)
	}
	if n, ok := intParam(step.Params, "waiters"); ok && n > 0 {
		blocked := make(chan struct{})
		go func() {
			run.Clock.BlockUntil(n)
			close(blocked)
		}()
		select {
		case <-blocked:
		case <-ctx.Done():
			return nil, fmt.Errorf("waiting for %d timers: %w", n, ctx.Err())
		}
	}
	run.Clock.Advance(d)
	return map[string]any{"elapsed": run.Elapsed().String()}, nil
}

func handleStartFlow(ctx context.Context, step *Step, run *Run) (map[string]any, error) {
	name := stringParam(step.Params, "flow")
	if name == "" {
		return nil, errors.New("flow is required")
	}
	id, err := run.Flows.StartFlow(ctx, name, mapParam(step.Params, "data"))
	if err != nil {
		return nil, err
	}
	out := map[string]any{"flow_id": id}
	if as := stringParam(step.Params, "save_as"); as != "" {
		out[as] = id
	}
	return out, nil
}

func handleAdvanceFlow(ctx context.Context, step *Step, run *Run) (map[string]any, error) {
	id := stringParam(step.Params, "flow_id")
	if id == "" {
		return nil, errors.New("flow_id is required")
	}
	times, ok := intParam(step.Params, "times")
	if !ok || times < 1 {
		times = 1
	}
	for i := 0; i < times; i++ {
		if err := run.Flows.AdvanceFlow(ctx, id); err != nil {
			return nil, err
		}
	}
	inst, err := run.Flows.Instance(id)
	if err != nil {
		return nil, err
	}
	return map[string]any{"status": string(inst.Status), "current_step": inst.CurrentStep}, nil
}

func handleClearHistory(_ context.Context, _ *Step, run *Run) (map[string]any, error) {
	run.History.Clear()
	return nil, nil
}
