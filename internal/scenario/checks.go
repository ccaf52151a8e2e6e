package scenario

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/wendylw/mock-driven-testing-sub001/pkg/history"
	"github.com/wendylw/mock-driven-testing-sub001/pkg/model"
)

// handleExpectEvents waits until the history satisfies the expectation.
//
// The filter params device_type, device and event select events to count
// against count (exact) or min_count (default 1). A "sequence" list
// instead requires its entries to appear in order, not necessarily
// adjacent; each entry may carry a payload subset to match.
func handleExpectEvents(ctx context.Context, step *Step, run *Run) (map[string]any, error) {
	if raw, ok := step.Params["sequence"].([]any); ok {
		seq := make([]eventMatcher, 0, len(raw))
		for i, item := range raw {
			m, ok := item.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("sequence[%d]: expected a mapping", i)
			}
			seq = append(seq, newEventMatcher(m))
		}
		matched := 0
		err := run.eventually(ctx, func() error {
			matched = matchSequence(run.History.Query(history.Filter{}), seq)
			if matched == len(seq) {
				return nil
			}
			return fmt.Errorf("sequence stopped at entry %d (%s)", matched+1, seq[matched])
		})
		if err != nil {
			return nil, err
		}
		return map[string]any{"matched": matched}, nil
	}

	filter := history.Filter{
		DeviceType: model.DeviceType(stringParam(step.Params, "device_type")),
		DeviceID:   stringParam(step.Params, "device"),
		Name:       model.EventName(stringParam(step.Params, "event")),
	}
	exact, hasExact := intParam(step.Params, "count")
	least, hasLeast := intParam(step.Params, "min_count")
	if !hasExact && !hasLeast {
		least, hasLeast = 1, true
	}

	count := 0
	err := run.eventually(ctx, func() error {
		count = len(run.History.Query(filter))
		switch {
		case hasExact && count != exact:
			return fmt.Errorf("expected %d events, got %d", exact, count)
		case hasLeast && count < least:
			return fmt.Errorf("expected at least %d events, got %d", least, count)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return map[string]any{"count": count}, nil
}

type eventMatcher struct {
	deviceType model.DeviceType
	deviceID   string
	name       model.EventName
	payload    map[string]any
}

func newEventMatcher(m map[string]any) eventMatcher {
	return eventMatcher{
		deviceType: model.DeviceType(stringParam(m, "device_type")),
		deviceID:   stringParam(m, "device"),
		name:       model.EventName(stringParam(m, "event")),
		payload:    mapParam(m, "payload"),
	}
}

func (m eventMatcher) String() string {
	return model.Topic{DeviceType: m.deviceType, Name: m.name}.String()
}

func (m eventMatcher) matches(e model.Event) bool {
	if m.deviceType != "" && e.DeviceType() != m.deviceType {
		return false
	}
	if m.deviceID != "" && e.DeviceID() != m.deviceID {
		return false
	}
	if m.name != "" && e.Name() != m.name {
		return false
	}
	for k, want := range m.payload {
		got, ok := e.Value(k)
		if !ok || !equalValues(want, got) {
			return false
		}
	}
	return true
}

// matchSequence returns how many leading entries of seq occur in order.
func matchSequence(events []model.Event, seq []eventMatcher) int {
	n := 0
	for _, e := range events {
		if n == len(seq) {
			break
		}
		if seq[n].matches(e) {
			n++
		}
	}
	return n
}

func handleExpectPattern(ctx context.Context, step *Step, run *Run) (map[string]any, error) {
	name := stringParam(step.Params, "pattern")
	if name == "" {
		return nil, errors.New("pattern is required")
	}
	exact, hasExact := intParam(step.Params, "count")

	got := 0
	err := run.eventually(ctx, func() error {
		got = run.Matches(name)
		switch {
		case hasExact && got != exact:
			return fmt.Errorf("pattern %s matched %d times, expected %d", name, got, exact)
		case !hasExact && got == 0:
			return fmt.Errorf("pattern %s did not match", name)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return map[string]any{"matches": got}, nil
}

// handleExpectStatus compares the device status. "state" is a subset of
// the variant state, e.g. {paperLevel: 100}.
func handleExpectStatus(ctx context.Context, step *Step, run *Run) (map[string]any, error) {
	id, err := requireDevice(step.Params)
	if err != nil {
		return nil, err
	}

	var out map[string]any
	err = run.eventually(ctx, func() error {
		st, err := run.Hardware.DeviceStatus(id)
		if err != nil {
			return err
		}
		norm, err := normalize(st)
		if err != nil {
			return err
		}
		out, _ = norm.(map[string]any)

		if want, ok := step.Params["connected"]; ok && !equalValues(want, st.Connected) {
			return fmt.Errorf("connected: expected %v, got %v", want, st.Connected)
		}
		if want := stringParam(step.Params, "connection_state"); want != "" && !strings.EqualFold(want, st.ConnectionState.String()) {
			return fmt.Errorf("connection_state: expected %s, got %s", want, st.ConnectionState)
		}
		state, _ := out["state"].(map[string]any)
		for k, want := range mapParam(step.Params, "state") {
			if got, ok := state[k]; !ok || !equalValues(want, got) {
				return fmt.Errorf("state.%s: expected %v, got %v", k, want, got)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return map[string]any{"status": out}, nil
}

// checkOutput checks one step expectation against the step outputs. Keys
// may address nested values with dots. The value "present" only requires
// the key to exist.
func checkOutput(key string, expected any, outputs map[string]any) *ExpectResult {
	actual, exists := lookup(outputs, key)
	if !exists {
		return &ExpectResult{
			Key:      key,
			Expected: expected,
			Passed:   false,
			Message:  fmt.Sprintf("key %q not found in outputs", key),
		}
	}

	if s, ok := expected.(string); ok && s == "present" {
		return &ExpectResult{
			Key:      key,
			Expected: expected,
			Actual:   actual,
			Passed:   true,
			Message:  fmt.Sprintf("%s = %v", key, actual),
		}
	}

	result := &ExpectResult{
		Key:      key,
		Expected: expected,
		Actual:   actual,
		Passed:   equalValues(expected, actual),
	}
	if result.Passed {
		result.Message = fmt.Sprintf("%s = %v", key, expected)
	} else {
		result.Message = fmt.Sprintf("expected %v, got %v", expected, actual)
	}
	return result
}

func lookup(outputs map[string]any, key string) (any, bool) {
	if v, ok := outputs[key]; ok {
		return v, true
	}
	var cur any = outputs
	for _, part := range strings.Split(key, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		if cur, ok = m[part]; !ok {
			return nil, false
		}
	}
	return cur, true
}

// equalValues compares YAML and JSON decoded values by their printed
// form, so 3 (int) equals 3 (float64).
func equalValues(expected, actual any) bool {
	return fmt.Sprintf("%v", expected) == fmt.Sprintf("%v", actual)
}
