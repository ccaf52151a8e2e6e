package device

import (
	"context"

	"github.com/wendylw/mock-driven-testing-sub001/pkg/model"
)

// WeightUnit is the unit of every reading.
const WeightUnit = "kg"

// ScaleState is the operational state of a weighing scale. Weight is net of
// any tare.
type ScaleState struct {
	Weight float64 `json:"weight"`
	Stable bool    `json:"stable"`
	Tared  bool    `json:"tared"`
}

// WeightResult is returned by GetWeight.
type WeightResult struct {
	Completion
	Weight float64 `json:"weight"`
	Unit   string  `json:"unit"`
	Stable bool    `json:"stable"`
}

// Scale simulates a checkout scale.
type Scale struct {
	*base
	st       ScaleState
	gross    float64
	tare     float64
	reported float64
}

// NewScale creates a disconnected, empty scale.
func NewScale(id string, opts ...Option) (*Scale, error) {
	b, err := newBase(id, model.Scale, opts)
	if err != nil {
		return nil, err
	}
	s := &Scale{base: b}
	b.v = s
	s.resetState()
	return s, nil
}

func (s *Scale) resetState() {
	s.st = ScaleState{Stable: true}
	s.gross, s.tare, s.reported = 0, 0, 0
}

func (s *Scale) snapshot() any {
	return s.st
}

// State returns the scale's operational state.
func (s *Scale) State() ScaleState {
	var st ScaleState
	s.read(func() { st = s.st })
	return st
}

// GetWeight takes a reading. A reading that differs from the previous one
// also emits weightChanged.
func (s *Scale) GetWeight(ctx context.Context) (WeightResult, error) {
	oc, err := s.begin(OpWeigh)
	if err != nil {
		return WeightResult{}, err
	}
	if err := s.await(ctx, oc, OpWeigh, model.EventError); err != nil {
		return WeightResult{}, err
	}

	var (
		res      WeightResult
		previous float64
		changed  bool
	)
	ok := s.commit(oc, OpWeigh, func() {
		res = WeightResult{Weight: s.st.Weight, Unit: WeightUnit, Stable: s.st.Stable}
		previous = s.reported
		changed = s.reported != s.st.Weight
		s.reported = s.st.Weight
	})
	if !ok {
		return WeightResult{Completion: Completion{Stale: true}, Unit: WeightUnit}, nil
	}
	s.emit(model.EventWeightReading, model.Payload{"weight": res.Weight, "unit": WeightUnit, "stable": res.Stable})
	if changed {
		s.emit(model.EventWeightChanged, model.Payload{"weight": res.Weight, "previous": previous, "unit": WeightUnit})
	}
	return res, nil
}

// Tare zeroes the display with the current load as the tare weight.
func (s *Scale) Tare(ctx context.Context) (Completion, error) {
	oc, err := s.begin(OpTare)
	if err != nil {
		return Completion{}, err
	}
	if err := s.await(ctx, oc, OpTare, model.EventError); err != nil {
		return Completion{}, err
	}
	var tare float64
	ok := s.commit(oc, OpTare, func() {
		s.tare = s.gross
		s.st.Weight = 0
		s.st.Tared = true
		tare = s.tare
	})
	if !ok {
		return Completion{Stale: true}, nil
	}
	s.emit(model.EventTared, model.Payload{"tare": tare, "unit": WeightUnit})
	return Completion{}, nil
}

// Zero clears the tare and recalibrates the empty platform.
func (s *Scale) Zero(ctx context.Context) (Completion, error) {
	oc, err := s.begin(OpZero)
	if err != nil {
		return Completion{}, err
	}
	if err := s.await(ctx, oc, OpZero, model.EventError); err != nil {
		return Completion{}, err
	}
	ok := s.commit(oc, OpZero, func() {
		s.gross, s.tare = 0, 0
		s.st.Weight = 0
		s.st.Tared = false
	})
	if !ok {
		return Completion{Stale: true}, nil
	}
	s.emit(model.EventZeroed, model.Payload{})
	return Completion{}, nil
}

func (s *Scale) external(eventType string, data map[string]any) ([]emission, bool) {
	switch eventType {
	case "placeItem", "weightChanged":
		w, ok := numberArg(data, "weight")
		if !ok {
			w = 0.5
		}
		previous := s.st.Weight
		s.gross = w
		s.st.Weight = s.gross - s.tare
		s.st.Stable = boolArg(data, "stable", true)
		return []emission{{model.EventWeightChanged, model.Payload{
			"weight":   s.st.Weight,
			"previous": previous,
			"stable":   s.st.Stable,
			"unit":     WeightUnit,
		}}}, true
	case "removeItem":
		previous := s.st.Weight
		s.gross = 0
		s.st.Weight = s.gross - s.tare
		s.st.Stable = true
		return []emission{{model.EventWeightChanged, model.Payload{
			"weight":   s.st.Weight,
			"previous": previous,
			"stable":   true,
			"unit":     WeightUnit,
		}}}, true
	case "unstable":
		s.st.Stable = false
		return []emission{{model.EventWeightChanged, model.Payload{"weight": s.st.Weight, "stable": false, "unit": WeightUnit}}}, true
	}
	return nil, false
}
