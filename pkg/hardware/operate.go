package hardware

import (
	"context"
	"fmt"

	"github.com/wendylw/mock-driven-testing-sub001/pkg/device"
	"github.com/wendylw/mock-driven-testing-sub001/pkg/model"
)

// Params carries the arguments of a device action.
type Params map[string]any

func (p Params) str(key string) string {
	s, _ := p[key].(string)
	return s
}

func (p Params) number(key string) (float64, bool) {
	switch n := p[key].(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case int32:
		return float64(n), true
	case uint64:
		return float64(n), true
	}
	return 0, false
}

func (p Params) boolean(key string) bool {
	b, _ := p[key].(bool)
	return b
}

var actions = map[model.DeviceType][]string{
	model.Printer:    {"print"},
	model.Scanner:    {"startScanning", "stopScanning", "scan", "torch"},
	model.NFCReader:  {"enable", "disable", "readTag", "writeTag"},
	model.CashDrawer: {"open", "close", "lock", "unlock"},
	model.CardReader: {"readCard", "ejectCard", "processPayment"},
	model.Scale:      {"getWeight", "tare", "zero"},
}

// Actions returns the capability actions a device type supports.
func Actions(t model.DeviceType) []string {
	return append([]string(nil), actions[t]...)
}

// Operate runs a capability action on a device by name and returns the
// operation result. It is the dynamic entry point used by scripted
// scenarios and remote control surfaces; Go callers can use the typed
// accessors instead.
func (o *Orchestrator) Operate(ctx context.Context, id, action string, params Params) (any, error) {
	en, err := o.lookup(id)
	if err != nil {
		return nil, err
	}

	start := o.sched.Now()
	var (
		res  any
		done device.Completion
	)
	switch sim := en.sim.(type) {
	case *device.Printer:
		res, done, err = operatePrinter(ctx, sim, action, params)
	case *device.Scanner:
		res, done, err = operateScanner(ctx, sim, action, params)
	case *device.NFCReader:
		res, done, err = operateNFC(ctx, sim, action, params)
	case *device.CashDrawer:
		res, done, err = operateDrawer(ctx, sim, action)
	case *device.CardReader:
		res, done, err = operateCardReader(ctx, sim, action, params)
	case *device.Scale:
		res, done, err = operateScale(ctx, sim, action)
	default:
		err = errUnknownAction(en.sim.Type(), action)
	}

	o.metrics.ObserveOperation(id, action, done.Stale, err, o.sched.Now().Sub(start))
	if err != nil {
		return nil, err
	}
	if done.Stale {
		o.debugLog("stale operation result", "device", id, "action", action)
	}
	return res, nil
}

func errUnknownAction(t model.DeviceType, action string) error {
	return fmt.Errorf("%w: %s has no %q", ErrUnknownAction, t, action)
}

func operatePrinter(ctx context.Context, p *device.Printer, action string, params Params) (any, device.Completion, error) {
	if action != "print" {
		return nil, device.Completion{}, errUnknownAction(model.Printer, action)
	}
	job := device.PrintJob{Text: params.str("text")}
	if n, ok := params.number("copies"); ok {
		job.Copies = int(n)
	}
	r, err := p.Print(ctx, job)
	return r, r.Completion, err
}

func operateScanner(ctx context.Context, s *device.Scanner, action string, params Params) (any, device.Completion, error) {
	switch action {
	case "startScanning":
		c, err := s.StartScanning(ctx)
		return c, c, err
	case "stopScanning":
		c, err := s.StopScanning(ctx)
		return c, c, err
	case "scan":
		r, err := s.Scan(ctx)
		return r, r.Completion, err
	case "torch":
		c, err := s.SetTorch(ctx, params.boolean("on"))
		return c, c, err
	}
	return nil, device.Completion{}, errUnknownAction(model.Scanner, action)
}

func operateNFC(ctx context.Context, n *device.NFCReader, action string, params Params) (any, device.Completion, error) {
	switch action {
	case "enable":
		c, err := n.Enable(ctx)
		return c, c, err
	case "disable":
		c, err := n.Disable(ctx)
		return c, c, err
	case "readTag":
		r, err := n.ReadTag(ctx)
		return r, r.Completion, err
	case "writeTag":
		r, err := n.WriteTag(ctx, params.str("data"))
		return r, r.Completion, err
	}
	return nil, device.Completion{}, errUnknownAction(model.NFCReader, action)
}

func operateDrawer(ctx context.Context, d *device.CashDrawer, action string) (any, device.Completion, error) {
	var fn func(context.Context) (device.Completion, error)
	switch action {
	case "open":
		fn = d.Open
	case "close":
		fn = d.Close
	case "lock":
		fn = d.Lock
	case "unlock":
		fn = d.Unlock
	default:
		return nil, device.Completion{}, errUnknownAction(model.CashDrawer, action)
	}
	c, err := fn(ctx)
	return c, c, err
}

func operateCardReader(ctx context.Context, c *device.CardReader, action string, params Params) (any, device.Completion, error) {
	switch action {
	case "readCard":
		r, err := c.ReadCard(ctx)
		return r, r.Completion, err
	case "ejectCard":
		r, err := c.EjectCard(ctx)
		return r, r, err
	case "processPayment":
		amount, ok := params.number("amount")
		if !ok {
			return nil, device.Completion{}, fmt.Errorf("%w: amount is required", device.ErrInvalidArgument)
		}
		r, err := c.ProcessPayment(ctx, int64(amount))
		return r, r.Completion, err
	}
	return nil, device.Completion{}, errUnknownAction(model.CardReader, action)
}

func operateScale(ctx context.Context, s *device.Scale, action string) (any, device.Completion, error) {
	switch action {
	case "getWeight":
		r, err := s.GetWeight(ctx)
		return r, r.Completion, err
	case "tare":
		c, err := s.Tare(ctx)
		return c, c, err
	case "zero":
		c, err := s.Zero(ctx)
		return c, c, err
	}
	return nil, device.Completion{}, errUnknownAction(model.Scale, action)
}

func typed[T device.Simulator](o *Orchestrator, id string, t model.DeviceType) (T, error) {
	var zero T
	sim, err := o.Device(id)
	if err != nil {
		return zero, err
	}
	v, ok := sim.(T)
	if !ok {
		return zero, fmt.Errorf("%w: %s is a %s, not a %s", ErrTypeMismatch, id, sim.Type(), t)
	}
	return v, nil
}

// Printer returns the printer registered under id.
func (o *Orchestrator) Printer(id string) (*device.Printer, error) {
	return typed[*device.Printer](o, id, model.Printer)
}

// Scanner returns the scanner registered under id.
func (o *Orchestrator) Scanner(id string) (*device.Scanner, error) {
	return typed[*device.Scanner](o, id, model.Scanner)
}

// NFCReader returns the NFC reader registered under id.
func (o *Orchestrator) NFCReader(id string) (*device.NFCReader, error) {
	return typed[*device.NFCReader](o, id, model.NFCReader)
}

// CashDrawer returns the cash drawer registered under id.
func (o *Orchestrator) CashDrawer(id string) (*device.CashDrawer, error) {
	return typed[*device.CashDrawer](o, id, model.CashDrawer)
}

// CardReader returns the card reader registered under id.
func (o *Orchestrator) CardReader(id string) (*device.CardReader, error) {
	return typed[*device.CardReader](o, id, model.CardReader)
}

// Scale returns the scale registered under id.
func (o *Orchestrator) Scale(id string) (*device.Scale, error) {
	return typed[*device.Scale](o, id, model.Scale)
}
