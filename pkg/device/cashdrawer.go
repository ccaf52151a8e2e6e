package device

import (
	"context"

	"github.com/wendylw/mock-driven-testing-sub001/pkg/model"
)

// CashDrawerState is the operational state of a cash drawer.
type CashDrawerState struct {
	Open   bool `json:"open"`
	Locked bool `json:"locked"`
}

// CashDrawer simulates a cash drawer with a lock.
type CashDrawer struct {
	*base
	st CashDrawerState
}

// NewCashDrawer creates a disconnected, closed and unlocked drawer.
func NewCashDrawer(id string, opts ...Option) (*CashDrawer, error) {
	b, err := newBase(id, model.CashDrawer, opts)
	if err != nil {
		return nil, err
	}
	d := &CashDrawer{base: b}
	b.v = d
	d.resetState()
	return d, nil
}

func (d *CashDrawer) resetState() {
	d.st = CashDrawerState{}
}

func (d *CashDrawer) snapshot() any {
	return d.st
}

// State returns the drawer's operational state.
func (d *CashDrawer) State() CashDrawerState {
	var st CashDrawerState
	d.read(func() { st = d.st })
	return st
}

// Open pops the drawer. A locked drawer refuses to open.
func (d *CashDrawer) Open(ctx context.Context) (Completion, error) {
	oc, err := d.begin(OpDrawer)
	if err != nil {
		return Completion{}, err
	}
	if d.State().Locked {
		return Completion{}, d.refuse(OpDrawer, ErrTypeDrawerLocked, "")
	}
	if err := d.await(ctx, oc, OpDrawer, ""); err != nil {
		return Completion{}, err
	}
	if !d.commit(oc, OpDrawer, func() { d.st.Open = true }) {
		return Completion{Stale: true}, nil
	}
	d.emit(model.EventDrawerOpened, model.Payload{})
	return Completion{}, nil
}

// Close shuts the drawer.
func (d *CashDrawer) Close(ctx context.Context) (Completion, error) {
	oc, err := d.begin(OpDrawer)
	if err != nil {
		return Completion{}, err
	}
	if err := d.await(ctx, oc, OpDrawer, ""); err != nil {
		return Completion{}, err
	}
	if !d.commit(oc, OpDrawer, func() { d.st.Open = false }) {
		return Completion{Stale: true}, nil
	}
	d.emit(model.EventDrawerClosed, model.Payload{})
	return Completion{}, nil
}

// Lock locks the drawer. An open drawer cannot be locked.
func (d *CashDrawer) Lock(ctx context.Context) (Completion, error) {
	oc, err := d.begin(OpDrawerLock)
	if err != nil {
		return Completion{}, err
	}
	if d.State().Open {
		return Completion{}, d.refuse(OpDrawerLock, ErrTypeDrawerOpen, "")
	}
	if err := d.await(ctx, oc, OpDrawerLock, ""); err != nil {
		return Completion{}, err
	}
	if !d.commit(oc, OpDrawerLock, func() { d.st.Locked = true }) {
		return Completion{Stale: true}, nil
	}
	d.emit(model.EventDrawerLocked, model.Payload{})
	return Completion{}, nil
}

// Unlock releases the drawer lock.
func (d *CashDrawer) Unlock(ctx context.Context) (Completion, error) {
	oc, err := d.begin(OpDrawerLock)
	if err != nil {
		return Completion{}, err
	}
	if err := d.await(ctx, oc, OpDrawerLock, ""); err != nil {
		return Completion{}, err
	}
	if !d.commit(oc, OpDrawerLock, func() { d.st.Locked = false }) {
		return Completion{Stale: true}, nil
	}
	d.emit(model.EventDrawerUnlocked, model.Payload{})
	return Completion{}, nil
}

func (d *CashDrawer) external(eventType string, data map[string]any) ([]emission, bool) {
	switch eventType {
	case "drawerOpened", "open":
		d.st.Open = true
		return []emission{{model.EventDrawerOpened, model.Payload{"manual": true}}}, true
	case "drawerClosed", "close":
		d.st.Open = false
		return []emission{{model.EventDrawerClosed, model.Payload{"manual": true}}}, true
	case ErrTypeDrawerJammed:
		return []emission{{model.EventError, model.Payload{
			"type":      ErrTypeDrawerJammed,
			"message":   ErrorMessage(ErrTypeDrawerJammed),
			"operation": OpDrawer,
			"simulated": false,
		}}}, true
	}
	return nil, false
}
