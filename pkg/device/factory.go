package device

import (
	"fmt"

	"github.com/wendylw/mock-driven-testing-sub001/pkg/model"
)

// New creates a simulator of the given type.
func New(id string, t model.DeviceType, opts ...Option) (Simulator, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: empty device id", ErrInvalidArgument)
	}
	switch t {
	case model.Printer:
		return NewPrinter(id, opts...)
	case model.Scanner:
		return NewScanner(id, opts...)
	case model.NFCReader:
		return NewNFCReader(id, opts...)
	case model.CashDrawer:
		return NewCashDrawer(id, opts...)
	case model.CardReader:
		return NewCardReader(id, opts...)
	case model.Scale:
		return NewScale(id, opts...)
	}
	return nil, fmt.Errorf("%w: %q", model.ErrUnknownDeviceType, t)
}

// Compile-time interface checks.
var (
	_ Simulator = (*Printer)(nil)
	_ Simulator = (*Scanner)(nil)
	_ Simulator = (*NFCReader)(nil)
	_ Simulator = (*CashDrawer)(nil)
	_ Simulator = (*CardReader)(nil)
	_ Simulator = (*Scale)(nil)
)
