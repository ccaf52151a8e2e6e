package model

import (
	"errors"
	"fmt"
)

// ErrUnknownDeviceType is returned when a device type name is not recognised.
var ErrUnknownDeviceType = errors.New("unknown device type")

// DeviceType identifies a kind of simulated peripheral.
type DeviceType string

// Peripheral types.
const (
	Printer    DeviceType = "printer"
	Scanner    DeviceType = "scanner"
	NFCReader  DeviceType = "nfcReader"
	CashDrawer DeviceType = "cashDrawer"
	CardReader DeviceType = "cardReader"
	Scale      DeviceType = "scale"
)

// Event sources that are not peripherals.
const (
	// Orchestrator marks events produced by the hardware orchestrator or
	// the pattern matcher.
	Orchestrator DeviceType = "orchestrator"

	// Flow marks events produced by the flow orchestrator.
	Flow DeviceType = "flow"
)

// AllDeviceTypes returns every peripheral type in a stable order.
func AllDeviceTypes() []DeviceType {
	return []DeviceType{Printer, Scanner, NFCReader, CashDrawer, CardReader, Scale}
}

// IsDevice reports whether t names a peripheral.
func (t DeviceType) IsDevice() bool {
	switch t {
	case Printer, Scanner, NFCReader, CashDrawer, CardReader, Scale:
		return true
	default:
		return false
	}
}

// Valid reports whether t is a peripheral or a reserved source.
func (t DeviceType) Valid() bool {
	return t.IsDevice() || t == Orchestrator || t == Flow
}

// String returns the type name.
func (t DeviceType) String() string {
	return string(t)
}

// ParseDeviceType parses a peripheral type name.
func ParseDeviceType(s string) (DeviceType, error) {
	t := DeviceType(s)
	if !t.IsDevice() {
		return "", fmt.Errorf("%w: %q", ErrUnknownDeviceType, s)
	}
	return t, nil
}
