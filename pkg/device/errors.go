package device

import (
	"errors"
	"fmt"

	"github.com/wendylw/mock-driven-testing-sub001/pkg/connection"
	"github.com/wendylw/mock-driven-testing-sub001/pkg/model"
)

// Device errors.
var (
	ErrNotConnected      = connection.ErrNotConnected
	ErrAlreadyConnecting = connection.ErrAlreadyConnecting
	ErrConnectAborted    = errors.New("connection attempt aborted")
	ErrConnectionFailed  = errors.New("connection failed")
	ErrOperationFailed   = errors.New("operation failed")
	ErrInvalidConfig     = errors.New("invalid device config")
	ErrInvalidArgument   = errors.New("invalid argument")
)

// ConnectionError is returned by Connect when the injected connection
// failure fires. The caller may retry.
type ConnectionError struct {
	DeviceID   string
	DeviceType model.DeviceType
	ErrorType  string
	Message    string
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("%s %s: connection failed: %s (%s)", e.DeviceType, e.DeviceID, e.Message, e.ErrorType)
}

// Unwrap lets errors.Is match ErrConnectionFailed.
func (e *ConnectionError) Unwrap() error {
	return ErrConnectionFailed
}

// OperationError is returned when a capability operation is refused by the
// device's state or by error injection.
type OperationError struct {
	DeviceID   string
	DeviceType model.DeviceType
	Operation  string
	ErrorType  string
	Message    string
}

func (e *OperationError) Error() string {
	return fmt.Sprintf("%s %s: %s failed: %s (%s)", e.DeviceType, e.DeviceID, e.Operation, e.Message, e.ErrorType)
}

// Unwrap lets errors.Is match ErrOperationFailed.
func (e *OperationError) Unwrap() error {
	return ErrOperationFailed
}

// UnknownEventError is returned by TriggerExternalEvent for event types the
// device does not script.
type UnknownEventError struct {
	DeviceType model.DeviceType
	EventType  string
}

func (e *UnknownEventError) Error() string {
	return fmt.Sprintf("%s: unknown external event %q", e.DeviceType, e.EventType)
}
