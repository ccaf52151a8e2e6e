package hardware

import (
	"errors"
	"fmt"

	"github.com/wendylw/mock-driven-testing-sub001/pkg/model"
)

// Orchestrator errors.
var (
	ErrDeviceNotFound      = errors.New("device not found")
	ErrAlreadyRegistered   = errors.New("device already registered")
	ErrTypeMismatch        = errors.New("device has a different type")
	ErrUnknownAction       = errors.New("unknown device action")
	ErrReconnectInProgress = errors.New("reconnection already in progress")
	ErrDestroyed           = errors.New("orchestrator destroyed")
)

// RegistrationError reports a device that could not be registered.
type RegistrationError struct {
	ID   string
	Type model.DeviceType
	Err  error
}

func (e *RegistrationError) Error() string {
	return fmt.Sprintf("register %s (%s): %v", e.ID, e.Type, e.Err)
}

func (e *RegistrationError) Unwrap() error {
	return e.Err
}
