package connection

import "errors"

// Connection errors.
var (
	ErrNotConnected       = errors.New("not connected")
	ErrAlreadyConnecting  = errors.New("connection attempt already in progress")
	ErrReconnectExhausted = errors.New("reconnection attempts exhausted")
)

// State represents the connection state of a simulated device.
type State uint8

const (
	// StateDisconnected indicates no active connection.
	StateDisconnected State = iota

	// StateConnecting indicates a connection attempt is in progress.
	StateConnecting

	// StateConnected indicates an active connection.
	StateConnected
)

// String returns a human-readable state name.
func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "DISCONNECTED"
	case StateConnecting:
		return "CONNECTING"
	case StateConnected:
		return "CONNECTED"
	default:
		return "UNKNOWN"
	}
}

// MarshalText renders the state name for JSON and YAML output.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}
