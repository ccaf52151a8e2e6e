// Package connection provides the connection state machine shared by all
// simulated peripherals and the reconnection policy applied when one of
// them reports a lost link.
//
// # States
//
//	DISCONNECTED -> CONNECTING -> CONNECTED
//	      ^              |             |
//	      +--------------+-------------+
//
// Only the owning simulator transitions its state.
//
// # Reconnection Strategy
//
// After a connectionLost fault the orchestrator runs a bounded sequence of
// attempts. Before attempt n it waits Base * n (linear):
//
//  1. attempt 1 after 2s
//  2. attempt 2 after 4s
//  3. attempt 3 after 6s
//
// The sequence stops at the first success. After the last failed attempt
// the failure is reported and nothing is retried.
//
// Exponential mode (Base * Multiplier^(n-1), capped at Max, plus jitter) is
// available for callers that want it.
package connection
