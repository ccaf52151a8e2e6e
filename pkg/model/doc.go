// Package model defines the shared vocabulary of the simulator: the closed
// set of peripheral types, the names of the events they emit, and the
// immutable Event record that flows from simulators into the history.
//
// # Topics
//
// Subscribers address events by Topic, a (DeviceType, EventName) pair. The
// composite string form "printer:printComplete" exists only for display and
// transport; code compares Topics as values.
package model
