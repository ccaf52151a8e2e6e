// Package history keeps the bounded, time-ordered record of simulation
// events and fans them out to subscribers.
//
// Append is the single entry point: it stores the event (dropping the
// oldest once the capacity is reached), checks every registered pattern
// against the trailing window, then delivers the event to subscribers whose
// device type or topic matches and to wildcard subscribers.
//
// A pattern is an ordered list of (device type, event name) expectations.
// It matches when the last k retained events equal the k expectations
// position by position. Matches are published as patternMatched events from
// the orchestrator source. They reach subscribers and OnPatternMatched
// listeners but are not retained, so a notification can never take part in
// another match.
package history
