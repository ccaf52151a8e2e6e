// Package device implements the simulated point-of-sale peripherals.
//
// Every variant (Printer, Scanner, NFCReader, CashDrawer, CardReader,
// Scale) satisfies Simulator and adds its own capability operations. All of
// them share the same behaviour:
//
//   - Connect waits a random response delay, then rolls the "connection"
//     error rate. Connecting an already connected device is a no-op.
//   - Capability operations require a connection, wait a response delay and
//     roll the error rate of their own operation kind before mutating state.
//   - While connected, a background task checks every ErrorCheckInterval
//     whether to raise a random fault from the configured error rules.
//   - TriggerExternalEvent scripts physical conditions (paper out, card
//     inserted, item placed on the scale) without going through an
//     operation.
//
// # Error Rates
//
// Rates are percentages. An operation kind uses the rate of the first error
// rule naming it that sets Rate, and Config.ErrorRate otherwise. The same
// ErrorRate is the per-check probability of a background fault.
//
// # Stale Completions
//
// Operations capture a connection epoch when they start. If the device
// disconnects (or reconnects) while the operation is waiting, the
// completion is stale: state is left untouched, no success event is
// emitted, and the result is returned with Stale set.
package device
