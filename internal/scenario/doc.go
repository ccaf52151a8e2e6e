// Package scenario runs scripted peripheral scenarios described in YAML.
//
// A scenario registers a set of simulated devices, optionally defines
// patterns and flows, and then executes steps in order: device actions,
// injected events, virtual time advances and expectations against the
// event history. Every scenario runs on its own virtual clock, so
// reconnection backoff and response delays cost no wall time.
//
// Example:
//
//	id: SC-PRINT-001
//	name: Printer recovers after paper refill
//	devices:
//	  - type: printer
//	steps:
//	  - action: connect
//	    params: {device: printer}
//	  - action: trigger
//	    params: {device: printer, event: paperOut}
//	  - action: operate
//	    params: {device: printer, op: print, text: receipt, allow_error: true}
//	    expect: {error: paperOut}
package scenario
