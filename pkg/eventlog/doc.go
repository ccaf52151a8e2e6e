// Package eventlog archives simulation events to disk.
//
// It is separate from operational logging (slog): the archive is a complete
// machine-readable trace of every device, orchestrator and flow event that
// can be replayed, filtered and exported after a run.
//
// # Basic Usage
//
// The hardware orchestrator forwards every event it accepts into history to
// a Recorder:
//
//	// For development: log to console via slog
//	rec := eventlog.NewSlogRecorder(slog.Default())
//
//	// For test runs: write to a binary archive
//	rec, _ := eventlog.NewFileRecorder("/tmp/possim.plog")
//
//	// Both
//	rec := eventlog.NewMultiRecorder(slog, file)
//
// # File Format
//
// Archives are a stream of CBOR-encoded entries with integer keys, usually
// with a .plog extension. The possim-log tool views, summarises and exports
// them.
package eventlog
