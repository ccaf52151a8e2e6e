// Package statestore persists small pieces of simulator state: device
// configuration overrides and flow instances.
//
// Values are opaque bytes; GetJSON and PutJSON cover the common case. Keys
// are slash-separated paths such as "device/printer-1/config" and
// "flow/<id>", so Keys(prefix) lists one family.
//
// Backends:
//   - MemoryStore: process lifetime only, used by tests and the default CLI.
//   - FileStore: one versioned JSON document, rewritten on every change.
//   - BoltStore: an embedded bbolt database with a single bucket.
//   - PostgresStore: a state_entries table behind a pgx connection pool.
package statestore
