// Package hardware manages a set of simulated peripherals.
//
// An Orchestrator owns one device.Simulator per registered id, forwards
// every event the simulators emit into a history.History, and recovers
// devices that report a lost connection by reconnecting them with a
// bounded backoff. Batch operations are best effort: they return a map of
// per-device errors and never stop at the first failure.
//
// Device configuration can be persisted in a statestore.Store. Persisted
// values are applied under the configuration given at registration, so a
// restart keeps runtime changes made with UpdateDeviceConfig.
package hardware
