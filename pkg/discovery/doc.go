// Package discovery announces running simulators with mDNS/DNS-SD.
//
// A simulator advertises the _possim._tcp service. The instance name is
// the configured simulator name and the TXT records describe it:
//
//   - version: simulator version
//   - devices: comma-separated list of "<id>:<type>" pairs
//   - api: base path of the HTTP API
//
// Test rigs browse for the service to find a simulator on the local
// network instead of hard-coding its address.
package discovery
