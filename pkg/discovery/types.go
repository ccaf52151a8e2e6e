package discovery

import (
	"errors"
	"time"
)

// Service constants.
const (
	// ServiceType is the DNS-SD service type of a simulator.
	ServiceType = "_possim._tcp"

	// Domain is the mDNS domain.
	Domain = "local"

	// DefaultPort is the default HTTP port of a simulator.
	DefaultPort = 8080

	// DefaultAPIPath is the default base path of the HTTP API.
	DefaultAPIPath = "/api/v1"

	// MaxInstanceNameLen is the DNS-SD limit for instance names.
	MaxInstanceNameLen = 63
)

// TXT record keys.
const (
	TXTKeyVersion = "version"
	TXTKeyDevices = "devices"
	TXTKeyAPI     = "api"
)

// Discovery errors.
var (
	ErrInvalidInstanceName = errors.New("invalid instance name")
	ErrMissingTXTKey       = errors.New("missing TXT record key")
	ErrInvalidDevice       = errors.New("invalid device entry")
	ErrInvalidAPIPath      = errors.New("invalid API path")
)

// TXTRecordMap holds TXT record key/value pairs.
type TXTRecordMap map[string]string

// DeviceEntry names one simulated device.
type DeviceEntry struct {
	ID   string
	Type string
}

// Info describes an advertised simulator.
type Info struct {
	// Name is the DNS-SD instance name.
	Name string

	// Port is the HTTP port. Zero uses DefaultPort.
	Port uint16

	Version string
	APIPath string
	Devices []DeviceEntry
}

// Service is a simulator found while browsing.
type Service struct {
	Info
	Host      string
	Addresses []string
}

// AdvertiserConfig configures an Advertiser.
type AdvertiserConfig struct {
	// Interface restricts advertising to one network interface. Empty
	// means all interfaces.
	Interface string

	// TTL overrides the record TTL. Zero uses the library default.
	TTL time.Duration
}

// BrowserConfig configures a Browser.
type BrowserConfig struct {
	// Interface restricts browsing to one network interface.
	Interface string

	// AnyVersion also reports simulators serving a different major API
	// version than this build.
	AnyVersion bool
}
