package device

import (
	"fmt"
	"time"

	"github.com/wendylw/mock-driven-testing-sub001/pkg/model"
)

// Operation kinds used to key error rules.
const (
	OpConnection    = "connection"
	OpPrint         = "print"
	OpStartScanning = "startScanning"
	OpStopScanning  = "stopScanning"
	OpScan          = "scan"
	OpTorch         = "torch"
	OpNFCEnable     = "nfcEnable"
	OpNFCDisable    = "nfcDisable"
	OpNFCRead       = "nfcRead"
	OpNFCWrite      = "nfcWrite"
	OpDrawer        = "drawer"
	OpDrawerLock    = "drawerLock"
	OpReadCard      = "readCard"
	OpEjectCard     = "ejectCard"
	OpPayment       = "payment"
	OpWeigh         = "weigh"
	OpTare          = "tare"
	OpZero          = "zero"
)

// Default configuration values.
const (
	DefaultMinResponseDelay   = 100 * time.Millisecond
	DefaultMaxResponseDelay   = 500 * time.Millisecond
	DefaultErrorCheckInterval = 10 * time.Second
	DefaultErrorRate          = 5.0
)

// ErrorRule associates an operation kind with an error type it can fail
// with. Rate, when set, overrides Config.ErrorRate for that operation.
type ErrorRule struct {
	Operation string   `yaml:"operation" json:"operation"`
	ErrorType string   `yaml:"error_type" json:"errorType"`
	Rate      *float64 `yaml:"rate,omitempty" json:"rate,omitempty"`
}

// Config controls the timing and error injection of a simulator.
type Config struct {
	MinResponseDelay   time.Duration `yaml:"min_response_delay" json:"minResponseDelay"`
	MaxResponseDelay   time.Duration `yaml:"max_response_delay" json:"maxResponseDelay"`
	ErrorCheckInterval time.Duration `yaml:"error_check_interval" json:"errorCheckInterval"`
	ErrorRate          float64       `yaml:"error_rate" json:"errorRate"`
	ErrorRules         []ErrorRule   `yaml:"error_rules" json:"errorRules"`
	AutoConnect        bool          `yaml:"auto_connect" json:"autoConnect"`
}

// DefaultConfig returns the configuration for a device type, including the
// error rules the real hardware is known to exhibit.
func DefaultConfig(t model.DeviceType) Config {
	return Config{
		MinResponseDelay:   DefaultMinResponseDelay,
		MaxResponseDelay:   DefaultMaxResponseDelay,
		ErrorCheckInterval: DefaultErrorCheckInterval,
		ErrorRate:          DefaultErrorRate,
		ErrorRules:         defaultRules(t),
		AutoConnect:        true,
	}
}

func defaultRules(t model.DeviceType) []ErrorRule {
	lost := ErrorRule{Operation: OpConnection, ErrorType: ErrTypeConnectionLost}
	switch t {
	case model.Printer:
		return []ErrorRule{
			{Operation: OpPrint, ErrorType: ErrTypePaperOut},
			{Operation: OpPrint, ErrorType: ErrTypeCoverOpen},
			lost,
		}
	case model.Scanner:
		return []ErrorRule{
			{Operation: OpScan, ErrorType: ErrTypeBarcodeUnreadable},
			{Operation: OpScan, ErrorType: ErrTypeCameraError},
			lost,
		}
	case model.NFCReader:
		return []ErrorRule{
			{Operation: OpNFCRead, ErrorType: ErrTypeTagNotSupported},
			{Operation: OpNFCRead, ErrorType: ErrTypeReadError},
			lost,
		}
	case model.CashDrawer:
		return []ErrorRule{
			{Operation: OpDrawer, ErrorType: ErrTypeDrawerJammed},
			lost,
		}
	case model.CardReader:
		return []ErrorRule{
			{Operation: OpReadCard, ErrorType: ErrTypeCardReadError},
			{Operation: OpConnection, ErrorType: ErrTypeConnectionTimeout},
			lost,
		}
	case model.Scale:
		return []ErrorRule{
			{Operation: OpWeigh, ErrorType: ErrTypeCalibrationError},
			{Operation: OpWeigh, ErrorType: ErrTypeWeightUnstable},
			lost,
		}
	}
	return []ErrorRule{lost}
}

// Validate checks that the configuration is usable.
func (c Config) Validate() error {
	if c.MinResponseDelay < 0 || c.MaxResponseDelay < 0 {
		return fmt.Errorf("%w: negative response delay", ErrInvalidConfig)
	}
	if c.MaxResponseDelay < c.MinResponseDelay {
		return fmt.Errorf("%w: max response delay %s below min %s", ErrInvalidConfig, c.MaxResponseDelay, c.MinResponseDelay)
	}
	if c.ErrorCheckInterval < 0 {
		return fmt.Errorf("%w: negative error check interval", ErrInvalidConfig)
	}
	if c.ErrorRate < 0 || c.ErrorRate > 100 {
		return fmt.Errorf("%w: error rate %.1f outside 0-100", ErrInvalidConfig, c.ErrorRate)
	}
	for i, r := range c.ErrorRules {
		if r.Operation == "" || r.ErrorType == "" {
			return fmt.Errorf("%w: error rule %d needs operation and error type", ErrInvalidConfig, i)
		}
		if r.Rate != nil && (*r.Rate < 0 || *r.Rate > 100) {
			return fmt.Errorf("%w: error rule %d rate %.1f outside 0-100", ErrInvalidConfig, i, *r.Rate)
		}
	}
	return nil
}

// RateFor returns the failure percentage for an operation kind.
func (c Config) RateFor(op string) float64 {
	for _, r := range c.ErrorRules {
		if r.Operation == op && r.Rate != nil {
			return *r.Rate
		}
	}
	return c.ErrorRate
}

// errorTypesFor returns the error types configured for an operation.
func (c Config) errorTypesFor(op string, exclude ...string) []string {
	var types []string
rules:
	for _, r := range c.ErrorRules {
		if r.Operation != op {
			continue
		}
		for _, x := range exclude {
			if r.ErrorType == x {
				continue rules
			}
		}
		types = append(types, r.ErrorType)
	}
	return types
}

func (c Config) clone() Config {
	out := c
	if c.ErrorRules != nil {
		out.ErrorRules = make([]ErrorRule, len(c.ErrorRules))
		for i, r := range c.ErrorRules {
			out.ErrorRules[i] = r
			if r.Rate != nil {
				rate := *r.Rate
				out.ErrorRules[i].Rate = &rate
			}
		}
	}
	return out
}

// Rate is a helper for building error rules.
func Rate(percent float64) *float64 {
	return &percent
}

// ConfigPatch is a partial configuration update. Nil fields are left
// unchanged; a non-nil ErrorRules replaces the rule list.
type ConfigPatch struct {
	MinResponseDelay   *time.Duration `yaml:"min_response_delay,omitempty" json:"minResponseDelay,omitempty"`
	MaxResponseDelay   *time.Duration `yaml:"max_response_delay,omitempty" json:"maxResponseDelay,omitempty"`
	ErrorCheckInterval *time.Duration `yaml:"error_check_interval,omitempty" json:"errorCheckInterval,omitempty"`
	ErrorRate          *float64       `yaml:"error_rate,omitempty" json:"errorRate,omitempty"`
	ErrorRules         []ErrorRule    `yaml:"error_rules,omitempty" json:"errorRules,omitempty"`
	AutoConnect        *bool          `yaml:"auto_connect,omitempty" json:"autoConnect,omitempty"`
}

// IsZero reports whether the patch changes nothing.
func (p ConfigPatch) IsZero() bool {
	return p.MinResponseDelay == nil && p.MaxResponseDelay == nil && p.ErrorCheckInterval == nil &&
		p.ErrorRate == nil && p.ErrorRules == nil && p.AutoConnect == nil
}

// Merge returns c with the patch applied.
func (c Config) Merge(p ConfigPatch) Config {
	out := c.clone()
	if p.MinResponseDelay != nil {
		out.MinResponseDelay = *p.MinResponseDelay
	}
	if p.MaxResponseDelay != nil {
		out.MaxResponseDelay = *p.MaxResponseDelay
	}
	if p.ErrorCheckInterval != nil {
		out.ErrorCheckInterval = *p.ErrorCheckInterval
	}
	if p.ErrorRate != nil {
		out.ErrorRate = *p.ErrorRate
	}
	if p.ErrorRules != nil {
		out.ErrorRules = Config{ErrorRules: p.ErrorRules}.clone().ErrorRules
	}
	if p.AutoConnect != nil {
		out.AutoConnect = *p.AutoConnect
	}
	return out
}
