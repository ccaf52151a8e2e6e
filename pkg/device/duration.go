package device

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// Duration is a time.Duration that is written to JSON as a duration
// string such as "250ms". Decoding accepts the string form as well as a
// plain number of nanoseconds.
type Duration time.Duration

// MarshalJSON implements json.Marshaler.
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// UnmarshalJSON implements json.Unmarshaler.
func (d *Duration) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		v, err := time.ParseDuration(s)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
		}
		*d = Duration(v)
		return nil
	}
	var n int64
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("%w: duration must be a string like \"250ms\" or nanoseconds", ErrInvalidConfig)
	}
	*d = Duration(n)
	return nil
}

func durationPtr(d *time.Duration) *Duration {
	if d == nil {
		return nil
	}
	v := Duration(*d)
	return &v
}

func (d *Duration) std() *time.Duration {
	if d == nil {
		return nil
	}
	v := time.Duration(*d)
	return &v
}

type configJSON struct {
	MinResponseDelay   Duration    `json:"minResponseDelay"`
	MaxResponseDelay   Duration    `json:"maxResponseDelay"`
	ErrorCheckInterval Duration    `json:"errorCheckInterval"`
	ErrorRate          float64     `json:"errorRate"`
	ErrorRules         []ErrorRule `json:"errorRules"`
	AutoConnect        bool        `json:"autoConnect"`
}

// MarshalJSON writes the delays as duration strings.
func (c Config) MarshalJSON() ([]byte, error) {
	return json.Marshal(configJSON{
		MinResponseDelay:   Duration(c.MinResponseDelay),
		MaxResponseDelay:   Duration(c.MaxResponseDelay),
		ErrorCheckInterval: Duration(c.ErrorCheckInterval),
		ErrorRate:          c.ErrorRate,
		ErrorRules:         c.ErrorRules,
		AutoConnect:        c.AutoConnect,
	})
}

// UnmarshalJSON implements json.Unmarshaler.
func (c *Config) UnmarshalJSON(data []byte) error {
	var v configJSON
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*c = Config{
		MinResponseDelay:   time.Duration(v.MinResponseDelay),
		MaxResponseDelay:   time.Duration(v.MaxResponseDelay),
		ErrorCheckInterval: time.Duration(v.ErrorCheckInterval),
		ErrorRate:          v.ErrorRate,
		ErrorRules:         v.ErrorRules,
		AutoConnect:        v.AutoConnect,
	}
	return nil
}

type patchJSON struct {
	MinResponseDelay   *Duration   `json:"minResponseDelay,omitempty"`
	MaxResponseDelay   *Duration   `json:"maxResponseDelay,omitempty"`
	ErrorCheckInterval *Duration   `json:"errorCheckInterval,omitempty"`
	ErrorRate          *float64    `json:"errorRate,omitempty"`
	ErrorRules         []ErrorRule `json:"errorRules,omitempty"`
	AutoConnect        *bool       `json:"autoConnect,omitempty"`
}

// MarshalJSON writes the set delays as duration strings.
func (p ConfigPatch) MarshalJSON() ([]byte, error) {
	return json.Marshal(patchJSON{
		MinResponseDelay:   durationPtr(p.MinResponseDelay),
		MaxResponseDelay:   durationPtr(p.MaxResponseDelay),
		ErrorCheckInterval: durationPtr(p.ErrorCheckInterval),
		ErrorRate:          p.ErrorRate,
		ErrorRules:         p.ErrorRules,
		AutoConnect:        p.AutoConnect,
	})
}

// UnmarshalJSON decodes a patch strictly: unknown fields are rejected
// with ErrInvalidConfig.
func (p *ConfigPatch) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	var v patchJSON
	if err := dec.Decode(&v); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	*p = ConfigPatch{
		MinResponseDelay:   v.MinResponseDelay.std(),
		MaxResponseDelay:   v.MaxResponseDelay.std(),
		ErrorCheckInterval: v.ErrorCheckInterval.std(),
		ErrorRate:          v.ErrorRate,
		ErrorRules:         v.ErrorRules,
		AutoConnect:        v.AutoConnect,
	}
	return nil
}
