package discovery

import (
	"fmt"
	"sort"
	"strings"

	apiversion "github.com/wendylw/mock-driven-testing-sub001/pkg/version"
)

// EncodeTXT builds the TXT records of a simulator.
func EncodeTXT(info *Info) TXTRecordMap {
	txt := TXTRecordMap{
		TXTKeyVersion: info.Version,
		TXTKeyDevices: encodeDevices(info.Devices),
	}
	api := info.APIPath
	if api == "" {
		api = DefaultAPIPath
	}
	txt[TXTKeyAPI] = api
	return txt
}

// DecodeTXT parses the TXT records of a simulator. The instance name and
// port are not part of the records and are left empty.
func DecodeTXT(txt TXTRecordMap) (*Info, error) {
	version, ok := txt[TXTKeyVersion]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrMissingTXTKey, TXTKeyVersion)
	}
	raw, ok := txt[TXTKeyDevices]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrMissingTXTKey, TXTKeyDevices)
	}
	devices, err := parseDevices(raw)
	if err != nil {
		return nil, err
	}
	api := txt[TXTKeyAPI]
	if api == "" {
		api = DefaultAPIPath
	}
	if _, err := apiversion.MajorFromAPIPath(api); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidAPIPath, err)
	}
	return &Info{Version: version, APIPath: api, Devices: devices}, nil
}

// APIMajor returns the major version of the advertised API.
func (i *Info) APIMajor() uint16 {
	major, err := apiversion.MajorFromAPIPath(i.APIPath)
	if err != nil {
		return 0
	}
	return major
}

// Servable reports whether this build can talk to the advertised API.
func (i *Info) Servable() bool {
	return i.APIMajor() == apiversion.MustCurrent().Major
}

func encodeDevices(devices []DeviceEntry) string {
	parts := make([]string, 0, len(devices))
	for _, d := range devices {
		parts = append(parts, d.ID+":"+d.Type)
	}
	return strings.Join(parts, ",")
}

func parseDevices(s string) ([]DeviceEntry, error) {
	if s == "" {
		return nil, nil
	}
	var out []DeviceEntry
	for _, part := range strings.Split(s, ",") {
		id, typ, ok := strings.Cut(strings.TrimSpace(part), ":")
		if !ok || id == "" || typ == "" {
			return nil, fmt.Errorf("%w: %q", ErrInvalidDevice, part)
		}
		out = append(out, DeviceEntry{ID: id, Type: typ})
	}
	return out, nil
}

// TXTRecordsToStrings converts a TXTRecordMap to sorted "key=value" strings.
func TXTRecordsToStrings(txt TXTRecordMap) []string {
	result := make([]string, 0, len(txt))
	for k, v := range txt {
		result = append(result, fmt.Sprintf("%s=%s", k, v))
	}
	sort.Strings(result)
	return result
}

// StringsToTXTRecords parses "key=value" strings into a TXTRecordMap.
func StringsToTXTRecords(strs []string) TXTRecordMap {
	txt := make(TXTRecordMap)
	for _, s := range strs {
		k, v, ok := strings.Cut(s, "=")
		if ok {
			txt[k] = v
		} else if k != "" {
			// Key without value (boolean flag)
			txt[k] = ""
		}
	}
	return txt
}

// ValidateInstanceName checks that an instance name is usable for mDNS.
func ValidateInstanceName(name string) error {
	if name == "" {
		return fmt.Errorf("%w: empty name", ErrInvalidInstanceName)
	}
	if len(name) > MaxInstanceNameLen {
		return fmt.Errorf("%w: longer than %d bytes", ErrInvalidInstanceName, MaxInstanceNameLen)
	}
	return nil
}
