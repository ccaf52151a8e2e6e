// Package version provides control API version parsing, comparison and
// path helpers.
package version

import (
	"fmt"
	"strconv"
	"strings"
)

// Current is the control API version served by the simulator.
const Current = "1.0"

const pathPrefix = "/api/v"

// APIVersion represents a parsed "major.minor" API version.
type APIVersion struct {
	Major uint16
	Minor uint16
}

// Parse parses a "major.minor" version string. Both components are
// decimal and must fit in sixteen bits.
func Parse(s string) (APIVersion, error) {
	major, minor, ok := strings.Cut(s, ".")
	if !ok {
		return APIVersion{}, fmt.Errorf("invalid version %q: expected major.minor", s)
	}
	var v APIVersion
	for _, c := range []struct {
		name string
		raw  string
		dst  *uint16
	}{{"major", major, &v.Major}, {"minor", minor, &v.Minor}} {
		n, err := strconv.ParseUint(c.raw, 10, 16)
		if err != nil {
			return APIVersion{}, fmt.Errorf("invalid version %q: bad %s component", s, c.name)
		}
		*c.dst = uint16(n)
	}
	return v, nil
}

// MustCurrent returns the parsed Current version.
func MustCurrent() APIVersion {
	v, err := Parse(Current)
	if err != nil {
		panic(err)
	}
	return v
}

// String returns the version as "major.minor".
func (v APIVersion) String() string {
	return fmt.Sprintf("%d.%d", v.Major, v.Minor)
}

// Compatible reports whether a client built for other can use this
// version. Minor versions only add to the API, so the majors must match.
func (v APIVersion) Compatible(other APIVersion) bool {
	return v.Major == other.Major
}

// Path returns the route prefix of the version, e.g. "/api/v1".
func (v APIVersion) Path() string {
	return APIPath(v.Major)
}

// APIPath returns the route prefix for a major version: "/api/vN".
func APIPath(major uint16) string {
	return fmt.Sprintf("%s%d", pathPrefix, major)
}

// MajorFromAPIPath extracts the major version from a route prefix.
func MajorFromAPIPath(path string) (uint16, error) {
	if !strings.HasPrefix(path, pathPrefix) {
		return 0, fmt.Errorf("not a simulator API path: %q", path)
	}

	suffix := strings.TrimSuffix(path[len(pathPrefix):], "/")
	if suffix == "" {
		return 0, fmt.Errorf("empty major version in API path: %q", path)
	}

	major, err := strconv.ParseUint(suffix, 10, 16)
	if err != nil {
		return 0, fmt.Errorf("invalid major version in API path %q: %w", path, err)
	}

	return uint16(major), nil
}
