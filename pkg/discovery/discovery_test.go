package discovery

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func TestTXTRoundTrip(t *testing.T) {
	info := &Info{
		Name:    "lane-3",
		Version: "1.2.0",
		Devices: []DeviceEntry{
			{ID: "printer", Type: "printer"},
			{ID: "front-scanner", Type: "scanner"},
		},
	}

	strs := TXTRecordsToStrings(EncodeTXT(info))
	want := []string{"api=/api/v1", "devices=printer:printer,front-scanner:scanner", "version=1.2.0"}
	if strings.Join(strs, " ") != strings.Join(want, " ") {
		t.Fatalf("TXT = %v, want %v", strs, want)
	}

	got, err := DecodeTXT(StringsToTXTRecords(strs))
	if err != nil {
		t.Fatalf("DecodeTXT: %v", err)
	}
	if got.Version != info.Version || got.APIPath != DefaultAPIPath {
		t.Errorf("unexpected header: %+v", got)
	}
	if len(got.Devices) != 2 || got.Devices[1] != info.Devices[1] {
		t.Errorf("devices = %+v", got.Devices)
	}
}

func TestDecodeTXTErrors(t *testing.T) {
	tests := []struct {
		name string
		txt  TXTRecordMap
		want error
	}{
		{"missing version", TXTRecordMap{TXTKeyDevices: ""}, ErrMissingTXTKey},
		{"missing devices", TXTRecordMap{TXTKeyVersion: "1"}, ErrMissingTXTKey},
		{"bad device", TXTRecordMap{TXTKeyVersion: "1", TXTKeyDevices: "printer"}, ErrInvalidDevice},
		{"empty type", TXTRecordMap{TXTKeyVersion: "1", TXTKeyDevices: "printer:"}, ErrInvalidDevice},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeTXT(tt.txt)
			if !errors.Is(err, tt.want) {
				t.Errorf("err = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestDecodeTXTNoDevices(t *testing.T) {
	info, err := DecodeTXT(TXTRecordMap{TXTKeyVersion: "1", TXTKeyDevices: ""})
	if err != nil {
		t.Fatalf("DecodeTXT: %v", err)
	}
	if len(info.Devices) != 0 {
		t.Errorf("expected no devices, got %v", info.Devices)
	}
}

func TestDecodeTXTAPIPath(t *testing.T) {
	base := TXTRecordMap{TXTKeyVersion: "1.0", TXTKeyDevices: ""}

	for _, bad := range []string{"/v1", "/api/vx", "/api/v"} {
		txt := TXTRecordMap{TXTKeyAPI: bad}
		for k, v := range base {
			txt[k] = v
		}
		if _, err := DecodeTXT(txt); !errors.Is(err, ErrInvalidAPIPath) {
			t.Errorf("api=%q: err = %v, want ErrInvalidAPIPath", bad, err)
		}
	}

	tests := []struct {
		api      string
		major    uint16
		servable bool
	}{
		{"/api/v1", 1, true},
		{"/api/v1/", 1, true},
		{"/api/v2", 2, false},
	}
	for _, tt := range tests {
		txt := TXTRecordMap{TXTKeyAPI: tt.api}
		for k, v := range base {
			txt[k] = v
		}
		info, err := DecodeTXT(txt)
		if err != nil {
			t.Fatalf("api=%q: %v", tt.api, err)
		}
		if got := info.APIMajor(); got != tt.major {
			t.Errorf("api=%q: major = %d, want %d", tt.api, got, tt.major)
		}
		if got := info.Servable(); got != tt.servable {
			t.Errorf("api=%q: servable = %v, want %v", tt.api, got, tt.servable)
		}
	}
}

func TestStringsToTXTRecords(t *testing.T) {
	txt := StringsToTXTRecords([]string{"a=1", "flag", "b=x=y", ""})
	if txt["a"] != "1" || txt["b"] != "x=y" {
		t.Errorf("unexpected values: %v", txt)
	}
	if v, ok := txt["flag"]; !ok || v != "" {
		t.Errorf("flag = %q, %v", v, ok)
	}
	if len(txt) != 3 {
		t.Errorf("expected 3 keys, got %d", len(txt))
	}
}

func TestValidateInstanceName(t *testing.T) {
	if err := ValidateInstanceName("lane-3"); err != nil {
		t.Errorf("valid name rejected: %v", err)
	}
	if err := ValidateInstanceName(""); !errors.Is(err, ErrInvalidInstanceName) {
		t.Errorf("empty name: %v", err)
	}
	if err := ValidateInstanceName(strings.Repeat("x", MaxInstanceNameLen+1)); !errors.Is(err, ErrInvalidInstanceName) {
		t.Errorf("long name: %v", err)
	}
}

func TestAdvertiserRejectsInvalidName(t *testing.T) {
	a := NewAdvertiser(AdvertiserConfig{})
	defer a.Stop()

	if err := a.Advertise(context.Background(), &Info{}); !errors.Is(err, ErrInvalidInstanceName) {
		t.Errorf("err = %v", err)
	}
	if err := a.Update(&Info{Name: "x"}); !errors.Is(err, ErrNotAdvertising) {
		t.Errorf("Update before Advertise: %v", err)
	}
	a.Stop()
}

func TestMergeAddresses(t *testing.T) {
	got := mergeAddresses([]string{"10.0.0.2"}, []string{"10.0.0.2", "fe80::1", "fe80::1"})
	if strings.Join(got, ",") != "10.0.0.2,fe80::1" {
		t.Errorf("merged = %v", got)
	}
}
