package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wendylw/mock-driven-testing-sub001/pkg/history"
	"github.com/wendylw/mock-driven-testing-sub001/pkg/model"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadFileConfigDefaults(t *testing.T) {
	cfg, err := loadFileConfig("")
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Addr)
	assert.Equal(t, "memory", cfg.Store)
	assert.Equal(t, history.DefaultCapacity, cfg.History.Capacity)
	require.Len(t, cfg.Devices, len(model.AllDeviceTypes()))
	for i, dt := range model.AllDeviceTypes() {
		assert.Equal(t, dt, cfg.Devices[i].Type)
	}
}

func TestLoadFileConfig(t *testing.T) {
	dir := t.TempDir()
	flowsDir := filepath.Join(dir, "flows")
	require.NoError(t, os.Mkdir(flowsDir, 0o755))
	writeFile(t, flowsDir, "refund.yaml", `
name: refund
steps:
  - name: swipe
  - name: confirm
`)
	path := writeFile(t, dir, "possim.yaml", `
name: lane-3
addr: ":9090"
history:
  capacity: 50
  recent_window: 30s
devices:
  - id: receipt
    type: printer
    config:
      min_response_delay: 10ms
      max_response_delay: 20ms
      error_rate: 0
  - type: scale
patterns:
  - name: scan-then-pay
    sequence:
      - device_type: scanner
        event: barcodeScanned
      - device_type: cardReader
        event: paymentProcessed
flows_dir: `+flowsDir+`
flows:
  - name: checkout
    steps:
      - name: scan
        device: scanner
        action: scan
flow_retention: 10
`)

	cfg, err := loadFileConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "lane-3", cfg.Name)
	assert.Equal(t, ":9090", cfg.Addr)
	assert.Equal(t, "memory", cfg.Store, "default kept")
	assert.Equal(t, 50, cfg.History.Capacity)
	assert.Equal(t, 30*time.Second, cfg.History.RecentWindow)
	assert.Equal(t, 10, cfg.FlowRetention)

	require.Len(t, cfg.Devices, 2)
	assert.Equal(t, "receipt", cfg.Devices[0].ID)
	require.NotNil(t, cfg.Devices[0].Config.MinResponseDelay)
	assert.Equal(t, 10*time.Millisecond, *cfg.Devices[0].Config.MinResponseDelay)
	assert.Equal(t, model.Scale, cfg.Devices[1].Type)

	require.Len(t, cfg.Patterns, 1)
	assert.Equal(t, model.CardReader, cfg.Patterns[0].Sequence[1].DeviceType)

	defs, err := cfg.allFlows()
	require.NoError(t, err)
	require.Len(t, defs, 2)
	assert.Equal(t, "checkout", defs[0].Name)
	assert.Equal(t, "refund", defs[1].Name)
}

func TestLoadFileConfigErrors(t *testing.T) {
	dir := t.TempDir()

	_, err := loadFileConfig(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)

	path := writeFile(t, dir, "bad.yaml", "devices: [")
	_, err = loadFileConfig(path)
	assert.Error(t, err)

	path = writeFile(t, dir, "unknown.yaml", "devices:\n  - type: toaster\n")
	_, err = loadFileConfig(path)
	assert.ErrorIs(t, err, model.ErrUnknownDeviceType)

	path = writeFile(t, dir, "negative.yaml", "history:\n  capacity: -1\n")
	_, err = loadFileConfig(path)
	assert.Error(t, err)
}

func TestBuild(t *testing.T) {
	cfg := defaultFileConfig()
	cfg.EventLog = filepath.Join(t.TempDir(), "events.cbor")
	cfg.Devices = nil
	cfg.applyDefaults()
	for i := range cfg.Devices {
		off := false
		cfg.Devices[i].Config.AutoConnect = &off
	}

	hw, flows, registry, cleanup, err := build(context.Background(), cfg, nil)
	require.NoError(t, err)
	defer cleanup()

	assert.Len(t, hw.Devices(), len(model.AllDeviceTypes()))
	assert.Empty(t, flows.Flows())

	families, err := registry.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)

	info := advertisedInfo(cfg, hw)
	assert.Equal(t, uint16(8080), info.Port)
	assert.Equal(t, "/api/v1", info.APIPath)
	assert.Len(t, info.Devices, len(model.AllDeviceTypes()))
}

func TestBuildRejectsBadStore(t *testing.T) {
	cfg := defaultFileConfig()
	cfg.Store = "redis:localhost"
	_, _, _, _, err := build(context.Background(), cfg, nil)
	assert.Error(t, err)
}
