package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func options() Options {
	return Options{
		Scenarios:   "testdata/scenarios",
		Timeout:     10 * time.Second,
		StepTimeout: 2 * time.Second,
		LogLevel:    "off",
	}
}

func TestRunBundledScenarios(t *testing.T) {
	var buf bytes.Buffer
	code, err := run(context.Background(), options(), &buf)
	require.NoError(t, err)
	assert.Equal(t, 0, code, buf.String())

	out := buf.String()
	assert.Contains(t, out, "[PASS] SC-PRINT-001")
	assert.Contains(t, out, "[PASS] SC-RECONNECT-001")
	assert.Contains(t, out, "[PASS] SC-CHECKOUT-001")
	assert.Contains(t, out, "Pass Rate: 100.0%")
}

func TestRunPatternAndJSON(t *testing.T) {
	opts := options()
	opts.Pattern = "SC-PRINT-.*"
	opts.JSON = true

	var buf bytes.Buffer
	code, err := run(context.Background(), opts, &buf)
	require.NoError(t, err)
	assert.Equal(t, 0, code)

	var suite struct {
		Total  int `json:"total"`
		Passed int `json:"passed"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &suite), buf.String())
	assert.Equal(t, 1, suite.Total)
	assert.Equal(t, 1, suite.Passed)
}

func TestRunFailingScenario(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "fail.yaml"), []byte(`
id: SC-FAIL
devices:
  - type: scale
steps:
  - action: expect_status
    params: {device: scale, connected: true}
    timeout: 50ms
`), 0o644))

	opts := options()
	opts.Scenarios = filepath.Join(dir, "fail.yaml")
	var buf bytes.Buffer
	code, err := run(context.Background(), opts, &buf)
	require.NoError(t, err)
	assert.Equal(t, 1, code)
	assert.True(t, strings.Contains(buf.String(), "[FAIL] SC-FAIL"), buf.String())
}

func TestRunUsageErrors(t *testing.T) {
	opts := options()
	opts.Pattern = "NOPE"
	code, err := run(context.Background(), opts, &bytes.Buffer{})
	assert.Error(t, err)
	assert.Equal(t, 2, code)

	opts.Pattern = "("
	code, err = run(context.Background(), opts, &bytes.Buffer{})
	assert.ErrorContains(t, err, "invalid pattern")
	assert.Equal(t, 2, code)

	opts = options()
	opts.Scenarios = filepath.Join(t.TempDir(), "missing")
	code, _ = run(context.Background(), opts, &bytes.Buffer{})
	assert.Equal(t, 2, code)
}
