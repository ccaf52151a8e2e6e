package main

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/wendylw/mock-driven-testing-sub001/pkg/flow"
	"github.com/wendylw/mock-driven-testing-sub001/pkg/hardware"
	"github.com/wendylw/mock-driven-testing-sub001/pkg/history"
	"github.com/wendylw/mock-driven-testing-sub001/pkg/model"
)

// FileConfig is the YAML configuration of the simulator.
type FileConfig struct {
	// Name is the mDNS instance name used with -advertise.
	Name string `yaml:"name"`

	// Addr is the HTTP listen address. The -addr flag overrides it.
	Addr string `yaml:"addr"`

	// Store selects the state store, e.g. "bolt:/var/lib/possim/state.db".
	Store string `yaml:"store"`

	// EventLog is the path of the CBOR event archive.
	EventLog string `yaml:"event_log"`

	History struct {
		Capacity     int           `yaml:"capacity"`
		RecentWindow time.Duration `yaml:"recent_window"`
	} `yaml:"history"`

	// Devices are registered at startup. An empty list registers one
	// device of every type.
	Devices []hardware.Registration `yaml:"devices"`

	Patterns []history.Pattern `yaml:"patterns"`

	// FlowsDir is loaded in addition to the inline flows.
	FlowsDir string            `yaml:"flows_dir"`
	Flows    []flow.Definition `yaml:"flows"`

	// FlowRetention bounds how many completed flow instances are kept.
	FlowRetention int `yaml:"flow_retention"`
}

// defaultFileConfig returns the configuration used without -config.
func defaultFileConfig() *FileConfig {
	cfg := &FileConfig{
		Name:  "possim",
		Addr:  ":8080",
		Store: "memory",
	}
	cfg.History.Capacity = history.DefaultCapacity
	cfg.History.RecentWindow = history.DefaultRecentWindow
	return cfg
}

// loadFileConfig reads a YAML configuration on top of the defaults.
func loadFileConfig(path string) (*FileConfig, error) {
	cfg := defaultFileConfig()
	if path == "" {
		cfg.applyDefaults()
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	cfg.applyDefaults()
	return cfg, nil
}

func (c *FileConfig) validate() error {
	if c.History.Capacity < 0 {
		return fmt.Errorf("history capacity must not be negative")
	}
	if c.FlowRetention < 0 {
		return fmt.Errorf("flow retention must not be negative")
	}
	for i, d := range c.Devices {
		if !d.Type.IsDevice() {
			return fmt.Errorf("device %d: %w: %q", i, model.ErrUnknownDeviceType, d.Type)
		}
	}
	return nil
}

func (c *FileConfig) applyDefaults() {
	if len(c.Devices) == 0 {
		for _, t := range model.AllDeviceTypes() {
			c.Devices = append(c.Devices, hardware.Registration{Type: t})
		}
	}
	if c.Name == "" {
		c.Name = "possim"
	}
}

// allFlows returns the inline flows followed by those in FlowsDir.
func (c *FileConfig) allFlows() ([]flow.Definition, error) {
	defs := append([]flow.Definition(nil), c.Flows...)
	if c.FlowsDir != "" {
		loaded, err := flow.LoadDirectory(c.FlowsDir)
		if err != nil {
			return nil, err
		}
		defs = append(defs, loaded...)
	}
	return defs, nil
}
