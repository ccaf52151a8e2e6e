package flow

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/wendylw/mock-driven-testing-sub001/pkg/model"
)

// Step describes one stage of a flow. Device and Action name the device
// capability the step expects the operator to exercise; they are
// informational and are not invoked by the orchestrator.
type Step struct {
	Name        string         `yaml:"name" json:"name"`
	Description string         `yaml:"description,omitempty" json:"description,omitempty"`
	Device      string         `yaml:"device,omitempty" json:"device,omitempty"`
	Action      string         `yaml:"action,omitempty" json:"action,omitempty"`
	Params      map[string]any `yaml:"params,omitempty" json:"params,omitempty"`
}

func (s Step) payload() model.Payload {
	p := model.Payload{"name": s.Name}
	if s.Description != "" {
		p["description"] = s.Description
	}
	if s.Device != "" {
		p["device"] = s.Device
	}
	if s.Action != "" {
		p["action"] = s.Action
	}
	if len(s.Params) > 0 {
		p["params"] = model.Payload(s.Params).Clone()
	}
	return p
}

// Definition is a named, ordered list of steps.
type Definition struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description,omitempty"`
	Steps       []Step `yaml:"steps"`
}

// LoadError describes a flow definition that could not be loaded.
type LoadError struct {
	// File is the path to the file that failed to load.
	File string

	// Message describes the error.
	Message string

	// Cause is the underlying error, if any.
	Cause error
}

func (e *LoadError) Error() string {
	msg := e.Message
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	if e.File != "" {
		return e.File + ": " + msg
	}
	return msg
}

func (e *LoadError) Unwrap() error {
	return e.Cause
}

// document is the file format: either a single definition or a list under
// "flows".
type document struct {
	Definition `yaml:",inline"`
	Flows      []Definition `yaml:"flows"`
}

// ParseDefinitions parses one or more flow definitions from YAML.
func ParseDefinitions(data []byte) ([]Definition, error) {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, &LoadError{Message: "failed to parse YAML", Cause: err}
	}

	defs := doc.Flows
	if doc.Name != "" || len(doc.Steps) > 0 {
		defs = append([]Definition{doc.Definition}, defs...)
	}
	if len(defs) == 0 {
		return nil, &LoadError{Message: "no flow definitions found"}
	}

	seen := make(map[string]bool, len(defs))
	for i, d := range defs {
		switch {
		case d.Name == "":
			return nil, &LoadError{Message: fmt.Sprintf("flow %d has no name", i)}
		case len(d.Steps) == 0:
			return nil, &LoadError{Message: fmt.Sprintf("flow %q has no steps", d.Name), Cause: ErrEmptyFlow}
		case seen[d.Name]:
			return nil, &LoadError{Message: fmt.Sprintf("flow %q defined twice", d.Name), Cause: ErrDuplicateFlow}
		}
		seen[d.Name] = true
		for j, s := range d.Steps {
			if s.Name == "" {
				return nil, &LoadError{Message: fmt.Sprintf("flow %q step %d has no name", d.Name, j)}
			}
		}
	}
	return defs, nil
}

// LoadFile loads flow definitions from a YAML file.
func LoadFile(path string) ([]Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &LoadError{File: path, Message: "failed to read file", Cause: err}
	}
	defs, err := ParseDefinitions(data)
	if err != nil {
		if le, ok := err.(*LoadError); ok {
			le.File = path
			return nil, le
		}
		return nil, &LoadError{File: path, Message: err.Error()}
	}
	return defs, nil
}

// LoadDirectory loads every .yaml and .yml file in dir.
func LoadDirectory(dir string) ([]Definition, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, &LoadError{File: dir, Message: "failed to read directory", Cause: err}
	}

	var defs []Definition
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(entry.Name()))
		if ext != ".yaml" && ext != ".yml" {
			continue
		}
		loaded, err := LoadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			return nil, err
		}
		defs = append(defs, loaded...)
	}
	return defs, nil
}
