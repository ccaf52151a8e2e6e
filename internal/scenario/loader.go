package scenario

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/wendylw/mock-driven-testing-sub001/pkg/model"
)

// Parse parses a scenario from YAML bytes.
func Parse(data []byte) (*Scenario, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, &LoadError{Message: "failed to parse YAML", Cause: err}
	}
	if len(doc.Content) == 0 {
		return nil, &LoadError{Message: "empty document"}
	}
	root := doc.Content[0]

	var sc Scenario
	if err := root.Decode(&sc); err != nil {
		return nil, &LoadError{Line: root.Line, Message: "failed to decode scenario", Cause: err}
	}

	if sc.ID == "" {
		return nil, &LoadError{Line: root.Line, Message: "scenario ID is required"}
	}
	if len(sc.Steps) == 0 {
		return nil, &LoadError{Line: root.Line, Message: "scenario must have at least one step"}
	}

	seen := make(map[string]bool, len(sc.Devices))
	for i, d := range sc.Devices {
		if !d.Type.IsDevice() {
			return nil, &LoadError{
				Line:    lineOf(root, "devices", i),
				Message: fmt.Sprintf("device %d", i),
				Cause:   fmt.Errorf("%w: %q", model.ErrUnknownDeviceType, d.Type),
			}
		}
		id := d.ID
		if id == "" {
			id = string(d.Type)
		}
		if seen[id] {
			return nil, &LoadError{Line: lineOf(root, "devices", i), Message: fmt.Sprintf("duplicate device %q", id)}
		}
		seen[id] = true
	}

	for i, s := range sc.Steps {
		if s.Action == "" {
			return nil, &LoadError{Line: lineOf(root, "steps", i), Message: fmt.Sprintf("step %d has no action", i+1)}
		}
	}

	return &sc, nil
}

// lineOf returns the line of element i of the sequence under key, or the
// line of the mapping itself when it cannot be found.
func lineOf(root *yaml.Node, key string, i int) int {
	if root.Kind != yaml.MappingNode {
		return root.Line
	}
	for j := 0; j+1 < len(root.Content); j += 2 {
		if root.Content[j].Value != key {
			continue
		}
		seq := root.Content[j+1]
		if seq.Kind == yaml.SequenceNode && i < len(seq.Content) {
			return seq.Content[i].Line
		}
		return seq.Line
	}
	return root.Line
}

// LoadFile loads a scenario from a file.
func LoadFile(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &LoadError{File: path, Message: "failed to read file", Cause: err}
	}

	sc, err := Parse(data)
	if err != nil {
		var le *LoadError
		if errors.As(err, &le) {
			le.File = path
			return nil, le
		}
		return nil, &LoadError{File: path, Message: err.Error()}
	}
	return sc, nil
}

// LoadDirectory loads all scenarios from a directory and its
// subdirectories. Only files with .yaml or .yml extensions are loaded.
// Scenario IDs must be unique across the tree.
func LoadDirectory(dir string) ([]*Scenario, error) {
	var out []*Scenario
	ids := make(map[string]string)

	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		ext := strings.ToLower(filepath.Ext(path))
		if ext != ".yaml" && ext != ".yml" {
			return nil
		}

		sc, err := LoadFile(path)
		if err != nil {
			return err
		}
		if prev, dup := ids[sc.ID]; dup {
			return &LoadError{File: path, Message: fmt.Sprintf("scenario ID %q already defined in %s", sc.ID, prev)}
		}
		ids[sc.ID] = path
		out = append(out, sc)
		return nil
	})
	if err != nil {
		var le *LoadError
		if errors.As(err, &le) {
			return nil, le
		}
		return nil, &LoadError{File: dir, Message: "failed to read directory", Cause: err}
	}

	return out, nil
}
