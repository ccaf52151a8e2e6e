// Package commands implements the possim-log CLI commands.
package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"

	"github.com/wendylw/mock-driven-testing-sub001/pkg/eventlog"
)

// RunView prints the matching entries of path in human-readable form.
func RunView(path string, opts FilterOptions, w io.Writer) error {
	filter, err := opts.Build()
	if err != nil {
		return err
	}

	reader, err := eventlog.NewFilteredReader(path, filter)
	if err != nil {
		return fmt.Errorf("failed to open event log: %w", err)
	}
	defer reader.Close()

	for {
		entry, err := reader.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to read entry: %w", err)
		}
		formatEntry(w, entry)
	}
}

// formatEntry writes a header line and one line per payload field.
func formatEntry(w io.Writer, e eventlog.Entry) {
	ts := e.Timestamp.UTC().Format("2006-01-02T15:04:05.000000Z")
	source := string(e.DeviceType)
	if e.DeviceID != "" && e.DeviceID != source {
		source += "/" + e.DeviceID
	}
	marker := ""
	if e.Simulated {
		marker = " [SIM]"
	}
	fmt.Fprintf(w, "%s %-24s %s%s\n", ts, source, e.Name, marker)

	keys := make([]string, 0, len(e.Payload))
	for k := range e.Payload {
		if k == "simulated" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(w, "  %s: %s\n", k, formatValue(e.Payload[k]))
	}
}

func formatValue(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case nil:
		return "null"
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(data)
}
