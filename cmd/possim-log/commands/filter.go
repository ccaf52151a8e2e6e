package commands

import (
	"fmt"
	"io"
	"time"

	"github.com/wendylw/mock-driven-testing-sub001/pkg/eventlog"
	"github.com/wendylw/mock-driven-testing-sub001/pkg/model"
)

// FilterOptions specifies filtering criteria shared by the commands.
type FilterOptions struct {
	DeviceType string
	DeviceID   string
	Name       string
	Simulated  string
	TimeStart  string
	TimeEnd    string
}

// Build converts the options to an archive filter.
func (o FilterOptions) Build() (eventlog.Filter, error) {
	filter := eventlog.Filter{
		DeviceID: o.DeviceID,
		Name:     model.EventName(o.Name),
	}

	if o.DeviceType != "" {
		filter.DeviceType = model.DeviceType(o.DeviceType)
		if !filter.DeviceType.Valid() {
			return filter, fmt.Errorf("%w: %q", model.ErrUnknownDeviceType, o.DeviceType)
		}
	}

	switch o.Simulated {
	case "":
	case "true", "yes":
		v := true
		filter.Simulated = &v
	case "false", "no":
		v := false
		filter.Simulated = &v
	default:
		return filter, fmt.Errorf("invalid simulated value: %s (use true or false)", o.Simulated)
	}

	if o.TimeStart != "" {
		t, err := time.Parse(time.RFC3339, o.TimeStart)
		if err != nil {
			return filter, fmt.Errorf("invalid time-start format: %w", err)
		}
		filter.TimeStart = &t
	}

	if o.TimeEnd != "" {
		t, err := time.Parse(time.RFC3339, o.TimeEnd)
		if err != nil {
			return filter, fmt.Errorf("invalid time-end format: %w", err)
		}
		filter.TimeEnd = &t
	}

	return filter, nil
}

// RunFilter copies the matching entries of path into a new archive.
func RunFilter(path, output string, opts FilterOptions, w io.Writer) error {
	filter, err := opts.Build()
	if err != nil {
		return err
	}

	reader, err := eventlog.NewFilteredReader(path, filter)
	if err != nil {
		return fmt.Errorf("failed to open event log: %w", err)
	}
	defer reader.Close()

	recorder, err := eventlog.NewFileRecorder(output)
	if err != nil {
		return fmt.Errorf("failed to create output log: %w", err)
	}
	defer recorder.Close()

	count := 0
	for {
		entry, err := reader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("failed to read entry: %w", err)
		}
		recorder.Record(entry.Event())
		count++
	}

	fmt.Fprintf(w, "Filtered %d events to %s\n", count, output)
	return nil
}
