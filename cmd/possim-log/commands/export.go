package commands

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/wendylw/mock-driven-testing-sub001/pkg/eventlog"
)

// RunExport exports the matching entries of path to the specified format.
func RunExport(path, format, output string, opts FilterOptions) error {
	filter, err := opts.Build()
	if err != nil {
		return err
	}
	if format != "jsonl" && format != "csv" {
		return fmt.Errorf("unknown format: %s (supported: jsonl, csv)", format)
	}

	reader, err := eventlog.NewFilteredReader(path, filter)
	if err != nil {
		return fmt.Errorf("failed to open event log: %w", err)
	}
	defer reader.Close()

	var w io.Writer = os.Stdout
	if output != "" {
		f, err := os.Create(output)
		if err != nil {
			return fmt.Errorf("failed to create output file: %w", err)
		}
		defer f.Close()
		w = f
	}

	if format == "csv" {
		return exportCSV(reader, w)
	}
	return exportJSONL(reader, w)
}

func exportJSONL(reader *eventlog.Reader, w io.Writer) error {
	encoder := json.NewEncoder(w)
	for {
		entry, err := reader.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to read entry: %w", err)
		}
		if err := encoder.Encode(entry.Event().Record()); err != nil {
			return fmt.Errorf("failed to encode entry: %w", err)
		}
	}
}

func exportCSV(reader *eventlog.Reader, w io.Writer) error {
	cw := csv.NewWriter(w)

	header := []string{"timestamp", "id", "device_type", "device_id", "event", "simulated", "payload"}
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	for {
		entry, err := reader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("failed to read entry: %w", err)
		}

		payload := ""
		if len(entry.Payload) > 0 {
			data, err := json.Marshal(entry.Payload)
			if err != nil {
				return fmt.Errorf("failed to encode payload: %w", err)
			}
			payload = string(data)
		}

		simulated := "false"
		if entry.Simulated {
			simulated = "true"
		}

		row := []string{
			entry.Timestamp.UTC().Format(time.RFC3339Nano),
			entry.ID,
			string(entry.DeviceType),
			entry.DeviceID,
			string(entry.Name),
			simulated,
			payload,
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("failed to write row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}
