package commands

import (
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/wendylw/mock-driven-testing-sub001/pkg/eventlog"
	"github.com/wendylw/mock-driven-testing-sub001/pkg/model"
)

// Stats holds aggregate statistics about an event archive.
type Stats struct {
	TotalEvents     int
	Simulated       int
	Errors          int
	EventsByType    map[model.DeviceType]int
	EventsByName    map[model.EventName]int
	Devices         map[string]*DeviceStats
	PatternsMatched map[string]int
	TimeRange       struct {
		Start time.Time
		End   time.Time
	}
}

// DeviceStats holds statistics for a single device.
type DeviceStats struct {
	Type      model.DeviceType
	FirstSeen time.Time
	LastSeen  time.Time
	Events    int
	Errors    int
}

// errorEvents are the names counted as failures.
var errorEvents = map[model.EventName]bool{
	model.EventError:           true,
	model.EventConnectionError: true,
	model.EventPrintError:      true,
	model.EventScanError:       true,
	model.EventNFCError:        true,
	model.EventCardError:       true,
	model.EventReconnectFailed: true,
}

// Collect reads the matching entries of path into a Stats.
func Collect(path string, opts FilterOptions) (*Stats, error) {
	filter, err := opts.Build()
	if err != nil {
		return nil, err
	}

	reader, err := eventlog.NewFilteredReader(path, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to open event log: %w", err)
	}
	defer reader.Close()

	stats := &Stats{
		EventsByType:    make(map[model.DeviceType]int),
		EventsByName:    make(map[model.EventName]int),
		Devices:         make(map[string]*DeviceStats),
		PatternsMatched: make(map[string]int),
	}

	for {
		entry, err := reader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read entry: %w", err)
		}

		stats.TotalEvents++
		stats.EventsByType[entry.DeviceType]++
		stats.EventsByName[entry.Name]++
		if entry.Simulated {
			stats.Simulated++
		}
		isError := errorEvents[entry.Name]
		if isError {
			stats.Errors++
		}

		if stats.TimeRange.Start.IsZero() || entry.Timestamp.Before(stats.TimeRange.Start) {
			stats.TimeRange.Start = entry.Timestamp
		}
		if entry.Timestamp.After(stats.TimeRange.End) {
			stats.TimeRange.End = entry.Timestamp
		}

		if entry.Name == model.EventPatternMatched {
			if name, ok := entry.Payload["pattern"].(string); ok {
				stats.PatternsMatched[name]++
			}
		}

		if !entry.DeviceType.IsDevice() {
			continue
		}
		id := entry.DeviceID
		if id == "" {
			id = string(entry.DeviceType)
		}
		dev, ok := stats.Devices[id]
		if !ok {
			dev = &DeviceStats{Type: entry.DeviceType, FirstSeen: entry.Timestamp, LastSeen: entry.Timestamp}
			stats.Devices[id] = dev
		}
		dev.Events++
		if isError {
			dev.Errors++
		}
		if entry.Timestamp.After(dev.LastSeen) {
			dev.LastSeen = entry.Timestamp
		}
	}

	return stats, nil
}

// RunStats analyzes the archive and prints statistics.
func RunStats(path string, opts FilterOptions, w io.Writer) error {
	stats, err := Collect(path, opts)
	if err != nil {
		return err
	}
	printStats(w, stats)
	return nil
}

func printStats(w io.Writer, stats *Stats) {
	fmt.Fprintln(w, "=== Simulator Event Log Statistics ===")
	fmt.Fprintln(w)

	if stats.TotalEvents > 0 {
		fmt.Fprintf(w, "Time Range: %s to %s\n",
			stats.TimeRange.Start.Format(time.RFC3339),
			stats.TimeRange.End.Format(time.RFC3339))
		fmt.Fprintf(w, "Duration:   %s\n", stats.TimeRange.End.Sub(stats.TimeRange.Start).Round(time.Second))
		fmt.Fprintln(w)
	}

	fmt.Fprintf(w, "Total Events: %d\n", stats.TotalEvents)
	fmt.Fprintf(w, "Simulated:    %d\n", stats.Simulated)
	fmt.Fprintf(w, "Errors:       %d\n", stats.Errors)
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Events by Source:")
	types := make([]string, 0, len(stats.EventsByType))
	for t := range stats.EventsByType {
		types = append(types, string(t))
	}
	sort.Strings(types)
	for _, t := range types {
		fmt.Fprintf(w, "  %-14s %d\n", t+":", stats.EventsByType[model.DeviceType(t)])
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Top Events:")
	names := make([]model.EventName, 0, len(stats.EventsByName))
	for n := range stats.EventsByName {
		names = append(names, n)
	}
	sort.Slice(names, func(i, j int) bool {
		ci, cj := stats.EventsByName[names[i]], stats.EventsByName[names[j]]
		if ci != cj {
			return ci > cj
		}
		return names[i] < names[j]
	})
	if len(names) > 10 {
		names = names[:10]
	}
	for _, n := range names {
		fmt.Fprintf(w, "  %-20s %d\n", string(n)+":", stats.EventsByName[n])
	}
	fmt.Fprintln(w)

	if len(stats.Devices) > 0 {
		fmt.Fprintf(w, "Devices: %d\n", len(stats.Devices))
		ids := make([]string, 0, len(stats.Devices))
		for id := range stats.Devices {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		for _, id := range ids {
			dev := stats.Devices[id]
			fmt.Fprintf(w, "  %-16s %-11s events=%d errors=%d active=%s\n",
				id, dev.Type, dev.Events, dev.Errors, dev.LastSeen.Sub(dev.FirstSeen).Round(time.Millisecond))
		}
		fmt.Fprintln(w)
	}

	if len(stats.PatternsMatched) > 0 {
		fmt.Fprintln(w, "Patterns Matched:")
		patterns := make([]string, 0, len(stats.PatternsMatched))
		for p := range stats.PatternsMatched {
			patterns = append(patterns, p)
		}
		sort.Strings(patterns)
		for _, p := range patterns {
			fmt.Fprintf(w, "  %-20s %d\n", p+":", stats.PatternsMatched[p])
		}
	}
}
