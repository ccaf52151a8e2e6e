// Command possim-log is a tool for viewing and analyzing simulator event
// archives.
//
// Archives are created by running possim with the -event-log flag.
//
// Usage:
//
//	possim-log <command> [flags] <events.cbor>
//
// Commands:
//
//	view     View archive in human-readable format
//	export   Export archive to JSONL or CSV format
//	filter   Filter archive and write to new file
//	stats    Show statistics about the archive
//
// Examples:
//
//	# View all events
//	possim-log view events.cbor
//
//	# View only printer events
//	possim-log view -device-type printer events.cbor
//
//	# Export injected events to CSV
//	possim-log export -format csv -simulated true events.cbor
//
//	# Keep one device's events in a new archive
//	possim-log filter -device receipt -o receipt.cbor events.cbor
//
//	# Show statistics
//	possim-log stats events.cbor
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/wendylw/mock-driven-testing-sub001/cmd/possim-log/commands"
)

const usage = `possim-log - Simulator Event Archive Analyzer

Usage:
  possim-log <command> [flags] <events.cbor>

Commands:
  view     View archive in human-readable format
  export   Export archive to JSONL or CSV format
  filter   Filter archive and write to new file
  stats    Show statistics about the archive

Use "possim-log <command> -help" for more information about a command.
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(1)
	}

	cmd := os.Args[1]
	args := os.Args[2:]

	switch cmd {
	case "view":
		runView(args)
	case "export":
		runExport(args)
	case "filter":
		runFilter(args)
	case "stats":
		runStats(args)
	case "-h", "-help", "--help", "help":
		fmt.Print(usage)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", cmd)
		fmt.Fprint(os.Stderr, usage)
		os.Exit(1)
	}
}

// newFlagSet creates a flag set with the shared filter flags.
func newFlagSet(name, synopsis, usageLine string) (*flag.FlagSet, *commands.FilterOptions) {
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "possim-log %s - %s\n\nUsage:\n  %s\n\nFlags:\n", name, synopsis, usageLine)
		fs.PrintDefaults()
	}

	opts := &commands.FilterOptions{}
	fs.StringVar(&opts.DeviceType, "device-type", "", "Filter by device type (printer, scanner, nfcReader, cashDrawer, cardReader, scale, orchestrator, flow)")
	fs.StringVar(&opts.DeviceID, "device", "", "Filter by device ID")
	fs.StringVar(&opts.Name, "name", "", "Filter by event name")
	fs.StringVar(&opts.Simulated, "simulated", "", "Filter by injected events (true, false)")
	fs.StringVar(&opts.TimeStart, "time-start", "", "Filter by start time (RFC3339)")
	fs.StringVar(&opts.TimeEnd, "time-end", "", "Filter by end time (RFC3339)")
	return fs, opts
}

func archivePath(fs *flag.FlagSet, args []string) string {
	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}
	if fs.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "Error: event log path required")
		fs.Usage()
		os.Exit(1)
	}
	return fs.Arg(0)
}

func fail(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}

func runView(args []string) {
	fs, opts := newFlagSet("view", "View archive in human-readable format", "possim-log view [flags] <events.cbor>")
	path := archivePath(fs, args)

	if err := commands.RunView(path, *opts, os.Stdout); err != nil {
		fail(err)
	}
}

func runExport(args []string) {
	fs, opts := newFlagSet("export", "Export archive to JSONL or CSV format", "possim-log export [flags] <events.cbor>")
	format := fs.String("format", "jsonl", "Output format (jsonl, csv)")
	output := fs.String("o", "", "Output file (default: stdout)")
	path := archivePath(fs, args)

	if err := commands.RunExport(path, *format, *output, *opts); err != nil {
		fail(err)
	}
}

func runFilter(args []string) {
	fs, opts := newFlagSet("filter", "Filter archive and write to new file", "possim-log filter [flags] -o <out.cbor> <events.cbor>")
	output := fs.String("o", "", "Output file (required)")
	path := archivePath(fs, args)

	if *output == "" {
		fmt.Fprintln(os.Stderr, "Error: output file (-o) required")
		fs.Usage()
		os.Exit(1)
	}

	if err := commands.RunFilter(path, *output, *opts, os.Stdout); err != nil {
		fail(err)
	}
}

func runStats(args []string) {
	fs, opts := newFlagSet("stats", "Show statistics about the archive", "possim-log stats [flags] <events.cbor>")
	path := archivePath(fs, args)

	if err := commands.RunStats(path, *opts, os.Stdout); err != nil {
		fail(err)
	}
}
