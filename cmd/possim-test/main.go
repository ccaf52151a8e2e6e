// Command possim-test runs scripted peripheral scenarios.
//
// Each scenario starts its own simulated devices on a virtual clock, runs
// its steps and checks the resulting events, so failure and recovery paths
// can be exercised without hardware or wall-clock waits.
//
// Usage:
//
//	possim-test [flags] [id-pattern]
//
// Flags:
//
//	-scenarios string   Path to a scenario file or directory (default "./testdata/scenarios")
//	-timeout duration   Scenario timeout (default 30s)
//	-step-timeout dur   Step timeout (default 2s)
//	-verbose            Enable verbose output
//	-json               Output results as JSON
//	-fail-fast          Stop after the first failed scenario
//	-log-level string   Device log level: debug, info, warn, error, off (default "off")
//
// Examples:
//
//	# Run every scenario in a directory
//	possim-test -scenarios ./scenarios
//
//	# Run the printer scenarios with verbose output
//	possim-test -verbose "SC-PRINT-.*"
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"regexp"
	"time"

	"github.com/wendylw/mock-driven-testing-sub001/internal/scenario"
)

// Options holds the command line.
type Options struct {
	Scenarios   string
	Pattern     string
	Timeout     time.Duration
	StepTimeout time.Duration
	Verbose     bool
	JSON        bool
	FailFast    bool
	LogLevel    string
}

func main() {
	var opts Options
	flag.StringVar(&opts.Scenarios, "scenarios", "./testdata/scenarios", "Path to a scenario file or directory")
	flag.DurationVar(&opts.Timeout, "timeout", 30*time.Second, "Scenario timeout")
	flag.DurationVar(&opts.StepTimeout, "step-timeout", 2*time.Second, "Step timeout")
	flag.BoolVar(&opts.Verbose, "verbose", false, "Enable verbose output")
	flag.BoolVar(&opts.JSON, "json", false, "Output results as JSON")
	flag.BoolVar(&opts.FailFast, "fail-fast", false, "Stop after the first failed scenario")
	flag.StringVar(&opts.LogLevel, "log-level", "off", "Device log level: debug, info, warn, error, off")
	flag.Parse()

	if flag.NArg() > 0 {
		opts.Pattern = flag.Arg(0)
	}

	code, err := run(context.Background(), opts, os.Stdout)
	if err != nil {
		log.Printf("Error: %v", err)
	}
	os.Exit(code)
}

// run executes the selected scenarios and returns the process exit code:
// 0 when every scenario passed, 1 on failures and 2 on usage errors.
func run(ctx context.Context, opts Options, w io.Writer) (int, error) {
	scenarios, err := load(opts.Scenarios)
	if err != nil {
		return 2, err
	}

	if opts.Pattern != "" {
		re, err := regexp.Compile("^(?:" + opts.Pattern + ")$")
		if err != nil {
			return 2, fmt.Errorf("invalid pattern: %w", err)
		}
		selected := scenarios[:0]
		for _, sc := range scenarios {
			if re.MatchString(sc.ID) {
				selected = append(selected, sc)
			}
		}
		scenarios = selected
	}
	if len(scenarios) == 0 {
		return 2, fmt.Errorf("no scenarios match %q in %s", opts.Pattern, opts.Scenarios)
	}

	var reporter scenario.Reporter = scenario.NewTextReporter(w, opts.Verbose)
	if opts.JSON {
		reporter = scenario.NewJSONReporter(w, opts.Verbose)
	}

	cfg := scenario.DefaultConfig()
	cfg.DefaultTimeout = opts.Timeout
	cfg.StepTimeout = opts.StepTimeout
	cfg.StopOnFirstFailure = opts.FailFast
	cfg.Logger = deviceLogger(opts.LogLevel)

	suite := scenario.New(cfg).RunSuite(ctx, opts.Scenarios, scenarios)
	reporter.ReportSuite(suite)

	if suite.FailCount > 0 {
		return 1, nil
	}
	return 0, nil
}

func load(path string) ([]*scenario.Scenario, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if info.IsDir() {
		return scenario.LoadDirectory(path)
	}
	sc, err := scenario.LoadFile(path)
	if err != nil {
		return nil, err
	}
	return []*scenario.Scenario{sc}, nil
}

func deviceLogger(level string) *slog.Logger {
	var l slog.Level
	switch level {
	case "debug":
		l = slog.LevelDebug
	case "info":
		l = slog.LevelInfo
	case "warn":
		l = slog.LevelWarn
	case "error":
		l = slog.LevelError
	default:
		return nil
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: l}))
}
