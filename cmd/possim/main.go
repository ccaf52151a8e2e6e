// Command possim runs the POS peripheral simulator.
//
// It registers simulated printers, scanners, NFC readers, cash drawers,
// card readers and scales, and exposes them through an HTTP control API
// with a WebSocket event stream and Prometheus metrics.
//
// Usage:
//
//	possim [flags]
//
// Flags:
//
//	-config string      Configuration file path
//	-addr string        HTTP listen address (default from config, ":8080")
//	-store string       State store: memory, file:<path>, bolt:<path>, postgres:<dsn>
//	-event-log string   Append every event to this CBOR archive
//	-log-level string   Log level: debug, info, warn, error (default "info")
//	-log-format string  Log format: text, json (default "text")
//	-advertise          Announce the simulator via mDNS
//	-interactive        Start the interactive console
//
// Examples:
//
//	# Start with one device of every type
//	possim
//
//	# Start from a config file with persistent state
//	possim -config possim.yaml -store bolt:/var/lib/possim/state.db
//
//	# Interactive session with an event archive
//	possim -interactive -event-log events.cbor -log-level debug
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/wendylw/mock-driven-testing-sub001/cmd/possim/api"
	"github.com/wendylw/mock-driven-testing-sub001/cmd/possim/interactive"
	"github.com/wendylw/mock-driven-testing-sub001/pkg/discovery"
	"github.com/wendylw/mock-driven-testing-sub001/pkg/eventlog"
	"github.com/wendylw/mock-driven-testing-sub001/pkg/flow"
	"github.com/wendylw/mock-driven-testing-sub001/pkg/hardware"
	"github.com/wendylw/mock-driven-testing-sub001/pkg/history"
	"github.com/wendylw/mock-driven-testing-sub001/pkg/metrics"
	"github.com/wendylw/mock-driven-testing-sub001/pkg/statestore"
	"github.com/wendylw/mock-driven-testing-sub001/pkg/version"
)

// Flags holds the command line.
type Flags struct {
	ConfigFile  string
	Addr        string
	Store       string
	EventLog    string
	LogLevel    string
	LogFormat   string
	Advertise   bool
	Interactive bool
}

var flags Flags

func init() {
	flag.StringVar(&flags.ConfigFile, "config", "", "Configuration file path")
	flag.StringVar(&flags.Addr, "addr", "", "HTTP listen address (overrides config)")
	flag.StringVar(&flags.Store, "store", "", "State store: memory, file:<path>, bolt:<path>, postgres:<dsn>")
	flag.StringVar(&flags.EventLog, "event-log", "", "Append every event to this CBOR archive")
	flag.StringVar(&flags.LogLevel, "log-level", "info", "Log level: debug, info, warn, error")
	flag.StringVar(&flags.LogFormat, "log-format", "text", "Log format: text, json")
	flag.BoolVar(&flags.Advertise, "advertise", false, "Announce the simulator via mDNS")
	flag.BoolVar(&flags.Interactive, "interactive", false, "Start the interactive console")
}

func main() {
	flag.Parse()

	log.SetFlags(log.Ltime | log.Lmicroseconds)

	cfg, err := loadFileConfig(flags.ConfigFile)
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}
	if flags.Addr != "" {
		cfg.Addr = flags.Addr
	}
	if flags.Store != "" {
		cfg.Store = flags.Store
	}
	if flags.EventLog != "" {
		cfg.EventLog = flags.EventLog
	}

	log.Println("POS Peripheral Simulator")
	log.Println("========================")
	log.Printf("Version: %s", version.Current)
	log.Printf("Listen: %s", cfg.Addr)
	log.Printf("Store: %s", cfg.Store)
	log.Printf("Devices: %d", len(cfg.Devices))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := run(ctx, cancel, cfg); err != nil {
		log.Fatalf("%v", err)
	}
	log.Println("Goodbye!")
}

func run(ctx context.Context, cancel context.CancelFunc, cfg *FileConfig) error {
	out := &switchWriter{w: os.Stderr}
	log.SetOutput(out)

	hw, flows, registry, cleanup, err := build(ctx, cfg, logger(out))
	if err != nil {
		return err
	}
	defer cleanup()
	log.Printf("Registered %d devices", len(hw.Devices()))

	var console *interactive.Console
	if flags.Interactive {
		console, err = interactive.New(hw, flows)
		if err != nil {
			return err
		}
		out.set(console.Stdout())
		defer out.set(os.Stderr)
	}

	srv := api.NewServer(api.Config{
		Hardware: hw,
		Flows:    flows,
		Gatherer: registry,
		Logger:   logger(out),
	})
	defer srv.Close()

	server := &http.Server{
		Addr:         cfg.Addr,
		Handler:      srv,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Printf("HTTP API listening on %s%s", cfg.Addr, version.MustCurrent().Path())
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	if flags.Advertise {
		adv := discovery.NewAdvertiser(discovery.AdvertiserConfig{})
		if err := adv.Advertise(ctx, advertisedInfo(cfg, hw)); err != nil {
			log.Printf("Warning: mDNS advertising failed: %v", err)
		} else {
			log.Printf("Advertising %s as %s", cfg.Name, discovery.ServiceType)
			defer adv.Stop()
		}
	}

	if console != nil {
		go console.Run(ctx, cancel)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-sigCh:
		log.Printf("Received signal: %v", sig)
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	case <-ctx.Done():
	}

	log.Println("Shutting down...")
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Error stopping HTTP server: %v", err)
	}
	return nil
}

// build wires the simulator. The returned cleanup releases the event
// archive and state store and destroys every device.
func build(ctx context.Context, cfg *FileConfig, slogger *slog.Logger) (*hardware.Orchestrator, *flow.Orchestrator, *prometheus.Registry, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
	fail := func(err error) (*hardware.Orchestrator, *flow.Orchestrator, *prometheus.Registry, func(), error) {
		cleanup()
		return nil, nil, nil, nil, err
	}

	store, err := statestore.Open(ctx, cfg.Store)
	if err != nil {
		return fail(fmt.Errorf("open state store: %w", err))
	}
	closers = append(closers, func() { _ = store.Close() })

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m, err := metrics.NewMetrics(registry)
	if err != nil {
		return fail(fmt.Errorf("register metrics: %w", err))
	}

	var recorders []eventlog.Recorder
	if slogger != nil {
		recorders = append(recorders, eventlog.NewSlogRecorder(slogger))
	}
	if cfg.EventLog != "" {
		fr, err := eventlog.NewFileRecorder(cfg.EventLog)
		if err != nil {
			return fail(fmt.Errorf("open event log: %w", err))
		}
		closers = append(closers, func() {
			log.Printf("Archived %d events to %s", fr.Written(), cfg.EventLog)
			_ = fr.Close()
		})
		recorders = append(recorders, fr)
	}

	hist := history.New(
		history.WithCapacity(cfg.History.Capacity),
		history.WithRecentWindow(cfg.History.RecentWindow),
		history.WithLogger(slogger),
		history.WithRecorder(eventlog.NewMultiRecorder(recorders...)),
		history.WithObserver(m),
	)
	for _, p := range cfg.Patterns {
		if err := hist.DefinePattern(p.Name, p.Sequence); err != nil {
			return fail(fmt.Errorf("pattern %s: %w", p.Name, err))
		}
	}

	flowOpts := []flow.Option{
		flow.WithStateStore(store),
		flow.WithLogger(slogger),
		flow.WithMetrics(m),
	}
	if cfg.FlowRetention > 0 {
		flowOpts = append(flowOpts, flow.WithRetention(cfg.FlowRetention))
	}
	flows := flow.New(hist, flowOpts...)
	defs, err := cfg.allFlows()
	if err != nil {
		return fail(err)
	}
	if err := flows.Register(defs...); err != nil {
		return fail(err)
	}
	restored, err := flows.Restore(ctx)
	if err != nil {
		log.Printf("Warning: restoring flow instances: %v", err)
	} else if restored > 0 {
		log.Printf("Restored %d flow instances", restored)
	}

	hw := hardware.New(hist,
		hardware.WithStateStore(store),
		hardware.WithLogger(slogger),
		hardware.WithMetrics(m),
	)
	closers = append(closers, hw.Destroy)

	for id, err := range hw.RegisterDevices(ctx, cfg.Devices) {
		if err != nil {
			return fail(fmt.Errorf("register %s: %w", id, err))
		}
	}

	return hw, flows, registry, cleanup, nil
}

// switchWriter forwards to a replaceable writer so log output can move to
// the console once it starts.
type switchWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (s *switchWriter) set(w io.Writer) {
	s.mu.Lock()
	s.w = w
	s.mu.Unlock()
}

func (s *switchWriter) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Write(p)
}

func logger(w io.Writer) *slog.Logger {
	var level slog.Level
	switch flags.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if flags.LogFormat == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func advertisedInfo(cfg *FileConfig, hw *hardware.Orchestrator) *discovery.Info {
	info := &discovery.Info{
		Name:    cfg.Name,
		Version: version.Current,
		APIPath: version.MustCurrent().Path(),
	}
	if _, portStr, err := net.SplitHostPort(cfg.Addr); err == nil {
		if port, err := strconv.ParseUint(portStr, 10, 16); err == nil {
			info.Port = uint16(port)
		}
	}
	for _, st := range hw.AllDeviceStatuses() {
		info.Devices = append(info.Devices, discovery.DeviceEntry{ID: st.DeviceID, Type: string(st.DeviceType)})
	}
	return info
}
