// Package interactive provides the interactive command-line interface
// for the simulator.
package interactive

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/chzyer/readline"

	"github.com/wendylw/mock-driven-testing-sub001/pkg/flow"
	"github.com/wendylw/mock-driven-testing-sub001/pkg/hardware"
	"github.com/wendylw/mock-driven-testing-sub001/pkg/history"
	"github.com/wendylw/mock-driven-testing-sub001/pkg/model"
)

// Console handles interactive mode for possim.
type Console struct {
	hw    *hardware.Orchestrator
	hist  *history.History
	flows *flow.Orchestrator
	rl    *readline.Instance

	mu     sync.Mutex
	out    io.Writer
	detach func()
}

// New creates a console bound to the terminal.
func New(hw *hardware.Orchestrator, flows *flow.Orchestrator) (*Console, error) {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "possim> ",
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create readline: %w", err)
	}
	c := newConsole(hw, flows, rl.Stdout())
	c.rl = rl
	return c, nil
}

func newConsole(hw *hardware.Orchestrator, flows *flow.Orchestrator, out io.Writer) *Console {
	return &Console{hw: hw, hist: hw.History(), flows: flows, out: out}
}

// Stdout returns a writer that properly coordinates with the readline input.
// Use this for log output to avoid interfering with the command prompt.
func (c *Console) Stdout() io.Writer {
	return c.rl.Stdout()
}

// Run starts the interactive command loop.
func (c *Console) Run(ctx context.Context, cancel context.CancelFunc) {
	defer c.rl.Close()
	defer c.unwatch()

	c.printHelp()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		line, err := c.rl.Readline()
		if err != nil {
			if err == readline.ErrInterrupt {
				continue
			}
			fmt.Fprintln(c.out, "Exiting...")
			cancel()
			return
		}

		if quit := c.Execute(ctx, line); quit {
			fmt.Fprintln(c.out, "Exiting...")
			cancel()
			return
		}
	}
}

// Execute runs one command line and reports whether the user asked to quit.
func (c *Console) Execute(ctx context.Context, line string) bool {
	input := strings.TrimSpace(line)
	if input == "" {
		return false
	}

	parts := strings.Fields(input)
	cmd := strings.ToLower(parts[0])
	args := parts[1:]

	switch cmd {
	case "help", "?":
		c.printHelp()

	case "devices", "ls":
		c.cmdDevices()

	case "status", "s":
		c.cmdStatus(args)

	case "connect":
		c.cmdConnect(ctx, args)

	case "disconnect":
		c.cmdDisconnect(args)

	case "reset":
		c.cmdReset(args)

	case "op", "o":
		c.cmdOperate(ctx, args)

	case "trigger", "t":
		c.cmdTrigger(args)

	case "history", "h":
		c.cmdHistory(args)

	case "stats":
		c.cmdStats()

	case "watch":
		c.cmdWatch(args)

	case "flow", "f":
		c.cmdFlow(ctx, args)

	case "quit", "exit", "q":
		return true

	default:
		fmt.Fprintf(c.out, "Unknown command: %s (type 'help' for commands)\n", cmd)
	}
	return false
}

func (c *Console) printHelp() {
	fmt.Fprintln(c.out, `
Simulator Commands:
  Devices:
    devices                    - List registered devices
    status [id]                - Show device status (all devices without id)
    connect <id|all>           - Connect a device
    disconnect <id|all>        - Disconnect a device
    reset <id|all>             - Reset a device to its initial state
    op <id> <action> [k=v ...] - Run a device action, e.g. op scale getWeight
    trigger <id> <event> [k=v] - Inject an external event, e.g. trigger printer paperOut

  Events:
    history [type] [n]         - Show recent events (default 20)
    stats                      - Show event history statistics
    watch on|off               - Print events as they are published

  Flows:
    flow list                  - List registered flows and instances
    flow start <name> [k=v]    - Start a flow instance
    flow advance <id>          - Acknowledge the current step

  General:
    help                       - Show this help
    quit                       - Exit`)
}

func (c *Console) cmdDevices() {
	ids := c.hw.Devices()
	if len(ids) == 0 {
		fmt.Fprintln(c.out, "No devices registered")
		return
	}
	for _, id := range ids {
		st, err := c.hw.DeviceStatus(id)
		if err != nil {
			continue
		}
		fmt.Fprintf(c.out, "  %-16s %-12s %-13s %s\n", id, st.DeviceType, st.ConnectionState,
			strings.Join(hardware.Actions(st.DeviceType), ","))
	}
}

func (c *Console) cmdStatus(args []string) {
	ids := args
	if len(ids) == 0 {
		ids = c.hw.Devices()
	}
	for _, id := range ids {
		st, err := c.hw.DeviceStatus(id)
		if err != nil {
			fmt.Fprintf(c.out, "Error: %v\n", err)
			continue
		}
		state, _ := json.Marshal(st.State)
		fmt.Fprintf(c.out, "%s (%s): %s %s\n", id, st.DeviceType, st.ConnectionState, state)
	}
}

func (c *Console) report(what string, results map[string]error) {
	ids := make([]string, 0, len(results))
	for id := range results {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		if err := results[id]; err != nil {
			fmt.Fprintf(c.out, "  %s: %v\n", id, err)
			continue
		}
		fmt.Fprintf(c.out, "  %s: %s\n", id, what)
	}
}

func (c *Console) cmdConnect(ctx context.Context, args []string) {
	if len(args) < 1 {
		fmt.Fprintln(c.out, "Usage: connect <id|all>")
		return
	}
	if args[0] == "all" {
		c.report("connected", c.hw.ConnectAllDevices(ctx))
		return
	}
	c.report("connected", map[string]error{args[0]: c.hw.ConnectDevice(ctx, args[0])})
}

func (c *Console) cmdDisconnect(args []string) {
	if len(args) < 1 {
		fmt.Fprintln(c.out, "Usage: disconnect <id|all>")
		return
	}
	if args[0] == "all" {
		c.report("disconnected", c.hw.DisconnectAllDevices())
		return
	}
	c.report("disconnected", map[string]error{args[0]: c.hw.DisconnectDevice(args[0])})
}

func (c *Console) cmdReset(args []string) {
	if len(args) < 1 {
		fmt.Fprintln(c.out, "Usage: reset <id|all>")
		return
	}
	if args[0] == "all" {
		c.report("reset", c.hw.ResetAllDevices())
		return
	}
	c.report("reset", map[string]error{args[0]: c.hw.ResetDevice(args[0])})
}

func (c *Console) cmdOperate(ctx context.Context, args []string) {
	if len(args) < 2 {
		fmt.Fprintln(c.out, "Usage: op <id> <action> [key=value ...]")
		return
	}
	res, err := c.hw.Operate(ctx, args[0], args[1], hardware.Params(parseArgs(args[2:])))
	if err != nil {
		fmt.Fprintf(c.out, "Error: %v\n", err)
		return
	}
	out, _ := json.Marshal(res)
	fmt.Fprintf(c.out, "%s %s: %s\n", args[0], args[1], out)
}

func (c *Console) cmdTrigger(args []string) {
	if len(args) < 2 {
		fmt.Fprintln(c.out, "Usage: trigger <id> <event> [key=value ...]")
		return
	}
	if err := c.hw.TriggerDeviceEvent(args[0], args[1], parseArgs(args[2:])); err != nil {
		fmt.Fprintf(c.out, "Error: %v\n", err)
		return
	}
	fmt.Fprintf(c.out, "Triggered %s on %s\n", args[1], args[0])
}

func (c *Console) cmdHistory(args []string) {
	var (
		deviceType model.DeviceType
		limit      = 20
	)
	for _, a := range args {
		if n, err := strconv.Atoi(a); err == nil {
			limit = n
			continue
		}
		deviceType = model.DeviceType(a)
	}
	events := c.hist.Events(deviceType, limit)
	if len(events) == 0 {
		fmt.Fprintln(c.out, "No events")
		return
	}
	for _, e := range events {
		c.printEvent(e)
	}
}

func (c *Console) printEvent(e model.Event) {
	payload, _ := json.Marshal(e.Payload())
	fmt.Fprintf(c.out, "  %s %-28s %s\n", e.Timestamp().Format("15:04:05.000"), e.String(), payload)
}

func (c *Console) cmdStats() {
	st := c.hist.Stats()
	fmt.Fprintf(c.out, "Events: %d/%d (recent %d in %s), patterns: %d\n",
		st.Total, st.Capacity, st.Recent, st.Window, st.Patterns)
	types := make([]string, 0, len(st.ByDeviceType))
	for t := range st.ByDeviceType {
		types = append(types, string(t))
	}
	sort.Strings(types)
	for _, t := range types {
		fmt.Fprintf(c.out, "  %-12s %d\n", t, st.ByDeviceType[model.DeviceType(t)])
	}
}

func (c *Console) cmdWatch(args []string) {
	if len(args) != 1 || (args[0] != "on" && args[0] != "off") {
		fmt.Fprintln(c.out, "Usage: watch on|off")
		return
	}
	c.unwatch()
	if args[0] == "on" {
		c.mu.Lock()
		c.detach = c.hist.SubscribeAll(c.printEvent)
		c.mu.Unlock()
		fmt.Fprintln(c.out, "Watching events")
	}
}

func (c *Console) unwatch() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.detach != nil {
		c.detach()
		c.detach = nil
	}
}

func (c *Console) cmdFlow(ctx context.Context, args []string) {
	if len(args) < 1 {
		fmt.Fprintln(c.out, "Usage: flow list|start|advance")
		return
	}
	switch args[0] {
	case "list":
		for _, d := range c.flows.Flows() {
			fmt.Fprintf(c.out, "  %s (%d steps)\n", d.Name, len(d.Steps))
		}
		for _, inst := range c.flows.Instances() {
			fmt.Fprintf(c.out, "  %s %s %s %d/%d\n", inst.ID, inst.Flow, inst.Status, inst.CurrentStep, inst.TotalSteps())
		}

	case "start":
		if len(args) < 2 {
			fmt.Fprintln(c.out, "Usage: flow start <name> [key=value ...]")
			return
		}
		id, err := c.flows.StartFlow(ctx, args[1], parseArgs(args[2:]))
		if err != nil {
			fmt.Fprintf(c.out, "Error: %v\n", err)
			return
		}
		fmt.Fprintf(c.out, "Started %s: %s\n", args[1], id)

	case "advance":
		if len(args) < 2 {
			fmt.Fprintln(c.out, "Usage: flow advance <id>")
			return
		}
		if err := c.flows.AdvanceFlow(ctx, args[1]); err != nil {
			fmt.Fprintf(c.out, "Error: %v\n", err)
			return
		}
		inst, err := c.flows.Instance(args[1])
		if err != nil {
			fmt.Fprintf(c.out, "Error: %v\n", err)
			return
		}
		fmt.Fprintf(c.out, "%s: %s %d/%d\n", inst.ID, inst.Status, inst.CurrentStep, inst.TotalSteps())

	default:
		fmt.Fprintf(c.out, "Unknown flow command: %s\n", args[0])
	}
}

// parseArgs turns key=value words into a parameter map. Numbers and
// booleans are converted; everything else stays a string.
func parseArgs(args []string) map[string]any {
	if len(args) == 0 {
		return nil
	}
	out := make(map[string]any, len(args))
	for _, a := range args {
		key, raw, ok := strings.Cut(a, "=")
		if !ok {
			out[a] = true
			continue
		}
		out[key] = parseValue(raw)
	}
	return out
}

func parseValue(raw string) any {
	switch raw {
	case "true":
		return true
	case "false":
		return false
	}
	if n, err := strconv.ParseFloat(raw, 64); err == nil {
		return n
	}
	return raw
}
