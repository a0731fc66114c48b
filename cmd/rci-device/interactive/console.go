// Package interactive provides the interactive command-line interface
// for the RCI device.
package interactive

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/chzyer/readline"
	"github.com/mash-protocol/rci-go/pkg/schema"
)

// Store is the part of the settings backend the console drives.
// Implemented by *backend.Store.
type Store interface {
	GetText(path string) (string, error)
	SetText(path, text string) error
	Dump() []string
	FactoryReset() error
	Schema() *schema.Schema
}

// Stats reports server state. Implemented by *transport.Server.
type Stats interface {
	ConnectionCount() int
}

// Info describes the running device for the status command.
type Info struct {
	DeviceID string
	Model    string
	Listen   string
	Sessions func() int
}

// Device handles interactive mode for rci-device.
type Device struct {
	store Store
	stats Stats
	info  Info
	rl    *readline.Instance
	out   io.Writer
}

// New creates a new interactive device handler.
func New(store Store, stats Stats, info Info) (*Device, error) {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "device> ",
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
		AutoComplete:    completer(store.Schema()),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create readline: %w", err)
	}
	return &Device{store: store, stats: stats, info: info, rl: rl, out: rl.Stdout()}, nil
}

// Stdout returns a writer that properly coordinates with the readline input.
// Use this for log output to avoid interfering with the command prompt.
func (d *Device) Stdout() io.Writer {
	return d.rl.Stdout()
}

// Run starts the interactive command loop.
func (d *Device) Run(ctx context.Context, cancel context.CancelFunc) {
	defer d.rl.Close()

	d.printHelp()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		line, err := d.rl.Readline()
		if err != nil {
			if err == readline.ErrInterrupt {
				continue
			}
			fmt.Fprintln(d.out, "Exiting...")
			cancel()
			return
		}
		if !d.execute(line) {
			cancel()
			return
		}
	}
}

// execute runs one command line. It returns false when the console
// should exit.
func (d *Device) execute(line string) bool {
	parts := strings.Fields(strings.TrimSpace(line))
	if len(parts) == 0 {
		return true
	}
	cmd := strings.ToLower(parts[0])
	args := parts[1:]

	switch cmd {
	case "help", "?":
		d.printHelp()
	case "get", "g":
		d.cmdGet(args)
	case "set", "s":
		d.cmdSet(args)
	case "dump", "d":
		d.cmdDump()
	case "schema":
		d.cmdSchema(args)
	case "reset":
		d.cmdReset()
	case "status":
		d.cmdStatus()
	case "quit", "exit", "q":
		fmt.Fprintln(d.out, "Exiting...")
		return false
	default:
		fmt.Fprintf(d.out, "Unknown command: %s (type 'help' for commands)\n", cmd)
	}
	return true
}

func (d *Device) printHelp() {
	fmt.Fprintln(d.out, `
RCI Device Commands:
  Values:
    get <path>         - Show the current value of an element
    set <path> <value> - Change an element (settings are saved at once)
    dump               - List all values that differ from their defaults
    reset              - Restore factory defaults

  Inspection:
    schema [group]     - List element paths
    status             - Show device status

  General:
    help               - Show this help
    quit               - Exit device

  Path Format:
    <setting|state>/<group>[<n>]/<list>[<n|key>]/.../<element>
    e.g. setting/serial[1]/baud or setting/users[admin]/fullname`)
}

func (d *Device) cmdGet(args []string) {
	if len(args) != 1 {
		fmt.Fprintln(d.out, "Usage: get <path>")
		return
	}
	text, err := d.store.GetText(args[0])
	if err != nil {
		fmt.Fprintf(d.out, "Error: %v\n", err)
		return
	}
	fmt.Fprintf(d.out, "%s = %s\n", args[0], text)
}

func (d *Device) cmdSet(args []string) {
	if len(args) < 2 {
		fmt.Fprintln(d.out, "Usage: set <path> <value>")
		return
	}
	value := strings.Trim(strings.Join(args[1:], " "), "\"'")
	if err := d.store.SetText(args[0], value); err != nil {
		fmt.Fprintf(d.out, "Set failed: %v\n", err)
		return
	}
	fmt.Fprintln(d.out, "OK")
}

func (d *Device) cmdDump() {
	lines := d.store.Dump()
	if len(lines) == 0 {
		fmt.Fprintln(d.out, "All values at defaults")
		return
	}
	for _, l := range lines {
		fmt.Fprintf(d.out, "  %s\n", l)
	}
}

func (d *Device) cmdSchema(args []string) {
	s := d.store.Schema()
	fmt.Fprintf(d.out, "Schema version: %s\n", s.Version)
	for _, p := range Paths(s) {
		if len(args) > 0 && !strings.Contains(p.Path, args[0]) {
			continue
		}
		fmt.Fprintf(d.out, "  %-40s %s\n", p.Path, p.Describe())
	}
}

func (d *Device) cmdReset() {
	if err := d.store.FactoryReset(); err != nil {
		fmt.Fprintf(d.out, "Reset failed: %v\n", err)
		return
	}
	fmt.Fprintln(d.out, "Factory defaults restored")
}

func (d *Device) cmdStatus() {
	fmt.Fprintln(d.out, "\nDevice Status")
	fmt.Fprintln(d.out, "-------------------------------------------")
	fmt.Fprintf(d.out, "  Device ID:      %s\n", d.info.DeviceID)
	fmt.Fprintf(d.out, "  Model:          %s\n", d.info.Model)
	fmt.Fprintf(d.out, "  Listening on:   %s\n", d.info.Listen)
	fmt.Fprintf(d.out, "  Connections:    %d\n", d.stats.ConnectionCount())
	if d.info.Sessions != nil {
		fmt.Fprintf(d.out, "  Free sessions:  %d\n", d.info.Sessions())
	}
	fmt.Fprintf(d.out, "  Changed values: %d\n", len(d.store.Dump()))
	fmt.Fprintln(d.out)
}
