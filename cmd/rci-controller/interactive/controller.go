// Package interactive provides the interactive command-line interface
// for the RCI controller.
package interactive

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/chzyer/readline"
	"github.com/mash-protocol/rci-go/pkg/command"
	"github.com/mash-protocol/rci-go/pkg/discovery"
	"github.com/mash-protocol/rci-go/pkg/rci"
	"github.com/mash-protocol/rci-go/pkg/schema"
	"github.com/mash-protocol/rci-go/pkg/wire"
)

// Link carries requests to one device at a time.
type Link interface {
	// Connect drops the current device and connects to target, either
	// host:port or a device id to look up by mDNS.
	Connect(ctx context.Context, target string) error

	Exchange(ctx context.Context, request []byte) ([]byte, wire.Status, error)

	// Status describes the current connection.
	Status() string
}

// Controller handles interactive mode for rci-controller.
type Controller struct {
	link    Link
	browser discovery.Browser
	schema  *schema.Schema
	timeout time.Duration
	rl      *readline.Instance
	out     io.Writer
}

// New creates a controller writing to out. browser may be nil, which
// disables the browse command.
func New(link Link, browser discovery.Browser, s *schema.Schema, timeout time.Duration, out io.Writer) *Controller {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Controller{link: link, browser: browser, schema: s, timeout: timeout, out: out}
}

// Prompt switches the controller to a readline prompt. It returns a writer
// that properly coordinates with the readline input; use it for log output
// to avoid interfering with the command prompt.
func (c *Controller) Prompt() (io.Writer, error) {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "rci> ",
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create readline: %w", err)
	}
	c.rl = rl
	c.out = rl.Stdout()
	return c.out, nil
}

// Run starts the interactive command loop. Call Prompt first.
func (c *Controller) Run(ctx context.Context, cancel context.CancelFunc) {
	defer c.rl.Close()

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
		if !c.Execute(ctx, line) {
			cancel()
			return
		}
	}
}

// Execute runs one command line. It returns false when the controller
// should exit.
func (c *Controller) Execute(ctx context.Context, line string) bool {
	parts := strings.Fields(strings.TrimSpace(line))
	if len(parts) == 0 {
		return true
	}
	cmd := strings.ToLower(parts[0])
	args := parts[1:]

	switch cmd {
	case "help", "?":
		c.printHelp()
	case "connect":
		c.cmdConnect(ctx, args)
	case "browse":
		c.cmdBrowse(ctx, args)
	case "status":
		c.cmdStatus()
	case "query", "get":
		c.cmdQuery(ctx, args)
	case "set", "s":
		c.cmdSet(ctx, args)
	case "default":
		c.cmdDefault(ctx, args)
	case "remove", "rm":
		c.cmdRemove(ctx, args)
	case "do":
		c.cmdDo(ctx, args)
	case "reboot":
		c.run(ctx, command.New(rci.CommandReboot))
	case "factory":
		c.run(ctx, command.New(rci.CommandSetFactoryDefault))
	case "quit", "exit", "q":
		fmt.Fprintln(c.out, "Exiting...")
		return false
	default:
		fmt.Fprintf(c.out, "Unknown command: %s (type 'help' for commands)\n", cmd)
	}
	return true
}

func (c *Controller) printHelp() {
	fmt.Fprintln(c.out, `
RCI Controller Commands:
  Connection:
    connect <host:port|device-id>     - Connect to a device
    browse [seconds]                  - List devices announced by mDNS
    status                            - Show connection status

  Settings and states:
    query <path> [source] [compare=x] - Read values (source: current, stored, defaults)
    set <path> <value>                - Change an element
    default <path>                    - Reset an element to its default
    remove <path>                     - Remove a dictionary instance

  Device:
    do <target> [payload]             - Run a device command
    reboot                            - Reboot the device
    factory                           - Restore factory defaults

  General:
    help                              - Show this help
    quit                              - Exit controller

  Path Format:
    <setting|state>/<group>[<n>]/<list>[<n|key>]/.../<element>
    e.g. setting/serial[1]/baud or setting/users[admin]`)
}

func (c *Controller) cmdConnect(ctx context.Context, args []string) {
	if len(args) != 1 {
		fmt.Fprintln(c.out, "Usage: connect <host:port|device-id>")
		return
	}
	dctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	if err := c.link.Connect(dctx, args[0]); err != nil {
		fmt.Fprintf(c.out, "Connect failed: %v\n", err)
		return
	}
	fmt.Fprintf(c.out, "Connected: %s\n", c.link.Status())
}

func (c *Controller) cmdBrowse(ctx context.Context, args []string) {
	if c.browser == nil {
		fmt.Fprintln(c.out, "Browsing is disabled")
		return
	}
	wait := 3 * time.Second
	if len(args) > 0 {
		secs, err := strconv.Atoi(args[0])
		if err != nil || secs <= 0 {
			fmt.Fprintln(c.out, "Usage: browse [seconds]")
			return
		}
		wait = time.Duration(secs) * time.Second
	}

	fmt.Fprintln(c.out, "Browsing for RCI devices...")
	bctx, cancel := context.WithTimeout(ctx, wait)
	defer cancel()
	added, _, err := c.browser.Browse(bctx)
	if err != nil {
		fmt.Fprintf(c.out, "Browse error: %v\n", err)
		return
	}
	n := 0
	for svc := range added {
		n++
		fmt.Fprintf(c.out, "  %d. %s  %s (model: %s)\n", n, svc.Info.DeviceID, svc.Address(), svc.Info.Model)
	}
	if n == 0 {
		fmt.Fprintln(c.out, "No devices found")
	}
}

func (c *Controller) cmdStatus() {
	fmt.Fprintln(c.out, "\nController Status")
	fmt.Fprintln(c.out, "-------------------------------------------")
	fmt.Fprintf(c.out, "  Device:         %s\n", c.link.Status())
	fmt.Fprintf(c.out, "  Schema version: %s\n", c.schema.Version)
	fmt.Fprintf(c.out, "  Timeout:        %s\n", c.timeout)
	fmt.Fprintln(c.out)
}

func (c *Controller) cmdQuery(ctx context.Context, args []string) {
	if len(args) == 0 {
		fmt.Fprintln(c.out, "Usage: query <path> [current|stored|defaults] [compare=<source>]")
		return
	}
	p, err := command.ParsePath(c.schema, args[0])
	if err != nil {
		fmt.Fprintf(c.out, "Error: %v\n", err)
		return
	}
	b := command.New(p.QueryCommand())
	if err := queryOptions(b, args[1:]); err != nil {
		fmt.Fprintf(c.out, "Error: %v\n", err)
		return
	}
	c.run(ctx, p.Query(b))
}

// queryOptions adds the source and comparison attributes named in args.
func queryOptions(b *command.Builder, args []string) error {
	for _, a := range args {
		if name, ok := strings.CutPrefix(a, "compare="); ok {
			cmp, err := ParseCompare(name)
			if err != nil {
				return err
			}
			b.CompareTo(cmp)
			continue
		}
		src, err := ParseSource(a)
		if err != nil {
			return err
		}
		b.Source(src)
	}
	return nil
}

func (c *Controller) cmdSet(ctx context.Context, args []string) {
	if len(args) < 2 {
		fmt.Fprintln(c.out, "Usage: set <path> <value>")
		return
	}
	p, err := command.ParsePath(c.schema, args[0])
	if err != nil {
		fmt.Fprintf(c.out, "Error: %v\n", err)
		return
	}
	value := strings.Trim(strings.Join(args[1:], " "), "\"'")
	b, err := p.Set(command.New(p.SetCommand()), value)
	if err != nil {
		fmt.Fprintf(c.out, "Set failed: %v\n", err)
		return
	}
	c.run(ctx, b)
}

func (c *Controller) cmdDefault(ctx context.Context, args []string) {
	if len(args) != 1 {
		fmt.Fprintln(c.out, "Usage: default <path>")
		return
	}
	p, err := command.ParsePath(c.schema, args[0])
	if err != nil {
		fmt.Fprintf(c.out, "Error: %v\n", err)
		return
	}
	b, err := p.Default(command.New(p.SetCommand()))
	if err != nil {
		fmt.Fprintf(c.out, "Default failed: %v\n", err)
		return
	}
	c.run(ctx, b)
}

func (c *Controller) cmdRemove(ctx context.Context, args []string) {
	if len(args) != 1 {
		fmt.Fprintln(c.out, "Usage: remove <path>")
		return
	}
	p, err := command.ParsePath(c.schema, args[0])
	if err != nil {
		fmt.Fprintf(c.out, "Error: %v\n", err)
		return
	}
	b, err := p.Remove(command.New(p.SetCommand()))
	if err != nil {
		fmt.Fprintf(c.out, "Remove failed: %v\n", err)
		return
	}
	c.run(ctx, b)
}

func (c *Controller) cmdDo(ctx context.Context, args []string) {
	if len(args) == 0 {
		fmt.Fprintln(c.out, "Usage: do <target> [payload]")
		return
	}
	b := command.New(rci.CommandDoCommand).Target(args[0])
	if len(args) > 1 {
		b.Payload(strings.Join(args[1:], " "))
	}
	c.run(ctx, b)
}

// run sends one request and prints the reply.
func (c *Controller) run(ctx context.Context, b *command.Builder) {
	if err := b.Err(); err != nil {
		fmt.Fprintf(c.out, "Error: %v\n", err)
		return
	}
	ectx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	data, status, err := c.link.Exchange(ectx, b.Bytes())
	if err != nil {
		fmt.Fprintf(c.out, "Error: %v\n", err)
		return
	}
	if status != wire.StatusComplete {
		fmt.Fprintf(c.out, "Device answered %s\n", status)
	}
	if len(data) == 0 {
		if status == wire.StatusComplete {
			fmt.Fprintln(c.out, "OK")
		}
		return
	}

	reply, err := command.Decode(c.schema, data)
	if err != nil {
		fmt.Fprintf(c.out, "Bad reply: %v\n", err)
		return
	}
	lines := reply.Lines()
	for _, l := range lines {
		fmt.Fprintf(c.out, "  %s\n", l)
	}
	if reply.Payload != "" {
		fmt.Fprintf(c.out, "  %s\n", reply.Payload)
	}
	if len(lines) == 0 && reply.Payload == "" {
		fmt.Fprintln(c.out, "OK")
	}
}

// ParseSource parses a query source name.
func ParseSource(s string) (rci.Source, error) {
	for _, src := range []rci.Source{rci.SourceCurrent, rci.SourceStored, rci.SourceDefaults} {
		if strings.EqualFold(s, src.String()) {
			return src, nil
		}
	}
	return 0, fmt.Errorf("unknown source: %s (use: current, stored, defaults)", s)
}

// ParseCompare parses a query comparison name.
func ParseCompare(s string) (rci.CompareTo, error) {
	for _, c := range []rci.CompareTo{rci.CompareNone, rci.CompareCurrent, rci.CompareStored, rci.CompareDefaults} {
		if strings.EqualFold(s, c.String()) {
			return c, nil
		}
	}
	return 0, fmt.Errorf("unknown comparison: %s (use: none, current, stored, defaults)", s)
}
