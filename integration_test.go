package rci_test

import (
	"context"
	"errors"
	"io"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/mash-protocol/rci-go/pkg/backend"
	"github.com/mash-protocol/rci-go/pkg/command"
	"github.com/mash-protocol/rci-go/pkg/connection"
	"github.com/mash-protocol/rci-go/pkg/discovery"
	"github.com/mash-protocol/rci-go/pkg/log"
	"github.com/mash-protocol/rci-go/pkg/persistence"
	"github.com/mash-protocol/rci-go/pkg/rci"
	"github.com/mash-protocol/rci-go/pkg/schema"
	"github.com/mash-protocol/rci-go/pkg/transport"
	"github.com/mash-protocol/rci-go/pkg/wire"
)

const e2eSchema = `
version: "1.0"
settings:
  - name: network
    items:
      - {name: hostname, type: string, max_length: 32, default: "rci-device"}
      - {name: dhcp, type: bool, default: "true"}
  - name: users
    kind: variable_dictionary
    instances: 4
    items:
      - {name: fullname, type: string}
      - {name: level, type: enum, enum: [guest, operator, admin], default: "guest"}
states:
  - name: system
    items:
      - {name: uptime, type: uint32, access: read_only}
`

// device is a device stack listening on loopback.
type device struct {
	server *transport.Server
	store  *backend.Store
	trace  *log.FileLogger
}

func startDevice(t *testing.T, dir string, chunk int) *device {
	t.Helper()

	s, err := schema.Parse([]byte(e2eSchema))
	if err != nil {
		t.Fatalf("Failed to parse schema: %v", err)
	}

	settings := persistence.NewSettingsStore(filepath.Join(dir, "settings.json"))
	store, err := backend.New(s, backend.WithSaver(settings))
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	snap, err := settings.Load()
	if err != nil {
		t.Fatalf("Failed to load settings: %v", err)
	}
	if snap != nil {
		if err := store.Restore(snap); err != nil {
			t.Fatalf("Failed to restore settings: %v", err)
		}
	}

	trace, err := log.NewFileLogger(filepath.Join(dir, "device.rlog"))
	if err != nil {
		t.Fatalf("Failed to create protocol log: %v", err)
	}

	arena := rci.NewArena(2, 0)
	server, err := transport.NewServer(transport.ServerConfig{
		Address:   "127.0.0.1:0",
		ChunkSize: chunk,
		Logger:    trace,
		NewExchanger: func(connID string) (transport.Exchanger, error) {
			return rci.NewEngine(s, store, rci.Config{ConnectionID: connID},
				rci.WithArena(arena), rci.WithProtocolLogger(trace), rci.WithRebooter(store))
		},
	})
	if err != nil {
		t.Fatalf("Failed to create server: %v", err)
	}
	if err := server.Start(context.Background()); err != nil {
		t.Fatalf("Failed to start server: %v", err)
	}

	d := &device{server: server, store: store, trace: trace}
	t.Cleanup(d.stop)
	return d
}

func (d *device) stop() {
	d.server.Stop()
	d.trace.Close()
}

func connect(t *testing.T, addr string, chunk int) *connection.Manager {
	t.Helper()
	client := transport.NewClient(transport.ClientConfig{ChunkSize: chunk})
	m := connection.NewManager(func(ctx context.Context) (connection.Conn, error) {
		return client.Connect(ctx, addr)
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := m.Connect(ctx); err != nil {
		t.Fatalf("Failed to connect: %v", err)
	}
	t.Cleanup(func() { m.Close() })
	return m
}

// run sends one request and returns the rendered reply.
func run(t *testing.T, m *connection.Manager, s *schema.Schema, b *command.Builder) []string {
	t.Helper()
	if err := b.Err(); err != nil {
		t.Fatalf("Failed to build request: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	data, status, err := m.Exchange(ctx, b.Bytes())
	if err != nil {
		t.Fatalf("Exchange failed: %v", err)
	}
	if status != wire.StatusComplete && status != wire.StatusAborted {
		t.Fatalf("Exchange status = %s", status)
	}
	reply, err := command.Decode(s, data)
	if err != nil {
		t.Fatalf("Failed to decode reply: %v", err)
	}
	return reply.Lines()
}

func path(t *testing.T, s *schema.Schema, text string) *command.Path {
	t.Helper()
	p, err := command.ParsePath(s, text)
	if err != nil {
		t.Fatalf("ParsePath(%q): %v", text, err)
	}
	return p
}

func set(t *testing.T, m *connection.Manager, s *schema.Schema, text, value string) []string {
	t.Helper()
	p := path(t, s, text)
	b, err := p.Set(command.New(p.SetCommand()), value)
	if err != nil {
		t.Fatalf("Set(%q): %v", text, err)
	}
	return run(t, m, s, b)
}

func query(t *testing.T, m *connection.Manager, s *schema.Schema, text string) []string {
	t.Helper()
	p := path(t, s, text)
	return run(t, m, s, p.Query(command.New(p.QueryCommand())))
}

func contains(lines []string, want string) bool {
	for _, l := range lines {
		if l == want {
			return true
		}
	}
	return false
}

// TestE2E_SettingsOverTCP drives a device through the controller stack and
// checks that committed settings survive a restart.
func TestE2E_SettingsOverTCP(t *testing.T) {
	for _, chunk := range []int{0, 5} {
		dir := t.TempDir()
		dev := startDevice(t, dir, chunk)
		s := dev.store.Schema()
		m := connect(t, dev.server.Addr().String(), chunk)

		if got := query(t, m, s, "setting/network/hostname"); !contains(got, "setting/network[1]/hostname = rci-device") {
			t.Fatalf("chunk %d: default hostname missing: %v", chunk, got)
		}

		if got := set(t, m, s, "setting/network/hostname", "boiler-room"); !contains(got, "setting/network[1]/hostname: ok") {
			t.Fatalf("chunk %d: set hostname: %v", chunk, got)
		}
		if got := set(t, m, s, "setting/users[alice]/level", "admin"); !contains(got, "setting/users[alice]/level: ok") {
			t.Fatalf("chunk %d: set level: %v", chunk, got)
		}
		got := set(t, m, s, "setting/network/hostname", strings.Repeat("x", 40))
		if !strings.Contains(strings.Join(got, "\n"), "hostname: error") {
			t.Fatalf("chunk %d: overlong hostname accepted: %v", chunk, got)
		}

		if err := dev.store.SetState("state/system[1]/uptime", rci.Uint32Value(schema.TypeUint32, 42)); err != nil {
			t.Fatalf("SetState: %v", err)
		}
		if got := query(t, m, s, "state/system/uptime"); !contains(got, "state/system[1]/uptime = 42") {
			t.Fatalf("chunk %d: uptime: %v", chunk, got)
		}

		m.Close()
		dev.stop()

		dev = startDevice(t, dir, chunk)
		m = connect(t, dev.server.Addr().String(), chunk)

		got = query(t, m, s, "setting/network/hostname")
		if !contains(got, "setting/network[1]/hostname = boiler-room") {
			t.Errorf("chunk %d: hostname not restored: %v", chunk, got)
		}
		got = query(t, m, s, "setting/users")
		if !contains(got, "setting/users[alice]/level = admin") {
			t.Errorf("chunk %d: dictionary not restored: %v", chunk, got)
		}
		got = query(t, m, s, "state/system/uptime")
		if contains(got, "state/system[1]/uptime = 42") {
			t.Errorf("chunk %d: state survived restart: %v", chunk, got)
		}
	}
}

// TestE2E_ProtocolTrace checks that a device writes a readable trace of
// envelopes and callbacks.
func TestE2E_ProtocolTrace(t *testing.T) {
	dir := t.TempDir()
	dev := startDevice(t, dir, 0)
	s := dev.store.Schema()
	m := connect(t, dev.server.Addr().String(), 0)

	query(t, m, s, "setting/network/dhcp")
	m.Close()
	dev.stop()

	r, err := log.NewFilteredReader(filepath.Join(dir, "device.rlog"), log.Filter{Request: "ELEMENT_PROCESS"})
	if err != nil {
		t.Fatalf("NewFilteredReader: %v", err)
	}
	defer r.Close()

	var n int
	for {
		e, err := r.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		if e.Callback == nil || e.SessionID == "" {
			t.Errorf("unexpected event %+v", e)
		}
		n++
	}
	if n == 0 {
		t.Error("no ELEMENT_PROCESS callbacks traced")
	}
}

// TestE2E_Discovery tests that a controller can find a device via mDNS.
func TestE2E_Discovery(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	adv := discovery.NewMDNSAdvertiser(discovery.DefaultAdvertiserConfig())
	info := &discovery.DeviceInfo{DeviceID: "rci-e2e1", Model: "E2E", SchemaVersion: "1.0", Port: 4599}
	if err := adv.Advertise(ctx, info); err != nil {
		t.Skipf("mDNS not available: %v", err)
	}
	defer adv.Stop()

	browser := discovery.NewMDNSBrowser(discovery.DefaultBrowserConfig())
	defer browser.Stop()

	svc, err := browser.Find(ctx, "rci-e2e1")
	if err != nil {
		t.Skipf("mDNS lookup failed: %v", err)
	}
	if svc.Port != 4599 {
		t.Errorf("Port = %d, want 4599", svc.Port)
	}
	if svc.Info.SchemaVersion != "1.0" {
		t.Errorf("SchemaVersion = %q, want 1.0", svc.Info.SchemaVersion)
	}
}
