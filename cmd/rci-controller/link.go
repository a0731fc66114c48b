package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net"
	"sync"

	"github.com/mash-protocol/rci-go/pkg/connection"
	"github.com/mash-protocol/rci-go/pkg/discovery"
	"github.com/mash-protocol/rci-go/pkg/transport"
	"github.com/mash-protocol/rci-go/pkg/version"
	"github.com/mash-protocol/rci-go/pkg/wire"
)

// deviceLink keeps the controller connected to one device at a time.
// It implements interactive.Link.
type deviceLink struct {
	client  *transport.Client
	browser discovery.Browser
	logger  *slog.Logger
	schema  string // loaded schema version

	mu      sync.Mutex
	manager *connection.Manager
	address string
}

func newDeviceLink(client *transport.Client, browser discovery.Browser, schemaVersion string, logger *slog.Logger) *deviceLink {
	return &deviceLink{client: client, browser: browser, schema: schemaVersion, logger: logger}
}

// Connect resolves target and replaces the current connection.
func (l *deviceLink) Connect(ctx context.Context, target string) error {
	address, err := l.resolve(ctx, target)
	if err != nil {
		return err
	}

	m := connection.NewManager(
		func(ctx context.Context) (connection.Conn, error) {
			cc, err := l.client.Connect(ctx, address)
			if err != nil {
				return nil, err
			}
			return cc, nil
		},
		connection.WithLogger(l.logger),
		connection.WithStateHook(func(old, state connection.State) {
			log.Printf("[CONN] %s: %s -> %s", address, old, state)
		}),
	)
	if err := m.Connect(ctx); err != nil {
		m.Close()
		return err
	}

	l.mu.Lock()
	old := l.manager
	l.manager, l.address = m, address
	l.mu.Unlock()
	if old != nil {
		old.Close()
	}
	return nil
}

// resolve maps a device id to an address through mDNS. Anything with a
// port is used as given. Devices announcing a schema of another major
// version are refused.
func (l *deviceLink) resolve(ctx context.Context, target string) (string, error) {
	if _, _, err := net.SplitHostPort(target); err == nil {
		return target, nil
	}
	if l.browser == nil {
		return "", fmt.Errorf("%s: not host:port and discovery is disabled", target)
	}
	svc, err := l.browser.Find(ctx, target)
	if err != nil {
		return "", fmt.Errorf("find %s: %w", target, err)
	}
	if err := version.Check(l.schema, svc.Info.SchemaVersion); err != nil {
		return "", fmt.Errorf("%s: %w", target, err)
	}
	log.Printf("Found device %s at %s", svc.Info.DeviceID, svc.Address())
	return svc.Address(), nil
}

// Exchange runs one request on the current device.
func (l *deviceLink) Exchange(ctx context.Context, request []byte) ([]byte, wire.Status, error) {
	l.mu.Lock()
	m := l.manager
	l.mu.Unlock()
	if m == nil {
		return nil, 0, connection.ErrNotConnected
	}
	return m.Exchange(ctx, request)
}

// Status describes the current connection.
func (l *deviceLink) Status() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.manager == nil {
		return "not connected"
	}
	return fmt.Sprintf("%s (%s)", l.address, l.manager.State())
}

// Close drops the current connection.
func (l *deviceLink) Close() error {
	l.mu.Lock()
	m := l.manager
	l.manager = nil
	l.mu.Unlock()
	if m == nil {
		return nil
	}
	return m.Close()
}
