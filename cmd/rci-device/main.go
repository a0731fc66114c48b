// Command rci-device is a reference RCI device implementation.
//
// This command serves a YAML device schema over the RCI protocol with:
//   - CLI argument parsing
//   - TOML configuration file support
//   - Persistent settings with factory reset
//   - mDNS discovery advertising
//   - Protocol event logging
//   - An interactive console
//
// Usage:
//
//	rci-device [flags]
//
// Flags:
//
//	-config string       TOML configuration file path
//	-schema string       Device schema file (default "device.yaml")
//	-listen string       Listen address (default ":4530")
//	-state-dir string    Directory for persisted settings
//	-state-store string  Settings store format: json, sqlite (default "json")
//	-sessions int        Concurrent RCI sessions (default 4)
//	-log-level string    Log level: debug, info, warn, error (default "info")
//	-protocol-log string Protocol event log file
//	-interactive         Start the interactive console
//
// Examples:
//
//	# Serve the bundled schema
//	rci-device -schema cmd/rci-device/device.yaml -state-dir /tmp/rci
//
//	# Start from a config file and log every frame
//	rci-device -config /etc/rci/device.toml -protocol-log /tmp/rci.log
package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/mash-protocol/rci-go/cmd/rci-device/interactive"
	"github.com/mash-protocol/rci-go/pkg/backend"
	"github.com/mash-protocol/rci-go/pkg/discovery"
	rcilog "github.com/mash-protocol/rci-go/pkg/log"
	"github.com/mash-protocol/rci-go/pkg/persistence"
	"github.com/mash-protocol/rci-go/pkg/rci"
	"github.com/mash-protocol/rci-go/pkg/schema"
	"github.com/mash-protocol/rci-go/pkg/transport"
)

var config = DefaultConfig()

func init() {
	flag.StringVar(&config.ConfigFile, "config", "", "TOML configuration file path")
	flag.StringVar(&config.SchemaFile, "schema", config.SchemaFile, "Device schema file")
	flag.StringVar(&config.Listen, "listen", config.Listen, "Listen address")
	flag.StringVar(&config.StateDir, "state-dir", "", "Directory for persisted settings (empty disables persistence)")
	flag.StringVar(&config.StateStore, "state-store", config.StateStore, "Settings store format: json, sqlite")
	flag.BoolVar(&config.Reset, "reset", false, "Discard persisted settings on startup")

	flag.StringVar(&config.DeviceID, "id", "", "Device id (auto-generated if empty)")
	flag.StringVar(&config.Model, "model", config.Model, "Device model name")
	flag.StringVar(&config.DeviceName, "name", "", "User-friendly device name")

	flag.IntVar(&config.Sessions, "sessions", config.Sessions, "Concurrent RCI sessions")
	flag.IntVar(&config.MaxContent, "max-content", config.MaxContent, "Per-session content buffer in bytes")
	flag.DurationVar(&config.IdleTimeout, "idle-timeout", 0, "Close silent connections after this long (0 disables)")

	flag.BoolVar(&config.Advertise, "advertise", config.Advertise, "Advertise the device via mDNS")
	flag.StringVar(&config.Interface, "interface", "", "Network interface for mDNS (empty uses all)")

	flag.StringVar(&config.LogLevel, "log-level", config.LogLevel, "Log level: debug, info, warn, error")
	flag.StringVar(&config.ProtocolLog, "protocol-log", "", "Protocol event log file")
	flag.BoolVar(&config.Interactive, "interactive", false, "Start the interactive console")
}

func main() {
	flag.Parse()

	if config.ConfigFile != "" {
		explicit := make(map[string]bool)
		flag.Visit(func(f *flag.Flag) { explicit[f.Name] = true })
		if err := loadConfigFile(config.ConfigFile, &config, explicit); err != nil {
			log.Fatalf("Invalid configuration: %v", err)
		}
	}
	if err := config.validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}
	if config.DeviceID == "" {
		config.DeviceID = "rci-" + uuid.NewString()[:8]
	}

	logger := setupLogging(config.LogLevel)

	log.Println("RCI Reference Device")
	log.Println("====================")
	log.Printf("Device ID: %s", config.DeviceID)
	log.Printf("Schema: %s", config.SchemaFile)

	s, err := schema.Load(config.SchemaFile)
	if err != nil {
		log.Fatalf("Failed to load schema: %v", err)
	}
	log.Printf("Schema version %q: %d setting groups, %d state groups", s.Version, len(s.Settings), len(s.States))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	started := time.Now()
	opts := []backend.Option{
		backend.WithLogger(logger),
		backend.WithCommand("uptime", func(string) (string, error) {
			return time.Since(started).Truncate(time.Second).String(), nil
		}),
		backend.WithRebootHook(func() error {
			log.Println("Reboot requested by controller")
			return nil
		}),
	}

	var settings persistence.Store
	if config.StateDir != "" {
		st, closeSettings, err := config.openSettings()
		if err != nil {
			log.Fatalf("Failed to open settings: %v", err)
		}
		defer closeSettings()
		settings = st
		if config.Reset {
			if err := settings.Clear(); err != nil {
				log.Fatalf("Failed to clear settings: %v", err)
			}
			log.Println("Persisted settings discarded")
		}
		opts = append(opts, backend.WithSaver(settings))
	}

	store, err := backend.New(s, opts...)
	if err != nil {
		log.Fatalf("Failed to create settings store: %v", err)
	}
	if settings != nil {
		snap, err := settings.Load()
		if err != nil {
			log.Fatalf("Failed to load settings: %v", err)
		}
		if snap != nil {
			if err := store.Restore(snap); err != nil {
				log.Printf("Warning: Failed to restore settings: %v", err)
			} else {
				log.Printf("Restored settings from %s (saved %s)", settings.Path(), snap.SavedAt.Format(time.RFC3339))
			}
		}
	}

	protoLog, closeLog := setupProtocolLog(config.ProtocolLog, logger)
	defer closeLog()

	arena := rci.NewArena(config.Sessions, config.MaxContent)

	server, err := transport.NewServer(transport.ServerConfig{
		Address:     config.Listen,
		IdleTimeout: config.IdleTimeout,
		Logger:      protoLog,
		Slog:        logger,
		NewExchanger: func(connID string) (transport.Exchanger, error) {
			return rci.NewEngine(s, store, rci.Config{
				MaxContentLength: config.MaxContent,
				ConnectionID:     connID,
				Logger:           logger,
			}, rci.WithArena(arena), rci.WithProtocolLogger(protoLog), rci.WithRebooter(store))
		},
		OnConnect: func(conn *transport.ServerConn) {
			log.Printf("[CONN] Controller connected: %s (%s)", conn.RemoteAddr(), conn.ConnID())
		},
		OnDisconnect: func(conn *transport.ServerConn) {
			log.Printf("[CONN] Controller disconnected: %s", conn.RemoteAddr())
		},
		OnError: func(conn *transport.ServerConn, err error) {
			log.Printf("[CONN] Error on %s: %v", conn.RemoteAddr(), err)
		},
	})
	if err != nil {
		log.Fatalf("Failed to create server: %v", err)
	}
	if err := server.Start(ctx); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
	log.Printf("Listening on %s (%d sessions)", server.Addr(), config.Sessions)

	var adv *discovery.MDNSAdvertiser
	if config.Advertise {
		adv = discovery.NewMDNSAdvertiser(discovery.AdvertiserConfig{
			Interface: config.Interface,
			TTL:       discovery.DefaultTTL,
		})
		info := &discovery.DeviceInfo{
			DeviceID:      config.DeviceID,
			Model:         config.Model,
			SchemaVersion: s.Version,
			DeviceName:    config.DeviceName,
			Port:          listenPort(server.Addr()),
		}
		if err := adv.Advertise(ctx, info); err != nil {
			log.Printf("Warning: mDNS advertising failed: %v", err)
			adv = nil
		} else {
			log.Printf("Advertising %s as %s", discovery.ServiceType, info.Instance())
		}
	}

	go runUptime(ctx, store, started)

	if config.Interactive {
		console, err := interactive.New(store, server, interactive.Info{
			DeviceID: config.DeviceID,
			Model:    config.Model,
			Listen:   server.Addr().String(),
			Sessions: arena.Available,
		})
		if err != nil {
			log.Fatalf("Failed to start console: %v", err)
		}
		log.SetOutput(console.Stdout())
		go console.Run(ctx, cancel)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-sigCh:
		log.Printf("Received signal: %v", sig)
	case <-ctx.Done():
	}
	log.Println("Shutting down...")

	if adv != nil {
		if err := adv.Stop(); err != nil {
			log.Printf("Error stopping advertiser: %v", err)
		}
	}
	if err := server.Stop(); err != nil {
		log.Printf("Error stopping server: %v", err)
	}
	cancel()

	log.Println("Goodbye!")
}

// setupLogging configures the standard logger and returns the operational
// slog logger used by the library packages.
func setupLogging(level string) *slog.Logger {
	log.SetFlags(log.Ltime | log.Lmicroseconds)

	var lvl slog.Level
	switch level {
	case "debug":
		log.SetFlags(log.Ltime | log.Lmicroseconds | log.Lshortfile)
		lvl = slog.LevelDebug
	case "warn":
		log.SetFlags(log.Ltime)
		lvl = slog.LevelWarn
	case "error":
		log.SetFlags(log.Ltime)
		lvl = slog.LevelError
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
	slog.SetDefault(logger)
	return logger
}

// setupProtocolLog returns the protocol event sink. Debug level also
// mirrors events into the operational log.
func setupProtocolLog(path string, logger *slog.Logger) (rcilog.Logger, func()) {
	var sinks []rcilog.Logger
	closeFn := func() {}

	if path != "" {
		fl, err := rcilog.NewFileLogger(path)
		if err != nil {
			log.Fatalf("Failed to open protocol log: %v", err)
		}
		log.Printf("Protocol log: %s", path)
		sinks = append(sinks, fl)
		closeFn = func() {
			n := fl.Count()
			if err := fl.Close(); err != nil {
				log.Printf("Error closing protocol log: %v", err)
			}
			log.Printf("Protocol log: %d events written", n)
		}
	}
	if logger.Enabled(context.Background(), slog.LevelDebug) {
		sinks = append(sinks, rcilog.NewSlogAdapter(logger))
	}

	switch len(sinks) {
	case 0:
		return rcilog.NoopLogger{}, closeFn
	case 1:
		return sinks[0], closeFn
	default:
		return rcilog.NewMultiLogger(sinks...), closeFn
	}
}

func listenPort(addr net.Addr) uint16 {
	if tcp, ok := addr.(*net.TCPAddr); ok {
		return uint16(tcp.Port)
	}
	return discovery.DefaultPort
}

// runUptime publishes the seconds since start to state/system[1]/uptime,
// when the schema has that element.
func runUptime(ctx context.Context, store *backend.Store, started time.Time) {
	const path = "state/system[1]/uptime"
	publish := func() error {
		secs := uint32(time.Since(started).Seconds())
		return store.SetState(path, rci.Uint32Value(schema.TypeUint32, secs))
	}
	if err := publish(); err != nil {
		slog.Debug("uptime not published", "path", path, "error", err)
		return
	}

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := publish(); err != nil {
				log.Printf("Warning: publish uptime: %v", err)
				return
			}
		}
	}
}
