// Command rci-controller is a reference RCI controller.
//
// It connects to one device at a time, by address or by the device id the
// device announces over mDNS, and reads and writes its settings and states
// by path.
//
// Usage:
//
//	rci-controller [flags] [command]
//
// Flags:
//
//	-schema string        Device schema file (required)
//	-addr string          Device address (host:port)
//	-device string        Device id to look up by mDNS
//	-timeout duration     Timeout for one request (default 10s)
//	-keepalive            Ping the device while connected (default true)
//	-discovery            Enable mDNS lookups (default true)
//	-log-level string     Log level: debug, info, warn, error (default "info")
//	-protocol-log string  Write protocol events to this file
//
// With a command, the controller runs it once and exits. Without one it
// starts an interactive prompt.
//
// Examples:
//
//	# Read one group
//	rci-controller -schema device.yaml -addr 192.168.1.20:4530 query setting/serial
//
//	# Find a device by id and change a value
//	rci-controller -schema device.yaml -device rci-1a2b3c4d set setting/serial[1]/baud 19200
//
//	# Interactive mode
//	rci-controller -schema device.yaml
package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/mash-protocol/rci-go/cmd/rci-controller/interactive"
	"github.com/mash-protocol/rci-go/pkg/discovery"
	rcilog "github.com/mash-protocol/rci-go/pkg/log"
	"github.com/mash-protocol/rci-go/pkg/schema"
	"github.com/mash-protocol/rci-go/pkg/transport"
)

// Config holds the controller configuration.
type Config struct {
	SchemaFile  string
	Address     string
	DeviceID    string
	Timeout     time.Duration
	KeepAlive   bool
	Discovery   bool
	LogLevel    string
	ProtocolLog string
}

var config Config

func init() {
	flag.StringVar(&config.SchemaFile, "schema", "", "Device schema file (required)")
	flag.StringVar(&config.Address, "addr", "", "Device address (host:port)")
	flag.StringVar(&config.DeviceID, "device", "", "Device id to look up by mDNS")
	flag.DurationVar(&config.Timeout, "timeout", 10*time.Second, "Timeout for one request")
	flag.BoolVar(&config.KeepAlive, "keepalive", true, "Ping the device while connected")
	flag.BoolVar(&config.Discovery, "discovery", true, "Enable mDNS lookups")
	flag.StringVar(&config.LogLevel, "log-level", "info", "Log level: debug, info, warn, error")
	flag.StringVar(&config.ProtocolLog, "protocol-log", "", "Write protocol events to this file")
}

func main() {
	flag.Parse()

	logger := setupLogging(config.LogLevel)
	oneShot := flag.NArg() > 0

	if config.SchemaFile == "" {
		log.Fatalf("Missing -schema")
	}
	s, err := schema.Load(config.SchemaFile)
	if err != nil {
		log.Fatalf("Failed to load schema: %v", err)
	}

	protoLog, closeProtoLog := setupProtocolLog(config.ProtocolLog)
	defer closeProtoLog()

	clientCfg := transport.ClientConfig{Logger: protoLog}
	if config.KeepAlive {
		ka := transport.DefaultKeepAliveConfig()
		clientCfg.KeepAlive = &ka
	}
	client := transport.NewClient(clientCfg)

	var browser discovery.Browser
	if config.Discovery {
		b := discovery.NewMDNSBrowser(discovery.DefaultBrowserConfig())
		defer b.Stop()
		browser = b
	}

	link := newDeviceLink(client, browser, s.Version, logger)
	defer link.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if !oneShot {
		log.Println("RCI Reference Controller")
		log.Println("========================")
		log.Printf("Schema: %s (version %s)", config.SchemaFile, s.Version)
	}

	if target := firstNonEmpty(config.Address, config.DeviceID); target != "" {
		cctx, ccancel := context.WithTimeout(ctx, config.Timeout)
		err := link.Connect(cctx, target)
		ccancel()
		if err != nil {
			if oneShot {
				log.Fatalf("Failed to connect: %v", err)
			}
			log.Printf("Failed to connect: %v", err)
		}
	} else if oneShot {
		log.Fatalf("Missing -addr or -device")
	}

	ctl := interactive.New(link, browser, s, config.Timeout, os.Stdout)
	if oneShot {
		ctl.Execute(ctx, strings.Join(flag.Args(), " "))
		return
	}

	out, err := ctl.Prompt()
	if err != nil {
		log.Fatalf("Failed to create interactive controller: %v", err)
	}
	// Redirect log output through readline to avoid interfering with input
	log.SetOutput(out)
	go ctl.Run(ctx, cancel)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Printf("Received signal: %v", sig)
	case <-ctx.Done():
	}

	log.Println("Goodbye!")
}

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

func setupProtocolLog(path string) (rcilog.Logger, func()) {
	if path == "" {
		return nil, func() {}
	}
	fl, err := rcilog.NewFileLogger(path)
	if err != nil {
		log.Fatalf("Failed to open protocol log: %v", err)
	}
	return fl, func() {
		if err := fl.Close(); err != nil {
			log.Printf("Error closing protocol log: %v", err)
		}
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
