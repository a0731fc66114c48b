package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/mash-protocol/rci-go/pkg/persistence"
)

// Config holds the device configuration.
type Config struct {
	ConfigFile string
	SchemaFile string
	Listen     string
	StateDir   string
	StateStore string
	Reset      bool

	DeviceID   string
	Model      string
	DeviceName string

	Sessions    int
	MaxContent  int
	IdleTimeout time.Duration

	Advertise bool
	Interface string

	LogLevel    string
	ProtocolLog string
	Interactive bool
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() Config {
	return Config{
		SchemaFile: "device.yaml",
		Listen:     ":4530",
		StateStore: "json",
		Model:      "RCI Reference Device",
		Sessions:   4,
		MaxContent: 2048,
		Advertise:  true,
		LogLevel:   "info",
	}
}

// fileConfig mirrors the TOML file. Keys map onto flag names.
type fileConfig struct {
	Schema      string `toml:"schema"`
	Listen      string `toml:"listen"`
	StateDir    string `toml:"state_dir"`
	StateStore  string `toml:"state_store"`
	DeviceID    string `toml:"device_id"`
	Model       string `toml:"model"`
	DeviceName  string `toml:"name"`
	Sessions    int    `toml:"sessions"`
	MaxContent  int    `toml:"max_content"`
	IdleTimeout string `toml:"idle_timeout"`
	Advertise   bool   `toml:"advertise"`
	Interface   string `toml:"interface"`
	LogLevel    string `toml:"log_level"`
	ProtocolLog string `toml:"protocol_log"`
}

// loadConfigFile applies the TOML file at path to cfg. Settings whose flag
// was given on the command line are kept.
func loadConfigFile(path string, cfg *Config, explicit map[string]bool) error {
	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return fmt.Errorf("load device config: %w", err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return fmt.Errorf("load device config: unknown key %q", undecoded[0].String())
	}

	set := func(key, flagName string) bool {
		return meta.IsDefined(key) && !explicit[flagName]
	}
	if set("schema", "schema") {
		cfg.SchemaFile = strings.TrimSpace(raw.Schema)
	}
	if set("listen", "listen") {
		cfg.Listen = strings.TrimSpace(raw.Listen)
	}
	if set("state_dir", "state-dir") {
		cfg.StateDir = strings.TrimSpace(raw.StateDir)
	}
	if set("state_store", "state-store") {
		cfg.StateStore = strings.TrimSpace(raw.StateStore)
	}
	if set("device_id", "id") {
		cfg.DeviceID = strings.TrimSpace(raw.DeviceID)
	}
	if set("model", "model") {
		cfg.Model = raw.Model
	}
	if set("name", "name") {
		cfg.DeviceName = raw.DeviceName
	}
	if set("sessions", "sessions") {
		cfg.Sessions = raw.Sessions
	}
	if set("max_content", "max-content") {
		cfg.MaxContent = raw.MaxContent
	}
	if set("idle_timeout", "idle-timeout") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.IdleTimeout))
		if err != nil {
			return fmt.Errorf("parse idle_timeout: %w", err)
		}
		cfg.IdleTimeout = d
	}
	if set("advertise", "advertise") {
		cfg.Advertise = raw.Advertise
	}
	if set("interface", "interface") {
		cfg.Interface = strings.TrimSpace(raw.Interface)
	}
	if set("log_level", "log-level") {
		cfg.LogLevel = strings.TrimSpace(raw.LogLevel)
	}
	if set("protocol_log", "protocol-log") {
		cfg.ProtocolLog = strings.TrimSpace(raw.ProtocolLog)
	}
	return nil
}

func (c *Config) validate() error {
	var errs []error
	if c.SchemaFile == "" {
		errs = append(errs, errors.New("schema file is required"))
	}
	if c.Sessions < 1 {
		errs = append(errs, fmt.Errorf("sessions must be at least 1, got %d", c.Sessions))
	}
	if c.MaxContent < 64 {
		errs = append(errs, fmt.Errorf("max content must be at least 64 bytes, got %d", c.MaxContent))
	}
	if c.IdleTimeout < 0 {
		errs = append(errs, fmt.Errorf("idle timeout must not be negative, got %s", c.IdleTimeout))
	}
	switch c.StateStore {
	case "json", "sqlite":
	default:
		errs = append(errs, fmt.Errorf("unknown state store: %s (use json or sqlite)", c.StateStore))
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("unknown log level: %s", c.LogLevel))
	}
	return errors.Join(errs...)
}

// openSettings opens the settings store selected by the configuration.
func (c *Config) openSettings() (persistence.Store, func(), error) {
	if c.StateStore == "sqlite" {
		if err := os.MkdirAll(c.StateDir, 0755); err != nil {
			return nil, nil, err
		}
		st, err := persistence.NewSQLiteStore(filepath.Join(c.StateDir, "settings.db"))
		if err != nil {
			return nil, nil, err
		}
		return st, func() { st.Close() }, nil
	}
	return persistence.NewSettingsStore(filepath.Join(c.StateDir, "settings.json")), func() {}, nil
}
