package rci

import (
	"log/slog"

	"github.com/mash-protocol/rci-go/pkg/log"
)

// MaxListDepth is the deepest list nesting the engine supports.
const MaxListDepth = 8

// DefaultMaxContentLength bounds the bytes of one token gathered across
// input chunks.
const DefaultMaxContentLength = 2048

// Config configures an Engine.
type Config struct {
	// ListDepth is the accepted list nesting, at most MaxListDepth.
	// Zero means MaxListDepth.
	ListDepth int

	// MaxContentLength bounds spill storage. Zero means
	// DefaultMaxContentLength.
	MaxContentLength int

	// Rebooter is invoked after a reboot command succeeded.
	Rebooter Rebooter

	// ProtocolLogger receives session and callback events.
	ProtocolLogger log.Logger

	// ConnectionID tags protocol events.
	ConnectionID string

	// Logger receives operational logs. Nil means slog.Default().
	Logger *slog.Logger
}

func (c *Config) applyDefaults() {
	if c.ListDepth <= 0 || c.ListDepth > MaxListDepth {
		c.ListDepth = MaxListDepth
	}
	if c.MaxContentLength <= 0 {
		c.MaxContentLength = DefaultMaxContentLength
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Option adjusts an Engine after its Config is applied.
type Option func(*Engine)

// WithArena makes the engine take its sessions from a shared arena instead
// of allocating one per exchange.
func WithArena(a *Arena) Option {
	return func(e *Engine) { e.arena = a }
}

// WithProtocolLogger sets the protocol event logger.
func WithProtocolLogger(l log.Logger) Option {
	return func(e *Engine) { e.config.ProtocolLogger = l }
}

// WithRebooter sets the reboot hook.
func WithRebooter(r Rebooter) Option {
	return func(e *Engine) { e.config.Rebooter = r }
}
