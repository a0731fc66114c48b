package transport

import (
	"context"
	"sync"
	"time"
)

// Keep-alive defaults.
const (
	DefaultPingInterval   = 30 * time.Second
	DefaultPongTimeout    = 5 * time.Second
	DefaultMaxMissedPongs = 3
)

// KeepAliveConfig configures liveness monitoring.
type KeepAliveConfig struct {
	PingInterval   time.Duration
	PongTimeout    time.Duration
	MaxMissedPongs int
}

// DefaultKeepAliveConfig returns the default keep-alive configuration.
func DefaultKeepAliveConfig() KeepAliveConfig {
	return KeepAliveConfig{
		PingInterval:   DefaultPingInterval,
		PongTimeout:    DefaultPongTimeout,
		MaxMissedPongs: DefaultMaxMissedPongs,
	}
}

// DetectionDelay is the longest time a dead peer goes unnoticed.
func (c KeepAliveConfig) DetectionDelay() time.Duration {
	return c.PingInterval*time.Duration(c.MaxMissedPongs) + c.PongTimeout
}

func (c *KeepAliveConfig) applyDefaults() {
	if c.PingInterval <= 0 {
		c.PingInterval = DefaultPingInterval
	}
	if c.PongTimeout <= 0 {
		c.PongTimeout = DefaultPongTimeout
	}
	if c.MaxMissedPongs <= 0 {
		c.MaxMissedPongs = DefaultMaxMissedPongs
	}
}

// Pinger sends ping control messages.
type Pinger interface {
	SendPing(seq uint32) error
}

// KeepAliveStats is a snapshot of the monitor state.
type KeepAliveStats struct {
	LastPing    time.Time
	LastPong    time.Time
	Latency     time.Duration
	MissedPongs int
	Seq         uint32
}

// KeepAlive pings a peer and reports when too many pongs are missed.
type KeepAlive struct {
	config    KeepAliveConfig
	pinger    Pinger
	onTimeout func()

	pongs chan uint32

	mu      sync.Mutex
	stats   KeepAliveStats
	pending bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewKeepAlive returns a monitor. onTimeout runs once, from the monitor
// goroutine, when MaxMissedPongs pings went unanswered.
func NewKeepAlive(config KeepAliveConfig, pinger Pinger, onTimeout func()) *KeepAlive {
	config.applyDefaults()
	return &KeepAlive{
		config:    config,
		pinger:    pinger,
		onTimeout: onTimeout,
		pongs:     make(chan uint32, 4),
	}
}

// Start runs the monitor until ctx is done or Stop is called.
func (ka *KeepAlive) Start(ctx context.Context) {
	ka.mu.Lock()
	defer ka.mu.Unlock()
	if ka.cancel != nil {
		return
	}
	ctx, ka.cancel = context.WithCancel(ctx)
	ka.done = make(chan struct{})
	go ka.loop(ctx, ka.done)
}

// Stop halts the monitor and waits for it to exit.
func (ka *KeepAlive) Stop() {
	ka.mu.Lock()
	cancel, done := ka.cancel, ka.done
	ka.cancel, ka.done = nil, nil
	ka.mu.Unlock()
	if cancel != nil {
		cancel()
		<-done
	}
}

// Running returns true while the monitor goroutine runs.
func (ka *KeepAlive) Running() bool {
	ka.mu.Lock()
	defer ka.mu.Unlock()
	return ka.cancel != nil
}

// PongReceived records a pong from the peer.
func (ka *KeepAlive) PongReceived(seq uint32) {
	select {
	case ka.pongs <- seq:
	default:
	}
}

// Stats returns the current statistics.
func (ka *KeepAlive) Stats() KeepAliveStats {
	ka.mu.Lock()
	defer ka.mu.Unlock()
	return ka.stats
}

func (ka *KeepAlive) loop(ctx context.Context, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(ka.config.PingInterval)
	defer ticker.Stop()

	ka.ping()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if ka.expired() {
				if ka.onTimeout != nil {
					ka.onTimeout()
				}
				return
			}
			ka.ping()
		case seq := <-ka.pongs:
			ka.pong(seq)
		}
	}
}

func (ka *KeepAlive) ping() {
	ka.mu.Lock()
	ka.stats.Seq++
	seq := ka.stats.Seq
	ka.stats.LastPing = time.Now()
	ka.pending = true
	ka.mu.Unlock()

	// A failed send is treated like a lost pong.
	_ = ka.pinger.SendPing(seq)
}

// expired checks the outstanding ping and returns true once the peer is
// considered dead.
func (ka *KeepAlive) expired() bool {
	ka.mu.Lock()
	defer ka.mu.Unlock()
	if !ka.pending || time.Since(ka.stats.LastPing) < ka.config.PongTimeout {
		return false
	}
	ka.pending = false
	ka.stats.MissedPongs++
	return ka.stats.MissedPongs >= ka.config.MaxMissedPongs
}

func (ka *KeepAlive) pong(seq uint32) {
	ka.mu.Lock()
	defer ka.mu.Unlock()
	now := time.Now()
	ka.stats.LastPong = now
	// Pongs for older pings are late, not lost; only the current one resets.
	if ka.pending && seq == ka.stats.Seq {
		ka.pending = false
		ka.stats.MissedPongs = 0
		ka.stats.Latency = now.Sub(ka.stats.LastPing)
	}
}
