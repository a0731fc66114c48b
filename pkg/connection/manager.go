package connection

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/mash-protocol/rci-go/pkg/wire"
)

// Connection errors.
var (
	ErrClosed           = errors.New("connection manager closed")
	ErrNotConnected     = errors.New("not connected")
	ErrAlreadyConnected = errors.New("already connected")
	ErrBusy             = errors.New("device busy")
)

// DialTimeout bounds one redial attempt.
const DialTimeout = 10 * time.Second

// State represents the connection state.
type State uint8

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateReconnecting
	StateClosed
)

// String returns a human-readable state name.
func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "DISCONNECTED"
	case StateConnecting:
		return "CONNECTING"
	case StateConnected:
		return "CONNECTED"
	case StateReconnecting:
		return "RECONNECTING"
	case StateClosed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}

// Conn is a live connection to a device. Implemented by
// *transport.ClientConn.
type Conn interface {
	Exchange(ctx context.Context, request []byte) ([]byte, wire.Status, error)
	Done() <-chan struct{}
	Close() error
}

// DialFunc establishes a new connection.
type DialFunc func(ctx context.Context) (Conn, error)

// Option configures a Manager.
type Option func(*Manager)

// WithBackoff sets the redial backoff.
func WithBackoff(b *Backoff) Option {
	return func(m *Manager) { m.backoff = b }
}

// WithBusyBackoff sets the busy retry backoff and the number of retries.
func WithBusyBackoff(b *Backoff, retries int) Option {
	return func(m *Manager) {
		m.busy = b
		m.busyRetries = retries
	}
}

// WithAutoReconnect enables or disables redialing after a drop.
func WithAutoReconnect(enabled bool) Option {
	return func(m *Manager) { m.autoReconnect = enabled }
}

// WithStateHook is called on every state change, outside the lock.
func WithStateHook(fn func(old, state State)) Option {
	return func(m *Manager) { m.onStateChange = fn }
}

// WithLogger sets the operational logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) { m.log = l }
}

// Manager keeps one device connection alive.
type Manager struct {
	dial DialFunc
	log  *slog.Logger

	backoff       *Backoff
	busy          *Backoff
	busyRetries   int
	autoReconnect bool
	onStateChange func(old, state State)

	mu    sync.Mutex
	state State
	conn  Conn

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewManager creates a connection manager around dial.
func NewManager(dial DialFunc, opts ...Option) *Manager {
	ctx, cancel := context.WithCancel(context.Background())
	m := &Manager{
		dial:          dial,
		backoff:       NewBackoff(),
		busy:          NewBusyBackoff(),
		busyRetries:   BusyRetries,
		autoReconnect: true,
		ctx:           ctx,
		cancel:        cancel,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.log == nil {
		m.log = slog.Default()
	}
	return m
}

// State returns the current connection state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Connect dials the device once. When the connection later drops, the
// manager redials it in the background.
func (m *Manager) Connect(ctx context.Context) error {
	m.mu.Lock()
	switch m.state {
	case StateClosed:
		m.mu.Unlock()
		return ErrClosed
	case StateConnected, StateConnecting, StateReconnecting:
		m.mu.Unlock()
		return ErrAlreadyConnected
	}
	m.mu.Unlock()
	m.setState(StateConnecting)

	conn, err := m.dial(ctx)
	if err != nil {
		m.setState(StateDisconnected)
		return err
	}
	if !m.adopt(conn) {
		conn.Close()
		return ErrClosed
	}
	return nil
}

// adopt makes conn the current connection and starts watching it. It
// returns false once the manager is closed.
func (m *Manager) adopt(conn Conn) bool {
	m.mu.Lock()
	if m.state == StateClosed {
		m.mu.Unlock()
		return false
	}
	old := m.state
	m.conn = conn
	m.state = StateConnected
	m.mu.Unlock()

	m.backoff.Reset()
	m.notify(old, StateConnected)

	m.wg.Add(1)
	go m.watch(conn)
	return true
}

// watch waits for conn to drop, then redials.
func (m *Manager) watch(conn Conn) {
	defer m.wg.Done()
	select {
	case <-m.ctx.Done():
		return
	case <-conn.Done():
	}

	m.mu.Lock()
	if m.conn != conn || m.state == StateClosed {
		m.mu.Unlock()
		return
	}
	m.conn = nil
	next := StateDisconnected
	if m.autoReconnect {
		next = StateReconnecting
	}
	m.state = next
	m.mu.Unlock()

	m.notify(StateConnected, next)
	m.log.Info("connection: lost device connection", "reconnect", m.autoReconnect)
	if m.autoReconnect {
		m.redial()
	}
}

// redial dials with backoff until it succeeds or the manager is closed.
func (m *Manager) redial() {
	for {
		delay := m.backoff.Next()
		m.log.Debug("connection: redialing", "attempt", m.backoff.Attempts(), "delay", delay)
		if err := sleep(m.ctx, delay); err != nil {
			return
		}

		ctx, cancel := context.WithTimeout(m.ctx, DialTimeout)
		conn, err := m.dial(ctx)
		cancel()
		if err != nil {
			m.log.Debug("connection: redial failed", "error", err)
			continue
		}
		if !m.adopt(conn) {
			conn.Close()
		}
		return
	}
}

// Exchange runs one request on the current connection. Requests the device
// answers with wire.StatusBusy are retried; the last busy reply yields
// ErrBusy.
func (m *Manager) Exchange(ctx context.Context, request []byte) ([]byte, wire.Status, error) {
	defer m.busy.Reset()
	for attempt := 0; ; attempt++ {
		m.mu.Lock()
		conn, state := m.conn, m.state
		m.mu.Unlock()
		if state == StateClosed {
			return nil, 0, ErrClosed
		}
		if conn == nil {
			return nil, 0, ErrNotConnected
		}

		reply, status, err := conn.Exchange(ctx, request)
		if err != nil || status != wire.StatusBusy {
			return reply, status, err
		}
		if attempt >= m.busyRetries {
			return reply, status, ErrBusy
		}
		if err := sleep(ctx, m.busy.Next()); err != nil {
			return nil, 0, err
		}
	}
}

// Close drops the connection and stops redialing.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.state == StateClosed {
		m.mu.Unlock()
		return nil
	}
	old := m.state
	conn := m.conn
	m.conn = nil
	m.state = StateClosed
	m.mu.Unlock()

	m.notify(old, StateClosed)
	m.cancel()

	var err error
	if conn != nil {
		err = conn.Close()
	}
	m.wg.Wait()
	return err
}

func (m *Manager) setState(state State) {
	m.mu.Lock()
	old := m.state
	if old == StateClosed {
		m.mu.Unlock()
		return
	}
	m.state = state
	m.mu.Unlock()
	m.notify(old, state)
}

func (m *Manager) notify(old, state State) {
	if m.onStateChange != nil && old != state {
		m.onStateChange(old, state)
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
