package connection

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mash-protocol/rci-go/pkg/wire"
)

func TestBackoff(t *testing.T) {
	t.Run("DefaultSequence", func(t *testing.T) {
		b := NewBackoff()

		expected := []time.Duration{
			500 * time.Millisecond,
			1 * time.Second,
			2 * time.Second,
			4 * time.Second,
			8 * time.Second,
			16 * time.Second,
			30 * time.Second,
			30 * time.Second,
		}
		for i, exp := range expected {
			if base := b.Current(); base != exp {
				t.Errorf("Attempt %d: base = %v, want %v", i, base, exp)
			}
			b.Next()
		}
		if b.Attempts() != len(expected) {
			t.Errorf("Attempts() = %d, want %d", b.Attempts(), len(expected))
		}
	})

	t.Run("Jitter", func(t *testing.T) {
		b := NewBackoff()
		for i := range 10 {
			d := b.Next()
			b.Reset()
			if d < InitialBackoff || d > InitialBackoff*5/4 {
				t.Errorf("Sample %d: %v out of range [500ms, 625ms]", i, d)
			}
		}
	})

	t.Run("Reset", func(t *testing.T) {
		b := NewBackoff()
		for range 5 {
			b.Next()
		}
		b.Reset()
		if b.Current() != InitialBackoff || b.Attempts() != 0 {
			t.Errorf("after Reset: current %v, attempts %d", b.Current(), b.Attempts())
		}
	})

	t.Run("Config", func(t *testing.T) {
		b := NewBackoffWithConfig(BackoffConfig{Initial: 10 * time.Millisecond, Max: 25 * time.Millisecond, Multiplier: 3, Jitter: -1})
		want := []time.Duration{10 * time.Millisecond, 25 * time.Millisecond, 25 * time.Millisecond}
		for i, exp := range want {
			if d := b.Next(); d != exp {
				t.Errorf("Next %d = %v, want %v", i, d, exp)
			}
		}
	})
}

func TestStateString(t *testing.T) {
	tests := []struct {
		state State
		want  string
	}{
		{StateDisconnected, "DISCONNECTED"},
		{StateConnecting, "CONNECTING"},
		{StateConnected, "CONNECTED"},
		{StateReconnecting, "RECONNECTING"},
		{StateClosed, "CLOSED"},
		{State(99), "UNKNOWN"},
	}
	for _, tt := range tests {
		if got := tt.state.String(); got != tt.want {
			t.Errorf("State(%d).String() = %q, want %q", tt.state, got, tt.want)
		}
	}
}

// fakeConn answers exchanges from a script of statuses.
type fakeConn struct {
	mu       sync.Mutex
	statuses []wire.Status
	calls    int
	done     chan struct{}
	once     sync.Once
}

func newFakeConn(statuses ...wire.Status) *fakeConn {
	return &fakeConn{statuses: statuses, done: make(chan struct{})}
}

func (c *fakeConn) Exchange(_ context.Context, req []byte) ([]byte, wire.Status, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	status := wire.StatusComplete
	if len(c.statuses) > 0 {
		status, c.statuses = c.statuses[0], c.statuses[1:]
	}
	return req, status, nil
}

func (c *fakeConn) Done() <-chan struct{} { return c.done }

func (c *fakeConn) Close() error {
	c.once.Do(func() { close(c.done) })
	return nil
}

func fastBackoff() *Backoff {
	return NewBackoffWithConfig(BackoffConfig{Initial: time.Millisecond, Max: 5 * time.Millisecond})
}

func waitState(t *testing.T, m *Manager, want State) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if m.State() == want {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("state = %s, want %s", m.State(), want)
}

func TestManagerConnectAndExchange(t *testing.T) {
	conn := newFakeConn()
	m := NewManager(func(context.Context) (Conn, error) { return conn, nil })
	defer m.Close()

	if _, _, err := m.Exchange(context.Background(), []byte{1}); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Exchange before Connect = %v, want ErrNotConnected", err)
	}
	if err := m.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	if err := m.Connect(context.Background()); !errors.Is(err, ErrAlreadyConnected) {
		t.Errorf("second Connect = %v, want ErrAlreadyConnected", err)
	}

	reply, status, err := m.Exchange(context.Background(), []byte{1, 2})
	if err != nil || status != wire.StatusComplete || len(reply) != 2 {
		t.Errorf("Exchange = %v, %s, %v", reply, status, err)
	}
}

func TestManagerConnectFailure(t *testing.T) {
	dialErr := errors.New("refused")
	m := NewManager(func(context.Context) (Conn, error) { return nil, dialErr })
	defer m.Close()

	if err := m.Connect(context.Background()); !errors.Is(err, dialErr) {
		t.Errorf("Connect = %v, want dial error", err)
	}
	if m.State() != StateDisconnected {
		t.Errorf("state = %s, want DISCONNECTED", m.State())
	}
}

func TestManagerRetriesBusy(t *testing.T) {
	conn := newFakeConn(wire.StatusBusy, wire.StatusBusy, wire.StatusComplete)
	m := NewManager(func(context.Context) (Conn, error) { return conn, nil },
		WithBusyBackoff(fastBackoff(), 5))
	defer m.Close()
	if err := m.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	_, status, err := m.Exchange(context.Background(), nil)
	if err != nil || status != wire.StatusComplete {
		t.Errorf("Exchange = %s, %v", status, err)
	}
	if conn.calls != 3 {
		t.Errorf("calls = %d, want 3", conn.calls)
	}
}

func TestManagerBusyGivesUp(t *testing.T) {
	conn := newFakeConn(wire.StatusBusy, wire.StatusBusy, wire.StatusBusy)
	m := NewManager(func(context.Context) (Conn, error) { return conn, nil },
		WithBusyBackoff(fastBackoff(), 2))
	defer m.Close()
	if err := m.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	_, status, err := m.Exchange(context.Background(), nil)
	if !errors.Is(err, ErrBusy) || status != wire.StatusBusy {
		t.Errorf("Exchange = %s, %v, want BUSY, ErrBusy", status, err)
	}
}

func TestManagerRedialsAfterDrop(t *testing.T) {
	var dials atomic.Int32
	conns := make(chan *fakeConn, 4)
	dial := func(context.Context) (Conn, error) {
		n := dials.Add(1)
		if n == 2 {
			return nil, errors.New("device rebooting")
		}
		c := newFakeConn()
		conns <- c
		return c, nil
	}

	var mu sync.Mutex
	var states []State
	m := NewManager(dial,
		WithBackoff(fastBackoff()),
		WithStateHook(func(_, s State) {
			mu.Lock()
			states = append(states, s)
			mu.Unlock()
		}))
	defer m.Close()

	if err := m.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	first := <-conns
	first.Close()

	second := <-conns
	waitState(t, m, StateConnected)
	if dials.Load() != 3 {
		t.Errorf("dials = %d, want 3", dials.Load())
	}
	if _, _, err := m.Exchange(context.Background(), nil); err != nil {
		t.Errorf("Exchange after redial: %v", err)
	}
	if second.calls != 1 {
		t.Errorf("exchange went to the wrong connection")
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		mu.Lock()
		n := len(states)
		mu.Unlock()
		if n >= 4 || time.Now().After(deadline) {
			break
		}
		time.Sleep(time.Millisecond)
	}

	mu.Lock()
	defer mu.Unlock()
	want := []State{StateConnecting, StateConnected, StateReconnecting, StateConnected}
	if len(states) != len(want) {
		t.Fatalf("states = %v, want %v", states, want)
	}
	for i := range want {
		if states[i] != want[i] {
			t.Errorf("states[%d] = %s, want %s", i, states[i], want[i])
		}
	}
}

func TestManagerNoAutoReconnect(t *testing.T) {
	conn := newFakeConn()
	var dials atomic.Int32
	m := NewManager(func(context.Context) (Conn, error) {
		dials.Add(1)
		return conn, nil
	}, WithAutoReconnect(false))
	defer m.Close()

	if err := m.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	conn.Close()
	waitState(t, m, StateDisconnected)
	if dials.Load() != 1 {
		t.Errorf("dials = %d, want 1", dials.Load())
	}
}

func TestManagerClose(t *testing.T) {
	conn := newFakeConn()
	m := NewManager(func(context.Context) (Conn, error) { return conn, nil })
	if err := m.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	if err := m.Close(); err != nil {
		t.Errorf("Close failed: %v", err)
	}
	select {
	case <-conn.Done():
	default:
		t.Error("connection not closed")
	}
	if err := m.Connect(context.Background()); !errors.Is(err, ErrClosed) {
		t.Errorf("Connect after Close = %v, want ErrClosed", err)
	}
	if _, _, err := m.Exchange(context.Background(), nil); !errors.Is(err, ErrClosed) {
		t.Errorf("Exchange after Close = %v, want ErrClosed", err)
	}
	if err := m.Close(); err != nil {
		t.Errorf("second Close failed: %v", err)
	}
}
