package transport

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

type pingFunc func(seq uint32) error

func (f pingFunc) SendPing(seq uint32) error { return f(seq) }

func TestKeepAliveDetectionDelay(t *testing.T) {
	if got := DefaultKeepAliveConfig().DetectionDelay(); got != 95*time.Second {
		t.Errorf("DetectionDelay() = %v, want 95s", got)
	}
}

func TestKeepAliveTimesOutWithoutPongs(t *testing.T) {
	var pings atomic.Int32
	timedOut := make(chan struct{})

	ka := NewKeepAlive(KeepAliveConfig{
		PingInterval:   10 * time.Millisecond,
		PongTimeout:    5 * time.Millisecond,
		MaxMissedPongs: 2,
	}, pingFunc(func(uint32) error {
		pings.Add(1)
		return nil
	}), func() { close(timedOut) })

	ka.Start(context.Background())
	defer ka.Stop()

	select {
	case <-timedOut:
	case <-time.After(2 * time.Second):
		t.Fatal("keep-alive did not time out")
	}
	if pings.Load() < 2 {
		t.Errorf("pings = %d, want at least 2", pings.Load())
	}
	if got := ka.Stats().MissedPongs; got != 2 {
		t.Errorf("MissedPongs = %d, want 2", got)
	}
}

func TestKeepAlivePongsKeepConnection(t *testing.T) {
	var ka *KeepAlive
	timedOut := make(chan struct{}, 1)
	ka = NewKeepAlive(KeepAliveConfig{
		PingInterval:   10 * time.Millisecond,
		PongTimeout:    5 * time.Millisecond,
		MaxMissedPongs: 1,
	}, pingFunc(func(seq uint32) error {
		go ka.PongReceived(seq)
		return nil
	}), func() { timedOut <- struct{}{} })

	ka.Start(context.Background())
	time.Sleep(100 * time.Millisecond)
	ka.Stop()

	select {
	case <-timedOut:
		t.Fatal("keep-alive timed out despite pongs")
	default:
	}
	st := ka.Stats()
	if st.Seq < 2 || st.MissedPongs != 0 || st.LastPong.IsZero() {
		t.Errorf("stats = %+v", st)
	}
	if ka.Running() {
		t.Error("Running() = true after Stop")
	}
}

func TestKeepAliveStopsWithContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	ka := NewKeepAlive(KeepAliveConfig{}, pingFunc(func(uint32) error { return nil }), nil)
	ka.Start(ctx)
	ka.Start(ctx)
	if !ka.Running() {
		t.Fatal("Running() = false after Start")
	}
	cancel()
	ka.Stop()
	ka.Stop()
}
