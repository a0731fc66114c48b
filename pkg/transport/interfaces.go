package transport

import (
	"context"
	"errors"
	"net"
	"time"

	"github.com/mash-protocol/rci-go/pkg/rci"
	"github.com/mash-protocol/rci-go/pkg/wire"
)

// DefaultPort is the TCP port of the RCI device service.
const DefaultPort = 4530

// Transport errors.
var (
	ErrConnectionClosed = errors.New("connection closed")
	ErrServerRunning    = errors.New("server already running")
	ErrExchangeFailed   = errors.New("exchange failed")
)

// Exchanger runs RCI exchanges for one connection. Implemented by
// *rci.Engine.
type Exchanger interface {
	// Step drives the current exchange.
	Step(action rci.SessionAction, in rci.Input, out []byte) rci.StepResult

	// Active returns true while an exchange is in progress.
	Active() bool
}

// ServerConnection is a server-side connection to a controller.
// Implemented by ServerConn.
type ServerConnection interface {
	RemoteAddr() net.Addr
	ConnID() string
	Send(env *wire.Envelope) error
	Close() error
}

// ClientConnection is a controller connection to a device.
// Implemented by ClientConn.
type ClientConnection interface {
	LocalAddr() net.Addr
	RemoteAddr() net.Addr

	// Exchange sends one request and returns the reassembled reply.
	Exchange(ctx context.Context, request []byte) ([]byte, wire.Status, error)

	SendPing(seq uint32) error
	SendClose() error
	Close() error
}

// TransportServer is an RCI device server. Implemented by Server.
type TransportServer interface {
	Start(ctx context.Context) error
	Stop() error
	Addr() net.Addr
	ConnectionCount() int
}

// FrameReadWriter provides length-prefixed frame I/O. Implemented by Framer.
type FrameReadWriter interface {
	ReadFrame() ([]byte, error)
	WriteFrame(data []byte) error
}

var (
	_ Exchanger        = (*rci.Engine)(nil)
	_ ServerConnection = (*ServerConn)(nil)
	_ ClientConnection = (*ClientConn)(nil)
	_ TransportServer  = (*Server)(nil)
	_ FrameReadWriter  = (*Framer)(nil)
	_ Pinger           = (*ClientConn)(nil)
)

// sleepCtx waits for d or until ctx is done.
func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
