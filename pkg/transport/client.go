package transport

import (
	"context"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/mash-protocol/rci-go/pkg/log"
	"github.com/mash-protocol/rci-go/pkg/wire"
)

// ClientConfig configures an RCI controller client.
type ClientConfig struct {
	// MaxFrameSize bounds frames in both directions. Zero means
	// DefaultMaxFrameSize.
	MaxFrameSize uint32

	// ConnectTimeout applies when the dial context has no deadline.
	// Zero means 30s.
	ConnectTimeout time.Duration

	// ChunkSize bounds the payload of one request envelope. Zero means
	// wire.MaxPayloadSize.
	ChunkSize int

	// KeepAlive enables liveness pings when set.
	KeepAlive *KeepAliveConfig

	// Logger receives protocol events (optional).
	Logger log.Logger
}

// Client dials RCI devices.
type Client struct {
	config ClientConfig
}

// NewClient returns a client.
func NewClient(config ClientConfig) *Client {
	if config.MaxFrameSize == 0 {
		config.MaxFrameSize = DefaultMaxFrameSize
	}
	if config.ConnectTimeout == 0 {
		config.ConnectTimeout = 30 * time.Second
	}
	if config.ChunkSize <= 0 || config.ChunkSize > wire.MaxPayloadSize {
		config.ChunkSize = wire.MaxPayloadSize
	}
	return &Client{config: config}
}

// Connect dials address and starts the connection's reader.
func (c *Client) Connect(ctx context.Context, address string) (*ClientConn, error) {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.config.ConnectTimeout)
		defer cancel()
	}

	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "tcp", address)
	if err != nil {
		return nil, fmt.Errorf("dial: %w", err)
	}

	cc := &ClientConn{
		conn:      conn,
		framer:    NewFramer(conn, c.config.MaxFrameSize),
		chunkSize: c.config.ChunkSize,
		connID:    uuid.New().String(),
		replies:   make(chan *wire.Envelope, 64),
		closeCh:   make(chan struct{}),
		readDone:  make(chan struct{}),
	}
	if c.config.Logger != nil {
		cc.framer.SetLogger(c.config.Logger, cc.connID)
	}
	if c.config.KeepAlive != nil {
		cc.keepAlive = NewKeepAlive(*c.config.KeepAlive, cc, func() { cc.Close() })
		cc.keepAlive.Start(context.Background())
	}
	go cc.readLoop()
	return cc, nil
}

// ClientConn is a connection to a device. Exchanges on one connection are
// serialized.
type ClientConn struct {
	conn      net.Conn
	framer    *Framer
	chunkSize int
	connID    string
	keepAlive *KeepAlive

	replies  chan *wire.Envelope
	readErr  error
	readDone chan struct{}

	session   atomic.Uint32
	exchangeM sync.Mutex
	writeMu   sync.Mutex
	closeCh   chan struct{}
	closeOnce sync.Once
}

// ConnID returns the id tagging this connection's protocol events.
func (c *ClientConn) ConnID() string { return c.connID }

// LocalAddr returns the local address.
func (c *ClientConn) LocalAddr() net.Addr { return c.conn.LocalAddr() }

// RemoteAddr returns the device address.
func (c *ClientConn) RemoteAddr() net.Addr { return c.conn.RemoteAddr() }

// KeepAlive returns the liveness monitor, or nil when disabled.
func (c *ClientConn) KeepAlive() *KeepAlive { return c.keepAlive }

// Send encodes and writes one envelope.
func (c *ClientConn) Send(env *wire.Envelope) error {
	data, err := wire.EncodeEnvelope(env)
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	select {
	case <-c.closeCh:
		return ErrConnectionClosed
	default:
	}
	return c.framer.WriteFrame(data)
}

// SendPing sends a ping with the given sequence number.
func (c *ClientConn) SendPing(seq uint32) error {
	return c.Send(wire.NewControl(wire.MessagePing, seq))
}

// SendClose asks the device to close the connection.
func (c *ClientConn) SendClose() error {
	return c.Send(wire.NewControl(wire.MessageClose, 0))
}

// Close closes the connection.
func (c *ClientConn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.closeCh)
		if c.keepAlive != nil {
			go c.keepAlive.Stop()
		}
		err = c.conn.Close()
	})
	return err
}

// Done is closed when the connection stops reading.
func (c *ClientConn) Done() <-chan struct{} { return c.readDone }

// Exchange sends request as one session, split into chunks, and returns
// the reassembled reply with the device's final status. Cancelling ctx
// sends a lost envelope and returns ctx.Err().
func (c *ClientConn) Exchange(ctx context.Context, request []byte) ([]byte, wire.Status, error) {
	c.exchangeM.Lock()
	defer c.exchangeM.Unlock()

	id := c.session.Add(1)
	if id == 0 {
		id = c.session.Add(1)
	}

	sendErr := make(chan error, 1)
	go func() { sendErr <- c.sendRequest(id, request) }()

	var reply []byte
	for {
		select {
		case err := <-sendErr:
			if err != nil {
				return nil, 0, fmt.Errorf("%w: send: %v", ErrExchangeFailed, err)
			}
			sendErr = nil
		case env := <-c.replies:
			if env.Session != id {
				continue
			}
			reply = append(reply, env.Payload...)
			if env.Final {
				return reply, env.Status, nil
			}
		case <-ctx.Done():
			c.Send(&wire.Envelope{Type: wire.MessageLost, Session: id})
			return nil, 0, ctx.Err()
		case <-c.readDone:
			for len(c.replies) > 0 {
				env := <-c.replies
				if env.Session == id {
					reply = append(reply, env.Payload...)
					if env.Final {
						return reply, env.Status, nil
					}
				}
			}
			if c.readErr != nil {
				return nil, 0, fmt.Errorf("%w: %v", ErrExchangeFailed, c.readErr)
			}
			return nil, 0, ErrConnectionClosed
		}
	}
}

func (c *ClientConn) sendRequest(id uint32, request []byte) error {
	var seq uint32
	for {
		n := min(len(request), c.chunkSize)
		chunk, final := request[:n], n == len(request)
		env := wire.NewStart(id, chunk, final)
		if seq > 0 {
			env = wire.NewData(id, seq, chunk, final)
		}
		if err := c.Send(env); err != nil {
			return err
		}
		if final {
			return nil
		}
		request = request[n:]
		seq++
	}
}

func (c *ClientConn) readLoop() {
	defer close(c.readDone)
	for {
		data, err := c.framer.ReadFrame()
		if err != nil {
			select {
			case <-c.closeCh:
			default:
				c.readErr = err
			}
			c.Close()
			return
		}
		env, err := wire.DecodeEnvelope(data)
		if err != nil {
			continue
		}
		switch env.Type {
		case wire.MessageReply:
			select {
			case c.replies <- env:
			case <-c.closeCh:
				return
			}
		case wire.MessagePong:
			if c.keepAlive != nil {
				c.keepAlive.PongReceived(env.Seq)
			}
		case wire.MessagePing:
			c.Send(wire.NewControl(wire.MessagePong, env.Seq))
		case wire.MessageClose:
			c.Close()
			return
		}
	}
}
