package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/mash-protocol/rci-go/pkg/log"
	"github.com/mash-protocol/rci-go/pkg/wire"
)

// Server defaults.
const (
	DefaultBusyBackoff  = 10 * time.Millisecond
	DefaultStartRetries = 50
)

// ServerConfig configures an RCI device server.
type ServerConfig struct {
	// Address to listen on, e.g. ":4530". Empty means DefaultPort.
	Address string

	// MaxFrameSize bounds frames in both directions. Zero means
	// DefaultMaxFrameSize.
	MaxFrameSize uint32

	// NewExchanger returns the exchanger serving a new connection.
	NewExchanger func(connID string) (Exchanger, error)

	// ChunkSize bounds the payload of one reply envelope. Zero means
	// wire.MaxPayloadSize.
	ChunkSize int

	// BusyBackoff is the pause before a busy step is retried.
	BusyBackoff time.Duration

	// StartRetries is how often a session start that found no free
	// session is retried before the controller is told to come back later.
	StartRetries int

	// IdleTimeout closes connections that stay silent this long. Zero
	// disables it.
	IdleTimeout time.Duration

	// Logger receives protocol events (optional).
	Logger log.Logger

	// Slog receives operational logs. Nil means slog.Default().
	Slog *slog.Logger

	OnConnect    func(conn *ServerConn)
	OnDisconnect func(conn *ServerConn)
	OnError      func(conn *ServerConn, err error)
}

func (c *ServerConfig) applyDefaults() {
	if c.Address == "" {
		c.Address = fmt.Sprintf(":%d", DefaultPort)
	}
	if c.MaxFrameSize == 0 {
		c.MaxFrameSize = DefaultMaxFrameSize
	}
	if c.ChunkSize <= 0 || c.ChunkSize > wire.MaxPayloadSize {
		c.ChunkSize = wire.MaxPayloadSize
	}
	if c.BusyBackoff <= 0 {
		c.BusyBackoff = DefaultBusyBackoff
	}
	if c.StartRetries <= 0 {
		c.StartRetries = DefaultStartRetries
	}
	if c.Slog == nil {
		c.Slog = slog.Default()
	}
}

// Server accepts controller connections and runs RCI exchanges on them.
type Server struct {
	config   ServerConfig
	listener net.Listener

	conns   map[*ServerConn]struct{}
	connsMu sync.RWMutex

	running atomic.Bool
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewServer returns a server; call Start to listen.
func NewServer(config ServerConfig) (*Server, error) {
	if config.NewExchanger == nil {
		return nil, errors.New("NewExchanger is required")
	}
	config.applyDefaults()
	return &Server{
		config: config,
		conns:  make(map[*ServerConn]struct{}),
	}, nil
}

// Start listens and begins accepting connections.
func (s *Server) Start(ctx context.Context) error {
	if s.running.Load() {
		return ErrServerRunning
	}

	listener, err := net.Listen("tcp", s.config.Address)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.listener = listener
	s.running.Store(true)
	s.config.Slog.Info("rci server listening", "addr", listener.Addr().String())

	s.wg.Add(1)
	go s.acceptLoop()
	return nil
}

// Stop closes the listener and every connection, cancelling exchanges in
// progress, and waits for the connection goroutines.
func (s *Server) Stop() error {
	if !s.running.Swap(false) {
		return nil
	}
	s.cancel()
	s.listener.Close()

	s.connsMu.Lock()
	for conn := range s.conns {
		conn.Close()
	}
	s.connsMu.Unlock()

	s.wg.Wait()
	return nil
}

// Addr returns the listen address, or nil before Start.
func (s *Server) Addr() net.Addr {
	if s.listener != nil {
		return s.listener.Addr()
	}
	return nil
}

// ConnectionCount returns the number of open connections.
func (s *Server) ConnectionCount() int {
	s.connsMu.RLock()
	defer s.connsMu.RUnlock()
	return len(s.conns)
}

func (s *Server) acceptLoop() {
	defer s.wg.Done()

	for s.running.Load() {
		conn, err := s.listener.Accept()
		if err != nil {
			if s.running.Load() && s.config.OnError != nil {
				s.config.OnError(nil, fmt.Errorf("accept: %w", err))
			}
			continue
		}
		s.wg.Add(1)
		go s.handleConnection(conn)
	}
}

func (s *Server) handleConnection(conn net.Conn) {
	defer s.wg.Done()

	connID := uuid.New().String()
	ex, err := s.config.NewExchanger(connID)
	if err != nil {
		conn.Close()
		s.config.Slog.Error("rci connection rejected", "conn_id", connID, "error", err)
		if s.config.OnError != nil {
			s.config.OnError(nil, fmt.Errorf("new exchanger: %w", err))
		}
		return
	}

	framer := NewFramer(conn, s.config.MaxFrameSize)
	if s.config.Logger != nil {
		framer.SetLogger(s.config.Logger, connID)
	}
	sconn := &ServerConn{
		conn:       conn,
		framer:     framer,
		server:     s,
		closeCh:    make(chan struct{}),
		remoteAddr: conn.RemoteAddr(),
		connID:     connID,
		ex:         ex,
		out:        make([]byte, s.config.ChunkSize),
	}

	s.connsMu.Lock()
	s.conns[sconn] = struct{}{}
	s.connsMu.Unlock()

	sconn.logState("", "CONNECTED", "")
	s.config.Slog.Debug("rci connection accepted", "conn_id", connID, "remote", sconn.remoteAddr.String())
	if s.config.OnConnect != nil {
		s.config.OnConnect(sconn)
	}

	sconn.readLoop()
	sconn.Close()

	s.connsMu.Lock()
	delete(s.conns, sconn)
	s.connsMu.Unlock()

	sconn.logState("CONNECTED", "DISCONNECTED", "")
	s.config.Slog.Debug("rci connection closed", "conn_id", connID)
	if s.config.OnDisconnect != nil {
		s.config.OnDisconnect(sconn)
	}
}

// ServerConn is one controller connection.
type ServerConn struct {
	conn       net.Conn
	framer     *Framer
	server     *Server
	closeCh    chan struct{}
	closeOnce  sync.Once
	remoteAddr net.Addr
	connID     string
	writeMu    sync.Mutex

	// Exchange state, owned by the read loop.
	ex       Exchanger
	out      []byte
	carry    []byte
	session  uint32
	nextSeq  uint32
	replySeq uint32
}

// RemoteAddr returns the controller address.
func (c *ServerConn) RemoteAddr() net.Addr { return c.remoteAddr }

// ConnID returns the connection id used in protocol events.
func (c *ServerConn) ConnID() string { return c.connID }

// Send encodes and writes one envelope.
func (c *ServerConn) Send(env *wire.Envelope) error {
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
	if err := c.framer.WriteFrame(data); err != nil {
		return err
	}
	c.logEnvelope(env, log.DirectionOut)
	return nil
}

// Close closes the connection. A running exchange is cancelled by the read
// loop.
func (c *ServerConn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.closeCh)
		err = c.conn.Close()
	})
	return err
}

func (c *ServerConn) closed() bool {
	select {
	case <-c.closeCh:
		return true
	default:
		return false
	}
}

func (c *ServerConn) readLoop() {
	defer func() {
		if c.session != 0 {
			c.lose("connection closed")
		}
	}()

	for {
		if c.closed() || c.server.ctx.Err() != nil {
			return
		}
		if d := c.server.config.IdleTimeout; d > 0 {
			c.conn.SetReadDeadline(time.Now().Add(d))
		}

		data, err := c.framer.ReadFrame()
		if err != nil {
			if !errors.Is(err, io.EOF) && !c.closed() && c.server.running.Load() {
				c.reportError(err)
			}
			return
		}

		env, err := wire.DecodeEnvelope(data)
		if err != nil {
			c.reportError(fmt.Errorf("decode envelope: %w", err))
			continue
		}
		c.logEnvelope(env, log.DirectionIn)

		if env.Type.IsControl() {
			c.handleControl(env)
			continue
		}
		if err := c.handleSession(env); err != nil {
			c.reportError(err)
			return
		}
	}
}

func (c *ServerConn) handleControl(env *wire.Envelope) {
	switch env.Type {
	case wire.MessagePing:
		c.Send(wire.NewControl(wire.MessagePong, env.Seq))
	case wire.MessageClose:
		c.Send(wire.NewControl(wire.MessageClose, 0))
		c.Close()
	}
}

func (c *ServerConn) reportError(err error) {
	c.server.config.Slog.Warn("rci connection error", "conn_id", c.connID, "error", err)
	if c.server.config.Logger != nil {
		c.server.config.Logger.Log(log.Event{
			Timestamp:    time.Now(),
			ConnectionID: c.connID,
			Layer:        log.LayerTransport,
			Category:     log.CategoryError,
			RemoteAddr:   c.remoteAddr.String(),
			Error:        &log.ErrorEventData{Layer: log.LayerTransport, Message: err.Error()},
		})
	}
	if c.server.config.OnError != nil {
		c.server.config.OnError(c, err)
	}
}

func (c *ServerConn) logState(old, state, reason string) {
	if c.server.config.Logger == nil {
		return
	}
	c.server.config.Logger.Log(log.Event{
		Timestamp:    time.Now(),
		ConnectionID: c.connID,
		Layer:        log.LayerTransport,
		Category:     log.CategoryState,
		RemoteAddr:   c.remoteAddr.String(),
		StateChange: &log.StateChangeEvent{
			Entity:   log.StateEntityConnection,
			OldState: old,
			NewState: state,
			Reason:   reason,
		},
	})
}

func (c *ServerConn) logEnvelope(env *wire.Envelope, dir log.Direction) {
	logger := c.server.config.Logger
	if logger == nil {
		return
	}
	ev := log.Event{
		Timestamp:    time.Now(),
		ConnectionID: c.connID,
		Direction:    dir,
		Layer:        log.LayerEnvelope,
		Category:     log.CategoryMessage,
		RemoteAddr:   c.remoteAddr.String(),
	}
	switch env.Type {
	case wire.MessagePing:
		ev.Category = log.CategoryControl
		ev.ControlMsg = &log.ControlMsgEvent{Type: log.ControlMsgPing, Seq: env.Seq}
	case wire.MessagePong:
		ev.Category = log.CategoryControl
		ev.ControlMsg = &log.ControlMsgEvent{Type: log.ControlMsgPong, Seq: env.Seq}
	case wire.MessageClose:
		ev.Category = log.CategoryControl
		ev.ControlMsg = &log.ControlMsgEvent{Type: log.ControlMsgClose}
	default:
		ev.SessionID = strconv.FormatUint(uint64(env.Session), 10)
		ev.Envelope = &log.EnvelopeEvent{
			Type:        env.Type,
			Seq:         env.Seq,
			Final:       env.Final,
			PayloadSize: len(env.Payload),
		}
	}
	logger.Log(ev)
}
