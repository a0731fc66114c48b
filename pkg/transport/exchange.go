package transport

import (
	"fmt"
	"time"

	"github.com/mash-protocol/rci-go/pkg/rci"
	"github.com/mash-protocol/rci-go/pkg/wire"
)

// handleSession routes a session envelope to the connection's exchange.
// A returned error ends the connection.
func (c *ServerConn) handleSession(env *wire.Envelope) error {
	switch env.Type {
	case wire.MessageStart:
		if c.session != 0 {
			return c.reject(env.Session, "session already active")
		}
		c.session, c.nextSeq, c.replySeq = env.Session, 1, 0
		c.carry = c.carry[:0]
		return c.feed(rci.SessionStart, env.Payload, env.Final)

	case wire.MessageData:
		if env.Session != c.session {
			return c.reject(env.Session, "unknown session")
		}
		if env.Seq != c.nextSeq {
			c.lose("sequence gap")
			return c.reject(env.Session, fmt.Sprintf("seq %d, want %d", env.Seq, c.nextSeq))
		}
		c.nextSeq++
		return c.feed(rci.SessionActive, env.Payload, env.Final)

	case wire.MessageLost:
		if env.Session != c.session {
			return nil
		}
		c.lose("lost by controller")
		return c.finish(nil, wire.StatusCancelled)

	default:
		return c.reject(env.Session, "unexpected "+env.Type.String())
	}
}

// feed steps the exchange with one request chunk until it needs the next
// chunk or completes. Output is sent as reply envelopes as it is flushed.
func (c *ServerConn) feed(action rci.SessionAction, chunk []byte, final bool) error {
	data := chunk
	if len(c.carry) > 0 {
		data = append(c.carry, chunk...)
	}
	retries := 0

	for {
		res := c.ex.Step(action, rci.Input{Data: data, Final: final}, c.out)
		data = data[res.Read:]
		if c.ex.Active() {
			action = rci.SessionActive
		}

		switch res.Status {
		case rci.StatusMoreInput:
			c.carry = append(c.carry[:0], data...)
			if err := c.reply(res.Written); err != nil {
				return err
			}
			if final {
				c.lose("request ended early")
				return c.finish(nil, wire.StatusInternalError)
			}
			return nil

		case rci.StatusFlushOutput:
			if err := c.reply(res.Written); err != nil {
				return err
			}

		case rci.StatusBusy:
			if err := c.reply(res.Written); err != nil {
				return err
			}
			if !c.ex.Active() {
				if retries++; retries > c.server.config.StartRetries {
					return c.finish(nil, wire.StatusBusy)
				}
			}
			if err := sleepCtx(c.server.ctx, c.server.config.BusyBackoff); err != nil {
				c.lose("server stopped")
				return err
			}

		case rci.StatusComplete:
			return c.finish(c.out[:res.Written], wire.StatusComplete)

		case rci.StatusError:
			return c.finish(c.out[:res.Written], wire.StatusAborted)

		default:
			if c.ex.Active() {
				c.lose("internal error")
			}
			return c.finish(c.out[:res.Written], wire.StatusInternalError)
		}
	}
}

// reply sends n staged output bytes as a non-final reply.
func (c *ServerConn) reply(n int) error {
	if n == 0 {
		return nil
	}
	env := wire.NewReply(c.session, c.replySeq, c.out[:n], false, wire.StatusComplete)
	c.replySeq++
	return c.Send(env)
}

// finish sends the final reply and frees the connection for the next
// session.
func (c *ServerConn) finish(payload []byte, status wire.Status) error {
	env := wire.NewReply(c.session, c.replySeq, payload, true, status)
	c.session, c.nextSeq, c.replySeq = 0, 0, 0
	c.carry = c.carry[:0]
	if status != wire.StatusComplete {
		c.server.config.Slog.Debug("rci exchange ended", "conn_id", c.connID, "status", status.String())
	}
	return c.Send(env)
}

// reject answers a session envelope that does not fit the connection state.
func (c *ServerConn) reject(session uint32, reason string) error {
	c.server.config.Slog.Warn("rci envelope rejected", "conn_id", c.connID, "session", session, "reason", reason)
	if session == 0 {
		return nil
	}
	if session == c.session {
		c.lose(reason)
		c.session, c.nextSeq, c.replySeq = 0, 0, 0
	}
	return c.Send(wire.NewReply(session, 0, nil, true, wire.StatusProtocolError))
}

// lose cancels the running exchange. Busy callbacks are retried for a
// bounded time; the exchange is abandoned afterwards.
func (c *ServerConn) lose(reason string) {
	if !c.ex.Active() {
		return
	}
	for i := 0; i <= c.server.config.StartRetries; i++ {
		res := c.ex.Step(rci.SessionLost, rci.Input{}, nil)
		if res.Status != rci.StatusBusy {
			c.server.config.Slog.Debug("rci exchange cancelled", "conn_id", c.connID, "reason", reason)
			return
		}
		time.Sleep(c.server.config.BusyBackoff)
	}
	c.server.config.Slog.Error("rci exchange cancel stayed busy", "conn_id", c.connID, "reason", reason)
}
