package rci

import (
	"errors"
	"iter"
	"time"

	"github.com/google/uuid"

	"github.com/mash-protocol/rci-go/pkg/ber"
	"github.com/mash-protocol/rci-go/pkg/log"
)

// suspend is why the exchange coroutine handed control back to Step.
type suspend uint8

const (
	waitInput suspend = iota + 1
	waitOutput
	waitBusy
)

// level is the state kept per nesting depth; depth 0 is the group.
type level struct {
	// Instances of the collection currently addressed at this depth.
	dict  bool
	count int
	keys  []string

	// fresh is set after a lock or resize until the next header is written.
	fresh bool

	// A variable collection lock is held lazily across instances.
	locked   bool
	lockAddr Address
}

func (l *level) instances() int {
	if l.dict {
		return len(l.keys)
	}
	return l.count
}

// session is one RCI exchange. It runs as a coroutine pulled by Step.
type session struct {
	slot   int
	engine *Engine
	id     string

	ctx      Context
	cmd      CommandID
	cmdOpen  bool
	open     int
	levels   [MaxListDepth + 1]level
	reboot   bool
	maxDepth int

	// Input: the chunk of the current Step and the bytes of a token that
	// straddles chunks.
	in         []byte
	pos        int
	final      bool
	spill      []byte
	maxContent int

	// Output: the caller's buffer and bytes staged but not yet copied.
	out     []byte
	written int
	pending []byte
	scratch []byte

	yield func(suspend) bool
	next  func() (suspend, bool)
	stop  func()

	halted  bool
	aborted bool
}

// outputStaging is the preallocated staging capacity of arena sessions.
const outputStaging = 256

func (s *session) reset(e *Engine) {
	*s = session{
		slot:       s.slot,
		engine:     e,
		id:         uuid.NewString(),
		maxDepth:   e.config.ListDepth,
		maxContent: e.config.MaxContentLength,
		spill:      s.spill[:0],
		pending:    s.pending[:0],
		scratch:    s.scratch[:0],
	}
	if cap(s.spill) > s.maxContent {
		s.maxContent = cap(s.spill)
	}
	s.ctx.Schema = e.schema
}

func (s *session) begin() {
	s.next, s.stop = iter.Pull(iter.Seq[suspend](func(yield func(suspend) bool) {
		s.yield = yield
		s.exchange()
	}))
}

func (s *session) bind(in Input, out []byte) {
	s.in = in.Data
	s.pos = 0
	s.final = in.Final
	s.out = out
	s.written = 0
}

// wait suspends the exchange until the next Step.
func (s *session) wait(w suspend) error {
	if s.halted {
		return errHalted
	}
	if !s.yield(w) {
		s.halted = true
		return errHalted
	}
	return nil
}

// call dispatches one request, repeating it while the callback is busy. The
// response is cleared once, before the first attempt.
func (s *session) call(req Request) error {
	if s.halted {
		return errHalted
	}
	s.ctx.Response = Response{}
	for {
		r := s.engine.callback.Handle(req, &s.ctx)
		s.logCallback(req, r)
		switch r {
		case Continue:
			return nil
		case Busy:
			if err := s.wait(waitBusy); err != nil {
				return err
			}
		default:
			s.halted = true
			s.aborted = true
			return errHalted
		}
	}
}

func (s *session) exchange() {
	s.logState("", "started", "")
	if err := s.call(RequestSessionStart); err != nil {
		return
	}
	if resp := s.ctx.Response; resp.ErrorID != ErrorNone {
		s.leadingCommand()
		if s.emitBareError(resp.ErrorID, resp.Hint) != nil || s.emitTerminator() != nil {
			return
		}
		s.endSession()
		return
	}

	if err := s.command(); errors.Is(err, errHalted) {
		return
	}
	s.endSession()
}

// leadingCommand takes the command id from the first request token when the
// current chunk holds it. The request is not parsed further.
func (s *session) leadingCommand() {
	m, err := ber.DecodeModifier(s.in[s.pos:])
	if err != nil || m.Kind != ber.KindValue || m.Value > 0xFFFFFFFF {
		return
	}
	id, _, _ := ber.SplitCommand(uint32(m.Value))
	s.cmd = CommandID(id)
}

func (s *session) endSession() {
	if err := s.call(RequestSessionEnd); err != nil {
		return
	}
	if id := s.ctx.Response.ErrorID; id != ErrorNone {
		s.engine.log.Warn("session end failed", "session_id", s.id, "error", id, "hint", s.ctx.Response.Hint)
	}
	if s.reboot && s.engine.config.Rebooter != nil {
		for s.engine.config.Rebooter.Reboot() == Busy {
			if s.wait(waitBusy) != nil {
				return
			}
		}
	}
}

func (s *session) logCallback(req Request, r Result) {
	lvl := s.ctx.Level()
	s.engine.log.Debug("rci callback",
		"session_id", s.id,
		"request", req.String(),
		"result", r.String(),
		"group", s.ctx.Group.ID,
		"depth", s.ctx.Depth,
		"error", s.ctx.Response.ErrorID)
	pl := s.engine.config.ProtocolLogger
	if pl == nil {
		return
	}
	pl.Log(log.Event{
		Timestamp:    time.Now(),
		ConnectionID: s.engine.config.ConnectionID,
		SessionID:    s.id,
		Direction:    log.DirectionIn,
		Layer:        log.LayerEngine,
		Category:     log.CategoryCallback,
		LocalRole:    log.RoleDevice,
		Callback: &log.CallbackEvent{
			Request:   req.String(),
			Result:    r.String(),
			GroupID:   s.ctx.Group.ID,
			Instance:  lvl.Index,
			Key:       lvl.Key,
			Depth:     s.ctx.Depth,
			ElementID: s.ctx.Element.ID,
			ErrorID:   uint32(s.ctx.Response.ErrorID),
		},
	})
}

func (s *session) logState(old, state, reason string) {
	s.engine.log.Debug("rci session", "session_id", s.id, "state", state, "reason", reason)
	pl := s.engine.config.ProtocolLogger
	if pl == nil {
		return
	}
	pl.Log(log.Event{
		Timestamp:    time.Now(),
		ConnectionID: s.engine.config.ConnectionID,
		SessionID:    s.id,
		Layer:        log.LayerEngine,
		Category:     log.CategoryState,
		LocalRole:    log.RoleDevice,
		StateChange: &log.StateChangeEvent{
			Entity:   log.StateEntitySession,
			OldState: old,
			NewState: state,
			Reason:   reason,
		},
	})
}

func (s *session) logProtocolError(id ErrorID, hint string) {
	s.engine.log.Debug("rci protocol error", "session_id", s.id, "error", id, "hint", hint)
	pl := s.engine.config.ProtocolLogger
	if pl == nil {
		return
	}
	code := int(id)
	pl.Log(log.Event{
		Timestamp:    time.Now(),
		ConnectionID: s.engine.config.ConnectionID,
		SessionID:    s.id,
		Direction:    log.DirectionOut,
		Layer:        log.LayerEngine,
		Category:     log.CategoryError,
		LocalRole:    log.RoleDevice,
		Error: &log.ErrorEventData{
			Layer:   log.LayerEngine,
			Message: id.String(),
			Code:    &code,
			Context: hint,
		},
	})
}
