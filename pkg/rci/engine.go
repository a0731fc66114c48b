package rci

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/mash-protocol/rci-go/pkg/schema"
)

// SessionAction tells Step how the call relates to the exchange.
type SessionAction uint8

const (
	// SessionStart begins a new exchange with the first input chunk.
	SessionStart SessionAction = iota

	// SessionActive continues the current exchange.
	SessionActive

	// SessionLost cancels the current exchange, e.g. after the transport
	// dropped.
	SessionLost
)

// String returns the action name.
func (a SessionAction) String() string {
	switch a {
	case SessionStart:
		return "START"
	case SessionActive:
		return "ACTIVE"
	case SessionLost:
		return "LOST"
	default:
		return "UNKNOWN"
	}
}

// Status is the outcome of one Step.
type Status uint8

const (
	// StatusBusy: call Step again with the same remaining input.
	StatusBusy Status = iota

	// StatusMoreInput: the input was consumed; call Step with the next chunk.
	StatusMoreInput

	// StatusFlushOutput: the output buffer is full; drain it and call Step
	// with the remaining input.
	StatusFlushOutput

	// StatusComplete: the exchange finished and the session was released.
	StatusComplete

	// StatusError: the callback aborted; the session was released.
	StatusError

	// StatusInternalError: Step was misused; the session, if any, is
	// unchanged.
	StatusInternalError
)

// String returns the status name.
func (s Status) String() string {
	switch s {
	case StatusBusy:
		return "BUSY"
	case StatusMoreInput:
		return "MORE_INPUT"
	case StatusFlushOutput:
		return "FLUSH_OUTPUT"
	case StatusComplete:
		return "COMPLETE"
	case StatusError:
		return "ERROR"
	case StatusInternalError:
		return "INTERNAL_ERROR"
	default:
		return "UNKNOWN"
	}
}

// Done returns true when the session was released.
func (s Status) Done() bool {
	return s == StatusComplete || s == StatusError
}

// Input is one chunk of request bytes.
type Input struct {
	Data []byte

	// Final marks the last chunk of the request.
	Final bool
}

// StepResult reports the progress of one Step.
type StepResult struct {
	Status Status

	// Read is the number of input bytes consumed. The next Step takes
	// Data[Read:] followed by any new bytes.
	Read int

	// Written is the number of bytes placed in the output buffer.
	Written int
}

// Engine runs RCI exchanges against a schema and a callback. One engine
// serves one exchange at a time; use one engine per connection.
type Engine struct {
	schema   *schema.Schema
	callback Callback
	config   Config
	arena    *Arena
	log      *slog.Logger

	session *session
}

// NewEngine validates the schema against the configured list depth and
// returns an engine.
func NewEngine(s *schema.Schema, cb Callback, config Config, opts ...Option) (*Engine, error) {
	if s == nil {
		return nil, errors.New("rci: nil schema")
	}
	if cb == nil {
		return nil, errors.New("rci: nil callback")
	}
	config.applyDefaults()
	if err := s.Validate(config.ListDepth); err != nil {
		return nil, fmt.Errorf("rci: schema: %w", err)
	}

	e := &Engine{
		schema:   s,
		callback: cb,
		config:   config,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.log = e.config.Logger
	return e, nil
}

// Schema returns the engine's schema.
func (e *Engine) Schema() *schema.Schema { return e.schema }

// Active returns true while an exchange is in progress.
func (e *Engine) Active() bool { return e.session != nil }

// SessionID returns the id of the current exchange, or "".
func (e *Engine) SessionID() string {
	if e.session == nil {
		return ""
	}
	return e.session.id
}

// Step drives the exchange with the next input chunk and output buffer.
func (e *Engine) Step(action SessionAction, in Input, out []byte) StepResult {
	if action != SessionLost && len(out) == 0 {
		return StepResult{Status: StatusInternalError}
	}
	switch action {
	case SessionStart:
		if e.session != nil {
			e.log.Error("rci session start while active", "session_id", e.session.id, "error", ErrSessionActive)
			return StepResult{Status: StatusInternalError}
		}
		s, err := e.acquire()
		if err != nil {
			e.log.Warn("rci session start deferred", "error", err)
			return StepResult{Status: StatusBusy}
		}
		e.session = s
		s.begin()
	case SessionActive:
		if e.session == nil {
			e.log.Error("rci step without session", "error", ErrNoSession)
			return StepResult{Status: StatusInternalError}
		}
	case SessionLost:
		return e.lose()
	default:
		return StepResult{Status: StatusInternalError}
	}

	s := e.session
	s.bind(in, out)
	w, ok := s.next()
	res := StepResult{Read: s.pos, Written: s.written}
	if !ok {
		res.Status = StatusComplete
		reason := ""
		if s.aborted {
			res.Status = StatusError
			reason = "aborted"
		}
		e.release(s, res.Status.String(), reason)
		return res
	}
	switch w {
	case waitInput:
		res.Status = StatusMoreInput
	case waitOutput:
		res.Status = StatusFlushOutput
	default:
		res.Status = StatusBusy
	}
	return res
}

// lose stops the exchange coroutine and dispatches SESSION_CANCEL.
func (e *Engine) lose() StepResult {
	s := e.session
	if s == nil {
		return StepResult{Status: StatusComplete}
	}
	if s.stop != nil {
		s.stop()
		s.stop, s.next = nil, nil
	}
	s.ctx.Response = Response{}
	r := e.callback.Handle(RequestSessionCancel, &s.ctx)
	s.logCallback(RequestSessionCancel, r)
	if r == Busy {
		return StepResult{Status: StatusBusy}
	}
	e.release(s, "CANCELLED", "session lost")
	return StepResult{Status: StatusComplete}
}

func (e *Engine) acquire() (*session, error) {
	var s *session
	if e.arena != nil {
		var err error
		if s, err = e.arena.acquire(); err != nil {
			return nil, err
		}
	} else {
		s = &session{slot: -1}
	}
	s.reset(e)
	return s, nil
}

func (e *Engine) release(s *session, state, reason string) {
	if s.stop != nil {
		s.stop()
	}
	s.logState("ACTIVE", state, reason)
	e.session = nil
	if e.arena != nil {
		s.yield, s.next, s.stop = nil, nil, nil
		s.ctx = Context{}
		e.arena.release(s)
	}
}
