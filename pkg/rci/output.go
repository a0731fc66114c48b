package rci

import (
	"github.com/mash-protocol/rci-go/pkg/ber"
	"github.com/mash-protocol/rci-go/pkg/schema"
)

// flush copies staged bytes into the caller's buffer, suspending for a new
// buffer while any remain.
func (s *session) flush() error {
	for {
		if s.halted {
			return errHalted
		}
		n := copy(s.out[s.written:], s.pending)
		s.written += n
		rest := copy(s.pending, s.pending[n:])
		s.pending = s.pending[:rest]
		if len(s.pending) == 0 {
			return nil
		}
		if err := s.wait(waitOutput); err != nil {
			return err
		}
	}
}

// ensureCommand writes the command token once.
func (s *session) ensureCommand() error {
	if s.cmdOpen {
		return nil
	}
	s.cmdOpen = true
	s.pending = ber.AppendUint(s.pending, uint64(ber.CommandToken(uint32(s.cmd), false)))
	return s.flush()
}

func (s *session) emitTerminator() error {
	s.pending = ber.AppendTerminator(s.pending)
	return s.flush()
}

// closeLevel terminates the innermost open level.
func (s *session) closeLevel() error {
	if s.open > 0 {
		s.open--
	}
	return s.emitTerminator()
}

func (s *session) appendError(id ErrorID, hint string) {
	commandScope := s.open == 0
	s.pending = ber.AppendUint(s.pending, uint64(ber.ErrorToken(uint32(id), commandScope)))
	s.pending = ber.AppendString(s.pending, Description(id, s.engine.schema, s.ctx.GroupEntry))
	s.pending = ber.AppendString(s.pending, hint)
	s.logProtocolError(id, hint)
}

// emitBareError writes an error that is not attached to an id token. With
// no level open it uses the command-scope layout.
func (s *session) emitBareError(id ErrorID, hint string) error {
	if s.halted {
		return errHalted
	}
	if err := s.ensureCommand(); err != nil {
		return err
	}
	s.pending = ber.AppendNoValue(s.pending)
	s.appendError(id, hint)
	return s.flush()
}

// fail writes a fatal protocol error and returns the fault that unwinds the
// open levels.
func (s *session) fail(id ErrorID, hint string) error {
	if err := s.emitBareError(id, hint); err != nil {
		return err
	}
	return &fault{id: id, hint: hint}
}

// report turns a callback error into a bare reply error. It returns a fault
// for fatal ids.
func (s *session) report(resp Response) error {
	if err := s.emitBareError(resp.ErrorID, resp.Hint); err != nil {
		return err
	}
	if resp.ErrorID.IsFatal() {
		return &fault{id: resp.ErrorID, hint: resp.Hint}
	}
	return nil
}

// closing dispatches an end or unlock request. Its error is written to the
// reply unless the command is already failing with err.
func (s *session) closing(req Request, err error) error {
	if cerr := s.call(req); cerr != nil {
		return cerr
	}
	resp := s.ctx.Response
	if resp.ErrorID == ErrorNone {
		return err
	}
	if err != nil {
		s.engine.log.Debug("rci error while closing", "session_id", s.id, "request", req.String(), "error", resp.ErrorID)
		return err
	}
	return s.report(resp)
}

// instanceRef is one collection instance.
type instanceRef struct {
	index int
	key   string
}

// header writes a group or list header: the id token and its instance
// attributes, optionally followed by an error. It opens a level.
func (s *session) header(d, id int, c *schema.Collection, inst instanceRef, showCount bool, errID ErrorID, hint string) error {
	if err := s.ensureCommand(); err != nil {
		return err
	}
	hasAttr := c.Kind != schema.FixedArray || c.Instances != 1
	isErr := errID != ErrorNone
	if d == 0 {
		s.pending = ber.AppendUint(s.pending, uint64(ber.GroupToken(uint32(id), hasAttr, isErr)))
	} else {
		s.pending = ber.AppendUint(s.pending, uint64(ber.FieldToken(uint32(id), ber.FieldFlags{Attribute: hasAttr, Error: isErr})))
	}
	if hasAttr {
		switch {
		case c.Kind.IsDictionary() && showCount:
			s.pending = appendAttribute(s.pending, ber.AttributeNormal, 2)
			s.pending = ber.AppendUint(s.pending, attrName)
			s.pending = ber.AppendString(s.pending, inst.key)
			s.pending = ber.AppendUint(s.pending, attrComplete)
			s.pending = ber.AppendUint(s.pending, 1)
		case c.Kind.IsDictionary() && !ber.FitsAttribute(ber.AttributeName, uint32(len(inst.key))):
			s.pending = appendAttribute(s.pending, ber.AttributeNormal, 1)
			s.pending = ber.AppendUint(s.pending, attrName)
			s.pending = ber.AppendString(s.pending, inst.key)
		case c.Kind.IsDictionary():
			s.pending = appendAttribute(s.pending, ber.AttributeName, uint32(len(inst.key)))
			s.pending = append(s.pending, inst.key...)
		case showCount:
			s.pending = appendAttribute(s.pending, ber.AttributeNormal, 2)
			s.pending = ber.AppendUint(s.pending, attrIndex)
			s.pending = ber.AppendUint(s.pending, uint64(inst.index))
			s.pending = ber.AppendUint(s.pending, attrCount)
			s.pending = ber.AppendUint(s.pending, uint64(s.levels[d].count))
		case !ber.FitsAttribute(ber.AttributeIndex, uint32(inst.index)):
			s.pending = appendAttribute(s.pending, ber.AttributeNormal, 1)
			s.pending = ber.AppendUint(s.pending, attrIndex)
			s.pending = ber.AppendUint(s.pending, uint64(inst.index))
		default:
			s.pending = appendAttribute(s.pending, ber.AttributeIndex, uint32(inst.index))
		}
	}
	s.open++
	s.levels[d].fresh = false
	if isErr {
		s.appendError(errID, hint)
	}
	return s.flush()
}

// appendAttribute appends a token whose value is known to fit: a pair count
// or a length or index the caller checked with ber.FitsAttribute.
func appendAttribute(dst []byte, t ber.AttributeType, value uint32) []byte {
	tok, _ := ber.EncodeAttribute(t, value)
	return ber.AppendUint(dst, uint64(tok))
}

// emptyHeader reports a variable collection without instances.
func (s *session) emptyHeader(d, id int, c *schema.Collection) error {
	if err := s.ensureCommand(); err != nil {
		return err
	}
	if d == 0 {
		s.pending = ber.AppendUint(s.pending, uint64(ber.GroupToken(uint32(id), true, false)))
	} else {
		s.pending = ber.AppendUint(s.pending, uint64(ber.FieldToken(uint32(id), ber.FieldFlags{Attribute: true})))
	}
	s.pending = appendAttribute(s.pending, ber.AttributeNormal, 1)
	if c.Kind.IsDictionary() {
		s.pending = ber.AppendUint(s.pending, attrComplete)
		s.pending = ber.AppendUint(s.pending, 1)
	} else {
		s.pending = ber.AppendUint(s.pending, attrCount)
		s.pending = ber.AppendUint(s.pending, 0)
	}
	s.pending = ber.AppendTerminator(s.pending)
	return s.flush()
}

// removedHeader reports a dictionary instance that was removed.
func (s *session) removedHeader(d, id int, key string) error {
	if err := s.ensureCommand(); err != nil {
		return err
	}
	if d == 0 {
		s.pending = ber.AppendUint(s.pending, uint64(ber.GroupToken(uint32(id), true, false)))
	} else {
		s.pending = ber.AppendUint(s.pending, uint64(ber.FieldToken(uint32(id), ber.FieldFlags{Attribute: true})))
	}
	s.pending = appendAttribute(s.pending, ber.AttributeNormal, 2)
	s.pending = ber.AppendUint(s.pending, attrName)
	s.pending = ber.AppendString(s.pending, key)
	s.pending = ber.AppendUint(s.pending, attrRemove)
	s.pending = ber.AppendUint(s.pending, 1)
	s.pending = ber.AppendTerminator(s.pending)
	return s.flush()
}

// field writes an element result: a value, NO_VALUE, or an error.
func (s *session) field(id int, v *Value, errID ErrorID, hint string) error {
	if errID == ErrorNone && v != nil {
		enc, err := AppendValue(s.scratch[:0], *v)
		s.scratch = enc
		if err != nil {
			errID, hint = ErrorBadValue, err.Error()
		}
	}
	isErr := errID != ErrorNone
	s.pending = ber.AppendUint(s.pending, uint64(ber.FieldToken(uint32(id), ber.FieldFlags{Error: isErr})))
	switch {
	case isErr:
		s.appendError(errID, hint)
	case v != nil:
		s.pending = append(s.pending, s.scratch...)
	default:
		s.pending = ber.AppendNoValue(s.pending)
	}
	return s.flush()
}
