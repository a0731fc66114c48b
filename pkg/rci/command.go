package rci

import (
	"errors"

	"github.com/mash-protocol/rci-go/pkg/ber"
	"github.com/mash-protocol/rci-go/pkg/schema"
)

// command runs one request and closes the reply.
func (s *session) command() error {
	err := s.commandBody()
	if errors.Is(err, errHalted) {
		return err
	}
	if cerr := s.ensureCommand(); cerr != nil {
		return cerr
	}
	if cerr := s.emitTerminator(); cerr != nil {
		return cerr
	}
	return err
}

func (s *session) commandBody() error {
	tok, err := s.readUint()
	if err != nil {
		return err
	}
	id, hasAttr, _ := ber.SplitCommand(tok)
	s.cmd = CommandID(id)

	switch s.cmd {
	case CommandQuerySetting:
		s.ctx.Action, s.ctx.GroupType = ActionQuery, schema.GroupSetting
	case CommandSetSetting:
		s.ctx.Action, s.ctx.GroupType = ActionSet, schema.GroupSetting
	case CommandQueryState:
		s.ctx.Action, s.ctx.GroupType = ActionQuery, schema.GroupState
	case CommandSetState:
		s.ctx.Action, s.ctx.GroupType = ActionSet, schema.GroupState
	case CommandDoCommand:
		s.ctx.Action = ActionDoCommand
	case CommandReboot:
		s.ctx.Action = ActionReboot
	case CommandSetFactoryDefault:
		s.ctx.Action = ActionSetFactoryDefault
	case CommandQueryDescriptor:
		return s.fail(ErrorBadCommand, HintDescriptor)
	default:
		return s.fail(ErrorBadCommand, HintUnknownCommand)
	}

	if hasAttr {
		if err := s.readCommandAttributes(); err != nil {
			return err
		}
	}

	if err := s.call(RequestActionStart); err != nil {
		return err
	}
	if resp := s.ctx.Response; resp.ErrorID != ErrorNone {
		err = s.report(resp)
		return s.closing(RequestActionEnd, err)
	}
	if err := s.ensureCommand(); err != nil {
		return err
	}

	switch s.ctx.Action {
	case ActionQuery, ActionSet:
		err = s.groups()
		if !errors.Is(err, errHalted) {
			err = s.unlock(0, err)
		}
	default:
		err = s.legacy()
	}
	if errors.Is(err, errHalted) {
		return err
	}
	s.ctx.Depth = 0
	return s.closing(RequestActionEnd, err)
}

// readCommandAttributes reads the attribute block after a command id.
func (s *session) readCommandAttributes() error {
	tok, err := s.readUint()
	if err != nil {
		return err
	}
	a := ber.DecodeAttribute(tok)
	switch a.Type {
	case ber.AttributeIndex:
		return nil
	case ber.AttributeNormal:
	default:
		return s.fail(ErrorBadDescriptor, "")
	}
	if int(a.Value) > s.cmd.maxAttributes() {
		return s.fail(ErrorBadDescriptor, "")
	}

	attrs := &s.ctx.Attributes
	for range a.Value {
		aid, err := s.readUint()
		if err != nil {
			return err
		}
		switch {
		case s.cmd == CommandQuerySetting && aid == attrSource:
			v, err := s.readUint()
			if err != nil {
				return err
			}
			if !Source(v).IsValid() {
				return s.fail(ErrorBadDescriptor, "")
			}
			attrs.Source = Source(v)
		case s.cmd == CommandQuerySetting && aid == attrCompareTo:
			v, err := s.readUint()
			if err != nil {
				return err
			}
			if !CompareTo(v).IsValid() {
				return s.fail(ErrorBadDescriptor, "")
			}
			attrs.CompareTo = CompareTo(v)
		case s.cmd == CommandSetSetting && aid == attrEmbed:
			v, err := s.readUint()
			if err != nil {
				return err
			}
			attrs.EmbedTransformed = v != 0
		case s.cmd == CommandDoCommand && aid == attrTarget:
			target, err := s.readString(maxTargetLength)
			if err != nil {
				return err
			}
			attrs.Target = target
		default:
			return s.fail(ErrorBadDescriptor, "")
		}
	}
	return nil
}

// legacy runs do_command, reboot and set_factory_default.
func (s *session) legacy() error {
	var req Request
	switch s.ctx.Action {
	case ActionDoCommand:
		req = RequestDoCommand
		m, err := s.readModifier()
		if err != nil {
			return err
		}
		payload := ""
		switch {
		case m.IsNoValue():
		case m.Kind == ber.KindValue && m.Value <= 0xFFFFFFFF:
			if payload, err = s.readText(int(m.Value)); err != nil {
				return err
			}
		default:
			return s.fail(ErrorBadDescriptor, "")
		}
		s.ctx.Value = StringValue(schema.TypeString, payload)
	case ActionReboot:
		req = RequestReboot
	default:
		req = RequestSetFactoryDefault
	}

	if err := s.call(req); err != nil {
		return err
	}
	resp := s.ctx.Response
	if resp.ErrorID != ErrorNone {
		return s.report(resp)
	}
	switch req {
	case RequestDoCommand:
		s.pending = ber.AppendString(s.pending, resp.Value.Text)
		return s.flush()
	case RequestReboot:
		s.reboot = true
	}
	return nil
}
