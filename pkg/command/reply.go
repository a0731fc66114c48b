package command

import (
	"errors"
	"fmt"
	"strings"

	"github.com/mash-protocol/rci-go/pkg/ber"
	"github.com/mash-protocol/rci-go/pkg/rci"
	"github.com/mash-protocol/rci-go/pkg/schema"
)

// Decoding errors.
var (
	ErrTruncated  = errors.New("command: truncated reply")
	ErrMalformed  = errors.New("command: malformed reply")
	ErrUnknownID  = errors.New("command: id not in schema")
	ErrTrailing   = errors.New("command: trailing bytes after reply")
	ErrNoCommands = errors.New("command: empty reply")
)

// Error is a protocol error carried in a reply.
type Error struct {
	ID          rci.ErrorID
	Description string
	Hint        string
}

func (e *Error) Error() string {
	var sb strings.Builder
	sb.WriteString(e.ID.String())
	if e.Description != "" {
		sb.WriteString(": ")
		sb.WriteString(e.Description)
	}
	if e.Hint != "" {
		sb.WriteString(" (")
		sb.WriteString(e.Hint)
		sb.WriteString(")")
	}
	return sb.String()
}

// Node is one group or list instance of a reply.
type Node struct {
	ID         int
	Collection *schema.Collection

	Index    int
	Key      string
	Count    int
	HasCount bool
	Complete bool
	Removed  bool

	Error  *Error
	Fields []*Field

	// Errors are errors not tied to a field.
	Errors []*Error
}

// Field is one element or list entry of a reply.
type Field struct {
	ID      int
	Item    schema.Item
	Value   rci.Value
	NoValue bool
	Error   *Error
	List    *Node
}

// Reply is a decoded reply.
type Reply struct {
	Command rci.CommandID
	Groups  []*Node

	// Errors are errors not tied to a group.
	Errors []*Error

	// Payload is the do_command response.
	Payload string
}

// Err returns the first error anywhere in the reply, or nil.
func (r *Reply) Err() error {
	if len(r.Errors) > 0 {
		return r.Errors[0]
	}
	for _, g := range r.Groups {
		if err := g.err(); err != nil {
			return err
		}
	}
	return nil
}

func (n *Node) err() error {
	if n.Error != nil {
		return n.Error
	}
	if len(n.Errors) > 0 {
		return n.Errors[0]
	}
	for _, f := range n.Fields {
		if f.Error != nil {
			return f.Error
		}
		if f.List != nil {
			if err := f.List.err(); err != nil {
				return err
			}
		}
	}
	return nil
}

type decoder struct {
	schema *schema.Schema
	buf    []byte
	pos    int
}

// Decode parses a complete reply using s to type the values.
func Decode(s *schema.Schema, data []byte) (*Reply, error) {
	d := &decoder{schema: s, buf: data}
	if len(data) == 0 {
		return nil, ErrNoCommands
	}
	tok, err := d.uint()
	if err != nil {
		return nil, err
	}
	id, _, _ := ber.SplitCommand(tok)
	r := &Reply{Command: rci.CommandID(id)}

	if r.Command == rci.CommandDoCommand {
		m, err := d.modifier()
		if err != nil {
			return nil, err
		}
		switch {
		case m.IsNoValue():
			e, err := d.error(true)
			if err != nil {
				return nil, err
			}
			r.Errors = append(r.Errors, e)
		case m.Kind == ber.KindValue:
			text, err := d.raw(int(m.Value))
			if err != nil {
				return nil, err
			}
			r.Payload = string(text)
		}
		if m.IsTerminator() {
			return r, nil
		}
	}

	gt := GroupType(r.Command)
	for {
		m, err := d.modifier()
		if err != nil {
			return nil, err
		}
		if m.IsTerminator() {
			break
		}
		if m.IsNoValue() {
			e, err := d.error(true)
			if err != nil {
				return nil, err
			}
			r.Errors = append(r.Errors, e)
			continue
		}
		gid, attr, isErr := ber.SplitGroup(uint32(m.Value))
		g, ok := s.Group(gt, int(gid))
		if !ok {
			return nil, fmt.Errorf("%w: group %d", ErrUnknownID, gid)
		}
		n, err := d.node(int(gid), &g.Collection, attr, isErr)
		if err != nil {
			return nil, err
		}
		r.Groups = append(r.Groups, n)
	}
	if d.pos != len(d.buf) {
		return r, ErrTrailing
	}
	return r, nil
}

func (d *decoder) node(id int, c *schema.Collection, attr, isErr bool) (*Node, error) {
	n := &Node{ID: id, Collection: c}
	if attr {
		if err := d.attributes(n); err != nil {
			return nil, err
		}
	}
	if isErr {
		e, err := d.error(false)
		if err != nil {
			return nil, err
		}
		n.Error = e
	}
	for {
		m, err := d.modifier()
		if err != nil {
			return nil, err
		}
		if m.IsTerminator() {
			return n, nil
		}
		if m.IsNoValue() {
			e, err := d.error(false)
			if err != nil {
				return nil, err
			}
			n.Errors = append(n.Errors, e)
			continue
		}
		fid, flags := ber.SplitField(uint32(m.Value))
		item, ok := c.Item(int(fid))
		if !ok {
			return nil, fmt.Errorf("%w: field %d", ErrUnknownID, fid)
		}
		f := &Field{ID: int(fid), Item: item}
		switch {
		case item.List != nil:
			if f.List, err = d.node(int(fid), item.List, flags.Attribute, flags.Error); err != nil {
				return nil, err
			}
		case flags.Error:
			if f.Error, err = d.error(false); err != nil {
				return nil, err
			}
		default:
			if err := d.value(f); err != nil {
				return nil, err
			}
		}
		n.Fields = append(n.Fields, f)
	}
}

func (d *decoder) attributes(n *Node) error {
	tok, err := d.uint()
	if err != nil {
		return err
	}
	dict := n.Collection.Kind.IsDictionary()
	a := ber.DecodeAttribute(tok)
	switch a.Type {
	case ber.AttributeIndex:
		n.Index = int(a.Value)
		return nil
	case ber.AttributeName:
		key, err := d.raw(int(a.Value))
		n.Key = string(key)
		return err
	case ber.AttributeCount:
		n.Count, n.HasCount = int(a.Value), true
		return nil
	}
	for range a.Value {
		aid, err := d.uint()
		if err != nil {
			return err
		}
		if dict && aid == attrName {
			m, err := d.uint()
			if err != nil {
				return err
			}
			key, err := d.raw(int(m))
			if err != nil {
				return err
			}
			n.Key = string(key)
			continue
		}
		v, err := d.uint()
		if err != nil {
			return err
		}
		switch {
		case !dict && aid == attrIndex:
			n.Index = int(v)
		case !dict && aid == attrCount:
			n.Count, n.HasCount = int(v), true
		case dict && aid == attrComplete:
			n.Complete = v != 0
		case dict && aid == attrRemove:
			n.Removed = v != 0
		}
	}
	return nil
}

func (d *decoder) value(f *Field) error {
	t := f.Item.Element.Type
	m, err := d.modifier()
	if err != nil {
		return err
	}
	if m.IsNoValue() {
		f.NoValue = true
		return nil
	}
	if m.Kind != ber.KindValue {
		return ErrMalformed
	}
	var (
		v  rci.Value
		ok bool
	)
	switch {
	case rci.StringEncoded(t):
		b, err := d.raw(int(m.Value))
		if err != nil {
			return err
		}
		v, ok = rci.ValueFromBytes(t, b)
	default:
		v, ok = rci.ValueFromUint(t, uint32(m.Value))
	}
	if !ok {
		return fmt.Errorf("%w: %s value", ErrMalformed, t)
	}
	f.Value = v
	return nil
}

func (d *decoder) error(commandScope bool) (*Error, error) {
	tok, err := d.uint()
	if err != nil {
		return nil, err
	}
	if !ber.IsError(tok) {
		return nil, fmt.Errorf("%w: expected error token", ErrMalformed)
	}
	e := &Error{ID: rci.ErrorID(ber.SplitError(tok, commandScope))}
	desc, err := d.string()
	if err != nil {
		return nil, err
	}
	hint, err := d.string()
	if err != nil {
		return nil, err
	}
	e.Description, e.Hint = desc, hint
	return e, nil
}

func (d *decoder) modifier() (ber.Modifier, error) {
	m, err := ber.DecodeModifier(d.buf[d.pos:])
	if errors.Is(err, ber.ErrShortBuffer) {
		return m, ErrTruncated
	}
	if err != nil {
		return m, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	d.pos += m.Size
	return m, nil
}

func (d *decoder) uint() (uint32, error) {
	v, n, err := ber.DecodeUint32(d.buf[d.pos:])
	if errors.Is(err, ber.ErrShortBuffer) {
		return 0, ErrTruncated
	}
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	d.pos += n
	return v, nil
}

func (d *decoder) raw(n int) ([]byte, error) {
	if n < 0 || len(d.buf)-d.pos < n {
		return nil, ErrTruncated
	}
	b := d.buf[d.pos : d.pos+n]
	d.pos += n
	return b, nil
}

func (d *decoder) string() (string, error) {
	b, n, err := ber.DecodeString(d.buf[d.pos:])
	if errors.Is(err, ber.ErrShortBuffer) {
		return "", ErrTruncated
	}
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	d.pos += n
	return string(b), nil
}
