package command

import (
	"github.com/mash-protocol/rci-go/pkg/ber"
	"github.com/mash-protocol/rci-go/pkg/rci"
	"github.com/mash-protocol/rci-go/pkg/schema"
)

// Collection attribute ids as carried in normal attribute pairs.
const (
	attrIndex    = 0
	attrCount    = 1
	attrShrink   = 2
	attrName     = 0
	attrComplete = 1
	attrRemove   = 2
)

// Instance addresses an instance in a group or list header. The zero value
// addresses no instance: all instances for a query, the first (or the empty
// key) for a set.
type Instance struct {
	Index int
	Key   string

	// Count resizes a variable array when Resize is set.
	Count  int
	Resize bool

	// NoShrink forbids a resize from removing instances.
	NoShrink bool

	// Complete adds Key to a variable dictionary.
	Complete bool

	// Remove deletes the instance named by Key.
	Remove bool
}

func (in Instance) normal() bool {
	return in.Resize || in.NoShrink || in.Complete || in.Remove
}

func (in Instance) empty() bool {
	return in.Index == 0 && in.Key == "" && !in.normal()
}

// Builder assembles a request.
type Builder struct {
	buf    []byte
	cmd    rci.CommandID
	depth  int
	attrs  [][]byte
	header bool
	err    error
}

// New starts a request for cmd.
func New(cmd rci.CommandID) *Builder {
	return &Builder{cmd: cmd}
}

func (b *Builder) commandAttr(id uint32, value []byte) *Builder {
	pair := ber.AppendUint(nil, uint64(id))
	b.attrs = append(b.attrs, append(pair, value...))
	return b
}

// Source sets the query source attribute.
func (b *Builder) Source(src rci.Source) *Builder {
	return b.commandAttr(0, ber.AppendUint(nil, uint64(src)))
}

// CompareTo sets the query comparison attribute.
func (b *Builder) CompareTo(c rci.CompareTo) *Builder {
	return b.commandAttr(1, ber.AppendUint(nil, uint64(c)))
}

// EmbedTransformed asks set replies to carry the applied values.
func (b *Builder) EmbedTransformed() *Builder {
	return b.commandAttr(0, ber.AppendUint(nil, 1))
}

// Target sets the do_command target.
func (b *Builder) Target(target string) *Builder {
	return b.commandAttr(0, ber.AppendString(nil, target))
}

func (b *Builder) start() {
	if b.header {
		return
	}
	b.header = true
	b.buf = ber.AppendUint(b.buf, uint64(ber.CommandToken(uint32(b.cmd), len(b.attrs) > 0)))
	if len(b.attrs) > 0 {
		var err error
		if b.buf, err = ber.AppendAttribute(b.buf, ber.AttributeNormal, uint32(len(b.attrs))); err != nil && b.err == nil {
			b.err = err
		}
		for _, a := range b.attrs {
			b.buf = append(b.buf, a...)
		}
	}
}

// Group opens a group.
func (b *Builder) Group(id int, in Instance) *Builder {
	b.start()
	b.buf = ber.AppendUint(b.buf, uint64(ber.GroupToken(uint32(id), !in.empty(), false)))
	b.instance(in)
	b.depth++
	return b
}

// List opens a list field.
func (b *Builder) List(id int, in Instance) *Builder {
	b.start()
	b.buf = ber.AppendUint(b.buf, uint64(ber.FieldToken(uint32(id), ber.FieldFlags{Attribute: !in.empty()})))
	b.instance(in)
	b.depth++
	return b
}

// Query adds a field asking for the element's value.
func (b *Builder) Query(id int) *Builder {
	b.start()
	b.buf = ber.AppendUint(b.buf, uint64(ber.FieldToken(uint32(id), ber.FieldFlags{})))
	b.buf = ber.AppendNoValue(b.buf)
	return b
}

// Set adds a field carrying a value.
func (b *Builder) Set(id int, v rci.Value) *Builder {
	b.start()
	enc, err := rci.AppendValue(nil, v)
	if err != nil && b.err == nil {
		b.err = err
	}
	b.buf = ber.AppendUint(b.buf, uint64(ber.FieldToken(uint32(id), ber.FieldFlags{})))
	b.buf = append(b.buf, enc...)
	return b
}

// SetTyped adds a field with a type indicator.
func (b *Builder) SetTyped(id int, v rci.Value) *Builder {
	b.start()
	enc, err := rci.AppendValue(nil, v)
	if err != nil && b.err == nil {
		b.err = err
	}
	b.buf = ber.AppendUint(b.buf, uint64(ber.FieldToken(uint32(id), ber.FieldFlags{Typed: true})))
	b.buf = ber.AppendUint(b.buf, uint64(v.Type))
	b.buf = append(b.buf, enc...)
	return b
}

// Default adds a set field with NO_VALUE.
func (b *Builder) Default(id int) *Builder {
	return b.Query(id)
}

// End closes the innermost group or list. Ending a level without fields
// addresses all its elements.
func (b *Builder) End() *Builder {
	b.start()
	if b.depth > 0 {
		b.buf = ber.AppendTerminator(b.buf)
		b.depth--
	}
	return b
}

// Payload sets the do_command payload.
func (b *Builder) Payload(text string) *Builder {
	b.start()
	b.buf = ber.AppendString(b.buf, text)
	return b
}

// Raw appends bytes as they are.
func (b *Builder) Raw(p ...byte) *Builder {
	b.start()
	b.buf = append(b.buf, p...)
	return b
}

// Bytes closes all open levels and returns the request.
func (b *Builder) Bytes() []byte {
	b.start()
	for b.depth > 0 {
		b.End()
	}
	switch b.cmd {
	case rci.CommandQuerySetting, rci.CommandSetSetting, rci.CommandQueryState, rci.CommandSetState:
		return ber.AppendTerminator(b.buf)
	}
	return b.buf
}

// Err returns the first value encoding error.
func (b *Builder) Err() error { return b.err }

func (b *Builder) instance(in Instance) {
	var err error
	if b.buf, err = appendInstance(b.buf, in); err != nil && b.err == nil {
		b.err = err
	}
}

// appendInstance writes the attribute block of a header. Indexes too large
// for an index token use the (index, value) pair form.
func appendInstance(dst []byte, in Instance) ([]byte, error) {
	switch {
	case in.empty():
		return dst, nil
	case !in.normal() && in.Key != "":
		dst, err := ber.AppendAttribute(dst, ber.AttributeName, uint32(len(in.Key)))
		if err != nil {
			return dst, err
		}
		return append(dst, in.Key...), nil
	case !in.normal() && ber.FitsAttribute(ber.AttributeIndex, uint32(in.Index)):
		return ber.AppendAttribute(dst, ber.AttributeIndex, uint32(in.Index))
	}

	var pairs [][2][]byte
	if in.Key != "" || in.Complete || in.Remove {
		pairs = append(pairs, [2][]byte{ber.AppendUint(nil, attrName), ber.AppendString(nil, in.Key)})
		if in.Complete {
			pairs = append(pairs, [2][]byte{ber.AppendUint(nil, attrComplete), ber.AppendUint(nil, 1)})
		}
		if in.Remove {
			pairs = append(pairs, [2][]byte{ber.AppendUint(nil, attrRemove), ber.AppendUint(nil, 1)})
		}
	} else {
		if in.Index != 0 {
			pairs = append(pairs, [2][]byte{ber.AppendUint(nil, attrIndex), ber.AppendUint(nil, uint64(in.Index))})
		}
		if in.Resize {
			pairs = append(pairs, [2][]byte{ber.AppendUint(nil, attrCount), ber.AppendUint(nil, uint64(in.Count))})
		}
		if in.NoShrink {
			pairs = append(pairs, [2][]byte{ber.AppendUint(nil, attrShrink), ber.AppendUint(nil, 0)})
		}
	}
	dst, err := ber.AppendAttribute(dst, ber.AttributeNormal, uint32(len(pairs)))
	if err != nil {
		return dst, err
	}
	for _, p := range pairs {
		dst = append(dst, p[0]...)
		dst = append(dst, p[1]...)
	}
	return dst, nil
}

// GroupType returns the group type a command addresses.
func GroupType(cmd rci.CommandID) schema.GroupType {
	if cmd == rci.CommandQueryState || cmd == rci.CommandSetState {
		return schema.GroupState
	}
	return schema.GroupSetting
}
