package command

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/mash-protocol/rci-go/pkg/rci"
	"github.com/mash-protocol/rci-go/pkg/schema"
)

// ErrBadPath is returned for text that does not address the schema.
var ErrBadPath = errors.New("command: bad path")

// maxKeyLength bounds dictionary keys in paths.
const maxKeyLength = 64

// Step is one group or list of a path.
type Step struct {
	ID         int
	Collection *schema.Collection

	// Instance is the addressed instance; the zero value means all.
	Instance Instance
	All      bool
}

// Path addresses part of a schema in text form:
//
//	setting                              all setting groups
//	setting/serial                       every instance of a group
//	setting/serial[2]                    one instance
//	setting/serial[2]/baud               one element
//	setting/users[admin]/fullname        dictionary instance by key
//	setting/network[1]/routes[3]/dest    nested list
type Path struct {
	Type  schema.GroupType
	Steps []Step

	// ElementID is -1 when the path ends at a collection.
	ElementID int
	Element   *schema.Element
}

// ParsePath resolves text against s.
func ParsePath(s *schema.Schema, text string) (*Path, error) {
	text = strings.Trim(strings.TrimSpace(text), "/")
	if text == "" {
		return nil, fmt.Errorf("%w: empty", ErrBadPath)
	}
	parts := strings.Split(text, "/")

	p := &Path{ElementID: -1}
	switch parts[0] {
	case schema.GroupSetting.String():
		p.Type = schema.GroupSetting
	case schema.GroupState.String():
		p.Type = schema.GroupState
	default:
		return nil, fmt.Errorf("%w: %q: want setting or state", ErrBadPath, parts[0])
	}
	if len(parts) == 1 {
		return p, nil
	}

	name, inst, bracketed, err := splitStep(parts[1])
	if err != nil {
		return nil, err
	}
	var c *schema.Collection
	for id, g := range s.Groups(p.Type) {
		if g.Name == name {
			c = &g.Collection
			step, err := newStep(id, c, inst, bracketed)
			if err != nil {
				return nil, err
			}
			p.Steps = append(p.Steps, step)
			break
		}
	}
	if c == nil {
		return nil, fmt.Errorf("%w: no %s group %q", ErrBadPath, p.Type, name)
	}

	rest := parts[2:]
	for i, seg := range rest {
		name, inst, bracketed, err := splitStep(seg)
		if err != nil {
			return nil, err
		}
		id, item := lookupItem(c, name)
		switch {
		case item == nil:
			return nil, fmt.Errorf("%w: %s has no item %q", ErrBadPath, c.Name, name)
		case item.List != nil:
			if len(p.Steps) >= rci.MaxListDepth {
				return nil, fmt.Errorf("%w: nested too deep", ErrBadPath)
			}
			step, err := newStep(id, item.List, inst, bracketed)
			if err != nil {
				return nil, err
			}
			p.Steps = append(p.Steps, step)
			c = item.List
		case bracketed:
			return nil, fmt.Errorf("%w: element %q takes no instance", ErrBadPath, name)
		case i != len(rest)-1:
			return nil, fmt.Errorf("%w: %q is an element", ErrBadPath, name)
		default:
			p.ElementID = id
			p.Element = item.Element
		}
	}
	return p, nil
}

func splitStep(seg string) (name, inst string, bracketed bool, err error) {
	open := strings.IndexByte(seg, '[')
	if open < 0 {
		return seg, "", false, nil
	}
	if open == 0 || !strings.HasSuffix(seg, "]") {
		return "", "", false, fmt.Errorf("%w: %q", ErrBadPath, seg)
	}
	return seg[:open], seg[open+1 : len(seg)-1], true, nil
}

func lookupItem(c *schema.Collection, name string) (int, *schema.Item) {
	for id := range c.Items {
		if c.Items[id].Name() == name {
			return id, &c.Items[id]
		}
	}
	return -1, nil
}

func newStep(id int, c *schema.Collection, inst string, bracketed bool) (Step, error) {
	step := Step{ID: id, Collection: c}
	if !bracketed {
		step.All = true
		return step, nil
	}
	if c.Kind.IsDictionary() {
		if inst == "" || len(inst) > maxKeyLength {
			return step, fmt.Errorf("%w: key %q of %s", ErrBadPath, inst, c.Name)
		}
		step.Instance.Key = inst
		return step, nil
	}
	n, err := strconv.Atoi(inst)
	if err != nil || n < 1 {
		return step, fmt.Errorf("%w: index %q of %s", ErrBadPath, inst, c.Name)
	}
	if c.Kind == schema.FixedArray && n > c.Instances {
		return step, fmt.Errorf("%w: %s has %d instances", ErrBadPath, c.Name, c.Instances)
	}
	step.Instance.Index = n
	return step, nil
}

// String returns the path in text form.
func (p *Path) String() string {
	var b strings.Builder
	b.WriteString(p.Type.String())
	for _, st := range p.Steps {
		b.WriteByte('/')
		b.WriteString(st.Collection.Name)
		switch {
		case st.All:
		case st.Instance.Key != "":
			b.WriteString("[" + st.Instance.Key + "]")
		default:
			b.WriteString("[" + strconv.Itoa(st.Instance.Index) + "]")
		}
	}
	if p.Element != nil {
		b.WriteByte('/')
		b.WriteString(p.Element.Name)
	}
	return b.String()
}

// QueryCommand returns the query command for the path's group type.
func (p *Path) QueryCommand() rci.CommandID {
	if p.Type == schema.GroupState {
		return rci.CommandQueryState
	}
	return rci.CommandQuerySetting
}

// SetCommand returns the set command for the path's group type.
func (p *Path) SetCommand() rci.CommandID {
	if p.Type == schema.GroupState {
		return rci.CommandSetState
	}
	return rci.CommandSetSetting
}

func (p *Path) open(b *Builder, set bool) *Builder {
	for i, st := range p.Steps {
		in := st.Instance
		if set {
			in = growInstance(st)
		}
		if i == 0 {
			b.Group(st.ID, in)
		} else {
			b.List(st.ID, in)
		}
	}
	return b
}

// growInstance makes a set create the addressed instance of a variable
// collection when it is missing.
func growInstance(st Step) Instance {
	in := st.Instance
	switch {
	case st.Collection.Kind == schema.VariableDictionary && in.Key != "":
		in.Complete = true
	case st.Collection.Kind == schema.VariableArray && in.Index > 0:
		in.Count = in.Index
		in.Resize = true
		in.NoShrink = true
	}
	return in
}

// Query adds the path to a query built on b.
func (p *Path) Query(b *Builder) *Builder {
	p.open(b, false)
	if p.Element != nil {
		b.Query(p.ElementID)
	}
	return b
}

func (p *Path) settable() error {
	if p.Element == nil {
		return fmt.Errorf("%w: %s is not an element", ErrBadPath, p)
	}
	for _, st := range p.Steps {
		if st.All && st.Collection.Kind.IsDictionary() {
			return fmt.Errorf("%w: %s needs a key", ErrBadPath, st.Collection.Name)
		}
	}
	if !p.Element.Access.CanWrite() {
		return fmt.Errorf("%w: %s is %s", ErrBadPath, p, p.Element.Access)
	}
	return nil
}

// Set adds a set of the path's element to text, parsed for the element's
// type, to b.
func (p *Path) Set(b *Builder, text string) (*Builder, error) {
	if err := p.settable(); err != nil {
		return nil, err
	}
	v, err := rci.ParseValue(p.Element.Type, text, p.Element.Enum)
	if err != nil {
		return nil, err
	}
	return p.open(b, true).Set(p.ElementID, v), nil
}

// Default adds a reset of the path's element to its default to b.
func (p *Path) Default(b *Builder) (*Builder, error) {
	if err := p.settable(); err != nil {
		return nil, err
	}
	return p.open(b, true).Default(p.ElementID), nil
}

// Remove adds the removal of the dictionary instance the path ends at to b.
func (p *Path) Remove(b *Builder) (*Builder, error) {
	if p.Element != nil || len(p.Steps) == 0 {
		return nil, fmt.Errorf("%w: %s is not a dictionary instance", ErrBadPath, p)
	}
	last := p.Steps[len(p.Steps)-1]
	if last.Collection.Kind != schema.VariableDictionary || last.Instance.Key == "" {
		return nil, fmt.Errorf("%w: %s is not a variable dictionary instance", ErrBadPath, p)
	}
	for i, st := range p.Steps[:len(p.Steps)-1] {
		if i == 0 {
			b.Group(st.ID, st.Instance)
		} else {
			b.List(st.ID, st.Instance)
		}
	}
	in := Instance{Key: last.Instance.Key, Remove: true}
	if len(p.Steps) == 1 {
		return b.Group(last.ID, in), nil
	}
	return b.List(last.ID, in), nil
}
