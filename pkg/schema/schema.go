package schema

import (
	"errors"
	"fmt"
)

// Schema validation errors.
var (
	ErrNoGroups        = errors.New("schema has no groups")
	ErrEmptyCollection = errors.New("collection has no items")
	ErrInvalidType     = errors.New("invalid element type")
	ErrTooDeep         = errors.New("list nesting too deep")
	ErrCapacity        = errors.New("invalid collection capacity")
	ErrEnumEmpty       = errors.New("enum element without values")
)

// Element is a leaf value.
type Element struct {
	Name        string
	Description string
	Type        ElementType
	Access      Access

	// Enum names the values of an enum element, indexed by wire value.
	Enum []string

	// Default is the factory value in its text form.
	Default string

	// MaxLength bounds string values; zero means unbounded.
	MaxLength int

	Units string

	// Min and Max bound numeric values when both are set.
	Min, Max *float64
}

// Item is either an element or a nested list.
type Item struct {
	Element *Element
	List    *Collection
}

// Name returns the item name.
func (i Item) Name() string {
	if i.List != nil {
		return i.List.Name
	}
	if i.Element != nil {
		return i.Element.Name
	}
	return ""
}

// Type returns the wire type of the item.
func (i Item) Type() ElementType {
	if i.List != nil {
		return TypeList
	}
	if i.Element != nil {
		return i.Element.Type
	}
	return TypeNone
}

// Writable reports whether a set may address the item.
func (i Item) Writable() bool {
	return i.List != nil || (i.Element != nil && i.Element.Access.CanWrite())
}

// Readable reports whether a query may return the item.
func (i Item) Readable() bool {
	return i.List != nil || (i.Element != nil && i.Element.Access.CanRead())
}

// Collection is an array or dictionary of item tuples.
type Collection struct {
	Name        string
	Description string
	Kind        CollectionKind

	// Instances is the capacity of a fixed array, or the maximum of a
	// variable array (zero meaning unbounded).
	Instances int

	// Keys lists the entries of a fixed dictionary.
	Keys []string

	Items []Item
}

// Item returns the item with the given id.
func (c *Collection) Item(id int) (Item, bool) {
	if id < 0 || id >= len(c.Items) {
		return Item{}, false
	}
	return c.Items[id], true
}

// Group is a top-level setting or state category.
type Group struct {
	Collection

	// Errors are group-specific error descriptions. Their ids follow the
	// global errors.
	Errors []string
}

// Schema is the complete device description.
type Schema struct {
	Version  string
	Settings []*Group
	States   []*Group

	// Errors are the global user error descriptions, numbered from the
	// first user error id.
	Errors []string
}

// Groups returns the groups of the given type.
func (s *Schema) Groups(t GroupType) []*Group {
	if t == GroupState {
		return s.States
	}
	return s.Settings
}

// Group returns the group with the given type and id.
func (s *Schema) Group(t GroupType, id int) (*Group, bool) {
	groups := s.Groups(t)
	if id < 0 || id >= len(groups) {
		return nil, false
	}
	return groups[id], true
}

// Validate checks the structural invariants the engine relies on.
func (s *Schema) Validate(maxDepth int) error {
	if len(s.Settings) == 0 && len(s.States) == 0 {
		return ErrNoGroups
	}
	for _, t := range []GroupType{GroupSetting, GroupState} {
		for _, g := range s.Groups(t) {
			if err := g.validate(1, maxDepth); err != nil {
				return fmt.Errorf("%s group %q: %w", t, g.Name, err)
			}
		}
	}
	return nil
}

func (c *Collection) validate(depth, maxDepth int) error {
	if !c.Kind.IsValid() {
		return fmt.Errorf("%w: kind %d", ErrCapacity, c.Kind)
	}
	if c.Kind == FixedArray && c.Instances < 1 {
		return fmt.Errorf("%w: fixed array needs at least one instance", ErrCapacity)
	}
	if c.Kind == FixedDictionary && len(c.Keys) == 0 {
		return fmt.Errorf("%w: fixed dictionary needs keys", ErrCapacity)
	}
	if len(c.Items) == 0 {
		return ErrEmptyCollection
	}
	for _, item := range c.Items {
		switch {
		case item.List != nil:
			if depth > maxDepth {
				return fmt.Errorf("%w: list %q at depth %d", ErrTooDeep, item.List.Name, depth)
			}
			if err := item.List.validate(depth+1, maxDepth); err != nil {
				return fmt.Errorf("list %q: %w", item.List.Name, err)
			}
		case item.Element != nil:
			e := item.Element
			if !e.Type.IsValid() || e.Type == TypeList {
				return fmt.Errorf("%w: element %q", ErrInvalidType, e.Name)
			}
			if e.Type == TypeEnum && len(e.Enum) == 0 {
				return fmt.Errorf("%w: %q", ErrEnumEmpty, e.Name)
			}
		default:
			return fmt.Errorf("%w: empty item", ErrInvalidType)
		}
	}
	return nil
}

// Depth returns the deepest list nesting of the schema.
func (s *Schema) Depth() int {
	deepest := 0
	for _, t := range []GroupType{GroupSetting, GroupState} {
		for _, g := range s.Groups(t) {
			if d := g.depth(); d > deepest {
				deepest = d
			}
		}
	}
	return deepest
}

func (c *Collection) depth() int {
	deepest := 0
	for _, item := range c.Items {
		if item.List != nil {
			if d := 1 + item.List.depth(); d > deepest {
				deepest = d
			}
		}
	}
	return deepest
}
