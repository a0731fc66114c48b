package rci

import "github.com/mash-protocol/rci-go/pkg/schema"

// Address identifies one collection level of the current request.
type Address struct {
	// ID is the group id, or the list element id inside its parent.
	ID         int
	Collection *schema.Collection

	// Index is the 1-based array instance. Zero when not addressed.
	Index int

	// Key is the dictionary instance.
	Key string
}

// Dictionary returns true when the level is addressed by key.
func (a Address) Dictionary() bool {
	return a.Collection != nil && a.Collection.Kind.IsDictionary()
}

// ElementRef identifies the element of an ELEMENT_PROCESS request.
type ElementRef struct {
	ID      int
	Element *schema.Element
}

// Instances carries the instance set of a lock, set or unlock request.
type Instances struct {
	// Count is the array instance count. For INSTANCES_SET it is the
	// requested new size.
	Count int

	// Keys are the dictionary keys. For INSTANCES_SET they are the requested
	// new key set.
	Keys []string

	// Shrink is false when the request asked never to remove instances.
	Shrink bool
}

// Response is written by the callback.
type Response struct {
	ErrorID ErrorID
	Hint    string

	// CompareMatches, set on a query with CompareTo, leaves the addressed
	// element or instance out of the reply.
	CompareMatches bool

	// Value is the element value of a query, the transformed value of a
	// set, or the do_command reply. HasValue marks it as provided.
	Value    Value
	HasValue bool

	// Count and Keys report the instances of a variable collection from
	// INSTANCES_LOCK and INSTANCES_SET.
	Count int
	Keys  []string
}

// Context describes the request being dispatched. The engine owns it; the
// callback may read every field and write Response and UserData.
type Context struct {
	Schema    *schema.Schema
	Action    Action
	GroupType schema.GroupType

	Attributes Attributes

	// Group is the addressed group; Group.Collection is the group's
	// collection.
	Group      Address
	GroupEntry *schema.Group

	// Lists holds the addressed lists, Lists[0] being the outermost.
	Lists [MaxListDepth]Address

	// Depth is the number of lists entered.
	Depth int

	Element ElementRef

	// Value is the decoded value of a set, or the do_command payload.
	Value Value

	Instances Instances
	Response  Response

	// UserData is kept for the whole session.
	UserData any
}

// List returns the list at 1-based depth d.
func (c *Context) List(d int) Address {
	if d < 1 || d > len(c.Lists) {
		return Address{}
	}
	return c.Lists[d-1]
}

// Level returns the innermost addressed collection level.
func (c *Context) Level() Address {
	if c.Depth == 0 {
		return c.Group
	}
	return c.Lists[c.Depth-1]
}

// Path returns the addressed levels from the group inward.
func (c *Context) Path() []Address {
	path := make([]Address, 0, 1+c.Depth)
	path = append(path, c.Group)
	return append(path, c.Lists[:c.Depth]...)
}

func (c *Context) address(d int) *Address {
	if d == 0 {
		return &c.Group
	}
	return &c.Lists[d-1]
}
