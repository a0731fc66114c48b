package backend

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/mash-protocol/rci-go/pkg/rci"
	"github.com/mash-protocol/rci-go/pkg/schema"
)

// ErrBadPath is returned for a path that does not name a schema element.
var ErrBadPath = errors.New("backend: bad path")

func segment(a rci.Address) string {
	if a.Dictionary() {
		return a.Collection.Name + "[" + a.Key + "]"
	}
	return a.Collection.Name + "[" + strconv.Itoa(max(a.Index, 1)) + "]"
}

func prefix(t schema.GroupType) string { return t.String() }

// elementPath is the path of the element addressed by ctx.
func elementPath(ctx *rci.Context) string {
	var b strings.Builder
	b.WriteString(prefix(ctx.GroupType))
	for _, a := range ctx.Path() {
		b.WriteByte('/')
		b.WriteString(segment(a))
	}
	b.WriteByte('/')
	b.WriteString(ctx.Element.Element.Name)
	return b.String()
}

// collectionPath is the path of the collection at ctx.Depth.
func collectionPath(ctx *rci.Context) string {
	path := ctx.Path()
	var b strings.Builder
	b.WriteString(prefix(ctx.GroupType))
	for _, a := range path[:len(path)-1] {
		b.WriteByte('/')
		b.WriteString(segment(a))
	}
	b.WriteByte('/')
	b.WriteString(path[len(path)-1].Collection.Name)
	return b.String()
}

// instancePath is the path of one instance of the collection at collPath.
func instancePath(collPath string, index int, key string) string {
	if key != "" {
		return collPath + "[" + key + "]"
	}
	return collPath + "[" + strconv.Itoa(index) + "]"
}

// resolve finds the element named by path.
func resolve(s *schema.Schema, path string) (*schema.Element, error) {
	parts := strings.Split(path, "/")
	if len(parts) < 3 {
		return nil, fmt.Errorf("%w: %q", ErrBadPath, path)
	}
	var groups []*schema.Group
	switch parts[0] {
	case prefix(schema.GroupSetting):
		groups = s.Settings
	case prefix(schema.GroupState):
		groups = s.States
	default:
		return nil, fmt.Errorf("%w: %q: unknown group type", ErrBadPath, path)
	}

	name, _, ok := splitSegment(parts[1])
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrBadPath, path)
	}
	var c *schema.Collection
	for _, g := range groups {
		if g.Name == name {
			c = &g.Collection
			break
		}
	}
	if c == nil {
		return nil, fmt.Errorf("%w: %q: no group %s", ErrBadPath, path, name)
	}

	for _, seg := range parts[2 : len(parts)-1] {
		name, _, ok := splitSegment(seg)
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrBadPath, path)
		}
		next := findItem(c, name)
		if next == nil || next.List == nil {
			return nil, fmt.Errorf("%w: %q: no list %s", ErrBadPath, path, name)
		}
		c = next.List
	}

	item := findItem(c, parts[len(parts)-1])
	if item == nil || item.Element == nil {
		return nil, fmt.Errorf("%w: %q: no element %s", ErrBadPath, path, parts[len(parts)-1])
	}
	return item.Element, nil
}

func splitSegment(seg string) (name, instance string, ok bool) {
	open := strings.IndexByte(seg, '[')
	if open <= 0 || !strings.HasSuffix(seg, "]") {
		return "", "", false
	}
	return seg[:open], seg[open+1 : len(seg)-1], true
}

func findItem(c *schema.Collection, name string) *schema.Item {
	for i := range c.Items {
		if c.Items[i].Name() == name {
			return &c.Items[i]
		}
	}
	return nil
}

// under reports whether path lies inside the instance at inst.
func under(path, inst string) bool {
	return path == inst || strings.HasPrefix(path, inst+"/")
}
