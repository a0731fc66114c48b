package command

import (
	"strconv"

	"github.com/mash-protocol/rci-go/pkg/schema"
)

// Lines renders the reply one entry per line, with entries named by their
// path. Elements answered without a value are reported as "ok".
func (r *Reply) Lines() []string {
	t := GroupType(r.Command)
	var out []string
	for _, e := range r.Errors {
		out = append(out, "error: "+e.Error())
	}
	for _, g := range r.Groups {
		out = g.lines(out, t.String())
	}
	return out
}

func (n *Node) segment() string {
	switch {
	case n.Key != "":
		return n.Collection.Name + "[" + n.Key + "]"
	case n.Collection.Kind.IsDictionary():
		return n.Collection.Name
	default:
		return n.Collection.Name + "[" + strconv.Itoa(max(n.Index, 1)) + "]"
	}
}

func (n *Node) lines(out []string, parent string) []string {
	path := parent + "/" + n.segment()
	switch {
	case n.Error != nil:
		out = append(out, path+": error: "+n.Error.Error())
	case n.Removed:
		out = append(out, path+": removed")
	case len(n.Fields) == 0 && len(n.Errors) == 0 && (n.HasCount || n.Complete):
		out = append(out, parent+"/"+n.Collection.Name+": no instances")
	}
	for _, e := range n.Errors {
		out = append(out, path+": error: "+e.Error())
	}
	for _, f := range n.Fields {
		name := path + "/" + f.Item.Name()
		switch {
		case f.List != nil:
			out = f.List.lines(out, path)
		case f.Error != nil:
			out = append(out, name+": error: "+f.Error.Error())
		case f.NoValue:
			out = append(out, name+": ok")
		default:
			out = append(out, name+" = "+f.Value.Format(enumOf(f.Item)))
		}
	}
	return out
}

func enumOf(it schema.Item) []string {
	if it.Element == nil {
		return nil
	}
	return it.Element.Enum
}
