package interactive

import (
	"fmt"
	"strings"

	"github.com/chzyer/readline"
	"github.com/mash-protocol/rci-go/pkg/schema"
)

// ElementPath is one schema element with its path template.
type ElementPath struct {
	Path    string
	Example string
	Element *schema.Element
}

// Describe returns the type, access and bounds of the element.
func (p ElementPath) Describe() string {
	el := p.Element
	var b strings.Builder
	b.WriteString(el.Type.String())
	if el.Access != schema.AccessReadWrite {
		b.WriteString(", " + el.Access.String())
	}
	if len(el.Enum) > 0 {
		b.WriteString(" {" + strings.Join(el.Enum, "|") + "}")
	}
	if el.Min != nil && el.Max != nil {
		fmt.Fprintf(&b, " [%g..%g]", *el.Min, *el.Max)
	}
	if el.MaxLength > 0 {
		fmt.Fprintf(&b, " max %d", el.MaxLength)
	}
	if el.Units != "" {
		b.WriteString(" " + el.Units)
	}
	return b.String()
}

// Paths lists every element of the schema, settings first.
func Paths(s *schema.Schema) []ElementPath {
	var out []ElementPath
	for _, t := range []schema.GroupType{schema.GroupSetting, schema.GroupState} {
		for _, g := range s.Groups(t) {
			out = walk(out, t.String(), t.String(), &g.Collection)
		}
	}
	return out
}

func walk(out []ElementPath, tmpl, example string, c *schema.Collection) []ElementPath {
	tmpl += "/" + c.Name + placeholder(c)
	example += "/" + c.Name + "[" + firstInstance(c) + "]"
	for _, it := range c.Items {
		if it.List != nil {
			out = walk(out, tmpl, example, it.List)
			continue
		}
		out = append(out, ElementPath{
			Path:    tmpl + "/" + it.Element.Name,
			Example: example + "/" + it.Element.Name,
			Element: it.Element,
		})
	}
	return out
}

func placeholder(c *schema.Collection) string {
	switch {
	case c.Kind.IsDictionary():
		return "[key]"
	case c.Kind == schema.FixedArray && c.Instances <= 1:
		return "[1]"
	default:
		return "[n]"
	}
}

func firstInstance(c *schema.Collection) string {
	if c.Kind.IsDictionary() {
		if len(c.Keys) > 0 {
			return c.Keys[0]
		}
		return "key"
	}
	return "1"
}

// completer offers the example path of every element after get and set.
func completer(s *schema.Schema) *readline.PrefixCompleter {
	examples := func(string) []string {
		paths := Paths(s)
		names := make([]string, len(paths))
		for i, p := range paths {
			names[i] = p.Example
		}
		return names
	}
	return readline.NewPrefixCompleter(
		readline.PcItem("help"),
		readline.PcItem("get", readline.PcItemDynamic(examples)),
		readline.PcItem("set", readline.PcItemDynamic(examples)),
		readline.PcItem("dump"),
		readline.PcItem("schema"),
		readline.PcItem("reset"),
		readline.PcItem("status"),
		readline.PcItem("quit"),
	)
}
