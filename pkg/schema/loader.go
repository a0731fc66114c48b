package schema

import (
	"fmt"
	"os"

	"github.com/mash-protocol/rci-go/pkg/version"
	"gopkg.in/yaml.v3"
)

// DefaultMaxDepth is the list nesting accepted by Parse.
const DefaultMaxDepth = 4

type rawItem struct {
	Name        string    `yaml:"name"`
	Description string    `yaml:"description"`
	Type        string    `yaml:"type"`
	Access      string    `yaml:"access"`
	Enum        []string  `yaml:"enum"`
	Default     string    `yaml:"default"`
	MaxLength   int       `yaml:"max_length"`
	Units       string    `yaml:"units"`
	Min         *float64  `yaml:"min"`
	Max         *float64  `yaml:"max"`
	Kind        string    `yaml:"kind"`
	Instances   int       `yaml:"instances"`
	Keys        []string  `yaml:"keys"`
	Items       []rawItem `yaml:"items"`
}

type rawGroup struct {
	rawItem `yaml:",inline"`
	Errors  []string `yaml:"errors"`
}

type rawSchema struct {
	Version  string     `yaml:"version"`
	Errors   []string   `yaml:"errors"`
	Settings []rawGroup `yaml:"settings"`
	States   []rawGroup `yaml:"states"`
}

// Parse decodes and validates a YAML schema.
func Parse(data []byte) (*Schema, error) {
	var raw rawSchema
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parsing schema: %w", err)
	}

	if raw.Version != "" {
		if _, err := version.Parse(raw.Version); err != nil {
			return nil, fmt.Errorf("schema: %w", err)
		}
	}

	s := &Schema{Version: raw.Version, Errors: raw.Errors}
	for _, rg := range raw.Settings {
		g, err := convertGroup(rg)
		if err != nil {
			return nil, err
		}
		s.Settings = append(s.Settings, g)
	}
	for _, rg := range raw.States {
		g, err := convertGroup(rg)
		if err != nil {
			return nil, err
		}
		s.States = append(s.States, g)
	}

	if err := s.Validate(DefaultMaxDepth); err != nil {
		return nil, err
	}
	return s, nil
}

// Load reads and parses a YAML schema file.
func Load(path string) (*Schema, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return Parse(data)
}

func convertGroup(rg rawGroup) (*Group, error) {
	c, err := convertCollection(rg.rawItem)
	if err != nil {
		return nil, fmt.Errorf("group %q: %w", rg.Name, err)
	}
	return &Group{Collection: *c, Errors: rg.Errors}, nil
}

func convertCollection(ri rawItem) (*Collection, error) {
	kind := FixedArray
	if ri.Kind != "" {
		k, ok := ParseCollectionKind(ri.Kind)
		if !ok {
			return nil, fmt.Errorf("unknown collection kind %q", ri.Kind)
		}
		kind = k
	}
	instances := ri.Instances
	if kind == FixedArray && instances == 0 {
		instances = 1
	}

	c := &Collection{
		Name:        ri.Name,
		Description: ri.Description,
		Kind:        kind,
		Instances:   instances,
		Keys:        ri.Keys,
	}
	for _, child := range ri.Items {
		item, err := convertItem(child)
		if err != nil {
			return nil, err
		}
		c.Items = append(c.Items, item)
	}
	return c, nil
}

func convertItem(ri rawItem) (Item, error) {
	if ri.Type == "list" {
		c, err := convertCollection(ri)
		if err != nil {
			return Item{}, fmt.Errorf("list %q: %w", ri.Name, err)
		}
		return Item{List: c}, nil
	}

	t, ok := ParseElementType(ri.Type)
	if !ok {
		return Item{}, fmt.Errorf("%w: element %q has type %q", ErrInvalidType, ri.Name, ri.Type)
	}
	access := AccessReadWrite
	if ri.Access != "" {
		a, ok := ParseAccess(ri.Access)
		if !ok {
			return Item{}, fmt.Errorf("element %q: unknown access %q", ri.Name, ri.Access)
		}
		access = a
	}
	return Item{Element: &Element{
		Name:        ri.Name,
		Description: ri.Description,
		Type:        t,
		Access:      access,
		Enum:        ri.Enum,
		Default:     ri.Default,
		MaxLength:   ri.MaxLength,
		Units:       ri.Units,
		Min:         ri.Min,
		Max:         ri.Max,
	}}, nil
}
