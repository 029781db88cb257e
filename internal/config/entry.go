package config

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// Entry is one named operation of a mod, post or clean list.
type Entry struct {
	Func       string `yaml:"func"`
	Params     Params `yaml:"params,omitempty"`
	OutputName string `yaml:"outputname,omitempty"`
}

// Params holds the keyword arguments of an entry as an undecoded YAML node.
// Each operation decodes them into its own argument struct.
type Params struct {
	node *yaml.Node
}

// NewParams encodes v (usually a struct or map) as operation parameters.
func NewParams(v interface{}) (Params, error) {
	var n yaml.Node
	if err := n.Encode(v); err != nil {
		return Params{}, fmt.Errorf("failed to encode params: %w", err)
	}
	return Params{node: &n}, nil
}

// MustParams is like NewParams but panics on error. Use with literal values.
func MustParams(v interface{}) Params {
	p, err := NewParams(v)
	if err != nil {
		panic(err)
	}
	return p
}

// Decode decodes the parameters into v. Empty parameters leave v untouched.
func (p Params) Decode(v interface{}) error {
	if p.node == nil || p.node.Kind == 0 {
		return nil
	}
	if p.node.Kind == yaml.ScalarNode && p.node.ShortTag() == "!!null" {
		return nil
	}
	return p.node.Decode(v)
}

func (p Params) IsZero() bool {
	return p.node == nil
}

func (p *Params) UnmarshalYAML(n *yaml.Node) error {
	cpy := *n
	p.node = &cpy
	return nil
}

func (p Params) MarshalYAML() (interface{}, error) {
	if p.node == nil {
		return map[string]interface{}{}, nil
	}
	return p.node, nil
}

// Prop is one key/value pair of an ordered property list.
type Prop struct {
	Key   string
	Value string
}

// Props is a property mapping that keeps document order and the literal text of each value.
type Props []Prop

func (p *Props) UnmarshalYAML(n *yaml.Node) error {
	if n.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: props must be a mapping", n.Line)
	}
	out := make(Props, 0, len(n.Content)/2)
	for i := 0; i+1 < len(n.Content); i += 2 {
		k, v := n.Content[i], n.Content[i+1]
		if v.Kind != yaml.ScalarNode {
			return fmt.Errorf("line %d: prop %s must be a scalar", v.Line, k.Value)
		}
		out = append(out, Prop{Key: k.Value, Value: v.Value})
	}
	*p = out
	return nil
}

func (p Props) MarshalYAML() (interface{}, error) {
	n := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
	for _, prop := range p {
		n.Content = append(n.Content,
			&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: prop.Key},
			&yaml.Node{Kind: yaml.ScalarNode, Value: prop.Value},
		)
	}
	return n, nil
}

// mappingValue returns the value node stored under key, or nil.
func mappingValue(n *yaml.Node, key string) *yaml.Node {
	if n == nil || n.Kind != yaml.MappingNode {
		return nil
	}
	for i := 0; i+1 < len(n.Content); i += 2 {
		if n.Content[i].Value == key {
			return n.Content[i+1]
		}
	}
	return nil
}

// missingKeys lists the keys absent from mapping n.
func missingKeys(n *yaml.Node, keys ...string) []string {
	var missing []string
	for _, k := range keys {
		if mappingValue(n, k) == nil {
			missing = append(missing, k)
		}
	}
	return missing
}
