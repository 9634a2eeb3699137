package tree

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math"
	"strings"

	"gopkg.in/yaml.v3"
)

// Flatten returns every leaf path mapped to its value. Nodes are expanded,
// never returned as values.
//
// For example
//
//	MODEL:
//	  TEST:
//	    SCORE_THRESHOLD: 0.7
//
// flattens to {"MODEL.TEST.SCORE_THRESHOLD": 0.7}.
func (t *Tree) Flatten() map[string]any {
	out := make(map[string]any)
	t.walk("", func(path string, val any) {
		out[path] = cloneValue(val)
	})
	return out
}

// Paths returns all leaf paths in traversal order: keys sorted at every
// level, depth first.
func (t *Tree) Paths() []string {
	var out []string
	t.walk("", func(path string, _ any) {
		out = append(out, path)
	})
	return out
}

func (t *Tree) walk(prefix string, fn func(path string, val any)) {
	for _, key := range t.Keys() {
		full := joinPath(prefix, key)
		if sub, ok := t.values[key].(*Tree); ok {
			sub.walk(full, fn)
			continue
		}
		fn(full, t.values[key])
	}
}

// AsMap returns the content as plain nested maps and slices.
func (t *Tree) AsMap() map[string]any {
	out := make(map[string]any, len(t.values))
	for key, val := range t.values {
		out[key] = plainValue(val)
	}
	return out
}

// Dump serializes the tree as YAML with keys sorted at every level.
// Float leaves always carry a fractional part or exponent, so a dump
// reloads with the same value types.
func (t *Tree) Dump() ([]byte, error) {
	node, err := t.yamlNode()
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(node); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// String returns the YAML dump, or the encoding error text.
func (t *Tree) String() string {
	out, err := t.Dump()
	if err != nil {
		return "<" + err.Error() + ">"
	}
	return string(out)
}

// Hash returns a hex SHA-256 digest of the dump. Structurally equal trees
// hash equal regardless of how they were built.
func (t *Tree) Hash() (string, error) {
	out, err := t.Dump()
	if err != nil {
		return "", fmt.Errorf("hashing config: %w", err)
	}
	sum := sha256.Sum256(out)
	return hex.EncodeToString(sum[:]), nil
}

// Equal reports whether t and other serialize identically.
// Frozen state and metadata do not take part.
func (t *Tree) Equal(other *Tree) bool {
	if t == nil || other == nil {
		return t == other
	}
	a, err := t.Dump()
	if err != nil {
		return false
	}
	b, err := other.Dump()
	if err != nil {
		return false
	}
	return bytes.Equal(a, b)
}

func (t *Tree) yamlNode() (*yaml.Node, error) {
	node := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
	for _, key := range t.Keys() {
		keyNode := &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: key}
		valNode, err := valueNode(t.values[key])
		if err != nil {
			return nil, err
		}
		node.Content = append(node.Content, keyNode, valNode)
	}
	return node, nil
}

func valueNode(val any) (*yaml.Node, error) {
	switch v := val.(type) {
	case *Tree:
		return v.yamlNode()
	case map[string]any:
		node := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
		for _, key := range sortedKeys(v) {
			valNode, err := valueNode(v[key])
			if err != nil {
				return nil, err
			}
			node.Content = append(node.Content,
				&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: key}, valNode)
		}
		return node, nil
	case []any:
		node := &yaml.Node{Kind: yaml.SequenceNode, Tag: "!!seq"}
		if len(v) == 0 {
			node.Style = yaml.FlowStyle
		}
		for _, item := range v {
			itemNode, err := valueNode(item)
			if err != nil {
				return nil, err
			}
			node.Content = append(node.Content, itemNode)
		}
		return node, nil
	case float64:
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!float", Value: formatFloat(v)}, nil
	}

	node := &yaml.Node{}
	if err := node.Encode(val); err != nil {
		return nil, err
	}
	return node, nil
}

func formatFloat(f float64) string {
	switch {
	case math.IsInf(f, 1):
		return ".inf"
	case math.IsInf(f, -1):
		return "-.inf"
	case math.IsNaN(f):
		return ".nan"
	}

	var node yaml.Node
	_ = node.Encode(f)
	s := node.Value
	if !strings.ContainsAny(s, ".eE") {
		s += ".0"
	}
	return s
}
