package document

import (
	"encoding/json"
	"fmt"

	"gopkg.in/yaml.v3"
)

// ParseYAML decodes a YAML document. Mapping order is kept; scalars tagged
// !!str become Text and every other scalar becomes a Scalar holding its
// JSON encoding.
func ParseYAML(data []byte) (Document, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return Document{}, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if root.Kind == 0 {
		return Empty(), nil
	}
	return fromNode(&root, map[*yaml.Node]bool{})
}

func fromNode(n *yaml.Node, visiting map[*yaml.Node]bool) (Document, error) {
	if visiting[n] {
		return Document{}, fmt.Errorf("recursive alias at line %d", n.Line)
	}
	visiting[n] = true
	defer delete(visiting, n)

	switch n.Kind {
	case yaml.DocumentNode:
		if len(n.Content) == 0 {
			return Empty(), nil
		}
		return fromNode(n.Content[0], visiting)
	case yaml.AliasNode:
		return fromNode(n.Alias, visiting)
	case yaml.SequenceNode:
		items := make([]Document, 0, len(n.Content))
		for _, c := range n.Content {
			item, err := fromNode(c, visiting)
			if err != nil {
				return Document{}, err
			}
			items = append(items, item)
		}
		return Document{kind: KindList, items: items}, nil
	case yaml.MappingNode:
		entries := make([]Entry, 0, len(n.Content)/2)
		for i := 0; i+1 < len(n.Content); i += 2 {
			key := n.Content[i]
			if key.Kind != yaml.ScalarNode {
				return Document{}, fmt.Errorf("unsupported non-scalar key at line %d", key.Line)
			}
			value, err := fromNode(n.Content[i+1], visiting)
			if err != nil {
				return Document{}, err
			}
			entries = append(entries, Entry{Key: key.Value, Value: value})
		}
		return Section(entries...), nil
	case yaml.ScalarNode:
		return fromScalar(n)
	default:
		return Document{}, fmt.Errorf("unsupported YAML node kind %d", n.Kind)
	}
}

func fromScalar(n *yaml.Node) (Document, error) {
	switch n.ShortTag() {
	case "!!str", "!!binary", "!!timestamp":
		return Text(n.Value), nil
	case "!!null":
		return Null(), nil
	}

	var v any
	if err := n.Decode(&v); err != nil {
		return Document{}, fmt.Errorf("decoding scalar at line %d: %w", n.Line, err)
	}
	raw, err := json.Marshal(v)
	if err != nil {
		// NaN and infinities have no JSON form.
		return Text(n.Value), nil
	}
	return Scalar(string(raw)), nil
}
