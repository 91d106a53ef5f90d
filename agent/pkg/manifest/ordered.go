package manifest

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

type KeyValue struct {
	Key   string `validate:"required"`
	Value string
}

// OrderedMap is a string map that keeps insertion (or document) order. Command line flags built
// from it, like repeated "-e KEY=VALUE", are emitted in a stable order.
type OrderedMap []KeyValue

// Set updates an existing key in place or appends it.
func (m *OrderedMap) Set(key, value string) {
	for i := range *m {
		if (*m)[i].Key == key {
			(*m)[i].Value = value
			return
		}
	}
	*m = append(*m, KeyValue{Key: key, Value: value})
}

func (m OrderedMap) Get(key string) (string, bool) {
	for _, kv := range m {
		if kv.Key == key {
			return kv.Value, true
		}
	}
	return "", false
}

func (m OrderedMap) Keys() []string {
	keys := make([]string, 0, len(m))
	for _, kv := range m {
		keys = append(keys, kv.Key)
	}
	return keys
}

func (m *OrderedMap) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: expected a mapping", node.Line)
	}
	result := make(OrderedMap, 0, len(node.Content)/2)
	for i := 0; i+1 < len(node.Content); i += 2 {
		var key, value string
		if err := node.Content[i].Decode(&key); err != nil {
			return err
		}
		if err := node.Content[i+1].Decode(&value); err != nil {
			return err
		}
		result.Set(key, value)
	}
	*m = result
	return nil
}

func (m OrderedMap) MarshalYAML() (any, error) {
	node := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
	for _, kv := range m {
		node.Content = append(node.Content,
			&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: kv.Key},
			&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: kv.Value},
		)
	}
	return node, nil
}
