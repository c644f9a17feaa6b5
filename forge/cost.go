package forge

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// ResourceAmount is one resource id with a count.
type ResourceAmount struct {
	Resource string `json:"resource"`
	Amount   uint64 `json:"amount"`
}

// Cost is an ordered resource-id to count mapping. It decodes from a plain
// JSON or YAML object and keeps the declared key order for display.
type Cost []ResourceAmount

// CostOf builds a Cost from alternating id, amount pairs in the order given.
func CostOf(pairs ...any) Cost {
	cost := make(Cost, 0, len(pairs)/2)
	for i := 0; i+1 < len(pairs); i += 2 {
		id, _ := pairs[i].(string)
		var amount uint64
		switch v := pairs[i+1].(type) {
		case int:
			if v > 0 {
				amount = uint64(v)
			}
		case uint64:
			amount = v
		}
		cost = cost.with(id, amount)
	}
	return cost
}

// Amount returns the declared amount for id, 0 if absent.
func (c Cost) Amount(id string) uint64 {
	for _, entry := range c {
		if entry.Resource == id {
			return entry.Amount
		}
	}
	return 0
}

// IsZero reports whether the cost asks for nothing.
func (c Cost) IsZero() bool {
	for _, entry := range c {
		if entry.Amount > 0 {
			return false
		}
	}
	return true
}

// Map returns the cost as a plain map.
func (c Cost) Map() map[string]uint64 {
	out := make(map[string]uint64, len(c))
	for _, entry := range c {
		out[entry.Resource] = entry.Amount
	}
	return out
}

func (c Cost) String() string {
	parts := make([]string, 0, len(c))
	for _, entry := range c {
		parts = append(parts, fmt.Sprintf("%d %s", entry.Amount, entry.Resource))
	}
	return strings.Join(parts, ", ")
}

// with adds amount to id, merging repeated ids into their first position.
func (c Cost) with(id string, amount uint64) Cost {
	for i := range c {
		if c[i].Resource == id {
			c[i].Amount = saturatingAdd(c[i].Amount, amount)
			return c
		}
	}
	return append(c, ResourceAmount{Resource: id, Amount: amount})
}

// merged folds duplicate ids so each resource is checked against its total.
func (c Cost) merged() Cost {
	out := make(Cost, 0, len(c))
	for _, entry := range c {
		out = out.with(entry.Resource, entry.Amount)
	}
	return out
}

func (c Cost) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, entry := range c {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(entry.Resource)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		fmt.Fprintf(&buf, "%d", entry.Amount)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func (c *Cost) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*c = nil
		return nil
	}
	var cost Cost
	err := decodeOrderedObject(data, func(key string, raw json.RawMessage) error {
		var amount uint64
		if err := json.Unmarshal(raw, &amount); err != nil {
			return fmt.Errorf("cost of %q: %w", key, err)
		}
		cost = cost.with(key, amount)
		return nil
	})
	if err != nil {
		return err
	}
	*c = cost
	return nil
}

func (c Cost) MarshalYAML() (any, error) {
	node := &yaml.Node{Kind: yaml.MappingNode}
	for _, entry := range c {
		node.Content = append(node.Content,
			&yaml.Node{Kind: yaml.ScalarNode, Value: entry.Resource},
			&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!int", Value: fmt.Sprintf("%d", entry.Amount)},
		)
	}
	return node, nil
}

func (c *Cost) UnmarshalYAML(value *yaml.Node) error {
	var cost Cost
	err := decodeOrderedMapping(value, func(key string, node *yaml.Node) error {
		var amount uint64
		if err := node.Decode(&amount); err != nil {
			return fmt.Errorf("cost of %q: %w", key, err)
		}
		cost = cost.with(key, amount)
		return nil
	})
	if err != nil {
		return err
	}
	*c = cost
	return nil
}

// decodeOrderedObject walks a JSON object calling fn for each member in
// document order.
func decodeOrderedObject(data []byte, fn func(key string, raw json.RawMessage) error) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("expected JSON object, got %v", tok)
	}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := tok.(string)
		if !ok {
			return fmt.Errorf("expected object key, got %v", tok)
		}
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return err
		}
		if err := fn(key, raw); err != nil {
			return err
		}
	}
	_, err = dec.Token()
	return err
}

// decodeOrderedMapping walks a YAML mapping node calling fn for each pair in
// document order.
func decodeOrderedMapping(value *yaml.Node, fn func(key string, node *yaml.Node) error) error {
	if value.Kind == yaml.AliasNode && value.Alias != nil {
		value = value.Alias
	}
	if value.Kind == yaml.ScalarNode && value.Tag == "!!null" {
		return nil
	}
	if value.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: expected mapping", value.Line)
	}
	for i := 0; i+1 < len(value.Content); i += 2 {
		if err := fn(value.Content[i].Value, value.Content[i+1]); err != nil {
			return err
		}
	}
	return nil
}

// isJSONArray reports whether raw holds a JSON array.
func isJSONArray(raw []byte) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) > 0 && trimmed[0] == '['
}
