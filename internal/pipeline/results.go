package pipeline

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// ResultMap maps rule names to payloads, keeping the order in which rules
// were applied. Values are a string, or []string for selectAll rules.
type ResultMap struct {
	keys   []string
	values map[string]any
}

// NewResultMap creates an empty result map
func NewResultMap() *ResultMap {
	return &ResultMap{values: make(map[string]any)}
}

// Set stores value under name; replacing a value keeps its original position
func (m *ResultMap) Set(name string, value any) {
	if _, ok := m.values[name]; !ok {
		m.keys = append(m.keys, name)
	}
	m.values[name] = value
}

// Get returns the value stored under name
func (m *ResultMap) Get(name string) (any, bool) {
	v, ok := m.values[name]
	return v, ok
}

// Keys returns the names in insertion order
func (m *ResultMap) Keys() []string {
	return append([]string(nil), m.keys...)
}

// Len returns the number of entries
func (m *ResultMap) Len() int {
	return len(m.keys)
}

// MarshalJSON writes the entries as a JSON object in insertion order
func (m *ResultMap) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range m.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(k)
		if err != nil {
			return nil, fmt.Errorf("failed to encode key %q: %w", k, err)
		}
		value, err := json.Marshal(m.values[k])
		if err != nil {
			return nil, fmt.Errorf("failed to encode value for %q: %w", k, err)
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(value)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
