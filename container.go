package valuez

import (
	"bytes"
	"encoding/json"
)

// Container is the shape of a store snapshot. The store logic is written
// against this capability so that one implementation serves both the
// record-backed and the ordered-map-backed variants.
type Container interface {
	// Get returns the value stored under key.
	Get(key string) (any, bool)

	// Set stores value under key.
	Set(key string, value any)

	// Range calls fn for each entry until fn returns false.
	Range(fn func(key string, value any) bool)

	// Len returns the number of entries.
	Len() int
}

// Record is a Container backed by a plain map. Range order is unspecified.
type Record map[string]any

// NewRecord creates an empty record.
func NewRecord() Container { return Record{} }

// Get implements Container.
func (r Record) Get(key string) (any, bool) {
	v, ok := r[key]
	return v, ok
}

// Set implements Container.
func (r Record) Set(key string, value any) { r[key] = value }

// Range implements Container.
func (r Record) Range(fn func(key string, value any) bool) {
	for k, v := range r {
		if !fn(k, v) {
			return
		}
	}
}

// Len implements Container.
func (r Record) Len() int { return len(r) }

// OrderedMap is a Container that preserves insertion order.
type OrderedMap struct {
	keys   []string
	values map[string]any
}

// NewOrderedMap creates an empty ordered map.
func NewOrderedMap() Container {
	return &OrderedMap{values: make(map[string]any)}
}

// Get implements Container.
func (m *OrderedMap) Get(key string) (any, bool) {
	v, ok := m.values[key]
	return v, ok
}

// Set implements Container. Updating an existing key keeps its position.
func (m *OrderedMap) Set(key string, value any) {
	if _, ok := m.values[key]; !ok {
		m.keys = append(m.keys, key)
	}
	m.values[key] = value
}

// Range implements Container, in insertion order.
func (m *OrderedMap) Range(fn func(key string, value any) bool) {
	for _, k := range m.keys {
		if !fn(k, m.values[k]) {
			return
		}
	}
}

// Len implements Container.
func (m *OrderedMap) Len() int { return len(m.keys) }

// Keys returns the keys in insertion order.
func (m *OrderedMap) Keys() []string { return append([]string(nil), m.keys...) }

// MarshalJSON writes entries in insertion order.
func (m *OrderedMap) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range m.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		val, err := json.Marshal(m.values[k])
		if err != nil {
			return nil, err
		}
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// Plain converts a container, including nested containers, to a
// map[string]any.
func Plain(c Container) map[string]any {
	out := make(map[string]any, c.Len())
	c.Range(func(k string, v any) bool {
		if nested, ok := v.(Container); ok {
			out[k] = Plain(nested)
		} else {
			out[k] = v
		}
		return true
	})
	return out
}
