// Package features carries the analyzer's feature payload verbatim and
// extracts the named numeric values the pipeline depends on.
package features

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"slices"

	"github.com/antonholmquist/jason"
)

// ErrNotObject indicates a payload that is not a JSON object.
var ErrNotObject = errors.New("feature payload must be a JSON object")

// Map is an opaque string-keyed payload. It round-trips byte-for-byte
// through JSON, and typed values are read on demand.
type Map struct {
	raw json.RawMessage
	obj *jason.Object
}

// Parse wraps a JSON object payload. Empty input and null yield an empty Map.
func Parse(data []byte) (Map, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return Map{}, nil
	}

	obj, err := jason.NewObjectFromBytes(trimmed)
	if err != nil {
		return Map{}, fmt.Errorf("%w: %v", ErrNotObject, err)
	}

	raw := make(json.RawMessage, len(trimmed))
	copy(raw, trimmed)
	return Map{raw: raw, obj: obj}, nil
}

// FromValues encodes v as a Map.
func FromValues(v map[string]any) (Map, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return Map{}, fmt.Errorf("encode features: %w", err)
	}
	return Parse(data)
}

// MustFromValues is FromValues for literals known to encode.
func MustFromValues(v map[string]any) Map {
	m, err := FromValues(v)
	if err != nil {
		panic(err)
	}
	return m
}

// Raw returns the payload bytes, "{}" for an empty Map.
func (m Map) Raw() []byte {
	if len(m.raw) == 0 {
		return []byte("{}")
	}
	return m.raw
}

// Empty reports whether the payload has no keys.
func (m Map) Empty() bool {
	return m.obj == nil || len(m.obj.Map()) == 0
}

// Float returns the numeric value stored under key. Top-level keys win;
// otherwise nested objects are searched depth-first in key order.
func (m Map) Float(key string) (float64, bool) {
	if m.obj == nil {
		return 0, false
	}
	return find(m.obj, key)
}

// Select returns the numeric values found for keys, omitting absent ones.
func (m Map) Select(keys ...string) map[string]float64 {
	out := make(map[string]float64, len(keys))
	for _, k := range keys {
		if v, ok := m.Float(k); ok {
			out[k] = v
		}
	}
	return out
}

func (m Map) MarshalJSON() ([]byte, error) {
	return m.Raw(), nil
}

func (m *Map) UnmarshalJSON(data []byte) error {
	parsed, err := Parse(data)
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

func find(obj *jason.Object, key string) (float64, bool) {
	if v, err := obj.GetFloat64(key); err == nil {
		return v, true
	}

	values := obj.Map()
	for _, k := range slices.Sorted(maps.Keys(values)) {
		nested, err := values[k].Object()
		if err != nil {
			continue
		}
		if v, ok := find(nested, key); ok {
			return v, true
		}
	}
	return 0, false
}
