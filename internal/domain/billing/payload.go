// Package billing holds the invoice aggregate and the pure derivation of its
// financial snapshot from a client-supplied payload.
package billing

import (
	"bytes"
	"encoding/json"
	"math"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cast"
)

// Payload is the opaque invoice document as supplied by the client.
// Nested objects are map[string]interface{} and lists are []interface{},
// which is what encoding/json produces for an untyped document.
type Payload map[string]interface{}

// Lookup walks nested objects and returns the value at path, or nil.
func (p Payload) Lookup(path ...string) interface{} {
	var current interface{} = map[string]interface{}(p)
	for _, key := range path {
		obj, ok := asObject(current)
		if !ok {
			return nil
		}
		current = obj[key]
	}
	return current
}

// String returns the trimmed string at path. Numbers are formatted.
func (p Payload) String(path ...string) string {
	v := p.Lookup(path...)
	switch val := v.(type) {
	case nil, map[string]interface{}, []interface{}:
		return ""
	case json.Number:
		return val.String()
	}
	s, err := cast.ToStringE(v)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(s)
}

// Number returns the numeric value at path. ok is false when the value is
// absent or does not parse as a number.
func (p Payload) Number(path ...string) (decimal.Decimal, bool) {
	return toDecimal(p.Lookup(path...))
}

// Time returns the date at path, or nil when absent or unparseable.
func (p Payload) Time(path ...string) *time.Time {
	v := p.Lookup(path...)
	if v == nil {
		return nil
	}
	if s, ok := v.(string); ok && strings.TrimSpace(s) == "" {
		return nil
	}
	t, err := cast.ToTimeE(v)
	if err != nil || t.IsZero() {
		return nil
	}
	t = t.UTC()
	return &t
}

// Object returns the nested object at key, or nil.
func (p Payload) Object(key string) map[string]interface{} {
	obj, _ := asObject(p[key])
	return obj
}

// Clone returns a deep copy so callers can mutate without aliasing.
func (p Payload) Clone() Payload {
	if p == nil {
		return Payload{}
	}
	return Payload(cloneValue(map[string]interface{}(p)).(map[string]interface{}))
}

// DecodePayload parses a JSON object into a Payload, keeping numbers exact.
func DecodePayload(raw []byte) (Payload, error) {
	decoder := json.NewDecoder(bytes.NewReader(raw))
	decoder.UseNumber()

	var p Payload
	if err := decoder.Decode(&p); err != nil {
		return nil, err
	}
	if p == nil {
		p = Payload{}
	}
	return p, nil
}

func asObject(v interface{}) (map[string]interface{}, bool) {
	switch obj := v.(type) {
	case map[string]interface{}:
		return obj, true
	case Payload:
		return obj, true
	}
	return nil, false
}

func cloneValue(v interface{}) interface{} {
	switch val := v.(type) {
	case Payload:
		return cloneValue(map[string]interface{}(val))
	case map[string]interface{}:
		out := make(map[string]interface{}, len(val))
		for k, item := range val {
			out[k] = cloneValue(item)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(val))
		for i, item := range val {
			out[i] = cloneValue(item)
		}
		return out
	case []map[string]interface{}:
		out := make([]interface{}, len(val))
		for i, item := range val {
			out[i] = cloneValue(item)
		}
		return out
	}
	return v
}

// toDecimal coerces loosely typed payload values. Strings may carry
// thousands separators. Booleans, objects and lists are not numbers.
func toDecimal(v interface{}) (decimal.Decimal, bool) {
	switch n := v.(type) {
	case nil, bool, map[string]interface{}, []interface{}:
		return decimal.Zero, false
	case decimal.Decimal:
		return n, true
	case json.Number:
		d, err := decimal.NewFromString(n.String())
		return d, err == nil
	case string:
		s := strings.ReplaceAll(strings.TrimSpace(n), ",", "")
		if s == "" {
			return decimal.Zero, false
		}
		d, err := decimal.NewFromString(s)
		return d, err == nil
	}

	f, err := cast.ToFloat64E(v)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return decimal.Zero, false
	}
	return decimal.NewFromFloat(f), true
}
