package presto

import (
	"encoding/base64"
	"encoding/json"
	"strconv"
	"strings"
)

// stringOnlyBases keep their JSON string representation as-is and
// reject non-string values, per §4.2. Temporal and decimal types are
// never coerced further here; that is left to the caller.
var stringOnlyBases = map[string]bool{
	"varchar":                  true,
	"char":                     true,
	"json":                     true,
	"time":                     true,
	"time with time zone":      true,
	"timestamp":                true,
	"timestamp with time zone": true,
	"date":                     true,
	"interval year to month":   true,
	"interval day to second":   true,
	"decimal":                  true,
}

// FixValue rewrites a JSON-decoded value (nil, string, float64/
// json.Number, bool, []any, or *OrderedMap as produced by
// decodeOrderedJSON) into a typed native Go value, driven by sig. A
// map[string]any is not accepted for a map signature. Composite bases
// recurse; scalar bases coerce; unknown bases are treated as opaque,
// Base64-decoded when the wire value is a string (a string that is not
// valid Base64 is returned unchanged). Nulls pass through
// unconditionally. Failures surface as *ValueCoercionError.
func FixValue(sig TypeSignature, value any) (any, error) {
	if value == nil {
		return nil, nil
	}

	base := strings.ToLower(sig.Base)
	switch base {
	case "array":
		return fixArray(sig, value)
	case "map":
		return fixMap(sig, value)
	case "row":
		return fixRow(sig, value)
	case "bigint", "integer", "smallint", "tinyint":
		return fixInteger(sig, base, value)
	case "double", "real":
		return fixFloat(sig, value)
	case "boolean":
		return fixBool(sig, value)
	default:
		if stringOnlyBases[base] {
			return fixString(sig, value)
		}
		return fixOpaque(value), nil
	}
}

func fixArray(sig TypeSignature, value any) (any, error) {
	list, ok := value.([]any)
	if !ok {
		return nil, coercionErr(sig, value, "expected a JSON array")
	}
	if len(sig.Parameters) != 1 {
		return nil, coercionErr(sig, value, "array signature missing element type")
	}
	elemSig := sig.Parameters[0].Type

	out := make([]any, len(list))
	for i, v := range list {
		fixed, err := FixValue(elemSig, v)
		if err != nil {
			return nil, err
		}
		out[i] = fixed
	}
	return out, nil
}

// OrderedMap is an insertion-ordered string-keyed map, used for both
// fixed `map` and `row` values so that field/key order observed on the
// wire survives into the typed result.
type OrderedMap struct {
	keys   []string
	values map[string]any
}

// NewOrderedMap returns an empty OrderedMap.
func NewOrderedMap() *OrderedMap {
	return &OrderedMap{values: map[string]any{}}
}

// Set inserts or overwrites key, preserving first-seen insertion order.
func (m *OrderedMap) Set(key string, value any) {
	if _, exists := m.values[key]; !exists {
		m.keys = append(m.keys, key)
	}
	m.values[key] = value
}

// Get returns the value for key and whether it was present.
func (m *OrderedMap) Get(key string) (any, bool) {
	v, ok := m.values[key]
	return v, ok
}

// Keys returns the keys in insertion order.
func (m *OrderedMap) Keys() []string { return m.keys }

// Len returns the number of entries.
func (m *OrderedMap) Len() int { return len(m.keys) }

func fixMap(sig TypeSignature, value any) (any, error) {
	obj, ok := value.(*OrderedMap)
	if !ok {
		return nil, coercionErr(sig, value, "expected a JSON object")
	}
	if len(sig.Parameters) != 2 {
		return nil, coercionErr(sig, value, "map signature missing key/value types")
	}
	valSig := sig.Parameters[1].Type

	out := NewOrderedMap()
	for _, k := range obj.Keys() {
		v, _ := obj.Get(k)
		fixedVal, err := FixValue(valSig, v)
		if err != nil {
			return nil, err
		}
		out.Set(k, fixedVal)
	}
	return out, nil
}

func fixRow(sig TypeSignature, value any) (any, error) {
	list, ok := value.([]any)
	if !ok {
		return nil, coercionErr(sig, value, "expected a JSON array")
	}
	if len(list) != len(sig.Parameters) {
		return nil, coercionErr(sig, value, "row value length does not match field count")
	}

	out := NewOrderedMap()
	for i, field := range sig.Parameters {
		if field.Kind != ParamKindNamedType {
			return nil, coercionErr(sig, value, "row signature has a non-named field")
		}
		fixed, err := FixValue(field.Type, list[i])
		if err != nil {
			return nil, err
		}
		out.Set(field.Name, fixed)
	}
	return out, nil
}

func fixInteger(sig TypeSignature, base string, value any) (any, error) {
	var n int64
	switch v := value.(type) {
	case string:
		parsed, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return nil, coercionErr(sig, value, "not a valid integer string")
		}
		n = parsed
	case json.Number:
		parsed, err := v.Int64()
		if err != nil {
			return nil, coercionErr(sig, value, "not a valid integer")
		}
		n = parsed
	case float64:
		n = int64(v)
	default:
		return nil, coercionErr(sig, value, "expected a number or numeric string")
	}

	switch base {
	case "bigint":
		return n, nil
	case "integer":
		if n < -(1<<31) || n > (1<<31)-1 {
			return nil, coercionErr(sig, value, "overflows 32-bit integer")
		}
		return int32(n), nil
	case "smallint":
		if n < -(1<<15) || n > (1<<15)-1 {
			return nil, coercionErr(sig, value, "overflows 16-bit integer")
		}
		return int16(n), nil
	case "tinyint":
		if n < -(1<<7) || n > (1<<7)-1 {
			return nil, coercionErr(sig, value, "overflows 8-bit integer")
		}
		return int8(n), nil
	default:
		return n, nil
	}
}

func fixFloat(sig TypeSignature, value any) (any, error) {
	switch v := value.(type) {
	case string:
		parsed, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return nil, coercionErr(sig, value, "not a valid floating-point string")
		}
		return parsed, nil
	case json.Number:
		parsed, err := v.Float64()
		if err != nil {
			return nil, coercionErr(sig, value, "not a valid number")
		}
		return parsed, nil
	case float64:
		return v, nil
	default:
		return nil, coercionErr(sig, value, "expected a number or numeric string")
	}
}

func fixBool(sig TypeSignature, value any) (any, error) {
	switch v := value.(type) {
	case string:
		switch strings.ToLower(v) {
		case "true":
			return true, nil
		case "false":
			return false, nil
		default:
			return nil, coercionErr(sig, value, "not a valid boolean string")
		}
	case bool:
		return v, nil
	default:
		return nil, coercionErr(sig, value, "expected a bool or boolean string")
	}
}

func fixString(sig TypeSignature, value any) (any, error) {
	s, ok := value.(string)
	if !ok {
		return nil, coercionErr(sig, value, "expected a string")
	}
	return s, nil
}

func fixOpaque(value any) any {
	s, ok := value.(string)
	if !ok {
		return value
	}
	decoded, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return value
	}
	return decoded
}

func coercionErr(sig TypeSignature, value any, reason string) error {
	return &ValueCoercionError{Signature: sig.String(), Value: value, Reason: reason}
}
