package presto

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// decodeOrderedJSON decodes a single JSON value from raw, preserving
// object key order by returning *OrderedMap instead of map[string]any.
// encoding/json's default map[string]any decode loses field order,
// which would break §8 scenario E (row/map values must preserve the
// server's field order); a token-level decode keeps it.
func decodeOrderedJSON(raw json.RawMessage) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	value, err := decodeOrderedValue(dec)
	if err != nil {
		return nil, err
	}
	return value, nil
}

func decodeOrderedValue(dec *json.Decoder) (any, error) {
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	return decodeOrderedValueFromToken(dec, tok)
}

func decodeOrderedValueFromToken(dec *json.Decoder, tok json.Token) (any, error) {
	switch t := tok.(type) {
	case json.Delim:
		switch t {
		case '{':
			return decodeOrderedObject(dec)
		case '[':
			return decodeOrderedArray(dec)
		default:
			return nil, fmt.Errorf("presto: unexpected JSON delimiter %q", t)
		}
	case nil, bool, json.Number, string:
		return t, nil
	default:
		return nil, fmt.Errorf("presto: unexpected JSON token %T", tok)
	}
}

func decodeOrderedObject(dec *json.Decoder) (any, error) {
	obj := NewOrderedMap()
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		key, ok := keyTok.(string)
		if !ok {
			return nil, fmt.Errorf("presto: expected JSON object key, got %T", keyTok)
		}
		value, err := decodeOrderedValue(dec)
		if err != nil {
			return nil, err
		}
		obj.Set(key, value)
	}
	// consume the closing '}'
	if _, err := dec.Token(); err != nil {
		return nil, err
	}
	return obj, nil
}

func decodeOrderedArray(dec *json.Decoder) (any, error) {
	var list []any
	for dec.More() {
		value, err := decodeOrderedValue(dec)
		if err != nil {
			return nil, err
		}
		list = append(list, value)
	}
	// consume the closing ']'
	if _, err := dec.Token(); err != nil {
		return nil, err
	}
	return list, nil
}
