package evaluator

import (
	"bytes"
	"encoding/json"
	"math"
	"sort"

	"github.com/pkg/errors"
)

// ErrCyclicValue is returned when a value cannot be serialised because a
// container contains itself.
var ErrCyclicValue = errors.New("cyclic value cannot be converted to JSON")

// ValueToJSON marshals v to JSON bytes. Maps preserve key order and integral
// numbers are written without a decimal point. Closures and builtins become
// their rendered text.
func ValueToJSON(v Value) ([]byte, error) {
	var buf bytes.Buffer
	if err := writeJSON(&buf, v, make(map[Value]bool)); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func writeJSON(buf *bytes.Buffer, v Value, active map[Value]bool) error {
	switch val := v.(type) {
	case nil, Nil:
		buf.WriteString("null")

	case Bool:
		if val.Value {
			buf.WriteString("true")
		} else {
			buf.WriteString("false")
		}

	case Number:
		if math.IsInf(val.Value, 0) || math.IsNaN(val.Value) {
			buf.WriteString("null")
			return nil
		}
		buf.WriteString(FormatNumber(val.Value))

	case String:
		return writeJSONString(buf, val.Value)

	case *List:
		if active[val] {
			return ErrCyclicValue
		}
		active[val] = true
		defer delete(active, val)
		buf.WriteByte('[')
		for i, item := range val.Items {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writeJSON(buf, item, active); err != nil {
				return err
			}
		}
		buf.WriteByte(']')

	case *Map:
		if active[val] {
			return ErrCyclicValue
		}
		active[val] = true
		defer delete(active, val)
		buf.WriteByte('{')
		for i, kv := range val.Pairs {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writeJSONString(buf, kv.Key); err != nil {
				return err
			}
			buf.WriteByte(':')
			if err := writeJSON(buf, kv.Value, active); err != nil {
				return err
			}
		}
		buf.WriteByte('}')

	default:
		return writeJSONString(buf, RenderNested(v))
	}
	return nil
}

func writeJSONString(buf *bytes.Buffer, s string) error {
	var tmp bytes.Buffer
	enc := json.NewEncoder(&tmp)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(s); err != nil {
		return errors.Wrap(err, "encoding string")
	}
	buf.Write(bytes.TrimSuffix(tmp.Bytes(), []byte("\n")))
	return nil
}

// ValueToJSONString is a convenience that returns a string; unserialisable
// values yield "null".
func ValueToJSONString(v Value) string {
	b, err := ValueToJSON(v)
	if err != nil {
		return "null"
	}
	return string(b)
}

// ParseJSONToValue converts a JSON document to a Value. Object keys keep
// their document order.
func ParseJSONToValue(data []byte) (Value, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	v, err := decodeJSON(dec)
	if err != nil {
		return nil, errors.Wrap(err, "decoding JSON value")
	}
	if dec.More() {
		return nil, errors.New("decoding JSON value: trailing data")
	}
	return v, nil
}

func decodeJSON(dec *json.Decoder) (Value, error) {
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	switch t := tok.(type) {
	case json.Delim:
		switch t {
		case '[':
			items := []Value{}
			for dec.More() {
				item, err := decodeJSON(dec)
				if err != nil {
					return nil, err
				}
				items = append(items, item)
			}
			if _, err := dec.Token(); err != nil {
				return nil, err
			}
			return NewList(items), nil
		case '{':
			m := NewMap(nil)
			for dec.More() {
				keyTok, err := dec.Token()
				if err != nil {
					return nil, err
				}
				key, _ := keyTok.(string)
				val, err := decodeJSON(dec)
				if err != nil {
					return nil, err
				}
				m.Set(key, val)
			}
			if _, err := dec.Token(); err != nil {
				return nil, err
			}
			return m, nil
		}
		return nil, errors.Errorf("unexpected delimiter %s", t)
	case nil:
		return NewNil(), nil
	case bool:
		return NewBool(t), nil
	case json.Number:
		f, err := t.Float64()
		if err != nil {
			return nil, err
		}
		return NewNumber(f), nil
	case string:
		return NewString(t), nil
	}
	return nil, errors.Errorf("unexpected JSON token %v", tok)
}

// FromNative converts decoded YAML, TOML or JSON data into a Value. Go maps
// carry no order, so their keys are sorted. Unsupported types become Nil.
func FromNative(v any) Value {
	switch val := v.(type) {
	case nil:
		return NewNil()
	case Value:
		return val
	case bool:
		return NewBool(val)
	case int:
		return NewNumber(float64(val))
	case int64:
		return NewNumber(float64(val))
	case uint64:
		return NewNumber(float64(val))
	case float64:
		return NewNumber(val)
	case json.Number:
		f, err := val.Float64()
		if err != nil {
			return NewNil()
		}
		return NewNumber(f)
	case string:
		return NewString(val)
	case []any:
		items := make([]Value, len(val))
		for i, item := range val {
			items[i] = FromNative(item)
		}
		return NewList(items)
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		pairs := make([]KeyValue, len(keys))
		for i, k := range keys {
			pairs[i] = KeyValue{Key: k, Value: FromNative(val[k])}
		}
		return NewMap(pairs)
	}
	return NewNil()
}
