package payload

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"unicode/utf8"
)

// ErrNotObject is returned when a document's top level is not a JSON object.
var ErrNotObject = errors.New("payload is not a JSON object")

// Parse decodes one JSON document. Number literals are preserved verbatim.
func Parse(data []byte) (Value, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var raw any
	if err := dec.Decode(&raw); err != nil {
		return Value{}, fmt.Errorf("decode payload: %w", err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return Value{}, errors.New("decode payload: trailing data after document")
	}
	return FromAny(raw)
}

// ParseDocument decodes a stored row. A top-level JSON string whose content
// is itself an object is unwrapped once; older loaders stored rows
// double-encoded.
func ParseDocument(data []byte) (Value, error) {
	v, err := Parse(data)
	if err != nil {
		return Value{}, err
	}
	if s, ok := v.Str(); ok {
		if inner, err := Parse([]byte(s)); err == nil && inner.Kind() == KindObject {
			return inner, nil
		}
	}
	return v, nil
}

// ParseObject decodes a stored row that must be an object.
func ParseObject(data []byte) (Object, error) {
	v, err := ParseDocument(data)
	if err != nil {
		return nil, err
	}
	obj, ok := v.Object()
	if !ok {
		return nil, fmt.Errorf("%w: got %s", ErrNotObject, v.Kind())
	}
	return obj, nil
}

// FromAny converts the output of encoding/json (decoded with UseNumber) or
// plain Go scalars into a Value.
func FromAny(raw any) (Value, error) {
	switch x := raw.(type) {
	case nil:
		return Null(), nil
	case string:
		return String(x), nil
	case json.Number:
		return Number(x.String()), nil
	case bool:
		return Bool(x), nil
	case float64:
		return Float(x), nil
	case int:
		return Int(int64(x)), nil
	case int64:
		return Int(x), nil
	case map[string]any:
		obj := make(Object, len(x))
		for k, item := range x {
			v, err := FromAny(item)
			if err != nil {
				return Value{}, fmt.Errorf("%s: %w", k, err)
			}
			obj[k] = v
		}
		return ObjectOf(obj), nil
	case []any:
		items := make([]Value, len(x))
		for i, item := range x {
			v, err := FromAny(item)
			if err != nil {
				return Value{}, fmt.Errorf("[%d]: %w", i, err)
			}
			items[i] = v
		}
		return Array(items...), nil
	case Value:
		return x, nil
	default:
		return Value{}, fmt.Errorf("unsupported payload type %T", raw)
	}
}

// MarshalJSON encodes v in canonical form.
func (v Value) MarshalJSON() ([]byte, error) {
	return AppendCanonical(nil, v), nil
}

// UnmarshalJSON decodes any JSON document into v.
func (v *Value) UnmarshalJSON(data []byte) error {
	parsed, err := Parse(data)
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}

// MarshalJSON encodes o in canonical form.
func (o Object) MarshalJSON() ([]byte, error) {
	return CanonicalJSON(o), nil
}

// UnmarshalJSON decodes a JSON object into o.
func (o *Object) UnmarshalJSON(data []byte) error {
	v, err := Parse(data)
	if err != nil {
		return err
	}
	obj, ok := v.Object()
	if !ok {
		return ErrNotObject
	}
	*o = obj
	return nil
}

// CanonicalJSON renders o with keys sorted by code point at every level,
// "," and ":" separators, no insignificant whitespace, and no escaping of
// non-ASCII or HTML characters. Equal objects always render identically.
func CanonicalJSON(o Object) []byte {
	return AppendCanonical(nil, ObjectOf(o))
}

// AppendCanonical appends the canonical rendering of v to buf.
func AppendCanonical(buf []byte, v Value) []byte {
	switch v.kind {
	case KindNull:
		return append(buf, "null"...)
	case KindString:
		return appendString(buf, v.text)
	case KindNumber:
		return append(buf, v.text...)
	case KindBool:
		if v.b {
			return append(buf, "true"...)
		}
		return append(buf, "false"...)
	case KindObject:
		keys := make([]string, 0, len(v.obj))
		for k := range v.obj {
			keys = append(keys, k)
		}
		// Byte order of valid UTF-8 equals code point order.
		sort.Strings(keys)
		buf = append(buf, '{')
		for i, k := range keys {
			if i > 0 {
				buf = append(buf, ',')
			}
			buf = appendString(buf, k)
			buf = append(buf, ':')
			buf = AppendCanonical(buf, v.obj[k])
		}
		return append(buf, '}')
	case KindArray:
		buf = append(buf, '[')
		for i, item := range v.arr {
			if i > 0 {
				buf = append(buf, ',')
			}
			buf = AppendCanonical(buf, item)
		}
		return append(buf, ']')
	default:
		return append(buf, "null"...)
	}
}

const hexDigits = "0123456789abcdef"

func appendString(buf []byte, s string) []byte {
	buf = append(buf, '"')
	for i := 0; i < len(s); {
		c := s[i]
		if c < utf8.RuneSelf {
			switch c {
			case '"':
				buf = append(buf, '\\', '"')
			case '\\':
				buf = append(buf, '\\', '\\')
			case '\n':
				buf = append(buf, '\\', 'n')
			case '\r':
				buf = append(buf, '\\', 'r')
			case '\t':
				buf = append(buf, '\\', 't')
			case '\b':
				buf = append(buf, '\\', 'b')
			case '\f':
				buf = append(buf, '\\', 'f')
			default:
				if c < 0x20 {
					buf = append(buf, '\\', 'u', '0', '0', hexDigits[c>>4], hexDigits[c&0xf])
				} else {
					buf = append(buf, c)
				}
			}
			i++
			continue
		}
		r, size := utf8.DecodeRuneInString(s[i:])
		if r == utf8.RuneError && size == 1 {
			buf = append(buf, "\uFFFD"...)
		} else {
			buf = append(buf, s[i:i+size]...)
		}
		i += size
	}
	return append(buf, '"')
}
