package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// AttrKind tags the variant held by an AttrValue.
type AttrKind int

const (
	AttrNull AttrKind = iota
	AttrText
	AttrNumber
	AttrBool
)

// AttrValue is a small tagged value variant: null, text, number or boolean.
// Non-canonical source columns are carried through the pipeline as AttrValues
// so "present but null" stays distinguishable from "absent".
type AttrValue struct {
	Kind   AttrKind
	Text   string
	Number float64
	Bool   bool
}

// NullValue returns an explicit null.
func NullValue() AttrValue { return AttrValue{Kind: AttrNull} }

// TextValue returns a text attribute.
func TextValue(s string) AttrValue { return AttrValue{Kind: AttrText, Text: s} }

// NumberValue returns a numeric attribute.
func NumberValue(f float64) AttrValue { return AttrValue{Kind: AttrNumber, Number: f} }

// BoolValue returns a boolean attribute.
func BoolValue(b bool) AttrValue { return AttrValue{Kind: AttrBool, Bool: b} }

// IsNull reports whether the value is an explicit null.
func (v AttrValue) IsNull() bool { return v.Kind == AttrNull }

// AsText renders the value as a string. Null renders as the empty string.
func (v AttrValue) AsText() string {
	switch v.Kind {
	case AttrText:
		return v.Text
	case AttrNumber:
		return strconv.FormatFloat(v.Number, 'g', -1, 64)
	case AttrBool:
		return strconv.FormatBool(v.Bool)
	default:
		return ""
	}
}

// AsNumber converts the value to a float64. Text values are parsed; null and
// boolean values are not numbers.
func (v AttrValue) AsNumber() (float64, error) {
	switch v.Kind {
	case AttrNumber:
		return v.Number, nil
	case AttrText:
		f, err := strconv.ParseFloat(v.Text, 64)
		if err != nil {
			return 0, fmt.Errorf("parse %q as number: %w", v.Text, err)
		}
		return f, nil
	default:
		return 0, fmt.Errorf("value of kind %d is not a number", v.Kind)
	}
}

// MarshalJSON encodes the tagged variant as its plain JSON counterpart.
func (v AttrValue) MarshalJSON() ([]byte, error) {
	switch v.Kind {
	case AttrText:
		return json.Marshal(v.Text)
	case AttrNumber:
		return json.Marshal(v.Number)
	case AttrBool:
		return json.Marshal(v.Bool)
	default:
		return []byte("null"), nil
	}
}

// Attributes is an insertion-ordered mapping from original column name to an
// AttrValue. It serializes to a JSON object whose key order matches insertion
// order, which keeps re-runs byte-identical.
type Attributes struct {
	keys   []string
	values map[string]AttrValue
}

// NewAttributes returns an empty attribute set.
func NewAttributes() *Attributes {
	return &Attributes{values: make(map[string]AttrValue)}
}

// Set adds or replaces the value for key, preserving first-insertion order.
func (a *Attributes) Set(key string, v AttrValue) {
	if a.values == nil {
		a.values = make(map[string]AttrValue)
	}
	if _, ok := a.values[key]; !ok {
		a.keys = append(a.keys, key)
	}
	a.values[key] = v
}

// Get returns the value for key and whether the key is present.
func (a *Attributes) Get(key string) (AttrValue, bool) {
	if a == nil || a.values == nil {
		return AttrValue{}, false
	}
	v, ok := a.values[key]
	return v, ok
}

// Keys returns the keys in insertion order.
func (a *Attributes) Keys() []string {
	if a == nil {
		return nil
	}
	return a.keys
}

// Len returns the number of attributes.
func (a *Attributes) Len() int {
	if a == nil {
		return 0
	}
	return len(a.keys)
}

// MarshalJSON writes an ordered JSON object with explicit nulls.
func (a *Attributes) MarshalJSON() ([]byte, error) {
	if a == nil || len(a.keys) == 0 {
		return []byte("{}"), nil
	}
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range a.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		kb, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		buf.Write(kb)
		buf.WriteByte(':')
		vb, err := a.values[k].MarshalJSON()
		if err != nil {
			return nil, err
		}
		buf.Write(vb)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON reads a flat JSON object, preserving key order and mapping
// values onto the tagged variant. Nested objects and arrays are carried as
// their raw JSON text.
func (a *Attributes) UnmarshalJSON(data []byte) error {
	*a = *NewAttributes()
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("attributes: expected JSON object, got %v", tok)
	}

	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := keyTok.(string)
		if !ok {
			return fmt.Errorf("attributes: expected object key, got %v", keyTok)
		}

		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return err
		}
		a.Set(key, attrValueFromRaw(raw))
	}

	// closing brace
	if _, err := dec.Token(); err != nil {
		return err
	}
	return nil
}

func attrValueFromRaw(raw json.RawMessage) AttrValue {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return NullValue()
	}
	switch trimmed[0] {
	case '"':
		var s string
		if err := json.Unmarshal(trimmed, &s); err == nil {
			return TextValue(s)
		}
	case 't', 'f':
		var b bool
		if err := json.Unmarshal(trimmed, &b); err == nil {
			return BoolValue(b)
		}
	default:
		var f float64
		if err := json.Unmarshal(trimmed, &f); err == nil {
			return NumberValue(f)
		}
	}
	// Nested structures fall back to raw text.
	return TextValue(string(trimmed))
}
