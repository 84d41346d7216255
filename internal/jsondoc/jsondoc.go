// Package jsondoc parses JSON documents while preserving object key order.
// Key order is load-bearing in Strata: schema property order and DML
// parameter order both follow the order keys appear in the source text,
// which encoding/json's map decoding discards.
package jsondoc

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Value is a decoded JSON value: string, json.Number, bool, nil,
// *Object, or []Value.
type Value any

// Object is a JSON object with insertion-ordered keys.
type Object struct {
	keys []string
	vals map[string]Value
}

// NewObject returns an empty ordered object.
func NewObject() *Object {
	return &Object{vals: make(map[string]Value)}
}

// Keys returns the object's keys in insertion order.
func (o *Object) Keys() []string { return o.keys }

// Len returns the number of members.
func (o *Object) Len() int { return len(o.keys) }

// Get returns the value for key and whether it is present.
func (o *Object) Get(key string) (Value, bool) {
	v, ok := o.vals[key]
	return v, ok
}

// Set stores a value. An existing key keeps its position; a new key is
// appended.
func (o *Object) Set(key string, v Value) {
	if o.vals == nil {
		o.vals = make(map[string]Value)
	}
	if _, ok := o.vals[key]; !ok {
		o.keys = append(o.keys, key)
	}
	o.vals[key] = v
}

// Parse decodes a JSON document into a Value.
func Parse(data []byte) (Value, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	v, err := decodeValue(dec)
	if err != nil {
		return nil, err
	}
	// Trailing content after the document is an error.
	if _, err := dec.Token(); err != io.EOF {
		return nil, errors.New("jsondoc: trailing data after document")
	}
	return v, nil
}

// ParseObject decodes a JSON document that must be an object.
func ParseObject(data []byte) (*Object, error) {
	v, err := Parse(data)
	if err != nil {
		return nil, err
	}
	obj, ok := v.(*Object)
	if !ok {
		return nil, errors.New("jsondoc: document is not an object")
	}
	return obj, nil
}

func decodeValue(dec *json.Decoder) (Value, error) {
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	return decodeFromToken(dec, tok)
}

func decodeFromToken(dec *json.Decoder, tok json.Token) (Value, error) {
	switch t := tok.(type) {
	case json.Delim:
		switch t {
		case '{':
			obj := NewObject()
			for dec.More() {
				keyTok, err := dec.Token()
				if err != nil {
					return nil, err
				}
				key, ok := keyTok.(string)
				if !ok {
					return nil, fmt.Errorf("jsondoc: unexpected key token %v", keyTok)
				}
				val, err := decodeValue(dec)
				if err != nil {
					return nil, err
				}
				obj.Set(key, val)
			}
			// Consume '}'.
			if _, err := dec.Token(); err != nil {
				return nil, err
			}
			return obj, nil
		case '[':
			var arr []Value
			for dec.More() {
				val, err := decodeValue(dec)
				if err != nil {
					return nil, err
				}
				arr = append(arr, val)
			}
			if _, err := dec.Token(); err != nil {
				return nil, err
			}
			return arr, nil
		default:
			return nil, fmt.Errorf("jsondoc: unexpected delimiter %v", t)
		}
	default:
		// string, json.Number, bool, nil
		return Value(tok), nil
	}
}

// Dump serializes a Value back to JSON text, preserving object key order.
func Dump(v Value) string {
	var b strings.Builder
	dump(&b, v)
	return b.String()
}

func dump(b *strings.Builder, v Value) {
	switch t := v.(type) {
	case nil:
		b.WriteString("null")
	case bool:
		if t {
			b.WriteString("true")
		} else {
			b.WriteString("false")
		}
	case json.Number:
		b.WriteString(t.String())
	case string:
		b.WriteString(strconv.Quote(t))
	case []Value:
		b.WriteByte('[')
		for i, e := range t {
			if i > 0 {
				b.WriteByte(',')
			}
			dump(b, e)
		}
		b.WriteByte(']')
	case *Object:
		b.WriteByte('{')
		for i, k := range t.keys {
			if i > 0 {
				b.WriteByte(',')
			}
			b.WriteString(strconv.Quote(k))
			b.WriteByte(':')
			dump(b, t.vals[k])
		}
		b.WriteByte('}')
	default:
		// Values built programmatically may carry native Go numbers.
		data, err := json.Marshal(t)
		if err != nil {
			b.WriteString("null")
			return
		}
		b.Write(data)
	}
}

// Rows normalizes a payload into its row objects. A single object yields
// one row; an array yields its elements, which must all be objects.
// An empty array returns an empty slice and true, so callers can reject it.
func Rows(v Value) ([]*Object, bool) {
	switch t := v.(type) {
	case *Object:
		return []*Object{t}, true
	case []Value:
		rows := make([]*Object, 0, len(t))
		for _, e := range t {
			obj, ok := e.(*Object)
			if !ok {
				return nil, false
			}
			rows = append(rows, obj)
		}
		return rows, true
	default:
		return nil, false
	}
}

// Sample returns the object that defines the column set for a payload:
// the first element of an array, or the payload itself.
func Sample(v Value) (*Object, bool) {
	switch t := v.(type) {
	case *Object:
		return t, true
	case []Value:
		if len(t) == 0 {
			return nil, false
		}
		obj, ok := t[0].(*Object)
		return obj, ok
	default:
		return nil, false
	}
}
