// Package jsontree decodes arbitrary JSON into an ordered, tagged value tree.
//
// Unlike map[string]interface{}, object members keep their document order so
// depth-first searches are deterministic, and decoding refuses payloads nested
// deeper than a caller supplied limit.
package jsontree

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
)

// Kind tags the variant held by a Value.
type Kind int

const (
	Null Kind = iota
	Bool
	Number
	String
	Array
	Object
)

func (k Kind) String() string {
	switch k {
	case Null:
		return "null"
	case Bool:
		return "bool"
	case Number:
		return "number"
	case String:
		return "string"
	case Array:
		return "array"
	case Object:
		return "object"
	default:
		return "unknown"
	}
}

// ErrTooDeep is returned when a payload nests beyond the decode limit.
var ErrTooDeep = errors.New("json nesting exceeds limit")

// Member is one key/value pair of an object.
type Member struct {
	Key   string
	Value *Value
}

// Value is a node of the tree. Only the field matching Kind is meaningful.
type Value struct {
	Kind    Kind
	Bool    bool
	Num     json.Number
	Str     string
	Items   []*Value
	Members []Member
}

// Decode parses data into a tree. maxDepth <= 0 disables the nesting guard.
func Decode(data []byte, maxDepth int) (*Value, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	v, err := decodeValue(dec, 0, maxDepth)
	if err != nil {
		return nil, err
	}

	if _, err := dec.Token(); err != io.EOF {
		return nil, fmt.Errorf("unexpected trailing data")
	}
	return v, nil
}

func decodeValue(dec *json.Decoder, depth, maxDepth int) (*Value, error) {
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	return fromToken(dec, tok, depth, maxDepth)
}

func fromToken(dec *json.Decoder, tok json.Token, depth, maxDepth int) (*Value, error) {
	switch t := tok.(type) {
	case nil:
		return &Value{Kind: Null}, nil
	case bool:
		return &Value{Kind: Bool, Bool: t}, nil
	case json.Number:
		return &Value{Kind: Number, Num: t}, nil
	case string:
		return &Value{Kind: String, Str: t}, nil
	case json.Delim:
		if maxDepth > 0 && depth >= maxDepth {
			return nil, ErrTooDeep
		}
		switch t {
		case '{':
			return decodeObject(dec, depth+1, maxDepth)
		case '[':
			return decodeArray(dec, depth+1, maxDepth)
		}
	}
	return nil, fmt.Errorf("unexpected token %v", tok)
}

func decodeObject(dec *json.Decoder, depth, maxDepth int) (*Value, error) {
	obj := &Value{Kind: Object}
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		key, ok := keyTok.(string)
		if !ok {
			return nil, fmt.Errorf("object key is %T, not string", keyTok)
		}

		val, err := decodeValue(dec, depth, maxDepth)
		if err != nil {
			return nil, err
		}
		obj.Members = append(obj.Members, Member{Key: key, Value: val})
	}

	if _, err := dec.Token(); err != nil {
		return nil, err
	}
	return obj, nil
}

func decodeArray(dec *json.Decoder, depth, maxDepth int) (*Value, error) {
	arr := &Value{Kind: Array}
	for dec.More() {
		val, err := decodeValue(dec, depth, maxDepth)
		if err != nil {
			return nil, err
		}
		arr.Items = append(arr.Items, val)
	}

	if _, err := dec.Token(); err != nil {
		return nil, err
	}
	return arr, nil
}

// Get returns the first member named key. It is nil-safe and returns false on non-objects.
func (v *Value) Get(key string) (*Value, bool) {
	if v == nil || v.Kind != Object {
		return nil, false
	}
	for _, m := range v.Members {
		if m.Key == key {
			return m.Value, true
		}
	}
	return nil, false
}

// Has reports whether an object carries key, whatever its value.
func (v *Value) Has(key string) bool {
	_, ok := v.Get(key)
	return ok
}

// Text renders scalars as strings. Containers and null render as "".
func (v *Value) Text() string {
	if v == nil {
		return ""
	}
	switch v.Kind {
	case String:
		return v.Str
	case Number:
		return v.Num.String()
	case Bool:
		return strconv.FormatBool(v.Bool)
	default:
		return ""
	}
}

// Float interprets numbers and numeric strings. Thousands separators are
// stripped. NaN and infinities are rejected.
func (v *Value) Float() (float64, bool) {
	if v == nil {
		return 0, false
	}

	var (
		f   float64
		err error
	)
	switch v.Kind {
	case Number:
		f, err = v.Num.Float64()
	case String:
		f, err = strconv.ParseFloat(strings.ReplaceAll(strings.TrimSpace(v.Str), ",", ""), 64)
	default:
		return 0, false
	}
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// Truthy follows the usual dynamic-language notion: null, false, 0, "" and
// empty containers are falsy.
func (v *Value) Truthy() bool {
	if v == nil {
		return false
	}
	switch v.Kind {
	case Null:
		return false
	case Bool:
		return v.Bool
	case Number:
		f, err := v.Num.Float64()
		return err != nil || f != 0
	case String:
		return v.Str != ""
	case Array:
		return len(v.Items) > 0
	case Object:
		return len(v.Members) > 0
	}
	return false
}

// Children returns the direct descendants of a container in document order.
func (v *Value) Children() []*Value {
	if v == nil {
		return nil
	}
	switch v.Kind {
	case Array:
		return v.Items
	case Object:
		out := make([]*Value, 0, len(v.Members))
		for _, m := range v.Members {
			out = append(out, m.Value)
		}
		return out
	}
	return nil
}

// Search walks the tree depth-first. visit is called on every object; when it
// returns handled=true the subtree is not descended and the result, if any, is
// returned. Nodes deeper than maxDepth are never visited.
func Search[T any](root *Value, maxDepth int, visit func(obj *Value) (result T, found, handled bool)) (T, bool) {
	return search(root, 0, maxDepth, visit)
}

func search[T any](v *Value, depth, maxDepth int, visit func(*Value) (T, bool, bool)) (T, bool) {
	var zero T
	if v == nil || depth > maxDepth {
		return zero, false
	}

	if v.Kind == Object {
		if res, found, handled := visit(v); handled {
			return res, found
		}
	}

	for _, child := range v.Children() {
		if res, ok := search(child, depth+1, maxDepth, visit); ok {
			return res, true
		}
	}
	return zero, false
}
