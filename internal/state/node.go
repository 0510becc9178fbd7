package state

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Kind classifies the JSON value held by a Node.
type Kind int

const (
	KindAbsent Kind = iota
	KindNull
	KindBool
	KindNumber
	KindString
	KindArray
	KindObject
)

func (k Kind) String() string {
	switch k {
	case KindAbsent:
		return "absent"
	case KindNull:
		return "null"
	case KindBool:
		return "bool"
	case KindNumber:
		return "number"
	case KindString:
		return "string"
	case KindArray:
		return "array"
	case KindObject:
		return "object"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Node wraps one decoded JSON value from the page state. The zero Node is absent,
// which is distinct from a present JSON null.
type Node struct {
	value   any
	present bool
}

// Absent returns the sentinel for "no value at this location".
func Absent() Node {
	return Node{}
}

// NewNode wraps a value produced by a json.Decoder with UseNumber enabled.
func NewNode(v any) Node {
	return Node{value: v, present: true}
}

// ParseNode decodes a JSON document into a Node, preserving numbers as json.Number.
func ParseNode(data []byte) (Node, error) {
	dec := json.NewDecoder(strings.NewReader(string(data)))
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil {
		return Absent(), fmt.Errorf("failed to decode page state: %w", err)
	}
	return NewNode(v), nil
}

func (n Node) Kind() Kind {
	if !n.present {
		return KindAbsent
	}
	switch n.value.(type) {
	case nil:
		return KindNull
	case bool:
		return KindBool
	case json.Number, float64, int, int64:
		return KindNumber
	case string:
		return KindString
	case []any:
		return KindArray
	case map[string]any:
		return KindObject
	default:
		return KindAbsent
	}
}

// Exists reports whether the node holds a non-null value.
func (n Node) Exists() bool {
	k := n.Kind()
	return k != KindAbsent && k != KindNull
}

// Raw returns the underlying decoded value.
func (n Node) Raw() any {
	return n.value
}

// Get returns the named member of an object node, or Absent.
func (n Node) Get(key string) Node {
	obj, ok := n.value.(map[string]any)
	if !n.present || !ok {
		return Absent()
	}
	v, ok := obj[key]
	if !ok {
		return Absent()
	}
	return NewNode(v)
}

// Has reports whether an object node carries the key at all, null included.
func (n Node) Has(key string) bool {
	return n.Get(key).present
}

// Items returns the elements of an array node.
func (n Node) Items() []Node {
	arr, ok := n.value.([]any)
	if !n.present || !ok {
		return nil
	}
	items := make([]Node, len(arr))
	for i, v := range arr {
		items[i] = NewNode(v)
	}
	return items
}

// Ref returns the target key when the node is a {"__ref": key} marker.
func (n Node) Ref() (string, bool) {
	if n.Kind() != KindObject {
		return "", false
	}
	key, ok := n.Get("__ref").Raw().(string)
	return key, ok
}

// Typename returns the __typename tag of an object node, if any.
func (n Node) Typename() string {
	name, _ := n.Get("__typename").Raw().(string)
	return name
}

// Text returns the node as a string. Numbers are rendered in their JSON form.
func (n Node) Text() (string, bool) {
	switch v := n.value.(type) {
	case string:
		return v, n.present
	case json.Number:
		return v.String(), true
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), true
	case int:
		return strconv.Itoa(v), true
	case int64:
		return strconv.FormatInt(v, 10), true
	case bool:
		return strconv.FormatBool(v), true
	default:
		return "", false
	}
}

// Float returns the node as a float64. Numeric strings are accepted.
func (n Node) Float() (float64, bool) {
	switch v := n.value.(type) {
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	case float64:
		return v, true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		return f, err == nil
	default:
		return 0, false
	}
}

// Int returns the node as an int64 when it holds a whole number.
func (n Node) Int() (int64, bool) {
	if num, ok := n.value.(json.Number); ok {
		if i, err := num.Int64(); err == nil {
			return i, true
		}
	}
	f, ok := n.Float()
	if !ok || math.IsInf(f, 0) || math.IsNaN(f) || f != math.Trunc(f) {
		return 0, false
	}
	if f > math.MaxInt64 || f < math.MinInt64 {
		return 0, false
	}
	return int64(f), true
}

// Bool returns the node as a boolean.
func (n Node) Bool() (bool, bool) {
	b, ok := n.value.(bool)
	return b, ok && n.present
}

func (n Node) String() string {
	if !n.present {
		return "<absent>"
	}
	if n.value == nil {
		return "null"
	}
	if s, ok := n.Text(); ok {
		return s
	}
	data, err := json.Marshal(n.value)
	if err != nil {
		return fmt.Sprintf("%v", n.value)
	}
	return string(data)
}

// Index is the page's flat key -> object mapping.
type Index map[string]Node

// NewIndex builds an Index from a decoded state object.
func NewIndex(n Node) Index {
	obj, ok := n.Raw().(map[string]any)
	if !ok {
		return Index{}
	}
	idx := make(Index, len(obj))
	for key, v := range obj {
		idx[key] = NewNode(v)
	}
	return idx
}
