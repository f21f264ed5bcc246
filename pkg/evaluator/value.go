// Package evaluator implements the Tern tree-walking evaluator, its value
// model and lexical environments.
package evaluator

import (
	"github.com/thomasrohde/tern/pkg/ast"
	"github.com/thomasrohde/tern/pkg/profile"
)

// Value is the interface for all Tern runtime values.
// The sealed marker method restricts implementations to this package.
type Value interface {
	value() // sealed marker
}

// Nil is the absent value.
type Nil struct{}

func (Nil) value() {}

// Bool is a boolean value.
type Bool struct {
	Value bool
}

func (Bool) value() {}

// Number is a double-precision number.
type Number struct {
	Value float64
}

func (Number) value() {}

// String is an immutable string value.
type String struct {
	Value string
}

func (String) value() {}

// List is a mutable ordered sequence. Lists are shared by pointer, so every
// alias observes mutations.
type List struct {
	Items []Value
}

func (*List) value() {}

// KeyValue is one entry of a Map.
type KeyValue struct {
	Key   string
	Value Value
}

// Map is a mutable, insertion-ordered mapping from string keys to values.
type Map struct {
	Pairs []KeyValue
	index map[string]int
}

func (*Map) value() {}

// Closure is a lambda together with the scope it was created in. Env is the
// captured scope itself, not a copy.
type Closure struct {
	Params []string
	Body   ast.Expr
	Env    *Env
	Name   string
	Pos    ast.Pos
}

func (*Closure) value() {}

// builtinFunc implements a Builtin. pos is the call site.
type builtinFunc func(ev *evaluator, pos ast.Pos, args []Value) (Value, error)

// Builtin is a host-implemented callable: an effect from the builtin
// namespace, or a receiver method bound to its receiver.
type Builtin struct {
	Name       string
	Capability profile.Capability // empty for capability-free builtins
	minArgs    int
	maxArgs    int // negative means variadic
	fn         builtinFunc
}

func (*Builtin) value() {}

// NewNil creates a nil value.
func NewNil() Value {
	return Nil{}
}

// NewBool creates a boolean value.
func NewBool(b bool) Value {
	return Bool{Value: b}
}

// NewNumber creates a numeric value.
func NewNumber(n float64) Value {
	return Number{Value: n}
}

// NewString creates a string value.
func NewString(s string) Value {
	return String{Value: s}
}

// NewList creates a list value.
func NewList(items []Value) *List {
	if items == nil {
		items = []Value{}
	}
	return &List{Items: items}
}

// NewMap creates a map value from key-value pairs. Later duplicates overwrite
// earlier values and keep the first position.
func NewMap(pairs []KeyValue) *Map {
	m := &Map{index: make(map[string]int, len(pairs))}
	for _, kv := range pairs {
		m.Set(kv.Key, kv.Value)
	}
	return m
}

func (m *Map) ensureIndex() {
	if m.index == nil {
		m.index = make(map[string]int, len(m.Pairs))
		for i, kv := range m.Pairs {
			m.index[kv.Key] = i
		}
	}
}

// Len returns the number of entries.
func (m *Map) Len() int {
	return len(m.Pairs)
}

// Get retrieves a value by key.
func (m *Map) Get(key string) (Value, bool) {
	m.ensureIndex()
	i, ok := m.index[key]
	if !ok {
		return nil, false
	}
	return m.Pairs[i].Value, true
}

// Set sets a value by key, preserving insertion order.
func (m *Map) Set(key string, val Value) {
	m.ensureIndex()
	if i, ok := m.index[key]; ok {
		m.Pairs[i].Value = val
		return
	}
	m.index[key] = len(m.Pairs)
	m.Pairs = append(m.Pairs, KeyValue{Key: key, Value: val})
}

// Remove deletes key and returns its value.
func (m *Map) Remove(key string) (Value, bool) {
	m.ensureIndex()
	i, ok := m.index[key]
	if !ok {
		return nil, false
	}
	val := m.Pairs[i].Value
	m.Pairs = append(m.Pairs[:i], m.Pairs[i+1:]...)
	delete(m.index, key)
	for j := i; j < len(m.Pairs); j++ {
		m.index[m.Pairs[j].Key] = j
	}
	return val, true
}

// Keys returns all keys in insertion order.
func (m *Map) Keys() []string {
	keys := make([]string, len(m.Pairs))
	for i, kv := range m.Pairs {
		keys[i] = kv.Key
	}
	return keys
}

// Truthy returns the boolean interpretation of a value: zero, empty strings,
// empty lists, empty maps, false and nil are falsy.
func Truthy(v Value) bool {
	switch val := v.(type) {
	case Nil:
		return false
	case Bool:
		return val.Value
	case Number:
		return val.Value != 0
	case String:
		return val.Value != ""
	case *List:
		return len(val.Items) > 0
	case *Map:
		return len(val.Pairs) > 0
	case *Closure, *Builtin:
		return true
	}
	return false
}

// TypeName returns the Tern type name used in error messages.
func TypeName(v Value) string {
	switch v.(type) {
	case Nil:
		return "nil"
	case Bool:
		return "bool"
	case Number:
		return "number"
	case String:
		return "string"
	case *List:
		return "list"
	case *Map:
		return "map"
	case *Closure:
		return "closure"
	case *Builtin:
		return "builtin"
	}
	return "unknown"
}

type visitPair struct {
	a, b Value
}

// Equal compares two values structurally. Lists compare element-wise, maps
// entry-wise regardless of order, and closures or builtins are never equal to
// anything, themselves included. Cyclic containers terminate: a pair already
// under comparison is treated as equal.
func Equal(a, b Value) bool {
	return equal(a, b, make(map[visitPair]bool))
}

func equal(a, b Value, seen map[visitPair]bool) bool {
	switch av := a.(type) {
	case Nil:
		_, ok := b.(Nil)
		return ok

	case Bool:
		bv, ok := b.(Bool)
		return ok && av.Value == bv.Value

	case Number:
		bv, ok := b.(Number)
		return ok && av.Value == bv.Value

	case String:
		bv, ok := b.(String)
		return ok && av.Value == bv.Value

	case *List:
		bv, ok := b.(*List)
		if !ok || len(av.Items) != len(bv.Items) {
			return false
		}
		key := visitPair{a, b}
		if seen[key] {
			return true
		}
		seen[key] = true
		for i := range av.Items {
			if !equal(av.Items[i], bv.Items[i], seen) {
				return false
			}
		}
		return true

	case *Map:
		bv, ok := b.(*Map)
		if !ok || av.Len() != bv.Len() {
			return false
		}
		key := visitPair{a, b}
		if seen[key] {
			return true
		}
		seen[key] = true
		for _, kv := range av.Pairs {
			other, found := bv.Get(kv.Key)
			if !found || !equal(kv.Value, other, seen) {
				return false
			}
		}
		return true
	}

	return false
}
