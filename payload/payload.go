package payload

import (
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// Kind is the tagged-union discriminator.
type Kind uint8

const (
	KindNull Kind = iota
	KindBool
	KindInt
	KindFloat
	KindString
	KindList
	KindMap
)

// String returns the wire name of the kind.
func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBool:
		return "bool"
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindString:
		return "string"
	case KindList:
		return "list"
	case KindMap:
		return "map"
	}
	return "invalid"
}

// Value is the canonical interchange value crossing the bridge: a tagged
// union over null, bool, 64-bit signed int, 64-bit IEEE-754 float, string,
// ordered list, and insertion-ordered string-keyed map. Values have copy
// semantics across the bridge: every hop works on its own Clone.
//
// The zero Value is Null.
type Value struct {
	m    *orderedmap.OrderedMap[string, Value]
	list []Value
	s    string
	i    int64
	f    float64
	b    bool
	kind Kind
}

// Pair is one map entry, used by MapOf to build maps in key order.
type Pair struct {
	Key string
	Val Value
}

// Null returns the null value.
func Null() Value { return Value{} }

// Bool returns a bool value.
func Bool(b bool) Value { return Value{kind: KindBool, b: b} }

// Int returns a 64-bit signed integer value.
func Int(i int64) Value { return Value{kind: KindInt, i: i} }

// Float returns a 64-bit float value.
func Float(f float64) Value { return Value{kind: KindFloat, f: f} }

// String returns a string value.
func String(s string) Value { return Value{kind: KindString, s: s} }

// List returns an ordered list value.
func List(items ...Value) Value {
	return Value{kind: KindList, list: items}
}

// MapOf returns an insertion-ordered map value with the given entries.
// Later duplicates overwrite earlier ones without changing their position.
func MapOf(pairs ...Pair) Value {
	m := orderedmap.New[string, Value]()
	for _, p := range pairs {
		m.Set(p.Key, p.Val)
	}
	return Value{kind: KindMap, m: m}
}

// Kind returns the discriminator.
func (v Value) Kind() Kind { return v.kind }

// IsNull reports whether the value is null.
func (v Value) IsNull() bool { return v.kind == KindNull }

// AsBool returns the bool payload, ok false on kind mismatch.
func (v Value) AsBool() (bool, bool) {
	if v.kind != KindBool {
		return false, false
	}
	return v.b, true
}

// AsInt returns the integer payload, ok false on kind mismatch.
func (v Value) AsInt() (int64, bool) {
	if v.kind != KindInt {
		return 0, false
	}
	return v.i, true
}

// AsFloat returns the float payload, ok false on kind mismatch.
func (v Value) AsFloat() (float64, bool) {
	if v.kind != KindFloat {
		return 0, false
	}
	return v.f, true
}

// AsString returns the string payload, ok false on kind mismatch.
func (v Value) AsString() (string, bool) {
	if v.kind != KindString {
		return "", false
	}
	return v.s, true
}

// AsList returns the list items, ok false on kind mismatch.
// The returned slice is the value's own backing; Clone before mutating.
func (v Value) AsList() ([]Value, bool) {
	if v.kind != KindList {
		return nil, false
	}
	return v.list, true
}

// Len returns the number of items for lists and maps, 0 otherwise.
func (v Value) Len() int {
	switch v.kind {
	case KindList:
		return len(v.list)
	case KindMap:
		return v.m.Len()
	}
	return 0
}

// GetKey looks up a map entry, ok false for non-maps or absent keys.
func (v Value) GetKey(key string) (Value, bool) {
	if v.kind != KindMap || v.m == nil {
		return Value{}, false
	}
	return v.m.Get(key)
}

// SetKey sets a map entry in place. No-op for non-map values.
func (v Value) SetKey(key string, val Value) {
	if v.kind == KindMap && v.m != nil {
		v.m.Set(key, val)
	}
}

// Keys returns map keys in insertion order, nil for non-maps.
func (v Value) Keys() []string {
	if v.kind != KindMap || v.m == nil {
		return nil
	}
	keys := make([]string, 0, v.m.Len())
	for pair := v.m.Oldest(); pair != nil; pair = pair.Next() {
		keys = append(keys, pair.Key)
	}
	return keys
}

// Clone returns a deep copy. Lists and maps are copied recursively so the
// clone shares no mutable state with the original.
func (v Value) Clone() Value {
	switch v.kind {
	case KindList:
		items := make([]Value, len(v.list))
		for i, item := range v.list {
			items[i] = item.Clone()
		}
		return Value{kind: KindList, list: items}
	case KindMap:
		m := orderedmap.New[string, Value]()
		for pair := v.m.Oldest(); pair != nil; pair = pair.Next() {
			m.Set(pair.Key, pair.Value.Clone())
		}
		return Value{kind: KindMap, m: m}
	}
	return v
}

// Equal reports structural equality. Map equality requires the same keys
// with equal values; key order does not participate, matching the wire
// format's "order preserved but not semantic" rule.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindNull:
		return true
	case KindBool:
		return v.b == o.b
	case KindInt:
		return v.i == o.i
	case KindFloat:
		return v.f == o.f
	case KindString:
		return v.s == o.s
	case KindList:
		if len(v.list) != len(o.list) {
			return false
		}
		for i := range v.list {
			if !v.list[i].Equal(o.list[i]) {
				return false
			}
		}
		return true
	case KindMap:
		if v.m.Len() != o.m.Len() {
			return false
		}
		for pair := v.m.Oldest(); pair != nil; pair = pair.Next() {
			ov, ok := o.m.Get(pair.Key)
			if !ok || !pair.Value.Equal(ov) {
				return false
			}
		}
		return true
	}
	return false
}
