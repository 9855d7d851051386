package payload

import (
	"math"
	"sort"
)

// From lifts a raw Go value into the tagged form. Widget props may arrive
// either way; the renderer normalizes through this before reading them.
// Unrepresentable inputs become Null rather than failing.
func From(raw any) Value {
	switch x := raw.(type) {
	case nil:
		return Null()
	case Value:
		return x
	case bool:
		return Bool(x)
	case int:
		return Int(int64(x))
	case int32:
		return Int(int64(x))
	case int64:
		return Int(x)
	case uint32:
		return Int(int64(x))
	case uint64:
		if x > math.MaxInt64 {
			return Float(float64(x))
		}
		return Int(int64(x))
	case float32:
		return Float(float64(x))
	case float64:
		// JSON decodes every number to float64; keep integral values as ints
		// so prop reads through IntOr see the declared shape.
		if x == math.Trunc(x) && !math.IsInf(x, 0) && math.Abs(x) < 1<<53 {
			return Int(int64(x))
		}
		return Float(x)
	case string:
		return String(x)
	case []Value:
		return List(x...)
	case []any:
		items := make([]Value, len(x))
		for i, item := range x {
			items[i] = From(item)
		}
		return List(items...)
	case map[string]any:
		// Go map iteration order is random; sort for a stable lift.
		keys := make([]string, 0, len(x))
		for k := range x {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		pairs := make([]Pair, len(keys))
		for i, k := range keys {
			pairs[i] = Pair{Key: k, Val: From(x[k])}
		}
		return MapOf(pairs...)
	}
	return Null()
}

// Export lowers the tagged form back to plain Go values: nil, bool,
// int64, float64, string, []any, or map[string]any. The inverse of From
// up to map key order, which Go maps cannot preserve; use the JSON wire
// form when order matters.
func (v Value) Export() any {
	switch v.kind {
	case KindBool:
		return v.b
	case KindInt:
		return v.i
	case KindFloat:
		return v.f
	case KindString:
		return v.s
	case KindList:
		out := make([]any, len(v.list))
		for i, item := range v.list {
			out[i] = item.Export()
		}
		return out
	case KindMap:
		out := make(map[string]any, v.m.Len())
		for pair := v.m.Oldest(); pair != nil; pair = pair.Next() {
			out[pair.Key] = pair.Value.Export()
		}
		return out
	}
	return nil
}

// The Or accessors back the renderer's prop normalization: the tagged
// form's declared type wins when present, numeric kinds coerce between
// each other, and anything else yields the caller's default. They never
// fail.

// BoolOr returns the bool payload or def.
func (v Value) BoolOr(def bool) bool {
	if b, ok := v.AsBool(); ok {
		return b
	}
	return def
}

// IntOr returns the integer payload, truncating floats, or def.
func (v Value) IntOr(def int64) int64 {
	switch v.kind {
	case KindInt:
		return v.i
	case KindFloat:
		if math.IsNaN(v.f) || math.IsInf(v.f, 0) {
			return def
		}
		return int64(v.f)
	}
	return def
}

// FloatOr returns the float payload, widening ints, or def.
func (v Value) FloatOr(def float64) float64 {
	switch v.kind {
	case KindFloat:
		return v.f
	case KindInt:
		return float64(v.i)
	}
	return def
}

// StringOr returns the string payload or def.
func (v Value) StringOr(def string) string {
	if s, ok := v.AsString(); ok {
		return s
	}
	return def
}
