package render

import (
	"github.com/wippyai/vm-bridge/payload"
)

// Props is a widget's string-keyed property map. Every accessor
// normalizes: a value may arrive as a tagged-union value or have been
// lifted from a raw primitive, the declared type is preferred, and any
// missing or malformed value yields the caller's default. Normalization
// never fails a render.
type Props struct {
	m payload.Value
}

// PropsFrom wraps a tagged map value. Non-map values produce empty props.
func PropsFrom(v payload.Value) Props {
	if v.Kind() != payload.KindMap {
		return Props{}
	}
	return Props{m: v}
}

// PropsOf builds props from raw Go values, lifting each through the
// tagged-union normalizer.
func PropsOf(raw map[string]any) Props {
	return Props{m: payload.From(raw)}
}

// String returns the string prop for key, or def.
func (p Props) String(key, def string) string {
	v, ok := p.m.GetKey(key)
	if !ok {
		return def
	}
	return v.StringOr(def)
}

// Int returns the integer prop for key, or def.
func (p Props) Int(key string, def int64) int64 {
	v, ok := p.m.GetKey(key)
	if !ok {
		return def
	}
	return v.IntOr(def)
}

// Float returns the float prop for key, or def.
func (p Props) Float(key string, def float64) float64 {
	v, ok := p.m.GetKey(key)
	if !ok {
		return def
	}
	return v.FloatOr(def)
}

// Bool returns the bool prop for key, or def.
func (p Props) Bool(key string, def bool) bool {
	v, ok := p.m.GetKey(key)
	if !ok {
		return def
	}
	return v.BoolOr(def)
}

// Value returns the raw tagged value for key.
func (p Props) Value(key string) (payload.Value, bool) {
	return p.m.GetKey(key)
}

// Keys returns prop names in insertion order.
func (p Props) Keys() []string {
	return p.m.Keys()
}
