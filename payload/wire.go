package payload

import (
	"bytes"
	"encoding/json"
	"strconv"

	orderedmap "github.com/wk8/go-ordered-map/v2"

	"github.com/wippyai/vm-bridge/errors"
)

// wireValue is the on-the-wire envelope: a type discriminator in
// {null, bool, int, float, string, list, map} and a correspondingly
// typed value. Map key order survives the round trip.
type wireValue struct {
	Type  string          `json:"type"`
	Value json.RawMessage `json:"value,omitempty"`
}

// MarshalJSON encodes the value in the canonical wire format.
func (v Value) MarshalJSON() ([]byte, error) {
	w := wireValue{Type: v.kind.String()}

	switch v.kind {
	case KindNull:
		// no value field
	case KindBool:
		w.Value = json.RawMessage(strconv.AppendBool(nil, v.b))
	case KindInt:
		w.Value = json.RawMessage(strconv.AppendInt(nil, v.i, 10))
	case KindFloat:
		raw, err := json.Marshal(v.f)
		if err != nil {
			return nil, errors.Wrap(errors.ComponentBus, errors.KindProtocol, err, "marshal", "float not representable")
		}
		w.Value = raw
	case KindString:
		raw, err := json.Marshal(v.s)
		if err != nil {
			return nil, err
		}
		w.Value = raw
	case KindList:
		items := v.list
		if items == nil {
			items = []Value{}
		}
		raw, err := json.Marshal(items)
		if err != nil {
			return nil, err
		}
		w.Value = raw
	case KindMap:
		m := v.m
		if m == nil {
			m = orderedmap.New[string, Value]()
		}
		raw, err := json.Marshal(m)
		if err != nil {
			return nil, err
		}
		w.Value = raw
	default:
		return nil, errors.Protocol(errors.ComponentBus, "marshal", "invalid payload kind")
	}

	return json.Marshal(w)
}

// UnmarshalJSON decodes the canonical wire format. An unknown or missing
// type discriminator is a protocol error, not a panic.
func (v *Value) UnmarshalJSON(data []byte) error {
	var w wireValue
	if err := json.Unmarshal(data, &w); err != nil {
		return errors.Wrap(errors.ComponentBus, errors.KindProtocol, err, "unmarshal", "malformed payload envelope")
	}

	switch w.Type {
	case "null", "":
		*v = Null()
	case "bool":
		var b bool
		if err := json.Unmarshal(w.Value, &b); err != nil {
			return errors.Wrap(errors.ComponentBus, errors.KindProtocol, err, "unmarshal", "bool value")
		}
		*v = Bool(b)
	case "int":
		// Decode through the raw token so 64-bit ints keep full precision.
		i, err := strconv.ParseInt(string(bytes.TrimSpace(w.Value)), 10, 64)
		if err != nil {
			return errors.Wrap(errors.ComponentBus, errors.KindProtocol, err, "unmarshal", "int value")
		}
		*v = Int(i)
	case "float":
		var f float64
		if err := json.Unmarshal(w.Value, &f); err != nil {
			return errors.Wrap(errors.ComponentBus, errors.KindProtocol, err, "unmarshal", "float value")
		}
		*v = Float(f)
	case "string":
		var s string
		if err := json.Unmarshal(w.Value, &s); err != nil {
			return errors.Wrap(errors.ComponentBus, errors.KindProtocol, err, "unmarshal", "string value")
		}
		*v = String(s)
	case "list":
		var items []Value
		if err := json.Unmarshal(w.Value, &items); err != nil {
			return errors.Wrap(errors.ComponentBus, errors.KindProtocol, err, "unmarshal", "list value")
		}
		*v = Value{kind: KindList, list: items}
	case "map":
		m := orderedmap.New[string, Value]()
		if err := json.Unmarshal(w.Value, m); err != nil {
			return errors.Wrap(errors.ComponentBus, errors.KindProtocol, err, "unmarshal", "map value")
		}
		*v = Value{kind: KindMap, m: m}
	default:
		return errors.New(errors.ComponentBus, errors.KindProtocol).
			Op("unmarshal").
			Detail("unknown type discriminator %q", w.Type).
			Build()
	}

	return nil
}
