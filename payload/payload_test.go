package payload

import (
	"encoding/json"
	"errors"
	"testing"

	bridgeerrors "github.com/wippyai/vm-bridge/errors"
)

func TestValue_Kinds(t *testing.T) {
	tests := []struct {
		name string
		v    Value
		kind Kind
	}{
		{"null", Null(), KindNull},
		{"zero value is null", Value{}, KindNull},
		{"bool", Bool(true), KindBool},
		{"int", Int(-42), KindInt},
		{"float", Float(3.5), KindFloat},
		{"string", String("ok"), KindString},
		{"list", List(Int(1), Int(2)), KindList},
		{"map", MapOf(Pair{"a", Int(1)}), KindMap},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.v.Kind() != tt.kind {
				t.Fatalf("Kind() = %v, want %v", tt.v.Kind(), tt.kind)
			}
		})
	}
}

func TestMap_InsertionOrder(t *testing.T) {
	m := MapOf(
		Pair{"zebra", Int(1)},
		Pair{"apple", Int(2)},
		Pair{"mango", Int(3)},
	)

	got := m.Keys()
	want := []string{"zebra", "apple", "mango"}
	if len(got) != len(want) {
		t.Fatalf("Keys() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Keys()[%d] = %q, want %q", i, got[i], want[i])
		}
	}

	// Overwriting keeps the original position.
	m.SetKey("apple", Int(9))
	got = m.Keys()
	if got[1] != "apple" {
		t.Fatalf("overwrite moved key: %v", got)
	}
	v, _ := m.GetKey("apple")
	if i, _ := v.AsInt(); i != 9 {
		t.Fatalf("overwrite lost value: %v", v)
	}
}

func TestClone_Isolation(t *testing.T) {
	orig := MapOf(
		Pair{"items", List(String("a"), String("b"))},
		Pair{"count", Int(2)},
	)

	clone := orig.Clone()
	clone.SetKey("count", Int(99))
	if items, ok := clone.GetKey("items"); ok {
		if list, ok := items.AsList(); ok {
			list[0] = String("mutated")
		}
	}

	cnt, _ := orig.GetKey("count")
	if i, _ := cnt.AsInt(); i != 2 {
		t.Error("clone mutation leaked into original map")
	}
	items, _ := orig.GetKey("items")
	list, _ := items.AsList()
	if s, _ := list[0].AsString(); s != "a" {
		t.Error("clone mutation leaked into original list")
	}
}

func TestEqual(t *testing.T) {
	a := MapOf(Pair{"x", Int(1)}, Pair{"y", List(Float(1.5), Null())})
	b := MapOf(Pair{"y", List(Float(1.5), Null())}, Pair{"x", Int(1)})

	// Key order has no semantic meaning.
	if !a.Equal(b) {
		t.Error("maps with same entries in different order should be equal")
	}

	c := MapOf(Pair{"x", Int(2)}, Pair{"y", List(Float(1.5), Null())})
	if a.Equal(c) {
		t.Error("maps with different values should not be equal")
	}
	if Int(1).Equal(Float(1)) {
		t.Error("int and float are distinct kinds")
	}
}

func TestWire_RoundTrip(t *testing.T) {
	tests := []struct {
		name string
		v    Value
	}{
		{"null", Null()},
		{"bool", Bool(true)},
		{"int64 max", Int(9223372036854775807)},
		{"int64 min", Int(-9223372036854775808)},
		{"float", Float(2.25)},
		{"string", String("camera-status")},
		{"empty list", List()},
		{"nested", MapOf(
			Pair{"name", String("ok")},
			Pair{"tags", List(Int(1), Int(2), Int(3))},
			Pair{"inner", MapOf(Pair{"deep", Bool(false)})},
		)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := json.Marshal(tt.v)
			if err != nil {
				t.Fatalf("marshal: %v", err)
			}
			var got Value
			if err := json.Unmarshal(data, &got); err != nil {
				t.Fatalf("unmarshal %s: %v", data, err)
			}
			if !got.Equal(tt.v) {
				t.Fatalf("round trip changed value: %s -> %+v", data, got)
			}
		})
	}
}

func TestWire_MapKeyOrderPreserved(t *testing.T) {
	v := MapOf(Pair{"z", Int(1)}, Pair{"a", Int(2)})
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatal(err)
	}

	var got Value
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatal(err)
	}
	keys := got.Keys()
	if keys[0] != "z" || keys[1] != "a" {
		t.Fatalf("wire lost key order: %v", keys)
	}
}

func TestWire_Format(t *testing.T) {
	data, err := json.Marshal(String("ok"))
	if err != nil {
		t.Fatal(err)
	}
	want := `{"type":"string","value":"ok"}`
	if string(data) != want {
		t.Fatalf("wire format = %s, want %s", data, want)
	}
}

func TestWire_UnknownDiscriminator(t *testing.T) {
	var v Value
	err := json.Unmarshal([]byte(`{"type":"tuple","value":[]}`), &v)
	if err == nil {
		t.Fatal("expected protocol error")
	}
	if !errors.Is(err, bridgeerrors.ProtocolError) {
		t.Fatalf("expected ProtocolError, got %v", err)
	}
}

func TestFrom_Normalization(t *testing.T) {
	tests := []struct {
		name string
		raw  any
		want Value
	}{
		{"nil", nil, Null()},
		{"bool", true, Bool(true)},
		{"int", 7, Int(7)},
		{"integral float becomes int", float64(7), Int(7)},
		{"fractional float stays float", 7.5, Float(7.5)},
		{"string", "x", String("x")},
		{"tagged passthrough", Int(3), Int(3)},
		{"slice", []any{1, "a"}, List(Int(1), String("a"))},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := From(tt.raw)
			if !got.Equal(tt.want) {
				t.Fatalf("From(%v) = %+v, want %+v", tt.raw, got, tt.want)
			}
		})
	}
}

func TestExport_RoundTrip(t *testing.T) {
	v := MapOf(
		Pair{Key: "name", Val: String("cam")},
		Pair{Key: "count", Val: Int(2)},
		Pair{Key: "ratio", Val: Float(0.5)},
		Pair{Key: "tags", Val: List(String("a"), Null())},
	)

	raw := v.Export()
	m, ok := raw.(map[string]any)
	if !ok {
		t.Fatalf("Export() = %T, want map[string]any", raw)
	}
	if m["name"] != "cam" || m["count"] != int64(2) || m["ratio"] != 0.5 {
		t.Fatalf("exported map = %#v", m)
	}

	if got := From(raw); !got.Equal(v) {
		t.Fatalf("From(Export()) = %+v, want %+v", got, v)
	}
}

func TestOrAccessors(t *testing.T) {
	if got := String("hi").StringOr("def"); got != "hi" {
		t.Errorf("StringOr on string = %q", got)
	}
	if got := Int(5).StringOr("def"); got != "def" {
		t.Errorf("StringOr on int = %q, want default", got)
	}
	if got := Float(2.9).IntOr(0); got != 2 {
		t.Errorf("IntOr on float = %d, want 2", got)
	}
	if got := Int(3).FloatOr(0); got != 3.0 {
		t.Errorf("FloatOr on int = %v, want 3", got)
	}
	if got := Null().BoolOr(true); got != true {
		t.Errorf("BoolOr on null = %v, want default", got)
	}
}
