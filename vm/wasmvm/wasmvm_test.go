package wasmvm

import (
	"context"
	"testing"
	"time"

	"github.com/wippyai/vm-bridge/handle"
	"github.com/wippyai/vm-bridge/lifecycle"
	"github.com/wippyai/vm-bridge/payload"
	"github.com/wippyai/vm-bridge/permission"
)

// emptyModule is the smallest valid wasm binary: magic plus version,
// no sections. It imports nothing and exports nothing.
var emptyModule = []byte{0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00}

type nopBridge struct{}

func (nopBridge) SessionID() string                          { return "s" }
func (nopBridge) Send(string, payload.Value) error           { return nil }
func (nopBridge) Render(payload.Value) error                 { return nil }
func (nopBridge) Release(handle.ID) error                    { return nil }
func (nopBridge) Deref(handle.ID) (any, bool, error)         { return nil, false, nil }
func (nopBridge) Subscribe(string, func(payload.Value)) error { return nil }

func (nopBridge) RequestPermission(name string) (*permission.Ticket, error) {
	c := permission.New(permission.PrompterFunc(func(uint64, string) {}), time.Minute, nil)
	return c.Request(name)
}

func (nopBridge) AllocHandle(handle.Kind, any) (handle.ID, error) { return 1, nil }

func TestNew_EmptyModuleRejected(t *testing.T) {
	if _, err := New(context.Background(), Config{}); err == nil {
		t.Fatal("expected error for missing module bytes")
	}
}

func TestVM_AttachMinimalGuest(t *testing.T) {
	v, err := New(context.Background(), Config{Module: emptyModule})
	if err != nil {
		t.Fatal(err)
	}
	defer v.Close(context.Background())

	// A guest without bridge exports still attaches; it just cannot
	// receive deliveries or lifecycle signals.
	if err := v.Attach(nopBridge{}); err != nil {
		t.Fatal(err)
	}

	v.OnLifecycle(lifecycle.Started)

	// Deliveries to an export-less guest are dropped, not fatal.
	v.post(func() { v.deliver("ping", payload.String("x")) })

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := v.Close(ctx); err != nil {
		t.Fatal(err)
	}

	select {
	case err, ok := <-v.Fault():
		if ok {
			t.Fatalf("clean shutdown produced fault %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("fault channel not closed on clean shutdown")
	}
}

func TestVM_AttachBadModuleErrors(t *testing.T) {
	v, err := New(context.Background(), Config{Module: []byte("not wasm")})
	if err != nil {
		t.Fatal(err)
	}
	defer v.Close(context.Background())

	if err := v.Attach(nopBridge{}); err == nil {
		t.Fatal("attach with a broken module should fail")
	}
}

func TestParseKind(t *testing.T) {
	tests := []struct {
		code uint32
		want handle.Kind
		ok   bool
	}{
		{0, handle.Local, true},
		{1, handle.Global, true},
		{2, handle.Weak, true},
		{3, 0, false},
	}
	for _, tt := range tests {
		got, err := parseKind(tt.code)
		if tt.ok && (err != nil || got != tt.want) {
			t.Errorf("parseKind(%d) = (%v, %v), want %v", tt.code, got, err, tt.want)
		}
		if !tt.ok && err == nil {
			t.Errorf("parseKind(%d) should fail", tt.code)
		}
	}
}
