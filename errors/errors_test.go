package errors

import (
	"errors"
	"strings"
	"testing"
)

func TestError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *Error
		contains []string
	}{
		{
			name: "full error",
			err: &Error{
				Component: ComponentHandle,
				Kind:      KindReference,
				Op:        "deref",
				ID:        "handle 42",
				Detail:    "handle released or unknown",
			},
			contains: []string{"[handle]", "reference", "deref", "handle 42", "released"},
		},
		{
			name: "minimal error",
			err: &Error{
				Component: ComponentBus,
				Kind:      KindProtocol,
			},
			contains: []string{"[bus]", "protocol"},
		},
		{
			name: "error with cause",
			err: &Error{
				Component: ComponentVM,
				Kind:      KindFatal,
				Detail:    "guest trapped",
				Cause:     errors.New("unreachable executed"),
			},
			contains: []string{"[vm]", "fatal", "guest trapped", "caused by", "unreachable executed"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := tt.err.Error()
			for _, s := range tt.contains {
				if !strings.Contains(msg, s) {
					t.Errorf("error message %q does not contain %q", msg, s)
				}
			}
		})
	}
}

func TestError_Unwrap(t *testing.T) {
	cause := errors.New("root cause")
	err := Wrap(ComponentSession, KindFatal, cause, "destroy", "vm fault")
	if !errors.Is(err, cause) {
		t.Error("errors.Is should find the wrapped cause")
	}
	if errors.Unwrap(err) != cause {
		t.Error("Unwrap should return the cause")
	}
}

func TestError_Is_ComponentAndKind(t *testing.T) {
	a := FreedHandle("deref", 7)
	b := FreedHandle("get", 9)
	if !errors.Is(a, b) {
		t.Error("same component+kind should match")
	}

	c := Protocol(ComponentBus, "send", "bad payload")
	if errors.Is(a, c) {
		t.Error("different kinds should not match")
	}
}

func TestSentinels(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		sentinel error
	}{
		{"lifecycle", IllegalTransition("transition", "Created", "Paused"), IllegalLifecycleTransition},
		{"duplicate resolution", ResolvedTwice("resolve", 3, "CAMERA"), DuplicateResolution},
		{"double release", ReleasedTwice("release", 12), DoubleRelease},
		{"reference", FreedHandle("deref", 12), ReferenceError},
		{"timeout", Timeout(ComponentPermission, "request", "CAMERA"), TimeoutError},
		{"protocol", Protocol(ComponentBus, "send", "no discriminator"), ProtocolError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if !errors.Is(tt.err, tt.sentinel) {
				t.Errorf("%v should match its sentinel", tt.err)
			}
		})
	}

	// Sentinels are kind-scoped, not component-scoped
	busTimeout := Timeout(ComponentBus, "send", "events")
	if !errors.Is(busTimeout, TimeoutError) {
		t.Error("sentinel should match regardless of component")
	}
}

func TestBuilder(t *testing.T) {
	err := New(ComponentPermission, KindTimeout).
		Op("request").
		ID("CAMERA").
		Detail("no resolution within %s", "30s").
		Build()

	if err.Component != ComponentPermission || err.Kind != KindTimeout {
		t.Fatalf("builder lost component/kind: %+v", err)
	}
	if err.Op != "request" || err.ID != "CAMERA" {
		t.Fatalf("builder lost op/id: %+v", err)
	}
	if !strings.Contains(err.Detail, "30s") {
		t.Fatalf("builder did not format detail: %q", err.Detail)
	}
}
