package handle

import (
	"errors"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	bridgeerrors "github.com/wippyai/vm-bridge/errors"
)

func TestTable_GlobalLifetime(t *testing.T) {
	table := NewTable(nil)

	h, err := table.AllocGlobal("camera-device")
	if err != nil {
		t.Fatal(err)
	}
	if h == 0 {
		t.Fatal("expected non-zero handle")
	}

	ref, present, err := table.Get(h)
	if err != nil || !present {
		t.Fatalf("Get = (%v, %v, %v)", ref, present, err)
	}
	if ref != "camera-device" {
		t.Fatalf("Get returned %v", ref)
	}

	if err := table.Release(h); err != nil {
		t.Fatalf("release: %v", err)
	}

	if _, _, err := table.Get(h); !errors.Is(err, bridgeerrors.ReferenceError) {
		t.Fatalf("deref after release should be ReferenceError, got %v", err)
	}
}

func TestTable_DoubleRelease(t *testing.T) {
	table := NewTable(nil)
	h, _ := table.AllocGlobal(1)

	if err := table.Release(h); err != nil {
		t.Fatalf("first release: %v", err)
	}
	err := table.Release(h)
	if !errors.Is(err, bridgeerrors.DoubleRelease) {
		t.Fatalf("second release should be DoubleRelease, got %v", err)
	}
}

func TestTable_RetainRelease(t *testing.T) {
	table := NewTable(nil)
	h, _ := table.AllocGlobal("obj")

	if err := table.Retain(h); err != nil {
		t.Fatal(err)
	}
	// Two references now; one release keeps the handle alive.
	if err := table.Release(h); err != nil {
		t.Fatal(err)
	}
	if _, present, err := table.Get(h); err != nil || !present {
		t.Fatalf("retained handle died early: (%v, %v)", present, err)
	}

	if err := table.Release(h); err != nil {
		t.Fatal(err)
	}
	if _, _, err := table.Get(h); err == nil {
		t.Fatal("released handle must not dereference")
	}

	// Count never goes negative: a third release is DoubleRelease.
	if err := table.Release(h); !errors.Is(err, bridgeerrors.DoubleRelease) {
		t.Fatalf("expected DoubleRelease, got %v", err)
	}
}

func TestTable_WeakSharesStrongReferent(t *testing.T) {
	table := NewTable(nil)
	ref := "shared-object"

	strong, _ := table.AllocGlobal(ref)
	weak, err := table.AllocWeak(ref)
	if err != nil {
		t.Fatal(err)
	}

	if _, present, err := table.Get(weak); err != nil || !present {
		t.Fatalf("weak deref while strong alive = (%v, %v)", present, err)
	}

	if err := table.Release(strong); err != nil {
		t.Fatal(err)
	}

	// Referent reclaimed: weak resolves absent, not an error.
	ref2, present, err := table.Get(weak)
	if err != nil {
		t.Fatalf("weak deref after reclamation errored: %v", err)
	}
	if present || ref2 != nil {
		t.Fatalf("weak deref should be absent, got (%v, %v)", ref2, present)
	}
}

func TestTable_WeakNeverExtendsLifetime(t *testing.T) {
	table := NewTable(nil)
	strong, _ := table.AllocGlobal("obj")
	weak, _ := table.AllocWeak("obj")

	if err := table.Retain(weak); err == nil {
		t.Fatal("retain on weak handle should fail")
	}

	table.Release(strong)
	if _, present, _ := table.Get(weak); present {
		t.Fatal("weak handle kept referent alive")
	}
}

func TestTable_CloseReportsLeaks(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	table := NewTable(zap.New(core))

	table.AllocGlobal("leak-1")
	table.AllocGlobal("leak-2")
	released, _ := table.AllocGlobal("released")
	table.Release(released)

	leaks := table.Close()
	if leaks != 2 {
		t.Fatalf("Close reported %d leaks, want 2", leaks)
	}
	if got := logs.FilterMessage("handle leaked at session destruction").Len(); got != 2 {
		t.Fatalf("expected 2 leak diagnostics, got %d", got)
	}

	// Idempotent.
	if again := table.Close(); again != 0 {
		t.Fatalf("second Close reported %d leaks", again)
	}

	if _, err := table.AllocGlobal("after-close"); err == nil {
		t.Fatal("alloc on closed table should fail")
	}
}

func TestTable_IDsIndependentAcrossTables(t *testing.T) {
	a := NewTable(nil)
	h1, _ := a.AllocGlobal("x")
	h2, _ := a.AllocGlobal("y")
	a.Close()

	b := NewTable(nil)
	h3, _ := b.AllocGlobal("z")

	// A fresh table's ids start from its own counter; the destroyed
	// table's ids stay dead.
	if h3 == 0 {
		t.Fatal("fresh table failed to allocate")
	}
	if _, _, err := a.Get(h1); err == nil {
		t.Fatal("destroyed table handle must not resolve")
	}
	if ref, _, err := b.Get(h3); err != nil || ref != "z" {
		t.Fatalf("fresh table handle broken: (%v, %v)", ref, err)
	}
	_ = h2
}

func TestTable_IDsNeverReused(t *testing.T) {
	table := NewTable(nil)
	h1, _ := table.AllocGlobal("a")
	table.Release(h1)
	h2, _ := table.AllocGlobal("b")

	if h1 == h2 {
		t.Fatal("released id was reused")
	}
	if _, _, err := table.Get(h1); err == nil {
		t.Fatal("stale id resolved after reuse")
	}
}
