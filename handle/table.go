package handle

import (
	"reflect"
	"sync"

	"go.uber.org/zap"

	"github.com/wippyai/vm-bridge/errors"
)

// Table owns every foreign-object handle for one session. All operations
// are safe for concurrent use; tables of different sessions share nothing.
type Table struct {
	entries map[ID]*entry
	log     *zap.Logger
	next    ID
	mu      sync.Mutex
	closed  bool
}

// NewTable creates an empty table. A nil logger means no diagnostics.
func NewTable(log *zap.Logger) *Table {
	if log == nil {
		log = zap.NewNop()
	}
	return &Table{
		entries: make(map[ID]*entry, 16),
		log:     log,
	}
}

// AllocGlobal registers ref and returns a handle valid until Release or
// table close.
func (t *Table) AllocGlobal(ref any) (ID, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return 0, errors.Closed(errors.ComponentHandle, "alloc_global", "")
	}
	return t.alloc(Global, &referent{ref: ref, holders: 1, alive: true}), nil
}

// AllocWeak registers a weak handle for ref. If a live strong handle
// already tracks an identical ref, the weak handle shares its referent and
// resolves to absent as soon as the last strong handle releases it.
// Otherwise the referent's lifetime is governed outside the table and the
// handle stays resolvable until the table closes.
func (t *Table) AllocWeak(ref any) (ID, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return 0, errors.Closed(errors.ComponentHandle, "alloc_weak", "")
	}

	if r := t.findLive(ref); r != nil {
		return t.alloc(Weak, r), nil
	}
	return t.alloc(Weak, &referent{ref: ref, alive: true}), nil
}

// Get dereferences a handle. For Local and Global handles a released or
// unknown ID is a ReferenceError. For Weak handles whose referent is gone,
// Get reports absent without an error.
func (t *Table) Get(h ID) (ref any, present bool, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	e, ok := t.entries[h]
	if !ok || e.released {
		return nil, false, errors.FreedHandle("get", uint64(h))
	}
	if !e.r.alive {
		if e.kind == Weak {
			return nil, false, nil
		}
		return nil, false, errors.FreedHandle("get", uint64(h))
	}
	return e.r.ref, true, nil
}

// Kind returns the kind of a live handle.
func (t *Table) Kind(h ID) (Kind, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	e, ok := t.entries[h]
	if !ok || e.released {
		return 0, errors.FreedHandle("kind", uint64(h))
	}
	return e.kind, nil
}

// Retain increments the reference count of a Local or Global handle.
func (t *Table) Retain(h ID) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	e, ok := t.entries[h]
	if !ok || e.released || !e.r.alive {
		return errors.FreedHandle("retain", uint64(h))
	}
	if e.kind == Weak {
		return errors.InvalidInput(errors.ComponentHandle, "retain", "weak handles carry no reference count")
	}
	e.refs++
	return nil
}

// Release drops one reference to a handle. The handle dies when its count
// reaches zero; releasing a dead handle returns DoubleRelease and changes
// nothing. When a referent's last holding entry goes, it is reclaimed and
// weak handles on it start resolving absent.
func (t *Table) Release(h ID) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.release(h, "release", false)
}

func (t *Table) release(h ID, op string, force bool) error {
	e, ok := t.entries[h]
	if !ok {
		return errors.FreedHandle(op, uint64(h))
	}
	if e.released {
		return errors.ReleasedTwice(op, uint64(h))
	}

	if e.kind == Weak {
		e.released = true
		return nil
	}

	if force {
		e.refs = 0
	} else {
		e.refs--
	}
	if e.refs > 0 {
		return nil
	}
	e.released = true

	e.r.holders--
	if e.r.holders <= 0 {
		e.r.alive = false
		e.r.ref = nil
	}
	return nil
}

// Outstanding returns the number of live Global handles, used by leak
// diagnostics.
func (t *Table) Outstanding() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	n := 0
	for _, e := range t.entries {
		if e.kind == Global && !e.released {
			n++
		}
	}
	return n
}

// Close force-releases every outstanding Global handle, logging one leak
// diagnostic per handle, and stops accepting operations. It returns the
// leak count. Close is idempotent.
func (t *Table) Close() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return 0
	}
	t.closed = true

	leaks := 0
	for h, e := range t.entries {
		if e.released {
			continue
		}
		if e.kind == Global {
			leaks++
			t.log.Warn("handle leaked at session destruction",
				zap.Uint64("handle", uint64(h)),
				zap.String("kind", e.kind.String()),
			)
		}
		_ = t.release(h, "close", true)
	}
	return leaks
}

// alloc inserts an entry under the table lock.
func (t *Table) alloc(kind Kind, r *referent) ID {
	t.next++
	e := &entry{kind: kind, r: r}
	if kind != Weak {
		e.refs = 1
	}
	t.entries[t.next] = e
	return t.next
}

// findLive returns a live strong referent holding an identical ref, or nil.
// Only comparable refs participate; an uncomparable ref always gets its own
// referent.
func (t *Table) findLive(ref any) *referent {
	if ref == nil {
		return nil
	}
	rt := reflect.TypeOf(ref)
	if rt == nil || !rt.Comparable() {
		return nil
	}
	for _, e := range t.entries {
		if e.kind == Weak || e.released || !e.r.alive {
			continue
		}
		er := e.r.ref
		if er == nil || reflect.TypeOf(er) != rt {
			continue
		}
		if er == ref {
			return e.r
		}
	}
	return nil
}
