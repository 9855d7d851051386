package handle

import (
	"github.com/wippyai/vm-bridge/errors"
)

// Scope tracks the Local handles of one bridge call. Closing the scope
// releases every handle allocated through it; a handle dereferenced after
// its originating call returns yields a ReferenceError.
type Scope struct {
	table  *Table
	locals []ID
	closed bool
}

// OpenScope starts a Local handle scope for one bridge call.
func (t *Table) OpenScope() *Scope {
	return &Scope{table: t}
}

// Alloc registers ref as a Local handle bound to this scope.
func (s *Scope) Alloc(ref any) (ID, error) {
	t := s.table
	t.mu.Lock()
	defer t.mu.Unlock()

	if s.closed {
		return 0, errors.Closed(errors.ComponentHandle, "alloc_local", "scope")
	}
	if t.closed {
		return 0, errors.Closed(errors.ComponentHandle, "alloc_local", "")
	}

	h := t.alloc(Local, &referent{ref: ref, holders: 1, alive: true})
	s.locals = append(s.locals, h)
	return h, nil
}

// Close releases every Local handle in the scope. Idempotent.
func (s *Scope) Close() {
	t := s.table
	t.mu.Lock()
	defer t.mu.Unlock()

	if s.closed {
		return
	}
	s.closed = true

	for _, h := range s.locals {
		// Already-released entries (table close raced us) are fine here.
		_ = t.release(h, "scope_close", true)
	}
	s.locals = nil
}

// WithScope runs fn inside a fresh Local scope and guarantees the scope
// closes however fn exits, including panic.
func (t *Table) WithScope(fn func(*Scope) error) error {
	s := t.OpenScope()
	defer s.Close()
	return fn(s)
}
