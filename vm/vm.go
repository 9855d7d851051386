package vm

import (
	"context"

	"github.com/wippyai/vm-bridge/handle"
	"github.com/wippyai/vm-bridge/lifecycle"
	"github.com/wippyai/vm-bridge/payload"
	"github.com/wippyai/vm-bridge/permission"
)

// Bridge is the surface the session exposes to a VM instance. Every call
// crossing toward the host returns immediately (permission requests hand
// back a ticket, renders are posted to the host thread) so the VM's
// scheduling context never blocks on the host's.
type Bridge interface {
	// SessionID identifies the owning session.
	SessionID() string

	// Send publishes a VM-originated payload on a channel. It returns once
	// the payload is enqueued; delivery happens on each subscriber's own
	// goroutine.
	Send(channel string, v payload.Value) error

	// RequestPermission starts an asynchronous permission round trip and
	// returns the pending ticket.
	RequestPermission(name string) (*permission.Ticket, error)

	// AllocHandle registers a foreign object. Local allocations require an
	// active bridge call (see WithCall); Global and Weak work anywhere.
	AllocHandle(kind handle.Kind, ref any) (handle.ID, error)

	// Deref resolves a handle. Weak handles report absent instead of
	// erroring once the referent is gone.
	Deref(h handle.ID) (ref any, present bool, err error)

	// Release drops a handle reference.
	Release(h handle.ID) error

	// Render pushes one complete replacement widget tree in tagged form.
	// The host renders it wholesale on its own thread.
	Render(tree payload.Value) error

	// Subscribe registers a VM callback for host-originated messages on a
	// channel. The callback runs on the subscription's delivery goroutine;
	// adapters re-post into their own loop as needed.
	Subscribe(channel string, fn func(payload.Value)) error
}

// Instance is one embedded VM attached to a session. The bridge drives it
// with lifecycle signals and tears it down with Close; the instance
// reports unrecoverable faults through Fault, which the session answers
// with full teardown.
type Instance interface {
	// Attach hands the instance its bridge surface. Called exactly once,
	// before any lifecycle signal.
	Attach(b Bridge) error

	// OnLifecycle delivers a host-driven state change. Entering Paused
	// suspends background timers; Resumed lifts the suspension.
	OnLifecycle(s lifecycle.State)

	// Close releases the VM. Called at session destruction; must be safe
	// to call after a fault.
	Close(ctx context.Context) error

	// Fault yields at most one fatal VM error. A closed channel without a
	// value means a clean shutdown.
	Fault() <-chan error
}

// Factory creates the VM instance for a new session.
type Factory func(ctx context.Context) (Instance, error)
