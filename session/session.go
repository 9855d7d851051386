package session

import (
	"context"
	"sync"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/wippyai/vm-bridge/bus"
	"github.com/wippyai/vm-bridge/errors"
	"github.com/wippyai/vm-bridge/handle"
	"github.com/wippyai/vm-bridge/lifecycle"
	"github.com/wippyai/vm-bridge/payload"
	"github.com/wippyai/vm-bridge/permission"
	"github.com/wippyai/vm-bridge/render"
	"github.com/wippyai/vm-bridge/vm"
)

var _ vm.Bridge = (*Session)(nil)

// Config parameterizes one session.
type Config struct {
	// VM creates the embedded machine. Required.
	VM vm.Factory

	// Host is the injected host collaborator surface. Required.
	Host Capabilities

	// PermissionTimeout bounds unresolved permission requests. Zero means
	// the 30 second default; negative disables the deadline.
	PermissionTimeout time.Duration

	// Logger receives session diagnostics. Nil means none.
	Logger *zap.Logger
}

// Session is one VM instance plus its owned handle table and lifecycle
// state. Sessions are isolated: no mutable state crosses session
// boundaries, and operations on different sessions never contend.
type Session struct {
	id      string
	log     *zap.Logger
	mgr     *Manager
	host    Capabilities
	machine *lifecycle.Machine
	handles *handle.Table
	perms   *permission.Correlator
	bus     *bus.Bus
	vm      vm.Instance

	mu        sync.Mutex // guards calls and lastUI
	calls     []*handle.Scope
	lastUI    UIHandle
	destroyed chan struct{}
	once      sync.Once
	teardown  error
}

// ID returns the session id.
func (s *Session) ID() string { return s.id }

// SessionID implements vm.Bridge.
func (s *Session) SessionID() string { return s.id }

// State returns the current lifecycle state.
func (s *Session) State() lifecycle.State { return s.machine.State() }

// Handles exposes the session's handle table.
func (s *Session) Handles() *handle.Table { return s.handles }

// Destroyed is closed once teardown completes.
func (s *Session) Destroyed() <-chan struct{} { return s.destroyed }

func (s *Session) isDestroyed() bool {
	select {
	case <-s.destroyed:
		return true
	default:
		return false
	}
}

// Transition validates and applies a host-driven lifecycle change. An
// edge outside the allowed graph returns IllegalLifecycleTransition and
// leaves the session in its last valid state. Destroyed is legal from any
// non-terminal state and delegates to the owning manager's full teardown
// path, same as Manager.Destroy.
func (s *Session) Transition(target lifecycle.State) error {
	if s.isDestroyed() {
		return errors.Closed(errors.ComponentSession, "transition", s.id)
	}
	if target == lifecycle.Destroyed {
		return s.mgr.Destroy(context.Background(), s.id)
	}
	return s.machine.Transition(target)
}

// Send implements vm.Bridge: a VM-originated channel publish.
func (s *Session) Send(channel string, v payload.Value) error {
	if s.isDestroyed() {
		return errors.Closed(errors.ComponentSession, "send", s.id)
	}
	return s.bus.Send(channel, bus.FromVM, v)
}

// Deliver publishes a host-originated payload toward the VM's channel
// callbacks.
func (s *Session) Deliver(channel string, v payload.Value) error {
	if s.isDestroyed() {
		return errors.Closed(errors.ComponentSession, "deliver", s.id)
	}
	return s.bus.Send(channel, bus.FromHost, v)
}

// Subscribe implements vm.Bridge: registers a VM callback for
// host-originated messages on a channel. The registration is owned by the
// session and dies with it.
func (s *Session) Subscribe(channel string, fn func(payload.Value)) error {
	if s.isDestroyed() {
		return errors.Closed(errors.ComponentSession, "register_channel", s.id)
	}
	_, err := s.bus.RegisterFor(s.id, channel, bus.Inbound, bus.SubscriberFunc(func(m bus.Message) {
		fn(m.Payload)
	}))
	return err
}

// RequestPermission implements vm.Bridge: starts an async permission
// round trip. The caller suspends on the ticket, not on this call.
func (s *Session) RequestPermission(name string) (*permission.Ticket, error) {
	return s.perms.Request(name)
}

// ResolvePermission completes a pending request. Exactly once per id: a
// second resolution returns DuplicateResolution and the first outcome
// stands.
func (s *Session) ResolvePermission(requestID uint64, granted bool) error {
	return s.perms.Resolve(requestID, granted)
}

// WithCall brackets one bridge call: Local handles allocated inside are
// released when fn returns, however it exits.
func (s *Session) WithCall(fn func() error) error {
	scope := s.handles.OpenScope()
	s.mu.Lock()
	s.calls = append(s.calls, scope)
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		for i, sc := range s.calls {
			if sc == scope {
				s.calls = append(s.calls[:i], s.calls[i+1:]...)
				break
			}
		}
		s.mu.Unlock()
		scope.Close()
	}()

	return fn()
}

// AllocHandle implements vm.Bridge. Local allocations land in the
// innermost active bridge call's scope.
func (s *Session) AllocHandle(kind handle.Kind, ref any) (handle.ID, error) {
	switch kind {
	case handle.Global:
		return s.handles.AllocGlobal(ref)
	case handle.Weak:
		return s.handles.AllocWeak(ref)
	case handle.Local:
		s.mu.Lock()
		defer s.mu.Unlock()
		if len(s.calls) == 0 {
			return 0, errors.InvalidInput(errors.ComponentHandle, "alloc_handle",
				"local handles require an active bridge call")
		}
		return s.calls[len(s.calls)-1].Alloc(ref)
	}
	return 0, errors.InvalidInput(errors.ComponentHandle, "alloc_handle", "unknown handle kind")
}

// Deref implements vm.Bridge.
func (s *Session) Deref(h handle.ID) (any, bool, error) {
	return s.handles.Get(h)
}

// Release implements vm.Bridge.
func (s *Session) Release(h handle.ID) error {
	return s.handles.Release(h)
}

// Render implements vm.Bridge: decodes the snapshot and posts the
// wholesale replacement onto the host thread. It returns once the render
// is queued; the VM never waits for the host loop.
func (s *Session) Render(tree payload.Value) error {
	if s.isDestroyed() {
		return errors.Closed(errors.ComponentSession, "render", s.id)
	}

	root := render.NodeFromPayload(tree)
	s.host.RunOnHostThread(func() {
		ui, err := s.host.RenderWidgetTree(root)
		if err != nil {
			s.log.Warn("host render failed", zap.Error(err))
			return
		}
		s.mu.Lock()
		s.lastUI = ui
		s.mu.Unlock()
	})
	return nil
}

// LastUI returns the host handle of the most recent completed render.
func (s *Session) LastUI() UIHandle {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastUI
}

// destroy runs the teardown sequence exactly once: cancel pending
// permission requests, discard queued channel messages, force-release
// remaining handles, mark the state Destroyed, close the VM.
func (s *Session) destroy(ctx context.Context) error {
	s.once.Do(func() {
		s.perms.CancelAll()
		s.bus.DropOwner(s.id)

		if leaks := s.handles.Close(); leaks > 0 {
			s.log.Warn("session destroyed with leaked handles", zap.Int("leaks", leaks))
		}

		// Every non-terminal state has an edge to Destroyed, so this only
		// fails if a racing destroy already won, which Once rules out.
		if err := s.machine.Transition(lifecycle.Destroyed); err != nil {
			s.teardown = multierr.Append(s.teardown, err)
		}

		if s.vm != nil {
			if err := s.vm.Close(ctx); err != nil {
				s.teardown = multierr.Append(s.teardown, err)
			}
		}

		close(s.destroyed)
		s.log.Info("session destroyed")
	})
	return s.teardown
}

// watchFaults tears the session down when the VM reports a fatal fault.
func (s *Session) watchFaults(m *Manager) {
	err, ok := <-s.vm.Fault()
	if !ok || err == nil {
		return
	}
	s.log.Error("fatal vm fault, tearing down session", zap.Error(err))
	_ = m.Destroy(context.Background(), s.id)
}
