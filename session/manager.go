package session

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/wippyai/vm-bridge/bus"
	"github.com/wippyai/vm-bridge/errors"
	"github.com/wippyai/vm-bridge/handle"
	"github.com/wippyai/vm-bridge/lifecycle"
	"github.com/wippyai/vm-bridge/permission"
)

// Manager owns every live session and the shared channel bus. Sessions
// are created on demand, destroyed once, and isolated from each other;
// the only state they share is the bus, where each session's
// registrations carry its own owner tag.
type Manager struct {
	log      *zap.Logger
	bus      *bus.Bus
	sessions map[string]*Session
	mu       sync.Mutex
}

// NewManager creates a manager over a message bus. A nil bus gets a fresh
// private one.
func NewManager(b *bus.Bus, log *zap.Logger) *Manager {
	if log == nil {
		log = zap.NewNop()
	}
	if b == nil {
		b = bus.New(log)
	}
	return &Manager{
		log:      log,
		bus:      b,
		sessions: make(map[string]*Session),
	}
}

// Bus returns the shared channel bus.
func (m *Manager) Bus() *bus.Bus { return m.bus }

// Create allocates a VM instance, a fresh handle table, and a lifecycle
// machine in the Created state, wires them together, and returns the new
// session.
func (m *Manager) Create(ctx context.Context, cfg Config) (*Session, error) {
	if cfg.VM == nil {
		return nil, errors.InvalidInput(errors.ComponentSession, "create_session", "nil VM factory")
	}
	if cfg.Host == nil {
		return nil, errors.InvalidInput(errors.ComponentSession, "create_session", "nil host capabilities")
	}
	log := cfg.Logger
	if log == nil {
		log = m.log
	}

	id := uuid.NewString()
	log = log.With(zap.String("session_id", id))

	s := &Session{
		id:        id,
		log:       log,
		mgr:       m,
		host:      cfg.Host,
		machine:   lifecycle.NewMachine(log),
		handles:   handle.NewTable(log),
		bus:       m.bus,
		destroyed: make(chan struct{}),
	}

	// Prompts cross into the host loop; the correlator already decouples
	// them from the requester, RunOnHostThread keeps them off bridge
	// goroutines too.
	s.perms = permission.New(permission.PrompterFunc(func(requestID uint64, name string) {
		cfg.Host.RunOnHostThread(func() {
			cfg.Host.PresentPermissionPrompt(requestID, name)
		})
	}), cfg.PermissionTimeout, log)

	// Lifecycle changes propagate to both collaborators. The hook runs
	// under the transition lock, keeping transitions mutually exclusive.
	s.machine.OnTransition(func(from, to lifecycle.State) {
		if s.vm != nil {
			s.vm.OnLifecycle(to)
		}
		cfg.Host.DeliverLifecycleTransition(to)
	})

	inst, err := cfg.VM(ctx)
	if err != nil {
		return nil, errors.Wrap(errors.ComponentSession, errors.KindInvalidInput, err, "create_session", "vm factory")
	}
	if err := inst.Attach(s); err != nil {
		_ = inst.Close(ctx)
		return nil, errors.Wrap(errors.ComponentVM, errors.KindInvalidInput, err, "create_session", "attach bridge")
	}
	s.vm = inst

	m.mu.Lock()
	m.sessions[id] = s
	m.mu.Unlock()

	go s.watchFaults(m)

	log.Info("session created")
	return s, nil
}

// Get returns a live session by id.
func (m *Manager) Get(id string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	return s, ok
}

// Destroy tears a session down. Idempotent: the first call cancels
// pending permission requests, discards queued channel messages,
// force-releases remaining handles, and marks the state Destroyed;
// subsequent calls, and calls for ids that never existed or are already
// gone, are no-ops.
func (m *Manager) Destroy(ctx context.Context, id string) error {
	m.mu.Lock()
	s, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()

	if !ok {
		return nil
	}
	return s.destroy(ctx)
}

// Len returns the number of live sessions.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Close destroys every live session and the bus.
func (m *Manager) Close(ctx context.Context) error {
	m.mu.Lock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()

	var err error
	for _, s := range sessions {
		err = multierr.Append(err, s.destroy(ctx))
	}
	m.bus.Close()
	return err
}
