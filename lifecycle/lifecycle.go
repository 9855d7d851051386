package lifecycle

import (
	"sync"

	"go.uber.org/zap"

	"github.com/wippyai/vm-bridge/errors"
)

// State is the host-driven application state propagated to the VM.
type State uint8

const (
	Created State = iota
	Started
	Resumed
	Paused
	Stopped
	Destroyed // terminal, irreversible
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case Created:
		return "Created"
	case Started:
		return "Started"
	case Resumed:
		return "Resumed"
	case Paused:
		return "Paused"
	case Stopped:
		return "Stopped"
	case Destroyed:
		return "Destroyed"
	}
	return "Invalid"
}

// transitions is the allowed edge set:
// Created→Started→Resumed↔Paused→Stopped→{Started, Destroyed},
// plus Destroyed from any non-terminal state.
var transitions = map[State][]State{
	Created: {Started, Destroyed},
	Started: {Resumed, Destroyed},
	Resumed: {Paused, Destroyed},
	Paused:  {Resumed, Stopped, Destroyed},
	Stopped: {Started, Destroyed}, // Started is the foreground return
	// Destroyed has no outgoing edges.
}

// CanTransition reports whether the edge from→to is in the allowed graph.
func CanTransition(from, to State) bool {
	for _, t := range transitions[from] {
		if t == to {
			return true
		}
	}
	return false
}

// Hook observes a successful transition. Hooks run while the transition
// lock is held, so a hook sees no concurrent state change.
type Hook func(from, to State)

// Machine tracks and validates one session's lifecycle state. Transitions
// are mutually exclusive: a single in-flight transition at a time.
type Machine struct {
	log   *zap.Logger
	hooks []Hook
	mu    sync.Mutex
	state State
}

// NewMachine creates a machine in the Created state.
func NewMachine(log *zap.Logger) *Machine {
	if log == nil {
		log = zap.NewNop()
	}
	return &Machine{log: log, state: Created}
}

// State returns the current state.
func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// OnTransition registers a hook invoked after every successful transition.
func (m *Machine) OnTransition(h Hook) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hooks = append(m.hooks, h)
}

// Transition moves to target if the edge exists. An invalid request
// returns IllegalLifecycleTransition and leaves the state unchanged.
func (m *Machine) Transition(target State) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	from := m.state
	if !CanTransition(from, target) {
		return errors.IllegalTransition("transition", from.String(), target.String())
	}

	m.state = target
	m.log.Debug("lifecycle transition",
		zap.String("from", from.String()),
		zap.String("to", target.String()),
	)
	for _, h := range m.hooks {
		h(from, target)
	}
	return nil
}
