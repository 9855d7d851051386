// Package lifecycle implements the state machine that tracks and validates
// host-driven lifecycle transitions for one VM session.
//
// The allowed graph is fixed:
//
//	Created → Started → Resumed ↔ Paused → Stopped → {Started, Destroyed}
//
// with Destroyed reachable from any non-terminal state. Destroyed is
// terminal. An invalid transition request is rejected with
// IllegalLifecycleTransition and leaves the state unchanged; the session
// stays in its last valid state.
package lifecycle
