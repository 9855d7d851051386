package session

import (
	"github.com/wippyai/vm-bridge/lifecycle"
	"github.com/wippyai/vm-bridge/render"
)

// UIHandle is the host's opaque reference to a rendered tree.
type UIHandle any

// Capabilities is the host collaborator surface the bridge consumes. The
// host implements it once and injects it at session creation; the bridge
// never reaches for ambient singletons.
//
// All methods are invoked from bridge goroutines. Implementations that
// must touch host UI state should trampoline through RunOnHostThread.
type Capabilities interface {
	// PresentPermissionPrompt shows a permission prompt to the user. The
	// host answers later via Session.ResolvePermission with the same
	// request id; the bridge never blocks on the prompt.
	PresentPermissionPrompt(requestID uint64, name string)

	// DeliverLifecycleTransition informs the host that a session entered a
	// new state.
	DeliverLifecycleTransition(state lifecycle.State)

	// RunOnHostThread posts a task onto the host's UI/event loop. The loop
	// is single threaded and must never block.
	RunOnHostThread(task func())

	// RenderWidgetTree replaces the displayed subtree with a complete new
	// snapshot and returns the host's handle for it.
	RenderWidgetTree(root *render.Node) (UIHandle, error)
}
