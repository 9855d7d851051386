package render

import (
	"sync"

	"go.uber.org/zap"
)

// Element is an opaque host UI element produced by an ElementBuilder.
type Element any

// ElementBuilder is implemented by the host collaborator: it turns
// normalized widget descriptions into concrete UI elements. Styling is the
// host's business; the renderer only dispatches and normalizes.
type ElementBuilder interface {
	Text(id string, props Props) Element
	Button(id string, props Props) Element
	Row(id string, props Props, children []Element) Element
	Column(id string, props Props, children []Element) Element
	Container(id string, props Props, children []Element) Element
	Window(id string, props Props, children []Element) Element

	// Placeholder renders the diagnostic stand-in for an unknown widget
	// type. It must produce a visible element, not fail.
	Placeholder(id, typeName string) Element
}

// Renderer consumes complete replacement widget trees from the VM and
// rebuilds the host subtree wholesale each cycle, with no incremental
// diffing. Each successful render atomically replaces the event dispatcher's
// handler registry with the new snapshot's bindings.
type Renderer struct {
	builder    ElementBuilder
	dispatcher *Dispatcher
	log        *zap.Logger
	mu         sync.Mutex
}

// NewRenderer creates a renderer over the host's element builder. The
// dispatcher may be nil when event routing is not wired (render-only use).
func NewRenderer(builder ElementBuilder, dispatcher *Dispatcher, log *zap.Logger) *Renderer {
	if log == nil {
		log = zap.NewNop()
	}
	return &Renderer{
		builder:    builder,
		dispatcher: dispatcher,
		log:        log,
	}
}

// Render builds the host element tree for one complete snapshot. A nil
// root clears the displayed subtree and all event bindings. Render never
// fails: a node with an unrecognized type renders a diagnostic placeholder
// and its siblings and ancestors render normally.
func (r *Renderer) Render(root *Node) Element {
	r.mu.Lock()
	defer r.mu.Unlock()

	bindings := make(map[bindingKey]string)
	var el Element
	if root != nil {
		seen := make(map[string]bool)
		el = r.renderNode(root, bindings, seen)
	}
	if r.dispatcher != nil {
		r.dispatcher.rebind(bindings)
	}
	return el
}

// renderNode walks depth first: children render before their parent is
// assembled, and every node dispatches over the closed widget type set.
func (r *Renderer) renderNode(n *Node, bindings map[bindingKey]string, seen map[string]bool) Element {
	if n == nil {
		return nil
	}

	if n.ID != "" {
		if seen[n.ID] {
			r.log.Warn("duplicate widget id in render snapshot", zap.String("widget_id", n.ID))
		}
		seen[n.ID] = true
	}
	for _, b := range n.Bindings {
		bindings[bindingKey{widgetID: n.ID, event: b.Event}] = b.Channel
	}

	var children []Element
	if len(n.Children) > 0 {
		children = make([]Element, 0, len(n.Children))
		for _, child := range n.Children {
			children = append(children, r.renderNode(child, bindings, seen))
		}
	}

	switch n.Type {
	case Text:
		return r.builder.Text(n.ID, n.Props)
	case Button:
		return r.builder.Button(n.ID, n.Props)
	case Row:
		return r.builder.Row(n.ID, n.Props, children)
	case Column:
		return r.builder.Column(n.ID, n.Props, children)
	case Container:
		return r.builder.Container(n.ID, n.Props, children)
	case Window:
		return r.builder.Window(n.ID, n.Props, children)
	case Unknown:
		r.log.Warn("unrecognized widget type",
			zap.String("widget_id", n.ID),
			zap.String("widget_type", n.TypeName),
		)
		return r.builder.Placeholder(n.ID, n.TypeName)
	}
	return r.builder.Placeholder(n.ID, n.TypeName)
}
