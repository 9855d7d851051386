// Package render converts VM-produced widget trees into host UI elements
// and routes user events back into the VM.
//
// The VM pushes one complete replacement tree per render cycle; the
// renderer rebuilds the displayed subtree wholesale, walking depth first
// and dispatching over the closed widget type set (Text, Button, Row,
// Column, Container, Window). An unrecognized type renders a diagnostic
// placeholder; one bad node never prevents its siblings or ancestors from
// rendering.
//
// Prop values arrive raw or tagged; accessors on Props normalize both and
// fall back to caller defaults, so normalization never fails a render.
//
// The Dispatcher holds the (widget id, event type) → channel bindings of
// the current snapshot only. A user event on a widget from a superseded
// render is dropped with a diagnostic rather than delivered to an
// unrelated widget.
package render
