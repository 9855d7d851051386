package render

import (
	"github.com/wippyai/vm-bridge/payload"
)

// WidgetType is the closed set of widget kinds the renderer dispatches
// over. Anything a VM sends outside this set parses as Unknown and renders
// as a diagnostic placeholder instead of failing the tree.
type WidgetType uint8

const (
	Unknown WidgetType = iota
	Text
	Button
	Row
	Column
	Container
	Window
)

// String returns the wire name of the widget type.
func (w WidgetType) String() string {
	switch w {
	case Text:
		return "text"
	case Button:
		return "button"
	case Row:
		return "row"
	case Column:
		return "column"
	case Container:
		return "container"
	case Window:
		return "window"
	}
	return "unknown"
}

// ParseWidgetType maps a wire name onto the closed set; unrecognized names
// map to Unknown.
func ParseWidgetType(s string) WidgetType {
	switch s {
	case "text":
		return Text
	case "button":
		return Button
	case "row":
		return Row
	case "column":
		return Column
	case "container":
		return Container
	case "window":
		return Window
	}
	return Unknown
}

// Binding declares that a widget emits events of one type onto a channel
// the VM subscribes to.
type Binding struct {
	Event   string
	Channel string
}

// Node is one VM-produced widget description. Ids are unique within one
// render snapshot; children are owned and tree-shaped by construction.
type Node struct {
	ID       string
	TypeName string // raw wire name, kept for diagnostics
	Props    Props
	Children []*Node
	Bindings []Binding
	Type     WidgetType
}

// Event is produced by the renderer on user interaction and consumed by
// the VM through the channel bus.
type Event struct {
	WidgetID string
	Type     string
	Payload  payload.Value
}

// NodeFromPayload decodes a widget tree from the canonical tagged-union
// form. Decoding never fails: malformed fields fall back to defaults and
// an unrecognized type becomes Unknown, so one bad node cannot take down
// its siblings or ancestors.
//
// Expected shape (all fields optional except id):
//
//	{type: "map", value: {
//	    id:       string,
//	    type:     string,
//	    props:    map,
//	    children: list of nodes,
//	    events:   list of {event: string, channel: string},
//	}}
func NodeFromPayload(v payload.Value) *Node {
	typeName := ""
	if tv, ok := v.GetKey("type"); ok {
		typeName = tv.StringOr("")
	}

	n := &Node{
		TypeName: typeName,
		Type:     ParseWidgetType(typeName),
	}
	if id, ok := v.GetKey("id"); ok {
		n.ID = id.StringOr("")
	}
	if props, ok := v.GetKey("props"); ok && props.Kind() == payload.KindMap {
		n.Props = Props{m: props}
	}
	if children, ok := v.GetKey("children"); ok {
		if items, ok := children.AsList(); ok {
			for _, item := range items {
				n.Children = append(n.Children, NodeFromPayload(item))
			}
		}
	}
	if events, ok := v.GetKey("events"); ok {
		if items, ok := events.AsList(); ok {
			for _, item := range items {
				ev, _ := item.GetKey("event")
				ch, _ := item.GetKey("channel")
				if ev.StringOr("") == "" || ch.StringOr("") == "" {
					continue
				}
				n.Bindings = append(n.Bindings, Binding{
					Event:   ev.StringOr(""),
					Channel: ch.StringOr(""),
				})
			}
		}
	}
	return n
}
