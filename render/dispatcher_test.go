package render

import (
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/wippyai/vm-bridge/bus"
	"github.com/wippyai/vm-bridge/payload"
)

type eventSink struct {
	mu   sync.Mutex
	msgs []bus.Message
}

func (s *eventSink) Deliver(m bus.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.msgs = append(s.msgs, m)
}

func (s *eventSink) waitFor(t *testing.T, n int) []bus.Message {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		s.mu.Lock()
		got := len(s.msgs)
		s.mu.Unlock()
		if got >= n {
			s.mu.Lock()
			defer s.mu.Unlock()
			out := make([]bus.Message, len(s.msgs))
			copy(out, s.msgs)
			return out
		}
		select {
		case <-deadline:
			t.Fatalf("sink saw %d messages, want %d", got, n)
		case <-time.After(time.Millisecond):
		}
	}
}

func boundTree() *Node {
	return &Node{ID: "root", Type: Window, Children: []*Node{
		{ID: "save", Type: Button, Bindings: []Binding{{Event: "click", Channel: "ui-events"}}},
	}}
}

func TestDispatcher_RoutesBoundEvent(t *testing.T) {
	b := bus.New(nil)
	defer b.Close()
	sink := &eventSink{}
	b.Register("ui-events", bus.Inbound, sink)

	d := NewDispatcher(b, nil)
	r := NewRenderer(&fakeBuilder{}, d, nil)
	r.Render(boundTree())

	if d.Handlers() != 1 {
		t.Fatalf("handlers = %d, want 1", d.Handlers())
	}

	d.Dispatch(Event{
		WidgetID: "save",
		Type:     "click",
		Payload:  payload.String("pos:3,4"),
	})

	msgs := sink.waitFor(t, 1)
	got := msgs[0].Payload
	if id, _ := got.GetKey("widget_id"); id.StringOr("") != "save" {
		t.Fatalf("widget_id = %v", id)
	}
	if ev, _ := got.GetKey("event_type"); ev.StringOr("") != "click" {
		t.Fatalf("event_type = %v", ev)
	}
	if pl, _ := got.GetKey("payload"); pl.StringOr("") != "pos:3,4" {
		t.Fatalf("payload = %v", pl)
	}
}

func TestDispatcher_StaleEventDropped(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	b := bus.New(nil)
	defer b.Close()
	sink := &eventSink{}
	b.Register("ui-events", bus.Inbound, sink)

	d := NewDispatcher(b, zap.New(core))
	r := NewRenderer(&fakeBuilder{}, d, nil)
	r.Render(boundTree())

	// A new cycle supersedes the snapshot; the old widget id is stale.
	r.Render(&Node{ID: "fresh", Type: Text})

	d.Dispatch(Event{WidgetID: "save", Type: "click", Payload: payload.Null()})

	if logs.FilterMessage("dropping event with no registered handler").Len() != 1 {
		t.Fatal("expected a dropped-event diagnostic")
	}
	time.Sleep(10 * time.Millisecond)
	sink.mu.Lock()
	defer sink.mu.Unlock()
	if len(sink.msgs) != 0 {
		t.Fatal("stale event was delivered")
	}
}

func TestDispatcher_UnboundEventTypeDropped(t *testing.T) {
	b := bus.New(nil)
	defer b.Close()
	d := NewDispatcher(b, nil)
	r := NewRenderer(&fakeBuilder{}, d, nil)
	r.Render(boundTree())

	// Same widget, unbound event type: never delivered to the click
	// handler.
	sink := &eventSink{}
	b.Register("ui-events", bus.Inbound, sink)
	d.Dispatch(Event{WidgetID: "save", Type: "hover", Payload: payload.Null()})

	time.Sleep(10 * time.Millisecond)
	sink.mu.Lock()
	defer sink.mu.Unlock()
	if len(sink.msgs) != 0 {
		t.Fatal("unbound event type reached a handler")
	}
}

func TestRenderer_RebindReplacesWholesale(t *testing.T) {
	b := bus.New(nil)
	defer b.Close()
	d := NewDispatcher(b, nil)
	r := NewRenderer(&fakeBuilder{}, d, nil)

	r.Render(boundTree())
	if d.Handlers() != 1 {
		t.Fatalf("handlers = %d", d.Handlers())
	}

	r.Render(&Node{ID: "root", Type: Window, Children: []*Node{
		{ID: "a", Type: Button, Bindings: []Binding{{Event: "click", Channel: "ch-a"}}},
		{ID: "b", Type: Button, Bindings: []Binding{{Event: "click", Channel: "ch-b"}}},
	}})
	if d.Handlers() != 2 {
		t.Fatalf("handlers after rebind = %d, want 2", d.Handlers())
	}

	r.Render(nil)
	if d.Handlers() != 0 {
		t.Fatalf("handlers after clear = %d, want 0", d.Handlers())
	}
}
