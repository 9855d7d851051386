package render

import (
	"sync"

	"go.uber.org/zap"

	"github.com/wippyai/vm-bridge/bus"
	"github.com/wippyai/vm-bridge/payload"
)

type bindingKey struct {
	widgetID string
	event    string
}

// Dispatcher routes user interactions back into the VM. Each render cycle
// replaces its registry wholesale, so events on widgets from a superseded
// render find no handler and are dropped with a diagnostic, never
// delivered to an unrelated widget.
type Dispatcher struct {
	bus      *bus.Bus
	log      *zap.Logger
	bindings map[bindingKey]string
	mu       sync.Mutex
}

// NewDispatcher creates a dispatcher forwarding through the given bus.
func NewDispatcher(b *bus.Bus, log *zap.Logger) *Dispatcher {
	if log == nil {
		log = zap.NewNop()
	}
	return &Dispatcher{
		bus:      b,
		log:      log,
		bindings: make(map[bindingKey]string),
	}
}

// rebind atomically replaces the registry with one snapshot's bindings.
func (d *Dispatcher) rebind(bindings map[bindingKey]string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.bindings = bindings
}

// Handlers returns the number of live (widget, event) bindings.
func (d *Dispatcher) Handlers() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.bindings)
}

// Dispatch forwards one UI event to the VM handler registered for its
// (widget id, event type) pair. Events without a current handler are
// dropped with a diagnostic.
func (d *Dispatcher) Dispatch(ev Event) {
	d.mu.Lock()
	channel, ok := d.bindings[bindingKey{widgetID: ev.WidgetID, event: ev.Type}]
	d.mu.Unlock()

	if !ok {
		d.log.Warn("dropping event with no registered handler",
			zap.String("widget_id", ev.WidgetID),
			zap.String("event_type", ev.Type),
		)
		return
	}

	msg := payload.MapOf(
		payload.Pair{Key: "widget_id", Val: payload.String(ev.WidgetID)},
		payload.Pair{Key: "event_type", Val: payload.String(ev.Type)},
		payload.Pair{Key: "payload", Val: ev.Payload},
	)
	if err := d.bus.Send(channel, bus.FromHost, msg); err != nil {
		d.log.Warn("event delivery failed",
			zap.String("widget_id", ev.WidgetID),
			zap.String("event_type", ev.Type),
			zap.String("channel", channel),
			zap.Error(err),
		)
	}
}
