package bus

import (
	"sync"

	"go.uber.org/zap"

	"github.com/wippyai/vm-bridge/errors"
	"github.com/wippyai/vm-bridge/payload"
)

// Origin marks which side of the bridge produced a message.
type Origin uint8

const (
	FromVM Origin = iota
	FromHost
)

// String returns the origin name.
func (o Origin) String() string {
	if o == FromHost {
		return "host"
	}
	return "vm"
}

// Direction declares which flows a subscriber accepts on a channel.
type Direction uint8

const (
	// Inbound receives messages flowing into the VM (host-originated).
	Inbound Direction = iota
	// Outbound receives messages flowing out of the VM (VM-originated).
	Outbound
	// Bidirectional receives both flows.
	Bidirectional
)

// accepts reports whether a subscriber with this direction receives a
// message of the given origin.
func (d Direction) accepts(o Origin) bool {
	switch d {
	case Inbound:
		return o == FromHost
	case Outbound:
		return o == FromVM
	}
	return true
}

// Message is one typed datagram on a channel. The payload is the canonical
// tagged union; the optional correlation id lets request/response pairs
// find each other without the bus knowing about them.
type Message struct {
	Channel       string
	CorrelationID string
	Payload       payload.Value
	Origin        Origin
}

// Subscriber consumes messages on its own scheduling context.
type Subscriber interface {
	Deliver(Message)
}

// SubscriberFunc adapts a function to the Subscriber interface.
type SubscriberFunc func(Message)

func (f SubscriberFunc) Deliver(m Message) { f(m) }

// registration is one (channel, subscriber) binding with its mailbox.
type registration struct {
	mbox  *mailbox
	owner string
	dir   Direction
}

// Bus is the typed bidirectional pub/sub transport between the VM and the
// host. Sends are fire-and-forget: Send returns once the payload is
// enqueued, and each subscriber's mailbox goroutine delivers it later in
// per-channel FIFO order.
type Bus struct {
	log      *zap.Logger
	channels map[string][]*registration
	mu       sync.Mutex
	closed   bool
}

// New creates an empty bus.
func New(log *zap.Logger) *Bus {
	if log == nil {
		log = zap.NewNop()
	}
	return &Bus{
		log:      log,
		channels: make(map[string][]*registration),
	}
}

// Subscription is the removable token for one registered binding. Cancel
// is the only way to unregister a single subscriber; the bus never
// compares subscriber values, so func-typed subscribers are fine.
type Subscription struct {
	bus     *Bus
	channel string
	reg     *registration
}

// Register subscribes sub to a channel. Subscribers are kept in
// registration order, which is also delivery order for each send. The
// returned Subscription cancels this binding.
func (b *Bus) Register(channel string, dir Direction, sub Subscriber) (*Subscription, error) {
	return b.RegisterFor("", channel, dir, sub)
}

// RegisterFor is Register with an owner tag; DropOwner removes every
// registration carrying the same tag. Sessions register their
// subscriptions under their session id.
func (b *Bus) RegisterFor(owner, channel string, dir Direction, sub Subscriber) (*Subscription, error) {
	if channel == "" {
		return nil, errors.InvalidInput(errors.ComponentBus, "register_channel", "empty channel name")
	}
	if sub == nil {
		return nil, errors.InvalidInput(errors.ComponentBus, "register_channel", "nil subscriber")
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, errors.Closed(errors.ComponentBus, "register_channel", channel)
	}

	reg := &registration{
		owner: owner,
		dir:   dir,
		mbox:  newMailbox(sub),
	}
	b.channels[channel] = append(b.channels[channel], reg)
	return &Subscription{bus: b, channel: channel, reg: reg}, nil
}

// Cancel removes the binding from its channel. An in-flight delivery
// finishes; everything still queued is silently dropped. Cancelling a
// binding that is already gone returns NotFound.
func (s *Subscription) Cancel() error {
	if s == nil {
		return errors.InvalidInput(errors.ComponentBus, "unregister_channel", "nil subscription")
	}
	b := s.bus

	b.mu.Lock()
	defer b.mu.Unlock()

	regs := b.channels[s.channel]
	for i, reg := range regs {
		if reg == s.reg {
			reg.mbox.close()
			b.channels[s.channel] = append(regs[:i], regs[i+1:]...)
			if len(b.channels[s.channel]) == 0 {
				delete(b.channels, s.channel)
			}
			return nil
		}
	}
	return errors.NotFound(errors.ComponentBus, "unregister_channel", "subscription", s.channel)
}

// Send enqueues an origin-tagged payload for every subscriber current at
// send time whose direction accepts the flow, in registration order, then
// returns. Delivery is at-most-once per subscriber per send and happens on
// the receiver's goroutine. Each subscriber gets its own deep copy of the
// payload.
func (b *Bus) Send(channel string, origin Origin, v payload.Value) error {
	return b.SendMessage(Message{Channel: channel, Origin: origin, Payload: v})
}

// SendMessage is Send with an explicit correlation id.
func (b *Bus) SendMessage(msg Message) error {
	if msg.Channel == "" {
		return errors.InvalidInput(errors.ComponentBus, "send", "empty channel name")
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return errors.Closed(errors.ComponentBus, "send", msg.Channel)
	}
	regs := b.channels[msg.Channel]
	matched := 0
	for _, reg := range regs {
		if !reg.dir.accepts(msg.Origin) {
			continue
		}
		m := msg
		m.Payload = msg.Payload.Clone()
		reg.mbox.push(m)
		matched++
	}
	b.mu.Unlock()

	if matched == 0 {
		b.log.Debug("message had no matching subscribers",
			zap.String("channel", msg.Channel),
			zap.String("origin", msg.Origin.String()),
		)
	}
	return nil
}

// DropOwner removes every registration tagged with owner and discards
// their queued messages. Session destruction calls this so no message is
// delivered to a destroyed session.
func (b *Bus) DropOwner(owner string) {
	if owner == "" {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	for channel, regs := range b.channels {
		kept := regs[:0]
		for _, reg := range regs {
			if reg.owner == owner {
				reg.mbox.close()
				continue
			}
			kept = append(kept, reg)
		}
		if len(kept) == 0 {
			delete(b.channels, channel)
		} else {
			b.channels[channel] = kept
		}
	}
}

// Subscribers returns the current subscriber count for a channel.
func (b *Bus) Subscribers(channel string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.channels[channel])
}

// Close drops every registration and queued message.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for _, regs := range b.channels {
		for _, reg := range regs {
			reg.mbox.close()
		}
	}
	b.channels = make(map[string][]*registration)
}
