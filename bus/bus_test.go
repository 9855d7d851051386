package bus

import (
	"sync"
	"testing"
	"time"

	"github.com/wippyai/vm-bridge/payload"
)

// collector accumulates deliveries.
type collector struct {
	mu   sync.Mutex
	msgs []Message
}

func (c *collector) Deliver(m Message) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.msgs = append(c.msgs, m)
}

func (c *collector) snapshot() []Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Message, len(c.msgs))
	copy(out, c.msgs)
	return out
}

func (c *collector) waitFor(t *testing.T, n int) []Message {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		got := c.snapshot()
		if len(got) >= n {
			return got
		}
		select {
		case <-deadline:
			t.Fatalf("subscriber saw %d messages, want %d", len(got), n)
		case <-time.After(time.Millisecond):
		}
	}
}

func TestBus_SendOrderPerChannel(t *testing.T) {
	b := New(nil)
	defer b.Close()

	sub := &collector{}
	if _, err := b.Register("telemetry", Bidirectional, sub); err != nil {
		t.Fatal(err)
	}

	for i := int64(0); i < 50; i++ {
		if err := b.Send("telemetry", FromVM, payload.Int(i)); err != nil {
			t.Fatal(err)
		}
	}

	msgs := sub.waitFor(t, 50)
	for i, m := range msgs[:50] {
		got, _ := m.Payload.AsInt()
		if got != int64(i) {
			t.Fatalf("message %d carried %d; FIFO order broken", i, got)
		}
	}
}

func TestBus_DeliversToAllInRegistrationOrder(t *testing.T) {
	b := New(nil)
	defer b.Close()

	var mu sync.Mutex
	var order []string
	mk := func(name string) Subscriber {
		return SubscriberFunc(func(Message) {
			mu.Lock()
			order = append(order, name)
			mu.Unlock()
		})
	}

	b.Register("c", Bidirectional, mk("first"))
	b.Register("c", Bidirectional, mk("second"))
	b.Register("c", Bidirectional, mk("third"))

	b.Send("c", FromVM, payload.Null())

	deadline := time.After(2 * time.Second)
	for {
		mu.Lock()
		n := len(order)
		mu.Unlock()
		if n == 3 {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("delivered to %d subscribers, want 3", n)
		case <-time.After(time.Millisecond):
		}
	}

	mu.Lock()
	defer mu.Unlock()
	// Mailboxes start in registration order; with one message each the
	// delivery count per subscriber is exactly one.
	seen := map[string]int{}
	for _, name := range order {
		seen[name]++
	}
	for _, name := range []string{"first", "second", "third"} {
		if seen[name] != 1 {
			t.Fatalf("subscriber %s delivered %d times, want exactly once", name, seen[name])
		}
	}
}

func TestBus_SubscriberSnapshotAtSendTime(t *testing.T) {
	b := New(nil)
	defer b.Close()

	early := &collector{}
	b.Register("c", Bidirectional, early)
	b.Send("c", FromVM, payload.String("for-early"))

	late := &collector{}
	b.Register("c", Bidirectional, late)

	early.waitFor(t, 1)
	time.Sleep(10 * time.Millisecond)
	if len(late.snapshot()) != 0 {
		t.Fatal("late subscriber received a message sent before registration")
	}
}

func TestBus_PayloadCopiedPerHop(t *testing.T) {
	b := New(nil)
	defer b.Close()

	var mu sync.Mutex
	var got []payload.Value
	b.Register("c", Bidirectional, SubscriberFunc(func(m Message) {
		// Mutate the delivered map; the sender and other subscribers
		// must not observe it.
		m.Payload.SetKey("status", payload.String("mutated"))
		mu.Lock()
		got = append(got, m.Payload)
		mu.Unlock()
	}))
	other := &collector{}
	b.Register("c", Bidirectional, other)

	sent := payload.MapOf(payload.Pair{Key: "status", Val: payload.String("ok")})
	b.Send("c", FromVM, sent)

	msgs := other.waitFor(t, 1)
	status, _ := msgs[0].Payload.GetKey("status")
	if status.StringOr("") != "ok" {
		t.Fatal("mutation by one subscriber leaked to another")
	}
	if v, _ := sent.GetKey("status"); v.StringOr("") != "ok" {
		t.Fatal("mutation by a subscriber leaked back to the sender")
	}
}

func TestBus_DirectionFiltering(t *testing.T) {
	b := New(nil)
	defer b.Close()

	toVM := &collector{}
	toHost := &collector{}
	both := &collector{}
	b.Register("c", Inbound, toVM)
	b.Register("c", Outbound, toHost)
	b.Register("c", Bidirectional, both)

	b.Send("c", FromVM, payload.String("from-vm"))
	b.Send("c", FromHost, payload.String("from-host"))

	both.waitFor(t, 2)
	vmMsgs := toHost.waitFor(t, 1)
	hostMsgs := toVM.waitFor(t, 1)

	if s, _ := vmMsgs[0].Payload.AsString(); s != "from-vm" {
		t.Fatalf("outbound subscriber got %q", s)
	}
	if s, _ := hostMsgs[0].Payload.AsString(); s != "from-host" {
		t.Fatalf("inbound subscriber got %q", s)
	}
	time.Sleep(10 * time.Millisecond)
	if len(toVM.snapshot()) != 1 || len(toHost.snapshot()) != 1 {
		t.Fatal("direction filter leaked a message")
	}
}

func TestBus_UnregisterDropsQueued(t *testing.T) {
	b := New(nil)
	defer b.Close()

	release := make(chan struct{})
	delivered := make(chan string, 16)
	slow := SubscriberFunc(func(m Message) {
		<-release
		s, _ := m.Payload.AsString()
		delivered <- s
	})
	sub, err := b.Register("c", Bidirectional, slow)
	if err != nil {
		t.Fatal(err)
	}

	b.Send("c", FromVM, payload.String("first"))
	b.Send("c", FromVM, payload.String("queued-1"))
	b.Send("c", FromVM, payload.String("queued-2"))

	// The pump is blocked inside Deliver("first"); everything still queued
	// is dropped at cancel.
	time.Sleep(10 * time.Millisecond)
	if err := sub.Cancel(); err != nil {
		t.Fatal(err)
	}
	close(release)

	select {
	case s := <-delivered:
		if s != "first" {
			t.Fatalf("in-flight delivery was %q", s)
		}
	case <-time.After(time.Second):
		t.Fatal("in-flight delivery never finished")
	}

	select {
	case s := <-delivered:
		t.Fatalf("queued message %q delivered after unregister", s)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestBus_CancelFuncSubscriber(t *testing.T) {
	b := New(nil)
	defer b.Close()

	// Two bindings of the same func-typed subscriber value. Each token
	// must remove exactly its own binding.
	fn := SubscriberFunc(func(Message) {})
	first, err := b.Register("c", Bidirectional, fn)
	if err != nil {
		t.Fatal(err)
	}
	second, err := b.Register("c", Bidirectional, fn)
	if err != nil {
		t.Fatal(err)
	}

	if err := first.Cancel(); err != nil {
		t.Fatal(err)
	}
	if b.Subscribers("c") != 1 {
		t.Fatalf("subscriber count = %d, want 1", b.Subscribers("c"))
	}
	if err := first.Cancel(); err == nil {
		t.Fatal("second cancel of the same token succeeded")
	}
	if err := second.Cancel(); err != nil {
		t.Fatal(err)
	}
	if b.Subscribers("c") != 0 {
		t.Fatalf("subscriber count = %d, want 0", b.Subscribers("c"))
	}
}

func TestBus_DropOwner(t *testing.T) {
	b := New(nil)
	defer b.Close()

	mine := &collector{}
	theirs := &collector{}
	b.RegisterFor("session-a", "c", Bidirectional, mine)
	b.RegisterFor("session-b", "c", Bidirectional, theirs)

	b.DropOwner("session-a")
	b.Send("c", FromVM, payload.String("after-drop"))

	theirs.waitFor(t, 1)
	time.Sleep(10 * time.Millisecond)
	if len(mine.snapshot()) != 0 {
		t.Fatal("dropped owner still received messages")
	}
	if b.Subscribers("c") != 1 {
		t.Fatalf("subscriber count = %d, want 1", b.Subscribers("c"))
	}
}

func TestBus_NoCrossChannelLeak(t *testing.T) {
	b := New(nil)
	defer b.Close()

	a := &collector{}
	b.Register("alpha", Bidirectional, a)
	b.Send("beta", FromVM, payload.String("wrong-channel"))

	time.Sleep(10 * time.Millisecond)
	if len(a.snapshot()) != 0 {
		t.Fatal("message leaked across channels")
	}
}

func TestBus_SendDoesNotBlockOnSlowSubscriber(t *testing.T) {
	b := New(nil)
	defer b.Close()

	block := make(chan struct{})
	b.Register("c", Bidirectional, SubscriberFunc(func(Message) { <-block }))

	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			b.Send("c", FromVM, payload.Int(int64(i)))
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Send blocked on a slow subscriber")
	}
	close(block)
}
