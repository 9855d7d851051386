package bus

import (
	"sync"
)

// mailbox is one subscriber's delivery queue. push never blocks the
// sender; a dedicated goroutine pops in FIFO order and runs Deliver, so
// delivery happens on the receiver's scheduling context, decoupled from
// the sender's. Closing the mailbox drops whatever is still queued.
type mailbox struct {
	sub    Subscriber
	cond   *sync.Cond
	queue  []Message
	mu     sync.Mutex
	closed bool
}

func newMailbox(sub Subscriber) *mailbox {
	m := &mailbox{sub: sub}
	m.cond = sync.NewCond(&m.mu)
	go m.pump()
	return m
}

func (m *mailbox) push(msg Message) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	m.queue = append(m.queue, msg)
	m.cond.Signal()
}

func (m *mailbox) close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	m.closed = true
	m.queue = nil
	m.cond.Signal()
}

func (m *mailbox) pump() {
	for {
		m.mu.Lock()
		for len(m.queue) == 0 && !m.closed {
			m.cond.Wait()
		}
		if m.closed {
			m.mu.Unlock()
			return
		}
		msg := m.queue[0]
		m.queue = m.queue[1:]
		m.mu.Unlock()

		m.sub.Deliver(msg)
	}
}
