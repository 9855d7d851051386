package permission

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/wippyai/vm-bridge/errors"
)

// DefaultTimeout bounds a permission request that the host never resolves.
const DefaultTimeout = 30 * time.Second

// Status is the resolution state of one permission request.
type Status uint8

const (
	Pending Status = iota
	Granted
	Denied
	TimedOut
)

// String returns the status name.
func (s Status) String() string {
	switch s {
	case Pending:
		return "Pending"
	case Granted:
		return "Granted"
	case Denied:
		return "Denied"
	case TimedOut:
		return "TimedOut"
	}
	return "Invalid"
}

// Allowed reports whether the outcome permits the capability. TimedOut is
// denial-equivalent.
func (s Status) Allowed() bool { return s == Granted }

// Prompter is the host collaborator's prompt capability. The correlator
// forwards each request and the host answers later through Resolve; the
// call must not block the caller, so it runs on its own goroutine.
type Prompter interface {
	PresentPermissionPrompt(requestID uint64, name string)
}

// PrompterFunc adapts a function to the Prompter interface.
type PrompterFunc func(requestID uint64, name string)

func (f PrompterFunc) PresentPermissionPrompt(requestID uint64, name string) { f(requestID, name) }

// Correlator manages a session's asynchronous permission round trips:
// it allocates strictly increasing request ids, forwards prompts to the
// host, and completes waiting callers when a resolution, timeout, or
// session teardown arrives.
type Correlator struct {
	prompter Prompter
	log      *zap.Logger
	requests map[uint64]*Ticket
	timeout  time.Duration
	nextID   uint64
	mu       sync.Mutex
	closed   bool
}

// New creates a correlator. timeout 0 selects DefaultTimeout; a negative
// timeout disables the deadline entirely, leaving resolve and session
// destruction as the only ways a request completes.
func New(prompter Prompter, timeout time.Duration, log *zap.Logger) *Correlator {
	if log == nil {
		log = zap.NewNop()
	}
	if timeout == 0 {
		timeout = DefaultTimeout
	}
	return &Correlator{
		prompter: prompter,
		log:      log,
		requests: make(map[uint64]*Ticket),
		timeout:  timeout,
	}
}

// Request allocates a pending permission request, forwards it to the host
// prompt capability, and returns without blocking. The caller suspends on
// the returned Ticket until resolution.
//
// Concurrent requests for the same permission name are not coalesced:
// each gets an independent id and an independent resolution.
func (c *Correlator) Request(name string) (*Ticket, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, errors.Closed(errors.ComponentPermission, "request_permission", name)
	}
	c.nextID++
	tk := &Ticket{
		id:      c.nextID,
		name:    name,
		created: time.Now(),
		status:  Pending,
		done:    make(chan struct{}),
	}
	c.requests[tk.id] = tk
	if c.timeout > 0 {
		tk.timer = time.AfterFunc(c.timeout, func() { c.expire(tk.id) })
	}
	c.mu.Unlock()

	// The prompt crosses into the host's scheduling context; never let it
	// block the requesting side.
	go c.prompter.PresentPermissionPrompt(tk.id, name)

	return tk, nil
}

// Resolve completes a request exactly once. A second resolution of the
// same id returns DuplicateResolution and does not disturb the first
// result. An id never issued returns a not-found error.
func (c *Correlator) Resolve(requestID uint64, granted bool) error {
	status := Denied
	if granted {
		status = Granted
	}
	return c.complete(requestID, status, "resolve")
}

// expire is the timeout path: the waiter completes with a
// denial-equivalent outcome and a diagnostic is emitted.
func (c *Correlator) expire(requestID uint64) {
	c.mu.Lock()
	tk, ok := c.requests[requestID]
	if !ok || tk.status != Pending {
		c.mu.Unlock()
		return
	}
	tk.finish(TimedOut)
	c.mu.Unlock()

	c.log.Warn("permission request timed out",
		zap.Uint64("request_id", requestID),
		zap.String("permission", tk.name),
		zap.Duration("timeout", c.timeout),
	)
}

func (c *Correlator) complete(requestID uint64, status Status, op string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	tk, ok := c.requests[requestID]
	if !ok {
		return errors.NotFound(errors.ComponentPermission, op, "permission request", "")
	}
	if tk.status != Pending {
		return errors.ResolvedTwice(op, requestID, tk.name)
	}
	tk.finish(status)
	return nil
}

// CancelAll resolves every pending request as TimedOut. The session
// destruction path calls this before tearing down the VM.
func (c *Correlator) CancelAll() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	c.closed = true

	for _, tk := range c.requests {
		if tk.status != Pending {
			continue
		}
		tk.finish(TimedOut)
		c.log.Warn("permission request cancelled by session destruction",
			zap.Uint64("request_id", tk.id),
			zap.String("permission", tk.name),
		)
	}
}

// Pending returns the number of unresolved requests.
func (c *Correlator) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := 0
	for _, tk := range c.requests {
		if tk.status == Pending {
			n++
		}
	}
	return n
}

// Ticket is the pending result of one permission request. The requester
// keeps the ticket and suspends on Done or Wait; the host side never sees
// it, resolving by id instead.
type Ticket struct {
	created  time.Time
	resolved time.Time
	timer    *time.Timer
	done     chan struct{}
	name     string
	id       uint64
	status   Status
}

// ID returns the request id, strictly increasing per session.
func (t *Ticket) ID() uint64 { return t.id }

// Name returns the permission name.
func (t *Ticket) Name() string { return t.name }

// Done is closed when the request resolves, times out, or is cancelled.
func (t *Ticket) Done() <-chan struct{} { return t.done }

// Outcome returns the final status, or Pending while the ticket is open.
func (t *Ticket) Outcome() Status {
	select {
	case <-t.done:
		return t.status
	default:
		return Pending
	}
}

// CreatedAt returns the request creation time.
func (t *Ticket) CreatedAt() time.Time { return t.created }

// ResolvedAt returns the resolution time, zero while pending.
func (t *Ticket) ResolvedAt() time.Time {
	select {
	case <-t.done:
		return t.resolved
	default:
		return time.Time{}
	}
}

// Wait suspends until resolution or ctx cancellation.
func (t *Ticket) Wait(ctx context.Context) (Status, error) {
	select {
	case <-t.done:
		return t.status, nil
	case <-ctx.Done():
		return Pending, errors.Wrap(errors.ComponentPermission, errors.KindTimeout, ctx.Err(), "wait", t.name)
	}
}

// finish is called with the correlator lock held, at most once per ticket.
func (t *Ticket) finish(status Status) {
	t.status = status
	t.resolved = time.Now()
	if t.timer != nil {
		t.timer.Stop()
	}
	close(t.done)
}
