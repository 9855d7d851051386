// Package bus implements the typed bidirectional channel transport between
// the VM and the host.
//
// Channels exist while at least one subscriber is registered; nothing
// persists beyond the session. A send delivers to every subscriber current
// at send time, in registration order, at most once per subscriber. Sends
// on the same channel arrive at each subscriber in send order; no ordering
// holds across channels.
//
// Send is fire-and-forget: it returns once the payload is enqueued, and
// each subscriber's own goroutine performs the delivery later.
// Unregistering a subscriber silently drops anything still queued for it;
// the bus never retries.
//
// All payloads are the canonical tagged union from package payload, copied
// at every hop.
package bus
