// Package permission implements the asynchronous permission request
// correlator between the VM and the host.
//
// A request never blocks the caller: Request forwards the prompt to the
// host collaborator and immediately returns a Ticket the caller can
// suspend on. Resolution arrives later by id through Resolve, exactly
// once: a second resolve reports DuplicateResolution and leaves the first
// outcome untouched.
//
// Every request carries a deadline (30s unless configured otherwise).
// An unresolved request past its deadline completes with the
// denial-equivalent TimedOut and a diagnostic. Destroying the owning
// session cancels all pending requests the same way.
package permission
