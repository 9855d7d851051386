// Package session composes the bridge: each session owns one VM instance,
// one handle table, one lifecycle machine, and one permission correlator,
// all stitched to the shared channel bus under the session's owner tag.
//
// The Manager creates sessions on demand and destroys them exactly once.
// Destruction cancels pending permission requests, discards queued channel
// messages addressed to the session, force-releases remaining handles
// (reporting leaks), marks the lifecycle state Destroyed, and closes the
// VM; repeated destroys are no-ops.
//
// A Session implements vm.Bridge, the surface handed to the embedded VM,
// and exposes the host-facing operations (Transition, ResolvePermission,
// Deliver) the host collaborator drives it with. Only a fatal fault inside
// the VM itself escalates to full teardown; protocol, reference, and
// lifecycle errors return to the immediate caller and leave the session
// running.
package session
