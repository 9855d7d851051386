// Package scriptvm embeds guest JavaScript behind the session bridge.
//
// Each VM owns a goja runtime confined to one loop goroutine. The guest
// sees a single global object, bridge, carrying the channel, permission,
// handle, and render operations; host-originated work always re-enters
// through the loop, so guest code never observes concurrent access to
// its runtime.
package scriptvm
