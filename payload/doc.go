// Package payload implements the canonical tagged-union value that crosses
// the bridge in both directions: permission results, channel messages, UI
// events, and function-call results all use the same format.
//
// A Value is one of null, bool, int (64-bit signed), float (64-bit
// IEEE-754), string, ordered list, or insertion-ordered string-keyed map.
// Values copy at each hop (Clone); nothing downstream can mutate a sender's
// payload.
//
// The wire form is JSON with an explicit discriminator:
//
//	{"type": "string", "value": "ok"}
//	{"type": "map", "value": {"a": {"type": "int", "value": 1}}}
//
// Map key order is preserved on the wire but carries no semantic meaning;
// Equal ignores it.
package payload
