// Package wasmvm embeds wasm guests behind the session bridge.
//
// The guest imports one host module, bridge, whose functions carry
// payloads as JSON wire bytes addressed by (ptr, len) pairs in guest
// linear memory. Host-to-guest payloads are written into memory the
// guest provides through its bridge_alloc export; channel deliveries,
// permission outcomes, and lifecycle signals arrive through the guest's
// on_message, on_permission, and on_lifecycle exports. All guest entry
// points are serialized on one loop goroutine.
package wasmvm
