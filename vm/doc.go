// Package vm defines the collaborator surface between the bridge and an
// embedded virtual machine.
//
// The bridge owns sessions and talks to a VM through the Instance
// interface; the VM talks back through the Bridge surface it receives at
// Attach. Concrete machines live in subpackages: scriptvm embeds a
// JavaScript interpreter, wasmvm runs WebAssembly guests.
package vm
