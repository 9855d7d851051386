// Package errors provides structured error types for the vm-bridge library.
//
// Errors are categorized by Component (which part of the bridge failed) and
// Kind (error category). Every Error carries the operation name and the
// identifier it failed on (handle id, channel name, permission name, or
// widget id) so diagnostics never lose context.
//
// Use the Builder for structured error construction:
//
//	err := errors.New(errors.ComponentBus, errors.KindProtocol).
//		Op("send").
//		ID("camera-status").
//		Detail("payload missing type discriminator").
//		Build()
//
// Or use convenience constructors for common patterns:
//
//	err := errors.FreedHandle("deref", 42)
//	err := errors.IllegalTransition("transition", "Created", "Paused")
//
// Outcome sentinels (DuplicateResolution, DoubleRelease, ReferenceError, ...)
// match with errors.Is regardless of which component produced the error.
package errors
