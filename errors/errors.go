package errors

import (
	"fmt"
	"strings"
)

// Component indicates which part of the bridge produced the error
type Component string

const (
	ComponentSession    Component = "session"
	ComponentLifecycle  Component = "lifecycle"
	ComponentPermission Component = "permission"
	ComponentBus        Component = "bus"
	ComponentHandle     Component = "handle"
	ComponentRender     Component = "render"
	ComponentVM         Component = "vm"
)

// Kind categorizes the error
type Kind string

const (
	KindProtocol            Kind = "protocol"             // malformed or unexpected payload
	KindLifecycle           Kind = "lifecycle"            // illegal transition attempt
	KindReference           Kind = "reference"            // use of a freed or unknown handle
	KindTimeout             Kind = "timeout"              // async call exceeded its deadline
	KindUnknownWidget       Kind = "unknown_widget"       // unrecognized widget type, contained
	KindDuplicateResolution Kind = "duplicate_resolution" // second resolve of the same request
	KindDoubleRelease       Kind = "double_release"       // release of an already-released handle
	KindNotFound            Kind = "not_found"
	KindInvalidInput        Kind = "invalid_input"
	KindClosed              Kind = "closed" // operation on a destroyed session or closed table
	KindFatal               Kind = "fatal"  // fatal VM fault, tears down the session
)

// Error is the structured error type used throughout the bridge.
// Every error names the operation that failed and the identifier it
// failed on (handle id, channel name, permission name, widget id).
type Error struct {
	Cause     error
	Component Component
	Kind      Kind
	Op        string
	ID        string
	Detail    string
}

// Error implements the error interface
func (e *Error) Error() string {
	var b strings.Builder

	b.WriteByte('[')
	b.WriteString(string(e.Component))
	b.WriteString("] ")
	b.WriteString(string(e.Kind))

	if e.Op != "" {
		b.WriteString(" in ")
		b.WriteString(e.Op)
	}
	if e.ID != "" {
		b.WriteString(" (")
		b.WriteString(e.ID)
		b.WriteByte(')')
	}
	if e.Detail != "" {
		b.WriteString(": ")
		b.WriteString(e.Detail)
	}
	if e.Cause != nil {
		b.WriteString(" (caused by: ")
		b.WriteString(e.Cause.Error())
		b.WriteByte(')')
	}

	return b.String()
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error. Two bridge errors match
// when their Component and Kind agree; a target with an empty Component
// matches on Kind alone, which is what the exported sentinels use.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Component != "" && e.Component != t.Component {
		return false
	}
	return e.Kind == t.Kind
}

// Sentinels for errors.Is matching on outcome kind alone.
var (
	IllegalLifecycleTransition = &Error{Kind: KindLifecycle}
	DuplicateResolution        = &Error{Kind: KindDuplicateResolution}
	DoubleRelease              = &Error{Kind: KindDoubleRelease}
	ReferenceError             = &Error{Kind: KindReference}
	TimeoutError               = &Error{Kind: KindTimeout}
	ProtocolError              = &Error{Kind: KindProtocol}
)

// Builder provides structured error construction
type Builder struct {
	err Error
}

// New creates a new error builder
func New(component Component, kind Kind) *Builder {
	return &Builder{
		err: Error{
			Component: component,
			Kind:      kind,
		},
	}
}

// Op sets the operation name
func (b *Builder) Op(op string) *Builder {
	b.err.Op = op
	return b
}

// ID sets the relevant identifier (handle id, channel, permission name)
func (b *Builder) ID(id string) *Builder {
	b.err.ID = id
	return b
}

// Cause sets the underlying error
func (b *Builder) Cause(err error) *Builder {
	b.err.Cause = err
	return b
}

// Detail sets the human-readable detail message
func (b *Builder) Detail(msg string, args ...any) *Builder {
	if len(args) > 0 {
		b.err.Detail = fmt.Sprintf(msg, args...)
	} else {
		b.err.Detail = msg
	}
	return b
}

// Build returns the constructed error
func (b *Builder) Build() *Error {
	return &b.err
}

// Convenience constructors for common error patterns

// Protocol creates a malformed-payload error
func Protocol(component Component, op, detail string) *Error {
	return &Error{
		Component: component,
		Kind:      KindProtocol,
		Op:        op,
		Detail:    detail,
	}
}

// IllegalTransition creates a lifecycle error for a rejected edge.
// The session stays in its previous state.
func IllegalTransition(op, from, to string) *Error {
	return &Error{
		Component: ComponentLifecycle,
		Kind:      KindLifecycle,
		Op:        op,
		Detail:    fmt.Sprintf("no transition %s -> %s", from, to),
	}
}

// FreedHandle creates a reference error for a released or unknown handle
func FreedHandle(op string, handle uint64) *Error {
	return &Error{
		Component: ComponentHandle,
		Kind:      KindReference,
		Op:        op,
		ID:        fmt.Sprintf("handle %d", handle),
		Detail:    "handle released or unknown",
	}
}

// ReleasedTwice creates a double-release error
func ReleasedTwice(op string, handle uint64) *Error {
	return &Error{
		Component: ComponentHandle,
		Kind:      KindDoubleRelease,
		Op:        op,
		ID:        fmt.Sprintf("handle %d", handle),
		Detail:    "handle already released",
	}
}

// ResolvedTwice creates a duplicate-resolution error.
// The first resolution's outcome is unaffected.
func ResolvedTwice(op string, requestID uint64, name string) *Error {
	return &Error{
		Component: ComponentPermission,
		Kind:      KindDuplicateResolution,
		Op:        op,
		ID:        name,
		Detail:    fmt.Sprintf("request %d already resolved", requestID),
	}
}

// Timeout creates a deadline-exceeded error
func Timeout(component Component, op, id string) *Error {
	return &Error{
		Component: component,
		Kind:      KindTimeout,
		Op:        op,
		ID:        id,
		Detail:    "deadline exceeded",
	}
}

// UnknownWidget creates a contained, non-fatal unknown widget type error
func UnknownWidget(op, widgetID, typeName string) *Error {
	return &Error{
		Component: ComponentRender,
		Kind:      KindUnknownWidget,
		Op:        op,
		ID:        widgetID,
		Detail:    fmt.Sprintf("unrecognized widget type %q", typeName),
	}
}

// NotFound creates a not-found error
func NotFound(component Component, op, what, id string) *Error {
	return &Error{
		Component: component,
		Kind:      KindNotFound,
		Op:        op,
		ID:        id,
		Detail:    fmt.Sprintf("%s not found", what),
	}
}

// InvalidInput creates an invalid input error
func InvalidInput(component Component, op, detail string) *Error {
	return &Error{
		Component: component,
		Kind:      KindInvalidInput,
		Op:        op,
		Detail:    detail,
	}
}

// Closed creates an error for operations on a destroyed session or
// closed handle table
func Closed(component Component, op, id string) *Error {
	return &Error{
		Component: component,
		Kind:      KindClosed,
		Op:        op,
		ID:        id,
		Detail:    "closed",
	}
}

// Fatal wraps a fatal VM fault. The session manager responds by tearing
// the whole session down.
func Fatal(op, sessionID string, cause error) *Error {
	return &Error{
		Component: ComponentVM,
		Kind:      KindFatal,
		Op:        op,
		ID:        sessionID,
		Cause:     cause,
	}
}

// Wrap wraps an existing error with bridge context
func Wrap(component Component, kind Kind, cause error, op, detail string) *Error {
	return &Error{
		Component: component,
		Kind:      kind,
		Op:        op,
		Detail:    detail,
		Cause:     cause,
	}
}
