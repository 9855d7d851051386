// Package handle implements the reference handle table that owns
// foreign-object lifetimes across the runtime boundary.
//
// A handle is an opaque ID standing in for a host- or VM-owned object.
// Three lifetime contracts exist:
//
//	Local   - scoped to one bridge call, released when its Scope closes
//	Global  - lives until explicit Release or session destruction
//	Weak    - never extends lifetime, resolves to absent once the
//	          referent is gone
//
// Each session owns exactly one Table; tables of different sessions share
// nothing and their IDs are independent. Reference counts never go
// negative, a released handle can never be dereferenced again (IDs are
// never reused), and releasing twice reports DoubleRelease.
//
// Closing the table, which is the session-destruction path, force-releases
// every outstanding Global handle and logs each one as a non-fatal leak
// diagnostic.
package handle
