package handle

// ID is an opaque reference to a foreign object held in a Table.
// ID 0 is reserved and always invalid. IDs are monotonic per table and
// never reused, so a stale ID can never alias a younger allocation.
type ID uint64

// Kind classifies a handle's lifetime contract.
type Kind uint8

const (
	// Local handles are scoped to one bridge call and released when the
	// call's Scope closes, however the call exits.
	Local Kind = iota

	// Global handles live until an explicit Release or session destruction.
	Global

	// Weak handles never extend their referent's lifetime and resolve to
	// absent once the referent is gone.
	Weak
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case Local:
		return "local"
	case Global:
		return "global"
	case Weak:
		return "weak"
	}
	return "invalid"
}

// referent is one foreign object tracked by the table. Local and Global
// entries hold it; Weak entries share it without holding. The referent is
// reclaimed when its last holder goes.
type referent struct {
	ref     any
	holders int
	alive   bool
}

// entry binds a handle ID to its referent. refs is the handle's own
// reference count (Local/Global only): Retain increments, Release
// decrements, and the entry dies when it reaches zero.
type entry struct {
	r        *referent
	kind     Kind
	refs     int
	released bool
}
