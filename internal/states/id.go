package states

import "strings"

// ID identifies a state or a machine.
//
// IDs are normalized on construction: surrounding whitespace is trimmed and
// the result is lower-cased, so " Idle " and "idle" are the same ID. Build
// IDs with NewID; comparing raw strings bypasses normalization.
type ID string

const (
	// None is the sentinel state every machine starts in and returns to
	// when it is deactivated.
	None ID = "__none__"

	// MainMachine is the reserved id of the implicit main machine.
	MainMachine ID = "__main__"
)

// NewID normalizes s into an ID.
func NewID(s string) ID {
	return ID(strings.ToLower(strings.TrimSpace(s)))
}

// String returns the normalized id.
func (id ID) String() string {
	return string(id)
}

// IsNone reports whether id is the sentinel state.
func (id ID) IsNone() bool {
	return id == None
}
