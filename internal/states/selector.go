package states

import "strings"

// Selector addresses a state, optionally qualified with a machine.
type Selector struct {
	// Machine is the target machine. Empty when the selector is unqualified,
	// which means the main machine.
	Machine ID

	// State is the target state.
	State ID
}

// ParseSelector splits s on its first '.'.
//
// "light.On" yields machine "light" and state "on"; "On" yields an empty
// machine and state "on". There is no escaping and no error path: every
// string is a valid selector.
func ParseSelector(s string) Selector {
	machine, state, ok := strings.Cut(s, ".")
	if !ok {
		return Selector{State: NewID(s)}
	}
	return Selector{Machine: NewID(machine), State: NewID(state)}
}

// Qualified reports whether the selector names a machine.
func (s Selector) Qualified() bool {
	return s.Machine != ""
}

// String renders the selector back into "[machine.]state" form.
func (s Selector) String() string {
	if !s.Qualified() {
		return s.State.String()
	}
	return s.Machine.String() + "." + s.State.String()
}
