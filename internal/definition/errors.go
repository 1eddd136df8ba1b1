package definition

import "errors"

// Domain errors for the definition package.
//
// These errors can be checked using errors.Is():
//
//	if errors.Is(err, definition.ErrInvalidAction) {
//	    // reject the file
//	}
var (
	// ErrInvalidDefinition is returned when a definition file fails validation.
	ErrInvalidDefinition = errors.New("definition: invalid")

	// ErrInvalidAction is returned when an action does not do exactly one thing.
	ErrInvalidAction = errors.New("definition: invalid action")

	// ErrDuplicateMachine is returned when two machines normalise to the same id.
	ErrDuplicateMachine = errors.New("definition: duplicate machine")

	// ErrDuplicateState is returned when a machine declares a state twice.
	ErrDuplicateState = errors.New("definition: duplicate state")

	// ErrNoPublisher is returned by a publish action when MQTT is unavailable.
	ErrNoPublisher = errors.New("definition: no publisher configured")
)
