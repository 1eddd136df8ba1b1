package definition

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/hovavo/pxt-states/internal/states"
)

// Validation limits.
const (
	maxMachines         = 100
	maxStatesPerMachine = 500
	maxActionsPerPhase  = 50
)

// Load reads, parses and validates a definitions file.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading definitions file: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates definitions. Unknown keys are rejected so that
// a misspelt action fails loudly instead of doing nothing.
func Parse(data []byte) (*File, error) {
	var f File
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parsing definitions: %w", err)
	}

	if err := f.Validate(); err != nil {
		return nil, err
	}
	return &f, nil
}

// Validate checks the file and returns the first problem found.
func (f *File) Validate() error {
	if len(f.Machines) > maxMachines {
		return fmt.Errorf("%w: exceeds maximum of %d machines", ErrInvalidDefinition, maxMachines)
	}

	for i, sel := range f.Start {
		if states.ParseSelector(sel).State == "" {
			return fmt.Errorf("%w: start[%d] is empty", ErrInvalidDefinition, i)
		}
	}

	seen := make(map[states.ID]bool, len(f.Machines))
	for i, m := range f.Machines {
		id := machineID(m.ID)
		if seen[id] {
			return fmt.Errorf("%w: %q", ErrDuplicateMachine, id)
		}
		seen[id] = true

		if err := m.validate(); err != nil {
			return fmt.Errorf("machines[%d] (%s): %w", i, id, err)
		}
	}
	return nil
}

func (m Machine) validate() error {
	if len(m.States) > maxStatesPerMachine {
		return fmt.Errorf("%w: exceeds maximum of %d states", ErrInvalidDefinition, maxStatesPerMachine)
	}
	if err := validateActions(m.Change, "change", false); err != nil {
		return err
	}

	seen := make(map[states.ID]bool, len(m.States))
	for _, s := range m.States {
		id := states.NewID(s.ID)
		switch {
		case id == "":
			return fmt.Errorf("%w: state id cannot be empty", ErrInvalidDefinition)
		case id == states.None:
			return fmt.Errorf("%w: state id %q is reserved", ErrInvalidDefinition, states.None)
		case seen[id]:
			return fmt.Errorf("%w: %q", ErrDuplicateState, id)
		}
		seen[id] = true

		if err := validateActions(s.Enter, id.String()+".enter", false); err != nil {
			return err
		}
		if err := validateActions(s.Exit, id.String()+".exit", false); err != nil {
			return err
		}
		if err := validateActions(s.Loop, id.String()+".loop", true); err != nil {
			return err
		}
	}
	return nil
}

func validateActions(actions []Action, where string, allowAfter bool) error {
	if len(actions) > maxActionsPerPhase {
		return fmt.Errorf("%w: %s exceeds maximum of %d actions", ErrInvalidAction, where, maxActionsPerPhase)
	}
	for i, a := range actions {
		if err := a.validate(allowAfter); err != nil {
			return fmt.Errorf("%s[%d]: %w", where, i, err)
		}
	}
	return nil
}

func (a Action) validate(allowAfter bool) error {
	switch a.kind() {
	case "":
		return fmt.Errorf("%w: must set exactly one of log, publish, goto, sleep", ErrInvalidAction)
	case "publish":
		if a.Publish.Topic == "" {
			return fmt.Errorf("%w: publish topic is required", ErrInvalidAction)
		}
		if a.Publish.QoS > 2 {
			return fmt.Errorf("%w: publish qos must be 0, 1 or 2", ErrInvalidAction)
		}
	case "goto":
		if states.ParseSelector(a.Goto).State == "" {
			return fmt.Errorf("%w: goto selector names no state", ErrInvalidAction)
		}
	case "sleep":
		if a.Sleep < 0 {
			return fmt.Errorf("%w: sleep cannot be negative", ErrInvalidAction)
		}
	}

	if a.After < 0 {
		return fmt.Errorf("%w: after cannot be negative", ErrInvalidAction)
	}
	if a.After > 0 && !allowAfter {
		return fmt.Errorf("%w: after is only allowed in loop actions", ErrInvalidAction)
	}
	return nil
}

// machineID normalises a declared machine id; empty means the main machine.
func machineID(id string) states.ID {
	n := states.NewID(id)
	if n == "" {
		return states.MainMachine
	}
	return n
}
