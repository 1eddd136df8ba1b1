package states

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Transition describes one completed change of a machine's current state.
// It is delivered to registry listeners with the post-transition view.
type Transition struct {
	// ID uniquely identifies the transition.
	ID string `json:"id"`

	// Machine is the machine that changed state.
	Machine ID `json:"machine"`

	// From is the outgoing state (None for a machine's first transition).
	From ID `json:"from"`

	// To is the new current state.
	To ID `json:"to"`

	// At is the clock reading when the new state became current.
	At time.Time `json:"at"`

	// Elapsed is how long the machine spent in From.
	Elapsed time.Duration `json:"elapsed"`

	// Created is true when To did not exist before the transition.
	Created bool `json:"created"`
}

// Snapshot is a read-only view of a machine.
type Snapshot struct {
	ID          ID            `json:"id"`
	Main        bool          `json:"main"`
	Current     ID            `json:"current"`
	Previous    ID            `json:"previous"`
	Next        ID            `json:"next"`
	RunningTime time.Duration `json:"running_time"`
	States      []ID          `json:"states"`
}

// Machine owns a set of states and runs the transition protocol between
// them. Machines are created by a Registry and never destroyed.
//
// Thread Safety: all methods are safe for concurrent use. Transitions are
// serialised through the registry's scheduler slot.
type Machine struct {
	id  ID
	reg *Registry

	mu       sync.RWMutex
	states   map[ID]*State
	current  *State
	previous *State
	next     *State
	onChange Handler
}

// newMachine creates a machine sitting in its sentinel state.
func newMachine(id ID, reg *Registry) *Machine {
	m := &Machine{
		id:       id,
		reg:      reg,
		states:   make(map[ID]*State),
		onChange: noop,
	}
	sentinel, _ := m.resolveLocked(None)
	m.current = sentinel
	sentinel.enter(context.Background(), reg.base, reg.sched)
	return m
}

// ID returns the machine id.
func (m *Machine) ID() ID {
	return m.id
}

// IsMain reports whether this is the registry's implicit main machine.
func (m *Machine) IsMain() bool {
	return m.id == MainMachine
}

// SetState transitions the machine to state, creating the state if needed.
//
// The protocol runs to completion before SetState returns:
//  1. A transition to the current state is a no-op
//  2. The target is resolved (or created) and published as the next state
//  3. The outgoing state is exited, then a machine named like it is deactivated
//  4. previous/current/next are updated
//  5. Debug lines are written and the change handler and listeners run
//  6. The target is entered and its loop tasks are started
//
// Parameters:
//   - ctx: Context of the caller; a context carrying the scheduler slot
//     (such as one handed to a handler) re-enters without blocking
//   - state: State id; normalized before use
func (m *Machine) SetState(ctx context.Context, state string) {
	ctx, release := m.reg.sched.Acquire(ctx)
	defer release()
	m.transition(context.WithoutCancel(ctx), NewID(state))
}

// transition runs the protocol. The caller holds the scheduler slot.
func (m *Machine) transition(ctx context.Context, id ID) {
	m.mu.Lock()
	outgoing := m.current
	if outgoing != nil && outgoing.id == id {
		m.mu.Unlock()
		return
	}
	target, created := m.resolveLocked(id)
	m.next = target
	m.mu.Unlock()

	if created {
		m.reg.debug.Linef("State %s not declared, created", id)
	}

	var elapsed time.Duration
	if outgoing != nil {
		elapsed = outgoing.RunningTime()
		// A state that was already inactive is mid-exit further up the
		// stack; its cascade has already been requested.
		if outgoing.exit(ctx) && outgoing.id != m.id {
			m.reg.cascade(ctx, outgoing.id)
		}
	}

	m.mu.Lock()
	if m.current != outgoing {
		// A nested transition issued while exiting already moved the machine.
		m.mu.Unlock()
		return
	}
	m.previous = outgoing
	m.current = target
	m.next = nil
	onChange := m.onChange
	m.mu.Unlock()

	if !m.IsMain() {
		m.reg.debug.Linef("Machine: %s", m.id)
	}
	m.reg.debug.Linef("State: %s", target.id)

	onChange(ctx)

	from := None
	if outgoing != nil {
		from = outgoing.id
	}
	m.reg.notify(Transition{
		ID:      uuid.NewString(),
		Machine: m.id,
		From:    from,
		To:      target.id,
		At:      m.reg.clock.Now(),
		Elapsed: elapsed,
		Created: created,
	})

	m.mu.RLock()
	current := m.current
	m.mu.RUnlock()
	if current != target {
		// The change handler moved the machine elsewhere.
		return
	}

	act := target.enter(ctx, m.reg.base, m.reg.sched)
	m.reg.log().Debug("state entered",
		"machine", m.id,
		"state", target.id,
		"activation", act.id,
	)
}

// resolveLocked returns the state with the given id, creating it when it does
// not exist yet. The caller holds m.mu.
func (m *Machine) resolveLocked(id ID) (*State, bool) {
	if s, ok := m.states[id]; ok {
		return s, false
	}
	s := newState(id, m.reg.clock)
	m.states[id] = s
	return s, true
}

// Define attaches a partial handler set to state, creating the state if it
// has not been declared yet.
func (m *Machine) Define(state string, h Handlers) *State {
	m.mu.Lock()
	s, _ := m.resolveLocked(NewID(state))
	m.mu.Unlock()

	s.update(h)
	return s
}

// OnEnter replaces the enter handler of state.
func (m *Machine) OnEnter(state string, h Handler) {
	m.Define(state, Handlers{Enter: h})
}

// OnExit replaces the exit handler of state.
func (m *Machine) OnExit(state string, h Handler) {
	m.Define(state, Handlers{Exit: h})
}

// OnLoop adds a loop handler to state. A state may have any number of loop
// handlers; all of them run concurrently while the state is active.
func (m *Machine) OnLoop(state string, h Handler) {
	m.Define(state, Handlers{Loop: h})
}

// OnChange sets the handler invoked after every transition of this machine,
// once current/previous/next reflect the new state. Nil clears it.
func (m *Machine) OnChange(h Handler) {
	if h == nil {
		h = noop
	}
	m.mu.Lock()
	m.onChange = h
	m.mu.Unlock()
}

// CurrentID returns the current state id, or None.
func (m *Machine) CurrentID() ID {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return idOf(m.current)
}

// PreviousID returns the previous state id, or None.
func (m *Machine) PreviousID() ID {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return idOf(m.previous)
}

// NextID returns the destination of the transition in progress, or None.
// It is only set between a transition being requested and the new state
// becoming current, so exit handlers can read where the machine is going.
func (m *Machine) NextID() ID {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return idOf(m.next)
}

// MatchCurrent reports whether state is the current state.
func (m *Machine) MatchCurrent(state string) bool {
	return m.CurrentID() == NewID(state)
}

// MatchPrevious reports whether state is the previous state.
func (m *Machine) MatchPrevious(state string) bool {
	return m.PreviousID() == NewID(state)
}

// MatchNext reports whether state is the destination of the transition in
// progress.
func (m *Machine) MatchNext(state string) bool {
	return m.NextID() == NewID(state)
}

// Has reports whether state has ever been created on this machine.
func (m *Machine) Has(state string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.states[NewID(state)]
	return ok
}

// State returns the named state without creating it.
func (m *Machine) State(state string) (*State, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.states[NewID(state)]
	return s, ok
}

// StateIDs returns the ids of all states, sorted.
func (m *Machine) StateIDs() []ID {
	m.mu.RLock()
	ids := make([]ID, 0, len(m.states))
	for id := range m.states {
		ids = append(ids, id)
	}
	m.mu.RUnlock()

	slices.Sort(ids)
	return ids
}

// RunningTime returns how long the current state has been active.
func (m *Machine) RunningTime() time.Duration {
	m.mu.RLock()
	current := m.current
	m.mu.RUnlock()

	if current == nil {
		return 0
	}
	return current.RunningTime()
}

// Snapshot returns a read-only view of the machine.
func (m *Machine) Snapshot() Snapshot {
	m.mu.RLock()
	snap := Snapshot{
		ID:       m.id,
		Main:     m.IsMain(),
		Current:  idOf(m.current),
		Previous: idOf(m.previous),
		Next:     idOf(m.next),
	}
	m.mu.RUnlock()

	snap.RunningTime = m.RunningTime()
	snap.States = m.StateIDs()
	return snap
}

func idOf(s *State) ID {
	if s == nil {
		return None
	}
	return s.id
}
