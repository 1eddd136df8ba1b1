package states

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/hovavo/pxt-states/internal/scheduler"
)

// defaultLoopInterval is the pause between loop iterations when no
// scheduler is supplied.
const defaultLoopInterval = 20 * time.Millisecond

// Listener receives a record of every completed transition.
//
// OnTransition runs on the engine's control flow, after the machine's change
// handler and before the new state is entered. Implementations must return
// quickly; anything slow belongs on a queue.
type Listener interface {
	OnTransition(t Transition)
}

// ListenerFunc adapts a function to Listener.
type ListenerFunc func(t Transition)

// OnTransition calls f(t).
func (f ListenerFunc) OnTransition(t Transition) {
	f(t)
}

// Option configures a Registry.
type Option func(*Registry)

// WithClock sets the time source for running times and transition records.
func WithClock(c Clock) Option {
	return func(r *Registry) {
		if c != nil {
			r.clock = c
		}
	}
}

// WithScheduler sets the scheduler that serialises transitions and runs loop
// tasks.
func WithScheduler(s Scheduler) Option {
	return func(r *Registry) {
		if s != nil {
			r.sched = s
		}
	}
}

// WithLineWriter sets the debug line sink.
func WithLineWriter(w LineWriter) Option {
	return func(r *Registry) {
		r.sink = w
	}
}

// WithLogger sets the structured logger.
func WithLogger(l Logger) Option {
	return func(r *Registry) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithContext sets the parent of every activation context. Cancelling it
// stops all loop tasks, like Close.
func WithContext(ctx context.Context) Option {
	return func(r *Registry) {
		if ctx != nil {
			r.parent = ctx
		}
	}
}

// Registry owns the implicit main machine and any number of named machines.
// It is the process-scoped context of the engine: clock, scheduler and debug
// flag all live here rather than in package globals.
//
// Thread Safety: all methods are safe for concurrent use.
type Registry struct {
	clock  Clock
	sched  Scheduler
	sink   LineWriter
	logger Logger
	parent context.Context

	debug  *Debug
	base   context.Context
	cancel context.CancelFunc

	mu       sync.RWMutex
	main     *Machine
	machines map[ID]*Machine

	listenersMu sync.RWMutex
	listeners   []Listener
}

// New creates a registry holding only the main machine, which sits in the
// sentinel state.
func New(opts ...Option) *Registry {
	r := &Registry{
		clock:    SystemClock{},
		logger:   noopLogger{},
		parent:   context.Background(),
		machines: make(map[ID]*Machine),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.sched == nil {
		r.sched = scheduler.New(defaultLoopInterval)
	}

	r.debug = NewDebug(r.sink)
	r.base, r.cancel = context.WithCancel(r.parent)
	r.main = newMachine(MainMachine, r)
	return r
}

// SetLogger sets the structured logger.
func (r *Registry) SetLogger(l Logger) {
	if l == nil {
		l = noopLogger{}
	}
	r.mu.Lock()
	r.logger = l
	r.mu.Unlock()
}

func (r *Registry) log() Logger {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.logger
}

// Scheduler returns the registry's scheduler.
func (r *Registry) Scheduler() Scheduler {
	return r.sched
}

// Clock returns the registry's clock.
func (r *Registry) Clock() Clock {
	return r.clock
}

// Main returns the implicit main machine.
func (r *Registry) Main() *Machine {
	return r.main
}

// Resolve returns the machine with the given id, creating and registering an
// empty one if it does not exist. An empty id or MainMachine yields the main
// machine.
func (r *Registry) Resolve(machineID string) *Machine {
	id := NewID(machineID)
	if id == "" || id == MainMachine {
		return r.main
	}

	r.mu.RLock()
	m, ok := r.machines[id]
	r.mu.RUnlock()
	if ok {
		return m
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if m, ok := r.machines[id]; ok {
		return m
	}
	m = newMachine(id, r)
	r.machines[id] = m
	r.logger.Debug("machine created", "machine", id)
	return m
}

// Lookup returns the machine with the given id without creating it.
func (r *Registry) Lookup(machineID string) (*Machine, bool) {
	return r.lookup(NewID(machineID))
}

func (r *Registry) lookup(id ID) (*Machine, bool) {
	if id == "" || id == MainMachine {
		return r.main, true
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.machines[id]
	return m, ok
}

// Machines returns every machine, main first, the rest sorted by id.
func (r *Registry) Machines() []*Machine {
	r.mu.RLock()
	named := make([]*Machine, 0, len(r.machines))
	for _, m := range r.machines {
		named = append(named, m)
	}
	r.mu.RUnlock()

	slices.SortFunc(named, func(a, b *Machine) int {
		switch {
		case a.id < b.id:
			return -1
		case a.id > b.id:
			return 1
		}
		return 0
	})
	return append([]*Machine{r.main}, named...)
}

// Deactivate moves the named machine back to its sentinel state. Unknown
// machines are ignored.
func (r *Registry) Deactivate(ctx context.Context, machineID string) {
	ctx, release := r.sched.Acquire(ctx)
	defer release()
	r.deactivate(context.WithoutCancel(ctx), NewID(machineID))
}

// deactivate runs with the scheduler slot already held.
func (r *Registry) deactivate(ctx context.Context, id ID) {
	m, ok := r.lookup(id)
	if !ok {
		return
	}
	m.transition(ctx, None)
}

// cascade deactivates the named machine sharing an exited state's id. The
// main machine is never a cascade target, so a state named "" or MainMachine
// leaves it alone.
func (r *Registry) cascade(ctx context.Context, id ID) {
	if id == "" || id == MainMachine {
		return
	}
	r.mu.RLock()
	m, ok := r.machines[id]
	r.mu.RUnlock()
	if !ok {
		return
	}
	m.transition(ctx, None)
}

// machineFor resolves the machine a selector addresses, creating it if needed.
func (r *Registry) machineFor(sel Selector) *Machine {
	if !sel.Qualified() {
		return r.main
	}
	return r.Resolve(sel.Machine.String())
}

// SetState transitions the machine addressed by selector.
//
// Parameters:
//   - ctx: Caller context; a handler's context re-enters the engine
//   - selector: "[machine.]state"; an unqualified selector targets the main machine
func (r *Registry) SetState(ctx context.Context, selector string) {
	sel := ParseSelector(selector)
	r.machineFor(sel).SetState(ctx, sel.State.String())
}

// OnEnter replaces the enter handler of the selected state.
func (r *Registry) OnEnter(selector string, h Handler) {
	sel := ParseSelector(selector)
	r.machineFor(sel).OnEnter(sel.State.String(), h)
}

// OnExit replaces the exit handler of the selected state.
func (r *Registry) OnExit(selector string, h Handler) {
	sel := ParseSelector(selector)
	r.machineFor(sel).OnExit(sel.State.String(), h)
}

// OnLoop adds a loop handler to the selected state.
func (r *Registry) OnLoop(selector string, h Handler) {
	sel := ParseSelector(selector)
	r.machineFor(sel).OnLoop(sel.State.String(), h)
}

// OnChange sets the main machine's change handler.
func (r *Registry) OnChange(h Handler) {
	r.main.OnChange(h)
}

// CurrentState returns the main machine's current state id.
func (r *Registry) CurrentState() ID {
	return r.main.CurrentID()
}

// PreviousState returns the main machine's previous state id.
func (r *Registry) PreviousState() ID {
	return r.main.PreviousID()
}

// NextState returns the main machine's in-flight transition target.
func (r *Registry) NextState() ID {
	return r.main.NextID()
}

// MatchCurrent reports whether the selected state is current on its machine.
// A machine that does not exist is treated as sitting in the sentinel state
// and is not created.
func (r *Registry) MatchCurrent(selector string) bool {
	sel := ParseSelector(selector)
	m, ok := r.lookup(sel.Machine)
	if !ok {
		return sel.State == None
	}
	return m.MatchCurrent(sel.State.String())
}

// MatchPrevious reports whether the selected state is the previous state of
// its machine.
func (r *Registry) MatchPrevious(selector string) bool {
	sel := ParseSelector(selector)
	m, ok := r.lookup(sel.Machine)
	if !ok {
		return sel.State == None
	}
	return m.MatchPrevious(sel.State.String())
}

// MatchNext reports whether the selected state is the target of the
// transition in progress on its machine.
func (r *Registry) MatchNext(selector string) bool {
	sel := ParseSelector(selector)
	m, ok := r.lookup(sel.Machine)
	if !ok {
		return sel.State == None
	}
	return m.MatchNext(sel.State.String())
}

// RunningTime returns how long the main machine has been in its current state.
func (r *Registry) RunningTime() time.Duration {
	return r.main.RunningTime()
}

// SetDebug turns transition debug lines on or off.
func (r *Registry) SetDebug(enabled bool) {
	r.debug.SetEnabled(enabled)
}

// DebugEnabled reports whether transition debug lines are on.
func (r *Registry) DebugEnabled() bool {
	return r.debug.Enabled()
}

// AddListener registers l for every subsequent transition on every machine.
func (r *Registry) AddListener(l Listener) {
	if l == nil {
		return
	}
	r.listenersMu.Lock()
	r.listeners = append(r.listeners, l)
	r.listenersMu.Unlock()
}

func (r *Registry) notify(t Transition) {
	r.listenersMu.RLock()
	listeners := slices.Clone(r.listeners)
	r.listenersMu.RUnlock()

	for _, l := range listeners {
		l.OnTransition(t)
	}
}

// Close cancels every activation, so all loop tasks stop at their next
// check. Machines keep their current state; Close does not run exit handlers.
func (r *Registry) Close() {
	r.cancel()
}
