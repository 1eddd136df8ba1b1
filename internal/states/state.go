package states

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Handler is a state callback. Enter, exit and change handlers receive the
// context of the transition that runs them; loop handlers receive a context
// that is cancelled when the activation that started them ends.
type Handler func(ctx context.Context)

// noop is the default enter/exit handler.
func noop(context.Context) {}

// Handlers is a partial handler update. Nil fields are left untouched; a
// non-nil Loop is appended to the state's loop handlers, never replacing them.
type Handlers struct {
	Enter Handler
	Exit  Handler
	Loop  Handler
}

// activation is one period during which a state is current. Loop tasks are
// tied to the activation that spawned them, so a task left over from an
// earlier activation of the same state id can never pass for a current one.
type activation struct {
	id        string
	ctx       context.Context
	cancel    context.CancelFunc
	startedAt time.Time
}

// State is one named state of a Machine.
//
// Thread Safety: handler updates and queries are safe from any goroutine.
// Only the owning machine enters and exits a state.
type State struct {
	id    ID
	clock Clock

	mu        sync.RWMutex
	onEnter   Handler
	onExit    Handler
	loops     []Handler
	active    *activation
	startedAt time.Time
	entries   int
}

func newState(id ID, clock Clock) *State {
	return &State{
		id:      id,
		clock:   clock,
		onEnter: noop,
		onExit:  noop,
	}
}

// ID returns the state's normalized id.
func (s *State) ID() ID {
	return s.id
}

// Active reports whether the state currently has a live activation.
func (s *State) Active() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.active != nil
}

// RunningTime returns the time elapsed since the state was last entered. It
// is recomputed from the clock on every call and is zero for a state that
// was never entered.
func (s *State) RunningTime() time.Duration {
	s.mu.RLock()
	started := s.startedAt
	s.mu.RUnlock()

	if started.IsZero() {
		return 0
	}
	return s.clock.Now().Sub(started)
}

// LoopCount returns the number of loop handlers attached to the state.
func (s *State) LoopCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.loops)
}

// Entries returns how many times the state has been entered.
func (s *State) Entries() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.entries
}

// update applies a partial handler update.
func (s *State) update(h Handlers) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if h.Enter != nil {
		s.onEnter = h.Enter
	}
	if h.Exit != nil {
		s.onExit = h.Exit
	}
	if h.Loop != nil {
		s.loops = append(s.loops, h.Loop)
	}
}

// enter starts a new activation, runs the enter handler to completion and
// then spawns one background task per loop handler.
//
// Loop tasks are not started if the activation already ended while the enter
// handler ran (a nested transition moved the machine on).
func (s *State) enter(ctx, base context.Context, sched Scheduler) *activation {
	now := s.clock.Now()
	actCtx, cancel := context.WithCancel(base)
	act := &activation{
		id:        uuid.NewString(),
		ctx:       actCtx,
		cancel:    cancel,
		startedAt: now,
	}

	s.mu.Lock()
	if s.active != nil {
		s.active.cancel()
	}
	s.active = act
	s.startedAt = now
	s.entries++
	onEnter := s.onEnter
	loops := slices.Clone(s.loops)
	s.mu.Unlock()

	onEnter(ctx)

	for _, loop := range loops {
		if act.ctx.Err() != nil {
			break
		}
		spawnLoop(act, loop, sched)
	}
	return act
}

// exit ends the current activation and runs the exit handler to completion.
//
// Loop tasks are signalled, not joined: a task observes the cancellation the
// next time it takes the scheduler slot. Exiting a state that is not active
// does nothing and reports false.
func (s *State) exit(ctx context.Context) bool {
	s.mu.Lock()
	act := s.active
	if act == nil {
		s.mu.Unlock()
		return false
	}
	s.active = nil
	onExit := s.onExit
	s.mu.Unlock()

	act.cancel()
	onExit(ctx)
	return true
}

// spawnLoop runs handler repeatedly while act is live, holding the scheduler
// slot for one invocation at a time.
func spawnLoop(act *activation, handler Handler, sched Scheduler) {
	sched.Spawn(func() {
		for act.ctx.Err() == nil {
			ctx, release := sched.Acquire(act.ctx)
			if act.ctx.Err() != nil {
				release()
				return
			}
			handler(ctx)
			release()
			sched.Yield(act.ctx)
		}
	})
}
