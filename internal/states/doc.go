// Package states is the finite-state-machine runtime.
//
// A program declares named states, attaches handlers to their activation
// (enter), deactivation (exit) and "while active" repetition (loop), and drives
// transitions explicitly with SetState. Each machine has at most one active
// state. Loop handlers run as background tasks for as long as the activation
// that started them is live.
//
// Architecture:
//
//	┌──────────────────────────────────────────────────────┐
//	│                 Registry (registry.go)               │
//	│   clock · scheduler · debug · listeners              │
//	│   ┌──────────────┐   ┌──────────┐   ┌──────────┐     │
//	│   │ main machine │   │ "light"  │   │  "idle"  │ ... │
//	│   └──────┬───────┘   └──────────┘   └──────────┘     │
//	│          ▼                                           │
//	│   Machine (machine.go): current/previous/next        │
//	│          ▼                                           │
//	│   State (state.go): enter · exit · loop tasks        │
//	└──────────────────────────────────────────────────────┘
//
// # Selectors
//
// Registry operations take a selector of the form "[machine.]state". Both
// parts are compared case-insensitively after trimming whitespace. A bare
// state id addresses the main machine. Unknown machines and states are
// created on first reference; nothing is ever rejected.
//
// # Concurrency
//
// The engine models one logical control flow. The Scheduler hands out a slot
// that is carried in the context: SetState acquires it, handlers run while it
// is held, and a handler that calls back into the engine with its own context
// re-enters without blocking. Loop tasks hold the slot for one invocation at a
// time and yield between iterations. A context carrying the slot must not be
// handed to another goroutine.
//
// # Usage
//
//	reg := states.New(states.WithLineWriter(log))
//	defer reg.Close()
//
//	reg.OnEnter("Idle", func(ctx context.Context) { display.Show("ready") })
//	reg.OnLoop("Idle", func(ctx context.Context) {
//	    if reg.RunningTime() > 3*time.Second {
//	        reg.SetState(ctx, "Done")
//	    }
//	})
//	reg.SetState(ctx, "Idle")
package states
