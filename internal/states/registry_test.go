package states

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

func TestIdleDoneScenario(t *testing.T) {
	env := newTestRegistry(t)
	ctx := context.Background()
	reg := env.reg
	reg.SetDebug(true)

	var idleEntered, doneEntered int
	var nextFromExit ID
	reg.OnEnter("Idle", func(context.Context) { idleEntered++ })
	reg.OnExit("Idle", func(context.Context) { nextFromExit = reg.NextState() })
	reg.OnEnter("Done", func(context.Context) { doneEntered++ })

	if reg.CurrentState() != None {
		t.Fatalf("CurrentState() = %q, want sentinel", reg.CurrentState())
	}

	reg.SetState(ctx, "Idle")
	if idleEntered != 1 {
		t.Errorf("idle entered %d times, want 1", idleEntered)
	}
	if reg.CurrentState() != "idle" || reg.PreviousState() != "__none__" {
		t.Errorf("current=%q previous=%q, want idle __none__", reg.CurrentState(), reg.PreviousState())
	}

	reg.SetState(ctx, "Done")
	if nextFromExit != "done" {
		t.Errorf("NextState() inside exit(Idle) = %q, want done", nextFromExit)
	}
	if reg.CurrentState() != "done" || reg.PreviousState() != "idle" {
		t.Errorf("current=%q previous=%q, want done idle", reg.CurrentState(), reg.PreviousState())
	}
	if doneEntered != 1 {
		t.Errorf("done entered %d times, want 1", doneEntered)
	}

	want := []string{"State: idle", "State: done"}
	if got := env.lines.Lines(); !equalStrings(got, want) {
		t.Errorf("debug lines = %v, want %v", got, want)
	}
}

func TestSelectorRouting(t *testing.T) {
	env := newTestRegistry(t)
	ctx := context.Background()
	reg := env.reg

	reg.SetState(ctx, "light.On")
	light, ok := reg.Lookup("light")
	if !ok {
		t.Fatal("machine light should have been created")
	}
	if light.CurrentID() != "on" {
		t.Errorf("light current = %q, want on", light.CurrentID())
	}
	if reg.CurrentState() != None {
		t.Errorf("main current = %q, want sentinel", reg.CurrentState())
	}

	reg.SetState(ctx, "On")
	if reg.CurrentState() != "on" {
		t.Errorf("main current = %q, want on", reg.CurrentState())
	}
	if _, ok := reg.Lookup("on"); ok {
		t.Error("bare selector must not create a machine")
	}
}

func TestMatchPredicates(t *testing.T) {
	env := newTestRegistry(t)
	ctx := context.Background()
	reg := env.reg

	reg.SetState(ctx, "Idle")
	reg.SetState(ctx, "light.On")

	tests := []struct {
		name  string
		match func(string) bool
		sel   string
		want  bool
	}{
		{"current exact", reg.MatchCurrent, "idle", true},
		{"current padded", reg.MatchCurrent, " Idle ", true},
		{"current upper", reg.MatchCurrent, "IDLE", true},
		{"current other", reg.MatchCurrent, "done", false},
		{"current qualified", reg.MatchCurrent, "light.ON", true},
		{"current qualified miss", reg.MatchCurrent, "light.off", false},
		{"previous main", reg.MatchPrevious, "__none__", true},
		{"previous qualified", reg.MatchPrevious, "light.__none__", true},
		{"next idle", reg.MatchNext, "__none__", true},
		{"next other", reg.MatchNext, "idle", false},
		{"unknown machine sentinel", reg.MatchCurrent, "ghost.__none__", true},
		{"unknown machine state", reg.MatchCurrent, "ghost.on", false},
		{"explicit main", reg.MatchCurrent, "__main__.idle", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.match(tt.sel); got != tt.want {
				t.Errorf("match(%q) = %v, want %v", tt.sel, got, tt.want)
			}
		})
	}

	if _, ok := reg.Lookup("ghost"); ok {
		t.Error("matching must not create machines")
	}
}

func TestCascadingDeactivation(t *testing.T) {
	env := newTestRegistry(t)
	ctx := context.Background()
	reg := env.reg

	sub := reg.Resolve("idle")
	var subExited int
	var parentDuringTeardown ID
	var subLoops atomic.Int64
	reg.OnExit("idle.blink", func(context.Context) {
		subExited++
		parentDuringTeardown = reg.CurrentState()
	})
	reg.OnLoop("idle.blink", func(context.Context) { subLoops.Add(1) })

	reg.SetState(ctx, "Idle")
	reg.SetState(ctx, "idle.blink")
	waitFor(t, "sub-machine loop", func() bool { return subLoops.Load() > 0 })

	reg.SetState(ctx, "Done")

	if subExited != 1 {
		t.Errorf("sub-machine exit ran %d times, want 1", subExited)
	}
	if parentDuringTeardown != "idle" {
		t.Errorf("parent state seen during teardown = %q, want idle", parentDuringTeardown)
	}
	if sub.CurrentID() != None || sub.PreviousID() != "blink" {
		t.Errorf("sub current=%q previous=%q, want sentinel blink", sub.CurrentID(), sub.PreviousID())
	}

	stopped := subLoops.Load()
	time.Sleep(10 * time.Millisecond)
	if subLoops.Load() != stopped {
		t.Error("sub-machine loop kept running after cascade")
	}
}

func TestCascadeSkipsUnknownAndSelf(t *testing.T) {
	env := newTestRegistry(t)
	ctx := context.Background()
	reg := env.reg

	// A state named after its own machine must not deactivate that machine.
	door := reg.Resolve("door")
	door.SetState(ctx, "door")
	door.SetState(ctx, "open")
	if door.CurrentID() != "open" {
		t.Errorf("door current = %q, want open", door.CurrentID())
	}

	reg.SetState(ctx, "a")
	reg.SetState(ctx, "b")
	if _, ok := reg.Lookup("a"); ok {
		t.Error("cascade must not create machines")
	}
}

func TestCascadeSkipsMainMachine(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name      string
		selectors []string
		want      ID
	}{
		{"empty state on named machine", []string{"Idle", "light.", "light.on"}, "idle"},
		{"empty state on main", []string{"", "foo"}, "foo"},
		{"state named after main", []string{"Idle", "porch.__main__", "porch.off"}, "idle"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reg := newTestRegistry(t).reg
			for _, sel := range tt.selectors {
				reg.SetState(ctx, sel)
			}
			if got := reg.CurrentState(); got != tt.want {
				t.Errorf("main current = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestSetLoggerConcurrentWithTransitions(t *testing.T) {
	env := newTestRegistry(t)
	ctx := context.Background()
	reg := env.reg

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 50; i++ {
			reg.SetLogger(noopLogger{})
		}
	}()
	for i := 0; i < 50; i++ {
		if i%2 == 0 {
			reg.SetState(ctx, "a")
		} else {
			reg.SetState(ctx, "b")
		}
	}
	<-done

	reg.SetLogger(nil)
	reg.SetState(ctx, "c")
	if reg.CurrentState() != "c" {
		t.Errorf("current = %q, want c", reg.CurrentState())
	}
}

func TestDeactivate(t *testing.T) {
	env := newTestRegistry(t)
	ctx := context.Background()
	reg := env.reg

	var exited int
	reg.OnExit("fan.on", func(context.Context) { exited++ })
	reg.SetState(ctx, "fan.on")

	reg.Deactivate(ctx, "FAN")
	fan, _ := reg.Lookup("fan")
	if fan.CurrentID() != None || exited != 1 {
		t.Errorf("current=%q exits=%d, want sentinel 1", fan.CurrentID(), exited)
	}

	// Unknown machines are ignored.
	reg.Deactivate(ctx, "nothing")
	if _, ok := reg.Lookup("nothing"); ok {
		t.Error("Deactivate must not create machines")
	}
}

func TestResolveAndMachines(t *testing.T) {
	env := newTestRegistry(t)
	reg := env.reg

	if reg.Resolve("") != reg.Main() || reg.Resolve("__MAIN__") != reg.Main() {
		t.Error("empty id and __main__ should resolve to the main machine")
	}

	b := reg.Resolve("beta")
	a := reg.Resolve(" Alpha ")
	if reg.Resolve("BETA") != b {
		t.Error("Resolve should return the existing machine")
	}
	if a.CurrentID() != None {
		t.Errorf("new machine current = %q, want sentinel", a.CurrentID())
	}

	ms := reg.Machines()
	want := []ID{MainMachine, "alpha", "beta"}
	if len(ms) != len(want) {
		t.Fatalf("Machines() returned %d machines, want %d", len(ms), len(want))
	}
	for i, m := range ms {
		if m.ID() != want[i] {
			t.Errorf("Machines()[%d] = %q, want %q", i, m.ID(), want[i])
		}
	}
}

func TestDebugLines(t *testing.T) {
	env := newTestRegistry(t)
	ctx := context.Background()
	reg := env.reg

	reg.SetState(ctx, "silent")
	if len(env.lines.Lines()) != 0 {
		t.Fatalf("debug off wrote %v", env.lines.Lines())
	}

	reg.SetDebug(true)
	if !reg.DebugEnabled() {
		t.Fatal("DebugEnabled() = false after SetDebug(true)")
	}
	reg.OnEnter("known", nil)
	reg.SetState(ctx, "known")
	reg.SetState(ctx, "light.On")

	want := []string{
		"State: known",
		"State on not declared, created",
		"Machine: light",
		"State: on",
	}
	if got := env.lines.Lines(); !equalStrings(got, want) {
		t.Errorf("debug lines:\n got %v\nwant %v", got, want)
	}
}

func TestListenerReceivesTransitions(t *testing.T) {
	env := newTestRegistry(t)
	ctx := context.Background()
	reg := env.reg

	var got []Transition
	var enteredBeforeListener bool
	reg.OnEnter("b", func(context.Context) { enteredBeforeListener = len(got) == 0 })
	reg.AddListener(ListenerFunc(func(tr Transition) { got = append(got, tr) }))
	reg.AddListener(nil)

	reg.SetState(ctx, "a")
	env.clock.Advance(1500 * time.Millisecond)
	reg.SetState(ctx, "pump.b")
	reg.SetState(ctx, "b")

	if len(got) != 3 {
		t.Fatalf("got %d transitions, want 3", len(got))
	}
	if got[0].From != None || got[0].To != "a" || got[0].Machine != MainMachine || !got[0].Created {
		t.Errorf("first transition = %+v", got[0])
	}
	if got[1].Machine != "pump" || got[1].To != "b" {
		t.Errorf("second transition = %+v", got[1])
	}
	if got[2].From != "a" || got[2].Elapsed != 1500*time.Millisecond || got[2].Created {
		t.Errorf("third transition = %+v", got[2])
	}
	if got[2].ID == "" || got[2].ID == got[0].ID {
		t.Error("transition ids must be unique")
	}
	if !got[2].At.Equal(env.clock.Now()) {
		t.Errorf("At = %v, want %v", got[2].At, env.clock.Now())
	}
	if enteredBeforeListener {
		t.Error("listener must run before the new state is entered")
	}
}

func TestCloseStopsLoops(t *testing.T) {
	env := newTestRegistry(t)
	ctx := context.Background()
	reg := env.reg

	var n atomic.Int64
	reg.OnLoop("spin", func(context.Context) { n.Add(1) })
	reg.SetState(ctx, "spin")
	waitFor(t, "loop", func() bool { return n.Load() > 0 })

	reg.Close()
	done := make(chan struct{})
	go func() {
		env.sched.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("loop tasks did not stop after Close")
	}

	if reg.CurrentState() != "spin" {
		t.Errorf("Close changed current state to %q", reg.CurrentState())
	}
}

func TestConcurrentSetStateIsSerialised(t *testing.T) {
	env := newTestRegistry(t)
	reg := env.reg

	var inside, overlap atomic.Int64
	guard := func(context.Context) {
		if inside.Add(1) > 1 {
			overlap.Add(1)
		}
		time.Sleep(100 * time.Microsecond)
		inside.Add(-1)
	}
	for _, s := range []string{"a", "b", "c"} {
		reg.OnEnter(s, guard)
		reg.OnExit(s, guard)
	}

	done := make(chan struct{})
	for i := 0; i < 4; i++ {
		go func(i int) {
			defer func() { done <- struct{}{} }()
			for j := 0; j < 25; j++ {
				reg.SetState(context.Background(), []string{"a", "b", "c"}[(i+j)%3])
			}
		}(i)
	}
	for i := 0; i < 4; i++ {
		<-done
	}

	if overlap.Load() != 0 {
		t.Errorf("%d handler invocations overlapped", overlap.Load())
	}
}
