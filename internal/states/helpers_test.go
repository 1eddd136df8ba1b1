package states

import (
	"sync"
	"testing"
	"time"

	"github.com/hovavo/pxt-states/internal/scheduler"
)

// fakeClock is a manually advanced Clock.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// lineRecorder collects debug lines.
type lineRecorder struct {
	mu    sync.Mutex
	lines []string
}

func (r *lineRecorder) WriteLine(line string) {
	r.mu.Lock()
	r.lines = append(r.lines, line)
	r.mu.Unlock()
}

func (r *lineRecorder) Lines() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.lines...)
}

// eventRecorder collects handler invocations in order.
type eventRecorder struct {
	mu     sync.Mutex
	events []string
}

func (r *eventRecorder) add(e string) {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
}

func (r *eventRecorder) Events() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.events...)
}

type testEnv struct {
	reg   *Registry
	clock *fakeClock
	sched *scheduler.Cooperative
	lines *lineRecorder
}

// newTestRegistry builds a registry with a fake clock, a fast scheduler and
// a recording debug sink. The registry is closed and its loop tasks joined
// when the test ends.
func newTestRegistry(t *testing.T) *testEnv {
	t.Helper()

	env := &testEnv{
		clock: newFakeClock(),
		sched: scheduler.New(time.Millisecond),
		lines: &lineRecorder{},
	}
	env.reg = New(
		WithClock(env.clock),
		WithScheduler(env.sched),
		WithLineWriter(env.lines),
	)

	t.Cleanup(func() {
		env.reg.Close()
		done := make(chan struct{})
		go func() {
			env.sched.Wait()
			close(done)
		}()
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Error("loop tasks still running after Close")
		}
	})
	return env
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
