// Package scheduler provides the cooperative scheduler behind the states
// engine: one control-flow slot shared by the caller and every loop task.
//
// A goroutine holding the slot is the engine's single logical control flow.
// Background tasks take the slot for one unit of work, give it back and
// yield, so tasks interleave instead of running in parallel.
package scheduler

import (
	"context"
	"runtime"
	"sync"
	"sync/atomic"
	"time"
)

type slotKey struct{}

// hold marks one acquisition of the slot. It travels in the context handed
// to the holder so nested calls on the same control flow re-enter.
type hold struct {
	owner    *Cooperative
	released atomic.Bool
}

// Cooperative serialises work through a single slot.
//
// Thread Safety: all methods are safe for concurrent use.
type Cooperative struct {
	slot     chan struct{}
	interval time.Duration
	wg       sync.WaitGroup
}

// New creates a scheduler whose tasks pause for interval between iterations.
// A non-positive interval only yields the processor.
func New(interval time.Duration) *Cooperative {
	return &Cooperative{
		slot:     make(chan struct{}, 1),
		interval: interval,
	}
}

// Interval returns the pause between loop iterations.
func (c *Cooperative) Interval() time.Duration {
	return c.interval
}

// Acquire takes the slot, blocking until it is free. If ctx already carries a
// live hold on this scheduler the call re-enters and the returned release is
// a no-op.
func (c *Cooperative) Acquire(ctx context.Context) (context.Context, func()) {
	if c.Holds(ctx) {
		return ctx, func() {}
	}

	c.slot <- struct{}{}
	h := &hold{owner: c}
	return context.WithValue(ctx, slotKey{}, h), func() {
		if h.released.CompareAndSwap(false, true) {
			<-c.slot
		}
	}
}

// Holds reports whether ctx carries a live hold on this scheduler.
func (c *Cooperative) Holds(ctx context.Context) bool {
	h, ok := ctx.Value(slotKey{}).(*hold)
	return ok && h.owner == c && !h.released.Load()
}

// Spawn runs task on its own goroutine. Wait blocks until every spawned task
// has returned.
func (c *Cooperative) Spawn(task func()) {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		task()
	}()
}

// Yield pauses the calling task between iterations. It returns early when
// ctx is done.
func (c *Cooperative) Yield(ctx context.Context) {
	if c.interval <= 0 {
		runtime.Gosched()
		return
	}

	timer := time.NewTimer(c.interval)
	defer timer.Stop()

	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}

// Sleep waits for d without blocking the rest of the engine. If ctx holds the
// slot it is given up for the duration and taken back before Sleep returns.
//
// Returns ctx.Err() if ctx ended before d elapsed.
func (c *Cooperative) Sleep(ctx context.Context, d time.Duration) error {
	h, held := ctx.Value(slotKey{}).(*hold)
	held = held && h.owner == c && !h.released.Load()
	if held {
		<-c.slot
		defer func() { c.slot <- struct{}{} }()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Wait blocks until every spawned task has returned.
func (c *Cooperative) Wait() {
	c.wg.Wait()
}
