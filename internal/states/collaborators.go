package states

import (
	"context"
	"time"
)

// Clock is the monotonic time source used for state running times.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock. time.Time carries a monotonic reading,
// so differences between two Now values are immune to clock adjustments.
type SystemClock struct{}

// Now returns the current time.
func (SystemClock) Now() time.Time {
	return time.Now()
}

// Scheduler runs the engine's single logical control flow plus any number of
// cooperative background tasks.
type Scheduler interface {
	// Acquire takes the control-flow slot and returns a context carrying it
	// along with the function that gives it back. If ctx already carries the
	// slot, Acquire returns immediately with a no-op release.
	Acquire(ctx context.Context) (context.Context, func())

	// Spawn starts task in the background.
	Spawn(task func())

	// Yield pauses a background task between iterations. It returns early
	// when ctx is cancelled.
	Yield(ctx context.Context)
}

// LineWriter is the line-oriented sink for debug output.
type LineWriter interface {
	WriteLine(line string)
}

// LineWriterFunc adapts a function to LineWriter.
type LineWriterFunc func(line string)

// WriteLine calls f(line).
func (f LineWriterFunc) WriteLine(line string) {
	f(line)
}

// Logger defines the logging interface used by the registry.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}
