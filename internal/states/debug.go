package states

import (
	"fmt"
	"sync/atomic"
)

// Debug is the gated pass-through to the debug line sink.
//
// It is off by default. While off every call is a no-op; while on each line
// goes straight to the sink with no buffering and no levels.
type Debug struct {
	enabled atomic.Bool
	sink    LineWriter
}

// NewDebug creates a disabled Debug writing to sink. A nil sink discards.
func NewDebug(sink LineWriter) *Debug {
	if sink == nil {
		sink = LineWriterFunc(func(string) {})
	}
	return &Debug{sink: sink}
}

// SetEnabled turns debug output on or off.
func (d *Debug) SetEnabled(enabled bool) {
	d.enabled.Store(enabled)
}

// Enabled reports whether debug output is on.
func (d *Debug) Enabled() bool {
	return d.enabled.Load()
}

// Line writes one line when enabled.
func (d *Debug) Line(line string) {
	if !d.Enabled() {
		return
	}
	d.sink.WriteLine(line)
}

// Linef formats and writes one line when enabled.
func (d *Debug) Linef(format string, args ...any) {
	if !d.Enabled() {
		return
	}
	d.sink.WriteLine(fmt.Sprintf(format, args...))
}
