package definition

import (
	"context"
	"fmt"
	"time"

	"github.com/hovavo/pxt-states/internal/states"
)

// Publisher is satisfied by *mqtt.Client.
type Publisher interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
}

// Sleeper pauses the calling handler. The cooperative scheduler implements
// it by giving up the control flow while waiting.
type Sleeper interface {
	Sleep(ctx context.Context, d time.Duration) error
}

// Logger is the structured logger used by generated handlers.
type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Info(string, ...any) {}
func (noopLogger) Warn(string, ...any) {}

// Binder turns definitions into engine handlers.
type Binder struct {
	reg       *states.Registry
	publisher Publisher
	sleeper   Sleeper
	logger    Logger
}

// BinderOptions configures a Binder. All fields are optional.
type BinderOptions struct {
	// Publisher serves publish actions. Without one they fail with
	// ErrNoPublisher.
	Publisher Publisher

	// Sleeper serves sleep actions. Defaults to the registry's scheduler when
	// it implements Sleeper, otherwise a plain timer that keeps the control
	// flow while waiting.
	Sleeper Sleeper

	Logger Logger
}

// NewBinder creates a binder for reg.
func NewBinder(reg *states.Registry, opts BinderOptions) *Binder {
	b := &Binder{
		reg:       reg,
		publisher: opts.Publisher,
		sleeper:   opts.Sleeper,
		logger:    opts.Logger,
	}
	if b.sleeper == nil {
		if s, ok := reg.Scheduler().(Sleeper); ok {
			b.sleeper = s
		} else {
			b.sleeper = timerSleeper{}
		}
	}
	if b.logger == nil {
		b.logger = noopLogger{}
	}
	return b
}

// Apply registers the handlers of every declared machine and state. Handlers
// replace any enter, exit or change handler already set; loop actions are
// added alongside existing loop handlers.
func (b *Binder) Apply(f *File) {
	for _, md := range f.Machines {
		m := b.reg.Resolve(md.ID)

		for _, sd := range md.States {
			s := m.Define(sd.ID, states.Handlers{})
			h := states.Handlers{}
			if len(sd.Enter) > 0 {
				h.Enter = b.compile(m, s, "enter", sd.Enter)
			}
			if len(sd.Exit) > 0 {
				h.Exit = b.compile(m, s, "exit", sd.Exit)
			}
			if len(sd.Loop) > 0 {
				h.Loop = b.compile(m, s, "loop", sd.Loop)
			}
			m.Define(sd.ID, h)
		}

		if len(md.Change) > 0 {
			m.OnChange(b.compile(m, nil, "change", md.Change))
		}
	}
}

// Start transitions to each start selector in order.
func (b *Binder) Start(ctx context.Context, f *File) {
	for _, sel := range f.Start {
		b.reg.SetState(ctx, sel)
	}
}

// compile builds one handler running actions in order. A failing action is
// logged and the remaining actions still run. s is nil for change handlers.
func (b *Binder) compile(m *states.Machine, s *states.State, phase string, actions []Action) states.Handler {
	return func(ctx context.Context) {
		for i, a := range actions {
			if a.After > 0 && s != nil && s.RunningTime() < a.After {
				continue
			}
			if err := b.run(ctx, m, a); err != nil {
				args := []any{"machine", m.ID(), "phase", phase, "action", i, "error", err}
				if s != nil {
					args = append(args, "state", s.ID())
				}
				b.logger.Warn("definition action failed", args...)
			}
		}
	}
}

func (b *Binder) run(ctx context.Context, m *states.Machine, a Action) error {
	switch a.kind() {
	case "log":
		b.logger.Info(a.Log, "machine", m.ID(), "state", m.CurrentID())
	case "publish":
		if b.publisher == nil {
			return ErrNoPublisher
		}
		p := a.Publish
		if err := b.publisher.Publish(p.Topic, []byte(p.Payload), p.QoS, p.Retain); err != nil {
			return fmt.Errorf("publish to %s: %w", p.Topic, err)
		}
	case "goto":
		b.gotoSelector(ctx, m, a.Goto)
	case "sleep":
		if err := b.sleeper.Sleep(ctx, a.Sleep); err != nil {
			return fmt.Errorf("sleep %s: %w", a.Sleep, err)
		}
	default:
		return ErrInvalidAction
	}
	return nil
}

func (b *Binder) gotoSelector(ctx context.Context, m *states.Machine, selector string) {
	if states.ParseSelector(selector).Qualified() {
		b.reg.SetState(ctx, selector)
		return
	}
	m.SetState(ctx, selector)
}

// timerSleeper waits without yielding the control flow.
type timerSleeper struct{}

func (timerSleeper) Sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
