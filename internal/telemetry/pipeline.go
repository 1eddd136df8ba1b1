package telemetry

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hovavo/pxt-states/internal/states"
)

const (
	// DefaultBufferSize is the queue capacity used when none is configured.
	DefaultBufferSize = 256

	// sinkTimeout bounds a single sink call.
	sinkTimeout = 5 * time.Second
)

// Sink consumes transitions off the engine's control flow.
type Sink interface {
	Name() string
	Record(ctx context.Context, t states.Transition) error
}

// Logger is the subset of the structured logger used by the pipeline.
type Logger interface {
	Debug(msg string, args ...any)
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Warn(string, ...any)  {}

// Pipeline queues transitions and delivers them to sinks in order.
//
// Thread Safety: OnTransition may be called from any goroutine. Sinks are
// called from a single worker goroutine, one transition at a time.
type Pipeline struct {
	queue  chan states.Transition
	sinks  []Sink
	logger Logger

	dropped   atomic.Uint64
	delivered atomic.Uint64

	mu      sync.Mutex
	started bool
	closed  bool
	done    chan struct{}
}

// NewPipeline creates a pipeline with the given queue capacity and sinks.
// Nil sinks are skipped. A non-positive size uses DefaultBufferSize.
func NewPipeline(size int, sinks ...Sink) *Pipeline {
	if size <= 0 {
		size = DefaultBufferSize
	}
	p := &Pipeline{
		queue:  make(chan states.Transition, size),
		logger: noopLogger{},
		done:   make(chan struct{}),
	}
	for _, s := range sinks {
		if s != nil {
			p.sinks = append(p.sinks, s)
		}
	}
	return p
}

// SetLogger sets the logger.
func (p *Pipeline) SetLogger(l Logger) {
	if l == nil {
		l = noopLogger{}
	}
	p.logger = l
}

// AddSink appends a sink. It must be called before Start.
func (p *Pipeline) AddSink(s Sink) {
	if s == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.started {
		p.sinks = append(p.sinks, s)
	}
}

// OnTransition enqueues t without blocking. Transitions arriving after Close
// or while the queue is full are dropped.
func (p *Pipeline) OnTransition(t states.Transition) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}

	select {
	case p.queue <- t:
	default:
		n := p.dropped.Add(1)
		p.logger.Warn("telemetry queue full, transition dropped",
			"machine", t.Machine, "to", t.To, "dropped_total", n)
	}
}

// Start runs the worker until Close. ctx is passed to sinks; cancelling it
// makes pending sink calls fail fast but does not stop the worker.
func (p *Pipeline) Start(ctx context.Context) {
	p.mu.Lock()
	if p.started {
		p.mu.Unlock()
		return
	}
	p.started = true
	p.mu.Unlock()

	go p.run(ctx)
}

func (p *Pipeline) run(ctx context.Context) {
	defer close(p.done)
	for t := range p.queue {
		p.deliver(ctx, t)
	}
}

func (p *Pipeline) deliver(ctx context.Context, t states.Transition) {
	for _, s := range p.sinks {
		sinkCtx, cancel := context.WithTimeout(ctx, sinkTimeout)
		err := s.Record(sinkCtx, t)
		cancel()
		if err != nil {
			p.logger.Warn("telemetry sink failed",
				"sink", s.Name(), "machine", t.Machine, "to", t.To, "error", err)
		}
	}
	p.delivered.Add(1)
}

// Close stops accepting transitions, drains the queue and waits for the
// worker. If Start was never called the queued transitions are discarded.
func (p *Pipeline) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	started := p.started
	close(p.queue)
	p.mu.Unlock()

	if started {
		<-p.done
	}
	p.logger.Debug("telemetry pipeline closed",
		"delivered", p.delivered.Load(), "dropped", p.dropped.Load())
}

// Dropped returns how many transitions were discarded because the queue was
// full.
func (p *Pipeline) Dropped() uint64 {
	return p.dropped.Load()
}

// Delivered returns how many transitions were handed to the sinks.
func (p *Pipeline) Delivered() uint64 {
	return p.delivered.Load()
}
