package telemetry

import (
	"context"

	"github.com/hovavo/pxt-states/internal/infrastructure/influxdb"
	"github.com/hovavo/pxt-states/internal/states"
)

// PointWriter is satisfied by *influxdb.Client.
type PointWriter interface {
	WriteTransition(p influxdb.TransitionPoint)
}

// InfluxSink writes transitions as InfluxDB points.
type InfluxSink struct {
	w PointWriter
}

// NewInfluxSink wraps an InfluxDB writer.
func NewInfluxSink(w PointWriter) *InfluxSink {
	return &InfluxSink{w: w}
}

// Name implements Sink.
func (s *InfluxSink) Name() string { return "influxdb" }

// Record implements Sink. Writes are batched by the client, so this never
// blocks and never fails synchronously.
func (s *InfluxSink) Record(_ context.Context, t states.Transition) error {
	s.w.WriteTransition(influxdb.TransitionPoint{
		Machine: t.Machine.String(),
		From:    t.From.String(),
		To:      t.To.String(),
		Elapsed: t.Elapsed,
		Created: t.Created,
		At:      t.At,
	})
	return nil
}

// Broadcaster is satisfied by the API WebSocket hub.
type Broadcaster interface {
	Broadcast(channel string, payload any)
}

// ChannelStateChanged is the WebSocket channel carrying transitions.
const ChannelStateChanged = "machine.state_changed"

// BroadcastSink relays transitions to WebSocket subscribers.
type BroadcastSink struct {
	b Broadcaster
}

// NewBroadcastSink wraps a broadcaster.
func NewBroadcastSink(b Broadcaster) *BroadcastSink {
	return &BroadcastSink{b: b}
}

// Name implements Sink.
func (s *BroadcastSink) Name() string { return "websocket" }

// Record implements Sink.
func (s *BroadcastSink) Record(_ context.Context, t states.Transition) error {
	s.b.Broadcast(ChannelStateChanged, t)
	return nil
}
