package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// MeasurementTransitions is the measurement holding one point per transition.
const MeasurementTransitions = "state_transitions"

// TransitionPoint describes one state change for InfluxDB.
type TransitionPoint struct {
	Machine string
	From    string
	To      string
	Elapsed time.Duration
	Created bool
	At      time.Time
}

// newTransitionPoint builds the point for p. Machine and target state are
// tags (low cardinality, queried by); the outgoing state and dwell time are
// fields.
func newTransitionPoint(p TransitionPoint) *write.Point {
	return write.NewPoint(
		MeasurementTransitions,
		map[string]string{
			"machine": p.Machine,
			"state":   p.To,
		},
		map[string]interface{}{
			"from":       p.From,
			"elapsed_ms": p.Elapsed.Milliseconds(),
			"created":    p.Created,
		},
		p.At,
	)
}

// WriteTransition queues a transition point. It never blocks; failures are
// reported through SetOnError.
func (c *Client) WriteTransition(p TransitionPoint) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(newTransitionPoint(p))
}
