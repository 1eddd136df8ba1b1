// Package influxdb records state transitions as InfluxDB v2 time series.
//
// Every transition becomes one point in the state_transitions measurement,
// tagged with machine and target state, so dashboards can chart how long
// machines dwell in each state and how often they move.
//
// Writes are non-blocking and batched (influxdb.batch_size points or every
// influxdb.flush_interval seconds). Asynchronous failures are delivered to the
// SetOnError callback.
//
// Usage:
//
//	client, err := influxdb.Connect(ctx, cfg.InfluxDB)
//	if errors.Is(err, influxdb.ErrDisabled) {
//	    // telemetry off
//	}
//	defer client.Close()
//
//	client.WriteTransition(influxdb.TransitionPoint{Machine: "light", From: "off", To: "on", At: time.Now()})
package influxdb
