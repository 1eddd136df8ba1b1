// Package bridge connects the state engine to MQTT.
//
// Outbound, every transition is published twice: a retained snapshot on
// {prefix}/machine/{machine}/state so late subscribers see the current
// state, and an event on {prefix}/machine/{machine}/transition.
//
// Inbound, {prefix}/command/{machine}/set requests a transition. The payload
// is either a JSON object {"state": "on"} or the bare state name. Commands
// are queued and applied by a single worker goroutine, never on the paho
// callback goroutine, because a transition may block on the engine's
// control flow for as long as its handlers run.
package bridge
