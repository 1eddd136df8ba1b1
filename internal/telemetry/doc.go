// Package telemetry fans state transitions out to slow consumers.
//
// The engine delivers transitions synchronously on its single control flow,
// so nothing slow may run there. Pipeline is registered as an engine
// listener; it copies each transition into a bounded queue and a worker
// goroutine hands it to every configured Sink (SQLite history, InfluxDB,
// MQTT, WebSocket). When the queue is full the transition is dropped and
// counted rather than stalling the engine.
package telemetry
