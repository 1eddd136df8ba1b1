package api

import (
	"net/http"
	"runtime"
	"time"

	"github.com/hovavo/pxt-states/internal/bridge"
)

// SystemMetrics represents the complete system metrics response.
type SystemMetrics struct {
	Timestamp     string            `json:"timestamp"`
	Version       string            `json:"version"`
	UptimeSeconds int64             `json:"uptime_seconds"`
	Runtime       RuntimeMetrics    `json:"runtime"`
	Engine        EngineMetrics     `json:"engine"`
	WebSocket     WSMetrics         `json:"websocket"`
	MQTT          MQTTMetrics       `json:"mqtt"`
	Bridge        *bridge.Metrics   `json:"bridge,omitempty"`
	Telemetry     *TelemetryMetrics `json:"telemetry,omitempty"`
}

// RuntimeMetrics contains Go runtime statistics.
type RuntimeMetrics struct {
	Goroutines    int     `json:"goroutines"`
	MemoryAllocMB float64 `json:"memory_alloc_mb"`
	MemoryTotalMB float64 `json:"memory_total_mb"`
	NumGC         uint32  `json:"num_gc"`
}

// EngineMetrics summarises the state registry.
type EngineMetrics struct {
	Machines     int  `json:"machines"`
	States       int  `json:"states"`
	DebugEnabled bool `json:"debug_enabled"`
}

// WSMetrics contains WebSocket hub statistics.
type WSMetrics struct {
	ConnectedClients int `json:"connected_clients"`
}

// MQTTMetrics contains MQTT client statistics.
type MQTTMetrics struct {
	Enabled   bool `json:"enabled"`
	Connected bool `json:"connected"`
}

// TelemetryMetrics contains transition pipeline counters.
type TelemetryMetrics struct {
	Delivered uint64 `json:"delivered"`
	Dropped   uint64 `json:"dropped"`
}

// handleMetrics returns system metrics.
func (s *Server) handleMetrics(w http.ResponseWriter, _ *http.Request) {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	machines := s.registry.Machines()
	stateCount := 0
	for _, m := range machines {
		stateCount += len(m.StateIDs())
	}

	metrics := SystemMetrics{
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
		Version:       s.version,
		UptimeSeconds: int64(time.Since(s.startTime).Seconds()),
		Runtime: RuntimeMetrics{
			Goroutines:    runtime.NumGoroutine(),
			MemoryAllocMB: float64(memStats.Alloc) / 1024 / 1024,
			MemoryTotalMB: float64(memStats.TotalAlloc) / 1024 / 1024,
			NumGC:         memStats.NumGC,
		},
		Engine: EngineMetrics{
			Machines:     len(machines),
			States:       stateCount,
			DebugEnabled: s.registry.DebugEnabled(),
		},
		WebSocket: WSMetrics{
			ConnectedClients: s.hub.ClientCount(),
		},
	}

	if s.mqtt != nil {
		metrics.MQTT = MQTTMetrics{Enabled: true, Connected: s.mqtt.IsConnected()}
	}
	if s.bridge != nil {
		m := s.bridge.GetMetrics()
		metrics.Bridge = &m
	}
	if s.telemetry != nil {
		metrics.Telemetry = &TelemetryMetrics{
			Delivered: s.telemetry.Delivered(),
			Dropped:   s.telemetry.Dropped(),
		}
	}

	writeJSON(w, http.StatusOK, metrics)
}
