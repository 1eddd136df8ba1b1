package influxdb

import "errors"

// Sentinel errors for InfluxDB operations.
var (
	// ErrDisabled is returned by Connect when influxdb.enabled is false.
	ErrDisabled = errors.New("influxdb: disabled in configuration")

	ErrNotConnected     = errors.New("influxdb: client not connected")
	ErrConnectionFailed = errors.New("influxdb: connection failed")
)
