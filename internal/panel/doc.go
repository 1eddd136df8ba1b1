// Package panel serves the built-in status dashboard.
//
// The dashboard is a single HTML page embedded into the binary. It lists
// every machine through the REST API and follows transitions live over the
// WebSocket channel "machine.state_changed". When a development directory is
// configured and exists, files are served from it instead so the page can be
// edited without rebuilding.
package panel
