// Package api provides the HTTP REST API and WebSocket server for statesd.
//
// It exposes the machines of a states.Registry to operators and dashboards:
// inspecting machines, requesting transitions, reading transition history,
// toggling debug output, and streaming transitions live over WebSocket.
//
// The server follows the same lifecycle pattern as the infrastructure
// components:
//
//	server, err := api.New(deps)
//	server.Start(ctx)
//	defer server.Close()
//
// When security.jwt.secret is set every /api/v1 route except /health requires a
// Bearer token signed with it (see IssueToken). WebSocket clients exchange
// their token for a single-use ticket first, so the token never appears in a
// URL.
//
// Thread Safety: All methods are safe for concurrent use from multiple goroutines.
package api
