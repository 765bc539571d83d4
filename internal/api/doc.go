// Package api implements the operational HTTP server for the Bambu Farm gateway.
//
// The gRPC service in package rpc is the client-facing surface. This server
// exists for operators and monitoring:
//   - GET /api/v1/health: liveness with version
//   - GET /api/v1/printers: configured printers (credentials never included)
//   - GET /api/v1/printers/{id}: a single printer with its live session, if any
//   - GET /api/v1/sessions: live printer sessions
//   - GET /api/v1/status: runtime and session snapshot
//   - GET /metrics: Prometheus exposition
//
// # Middleware
//
// Every request gets a request ID (X-Request-ID is honoured when present),
// is logged with status and duration, and has panics converted to 500s.
//
// The server follows the same lifecycle pattern as other infrastructure components:
//
//	server, err := api.New(deps)
//	server.Start(ctx)
//	defer server.Close()
package api
