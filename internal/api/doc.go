// Package api implements the read-only diagnostics HTTP API for bloxd.
//
// This package provides:
//   - Live object views, read through the control loop
//   - Persisted records as the store holds them
//   - The command audit trail, paged and filtered
//   - Health and runtime metrics for monitoring
//
// # Architecture
//
// The API never touches the object container directly. Every request that
// needs object state runs a closure on the control loop via Do, so a view is
// always consistent with one point between update passes. Nothing here can
// create, write or delete objects; that stays with the frame transports.
//
// The server follows the same lifecycle pattern as other components:
//
//	server, err := api.New(deps)
//	server.Start(ctx)
//	defer server.Close()
//
// Routes (all under /api/v1):
//
//	GET /health          component health, 503 when any check fails
//	GET /metrics         runtime and object statistics
//	GET /objects         every live object in ID order
//	GET /objects/{id}    one live object
//	GET /stored          every persisted record
//	GET /audit           command audit trail (command, status, object_id, limit, offset)
//	GET /ws              WebSocket stream of the "objects" and "metrics" channels
//
// The WebSocket stream is read-only. A client subscribes to channels and
// receives an event per channel every stream interval; sampling goes
// through Do like any other read and is skipped while nobody listens.
package api
