// Package api implements the HTTP REST API and WebSocket server for the
// device controller.
//
// This package provides:
//   - REST endpoints for device CRUD, commands, detection, and status
//   - Discovery scans and ad-hoc connectivity tests
//   - WebSocket hub streaming controller events in real time
//   - Audit trail queries with best-effort asynchronous writes
//   - Middleware stack (request ID, logging, recovery, CORS, body limit)
//
// # Architecture
//
// The API server sits between callers (dashboards, scripts, integrations)
// and the connectivity engine. Commands are executed synchronously over
// the device's detected transport and the outcome is returned in the
// response; events describing what happened fan out through the in-process
// broker to WebSocket clients and, when configured, to MQTT.
//
// # Graceful Degradation
//
// The server operates without the optional backends: with MQTT absent
// events stay local, with InfluxDB absent history queries return 503 and
// run metrics are skipped, with the audit repository absent the trail is
// simply not written. Device operations never depend on any of them.
package api
