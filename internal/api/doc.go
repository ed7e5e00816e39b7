// Package api implements the HTTP REST API and WebSocket server of the
// monitoring client.
//
// This package provides:
//   - REST endpoints for the device list, cached device views and state history
//   - A command endpoint that publishes through the correlator and waits for
//     the device's response
//   - A WebSocket hub relaying state, data, liveness and command events
//   - The Prometheus scrape endpoint
//   - Middleware stack (request ID, logging, recovery, body size limit)
//
// # Graceful Degradation
//
// The server keeps serving cached views while the broker is down; only
// commands fail, with 503. History endpoints answer 503 when no database
// is configured.
package api
