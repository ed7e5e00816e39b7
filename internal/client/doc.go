// Package client implements the monitoring side of the protocol.
//
// Three pieces cooperate:
//   - Correlator turns publish-only MQTT into request/response. Every
//     command gets a process-unique id and exactly one terminal outcome:
//     success, device error, timeout, or a synchronous send failure.
//   - Gate decides whether a device is online. Retained state and info
//     arrive the instant a client subscribes, even for devices that have
//     been off for hours, so after every (re)connect passive messages are
//     ignored until an active get_status probe sweep has finished.
//   - Monitor subscribes to every device, routes envelopes to the cache,
//     the gate and the correlator, and fans them out to persistence,
//     metrics and live-event listeners without blocking on any of them.
//
// Callbacks run on MQTT receive goroutines and timer goroutines. All
// shared maps are mutex-guarded and callbacks are always invoked with no
// lock held.
package client
