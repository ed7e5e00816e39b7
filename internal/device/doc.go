// Package device implements the device-node runtime.
//
// A node owns one Store holding its configuration and outputs. Two kinds of
// goroutine touch it:
//   - the MQTT receive path, through Dispatcher.HandleMessage
//   - the Scheduler tick loop, which publishes telemetry and state backups
//
// Local controls (ToggleSlot, ToggleMode) go through the Dispatcher as well,
// so every mutation is followed by a state publish whoever made it.
//
// The Store lock is held only for the read-modify-write of the state struct.
// Actuator, persistence and network I/O always happen after it is released.
//
// Destructive commands (reboot, factory_reset) answer first and run later as
// a cancellable Job after a grace delay.
package device
