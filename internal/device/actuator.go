package device

import "sync"

// Actuator drives physical outputs. Hardware drivers live outside this
// package; implementations must be safe for concurrent use.
type Actuator interface {
	Set(slot Slot, on bool) error
	Toggle(slot Slot) error
}

// LogActuator is an Actuator that records and logs output changes.
// Nodes without hardware run with it.
type LogActuator struct {
	mu      sync.Mutex
	outputs map[Slot]bool
	logger  Logger
}

// NewLogActuator returns an actuator with every output off.
func NewLogActuator(logger Logger) *LogActuator {
	return &LogActuator{
		outputs: make(map[Slot]bool),
		logger:  orNop(logger),
	}
}

// Set switches slot on or off.
func (a *LogActuator) Set(slot Slot, on bool) error {
	a.mu.Lock()
	a.outputs[slot] = on
	a.mu.Unlock()

	a.logger.Info("output set", "output", slot.String(), "on", on)
	return nil
}

// Toggle flips slot.
func (a *LogActuator) Toggle(slot Slot) error {
	a.mu.Lock()
	on := !a.outputs[slot]
	a.outputs[slot] = on
	a.mu.Unlock()

	a.logger.Info("output toggled", "output", slot.String(), "on", on)
	return nil
}

// IsOn reports the last value written to slot.
func (a *LogActuator) IsOn(slot Slot) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.outputs[slot]
}
