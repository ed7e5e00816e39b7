package device

import "errors"

// Domain errors for the device package.
//
// These errors can be checked using errors.Is():
//
//	if errors.Is(err, device.ErrUnknownSlot) {
//	    // respond with status error
//	}
var (
	// ErrUnknownSlot is returned when a device name is not in the slot registry.
	ErrUnknownSlot = errors.New("device: unknown output")

	// ErrSlotExists is returned when registering a name twice.
	ErrSlotExists = errors.New("device: output already registered")

	// ErrIntervalOutOfRange is returned when an interval is outside [1,3600].
	ErrIntervalOutOfRange = errors.New("device: interval out of range")

	// ErrInvalidValue is returned when a mode or output value is not 0 or 1.
	ErrInvalidValue = errors.New("device: invalid value")

	// ErrNotConnected is returned when a publish is skipped because the
	// transport is down.
	ErrNotConnected = errors.New("device: transport not connected")

	// ErrRebootRequested is the cancellation cause set by ProcessSystem when
	// a reboot or factory reset fires.
	ErrRebootRequested = errors.New("device: reboot requested")
)
