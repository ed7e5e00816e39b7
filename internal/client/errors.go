package client

import (
	"errors"
)

// Command failure reasons. Each maps to a distinct reason string so callers
// can tell "device rejected it" apart from "device did not answer".
var (
	// ErrCommandRejected is returned when the device answers status "error".
	ErrCommandRejected = errors.New("client: command rejected by device")

	// ErrCommandTimeout is returned when no response arrives before the deadline.
	ErrCommandTimeout = errors.New("client: command timed out")

	// ErrNotConnected is returned when the broker session is down at send time.
	ErrNotConnected = errors.New("client: not connected")

	// ErrSendFailed is returned when encoding or publishing the command fails.
	ErrSendFailed = errors.New("client: send failed")

	// ErrUnknownDevice is returned for a device that is not configured.
	ErrUnknownDevice = errors.New("client: unknown device")
)

// Outcome labels used in metrics, history and API responses.
const (
	OutcomeSuccess      = "success"
	OutcomeError        = "error"
	OutcomeTimeout      = "timeout"
	OutcomeNotConnected = "not_connected"
	OutcomeSendFailed   = "send_failed"
)

// Reason returns the outcome label for a command error. nil is success.
func Reason(err error) string {
	switch {
	case err == nil:
		return OutcomeSuccess
	case errors.Is(err, ErrCommandRejected):
		return OutcomeError
	case errors.Is(err, ErrCommandTimeout):
		return OutcomeTimeout
	case errors.Is(err, ErrNotConnected):
		return OutcomeNotConnected
	default:
		return OutcomeSendFailed
	}
}
