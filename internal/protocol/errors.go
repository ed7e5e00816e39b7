package protocol

import "errors"

// Domain errors for envelope and topic handling.
var (
	// ErrMalformedEnvelope is returned when a payload is not a JSON object or
	// is missing a required field. The message should be dropped.
	ErrMalformedEnvelope = errors.New("protocol: malformed envelope")

	// ErrUnknownCommand is returned for a well-formed command envelope whose
	// command name is not part of the command set.
	ErrUnknownCommand = errors.New("protocol: unknown command")

	// ErrInvalidParams is returned when a known command carries missing or
	// out-of-range parameters.
	ErrInvalidParams = errors.New("protocol: invalid command params")

	// ErrInvalidTopic is returned when a topic does not match {base}/{deviceId}/{kind}.
	ErrInvalidTopic = errors.New("protocol: invalid topic")
)
