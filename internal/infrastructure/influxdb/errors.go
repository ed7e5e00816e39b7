package influxdb

import "errors"

var (
	// ErrNotConnected indicates the client is closed or never connected.
	ErrNotConnected = errors.New("influxdb: not connected")

	// ErrConnectionFailed indicates the initial ping failed.
	ErrConnectionFailed = errors.New("influxdb: connection failed")

	// ErrWriteFailed wraps asynchronous batch write errors.
	ErrWriteFailed = errors.New("influxdb: write failed")

	// ErrInvalidPoint indicates a point with no measurement or no fields.
	ErrInvalidPoint = errors.New("influxdb: invalid point")

	// ErrDisabled indicates the integration is switched off in configuration.
	ErrDisabled = errors.New("influxdb: disabled in configuration")
)
