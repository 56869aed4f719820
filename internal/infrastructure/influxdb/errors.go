package influxdb

import "errors"

// Sentinel errors, matched with errors.Is. Async batch write failures
// do not use these; they arrive through the SetOnError callback.
var (
	// ErrNotConnected means the client is closed or never connected.
	ErrNotConnected = errors.New("influxdb: not connected")

	// ErrConnectionFailed means the initial ping did not succeed.
	ErrConnectionFailed = errors.New("influxdb: connection failed")

	// ErrDisabled means the influxdb section of config.yaml is off.
	ErrDisabled = errors.New("influxdb: disabled in configuration")
)
