package gateway

import "errors"

var (
	// ErrClosed is returned by operations on a stopped gateway.
	ErrClosed = errors.New("gateway: closed")

	// ErrTenantNotMonitored is returned when a control command arrives for
	// a tenant with no active hub session.
	ErrTenantNotMonitored = errors.New("gateway: tenant not monitored")

	// ErrInvalidAction is returned when a device action fails boundary
	// validation.
	ErrInvalidAction = errors.New("gateway: invalid device action")

	// ErrSocketClosed is reported by sockets whose send side is gone.
	ErrSocketClosed = errors.New("gateway: socket closed")
)
