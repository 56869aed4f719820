package resilience

import (
	"errors"
	"fmt"
)

var (
	// ErrServiceNotRegistered is returned when Execute is called for an
	// unknown service name.
	ErrServiceNotRegistered = errors.New("resilience: service not registered")

	// ErrCircuitOpen is returned when an operation is rejected because the
	// service's circuit breaker is open.
	ErrCircuitOpen = errors.New("resilience: circuit breaker open")
)

// Kind is the classified category of a failure. Retryability decisions are
// made on kinds, never on concrete error types.
type Kind string

const (
	KindConnection         Kind = "connection"
	KindAuthentication     Kind = "authentication"
	KindRateLimit          Kind = "rate_limit"
	KindValidation         Kind = "validation"
	KindTimeout            Kind = "timeout"
	KindServiceUnavailable Kind = "service_unavailable"
	KindNetwork            Kind = "network"
	KindPermission         Kind = "permission"
	KindConfiguration      Kind = "configuration"
	KindUnknown            Kind = "unknown"
)

// Error is a classified failure, optionally annotated with the service and
// attempt count by Execute.
type Error struct {
	Kind     Kind
	Service  string
	Attempts int
	Err      error
}

func (e *Error) Error() string {
	switch {
	case e.Service != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s after %d attempt(s): %v", e.Service, e.Kind, e.Attempts, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	default:
		return string(e.Kind)
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewError creates a classified error wrapping cause.
func NewError(kind Kind, cause error) *Error {
	return &Error{Kind: kind, Err: cause}
}

// KindOf returns the classified kind of err, or KindUnknown if err carries
// no classification.
func KindOf(err error) Kind {
	var re *Error
	if errors.As(err, &re) {
		return re.Kind
	}
	return KindUnknown
}
