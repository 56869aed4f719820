package hub

import (
	"errors"
	"fmt"

	"github.com/verdantio/growgate-core/internal/resilience"
)

var (
	// ErrClosed is returned by operations on a closed client.
	ErrClosed = errors.New("hub: client closed")

	// ErrAuthInvalid is returned when the hub rejects the access token
	// during the WebSocket handshake. Never retried.
	ErrAuthInvalid = errors.New("hub: websocket authentication rejected")

	// ErrHandshakeTimeout is returned when the WebSocket auth handshake
	// does not complete within the configured window.
	ErrHandshakeTimeout = errors.New("hub: websocket handshake timed out")

	// ErrSubscriptionClosed is returned when unsubscribing a subscription
	// that is already gone.
	ErrSubscriptionClosed = errors.New("hub: subscription closed")
)

// HTTPError is a non-2xx response from the hub's REST API. It preserves the
// status code so callers can classify the failure.
type HTTPError struct {
	Status int
	Method string
	Path   string
	Body   string
}

func (e *HTTPError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("hub: %s %s returned %d: %s", e.Method, e.Path, e.Status, e.Body)
	}
	return fmt.Sprintf("hub: %s %s returned %d", e.Method, e.Path, e.Status)
}

// HTTPStatus returns the response status code.
func (e *HTTPError) HTTPStatus() int {
	return e.Status
}

// classifyRequestError wraps a transport failure with its classified kind
// so callers can branch on authentication vs connection failures without
// inspecting transport details. Failures that classify as unknown are
// treated as connection problems.
func classifyRequestError(err error) error {
	if err == nil {
		return nil
	}
	kind := resilience.Classify(err)
	if kind == resilience.KindUnknown {
		kind = resilience.KindConnection
	}
	return &resilience.Error{Kind: kind, Err: err}
}
