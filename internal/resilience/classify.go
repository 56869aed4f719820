package resilience

import (
	"context"
	"errors"
	"net"
	"net/http"
	"syscall"
)

// statusCoder is implemented by transport errors that carry an HTTP status.
type statusCoder interface {
	HTTPStatus() int
}

// Classify maps an arbitrary failure to an error Kind.
//
// Already-classified errors keep their kind. HTTP status codes map per the
// taxonomy (401 authentication, 403 permission, 429 rate limit, 422
// validation, 5xx service unavailable). Context deadlines and net timeouts
// classify as timeout; refused/reset connections as connection; remaining
// net errors as network.
func Classify(err error) Kind {
	if err == nil {
		return KindUnknown
	}

	var re *Error
	if errors.As(err, &re) {
		return re.Kind
	}

	var sc statusCoder
	if errors.As(err, &sc) {
		return classifyStatus(sc.HTTPStatus())
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return KindTimeout
	}

	if errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.EPIPE) {
		return KindConnection
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		if opErr.Op == "dial" {
			return KindConnection
		}
		return KindNetwork
	}

	if errors.As(err, &netErr) {
		return KindNetwork
	}

	return KindUnknown
}

func classifyStatus(status int) Kind {
	switch {
	case status == http.StatusUnauthorized:
		return KindAuthentication
	case status == http.StatusForbidden:
		return KindPermission
	case status == http.StatusTooManyRequests:
		return KindRateLimit
	case status == http.StatusUnprocessableEntity || status == http.StatusBadRequest:
		return KindValidation
	case status == http.StatusRequestTimeout || status == http.StatusGatewayTimeout:
		return KindTimeout
	case status >= 500:
		return KindServiceUnavailable
	default:
		return KindUnknown
	}
}

// defaultRetryableKinds is the retryable set used when a service's retry
// policy does not name one: transient transport failures only.
func defaultRetryableKinds() map[Kind]bool {
	return map[Kind]bool{
		KindConnection:         true,
		KindTimeout:            true,
		KindServiceUnavailable: true,
		KindRateLimit:          true,
		KindNetwork:            true,
	}
}
