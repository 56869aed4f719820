package resilience

import (
	"context"
	"errors"
	"fmt"
	"net"
	"syscall"
	"testing"
)

// httpError mimics transport errors that carry an HTTP status.
type httpError struct {
	status int
}

func (e *httpError) Error() string   { return fmt.Sprintf("http %d", e.status) }
func (e *httpError) HTTPStatus() int { return e.status }

func TestClassify_HTTPStatuses(t *testing.T) {
	tests := []struct {
		status int
		want   Kind
	}{
		{401, KindAuthentication},
		{403, KindPermission},
		{429, KindRateLimit},
		{422, KindValidation},
		{400, KindValidation},
		{500, KindServiceUnavailable},
		{503, KindServiceUnavailable},
		{404, KindUnknown},
	}

	for _, tt := range tests {
		err := fmt.Errorf("request failed: %w", &httpError{status: tt.status})
		if got := Classify(err); got != tt.want {
			t.Errorf("Classify(status %d) = %v, want %v", tt.status, got, tt.want)
		}
	}
}

func TestClassify_ContextDeadline(t *testing.T) {
	err := fmt.Errorf("probe: %w", context.DeadlineExceeded)
	if got := Classify(err); got != KindTimeout {
		t.Errorf("Classify(deadline) = %v, want timeout", got)
	}
}

func TestClassify_ConnectionRefused(t *testing.T) {
	err := &net.OpError{Op: "dial", Err: syscall.ECONNREFUSED}
	if got := Classify(err); got != KindConnection {
		t.Errorf("Classify(ECONNREFUSED) = %v, want connection", got)
	}
}

func TestClassify_PreservesExistingKind(t *testing.T) {
	err := NewError(KindConfiguration, errors.New("missing token"))
	if got := Classify(fmt.Errorf("wrapped: %w", err)); got != KindConfiguration {
		t.Errorf("Classify(classified) = %v, want configuration", got)
	}
}

func TestClassify_Unknown(t *testing.T) {
	if got := Classify(errors.New("mystery")); got != KindUnknown {
		t.Errorf("Classify(plain) = %v, want unknown", got)
	}
}

func TestKindOf(t *testing.T) {
	err := &Error{Kind: KindRateLimit, Err: errors.New("throttled")}
	if got := KindOf(fmt.Errorf("outer: %w", err)); got != KindRateLimit {
		t.Errorf("KindOf = %v, want rate_limit", got)
	}
	if got := KindOf(errors.New("plain")); got != KindUnknown {
		t.Errorf("KindOf(plain) = %v, want unknown", got)
	}
}
