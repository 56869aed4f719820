package resilience

import (
	"sync"
	"time"
)

// BreakerState is the circuit breaker state.
type BreakerState int

const (
	StateClosed BreakerState = iota
	StateOpen
	StateHalfOpen
)

func (s BreakerState) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// BreakerPolicy configures a circuit breaker.
type BreakerPolicy struct {
	// FailureThreshold is the number of consecutive failures in CLOSED that
	// opens the breaker.
	FailureThreshold int

	// RecoveryTimeout is how long the breaker stays OPEN before allowing a
	// half-open probe.
	RecoveryTimeout time.Duration

	// SuccessThreshold is the number of consecutive successes in HALF_OPEN
	// that closes the breaker.
	SuccessThreshold int

	// HalfOpenMaxAttempts bounds concurrent probes while HALF_OPEN.
	HalfOpenMaxAttempts int
}

// breaker is the per-service circuit breaker state machine.
//
// now is injectable so tests can drive the OPEN -> HALF_OPEN transition
// without sleeping.
type breaker struct {
	mu sync.Mutex

	policy BreakerPolicy
	now    func() time.Time

	state            BreakerState
	failureCount     int
	successCount     int
	halfOpenAttempts int
	lastFailureAt    time.Time
	nextAttemptAt    time.Time
}

func newBreaker(policy BreakerPolicy, now func() time.Time) *breaker {
	if now == nil {
		now = time.Now
	}
	return &breaker{
		policy: policy,
		now:    now,
		state:  StateClosed,
	}
}

// allow reports whether an operation may proceed. While OPEN it transitions
// to HALF_OPEN once the recovery timeout has elapsed; while HALF_OPEN it
// admits at most HalfOpenMaxAttempts in-flight probes.
func (b *breaker) allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		return true
	case StateOpen:
		if b.now().Before(b.nextAttemptAt) {
			return false
		}
		b.state = StateHalfOpen
		b.successCount = 0
		b.halfOpenAttempts = 1
		return true
	case StateHalfOpen:
		if b.halfOpenAttempts >= b.policy.HalfOpenMaxAttempts {
			return false
		}
		b.halfOpenAttempts++
		return true
	default:
		return false
	}
}

// recordSuccess advances the state machine after a successful operation.
// Returns true when the success closed a HALF_OPEN breaker.
func (b *breaker) recordSuccess() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		b.failureCount = 0
	case StateHalfOpen:
		b.successCount++
		if b.successCount >= b.policy.SuccessThreshold {
			b.state = StateClosed
			b.failureCount = 0
			b.successCount = 0
			b.halfOpenAttempts = 0
			return true
		}
	case StateOpen:
		// Success while OPEN can only come from an operation that was
		// already in flight when the breaker tripped; ignore it.
	}
	return false
}

// recordFailure advances the state machine after a failed operation.
// Returns true when the failure opened the breaker.
func (b *breaker) recordFailure() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.lastFailureAt = b.now()

	switch b.state {
	case StateClosed:
		b.failureCount++
		if b.failureCount >= b.policy.FailureThreshold {
			b.open()
			return true
		}
	case StateHalfOpen:
		b.open()
		return true
	case StateOpen:
	}
	return false
}

// open transitions to OPEN. Caller holds b.mu.
func (b *breaker) open() {
	b.state = StateOpen
	b.successCount = 0
	b.halfOpenAttempts = 0
	b.nextAttemptAt = b.now().Add(b.policy.RecoveryTimeout)
}

// snapshot returns the current state for metrics reporting.
func (b *breaker) snapshot() (BreakerState, int, time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state, b.failureCount, b.lastFailureAt
}
