package resilience

import (
	"testing"
	"time"
)

// fakeClock is an adjustable clock for driving breaker timeouts.
type fakeClock struct {
	t time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func testPolicy() BreakerPolicy {
	return BreakerPolicy{
		FailureThreshold:    3,
		RecoveryTimeout:     60 * time.Second,
		SuccessThreshold:    2,
		HalfOpenMaxAttempts: 3,
	}
}

func TestBreaker_OpensAfterFailureThreshold(t *testing.T) {
	clock := newFakeClock()
	b := newBreaker(testPolicy(), clock.now)

	for i := 0; i < 2; i++ {
		if tripped := b.recordFailure(); tripped {
			t.Fatalf("breaker tripped after %d failures, threshold is 3", i+1)
		}
	}
	if !b.recordFailure() {
		t.Fatal("breaker did not trip at the failure threshold")
	}

	if state, _, _ := b.snapshot(); state != StateOpen {
		t.Errorf("state = %v, want open", state)
	}
	if b.allow() {
		t.Error("open breaker allowed an operation before recovery timeout")
	}
}

func TestBreaker_SuccessResetsFailureCount(t *testing.T) {
	clock := newFakeClock()
	b := newBreaker(testPolicy(), clock.now)

	b.recordFailure()
	b.recordFailure()
	b.recordSuccess()

	// Two more failures must not trip: the count was reset.
	b.recordFailure()
	if tripped := b.recordFailure(); tripped {
		t.Fatal("breaker tripped despite success resetting the failure count")
	}
}

func TestBreaker_HalfOpenAfterRecoveryTimeout(t *testing.T) {
	clock := newFakeClock()
	b := newBreaker(testPolicy(), clock.now)

	for i := 0; i < 3; i++ {
		b.recordFailure()
	}

	clock.advance(59 * time.Second)
	if b.allow() {
		t.Fatal("breaker allowed operation before recovery timeout elapsed")
	}

	clock.advance(2 * time.Second)
	if !b.allow() {
		t.Fatal("breaker did not allow a probe after recovery timeout")
	}
	if state, _, _ := b.snapshot(); state != StateHalfOpen {
		t.Errorf("state = %v, want half_open", state)
	}
}

func TestBreaker_ClosesAfterSuccessThreshold(t *testing.T) {
	clock := newFakeClock()
	b := newBreaker(testPolicy(), clock.now)

	for i := 0; i < 3; i++ {
		b.recordFailure()
	}
	clock.advance(61 * time.Second)

	if !b.allow() {
		t.Fatal("probe not allowed")
	}
	if closed := b.recordSuccess(); closed {
		t.Fatal("breaker closed after one success, threshold is 2")
	}
	if !b.allow() {
		t.Fatal("second probe not allowed")
	}
	if closed := b.recordSuccess(); !closed {
		t.Fatal("breaker did not close at the success threshold")
	}

	state, failures, _ := b.snapshot()
	if state != StateClosed {
		t.Errorf("state = %v, want closed", state)
	}
	if failures != 0 {
		t.Errorf("failureCount = %d, want 0 after close", failures)
	}
}

func TestBreaker_HalfOpenFailureReopens(t *testing.T) {
	clock := newFakeClock()
	b := newBreaker(testPolicy(), clock.now)

	for i := 0; i < 3; i++ {
		b.recordFailure()
	}
	clock.advance(61 * time.Second)
	if !b.allow() {
		t.Fatal("probe not allowed")
	}

	if reopened := b.recordFailure(); !reopened {
		t.Fatal("half-open failure did not reopen the breaker")
	}

	// The reopen must set a fresh nextAttemptAt from now.
	clock.advance(59 * time.Second)
	if b.allow() {
		t.Error("breaker allowed operation before the fresh recovery timeout elapsed")
	}
	clock.advance(2 * time.Second)
	if !b.allow() {
		t.Error("breaker did not allow a probe after the fresh recovery timeout")
	}
}

func TestBreaker_HalfOpenBoundsProbes(t *testing.T) {
	clock := newFakeClock()
	b := newBreaker(testPolicy(), clock.now)

	for i := 0; i < 3; i++ {
		b.recordFailure()
	}
	clock.advance(61 * time.Second)

	// HalfOpenMaxAttempts is 3; the transition itself consumes one slot.
	allowed := 0
	for i := 0; i < 5; i++ {
		if b.allow() {
			allowed++
		}
	}
	if allowed != 3 {
		t.Errorf("half-open allowed %d probes, want 3", allowed)
	}
}
