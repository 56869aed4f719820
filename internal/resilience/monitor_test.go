package resilience

import (
	"context"
	"errors"
	"testing"
	"time"
)

func monitorConfig() Config {
	cfg := testServiceConfig()
	cfg.Retry.MaxAttempts = 1
	cfg.Health = HealthPolicy{
		Enabled:           true,
		Interval:          30 * time.Second,
		Timeout:           10 * time.Second,
		FailureThreshold:  3,
		RecoveryThreshold: 2,
	}
	return cfg
}

// failService records enough failures to trip the breaker open.
func failService(c *Controller, name string) {
	for i := 0; i < 3; i++ {
		c.Execute(context.Background(), name, func(context.Context) error { //nolint:errcheck
			return NewError(KindConnection, errors.New("down"))
		})
	}
}

func TestMonitor_RecoveryCallbackAfterThreshold(t *testing.T) {
	clock := newFakeClock()
	c, _ := newTestController(clock)
	c.Register("hub-websocket", monitorConfig())

	recoveries := 0
	c.SetRecoveryCallback("hub-websocket", func(context.Context) error {
		recoveries++
		return nil
	})

	failService(c, "hub-websocket")

	// Three due sweeps at 30s apart: failing checks 1, 2, 3.
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		clock.advance(30 * time.Second)
		c.sweep(ctx, clock.now())
	}

	if recoveries != 1 {
		t.Errorf("recovery callback invoked %d times, want 1 after threshold", recoveries)
	}

	m := c.Snapshot()["hub-websocket"]
	if m.HealthFailures != 3 {
		t.Errorf("HealthFailures = %d, want 3", m.HealthFailures)
	}
}

func TestMonitor_NoCallbackBeforeThreshold(t *testing.T) {
	clock := newFakeClock()
	c, _ := newTestController(clock)
	c.Register("hub-websocket", monitorConfig())

	recoveries := 0
	c.SetRecoveryCallback("hub-websocket", func(context.Context) error {
		recoveries++
		return nil
	})

	failService(c, "hub-websocket")

	ctx := context.Background()
	for i := 0; i < 2; i++ {
		clock.advance(30 * time.Second)
		c.sweep(ctx, clock.now())
	}

	if recoveries != 0 {
		t.Errorf("recovery callback invoked %d times before threshold, want 0", recoveries)
	}
}

func TestMonitor_HealthyServicePasses(t *testing.T) {
	clock := newFakeClock()
	c, _ := newTestController(clock)
	c.Register("hub-rest", monitorConfig())

	ctx := context.Background()
	clock.advance(31 * time.Second)
	c.sweep(ctx, clock.now())

	m := c.Snapshot()["hub-rest"]
	if m.HealthPasses != 1 {
		t.Errorf("HealthPasses = %d, want 1", m.HealthPasses)
	}
	if m.HealthFailures != 0 {
		t.Errorf("HealthFailures = %d, want 0", m.HealthFailures)
	}
}

func TestMonitor_RecentFailureCountsAsFailing(t *testing.T) {
	clock := newFakeClock()
	c, _ := newTestController(clock)
	cfg := monitorConfig()
	cfg.Breaker.FailureThreshold = 100 // keep the breaker closed
	c.Register("hub-rest", cfg)

	c.Execute(context.Background(), "hub-rest", func(context.Context) error { //nolint:errcheck
		return NewError(KindTimeout, errors.New("slow"))
	})

	// Within 2x interval of the failure the check must fail even though
	// the breaker is still closed.
	clock.advance(30 * time.Second)
	c.sweep(context.Background(), clock.now())

	m := c.Snapshot()["hub-rest"]
	if m.HealthFailures != 1 {
		t.Errorf("HealthFailures = %d, want 1 for recent failure", m.HealthFailures)
	}
}

func TestMonitor_RecoveredAfterRecoveryThreshold(t *testing.T) {
	clock := newFakeClock()
	c, _ := newTestController(clock)
	c.Register("hub-websocket", monitorConfig())
	c.SetRecoveryCallback("hub-websocket", func(context.Context) error { return nil })

	failService(c, "hub-websocket")

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		clock.advance(30 * time.Second)
		c.sweep(ctx, clock.now())
	}

	// Close the breaker and wait out the recent-failure window.
	clock.advance(61 * time.Second)
	for i := 0; i < 2; i++ {
		if err := c.Execute(ctx, "hub-websocket", func(context.Context) error { return nil }); err != nil {
			t.Fatalf("probe failed: %v", err)
		}
	}
	clock.advance(10 * time.Minute)

	// Two passing checks satisfy the recovery threshold.
	for i := 0; i < 2; i++ {
		c.sweep(ctx, clock.now())
		clock.advance(30 * time.Second)
	}

	m := c.Snapshot()["hub-websocket"]
	if m.Recoveries != 1 {
		t.Errorf("Recoveries = %d, want 1", m.Recoveries)
	}
}

func TestMonitor_CallbackPanicContained(t *testing.T) {
	clock := newFakeClock()
	c, _ := newTestController(clock)
	c.Register("hub-websocket", monitorConfig())
	c.SetRecoveryCallback("hub-websocket", func(context.Context) error {
		panic("recovery went sideways")
	})

	failService(c, "hub-websocket")

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		clock.advance(30 * time.Second)
		c.sweep(ctx, clock.now()) // must not panic through
	}
}

func TestMonitor_DisabledServiceSkipped(t *testing.T) {
	clock := newFakeClock()
	c, _ := newTestController(clock)
	cfg := monitorConfig()
	cfg.Health.Enabled = false
	c.Register("hub-rest", cfg)

	clock.advance(31 * time.Second)
	c.sweep(context.Background(), clock.now())

	m := c.Snapshot()["hub-rest"]
	if m.HealthPasses != 0 || m.HealthFailures != 0 {
		t.Errorf("disabled service was checked: passes=%d failures=%d", m.HealthPasses, m.HealthFailures)
	}
}
