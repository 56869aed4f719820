package resilience

import (
	"context"
	"time"
)

// monitorResolution is how often the monitor loop wakes to find services
// whose health check interval has elapsed.
const monitorResolution = time.Second

// StartMonitor launches the background health monitoring loop. It runs
// until Stop is called or ctx is cancelled. Safe to call once.
func (c *Controller) StartMonitor(ctx context.Context) {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()

		ticker := time.NewTicker(monitorResolution)
		defer ticker.Stop()

		c.logInfo("health monitor started")
		for {
			select {
			case <-ctx.Done():
				return
			case <-c.done:
				return
			case <-ticker.C:
				c.sweep(ctx, c.now())
			}
		}
	}()
}

// sweep runs health checks for every registered service whose check is
// enabled and due. Exposed to the loop and to tests via the injectable
// clock.
func (c *Controller) sweep(ctx context.Context, now time.Time) {
	c.mu.RLock()
	services := make([]*service, 0, len(c.services))
	for _, svc := range c.services {
		services = append(services, svc)
	}
	c.mu.RUnlock()

	for _, svc := range services {
		if !svc.cfg.Health.Enabled {
			continue
		}

		svc.mu.Lock()
		due := svc.lastCheck.IsZero() || now.Sub(svc.lastCheck) >= svc.cfg.Health.Interval
		if due {
			svc.lastCheck = now
		}
		svc.mu.Unlock()

		if due {
			c.checkService(ctx, svc, now)
		}
	}
}

// checkService evaluates one service's health and drives the recovery
// callback. A service is failing when its breaker is not CLOSED or it had a
// failure within twice the check interval.
func (c *Controller) checkService(ctx context.Context, svc *service, now time.Time) {
	state, _, lastFailure := svc.breaker.snapshot()
	recentWindow := 2 * svc.cfg.Health.Interval
	failing := state != StateClosed ||
		(!lastFailure.IsZero() && now.Sub(lastFailure) < recentWindow)

	svc.mu.Lock()
	if failing {
		svc.healthFailures++
		svc.failingChecks++
		svc.recoveringChecks = 0
	} else {
		svc.healthPasses++
		svc.failingChecks = 0
		if svc.degraded {
			svc.recoveringChecks++
			if svc.recoveringChecks >= svc.cfg.Health.RecoveryThreshold {
				svc.degraded = false
				svc.recoveringChecks = 0
				svc.recoveries++
				svc.mu.Unlock()
				c.logInfo("service recovered", "service", svc.name)
				return
			}
		}
	}

	triggerRecovery := failing && svc.failingChecks >= svc.cfg.Health.FailureThreshold
	var recovery func(ctx context.Context) error
	if triggerRecovery {
		svc.degraded = true
		svc.failingChecks = 0
		recovery = svc.recovery
	}
	svc.mu.Unlock()

	if !triggerRecovery {
		return
	}

	c.logWarn("service unhealthy, invoking recovery", "service", svc.name, "breaker", state.String())
	if recovery == nil {
		return
	}

	checkCtx := ctx
	if svc.cfg.Health.Timeout > 0 {
		var cancel context.CancelFunc
		checkCtx, cancel = context.WithTimeout(ctx, svc.cfg.Health.Timeout)
		defer cancel()
	}

	// Recovery callbacks are best-effort: their failures are logged and
	// never propagated into the monitor loop.
	defer func() {
		if r := recover(); r != nil {
			c.logError("recovery callback panicked", "service", svc.name, "panic", r)
		}
	}()
	if err := recovery(checkCtx); err != nil {
		c.logError("recovery callback failed", "service", svc.name, "error", err)
	}
}
