package resilience

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"
)

// Logger is the minimal logging interface the controller needs.
// *logging.Logger satisfies it.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// HealthPolicy configures the background health check for one service.
type HealthPolicy struct {
	Enabled           bool
	Interval          time.Duration
	Timeout           time.Duration
	FailureThreshold  int
	RecoveryThreshold int
}

// Config groups the protection settings for one registered service.
type Config struct {
	Retry   RetryPolicy
	Breaker BreakerPolicy
	Health  HealthPolicy
}

// Metrics is a point-in-time snapshot of one service's counters.
type Metrics struct {
	State               BreakerState
	TotalErrors         uint64
	ConsecutiveFailures int
	ErrorsByKind        map[Kind]uint64
	Recoveries          uint64
	BreakerTrips        uint64
	HealthPasses        uint64
	HealthFailures      uint64
	LastFailureAt       time.Time
}

// service holds everything the controller tracks for one registered name.
type service struct {
	name    string
	cfg     Config
	breaker *breaker

	mu                  sync.Mutex
	totalErrors         uint64
	consecutiveFailures int
	errorsByKind        map[Kind]uint64
	recoveries          uint64
	breakerTrips        uint64
	healthPasses        uint64
	healthFailures      uint64

	// health monitor bookkeeping, touched only by the monitor loop
	recovery         func(ctx context.Context) error
	failingChecks    int
	recoveringChecks int
	degraded         bool
	lastCheck        time.Time
}

// Controller wraps operations against named services with classification,
// circuit breaking, and retries.
type Controller struct {
	logger Logger
	now    func() time.Time
	sleep  func(ctx context.Context, d time.Duration) error
	rng    *rand.Rand
	rngMu  sync.Mutex

	mu       sync.RWMutex
	services map[string]*service

	stopOnce sync.Once
	done     chan struct{}
	wg       sync.WaitGroup
}

// Options configures a Controller. All fields are optional.
type Options struct {
	Logger Logger

	// Now and Sleep are injectable for tests. Defaults: time.Now and a
	// context-aware timer sleep.
	Now   func() time.Time
	Sleep func(ctx context.Context, d time.Duration) error
}

// New creates a Controller with no registered services.
func New(opts Options) *Controller {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	sleep := opts.Sleep
	if sleep == nil {
		sleep = sleepContext
	}
	return &Controller{
		logger:   opts.Logger,
		now:      now,
		sleep:    sleep,
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())), //nolint:gosec // Jitter, not crypto
		services: make(map[string]*service),
		done:     make(chan struct{}),
	}
}

// Register adds a service under the given name. Registering an existing
// name replaces its configuration and resets its breaker and counters.
func (c *Controller) Register(name string, cfg Config) {
	if cfg.Retry.MaxAttempts < 1 {
		cfg.Retry.MaxAttempts = 1
	}
	if cfg.Breaker.HalfOpenMaxAttempts < 1 {
		cfg.Breaker.HalfOpenMaxAttempts = 1
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.services[name] = &service{
		name:         name,
		cfg:          cfg,
		breaker:      newBreaker(cfg.Breaker, c.now),
		errorsByKind: make(map[Kind]uint64),
	}
}

// SetRecoveryCallback registers a best-effort recovery function invoked by
// the health monitor when the service stays failing. Returns false if the
// service is unknown.
func (c *Controller) SetRecoveryCallback(name string, fn func(ctx context.Context) error) bool {
	c.mu.RLock()
	svc, ok := c.services[name]
	c.mu.RUnlock()
	if !ok {
		return false
	}
	svc.mu.Lock()
	svc.recovery = fn
	svc.mu.Unlock()
	return true
}

// Execute runs op under the named service's protection.
//
// The breaker gates every attempt: a call rejected by an open breaker fails
// immediately with a service_unavailable error wrapping ErrCircuitOpen,
// without invoking op. Failures are classified; non-retryable kinds surface
// immediately, retryable ones are retried with the configured backoff until
// MaxAttempts is exhausted. The returned error is always a *Error carrying
// the service name and attempt count.
func (c *Controller) Execute(ctx context.Context, name string, op func(ctx context.Context) error) error {
	c.mu.RLock()
	svc, ok := c.services[name]
	c.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrServiceNotRegistered, name)
	}

	var lastErr error
	var lastKind Kind

	for attempt := 1; attempt <= svc.cfg.Retry.MaxAttempts; attempt++ {
		if !svc.breaker.allow() {
			err := &Error{
				Kind:     KindServiceUnavailable,
				Service:  name,
				Attempts: attempt - 1,
				Err:      ErrCircuitOpen,
			}
			c.recordFailure(svc, KindServiceUnavailable, false)
			c.logDebug("circuit open, failing fast", "service", name)
			return err
		}

		err := op(ctx)
		if err == nil {
			c.recordSuccess(svc)
			return nil
		}

		kind := Classify(err)
		lastErr, lastKind = err, kind
		tripped := svc.breaker.recordFailure()
		c.recordFailure(svc, kind, tripped)
		if tripped {
			c.logWarn("circuit breaker opened", "service", name, "kind", string(kind), "error", err)
		}

		if !svc.cfg.Retry.retryable(kind) {
			return &Error{Kind: kind, Service: name, Attempts: attempt, Err: err}
		}
		if attempt == svc.cfg.Retry.MaxAttempts {
			// A retryable failure that exhausted its budget surfaces as
			// service_unavailable carrying the final classified cause.
			return &Error{Kind: KindServiceUnavailable, Service: name, Attempts: attempt, Err: err}
		}

		svc.mu.Lock()
		consecutive := svc.consecutiveFailures
		svc.mu.Unlock()

		d := svc.cfg.Retry.delay(attempt, consecutive, c.jitterFactor(svc.cfg.Retry.Jitter))
		c.logDebug("retrying after failure",
			"service", name, "attempt", attempt, "kind", string(kind), "delay", d.String())
		if err := c.sleep(ctx, d); err != nil {
			return &Error{Kind: lastKind, Service: name, Attempts: attempt, Err: lastErr}
		}
	}

	// Unreachable: the loop always returns on its final attempt.
	return &Error{Kind: lastKind, Service: name, Attempts: svc.cfg.Retry.MaxAttempts, Err: lastErr}
}

// Record reports the outcome of an operation that ran outside Execute,
// feeding the named service's breaker and metrics. Used by callers that
// own their own retry loop, such as the hub WebSocket maintainer.
// Unknown services are ignored.
func (c *Controller) Record(name string, err error) {
	c.mu.RLock()
	svc, ok := c.services[name]
	c.mu.RUnlock()
	if !ok {
		return
	}

	if err == nil {
		c.recordSuccess(svc)
		return
	}
	kind := Classify(err)
	tripped := svc.breaker.recordFailure()
	c.recordFailure(svc, kind, tripped)
	if tripped {
		c.logWarn("circuit breaker opened", "service", name, "kind", string(kind), "error", err)
	}
}

// BreakerState returns the named service's current breaker state.
func (c *Controller) BreakerState(name string) (BreakerState, bool) {
	c.mu.RLock()
	svc, ok := c.services[name]
	c.mu.RUnlock()
	if !ok {
		return StateClosed, false
	}
	state, _, _ := svc.breaker.snapshot()
	return state, true
}

// Snapshot returns current metrics for every registered service.
func (c *Controller) Snapshot() map[string]Metrics {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make(map[string]Metrics, len(c.services))
	for name, svc := range c.services {
		state, _, lastFailure := svc.breaker.snapshot()
		svc.mu.Lock()
		kinds := make(map[Kind]uint64, len(svc.errorsByKind))
		for k, v := range svc.errorsByKind {
			kinds[k] = v
		}
		out[name] = Metrics{
			State:               state,
			TotalErrors:         svc.totalErrors,
			ConsecutiveFailures: svc.consecutiveFailures,
			ErrorsByKind:        kinds,
			Recoveries:          svc.recoveries,
			BreakerTrips:        svc.breakerTrips,
			HealthPasses:        svc.healthPasses,
			HealthFailures:      svc.healthFailures,
			LastFailureAt:       lastFailure,
		}
		svc.mu.Unlock()
	}
	return out
}

// Stop shuts down the health monitor, if started. Idempotent.
func (c *Controller) Stop() {
	c.stopOnce.Do(func() {
		close(c.done)
	})
	c.wg.Wait()
}

func (c *Controller) recordSuccess(svc *service) {
	svc.breaker.recordSuccess()
	svc.mu.Lock()
	svc.consecutiveFailures = 0
	svc.mu.Unlock()
}

func (c *Controller) recordFailure(svc *service, kind Kind, tripped bool) {
	svc.mu.Lock()
	svc.totalErrors++
	svc.consecutiveFailures++
	svc.errorsByKind[kind]++
	if tripped {
		svc.breakerTrips++
	}
	svc.mu.Unlock()
}

// jitterFactor draws a multiplier in [0.5, 1.0] when jitter is enabled,
// 0 otherwise. The shared RNG is not goroutine-safe, so draws are locked.
func (c *Controller) jitterFactor(jitter bool) float64 {
	if !jitter {
		return 0
	}
	c.rngMu.Lock()
	defer c.rngMu.Unlock()
	return 0.5 + c.rng.Float64()*0.5
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (c *Controller) logDebug(msg string, args ...any) {
	if c.logger != nil {
		c.logger.Debug(msg, args...)
	}
}

func (c *Controller) logInfo(msg string, args ...any) {
	if c.logger != nil {
		c.logger.Info(msg, args...)
	}
}

func (c *Controller) logWarn(msg string, args ...any) {
	if c.logger != nil {
		c.logger.Warn(msg, args...)
	}
}

func (c *Controller) logError(msg string, args ...any) {
	if c.logger != nil {
		c.logger.Error(msg, args...)
	}
}
