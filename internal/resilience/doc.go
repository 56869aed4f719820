// Package resilience provides service-scoped protection for operations
// against unreliable dependencies.
//
// Each registered service gets a circuit breaker, a retry policy, and an
// optional background health check. Operations are wrapped with Execute,
// which classifies failures into error kinds, decides retryability, applies
// the configured backoff strategy, and fails fast while the breaker is open.
//
// # Circuit breaker
//
// The breaker is a three-state machine:
//
//	CLOSED    - operations pass through; failures are counted
//	OPEN      - operations are rejected immediately until the recovery
//	            timeout elapses
//	HALF_OPEN - a bounded number of probe operations are allowed; enough
//	            successes close the breaker, any failure reopens it
//
// # Health monitoring
//
// A single background loop sweeps all registered services whose health
// check is enabled. A service that stays failing for the configured number
// of consecutive checks triggers its recovery callback; the callback is
// best-effort and its own failure is only logged.
//
// All methods are safe for concurrent use.
package resilience
