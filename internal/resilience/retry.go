package resilience

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// Strategy selects how retry delays grow across attempts.
type Strategy string

const (
	StrategyExponential Strategy = "exponential"
	StrategyLinear      Strategy = "linear"
	StrategyFixed       Strategy = "fixed"
	StrategyAdaptive    Strategy = "adaptive"
)

// ParseStrategy converts a configuration string to a Strategy.
// An empty string defaults to exponential.
func ParseStrategy(s string) (Strategy, error) {
	switch Strategy(strings.ToLower(s)) {
	case StrategyExponential, "":
		return StrategyExponential, nil
	case StrategyLinear:
		return StrategyLinear, nil
	case StrategyFixed:
		return StrategyFixed, nil
	case StrategyAdaptive:
		return StrategyAdaptive, nil
	default:
		return "", fmt.Errorf("resilience: unknown retry strategy %q", s)
	}
}

// RetryPolicy configures the retry loop for one service.
type RetryPolicy struct {
	MaxAttempts     int
	BaseDelay       time.Duration
	MaxDelay        time.Duration
	ExponentialBase float64
	Jitter          bool
	Strategy        Strategy

	// RetryableKinds is the set of error kinds worth retrying. Nil selects
	// the default transient set (connection, timeout, service unavailable,
	// rate limit, network).
	RetryableKinds map[Kind]bool
}

// retryable reports whether an error of the given kind should be retried.
func (p RetryPolicy) retryable(kind Kind) bool {
	kinds := p.RetryableKinds
	if kinds == nil {
		kinds = defaultRetryableKinds()
	}
	return kinds[kind]
}

// delay computes the backoff before the next attempt. attempt is 1-based
// (the attempt that just failed). consecutiveFailures feeds the adaptive
// strategy, which slows down as a service keeps failing. jitterFactor is a
// multiplier in [0.5, 1.0], or <= 0 for no jitter.
func (p RetryPolicy) delay(attempt, consecutiveFailures int, jitterFactor float64) time.Duration {
	base := float64(p.BaseDelay)

	var d float64
	switch p.Strategy {
	case StrategyLinear:
		d = base * float64(attempt)
	case StrategyFixed:
		d = base
	case StrategyAdaptive:
		d = base * (1 + math.Min(float64(consecutiveFailures)/10, 2))
	default: // exponential
		expBase := p.ExponentialBase
		if expBase <= 0 {
			expBase = 2
		}
		d = base * math.Pow(expBase, float64(attempt-1))
	}

	if jitterFactor > 0 {
		d *= jitterFactor
	}

	if max := float64(p.MaxDelay); p.MaxDelay > 0 && d > max {
		d = max
	}
	return time.Duration(d)
}
