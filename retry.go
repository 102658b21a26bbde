package stitch

import "time"

// RetryBuilder provides a fluent way to construct RetryStrategy values for
// use with NewRetry and PipelineBuilder.StepWithRetry.
type RetryBuilder struct {
	strategy RetryStrategy
}

// Retry creates a RetryBuilder allowing maxRetries re-invocations after
// the first attempt.
//
// maxRetries <= 0 is treated as 0 (a single attempt, no retries).
func Retry(maxRetries int) RetryBuilder {
	if maxRetries < 0 {
		maxRetries = 0
	}
	return RetryBuilder{
		strategy: RetryStrategy{MaxRetries: maxRetries},
	}
}

// WithExponentialBackoff configures exponential backoff:
//
//   - base is the delay before the first retry.
//   - multiplier grows the delay each retry (default 2 if < 1).
//
// Cap the grown delay with WithMaxBackoff.
//
// Example:
//
//	Retry(3).WithExponentialBackoff(100*time.Millisecond, 2)
func (r RetryBuilder) WithExponentialBackoff(base time.Duration, multiplier float64) RetryBuilder {
	s := r.strategy
	s.BackoffBase = base
	if multiplier < 1 {
		multiplier = 2
	}
	s.Multiplier = multiplier
	return RetryBuilder{strategy: s}
}

// WithMaxBackoff caps the delay exponential growth can reach.
// Zero means no cap.
func (r RetryBuilder) WithMaxBackoff(max time.Duration) RetryBuilder {
	s := r.strategy
	s.MaxBackoff = max
	return RetryBuilder{strategy: s}
}

// WithConstantBackoff configures the same delay before every retry.
//
// This is equivalent to an exponential backoff with multiplier 1 and
// no cap.
func (r RetryBuilder) WithConstantBackoff(delay time.Duration) RetryBuilder {
	s := r.strategy
	s.BackoffBase = delay
	s.Multiplier = 1
	s.MaxBackoff = 0
	return RetryBuilder{strategy: s}
}

// WithJitter spreads every delay uniformly over ±50% of its value, so
// callers that failed together do not retry in lockstep.
func (r RetryBuilder) WithJitter() RetryBuilder {
	s := r.strategy
	s.Jitter = true
	return RetryBuilder{strategy: s}
}

// WithRetryIf replaces the default predicate, which retries only
// transient errors.
func (r RetryBuilder) WithRetryIf(retryable func(error) bool) RetryBuilder {
	s := r.strategy
	s.Retryable = retryable
	return RetryBuilder{strategy: s}
}

// Immediate disables any sleep between retries.
// Retries still respect MaxRetries.
func (r RetryBuilder) Immediate() RetryBuilder {
	s := r.strategy
	s.BackoffBase = 0
	s.MaxBackoff = 0
	s.Jitter = false
	return RetryBuilder{strategy: s}
}

// Strategy returns the built RetryStrategy, to be passed to NewRetry or
// PipelineBuilder.StepWithRetry.
func (r RetryBuilder) Strategy() RetryStrategy {
	return r.strategy
}
