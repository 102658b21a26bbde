package flow

import (
	"context"
	"math"
	"math/rand/v2"
	"time"
)

// RetryStrategy configures the Retry primitive. The zero value retries
// nothing; see the root package's RetryBuilder for fluent construction.
type RetryStrategy struct {
	// MaxRetries is the number of re-invocations after the first attempt,
	// so the wrapped primitive runs at most MaxRetries+1 times.
	MaxRetries int

	// BackoffBase is the delay before the first retry. Zero retries
	// immediately.
	BackoffBase time.Duration

	// Multiplier grows the delay geometrically per retry. Values below 1
	// (including the zero value) fall back to 2.
	Multiplier float64

	// MaxBackoff caps a grown delay. Zero means no cap.
	MaxBackoff time.Duration

	// Jitter spreads each delay uniformly over ±50% of its value.
	Jitter bool

	// Retryable decides whether an error is worth another attempt.
	// Nil means IsTransient: only transient failures are retried.
	Retryable func(error) bool
}

// normalized applies the documented defaults.
func (s RetryStrategy) normalized() RetryStrategy {
	if s.MaxRetries < 0 {
		s.MaxRetries = 0
	}
	if s.Multiplier < 1 {
		s.Multiplier = 2
	}
	if s.Retryable == nil {
		s.Retryable = IsTransient
	}
	return s
}

// Delay returns the wait before retry number attempt (1-based):
// BackoffBase x Multiplier^(attempt-1), capped by MaxBackoff, jittered
// over [0.5x, 1.5x) when Jitter is set.
func (s RetryStrategy) Delay(attempt int) time.Duration {
	if s.BackoffBase <= 0 || attempt < 1 {
		return 0
	}
	mult := s.Multiplier
	if mult < 1 {
		mult = 2
	}
	d := time.Duration(float64(s.BackoffBase) * math.Pow(mult, float64(attempt-1)))
	if s.MaxBackoff > 0 && d > s.MaxBackoff {
		d = s.MaxBackoff
	}
	if s.Jitter && d > 0 {
		d = time.Duration(float64(d) * (0.5 + rand.Float64()))
	}
	return d
}

// Retry re-invokes its wrapped primitive while the strategy's predicate
// accepts the failure, waiting the strategy's backoff between attempts.
// Each attempt runs as a sibling span under the Retry span; the total
// attempt count is recorded as the retry.attempts span attribute. After
// exhausting MaxRetries the last error is returned.
type Retry struct {
	wrapped  Primitive
	strategy RetryStrategy
}

var _ Primitive = (*Retry)(nil)

// NewRetry wraps a primitive with a retry strategy.
func NewRetry(wrapped Primitive, strategy RetryStrategy) *Retry {
	if wrapped == nil {
		panic("flow: retry wrapped primitive must not be nil")
	}
	return &Retry{wrapped: wrapped, strategy: strategy}
}

func (r *Retry) Name() string { return "retry(" + r.wrapped.Name() + ")" }
func (r *Retry) Type() string { return TypeRetry }

func (r *Retry) Execute(ctx context.Context, input any) (any, error) {
	s := r.strategy.normalized()

	attempts := 0
	defer func() {
		Annotate(ctx, "retry.attempts", attempts)
	}()

	var lastErr error
	for attempt := 0; attempt <= s.MaxRetries; attempt++ {
		if attempt > 0 {
			if delay := s.Delay(attempt); delay > 0 {
				select {
				case <-ctx.Done():
					return nil, ctx.Err()
				case <-time.After(delay):
				}
			} else if err := ctx.Err(); err != nil {
				return nil, err
			}
		}

		output, err := RunChild(ctx, r.wrapped, input)
		attempts++
		if err == nil {
			return output, nil
		}
		lastErr = err
		if !s.Retryable(err) {
			break
		}
	}
	return nil, lastErr
}
