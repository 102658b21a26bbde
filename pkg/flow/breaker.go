package flow

import (
	"context"
	"errors"
	"sync"
	"time"
)

// BreakerState is the circuit breaker's current disposition.
type BreakerState int

const (
	// StateClosed passes calls through and counts consecutive failures.
	StateClosed BreakerState = iota
	// StateOpen rejects calls immediately with a CircuitOpen error.
	StateOpen
	// StateHalfOpen lets exactly one trial call through to probe recovery.
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

// CircuitBreaker guards its wrapped primitive against sustained failure.
// After failureThreshold consecutive failures it opens and rejects every
// call with a CircuitOpen error (carrying the remaining recovery time as a
// RetryAfter hint) without invoking the wrapped primitive. Once
// recoveryTimeout has passed, one trial call is let through: success
// closes the breaker, failure re-opens it.
//
// State is a local, mutex-guarded decision: external cancellation of a
// rejected or in-flight call neither counts as a dependency failure nor
// resets the failure streak.
type CircuitBreaker struct {
	wrapped          Primitive
	failureThreshold int
	recoveryTimeout  time.Duration

	mu            sync.Mutex
	state         BreakerState
	failures      int
	openedAt      time.Time
	trialInFlight bool
}

var _ Primitive = (*CircuitBreaker)(nil)

// NewCircuitBreaker guards wrapped. failureThreshold must be at least 1
// and recoveryTimeout positive; both are programming errors otherwise.
func NewCircuitBreaker(wrapped Primitive, failureThreshold int, recoveryTimeout time.Duration) *CircuitBreaker {
	if wrapped == nil {
		panic("flow: circuit breaker wrapped primitive must not be nil")
	}
	if failureThreshold < 1 {
		panic("flow: circuit breaker failure threshold must be at least 1")
	}
	if recoveryTimeout <= 0 {
		panic("flow: circuit breaker recovery timeout must be positive")
	}
	return &CircuitBreaker{
		wrapped:          wrapped,
		failureThreshold: failureThreshold,
		recoveryTimeout:  recoveryTimeout,
	}
}

func (c *CircuitBreaker) Name() string { return "breaker(" + c.wrapped.Name() + ")" }
func (c *CircuitBreaker) Type() string { return TypeCircuit }

// State returns the breaker's current state.
func (c *CircuitBreaker) State() BreakerState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *CircuitBreaker) Execute(ctx context.Context, input any) (any, error) {
	proceed, state, retryAfter := c.allow()
	Annotate(ctx, "circuit.state", state.String())
	if !proceed {
		return nil, CircuitOpenError(retryAfter)
	}

	output, err := RunChild(ctx, c.wrapped, input)
	c.record(err)
	return output, err
}

// allow decides whether a call may proceed, transitioning Open to
// Half-Open when the recovery timeout has elapsed.
func (c *CircuitBreaker) allow() (proceed bool, state BreakerState, retryAfter time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.state {
	case StateClosed:
		return true, StateClosed, 0
	case StateOpen:
		remaining := c.recoveryTimeout - time.Since(c.openedAt)
		if remaining > 0 {
			return false, StateOpen, remaining
		}
		c.state = StateHalfOpen
		c.trialInFlight = true
		return true, StateHalfOpen, 0
	default: // StateHalfOpen
		if c.trialInFlight {
			return false, StateHalfOpen, 0
		}
		c.trialInFlight = true
		return true, StateHalfOpen, 0
	}
}

// record applies one call outcome to the breaker state. Cancellation gives
// no verdict about the dependency, so it neither counts nor resets.
func (c *CircuitBreaker) record(err error) {
	cancelled := err != nil && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded))

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == StateHalfOpen {
		c.trialInFlight = false
		switch {
		case cancelled:
			// Inconclusive trial: stay half-open, next call probes again.
		case err != nil:
			c.trip()
		default:
			c.reset()
		}
		return
	}

	switch {
	case cancelled:
	case err != nil:
		c.failures++
		if c.failures >= c.failureThreshold {
			c.trip()
		}
	default:
		c.failures = 0
	}
}

func (c *CircuitBreaker) trip() {
	c.state = StateOpen
	c.openedAt = time.Now()
	c.failures = 0
}

func (c *CircuitBreaker) reset() {
	c.state = StateClosed
	c.failures = 0
}
