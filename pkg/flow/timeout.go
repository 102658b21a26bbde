package flow

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Timeout bounds the execution time of its wrapped primitive. The wrapped
// primitive runs on its own goroutine against a deadline context; on
// expiry Timeout returns a Timeout-kind error and the child is cancelled
// cooperatively. Cancellation is advisory, so the child's span ends when
// the child observes it, not when the deadline fires.
type Timeout struct {
	wrapped Primitive
	limit   time.Duration
}

var _ Primitive = (*Timeout)(nil)

// NewTimeout bounds wrapped to the given limit.
func NewTimeout(wrapped Primitive, limit time.Duration) *Timeout {
	if wrapped == nil {
		panic("flow: timeout wrapped primitive must not be nil")
	}
	if limit <= 0 {
		panic("flow: timeout limit must be positive")
	}
	return &Timeout{wrapped: wrapped, limit: limit}
}

func (t *Timeout) Name() string { return "timeout(" + t.wrapped.Name() + ")" }
func (t *Timeout) Type() string { return TypeTimeout }

func (t *Timeout) Execute(ctx context.Context, input any) (any, error) {
	tctx, cancel := context.WithTimeout(ctx, t.limit)
	defer cancel()

	type result struct {
		output any
		err    error
	}
	// Buffered so a late-finishing child can hand off its result and exit
	// after the deadline already won the race.
	done := make(chan result, 1)
	go func() {
		output, err := RunChild(tctx, t.wrapped, input)
		done <- result{output: output, err: err}
	}()

	select {
	case res := <-done:
		if res.err != nil && !IsTimeout(res.err) && errors.Is(res.err, context.DeadlineExceeded) &&
			tctx.Err() != nil && ctx.Err() == nil {
			// The child noticed our deadline before we did; surface it the
			// same way as the race below. An error a nested Timeout already
			// classified passes through untouched.
			return nil, t.expired(res.err)
		}
		return res.output, res.err
	case <-tctx.Done():
		if errors.Is(tctx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			return nil, t.expired(tctx.Err())
		}
		// The caller's own context ended; propagate its error unchanged.
		return nil, ctx.Err()
	}
}

func (t *Timeout) expired(cause error) error {
	return TimeoutError(fmt.Errorf("%s exceeded %s: %w", t.wrapped.Name(), t.limit, cause))
}
