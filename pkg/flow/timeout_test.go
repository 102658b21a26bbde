package flow

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// TestTimeoutPassesFastResults verifies a primitive finishing inside the
// limit is unaffected.
func TestTimeoutPassesFastResults(t *testing.T) {
	t.Parallel()

	step := NewFunc("quick", func(ctx context.Context, input any) (any, error) {
		return "done", nil
	})

	out, err := Execute(context.Background(), NewTimeout(step, time.Second), nil)
	require.NoError(t, err)
	require.Equal(t, "done", out)
}

// TestTimeoutExpires verifies expiry produces a Timeout-kind error naming
// the limit, within a bound close to the limit itself.
func TestTimeoutExpires(t *testing.T) {
	t.Parallel()

	childErr := make(chan error, 1)
	step := NewFunc("slow", func(ctx context.Context, input any) (any, error) {
		select {
		case <-time.After(5 * time.Second):
			return "never", nil
		case <-ctx.Done():
			childErr <- ctx.Err()
			return nil, ctx.Err()
		}
	})

	start := time.Now()
	_, err := Execute(context.Background(), NewTimeout(step, 30*time.Millisecond), nil)
	elapsed := time.Since(start)

	require.Error(t, err)
	require.True(t, IsTimeout(err), "expiry must classify as timeout, got %v", err)
	require.Contains(t, err.Error(), "exceeded 30ms")
	require.Less(t, elapsed, time.Second, "expiry must not wait for the slow child")

	// The child was cancelled cooperatively.
	select {
	case got := <-childErr:
		require.ErrorIs(t, got, context.DeadlineExceeded)
	case <-time.After(time.Second):
		t.Fatal("child never observed cancellation")
	}
}

// TestTimeoutErrorPassesThrough verifies a child failure inside the limit
// keeps its own classification.
func TestTimeoutErrorPassesThrough(t *testing.T) {
	t.Parallel()

	sentinel := PermanentError(errors.New("bad request"))
	step := NewFunc("fails", func(ctx context.Context, input any) (any, error) {
		return nil, sentinel
	})

	_, err := Execute(context.Background(), NewTimeout(step, time.Second), nil)
	require.ErrorIs(t, err, sentinel)
	require.False(t, IsTimeout(err))
}

// TestTimeoutParentCancellation verifies the caller's own cancellation
// propagates as cancellation, not as a timeout.
func TestTimeoutParentCancellation(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	step := NewFunc("blocked", func(ctx context.Context, input any) (any, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})

	_, err := Execute(ctx, NewTimeout(step, time.Minute), nil)
	require.ErrorIs(t, err, context.Canceled)
	require.False(t, IsTimeout(err), "caller cancellation is not an expiry")
}

// TestTimeoutConstructorValidation verifies build-time panics.
func TestTimeoutConstructorValidation(t *testing.T) {
	t.Parallel()

	require.Panics(t, func() { NewTimeout(nil, time.Second) })
	require.Panics(t, func() { NewTimeout(passthrough("x"), 0) })
	require.Panics(t, func() { NewTimeout(passthrough("x"), -time.Second) })
}

// TestNestedTimeouts verifies the inner, tighter limit wins.
func TestNestedTimeouts(t *testing.T) {
	t.Parallel()

	step := NewFunc("slow", func(ctx context.Context, input any) (any, error) {
		select {
		case <-time.After(5 * time.Second):
			return "never", nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	})

	inner := NewTimeout(step, 20*time.Millisecond)
	outer := NewTimeout(inner, time.Minute)

	_, err := Execute(context.Background(), outer, nil)
	require.Error(t, err)
	require.True(t, IsTimeout(err))
	require.Contains(t, err.Error(), "20ms", "the inner limit is the one that fired")
	require.NotContains(t, err.Error(), "1m", "the outer limit never expired and must not rewrap")
}
