package flow

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// TestFallbackRecoversFromFailure verifies the canonical chain: a failing
// primary followed by a working alternative yields the alternative's
// result, with both attempts visible as spans.
func TestFallbackRecoversFromFailure(t *testing.T) {
	t.Parallel()

	obs := &testObserver{}
	in := NewInstrumenter(WithObserver(obs))

	fb := NewFallback("resilient",
		NewFunc("always-fails", func(ctx context.Context, input any) (any, error) {
			return nil, errors.New("down")
		}),
		NewFunc("backup", func(ctx context.Context, input any) (any, error) {
			return 42, nil
		}),
	)

	out, err := in.Execute(context.Background(), fb, nil)
	require.NoError(t, err)
	require.Equal(t, 42, out)

	spans := obs.capturedSpans()
	require.Len(t, spans, 3, "fallback span plus one span per attempt")
	requireSingleTree(t, spans)
	require.Equal(t, "always-fails", spans[1].Name)
	require.Equal(t, "backup", spans[2].Name)

	_, _, _, _, _, primErrs := obs.counts()
	require.Equal(t, 1, primErrs, "only the failed attempt records an error")
}

// TestFallbackFirstSuccessWins verifies later alternatives never run once
// a primary succeeds.
func TestFallbackFirstSuccessWins(t *testing.T) {
	t.Parallel()

	secondRan := false
	fb := NewFallback("chain",
		NewFunc("first", func(ctx context.Context, input any) (any, error) {
			return "first", nil
		}),
		NewFunc("second", func(ctx context.Context, input any) (any, error) {
			secondRan = true
			return "second", nil
		}),
	)

	out, err := Execute(context.Background(), fb, nil)
	require.NoError(t, err)
	require.Equal(t, "first", out)
	require.False(t, secondRan)
}

// TestFallbackAdvancesOnPermanent verifies permanent failures still move
// to the next alternative: a different implementation may well succeed.
func TestFallbackAdvancesOnPermanent(t *testing.T) {
	t.Parallel()

	fb := NewFallback("chain",
		NewFunc("rejects", func(ctx context.Context, input any) (any, error) {
			return nil, PermanentError(errors.New("unsupported"))
		}),
		NewFunc("accepts", func(ctx context.Context, input any) (any, error) {
			return "ok", nil
		}),
	)

	out, err := Execute(context.Background(), fb, nil)
	require.NoError(t, err)
	require.Equal(t, "ok", out)
}

// TestFallbackStopsOnTimeout verifies a timeout failure propagates
// immediately instead of burning the remaining deadline on alternatives.
func TestFallbackStopsOnTimeout(t *testing.T) {
	t.Parallel()

	backupRan := false
	fb := NewFallback("chain",
		NewFunc("expired", func(ctx context.Context, input any) (any, error) {
			return nil, TimeoutError(errors.New("too slow"))
		}),
		NewFunc("backup", func(ctx context.Context, input any) (any, error) {
			backupRan = true
			return "never", nil
		}),
	)

	_, err := Execute(context.Background(), fb, nil)
	require.Error(t, err)
	require.True(t, IsTimeout(err))
	require.False(t, backupRan)
}

// TestFallbackStopsOnCircuitOpen verifies open-breaker rejections halt the
// chain.
func TestFallbackStopsOnCircuitOpen(t *testing.T) {
	t.Parallel()

	backupRan := false
	fb := NewFallback("chain",
		NewFunc("rejected", func(ctx context.Context, input any) (any, error) {
			return nil, CircuitOpenError(time.Second)
		}),
		NewFunc("backup", func(ctx context.Context, input any) (any, error) {
			backupRan = true
			return "never", nil
		}),
	)

	_, err := Execute(context.Background(), fb, nil)
	require.Error(t, err)
	require.True(t, IsCircuitOpen(err))
	require.False(t, backupRan)
}

// TestFallbackAllFail verifies the last error surfaces when every
// alternative fails.
func TestFallbackAllFail(t *testing.T) {
	t.Parallel()

	last := TransientError(errors.New("third down"))
	fb := NewFallback("chain",
		NewFunc("a", func(ctx context.Context, input any) (any, error) {
			return nil, TransientError(errors.New("first down"))
		}),
		NewFunc("b", func(ctx context.Context, input any) (any, error) {
			return nil, TransientError(errors.New("second down"))
		}),
		NewFunc("c", func(ctx context.Context, input any) (any, error) {
			return nil, last
		}),
	)

	_, err := Execute(context.Background(), fb, nil)
	require.ErrorIs(t, err, last)
}

// TestFallbackHonorsCancellation verifies a cancelled caller stops the
// chain before the next alternative.
func TestFallbackHonorsCancellation(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())

	backupRan := false
	fb := NewFallback("chain",
		NewFunc("cancels", func(ctx context.Context, input any) (any, error) {
			cancel()
			return nil, TransientError(errors.New("boom"))
		}),
		NewFunc("backup", func(ctx context.Context, input any) (any, error) {
			backupRan = true
			return "never", nil
		}),
	)

	_, err := Execute(ctx, fb, nil)
	require.ErrorIs(t, err, context.Canceled)
	require.False(t, backupRan)
}

// TestFallbackConstructorValidation verifies build-time panics.
func TestFallbackConstructorValidation(t *testing.T) {
	t.Parallel()

	require.Panics(t, func() { NewFallback("") })
	require.Panics(t, func() { NewFallback("x") })
	require.Panics(t, func() { NewFallback("x", nil) })
}
