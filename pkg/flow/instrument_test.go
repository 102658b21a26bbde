package flow

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// passthrough returns a leaf step that hands its input back unchanged.
func passthrough(name string) *Func {
	return NewFunc(name, func(ctx context.Context, input any) (any, error) {
		return input, nil
	})
}

// requireSingleTree asserts the central tracing invariant: all captured
// spans share one trace id, exactly one span is the root, and every other
// span's parent is another captured span.
func requireSingleTree(t *testing.T, spans []capturedSpan) {
	t.Helper()
	require.NotEmpty(t, spans)

	traceID := spans[0].TraceID
	require.NotEmpty(t, traceID)

	ids := make(map[string]bool, len(spans))
	for _, s := range spans {
		require.Equal(t, traceID, s.TraceID, "span %q escaped the trace", s.Name)
		require.NotEmpty(t, s.SpanID, "span %q has no id", s.Name)
		require.False(t, ids[s.SpanID], "duplicate span id on %q", s.Name)
		ids[s.SpanID] = true
	}

	roots := 0
	for _, s := range spans {
		if s.ParentSpanID == "" {
			roots++
			continue
		}
		require.True(t, ids[s.ParentSpanID], "span %q has unknown parent %s", s.Name, s.ParentSpanID)
	}
	require.Equal(t, 1, roots, "expected exactly one root span")
}

// TestExecuteFormsSingleTraceTree verifies that a nested pipeline run
// through the public boundary produces one coherent span tree even without
// a recording tracer: the derived context chain carries the ids.
func TestExecuteFormsSingleTraceTree(t *testing.T) {
	t.Parallel()

	obs := &testObserver{}
	in := NewInstrumenter(WithObserver(obs))

	flaky := 0
	pipeline := NewSequential("pipeline",
		passthrough("load"),
		NewParallel("enrich",
			passthrough("geo"),
			passthrough("score"),
		),
		NewRetry(NewFunc("publish", func(ctx context.Context, input any) (any, error) {
			flaky++
			if flaky == 1 {
				return nil, TransientError(errors.New("first attempt fails"))
			}
			return input, nil
		}), RetryStrategy{MaxRetries: 2}),
	)

	out, err := in.Execute(context.Background(), pipeline, "payload")
	require.NoError(t, err)
	require.NotNil(t, out)

	spans := obs.capturedSpans()
	// pipeline + load + enrich + 2 branches + retry + 2 attempts.
	require.Len(t, spans, 8)
	requireSingleTree(t, spans)

	// All primitives ran under the root's correlation id.
	for _, s := range spans {
		require.Equal(t, spans[0].CorrelationID, s.CorrelationID)
	}
}

// TestSequentialStagesAreSiblings verifies stage spans hang directly off
// the Sequential span rather than nesting under one another.
func TestSequentialStagesAreSiblings(t *testing.T) {
	t.Parallel()

	obs := &testObserver{}
	in := NewInstrumenter(WithObserver(obs))

	seq := NewSequential("etl", passthrough("extract"), passthrough("transform"), passthrough("load"))
	_, err := in.Execute(context.Background(), seq, "in")
	require.NoError(t, err)

	spans := obs.capturedSpans()
	require.Len(t, spans, 4)

	root := spans[0]
	require.Equal(t, "etl", root.Name)
	require.Empty(t, root.ParentSpanID)
	for _, s := range spans[1:] {
		require.Equal(t, root.SpanID, s.ParentSpanID, "stage %q must be a direct child", s.Name)
	}
}

// TestExecuteJoinsRemoteTrace verifies WithTraceParent: the first primitive
// becomes a child of the remote span and stays in the remote trace.
func TestExecuteJoinsRemoteTrace(t *testing.T) {
	t.Parallel()

	const (
		remoteTrace = "4bf92f3577b34da6a3ce929d0e0e4736"
		remoteSpan  = "00f067aa0ba902b7"
	)

	obs := &testObserver{}
	in := NewInstrumenter(WithObserver(obs))

	ctx := ContextWithExecution(context.Background(),
		NewRootContext(WithTraceParent(remoteTrace, remoteSpan)))

	_, err := in.Execute(ctx, passthrough("continue"), nil)
	require.NoError(t, err)

	spans := obs.capturedSpans()
	require.Len(t, spans, 1)
	require.Equal(t, remoteTrace, spans[0].TraceID)
	require.Equal(t, remoteSpan, spans[0].ParentSpanID)
	require.NotEqual(t, remoteSpan, spans[0].SpanID)
}

// TestInstrumentedAvoidsDoubleSpans verifies that nesting an Instrumented
// primitive inside a composition yields one span per invocation, not two.
func TestInstrumentedAvoidsDoubleSpans(t *testing.T) {
	t.Parallel()

	obs := &testObserver{}
	in := NewInstrumenter(WithObserver(obs))

	inner := in.Instrument(passthrough("inner"))
	seq := NewSequential("outer", inner)

	_, err := in.Execute(context.Background(), seq, nil)
	require.NoError(t, err)

	_, _, _, primStarts, _, _ := obs.counts()
	require.Equal(t, 2, primStarts, "outer + inner, no double instrumentation")
}

// TestInstrumentedStandalone verifies that an Instrumented primitive
// produces a span even when its Execute method is called directly.
func TestInstrumentedStandalone(t *testing.T) {
	t.Parallel()

	obs := &testObserver{}
	in := NewInstrumenter(WithObserver(obs))

	p := in.Instrument(passthrough("solo"))
	require.Equal(t, "solo", p.Name())
	require.Equal(t, TypeStep, p.Type())

	out, err := p.Execute(context.Background(), "x")
	require.NoError(t, err)
	require.Equal(t, "x", out)

	spans := obs.capturedSpans()
	require.Len(t, spans, 1)
	require.NotEmpty(t, spans[0].TraceID)
}

// TestRunTraceIDBackfill verifies that a Run record attached to the context
// learns its trace id when the root span starts.
func TestRunTraceIDBackfill(t *testing.T) {
	t.Parallel()

	run := &Run{ID: "r1", Pipeline: "p", StartedAt: time.Now()}
	ctx := ContextWithRun(context.Background(), run)

	_, err := Execute(ctx, passthrough("root"), nil)
	require.NoError(t, err)
	require.NotEmpty(t, run.TraceID)
}

// TestObserverSeesFailures verifies error accounting and that the failed
// primitive's error reaches the caller unchanged.
func TestObserverSeesFailures(t *testing.T) {
	t.Parallel()

	obs := &testObserver{}
	in := NewInstrumenter(WithObserver(obs))

	sentinel := TransientError(errors.New("boom"))
	step := NewFunc("fails", func(ctx context.Context, input any) (any, error) {
		return nil, sentinel
	})

	_, err := in.Execute(context.Background(), step, nil)
	require.ErrorIs(t, err, sentinel)

	_, _, _, primStarts, primCompletes, primErrs := obs.counts()
	require.Equal(t, 1, primStarts)
	require.Equal(t, 1, primCompletes)
	require.Equal(t, 1, primErrs)
}

// TestPackageLevelExecuteDefaults verifies the package boundary works with
// no instrumenter installed: contexts are still derived and chained.
func TestPackageLevelExecuteDefaults(t *testing.T) {
	t.Parallel()

	var seen ExecutionContext
	step := NewFunc("probe", func(ctx context.Context, input any) (any, error) {
		seen, _ = ExecutionFromContext(ctx)
		return input, nil
	})

	out, err := Execute(context.Background(), step, 7)
	require.NoError(t, err)
	require.Equal(t, 7, out)
	require.NotEmpty(t, seen.TraceID)
	require.NotEmpty(t, seen.SpanID)
	require.NotEmpty(t, seen.CorrelationID)
}

// TestAnnotateWithoutSpan verifies Annotate is harmless outside an
// instrumented invocation.
func TestAnnotateWithoutSpan(t *testing.T) {
	t.Parallel()

	require.NotPanics(t, func() {
		Annotate(context.Background(), "k", "v")
		Annotate(context.Background(), "n", 42)
		Annotate(context.Background(), "d", time.Second)
	})
}
