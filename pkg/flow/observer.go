package flow

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"
)

// Run describes one end-to-end execution of a pipeline, as seen by
// observers and the execution journal. TraceID is filled in by the
// instrumentation layer when the root span starts, so it is empty during
// OnRunStart and set by the time the run finishes.
type Run struct {
	ID            string
	Pipeline      string
	CorrelationID string
	TraceID       string
	StartedAt     time.Time
}

type runKey struct{}

// ContextWithRun attaches the run record to ctx so the instrumentation
// layer can report the assigned trace id back to it.
func ContextWithRun(ctx context.Context, run *Run) context.Context {
	return context.WithValue(ctx, runKey{}, run)
}

// RunFromContext returns the run record carried by ctx, or nil.
func RunFromContext(ctx context.Context) *Run {
	run, _ := ctx.Value(runKey{}).(*Run)
	return run
}

// Observer receives lifecycle callbacks for runs and primitive invocations.
//
// Implementations should be fast and non-blocking; heavy work should be
// done asynchronously so as not to delay execution.
type Observer interface {
	// OnRunStart is called once per run, before the pipeline executes.
	OnRunStart(ctx context.Context, run *Run)

	// OnRunCompleted is called when a run finishes without error.
	OnRunCompleted(ctx context.Context, run *Run, d time.Duration)

	// OnRunFailed is called when a run finishes with an error.
	OnRunFailed(ctx context.Context, run *Run, err error, d time.Duration)

	// OnPrimitiveStart is called before each primitive invocation. The
	// derived ExecutionContext is available via ExecutionFromContext(ctx).
	OnPrimitiveStart(ctx context.Context, name, primitiveType string)

	// OnPrimitiveCompleted is called after each primitive invocation, for
	// both successes and failures (err != nil).
	OnPrimitiveCompleted(ctx context.Context, name, primitiveType string, err error, d time.Duration)
}

// NoopObserver is an Observer that does nothing.
// It is used as the default when no observer is configured.
type NoopObserver struct{}

var _ Observer = NoopObserver{}

func (NoopObserver) OnRunStart(ctx context.Context, run *Run)                      {}
func (NoopObserver) OnRunCompleted(ctx context.Context, run *Run, d time.Duration) {}
func (NoopObserver) OnRunFailed(ctx context.Context, run *Run, err error, d time.Duration) {
}
func (NoopObserver) OnPrimitiveStart(ctx context.Context, name, primitiveType string) {}
func (NoopObserver) OnPrimitiveCompleted(ctx context.Context, name, primitiveType string, err error, d time.Duration) {
}

// CompositeObserver fans out events to multiple observers.
type CompositeObserver struct {
	observers []Observer
}

// NewCompositeObserver creates an Observer that forwards events to each
// non-nil observer in obs.
func NewCompositeObserver(obs ...Observer) Observer {
	filtered := make([]Observer, 0, len(obs))
	for _, o := range obs {
		if o != nil {
			filtered = append(filtered, o)
		}
	}
	if len(filtered) == 0 {
		return NoopObserver{}
	}
	if len(filtered) == 1 {
		return filtered[0]
	}
	return &CompositeObserver{observers: filtered}
}

func (c *CompositeObserver) OnRunStart(ctx context.Context, run *Run) {
	for _, o := range c.observers {
		o.OnRunStart(ctx, run)
	}
}

func (c *CompositeObserver) OnRunCompleted(ctx context.Context, run *Run, d time.Duration) {
	for _, o := range c.observers {
		o.OnRunCompleted(ctx, run, d)
	}
}

func (c *CompositeObserver) OnRunFailed(ctx context.Context, run *Run, err error, d time.Duration) {
	for _, o := range c.observers {
		o.OnRunFailed(ctx, run, err, d)
	}
}

func (c *CompositeObserver) OnPrimitiveStart(ctx context.Context, name, primitiveType string) {
	for _, o := range c.observers {
		o.OnPrimitiveStart(ctx, name, primitiveType)
	}
}

func (c *CompositeObserver) OnPrimitiveCompleted(ctx context.Context, name, primitiveType string, err error, d time.Duration) {
	for _, o := range c.observers {
		o.OnPrimitiveCompleted(ctx, name, primitiveType, err, d)
	}
}

// LoggingObserver writes structured logs using log/slog. Trace and span ids
// reach the records through the handler (see telemetry.ContextHandler), not
// through explicit attributes here.
type LoggingObserver struct {
	Logger *slog.Logger
}

// NewLoggingObserver creates an Observer that logs run / primitive
// lifecycle events using the provided slog.Logger. If logger is nil,
// slog.Default() is used.
func NewLoggingObserver(logger *slog.Logger) Observer {
	if logger == nil {
		logger = slog.Default()
	}
	return &LoggingObserver{Logger: logger}
}

func (o *LoggingObserver) OnRunStart(ctx context.Context, run *Run) {
	o.Logger.InfoContext(ctx, "run_start",
		slog.String("pipeline", run.Pipeline),
		slog.String("run_id", run.ID),
		slog.String("correlation_id", run.CorrelationID),
	)
}

func (o *LoggingObserver) OnRunCompleted(ctx context.Context, run *Run, d time.Duration) {
	o.Logger.InfoContext(ctx, "run_completed",
		slog.String("pipeline", run.Pipeline),
		slog.String("run_id", run.ID),
		slog.Duration("duration", d),
	)
}

func (o *LoggingObserver) OnRunFailed(ctx context.Context, run *Run, err error, d time.Duration) {
	o.Logger.ErrorContext(ctx, "run_failed",
		slog.String("pipeline", run.Pipeline),
		slog.String("run_id", run.ID),
		slog.Duration("duration", d),
		slog.Any("error", err),
	)
}

func (o *LoggingObserver) OnPrimitiveStart(ctx context.Context, name, primitiveType string) {
	o.Logger.DebugContext(ctx, "primitive_start",
		slog.String("primitive", name),
		slog.String("primitive_type", primitiveType),
	)
}

func (o *LoggingObserver) OnPrimitiveCompleted(ctx context.Context, name, primitiveType string, err error, d time.Duration) {
	level := slog.LevelDebug
	if err != nil {
		level = slog.LevelError
	}
	o.Logger.Log(ctx, level, "primitive_completed",
		slog.String("primitive", name),
		slog.String("primitive_type", primitiveType),
		slog.Duration("duration", d),
		slog.Any("error", err),
	)
}

// BasicMetrics collects simple in-process counters and aggregate primitive
// durations without any exporter dependency. It implements Observer and can
// be combined with other observers via NewCompositeObserver; for Prometheus
// exposition use the telemetry package instead.
type BasicMetrics struct {
	NoopObserver

	runsStarted   atomic.Int64
	runsCompleted atomic.Int64
	runsFailed    atomic.Int64

	primitivesCompleted atomic.Int64
	primitivesFailed    atomic.Int64
	totalDuration       atomic.Int64 // nanoseconds, successful primitives only
}

// BasicMetricsSnapshot is an immutable snapshot of BasicMetrics.
type BasicMetricsSnapshot struct {
	RunsStarted   int64
	RunsCompleted int64
	RunsFailed    int64
	ActiveRuns    int64

	PrimitivesCompleted  int64
	PrimitivesFailed     int64
	AvgPrimitiveDuration time.Duration
}

func (m *BasicMetrics) OnRunStart(ctx context.Context, run *Run) {
	m.runsStarted.Add(1)
}

func (m *BasicMetrics) OnRunCompleted(ctx context.Context, run *Run, d time.Duration) {
	m.runsCompleted.Add(1)
}

func (m *BasicMetrics) OnRunFailed(ctx context.Context, run *Run, err error, d time.Duration) {
	m.runsFailed.Add(1)
}

func (m *BasicMetrics) OnPrimitiveCompleted(ctx context.Context, name, primitiveType string, err error, d time.Duration) {
	if err != nil {
		m.primitivesFailed.Add(1)
		return
	}
	m.primitivesCompleted.Add(1)
	m.totalDuration.Add(d.Nanoseconds())
}

// Snapshot returns a snapshot of the current metrics.
func (m *BasicMetrics) Snapshot() BasicMetricsSnapshot {
	started := m.runsStarted.Load()
	completed := m.runsCompleted.Load()
	failed := m.runsFailed.Load()
	prims := m.primitivesCompleted.Load()
	totalNs := m.totalDuration.Load()

	var avg time.Duration
	if prims > 0 {
		avg = time.Duration(totalNs / prims)
	}

	return BasicMetricsSnapshot{
		RunsStarted:          started,
		RunsCompleted:        completed,
		RunsFailed:           failed,
		ActiveRuns:           started - completed - failed,
		PrimitivesCompleted:  prims,
		PrimitivesFailed:     m.primitivesFailed.Load(),
		AvgPrimitiveDuration: avg,
	}
}
