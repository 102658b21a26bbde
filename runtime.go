package stitch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/trace"

	"github.com/pkorhonen/stitch/internal/journal"
	"github.com/pkorhonen/stitch/pkg/flow"
	"github.com/pkorhonen/stitch/pkg/telemetry"
)

// ErrPipelineNotFound is returned by Run when the named pipeline was never
// registered.
var ErrPipelineNotFound = errors.New("pipeline not found")

// Runtime executes registered pipelines with instrumentation attached. It
// owns one Instrumenter configured from its options, assigns every Run a
// unique id, fires run lifecycle events at the configured observers, and
// persists run records when a Journal is configured.
//
// Registration is typically done once at startup; Run is safe for
// concurrent use.
type Runtime struct {
	mu        sync.RWMutex
	pipelines map[string]flow.Primitive

	ins      *flow.Instrumenter
	observer flow.Observer
	journal  journal.Store
	logger   *slog.Logger
}

// RuntimeOption configures a Runtime.
type RuntimeOption func(*runtimeConfig)

type runtimeConfig struct {
	tracerProvider trace.TracerProvider
	observers      []flow.Observer
	registerer     prometheus.Registerer
	journal        journal.Store
	logger         *slog.Logger
}

// WithTracerProvider sets the OpenTelemetry tracer provider spans are
// created from. Without it the global provider is used.
func WithTracerProvider(tp trace.TracerProvider) RuntimeOption {
	return func(cfg *runtimeConfig) {
		cfg.tracerProvider = tp
	}
}

// WithObserver attaches additional observers. They receive both run and
// primitive lifecycle events, after the runtime's own observers.
func WithObserver(obs ...flow.Observer) RuntimeOption {
	return func(cfg *runtimeConfig) {
		cfg.observers = append(cfg.observers, obs...)
	}
}

// WithPrometheus registers run and primitive metrics on reg and attaches
// the observer that drives them.
func WithPrometheus(reg prometheus.Registerer) RuntimeOption {
	return func(cfg *runtimeConfig) {
		cfg.registerer = reg
	}
}

// WithJournal persists run records and history events to store.
func WithJournal(store Journal) RuntimeOption {
	return func(cfg *runtimeConfig) {
		cfg.journal = store
	}
}

// WithLogger attaches a logging observer writing through logger, and routes
// the runtime's own diagnostics there as well.
func WithLogger(logger *slog.Logger) RuntimeOption {
	return func(cfg *runtimeConfig) {
		cfg.logger = logger
	}
}

// NewRuntime creates a Runtime from opts.
func NewRuntime(opts ...RuntimeOption) *Runtime {
	var cfg runtimeConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	var observers []flow.Observer
	if cfg.logger != nil {
		observers = append(observers, flow.NewLoggingObserver(cfg.logger))
	}
	if cfg.registerer != nil {
		observers = append(observers, telemetry.NewMetrics(cfg.registerer).Observer())
	}
	if cfg.journal != nil {
		observers = append(observers, journal.NewObserver(cfg.journal, cfg.logger))
	}
	observers = append(observers, cfg.observers...)

	var insOpts []flow.InstrumenterOption
	if cfg.tracerProvider != nil {
		insOpts = append(insOpts, flow.WithTracerProvider(cfg.tracerProvider))
	}
	if len(observers) > 0 {
		insOpts = append(insOpts, flow.WithObserver(observers...))
	}

	logger := cfg.logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Runtime{
		pipelines: make(map[string]flow.Primitive),
		ins:       flow.NewInstrumenter(insOpts...),
		observer:  flow.NewCompositeObserver(observers...),
		journal:   cfg.journal,
		logger:    logger,
	}
}

// Register adds p under its own name. Registering a second pipeline with
// the same name is an error.
func (rt *Runtime) Register(p flow.Primitive) error {
	if p == nil {
		return errors.New("stitch: pipeline must not be nil")
	}
	return rt.RegisterNamed(p.Name(), p)
}

// RegisterNamed adds p under an explicit name. Wrappers decorate the names
// of what they wrap (a bounded checkout pipeline is "timeout(checkout)"),
// so registering under the plain name keeps the Run lookup key stable no
// matter how the pipeline is wrapped.
func (rt *Runtime) RegisterNamed(name string, p flow.Primitive) error {
	if p == nil {
		return errors.New("stitch: pipeline must not be nil")
	}
	if name == "" {
		return errors.New("stitch: pipeline name must not be empty")
	}

	rt.mu.Lock()
	defer rt.mu.Unlock()
	if _, exists := rt.pipelines[name]; exists {
		return fmt.Errorf("stitch: pipeline %q already registered", name)
	}
	rt.pipelines[name] = p
	return nil
}

// MustRegister is Register, panicking on error.
func (rt *Runtime) MustRegister(p flow.Primitive) {
	if err := rt.Register(p); err != nil {
		panic(err)
	}
}

// Pipelines returns the registered pipeline names, sorted.
func (rt *Runtime) Pipelines() []string {
	rt.mu.RLock()
	defer rt.mu.RUnlock()

	names := make([]string, 0, len(rt.pipelines))
	for name := range rt.pipelines {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Run executes the named pipeline with input. Each call becomes one run: a
// fresh run id, a run record in the journal when one is configured, run
// lifecycle events at the observers, and a single trace rooted at the
// pipeline's span.
//
// The returned error is the pipeline's own error; journal failures are
// logged, never surfaced.
func (rt *Runtime) Run(ctx context.Context, pipeline string, input any) (any, error) {
	rt.mu.RLock()
	p, ok := rt.pipelines[pipeline]
	rt.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrPipelineNotFound, pipeline)
	}

	ec, ok := flow.ExecutionFromContext(ctx)
	if !ok {
		ec = flow.NewRootContext()
		ctx = flow.ContextWithExecution(ctx, ec)
	}

	run := &flow.Run{
		ID:            uuid.NewString(),
		Pipeline:      pipeline,
		CorrelationID: ec.CorrelationID,
		StartedAt:     time.Now(),
	}
	ctx = flow.ContextWithRun(ctx, run)

	rec := rt.recordStart(ctx, run, input)
	rt.observer.OnRunStart(ctx, run)

	output, err := rt.ins.Execute(ctx, p, input)

	d := time.Since(run.StartedAt)
	if err != nil {
		rt.observer.OnRunFailed(ctx, run, err, d)
	} else {
		rt.observer.OnRunCompleted(ctx, run, d)
	}
	rt.recordFinish(ctx, run, rec, output, err)

	return output, err
}

// Execute runs an unregistered primitive through the runtime's
// instrumenter. The execution is traced and observed at the primitive
// level but is not a run: no run id, no run events, no journal record.
func (rt *Runtime) Execute(ctx context.Context, p flow.Primitive, input any) (any, error) {
	return rt.ins.Execute(ctx, p, input)
}

func (rt *Runtime) recordStart(ctx context.Context, run *flow.Run, input any) *journal.RunRecord {
	if rt.journal == nil {
		return nil
	}

	rec := &journal.RunRecord{
		ID:            run.ID,
		Pipeline:      run.Pipeline,
		CorrelationID: run.CorrelationID,
		Status:        journal.StatusRunning,
		Input:         input,
		StartedAt:     run.StartedAt,
	}
	if err := rt.journal.SaveRun(context.WithoutCancel(ctx), rec); err != nil {
		rt.logger.WarnContext(ctx, "failed to save run record",
			slog.String("run_id", run.ID),
			slog.String("error", err.Error()))
		return nil
	}
	return rec
}

func (rt *Runtime) recordFinish(ctx context.Context, run *flow.Run, rec *journal.RunRecord, output any, runErr error) {
	if rec == nil {
		return
	}

	// The trace id is filled in by the instrumenter once the root span
	// exists, which is after recordStart.
	rec.TraceID = run.TraceID
	rec.CompletedAt = time.Now()
	if runErr != nil {
		rec.Status = journal.StatusFailed
		rec.Error = runErr.Error()
	} else {
		rec.Status = journal.StatusCompleted
		rec.Output = output
	}
	if err := rt.journal.UpdateRun(context.WithoutCancel(ctx), rec); err != nil {
		rt.logger.WarnContext(ctx, "failed to update run record",
			slog.String("run_id", run.ID),
			slog.String("error", err.Error()))
	}
}
