package flow

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// instrumentationName identifies this library as the span scope.
const instrumentationName = "github.com/pkorhonen/stitch/pkg/flow"

// Instrumenter wraps primitive invocations with context derivation, spans
// and observer callbacks. The zero configuration uses a non-recording
// tracer and a NoopObserver; context derivation always happens, so the
// ExecutionContext id chain forms a tree whether or not spans are exported.
type Instrumenter struct {
	tracer   trace.Tracer
	observer Observer
}

type instrumenterConfig struct {
	tracer    trace.Tracer
	observers []Observer
}

// InstrumenterOption configures an Instrumenter.
type InstrumenterOption func(*instrumenterConfig)

// WithTracer sets the tracer spans are started from.
func WithTracer(tracer trace.Tracer) InstrumenterOption {
	return func(cfg *instrumenterConfig) {
		if tracer != nil {
			cfg.tracer = tracer
		}
	}
}

// WithTracerProvider is a convenience for WithTracer using the library's
// instrumentation scope name.
func WithTracerProvider(tp trace.TracerProvider) InstrumenterOption {
	return func(cfg *instrumenterConfig) {
		if tp != nil {
			cfg.tracer = tp.Tracer(instrumentationName)
		}
	}
}

// WithObserver adds observers; they are composed with any already added.
func WithObserver(obs ...Observer) InstrumenterOption {
	return func(cfg *instrumenterConfig) {
		cfg.observers = append(cfg.observers, obs...)
	}
}

// NewInstrumenter builds an Instrumenter. Pass the tracer and observers at
// the outermost wiring point of the process; primitives themselves never
// reach for process-wide registries.
func NewInstrumenter(opts ...InstrumenterOption) *Instrumenter {
	cfg := instrumenterConfig{
		tracer: noop.NewTracerProvider().Tracer(instrumentationName),
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Instrumenter{
		tracer:   cfg.tracer,
		observer: NewCompositeObserver(cfg.observers...),
	}
}

// defaultInstrumenter backs Execute and Run when no instrumenter has been
// installed in the context. It records no spans but still derives contexts.
var defaultInstrumenter = NewInstrumenter()

type instrumenterKey struct{}

func contextWithInstrumenter(ctx context.Context, in *Instrumenter) context.Context {
	return context.WithValue(ctx, instrumenterKey{}, in)
}

func instrumenterFromContext(ctx context.Context) *Instrumenter {
	in, _ := ctx.Value(instrumenterKey{}).(*Instrumenter)
	return in
}

// Execute runs p as the outermost primitive of an execution: it installs
// the ambient instrumenter, creates the root ExecutionContext when ctx does
// not carry one, and instruments p itself. This is the boundary external
// callers use; see also Runtime.Run in the root package.
func Execute(ctx context.Context, p Primitive, input any) (any, error) {
	in := instrumenterFromContext(ctx)
	if in == nil {
		in = defaultInstrumenter
	}
	return in.Execute(ctx, p, input)
}

// RunChild invokes one child primitive on behalf of a composition, through the
// instrumenter carried in ctx. Every composition body calls its children
// this way, which is what keeps each child's span parented to the
// composition's span.
func RunChild(ctx context.Context, p Primitive, input any) (any, error) {
	in := instrumenterFromContext(ctx)
	if in == nil {
		in = defaultInstrumenter
	}
	return in.run(ctx, unwrap(p), input)
}

// Execute installs the instrumenter and the root context (when missing)
// into ctx, then runs p instrumented.
func (in *Instrumenter) Execute(ctx context.Context, p Primitive, input any) (any, error) {
	ctx = contextWithInstrumenter(ctx, in)
	if _, ok := ExecutionFromContext(ctx); !ok {
		ctx = ContextWithExecution(ctx, NewRootContext())
	}
	return in.run(ctx, unwrap(p), input)
}

// Instrument binds p to this instrumenter. The result produces a span even
// when its Execute method is called directly, which makes it safe to hand
// to callers who know nothing about instrumentation.
func (in *Instrumenter) Instrument(p Primitive) *Instrumented {
	return &Instrumented{inner: unwrap(p), in: in}
}

// Instrumented is a primitive bound to an Instrumenter.
type Instrumented struct {
	inner Primitive
	in    *Instrumenter
}

var _ Primitive = (*Instrumented)(nil)

func (w *Instrumented) Name() string { return w.inner.Name() }
func (w *Instrumented) Type() string { return w.inner.Type() }

func (w *Instrumented) Execute(ctx context.Context, input any) (any, error) {
	return w.in.Execute(ctx, w.inner, input)
}

// unwrap peels an Instrumented wrapper so nesting one inside a composition
// does not produce a second span per invocation.
func unwrap(p Primitive) Primitive {
	if w, ok := p.(*Instrumented); ok {
		return w.inner
	}
	return p
}

// run is the per-invocation instrumentation path: derive the child context,
// open the span, invoke, close the span, notify observers. The error is
// returned to the caller unchanged.
func (in *Instrumenter) run(ctx context.Context, p Primitive, input any) (any, error) {
	parent, ok := ExecutionFromContext(ctx)
	if !ok {
		parent = NewRootContext()
	}

	ctx, child, span := in.startSpan(ctx, parent, p, input)
	if run := RunFromContext(ctx); run != nil && run.TraceID == "" {
		run.TraceID = child.TraceID
	}
	ctx = ContextWithExecution(ctx, child)

	in.observer.OnPrimitiveStart(ctx, p.Name(), p.Type())
	start := time.Now()
	output, err := p.Execute(ctx, input)
	elapsed := time.Since(start)

	if err != nil {
		kind := "unclassified"
		if k, classified := Classify(err); classified {
			kind = string(k)
		}
		span.RecordError(err, trace.WithAttributes(attribute.String("error.kind", kind)))
		span.SetStatus(codes.Error, err.Error())
	} else {
		if n, sized := payloadSize(output); sized {
			span.SetAttributes(attribute.Int("output.size", n))
		}
		span.SetStatus(codes.Ok, "")
	}
	span.End()

	in.observer.OnPrimitiveCompleted(ctx, p.Name(), p.Type(), err, elapsed)
	return output, err
}

// startSpan opens the span for one invocation and derives the child
// ExecutionContext. With a recording tracer the child adopts the span's
// ids so exported spans and the context chain agree; otherwise ids are
// generated locally.
func (in *Instrumenter) startSpan(ctx context.Context, parent ExecutionContext, p Primitive, input any) (context.Context, ExecutionContext, trace.Span) {
	// A context that carries trace ids the OTel layer has not seen yet is a
	// join point (WithTraceParent): seed the remote parent before starting.
	if !trace.SpanContextFromContext(ctx).IsValid() && parent.TraceID != "" && parent.SpanID != "" {
		if sc := remoteSpanContext(parent); sc.IsValid() {
			ctx = trace.ContextWithRemoteSpanContext(ctx, sc)
		}
	}

	attrs := make([]attribute.KeyValue, 0, 3+len(parent.baggage))
	attrs = append(attrs, attribute.String("primitive.type", p.Type()))
	if parent.CorrelationID != "" {
		attrs = append(attrs, attribute.String("correlation.id", parent.CorrelationID))
	}
	if n, sized := payloadSize(input); sized {
		attrs = append(attrs, attribute.Int("input.size", n))
	}
	for _, item := range parent.baggage {
		attrs = append(attrs, attribute.String("baggage."+item.Key, item.Value))
	}

	ctx, span := in.tracer.Start(ctx, p.Name(), trace.WithAttributes(attrs...))

	traceID, spanID := "", ""
	if sc := span.SpanContext(); span.IsRecording() && sc.IsValid() {
		traceID = sc.TraceID().String()
		spanID = sc.SpanID().String()
	} else {
		spanID = newSpanID()
		if parent.TraceID == "" {
			traceID = newTraceID()
		}
	}
	return ctx, parent.child(traceID, spanID), span
}

// remoteSpanContext rebuilds an OTel span context from the hex ids carried
// by an ExecutionContext. Invalid ids yield an invalid (ignored) context.
func remoteSpanContext(ec ExecutionContext) trace.SpanContext {
	tid, err := trace.TraceIDFromHex(ec.TraceID)
	if err != nil {
		return trace.SpanContext{}
	}
	sid, err := trace.SpanIDFromHex(ec.SpanID)
	if err != nil {
		return trace.SpanContext{}
	}
	return trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    tid,
		SpanID:     sid,
		TraceFlags: trace.FlagsSampled,
		Remote:     true,
	})
}

// Annotate sets an attribute on the span of the current primitive
// invocation. Primitives use it for their own markers (retry.attempts,
// cache.hit) without ever owning span lifecycle.
func Annotate(ctx context.Context, key string, value any) {
	span := trace.SpanFromContext(ctx)
	switch v := value.(type) {
	case string:
		span.SetAttributes(attribute.String(key, v))
	case bool:
		span.SetAttributes(attribute.Bool(key, v))
	case int:
		span.SetAttributes(attribute.Int(key, v))
	case int64:
		span.SetAttributes(attribute.Int64(key, v))
	case float64:
		span.SetAttributes(attribute.Float64(key, v))
	case time.Duration:
		span.SetAttributes(attribute.String(key, v.String()))
	default:
		span.SetAttributes(attribute.String(key, fmt.Sprint(v)))
	}
}

// payloadSize reports a byte size for string and []byte payloads. Other
// payload types have no meaningful wire size and record nothing.
func payloadSize(v any) (int, bool) {
	switch t := v.(type) {
	case string:
		return len(t), true
	case []byte:
		return len(t), true
	}
	return 0, false
}
