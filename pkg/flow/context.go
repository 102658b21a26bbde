package flow

import (
	"context"
	"crypto/rand"
	"encoding/hex"

	"github.com/google/uuid"
)

// SagaLogKey is the State key under which the compensation log for one
// execution is stored. It is seeded by NewRootContext and consumed by
// Sequential during rollback.
const SagaLogKey = "_saga_log"

// BaggageItem is a single propagated key/value pair. Baggage set on a
// context is carried unchanged to every descendant primitive and recorded
// as a baggage.<key> attribute on each span.
type BaggageItem struct {
	Key   string
	Value string
}

// ExecutionContext identifies one primitive invocation within a workflow
// execution and carries the state shared across the whole execution.
//
// It is a value object: deriving methods (WithBaggage, WithMetadata) return
// copies and never modify the receiver. TraceID, SpanID and ParentSpanID
// follow W3C Trace Context encoding (lowercase hex, 32 and 16 characters);
// the empty string means unset. Primitives must not reassign the identifier
// fields of a context they were given; the instrumentation layer derives a
// fresh child context for every invocation.
type ExecutionContext struct {
	TraceID       string
	SpanID        string
	ParentSpanID  string
	CorrelationID string

	// Metadata is free-form caller context (tenant id, request origin).
	// It is inherited by reference by every derived context.
	Metadata map[string]any

	// State is a mutable map shared by reference across every primitive of
	// one execution. The runtime does not serialize access to it: Parallel
	// branches that write State must use a caller-supplied synchronization
	// discipline. The compensation log stored under SagaLogKey is itself
	// safe for concurrent use.
	State map[string]any

	baggage []BaggageItem
}

// ContextOption configures a root ExecutionContext.
type ContextOption func(*ExecutionContext)

// WithCorrelationID sets the correlation id instead of generating one.
func WithCorrelationID(id string) ContextOption {
	return func(ec *ExecutionContext) {
		ec.CorrelationID = id
	}
}

// WithTraceParent joins an existing trace: spans produced under this context
// become children of the given remote span rather than starting a new trace.
func WithTraceParent(traceID, spanID string) ContextOption {
	return func(ec *ExecutionContext) {
		ec.TraceID = traceID
		ec.SpanID = spanID
	}
}

// WithMetadataValue adds one metadata entry to the root context.
func WithMetadataValue(key string, value any) ContextOption {
	return func(ec *ExecutionContext) {
		ec.Metadata[key] = value
	}
}

// NewRootContext creates the context a workflow execution starts from.
// The trace and span ids stay empty until the first instrumented primitive
// runs; that primitive becomes the root span of the trace. The correlation
// id is generated unless WithCorrelationID is given, and State is seeded
// with an empty compensation log under SagaLogKey.
func NewRootContext(opts ...ContextOption) ExecutionContext {
	ec := ExecutionContext{
		CorrelationID: uuid.NewString(),
		Metadata:      map[string]any{},
		State:         map[string]any{SagaLogKey: NewCompensationLog()},
	}
	for _, opt := range opts {
		opt(&ec)
	}
	return ec
}

// IsRoot reports whether no primitive has executed under this context yet.
func (ec ExecutionContext) IsRoot() bool {
	return ec.SpanID == "" && ec.ParentSpanID == ""
}

// WithBaggage returns a copy of the context with the key set to value.
// Existing entries keep their position; new keys append. The receiver is
// left untouched, so baggage already propagated to running children never
// changes underneath them.
func (ec ExecutionContext) WithBaggage(key, value string) ExecutionContext {
	items := make([]BaggageItem, len(ec.baggage), len(ec.baggage)+1)
	copy(items, ec.baggage)
	for i := range items {
		if items[i].Key == key {
			items[i].Value = value
			ec.baggage = items
			return ec
		}
	}
	ec.baggage = append(items, BaggageItem{Key: key, Value: value})
	return ec
}

// BaggageValue returns the value for key and whether it is set.
func (ec ExecutionContext) BaggageValue(key string) (string, bool) {
	for _, item := range ec.baggage {
		if item.Key == key {
			return item.Value, true
		}
	}
	return "", false
}

// Baggage returns a copy of all baggage items in propagation order.
func (ec ExecutionContext) Baggage() []BaggageItem {
	if len(ec.baggage) == 0 {
		return nil
	}
	out := make([]BaggageItem, len(ec.baggage))
	copy(out, ec.baggage)
	return out
}

// CompensationLog returns the execution's compensation log, or nil when the
// context was not created through NewRootContext (or a boundary that calls
// it, such as Execute).
func (ec ExecutionContext) CompensationLog() *CompensationLog {
	log, _ := ec.State[SagaLogKey].(*CompensationLog)
	return log
}

// child derives the context for one child primitive invocation: the parent
// span id becomes the receiver's span id, the given ids are adopted, and
// baggage, Metadata and State are inherited (the maps by reference).
func (ec ExecutionContext) child(traceID, spanID string) ExecutionContext {
	ec.ParentSpanID = ec.SpanID
	if traceID != "" {
		ec.TraceID = traceID
	}
	ec.SpanID = spanID
	return ec
}

type executionContextKey struct{}

// ContextWithExecution returns a context carrying ec. Primitives receive
// their derived ExecutionContext this way rather than as an extra argument.
func ContextWithExecution(ctx context.Context, ec ExecutionContext) context.Context {
	return context.WithValue(ctx, executionContextKey{}, ec)
}

// ExecutionFromContext returns the ExecutionContext carried by ctx.
// The second result is false when none is present.
func ExecutionFromContext(ctx context.Context) (ExecutionContext, bool) {
	ec, ok := ctx.Value(executionContextKey{}).(ExecutionContext)
	return ec, ok
}

// newTraceID returns a random 128-bit trace id, hex encoded.
func newTraceID() string {
	var b [16]byte
	_, _ = rand.Read(b[:])
	return hex.EncodeToString(b[:])
}

// newSpanID returns a random 64-bit span id, hex encoded.
func newSpanID() string {
	var b [8]byte
	_, _ = rand.Read(b[:])
	return hex.EncodeToString(b[:])
}
