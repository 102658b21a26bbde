package telemetry

import (
	"context"
	"log/slog"
	"os"

	"go.opentelemetry.io/otel/trace"

	"github.com/pkorhonen/stitch/pkg/flow"
)

// ContextHandler is a slog.Handler that stamps every record with the
// identifiers of the current execution, so log lines correlate with the
// trace tree without each call site adding attributes by hand.
//
// The flow ExecutionContext is preferred because it carries ids even when
// no recording tracer is configured; an OTel span context is the fallback
// for records emitted outside a primitive invocation.
type ContextHandler struct {
	slog.Handler
}

// NewContextHandler decorates h with execution identifiers.
func NewContextHandler(h slog.Handler) *ContextHandler {
	return &ContextHandler{Handler: h}
}

// Handle adds trace_id, span_id and correlation_id before delegating.
func (h *ContextHandler) Handle(ctx context.Context, r slog.Record) error {
	if ec, ok := flow.ExecutionFromContext(ctx); ok {
		if ec.TraceID != "" {
			r.AddAttrs(slog.String("trace_id", ec.TraceID))
		}
		if ec.SpanID != "" {
			r.AddAttrs(slog.String("span_id", ec.SpanID))
		}
		if ec.CorrelationID != "" {
			r.AddAttrs(slog.String("correlation_id", ec.CorrelationID))
		}
		return h.Handler.Handle(ctx, r)
	}

	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		if sc.HasTraceID() {
			r.AddAttrs(slog.String("trace_id", sc.TraceID().String()))
		}
		if sc.HasSpanID() {
			r.AddAttrs(slog.String("span_id", sc.SpanID().String()))
		}
	}
	return h.Handler.Handle(ctx, r)
}

// WithAttrs preserves the decoration on derived handlers.
func (h *ContextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &ContextHandler{Handler: h.Handler.WithAttrs(attrs)}
}

// WithGroup preserves the decoration on grouped handlers.
func (h *ContextHandler) WithGroup(name string) slog.Handler {
	return &ContextHandler{Handler: h.Handler.WithGroup(name)}
}

// InitLogger installs a JSON logger on stderr, decorated with execution
// identifiers, as the process default, and returns it.
func InitLogger(level slog.Level) *slog.Logger {
	handler := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})
	logger := slog.New(NewContextHandler(handler))
	slog.SetDefault(logger)
	return logger
}
