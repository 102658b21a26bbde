package journal

import (
	"context"
	"log/slog"
	"time"

	"github.com/pkorhonen/stitch/pkg/flow"
)

// Observer implements flow.Observer by appending history events to a
// Store. Run records themselves (payloads, status transitions) are
// written by the runtime, which sees inputs and outputs; the observer
// only sees lifecycle callbacks.
//
// Primitive events are recorded only for executions that belong to a
// run (flow.RunFromContext); standalone executions are not journaled.
// Store failures are logged and never surface into the execution.
type Observer struct {
	store  Store
	logger *slog.Logger
}

// Ensure Observer implements flow.Observer.
var _ flow.Observer = (*Observer)(nil)

// NewObserver creates an Observer writing to store. If logger is nil,
// slog.Default() is used.
func NewObserver(store Store, logger *slog.Logger) *Observer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Observer{store: store, logger: logger}
}

func (o *Observer) OnRunStart(ctx context.Context, run *flow.Run) {
	o.append(ctx, Event{
		RunID: run.ID,
		Type:  EventRunStarted,
	})
}

func (o *Observer) OnRunCompleted(ctx context.Context, run *flow.Run, d time.Duration) {
	o.append(ctx, Event{
		RunID: run.ID,
		Type:  EventRunCompleted,
	})
}

func (o *Observer) OnRunFailed(ctx context.Context, run *flow.Run, err error, d time.Duration) {
	o.append(ctx, Event{
		RunID:  run.ID,
		Type:   EventRunFailed,
		Detail: err.Error(),
	})
}

func (o *Observer) OnPrimitiveStart(ctx context.Context, name, primitiveType string) {
	run := flow.RunFromContext(ctx)
	if run == nil {
		return
	}

	ev := Event{
		RunID:         run.ID,
		Type:          EventPrimitiveStarted,
		Primitive:     name,
		PrimitiveType: primitiveType,
	}
	if ec, ok := flow.ExecutionFromContext(ctx); ok {
		ev.SpanID = ec.SpanID
	}
	o.append(ctx, ev)
}

func (o *Observer) OnPrimitiveCompleted(ctx context.Context, name, primitiveType string, err error, d time.Duration) {
	run := flow.RunFromContext(ctx)
	if run == nil {
		return
	}

	ev := Event{
		RunID:         run.ID,
		Type:          EventPrimitiveCompleted,
		Primitive:     name,
		PrimitiveType: primitiveType,
	}
	if err != nil {
		ev.Type = EventPrimitiveFailed
		ev.Detail = err.Error()
	}
	if ec, ok := flow.ExecutionFromContext(ctx); ok {
		ev.SpanID = ec.SpanID
	}
	o.append(ctx, ev)
}

// append writes the event outside the execution's cancellation scope, so
// history from failed or cancelled runs still lands in the store.
func (o *Observer) append(ctx context.Context, ev Event) {
	if err := o.store.AppendEvent(context.WithoutCancel(ctx), ev); err != nil {
		o.logger.WarnContext(ctx, "journal append failed",
			slog.String("run_id", ev.RunID),
			slog.String("event_type", string(ev.Type)),
			slog.Any("error", err),
		)
	}
}
