package flow

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// UndoFunc reverses the side effect of a successfully completed primitive.
// It receives a context that is never cancelled, so rollback can finish
// even when the workflow was torn down by cancellation.
type UndoFunc func(ctx context.Context) error

// CompensationLogEntry records one committed undo action.
type CompensationLogEntry struct {
	StepID      string
	Undo        UndoFunc
	CommittedAt time.Time
}

// CompensationLog is the execution-wide list of committed undo actions,
// stored in ExecutionContext.State under SagaLogKey. It is safe for
// concurrent appends; rollback is driven by the innermost enclosing
// Sequential composition.
type CompensationLog struct {
	mu      sync.Mutex
	entries []CompensationLogEntry
}

// NewCompensationLog returns an empty log.
func NewCompensationLog() *CompensationLog {
	return &CompensationLog{}
}

// Append records a committed undo action.
func (l *CompensationLog) Append(e CompensationLogEntry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, e)
}

// Len returns the number of committed entries.
func (l *CompensationLog) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// Entries returns a copy of the committed entries in commit order.
func (l *CompensationLog) Entries() []CompensationLogEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]CompensationLogEntry, len(l.entries))
	copy(out, l.entries)
	return out
}

// popAfter removes the entries committed at or beyond mark and returns
// them newest first, ready for rollback. Entries are consumed so an outer
// Sequential never replays an undo an inner one already ran.
func (l *CompensationLog) popAfter(mark int) []CompensationLogEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	if mark < 0 {
		mark = 0
	}
	if mark >= len(l.entries) {
		return nil
	}
	tail := l.entries[mark:]
	out := make([]CompensationLogEntry, 0, len(tail))
	for i := len(tail) - 1; i >= 0; i-- {
		out = append(out, tail[i])
	}
	l.entries = l.entries[:mark]
	return out
}

// Compensation wraps a primitive so that its side effect can be undone if
// a later stage of the same workflow fails. On success it appends the undo
// action to the execution's compensation log; the enclosing Sequential
// invokes logged undos in reverse order before propagating the failure.
type Compensation struct {
	wrapped Primitive
	undo    UndoFunc
}

var _ Primitive = (*Compensation)(nil)

// NewCompensation pairs wrapped with its undo action.
func NewCompensation(wrapped Primitive, undo UndoFunc) *Compensation {
	if wrapped == nil {
		panic("flow: compensation wrapped primitive must not be nil")
	}
	if undo == nil {
		panic("flow: compensation undo function must not be nil")
	}
	return &Compensation{wrapped: wrapped, undo: undo}
}

func (c *Compensation) Name() string { return "compensate(" + c.wrapped.Name() + ")" }
func (c *Compensation) Type() string { return TypeCompensation }

func (c *Compensation) Execute(ctx context.Context, input any) (any, error) {
	log := compensationLogFrom(ctx)
	if log == nil {
		// Checked before running wrapped: an undo that cannot be recorded
		// must fail before the side effect happens, not after.
		return nil, PermanentError(fmt.Errorf("compensation %q requires a root execution context", c.wrapped.Name()))
	}
	out, err := RunChild(ctx, c.wrapped, input)
	if err != nil {
		return nil, err
	}
	log.Append(CompensationLogEntry{
		StepID:      c.wrapped.Name(),
		Undo:        c.undo,
		CommittedAt: time.Now(),
	})
	return out, nil
}

// compensationLogFrom returns the execution's compensation log, creating
// one in State for contexts assembled by hand without NewRootContext.
func compensationLogFrom(ctx context.Context) *CompensationLog {
	ec, ok := ExecutionFromContext(ctx)
	if !ok {
		return nil
	}
	if log := ec.CompensationLog(); log != nil {
		return log
	}
	if ec.State == nil {
		return nil
	}
	log := NewCompensationLog()
	ec.State[SagaLogKey] = log
	return log
}

// undoPrimitive runs one logged undo action as a span of its own, so the
// rollback is visible in the trace alongside the stages it reverses.
type undoPrimitive struct {
	stepID string
	undo   UndoFunc
}

func (u *undoPrimitive) Name() string { return "undo(" + u.stepID + ")" }
func (u *undoPrimitive) Type() string { return TypeCompensation }

func (u *undoPrimitive) Execute(ctx context.Context, _ any) (any, error) {
	return nil, u.undo(ctx)
}

// rollback invokes undo actions newest first on a context that survives
// cancellation. Undo failures end up on their spans and counters and do
// not stop the remaining undos.
func rollback(ctx context.Context, entries []CompensationLogEntry) {
	if len(entries) == 0 {
		return
	}
	ctx = context.WithoutCancel(ctx)
	for _, e := range entries {
		_, _ = RunChild(ctx, &undoPrimitive{stepID: e.StepID, undo: e.Undo}, nil)
	}
}
