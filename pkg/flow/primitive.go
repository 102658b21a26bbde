package flow

import (
	"context"
	"fmt"
)

// Primitive type identifiers, recorded as the primitive.type span attribute
// and the primitive_type metric label.
const (
	TypeStep         = "step"
	TypeSequential   = "sequential"
	TypeParallel     = "parallel"
	TypeRouter       = "router"
	TypeRetry        = "retry"
	TypeTimeout      = "timeout"
	TypeFallback     = "fallback"
	TypeCircuit      = "circuit_breaker"
	TypeCompensation = "compensation"
	TypeCache        = "cache"
)

// Primitive is a single execution unit. Compositions and recovery wrappers
// implement it too, so a whole pipeline is itself a Primitive.
//
// Execute receives its derived ExecutionContext through ctx (see
// ExecutionFromContext). Implementations may read baggage and Metadata and
// append to State, but must not reassign the identifier fields of the
// context they were given. Blocking work must observe ctx cancellation.
//
// Primitives are executed through Execute (package level), an
// Instrumenter, or a Runtime; those boundaries create the span for the
// primitive itself. Compositions invoke their children through RunChild,
// which does the same for each child. Calling the Execute method directly
// runs the bare semantics without a span.
type Primitive interface {
	// Name is the span name for this primitive's invocations.
	Name() string
	// Type is the stable identifier of the primitive variant.
	Type() string
	// Execute runs the primitive. Failure is reported as a typed *Error
	// where a kind is known; plain errors pass through unchanged.
	Execute(ctx context.Context, input any) (any, error)
}

// StepFunc is the signature of a leaf step.
type StepFunc func(ctx context.Context, input any) (any, error)

// Func is a named leaf primitive wrapping a StepFunc.
type Func struct {
	name string
	fn   StepFunc
}

var _ Primitive = (*Func)(nil)

// NewFunc wraps fn as a leaf primitive. It panics on an empty name or nil
// fn: both are programming errors worth failing loudly on at build time.
func NewFunc(name string, fn StepFunc) *Func {
	if name == "" {
		panic("flow: step name must not be empty")
	}
	if fn == nil {
		panic("flow: step function must not be nil")
	}
	return &Func{name: name, fn: fn}
}

func (f *Func) Name() string { return f.name }
func (f *Func) Type() string { return TypeStep }

func (f *Func) Execute(ctx context.Context, input any) (any, error) {
	return f.fn(ctx, input)
}

// Typed wraps a strongly-typed function into a leaf primitive. The input is
// type-asserted at the boundary; a mismatch is a Permanent error.
//
//	flow.Typed("score", func(ctx context.Context, o Order) (Score, error) { ... })
func Typed[I, O any](name string, fn func(context.Context, I) (O, error)) *Func {
	if fn == nil {
		panic("flow: step function must not be nil")
	}
	return NewFunc(name, func(ctx context.Context, input any) (any, error) {
		in, ok := input.(I)
		if !ok {
			var want I
			return nil, PermanentError(fmt.Errorf("step %q: expected input %T, got %T", name, want, input))
		}
		return fn(ctx, in)
	})
}
