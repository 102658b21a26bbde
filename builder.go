package stitch

import (
	"context"
	"fmt"
	"time"

	"github.com/pkorhonen/stitch/pkg/flow"
)

// PipelineBuilder provides a fluent API for defining pipelines:
//
//	rt := stitch.NewRuntime()
//
//	err := stitch.NewPipeline("checkout").
//	    Step("validate", validateOrder).
//	    StepWithRetry("charge", chargeCard, stitch.Retry(3).WithExponentialBackoff(100*time.Millisecond, 2).Strategy()).
//	    Step("confirm", sendConfirmation).
//	    Timeout(5 * time.Second).
//	    Register(rt)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	out, err := rt.Run(ctx, "checkout", order)
//
// The builder covers the common sequential shape; anything it has no method
// for is added with Stage, which accepts any primitive.
type PipelineBuilder struct {
	name    string
	stages  []flow.Primitive
	timeout time.Duration
}

// NewPipeline creates a new pipeline builder with the given name.
func NewPipeline(name string) *PipelineBuilder {
	if name == "" {
		panic("stitch: pipeline name must not be empty")
	}
	return &PipelineBuilder{name: name}
}

// Name returns the pipeline name.
func (b *PipelineBuilder) Name() string {
	return b.name
}

// Step appends a basic step.
func (b *PipelineBuilder) Step(name string, fn StepFunc) *PipelineBuilder {
	b.validateStep(name, fn)
	return b.Stage(flow.NewFunc(name, fn))
}

// StepWithRetry appends a step retried according to strategy.
func (b *PipelineBuilder) StepWithRetry(name string, fn StepFunc, strategy RetryStrategy) *PipelineBuilder {
	b.validateStep(name, fn)
	return b.Stage(flow.NewRetry(flow.NewFunc(name, fn), strategy))
}

// StepWithUndo appends a step whose effects are rolled back by undo when a
// later stage fails. Undo functions run in reverse order of the steps that
// succeeded.
func (b *PipelineBuilder) StepWithUndo(name string, fn StepFunc, undo UndoFunc) *PipelineBuilder {
	b.validateStep(name, fn)
	if undo == nil {
		panic(fmt.Sprintf("stitch: step %q has nil undo function", name))
	}
	return b.Stage(flow.NewCompensation(flow.NewFunc(name, fn), undo))
}

// Stage appends any primitive as the next stage.
func (b *PipelineBuilder) Stage(p flow.Primitive) *PipelineBuilder {
	if p == nil {
		panic("stitch: pipeline stage must not be nil")
	}
	b.stages = append(b.stages, p)
	return b
}

// Parallel appends a stage that fans the current value out to branches and
// collects their results.
func (b *PipelineBuilder) Parallel(name string, branches ...flow.Primitive) *PipelineBuilder {
	return b.Stage(flow.NewParallel(name, branches...))
}

// ParallelFailFast is Parallel with the first branch error cancelling the
// remaining branches.
func (b *PipelineBuilder) ParallelFailFast(name string, branches ...flow.Primitive) *PipelineBuilder {
	p := flow.NewParallel(name, branches...)
	p.FailFast = true
	return b.Stage(p)
}

// Route appends a stage that dispatches to one of routes by the key route
// returns.
func (b *PipelineBuilder) Route(name string, route RouteFunc, routes map[string]flow.Primitive) *PipelineBuilder {
	return b.Stage(flow.NewRouter(name, route, routes))
}

// If appends a two-way conditional stage.
func (b *PipelineBuilder) If(name string, cond func(ctx context.Context, input any) (bool, error), whenTrue, whenFalse flow.Primitive) *PipelineBuilder {
	if cond == nil {
		panic(fmt.Sprintf("stitch: conditional %q has nil condition", name))
	}
	route := func(ctx context.Context, input any) (string, error) {
		ok, err := cond(ctx, input)
		if err != nil {
			return "", err
		}
		if ok {
			return "true", nil
		}
		return "false", nil
	}
	return b.Stage(flow.NewRouter(name, route, map[string]flow.Primitive{
		"true":  whenTrue,
		"false": whenFalse,
	}))
}

// Timeout bounds the whole pipeline. Zero means no limit.
func (b *PipelineBuilder) Timeout(limit time.Duration) *PipelineBuilder {
	b.timeout = limit
	return b
}

// Build assembles the pipeline. The stages become a Sequential named after
// the pipeline, wrapped in a Timeout when one was set.
func (b *PipelineBuilder) Build() flow.Primitive {
	if len(b.stages) == 0 {
		panic(fmt.Sprintf("stitch: pipeline %q has no stages", b.name))
	}

	var p flow.Primitive = flow.NewSequential(b.name, b.stages...)
	if b.timeout > 0 {
		p = flow.NewTimeout(p, b.timeout)
	}
	return p
}

// Register builds the pipeline and registers it with rt under the
// builder's name, regardless of how Build wraps it.
func (b *PipelineBuilder) Register(rt *Runtime) error {
	if len(b.stages) == 0 {
		return fmt.Errorf("stitch: pipeline %q has no stages", b.name)
	}
	return rt.RegisterNamed(b.name, b.Build())
}

// MustRegister is like Register but panics on error. Useful for
// initialization in main().
func (b *PipelineBuilder) MustRegister(rt *Runtime) {
	if err := b.Register(rt); err != nil {
		panic(err)
	}
}

func (b *PipelineBuilder) validateStep(name string, fn StepFunc) {
	if name == "" {
		panic("stitch: step name must not be empty")
	}
	if fn == nil {
		panic(fmt.Sprintf("stitch: step %q has nil function", name))
	}
}
