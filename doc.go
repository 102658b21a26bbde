// Package stitch composes instrumented workflow primitives into pipelines.
//
// Stitch is designed for backend services that orchestrate multi-step
// operations (checkout flows, API composition, data enrichment) and want
// every execution to come out as one coherent OpenTelemetry trace, with
// metrics and a run journal, without adopting external orchestration
// infrastructure. It runs fully in-process and integrates cleanly into
// existing codebases.
//
// # Core Concepts
//
// The programming model is intentionally small:
//
//  1. Primitive
//  2. Runtime
//  3. PipelineBuilder
//  4. Observer
//  5. Journal
//
// These components form a complete pipeline system with uniform
// instrumentation and a clear mental model.
//
// # Primitive
//
// A Primitive is the unit of execution. The atom is a step, an ordinary
// function:
//
//	type StepFunc func(ctx context.Context, input any) (any, error)
//
// Compositions combine primitives and are primitives themselves, so they
// nest arbitrarily:
//
//   - Sequential: stages in order, output feeding the next input
//   - Parallel: branches fanned out, results collected
//   - Router: dynamic dispatch to a named branch
//
// Wrappers add behavior to a single primitive:
//
//   - Retry: re-invocation with backoff for transient failures
//   - Timeout: a time budget for the subtree underneath
//   - Fallback: alternatives tried in order
//   - CircuitBreaker: fail fast while a dependency is down
//   - Cache: memoized results, in memory or in Redis
//   - Compensation: an undo action replayed in reverse when a later
//     stage fails
//
// Every primitive invocation produces an OpenTelemetry span parented to the
// invoking primitive's span, so one execution is always one trace tree.
// These types live in pkg/flow and are re-exported here; the flow package
// can be imported on its own when only the primitives are wanted.
//
// # Runtime
//
// The Runtime is the execution boundary. Pipelines are registered under
// their names, then executed by name:
//
//	out, err := rt.Run(ctx, "checkout", order)
//
// Each call becomes a run with a unique id and a correlation id, visible to
// observers and recorded in the journal. Options configure the tracer
// provider, Prometheus metrics, the journal, and logging.
//
// # PipelineBuilder
//
// PipelineBuilder provides the declarative API used to define pipelines. It
// supports common shapes directly and accepts any primitive via Stage:
//
//	stitch.NewPipeline("checkout").
//	    Step("validate", validate).
//	    StepWithRetry("charge", charge, stitch.Retry(3).WithConstantBackoff(time.Second).Strategy()).
//	    Parallel("notify",
//	        stitch.NewFunc("email", sendEmail),
//	        stitch.NewFunc("metrics", recordSale),
//	    ).
//	    Timeout(10 * time.Second).
//	    MustRegister(rt)
//
// # Observer
//
// Observers receive run and primitive lifecycle callbacks. The package
// ships a structured-logging observer, a Prometheus metrics observer, and
// the journal observer; NewCompositeObserver fans callbacks out to several.
// Custom observers implement the Observer interface, usually by embedding
// NoopObserver.
//
// # Journal
//
// The Journal persists one RunRecord per run (status, input, output, error,
// trace id) and an ordered history of events. Backends ship for process
// memory and SQLite; the interface is small enough that other stores are
// easy to add. Records carry the run's trace id, which links the journal to
// the tracing backend.
//
// # Summary
//
// Primitives contain the logic, compositions give it shape, the Runtime
// executes it, and observers, metrics, traces, and the journal make every
// run visible. The goal is orchestration that feels like Go: plain
// functions, explicit errors, nothing to deploy.
//
// For complete programs, see the /examples directory.
package stitch
