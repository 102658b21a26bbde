// Package flow contains the core execution primitives used by the stitch
// runtime. It provides the low-level building blocks for composing workflows,
// propagating execution context, and instrumenting every primitive invocation
// with traces and observer callbacks.
//
// Most users interact with the higher-level stitch package, which re-exports
// selected types and helpers from this package and adds a runtime, builders,
// and telemetry wiring. The flow package is intended for advanced use cases,
// custom primitives, or contributors extending the runtime itself.
//
// # Concepts
//
// The flow package centers around a small set of concepts:
//
//   - Primitives and step functions
//   - Execution contexts
//   - Instrumentation
//   - Composition
//   - Recovery and caching
//
// Everything in this package composes through a single interface, Primitive.
// A primitive takes an input, produces an output or an error, and may wrap
// other primitives. Compositions of primitives are themselves primitives, so
// arbitrarily deep pipelines are built from the same small vocabulary.
//
// # Primitives and Step Functions
//
// The leaf primitive is Func, which adapts a plain Go function into the
// Primitive interface. Typed wraps a strongly typed function and rejects
// mismatched inputs with a permanent error, so callers do not need to manage
// type assertions manually.
//
// Step functions are expected to:
//
//   - Honor context cancellation on long-running work.
//   - Classify failures using TransientError, PermanentError, and friends,
//     so retry, fallback, and circuit breaker wrappers can react correctly.
//   - Be safe to retry when wrapped in a Retry primitive.
//
// # Execution Contexts
//
// An ExecutionContext carries the identity of one workflow execution: trace
// and span identifiers, a correlation id, ordered baggage, metadata, and a
// mutable state map shared by all primitives in the execution. Contexts are
// value objects; deriving a child or attaching baggage returns a copy and
// never mutates the parent, so concurrent branches cannot observe each
// other's baggage writes.
//
// Every primitive invocation runs with a child context whose parent span id
// is the invoking primitive's span id. The resulting chain of span
// relationships forms a single rooted tree per execution, which is what makes
// the emitted traces coherent end to end.
//
// # Instrumentation
//
// The Instrumenter wraps primitive invocations with OpenTelemetry spans and
// Observer callbacks. Execute starts a new execution at a public boundary;
// RunChild invokes a child primitive inside an existing execution. Compositions
// in this package always call children through RunChild, so instrumentation is
// inherited automatically and cannot be skipped by nesting.
//
// Span identifiers are adopted from the configured tracer when it records,
// and generated locally when it does not, so the execution context chain
// stays consistent with exported spans in both cases.
//
// Observers receive primitive and run lifecycle events. The package ships
// NoopObserver, LoggingObserver, BasicMetrics, and a composite helper to fan
// events out to several observers at once.
//
// # Composition
//
// The flow package defines the control-flow primitives used to assemble
// pipelines:
//
//   - Sequential chains stages and threads each output into the next input.
//   - Parallel fans one input out to branches and preserves branch order in
//     its results, with an optional fail-fast mode.
//   - Router selects one route by key, with an optional default.
//   - Timeout bounds a subtree with a deadline.
//
// # Recovery
//
// Failure handling is built from four wrappers:
//
//   - Retry re-invokes a primitive with exponential backoff and jitter.
//   - Fallback tries alternatives in order until one succeeds.
//   - CircuitBreaker sheds load after consecutive failures and probes for
//     recovery with a single trial invocation.
//   - Compensation records an undo action after its wrapped primitive
//     succeeds; a failing Sequential stage triggers rollback of the undo
//     actions recorded in that scope, newest first.
//
// # Caching
//
// Cache short-circuits repeated invocations by key, with per-entry TTL and
// LRU eviction. The CacheStore interface decouples the primitive from its
// storage; an in-memory store ships with the package and external stores can
// be plugged in.
//
// # Usage
//
// Most applications should start from the stitch package, using the Runtime
// and PipelineBuilder provided there. The flow package is useful when you
// need lower-level access, custom primitives, or when contributing changes
// to the runtime core.
package flow
