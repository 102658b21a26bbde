package stitch

import (
	"context"
	"database/sql"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/pkorhonen/stitch/internal/cachestore"
	"github.com/pkorhonen/stitch/internal/journal"
	"github.com/pkorhonen/stitch/pkg/flow"
)

// Core primitive types, re-exported so most programs only import the root
// package. The flow package remains importable on its own for callers that
// want the primitives without the runtime.
type (
	Primitive    = flow.Primitive
	StepFunc     = flow.StepFunc
	Func         = flow.Func
	Sequential   = flow.Sequential
	Parallel     = flow.Parallel
	BranchResult = flow.BranchResult
	Router       = flow.Router
	RouteFunc    = flow.RouteFunc

	// flow.Retry carries no alias: the Retry name belongs to the
	// RetryBuilder entry point, and NewRetry returns *flow.Retry as is.
	RetryStrategy  = flow.RetryStrategy
	Timeout        = flow.Timeout
	Fallback       = flow.Fallback
	CircuitBreaker = flow.CircuitBreaker
	BreakerState   = flow.BreakerState

	Cache      = flow.Cache
	CacheStore = flow.CacheStore
	KeyFunc    = flow.KeyFunc

	Compensation = flow.Compensation
	UndoFunc     = flow.UndoFunc
)

// Execution and observability types.
type (
	ExecutionContext = flow.ExecutionContext
	ContextOption    = flow.ContextOption
	Run              = flow.Run
	Observer         = flow.Observer
	NoopObserver     = flow.NoopObserver

	Error     = flow.Error
	ErrorKind = flow.ErrorKind
)

// Run journal types. Journal is the persistence interface run records and
// history events are written through; implementations ship for memory,
// SQLite, and anything else that satisfies the interface.
type (
	Journal      = journal.Store
	RunRecord    = journal.RunRecord
	RunEvent     = journal.Event
	RunEventType = journal.EventType
	RunFilter    = journal.Filter
	RunStatus    = journal.Status
)

// Journal run statuses.
const (
	StatusRunning   = journal.StatusRunning
	StatusCompleted = journal.StatusCompleted
	StatusFailed    = journal.StatusFailed
)

// Journal event types, in the order a successful run emits them.
const (
	EventRunStarted         = journal.EventRunStarted
	EventPrimitiveStarted   = journal.EventPrimitiveStarted
	EventPrimitiveCompleted = journal.EventPrimitiveCompleted
	EventPrimitiveFailed    = journal.EventPrimitiveFailed
	EventRunCompleted       = journal.EventRunCompleted
	EventRunFailed          = journal.EventRunFailed
)

// Primitive type names as they appear on spans, in events, and in metric
// labels.
const (
	TypeStep         = flow.TypeStep
	TypeSequential   = flow.TypeSequential
	TypeParallel     = flow.TypeParallel
	TypeRouter       = flow.TypeRouter
	TypeRetry        = flow.TypeRetry
	TypeTimeout      = flow.TypeTimeout
	TypeFallback     = flow.TypeFallback
	TypeCircuit      = flow.TypeCircuit
	TypeCompensation = flow.TypeCompensation
	TypeCache        = flow.TypeCache
)

// Sentinel errors.
var (
	ErrCircuitOpen = flow.ErrCircuitOpen
	ErrRunNotFound = journal.ErrRunNotFound
)

// Constructors and helpers re-exported from the flow package.
var (
	NewFunc             = flow.NewFunc
	NewSequential       = flow.NewSequential
	NewParallel         = flow.NewParallel
	NewRouter           = flow.NewRouter
	NewRetry            = flow.NewRetry
	NewTimeout          = flow.NewTimeout
	NewFallback         = flow.NewFallback
	NewCircuitBreaker   = flow.NewCircuitBreaker
	NewCache            = flow.NewCache
	NewCacheWithStore   = flow.NewCacheWithStore
	NewMemoryCacheStore = flow.NewMemoryCacheStore
	NewCompensation     = flow.NewCompensation

	NewRootContext       = flow.NewRootContext
	WithCorrelationID    = flow.WithCorrelationID
	WithTraceParent      = flow.WithTraceParent
	WithMetadataValue    = flow.WithMetadataValue
	ContextWithExecution = flow.ContextWithExecution
	ExecutionFromContext = flow.ExecutionFromContext
	RunFromContext       = flow.RunFromContext
	Annotate             = flow.Annotate

	TransientError = flow.TransientError
	PermanentError = flow.PermanentError
	TimeoutError   = flow.TimeoutError
	IsTransient    = flow.IsTransient
	IsPermanent    = flow.IsPermanent
	IsTimeout      = flow.IsTimeout
	IsCircuitOpen  = flow.IsCircuitOpen

	NewLoggingObserver   = flow.NewLoggingObserver
	NewCompositeObserver = flow.NewCompositeObserver
)

// Typed wraps a function with concrete input and output types as a step.
// The input type is asserted at execution time; a mismatch fails the step
// with a permanent error.
func Typed[I, O any](name string, fn func(context.Context, I) (O, error)) *Func {
	return flow.Typed[I, O](name, fn)
}

// NewMemoryJournal returns a Journal backed by process memory. Suitable for
// tests and single-process deployments; records are lost on restart.
func NewMemoryJournal() Journal {
	return journal.NewInMemoryStore()
}

// NewSQLiteJournal returns a Journal backed by db, creating its schema if
// needed. The caller owns the *sql.DB.
func NewSQLiteJournal(db *sql.DB) (Journal, error) {
	return journal.NewSQLiteStore(db)
}

// NewRedisCacheStore returns a CacheStore backed by client, for sharing
// cache primitive state across processes. Keys are namespaced under prefix;
// pass "" for the default.
func NewRedisCacheStore(client *redis.Client, prefix string) CacheStore {
	return cachestore.NewRedisStore(client, prefix)
}

// NewJournalObserver returns an Observer that appends run history events to
// store. Runtime wires one automatically when configured WithJournal; use
// this directly only when driving flow.Execute yourself.
func NewJournalObserver(store Journal, logger *slog.Logger) Observer {
	return journal.NewObserver(store, logger)
}
