// Package journal persists pipeline runs and their event history so
// executions can be inspected after the fact. A run record is the
// authoritative state of one execution (status, payloads, trace id);
// events are the append-only history written alongside it.
package journal

import (
	"context"
	"errors"
	"time"
)

// ErrRunNotFound is returned when a run record is not found.
var ErrRunNotFound = errors.New("run not found")

// Status of a recorded run.
type Status string

const (
	StatusRunning   Status = "RUNNING"
	StatusCompleted Status = "COMPLETED"
	StatusFailed    Status = "FAILED"
)

// EventType identifies a run history event.
type EventType string

const (
	EventRunStarted   EventType = "run.started"
	EventRunCompleted EventType = "run.completed"
	EventRunFailed    EventType = "run.failed"

	EventPrimitiveStarted   EventType = "primitive.started"
	EventPrimitiveCompleted EventType = "primitive.completed"
	EventPrimitiveFailed    EventType = "primitive.failed"
)

// RunRecord is the durable snapshot of one pipeline run.
//
// Input and Output are stored gob-encoded; concrete types that flow
// through them must be registered with encoding/gob by the caller.
// CompletedAt stays zero while the run is in flight.
type RunRecord struct {
	ID            string
	Pipeline      string
	CorrelationID string
	TraceID       string
	Status        Status
	Input         any
	Output        any
	Error         string
	StartedAt     time.Time
	CompletedAt   time.Time
}

// Event is a minimal append-only history record for audit/debugging.
type Event struct {
	RunID string
	At    time.Time
	Type  EventType

	// Optional context.
	Primitive     string
	PrimitiveType string
	SpanID        string

	// Small, human-oriented detail (e.g. error text).
	// Keep this low-volume: do NOT dump large payloads here.
	Detail string
}

// Filter is used to select runs from the store.
// Empty string / zero status mean "no filter" for that field.
type Filter struct {
	Pipeline string
	Status   Status
}

// Store handles storage of run records and their events.
type Store interface {
	SaveRun(ctx context.Context, rec *RunRecord) error
	UpdateRun(ctx context.Context, rec *RunRecord) error
	GetRun(ctx context.Context, id string) (*RunRecord, error)
	ListRuns(ctx context.Context, filter Filter) ([]*RunRecord, error)

	AppendEvent(ctx context.Context, ev Event) error
	ListEvents(ctx context.Context, runID string) ([]Event, error)
}
