package journal

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestInMemoryStore_SaveGetUpdate(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryStore()

	rec := &RunRecord{
		ID:            "run-1",
		Pipeline:      "checkout",
		CorrelationID: "corr-1",
		Status:        StatusRunning,
		Input:         "order-1",
		StartedAt:     time.Now(),
	}

	if err := store.SaveRun(ctx, rec); err != nil {
		t.Fatalf("SaveRun failed: %v", err)
	}

	got, err := store.GetRun(ctx, "run-1")
	if err != nil {
		t.Fatalf("GetRun failed: %v", err)
	}
	if got.Pipeline != "checkout" || got.Status != StatusRunning {
		t.Fatalf("unexpected record after Get: %+v", got)
	}
	if got.Input != "order-1" {
		t.Fatalf("expected Input %q, got %v", "order-1", got.Input)
	}
	if !got.CompletedAt.IsZero() {
		t.Fatalf("expected zero CompletedAt for a running record, got %v", got.CompletedAt)
	}

	// Finish the run.
	rec.Status = StatusCompleted
	rec.Output = "receipt-9"
	rec.TraceID = "0af7651916cd43dd8448eb211c80319c"
	rec.CompletedAt = time.Now()

	if err := store.UpdateRun(ctx, rec); err != nil {
		t.Fatalf("UpdateRun failed: %v", err)
	}

	got2, err := store.GetRun(ctx, "run-1")
	if err != nil {
		t.Fatalf("GetRun after update failed: %v", err)
	}
	if got2.Status != StatusCompleted {
		t.Fatalf("expected updated status COMPLETED, got %q", got2.Status)
	}
	if got2.Output != "receipt-9" {
		t.Fatalf("expected updated Output %q, got %v", "receipt-9", got2.Output)
	}
	if got2.TraceID != "0af7651916cd43dd8448eb211c80319c" {
		t.Fatalf("expected trace id to be recorded, got %q", got2.TraceID)
	}
	if got2.CompletedAt.IsZero() {
		t.Fatalf("expected CompletedAt to be set after update")
	}
}

func TestInMemoryStore_GetRunNotFound(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryStore()

	_, err := store.GetRun(ctx, "does-not-exist")
	if err == nil {
		t.Fatalf("expected error for missing run")
	}
	if !errors.Is(err, ErrRunNotFound) {
		t.Fatalf("expected ErrRunNotFound, got %v", err)
	}
}

func TestInMemoryStore_UpdateRunNotFound(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryStore()

	err := store.UpdateRun(ctx, &RunRecord{ID: "ghost", Status: StatusFailed})
	if !errors.Is(err, ErrRunNotFound) {
		t.Fatalf("expected ErrRunNotFound, got %v", err)
	}
}

// Stored records must not alias the caller's RunRecord: the runtime keeps
// mutating one record between SaveRun and UpdateRun.
func TestInMemoryStore_RecordsAreCopied(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryStore()

	rec := &RunRecord{ID: "run-1", Pipeline: "checkout", Status: StatusRunning, StartedAt: time.Now()}
	if err := store.SaveRun(ctx, rec); err != nil {
		t.Fatalf("SaveRun failed: %v", err)
	}

	// Mutating the caller's record must not leak into the store.
	rec.Status = StatusFailed

	got, err := store.GetRun(ctx, "run-1")
	if err != nil {
		t.Fatalf("GetRun failed: %v", err)
	}
	if got.Status != StatusRunning {
		t.Fatalf("expected stored status RUNNING, got %q", got.Status)
	}

	// Mutating a returned record must not leak either.
	got.Pipeline = "tampered"

	again, err := store.GetRun(ctx, "run-1")
	if err != nil {
		t.Fatalf("GetRun failed: %v", err)
	}
	if again.Pipeline != "checkout" {
		t.Fatalf("expected stored pipeline %q, got %q", "checkout", again.Pipeline)
	}
}

func TestInMemoryStore_ListRunsFilter(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryStore()

	base := time.Now()
	records := []*RunRecord{
		{ID: "a-1", Pipeline: "checkout", Status: StatusCompleted, StartedAt: base},
		{ID: "a-2", Pipeline: "checkout", Status: StatusCompleted, StartedAt: base.Add(time.Second)},
		{ID: "b-1", Pipeline: "refund", Status: StatusFailed, StartedAt: base.Add(2 * time.Second)},
	}

	for _, rec := range records {
		if err := store.SaveRun(ctx, rec); err != nil {
			t.Fatalf("SaveRun(%q) failed: %v", rec.ID, err)
		}
	}

	// No filter -> all runs, ordered by start time.
	all, err := store.ListRuns(ctx, Filter{})
	if err != nil {
		t.Fatalf("ListRuns (no filter) failed: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("expected 3 runs, got %d", len(all))
	}
	for i, want := range []string{"a-1", "a-2", "b-1"} {
		if all[i].ID != want {
			t.Fatalf("expected run %q at position %d, got %q", want, i, all[i].ID)
		}
	}

	// Filter by pipeline.
	checkout, err := store.ListRuns(ctx, Filter{Pipeline: "checkout"})
	if err != nil {
		t.Fatalf("ListRuns (pipeline filter) failed: %v", err)
	}
	if len(checkout) != 2 {
		t.Fatalf("expected 2 checkout runs, got %d", len(checkout))
	}

	// Filter by status.
	failed, err := store.ListRuns(ctx, Filter{Status: StatusFailed})
	if err != nil {
		t.Fatalf("ListRuns (status filter) failed: %v", err)
	}
	if len(failed) != 1 || failed[0].ID != "b-1" {
		t.Fatalf("unexpected FAILED runs: %+v", failed)
	}

	// Combined filter with no matches.
	none, err := store.ListRuns(ctx, Filter{Pipeline: "refund", Status: StatusCompleted})
	if err != nil {
		t.Fatalf("ListRuns (combined filter) failed: %v", err)
	}
	if len(none) != 0 {
		t.Fatalf("expected no COMPLETED refund runs, got %d", len(none))
	}
}

func TestInMemoryStore_AppendListEvents(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryStore()

	events := []Event{
		{RunID: "run-1", Type: EventRunStarted},
		{RunID: "run-1", Type: EventPrimitiveStarted, Primitive: "reserve", PrimitiveType: "step"},
		{RunID: "run-2", Type: EventRunStarted},
	}
	for _, ev := range events {
		if err := store.AppendEvent(ctx, ev); err != nil {
			t.Fatalf("AppendEvent failed: %v", err)
		}
	}

	got, err := store.ListEvents(ctx, "run-1")
	if err != nil {
		t.Fatalf("ListEvents failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 events for run-1, got %d", len(got))
	}
	if got[0].Type != EventRunStarted || got[1].Type != EventPrimitiveStarted {
		t.Fatalf("unexpected event order: %+v", got)
	}
	if got[1].Primitive != "reserve" {
		t.Fatalf("expected primitive %q, got %q", "reserve", got[1].Primitive)
	}
	if got[0].At.IsZero() {
		t.Fatalf("expected zero At to be defaulted on append")
	}

	other, err := store.ListEvents(ctx, "run-3")
	if err != nil {
		t.Fatalf("ListEvents (unknown run) failed: %v", err)
	}
	if len(other) != 0 {
		t.Fatalf("expected no events for unknown run, got %d", len(other))
	}
}
