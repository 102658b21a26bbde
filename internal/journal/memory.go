package journal

import (
	"context"
	"sort"
	"sync"
	"time"
)

// InMemoryStore is a simple, goroutine-safe implementation of Store
// backed by maps. Records are copied on write and on read, so callers
// may keep mutating a RunRecord between SaveRun and UpdateRun.
type InMemoryStore struct {
	mu     sync.RWMutex
	runs   map[string]*RunRecord
	events map[string][]Event
}

// NewInMemoryStore creates a new InMemoryStore.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		runs:   make(map[string]*RunRecord),
		events: make(map[string][]Event),
	}
}

// Ensure InMemoryStore implements the interface.
var _ Store = (*InMemoryStore)(nil)

func (s *InMemoryStore) SaveRun(ctx context.Context, rec *RunRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *rec
	s.runs[rec.ID] = &cp
	return nil
}

func (s *InMemoryStore) UpdateRun(ctx context.Context, rec *RunRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.runs[rec.ID]; !ok {
		return ErrRunNotFound
	}

	cp := *rec
	s.runs[rec.ID] = &cp
	return nil
}

func (s *InMemoryStore) GetRun(ctx context.Context, id string) (*RunRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.runs[id]
	if !ok {
		return nil, ErrRunNotFound
	}

	cp := *rec
	return &cp, nil
}

func (s *InMemoryStore) ListRuns(ctx context.Context, filter Filter) ([]*RunRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*RunRecord

	for _, rec := range s.runs {
		if filter.Pipeline != "" && rec.Pipeline != filter.Pipeline {
			continue
		}
		if filter.Status != "" && rec.Status != filter.Status {
			continue
		}
		cp := *rec
		result = append(result, &cp)
	}

	// Map iteration order is random; keep the listing stable.
	sort.Slice(result, func(i, j int) bool {
		if !result[i].StartedAt.Equal(result[j].StartedAt) {
			return result[i].StartedAt.Before(result[j].StartedAt)
		}
		return result[i].ID < result[j].ID
	})

	return result, nil
}

func (s *InMemoryStore) AppendEvent(ctx context.Context, ev Event) error {
	if ev.At.IsZero() {
		ev.At = time.Now()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.events[ev.RunID] = append(s.events[ev.RunID], ev)
	return nil
}

func (s *InMemoryStore) ListEvents(ctx context.Context, runID string) ([]Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	evs := s.events[runID]
	if len(evs) == 0 {
		return nil, nil
	}

	out := make([]Event, len(evs))
	copy(out, evs)
	return out, nil
}
