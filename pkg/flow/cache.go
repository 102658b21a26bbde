package flow

import (
	"container/list"
	"context"
	"sync"
	"time"
)

// KeyFunc derives the cache key for an input.
type KeyFunc func(ctx context.Context, input any) (string, error)

// CacheStore is the storage contract behind the Cache primitive. Stores
// must be safe for concurrent use; eviction policy belongs to the store.
// See NewMemoryCacheStore for the default and internal/cachestore for the
// Redis-backed implementation.
type CacheStore interface {
	// Get returns the unexpired value for key. ok is false on a miss or
	// an expired entry.
	Get(ctx context.Context, key string) (value any, ok bool, err error)

	// Set stores value under key for ttl. A non-positive ttl stores the
	// value without expiry.
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
}

// Cache memoizes the wrapped primitive's results by caller-derived key.
// A hit returns the stored value without invoking the wrapped primitive
// (span attribute cache.hit=true, no child span); a miss runs it and
// stores the result. Store failures degrade: a failing Get counts as a
// miss, a failing Set is recorded on the span and the computed value is
// still returned.
//
// Concurrent misses for the same key are NOT de-duplicated: both callers
// execute the wrapped primitive and both results are stored, last write
// winning. Callers needing at-most-one execution per key must arrange it
// themselves.
type Cache struct {
	wrapped Primitive
	keyFn   KeyFunc
	ttl     time.Duration
	store   CacheStore
}

var _ Primitive = (*Cache)(nil)

// NewCache memoizes wrapped in an in-memory LRU store bounded to maxSize
// entries (0 = unbounded), each entry expiring after ttl (0 = no expiry).
func NewCache(wrapped Primitive, keyFn KeyFunc, ttl time.Duration, maxSize int) *Cache {
	return NewCacheWithStore(wrapped, keyFn, ttl, NewMemoryCacheStore(maxSize))
}

// NewCacheWithStore memoizes wrapped in the given store.
func NewCacheWithStore(wrapped Primitive, keyFn KeyFunc, ttl time.Duration, store CacheStore) *Cache {
	if wrapped == nil {
		panic("flow: cache wrapped primitive must not be nil")
	}
	if keyFn == nil {
		panic("flow: cache key function must not be nil")
	}
	if store == nil {
		panic("flow: cache store must not be nil")
	}
	return &Cache{wrapped: wrapped, keyFn: keyFn, ttl: ttl, store: store}
}

func (c *Cache) Name() string { return "cache(" + c.wrapped.Name() + ")" }
func (c *Cache) Type() string { return TypeCache }

func (c *Cache) Execute(ctx context.Context, input any) (any, error) {
	key, err := c.keyFn(ctx, input)
	if err != nil {
		return nil, err
	}
	Annotate(ctx, "cache.key", key)

	if value, hit, getErr := c.store.Get(ctx, key); getErr == nil && hit {
		Annotate(ctx, "cache.hit", true)
		return value, nil
	}
	Annotate(ctx, "cache.hit", false)

	output, err := RunChild(ctx, c.wrapped, input)
	if err != nil {
		return nil, err
	}
	if setErr := c.store.Set(ctx, key, output, c.ttl); setErr != nil {
		Annotate(ctx, "cache.store_error", setErr.Error())
	}
	return output, nil
}

// memoryStore is the default CacheStore: a mutex-guarded map with LRU
// ordering and per-entry TTL. The Cache primitive owns it exclusively.
type memoryStore struct {
	mu      sync.Mutex
	maxSize int
	entries map[string]*list.Element
	order   *list.List // front = most recently used
}

type memoryEntry struct {
	key       string
	value     any
	createdAt time.Time
	ttl       time.Duration
}

var _ CacheStore = (*memoryStore)(nil)

// NewMemoryCacheStore returns an in-memory LRU store bounded to maxSize
// entries; 0 or negative means unbounded.
func NewMemoryCacheStore(maxSize int) CacheStore {
	return &memoryStore{
		maxSize: maxSize,
		entries: make(map[string]*list.Element),
		order:   list.New(),
	}
}

func (s *memoryStore) Get(ctx context.Context, key string) (any, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	elem, ok := s.entries[key]
	if !ok {
		return nil, false, nil
	}
	entry := elem.Value.(*memoryEntry)
	if entry.expired(time.Now()) {
		s.order.Remove(elem)
		delete(s.entries, key)
		return nil, false, nil
	}
	s.order.MoveToFront(elem)
	return entry.value, true, nil
}

func (s *memoryStore) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if elem, ok := s.entries[key]; ok {
		entry := elem.Value.(*memoryEntry)
		entry.value = value
		entry.createdAt = time.Now()
		entry.ttl = ttl
		s.order.MoveToFront(elem)
		return nil
	}

	s.entries[key] = s.order.PushFront(&memoryEntry{
		key:       key,
		value:     value,
		createdAt: time.Now(),
		ttl:       ttl,
	})
	if s.maxSize > 0 && len(s.entries) > s.maxSize {
		oldest := s.order.Back()
		if oldest != nil {
			s.order.Remove(oldest)
			delete(s.entries, oldest.Value.(*memoryEntry).key)
		}
	}
	return nil
}

func (e *memoryEntry) expired(now time.Time) bool {
	return e.ttl > 0 && now.Sub(e.createdAt) >= e.ttl
}
