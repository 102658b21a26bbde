// Package cachestore provides flow.CacheStore implementations backed by
// external systems, for sharing cached results across processes.
package cachestore

import (
	"bytes"
	"context"
	"encoding/gob"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/pkorhonen/stitch/pkg/flow"
)

// RedisStore is a flow.CacheStore backed by Redis. Values are
// gob-encoded; concrete types stored through it must be registered with
// encoding/gob by the caller.
//
// It uses a simple key structure:
//
//	<prefix><cache key> => gob-encoded value
type RedisStore struct {
	client *redis.Client
	prefix string
}

// Ensure RedisStore implements the interface.
var _ flow.CacheStore = (*RedisStore)(nil)

// NewRedisStore creates a RedisStore.
// prefix is optional but recommended (e.g. "stitch:cache:").
func NewRedisStore(client *redis.Client, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "stitch:cache:"
	}
	return &RedisStore{
		client: client,
		prefix: prefix,
	}
}

func (s *RedisStore) key(k string) string {
	return s.prefix + k
}

// Get returns the value stored under key. A missing or expired key is a
// plain miss, not an error.
func (s *RedisStore) Get(ctx context.Context, key string) (any, bool, error) {
	data, err := s.client.Get(ctx, s.key(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, err
	}

	v, err := decodeCacheValue(data)
	if err != nil {
		return nil, false, err
	}
	return v, true, nil
}

// Set stores value under key for ttl. A non-positive ttl stores the
// value without expiry.
func (s *RedisStore) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	data, err := encodeCacheValue(value)
	if err != nil {
		return err
	}
	if ttl < 0 {
		ttl = 0
	}
	return s.client.Set(ctx, s.key(key), data, ttl).Err()
}

// encodeCacheValue gob-encodes through an interface wrapper so the
// payload can be decoded without knowing the concrete type up front.
func encodeCacheValue(v any) ([]byte, error) {
	if v == nil {
		return nil, nil
	}
	var buf bytes.Buffer
	var iv = v
	if err := gob.NewEncoder(&buf).Encode(&iv); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decodeCacheValue(data []byte) (any, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var iv any
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&iv); err != nil {
		return nil, err
	}
	return iv, nil
}
