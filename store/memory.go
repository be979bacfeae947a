package store

import (
	"context"
	"fmt"
	"time"

	cache "github.com/patrickmn/go-cache"
)

const memoryCleanupInterval = time.Minute

// Memory is an in-process balance store with per-key expiry. It stands in
// for Redis when none is configured.
type Memory struct {
	cache *cache.Cache
}

func NewMemory() *Memory {
	return &Memory{
		cache: cache.New(cache.NoExpiration, memoryCleanupInterval),
	}
}

func (m *Memory) Get(_ context.Context, key string) (int64, bool, error) {
	obj, found := m.cache.Get(key)
	if !found {
		return 0, false, nil
	}
	value, ok := obj.(int64)
	if !ok {
		return 0, false, fmt.Errorf("%w: %s holds %T", ErrCorruptValue, key, obj)
	}
	return value, true, nil
}

func (m *Memory) Set(_ context.Context, key string, value int64, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = cache.NoExpiration
	}
	m.cache.Set(key, value, ttl)
	return nil
}

func (m *Memory) Delete(_ context.Context, key string) error {
	m.cache.Delete(key)
	return nil
}

// Flush drops every key.
func (m *Memory) Flush() {
	m.cache.Flush()
}
