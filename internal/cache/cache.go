// Package cache provides TTL-keyed memoization for query results.
// The memory store works for any value type; an optional Redis store
// persists log entries across sessions. Both are safe for concurrent
// use by an interactive search and a background stream.
package cache

import (
	"sync"
	"time"
)

// Cache is a TTL-keyed store. Expired entries are evicted lazily on
// access; CleanupExpired sweeps eagerly.
type Cache[T any] interface {
	Get(key string) (T, bool)
	Set(key string, value T)
	SetTTL(key string, value T, ttl time.Duration)
	Invalidate(key string)
	Clear()
	CleanupExpired() int
	Len() int
}

type memoryEntry[T any] struct {
	value  T
	expiry time.Time
}

// Memory is an in-process Cache backed by a map and an RWMutex.
type Memory[T any] struct {
	mu         sync.RWMutex
	store      map[string]memoryEntry[T]
	defaultTTL time.Duration
	now        func() time.Time
}

// NewMemory creates a memory cache with the given default TTL.
func NewMemory[T any](defaultTTL time.Duration) *Memory[T] {
	return &Memory[T]{
		store:      make(map[string]memoryEntry[T]),
		defaultTTL: defaultTTL,
		now:        time.Now,
	}
}

// Get returns the live value for key, if any. An expired entry is
// evicted on access so Len stays honest between sweeps.
func (m *Memory[T]) Get(key string) (T, bool) {
	var zero T

	m.mu.RLock()
	entry, ok := m.store[key]
	m.mu.RUnlock()

	if !ok {
		return zero, false
	}
	if !m.now().Before(entry.expiry) {
		m.mu.Lock()
		// Re-check under the write lock: the key may have been
		// refreshed since the read.
		if current, ok := m.store[key]; ok && !m.now().Before(current.expiry) {
			delete(m.store, key)
		}
		m.mu.Unlock()
		return zero, false
	}
	return entry.value, true
}

// Set stores value under key with the default TTL.
func (m *Memory[T]) Set(key string, value T) {
	m.SetTTL(key, value, m.defaultTTL)
}

// SetTTL stores value under key with an explicit TTL.
func (m *Memory[T]) SetTTL(key string, value T, ttl time.Duration) {
	m.mu.Lock()
	m.store[key] = memoryEntry[T]{value: value, expiry: m.now().Add(ttl)}
	m.mu.Unlock()
}

// Invalidate removes key.
func (m *Memory[T]) Invalidate(key string) {
	m.mu.Lock()
	delete(m.store, key)
	m.mu.Unlock()
}

// Clear removes every entry.
func (m *Memory[T]) Clear() {
	m.mu.Lock()
	m.store = make(map[string]memoryEntry[T])
	m.mu.Unlock()
}

// CleanupExpired sweeps expired entries and returns how many it removed.
func (m *Memory[T]) CleanupExpired() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	removed := 0
	for key, entry := range m.store {
		if !now.Before(entry.expiry) {
			delete(m.store, key)
			removed++
		}
	}
	return removed
}

// Len returns the number of stored entries. Expired entries that have
// been neither read nor swept still count.
func (m *Memory[T]) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.store)
}
