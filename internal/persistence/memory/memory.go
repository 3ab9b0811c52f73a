// Package memory provides a capacity-limited in-process storage medium.
package memory

import (
	"context"
	"sort"
	"sync"

	"example.com/activitysync/internal/persistence"
)

// DefaultCapacity mirrors the budget browsers give a single origin.
const DefaultCapacity = 5 * 1024 * 1024

// Medium keeps values in a map guarded by a RWMutex. Usage counts key and value bytes.
type Medium struct {
	mu       sync.RWMutex
	values   map[string][]byte
	used     int64
	capacity int64
}

// New constructs a Medium. A non-positive capacity uses DefaultCapacity.
func New(capacity int64) *Medium {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Medium{values: make(map[string][]byte), capacity: capacity}
}

func (m *Medium) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.values[key]
	if !ok {
		return nil, persistence.ErrKeyNotFound
	}
	return append([]byte(nil), v...), nil
}

func (m *Medium) Set(_ context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	next := m.used + int64(len(key)+len(value))
	if old, ok := m.values[key]; ok {
		next -= int64(len(key) + len(old))
	}
	if next > m.capacity {
		return persistence.ErrQuotaExceeded
	}
	m.values[key] = append([]byte(nil), value...)
	m.used = next
	return nil
}

func (m *Medium) Remove(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if old, ok := m.values[key]; ok {
		m.used -= int64(len(key) + len(old))
		delete(m.values, key)
	}
	return nil
}

// Keys returns every key in lexical order.
func (m *Medium) Keys(_ context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	keys := make([]string, 0, len(m.values))
	for k := range m.values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}

// Capacity returns the byte budget.
func (m *Medium) Capacity() int64 { return m.capacity }

// Used returns the bytes currently held.
func (m *Medium) Used() int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.used
}
