// Package cache provides the TTL caches backing tenant lookups: an
// in-process implementation and a Redis-backed one. Both absorb backend
// trouble silently; a cache problem must never fail a request.
package cache

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/goliatone/go-tenant/core"
)

type memoryEntry struct {
	value   any
	expires time.Time
}

// Memory is a process-local TTL cache. The clock is injectable so expiry is
// testable without sleeping.
type Memory struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
	now     func() time.Time
}

func NewMemory() *Memory {
	return &Memory{entries: map[string]memoryEntry{}, now: time.Now}
}

// WithClock overrides the time source.
func (m *Memory) WithClock(now func() time.Time) *Memory {
	if m != nil && now != nil {
		m.now = now
	}
	return m
}

func (m *Memory) Get(_ context.Context, key string) core.CacheEntry {
	if m == nil {
		return core.CacheEntry{}
	}
	m.mu.RLock()
	entry, ok := m.entries[key]
	m.mu.RUnlock()
	if !ok {
		return core.CacheEntry{}
	}
	if !entry.expires.IsZero() && m.now().After(entry.expires) {
		m.mu.Lock()
		delete(m.entries, key)
		m.mu.Unlock()
		return core.CacheEntry{}
	}
	return core.CacheEntry{Value: entry.value, Found: true}
}

func (m *Memory) Set(_ context.Context, key string, value any, ttl time.Duration) {
	if m == nil || strings.TrimSpace(key) == "" {
		return
	}
	entry := memoryEntry{value: value}
	if ttl > 0 {
		entry.expires = m.now().Add(ttl)
	}
	m.mu.Lock()
	m.entries[key] = entry
	m.mu.Unlock()
}

func (m *Memory) Delete(_ context.Context, key string) {
	if m == nil {
		return
	}
	m.mu.Lock()
	delete(m.entries, key)
	m.mu.Unlock()
}

func (m *Memory) Clear(_ context.Context) {
	if m == nil {
		return
	}
	m.mu.Lock()
	m.entries = map[string]memoryEntry{}
	m.mu.Unlock()
}

func (m *Memory) InvalidateByPrefix(_ context.Context, prefix string) {
	if m == nil || prefix == "" {
		return
	}
	m.mu.Lock()
	for key := range m.entries {
		if strings.HasPrefix(key, prefix) {
			delete(m.entries, key)
		}
	}
	m.mu.Unlock()
}

var _ core.CacheService = (*Memory)(nil)
