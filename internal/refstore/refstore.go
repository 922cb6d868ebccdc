// Package refstore remembers which reference id was issued for a webhook delivery,
// so platform retries of the same delivery reuse it.
package refstore

import (
	"context"
	"sync"
	"time"
)

// DefaultTTL is how long a delivery's reference id is remembered.
const DefaultTTL = 72 * time.Hour

// Store returns the reference id recorded for key, or records and returns a new one
// produced by gen. Concurrent calls for the same key agree on a single id.
type Store interface {
	GetOrCreate(ctx context.Context, key string, gen func() string) (string, error)
}

type entry struct {
	id      string
	expires time.Time
}

// maxSweepInterval bounds how long expired keys may linger in a Memory store.
const maxSweepInterval = time.Minute

// Memory is an in-process Store. Expired keys are dropped by a sweep that runs at
// most once per sweep interval, on a miss.
type Memory struct {
	ttl       time.Duration
	interval  time.Duration
	now       func() time.Time
	lastSweep time.Time
	entries   map[string]entry
	mu        sync.Mutex
}

// NewMemory creates a Store that forgets keys after ttl.
func NewMemory(ttl time.Duration) *Memory {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	interval := ttl / 2
	if interval > maxSweepInterval {
		interval = maxSweepInterval
	}
	return &Memory{
		ttl:       ttl,
		interval:  interval,
		now:       time.Now,
		lastSweep: time.Now(),
		entries:   make(map[string]entry),
	}
}

// GetOrCreate implements Store.
func (m *Memory) GetOrCreate(ctx context.Context, key string, gen func() string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	if e, ok := m.entries[key]; ok && now.Before(e.expires) {
		return e.id, nil
	}
	if now.Sub(m.lastSweep) >= m.interval {
		m.sweep(now)
	}

	id := gen()
	m.entries[key] = entry{id: id, expires: now.Add(m.ttl)}
	return id, nil
}

// Len returns the number of live keys.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sweep(m.now())
	return len(m.entries)
}

func (m *Memory) sweep(now time.Time) {
	m.lastSweep = now
	for k, e := range m.entries {
		if !now.Before(e.expires) {
			delete(m.entries, k)
		}
	}
}
