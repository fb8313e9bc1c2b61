// Package querycache records which query signatures had their live results
// persisted recently. A warm signature lets discovery skip the live source
// and serve the cached copy instead.
package querycache

import (
	"context"
	"sync"
	"time"
)

// Cache is the warm-query marker store.
type Cache interface {
	IsWarm(ctx context.Context, signature string) (bool, error)
	MarkWarm(ctx context.Context, signature string) error
	Invalidate(ctx context.Context, signature string) error
	// Flush forgets every signature.
	Flush(ctx context.Context) error
}

// ─── Memory ──────────────────────────────────────────────────────────────────

// Memory is a process-local Cache.
type Memory struct {
	mu      sync.Mutex
	ttl     time.Duration
	now     func() time.Time
	entries map[string]time.Time
}

// NewMemory returns a Memory cache whose marks live for ttl.
func NewMemory(ttl time.Duration) *Memory {
	return &Memory{ttl: ttl, now: time.Now, entries: make(map[string]time.Time)}
}

// WithClock overrides the clock. Intended for tests.
func (m *Memory) WithClock(now func() time.Time) *Memory {
	m.now = now
	return m
}

func (m *Memory) IsWarm(_ context.Context, signature string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	exp, ok := m.entries[signature]
	if !ok {
		return false, nil
	}
	if !m.now().Before(exp) {
		delete(m.entries, signature)
		return false, nil
	}
	return true, nil
}

func (m *Memory) MarkWarm(_ context.Context, signature string) error {
	if m.ttl <= 0 {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	for k, exp := range m.entries {
		if !now.Before(exp) {
			delete(m.entries, k)
		}
	}
	m.entries[signature] = now.Add(m.ttl)
	return nil
}

func (m *Memory) Invalidate(_ context.Context, signature string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, signature)
	return nil
}

func (m *Memory) Flush(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = make(map[string]time.Time)
	return nil
}
