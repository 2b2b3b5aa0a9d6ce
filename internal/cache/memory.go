package cache

import (
	"context"
	"sync"
	"time"
)

type memItem struct {
	entry    Entry
	expireAt time.Time
}

// MemoryBackend is a process-local Backend for development and tests.
type MemoryBackend struct {
	mu      sync.RWMutex
	items   map[string]memItem
	now     func() time.Time
	stopCh  chan struct{}
	stopped bool
}

// NewMemoryBackend creates a memory backend. janitorEvery controls how often
// items past their retention are swept; 0 disables the janitor (expired
// items are still never returned).
func NewMemoryBackend(janitorEvery time.Duration) *MemoryBackend {
	m := &MemoryBackend{
		items:  make(map[string]memItem, 1024),
		now:    time.Now,
		stopCh: make(chan struct{}),
	}
	if janitorEvery > 0 {
		go m.janitor(janitorEvery)
	}
	return m
}

func (m *MemoryBackend) Get(_ context.Context, key string) (*Entry, error) {
	m.mu.RLock()
	it, ok := m.items[key]
	m.mu.RUnlock()
	if !ok || !m.now().Before(it.expireAt) {
		return nil, ErrMiss
	}
	e := it.entry
	return &e, nil
}

func (m *MemoryBackend) Set(_ context.Context, e *Entry, retain time.Duration) error {
	m.mu.Lock()
	m.items[e.Key] = memItem{entry: *e, expireAt: m.now().Add(retain)}
	m.mu.Unlock()
	return nil
}

// Len returns the number of stored items, including unswept expired ones.
func (m *MemoryBackend) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.items)
}

func (m *MemoryBackend) janitor(every time.Duration) {
	t := time.NewTicker(every)
	defer t.Stop()

	for {
		select {
		case <-m.stopCh:
			return
		case <-t.C:
			m.sweep()
		}
	}
}

func (m *MemoryBackend) sweep() {
	now := m.now()
	m.mu.Lock()
	for k, it := range m.items {
		if !now.Before(it.expireAt) {
			delete(m.items, k)
		}
	}
	m.mu.Unlock()
}

// Close stops the janitor (if running).
func (m *MemoryBackend) Close() {
	m.mu.Lock()
	if !m.stopped {
		close(m.stopCh)
		m.stopped = true
	}
	m.mu.Unlock()
}
