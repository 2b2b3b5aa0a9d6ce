// Package syncutil provides in-process locking primitives.
package syncutil

import (
	"context"
	"hash/fnv"
)

// DefaultShards is the shard count used by NewKeyedMutex when n < 1.
const DefaultShards = 256

// KeyedMutex is a bounded pool of context-aware locks addressed by string
// key. Distinct keys may share a shard, so holders must not nest locks.
type KeyedMutex struct {
	shards []chan struct{}
}

// NewKeyedMutex creates a KeyedMutex with n shards.
func NewKeyedMutex(n int) *KeyedMutex {
	if n < 1 {
		n = DefaultShards
	}
	m := &KeyedMutex{shards: make([]chan struct{}, n)}
	for i := range m.shards {
		m.shards[i] = make(chan struct{}, 1)
	}
	return m
}

// Lock acquires the lock for key or returns ctx's error. The returned
// function releases it and must be called exactly once.
func (m *KeyedMutex) Lock(ctx context.Context, key string) (func(), error) {
	shard := m.shards[m.index(key)]
	select {
	case shard <- struct{}{}:
		return func() { <-shard }, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// TryLock acquires the lock for key only if it is free.
func (m *KeyedMutex) TryLock(key string) (func(), bool) {
	shard := m.shards[m.index(key)]
	select {
	case shard <- struct{}{}:
		return func() { <-shard }, true
	default:
		return nil, false
	}
}

func (m *KeyedMutex) index(key string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return int(h.Sum32() % uint32(len(m.shards)))
}
