package profile

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is an in-memory profile store.
type MemoryStore struct {
	mu       sync.RWMutex
	profiles map[string]*Profile
}

// NewMemoryStore creates an empty profile store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{profiles: make(map[string]*Profile)}
}

func (s *MemoryStore) Get(ctx context.Context, address string) (*Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.profiles[normalize(address)]
	if !ok {
		return nil, ErrProfileNotFound
	}
	cp := *p
	return &cp, nil
}

func (s *MemoryStore) Upsert(ctx context.Context, p *Profile) error {
	addr := normalize(p.Address)
	if addr == "" {
		return ErrInvalidAddress
	}
	cp := *p
	cp.Address = addr
	if cp.UpdatedAt.IsZero() {
		cp.UpdatedAt = time.Now().UTC()
	}

	s.mu.Lock()
	s.profiles[addr] = &cp
	s.mu.Unlock()
	return nil
}
