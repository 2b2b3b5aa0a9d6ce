package flags

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/walletscope/walletscope/internal/idgen"
	"github.com/walletscope/walletscope/internal/pagination"
)

// MemoryStore is an in-memory flag ledger for development and tests.
type MemoryStore struct {
	mu    sync.RWMutex
	byKey map[string][]*Flag // chain|address → flags in append order
	byID  map[string]*Flag
}

// NewMemoryStore creates an empty in-memory ledger.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byKey: make(map[string][]*Flag),
		byID:  make(map[string]*Flag),
	}
}

func memKey(chain, address string) string {
	return NormalizeKey(chain) + "|" + NormalizeKey(address)
}

func (s *MemoryStore) Append(ctx context.Context, f *Flag) error {
	if err := f.Normalize(); err != nil {
		return err
	}
	if f.ID == "" {
		f.ID = idgen.FlagID()
	}

	cp := *f
	s.mu.Lock()
	defer s.mu.Unlock()
	k := memKey(cp.Chain, cp.Address)
	s.byKey[k] = append(s.byKey[k], &cp)
	s.byID[cp.ID] = &cp
	return nil
}

func (s *MemoryStore) Count(ctx context.Context, chain, address string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byKey[memKey(chain, address)]), nil
}

func (s *MemoryStore) All(ctx context.Context, chain, address string) ([]*Flag, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	src := s.byKey[memKey(chain, address)]
	out := make([]*Flag, 0, len(src))
	for _, f := range src {
		cp := *f
		out = append(out, &cp)
	}
	return out, nil
}

func (s *MemoryStore) List(ctx context.Context, chain, address, cursor string, limit int) (*Page, error) {
	cur, err := pagination.Decode(cursor)
	if err != nil {
		return nil, err
	}
	all, _ := s.All(ctx, chain, address)
	sort.Slice(all, func(i, j int) bool {
		if all[i].FirstSeen.Equal(all[j].FirstSeen) {
			return all[i].ID > all[j].ID
		}
		return all[i].FirstSeen.After(all[j].FirstSeen)
	})

	rows := make([]*Flag, 0, limit+1)
	for _, f := range all {
		if !cur.Before(f.FirstSeen, f.ID) {
			continue
		}
		rows = append(rows, f)
		if len(rows) > limit {
			break
		}
	}
	items, next, more := pagination.ComputePage(rows, limit, flagKey)
	return &Page{Flags: items, NextCursor: next, HasMore: more}, nil
}

func (s *MemoryStore) Get(ctx context.Context, id string) (*Flag, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	f, ok := s.byID[id]
	if !ok {
		return nil, ErrFlagNotFound
	}
	cp := *f
	return &cp, nil
}

func (s *MemoryStore) Delete(ctx context.Context, id string) (*Flag, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.byID[id]
	if !ok {
		return nil, ErrFlagNotFound
	}
	delete(s.byID, id)
	k := memKey(f.Chain, f.Address)
	list := s.byKey[k]
	for i, g := range list {
		if g.ID == id {
			s.byKey[k] = append(list[:i:i], list[i+1:]...)
			break
		}
	}
	cp := *f
	return &cp, nil
}

func flagKey(f *Flag) (time.Time, string) {
	return f.FirstSeen, f.ID
}
