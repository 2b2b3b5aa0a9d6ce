package blacklist

import (
	"context"
	"sync"
	"time"

	"github.com/walletscope/walletscope/internal/flags"
)

// MemoryStore is an in-memory AggregateStore. A single mutex makes every
// Upsert atomic.
type MemoryStore struct {
	mu   sync.Mutex
	aggs map[string]*WalletAggregate
}

// NewMemoryStore creates an empty aggregate store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{aggs: make(map[string]*WalletAggregate)}
}

func key(chain, address string) string {
	return flags.NormalizeKey(chain) + "|" + flags.NormalizeKey(address)
}

func (s *MemoryStore) Get(ctx context.Context, chain, address string) (*WalletAggregate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	agg, ok := s.aggs[key(chain, address)]
	if !ok {
		return nil, ErrAggregateNotFound
	}
	return copyAgg(agg), nil
}

func (s *MemoryStore) Upsert(ctx context.Context, u Update) (*WalletAggregate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := key(u.Chain, u.Address)
	cur, ok := s.aggs[k]
	if !ok {
		cur = &WalletAggregate{
			Chain:   flags.NormalizeKey(u.Chain),
			Address: flags.NormalizeKey(u.Address),
		}
	}

	if !u.SetThreshold && !sameThreshold(cur.FlagThreshold, u.ExpectedThreshold) {
		return nil, ErrThresholdChanged
	}
	if ok && !u.AllowDecrease && cur.FlagsCount > u.FlagsCount {
		return copyAgg(cur), nil
	}
	s.aggs[k] = cur

	cur.FlagsCount = u.FlagsCount
	cur.Blacklisted = u.Blacklisted
	if u.LastFlagger != "" {
		cur.LastFlagger = flags.NormalizeKey(u.LastFlagger)
	}
	if u.SetThreshold {
		cur.FlagThreshold = copyInt(u.ExpectedThreshold)
	}
	cur.UpdatedAt = time.Now().UTC()
	return copyAgg(cur), nil
}

func copyAgg(a *WalletAggregate) *WalletAggregate {
	cp := *a
	cp.FlagThreshold = copyInt(a.FlagThreshold)
	return &cp
}

func copyInt(p *int) *int {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
