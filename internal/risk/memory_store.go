package risk

import (
	"context"
	"sync"

	"github.com/walletscope/walletscope/internal/flags"
)

func walletKey(chain, address string) string {
	return flags.NormalizeKey(chain) + "|" + flags.NormalizeKey(address)
}

// MemoryStore is an in-memory AggregateStore for development and tests.
type MemoryStore struct {
	mu   sync.RWMutex
	aggs map[string]*WalletRiskAggregate
}

// NewMemoryStore creates an in-memory risk aggregate store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{aggs: make(map[string]*WalletRiskAggregate)}
}

func (s *MemoryStore) Upsert(ctx context.Context, agg *WalletRiskAggregate) error {
	cp := copyAggregate(agg)
	cp.Chain = flags.NormalizeKey(cp.Chain)
	cp.Address = flags.NormalizeKey(cp.Address)

	s.mu.Lock()
	s.aggs[walletKey(cp.Chain, cp.Address)] = cp
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, chain, address string) (*WalletRiskAggregate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	agg, ok := s.aggs[walletKey(chain, address)]
	if !ok {
		return nil, ErrAggregateNotFound
	}
	return copyAggregate(agg), nil
}

func copyAggregate(a *WalletRiskAggregate) *WalletRiskAggregate {
	cp := *a
	cp.Flags = make([]*flags.Flag, 0, len(a.Flags))
	for _, f := range a.Flags {
		fc := *f
		cp.Flags = append(cp.Flags, &fc)
	}
	return &cp
}

// MemorySignalStore is an in-memory SignalStore.
type MemorySignalStore struct {
	mu      sync.RWMutex
	signals map[string]BehaviorSignals
}

// NewMemorySignalStore creates an empty in-memory signal store.
func NewMemorySignalStore() *MemorySignalStore {
	return &MemorySignalStore{signals: make(map[string]BehaviorSignals)}
}

func (s *MemorySignalStore) Get(ctx context.Context, chain, address string) (BehaviorSignals, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sig, ok := s.signals[walletKey(chain, address)]
	return sig, ok, nil
}

func (s *MemorySignalStore) Put(ctx context.Context, chain, address string, sig BehaviorSignals) error {
	s.mu.Lock()
	s.signals[walletKey(chain, address)] = sig
	s.mu.Unlock()
	return nil
}
