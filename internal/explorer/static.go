package explorer

import (
	"context"
	"strings"
	"sync"
)

// Static is an in-memory Provider used in demo mode and tests.
type Static struct {
	mu        sync.RWMutex
	labels    map[string]AddressLabel
	txs       map[string][]Transaction
	exchanges map[string][]Exchange
	calls     int
}

// NewStatic returns an empty in-memory provider.
func NewStatic() *Static {
	return &Static{
		labels:    make(map[string]AddressLabel),
		txs:       make(map[string][]Transaction),
		exchanges: make(map[string][]Exchange),
	}
}

func staticKey(chain, address string) string {
	return strings.ToLower(chain) + "|" + strings.ToLower(address)
}

// SetLabel records labels for an address.
func (s *Static) SetLabel(chain string, l AddressLabel) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.labels[staticKey(chain, l.Address)] = l
}

// SetTransactions replaces the transactions for an address.
func (s *Static) SetTransactions(chain, address string, txs []Transaction) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.txs[staticKey(chain, address)] = txs
}

// SetExchanges replaces the exchange list for a chain.
func (s *Static) SetExchanges(chain string, ex []Exchange) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.exchanges[strings.ToLower(chain)] = ex
}

// Calls reports how many provider calls were served.
func (s *Static) Calls() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.calls
}

func (s *Static) Labels(ctx context.Context, chain string, addresses []string) ([]AddressLabel, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	out := make([]AddressLabel, 0, len(addresses))
	for _, a := range addresses {
		if l, ok := s.labels[staticKey(chain, a)]; ok {
			out = append(out, l)
		}
	}
	return out, nil
}

func (s *Static) Transactions(ctx context.Context, chain, address string, limit int) ([]Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	txs := s.txs[staticKey(chain, address)]
	if limit > 0 && len(txs) > limit {
		txs = txs[:limit]
	}
	return append([]Transaction(nil), txs...), nil
}

func (s *Static) Exchanges(ctx context.Context, chain string) ([]Exchange, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	return append([]Exchange(nil), s.exchanges[strings.ToLower(chain)]...), nil
}
