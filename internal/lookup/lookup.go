// Package lookup serves explorer-backed reads (address labels, wallet
// transactions, exchange lists) through stale-tolerant caches so a slow or
// failing provider degrades to recently served data.
package lookup

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/walletscope/walletscope/internal/cache"
	"github.com/walletscope/walletscope/internal/explorer"
	"github.com/walletscope/walletscope/internal/validation"
)

// Cache lifetimes per lookup.
const (
	LabelsTTL       = 60 * time.Second
	TransactionsTTL = 120 * time.Second
	ExchangesTTL    = 10 * time.Minute

	// StaleWindow is how long past its TTL an entry may stand in for a
	// failing provider.
	StaleWindow = 30 * time.Minute

	DefaultTxLimit = 25
	MaxTxLimit     = 100
)

// Key versions. Bump when a payload shape changes.
const (
	labelsVersion       = 2
	transactionsVersion = 1
	exchangesVersion    = 1
)

var (
	ErrNoAddresses    = errors.New("at least one address is required")
	ErrTooManyAddress = fmt.Errorf("at most %d addresses per lookup", explorer.MaxLabelBatch)
	ErrInvalidAddress = errors.New("invalid address for chain")
)

// LabelMap maps every requested address (lowercased) to its label, or nil
// when the provider has none.
type LabelMap map[string]*explorer.Label

// Service runs lookups against a Provider through per-kind caches.
type Service struct {
	provider     explorer.Provider
	labels       *cache.StaleTolerant[LabelMap]
	transactions *cache.StaleTolerant[[]explorer.Transaction]
	exchanges    *cache.StaleTolerant[[]explorer.Exchange]
}

// NewService wires the three lookup caches onto backend.
func NewService(provider explorer.Provider, backend cache.Backend, opts ...cache.Option) *Service {
	return &Service{
		provider:     provider,
		labels:       cache.NewStaleTolerant[LabelMap]("labels", backend, StaleWindow, opts...),
		transactions: cache.NewStaleTolerant[[]explorer.Transaction]("transactions", backend, StaleWindow, opts...),
		exchanges:    cache.NewStaleTolerant[[]explorer.Exchange]("exchanges", backend, StaleWindow, opts...),
	}
}

// Labels looks up labels for a set of addresses on one chain. The cache key
// depends on the set, not on its order or case.
func (s *Service) Labels(ctx context.Context, chain string, addresses []string) (cache.Result[LabelMap], error) {
	addrs, err := cleanAddresses(chain, addresses)
	if err != nil {
		return cache.Result[LabelMap]{}, err
	}
	chain = strings.ToLower(chain)
	key := cache.Key("labels", labelsVersion, chain, cache.AddressSet(addrs))
	return s.labels.GetOrCompute(ctx, key, LabelsTTL, func(ctx context.Context) (LabelMap, error) {
		found, err := s.provider.Labels(ctx, chain, addrs)
		if err != nil {
			return nil, err
		}
		return buildLabelMap(addrs, found), nil
	})
}

func buildLabelMap(addrs []string, found []explorer.AddressLabel) LabelMap {
	out := make(LabelMap, len(addrs))
	for _, a := range addrs {
		out[strings.ToLower(a)] = nil
	}
	for _, l := range found {
		k := strings.ToLower(l.Address)
		if _, requested := out[k]; requested {
			out[k] = l.Display()
		}
	}
	return out
}

// Transactions returns recent transactions for an address. limit is clamped
// to [1, MaxTxLimit].
func (s *Service) Transactions(ctx context.Context, chain, address string, limit int) (cache.Result[[]explorer.Transaction], error) {
	if limit <= 0 {
		limit = DefaultTxLimit
	}
	limit = min(limit, MaxTxLimit)
	chain = strings.ToLower(chain)
	key := cache.Key("transactions", transactionsVersion, chain, address, fmt.Sprint(limit))
	return s.transactions.GetOrCompute(ctx, key, TransactionsTTL, func(ctx context.Context) ([]explorer.Transaction, error) {
		return s.provider.Transactions(ctx, chain, address, limit)
	})
}

// Exchanges returns the known exchange wallets on a chain.
func (s *Service) Exchanges(ctx context.Context, chain string) (cache.Result[[]explorer.Exchange], error) {
	chain = strings.ToLower(chain)
	key := cache.Key("exchanges", exchangesVersion, chain)
	return s.exchanges.GetOrCompute(ctx, key, ExchangesTTL, func(ctx context.Context) ([]explorer.Exchange, error) {
		return s.provider.Exchanges(ctx, chain)
	})
}

func cleanAddresses(chain string, addresses []string) ([]string, error) {
	seen := make(map[string]bool, len(addresses))
	out := make([]string, 0, len(addresses))
	for _, a := range addresses {
		a = strings.TrimSpace(a)
		if a == "" {
			continue
		}
		if !validation.IsValidAddress(chain, a) {
			return nil, fmt.Errorf("%w: %s", ErrInvalidAddress, a)
		}
		if k := strings.ToLower(a); !seen[k] {
			seen[k] = true
			out = append(out, a)
		}
	}
	switch {
	case len(out) == 0:
		return nil, ErrNoAddresses
	case len(out) > explorer.MaxLabelBatch:
		return nil, ErrTooManyAddress
	}
	return out, nil
}
