package risk

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/walletscope/walletscope/internal/flags"
	"github.com/walletscope/walletscope/internal/metrics"
	"github.com/walletscope/walletscope/internal/traces"
)

// Service scores wallets on read and persists the resulting aggregate.
type Service struct {
	flags      flags.Store
	signals    SignalStore
	aggregates AggregateStore
	now        func() time.Time
}

// NewService creates a risk service.
func NewService(fs flags.Store, signals SignalStore, aggregates AggregateStore) *Service {
	return &Service{
		flags:      fs,
		signals:    signals,
		aggregates: aggregates,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// Evaluate loads the wallet's flags and behaviour signals, scores them and
// upserts the aggregate. A wallet with no data yields a zero-score aggregate.
func (s *Service) Evaluate(ctx context.Context, chain, address string) (*WalletRiskAggregate, error) {
	chain, address = flags.NormalizeKey(chain), flags.NormalizeKey(address)
	if chain == "" || address == "" {
		return nil, flags.ErrInvalidInput
	}

	ctx, span := traces.StartSpan(ctx, "risk.Evaluate", traces.Chain(chain), traces.Address(address))
	defer span.End()

	fs, err := s.flags.All(ctx, chain, address)
	if err != nil {
		traces.Fail(span, err)
		return nil, fmt.Errorf("load flags: %w", err)
	}
	sig, hasSignals, err := s.signals.Get(ctx, chain, address)
	if err != nil {
		traces.Fail(span, err)
		return nil, fmt.Errorf("load behavior signals: %w", err)
	}
	sig = ClampSignals(sig)

	res := Score(fs, sig)
	metrics.RiskScores.Observe(float64(res.Score))

	if fs == nil {
		fs = []*flags.Flag{}
	}
	agg := &WalletRiskAggregate{
		Chain:           chain,
		Address:         address,
		RiskScore:       res.Score,
		RiskLevel:       res.Level,
		Flags:           fs,
		BehaviorSignals: sig,
		HasSignals:      hasSignals,
		LastUpdated:     s.now(),
	}
	if err := s.aggregates.Upsert(ctx, agg); err != nil {
		traces.Fail(span, err)
		return nil, fmt.Errorf("persist risk aggregate: %w", err)
	}
	return agg, nil
}

// RecordSignals stores behaviour signals reported for a wallet.
func (s *Service) RecordSignals(ctx context.Context, chain, address string, sig BehaviorSignals) error {
	chain, address = flags.NormalizeKey(chain), flags.NormalizeKey(address)
	if chain == "" || address == "" {
		return flags.ErrInvalidInput
	}
	return s.signals.Put(ctx, chain, address, ClampSignals(sig))
}

// ClampSignals forces the exposure score into [0,1].
func ClampSignals(sig BehaviorSignals) BehaviorSignals {
	x := sig.ScamClusterExposureScore
	switch {
	case math.IsNaN(x) || x < 0:
		x = 0
	case x > 1:
		x = 1
	}
	sig.ScamClusterExposureScore = x
	return sig
}
