// Package wallet composes the per-wallet views served to clients: risk
// profile, reputation and the combined summary. Risk evaluation is memoised
// briefly; flag counts and blacklist state are always read live.
package wallet

import (
	"context"
	"fmt"
	"time"

	"github.com/walletscope/walletscope/internal/blacklist"
	"github.com/walletscope/walletscope/internal/cache"
	"github.com/walletscope/walletscope/internal/flags"
	"github.com/walletscope/walletscope/internal/profile"
	"github.com/walletscope/walletscope/internal/reputation"
	"github.com/walletscope/walletscope/internal/risk"
)

// SummaryTTL bounds how long a risk evaluation is reused.
const SummaryTTL = 15 * time.Second

// riskVersion is part of the cache key; bump it when WalletRiskAggregate
// changes shape.
const riskVersion = 1

// Evaluator scores a wallet from its stored inputs.
type Evaluator interface {
	Evaluate(ctx context.Context, chain, address string) (*risk.WalletRiskAggregate, error)
}

// StatusReader returns the live flag/blacklist state of a wallet.
type StatusReader interface {
	Status(ctx context.Context, chain, address string) (*blacklist.Status, error)
}

// ReputationView is the response of the reputation endpoint.
type ReputationView struct {
	Chain         string                `json:"chain"`
	Address       string                `json:"address"`
	Reputation    reputation.Reputation `json:"reputation"`
	TrustScore    int                   `json:"trustScore"`
	VerifiedLinks int                   `json:"verifiedLinks"`
	FlagsCount    int                   `json:"flagsCount"`
	TxRatingAvg   float64               `json:"txRatingAvg"`
	TxRatingCount int                   `json:"txRatingCount"`
	Attestation   *reputation.Signature `json:"attestation,omitempty"`
}

// Summary is everything the wallet page needs in one read.
type Summary struct {
	Chain       string                    `json:"chain"`
	Address     string                    `json:"address"`
	Risk        *risk.WalletRiskAggregate `json:"risk"`
	Reputation  *ReputationView           `json:"reputation"`
	Blacklist   *blacklist.Status         `json:"blacklist"`
	GeneratedAt time.Time                 `json:"generatedAt"`
}

// Service builds wallet views.
type Service struct {
	evaluator Evaluator
	status    StatusReader
	profiles  profile.Store
	signer    *reputation.Signer
	risk      *cache.ReadThrough[*risk.WalletRiskAggregate]
	now       func() time.Time
}

// NewService creates a wallet service. signer may be nil, in which case
// reputation views are not attested.
func NewService(evaluator Evaluator, status StatusReader, profiles profile.Store, backend cache.Backend, signer *reputation.Signer, opts ...cache.Option) *Service {
	return &Service{
		evaluator: evaluator,
		status:    status,
		profiles:  profiles,
		signer:    signer,
		risk:      cache.NewReadThrough[*risk.WalletRiskAggregate]("wallet_risk", backend, opts...),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// RiskProfile returns the risk aggregate, reusing an evaluation younger
// than SummaryTTL.
func (s *Service) RiskProfile(ctx context.Context, chain, address string) (*risk.WalletRiskAggregate, error) {
	chain, address = flags.NormalizeKey(chain), flags.NormalizeKey(address)
	if chain == "" || address == "" {
		return nil, flags.ErrInvalidInput
	}
	key := cache.Key("risk", riskVersion, chain, address)
	return s.risk.GetOrCompute(ctx, key, SummaryTTL, func(ctx context.Context) (*risk.WalletRiskAggregate, error) {
		return s.evaluator.Evaluate(ctx, chain, address)
	})
}

// Reputation composes reputation and trust for a wallet. The risk input is
// omitted when the wallet has no flags and no behaviour report.
func (s *Service) Reputation(ctx context.Context, chain, address string) (*ReputationView, error) {
	agg, err := s.RiskProfile(ctx, chain, address)
	if err != nil {
		return nil, err
	}
	st, err := s.status.Status(ctx, agg.Chain, agg.Address)
	if err != nil {
		return nil, fmt.Errorf("load flag status: %w", err)
	}
	return s.reputation(ctx, agg, st)
}

// Summary returns risk, reputation and live blacklist state together.
func (s *Service) Summary(ctx context.Context, chain, address string) (*Summary, error) {
	agg, err := s.RiskProfile(ctx, chain, address)
	if err != nil {
		return nil, err
	}
	st, err := s.status.Status(ctx, agg.Chain, agg.Address)
	if err != nil {
		return nil, fmt.Errorf("load flag status: %w", err)
	}
	rep, err := s.reputation(ctx, agg, st)
	if err != nil {
		return nil, err
	}
	return &Summary{
		Chain:       agg.Chain,
		Address:     agg.Address,
		Risk:        agg,
		Reputation:  rep,
		Blacklist:   st,
		GeneratedAt: s.now(),
	}, nil
}

func (s *Service) reputation(ctx context.Context, agg *risk.WalletRiskAggregate, st *blacklist.Status) (*ReputationView, error) {
	p, err := profile.Lookup(ctx, s.profiles, agg.Address)
	if err != nil {
		return nil, fmt.Errorf("load profile: %w", err)
	}

	var score *int
	if agg.HasInputs() {
		v := agg.RiskScore
		score = &v
	}

	view := &ReputationView{
		Chain:         agg.Chain,
		Address:       agg.Address,
		Reputation:    reputation.Compose(score, p.TxRatingAvg, p.TxRatingCount),
		TrustScore:    reputation.TrustScore(p.VerifiedLinks, st.FlagsCount),
		VerifiedLinks: p.VerifiedLinks,
		FlagsCount:    st.FlagsCount,
		TxRatingAvg:   p.TxRatingAvg,
		TxRatingCount: p.TxRatingCount,
	}
	sig, err := s.signer.Sign(struct {
		Chain      string                `json:"chain"`
		Address    string                `json:"address"`
		Reputation reputation.Reputation `json:"reputation"`
		TrustScore int                   `json:"trustScore"`
	}{view.Chain, view.Address, view.Reputation, view.TrustScore})
	if err != nil {
		return nil, fmt.Errorf("sign reputation: %w", err)
	}
	view.Attestation = sig
	return view, nil
}
