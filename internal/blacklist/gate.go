package blacklist

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/walletscope/walletscope/internal/flags"
	"github.com/walletscope/walletscope/internal/logging"
	"github.com/walletscope/walletscope/internal/metrics"
	"github.com/walletscope/walletscope/internal/retry"
	"github.com/walletscope/walletscope/internal/syncutil"
	"github.com/walletscope/walletscope/internal/traces"
)

const (
	// A concurrent threshold change invalidates a decision; recompute a few
	// times before giving up.
	maxDecisionAttempts = 4
	decisionRetryDelay  = 5 * time.Millisecond
)

// Gate records flags and maintains the blacklist decision for each wallet.
type Gate struct {
	flags     flags.Store
	store     AggregateStore
	threshold int

	// Serializes recomputes of one wallet within this process. Cross-process
	// races are still settled by the store's monotonic upsert.
	locks *syncutil.KeyedMutex
}

// NewGate creates a Gate. A globalThreshold below 1 falls back to
// DefaultThreshold.
func NewGate(fs flags.Store, store AggregateStore, globalThreshold int) *Gate {
	if globalThreshold < 1 {
		globalThreshold = DefaultThreshold
	}
	return &Gate{
		flags:     fs,
		store:     store,
		threshold: globalThreshold,
		locks:     syncutil.NewKeyedMutex(syncutil.DefaultShards),
	}
}

// Threshold returns the global flag threshold.
func (g *Gate) Threshold() int { return g.threshold }

// RecordFlag appends a user flag and returns the wallet's updated status.
func (g *Gate) RecordFlag(ctx context.Context, chain, address, flagger, reason string) (*Status, error) {
	if strings.TrimSpace(flagger) == "" {
		return nil, fmt.Errorf("%w: flagger is required", flags.ErrInvalidInput)
	}
	return g.Submit(ctx, &flags.Flag{
		Chain:      chain,
		Address:    address,
		Source:     flags.SourceUser,
		Category:   flags.Other(""),
		Confidence: flags.ConfidenceLow,
		Reason:     reason,
		Flagger:    flagger,
	})
}

// Submit appends any normalized flag (user or ingested) and re-derives the
// wallet's count and decision from the ledger.
func (g *Gate) Submit(ctx context.Context, f *flags.Flag) (*Status, error) {
	ctx, span := traces.StartSpan(ctx, "blacklist.Submit",
		traces.Chain(f.Chain), traces.Address(f.Address), traces.FlagSource(f.Source))
	defer span.End()

	if err := f.Normalize(); err != nil {
		return nil, err
	}
	if err := g.flags.Append(ctx, f); err != nil {
		traces.Fail(span, err)
		return nil, fmt.Errorf("append flag: %w", err)
	}
	metrics.FlagsRecordedTotal.WithLabelValues(f.Source).Inc()

	st, err := g.recompute(ctx, f.Chain, f.Address, f.Flagger, false)
	if err != nil {
		traces.Fail(span, err)
		return nil, err
	}
	return st, nil
}

// RemoveFlag deletes a flag from the ledger and recomputes the wallet it
// belonged to. The stored count may go down.
func (g *Gate) RemoveFlag(ctx context.Context, id string) (*Status, error) {
	f, err := g.flags.Delete(ctx, id)
	if err != nil {
		return nil, err
	}
	logging.L(ctx).Info("flag removed", "id", id, "chain", f.Chain, "address", f.Address)
	return g.recompute(ctx, f.Chain, f.Address, "", true)
}

// SetThreshold sets or clears (nil) the wallet-level threshold override and
// re-decides the wallet against it.
func (g *Gate) SetThreshold(ctx context.Context, chain, address string, threshold *int) (*Status, error) {
	chain, address = flags.NormalizeKey(chain), flags.NormalizeKey(address)
	if chain == "" || address == "" {
		return nil, flags.ErrInvalidInput
	}
	if threshold != nil && *threshold < 1 {
		return nil, ErrInvalidThreshold
	}

	unlock, err := g.locks.Lock(ctx, walletKey(chain, address))
	if err != nil {
		return nil, err
	}
	defer unlock()

	count, err := g.flags.Count(ctx, chain, address)
	if err != nil {
		return nil, fmt.Errorf("count flags: %w", err)
	}
	prev, err := g.current(ctx, chain, address)
	if err != nil {
		return nil, err
	}

	agg, err := g.store.Upsert(ctx, Update{
		Chain:             chain,
		Address:           address,
		FlagsCount:        count,
		Blacklisted:       Decide(count, EffectiveThreshold(threshold, g.threshold)),
		ExpectedThreshold: threshold,
		SetThreshold:      true,
		AllowDecrease:     true,
	})
	if err != nil {
		return nil, fmt.Errorf("upsert aggregate: %w", err)
	}
	observeTransition(prev, agg)
	logging.L(ctx).Info("flag threshold updated", "chain", chain, "address", address, "override", threshold)
	return g.status(agg), nil
}

// Status returns the stored flag state of a wallet, with zero values for a
// wallet that has never been flagged.
func (g *Gate) Status(ctx context.Context, chain, address string) (*Status, error) {
	chain, address = flags.NormalizeKey(chain), flags.NormalizeKey(address)
	agg, err := g.current(ctx, chain, address)
	if err != nil {
		return nil, err
	}
	if agg == nil {
		return &Status{Chain: chain, Address: address, EffectiveThreshold: g.threshold}, nil
	}
	return g.status(agg), nil
}

// recompute counts from the ledger and writes count and decision in one
// upsert. It retries when the override changed between read and write.
func (g *Gate) recompute(ctx context.Context, chain, address, flagger string, allowDecrease bool) (*Status, error) {
	unlock, err := g.locks.Lock(ctx, walletKey(chain, address))
	if err != nil {
		return nil, err
	}
	defer unlock()

	var result *WalletAggregate
	err = retry.Do(ctx, maxDecisionAttempts, decisionRetryDelay, func() error {
		prev, err := g.current(ctx, chain, address)
		if err != nil {
			return retry.Permanent(err)
		}
		var override *int
		if prev != nil {
			override = prev.FlagThreshold
		}

		count, err := g.flags.Count(ctx, chain, address)
		if err != nil {
			return retry.Permanent(fmt.Errorf("count flags: %w", err))
		}

		agg, err := g.store.Upsert(ctx, Update{
			Chain:             chain,
			Address:           address,
			FlagsCount:        count,
			Blacklisted:       Decide(count, EffectiveThreshold(override, g.threshold)),
			LastFlagger:       flagger,
			ExpectedThreshold: override,
			AllowDecrease:     allowDecrease,
		})
		if errors.Is(err, ErrThresholdChanged) {
			return err
		}
		if err != nil {
			return retry.Permanent(fmt.Errorf("upsert aggregate: %w", err))
		}
		observeTransition(prev, agg)
		result = agg
		return nil
	})
	if err != nil {
		return nil, err
	}
	return g.status(result), nil
}

func walletKey(chain, address string) string { return chain + ":" + address }

func (g *Gate) current(ctx context.Context, chain, address string) (*WalletAggregate, error) {
	agg, err := g.store.Get(ctx, chain, address)
	if errors.Is(err, ErrAggregateNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load aggregate: %w", err)
	}
	return agg, nil
}

// status re-decides against this gate's threshold, so a stored decision
// made under a different global threshold never leaks out.
func (g *Gate) status(agg *WalletAggregate) *Status {
	effective := EffectiveThreshold(agg.FlagThreshold, g.threshold)
	return &Status{
		Chain:              agg.Chain,
		Address:            agg.Address,
		FlagsCount:         agg.FlagsCount,
		Blacklisted:        Decide(agg.FlagsCount, effective),
		LastFlagger:        agg.LastFlagger,
		FlagThreshold:      agg.FlagThreshold,
		EffectiveThreshold: effective,
	}
}

func observeTransition(prev, next *WalletAggregate) {
	was := prev != nil && prev.Blacklisted
	if was == next.Blacklisted {
		return
	}
	if next.Blacklisted {
		metrics.BlacklistTransitionsTotal.WithLabelValues("blacklisted").Inc()
	} else {
		metrics.BlacklistTransitionsTotal.WithLabelValues("cleared").Inc()
	}
}
