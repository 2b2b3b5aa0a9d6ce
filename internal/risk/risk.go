// Package risk scores wallets from their flag ledger and behaviour signals.
//
// Score is a pure function: every flag contributes a category weight scaled
// by its confidence, behaviour signals add fixed bonuses, and the total is
// clamped to [0,100]. The level is always derived from the score through
// LevelFor and is never stored independently of it.
package risk

import (
	"context"
	"errors"
	"time"

	"github.com/walletscope/walletscope/internal/flags"
)

var ErrAggregateNotFound = errors.New("risk aggregate not found")

// Level buckets a risk score.
type Level string

const (
	LevelLow    Level = "low"
	LevelMedium Level = "medium"
	LevelHigh   Level = "high"
)

// Level boundaries (inclusive upper bounds).
const (
	LowMax    = 30
	MediumMax = 69
)

// LevelFor derives the level for a score.
func LevelFor(score int) Level {
	switch {
	case score <= LowMax:
		return LevelLow
	case score <= MediumMax:
		return LevelMedium
	default:
		return LevelHigh
	}
}

// BehaviorSignals are per-address findings from the analytics pipeline.
type BehaviorSignals struct {
	RapidFundHopping         bool    `json:"rapidFundHopping"`
	MixerProximity           bool    `json:"mixerProximity"`
	ScamClusterExposureScore float64 `json:"scamClusterExposureScore"`
}

// Result is the output of Score.
type Result struct {
	Score int   `json:"riskScore"`
	Level Level `json:"riskLevel"`
}

// WalletRiskAggregate is the persisted risk view of one (chain, address).
type WalletRiskAggregate struct {
	Chain           string          `json:"chain"`
	Address         string          `json:"address"`
	RiskScore       int             `json:"riskScore"`
	RiskLevel       Level           `json:"riskLevel"`
	Flags           []*flags.Flag   `json:"flags"`
	BehaviorSignals BehaviorSignals `json:"behaviorSignals"`
	LastUpdated     time.Time       `json:"lastUpdated"`

	// HasSignals is true when the analytics pipeline has reported on this
	// address, even if every signal is negative.
	HasSignals bool `json:"hasSignals"`
}

// HasInputs reports whether the score is backed by any evidence at all.
// A wallet with no flags and no behaviour report has no meaningful score.
func (a *WalletRiskAggregate) HasInputs() bool {
	return len(a.Flags) > 0 || a.HasSignals
}

// SignalStore holds behaviour signals written by the analytics pipeline.
type SignalStore interface {
	// Get returns the signals and whether any were recorded.
	Get(ctx context.Context, chain, address string) (BehaviorSignals, bool, error)
	Put(ctx context.Context, chain, address string, s BehaviorSignals) error
}

// AggregateStore persists WalletRiskAggregate rows, one per (chain, address).
type AggregateStore interface {
	Upsert(ctx context.Context, agg *WalletRiskAggregate) error
	Get(ctx context.Context, chain, address string) (*WalletRiskAggregate, error)
}
