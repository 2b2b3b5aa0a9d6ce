// Package blacklist derives the blacklisted state of a wallet from its flag
// count and keeps the two consistent under concurrent flag submissions.
//
// Every mutation follows the same sequence: append (or delete) in the flag
// ledger, recount from the ledger, resolve the effective threshold, decide,
// then write count and decision together in a single upsert. Counts are
// never incremented in place.
package blacklist

import (
	"context"
	"errors"
	"time"
)

var (
	ErrAggregateNotFound = errors.New("wallet aggregate not found")
	ErrInvalidThreshold  = errors.New("flag threshold must be at least 1")
	// ErrThresholdChanged is returned by AggregateStore.Upsert when the stored
	// override no longer matches the one the decision was made with.
	ErrThresholdChanged = errors.New("flag threshold changed concurrently")
)

// DefaultThreshold is the global flag threshold when none is configured.
const DefaultThreshold = 5

// WalletAggregate is the flags/blacklist view of one (chain, address).
type WalletAggregate struct {
	Chain         string    `json:"chain"`
	Address       string    `json:"address"`
	FlagsCount    int       `json:"flagsCount"`
	Blacklisted   bool      `json:"blacklisted"`
	LastFlagger   string    `json:"lastFlagger,omitempty"`
	FlagThreshold *int      `json:"flagThreshold,omitempty"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// Update is one atomic write to a WalletAggregate.
type Update struct {
	Chain       string
	Address     string
	FlagsCount  int
	Blacklisted bool
	// LastFlagger is kept unchanged when empty.
	LastFlagger string

	// ExpectedThreshold is the override the decision was computed with. The
	// write is rejected with ErrThresholdChanged if the stored override differs.
	ExpectedThreshold *int
	// SetThreshold replaces the stored override with ExpectedThreshold.
	SetThreshold bool
	// AllowDecrease lets the write lower the stored count. Only moderation
	// paths set it; flag submissions never lower a count.
	AllowDecrease bool
}

// AggregateStore persists WalletAggregate rows.
type AggregateStore interface {
	Get(ctx context.Context, chain, address string) (*WalletAggregate, error)
	// Upsert applies u atomically and returns the stored row. When a newer
	// count is already stored the row is left untouched and returned as is.
	Upsert(ctx context.Context, u Update) (*WalletAggregate, error)
}

// EffectiveThreshold resolves a wallet override against the global default.
func EffectiveThreshold(override *int, global int) int {
	if override != nil {
		return *override
	}
	return global
}

// Decide reports whether a wallet with count flags is blacklisted.
func Decide(count, threshold int) bool {
	return count >= threshold
}

// Status is the authoritative flag state of a wallet.
type Status struct {
	Chain              string `json:"chain"`
	Address            string `json:"address"`
	FlagsCount         int    `json:"flagsCount"`
	Blacklisted        bool   `json:"blacklisted"`
	LastFlagger        string `json:"lastFlagger"`
	FlagThreshold      *int   `json:"flagThreshold,omitempty"`
	EffectiveThreshold int    `json:"effectiveThreshold"`
}

func sameThreshold(a, b *int) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
