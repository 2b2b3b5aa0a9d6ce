// Package flags holds the append-only ledger of accusations raised against
// a (chain, address) pair.
//
// Flags come from users, sanctions lists and provider labels. Every flag is
// stored in canonical form: chain and address lowercased, the category parsed
// into a closed set with an explicit "other" variant, and the confidence
// degraded to low when the source supplied something unrecognised.
package flags

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/walletscope/walletscope/internal/validation"
)

var (
	ErrInvalidInput = errors.New("chain and address are required")
	ErrFlagNotFound = errors.New("flag not found")
)

// Well-known sources.
const (
	SourceUser      = "user"
	SourceCommunity = "community"
)

// Confidence is the weight tier attached to a flag.
type Confidence string

const (
	ConfidenceLow    Confidence = "low"
	ConfidenceMedium Confidence = "medium"
	ConfidenceHigh   Confidence = "high"
)

// ParseConfidence maps a loosely typed confidence string onto a tier.
// Anything unrecognised is treated as low.
func ParseConfidence(s string) Confidence {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "high":
		return ConfidenceHigh
	case "medium", "med":
		return ConfidenceMedium
	default:
		return ConfidenceLow
	}
}

// CategoryKind enumerates the categories the scorer distinguishes.
type CategoryKind string

const (
	CategorySanctioned CategoryKind = "sanctioned"
	CategoryScam       CategoryKind = "scam"
	CategoryPhishing   CategoryKind = "phishing"
	CategoryOther      CategoryKind = "other"
)

// Category is a tagged union: one of the known kinds, or Other carrying the
// raw string the source sent.
type Category struct {
	Kind CategoryKind
	Raw  string
}

// ParseCategory classifies a raw category string. Matching is
// case-insensitive; empty and unknown values become CategoryOther.
func ParseCategory(s string) Category {
	raw := strings.TrimSpace(s)
	switch CategoryKind(strings.ToLower(raw)) {
	case CategorySanctioned:
		return Category{Kind: CategorySanctioned}
	case CategoryScam:
		return Category{Kind: CategoryScam}
	case CategoryPhishing:
		return Category{Kind: CategoryPhishing}
	default:
		return Category{Kind: CategoryOther, Raw: raw}
	}
}

// Other builds an explicit Other category.
func Other(raw string) Category {
	return Category{Kind: CategoryOther, Raw: raw}
}

// String returns the stored form: the kind, or the raw string for Other.
func (c Category) String() string {
	if c.Kind == CategoryOther || c.Kind == "" {
		if c.Raw == "" {
			return string(CategoryOther)
		}
		return c.Raw
	}
	return string(c.Kind)
}

// MarshalJSON encodes the category as a plain string.
func (c Category) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.String())
}

// UnmarshalJSON accepts any string and classifies it.
func (c *Category) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	*c = ParseCategory(s)
	return nil
}

// Flag is a single accusation against an address.
type Flag struct {
	ID          string     `json:"id"`
	Chain       string     `json:"chain"`
	Address     string     `json:"address"`
	Source      string     `json:"source"`
	Category    Category   `json:"category"`
	Confidence  Confidence `json:"confidence"`
	EvidenceURL string     `json:"evidenceUrl,omitempty"`
	Reason      string     `json:"reason,omitempty"`
	Flagger     string     `json:"flagger,omitempty"`
	FirstSeen   time.Time  `json:"firstSeen"`
}

// Normalize lowercases the key fields and fills defaults in place.
// It returns ErrInvalidInput if chain or address is missing.
func (f *Flag) Normalize() error {
	f.Chain = NormalizeKey(f.Chain)
	f.Address = NormalizeKey(f.Address)
	if f.Chain == "" || f.Address == "" {
		return ErrInvalidInput
	}
	f.Source = validation.SanitizeString(strings.ToLower(f.Source), MaxSourceLength)
	f.Flagger = validation.SanitizeString(NormalizeKey(f.Flagger), MaxFlaggerLength)
	f.Reason = validation.SanitizeString(f.Reason, validation.MaxReasonLength)
	f.Confidence = ParseConfidence(string(f.Confidence))
	if f.Category.Kind == "" {
		f.Category = Other(f.Category.Raw)
	}
	f.Category.Raw = validation.SanitizeString(f.Category.Raw, MaxCategoryLength)
	if f.FirstSeen.IsZero() {
		f.FirstSeen = time.Now().UTC()
	}
	return nil
}

// Column widths of the flags table. Normalize cuts loosely typed strings to
// fit rather than rejecting the flag.
const (
	MaxSourceLength   = 64
	MaxCategoryLength = 64
	MaxFlaggerLength  = 128
)

// NormalizeKey trims and lowercases a chain id or address.
func NormalizeKey(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// Page is one page of a wallet's flag ledger.
type Page struct {
	Flags      []*Flag `json:"flags"`
	NextCursor string  `json:"nextCursor,omitempty"`
	HasMore    bool    `json:"hasMore"`
}

// Store is the append-only flag ledger. Implementations must be safe for
// any number of concurrent appenders on the same key.
type Store interface {
	Append(ctx context.Context, f *Flag) error
	Count(ctx context.Context, chain, address string) (int, error)
	All(ctx context.Context, chain, address string) ([]*Flag, error)
	// List returns flags newest first, starting after cursor.
	List(ctx context.Context, chain, address, cursor string, limit int) (*Page, error)
	Get(ctx context.Context, id string) (*Flag, error)
	// Delete is reserved for moderation; callers must recompute aggregates.
	Delete(ctx context.Context, id string) (*Flag, error)
}
