// Package ingest converts third-party flag payloads (sanctions lists,
// labelling providers, community reports) into canonical flags and submits
// them through the blacklist gate.
package ingest

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/walletscope/walletscope/internal/flags"
	"github.com/walletscope/walletscope/internal/validation"
)

var (
	ErrUnknownKind    = errors.New("unknown batch kind")
	ErrInvalidAddress = errors.New("address is not valid for chain")
)

// Kind names the payload format of a batch.
type Kind string

const (
	KindSanctions Kind = "sanctions"
	KindProvider  Kind = "provider"
	KindCommunity Kind = "community"
)

// SanctionsEntry is one address from a sanctions list such as OFAC SDN.
type SanctionsEntry struct {
	List        string    `json:"list"`
	Program     string    `json:"program,omitempty"`
	Chain       string    `json:"chain"`
	Address     string    `json:"address"`
	EvidenceURL string    `json:"evidenceUrl,omitempty"`
	ListedAt    time.Time `json:"listedAt,omitempty"`
}

// Normalize maps a sanctions entry to a high-confidence sanctioned flag.
// The source is the list id.
func (e SanctionsEntry) Normalize() (*flags.Flag, error) {
	source := strings.TrimSpace(e.List)
	if source == "" {
		source = "sanctions"
	}
	reason := ""
	if p := strings.TrimSpace(e.Program); p != "" {
		reason = "program: " + p
	}
	return build(&flags.Flag{
		Chain:       e.Chain,
		Address:     e.Address,
		Source:      source,
		Category:    flags.Category{Kind: flags.CategorySanctioned},
		Confidence:  flags.ConfidenceHigh,
		EvidenceURL: e.EvidenceURL,
		Reason:      reason,
		FirstSeen:   e.ListedAt,
	})
}

// ProviderLabel is a label asserted by an external intelligence provider.
type ProviderLabel struct {
	Provider   string `json:"provider"`
	Chain      string `json:"chain"`
	Address    string `json:"address"`
	Label      string `json:"label"`
	Confidence string `json:"confidence,omitempty"`
	URL        string `json:"url,omitempty"`
}

// Normalize maps a provider label to a flag. Providers that omit a
// confidence are treated as medium.
func (l ProviderLabel) Normalize() (*flags.Flag, error) {
	conf := flags.ConfidenceMedium
	if strings.TrimSpace(l.Confidence) != "" {
		conf = flags.ParseConfidence(l.Confidence)
	}
	return build(&flags.Flag{
		Chain:       l.Chain,
		Address:     l.Address,
		Source:      l.Provider,
		Category:    flags.ParseCategory(l.Label),
		Confidence:  conf,
		EvidenceURL: l.URL,
	})
}

// CommunityReport is a free-text report relayed from a community channel.
type CommunityReport struct {
	Reporter    string `json:"reporter,omitempty"`
	Chain       string `json:"chain"`
	Address     string `json:"address"`
	Category    string `json:"category,omitempty"`
	Reason      string `json:"reason,omitempty"`
	EvidenceURL string `json:"evidenceUrl,omitempty"`
}

// Normalize maps a community report to a low-confidence flag.
func (r CommunityReport) Normalize() (*flags.Flag, error) {
	return build(&flags.Flag{
		Chain:       r.Chain,
		Address:     r.Address,
		Source:      flags.SourceCommunity,
		Category:    flags.ParseCategory(r.Category),
		Confidence:  flags.ConfidenceLow,
		EvidenceURL: r.EvidenceURL,
		Reason:      r.Reason,
		Flagger:     r.Reporter,
	})
}

// build validates the address in its original case (base58 chains are
// case-sensitive) and then normalizes the flag.
func build(f *flags.Flag) (*flags.Flag, error) {
	chain, address := strings.TrimSpace(f.Chain), strings.TrimSpace(f.Address)
	if errs := validation.Validate(
		validation.Required("chain", chain),
		validation.Required("address", address),
	); len(errs) > 0 {
		return nil, fmt.Errorf("%w: %v", flags.ErrInvalidInput, errs)
	}
	if errs := validation.Validate(
		validation.ValidAddress("address", chain, address),
		validation.MaxLength("evidenceUrl", f.EvidenceURL, validation.MaxEvidenceURLLength),
	); len(errs) > 0 {
		if errs[0].Field == "address" {
			return nil, fmt.Errorf("%w: %s on %s", ErrInvalidAddress, address, chain)
		}
		return nil, fmt.Errorf("%w: %v", flags.ErrInvalidInput, errs)
	}
	if err := f.Normalize(); err != nil {
		return nil, err
	}
	return f, nil
}
