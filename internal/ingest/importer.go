package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/walletscope/walletscope/internal/blacklist"
	"github.com/walletscope/walletscope/internal/flags"
	"github.com/walletscope/walletscope/internal/logging"
)

// MaxBatchEntries caps a single import request.
const MaxBatchEntries = 5000

// Batch is an import document: one payload kind and its raw entries.
type Batch struct {
	Kind    Kind              `json:"kind"`
	Entries []json.RawMessage `json:"entries"`
}

// Rejection explains why one batch entry was skipped.
type Rejection struct {
	Index  int    `json:"index"`
	Reason string `json:"reason"`
}

// Report summarises an import.
type Report struct {
	Kind     Kind        `json:"kind"`
	Accepted int         `json:"accepted"`
	Rejected []Rejection `json:"rejected"`
	// Wallets lists each touched (chain, address) once with its state after
	// the import.
	Wallets []*blacklist.Status `json:"wallets"`
}

// Submitter appends a normalized flag and recomputes the wallet aggregate.
// *blacklist.Gate implements it.
type Submitter interface {
	Submit(ctx context.Context, f *flags.Flag) (*blacklist.Status, error)
}

// Importer normalizes batches and submits every valid entry.
type Importer struct {
	gate Submitter
}

// NewImporter creates an importer that writes through gate.
func NewImporter(gate Submitter) *Importer {
	return &Importer{gate: gate}
}

// Normalize decodes one raw entry of the given kind into a canonical flag.
func Normalize(kind Kind, raw json.RawMessage) (*flags.Flag, error) {
	switch kind {
	case KindSanctions:
		var e SanctionsEntry
		if err := json.Unmarshal(raw, &e); err != nil {
			return nil, fmt.Errorf("%w: %v", flags.ErrInvalidInput, err)
		}
		return e.Normalize()
	case KindProvider:
		var l ProviderLabel
		if err := json.Unmarshal(raw, &l); err != nil {
			return nil, fmt.Errorf("%w: %v", flags.ErrInvalidInput, err)
		}
		return l.Normalize()
	case KindCommunity:
		var r CommunityReport
		if err := json.Unmarshal(raw, &r); err != nil {
			return nil, fmt.Errorf("%w: %v", flags.ErrInvalidInput, err)
		}
		return r.Normalize()
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
}

// Import submits every valid entry of b. Invalid entries are reported and
// skipped; a store failure aborts the import and returns the partial report.
func (im *Importer) Import(ctx context.Context, b *Batch) (*Report, error) {
	kind := Kind(strings.ToLower(strings.TrimSpace(string(b.Kind))))
	switch kind {
	case KindSanctions, KindProvider, KindCommunity:
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, b.Kind)
	}
	if len(b.Entries) > MaxBatchEntries {
		return nil, fmt.Errorf("%w: batch exceeds %d entries", flags.ErrInvalidInput, MaxBatchEntries)
	}

	report := &Report{Kind: kind, Rejected: []Rejection{}, Wallets: []*blacklist.Status{}}
	touched := make(map[string]int)

	for i, raw := range b.Entries {
		f, err := Normalize(kind, raw)
		if err != nil {
			report.Rejected = append(report.Rejected, Rejection{Index: i, Reason: err.Error()})
			continue
		}
		st, err := im.gate.Submit(ctx, f)
		if err != nil {
			return report, fmt.Errorf("submit entry %d: %w", i, err)
		}
		report.Accepted++

		k := st.Chain + "|" + st.Address
		if idx, ok := touched[k]; ok {
			report.Wallets[idx] = st
		} else {
			touched[k] = len(report.Wallets)
			report.Wallets = append(report.Wallets, st)
		}
	}

	logging.L(ctx).Info("flag batch imported",
		"kind", kind, "accepted", report.Accepted,
		"rejected", len(report.Rejected), "wallets", len(report.Wallets))
	return report, nil
}
