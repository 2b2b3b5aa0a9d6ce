// Package explorer fetches chain data (address labels, transactions, known
// exchange wallets) from an external block-explorer aggregator.
package explorer

import (
	"context"
	"errors"
	"strings"
	"time"
)

var (
	ErrUnsupportedChain = errors.New("chain not supported by provider")
	ErrNotFound         = errors.New("not found at provider")
)

// MaxLabelBatch caps the addresses in one Labels call.
const MaxLabelBatch = 100

// AddressLabel is what the provider knows about one address.
type AddressLabel struct {
	Address string   `json:"address"`
	Labels  []string `json:"labels"`
	Entity  string   `json:"entity,omitempty"`
}

// Label is the display form of an AddressLabel: the entity name and the
// primary label as its type.
type Label struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// Display returns the Label for l, or nil when the provider knows nothing
// about the address.
func (l AddressLabel) Display() *Label {
	var typ string
	for _, v := range l.Labels {
		if v = strings.TrimSpace(v); v != "" {
			typ = strings.ToLower(v)
			break
		}
	}
	name := strings.TrimSpace(l.Entity)
	switch {
	case name == "" && typ == "":
		return nil
	case name == "":
		name = typ
	case typ == "":
		typ = "other"
	}
	return &Label{Name: name, Type: typ}
}

// Transaction is one transfer involving the looked-up address.
type Transaction struct {
	Hash      string    `json:"hash"`
	From      string    `json:"from"`
	To        string    `json:"to"`
	Value     string    `json:"value"`
	Asset     string    `json:"asset,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	Failed    bool      `json:"failed,omitempty"`
}

// Exchange is a known centralised-exchange wallet on a chain.
type Exchange struct {
	Name    string `json:"name"`
	Address string `json:"address"`
}

// Provider is the upstream data source. Implementations must be safe for
// concurrent use.
type Provider interface {
	Labels(ctx context.Context, chain string, addresses []string) ([]AddressLabel, error)
	Transactions(ctx context.Context, chain, address string, limit int) ([]Transaction, error)
	Exchanges(ctx context.Context, chain string) ([]Exchange, error)
}
