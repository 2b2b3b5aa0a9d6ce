// Package profile stores the per-wallet profile facts the trust, reputation
// and social-credit composers read.
package profile

import (
	"context"
	"errors"
	"strings"
	"time"
)

var (
	ErrProfileNotFound = errors.New("profile not found")
	ErrInvalidAddress  = errors.New("address is required")
)

// Tabs records which profile-completeness tabs are filled in.
type Tabs struct {
	Name     bool `json:"name"`
	Bio      bool `json:"bio"`
	Avatar   bool `json:"avatar"`
	Twitter  bool `json:"twitter"`
	Discord  bool `json:"discord"`
	Telegram bool `json:"telegram"`
	Github   bool `json:"github"`
	Website  bool `json:"website"`
	Email    bool `json:"email"`
}

// Profile is the engine's read model of a user profile.
type Profile struct {
	Address           string    `json:"address"`
	SignedIn          bool      `json:"signedIn"`
	Tabs              Tabs      `json:"tabs"`
	ConnectedChains   int       `json:"connectedChains"`
	VerifiedLinks     int       `json:"verifiedLinks"`
	WalletRatingAvg   float64   `json:"walletRatingAvg"`
	WalletRatingCount int       `json:"walletRatingCount"`
	TxRatingAvg       float64   `json:"txRatingAvg"`
	TxRatingCount     int       `json:"txRatingCount"`
	UpdatedAt         time.Time `json:"updatedAt"`
}

// Store persists profiles keyed by lowercase address.
type Store interface {
	Get(ctx context.Context, address string) (*Profile, error)
	Upsert(ctx context.Context, p *Profile) error
}

// Lookup returns the profile for address, or an empty profile when none
// exists. Missing profiles are a normal state for unknown wallets.
func Lookup(ctx context.Context, s Store, address string) (*Profile, error) {
	p, err := s.Get(ctx, address)
	if errors.Is(err, ErrProfileNotFound) {
		return &Profile{Address: normalize(address)}, nil
	}
	return p, err
}

func normalize(address string) string {
	return strings.ToLower(strings.TrimSpace(address))
}
