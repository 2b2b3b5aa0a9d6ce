// Package socialcredit computes the profile-completeness score.
//
// The score spends a fixed budget: a sign-in base, nine equal tabs, a small
// per-chain bonus and a community rating adjustment. It is unrelated to the
// risk score and has no effect on blacklisting.
package socialcredit

import (
	"github.com/walletscope/walletscope/internal/profile"
)

// Point budget.
const (
	SignInPoints     = 400
	TabPoints        = 43
	TabCount         = 9
	MaxChainBonus    = 8
	MaxTotal         = SignInPoints + TabCount*TabPoints + MaxChainBonus // 795
	RatingBonus      = 1
	RatingPenalty    = -5
	HighRatingMin    = 4.75
	LowRatingMax     = 1.25
	MinRatingsNeeded = 1
)

// Component is one line of the score breakdown.
type Component struct {
	Key      string `json:"key"`
	Points   int    `json:"points"`
	Max      int    `json:"max"`
	Complete bool   `json:"complete"`
}

// Result is the computed social-credit score.
type Result struct {
	Total           int         `json:"total"`
	MaxTotal        int         `json:"maxTotal"`
	Components      []Component `json:"components"`
	DiscordEligible bool        `json:"discordEligible"`
}

// Inputs are the profile facts the score reads.
type Inputs struct {
	SignedIn          bool
	Tabs              profile.Tabs
	ConnectedChains   int
	WalletRatingAvg   float64
	WalletRatingCount int
}

// FromProfile extracts Inputs from a stored profile.
func FromProfile(p *profile.Profile) Inputs {
	return Inputs{
		SignedIn:          p.SignedIn,
		Tabs:              p.Tabs,
		ConnectedChains:   p.ConnectedChains,
		WalletRatingAvg:   p.WalletRatingAvg,
		WalletRatingCount: p.WalletRatingCount,
	}
}

// tabList fixes the order tabs appear in the breakdown.
func tabList(t profile.Tabs) []struct {
	key  string
	done bool
} {
	return []struct {
		key  string
		done bool
	}{
		{"name", t.Name},
		{"bio", t.Bio},
		{"avatar", t.Avatar},
		{"twitter", t.Twitter},
		{"discord", t.Discord},
		{"telegram", t.Telegram},
		{"github", t.Github},
		{"website", t.Website},
		{"email", t.Email},
	}
}

// Compute scores in. Discord eligibility requires sign-in and every tab;
// points alone never grant it.
func Compute(in Inputs) Result {
	components := make([]Component, 0, TabCount+3)

	signIn := Component{Key: "signIn", Max: SignInPoints, Complete: in.SignedIn}
	if in.SignedIn {
		signIn.Points = SignInPoints
	}
	components = append(components, signIn)

	allTabs := true
	for _, tab := range tabList(in.Tabs) {
		c := Component{Key: tab.key, Max: TabPoints, Complete: tab.done}
		if tab.done {
			c.Points = TabPoints
		} else {
			allTabs = false
		}
		components = append(components, c)
	}

	chains := min(max(in.ConnectedChains, 0), MaxChainBonus)
	components = append(components, Component{
		Key:      "connectedChains",
		Points:   chains,
		Max:      MaxChainBonus,
		Complete: chains == MaxChainBonus,
	})

	rating := RatingAdjustment(in.WalletRatingAvg, in.WalletRatingCount)
	components = append(components, Component{
		Key:      "communityRating",
		Points:   rating,
		Max:      RatingBonus,
		Complete: rating == RatingBonus,
	})

	total := 0
	for _, c := range components {
		total += c.Points
	}

	return Result{
		Total:           min(max(total, 0), MaxTotal),
		MaxTotal:        MaxTotal,
		Components:      components,
		DiscordEligible: in.SignedIn && allTabs,
	}
}

// RatingAdjustment returns +1 for a high average, -5 for a low one and 0
// otherwise. Wallets without ratings get no adjustment.
func RatingAdjustment(avg float64, count int) int {
	if count < MinRatingsNeeded {
		return 0
	}
	switch {
	case avg >= HighRatingMin:
		return RatingBonus
	case avg <= LowRatingMax:
		return RatingPenalty
	default:
		return 0
	}
}
