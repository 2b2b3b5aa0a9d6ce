// Package reputation composes user-facing trust and reputation numbers.
//
// Trust is a display score built from verified social links and community
// flags. Reputation blends the inverse of the risk score with the average
// transaction rating. Both are pure functions evaluated at read time.
package reputation

import "math"

// Trust score calibration.
const (
	TrustBase           = 50
	TrustPerLink        = 10
	TrustMaxLinks       = 5
	TrustPenaltyPerFlag = 10
)

// TrustScore maps verified links and flags onto [0,100]. Adding a link never
// lowers the score and adding a flag never raises it.
func TrustScore(verifiedLinks, flagsCount int) int {
	links := min(max(verifiedLinks, 0), TrustMaxLinks)
	flags := max(flagsCount, 0)
	score := TrustBase + links*TrustPerLink - flags*TrustPenaltyPerFlag
	return min(max(score, 0), 100)
}

// Label is the display band of a reputation score.
type Label string

const (
	LabelStrong   Label = "Strong"
	LabelGood     Label = "Good"
	LabelMixed    Label = "Mixed"
	LabelCaution  Label = "Caution"
	LabelHighRisk Label = "High risk signals"
	LabelUnknown  Label = "Unknown"
)

// Blend weights in tenths when both inputs are present (0.7 / 0.3).
const (
	SafetyWeight = 7
	TxWeight     = 3
)

// Reputation is the composed result. Score is nil when there is nothing to
// base it on.
type Reputation struct {
	Score       *int     `json:"score"`
	Label       Label    `json:"label"`
	SafetyScore *float64 `json:"safetyScore,omitempty"`
	TxScore     *float64 `json:"txScore,omitempty"`
}

// Compose blends an optional risk score with transaction ratings.
// The blended value is rounded with math.Round, so 71.5 becomes 72.
func Compose(riskScore *int, txRatingAvg float64, txRatingCount int) Reputation {
	var safety, tx *float64
	if riskScore != nil {
		v := clamp(100-float64(*riskScore), 0, 100)
		safety = &v
	}
	if txRatingCount > 0 && !math.IsNaN(txRatingAvg) {
		v := clamp((txRatingAvg-1)*25, 0, 100)
		tx = &v
	}

	var combined float64
	switch {
	case safety != nil && tx != nil:
		combined = (SafetyWeight**safety + TxWeight**tx) / 10
	case safety != nil:
		combined = *safety
	case tx != nil:
		combined = *tx
	default:
		return Reputation{Label: LabelUnknown}
	}

	score := int(math.Round(clamp(combined, 0, 100)))
	return Reputation{
		Score:       &score,
		Label:       LabelFor(score),
		SafetyScore: safety,
		TxScore:     tx,
	}
}

// LabelFor returns the band for a reputation score.
func LabelFor(score int) Label {
	switch {
	case score >= 80:
		return LabelStrong
	case score >= 60:
		return LabelGood
	case score >= 40:
		return LabelMixed
	case score >= 20:
		return LabelCaution
	default:
		return LabelHighRisk
	}
}

func clamp(v, lo, hi float64) float64 {
	return math.Min(math.Max(v, lo), hi)
}
