package risk

import (
	"math"
	"strings"

	"github.com/walletscope/walletscope/internal/flags"
)

// Category weights in points.
const (
	WeightSanctioned = 50
	WeightScam       = 25
	WeightGeneric    = 10
)

// Confidence multipliers in tenths (1.0, 0.6, 0.3).
const (
	MultiplierHigh   = 10
	MultiplierMedium = 6
	MultiplierLow    = 3
)

// Behaviour bonuses in points.
const (
	BonusRapidFundHopping = 10
	BonusMixerProximity   = 10
	MaxExposureBonus      = 20
)

const (
	MinScore = 0
	MaxScore = 100
)

// Score computes the bounded risk score for a wallet. It never fails:
// unrecognised confidence and category values fall into the lowest-weight
// branches. Contributions are summed in integer tenths so the result does
// not depend on flag order; the clamped total is rounded half up.
func Score(fs []*flags.Flag, s BehaviorSignals) Result {
	tenths := 0
	for _, f := range fs {
		if f == nil {
			continue
		}
		tenths += categoryWeight(f) * multiplier(f.Confidence)
	}

	if s.RapidFundHopping {
		tenths += BonusRapidFundHopping * 10
	}
	if s.MixerProximity {
		tenths += BonusMixerProximity * 10
	}
	tenths += ExposureBonus(s.ScamClusterExposureScore) * 10

	tenths = min(max(tenths, MinScore*10), MaxScore*10)
	score := (tenths + 5) / 10
	return Result{Score: score, Level: LevelFor(score)}
}

// ExposureBonus converts a cluster exposure score in [0,1] into at most
// MaxExposureBonus points. Out-of-range and NaN inputs are clamped.
func ExposureBonus(exposure float64) int {
	if math.IsNaN(exposure) || exposure <= 0 {
		return 0
	}
	if exposure > 1 {
		exposure = 1
	}
	b := int(math.Floor(exposure * MaxExposureBonus))
	return min(max(b, 0), MaxExposureBonus)
}

// categoryWeight applies the per-flag precedence: sanctions first, then
// scam/phishing, then the generic fallback for everything else.
func categoryWeight(f *flags.Flag) int {
	source := strings.ToLower(f.Source)
	switch {
	case strings.Contains(source, "ofac") || f.Category.Kind == flags.CategorySanctioned:
		return WeightSanctioned
	case f.Category.Kind == flags.CategoryScam || f.Category.Kind == flags.CategoryPhishing ||
		strings.Contains(source, "etherscan"):
		return WeightScam
	default:
		return WeightGeneric
	}
}

func multiplier(c flags.Confidence) int {
	switch flags.ParseConfidence(string(c)) {
	case flags.ConfidenceHigh:
		return MultiplierHigh
	case flags.ConfidenceMedium:
		return MultiplierMedium
	default:
		return MultiplierLow
	}
}
