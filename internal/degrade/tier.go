package degrade

import "fmt"

// Tier is an ordinal quality bucket. The numeric value is the persisted
// quality_class and the class index predicted by the model.
type Tier int

const (
	TierHigh Tier = iota
	TierGood
	TierModerate
	TierPoor
	TierVeryPoor
)

// NumTiers is the number of quality classes.
const NumTiers = 5

var tierNames = [NumTiers]string{"High", "Good", "Moderate", "Poor", "Very Poor"}

var tierSlugs = [NumTiers]string{"high", "good", "moderate", "poor", "very_poor"}

// Lower score bound of each tier, inclusive.
var tierFloors = [NumTiers]float64{0.8, 0.6, 0.4, 0.2, 0.0}

// AllTiers lists the tiers from best to worst.
func AllTiers() []Tier {
	return []Tier{TierHigh, TierGood, TierModerate, TierPoor, TierVeryPoor}
}

// TierNames returns the class names in class index order.
func TierNames() []string {
	return tierNames[:]
}

// TierForScore maps a score to its tier. Boundary values belong to the
// higher tier and 1.0 is High. Scores outside [0, 1] are clamped.
func TierForScore(score float64) Tier {
	for i, floor := range tierFloors {
		if score >= floor {
			return Tier(i)
		}
	}
	return TierVeryPoor
}

// TierFromIndex validates a class index.
func TierFromIndex(idx int) (Tier, error) {
	if idx < 0 || idx >= NumTiers {
		return 0, fmt.Errorf("quality class index %d out of range [0, %d)", idx, NumTiers)
	}
	return Tier(idx), nil
}

// String returns the display name, e.g. "Very Poor".
func (t Tier) String() string {
	if t < 0 || int(t) >= NumTiers {
		return fmt.Sprintf("Tier(%d)", int(t))
	}
	return tierNames[t]
}

// Slug returns the identifier used in configuration and file names.
func (t Tier) Slug() string {
	if t < 0 || int(t) >= NumTiers {
		return ""
	}
	return tierSlugs[t]
}

// Range returns the [lo, hi) score range of the tier. High reports hi as 1.0
// and includes it.
func (t Tier) Range() (lo, hi float64) {
	if t < 0 || int(t) >= NumTiers {
		return 0, 0
	}
	lo = tierFloors[t]
	if t == TierHigh {
		return lo, 1.0
	}
	return lo, tierFloors[t-1]
}
