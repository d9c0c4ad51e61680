package synth

import (
	"fmt"
	"math/rand/v2"

	"github.com/tphakala/docquality/internal/degrade"
	"github.com/tphakala/docquality/internal/errors"
)

// Distribution draws one value for a degradation field. Boolean fields are
// set when the value is non-zero; integer fields truncate.
type Distribution interface {
	Sample(rng *rand.Rand) float64
}

// Uniform draws from [Lo, Hi).
type Uniform struct{ Lo, Hi float64 }

func (u Uniform) Sample(rng *rand.Rand) float64 { return u.Lo + rng.Float64()*(u.Hi-u.Lo) }

// IntRange draws an integer from [Lo, Hi], both inclusive.
type IntRange struct{ Lo, Hi int }

func (r IntRange) Sample(rng *rand.Rand) float64 {
	if r.Hi <= r.Lo {
		return float64(r.Lo)
	}
	return float64(r.Lo + rng.IntN(r.Hi-r.Lo+1))
}

// Constant always yields the same value.
type Constant float64

func (c Constant) Sample(*rand.Rand) float64 { return float64(c) }

// OneOf picks one of its distributions uniformly and samples it.
type OneOf []Distribution

func (o OneOf) Sample(rng *rand.Rand) float64 {
	return o[rng.IntN(len(o))].Sample(rng)
}

// Always is the inclusion probability of a rule that is never skipped.
const Always = 1.0

// Rule sets one field with the given probability.
type Rule struct {
	Field       string
	Dist        Distribution
	Probability float64
}

// fieldSetters maps the snake_case field names to Params fields.
var fieldSetters = map[string]func(*degrade.Params, float64){
	"blur_radius":         func(p *degrade.Params, v float64) { p.BlurRadius = v },
	"noise_level":         func(p *degrade.Params, v float64) { p.NoiseLevel = v },
	"compression_quality": func(p *degrade.Params, v float64) { p.CompressionQuality = int(v) },
	"brightness_factor":   func(p *degrade.Params, v float64) { p.BrightnessFactor = v },
	"contrast_factor":     func(p *degrade.Params, v float64) { p.ContrastFactor = v },
	"shadow_intensity":    func(p *degrade.Params, v float64) { p.ShadowIntensity = v },
	"fold_intensity":      func(p *degrade.Params, v float64) { p.FoldIntensity = v },
	"smear_intensity":     func(p *degrade.Params, v float64) { p.SmearIntensity = v },
	"skew_angle":          func(p *degrade.Params, v float64) { p.SkewAngle = v },
	"coffee_stain":        func(p *degrade.Params, v float64) { p.CoffeeStain = v != 0 },
	"crumple_factor":      func(p *degrade.Params, v float64) { p.CrumpleFactor = v },
	"jpeg_artifacts":      func(p *degrade.Params, v float64) { p.JPEGArtifacts = v },
	"water_damage":        func(p *degrade.Params, v float64) { p.WaterDamage = v != 0 },
	"highlighting":        func(p *degrade.Params, v float64) { p.Highlighting = v },
	"motion_blur":         func(p *degrade.Params, v float64) { p.MotionBlur = v },
	"lens_distortion":     func(p *degrade.Params, v float64) { p.LensDistortion = v },
	"glare_spots":         func(p *degrade.Params, v float64) { p.GlareSpots = int(v) },
	"low_light_noise":     func(p *degrade.Params, v float64) { p.LowLightNoise = v },
	"perspective_warp":    func(p *degrade.Params, v float64) { p.PerspectiveWarp = v },
	"finger_shadow":       func(p *degrade.Params, v float64) { p.FingerShadow = v != 0 },
	"partial_capture":     func(p *degrade.Params, v float64) { p.PartialCapture = v },
	"over_exposure":       func(p *degrade.Params, v float64) { p.OverExposure = v },
}

// base returns the rules every tier starts with.
func base(blur, noise Distribution, quality IntRange, skew float64, factor Distribution) []Rule {
	return []Rule{
		{"blur_radius", blur, Always},
		{"compression_quality", quality, Always},
		{"skew_angle", Uniform{-skew, skew}, Always},
		{"brightness_factor", factor, Always},
		{"contrast_factor", factor, Always},
		{"noise_level", noise, Always},
	}
}

// DefaultTierWeights is the share of variants drawn from each tier, in tier order.
var DefaultTierWeights = [degrade.NumTiers]float64{0.15, 0.35, 0.30, 0.15, 0.05}

// DefaultTierRules is the degradation table for each tier.
var DefaultTierRules = map[degrade.Tier][]Rule{
	degrade.TierHigh: base(Uniform{0, 0.5}, Uniform{0, 5}, IntRange{90, 95}, 2, Uniform{0.95, 1.05}),

	degrade.TierGood: append(base(Uniform{0.5, 1.5}, Uniform{5, 15}, IntRange{80, 90}, 5, Uniform{0.85, 1.15}),
		Rule{"glare_spots", Constant(1), 0.3},
		Rule{"shadow_intensity", Uniform{0.1, 0.2}, 0.2},
	),

	degrade.TierModerate: append(base(Uniform{1, 3}, Uniform{10, 30}, IntRange{65, 80}, 10, Uniform{0.7, 1.3}),
		Rule{"shadow_intensity", Uniform{0.1, 0.3}, Always},
		Rule{"motion_blur", Uniform{2, 5}, 0.4},
		Rule{"glare_spots", IntRange{1, 2}, 0.3},
		Rule{"perspective_warp", Uniform{0.1, 0.2}, 0.3},
		Rule{"finger_shadow", Constant(1), 0.2},
	),

	degrade.TierPoor: append(base(Uniform{2, 5}, Uniform{20, 50}, IntRange{50, 70}, 20, Uniform{0.5, 1.5}),
		Rule{"shadow_intensity", Uniform{0.2, 0.5}, Always},
		Rule{"motion_blur", Uniform{3, 8}, Always},
		Rule{"glare_spots", IntRange{2, 4}, 0.5},
		Rule{"perspective_warp", Uniform{0.2, 0.4}, 0.4},
		Rule{"low_light_noise", Uniform{30, 60}, 0.3},
		Rule{"partial_capture", Uniform{0.05, 0.15}, 0.3},
		Rule{"fold_intensity", Uniform{0.3, 0.6}, 0.3},
	),

	degrade.TierVeryPoor: append(base(Uniform{4, 8}, Uniform{40, 80}, IntRange{30, 50}, 30,
		OneOf{Uniform{0.3, 0.5}, Uniform{1.5, 2.0}}),
		Rule{"shadow_intensity", Uniform{0.4, 0.7}, Always},
		Rule{"motion_blur", Uniform{5, 15}, Always},
		Rule{"glare_spots", IntRange{3, 6}, Always},
		Rule{"perspective_warp", Uniform{0.3, 0.5}, Always},
		Rule{"low_light_noise", Uniform{50, 100}, Always},
		Rule{"partial_capture", Uniform{0.1, 0.3}, 0.5},
		Rule{"water_damage", Constant(1), 0.4},
		Rule{"crumple_factor", Uniform{0.5, 0.8}, 0.4},
		Rule{"over_exposure", Uniform{0.5, 0.8}, 0.3},
	),
}

// Sampler draws variant tiers and degradation parameters.
type Sampler struct {
	weights [degrade.NumTiers]float64
	total   float64
	rules   map[degrade.Tier][]Rule
}

// NewSampler checks that every rule names a known field and that the
// weights are usable.
func NewSampler(weights [degrade.NumTiers]float64, rules map[degrade.Tier][]Rule) (*Sampler, error) {
	s := &Sampler{weights: weights, rules: rules}
	for i, w := range weights {
		if w < 0 {
			return nil, errors.Newf("tier %s has negative weight %g", degrade.Tier(i), w).
				Component("synth").
				Category(errors.CategoryValidation).
				Build()
		}
		s.total += w
	}
	if s.total <= 0 {
		return nil, errors.ValidationError("tier weights must not all be zero")
	}
	for tier, tierRules := range rules {
		for _, r := range tierRules {
			if _, ok := fieldSetters[r.Field]; !ok {
				return nil, errors.Newf("tier %s: unknown degradation field %q", tier, r.Field).
					Component("synth").
					Category(errors.CategoryValidation).
					Build()
			}
			if r.Dist == nil || r.Probability < 0 || r.Probability > 1 {
				return nil, errors.Newf("tier %s: invalid rule for %s", tier, r.Field).
					Component("synth").
					Category(errors.CategoryValidation).
					Build()
			}
		}
	}
	return s, nil
}

// DefaultSampler returns the sampler over the default table.
func DefaultSampler() *Sampler {
	s, err := NewSampler(DefaultTierWeights, DefaultTierRules)
	if err != nil {
		panic(fmt.Sprintf("default tier table is invalid: %v", err))
	}
	return s
}

// Tier draws a target tier by weight.
func (s *Sampler) Tier(rng *rand.Rand) degrade.Tier {
	x := rng.Float64() * s.total
	for i, w := range s.weights {
		if x < w {
			return degrade.Tier(i)
		}
		x -= w
	}
	// rounding left x at the very end of the range
	for i := degrade.NumTiers - 1; i >= 0; i-- {
		if s.weights[i] > 0 {
			return degrade.Tier(i)
		}
	}
	return degrade.TierVeryPoor
}

// Params draws parameters for tier, starting from neutral.
func (s *Sampler) Params(tier degrade.Tier, rng *rand.Rand) degrade.Params {
	p := degrade.Neutral()
	for _, r := range s.rules[tier] {
		if r.Probability < Always && rng.Float64() >= r.Probability {
			continue
		}
		fieldSetters[r.Field](&p, r.Dist.Sample(rng))
	}
	return p
}
