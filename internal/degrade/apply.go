package degrade

import (
	"fmt"
	"image"
	"math/rand/v2"

	"github.com/tphakala/docquality/internal/errors"
)

// step is one stage of the degradation pipeline.
type step struct {
	name    string
	enabled func(p Params) bool
	apply   func(img *image.RGBA, p Params, rng *rand.Rand) *image.RGBA
}

// pipeline lists the operations in application order: capture conditions,
// physical damage, photometric adjustments. Compression runs after all of
// them in Apply.
var pipeline = []step{
	{"perspective_warp", func(p Params) bool { return p.PerspectiveWarp > 0 },
		func(img *image.RGBA, p Params, rng *rand.Rand) *image.RGBA {
			return perspectiveWarp(img, p.PerspectiveWarp, rng)
		}},
	{"partial_capture", func(p Params) bool { return p.PartialCapture > 0 },
		func(img *image.RGBA, p Params, rng *rand.Rand) *image.RGBA {
			return partialCapture(img, p.PartialCapture, rng)
		}},
	{"finger_shadow", func(p Params) bool { return p.FingerShadow },
		func(img *image.RGBA, _ Params, rng *rand.Rand) *image.RGBA { return fingerShadow(img, rng) }},
	{"motion_blur", func(p Params) bool { return p.MotionBlur > 0 },
		func(img *image.RGBA, p Params, rng *rand.Rand) *image.RGBA {
			return motionBlur(img, p.MotionBlur, rng)
		}},
	{"glare_spots", func(p Params) bool { return p.GlareSpots > 0 },
		func(img *image.RGBA, p Params, rng *rand.Rand) *image.RGBA {
			return glareSpots(img, p.GlareSpots, rng)
		}},
	{"low_light_noise", func(p Params) bool { return p.LowLightNoise > 0 },
		func(img *image.RGBA, p Params, rng *rand.Rand) *image.RGBA {
			return lowLightNoise(img, p.LowLightNoise, rng)
		}},
	{"over_exposure", func(p Params) bool { return p.OverExposure > 0 },
		func(img *image.RGBA, p Params, _ *rand.Rand) *image.RGBA { return overExposure(img, p.OverExposure) }},

	{"skew_angle", func(p Params) bool { return p.SkewAngle != 0 },
		func(img *image.RGBA, p Params, _ *rand.Rand) *image.RGBA { return skew(img, p.SkewAngle) }},
	{"shadow_intensity", func(p Params) bool { return p.ShadowIntensity > 0 },
		func(img *image.RGBA, p Params, _ *rand.Rand) *image.RGBA {
			return shadowGradient(img, p.ShadowIntensity)
		}},
	{"fold_intensity", func(p Params) bool { return p.FoldIntensity > 0 },
		func(img *image.RGBA, p Params, rng *rand.Rand) *image.RGBA {
			return foldMarks(img, p.FoldIntensity, rng)
		}},
	{"smear_intensity", func(p Params) bool { return p.SmearIntensity > 0 },
		func(img *image.RGBA, p Params, _ *rand.Rand) *image.RGBA { return smear(img, p.SmearIntensity) }},
	{"crumple_factor", func(p Params) bool { return p.CrumpleFactor > 0 },
		func(img *image.RGBA, p Params, rng *rand.Rand) *image.RGBA {
			return crumple(img, p.CrumpleFactor, rng)
		}},
	{"coffee_stain", func(p Params) bool { return p.CoffeeStain },
		func(img *image.RGBA, _ Params, rng *rand.Rand) *image.RGBA { return coffeeStain(img, rng) }},
	{"water_damage", func(p Params) bool { return p.WaterDamage },
		func(img *image.RGBA, _ Params, rng *rand.Rand) *image.RGBA { return waterDamage(img, rng) }},
	{"highlighting", func(p Params) bool { return p.Highlighting > 0 },
		func(img *image.RGBA, p Params, rng *rand.Rand) *image.RGBA {
			return highlighting(img, p.Highlighting, rng)
		}},

	{"blur_radius", func(p Params) bool { return p.BlurRadius > 0 },
		func(img *image.RGBA, p Params, _ *rand.Rand) *image.RGBA { return gaussianBlur(img, p.BlurRadius) }},
	{"noise_level", func(p Params) bool { return p.NoiseLevel > 0 },
		func(img *image.RGBA, p Params, rng *rand.Rand) *image.RGBA {
			return gaussianNoise(img, p.NoiseLevel, rng)
		}},
	{"brightness_factor", func(p Params) bool { return p.BrightnessFactor != NeutralFactor },
		func(img *image.RGBA, p Params, _ *rand.Rand) *image.RGBA { return brightness(img, p.BrightnessFactor) }},
	{"contrast_factor", func(p Params) bool { return p.ContrastFactor != NeutralFactor },
		func(img *image.RGBA, p Params, _ *rand.Rand) *image.RGBA { return contrast(img, p.ContrastFactor) }},
}

// Apply returns a degraded copy of img with the same pixel dimensions. All
// randomness comes from rng, so equal seeds give equal output.
func Apply(img image.Image, p Params, rng *rand.Rand) (*image.RGBA, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	b := img.Bounds()
	if b.Empty() {
		return nil, errors.Newf("cannot degrade an empty image (%dx%d)", b.Dx(), b.Dy()).
			Component("degrade").
			Category(errors.CategoryValidation).
			Build()
	}

	out := toRGBA(img)
	for _, s := range pipeline {
		if s.enabled(p) {
			out = s.apply(out, p, rng)
		}
	}

	if needsCompression(p) {
		quality, rounds := compressionSettings(p)
		compressed, err := recompress(out, quality, rounds)
		if err != nil {
			return nil, errors.New(fmt.Errorf("apply compression: %w", err)).
				Component("degrade").
				Category(errors.CategoryDegradation).
				Context("quality", quality).
				Context("rounds", rounds).
				Build()
		}
		out = compressed
	}
	return out, nil
}

// Steps returns the names of the operations p enables, in application order.
func Steps(p Params) []string {
	var names []string
	for _, s := range pipeline {
		if s.enabled(p) {
			names = append(names, s.name)
		}
	}
	if needsCompression(p) {
		names = append(names, "compression")
	}
	return names
}
