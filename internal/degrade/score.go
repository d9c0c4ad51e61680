package degrade

import "math"

const (
	scoreExponent = 0.8
	minScore      = 0.05
)

// linearPenalty removes up to max from the score, growing linearly from the
// threshold to the upper bound.
type linearPenalty struct {
	threshold float64
	max       float64
	upper     float64
}

func (lp linearPenalty) factor(v float64) float64 {
	if v <= lp.threshold {
		return 1
	}
	return 1 - math.Min(lp.max, (v-lp.threshold)/(lp.upper-lp.threshold))
}

// Critical issues make a document unreadable.
var (
	blurPenalty    = linearPenalty{threshold: 1.5, max: 0.7, upper: 10}
	motionPenalty  = linearPenalty{threshold: 3.0, max: 0.75, upper: 10}
	partialPenalty = linearPenalty{threshold: 0.1, max: 0.8, upper: 1.0}
)

// Major issues make a document hard to read.
var (
	lowLightPenalty     = linearPenalty{threshold: 20, max: 0.5, upper: 100}
	overExposurePenalty = linearPenalty{threshold: 0.3, max: 0.5, upper: 1.0}
	skewPenalty         = linearPenalty{threshold: 10, max: 0.4, upper: 45}
	perspectivePenalty  = linearPenalty{threshold: 0.2, max: 0.4, upper: 1.0}
)

// QualityScore returns the expected quality of an image degraded with p, in
// [0.05, 1.0]. Penalties multiply so compounding problems compound, and the
// result is compressed with a 0.8 power before clamping. Neutral parameters
// score exactly 1.0.
//
// Start from Neutral(): the zero Params means compression quality 0 and
// zero brightness and contrast, scores about 0.25 and fails Validate.
//
// Training labels depend on these constants. Changing them invalidates the
// labels of every dataset generated before.
func QualityScore(p Params) float64 {
	score := 1.0

	score *= blurPenalty.factor(p.BlurRadius)
	score *= motionPenalty.factor(p.MotionBlur)
	score *= partialPenalty.factor(p.PartialCapture)

	score *= lowLightPenalty.factor(p.LowLightNoise)
	score *= overExposurePenalty.factor(p.OverExposure)
	score *= skewPenalty.factor(math.Abs(p.SkewAngle))
	score *= perspectivePenalty.factor(p.PerspectiveWarp)

	if p.NoiseLevel > 20 {
		score *= math.Max(0.5, 1-p.NoiseLevel/200)
	}
	if p.CompressionQuality < 70 {
		score *= math.Max(0.5, float64(p.CompressionQuality)/100)
	}
	if d := math.Abs(p.BrightnessFactor - 1); d > 0.2 {
		score *= math.Max(0.6, 1-d*0.5)
	}
	if d := math.Abs(p.ContrastFactor - 1); d > 0.2 {
		score *= math.Max(0.6, 1-d*0.5)
	}
	if p.ShadowIntensity > 0.3 {
		score *= math.Max(0.6, 1-p.ShadowIntensity*0.5)
	}
	if p.FingerShadow {
		score *= 0.9
	}

	if p.FoldIntensity > 0.3 {
		score *= math.Max(0.7, 1-p.FoldIntensity*0.4)
	}
	if p.CrumpleFactor > 0.3 {
		score *= math.Max(0.6, 1-p.CrumpleFactor*0.5)
	}
	if p.CoffeeStain {
		score *= 0.75
	}
	if p.WaterDamage {
		score *= 0.65
	}
	if p.GlareSpots > 1 {
		score *= math.Max(0.6, 1-float64(p.GlareSpots)*0.1)
	}

	score = math.Pow(math.Max(score, 0), scoreExponent)
	return math.Max(minScore, math.Min(1.0, score))
}
