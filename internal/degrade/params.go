// Package degrade implements synthetic document image degradations, the
// quality score model derived from degradation parameters, and the issue
// labels used as training targets.
package degrade

import (
	"encoding/json"
	"fmt"
	"maps"
	"math"
	"slices"

	"github.com/tphakala/docquality/internal/errors"
)

// Neutral values for the dimensions that are not zero when untouched.
const (
	NeutralCompressionQuality = 100
	NeutralFactor             = 1.0
)

// Params describes every degradation applied to one synthetic sample. The
// value returned by Neutral applies nothing. Params is passed by value and
// is not modified after sampling.
type Params struct {
	BlurRadius         float64 `json:"blur_radius"`
	NoiseLevel         float64 `json:"noise_level"`
	CompressionQuality int     `json:"compression_quality"`
	BrightnessFactor   float64 `json:"brightness_factor"`
	ContrastFactor     float64 `json:"contrast_factor"`
	ShadowIntensity    float64 `json:"shadow_intensity"`
	FoldIntensity      float64 `json:"fold_intensity"`
	SmearIntensity     float64 `json:"smear_intensity"`
	SkewAngle          float64 `json:"skew_angle"` // degrees, positive is counter-clockwise
	CoffeeStain        bool    `json:"coffee_stain"`
	CrumpleFactor      float64 `json:"crumple_factor"`
	JPEGArtifacts      float64 `json:"jpeg_artifacts"`
	WaterDamage        bool    `json:"water_damage"`
	Highlighting       float64 `json:"highlighting"`

	// Mobile capture conditions
	MotionBlur      float64 `json:"motion_blur"` // kernel length in pixels
	LensDistortion  float64 `json:"lens_distortion"`
	GlareSpots      int     `json:"glare_spots"`
	LowLightNoise   float64 `json:"low_light_noise"`
	PerspectiveWarp float64 `json:"perspective_warp"`
	FingerShadow    bool    `json:"finger_shadow"`
	PartialCapture  float64 `json:"partial_capture"` // fraction of the frame cut off
	OverExposure    float64 `json:"over_exposure"`
}

// Neutral returns parameters that leave an image untouched.
func Neutral() Params {
	return Params{
		CompressionQuality: NeutralCompressionQuality,
		BrightnessFactor:   NeutralFactor,
		ContrastFactor:     NeutralFactor,
	}
}

// IsNeutral reports whether p applies no degradation at all.
func (p Params) IsNeutral() bool {
	return p == Neutral()
}

// Validate rejects parameters that no operation can honour.
func (p Params) Validate() error {
	var problems []string

	nonNegative := map[string]float64{
		"blur_radius":     p.BlurRadius,
		"noise_level":     p.NoiseLevel,
		"motion_blur":     p.MotionBlur,
		"lens_distortion": p.LensDistortion,
		"low_light_noise": p.LowLightNoise,
	}
	for _, name := range slices.Sorted(maps.Keys(nonNegative)) {
		if v := nonNegative[name]; v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
			problems = append(problems, fmt.Sprintf("%s must be a finite value >= 0, got %g", name, v))
		}
	}

	fractions := map[string]float64{
		"shadow_intensity": p.ShadowIntensity,
		"fold_intensity":   p.FoldIntensity,
		"smear_intensity":  p.SmearIntensity,
		"crumple_factor":   p.CrumpleFactor,
		"jpeg_artifacts":   p.JPEGArtifacts,
		"highlighting":     p.Highlighting,
		"perspective_warp": p.PerspectiveWarp,
		"partial_capture":  p.PartialCapture,
		"over_exposure":    p.OverExposure,
	}
	for _, name := range slices.Sorted(maps.Keys(fractions)) {
		if v := fractions[name]; v < 0 || v > 1 || math.IsNaN(v) {
			problems = append(problems, fmt.Sprintf("%s must be within [0, 1], got %g", name, v))
		}
	}

	if p.CompressionQuality < 1 || p.CompressionQuality > 100 {
		problems = append(problems, fmt.Sprintf("compression_quality must be within [1, 100], got %d", p.CompressionQuality))
	}
	if !(p.BrightnessFactor > 0) || math.IsInf(p.BrightnessFactor, 0) {
		problems = append(problems, fmt.Sprintf("brightness_factor must be positive, got %g", p.BrightnessFactor))
	}
	if !(p.ContrastFactor > 0) || math.IsInf(p.ContrastFactor, 0) {
		problems = append(problems, fmt.Sprintf("contrast_factor must be positive, got %g", p.ContrastFactor))
	}
	if math.IsNaN(p.SkewAngle) || math.IsInf(p.SkewAngle, 0) {
		problems = append(problems, "skew_angle must be finite")
	}
	if p.GlareSpots < 0 {
		problems = append(problems, fmt.Sprintf("glare_spots must be >= 0, got %d", p.GlareSpots))
	}

	if len(problems) == 0 {
		return nil
	}
	return errors.Newf("invalid degradation parameters: %v", problems).
		Component("degrade").
		Category(errors.CategoryValidation).
		Context("problem_count", len(problems)).
		Build()
}

// JSON returns the serialized parameters stored next to each sample.
func (p Params) JSON() string {
	data, err := json.Marshal(p)
	if err != nil {
		// Params holds only numbers and booleans
		return "{}"
	}
	return string(data)
}

// ParseParams decodes serialized parameters. Fields missing from data keep
// their neutral value.
func ParseParams(data []byte) (Params, error) {
	p := Neutral()
	if err := json.Unmarshal(data, &p); err != nil {
		return Params{}, errors.New(fmt.Errorf("decode degradation parameters: %w", err)).
			Component("degrade").
			Category(errors.CategoryValidation).
			Build()
	}
	if err := p.Validate(); err != nil {
		return Params{}, err
	}
	return p, nil
}
