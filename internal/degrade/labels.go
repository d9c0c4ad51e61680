package degrade

import "math"

// OverallPoorThreshold is the score below which a sample is flagged overall_poor.
const OverallPoorThreshold = 0.4

// NumIssues is the number of issue labels.
const NumIssues = 10

// Issue names in model output order.
var issueNames = [NumIssues]string{
	"blur",
	"noise",
	"lighting",
	"shadow",
	"physical_damage",
	"skew",
	"partial_capture",
	"glare",
	"compression",
	"overall_poor",
}

// Dataset column names. Partial capture keeps the historical issue_partial
// column name.
var issueColumns = [NumIssues]string{
	"issue_blur",
	"issue_noise",
	"issue_lighting",
	"issue_shadow",
	"issue_physical_damage",
	"issue_skew",
	"issue_partial",
	"issue_glare",
	"issue_compression",
	"issue_overall_poor",
}

// IssueNames returns the issue names in model output order.
func IssueNames() []string {
	return issueNames[:]
}

// IssueColumns returns the metadata column names in the same order as IssueNames.
func IssueColumns() []string {
	return issueColumns[:]
}

// Labels holds the ten issue flags of one sample.
type Labels struct {
	Blur           bool
	Noise          bool
	Lighting       bool
	Shadow         bool
	PhysicalDamage bool
	Skew           bool
	PartialCapture bool
	Glare          bool
	Compression    bool
	OverallPoor    bool
}

// IssueLabels derives issue flags from degradation parameters.
func IssueLabels(p Params) Labels {
	// overall_poor depends on the score, so it is computed first
	score := QualityScore(p)

	return Labels{
		Blur:     p.BlurRadius > 2.0 || p.MotionBlur > 5.0,
		Noise:    p.NoiseLevel > 30 || p.LowLightNoise > 40,
		Lighting: math.Abs(p.BrightnessFactor-1) > 0.3 || math.Abs(p.ContrastFactor-1) > 0.3 || p.OverExposure > 0.3,
		Shadow:   p.ShadowIntensity > 0.3 || p.FingerShadow,
		PhysicalDamage: p.FoldIntensity > 0.3 || p.CrumpleFactor > 0.3 ||
			p.CoffeeStain || p.WaterDamage,
		Skew:           math.Abs(p.SkewAngle) > 5 || p.PerspectiveWarp > 0.3,
		PartialCapture: p.PartialCapture > 0.1,
		Glare:          p.GlareSpots > 0,
		Compression:    p.CompressionQuality < 70 || p.JPEGArtifacts > 0.5,
		OverallPoor:    score < OverallPoorThreshold,
	}
}

// Values returns the flags in IssueNames order.
func (l Labels) Values() []bool {
	return []bool{
		l.Blur, l.Noise, l.Lighting, l.Shadow, l.PhysicalDamage,
		l.Skew, l.PartialCapture, l.Glare, l.Compression, l.OverallPoor,
	}
}

// Map returns the flags keyed by issue name.
func (l Labels) Map() map[string]bool {
	m := make(map[string]bool, NumIssues)
	for i, v := range l.Values() {
		m[issueNames[i]] = v
	}
	return m
}

// Count returns how many issues are flagged.
func (l Labels) Count() int {
	n := 0
	for _, v := range l.Values() {
		if v {
			n++
		}
	}
	return n
}
