package degrade

import (
	"image"
	"image/color"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/docquality/internal/errors"
)

// testDocument draws dark text-like bars on a white page.
func testDocument(w, h int) *image.RGBA {
	img := whiteCanvas(w, h)
	for y := 8; y < h-8; y += 12 {
		for x := 6; x < w-6; x++ {
			if (x/9)%4 != 3 {
				img.SetRGBA(x, y, color.RGBA{A: 255})
				img.SetRGBA(x, y+1, color.RGBA{A: 255})
			}
		}
	}
	return img
}

func solidImage(w, h int, c color.RGBA) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i], img.Pix[i+1], img.Pix[i+2], img.Pix[i+3] = c.R, c.G, c.B, c.A
	}
	return img
}

func newRNG() *rand.Rand {
	return rand.New(rand.NewPCG(42, 1))
}

func singleOps() map[string]func(*Params) {
	return map[string]func(*Params){
		"perspective_warp":  func(p *Params) { p.PerspectiveWarp = 0.5 },
		"partial_capture":   func(p *Params) { p.PartialCapture = 0.3 },
		"finger_shadow":     func(p *Params) { p.FingerShadow = true },
		"motion_blur":       func(p *Params) { p.MotionBlur = 9 },
		"glare_spots":       func(p *Params) { p.GlareSpots = 3 },
		"low_light_noise":   func(p *Params) { p.LowLightNoise = 60 },
		"over_exposure":     func(p *Params) { p.OverExposure = 0.6 },
		"skew_angle":        func(p *Params) { p.SkewAngle = -17 },
		"shadow_intensity":  func(p *Params) { p.ShadowIntensity = 0.5 },
		"fold_intensity":    func(p *Params) { p.FoldIntensity = 0.5 },
		"smear_intensity":   func(p *Params) { p.SmearIntensity = 0.4 },
		"crumple_factor":    func(p *Params) { p.CrumpleFactor = 0.7 },
		"coffee_stain":      func(p *Params) { p.CoffeeStain = true },
		"water_damage":      func(p *Params) { p.WaterDamage = true },
		"highlighting":      func(p *Params) { p.Highlighting = 0.5 },
		"blur_radius":       func(p *Params) { p.BlurRadius = 2.5 },
		"noise_level":       func(p *Params) { p.NoiseLevel = 25 },
		"brightness_factor": func(p *Params) { p.BrightnessFactor = 1.4 },
		"contrast_factor":   func(p *Params) { p.ContrastFactor = 0.6 },
		"compression":       func(p *Params) { p.CompressionQuality = 35; p.JPEGArtifacts = 0.7 },
	}
}

func TestApplyKeepsDimensions(t *testing.T) {
	t.Parallel()

	sizes := []image.Point{{120, 90}, {37, 211}, {5, 5}}
	for name, mutate := range singleOps() {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			p := Neutral()
			mutate(&p)
			for _, size := range sizes {
				out, err := Apply(testDocument(size.X, size.Y), p, newRNG())
				require.NoError(t, err)
				assert.Equal(t, size, out.Bounds().Size(), "size %v", size)
			}
		})
	}
}

func TestApplyCombinationKeepsDimensions(t *testing.T) {
	t.Parallel()

	rng := rand.New(rand.NewPCG(3, 5))
	for range 5 {
		p := randomParams(rng)
		p.GlareSpots = min(p.GlareSpots, 3)
		out, err := Apply(testDocument(80, 60), p, rng)
		require.NoError(t, err)
		assert.Equal(t, image.Pt(80, 60), out.Bounds().Size())
	}
}

func TestApplyNonZeroOrigin(t *testing.T) {
	t.Parallel()

	src := testDocument(100, 100).SubImage(image.Rect(20, 30, 70, 60))
	p := Neutral()
	p.SkewAngle = 10
	out, err := Apply(src, p, newRNG())
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 50, 30), out.Bounds())
}

func TestApplyNeutralIsIdentity(t *testing.T) {
	t.Parallel()

	src := testDocument(64, 48)
	out, err := Apply(src, Neutral(), newRNG())
	require.NoError(t, err)
	assert.Equal(t, src.Pix, out.Pix)
	assert.NotSame(t, src, out)
}

func TestApplyDeterministicForSeed(t *testing.T) {
	t.Parallel()

	p := Neutral()
	p.NoiseLevel = 20
	p.GlareSpots = 2
	p.CrumpleFactor = 0.5
	p.PartialCapture = 0.2

	a, err := Apply(testDocument(90, 70), p, newRNG())
	require.NoError(t, err)
	b, err := Apply(testDocument(90, 70), p, newRNG())
	require.NoError(t, err)
	assert.Equal(t, a.Pix, b.Pix)
}

func TestApplyDoesNotModifyInput(t *testing.T) {
	t.Parallel()

	src := testDocument(50, 40)
	before := append([]byte(nil), src.Pix...)
	p := Neutral()
	p.BrightnessFactor = 0.5
	p.FoldIntensity = 1
	_, err := Apply(src, p, newRNG())
	require.NoError(t, err)
	assert.Equal(t, before, src.Pix)
}

func TestApplyRejectsBadInput(t *testing.T) {
	t.Parallel()

	p := Neutral()
	p.PartialCapture = 1.5
	_, err := Apply(testDocument(10, 10), p, newRNG())
	require.Error(t, err)
	assert.True(t, errors.IsValidation(err))

	_, err = Apply(image.NewRGBA(image.Rect(0, 0, 0, 10)), Neutral(), newRNG())
	require.Error(t, err)
	assert.True(t, errors.IsValidation(err))
}

func TestPartialCaptureWhitensCutSide(t *testing.T) {
	t.Parallel()

	out := partialCapture(solidImage(100, 100, color.RGBA{A: 255}), 0.5, newRNG())
	whites := 0
	for i := 0; i < len(out.Pix); i += 4 {
		if out.Pix[i] == 255 && out.Pix[i+1] == 255 && out.Pix[i+2] == 255 {
			whites++
		}
	}
	assert.Equal(t, 100*50, whites)
}

func TestSkewFillsUncoveredCornersWithWhite(t *testing.T) {
	t.Parallel()

	out := skew(solidImage(100, 100, color.RGBA{A: 255}), 45)
	assert.Equal(t, white, out.RGBAAt(0, 0))
	assert.Equal(t, white, out.RGBAAt(99, 99))
	assert.Equal(t, color.RGBA{A: 255}, out.RGBAAt(50, 50))
}

func TestBrightnessAndContrast(t *testing.T) {
	t.Parallel()

	grey := solidImage(4, 4, color.RGBA{R: 100, G: 100, B: 100, A: 255})
	assert.Equal(t, uint8(150), brightness(grey, 1.5).Pix[0])

	// a flat image has nothing to stretch
	assert.Equal(t, uint8(100), contrast(grey, 2).Pix[0])

	twoTone := solidImage(2, 1, color.RGBA{R: 50, G: 50, B: 50, A: 255})
	twoTone.SetRGBA(1, 0, color.RGBA{R: 150, G: 150, B: 150, A: 255})
	flat := contrast(twoTone, 0)
	assert.Equal(t, flat.Pix[0], flat.Pix[4])
	assert.Equal(t, uint8(100), flat.Pix[0])
}

func TestCompressionSettings(t *testing.T) {
	t.Parallel()

	p := Neutral()
	assert.False(t, needsCompression(p))

	p.CompressionQuality = 60
	q, rounds := compressionSettings(p)
	assert.Equal(t, 60, q)
	assert.Equal(t, 1, rounds)

	p = Neutral()
	p.JPEGArtifacts = 0.7
	q, rounds = compressionSettings(p)
	assert.Equal(t, 30, q)
	assert.Equal(t, 3, rounds)

	p.JPEGArtifacts = 1
	q, rounds = compressionSettings(p)
	assert.Equal(t, 1, q)
	assert.Equal(t, 4, rounds)
}

func TestSteps(t *testing.T) {
	t.Parallel()

	p := Neutral()
	p.CompressionQuality = 50
	p.BlurRadius = 1
	p.PerspectiveWarp = 0.2
	p.SkewAngle = 3
	assert.Equal(t, []string{"perspective_warp", "skew_angle", "blur_radius", "compression"}, Steps(p))
	assert.Empty(t, Steps(Neutral()))
}

func TestGlareRadiusScalesWithPage(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		w, h   int
		lo, hi int
	}{
		{"reference page", 1000, 1400, 30, 100},
		{"small scan", 200, 300, 6, 20},
		{"large scan", 5000, 4000, 120, 400},
		{"thumbnail", 10, 10, 1, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			lo, hi := glareRadiusRange(tt.w, tt.h)
			assert.Equal(t, tt.lo, lo)
			assert.Equal(t, tt.hi, hi)
		})
	}
}

func TestGlareStaysInsideSmallPage(t *testing.T) {
	t.Parallel()

	// spots are centred in the middle half and at most 6 px wide on a
	// 60 px page, so the corners stay untouched
	img := image.NewRGBA(image.Rect(0, 0, 60, 60))
	for i := range img.Pix {
		img.Pix[i] = 40
	}
	out := glareSpots(img, 5, rand.New(rand.NewPCG(7, 7)))

	for _, p := range []image.Point{{0, 0}, {59, 0}, {0, 59}, {59, 59}, {5, 30}, {30, 5}} {
		assert.Equal(t, img.RGBAAt(p.X, p.Y), out.RGBAAt(p.X, p.Y), "pixel %v", p)
	}
	assert.NotEqual(t, img.Pix, out.Pix)
}

func TestLineTapsNormalised(t *testing.T) {
	t.Parallel()

	for _, angle := range []float64{-15, 0, 7.5, 15} {
		var sum float64
		for _, tp := range lineTaps(9, angle) {
			sum += tp.w
		}
		assert.InDelta(t, 1.0, sum, 1e-6, "angle %g", angle)
	}
}
