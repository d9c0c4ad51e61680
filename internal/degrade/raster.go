package degrade

import (
	"image"
	"image/color"
	"math"
	"math/rand/v2"

	"golang.org/x/image/draw"
)

var white = color.RGBA{R: 255, G: 255, B: 255, A: 255}

// toRGBA copies src onto an opaque white canvas anchored at the origin.
// Transparent input ends up on white, the same as flattening a scan.
func toRGBA(src image.Image) *image.RGBA {
	b := src.Bounds()
	dst := whiteCanvas(b.Dx(), b.Dy())
	draw.Draw(dst, dst.Bounds(), src, b.Min, draw.Over)
	return dst
}

func whiteCanvas(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(img, img.Bounds(), image.NewUniform(white), image.Point{}, draw.Src)
	return img
}

func cloneRGBA(src *image.RGBA) *image.RGBA {
	dst := image.NewRGBA(src.Rect)
	copy(dst.Pix, src.Pix)
	return dst
}

func clamp8(v float64) uint8 {
	switch {
	case v <= 0 || math.IsNaN(v):
		return 0
	case v >= 255:
		return 255
	default:
		return uint8(v + 0.5)
	}
}

func clampInt(v, lo, hi int) int {
	return max(lo, min(v, hi))
}

// luma returns the ITU-R 601-2 grey level of an RGB triple.
func luma(r, g, b uint8) float64 {
	return (299*float64(r) + 587*float64(g) + 114*float64(b)) / 1000
}

// mapRGB rewrites every pixel of an opaque image in place.
func mapRGB(img *image.RGBA, fn func(x, y int, r, g, b float64) (float64, float64, float64)) {
	w, h := img.Rect.Dx(), img.Rect.Dy()
	for y := range h {
		row := img.Pix[y*img.Stride : y*img.Stride+w*4]
		for x := range w {
			px := row[x*4 : x*4+4]
			r, g, b := fn(x, y, float64(px[0]), float64(px[1]), float64(px[2]))
			px[0], px[1], px[2] = clamp8(r), clamp8(g), clamp8(b)
		}
	}
}

// tap is one weighted sample offset of a convolution kernel.
type tap struct {
	dx, dy int
	w      float64
}

// convolve applies a sparse kernel to all four channels with clamped edges.
func convolve(src *image.RGBA, taps []tap) *image.RGBA {
	w, h := src.Rect.Dx(), src.Rect.Dy()
	dst := image.NewRGBA(src.Rect)
	for y := range h {
		for x := range w {
			var acc [4]float64
			for _, t := range taps {
				sx := clampInt(x+t.dx, 0, w-1)
				sy := clampInt(y+t.dy, 0, h-1)
				o := sy*src.Stride + sx*4
				acc[0] += float64(src.Pix[o]) * t.w
				acc[1] += float64(src.Pix[o+1]) * t.w
				acc[2] += float64(src.Pix[o+2]) * t.w
				acc[3] += float64(src.Pix[o+3]) * t.w
			}
			o := y*dst.Stride + x*4
			dst.Pix[o] = clamp8(acc[0])
			dst.Pix[o+1] = clamp8(acc[1])
			dst.Pix[o+2] = clamp8(acc[2])
			dst.Pix[o+3] = clamp8(acc[3])
		}
	}
	return dst
}

// boxTaps returns a horizontal averaging kernel of the given length.
func boxTaps(size int) []tap {
	taps := make([]tap, size)
	start := -(size - 1) / 2
	for i := range taps {
		taps[i] = tap{dx: start + i, w: 1 / float64(size)}
	}
	return taps
}

// gaussianTaps returns a normalised 1D kernel along x (vertical false) or y.
func gaussianTaps(sigma float64, vertical bool) []tap {
	radius := max(1, int(math.Ceil(3*sigma)))
	taps := make([]tap, 0, 2*radius+1)
	var sum float64
	for i := -radius; i <= radius; i++ {
		wt := math.Exp(-float64(i*i) / (2 * sigma * sigma))
		t := tap{dx: i, w: wt}
		if vertical {
			t = tap{dy: i, w: wt}
		}
		taps = append(taps, t)
		sum += wt
	}
	for i := range taps {
		taps[i].w /= sum
	}
	return taps
}

func gaussianBlur(img *image.RGBA, sigma float64) *image.RGBA {
	if sigma <= 0 {
		return img
	}
	return convolve(convolve(img, gaussianTaps(sigma, false)), gaussianTaps(sigma, true))
}

// sampleBilinear reads src at a fractional position. ok is false outside the image.
func sampleBilinear(src *image.RGBA, fx, fy float64) (c [3]float64, ok bool) {
	w, h := src.Rect.Dx(), src.Rect.Dy()
	if fx < 0 || fy < 0 || fx > float64(w-1) || fy > float64(h-1) {
		return c, false
	}
	x0, y0 := int(fx), int(fy)
	x1, y1 := min(x0+1, w-1), min(y0+1, h-1)
	ax, ay := fx-float64(x0), fy-float64(y0)

	for ch := range 3 {
		p00 := float64(src.Pix[y0*src.Stride+x0*4+ch])
		p10 := float64(src.Pix[y0*src.Stride+x1*4+ch])
		p01 := float64(src.Pix[y1*src.Stride+x0*4+ch])
		p11 := float64(src.Pix[y1*src.Stride+x1*4+ch])
		top := p00 + (p10-p00)*ax
		bottom := p01 + (p11-p01)*ax
		c[ch] = top + (bottom-top)*ay
	}
	return c, true
}

// uniform draws from [lo, hi).
func uniform(rng *rand.Rand, lo, hi float64) float64 {
	return lo + rng.Float64()*(hi-lo)
}

// randInt draws from [lo, hi] inclusive. hi below lo yields lo.
func randInt(rng *rand.Rand, lo, hi int) int {
	if hi <= lo {
		return lo
	}
	return lo + rng.IntN(hi-lo+1)
}
