package degrade

import (
	"image"
	"math/rand/v2"
)

// lowLightNoise adds sensor noise that is strongest in dark regions, then
// the slight green and blue cast of a night shot.
func lowLightNoise(img *image.RGBA, intensity float64, rng *rand.Rand) *image.RGBA {
	out := cloneRGBA(img)
	mapRGB(out, func(_, _ int, r, g, b float64) (float64, float64, float64) {
		dark := (255 - luma(uint8(r), uint8(g), uint8(b))) / 255
		return r + rng.NormFloat64()*intensity*dark,
			g + rng.NormFloat64()*intensity*dark,
			b + rng.NormFloat64()*intensity*dark
	})

	gShift, bShift := uniform(rng, 0, 5), uniform(rng, 0, 10)
	mapRGB(out, func(_, _ int, r, g, b float64) (float64, float64, float64) {
		return r, g + gShift, b + bShift
	})
	return out
}

// overExposure brightens highlights more than shadows and warms the result.
func overExposure(img *image.RGBA, intensity float64) *image.RGBA {
	out := cloneRGBA(img)
	mapRGB(out, func(_, _ int, r, g, b float64) (float64, float64, float64) {
		f := 1 + luma(uint8(r), uint8(g), uint8(b))/255*intensity*2
		return r * f, g * f, b * f
	})
	// warm tint on the clipped values
	mapRGB(out, func(_, _ int, r, g, b float64) (float64, float64, float64) {
		return r * 1.05, g * 1.03, b
	})
	return out
}

// smear averages along rows, like ink dragged sideways.
func smear(img *image.RGBA, intensity float64) *image.RGBA {
	size := max(1, int(10*intensity))
	if size == 1 {
		return cloneRGBA(img)
	}
	return convolve(img, boxTaps(size))
}

func gaussianNoise(img *image.RGBA, sigma float64, rng *rand.Rand) *image.RGBA {
	out := cloneRGBA(img)
	mapRGB(out, func(_, _ int, r, g, b float64) (float64, float64, float64) {
		return r + rng.NormFloat64()*sigma, g + rng.NormFloat64()*sigma, b + rng.NormFloat64()*sigma
	})
	return out
}

// brightness scales every channel; 0 is black, 1 is unchanged.
func brightness(img *image.RGBA, factor float64) *image.RGBA {
	out := cloneRGBA(img)
	mapRGB(out, func(_, _ int, r, g, b float64) (float64, float64, float64) {
		return r * factor, g * factor, b * factor
	})
	return out
}

// contrast interpolates between the mean grey level and the image; 0 is a
// flat grey, 1 is unchanged.
func contrast(img *image.RGBA, factor float64) *image.RGBA {
	w, h := img.Rect.Dx(), img.Rect.Dy()
	var sum float64
	for y := range h {
		for x := range w {
			o := y*img.Stride + x*4
			sum += float64(int(luma(img.Pix[o], img.Pix[o+1], img.Pix[o+2]) + 0.5))
		}
	}
	mean := float64(int(sum/float64(w*h) + 0.5))

	out := cloneRGBA(img)
	mapRGB(out, func(_, _ int, r, g, b float64) (float64, float64, float64) {
		return mean + (r-mean)*factor, mean + (g-mean)*factor, mean + (b-mean)*factor
	})
	return out
}

