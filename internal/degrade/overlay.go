package degrade

import (
	"image"
	"image/color"
	"math/rand/v2"

	"github.com/fogleman/gg"
	"golang.org/x/image/draw"
)

// compositeLayer draws an RGBA layer over img.
func compositeLayer(img, layer *image.RGBA) {
	draw.Draw(img, img.Bounds(), layer, image.Point{}, draw.Over)
}

// fingerShadow darkens one edge with soft blobs, like a thumb holding the page.
func fingerShadow(img *image.RGBA, rng *rand.Rand) *image.RGBA {
	w, h := img.Rect.Dx(), img.Rect.Dy()
	fw, fh := float64(w), float64(h)

	dc := gg.NewContext(w, h)
	dc.SetRGBA255(0, 0, 0, 120)

	switch rng.IntN(4) {
	case 0: // top
		for range randInt(rng, 1, 3) {
			x := float64(randInt(rng, w/4, 3*w/4))
			dc.DrawEllipse(x, 20, 40, 40)
		}
	case 1: // bottom
		for range randInt(rng, 1, 3) {
			x := float64(randInt(rng, w/4, 3*w/4))
			dc.DrawEllipse(x, fh-20, 40, 40)
		}
	case 2: // left
		for range randInt(rng, 1, 2) {
			y := float64(randInt(rng, h/4, 3*h/4))
			dc.DrawEllipse(20, y, 40, 40)
		}
	default: // right
		for range randInt(rng, 1, 2) {
			y := float64(randInt(rng, h/4, 3*h/4))
			dc.DrawEllipse(fw-20, y, 40, 40)
		}
	}
	dc.Fill()

	out := cloneRGBA(img)
	compositeLayer(out, gaussianBlur(dc.Image().(*image.RGBA), 10))
	return out
}

// glareRadiusRange returns the spot radius bounds for a w x h page: 3% to
// 10% of the shorter side, 30 to 100 px on a 1000 px page.
func glareRadiusRange(w, h int) (lo, hi int) {
	side := min(w, h)
	return max(1, side*3/100), max(1, side/10)
}

// glareSpots adds bright radial reflections in the central half of the page.
func glareSpots(img *image.RGBA, spots int, rng *rand.Rand) *image.RGBA {
	w, h := img.Rect.Dx(), img.Rect.Dy()
	out := cloneRGBA(img)
	dc := gg.NewContextForRGBA(out)
	lo, hi := glareRadiusRange(w, h)

	for range spots {
		cx := float64(randInt(rng, w/4, 3*w/4))
		cy := float64(randInt(rng, h/4, 3*h/4))
		r := float64(randInt(rng, lo, hi))

		// opacity falls off as 1 - (d/r)^2
		grad := gg.NewRadialGradient(cx, cy, 0, cx, cy, r)
		for _, t := range []float64{0, 0.25, 0.5, 0.75, 1} {
			grad.AddColorStop(t, color.NRGBA{R: 255, G: 255, B: 240, A: clamp8(255 * (1 - t*t))})
		}
		dc.SetFillStyle(grad)
		dc.DrawCircle(cx, cy, r)
		dc.Fill()
	}
	return out
}

// shadowGradient blends a left-to-right darkening ramp over the page.
func shadowGradient(img *image.RGBA, intensity float64) *image.RGBA {
	w, h := img.Rect.Dx(), img.Rect.Dy()
	out := cloneRGBA(img)
	dc := gg.NewContextForRGBA(out)

	alpha := clamp8(255 * intensity * 0.5)
	dark := clamp8(255 * (1 - intensity))
	grad := gg.NewLinearGradient(0, 0, float64(w), 0)
	grad.AddColorStop(0, color.NRGBA{R: 255, G: 255, B: 255, A: alpha})
	grad.AddColorStop(1, color.NRGBA{R: dark, G: dark, B: dark, A: alpha})

	dc.SetFillStyle(grad)
	dc.DrawRectangle(0, 0, float64(w), float64(h))
	dc.Fill()
	return out
}

// foldMarks darkens one horizontal and one vertical crease.
func foldMarks(img *image.RGBA, intensity float64, rng *rand.Rand) *image.RGBA {
	w, h := img.Rect.Dx(), img.Rect.Dy()
	out := cloneRGBA(img)
	scale := 1 - intensity*0.3

	row := int(float64(h) * uniform(rng, 0.3, 0.7))
	rowHalf := int(float64(h) * 0.01)
	col := int(float64(w) * uniform(rng, 0.3, 0.7))
	colHalf := int(float64(w) * 0.01)

	inFold := func(x, y int) bool {
		return (y >= row-rowHalf && y < row+rowHalf) || (x >= col-colHalf && x < col+colHalf)
	}
	mapRGB(out, func(x, y int, r, g, b float64) (float64, float64, float64) {
		if !inFold(x, y) {
			return r, g, b
		}
		// truncation matches an integer cast of the darkened value
		return float64(int(r * scale)), float64(int(g * scale)), float64(int(b * scale))
	})
	return out
}

// coffeeStain drops one to three translucent brown rings.
func coffeeStain(img *image.RGBA, rng *rand.Rand) *image.RGBA {
	w, h := img.Rect.Dx(), img.Rect.Dy()
	out := cloneRGBA(img)
	dc := gg.NewContextForRGBA(out)

	for range randInt(rng, 1, 3) {
		size := randInt(rng, 50, 150)
		x := randInt(rng, 0, max(0, w-size))
		y := randInt(rng, 0, max(0, h-size))
		half := float64(size) / 2
		dc.SetRGBA255(139, 69, 19, randInt(rng, 50, 100))
		dc.DrawEllipse(float64(x)+half, float64(y)+half, half, half)
		dc.Fill()
	}
	return out
}

// waterDamage tints irregular soft patches with a pale blue.
func waterDamage(img *image.RGBA, rng *rand.Rand) *image.RGBA {
	w, h := img.Rect.Dx(), img.Rect.Dy()
	dc := gg.NewContext(w, h)

	for range randInt(rng, 2, 4) {
		x := float64(randInt(rng, 0, w))
		y := float64(randInt(rng, 0, h))
		for range 3 {
			size := float64(randInt(rng, 50, 200))
			dc.SetRGBA255(200, 200, 220, randInt(rng, 30, 70))
			dc.DrawEllipse(x, y, size, size)
			dc.Fill()
		}
	}

	out := cloneRGBA(img)
	compositeLayer(out, gaussianBlur(dc.Image().(*image.RGBA), 3))
	return out
}

// highlighting paints translucent yellow marker strokes.
func highlighting(img *image.RGBA, intensity float64, rng *rand.Rand) *image.RGBA {
	w, h := img.Rect.Dx(), img.Rect.Dy()
	out := cloneRGBA(img)
	dc := gg.NewContextForRGBA(out)
	dc.SetRGBA255(255, 255, 0, int(100*intensity))

	for range int(intensity*5) + 1 {
		x := randInt(rng, 0, max(0, w-200))
		y := randInt(rng, 0, max(0, h-30))
		dc.DrawRectangle(float64(x), float64(y), float64(randInt(rng, 100, 200)), float64(randInt(rng, 20, 30)))
		dc.Fill()
	}
	return out
}
