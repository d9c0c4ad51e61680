package degrade

import (
	"image"
	"math"
	"math/rand/v2"

	"golang.org/x/image/draw"
	"golang.org/x/image/math/f64"
	"gonum.org/v1/gonum/mat"

	"github.com/tphakala/docquality/internal/logger"
)

// perspectiveWarp pulls each corner inwards by a random offset of up to
// 20% of the short side scaled by intensity, as if the photo was taken at an
// angle. Uncovered pixels become white.
func perspectiveWarp(img *image.RGBA, intensity float64, rng *rand.Rand) *image.RGBA {
	w, h := img.Rect.Dx(), img.Rect.Dy()
	offset := int(float64(min(w, h)) * intensity * 0.2)
	if offset < 1 {
		return img
	}

	fw, fh := float64(w), float64(h)
	src := [4][2]float64{{0, 0}, {fw, 0}, {fw, fh}, {0, fh}}
	dst := [4][2]float64{
		{float64(randInt(rng, 0, offset)), float64(randInt(rng, 0, offset))},
		{fw - float64(randInt(rng, 0, offset)), float64(randInt(rng, 0, offset))},
		{fw - float64(randInt(rng, 0, offset)), fh - float64(randInt(rng, 0, offset))},
		{float64(randInt(rng, 0, offset)), fh - float64(randInt(rng, 0, offset))},
	}

	// Solve the inverse mapping directly in normalised coordinates:
	// destination corner -> source corner.
	var from, to [4][2]float64
	for i := range 4 {
		from[i] = [2]float64{dst[i][0] / fw, dst[i][1] / fh}
		to[i] = [2]float64{src[i][0] / fw, src[i][1] / fh}
	}
	hm, err := solveHomography(from, to)
	if err != nil {
		GetLogger().Debug("perspective homography not solvable, leaving image unchanged",
			logger.Error(err))
		return img
	}

	out := whiteCanvas(w, h)
	for y := range h {
		ny := float64(y) / fh
		for x := range w {
			nx := float64(x) / fw
			den := hm[6]*nx + hm[7]*ny + 1
			if den == 0 {
				continue
			}
			u := (hm[0]*nx + hm[1]*ny + hm[2]) / den
			v := (hm[3]*nx + hm[4]*ny + hm[5]) / den
			c, ok := sampleBilinear(img, u*fw, v*fh)
			if !ok {
				continue
			}
			o := y*out.Stride + x*4
			out.Pix[o], out.Pix[o+1], out.Pix[o+2] = clamp8(c[0]), clamp8(c[1]), clamp8(c[2])
		}
	}
	return out
}

// solveHomography returns the eight free coefficients of the projective
// transform mapping from[i] onto to[i].
func solveHomography(from, to [4][2]float64) ([8]float64, error) {
	a := mat.NewDense(8, 8, nil)
	b := mat.NewVecDense(8, nil)
	for i := range 4 {
		x, y := from[i][0], from[i][1]
		u, v := to[i][0], to[i][1]
		a.SetRow(2*i, []float64{x, y, 1, 0, 0, 0, -u * x, -u * y})
		a.SetRow(2*i+1, []float64{0, 0, 0, x, y, 1, -v * x, -v * y})
		b.SetVec(2*i, u)
		b.SetVec(2*i+1, v)
	}

	var coeffs mat.VecDense
	if err := coeffs.SolveVec(a, b); err != nil {
		return [8]float64{}, err
	}
	var hm [8]float64
	for i := range hm {
		hm[i] = coeffs.AtVec(i)
	}
	return hm, nil
}

// partialCapture cuts amount of the frame from one random side and leaves
// the kept part where it was on a white canvas.
func partialCapture(img *image.RGBA, amount float64, rng *rand.Rand) *image.RGBA {
	w, h := img.Rect.Dx(), img.Rect.Dy()
	keepW := int(float64(w) * (1 - amount))
	keepH := int(float64(h) * (1 - amount))

	var kept image.Rectangle
	switch rng.IntN(4) {
	case 0: // top edge missing
		kept = image.Rect(0, h-keepH, w, h)
	case 1: // bottom edge missing
		kept = image.Rect(0, 0, w, keepH)
	case 2: // left edge missing
		kept = image.Rect(w-keepW, 0, w, h)
	default: // right edge missing
		kept = image.Rect(0, 0, keepW, h)
	}

	out := whiteCanvas(w, h)
	draw.Draw(out, kept, img, kept.Min, draw.Src)
	return out
}

// motionBlur smears along a horizontal line of size pixels, then along the
// same line tilted by up to 15 degrees, to imitate hand shake.
func motionBlur(img *image.RGBA, intensity float64, rng *rand.Rand) *image.RGBA {
	size := int(intensity)
	if size < 2 {
		return img
	}
	blurred := convolve(img, boxTaps(size))
	angle := uniform(rng, -15, 15)
	return convolve(blurred, lineTaps(size, angle))
}

// lineTaps rasterises a line kernel of the given length and angle in degrees.
func lineTaps(size int, angleDeg float64) []tap {
	radius := size/2 + 1
	dim := 2*radius + 1
	grid := make([]float64, dim*dim)

	theta := angleDeg * math.Pi / 180
	cos, sin := math.Cos(theta), math.Sin(theta)
	half := float64(size-1) / 2
	for i := range size {
		t := float64(i) - half
		px, py := t*cos+float64(radius), -t*sin+float64(radius)
		x0, y0 := int(math.Floor(px)), int(math.Floor(py))
		ax, ay := px-float64(x0), py-float64(y0)
		splat := func(x, y int, wt float64) {
			if x >= 0 && y >= 0 && x < dim && y < dim {
				grid[y*dim+x] += wt
			}
		}
		splat(x0, y0, (1-ax)*(1-ay))
		splat(x0+1, y0, ax*(1-ay))
		splat(x0, y0+1, (1-ax)*ay)
		splat(x0+1, y0+1, ax*ay)
	}

	var sum float64
	for _, v := range grid {
		sum += v
	}
	taps := make([]tap, 0, 2*size)
	for y := range dim {
		for x := range dim {
			if v := grid[y*dim+x]; v > 1e-9 {
				taps = append(taps, tap{dx: x - radius, dy: y - radius, w: v / sum})
			}
		}
	}
	return taps
}

// skew rotates the page about the image centre. The frame keeps its size,
// corners that rotate out are lost and uncovered areas become white.
func skew(img *image.RGBA, angleDeg float64) *image.RGBA {
	w, h := img.Rect.Dx(), img.Rect.Dy()
	theta := angleDeg * math.Pi / 180
	cos, sin := math.Cos(theta), math.Sin(theta)
	cx, cy := float64(w)/2, float64(h)/2

	// source to destination, counter-clockwise on screen
	s2d := f64.Aff3{
		cos, sin, cx - (cos*cx + sin*cy),
		-sin, cos, cy - (-sin*cx + cos*cy),
	}

	out := whiteCanvas(w, h)
	draw.BiLinear.Transform(out, s2d, img, img.Bounds(), draw.Src, nil)
	return out
}

// crumple displaces pixels around random centres to imitate creased paper.
func crumple(img *image.RGBA, factor float64, rng *rand.Rand) *image.RGBA {
	const radius = 50
	w, h := img.Rect.Dx(), img.Rect.Dy()
	out := cloneRGBA(img)

	points := int(20 * factor)
	for range points {
		px, py := rng.IntN(w), rng.IntN(h)
		dx, dy := float64(randInt(rng, -10, 10)), float64(randInt(rng, -10, 10))

		for y := max(0, py-radius); y < min(h, py+radius); y++ {
			for x := max(0, px-radius); x < min(w, px+radius); x++ {
				dist := math.Hypot(float64(x-px), float64(y-py))
				if dist >= radius {
					continue
				}
				f := (radius - dist) / radius * factor
				sx, sy := x+int(dx*f), y+int(dy*f)
				if sx < 0 || sy < 0 || sx >= w || sy >= h {
					continue
				}
				copy(out.Pix[y*out.Stride+x*4:y*out.Stride+x*4+4], img.Pix[sy*img.Stride+sx*4:sy*img.Stride+sx*4+4])
			}
		}
	}
	return out
}
