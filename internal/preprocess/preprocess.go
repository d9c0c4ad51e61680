// Package preprocess decodes uploaded document images and converts them to
// the normalised NCHW tensors the models were trained on.
package preprocess

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	_ "image/jpeg" // register decoders
	_ "image/png"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"

	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/tphakala/docquality/internal/errors"
	"github.com/tphakala/docquality/internal/model"
)

// InputSize is the square edge length fed to both networks.
const InputSize = 224

// ImageNet channel statistics the backbones were trained with.
var (
	Mean = [3]float32{0.485, 0.456, 0.406}
	Std  = [3]float32{0.229, 0.224, 0.225}
)

// sourceExtensions are the document formats picked up for dataset synthesis.
var sourceExtensions = []string{".jpg", ".jpeg", ".png", ".tiff", ".tif", ".bmp"}

// IsSourceImage reports whether name has a supported source document
// extension, ignoring case.
func IsSourceImage(name string) bool {
	return slices.Contains(sourceExtensions, strings.ToLower(filepath.Ext(name)))
}

// Limits checked against the image header before any pixel is decoded.
const (
	MaxImageSide   = 20000
	MaxImagePixels = 50_000_000
)

// Decode reads an image in any registered format.
func Decode(r io.Reader) (image.Image, string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, "", errors.New(fmt.Errorf("read image: %w", err)).
			Component("preprocess").
			Category(errors.CategoryImageDecode).
			Build()
	}
	return decode(data)
}

// DecodeBytes decodes an in-memory upload.
func DecodeBytes(data []byte) (image.Image, error) {
	img, _, err := decode(data)
	return img, err
}

func decode(data []byte) (image.Image, string, error) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, "", errors.New(fmt.Errorf("decode image header: %w", err)).
			Component("preprocess").
			Category(errors.CategoryImageDecode).
			Build()
	}
	if err := checkDimensions(cfg.Width, cfg.Height); err != nil {
		return nil, "", err
	}

	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, "", errors.New(fmt.Errorf("decode image: %w", err)).
			Component("preprocess").
			Category(errors.CategoryImageDecode).
			Build()
	}
	if b := img.Bounds(); b.Empty() {
		return nil, "", errors.Newf("image has no pixels (%dx%d)", b.Dx(), b.Dy()).
			Component("preprocess").
			Category(errors.CategoryImageDecode).
			Build()
	}
	return img, format, nil
}

func checkDimensions(w, h int) error {
	if w > MaxImageSide || h > MaxImageSide || int64(w)*int64(h) > MaxImagePixels {
		return errors.Newf("image is %dx%d, limit is %d pixels per side and %d pixels total", w, h, MaxImageSide, MaxImagePixels).
			Component("preprocess").
			Category(errors.CategoryValidation).
			Context("width", w).
			Context("height", h).
			Build()
	}
	return nil
}

// DecodeFile opens and decodes an image file.
func DecodeFile(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.New(err).
			Component("preprocess").
			Category(errors.CategoryFileIO).
			FileContext(path, 0).
			Build()
	}
	defer f.Close() //nolint:errcheck // read-only

	img, _, err := Decode(f)
	return img, err
}

// ToRGB flattens img onto white and returns an opaque RGBA copy with its
// origin at (0, 0).
func ToRGB(img image.Image) *image.RGBA {
	b := img.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)
	draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Over)
	return dst
}

// Resize scales img to InputSize x InputSize with bilinear filtering,
// ignoring the aspect ratio.
func Resize(img image.Image) *image.RGBA {
	dst := image.NewRGBA(image.Rect(0, 0, InputSize, InputSize))
	draw.Draw(dst, dst.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)
	draw.BiLinear.Scale(dst, dst.Bounds(), img, img.Bounds(), draw.Over, nil)
	return dst
}

// writeCHW normalises a resized image into dst laid out as (3, H, W).
func writeCHW(dst []float32, img *image.RGBA) {
	plane := InputSize * InputSize
	for y := range InputSize {
		row := img.Pix[y*img.Stride:]
		for x := range InputSize {
			i := y*InputSize + x
			for ch := range 3 {
				v := float32(row[x*4+ch]) / 255.0
				dst[ch*plane+i] = (v - Mean[ch]) / Std[ch]
			}
		}
	}
}

// ToTensor converts one image into a (1, 3, 224, 224) tensor.
func ToTensor(img image.Image) *model.Tensor {
	t := model.NewTensor(1, 3, InputSize, InputSize)
	writeCHW(t.Data, Resize(img))
	return t
}

// Batch resizes every image and stacks them into one (N, 3, 224, 224)
// tensor, so images of different sizes batch together.
func Batch(imgs []image.Image) (*model.Tensor, error) {
	if len(imgs) == 0 {
		return nil, errors.ValidationError("cannot build a batch from zero images")
	}
	t := model.NewTensor(len(imgs), 3, InputSize, InputSize)
	for i, img := range imgs {
		if img == nil || img.Bounds().Empty() {
			return nil, errors.Newf("batch image %d is empty", i).
				Component("preprocess").
				Category(errors.CategoryValidation).
				Build()
		}
		writeCHW(t.Item(i), Resize(img))
	}
	return t, nil
}
