package degrade

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
)

// compressionSettings returns the JPEG quality and the number of re-encode
// rounds. A neutral quality with artifacts set derives the quality from the
// artifact level.
func compressionSettings(p Params) (quality, rounds int) {
	quality = p.CompressionQuality
	if quality >= NeutralCompressionQuality && p.JPEGArtifacts > 0 {
		quality = int(100 * (1 - p.JPEGArtifacts))
	}
	quality = clampInt(quality, 1, 100)
	rounds = max(1, int(p.JPEGArtifacts*3)+1)
	return quality, rounds
}

func needsCompression(p Params) bool {
	return p.CompressionQuality < NeutralCompressionQuality || p.JPEGArtifacts > 0
}

// recompress encodes and decodes img the given number of times, compounding
// block artifacts like a photo forwarded through several apps.
func recompress(img *image.RGBA, quality, rounds int) (*image.RGBA, error) {
	var buf bytes.Buffer
	current := img
	for round := range rounds {
		buf.Reset()
		if err := jpeg.Encode(&buf, current, &jpeg.Options{Quality: quality}); err != nil {
			return nil, fmt.Errorf("jpeg encode round %d: %w", round+1, err)
		}
		decoded, err := jpeg.Decode(&buf)
		if err != nil {
			return nil, fmt.Errorf("jpeg decode round %d: %w", round+1, err)
		}
		current = toRGBA(decoded)
	}
	return current, nil
}
