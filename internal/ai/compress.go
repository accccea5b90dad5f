package ai

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png"

	"github.com/desertthunder/rewind/internal/shared"
	"golang.org/x/image/draw"
)

// MaxCoverBytes is Spotify's ceiling for playlist cover uploads.
const MaxCoverBytes = 256 * 1024

// FitJPEG returns image bytes at or under max, re-encoding as JPEG when the
// input is too large. Quality steps down from 90 to 30; if that is not enough
// a single 80% downscale at quality 60 is tried. Results over max are an
// error, never a return value.
func FitJPEG(data []byte, max int) ([]byte, error) {
	if len(data) <= max {
		return data, nil
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode generated image: %w", err)
	}

	for quality := 90; quality >= 30; quality -= 10 {
		out, err := encodeJPEG(img, quality)
		if err != nil {
			return nil, err
		}
		if len(out) <= max {
			return out, nil
		}
	}

	// Last resort: shrink to 80% and try once more at low quality.
	bounds := img.Bounds()
	scaled := image.NewRGBA(image.Rect(0, 0, bounds.Dx()*4/5, bounds.Dy()*4/5))
	draw.CatmullRom.Scale(scaled, scaled.Bounds(), img, bounds, draw.Src, nil)

	out, err := encodeJPEG(scaled, 60)
	if err != nil {
		return nil, err
	}
	if len(out) <= max {
		return out, nil
	}

	return nil, fmt.Errorf("%w: %d bytes after compression, limit %d", shared.ErrImageTooLarge, len(out), max)
}

func encodeJPEG(img image.Image, quality int) ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, fmt.Errorf("failed to encode JPEG: %w", err)
	}
	return buf.Bytes(), nil
}
