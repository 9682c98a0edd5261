// Package media prepares images for upload: decode, downscale, re-encode, preview.
package media

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"io"
	"math"

	// Registered decoders.
	_ "image/gif"
	_ "image/png"

	"golang.org/x/image/draw"
)

// ErrDecode is returned when the input is not a supported image.
var ErrDecode = errors.New("media: cannot decode image")

const ContentType = "image/jpeg"

// Compressed is a re-encoded image.
type Compressed struct {
	Data   []byte
	Width  int
	Height int
	// Source dimensions before scaling.
	SourceWidth  int
	SourceHeight int
}

// Compress decodes r, scales it to fit within maxWidth x maxHeight keeping the
// aspect ratio, and encodes it as JPEG at quality (1..100). Images already
// within bounds are re-encoded without scaling.
func Compress(r io.Reader, maxWidth, maxHeight, quality int) (Compressed, error) {
	if maxWidth <= 0 || maxHeight <= 0 {
		return Compressed{}, fmt.Errorf("media: invalid bounds %dx%d", maxWidth, maxHeight)
	}
	if quality < 1 || quality > 100 {
		return Compressed{}, fmt.Errorf("media: quality %d out of range 1..100", quality)
	}
	src, _, err := image.Decode(r)
	if err != nil {
		return Compressed{}, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	b := src.Bounds()
	w, h := Fit(b.Dx(), b.Dy(), maxWidth, maxHeight)

	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	if w == b.Dx() && h == b.Dy() {
		draw.Draw(dst, dst.Bounds(), src, b.Min, draw.Src)
	} else {
		draw.CatmullRom.Scale(dst, dst.Bounds(), src, b, draw.Src, nil)
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, dst, &jpeg.Options{Quality: quality}); err != nil {
		return Compressed{}, fmt.Errorf("media: encode: %w", err)
	}
	return Compressed{
		Data:         buf.Bytes(),
		Width:        w,
		Height:       h,
		SourceWidth:  b.Dx(),
		SourceHeight: b.Dy(),
	}, nil
}

// Fit scales w x h down so neither side exceeds its max. Never upscales.
func Fit(w, h, maxWidth, maxHeight int) (int, int) {
	if w <= maxWidth && h <= maxHeight {
		return w, h
	}
	ratio := math.Min(float64(maxWidth)/float64(w), float64(maxHeight)/float64(h))
	nw := int(math.Round(float64(w) * ratio))
	nh := int(math.Round(float64(h) * ratio))
	return clamp(nw, maxWidth), clamp(nh, maxHeight)
}

func clamp(v, hi int) int {
	if v < 1 {
		return 1
	}
	if v > hi {
		return hi
	}
	return v
}
