// Package imaging normalizes uploaded screenshots before they are sent to
// the model: bounded size, no alpha, JPEG.
package imaging

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"image/color"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"
	"strings"

	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

const (
	DefaultMaxDimension = 1500
	DefaultJPEGQuality  = 85
	// DefaultMaxPixels caps decoded images at about 89 megapixels.
	DefaultMaxPixels = 89_478_485
)

var (
	// ErrEmptyImage is returned for a zero-length payload.
	ErrEmptyImage = errors.New("imaging: empty image")
	// ErrImageTooLarge is returned when the declared dimensions exceed
	// MaxPixels. Nothing is decoded in that case.
	ErrImageTooLarge = errors.New("imaging: image too large")
)

// Result describes a normalized image.
type Result struct {
	Data           []byte
	Format         string // source format as reported by image.Decode
	OriginalWidth  int
	OriginalHeight int
	Width          int
	Height         int
}

// Downscaled reports whether the image was resized.
func (r Result) Downscaled() bool {
	return r.Width != r.OriginalWidth || r.Height != r.OriginalHeight
}

// Normalizer converts images to bounded JPEGs.
type Normalizer struct {
	MaxDimension int
	Quality      int
	MaxPixels    int
}

// NewNormalizer returns a Normalizer, substituting defaults for
// non-positive arguments.
func NewNormalizer(maxDimension, quality int) *Normalizer {
	if maxDimension <= 0 {
		maxDimension = DefaultMaxDimension
	}
	if quality <= 0 || quality > 100 {
		quality = DefaultJPEGQuality
	}
	return &Normalizer{MaxDimension: maxDimension, Quality: quality, MaxPixels: DefaultMaxPixels}
}

// DecodeBase64 accepts a bare base64 payload or a data URL.
func DecodeBase64(s string) ([]byte, error) {
	if strings.HasPrefix(s, "data:") {
		if i := strings.IndexByte(s, ','); i >= 0 {
			s = s[i+1:]
		}
	}
	data, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		if raw, rawErr := base64.RawStdEncoding.DecodeString(s); rawErr == nil {
			return raw, nil
		}
		return nil, fmt.Errorf("imaging: invalid base64: %w", err)
	}
	return data, nil
}

// Normalize decodes data (PNG, JPEG, GIF or WebP), scales it so the longest
// side is at most MaxDimension, flattens transparency onto white and
// re-encodes as JPEG. Images already within bounds are still re-encoded.
// The header is checked against MaxPixels before the raster is decoded.
func (n *Normalizer) Normalize(data []byte) (Result, error) {
	if len(data) == 0 {
		return Result{}, ErrEmptyImage
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return Result{}, fmt.Errorf("imaging: decode: %w", err)
	}
	limit := n.MaxPixels
	if limit <= 0 {
		limit = DefaultMaxPixels
	}
	if int64(cfg.Width)*int64(cfg.Height) > int64(limit) {
		return Result{}, fmt.Errorf("%w: %dx%d exceeds %d pixels", ErrImageTooLarge, cfg.Width, cfg.Height, limit)
	}

	src, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return Result{}, fmt.Errorf("imaging: decode: %w", err)
	}

	b := src.Bounds()
	w, h := fitWithin(b.Dx(), b.Dy(), n.MaxDimension)

	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(dst, dst.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)
	if w == b.Dx() && h == b.Dy() {
		draw.Draw(dst, dst.Bounds(), src, b.Min, draw.Over)
	} else {
		draw.CatmullRom.Scale(dst, dst.Bounds(), src, b, draw.Over, nil)
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, dst, &jpeg.Options{Quality: n.Quality}); err != nil {
		return Result{}, fmt.Errorf("imaging: encode: %w", err)
	}

	return Result{
		Data:           buf.Bytes(),
		Format:         format,
		OriginalWidth:  b.Dx(),
		OriginalHeight: b.Dy(),
		Width:          w,
		Height:         h,
	}, nil
}

// fitWithin scales (w, h) so that max(w, h) <= limit, keeping aspect ratio.
func fitWithin(w, h, limit int) (int, int) {
	longest := max(w, h)
	if longest <= limit {
		return w, h
	}
	scale := float64(limit) / float64(longest)
	return max(1, int(float64(w)*scale)), max(1, int(float64(h)*scale))
}
