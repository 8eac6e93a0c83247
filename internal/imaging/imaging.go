// Package imaging prepares bird photos for the vision model: decode, bound the longest side,
// re-encode as JPEG and expose the result as base64.
package imaging

import (
	"bytes"
	"encoding/base64"
	"image"
	_ "image/gif" // register decoder
	"image/jpeg"
	_ "image/png" // register decoder
	"io"

	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp" // register decoder

	"github.com/birdlens/birdlens/internal/errors"
)

const (
	// DefaultMaxDimension bounds the longest side of the encoded image in pixels.
	DefaultMaxDimension = 512
	// DefaultQuality is the JPEG quality of the encoded image.
	DefaultQuality = 75
	// DefaultMaxPixels bounds the decoded source image (width × height) before any pixel
	// buffer is allocated.
	DefaultMaxPixels = 40_000_000
)

// Payload is an encoded photo ready to send to the vision model.
type Payload struct {
	JPEG   []byte // re-encoded image bytes
	Base64 string // standard base64 of JPEG, no data URI prefix
	Width  int
	Height int
	Format string // format of the source image
}

// Size returns the length of the encoded JPEG in bytes.
func (p *Payload) Size() int {
	return len(p.JPEG)
}

// DataURI returns the payload as a data:image/jpeg URI.
func (p *Payload) DataURI() string {
	return "data:image/jpeg;base64," + p.Base64
}

// Encoder downscales and re-encodes images. The zero value uses the defaults.
type Encoder struct {
	MaxDimension int
	Quality      int
	MaxPixels    int
}

// NewEncoder returns an encoder with the given bounds; non-positive values fall back to defaults.
func NewEncoder(maxDimension, quality, maxPixels int) *Encoder {
	return &Encoder{MaxDimension: maxDimension, Quality: quality, MaxPixels: maxPixels}
}

func (e *Encoder) limits() (maxDim, quality, maxPixels int) {
	maxDim, quality, maxPixels = e.MaxDimension, e.Quality, e.MaxPixels
	if maxDim <= 0 {
		maxDim = DefaultMaxDimension
	}
	if quality <= 0 || quality > 100 {
		quality = DefaultQuality
	}
	if maxPixels <= 0 {
		maxPixels = DefaultMaxPixels
	}
	return maxDim, quality, maxPixels
}

// Encode reads the whole image from r and encodes it like EncodeBytes.
func (e *Encoder) Encode(r io.Reader) (*Payload, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.New(err).
			Component("imaging").
			Category(errors.CategoryImageEncode).
			Context("operation", "read").
			Build()
	}
	return e.EncodeBytes(data)
}

// EncodeBytes decodes JPEG, PNG, GIF or WebP, scales it so neither side exceeds the maximum
// dimension, and re-encodes it as JPEG. Images already within bounds are never upscaled.
// The header is checked against the pixel budget before the image is decoded.
func (e *Encoder) EncodeBytes(data []byte) (*Payload, error) {
	if len(data) == 0 {
		return nil, errors.Newf("image is empty").
			Component("imaging").
			Category(errors.CategoryImageEncode).
			Build()
	}
	maxDim, quality, maxPixels := e.limits()

	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, errors.New(err).
			Component("imaging").
			Category(errors.CategoryImageEncode).
			Context("operation", "decode_config").
			Build()
	}
	if pixels := int64(cfg.Width) * int64(cfg.Height); pixels > int64(maxPixels) {
		return nil, errors.Newf("image is %dx%d, exceeds %d pixel budget", cfg.Width, cfg.Height, maxPixels).
			Component("imaging").
			Category(errors.CategoryImageEncode).
			Context("operation", "decode_config").
			Context("format", format).
			Build()
	}

	src, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, errors.New(err).
			Component("imaging").
			Category(errors.CategoryImageEncode).
			Context("operation", "decode").
			Build()
	}

	bounds := src.Bounds()
	if bounds.Dx() == 0 || bounds.Dy() == 0 {
		return nil, errors.Newf("image has no pixels").
			Component("imaging").
			Category(errors.CategoryImageEncode).
			Context("format", format).
			Build()
	}

	width, height := ScaledSize(bounds.Dx(), bounds.Dy(), maxDim)
	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	if width == bounds.Dx() && height == bounds.Dy() {
		draw.Draw(dst, dst.Bounds(), src, bounds.Min, draw.Src)
	} else {
		draw.CatmullRom.Scale(dst, dst.Bounds(), src, bounds, draw.Src, nil)
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, dst, &jpeg.Options{Quality: quality}); err != nil {
		return nil, errors.New(err).
			Component("imaging").
			Category(errors.CategoryImageEncode).
			Context("operation", "encode").
			Context("format", format).
			Build()
	}

	return &Payload{
		JPEG:   buf.Bytes(),
		Base64: base64.StdEncoding.EncodeToString(buf.Bytes()),
		Width:  width,
		Height: height,
		Format: format,
	}, nil
}

// ScaledSize returns the dimensions of a w×h image scaled uniformly so that neither side
// exceeds maxDim. The scale factor is clamped to 1 and each side is at least one pixel.
func ScaledSize(w, h, maxDim int) (int, int) {
	longest := max(w, h)
	if longest <= maxDim {
		return w, h
	}
	scale := float64(maxDim) / float64(longest)
	sw := max(int(float64(w)*scale+0.5), 1)
	sh := max(int(float64(h)*scale+0.5), 1)
	return min(sw, maxDim), min(sh, maxDim)
}
