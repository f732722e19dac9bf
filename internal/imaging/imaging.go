// internal/imaging/imaging.go

// Package imaging sniffs, decodes and normalizes plate photos before they
// are stored or sent to a vision model.
package imaging

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	_ "image/png"

	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

var ErrUnsupportedFormat = errors.New("unsupported image format")

// Format is a sniffed image container format.
type Format string

const (
	FormatUnknown Format = ""
	FormatPNG     Format = "png"
	FormatJPEG    Format = "jpeg"
	FormatWebP    Format = "webp"
)

const jpegQuality = 85

var (
	pngMagic  = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n'}
	jpegMagic = []byte{0xff, 0xd8, 0xff}
)

// Sniff identifies the format from magic bytes.
func Sniff(data []byte) Format {
	switch {
	case bytes.HasPrefix(data, pngMagic):
		return FormatPNG
	case bytes.HasPrefix(data, jpegMagic):
		return FormatJPEG
	case len(data) >= 12 && string(data[0:4]) == "RIFF" && string(data[8:12]) == "WEBP":
		return FormatWebP
	default:
		return FormatUnknown
	}
}

// Extension is the file extension used when storing f. Unknown formats are
// stored as png.
func (f Format) Extension() string {
	switch f {
	case FormatJPEG:
		return "jpg"
	case FormatWebP:
		return "webp"
	default:
		return "png"
	}
}

// ContentType is the MIME type matching Extension.
func (f Format) ContentType() string {
	switch f {
	case FormatJPEG:
		return "image/jpeg"
	case FormatWebP:
		return "image/webp"
	default:
		return "image/png"
	}
}

// Normalized is an image re-encoded for model input.
type Normalized struct {
	Data          []byte
	MIMEType      string
	Width, Height int
}

// DefaultMaxPixels bounds the decoded size when Limits.MaxPixels is unset.
const DefaultMaxPixels = 40_000_000

// Limits bound the work Normalize will do for one image.
type Limits struct {
	// MaxDim caps the longest side of the output; 0 disables scaling.
	MaxDim int
	// MaxPixels rejects images whose header declares more pixels.
	MaxPixels int
}

// Normalize decodes data, flattens any alpha channel onto white, scales it
// so the longest side is at most limits.MaxDim and re-encodes it as JPEG.
// The header is checked against limits.MaxPixels before any pixel data is
// decoded.
func Normalize(data []byte, limits Limits) (Normalized, error) {
	maxPixels := limits.MaxPixels
	if maxPixels <= 0 {
		maxPixels = DefaultMaxPixels
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return Normalized{}, fmt.Errorf("%w: %v", ErrUnsupportedFormat, err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 || int64(cfg.Width)*int64(cfg.Height) > int64(maxPixels) {
		return Normalized{}, fmt.Errorf("%w: %dx%d exceeds %d pixels", ErrUnsupportedFormat, cfg.Width, cfg.Height, maxPixels)
	}

	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return Normalized{}, fmt.Errorf("%w: %v", ErrUnsupportedFormat, err)
	}

	bounds := src.Bounds()
	w, h := scaledSize(bounds.Dx(), bounds.Dy(), limits.MaxDim)

	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(dst, dst.Bounds(), &image.Uniform{C: color.White}, image.Point{}, draw.Src)
	if w == bounds.Dx() && h == bounds.Dy() {
		draw.Draw(dst, dst.Bounds(), src, bounds.Min, draw.Over)
	} else {
		draw.CatmullRom.Scale(dst, dst.Bounds(), src, bounds, draw.Over, nil)
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, dst, &jpeg.Options{Quality: jpegQuality}); err != nil {
		return Normalized{}, fmt.Errorf("encode jpeg: %w", err)
	}
	return Normalized{Data: buf.Bytes(), MIMEType: "image/jpeg", Width: w, Height: h}, nil
}

func scaledSize(w, h, maxDim int) (int, int) {
	longest := max(w, h)
	if maxDim <= 0 || longest <= maxDim {
		return w, h
	}
	sw := max(1, w*maxDim/longest)
	sh := max(1, h*maxDim/longest)
	return sw, sh
}
