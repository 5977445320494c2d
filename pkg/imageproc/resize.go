// Package imageproc downsizes the textures embedded in an avatar.
package imageproc

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"strings"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"
)

// DefaultJPEGQuality is used when a Resizer has no quality set.
const DefaultJPEGQuality = 90

// DefaultFilter is the resampling filter used by default.
var DefaultFilter = imaging.Lanczos

var filters = map[string]imaging.ResampleFilter{
	"lanczos":    imaging.Lanczos,
	"catmullrom": imaging.CatmullRom,
	"linear":     imaging.Linear,
	"box":        imaging.Box,
	"nearest":    imaging.NearestNeighbor,
}

// FilterByName returns the resampling filter for a config name.
func FilterByName(name string) (imaging.ResampleFilter, error) {
	f, ok := filters[strings.ToLower(name)]
	if !ok {
		return imaging.ResampleFilter{}, fmt.Errorf("unknown resample filter %q", name)
	}
	return f, nil
}

// Result is a re-encoded image.
type Result struct {
	Data     []byte
	MimeType string
	Width    int
	Height   int
	// Resized is false when the image already fit and Data is the input.
	Resized bool
}

// Resizer scales images down so that neither side exceeds a limit.
type Resizer struct {
	Filter      imaging.ResampleFilter
	JPEGQuality int
}

// NewResizer creates a Resizer using the named filter.
func NewResizer(filter string, jpegQuality int) (*Resizer, error) {
	f, err := FilterByName(filter)
	if err != nil {
		return nil, err
	}
	if jpegQuality <= 0 || jpegQuality > 100 {
		jpegQuality = DefaultJPEGQuality
	}
	return &Resizer{Filter: f, JPEGQuality: jpegQuality}, nil
}

// ResizeImage decodes data and, when a side is larger than maxSide, scales
// it to fit keeping the aspect ratio. JPEG input is written back as JPEG,
// everything else as PNG.
func (r *Resizer) ResizeImage(ctx context.Context, data []byte, mimeType string, maxSide int) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	if maxSide <= 0 {
		return Result{}, fmt.Errorf("max side must be positive, got %d", maxSide)
	}

	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return Result{}, fmt.Errorf("decode image header: %w", err)
	}
	if cfg.Width <= maxSide && cfg.Height <= maxSide {
		return Result{Data: data, MimeType: mimeType, Width: cfg.Width, Height: cfg.Height}, nil
	}

	img, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		return Result{}, fmt.Errorf("decode image: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	dst := imaging.Fit(img, maxSide, maxSide, r.Filter)

	var buf bytes.Buffer
	outMime := "image/png"
	if format == "jpeg" {
		outMime = "image/jpeg"
		quality := r.JPEGQuality
		if quality == 0 {
			quality = DefaultJPEGQuality
		}
		err = imaging.Encode(&buf, dst, imaging.JPEG, imaging.JPEGQuality(quality))
	} else {
		err = imaging.Encode(&buf, dst, imaging.PNG)
	}
	if err != nil {
		return Result{}, fmt.Errorf("encode image: %w", err)
	}

	b := dst.Bounds()
	return Result{Data: buf.Bytes(), MimeType: outMime, Width: b.Dx(), Height: b.Dy(), Resized: true}, nil
}
