package imageproc

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"testing"
)

func encodePNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.NRGBA{R: uint8(x), G: uint8(y), B: 128, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestResizeImage(t *testing.T) {
	r, err := NewResizer("lanczos", 0)
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name       string
		w, h       int
		maxSide    int
		wantW      int
		wantH      int
		wantResize bool
	}{
		{"fits", 32, 16, 64, 32, 16, false},
		{"exact", 64, 64, 64, 64, 64, false},
		{"landscape", 128, 64, 32, 32, 16, true},
		{"portrait", 50, 200, 100, 25, 100, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := encodePNG(t, tt.w, tt.h)
			res, err := r.ResizeImage(context.Background(), data, "image/png", tt.maxSide)
			if err != nil {
				t.Fatalf("ResizeImage() error = %v", err)
			}
			if res.Resized != tt.wantResize {
				t.Errorf("Resized = %v, want %v", res.Resized, tt.wantResize)
			}
			cfg, _, err := image.DecodeConfig(bytes.NewReader(res.Data))
			if err != nil {
				t.Fatalf("output does not decode: %v", err)
			}
			if cfg.Width != tt.wantW || cfg.Height != tt.wantH {
				t.Errorf("size = %dx%d, want %dx%d", cfg.Width, cfg.Height, tt.wantW, tt.wantH)
			}
		})
	}
}

func TestResizeKeepsJPEG(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 64, 64))
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, nil); err != nil {
		t.Fatal(err)
	}
	r, err := NewResizer("linear", 80)
	if err != nil {
		t.Fatal(err)
	}
	res, err := r.ResizeImage(context.Background(), buf.Bytes(), "image/jpeg", 16)
	if err != nil {
		t.Fatal(err)
	}
	if res.MimeType != "image/jpeg" {
		t.Errorf("MimeType = %q, want image/jpeg", res.MimeType)
	}
	if _, format, err := image.DecodeConfig(bytes.NewReader(res.Data)); err != nil || format != "jpeg" {
		t.Errorf("output format = %q, err = %v", format, err)
	}
}

func TestResizeErrors(t *testing.T) {
	r, err := NewResizer("box", 90)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := r.ResizeImage(context.Background(), []byte("not an image"), "", 16); err == nil {
		t.Error("expected decode error")
	}
	if _, err := r.ResizeImage(context.Background(), encodePNG(t, 4, 4), "", 0); err == nil {
		t.Error("expected error for zero max side")
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := r.ResizeImage(ctx, encodePNG(t, 4, 4), "", 16); err == nil {
		t.Error("expected error for cancelled context")
	}

	if _, err := NewResizer("bicubic-ish", 90); err == nil {
		t.Error("expected error for unknown filter")
	}
}
