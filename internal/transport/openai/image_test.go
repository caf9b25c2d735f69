package openai

import (
	"bytes"
	"encoding/base64"
	"errors"
	"image"
	"image/jpeg"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/kailas-cloud/imagedex/internal/domain"
)

func decodeURI(t *testing.T, uri string) image.Image {
	t.Helper()
	raw, ok := strings.CutPrefix(uri, "data:image/jpeg;base64,")
	if !ok {
		t.Fatalf("not a jpeg data uri: %.40s", uri)
	}
	data, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		t.Fatal(err)
	}
	img, err := jpeg.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatal(err)
	}
	return img
}

func TestLoadImage_Resize(t *testing.T) {
	tests := []struct {
		name         string
		w, h, side   int
		wantW, wantH int
	}{
		{"landscape", 200, 100, 64, 64, 32},
		{"portrait", 100, 200, 64, 32, 64},
		{"small stays", 40, 30, 64, 40, 30},
		{"no limit", 200, 100, 0, 200, 100},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			p := writePNG(t, t.TempDir(), "x.png", tc.w, tc.h)
			uri, err := loadImage(p, tc.side)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			b := decodeURI(t, uri).Bounds()
			if b.Dx() != tc.wantW || b.Dy() != tc.wantH {
				t.Errorf("size = %dx%d, want %dx%d", b.Dx(), b.Dy(), tc.wantW, tc.wantH)
			}
		})
	}
}

func TestLoadImage_NotAnImage(t *testing.T) {
	p := filepath.Join(t.TempDir(), "fake.jpg")
	if err := os.WriteFile(p, []byte("not an image"), 0o644); err != nil {
		t.Fatal(err)
	}
	_, err := loadImage(p, 0)
	if !errors.Is(err, domain.ErrInvalidImage) {
		t.Errorf("expected ErrInvalidImage, got %v", err)
	}
}

func TestFlatten_TransparentBecomesWhite(t *testing.T) {
	src := image.NewNRGBA(image.Rect(0, 0, 2, 2)) // fully transparent
	dst := flatten(src, 0)
	r, g, b, _ := dst.At(0, 0).RGBA()
	if r != 0xffff || g != 0xffff || b != 0xffff {
		t.Errorf("pixel = %d,%d,%d, want white", r, g, b)
	}
}
