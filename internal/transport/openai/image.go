package openai

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	_ "image/gif" // register decoders
	"image/jpeg"
	_ "image/png"
	"os"

	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"

	"github.com/kailas-cloud/imagedex/internal/domain"
)

const jpegQuality = 90

// loadImage reads an image file and returns it as a JPEG data URI, scaled
// down so its longer side is at most maxSide (0 keeps the original size).
// Animated GIFs contribute their first frame.
func loadImage(path string, maxSide int) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("%w: %s", domain.ErrImageNotFound, path)
		}
		return "", fmt.Errorf("open image: %w", err)
	}
	defer f.Close()

	src, _, err := image.Decode(f)
	if err != nil {
		return "", fmt.Errorf("%w: decode %s: %w", domain.ErrInvalidImage, path, err)
	}
	return encodeDataURI(flatten(src, maxSide))
}

// flatten draws src onto a white canvas, scaled down so its longer side is
// at most maxSide. JPEG has no alpha channel.
func flatten(src image.Image, maxSide int) *image.RGBA {
	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	nw, nh := w, h
	if maxSide > 0 && max(w, h) > maxSide {
		if w >= h {
			nw, nh = maxSide, max(1, h*maxSide/w)
		} else {
			nw, nh = max(1, w*maxSide/h), maxSide
		}
	}

	dst := image.NewRGBA(image.Rect(0, 0, nw, nh))
	draw.Draw(dst, dst.Bounds(), image.White, image.Point{}, draw.Src)
	if nw == w && nh == h {
		draw.Draw(dst, dst.Bounds(), src, b.Min, draw.Over)
	} else {
		draw.CatmullRom.Scale(dst, dst.Bounds(), src, b, draw.Over, nil)
	}
	return dst
}

func encodeDataURI(img image.Image) (string, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: jpegQuality}); err != nil {
		return "", fmt.Errorf("encode jpeg: %w", err)
	}
	return "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}
