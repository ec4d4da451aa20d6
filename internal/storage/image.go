package storage

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"

	"github.com/gabriel-vasile/mimetype"
	"golang.org/x/image/draw"
	"golang.org/x/image/webp"
)

var (
	ErrTooLarge     = errors.New("file too large")
	ErrInvalidImage = errors.New("invalid image")
	ErrUnsupported  = errors.New("unsupported image type")
)

type ThumbnailOptions struct {
	MaxDim      int
	JPEGQuality int
	// Transparent sources are flattened onto this background.
	Background color.RGBA
}

func DefaultThumbnailOptions() ThumbnailOptions {
	return ThumbnailOptions{
		MaxDim:      320,
		JPEGQuality: 80,
		Background:  color.RGBA{R: 255, G: 255, B: 255, A: 255},
	}
}

// IsThumbnailable reports whether MakeThumbnail can decode the given MIME type.
func IsThumbnailable(mimeType string) bool {
	switch mimeType {
	case "image/jpeg", "image/png", "image/webp":
		return true
	}
	return false
}

func decodeImage(data []byte) (image.Image, error) {
	switch mimetype.Detect(data).String() {
	case "image/jpeg":
		return jpeg.Decode(bytes.NewReader(data))
	case "image/png":
		return png.Decode(bytes.NewReader(data))
	case "image/webp":
		return webp.Decode(bytes.NewReader(data))
	default:
		return nil, ErrUnsupported
	}
}

// fitWithin scales w x h down to fit a maxDim square, keeping aspect. It never upscales.
func fitWithin(w, h, maxDim int) (int, int) {
	if w <= maxDim && h <= maxDim {
		return w, h
	}
	var tw, th int
	if w >= h {
		tw = maxDim
		th = int(float64(h) * (float64(maxDim) / float64(w)))
	} else {
		th = maxDim
		tw = int(float64(w) * (float64(maxDim) / float64(h)))
	}
	return max(tw, 1), max(th, 1)
}

// MakeThumbnail decodes an image attachment and renders a JPEG preview of it.
func MakeThumbnail(data []byte, opts ThumbnailOptions) ([]byte, error) {
	if opts.MaxDim <= 0 {
		opts.MaxDim = 320
	}
	if opts.JPEGQuality <= 0 || opts.JPEGQuality > 100 {
		opts.JPEGQuality = 80
	}

	img, err := decodeImage(data)
	if err != nil {
		if errors.Is(err, ErrUnsupported) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidImage, err)
	}

	bounds := img.Bounds()
	if bounds.Dx() <= 0 || bounds.Dy() <= 0 {
		return nil, ErrInvalidImage
	}
	tw, th := fitWithin(bounds.Dx(), bounds.Dy(), opts.MaxDim)

	dst := image.NewRGBA(image.Rect(0, 0, tw, th))
	draw.Draw(dst, dst.Bounds(), image.NewUniform(opts.Background), image.Point{}, draw.Src)
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, bounds, draw.Over, nil)

	var out bytes.Buffer
	if err := jpeg.Encode(&out, dst, &jpeg.Options{Quality: opts.JPEGQuality}); err != nil {
		return nil, fmt.Errorf("encode: %w", err)
	}
	return out.Bytes(), nil
}
