package imagegen

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"

	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"

	"promptbatch/jobqueue"
)

// Image errors.
var (
	ErrEmptyImage   = errors.New("imagegen: empty image data")
	ErrInvalidImage = errors.New("imagegen: invalid image data")
)

// InspectImage reads the format and size of encoded image data without
// decoding the pixels. PNG, JPEG, GIF and WebP are recognised.
func InspectImage(data []byte) (jobqueue.Image, error) {
	if len(data) == 0 {
		return jobqueue.Image{}, ErrEmptyImage
	}
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return jobqueue.Image{}, fmt.Errorf("%w: %v", ErrInvalidImage, err)
	}
	return jobqueue.Image{Data: data, Format: format, Width: cfg.Width, Height: cfg.Height}, nil
}

// DecodeImage decodes image data in any recognised format.
func DecodeImage(data []byte) (image.Image, error) {
	if len(data) == 0 {
		return nil, ErrEmptyImage
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidImage, err)
	}
	return img, nil
}

// Thumbnail scales img to fit within size x size, keeping its aspect
// ratio. Images already small enough are returned unchanged.
func Thumbnail(img image.Image, size int) image.Image {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if size <= 0 || (w <= size && h <= size) {
		return img
	}
	scale := float64(size) / float64(max(w, h))
	tw, th := max(1, int(float64(w)*scale)), max(1, int(float64(h)*scale))

	dst := image.NewRGBA(image.Rect(0, 0, tw, th))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, b, draw.Over, nil)
	return dst
}

// EncodePNG encodes img as PNG.
func EncodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("imagegen: failed to encode png: %w", err)
	}
	return buf.Bytes(), nil
}

// PlaceholderPNG renders a width x height PNG filled with a colour derived
// from seed, so repeated seeds give identical images.
func PlaceholderPNG(width, height int, seed int64) ([]byte, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("imagegen: invalid placeholder size %dx%d", width, height)
	}
	fill := color.RGBA{R: uint8(seed), G: uint8(seed >> 8), B: uint8(seed >> 16), A: 0xff}
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.Draw(img, img.Bounds(), &image.Uniform{C: fill}, image.Point{}, draw.Src)
	return EncodePNG(img)
}
