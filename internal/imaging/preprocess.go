// Package imaging turns uploaded images into model input tensors.
package imaging

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"io"

	"github.com/nfnt/resize"

	"github.com/Brownie44l1/agri-ml/internal/model"
)

const channels = 3

// DefaultMaxPixels is the largest width×height Decode accepts when no limit
// is given. It matches the decompression-bomb threshold used by Pillow.
const DefaultMaxPixels = 89_478_485

var (
	// ErrUnsupportedFormat is returned for bytes that are not a JPEG or PNG image.
	ErrUnsupportedFormat = errors.New("unsupported image format, expected JPEG or PNG")
	// ErrTooLarge is returned when the declared dimensions exceed the pixel limit.
	ErrTooLarge = errors.New("image dimensions exceed the pixel limit")
)

// Decode reads a JPEG or PNG image. The header is checked against maxPixels
// before any pixel data is decoded; maxPixels <= 0 uses DefaultMaxPixels.
func Decode(r io.Reader, maxPixels int) (image.Image, string, error) {
	if maxPixels <= 0 {
		maxPixels = DefaultMaxPixels
	}

	var header bytes.Buffer
	cfg, _, err := image.DecodeConfig(io.TeeReader(r, &header))
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrUnsupportedFormat, err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 || int64(cfg.Width)*int64(cfg.Height) > int64(maxPixels) {
		return nil, "", fmt.Errorf("%w: %dx%d, limit %d pixels", ErrTooLarge, cfg.Width, cfg.Height, maxPixels)
	}

	img, format, err := image.Decode(io.MultiReader(&header, r))
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrUnsupportedFormat, err)
	}
	return img, format, nil
}

// Tensor resizes img to size×size and flattens its RGB channels into the
// layout and scale the model expects. Alpha is dropped.
func Tensor(img image.Image, size int, layout, scale string) ([]float32, error) {
	if size <= 0 {
		return nil, fmt.Errorf("invalid target size %d", size)
	}

	resized := resize.Resize(uint(size), uint(size), img, resize.Lanczos3)

	bounds := resized.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	plane := width * height
	data := make([]float32, channels*plane)

	divisor := float32(255)
	if scale == model.ScaleRGBA16 {
		divisor = 65535
	}

	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			r, g, b, _ := resized.At(bounds.Min.X+x, bounds.Min.Y+y).RGBA()
			rgb := [channels]float32{channelValue(r, scale), channelValue(g, scale), channelValue(b, scale)}

			pixel := y*width + x
			for c, v := range rgb {
				v /= divisor
				switch layout {
				case model.LayoutNHWC:
					data[pixel*channels+c] = v
				default:
					data[c*plane+pixel] = v
				}
			}
		}
	}

	return data, nil
}

// channelValue reduces a 16-bit color value to 8 bits unless the model
// expects the full range.
func channelValue(v uint32, scale string) float32 {
	if scale == model.ScaleRGBA16 {
		return float32(v)
	}
	return float32(v >> 8)
}

// FromMetadata prepares img for the model described by m.
func FromMetadata(img image.Image, m model.Metadata) ([]float32, error) {
	data, err := Tensor(img, m.ImageSize, m.Layout, m.Scale)
	if err != nil {
		return nil, err
	}
	if len(data) != m.InputSize() {
		return nil, fmt.Errorf("preprocessed %d values, model expects %d", len(data), m.InputSize())
	}
	return data, nil
}
