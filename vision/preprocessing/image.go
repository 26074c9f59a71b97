// Package preprocessing converts raster images into the float32 tensors the
// classifiers consume, and applies the randomized train-time augmentation.
package preprocessing

import (
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"io"

	"github.com/nfnt/resize"
)

// Channels is the number of color channels in every processed image.
const Channels = 3

// Processor decodes and resamples images to a fixed square resolution.
type Processor struct {
	targetSize int
}

// NewProcessor creates a processor for the given model input resolution.
func NewProcessor(targetSize int) (*Processor, error) {
	if targetSize <= 0 {
		return nil, fmt.Errorf("target size must be positive, got %d", targetSize)
	}
	return &Processor{targetSize: targetSize}, nil
}

// TargetSize returns the square resolution images are resampled to.
func (p *Processor) TargetSize() int {
	return p.targetSize
}

// ProcessedImage is a decoded image ready for classifier input.
type ProcessedImage struct {
	Data     []float32 // HWC layout, values in [0, 1]
	Width    int
	Height   int
	Channels int
}

// DecodeAndPreprocess decodes a JPEG or PNG image, resamples it to the
// target square resolution with Lanczos filtering, and rescales channel
// values to [0, 1] in HWC layout.
func (p *Processor) DecodeAndPreprocess(reader io.Reader) (*ProcessedImage, error) {
	img, _, err := image.Decode(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}

	size := uint(p.targetSize)
	resized := resize.Resize(size, size, img, resize.Lanczos3)

	data := make([]float32, Channels*p.targetSize*p.targetSize)
	for y := 0; y < p.targetSize; y++ {
		for x := 0; x < p.targetSize; x++ {
			r, g, b, _ := resized.At(x, y).RGBA()
			idx := (y*p.targetSize + x) * Channels
			data[idx] = float32(r) / 65535.0
			data[idx+1] = float32(g) / 65535.0
			data[idx+2] = float32(b) / 65535.0
		}
	}

	return &ProcessedImage{
		Data:     data,
		Width:    p.targetSize,
		Height:   p.targetSize,
		Channels: Channels,
	}, nil
}
