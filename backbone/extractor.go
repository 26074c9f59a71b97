// Package backbone pairs a frozen pre-trained convolutional feature
// extractor with a trainable classification head. The extractor is consumed
// as an opaque ONNX graph; only the head's parameters ever change.
package backbone

import (
	"fmt"
)

// FeatureExtractor is the externally-supplied frozen stage of a classifier.
// Implementations expose no way to modify their parameters.
type FeatureExtractor interface {
	// Features runs the extractor on a batch of HWC images (batch x size x
	// size x 3, values in [0, 1]) and returns the concatenated per-image
	// outputs: either pooled vectors (batch x FeatureDim) or spatial maps
	// (batch x FeatureDim x SpatialSize x SpatialSize, CHW per image).
	Features(images []float32, batch int) ([]float32, error)

	// InputSize returns the square input resolution the extractor expects.
	InputSize() int

	// FeatureDim returns the number of output channels.
	FeatureDim() int

	// SpatialSize returns the side length of the output feature map, or 1
	// when the extractor already pools spatially.
	SpatialSize() int

	Close() error
}

// GlobalAvgPool reduces spatial feature maps (batch x channels x spatial x
// spatial) to pooled vectors (batch x channels).
func GlobalAvgPool(features []float32, batch, channels, spatial int) ([]float32, error) {
	area := spatial * spatial
	if len(features) != batch*channels*area {
		return nil, fmt.Errorf("feature length %d doesn't match %dx%dx%dx%d", len(features), batch, channels, spatial, spatial)
	}

	pooled := make([]float32, batch*channels)
	for b := 0; b < batch; b++ {
		for c := 0; c < channels; c++ {
			offset := (b*channels + c) * area
			var sum float32
			for i := 0; i < area; i++ {
				sum += features[offset+i]
			}
			pooled[b*channels+c] = sum / float32(area)
		}
	}
	return pooled, nil
}
