package backbone

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/technic0/iFood2019/training"
)

// Head is the trainable stage of a classifier: a fully-connected projection
// from pooled backbone features to class logits, followed by softmax.
// Weight layout is row-major [inFeatures, numClasses].
type Head struct {
	inFeatures int
	numClasses int
	weights    []float32
	bias       []float32
}

// NewHead creates a head with scaled random weight initialization.
func NewHead(inFeatures, numClasses int, seed int64) (*Head, error) {
	if inFeatures <= 0 {
		return nil, fmt.Errorf("input feature count must be positive, got %d", inFeatures)
	}
	if numClasses <= 0 {
		return nil, fmt.Errorf("class count must be positive, got %d", numClasses)
	}

	rng := rand.New(rand.NewSource(seed))
	scale := float32(1 / math.Sqrt(float64(inFeatures)))
	weights := make([]float32, inFeatures*numClasses)
	for i := range weights {
		weights[i] = (rng.Float32()*2 - 1) * scale
	}

	return &Head{
		inFeatures: inFeatures,
		numClasses: numClasses,
		weights:    weights,
		bias:       make([]float32, numClasses),
	}, nil
}

// InFeatures returns the pooled feature dimension the head expects.
func (h *Head) InFeatures() int {
	return h.inFeatures
}

// NumClasses returns the output dimension.
func (h *Head) NumClasses() int {
	return h.numClasses
}

// Params returns the trainable tensors in optimizer order: weights, bias.
// The slices alias the head's state so optimizer steps apply directly.
func (h *Head) Params() [][]float32 {
	return [][]float32{h.weights, h.bias}
}

// SetParams replaces the head parameters, validating shapes.
func (h *Head) SetParams(weights, bias []float32) error {
	if len(weights) != h.inFeatures*h.numClasses {
		return fmt.Errorf("weight length %d doesn't match %dx%d", len(weights), h.inFeatures, h.numClasses)
	}
	if len(bias) != h.numClasses {
		return fmt.Errorf("bias length %d doesn't match %d classes", len(bias), h.numClasses)
	}
	copy(h.weights, weights)
	copy(h.bias, bias)
	return nil
}

// Forward maps pooled features (batch x inFeatures) to probability rows
// (batch x numClasses).
func (h *Head) Forward(features []float32, batch int) ([]float32, error) {
	if len(features) != batch*h.inFeatures {
		return nil, fmt.Errorf("feature length %d doesn't match batch %d x %d", len(features), batch, h.inFeatures)
	}

	logits := make([]float32, batch*h.numClasses)
	for b := 0; b < batch; b++ {
		feat := features[b*h.inFeatures : (b+1)*h.inFeatures]
		row := logits[b*h.numClasses : (b+1)*h.numClasses]
		copy(row, h.bias)
		for i, f := range feat {
			if f == 0 {
				continue
			}
			wRow := h.weights[i*h.numClasses : (i+1)*h.numClasses]
			for j, w := range wRow {
				row[j] += f * w
			}
		}
	}

	return training.Softmax(logits, batch, h.numClasses)
}

// Gradients backpropagates a logit gradient (batch x numClasses) through
// the projection, returning weight and bias gradients in Params order.
func (h *Head) Gradients(features, logitGrad []float32, batch int) ([]float32, []float32, error) {
	if len(features) != batch*h.inFeatures {
		return nil, nil, fmt.Errorf("feature length %d doesn't match batch %d x %d", len(features), batch, h.inFeatures)
	}
	if len(logitGrad) != batch*h.numClasses {
		return nil, nil, fmt.Errorf("gradient length %d doesn't match batch %d x %d", len(logitGrad), batch, h.numClasses)
	}

	dW := make([]float32, h.inFeatures*h.numClasses)
	dB := make([]float32, h.numClasses)

	for b := 0; b < batch; b++ {
		feat := features[b*h.inFeatures : (b+1)*h.inFeatures]
		grad := logitGrad[b*h.numClasses : (b+1)*h.numClasses]
		for j, g := range grad {
			dB[j] += g
		}
		for i, f := range feat {
			if f == 0 {
				continue
			}
			dRow := dW[i*h.numClasses : (i+1)*h.numClasses]
			for j, g := range grad {
				dRow[j] += f * g
			}
		}
	}

	return dW, dB, nil
}

// Weights returns a copy of the weight tensor.
func (h *Head) Weights() []float32 {
	out := make([]float32, len(h.weights))
	copy(out, h.weights)
	return out
}

// Bias returns a copy of the bias tensor.
func (h *Head) Bias() []float32 {
	out := make([]float32, len(h.bias))
	copy(out, h.bias)
	return out
}
