package training

import (
	"fmt"
	"math"
)

// Softmax converts a batch of logits into probability rows. Each row is
// max-subtracted for numerical stability before exponentiation.
func Softmax(logits []float32, batch, classes int) ([]float32, error) {
	if len(logits) != batch*classes {
		return nil, fmt.Errorf("logits length %d doesn't match %dx%d", len(logits), batch, classes)
	}

	probs := make([]float32, len(logits))
	for i := 0; i < batch; i++ {
		offset := i * classes

		maxVal := logits[offset]
		for j := 1; j < classes; j++ {
			if logits[offset+j] > maxVal {
				maxVal = logits[offset+j]
			}
		}

		var sum float32
		for j := 0; j < classes; j++ {
			exp := float32(math.Exp(float64(logits[offset+j] - maxVal)))
			probs[offset+j] = exp
			sum += exp
		}
		for j := 0; j < classes; j++ {
			probs[offset+j] /= sum
		}
	}

	return probs, nil
}

// CrossEntropy computes the mean categorical cross-entropy of probability
// rows against one-hot targets.
func CrossEntropy(probs, oneHot []float32, batch, classes int) (float64, error) {
	if len(probs) != batch*classes {
		return 0, fmt.Errorf("probability length %d doesn't match %dx%d", len(probs), batch, classes)
	}
	if len(oneHot) != batch*classes {
		return 0, fmt.Errorf("target length %d doesn't match %dx%d", len(oneHot), batch, classes)
	}

	var total float64
	for i := 0; i < batch; i++ {
		offset := i * classes
		for j := 0; j < classes; j++ {
			if oneHot[offset+j] == 0 {
				continue
			}
			p := float64(probs[offset+j])
			if p < 1e-10 {
				p = 1e-10
			}
			total += -math.Log(p) * float64(oneHot[offset+j])
		}
	}

	return total / float64(batch), nil
}

// CrossEntropyGrad returns the gradient of the mean cross-entropy with
// respect to the logits, which for softmax outputs is (probs - target) / batch.
func CrossEntropyGrad(probs, oneHot []float32, batch, classes int) ([]float32, error) {
	if len(probs) != batch*classes || len(oneHot) != batch*classes {
		return nil, fmt.Errorf("shape mismatch: probs %d, targets %d, expected %d", len(probs), len(oneHot), batch*classes)
	}

	grad := make([]float32, len(probs))
	scale := float32(1) / float32(batch)
	for i := range grad {
		grad[i] = (probs[i] - oneHot[i]) * scale
	}
	return grad, nil
}

// Accuracy computes categorical accuracy: the fraction of rows whose argmax
// matches the one-hot target.
func Accuracy(probs, oneHot []float32, batch, classes int) (float64, error) {
	if len(probs) != batch*classes || len(oneHot) != batch*classes {
		return 0, fmt.Errorf("shape mismatch: probs %d, targets %d, expected %d", len(probs), len(oneHot), batch*classes)
	}

	correct := 0
	for i := 0; i < batch; i++ {
		offset := i * classes
		argmax := 0
		for j := 1; j < classes; j++ {
			if probs[offset+j] > probs[offset+argmax] {
				argmax = j
			}
		}
		if oneHot[offset+argmax] == 1 {
			correct++
		}
	}

	return float64(correct) / float64(batch), nil
}
