// Package training carries the numeric pieces of the fit loop: the SGD
// optimizer, the learning-rate schedule, and the softmax cross-entropy loss
// with its analytic gradient.
package training

import (
	"fmt"
)

// SGDConfig holds configuration for the SGD optimizer.
type SGDConfig struct {
	LearningRate float64
	Momentum     float64
	WeightDecay  float64
}

// DefaultSGDConfig returns the training recipe defaults: momentum SGD with
// a small base learning rate.
func DefaultSGDConfig() SGDConfig {
	return SGDConfig{
		LearningRate: 0.01,
		Momentum:     0.9,
		WeightDecay:  0.0,
	}
}

// SGD performs stochastic gradient descent with classical momentum over a
// fixed set of parameter tensors. The velocity is computed as
//
//	v := momentum*v + grad
//	w := w - lr*v
type SGD struct {
	config     SGDConfig
	params     [][]float32
	velocities [][]float32
	stepCount  uint64
}

// NewSGD creates an optimizer owning velocity state for each parameter
// tensor. The parameter slices are updated in place by Step.
func NewSGD(config SGDConfig, params [][]float32) (*SGD, error) {
	if config.LearningRate < 0 {
		return nil, fmt.Errorf("learning rate cannot be negative: %f", config.LearningRate)
	}
	if config.Momentum < 0 || config.Momentum > 1 {
		return nil, fmt.Errorf("momentum must be in [0, 1]: %f", config.Momentum)
	}
	if config.WeightDecay < 0 {
		return nil, fmt.Errorf("weight decay cannot be negative: %f", config.WeightDecay)
	}
	if len(params) == 0 {
		return nil, fmt.Errorf("no parameter tensors provided")
	}

	velocities := make([][]float32, len(params))
	for i, p := range params {
		if len(p) == 0 {
			return nil, fmt.Errorf("parameter tensor %d is empty", i)
		}
		velocities[i] = make([]float32, len(p))
	}

	return &SGD{
		config:     config,
		params:     params,
		velocities: velocities,
	}, nil
}

// Step applies one update with the given effective learning rate, which the
// caller derives from the scheduler.
func (sgd *SGD) Step(grads [][]float32, lr float64) error {
	if len(grads) != len(sgd.params) {
		return fmt.Errorf("gradient count %d doesn't match parameter count %d", len(grads), len(sgd.params))
	}

	for i, grad := range grads {
		param := sgd.params[i]
		if len(grad) != len(param) {
			return fmt.Errorf("gradient %d has %d values, parameter has %d", i, len(grad), len(param))
		}

		velocity := sgd.velocities[i]
		momentum := float32(sgd.config.Momentum)
		decay := float32(sgd.config.WeightDecay)
		rate := float32(lr)

		for j := range param {
			g := grad[j]
			if decay > 0 {
				g += decay * param[j]
			}
			velocity[j] = momentum*velocity[j] + g
			param[j] -= rate * velocity[j]
		}
	}

	sgd.stepCount++
	return nil
}

// StepCount returns the number of updates applied.
func (sgd *SGD) StepCount() uint64 {
	return sgd.stepCount
}
