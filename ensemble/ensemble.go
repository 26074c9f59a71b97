// Package ensemble combines per-class probability vectors produced
// independently by several classifiers over the same image sequence.
package ensemble

import (
	"fmt"
)

// Average returns the element-wise arithmetic mean of the given prediction
// runs. Every run must hold the same number of vectors and every vector the
// same length; any mismatch is an alignment error, never a truncation.
func Average(runs ...[][]float32) ([][]float32, error) {
	weights := make([]float64, len(runs))
	for i := range weights {
		weights[i] = 1
	}
	return Weighted(weights, runs...)
}

// Weighted combines prediction runs with per-model weights, normalized so
// they sum to 1. Equal weights reduce to Average.
func Weighted(weights []float64, runs ...[][]float32) ([][]float32, error) {
	if len(runs) == 0 {
		return nil, fmt.Errorf("no prediction runs to combine")
	}
	if len(weights) != len(runs) {
		return nil, fmt.Errorf("%d weights for %d runs", len(weights), len(runs))
	}

	var total float64
	for i, w := range weights {
		if w < 0 {
			return nil, fmt.Errorf("weight %d is negative: %f", i, w)
		}
		total += w
	}
	if total == 0 {
		return nil, fmt.Errorf("weights sum to zero")
	}

	n := len(runs[0])
	for i, run := range runs {
		if len(run) != n {
			return nil, fmt.Errorf("run %d has %d vectors, run 0 has %d", i, len(run), n)
		}
	}
	if n == 0 {
		return nil, fmt.Errorf("prediction runs are empty")
	}

	classes := len(runs[0][0])
	out := make([][]float32, n)
	for i := 0; i < n; i++ {
		for r, run := range runs {
			if len(run[i]) != classes {
				return nil, fmt.Errorf("run %d vector %d has length %d, expected %d", r, i, len(run[i]), classes)
			}
		}

		combined := make([]float32, classes)
		for r, run := range runs {
			w := float32(weights[r] / total)
			for j, v := range run[i] {
				combined[j] += w * v
			}
		}
		out[i] = combined
	}

	return out, nil
}
