package checkpoints

import (
	"fmt"
	"math"
)

// BestTracker observes a validation metric after each training epoch and
// triggers a save on strict improvement. Ties and NaN metrics never save,
// and the best value never regresses.
type BestTracker struct {
	best float64
	seen bool
}

// NewBestTracker creates a tracker with no metric observed yet.
func NewBestTracker() *BestTracker {
	return &BestTracker{}
}

// Best returns the best metric observed so far, and whether any metric has
// been accepted.
func (t *BestTracker) Best() (float64, bool) {
	return t.best, t.seen
}

// Observe reports one epoch result. When the metric strictly improves on
// the best so far, save is invoked; only after it succeeds is the best
// value updated. The returned bool reports whether a save happened.
func (t *BestTracker) Observe(epoch int, metric float64, save func() error) (bool, error) {
	if math.IsNaN(metric) {
		return false, nil
	}
	if t.seen && metric <= t.best {
		return false, nil
	}

	if save != nil {
		if err := save(); err != nil {
			return false, fmt.Errorf("epoch %d checkpoint save failed: %w", epoch, err)
		}
	}

	t.best = metric
	t.seen = true
	return true, nil
}
