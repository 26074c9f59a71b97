package checkpoints

import (
	"fmt"
	"math"
	"testing"
)

func TestBestTrackerSavesOnStrictImprovement(t *testing.T) {
	tracker := NewBestTracker()
	metrics := []float64{0.10, 0.15, 0.12, 0.20, 0.20}

	var savedEpochs []int
	for i, m := range metrics {
		epoch := i + 1
		saved, err := tracker.Observe(epoch, m, func() error {
			savedEpochs = append(savedEpochs, epoch)
			return nil
		})
		if err != nil {
			t.Fatalf("Observe failed at epoch %d: %v", epoch, err)
		}
		if saved != (len(savedEpochs) > 0 && savedEpochs[len(savedEpochs)-1] == epoch) {
			t.Errorf("epoch %d: saved flag inconsistent with callback", epoch)
		}
	}

	want := []int{1, 2, 4}
	if len(savedEpochs) != len(want) {
		t.Fatalf("saved at epochs %v, want %v", savedEpochs, want)
	}
	for i := range want {
		if savedEpochs[i] != want[i] {
			t.Fatalf("saved at epochs %v, want %v", savedEpochs, want)
		}
	}

	best, seen := tracker.Best()
	if !seen || best != 0.20 {
		t.Errorf("best = %f (seen=%v), want 0.20", best, seen)
	}
}

func TestBestTrackerRejectsNaN(t *testing.T) {
	tracker := NewBestTracker()

	saved, err := tracker.Observe(1, math.NaN(), func() error {
		t.Fatal("NaN metric must never save")
		return nil
	})
	if err != nil {
		t.Fatalf("Observe failed: %v", err)
	}
	if saved {
		t.Error("NaN metric reported as saved")
	}
	if _, seen := tracker.Best(); seen {
		t.Error("NaN metric must not become the best value")
	}

	// A real metric after a NaN still saves.
	saved, err = tracker.Observe(2, 0.1, func() error { return nil })
	if err != nil {
		t.Fatalf("Observe failed: %v", err)
	}
	if !saved {
		t.Error("expected save after NaN was rejected")
	}
}

func TestBestTrackerSaveFailureKeepsBest(t *testing.T) {
	tracker := NewBestTracker()

	if _, err := tracker.Observe(1, 0.1, func() error { return nil }); err != nil {
		t.Fatalf("Observe failed: %v", err)
	}

	saved, err := tracker.Observe(2, 0.5, func() error {
		return fmt.Errorf("disk full")
	})
	if err == nil {
		t.Fatal("expected save error to surface")
	}
	if saved {
		t.Error("failed save reported as success")
	}

	// The best value is unchanged, so a retry at the same metric saves.
	best, _ := tracker.Best()
	if best != 0.1 {
		t.Errorf("best = %f after failed save, want 0.1", best)
	}
	saved, err = tracker.Observe(3, 0.5, func() error { return nil })
	if err != nil || !saved {
		t.Errorf("retry after failed save: saved=%v err=%v", saved, err)
	}
}

func TestBestTrackerNilSave(t *testing.T) {
	tracker := NewBestTracker()
	saved, err := tracker.Observe(1, 0.3, nil)
	if err != nil || !saved {
		t.Errorf("nil save func: saved=%v err=%v", saved, err)
	}
}
