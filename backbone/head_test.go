package backbone

import (
	"math"
	"testing"
)

func TestHeadForwardKnownWeights(t *testing.T) {
	head, err := NewHead(2, 2, 1)
	if err != nil {
		t.Fatalf("NewHead failed: %v", err)
	}
	// Identity projection: logits = features.
	if err := head.SetParams([]float32{1, 0, 0, 1}, []float32{0, 0}); err != nil {
		t.Fatalf("SetParams failed: %v", err)
	}

	probs, err := head.Forward([]float32{1, 2}, 1)
	if err != nil {
		t.Fatalf("Forward failed: %v", err)
	}

	// softmax([1, 2])
	want0 := 1 / (1 + math.E)
	want1 := math.E / (1 + math.E)
	if math.Abs(float64(probs[0])-want0) > 1e-5 || math.Abs(float64(probs[1])-want1) > 1e-5 {
		t.Errorf("probs = %v, want [%f, %f]", probs, want0, want1)
	}
}

func TestHeadGradients(t *testing.T) {
	head, err := NewHead(2, 2, 1)
	if err != nil {
		t.Fatalf("NewHead failed: %v", err)
	}

	features := []float32{1, 2}
	logitGrad := []float32{0.5, -0.5}

	dW, dB, err := head.Gradients(features, logitGrad, 1)
	if err != nil {
		t.Fatalf("Gradients failed: %v", err)
	}

	wantW := []float32{0.5, -0.5, 1, -1}
	for i := range wantW {
		if math.Abs(float64(dW[i]-wantW[i])) > 1e-6 {
			t.Errorf("dW[%d] = %f, want %f", i, dW[i], wantW[i])
		}
	}
	wantB := []float32{0.5, -0.5}
	for i := range wantB {
		if math.Abs(float64(dB[i]-wantB[i])) > 1e-6 {
			t.Errorf("dB[%d] = %f, want %f", i, dB[i], wantB[i])
		}
	}
}

func TestHeadParamsAliasState(t *testing.T) {
	head, err := NewHead(2, 3, 1)
	if err != nil {
		t.Fatalf("NewHead failed: %v", err)
	}

	params := head.Params()
	if len(params) != 2 || len(params[0]) != 6 || len(params[1]) != 3 {
		t.Fatalf("unexpected param shapes: %d tensors", len(params))
	}

	params[0][0] = 42
	if head.Weights()[0] != 42 {
		t.Error("optimizer updates through Params must reach the head")
	}
}

func TestHeadShapeErrors(t *testing.T) {
	head, err := NewHead(2, 2, 1)
	if err != nil {
		t.Fatalf("NewHead failed: %v", err)
	}

	if _, err := head.Forward([]float32{1, 2, 3}, 1); err == nil {
		t.Error("expected error for mismatched feature length")
	}
	if _, _, err := head.Gradients([]float32{1, 2}, []float32{1}, 1); err == nil {
		t.Error("expected error for mismatched gradient length")
	}
	if err := head.SetParams([]float32{1}, []float32{0, 0}); err == nil {
		t.Error("expected error for mismatched weight length")
	}
}

func TestNewHeadValidation(t *testing.T) {
	if _, err := NewHead(0, 2, 1); err == nil {
		t.Error("expected error for zero feature count")
	}
	if _, err := NewHead(2, 0, 1); err == nil {
		t.Error("expected error for zero class count")
	}
}

func TestGlobalAvgPool(t *testing.T) {
	// 1 image, 2 channels, 2x2 spatial.
	features := []float32{
		1, 2, 3, 4, // channel 0: mean 2.5
		10, 20, 30, 40, // channel 1: mean 25
	}

	pooled, err := GlobalAvgPool(features, 1, 2, 2)
	if err != nil {
		t.Fatalf("GlobalAvgPool failed: %v", err)
	}
	if len(pooled) != 2 {
		t.Fatalf("pooled length = %d, want 2", len(pooled))
	}
	if pooled[0] != 2.5 || pooled[1] != 25 {
		t.Errorf("pooled = %v, want [2.5, 25]", pooled)
	}
}

func TestGlobalAvgPoolShapeError(t *testing.T) {
	if _, err := GlobalAvgPool([]float32{1, 2, 3}, 1, 2, 2); err == nil {
		t.Error("expected error for mismatched feature length")
	}
}
