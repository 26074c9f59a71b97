// Package checkpoints persists trained head parameters as JSON artifacts
// and tracks the best validation metric seen during a run.
package checkpoints

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/technic0/iFood2019/backbone"
)

// WeightTensor represents a model parameter tensor with its data.
type WeightTensor struct {
	Name  string    `json:"name"`
	Shape []int     `json:"shape"`
	Data  []float32 `json:"data"`
	Type  string    `json:"type"` // "weight" or "bias"
}

// TrainingState captures where in the run the checkpoint was taken.
type TrainingState struct {
	Epoch      int     `json:"epoch"`
	BestMetric float64 `json:"best_metric"`
}

// CheckpointMetadata contains checkpoint metadata.
type CheckpointMetadata struct {
	Version     string    `json:"version"`
	Framework   string    `json:"framework"`
	CreatedAt   time.Time `json:"created_at"`
	Description string    `json:"description,omitempty"`
}

// Checkpoint is the serialized state of one classifier head.
type Checkpoint struct {
	Weights       []WeightTensor     `json:"weights"`
	TrainingState TrainingState      `json:"training_state"`
	Metadata      CheckpointMetadata `json:"metadata"`
}

// FromHead captures the head's current parameters.
func FromHead(head *backbone.Head, state TrainingState, description string) *Checkpoint {
	return &Checkpoint{
		Weights: []WeightTensor{
			{
				Name:  "head.weight",
				Shape: []int{head.InFeatures(), head.NumClasses()},
				Data:  head.Weights(),
				Type:  "weight",
			},
			{
				Name:  "head.bias",
				Shape: []int{head.NumClasses()},
				Data:  head.Bias(),
				Type:  "bias",
			},
		},
		TrainingState: state,
		Metadata: CheckpointMetadata{
			Version:     "1.0.0",
			Framework:   "ifood2019",
			CreatedAt:   time.Now(),
			Description: description,
		},
	}
}

// ApplyToHead restores a checkpoint's parameters into a head of matching
// shape.
func ApplyToHead(cp *Checkpoint, head *backbone.Head) error {
	var weights, bias []float32
	for _, w := range cp.Weights {
		switch w.Name {
		case "head.weight":
			if len(w.Shape) != 2 || w.Shape[0] != head.InFeatures() || w.Shape[1] != head.NumClasses() {
				return fmt.Errorf("checkpoint weight shape %v incompatible with head %dx%d",
					w.Shape, head.InFeatures(), head.NumClasses())
			}
			weights = w.Data
		case "head.bias":
			if len(w.Shape) != 1 || w.Shape[0] != head.NumClasses() {
				return fmt.Errorf("checkpoint bias shape %v incompatible with %d classes",
					w.Shape, head.NumClasses())
			}
			bias = w.Data
		}
	}
	if weights == nil || bias == nil {
		return fmt.Errorf("checkpoint is missing head tensors")
	}
	return head.SetParams(weights, bias)
}

// Saver handles saving and loading checkpoints.
type Saver struct{}

// NewSaver creates a checkpoint saver.
func NewSaver() *Saver {
	return &Saver{}
}

// Save writes the checkpoint to path as indented JSON.
func (s *Saver) Save(checkpoint *Checkpoint, path string) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create checkpoint file: %w", err)
	}
	defer file.Close()

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(checkpoint); err != nil {
		return fmt.Errorf("failed to encode checkpoint: %w", err)
	}
	return nil
}

// Load reads a checkpoint from path.
func (s *Saver) Load(path string) (*Checkpoint, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open checkpoint file: %w", err)
	}
	defer file.Close()

	var checkpoint Checkpoint
	if err := json.NewDecoder(file).Decode(&checkpoint); err != nil {
		return nil, fmt.Errorf("failed to decode checkpoint: %w", err)
	}
	return &checkpoint, nil
}
