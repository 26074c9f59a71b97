package backbone

import (
	"context"
	"fmt"
	"log"

	"github.com/technic0/iFood2019/training"
	"github.com/technic0/iFood2019/vision/dataloader"
)

// History records per-epoch training metrics.
type History struct {
	TrainLoss []float64
	TrainAcc  []float64
	ValAcc    []float64
}

// EpochEndFunc is invoked synchronously after every completed epoch with
// the 1-based epoch number and the validation metric. Returning an error
// aborts training.
type EpochEndFunc func(epoch int, valAcc float64) error

// Classifier is a frozen feature extractor composed with a trainable head.
type Classifier struct {
	extractor  FeatureExtractor
	head       *Head
	numClasses int
}

// NewClassifier builds a classifier with a freshly initialized head sized
// to the extractor's pooled feature dimension.
func NewClassifier(extractor FeatureExtractor, numClasses int, seed int64) (*Classifier, error) {
	if extractor == nil {
		return nil, fmt.Errorf("classifier requires a feature extractor")
	}
	head, err := NewHead(extractor.FeatureDim(), numClasses, seed)
	if err != nil {
		return nil, err
	}
	return &Classifier{
		extractor:  extractor,
		head:       head,
		numClasses: numClasses,
	}, nil
}

// Head exposes the trainable stage for checkpointing.
func (c *Classifier) Head() *Head {
	return c.head
}

// pooledFeatures runs the frozen extractor and average-pools spatial
// outputs down to one vector per image.
func (c *Classifier) pooledFeatures(images []float32, batch int) ([]float32, error) {
	features, err := c.extractor.Features(images, batch)
	if err != nil {
		return nil, err
	}
	if spatial := c.extractor.SpatialSize(); spatial > 1 {
		return GlobalAvgPool(features, batch, c.extractor.FeatureDim(), spatial)
	}
	return features, nil
}

// Fit trains the head on batches from the train loader, evaluating the
// validation loader after each epoch and invoking the epoch-end hook with
// the validation metric. The extractor's parameters are never touched.
// Cancellation of ctx is checked between epochs. A nil val loader reports
// the epoch's training accuracy as the validation metric, to both the
// history and the hook.
func (c *Classifier) Fit(ctx context.Context, train, val *dataloader.Loader, epochs int, cfg training.SGDConfig, sched training.LRScheduler, onEpochEnd EpochEndFunc) (*History, error) {
	if epochs < 1 {
		return nil, fmt.Errorf("epoch count must be at least 1, got %d", epochs)
	}
	if train.NumClasses() != c.numClasses {
		return nil, fmt.Errorf("train loader has %d classes, classifier has %d", train.NumClasses(), c.numClasses)
	}
	if val != nil && val.NumClasses() != c.numClasses {
		return nil, fmt.Errorf("validation loader has %d classes, classifier has %d", val.NumClasses(), c.numClasses)
	}
	if sched == nil {
		sched = &training.NoOpScheduler{}
	}

	sgd, err := training.NewSGD(cfg, c.head.Params())
	if err != nil {
		return nil, err
	}

	history := &History{}
	step := 0
	train.Reset()

	for epoch := 0; epoch < epochs; epoch++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		var lossSum, accSum float64
		samples := 0

		for b := 0; b < train.BatchesPerEpoch(); b++ {
			batch, err := train.NextBatch()
			if err != nil {
				return nil, fmt.Errorf("epoch %d: %w", epoch+1, err)
			}

			features, err := c.pooledFeatures(batch.Images, batch.Size)
			if err != nil {
				return nil, fmt.Errorf("epoch %d: %w", epoch+1, err)
			}

			probs, err := c.head.Forward(features, batch.Size)
			if err != nil {
				return nil, err
			}

			loss, err := training.CrossEntropy(probs, batch.Labels, batch.Size, c.numClasses)
			if err != nil {
				return nil, err
			}
			acc, err := training.Accuracy(probs, batch.Labels, batch.Size, c.numClasses)
			if err != nil {
				return nil, err
			}
			lossSum += loss * float64(batch.Size)
			accSum += acc * float64(batch.Size)
			samples += batch.Size

			logitGrad, err := training.CrossEntropyGrad(probs, batch.Labels, batch.Size, c.numClasses)
			if err != nil {
				return nil, err
			}
			dW, dB, err := c.head.Gradients(features, logitGrad, batch.Size)
			if err != nil {
				return nil, err
			}

			lr := sched.GetLR(epoch, step, cfg.LearningRate)
			if err := sgd.Step([][]float32{dW, dB}, lr); err != nil {
				return nil, err
			}
			step++
		}

		trainLoss := lossSum / float64(samples)
		trainAcc := accSum / float64(samples)
		history.TrainLoss = append(history.TrainLoss, trainLoss)
		history.TrainAcc = append(history.TrainAcc, trainAcc)

		valAcc := trainAcc
		if val != nil {
			valAcc, err = c.EvalAccuracy(val)
			if err != nil {
				return nil, fmt.Errorf("epoch %d validation: %w", epoch+1, err)
			}
		}
		history.ValAcc = append(history.ValAcc, valAcc)

		log.Printf("Epoch %d/%d - loss: %.4f - acc: %.4f - val_acc: %.4f - lr: %.6f",
			epoch+1, epochs, trainLoss, trainAcc, valAcc, sched.GetLR(epoch, step, cfg.LearningRate))

		if onEpochEnd != nil {
			if err := onEpochEnd(epoch+1, valAcc); err != nil {
				return nil, fmt.Errorf("epoch %d hook: %w", epoch+1, err)
			}
		}
	}

	return history, nil
}

// EvalAccuracy computes categorical accuracy over exactly one epoch of the
// given labeled loader.
func (c *Classifier) EvalAccuracy(loader *dataloader.Loader) (float64, error) {
	if loader.NumClasses() != c.numClasses {
		return 0, fmt.Errorf("loader has %d classes, classifier has %d", loader.NumClasses(), c.numClasses)
	}

	loader.Reset()
	var accSum float64
	samples := 0

	for b := 0; b < loader.BatchesPerEpoch(); b++ {
		batch, err := loader.NextBatch()
		if err != nil {
			return 0, err
		}
		features, err := c.pooledFeatures(batch.Images, batch.Size)
		if err != nil {
			return 0, err
		}
		probs, err := c.head.Forward(features, batch.Size)
		if err != nil {
			return 0, err
		}
		acc, err := training.Accuracy(probs, batch.Labels, batch.Size, c.numClasses)
		if err != nil {
			return 0, err
		}
		accSum += acc * float64(batch.Size)
		samples += batch.Size
	}

	return accSum / float64(samples), nil
}

// Predict runs one epoch of the loader and returns one probability vector
// per sample, in loader order. The loader must be a non-shuffling loader so
// that order matches its table's row order.
func (c *Classifier) Predict(loader *dataloader.Loader) ([][]float32, error) {
	loader.Reset()
	out := make([][]float32, 0, loader.NumSamples())

	for b := 0; b < loader.BatchesPerEpoch(); b++ {
		batch, err := loader.NextBatch()
		if err != nil {
			return nil, err
		}
		features, err := c.pooledFeatures(batch.Images, batch.Size)
		if err != nil {
			return nil, err
		}
		probs, err := c.head.Forward(features, batch.Size)
		if err != nil {
			return nil, err
		}
		for i := 0; i < batch.Size; i++ {
			row := make([]float32, c.numClasses)
			copy(row, probs[i*c.numClasses:(i+1)*c.numClasses])
			out = append(out, row)
		}
	}

	if len(out) != loader.NumSamples() {
		return nil, fmt.Errorf("predicted %d vectors for %d samples", len(out), loader.NumSamples())
	}
	return out, nil
}
