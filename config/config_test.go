package config

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, 32, cfg.BatchSize)
	require.Equal(t, 10, cfg.Epochs)
	require.Equal(t, 0.01, cfg.LearningRate)
	require.Equal(t, 0.1, cfg.ValRatio)
	require.Equal(t, int64(42), cfg.Seed)
	require.Equal(t, "submission.csv", cfg.SubmissionPath)
	require.Empty(t, cfg.ValCSV)
	require.Empty(t, cfg.ValImageDir)
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("IFOOD_TRAIN_CSV", "/data/train.csv")
	t.Setenv("IFOOD_VAL_CSV", "/data/val.csv")
	t.Setenv("IFOOD_VAL_IMAGE_DIR", "/data/val_images")
	t.Setenv("IFOOD_BATCH_SIZE", "64")
	t.Setenv("IFOOD_LEARNING_RATE", "0.001")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, "/data/train.csv", cfg.TrainCSV)
	require.Equal(t, "/data/val.csv", cfg.ValCSV)
	require.Equal(t, "/data/val_images", cfg.ValImageDir)
	require.Equal(t, 64, cfg.BatchSize)
	require.Equal(t, 0.001, cfg.LearningRate)
}

func TestLoadRejectsMalformedValues(t *testing.T) {
	t.Setenv("IFOOD_BATCH_SIZE", "lots")
	_, err := Load()
	require.Error(t, err)
}
