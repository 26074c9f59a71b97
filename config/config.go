// Package config loads pipeline configuration from the environment, with
// an optional .env file for local runs.
package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Config carries every path and hyperparameter the pipeline needs.
type Config struct {
	TrainCSV string
	// ValCSV points at an external validation table; empty means the
	// training table is split by ValRatio instead.
	ValCSV  string
	TestCSV string

	TrainImageDir string
	// ValImageDir holds the external validation images; empty falls back
	// to TrainImageDir.
	ValImageDir  string
	TestImageDir string

	ModelAPath     string
	ModelAMetadata string
	ModelBPath     string
	ModelBMetadata string

	CheckpointDir  string
	SubmissionPath string

	BatchSize    int
	Epochs       int
	LearningRate float64
	ValRatio     float64
	Seed         int64
}

// Load reads configuration from the environment. A .env file is applied
// first when present; its absence is not an error.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		TrainCSV:       os.Getenv("IFOOD_TRAIN_CSV"),
		ValCSV:         os.Getenv("IFOOD_VAL_CSV"),
		TestCSV:        os.Getenv("IFOOD_TEST_CSV"),
		TrainImageDir:  os.Getenv("IFOOD_TRAIN_IMAGE_DIR"),
		ValImageDir:    os.Getenv("IFOOD_VAL_IMAGE_DIR"),
		TestImageDir:   os.Getenv("IFOOD_TEST_IMAGE_DIR"),
		ModelAPath:     getEnv("IFOOD_MODEL_A_PATH", "models/backbone_a.onnx"),
		ModelAMetadata: getEnv("IFOOD_MODEL_A_METADATA", "models/backbone_a.json"),
		ModelBPath:     getEnv("IFOOD_MODEL_B_PATH", "models/backbone_b.onnx"),
		ModelBMetadata: getEnv("IFOOD_MODEL_B_METADATA", "models/backbone_b.json"),
		CheckpointDir:  getEnv("IFOOD_CHECKPOINT_DIR", "checkpoints"),
		SubmissionPath: getEnv("IFOOD_SUBMISSION_PATH", "submission.csv"),
	}

	var err error
	if cfg.BatchSize, err = getEnvInt("IFOOD_BATCH_SIZE", 32); err != nil {
		return nil, err
	}
	if cfg.Epochs, err = getEnvInt("IFOOD_EPOCHS", 10); err != nil {
		return nil, err
	}
	if cfg.LearningRate, err = getEnvFloat("IFOOD_LEARNING_RATE", 0.01); err != nil {
		return nil, err
	}
	if cfg.ValRatio, err = getEnvFloat("IFOOD_VAL_RATIO", 0.1); err != nil {
		return nil, err
	}
	seed, err := getEnvInt("IFOOD_SEED", 42)
	if err != nil {
		return nil, err
	}
	cfg.Seed = int64(seed)

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return fallback, nil
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer, got %q", key, value)
	}
	return parsed, nil
}

func getEnvFloat(key string, fallback float64) (float64, error) {
	value := os.Getenv(key)
	if value == "" {
		return fallback, nil
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, fmt.Errorf("%s must be a number, got %q", key, value)
	}
	return parsed, nil
}
