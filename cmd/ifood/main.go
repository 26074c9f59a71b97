package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/technic0/iFood2019/backbone"
	"github.com/technic0/iFood2019/catalog"
	"github.com/technic0/iFood2019/checkpoints"
	"github.com/technic0/iFood2019/config"
	"github.com/technic0/iFood2019/dataset"
	"github.com/technic0/iFood2019/ensemble"
	"github.com/technic0/iFood2019/submission"
	"github.com/technic0/iFood2019/training"
	"github.com/technic0/iFood2019/vision/dataloader"
	"github.com/technic0/iFood2019/vision/preprocessing"
)

const topK = 3

// architecture binds one backbone's artifacts together: the exported ONNX
// graph, its metadata descriptor, and the head checkpoint file.
type architecture struct {
	Name           string
	ModelPath      string
	MetadataPath   string
	CheckpointFile string
}

func architectures(cfg *config.Config) []architecture {
	return []architecture{
		{
			Name:           "A",
			ModelPath:      cfg.ModelAPath,
			MetadataPath:   cfg.ModelAMetadata,
			CheckpointFile: filepath.Join(cfg.CheckpointDir, "head_a.json"),
		},
		{
			Name:           "B",
			ModelPath:      cfg.ModelBPath,
			MetadataPath:   cfg.ModelBMetadata,
			CheckpointFile: filepath.Join(cfg.CheckpointDir, "head_b.json"),
		},
	}
}

// parseFlags overlays command-line flags on the environment-derived
// configuration. Flag defaults come from cfg, so unset flags leave the
// environment values intact.
func parseFlags(cfg *config.Config, name string, args []string) error {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.StringVar(&cfg.TrainCSV, "train-csv", cfg.TrainCSV, "training table CSV")
	fs.StringVar(&cfg.ValCSV, "val-csv", cfg.ValCSV, "validation table CSV; empty splits the training table")
	fs.StringVar(&cfg.TestCSV, "test-csv", cfg.TestCSV, "test table CSV")
	fs.StringVar(&cfg.TrainImageDir, "train-images", cfg.TrainImageDir, "training image directory")
	fs.StringVar(&cfg.ValImageDir, "val-images", cfg.ValImageDir, "validation image directory; empty uses -train-images")
	fs.StringVar(&cfg.TestImageDir, "test-images", cfg.TestImageDir, "test image directory")
	fs.StringVar(&cfg.ModelAPath, "model-a", cfg.ModelAPath, "architecture A ONNX model")
	fs.StringVar(&cfg.ModelAMetadata, "model-a-meta", cfg.ModelAMetadata, "architecture A metadata JSON")
	fs.StringVar(&cfg.ModelBPath, "model-b", cfg.ModelBPath, "architecture B ONNX model")
	fs.StringVar(&cfg.ModelBMetadata, "model-b-meta", cfg.ModelBMetadata, "architecture B metadata JSON")
	fs.StringVar(&cfg.CheckpointDir, "checkpoints", cfg.CheckpointDir, "checkpoint directory")
	fs.StringVar(&cfg.SubmissionPath, "out", cfg.SubmissionPath, "submission CSV path")
	fs.IntVar(&cfg.BatchSize, "batch-size", cfg.BatchSize, "batch size")
	fs.IntVar(&cfg.Epochs, "epochs", cfg.Epochs, "training epochs per architecture")
	fs.Float64Var(&cfg.LearningRate, "lr", cfg.LearningRate, "base learning rate")
	fs.Float64Var(&cfg.ValRatio, "val-ratio", cfg.ValRatio, "validation split ratio when -val-csv is empty")
	fs.Int64Var(&cfg.Seed, "seed", cfg.Seed, "random seed")
	return fs.Parse(args)
}

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, "usage: ifood <train|predict> [flags]")
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	command := os.Args[1]
	switch command {
	case "train", "predict":
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q; use train or predict\n", command)
		os.Exit(2)
	}
	if err := parseFlags(cfg, command, os.Args[2:]); err != nil {
		os.Exit(2)
	}

	if command == "train" {
		err = runTrain(context.Background(), cfg)
	} else {
		err = runPredict(cfg)
	}
	if err != nil {
		log.Fatalf("%v", err)
	}
}

// buildCatalog loads the training table and derives the shared class
// catalog from its labels. Both training and prediction go through this so
// the index order is identical in both phases.
func buildCatalog(cfg *config.Config) (*dataset.Table, *catalog.Catalog, error) {
	table, err := dataset.LoadTable(cfg.TrainCSV, true)
	if err != nil {
		return nil, nil, err
	}
	cat, err := catalog.Build(table.Labels())
	if err != nil {
		return nil, nil, err
	}
	return table, cat, nil
}

// resolveValidation produces the train and validation tables plus the
// directory holding the validation images. An external validation table
// takes priority; without one the training table is split by ValRatio.
func resolveValidation(cfg *config.Config, trainTable *dataset.Table) (*dataset.Table, *dataset.Table, string, error) {
	if cfg.ValCSV == "" {
		train, val, err := trainTable.Split(cfg.ValRatio, cfg.Seed)
		if err != nil {
			return nil, nil, "", err
		}
		return train, val, cfg.TrainImageDir, nil
	}

	valTable, err := dataset.LoadTable(cfg.ValCSV, true)
	if err != nil {
		return nil, nil, "", err
	}
	valDir := cfg.ValImageDir
	if valDir == "" {
		valDir = cfg.TrainImageDir
	}
	valTable, skipped, err := valTable.Validate(valDir)
	if err != nil {
		return nil, nil, "", err
	}
	if skipped > 0 {
		log.Printf("Validation table: skipped %d records with missing images", skipped)
	}
	return trainTable, valTable, valDir, nil
}

func runTrain(ctx context.Context, cfg *config.Config) error {
	table, cat, err := buildCatalog(cfg)
	if err != nil {
		return err
	}
	log.Printf("Loaded %d training records, %d classes", table.Len(), cat.Len())

	table, skipped, err := table.Validate(cfg.TrainImageDir)
	if err != nil {
		return err
	}
	if skipped > 0 {
		log.Printf("Proceeding with %d records after skipping %d", table.Len(), skipped)
	}

	trainTable, valTable, valDir, err := resolveValidation(cfg, table)
	if err != nil {
		return err
	}
	log.Printf("Split: %d train / %d validation", trainTable.Len(), valTable.Len())

	if err := os.MkdirAll(cfg.CheckpointDir, 0755); err != nil {
		return fmt.Errorf("failed to create checkpoint directory: %w", err)
	}

	// The two backbones train sequentially and share nothing but the
	// catalog and the source tables.
	for _, arch := range architectures(cfg) {
		if err := trainArchitecture(ctx, cfg, arch, trainTable, valTable, valDir, cat); err != nil {
			return fmt.Errorf("architecture %s: %w", arch.Name, err)
		}
	}
	return nil
}

func trainArchitecture(ctx context.Context, cfg *config.Config, arch architecture, trainTable, valTable *dataset.Table, valDir string, cat *catalog.Catalog) error {
	log.Printf("Training architecture %s from %s", arch.Name, arch.ModelPath)

	extractor, err := backbone.NewONNXExtractor(arch.ModelPath, arch.MetadataPath)
	if err != nil {
		return err
	}
	defer extractor.Close()

	processor, err := preprocessing.NewProcessor(extractor.InputSize())
	if err != nil {
		return err
	}
	augmenter, err := preprocessing.NewAugmenter(preprocessing.DefaultAugmentConfig(), cfg.Seed)
	if err != nil {
		return err
	}

	trainLoader, err := dataloader.NewLoader(trainTable, cfg.TrainImageDir, processor, dataloader.Config{
		BatchSize: cfg.BatchSize,
		Shuffle:   true,
		Augmenter: augmenter,
		Catalog:   cat,
		Seed:      cfg.Seed,
	})
	if err != nil {
		return err
	}
	valLoader, err := dataloader.NewLoader(valTable, valDir, processor, dataloader.Config{
		BatchSize: cfg.BatchSize,
		Catalog:   cat,
		Seed:      cfg.Seed,
	})
	if err != nil {
		return err
	}

	classifier, err := backbone.NewClassifier(extractor, cat.Len(), cfg.Seed)
	if err != nil {
		return err
	}

	saver := checkpoints.NewSaver()
	tracker := checkpoints.NewBestTracker()
	hook := func(epoch int, valAcc float64) error {
		saved, err := tracker.Observe(epoch, valAcc, func() error {
			cp := checkpoints.FromHead(classifier.Head(),
				checkpoints.TrainingState{Epoch: epoch, BestMetric: valAcc},
				fmt.Sprintf("architecture %s best epoch", arch.Name))
			return saver.Save(cp, arch.CheckpointFile)
		})
		if saved {
			log.Printf("Architecture %s: saved checkpoint at epoch %d (val_acc %.4f)", arch.Name, epoch, valAcc)
		}
		return err
	}

	sgd := training.SGDConfig{
		LearningRate: cfg.LearningRate,
		Momentum:     0.9,
	}
	sched := training.NewStepLRScheduler(5, 0.5)

	if _, err := classifier.Fit(ctx, trainLoader, valLoader, cfg.Epochs, sgd, sched, hook); err != nil {
		return err
	}

	best, seen := tracker.Best()
	if !seen {
		return fmt.Errorf("no epoch produced a usable validation metric")
	}
	log.Printf("Architecture %s: best val_acc %.4f, checkpoint at %s", arch.Name, best, arch.CheckpointFile)
	log.Printf("Architecture %s: %s", arch.Name, trainLoader.CacheStats())
	return nil
}

func runPredict(cfg *config.Config) error {
	_, cat, err := buildCatalog(cfg)
	if err != nil {
		return err
	}

	testTable, err := dataset.LoadTable(cfg.TestCSV, false)
	if err != nil {
		return err
	}
	// Submission rows must cover the test table exactly, so a missing
	// image is fatal here rather than skippable.
	if _, skipped, err := testTable.Validate(cfg.TestImageDir); err != nil {
		return err
	} else if skipped > 0 {
		return fmt.Errorf("test table references %d images missing from %s", skipped, cfg.TestImageDir)
	}
	log.Printf("Predicting %d test images across %d classes", testTable.Len(), cat.Len())

	var runs [][][]float32
	for _, arch := range architectures(cfg) {
		probs, err := predictArchitecture(cfg, arch, testTable, cat)
		if err != nil {
			return fmt.Errorf("architecture %s: %w", arch.Name, err)
		}
		runs = append(runs, probs)
	}

	combined, err := ensemble.Average(runs...)
	if err != nil {
		return err
	}

	rows, err := submission.Build(testTable.ImageNames(), combined, cat, topK)
	if err != nil {
		return err
	}

	file, err := os.Create(cfg.SubmissionPath)
	if err != nil {
		return fmt.Errorf("failed to create submission file: %w", err)
	}
	defer file.Close()
	if err := submission.WriteCSV(file, rows); err != nil {
		return err
	}

	log.Printf("Wrote %d submission rows to %s", len(rows), cfg.SubmissionPath)
	return nil
}

func predictArchitecture(cfg *config.Config, arch architecture, testTable *dataset.Table, cat *catalog.Catalog) ([][]float32, error) {
	extractor, err := backbone.NewONNXExtractor(arch.ModelPath, arch.MetadataPath)
	if err != nil {
		return nil, err
	}
	defer extractor.Close()

	processor, err := preprocessing.NewProcessor(extractor.InputSize())
	if err != nil {
		return nil, err
	}

	loader, err := dataloader.NewLoader(testTable, cfg.TestImageDir, processor, dataloader.Config{
		BatchSize: cfg.BatchSize,
	})
	if err != nil {
		return nil, err
	}

	classifier, err := backbone.NewClassifier(extractor, cat.Len(), cfg.Seed)
	if err != nil {
		return nil, err
	}

	cp, err := checkpoints.NewSaver().Load(arch.CheckpointFile)
	if err != nil {
		return nil, err
	}
	if err := checkpoints.ApplyToHead(cp, classifier.Head()); err != nil {
		return nil, err
	}
	log.Printf("Architecture %s: restored checkpoint from epoch %d (val_acc %.4f)",
		arch.Name, cp.TrainingState.Epoch, cp.TrainingState.BestMetric)

	return classifier.Predict(loader)
}
