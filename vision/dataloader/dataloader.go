// Package dataloader turns a sample table plus an image directory into an
// infinite, restartable sequence of training batches. In shuffle mode the
// record order is re-drawn every epoch; in non-shuffle mode the sequence
// follows the table's row order exactly, which is what makes test-time
// prediction order well-defined.
package dataloader

import (
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"sync"

	"github.com/technic0/iFood2019/catalog"
	"github.com/technic0/iFood2019/dataset"
	"github.com/technic0/iFood2019/vision/preprocessing"
)

// Config configures a Loader.
type Config struct {
	BatchSize int
	Shuffle   bool
	// Augmenter, when set, perturbs every image as it is drawn. Leave nil
	// for validation and test loaders.
	Augmenter *preprocessing.Augmenter
	// Catalog translates labels into one-hot vectors. Leave nil for test
	// tables, which carry no labels.
	Catalog *catalog.Catalog
	// MaxCacheSize bounds the decoded-image LRU cache. Zero picks a
	// default.
	MaxCacheSize int
	// Seed fixes the shuffle order for reproducible runs.
	Seed int64
}

// Batch is one step of loader output.
type Batch struct {
	// Images holds Size images in batch x height x width x channels order.
	Images []float32
	// Labels holds Size one-hot rows of catalog length, or nil for test
	// loaders.
	Labels []float32
	Size   int
}

// Loader produces batches from a sample table.
type Loader struct {
	table     *dataset.Table
	imageDir  string
	processor *preprocessing.Processor
	augmenter *preprocessing.Augmenter
	cat       *catalog.Catalog
	batchSize int
	shuffle   bool
	rng       *rand.Rand

	mu       sync.Mutex
	indices  []int
	position int
	cache    *imageCache
}

// NewLoader validates the configuration and creates a loader. Labeled
// tables require a catalog, and every label in the table must already be
// known to it; both are configuration errors caught before any batch is
// produced.
func NewLoader(table *dataset.Table, imageDir string, processor *preprocessing.Processor, cfg Config) (*Loader, error) {
	if table == nil || table.Len() == 0 {
		return nil, fmt.Errorf("loader requires a non-empty table")
	}
	if processor == nil {
		return nil, fmt.Errorf("loader requires a processor")
	}
	if cfg.BatchSize < 1 {
		return nil, fmt.Errorf("batch size must be at least 1, got %d", cfg.BatchSize)
	}

	labeled := false
	for _, rec := range table.Records() {
		if rec.Label != "" {
			labeled = true
			break
		}
	}
	if labeled && cfg.Catalog == nil {
		return nil, fmt.Errorf("labeled table requires a catalog")
	}
	if labeled {
		for _, rec := range table.Records() {
			if _, err := cfg.Catalog.Index(rec.Label); err != nil {
				return nil, fmt.Errorf("table references label outside the catalog: %v", err)
			}
		}
	}
	if !labeled {
		cfg.Catalog = nil
	}

	maxCache := cfg.MaxCacheSize
	if maxCache == 0 {
		maxCache = 1000
	}

	indices := make([]int, table.Len())
	for i := range indices {
		indices[i] = i
	}

	l := &Loader{
		table:     table,
		imageDir:  imageDir,
		processor: processor,
		augmenter: cfg.Augmenter,
		cat:       cfg.Catalog,
		batchSize: cfg.BatchSize,
		shuffle:   cfg.Shuffle,
		rng:       rand.New(rand.NewSource(cfg.Seed)),
		indices:   indices,
		cache:     newImageCache(maxCache),
	}
	if cfg.Shuffle {
		l.reshuffle()
	}
	return l, nil
}

func (l *Loader) reshuffle() {
	l.rng.Shuffle(len(l.indices), func(i, j int) {
		l.indices[i], l.indices[j] = l.indices[j], l.indices[i]
	})
}

// NumSamples returns the number of records in the underlying table.
func (l *Loader) NumSamples() int {
	return l.table.Len()
}

// NumClasses returns the catalog size, or 0 for unlabeled loaders.
func (l *Loader) NumClasses() int {
	if l.cat == nil {
		return 0
	}
	return l.cat.Len()
}

// BatchesPerEpoch returns how many batches one pass over the table takes;
// the last batch of an epoch may be partial.
func (l *Loader) BatchesPerEpoch() int {
	return (l.table.Len() + l.batchSize - 1) / l.batchSize
}

// Reset rewinds the loader to the start of an epoch, re-drawing the order
// in shuffle mode.
func (l *Loader) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.position = 0
	if l.shuffle {
		l.reshuffle()
	}
}

// NextBatch produces the next batch. The sequence is infinite: when an
// epoch is exhausted the loader wraps to the next one.
func (l *Loader) NextBatch() (*Batch, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.position >= len(l.indices) {
		l.position = 0
		if l.shuffle {
			l.reshuffle()
		}
	}

	remaining := len(l.indices) - l.position
	size := l.batchSize
	if remaining < size {
		size = remaining
	}

	imgSize := l.processor.TargetSize()
	pixelsPerImage := imgSize * imgSize * preprocessing.Channels
	images := make([]float32, size*pixelsPerImage)

	var labels []float32
	if l.cat != nil {
		labels = make([]float32, size*l.cat.Len())
	}

	for i := 0; i < size; i++ {
		rec, err := l.table.Record(l.indices[l.position])
		if err != nil {
			return nil, err
		}

		img, err := l.loadImage(rec.ImageName)
		if err != nil {
			return nil, err
		}
		if l.augmenter != nil {
			img, err = l.augmenter.Apply(img, imgSize)
			if err != nil {
				return nil, err
			}
		}
		copy(images[i*pixelsPerImage:(i+1)*pixelsPerImage], img)

		if l.cat != nil {
			if err := l.cat.OneHot(rec.Label, labels[i*l.cat.Len():(i+1)*l.cat.Len()]); err != nil {
				return nil, err
			}
		}

		l.position++
	}

	return &Batch{Images: images, Labels: labels, Size: size}, nil
}

func (l *Loader) loadImage(name string) ([]float32, error) {
	if data, ok := l.cache.get(name); ok {
		return data, nil
	}

	path := filepath.Join(l.imageDir, name)
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open image %s: %w", path, err)
	}
	defer file.Close()

	processed, err := l.processor.DecodeAndPreprocess(file)
	if err != nil {
		return nil, fmt.Errorf("failed to preprocess %s: %w", path, err)
	}

	l.cache.put(name, processed.Data)
	return processed.Data, nil
}

// CacheStats reports decode-cache effectiveness.
func (l *Loader) CacheStats() CacheStats {
	return l.cache.stats()
}
