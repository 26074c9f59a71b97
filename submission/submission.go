// Package submission turns combined probability vectors into the ranked
// top-3 guesses the evaluator expects: a CSV with img_name and a label
// column of three space-separated tokens, in test-table row order.
package submission

import (
	"encoding/csv"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/technic0/iFood2019/catalog"
)

// Row is one line of the submission: an image name and its ranked label
// guesses, most confident first.
type Row struct {
	ImageName string
	Labels    []string
}

// TopK returns the indices of the k highest probabilities in descending
// order. Ties break toward the lower class index, which makes the selection
// deterministic. When the vector has fewer than k entries, only the
// available indices are returned.
func TopK(probs []float32, k int) []int {
	if k > len(probs) {
		k = len(probs)
	}
	if k <= 0 {
		return nil
	}

	indices := make([]int, len(probs))
	for i := range indices {
		indices[i] = i
	}
	sort.SliceStable(indices, func(a, b int) bool {
		if probs[indices[a]] != probs[indices[b]] {
			return probs[indices[a]] > probs[indices[b]]
		}
		return indices[a] < indices[b]
	})

	return indices[:k]
}

// Build produces one submission row per image, decoding the top-k class
// indices through the catalog. Image names and probability vectors must be
// positionally aligned.
func Build(names []string, probs [][]float32, cat *catalog.Catalog, k int) ([]Row, error) {
	if len(names) != len(probs) {
		return nil, fmt.Errorf("%d image names for %d probability vectors", len(names), len(probs))
	}
	if cat == nil {
		return nil, fmt.Errorf("submission requires a catalog")
	}
	if k < 1 {
		return nil, fmt.Errorf("k must be at least 1, got %d", k)
	}

	rows := make([]Row, len(names))
	for i, vec := range probs {
		if len(vec) != cat.Len() {
			return nil, fmt.Errorf("vector %d has %d entries for %d classes", i, len(vec), cat.Len())
		}

		top := TopK(vec, k)
		labels := make([]string, len(top))
		for j, idx := range top {
			name, err := cat.Name(idx)
			if err != nil {
				return nil, err
			}
			labels[j] = name
		}
		rows[i] = Row{ImageName: names[i], Labels: labels}
	}

	return rows, nil
}

// WriteCSV serializes rows with the fixed header the evaluator expects.
func WriteCSV(w io.Writer, rows []Row) error {
	writer := csv.NewWriter(w)
	if err := writer.Write([]string{"img_name", "label"}); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	for _, row := range rows {
		if err := writer.Write([]string{row.ImageName, strings.Join(row.Labels, " ")}); err != nil {
			return fmt.Errorf("failed to write row for %s: %w", row.ImageName, err)
		}
	}
	writer.Flush()
	return writer.Error()
}
