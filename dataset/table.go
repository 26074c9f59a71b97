// Package dataset loads and validates the sample tables that drive the
// pipeline: training/validation tables mapping image filename to ground
// truth label, and test tables carrying filenames only.
package dataset

import (
	"encoding/csv"
	"fmt"
	"log"
	"math/rand"
	"os"
	"path/filepath"
)

// Record is one row of a sample table. Label is empty for test tables.
type Record struct {
	ImageName string
	Label     string
}

// Table is an ordered, immutable collection of sample records. Row order is
// significant: test-time prediction and submission rows follow it exactly.
type Table struct {
	records []Record
}

// NewTable builds a table from pre-constructed records.
func NewTable(records []Record) (*Table, error) {
	if len(records) == 0 {
		return nil, fmt.Errorf("table cannot be empty")
	}
	out := make([]Record, len(records))
	copy(out, records)
	return &Table{records: out}, nil
}

// LoadTable reads a CSV sample table. The first row must be a header. With
// hasLabel the table needs at least two columns (img_name, label); without
// it a single column (img_name) suffices.
func LoadTable(path string, hasLabel bool) (*Table, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open table %s: %w", path, err)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.FieldsPerRecord = -1

	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to parse table %s: %w", path, err)
	}
	if len(rows) < 2 {
		return nil, fmt.Errorf("table %s has no data rows", path)
	}

	wantCols := 1
	if hasLabel {
		wantCols = 2
	}

	records := make([]Record, 0, len(rows)-1)
	for i, row := range rows[1:] {
		if len(row) < wantCols {
			return nil, fmt.Errorf("table %s row %d has %d columns, expected %d", path, i+2, len(row), wantCols)
		}
		rec := Record{ImageName: row[0]}
		if hasLabel {
			rec.Label = row[1]
		}
		records = append(records, rec)
	}

	return &Table{records: records}, nil
}

// Len returns the number of records.
func (t *Table) Len() int {
	return len(t.records)
}

// Record returns the record at the given row index.
func (t *Table) Record(index int) (Record, error) {
	if index < 0 || index >= len(t.records) {
		return Record{}, fmt.Errorf("row index %d out of range [0, %d)", index, len(t.records))
	}
	return t.records[index], nil
}

// Records returns a copy of all records in row order.
func (t *Table) Records() []Record {
	out := make([]Record, len(t.records))
	copy(out, t.records)
	return out
}

// ImageNames returns all image names in row order.
func (t *Table) ImageNames() []string {
	names := make([]string, len(t.records))
	for i, r := range t.records {
		names[i] = r.ImageName
	}
	return names
}

// Labels returns all label values in row order. Test tables yield empty
// strings.
func (t *Table) Labels() []string {
	labels := make([]string, len(t.records))
	for i, r := range t.records {
		labels[i] = r.Label
	}
	return labels
}

// Validate checks that every record has a corresponding file under imageDir.
// Rows without a file are skipped with a warning; the skipped count lets the
// caller surface the mismatch instead of silently miscounting batches.
func (t *Table) Validate(imageDir string) (*Table, int, error) {
	kept := make([]Record, 0, len(t.records))
	skipped := 0
	for _, rec := range t.records {
		if _, err := os.Stat(filepath.Join(imageDir, rec.ImageName)); err != nil {
			log.Printf("Warning: skipping %s: no file in %s", rec.ImageName, imageDir)
			skipped++
			continue
		}
		kept = append(kept, rec)
	}
	if len(kept) == 0 {
		return nil, skipped, fmt.Errorf("no table rows have image files in %s", imageDir)
	}
	if skipped > 0 {
		log.Printf("Warning: table had %d rows, %d without image files", len(t.records), skipped)
	}
	return &Table{records: kept}, skipped, nil
}

// Split partitions the table into train and validation tables. Records are
// shuffled with the given seed before splitting.
func (t *Table) Split(valRatio float64, seed int64) (*Table, *Table, error) {
	if valRatio <= 0 || valRatio >= 1 {
		return nil, nil, fmt.Errorf("validation ratio %f must be in (0, 1)", valRatio)
	}

	n := len(t.records)
	indices := make([]int, n)
	for i := range indices {
		indices[i] = i
	}
	rng := rand.New(rand.NewSource(seed))
	rng.Shuffle(n, func(i, j int) {
		indices[i], indices[j] = indices[j], indices[i]
	})

	valSize := int(float64(n) * valRatio)
	if valSize == 0 || valSize == n {
		return nil, nil, fmt.Errorf("validation ratio %f leaves an empty split for %d records", valRatio, n)
	}

	val := make([]Record, valSize)
	for i := 0; i < valSize; i++ {
		val[i] = t.records[indices[i]]
	}
	train := make([]Record, n-valSize)
	for i := valSize; i < n; i++ {
		train[i-valSize] = t.records[indices[i]]
	}

	return &Table{records: train}, &Table{records: val}, nil
}
