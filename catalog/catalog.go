// Package catalog maps between ordinal class indices and canonical label
// strings. The catalog is built once from the training labels and is
// immutable afterwards; every component that interprets a model output
// vector shares the same instance, so the index order used at training time
// and at decoding time cannot diverge.
package catalog

import (
	"fmt"
	"sort"
)

// Catalog is a bidirectional index<->label mapping.
type Catalog struct {
	names   []string
	indices map[string]int
}

// Build creates a catalog from the observed label values. Duplicates are
// collapsed; the resulting index order is the lexicographic order of the
// distinct labels.
func Build(labels []string) (*Catalog, error) {
	if len(labels) == 0 {
		return nil, fmt.Errorf("cannot build catalog from empty label set")
	}

	seen := make(map[string]struct{}, len(labels))
	var names []string
	for _, l := range labels {
		if _, ok := seen[l]; ok {
			continue
		}
		seen[l] = struct{}{}
		names = append(names, l)
	}
	sort.Strings(names)

	indices := make(map[string]int, len(names))
	for i, name := range names {
		indices[name] = i
	}

	return &Catalog{names: names, indices: indices}, nil
}

// Len returns the number of classes.
func (c *Catalog) Len() int {
	return len(c.names)
}

// Name returns the label string for a class index.
func (c *Catalog) Name(index int) (string, error) {
	if index < 0 || index >= len(c.names) {
		return "", fmt.Errorf("class index %d out of range [0, %d)", index, len(c.names))
	}
	return c.names[index], nil
}

// Index returns the class index for a label string.
func (c *Catalog) Index(name string) (int, error) {
	idx, ok := c.indices[name]
	if !ok {
		return 0, fmt.Errorf("unknown label %q", name)
	}
	return idx, nil
}

// Names returns a copy of the label list in index order.
func (c *Catalog) Names() []string {
	out := make([]string, len(c.names))
	copy(out, c.names)
	return out
}

// OneHot writes a one-hot encoding of the label into dst, which must have
// length Len().
func (c *Catalog) OneHot(name string, dst []float32) error {
	if len(dst) != len(c.names) {
		return fmt.Errorf("one-hot buffer length %d doesn't match %d classes", len(dst), len(c.names))
	}
	idx, err := c.Index(name)
	if err != nil {
		return err
	}
	for i := range dst {
		dst[i] = 0
	}
	dst[idx] = 1
	return nil
}
