package submission

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/technic0/iFood2019/catalog"
	"github.com/technic0/iFood2019/ensemble"
)

func TestTopKDescendingOrder(t *testing.T) {
	probs := []float32{0.05, 0.4, 0.1, 0.3, 0.15}
	require.Equal(t, []int{1, 3, 4}, TopK(probs, 3))
}

func TestTopKTieBreaksOnLowerIndex(t *testing.T) {
	probs := []float32{0.2, 0.3, 0.3, 0.2}
	require.Equal(t, []int{1, 2, 0}, TopK(probs, 3))

	// Re-running is idempotent.
	require.Equal(t, TopK(probs, 3), TopK(probs, 3))
}

func TestTopKIsSortedPrefix(t *testing.T) {
	probs := []float32{0.1, 0.25, 0.05, 0.3, 0.2, 0.1}
	top := TopK(probs, 3)
	require.Len(t, top, 3)
	for i := 1; i < len(top); i++ {
		require.GreaterOrEqual(t, probs[top[i-1]], probs[top[i]])
	}
	// Nothing outside the prefix beats anything inside it.
	chosen := map[int]bool{}
	for _, idx := range top {
		chosen[idx] = true
	}
	for idx, p := range probs {
		if !chosen[idx] {
			require.LessOrEqual(t, p, probs[top[len(top)-1]])
		}
	}
}

func TestTopKFewerClassesThanK(t *testing.T) {
	probs := []float32{0.6, 0.4}
	require.Equal(t, []int{0, 1}, TopK(probs, 3))
}

func TestBuildAndWriteCSV(t *testing.T) {
	cat, err := catalog.Build([]string{"ramen", "apple_pie", "burrito"})
	require.NoError(t, err)

	names := []string{"test_1.jpg", "test_2.jpg"}
	probs := [][]float32{
		{0.1, 0.2, 0.7}, // ramen, burrito, apple_pie
		{0.5, 0.3, 0.2}, // apple_pie, burrito, ramen
	}

	rows, err := Build(names, probs, cat, 3)
	require.NoError(t, err)
	require.Equal(t, []string{"ramen", "burrito", "apple_pie"}, rows[0].Labels)
	require.Equal(t, []string{"apple_pie", "burrito", "ramen"}, rows[1].Labels)

	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, rows))
	want := "img_name,label\n" +
		"test_1.jpg,ramen burrito apple_pie\n" +
		"test_2.jpg,apple_pie burrito ramen\n"
	require.Equal(t, want, buf.String())
}

func TestBuildAlignmentErrors(t *testing.T) {
	cat, err := catalog.Build([]string{"a", "b"})
	require.NoError(t, err)

	_, err = Build([]string{"x.jpg"}, nil, cat, 3)
	require.Error(t, err, "name/vector count mismatch")

	_, err = Build([]string{"x.jpg"}, [][]float32{{0.2, 0.3, 0.5}}, cat, 3)
	require.Error(t, err, "vector length vs catalog size")

	_, err = Build([]string{"x.jpg"}, [][]float32{{0.5, 0.5}}, nil, 3)
	require.Error(t, err, "nil catalog")

	_, err = Build([]string{"x.jpg"}, [][]float32{{0.5, 0.5}}, cat, 0)
	require.Error(t, err, "invalid k")
}

func TestEndToEndTwoClassEnsemble(t *testing.T) {
	// Six test images, two classes; model A votes class 0, model B votes
	// class 1. The ensemble is an even split and top-3 degrades to the two
	// available labels.
	cat, err := catalog.Build([]string{"apple", "banana"})
	require.NoError(t, err)

	runA := make([][]float32, 6)
	runB := make([][]float32, 6)
	names := make([]string, 6)
	for i := 0; i < 6; i++ {
		runA[i] = []float32{0.9, 0.1}
		runB[i] = []float32{0.1, 0.9}
		names[i] = "img_" + string(rune('a'+i)) + ".jpg"
	}

	combined, err := ensemble.Average(runA, runB)
	require.NoError(t, err)
	for i := 0; i < 6; i++ {
		require.InDelta(t, 0.5, combined[i][0], 1e-6)
		require.InDelta(t, 0.5, combined[i][1], 1e-6)
	}

	rows, err := Build(names, combined, cat, 3)
	require.NoError(t, err)
	require.Len(t, rows, 6)
	for i, row := range rows {
		require.Equal(t, names[i], row.ImageName)
		// Tie at 0.5 breaks toward the lower index; only the two
		// available labels are emitted.
		require.Equal(t, []string{"apple", "banana"}, row.Labels)
	}
}
