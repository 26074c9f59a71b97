package catalog

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBuildSortsAndDeduplicates(t *testing.T) {
	cat, err := Build([]string{"ramen", "apple_pie", "ramen", "burrito"})
	require.NoError(t, err)
	require.Equal(t, 3, cat.Len())
	require.Equal(t, []string{"apple_pie", "burrito", "ramen"}, cat.Names())
}

func TestBuildEmpty(t *testing.T) {
	_, err := Build(nil)
	require.Error(t, err)
}

func TestNumericLabelsSortAsStrings(t *testing.T) {
	// Labels are string-cast before sorting, so "10" < "3" < "7".
	cat, err := Build([]string{"3", "10", "7"})
	require.NoError(t, err)
	require.Equal(t, []string{"10", "3", "7"}, cat.Names())

	idx, err := cat.Index("10")
	require.NoError(t, err)
	require.Equal(t, 0, idx)
}

func TestOneHotRoundTrip(t *testing.T) {
	cat, err := Build([]string{"3", "10", "7"})
	require.NoError(t, err)

	oneHot := make([]float32, cat.Len())
	require.NoError(t, cat.OneHot("10", oneHot))

	argmax := 0
	for i, v := range oneHot {
		if v > oneHot[argmax] {
			argmax = i
		}
	}
	name, err := cat.Name(argmax)
	require.NoError(t, err)
	require.Equal(t, "10", name)
}

func TestOneHotBufferMismatch(t *testing.T) {
	cat, err := Build([]string{"a", "b"})
	require.NoError(t, err)
	require.Error(t, cat.OneHot("a", make([]float32, 3)))
}

func TestIndexUnknownLabel(t *testing.T) {
	cat, err := Build([]string{"a", "b"})
	require.NoError(t, err)

	_, err = cat.Index("c")
	require.Error(t, err)
}

func TestNameOutOfRange(t *testing.T) {
	cat, err := Build([]string{"a", "b"})
	require.NoError(t, err)

	_, err = cat.Name(2)
	require.Error(t, err)
	_, err = cat.Name(-1)
	require.Error(t, err)
}
