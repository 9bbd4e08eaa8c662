package dataset

import (
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRandomSplitDeterministic(t *testing.T) {
	a, err := RandomSplit(100, []int{60, 20, 20}, 42)
	require.NoError(t, err)
	b, err := RandomSplit(100, []int{60, 20, 20}, 42)
	require.NoError(t, err)

	require.Len(t, a, 3)
	assert.Equal(t, a, b)
	assert.Equal(t, []string{"train", "val", "test"}, []string{a[0].Name, a[1].Name, a[2].Name})
	assert.Equal(t, 60, a[0].Len())
	assert.Equal(t, 20, a[1].Len())
	assert.Equal(t, 20, a[2].Len())
	require.NoError(t, ValidatePartition(a, 100))

	c, err := RandomSplit(100, []int{60, 20, 20}, 7)
	require.NoError(t, err)
	assert.NotEqual(t, a[0].Indices, c[0].Indices)
}

func TestRandomSplitPartitions(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))
	for i := 0; i < 50; i++ {
		sizes := []int{rng.IntN(40), rng.IntN(40), rng.IntN(40)}
		n := sizes[0] + sizes[1] + sizes[2]
		splits, err := RandomSplit(n, sizes, rng.Int64())
		require.NoError(t, err)
		require.NoError(t, ValidatePartition(splits, n), "sizes %v", sizes)
	}
}

func TestRandomSplitSizes(t *testing.T) {
	_, err := RandomSplit(100, []int{60, 20, 10}, 42)
	assert.ErrorIs(t, err, ErrSplitSizes)

	_, err = RandomSplit(10, []int{20, -10}, 42)
	assert.ErrorIs(t, err, ErrSplitSizes)
}

func TestRandomGroupSplit(t *testing.T) {
	groups := make([][]int, 10)
	for g := range groups {
		groups[g] = []int{2 * g, 2*g + 1}
	}
	splits, err := RandomGroupSplit(groups, []int{6, 2, 2}, 42)
	require.NoError(t, err)
	require.NoError(t, ValidatePartition(splits, 20))
	assert.Equal(t, 12, splits[0].Len())

	for _, s := range splits {
		bm := s.Bitmap()
		for _, i := range s.Indices {
			assert.True(t, bm.Contains(uint32(i^1)), "row %d separated from its pair", i)
		}
	}
}

func TestValidatePartition(t *testing.T) {
	overlap := []Split{{Name: "train", Indices: []int{0, 1}}, {Name: "val", Indices: []int{1, 2}}}
	assert.ErrorIs(t, ValidatePartition(overlap, 3), ErrInvalidPartition)

	gap := []Split{{Name: "train", Indices: []int{0}}, {Name: "val", Indices: []int{2}}}
	assert.ErrorIs(t, ValidatePartition(gap, 3), ErrInvalidPartition)

	dup := []Split{{Name: "train", Indices: []int{0, 0, 1}}}
	assert.ErrorIs(t, ValidatePartition(dup, 2), ErrInvalidPartition)

	outside := []Split{{Name: "train", Indices: []int{0, 5}}}
	assert.ErrorIs(t, ValidatePartition(outside, 2), ErrInvalidPartition)
}

