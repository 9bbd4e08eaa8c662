package dataset

import (
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollatePadding(t *testing.T) {
	rng := rand.New(rand.NewPCG(3, 4))
	for i := 0; i < 20; i++ {
		seqs := make([][]int, 1+rng.IntN(8))
		longest := 0
		for j := range seqs {
			seqs[j] = make([]int, rng.IntN(12))
			for k := range seqs[j] {
				seqs[j][k] = 4 + rng.IntN(20)
			}
			longest = max(longest, len(seqs[j]))
		}

		b := Collate(seqs, 0)
		require.Equal(t, len(seqs), b.Size())
		assert.Equal(t, longest, b.MaxLen())
		for j, row := range b.IDs {
			require.Len(t, row, longest)
			assert.Equal(t, len(seqs[j]), b.Lengths[j])
			assert.Equal(t, seqs[j], row[:len(seqs[j])])
			for k := len(seqs[j]); k < longest; k++ {
				assert.Equal(t, 0, row[k])
				assert.False(t, b.Mask[j][k])
			}
		}
	}
}

func TestBatchDense(t *testing.T) {
	b := Collate([][]int{{1, 4, 2}, {1, 2}}, 0)
	d := b.Dense()
	require.NotNil(t, d)
	r, c := d.Dims()
	assert.Equal(t, 3, r)
	assert.Equal(t, 2, c)
	assert.Equal(t, 4.0, d.At(1, 0))
	assert.Equal(t, 0.0, d.At(2, 1))

	assert.Nil(t, Collate(nil, 0).Dense())
}

func TestCollateExamples(t *testing.T) {
	b := CollateExamples([]Example[[]int]{
		{Index: 4, Input: []int{1, 5, 2}, Labels: []float32{0.5}},
		{Index: 9, Input: []int{1, 2}, Labels: []float32{1.5}},
	}, 0)
	assert.Equal(t, []int{4, 9}, b.Indices)
	assert.Equal(t, []float32{0.5, 1.5}, b.Labels)

	unlabelled := CollateExamples([]Example[[]int]{{Index: 0, Input: []int{1}}}, 0)
	assert.Nil(t, unlabelled.Labels)
}
