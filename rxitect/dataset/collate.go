package dataset

import (
	"errors"
	"fmt"

	"github.com/samber/lo"
	"gonum.org/v1/gonum/mat"
)

var (
	// ErrEmptyBatch is returned when stacking zero examples.
	ErrEmptyBatch = errors.New("empty batch")
	// ErrFeatureSize is returned when feature vectors differ in length.
	ErrFeatureSize = errors.New("feature vectors differ in length")
)

// Batch is a right-padded group of token sequences. IDs is batch-major:
// IDs[i] is sequence i extended with Pad up to MaxLen.
type Batch struct {
	IDs     [][]int
	Lengths []int
	Mask    [][]bool
	Pad     int
	// Labels holds the first label of each example, when known.
	Labels []float32
	// Indices holds the source row of each example, when known.
	Indices []int
	// PinMemory is passed through from the loader configuration.
	PinMemory bool
}

// Collate pads seqs on the right with pad to the longest sequence.
func Collate(seqs [][]int, pad int) *Batch {
	lengths := lo.Map(seqs, func(s []int, _ int) int { return len(s) })
	width := 0
	if len(lengths) > 0 {
		width = lo.Max(lengths)
	}
	b := &Batch{
		IDs:     make([][]int, len(seqs)),
		Lengths: lengths,
		Mask:    make([][]bool, len(seqs)),
		Pad:     pad,
	}
	for i, s := range seqs {
		row := make([]int, width)
		mask := make([]bool, width)
		copy(row, s)
		for j := range row {
			if j < len(s) {
				mask[j] = true
				continue
			}
			row[j] = pad
		}
		b.IDs[i] = row
		b.Mask[i] = mask
	}
	return b
}

// CollateExamples collates tokenized examples, keeping their labels and
// row indices.
func CollateExamples(examples []Example[[]int], pad int) *Batch {
	b := Collate(lo.Map(examples, func(e Example[[]int], _ int) []int { return e.Input }), pad)
	b.Indices = lo.Map(examples, func(e Example[[]int], _ int) int { return e.Index })
	if lo.SomeBy(examples, func(e Example[[]int]) bool { return len(e.Labels) > 0 }) {
		b.Labels = lo.Map(examples, func(e Example[[]int], _ int) float32 { return e.Label() })
	}
	return b
}

// Size returns the number of sequences.
func (b *Batch) Size() int { return len(b.IDs) }

// MaxLen returns the padded sequence length.
func (b *Batch) MaxLen() int {
	if len(b.IDs) == 0 {
		return 0
	}
	return len(b.IDs[0])
}

// TimeMajor returns the transposed layout, MaxLen rows of Size ids, as
// sequence models consuming (seq, batch) input expect.
func (b *Batch) TimeMajor() [][]int {
	out := make([][]int, b.MaxLen())
	for t := range out {
		out[t] = make([]int, b.Size())
		for i, row := range b.IDs {
			out[t][i] = row[t]
		}
	}
	return out
}

// Dense returns the time-major ids as a MaxLen x Size matrix, or nil for an
// empty batch.
func (b *Batch) Dense() *mat.Dense {
	if b.Size() == 0 || b.MaxLen() == 0 {
		return nil
	}
	m := mat.NewDense(b.MaxLen(), b.Size(), nil)
	for i, row := range b.IDs {
		for t, id := range row {
			m.Set(t, i, float64(id))
		}
	}
	return m
}

// CollateFeatures stacks fixed-length feature vectors into a row-per-example
// matrix and their first labels into a vector.
func CollateFeatures(examples []Example[[]float32]) (*mat.Dense, *mat.VecDense, error) {
	if len(examples) == 0 {
		return nil, nil, ErrEmptyBatch
	}
	width := len(examples[0].Input)
	if width == 0 {
		return nil, nil, fmt.Errorf("%w: row %d has no features", ErrFeatureSize, examples[0].Index)
	}
	x := mat.NewDense(len(examples), width, nil)
	y := mat.NewVecDense(len(examples), nil)
	for i, e := range examples {
		if len(e.Input) != width {
			return nil, nil, fmt.Errorf("%w: row %d has %d, want %d", ErrFeatureSize, e.Index, len(e.Input), width)
		}
		for j, v := range e.Input {
			x.Set(i, j, float64(v))
		}
		y.SetVec(i, float64(e.Label()))
	}
	return x, y, nil
}

// Materialize transforms every example of src and stacks the result.
func Materialize(src Source[[]float32]) (*mat.Dense, *mat.VecDense, error) {
	examples := make([]Example[[]float32], src.Len())
	for i := range examples {
		e, err := src.Get(i)
		if err != nil {
			return nil, nil, err
		}
		examples[i] = e
	}
	return CollateFeatures(examples)
}
