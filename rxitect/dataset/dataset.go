package dataset

import (
	"errors"
	"fmt"

	"github.com/ZanzyTHEbar/rxitect/rxitect/chem"
)

// ErrIndexOutOfRange is returned for an index outside [0, Len()).
var ErrIndexOutOfRange = errors.New("index out of range")

// Example is one item of a dataset: the row index, the raw SMILES, the
// transformed input and the labels of the row.
type Example[T any] struct {
	Index  int
	SMILES string
	Input  T
	Labels []float32
}

// Label returns the first label, or 0 for unlabelled rows.
func (e Example[T]) Label() float32 {
	if len(e.Labels) == 0 {
		return 0
	}
	return e.Labels[0]
}

// Source is indexable, length-bounded access to examples.
type Source[T any] interface {
	Len() int
	Get(i int) (Example[T], error)
}

// Transform converts the SMILES field of a row into a model input.
type Transform[T any] func(smiles string) (T, error)

// Dataset serves the rows of a Table through a Transform.
type Dataset[T any] struct {
	table     *Table
	transform Transform[T]
}

// New wraps table. A nil transform leaves Input at its zero value.
func New[T any](table *Table, transform Transform[T]) *Dataset[T] {
	return &Dataset[T]{table: table, transform: transform}
}

// Len implements Source.
func (d *Dataset[T]) Len() int { return d.table.Len() }

// Table returns the underlying rows.
func (d *Dataset[T]) Table() *Table { return d.table }

// Get implements Source.
func (d *Dataset[T]) Get(i int) (Example[T], error) {
	if i < 0 || i >= d.table.Len() {
		return Example[T]{}, fmt.Errorf("%w: %d not in [0, %d)", ErrIndexOutOfRange, i, d.table.Len())
	}
	rec := d.table.Records[i]
	ex := Example[T]{Index: i, SMILES: rec.SMILES, Labels: rec.Labels}
	if d.transform != nil {
		in, err := d.transform(rec.SMILES)
		if err != nil {
			return Example[T]{}, fmt.Errorf("transform row %d: %w", i, err)
		}
		ex.Input = in
	}
	return ex, nil
}

// Subset is a view of a Source through an index list.
type Subset[T any] struct {
	src     Source[T]
	indices []int
}

// NewSubset returns the view of src restricted to indices, in that order.
func NewSubset[T any](src Source[T], indices []int) *Subset[T] {
	return &Subset[T]{src: src, indices: indices}
}

// Len implements Source.
func (s *Subset[T]) Len() int { return len(s.indices) }

// Indices returns the source indices of the view.
func (s *Subset[T]) Indices() []int { return s.indices }

// Get implements Source. Example.Index stays the index in the wrapped source.
func (s *Subset[T]) Get(i int) (Example[T], error) {
	if i < 0 || i >= len(s.indices) {
		return Example[T]{}, fmt.Errorf("%w: %d not in [0, %d)", ErrIndexOutOfRange, i, len(s.indices))
	}
	return s.src.Get(s.indices[i])
}

// TokenTransform adapts an encoder such as a fitted tokenizer.
func TokenTransform(encode func(string) []int) Transform[[]int] {
	return func(smiles string) ([]int, error) {
		return encode(smiles), nil
	}
}

// FingerprintTransform parses SMILES and fingerprints them with f.
func FingerprintTransform(f chem.Fingerprinter) Transform[[]float32] {
	return func(smiles string) ([]float32, error) {
		return chem.FingerprintSMILES(f, smiles)
	}
}

// NewQSARDataset reads the smiles column and the activity column named by
// targetID (for example CHEMBL226). Rows missing either value are dropped.
func NewQSARDataset[T any](path, targetID string, transform Transform[T]) (*Dataset[T], error) {
	table, err := ReadTable(path, TableSpec{SmilesColumn: "smiles", LabelColumns: []string{targetID}})
	if err != nil {
		return nil, err
	}
	return New(table, transform), nil
}
