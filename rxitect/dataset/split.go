package dataset

import (
	"errors"
	"fmt"
	"math/rand/v2"

	"github.com/RoaringBitmap/roaring"
	"github.com/samber/lo"
)

var (
	// ErrSplitSizes is returned when the requested split sizes are negative
	// or do not add up to the number of rows.
	ErrSplitSizes = errors.New("split sizes do not match row count")
	// ErrInvalidPartition is returned when splits overlap or leave rows out.
	ErrInvalidPartition = errors.New("splits do not partition the rows")
)

// Split is a named set of row indices.
type Split struct {
	Name    string
	Indices []int
}

// Len returns the number of members.
func (s Split) Len() int { return len(s.Indices) }

// Bitmap returns the members as a bitmap.
func (s Split) Bitmap() *roaring.Bitmap {
	bm := roaring.New()
	for _, i := range s.Indices {
		bm.Add(uint32(i))
	}
	return bm
}

// SplitNames label the splits of a three-way partition.
var SplitNames = []string{"train", "val", "test"}

// RandomSplit permutes 0..n-1 with a generator seeded by seed and cuts the
// permutation into consecutive chunks of the given lengths.
func RandomSplit(n int, lengths []int, seed int64) ([]Split, error) {
	if lo.SomeBy(lengths, func(l int) bool { return l < 0 }) {
		return nil, fmt.Errorf("%w: negative size in %v", ErrSplitSizes, lengths)
	}
	if total := lo.Sum(lengths); total != n {
		return nil, fmt.Errorf("%w: sizes %v sum to %d, have %d rows", ErrSplitSizes, lengths, total, n)
	}
	perm := rand.New(rand.NewPCG(uint64(seed), splitStream)).Perm(n)
	splits := make([]Split, len(lengths))
	offset := 0
	for i, l := range lengths {
		splits[i] = Split{Name: splitName(i), Indices: perm[offset : offset+l : offset+l]}
		offset += l
	}
	return splits, nil
}

// RandomGroupSplit splits whole groups of rows. lengths count groups, so
// the members of one group always land in the same split.
func RandomGroupSplit(groups [][]int, lengths []int, seed int64) ([]Split, error) {
	byGroup, err := RandomSplit(len(groups), lengths, seed)
	if err != nil {
		return nil, err
	}
	return lo.Map(byGroup, func(s Split, _ int) Split {
		return Split{Name: s.Name, Indices: lo.FlatMap(s.Indices, func(g int, _ int) []int { return groups[g] })}
	}), nil
}

func splitName(i int) string {
	if i < len(SplitNames) {
		return SplitNames[i]
	}
	return fmt.Sprintf("split%d", i)
}

// ValidatePartition checks that splits are pairwise disjoint and together
// hold exactly the rows 0..n-1.
func ValidatePartition(splits []Split, n int) error {
	bitmaps := make([]*roaring.Bitmap, len(splits))
	union := roaring.New()
	for i, s := range splits {
		bitmaps[i] = s.Bitmap()
		if int(bitmaps[i].GetCardinality()) != s.Len() {
			return fmt.Errorf("%w: %s holds duplicate rows", ErrInvalidPartition, s.Name)
		}
		for j := 0; j < i; j++ {
			if bitmaps[i].Intersects(bitmaps[j]) {
				return fmt.Errorf("%w: %s and %s overlap", ErrInvalidPartition, splits[j].Name, s.Name)
			}
		}
		union.Or(bitmaps[i])
	}
	if int(union.GetCardinality()) != n {
		return fmt.Errorf("%w: %d rows covered, want %d", ErrInvalidPartition, union.GetCardinality(), n)
	}
	if n > 0 && union.Maximum() != uint32(n-1) {
		return fmt.Errorf("%w: row %d outside [0, %d)", ErrInvalidPartition, union.Maximum(), n)
	}
	return nil
}
