package chem

import (
	"cmp"
	"encoding/binary"
	"errors"
	"fmt"
	"slices"

	"github.com/RoaringBitmap/roaring"
	"github.com/zeebo/xxh3"
)

// ErrInvalidFingerprint is returned for a fingerprinter with a non-positive
// size or negative radius.
var ErrInvalidFingerprint = errors.New("invalid fingerprint parameters")

// Fingerprinter maps a molecule to a fixed-length feature vector.
type Fingerprinter interface {
	Fingerprint(m *Molecule) ([]float32, error)
	Size() int
}

// MorganFingerprinter hashes circular atom environments up to Radius bonds
// wide and folds them into Bits positions.
type MorganFingerprinter struct {
	Radius int
	Bits   int
}

// NewMorganFingerprinter returns a Morgan fingerprinter.
func NewMorganFingerprinter(radius, bits int) *MorganFingerprinter {
	return &MorganFingerprinter{Radius: radius, Bits: bits}
}

// Size implements Fingerprinter.
func (f *MorganFingerprinter) Size() int { return f.Bits }

// Bitmap returns the set bit positions of m.
func (f *MorganFingerprinter) Bitmap(m *Molecule) (*roaring.Bitmap, error) {
	if f.Bits <= 0 || f.Radius < 0 {
		return nil, fmt.Errorf("%w: radius %d, bits %d", ErrInvalidFingerprint, f.Radius, f.Bits)
	}
	bm := roaring.New()
	fold := func(id uint64) { bm.Add(uint32(id % uint64(f.Bits))) }

	ring := m.RingAtoms()
	ids := make([]uint64, len(m.Atoms))
	var buf []byte
	for i, a := range m.Atoms {
		buf = buf[:0]
		buf = binary.LittleEndian.AppendUint64(buf, uint64(AtomicNumber(a.Symbol)))
		buf = binary.LittleEndian.AppendUint64(buf, uint64(m.Degree(i)))
		buf = binary.LittleEndian.AppendUint64(buf, uint64(m.ImplicitHydrogens(i)))
		buf = binary.LittleEndian.AppendUint64(buf, uint64(int64(a.Charge)))
		buf = append(buf, byte(boolInt(a.Aromatic)), byte(boolInt(ring[i])))
		ids[i] = xxh3.Hash(buf)
		fold(ids[i])
	}

	type env struct {
		order BondOrder
		id    uint64
	}
	for r := 1; r <= f.Radius; r++ {
		next := make([]uint64, len(ids))
		for i := range m.Atoms {
			envs := make([]env, 0, len(m.adj[i]))
			for _, bi := range m.adj[i] {
				b := m.Bonds[bi]
				envs = append(envs, env{order: b.Order, id: ids[b.Other(i)]})
			}
			slices.SortFunc(envs, func(x, y env) int {
				if c := cmp.Compare(x.order, y.order); c != 0 {
					return c
				}
				return cmp.Compare(x.id, y.id)
			})
			buf = buf[:0]
			buf = binary.LittleEndian.AppendUint64(buf, uint64(r))
			buf = binary.LittleEndian.AppendUint64(buf, ids[i])
			for _, e := range envs {
				buf = append(buf, byte(e.order))
				buf = binary.LittleEndian.AppendUint64(buf, e.id)
			}
			next[i] = xxh3.Hash(buf)
			fold(next[i])
		}
		ids = next
	}
	return bm, nil
}

// Fingerprint implements Fingerprinter with 0/1 values.
func (f *MorganFingerprinter) Fingerprint(m *Molecule) ([]float32, error) {
	bm, err := f.Bitmap(m)
	if err != nil {
		return nil, err
	}
	out := make([]float32, f.Bits)
	it := bm.Iterator()
	for it.HasNext() {
		out[it.Next()] = 1
	}
	return out, nil
}

// EnhancedFingerprinter appends Descriptors to a Morgan fingerprint.
type EnhancedFingerprinter struct {
	Morgan *MorganFingerprinter
}

// NewEnhancedFingerprinter returns the 2048-bit radius-3 Morgan fingerprint
// followed by the descriptor vector.
func NewEnhancedFingerprinter() *EnhancedFingerprinter {
	return &EnhancedFingerprinter{Morgan: NewMorganFingerprinter(3, 2048)}
}

// Size implements Fingerprinter.
func (f *EnhancedFingerprinter) Size() int { return f.Morgan.Size() + NumDescriptors }

// Fingerprint implements Fingerprinter.
func (f *EnhancedFingerprinter) Fingerprint(m *Molecule) ([]float32, error) {
	bits, err := f.Morgan.Fingerprint(m)
	if err != nil {
		return nil, err
	}
	return append(bits, Descriptors(m)...), nil
}

// Tanimoto returns the Jaccard similarity of two fingerprint bitmaps.
func Tanimoto(a, b *roaring.Bitmap) float64 {
	union := a.OrCardinality(b)
	if union == 0 {
		return 0
	}
	return float64(a.AndCardinality(b)) / float64(union)
}

// FingerprintSMILES parses smiles and fingerprints it with f.
func FingerprintSMILES(f Fingerprinter, smiles string) ([]float32, error) {
	m, err := Parse(smiles)
	if err != nil {
		return nil, err
	}
	return f.Fingerprint(m)
}
