package chem

import (
	"math/rand/v2"
)

// Randomizer rewrites SMILES strings in a random atom order. The output
// describes the same molecule as the input but is in general not canonical.
//
// A Randomizer is not safe for concurrent use; give every worker its own.
type Randomizer struct {
	rng    *rand.Rand
	parser Parser
}

// globalSource draws from the process-level generator.
type globalSource struct{}

func (globalSource) Uint64() uint64 { return rand.Uint64() }

// NewRandomizer returns a Randomizer drawing from src. A nil src uses the
// process-level generator, so results are not reproducible.
func NewRandomizer(src rand.Source) *Randomizer {
	if src == nil {
		src = globalSource{}
	}
	return &Randomizer{rng: rand.New(src), parser: SmilesParser{}}
}

// NewSeededRandomizer returns a deterministic Randomizer. Distinct streams
// with the same seed produce independent sequences.
func NewSeededRandomizer(seed, stream uint64) *Randomizer {
	return NewRandomizer(rand.NewPCG(seed, stream))
}

// WithParser replaces the SMILES reader.
func (r *Randomizer) WithParser(p Parser) *Randomizer {
	r.parser = p
	return r
}

// Randomize parses smiles and writes it back from a random root atom per
// component, shuffling the neighbor order at every step. Unparseable input
// returns the parse error.
func (r *Randomizer) Randomize(smiles string) (string, error) {
	m, err := r.parser.Parse(smiles)
	if err != nil {
		return "", err
	}
	return r.RandomizeMolecule(m)
}

// RandomizeMolecule writes m in a random atom order.
func (r *Randomizer) RandomizeMolecule(m *Molecule) (string, error) {
	return write(m, traversal{
		components: func([][]int) {},
		root: func(comp []int) int {
			return comp[r.rng.IntN(len(comp))]
		},
		arrange: func(_ int, bonds []int) {
			r.rng.Shuffle(len(bonds), func(i, j int) {
				bonds[i], bonds[j] = bonds[j], bonds[i]
			})
		},
	})
}

// RandomizeSMILES is Randomize with the process-level generator.
func RandomizeSMILES(smiles string) (string, error) {
	return NewRandomizer(nil).Randomize(smiles)
}
