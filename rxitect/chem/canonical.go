package chem

import (
	"slices"
)

// canonicalLeaves bounds the complete rankings tried while breaking ties.
// Past it the smallest string found so far is returned.
const canonicalLeaves = 1 << 12

// Canonical parses smiles and writes its canonical form. Two inputs
// describing the same molecule produce the same string.
func Canonical(smiles string) (string, error) {
	m, err := Parse(smiles)
	if err != nil {
		return "", err
	}
	return m.Canonical()
}

// Canonical writes m starting from its lowest-ranked atom, following
// neighbors in rank order. Ties left by rank refinement are broken every
// possible way and the smallest resulting string wins, so stereo marks
// decide between orderings the graph alone cannot. Chirality marks on atoms
// that are not stereocentres are not written, nor are direction marks around
// a double bond with an end carrying two equivalent substituents.
func (m *Molecule) Canonical() (string, error) {
	s := m.searchRanks()
	if !s.found {
		return "", s.err
	}
	return s.best, nil
}

// CanonicalRanks assigns every atom a distinct rank: the ranking Canonical
// writes from.
func (m *Molecule) CanonicalRanks() []int {
	s := m.searchRanks()
	if !s.found {
		return s.first
	}
	return s.ranks
}

type rankSearch struct {
	m      *Molecule
	budget int

	found bool
	best  string
	ranks []int
	first []int
	err   error
}

// searchRanks finds the canonical ranking of m. Chirality marks whose
// inversion leaves the canonical string unchanged describe no stereocentre
// and are dropped before the final search.
func (m *Molecule) searchRanks() *rankSearch {
	keys := m.invariants()
	c := m.withoutSpuriousStereo(keys)
	s := c.search(keys)
	if !s.found {
		return s
	}
	var void []int
	for i, a := range c.Atoms {
		if a.Chirality == ChiralNone {
			continue
		}
		mirror := c.Clone()
		mirror.Atoms[i].Chirality = a.Chirality.flip()
		if t := mirror.search(keys); t.found && t.best == s.best {
			void = append(void, i)
		}
	}
	if len(void) == 0 {
		return s
	}
	if c == m {
		c = m.Clone()
	}
	for _, i := range void {
		c.Atoms[i].Chirality = ChiralNone
	}
	return c.search(keys)
}

func (m *Molecule) search(keys [][]int) *rankSearch {
	s := &rankSearch{m: m, budget: canonicalLeaves}
	s.run(m.refine(denseRanks(keys)))
	return s
}

// run breaks the lowest tie left in ranks once per member of the tied
// class. Terminal twins give identical subtrees, so only one is tried.
func (s *rankSearch) run(ranks []int) {
	if s.budget == 0 {
		return
	}
	tied := lowestTie(ranks)
	if tied < 0 {
		s.leaf(ranks)
		return
	}
	var tried []int
	for i, r := range ranks {
		if r != tied || slices.ContainsFunc(tried, func(j int) bool { return s.m.twins(i, j) }) {
			continue
		}
		tried = append(tried, i)
		s.run(s.m.refine(splitOff(ranks, i)))
	}
}

func (s *rankSearch) leaf(ranks []int) {
	s.budget--
	if s.first == nil {
		s.first = ranks
	}
	out, err := s.m.writeRanked(ranks)
	if err != nil {
		s.err = err
		return
	}
	if !s.found || out < s.best {
		s.found, s.best, s.ranks = true, out, ranks
	}
}

func (m *Molecule) writeRanked(ranks []int) (string, error) {
	byRank := func(a, b int) int { return ranks[a] - ranks[b] }
	return write(m, traversal{
		components: func(comps [][]int) {
			slices.SortFunc(comps, func(a, b []int) int {
				return ranks[slices.MinFunc(a, byRank)] - ranks[slices.MinFunc(b, byRank)]
			})
		},
		root: func(comp []int) int {
			return slices.MinFunc(comp, byRank)
		},
		arrange: func(atom int, bonds []int) {
			slices.SortFunc(bonds, func(x, y int) int {
				return ranks[m.Bonds[x].Other(atom)] - ranks[m.Bonds[y].Other(atom)]
			})
		},
		normalizeStereo: true,
	})
}

// invariants returns the per-atom keys rank refinement starts from.
func (m *Molecule) invariants() [][]int {
	ring := m.RingAtoms()
	keys := make([][]int, len(m.Atoms))
	for i, a := range m.Atoms {
		keys[i] = []int{
			AtomicNumber(a.Symbol),
			boolInt(a.Aromatic),
			a.Isotope,
			a.Charge,
			m.ImplicitHydrogens(i),
			m.Degree(i),
			boolInt(a.Bracket),
			boolInt(ring[i]),
			a.Class,
		}
	}
	return keys
}

// withoutSpuriousStereo clears chirality on atoms, and direction markers
// around double bonds, whose stereo is void because an atom carries two
// equivalent terminal substituents. m is returned unchanged when nothing
// is cleared.
func (m *Molecule) withoutSpuriousStereo(keys [][]int) *Molecule {
	out := m
	edit := func() {
		if out == m {
			out = m.Clone()
		}
	}
	for i, a := range m.Atoms {
		if a.Chirality != ChiralNone && m.symmetricCentre(i, keys) {
			edit()
			out.Atoms[i].Chirality = ChiralNone
		}
	}
	for _, d := range m.Bonds {
		if d.Order != BondDouble || !(m.symmetricCentre(d.Begin, keys) || m.symmetricCentre(d.End, keys)) {
			continue
		}
		for _, end := range []int{d.Begin, d.End} {
			for _, bi := range m.adj[end] {
				b := m.Bonds[bi]
				// Bonds shared with a neighboring double bond still serve it.
				if b.Direction == DirNone || m.hasDoubleBond(b.Other(end)) {
					continue
				}
				edit()
				out.Bonds[bi].Direction = DirNone
			}
		}
	}
	return out
}

// symmetricCentre reports whether atom has two implicit hydrogens or two
// terminal neighbors that are indistinguishable.
func (m *Molecule) symmetricCentre(atom int, keys [][]int) bool {
	if m.ImplicitHydrogens(atom) >= 2 {
		return true
	}
	var terminal []int
	for _, bi := range m.adj[atom] {
		v := m.Bonds[bi].Other(atom)
		if m.Degree(v) != 1 {
			continue
		}
		for _, prev := range terminal {
			if slices.Equal(keys[v], keys[prev]) && m.Bonds[bi].Order == m.Bonds[m.adj[prev][0]].Order {
				return true
			}
		}
		terminal = append(terminal, v)
	}
	return false
}

func (m *Molecule) hasDoubleBond(atom int) bool {
	for _, bi := range m.adj[atom] {
		if m.Bonds[bi].Order == BondDouble {
			return true
		}
	}
	return false
}

// twins reports whether i and j are stereo-free terminal atoms on the same
// neighbor, so exchanging them maps the molecule onto itself.
func (m *Molecule) twins(i, j int) bool {
	if m.Degree(i) != 1 || m.Degree(j) != 1 {
		return false
	}
	bi, bj := m.Bonds[m.adj[i][0]], m.Bonds[m.adj[j][0]]
	return bi.Other(i) == bj.Other(j) &&
		bi.Order == bj.Order &&
		bi.Direction == DirNone && bj.Direction == DirNone &&
		m.Atoms[i].Chirality == ChiralNone && m.Atoms[j].Chirality == ChiralNone
}

// refine splits rank classes by their sorted neighbor ranks until the
// partition is stable.
func (m *Molecule) refine(ranks []int) []int {
	for {
		keys := make([][]int, len(ranks))
		for i := range ranks {
			nb := make([]int, 0, len(m.adj[i]))
			for _, bi := range m.adj[i] {
				b := m.Bonds[bi]
				nb = append(nb, ranks[b.Other(i)]*8+int(b.Order))
			}
			slices.Sort(nb)
			keys[i] = append([]int{ranks[i]}, nb...)
		}
		next := denseRanks(keys)
		if distinct(next) == distinct(ranks) {
			return next
		}
		ranks = next
	}
}

// lowestTie returns the lowest rank shared by several atoms, or -1.
func lowestTie(ranks []int) int {
	counts := make(map[int]int, len(ranks))
	for _, r := range ranks {
		counts[r]++
	}
	tied := -1
	for r, c := range counts {
		if c > 1 && (tied < 0 || r < tied) {
			tied = r
		}
	}
	return tied
}

// splitOff ranks atom just below the rest of its class.
func splitOff(ranks []int, atom int) []int {
	out := make([]int, len(ranks))
	for i, r := range ranks {
		out[i] = r * 2
	}
	out[atom]--
	return out
}

// denseRanks maps keys to 0..k-1 by lexicographic order; equal keys share a
// rank.
func denseRanks(keys [][]int) []int {
	idx := make([]int, len(keys))
	for i := range idx {
		idx[i] = i
	}
	slices.SortStableFunc(idx, func(a, b int) int {
		return slices.Compare(keys[a], keys[b])
	})
	ranks := make([]int, len(keys))
	rank := 0
	for i, atom := range idx {
		if i > 0 && slices.Compare(keys[idx[i-1]], keys[atom]) != 0 {
			rank++
		}
		ranks[atom] = rank
	}
	return ranks
}

func distinct(ranks []int) int {
	seen := make(map[int]struct{}, len(ranks))
	for _, r := range ranks {
		seen[r] = struct{}{}
	}
	return len(seen)
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
