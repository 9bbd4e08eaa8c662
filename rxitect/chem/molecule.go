package chem

import "slices"

// BondOrder is the multiplicity of a bond. Aromatic bonds are kept distinct
// from single and double bonds; no kekulization is performed.
type BondOrder int8

const (
	BondSingle BondOrder = iota + 1
	BondDouble
	BondTriple
	BondQuadruple
	BondAromatic
)

// valence returns the bond's contribution to an atom's valence. Aromatic
// bonds count as one; aromatic atoms get their extra electron in
// ImplicitHydrogens.
func (o BondOrder) valence() int {
	switch o {
	case BondDouble:
		return 2
	case BondTriple:
		return 3
	case BondQuadruple:
		return 4
	default:
		return 1
	}
}

// Chirality is the tetrahedral parity written as @ or @@.
type Chirality int8

const (
	ChiralNone Chirality = iota
	ChiralCCW            // @
	ChiralCW             // @@
)

func (c Chirality) flip() Chirality {
	switch c {
	case ChiralCCW:
		return ChiralCW
	case ChiralCW:
		return ChiralCCW
	default:
		return c
	}
}

// Direction is the / or \ marker on a single bond adjacent to a double bond.
type Direction int8

const (
	DirNone Direction = iota
	DirUp             // /
	DirDown           // \
)

func (d Direction) flip() Direction {
	switch d {
	case DirUp:
		return DirDown
	case DirDown:
		return DirUp
	default:
		return d
	}
}

// Atom is a node of the molecular graph.
type Atom struct {
	Symbol    string // element symbol with standard capitalization, or "*"
	Aromatic  bool
	Bracket   bool // written in [] form
	Isotope   int
	Charge    int
	HCount    int // explicit hydrogens, bracket atoms only
	Class     int
	Chirality Chirality
}

// Bond is an edge of the molecular graph. Direction is relative to Begin->End.
type Bond struct {
	Begin     int
	End       int
	Order     BondOrder
	Direction Direction
}

// Other returns the endpoint of b that is not atom.
func (b Bond) Other(atom int) int {
	if b.Begin == atom {
		return b.End
	}
	return b.Begin
}

// implicitH marks the bracket hydrogen in a chiral atom's neighbor order.
const implicitH = -1

// Molecule is a molecular graph parsed from SMILES.
type Molecule struct {
	Atoms []Atom
	Bonds []Bond

	adj [][]int // atom -> incident bond indices
	// order is each atom's neighbor list in the order the parser met them,
	// including implicitH for chiral bracket atoms. Chirality is relative
	// to this order.
	order [][]int
}

func (m *Molecule) addAtom(a Atom) int {
	m.Atoms = append(m.Atoms, a)
	m.adj = append(m.adj, nil)
	m.order = append(m.order, nil)
	return len(m.Atoms) - 1
}

func (m *Molecule) addBond(b Bond) int {
	m.Bonds = append(m.Bonds, b)
	idx := len(m.Bonds) - 1
	m.adj[b.Begin] = append(m.adj[b.Begin], idx)
	m.adj[b.End] = append(m.adj[b.End], idx)
	return idx
}

// NumAtoms returns the number of atoms (hydrogens are implicit).
func (m *Molecule) NumAtoms() int { return len(m.Atoms) }

// NumBonds returns the number of bonds.
func (m *Molecule) NumBonds() int { return len(m.Bonds) }

// Degree returns the number of explicit neighbors of atom.
func (m *Molecule) Degree(atom int) int { return len(m.adj[atom]) }

// Neighbors returns the atoms bonded to atom, in bond insertion order.
func (m *Molecule) Neighbors(atom int) []int {
	out := make([]int, 0, len(m.adj[atom]))
	for _, b := range m.adj[atom] {
		out = append(out, m.Bonds[b].Other(atom))
	}
	return out
}

// BondBetween returns the index of the bond joining a and b, or -1.
func (m *Molecule) BondBetween(a, b int) int {
	for _, bi := range m.adj[a] {
		if m.Bonds[bi].Other(a) == b {
			return bi
		}
	}
	return -1
}

// Components returns the connected components, each sorted by atom index,
// ordered by their lowest atom index.
func (m *Molecule) Components() [][]int {
	seen := make([]bool, len(m.Atoms))
	var comps [][]int
	for start := range m.Atoms {
		if seen[start] {
			continue
		}
		comp := []int{}
		stack := []int{start}
		seen[start] = true
		for len(stack) > 0 {
			a := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			comp = append(comp, a)
			for _, n := range m.Neighbors(a) {
				if !seen[n] {
					seen[n] = true
					stack = append(stack, n)
				}
			}
		}
		slices.Sort(comp)
		comps = append(comps, comp)
	}
	return comps
}

// RingBonds reports for every bond whether it lies on a cycle, i.e. is not
// a bridge of the graph.
func (m *Molecule) RingBonds() []bool {
	n := len(m.Atoms)
	disc := make([]int, n)
	low := make([]int, n)
	for i := range disc {
		disc[i] = -1
	}
	inRing := make([]bool, len(m.Bonds))
	for i := range inRing {
		inRing[i] = true
	}
	timer := 0
	var visit func(u, parentBond int)
	visit = func(u, parentBond int) {
		disc[u] = timer
		low[u] = timer
		timer++
		for _, bi := range m.adj[u] {
			if bi == parentBond {
				continue
			}
			v := m.Bonds[bi].Other(u)
			if disc[v] == -1 {
				visit(v, bi)
				low[u] = min(low[u], low[v])
				if low[v] > disc[u] {
					inRing[bi] = false
				}
			} else {
				low[u] = min(low[u], disc[v])
			}
		}
	}
	for a := range m.Atoms {
		if disc[a] == -1 {
			visit(a, -1)
		}
	}
	return inRing
}

// RingAtoms reports for every atom whether it has at least one ring bond.
func (m *Molecule) RingAtoms() []bool {
	ringBonds := m.RingBonds()
	out := make([]bool, len(m.Atoms))
	for bi, ok := range ringBonds {
		if ok {
			out[m.Bonds[bi].Begin] = true
			out[m.Bonds[bi].End] = true
		}
	}
	return out
}

// ImplicitHydrogens returns the hydrogen count of atom: the explicit count
// for bracket atoms, otherwise the count implied by the lowest default
// valence that accommodates the atom's bonds.
func (m *Molecule) ImplicitHydrogens(atom int) int {
	a := m.Atoms[atom]
	if a.Bracket {
		return a.HCount
	}
	valences, ok := organicValences[a.Symbol]
	if !ok {
		return 0
	}
	used := 0
	aromatic := 0
	for _, bi := range m.adj[atom] {
		b := m.Bonds[bi]
		if b.Order == BondAromatic {
			aromatic++
		}
		used += b.Order.valence()
	}
	if a.Aromatic {
		if aromatic > 0 {
			used++
		}
		return max(valences[0]-used, 0)
	}
	for _, v := range valences {
		if v >= used {
			return v - used
		}
	}
	return 0
}

// Clone returns a deep copy of m.
func (m *Molecule) Clone() *Molecule {
	out := &Molecule{
		Atoms: append([]Atom(nil), m.Atoms...),
		Bonds: append([]Bond(nil), m.Bonds...),
		adj:   make([][]int, len(m.adj)),
		order: make([][]int, len(m.order)),
	}
	for i := range m.adj {
		out.adj[i] = append([]int(nil), m.adj[i]...)
		out.order[i] = append([]int(nil), m.order[i]...)
	}
	return out
}
