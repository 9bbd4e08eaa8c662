package chem

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrTooManyRings is returned when more than 99 ring bonds are open at once.
var ErrTooManyRings = errors.New("more than 99 simultaneously open ring bonds")

// traversal decides the shape of the written string: which atom starts each
// component and in which order an atom's bonds are followed.
type traversal struct {
	// components reorders the molecule's components in place.
	components func(comps [][]int)
	// root picks the first atom of a component.
	root func(comp []int) int
	// arrange reorders the candidate bonds of atom in place.
	arrange func(atom int, bonds []int)
	// normalizeStereo rewrites bond direction markers so the first marker
	// written in every stereo system is '/'.
	normalizeStereo bool
}

// identityTraversal reproduces the parse order.
func identityTraversal() traversal {
	return traversal{
		components: func([][]int) {},
		root:       func(comp []int) int { return comp[0] },
		arrange:    func(int, []int) {},
	}
}

type writer struct {
	m *Molecule
	t traversal

	visited    []bool
	usedBond   []bool
	parentBond []int
	children   [][]int
	closings   [][]int
	openings   [][]int

	digits     map[int]int
	openDigits [100]bool

	stereoGroup []int
	groupFlip   map[int]bool

	sb strings.Builder
}

func newWriter(m *Molecule, t traversal) *writer {
	n := len(m.Atoms)
	w := &writer{
		m:          m,
		t:          t,
		visited:    make([]bool, n),
		usedBond:   make([]bool, len(m.Bonds)),
		parentBond: make([]int, n),
		children:   make([][]int, n),
		closings:   make([][]int, n),
		openings:   make([][]int, n),
		digits:     make(map[int]int),
		groupFlip:  make(map[int]bool),
	}
	for i := range w.parentBond {
		w.parentBond[i] = -1
	}
	if t.normalizeStereo {
		w.stereoGroup = stereoGroups(m)
	}
	return w
}

// write serializes m following t.
func write(m *Molecule, t traversal) (string, error) {
	w := newWriter(m, t)
	comps := m.Components()
	t.components(comps)
	for i, comp := range comps {
		root := t.root(comp)
		w.explore(root)
		if i > 0 {
			w.sb.WriteByte('.')
		}
		if err := w.emit(root); err != nil {
			return "", err
		}
	}
	return w.sb.String(), nil
}

// explore builds the spanning tree of a component and classifies the
// remaining bonds as ring closures.
func (w *writer) explore(u int) {
	w.visited[u] = true
	bonds := make([]int, 0, len(w.m.adj[u]))
	for _, b := range w.m.adj[u] {
		if b != w.parentBond[u] {
			bonds = append(bonds, b)
		}
	}
	w.t.arrange(u, bonds)
	for _, b := range bonds {
		if w.usedBond[b] {
			continue
		}
		w.usedBond[b] = true
		v := w.m.Bonds[b].Other(u)
		if w.visited[v] {
			w.closings[u] = append(w.closings[u], b)
			w.openings[v] = append(w.openings[v], b)
			continue
		}
		w.parentBond[v] = b
		w.children[u] = append(w.children[u], b)
		w.explore(v)
	}
}

// emitOrder is the neighbor order of u as it appears in the output.
func (w *writer) emitOrder(u int) []int {
	var out []int
	if pb := w.parentBond[u]; pb >= 0 {
		out = append(out, w.m.Bonds[pb].Other(u))
	}
	if a := w.m.Atoms[u]; a.Chirality != ChiralNone && a.HCount > 0 {
		out = append(out, implicitH)
	}
	for _, b := range w.closings[u] {
		out = append(out, w.m.Bonds[b].Other(u))
	}
	for _, b := range w.openings[u] {
		out = append(out, w.m.Bonds[b].Other(u))
	}
	for _, b := range w.children[u] {
		out = append(out, w.m.Bonds[b].Other(u))
	}
	return out
}

func (w *writer) emit(u int) error {
	atom := w.m.Atoms[u]
	if atom.Chirality != ChiralNone {
		if odd, ok := permutationParity(w.m.order[u], w.emitOrder(u)); ok && odd {
			atom.Chirality = atom.Chirality.flip()
		}
	}
	writeAtom(&w.sb, atom)

	for _, b := range w.closings[u] {
		writeRingDigit(&w.sb, w.digits[b])
	}
	for _, b := range w.openings[u] {
		d, err := w.allocDigit()
		if err != nil {
			return err
		}
		w.digits[b] = d
		w.sb.WriteString(w.bondSymbol(b, u))
		writeRingDigit(&w.sb, d)
	}
	for _, b := range w.closings[u] {
		w.openDigits[w.digits[b]] = false
	}

	for i, b := range w.children[u] {
		v := w.m.Bonds[b].Other(u)
		last := i == len(w.children[u])-1
		if !last {
			w.sb.WriteByte('(')
		}
		w.sb.WriteString(w.bondSymbol(b, u))
		if err := w.emit(v); err != nil {
			return err
		}
		if !last {
			w.sb.WriteByte(')')
		}
	}
	return nil
}

func (w *writer) allocDigit() (int, error) {
	for d := 1; d < len(w.openDigits); d++ {
		if !w.openDigits[d] {
			w.openDigits[d] = true
			return d, nil
		}
	}
	return 0, ErrTooManyRings
}

// bondSymbol renders bond b as written leaving atom from.
func (w *writer) bondSymbol(b, from int) string {
	bond := w.m.Bonds[b]
	begin, end := w.m.Atoms[bond.Begin], w.m.Atoms[bond.End]
	switch bond.Order {
	case BondDouble:
		return "="
	case BondTriple:
		return "#"
	case BondQuadruple:
		return "$"
	case BondAromatic:
		if begin.Aromatic && end.Aromatic {
			return ""
		}
		return ":"
	}
	if bond.Direction != DirNone {
		dir := bond.Direction
		if from != bond.Begin {
			dir = dir.flip()
		}
		if w.t.normalizeStereo {
			g := w.stereoGroup[b]
			flip, seen := w.groupFlip[g]
			if !seen {
				flip = dir == DirDown
				w.groupFlip[g] = flip
			}
			if flip {
				dir = dir.flip()
			}
		}
		if dir == DirUp {
			return "/"
		}
		return "\\"
	}
	if begin.Aromatic && end.Aromatic {
		return "-"
	}
	return ""
}

func writeRingDigit(sb *strings.Builder, d int) {
	if d < 10 {
		sb.WriteByte(byte('0' + d))
		return
	}
	sb.WriteByte('%')
	sb.WriteString(strconv.Itoa(d))
}

func writeAtom(sb *strings.Builder, a Atom) {
	symbol := a.Symbol
	if a.Aromatic {
		symbol = strings.ToLower(symbol)
	}
	if !a.Bracket {
		sb.WriteString(symbol)
		return
	}
	sb.WriteByte('[')
	if a.Isotope > 0 {
		sb.WriteString(strconv.Itoa(a.Isotope))
	}
	sb.WriteString(symbol)
	switch a.Chirality {
	case ChiralCCW:
		sb.WriteString("@")
	case ChiralCW:
		sb.WriteString("@@")
	}
	if a.HCount > 0 {
		sb.WriteByte('H')
		if a.HCount > 1 {
			sb.WriteString(strconv.Itoa(a.HCount))
		}
	}
	switch {
	case a.Charge == 1:
		sb.WriteByte('+')
	case a.Charge == -1:
		sb.WriteByte('-')
	case a.Charge > 1:
		fmt.Fprintf(sb, "+%d", a.Charge)
	case a.Charge < -1:
		fmt.Fprintf(sb, "-%d", -a.Charge)
	}
	if a.Class > 0 {
		fmt.Fprintf(sb, ":%d", a.Class)
	}
	sb.WriteByte(']')
}

// permutationParity reports whether to is an odd permutation of from. ok is
// false when the two lists do not hold the same elements.
func permutationParity(from, to []int) (odd bool, ok bool) {
	if len(from) != len(to) {
		return false, false
	}
	pos := make(map[int]int, len(from))
	for i, v := range from {
		pos[v] = i
	}
	perm := make([]int, len(to))
	for i, v := range to {
		j, found := pos[v]
		if !found {
			return false, false
		}
		perm[i] = j
	}
	seen := make([]bool, len(perm))
	cycles := 0
	for i := range perm {
		if seen[i] {
			continue
		}
		cycles++
		for j := i; !seen[j]; j = perm[j] {
			seen[j] = true
		}
	}
	return (len(perm)-cycles)%2 == 1, true
}

// stereoGroups assigns every directional bond to the connected system of
// directional bonds that share a double bond. Other bonds get -1.
func stereoGroups(m *Molecule) []int {
	parent := make([]int, len(m.Bonds))
	for i := range parent {
		parent[i] = i
	}
	var find func(int) int
	find = func(x int) int {
		for parent[x] != x {
			parent[x] = parent[parent[x]]
			x = parent[x]
		}
		return x
	}
	for _, d := range m.Bonds {
		if d.Order != BondDouble {
			continue
		}
		first := -1
		for _, end := range []int{d.Begin, d.End} {
			for _, bi := range m.adj[end] {
				if m.Bonds[bi].Direction == DirNone {
					continue
				}
				if first < 0 {
					first = bi
					continue
				}
				parent[find(bi)] = find(first)
			}
		}
	}
	groups := make([]int, len(m.Bonds))
	for i, b := range m.Bonds {
		if b.Direction == DirNone {
			groups[i] = -1
			continue
		}
		groups[i] = find(i)
	}
	return groups
}

// SMILES writes m in its parse order.
func (m *Molecule) SMILES() (string, error) {
	return write(m, identityTraversal())
}
