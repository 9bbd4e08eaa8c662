package chem

import (
	"maps"
	"slices"
	"strings"
)

// Parser turns SMILES into molecular graphs.
type Parser interface {
	Parse(smiles string) (*Molecule, error)
}

// SmilesParser is the in-module Parser.
type SmilesParser struct{}

// Parse implements Parser.
func (SmilesParser) Parse(smiles string) (*Molecule, error) {
	return Parse(smiles)
}

type pendingBond struct {
	order    BondOrder
	dir      Direction
	explicit bool
	pos      int
}

type ringOpening struct {
	atom int
	bond pendingBond
	slot int // index of the placeholder in order[atom]
	pos  int
}

type parser struct {
	src  string
	pos  int
	mol  *Molecule
	prev int

	branches    []int
	branchAtoms []int // atom count when each branch opened
	bond        *pendingBond
	rings       map[int]*ringOpening
}

// ringPlaceholder fills order slots of ring openings until they close.
const ringPlaceholder = -2

// Parse reads a SMILES string into a Molecule. Any failure is a *ParseError.
func Parse(smiles string) (*Molecule, error) {
	p := &parser{
		src:   smiles,
		mol:   &Molecule{},
		prev:  -1,
		rings: make(map[int]*ringOpening),
	}
	if err := p.run(); err != nil {
		return nil, err
	}
	if err := sanitize(p.mol, smiles); err != nil {
		return nil, err
	}
	return p.mol, nil
}

func (p *parser) fail(format string, args ...any) error {
	return newParseError(p.src, p.pos, format, args...)
}

func (p *parser) run() error {
	if strings.TrimSpace(p.src) == "" {
		return p.fail("empty input")
	}
	for p.pos < len(p.src) {
		c := p.src[p.pos]
		switch {
		case c == '(':
			if p.prev < 0 {
				return p.fail("branch without preceding atom")
			}
			if p.bond != nil {
				return p.fail("bond symbol before branch")
			}
			p.branches = append(p.branches, p.prev)
			p.branchAtoms = append(p.branchAtoms, len(p.mol.Atoms))
			p.pos++
		case c == ')':
			if len(p.branches) == 0 {
				return p.fail("unmatched ')'")
			}
			if p.bond != nil {
				return p.fail("dangling bond at end of branch")
			}
			last := len(p.branches) - 1
			if p.branchAtoms[last] == len(p.mol.Atoms) {
				return p.fail("empty branch")
			}
			p.prev = p.branches[last]
			p.branches = p.branches[:last]
			p.branchAtoms = p.branchAtoms[:last]
			p.pos++
		case c == '.':
			if p.prev < 0 {
				return p.fail("component separator without preceding atom")
			}
			if p.bond != nil {
				return p.fail("bond symbol before '.'")
			}
			if len(p.branches) > 0 {
				return p.fail("'.' inside branch")
			}
			p.prev = -1
			p.pos++
		case isBondSymbol(c):
			if p.prev < 0 {
				return p.fail("bond symbol without preceding atom")
			}
			if p.bond != nil {
				return p.fail("consecutive bond symbols")
			}
			p.bond = bondFromSymbol(c, p.pos)
			p.pos++
		case c >= '0' && c <= '9' || c == '%':
			if err := p.ringClosure(); err != nil {
				return err
			}
		case c == '[':
			atom, err := p.bracketAtom()
			if err != nil {
				return err
			}
			p.attach(atom)
		default:
			atom, err := p.organicAtom()
			if err != nil {
				return err
			}
			p.attach(atom)
		}
	}
	if p.bond != nil {
		p.pos = p.bond.pos
		return p.fail("dangling bond")
	}
	if len(p.branches) > 0 {
		return p.fail("unclosed branch")
	}
	if p.prev < 0 {
		return p.fail("dangling component separator")
	}
	if len(p.rings) > 0 {
		num := slices.Min(slices.Collect(maps.Keys(p.rings)))
		p.pos = p.rings[num].pos
		return p.fail("unclosed ring bond %d", num)
	}
	return nil
}

func isBondSymbol(c byte) bool {
	switch c {
	case '-', '=', '#', '$', ':', '/', '\\':
		return true
	}
	return false
}

func bondFromSymbol(c byte, pos int) *pendingBond {
	b := &pendingBond{order: BondSingle, explicit: true, pos: pos}
	switch c {
	case '=':
		b.order = BondDouble
	case '#':
		b.order = BondTriple
	case '$':
		b.order = BondQuadruple
	case ':':
		b.order = BondAromatic
	case '/':
		b.dir = DirUp
	case '\\':
		b.dir = DirDown
	}
	return b
}

// implicitOrder resolves a bond written without a symbol.
func implicitOrder(a, b Atom) BondOrder {
	if a.Aromatic && b.Aromatic {
		return BondAromatic
	}
	return BondSingle
}

func (p *parser) attach(atom Atom) {
	idx := p.mol.addAtom(atom)
	if p.prev >= 0 {
		b := Bond{Begin: p.prev, End: idx}
		if p.bond != nil {
			b.Order = p.bond.order
			b.Direction = p.bond.dir
		} else {
			b.Order = implicitOrder(p.mol.Atoms[p.prev], atom)
		}
		p.mol.addBond(b)
		p.mol.order[p.prev] = append(p.mol.order[p.prev], idx)
		p.mol.order[idx] = append(p.mol.order[idx], p.prev)
	}
	if atom.Chirality != ChiralNone && atom.HCount > 0 {
		p.mol.order[idx] = append(p.mol.order[idx], implicitH)
	}
	p.bond = nil
	p.prev = idx
}

func (p *parser) ringClosure() error {
	start := p.pos
	if p.prev < 0 {
		return p.fail("ring bond without preceding atom")
	}
	var num int
	if p.src[p.pos] == '%' {
		if p.pos+2 >= len(p.src) || !isDigit(p.src[p.pos+1]) || !isDigit(p.src[p.pos+2]) {
			return p.fail("'%%' must be followed by two digits")
		}
		num = int(p.src[p.pos+1]-'0')*10 + int(p.src[p.pos+2]-'0')
		p.pos += 3
	} else {
		num = int(p.src[p.pos] - '0')
		p.pos++
	}

	open, ok := p.rings[num]
	if !ok {
		r := &ringOpening{atom: p.prev, slot: len(p.mol.order[p.prev]), pos: start}
		if p.bond != nil {
			r.bond = *p.bond
		}
		p.rings[num] = r
		p.mol.order[p.prev] = append(p.mol.order[p.prev], ringPlaceholder)
		p.bond = nil
		return nil
	}

	delete(p.rings, num)
	if open.atom == p.prev {
		return newParseError(p.src, start, "ring bond %d closes on its own atom", num)
	}
	if p.mol.BondBetween(open.atom, p.prev) >= 0 {
		return newParseError(p.src, start, "ring bond %d duplicates an existing bond", num)
	}

	b := Bond{Begin: open.atom, End: p.prev}
	switch {
	case open.bond.explicit && p.bond != nil:
		closeDir := p.bond.dir.flip()
		if open.bond.order != p.bond.order || (open.bond.dir != DirNone && closeDir != DirNone && open.bond.dir != closeDir) {
			return newParseError(p.src, start, "conflicting bond symbols on ring bond %d", num)
		}
		b.Order = open.bond.order
		b.Direction = open.bond.dir
		if b.Direction == DirNone {
			b.Direction = closeDir
		}
	case open.bond.explicit:
		b.Order = open.bond.order
		b.Direction = open.bond.dir
	case p.bond != nil:
		// the closing symbol reads from the closing atom towards the opening one
		b.Order = p.bond.order
		b.Direction = p.bond.dir.flip()
	default:
		b.Order = implicitOrder(p.mol.Atoms[open.atom], p.mol.Atoms[p.prev])
	}
	p.mol.addBond(b)
	p.mol.order[open.atom][open.slot] = p.prev
	p.mol.order[p.prev] = append(p.mol.order[p.prev], open.atom)
	p.bond = nil
	return nil
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

func isLower(c byte) bool { return c >= 'a' && c <= 'z' }

func (p *parser) organicAtom() (Atom, error) {
	rest := p.src[p.pos:]
	switch {
	case strings.HasPrefix(rest, "Cl"), strings.HasPrefix(rest, "Br"):
		p.pos += 2
		return Atom{Symbol: rest[:2]}, nil
	}
	c := rest[0]
	switch c {
	case 'B', 'C', 'N', 'O', 'P', 'S', 'F', 'I':
		p.pos++
		return Atom{Symbol: string(c)}, nil
	case 'b', 'c', 'n', 'o', 'p', 's':
		p.pos++
		return Atom{Symbol: strings.ToUpper(string(c)), Aromatic: true}, nil
	case '*':
		p.pos++
		return Atom{Symbol: "*"}, nil
	}
	return Atom{}, p.fail("unexpected character %q", c)
}

func (p *parser) bracketAtom() (Atom, error) {
	open := p.pos
	end := strings.IndexByte(p.src[p.pos:], ']')
	if end < 0 {
		return Atom{}, p.fail("unclosed bracket atom")
	}
	body := p.src[p.pos+1 : p.pos+end]
	p.pos++ // past '['
	atom := Atom{Bracket: true}
	i := 0

	for i < len(body) && isDigit(body[i]) {
		atom.Isotope = atom.Isotope*10 + int(body[i]-'0')
		i++
	}

	if i >= len(body) {
		return Atom{}, newParseError(p.src, open, "bracket atom without element")
	}
	switch c := body[i]; {
	case c == '*':
		atom.Symbol = "*"
		i++
	case c >= 'A' && c <= 'Z':
		sym := string(c)
		if i+1 < len(body) && isLower(body[i+1]) && isElement(sym+string(body[i+1])) {
			sym += string(body[i+1])
		}
		if !isElement(sym) {
			return Atom{}, newParseError(p.src, open+1+i, "unknown element %q", sym)
		}
		atom.Symbol = sym
		i += len(sym)
	case isLower(c):
		sym := strings.ToUpper(string(c))
		if i+1 < len(body) && isLower(body[i+1]) && aromaticSymbols[sym+string(body[i+1])] {
			sym += string(body[i+1])
		}
		if !aromaticSymbols[sym] {
			return Atom{}, newParseError(p.src, open+1+i, "element %q cannot be aromatic", sym)
		}
		atom.Symbol = sym
		atom.Aromatic = true
		i += len(sym)
	default:
		return Atom{}, newParseError(p.src, open+1+i, "bracket atom without element")
	}

	if i < len(body) && body[i] == '@' {
		atom.Chirality = ChiralCCW
		i++
		if i < len(body) && body[i] == '@' {
			atom.Chirality = ChiralCW
			i++
		}
		if i < len(body) && body[i] >= 'A' && body[i] <= 'Z' && body[i] != 'H' {
			return Atom{}, newParseError(p.src, open+1+i, "unsupported chirality class")
		}
	}

	if i < len(body) && body[i] == 'H' {
		i++
		atom.HCount = 1
		if i < len(body) && isDigit(body[i]) {
			atom.HCount = int(body[i] - '0')
			i++
		}
	}

	if i < len(body) && (body[i] == '+' || body[i] == '-') {
		sign := 1
		if body[i] == '-' {
			sign = -1
		}
		sym := body[i]
		i++
		switch {
		case i < len(body) && isDigit(body[i]):
			n := 0
			for i < len(body) && isDigit(body[i]) {
				n = n*10 + int(body[i]-'0')
				i++
			}
			atom.Charge = sign * n
		default:
			n := 1
			for i < len(body) && body[i] == sym {
				n++
				i++
			}
			atom.Charge = sign * n
		}
	}

	if i < len(body) && body[i] == ':' {
		i++
		if i >= len(body) || !isDigit(body[i]) {
			return Atom{}, newParseError(p.src, open+1+i, "atom class must be a number")
		}
		for i < len(body) && isDigit(body[i]) {
			atom.Class = atom.Class*10 + int(body[i]-'0')
			i++
		}
	}

	if i != len(body) {
		return Atom{}, newParseError(p.src, open+1+i, "unexpected %q in bracket atom", body[i])
	}
	p.pos = open + end + 1
	return atom, nil
}

// sanitize applies the valence and aromaticity checks a chemistry toolkit
// performs before accepting a molecule.
func sanitize(m *Molecule, smiles string) error {
	ringBonds := m.RingBonds()
	for bi, b := range m.Bonds {
		// aromatic atoms joined outside a ring, as in biphenyl
		if b.Order == BondAromatic && !ringBonds[bi] {
			m.Bonds[bi].Order = BondSingle
		}
	}
	ringAtoms := m.RingAtoms()
	for i, a := range m.Atoms {
		if a.Aromatic && !ringAtoms[i] {
			return newParseError(smiles, len(smiles), "non-ring atom %d marked aromatic", i)
		}
		if a.Bracket || a.Aromatic {
			continue
		}
		valences, ok := organicValences[a.Symbol]
		if !ok {
			continue
		}
		used := 0
		for _, bi := range m.adj[i] {
			used += m.Bonds[bi].Order.valence()
		}
		if used > valences[len(valences)-1] {
			return newParseError(smiles, len(smiles), "explicit valence %d for atom %d (%s) exceeds %d", used, i, a.Symbol, valences[len(valences)-1])
		}
	}
	for bi, b := range m.Bonds {
		if b.Order == BondAromatic && !(m.Atoms[b.Begin].Aromatic && m.Atoms[b.End].Aromatic) {
			return newParseError(smiles, len(smiles), "aromatic bond %d between non-aromatic atoms", bi)
		}
	}
	return nil
}
