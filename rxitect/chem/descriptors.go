package chem

// DescriptorNames labels the values returned by Descriptors, in order.
var DescriptorNames = []string{
	"mol_weight",
	"heavy_atoms",
	"carbon",
	"nitrogen",
	"oxygen",
	"sulfur",
	"phosphorus",
	"halogens",
	"aromatic_atoms",
	"ring_count",
	"rotatable_bonds",
	"hbond_donors",
	"hbond_acceptors",
	"formal_charge",
	"stereocentres",
	"double_bonds",
	"triple_bonds",
	"aromatic_bonds",
	"fraction_csp3",
}

// NumDescriptors is len(DescriptorNames).
const NumDescriptors = 19

// Descriptors computes a fixed vector of simple physico-chemical properties.
// Donor and acceptor counts are N/O heuristics.
func Descriptors(m *Molecule) []float32 {
	out := make([]float32, NumDescriptors)
	var (
		weight   float64
		carbons  int
		sp3      int
		elements = make(map[string]int)
	)
	for i, a := range m.Atoms {
		h := m.ImplicitHydrogens(i)
		weight += atomicMass(a.Symbol) + float64(h)*atomicMasses["H"]
		elements[a.Symbol]++
		if a.Symbol != "H" && a.Symbol != "*" {
			out[1]++
		}
		if a.Aromatic {
			out[8]++
		}
		if (a.Symbol == "N" || a.Symbol == "O") && h > 0 {
			out[11]++
		}
		if (a.Symbol == "N" || a.Symbol == "O") && a.Charge <= 0 {
			out[12]++
		}
		out[13] += float32(a.Charge)
		if a.Chirality != ChiralNone {
			out[14]++
		}
		if a.Symbol == "C" {
			carbons++
			if !a.Aromatic && m.saturated(i) {
				sp3++
			}
		}
	}
	out[0] = float32(weight)
	out[2] = float32(elements["C"])
	out[3] = float32(elements["N"])
	out[4] = float32(elements["O"])
	out[5] = float32(elements["S"])
	out[6] = float32(elements["P"])
	out[7] = float32(elements["F"] + elements["Cl"] + elements["Br"] + elements["I"])
	out[9] = float32(len(m.Bonds) - len(m.Atoms) + len(m.Components()))

	ring := m.RingBonds()
	for bi, b := range m.Bonds {
		switch b.Order {
		case BondDouble:
			out[15]++
		case BondTriple:
			out[16]++
		case BondAromatic:
			out[17]++
		case BondSingle:
			if !ring[bi] && m.Degree(b.Begin) > 1 && m.Degree(b.End) > 1 {
				out[10]++
			}
		}
	}
	if carbons > 0 {
		out[18] = float32(sp3) / float32(carbons)
	}
	return out
}

// saturated reports whether every bond of atom is single.
func (m *Molecule) saturated(atom int) bool {
	for _, bi := range m.adj[atom] {
		if m.Bonds[bi].Order != BondSingle {
			return false
		}
	}
	return true
}

// atomicMass falls back to twice the atomic number for elements without a
// tabulated mass.
func atomicMass(symbol string) float64 {
	if w, ok := atomicMasses[symbol]; ok {
		return w
	}
	return float64(2 * AtomicNumber(symbol))
}
