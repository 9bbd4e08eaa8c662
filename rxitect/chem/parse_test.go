package chem

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name string
		test func(t *testing.T)
	}{
		{"OrganicSubset", testParseOrganicSubset},
		{"Aromatic", testParseAromatic},
		{"BracketAtoms", testParseBracketAtoms},
		{"RingClosures", testParseRingClosures},
		{"Components", testParseComponents},
		{"Invalid", testParseInvalid},
	}

	for _, tt := range tests {
		t.Run(tt.name, tt.test)
	}
}

func testParseOrganicSubset(t *testing.T) {
	m, err := Parse("CC(=O)OCl")
	require.NoError(t, err)

	assert.Equal(t, 5, m.NumAtoms())
	assert.Equal(t, 4, m.NumBonds())
	assert.Equal(t, "Cl", m.Atoms[4].Symbol)
	assert.Equal(t, BondDouble, m.Bonds[m.BondBetween(1, 2)].Order)
	assert.Equal(t, []int{0, 2, 3}, m.Neighbors(1))
	assert.Equal(t, 3, m.ImplicitHydrogens(0))
	assert.Equal(t, 0, m.ImplicitHydrogens(1))
	assert.Equal(t, 0, m.ImplicitHydrogens(2))
}

func testParseAromatic(t *testing.T) {
	m, err := Parse("c1ccccc1")
	require.NoError(t, err)

	assert.Equal(t, 6, m.NumAtoms())
	assert.Equal(t, 6, m.NumBonds())
	for i, a := range m.Atoms {
		assert.True(t, a.Aromatic)
		assert.Equal(t, "C", a.Symbol)
		assert.Equal(t, 1, m.ImplicitHydrogens(i), "atom %d", i)
	}
	for _, b := range m.Bonds {
		assert.Equal(t, BondAromatic, b.Order)
	}

	biphenyl, err := Parse("c1ccccc1c1ccccc1")
	require.NoError(t, err)
	assert.Equal(t, BondSingle, biphenyl.Bonds[biphenyl.BondBetween(5, 6)].Order)
}

func testParseBracketAtoms(t *testing.T) {
	m, err := Parse("[13CH3:7][C@@H](N)[O-].[NH4+]")
	require.NoError(t, err)

	iso := m.Atoms[0]
	assert.True(t, iso.Bracket)
	assert.Equal(t, 13, iso.Isotope)
	assert.Equal(t, 3, iso.HCount)
	assert.Equal(t, 7, iso.Class)

	chiral := m.Atoms[1]
	assert.Equal(t, ChiralCW, chiral.Chirality)
	assert.Equal(t, 1, chiral.HCount)

	assert.Equal(t, -1, m.Atoms[3].Charge)
	assert.Equal(t, 1, m.Atoms[4].Charge)
	assert.Equal(t, 4, m.Atoms[4].HCount)

	charged, err := Parse("[Fe++]")
	require.NoError(t, err)
	assert.Equal(t, 2, charged.Atoms[0].Charge)
}

func testParseRingClosures(t *testing.T) {
	m, err := Parse("C%10CCCCC%10")
	require.NoError(t, err)
	assert.Equal(t, 6, m.NumBonds())
	assert.GreaterOrEqual(t, m.BondBetween(0, 5), 0)

	m, err = Parse("C=1CCCCC1")
	require.NoError(t, err)
	assert.Equal(t, BondDouble, m.Bonds[m.BondBetween(0, 5)].Order)

	for _, inRing := range m.RingAtoms() {
		assert.True(t, inRing)
	}
}

func testParseComponents(t *testing.T) {
	m, err := Parse("CCO.[Na+].[Cl-]")
	require.NoError(t, err)
	assert.Equal(t, [][]int{{0, 1, 2}, {3}, {4}}, m.Components())
}

func testParseInvalid(t *testing.T) {
	inputs := []string{
		"",
		"C1CC",
		"C(C",
		"C)",
		"=C",
		"C==C",
		"C=",
		"[C",
		"C11",
		"c1cccc",
		"C(C)(C)(C)(C)C",
		"CCX",
		"C()C",
		"[C@TH1]",
		"[Xx]",
		"C.",
		"(C)",
		"c",
	}

	for _, in := range inputs {
		_, err := Parse(in)
		require.Error(t, err, "input %q should be rejected", in)
		assert.True(t, errors.Is(err, ErrUnparseable), "input %q: %v", in, err)

		var perr *ParseError
		require.True(t, errors.As(err, &perr))
		assert.Equal(t, in, perr.SMILES)
	}
}

func TestParseErrorPosition(t *testing.T) {
	_, err := Parse("C1CC")
	var perr *ParseError
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, 1, perr.Pos)
	assert.Contains(t, perr.Error(), "unclosed ring bond 1")
}
