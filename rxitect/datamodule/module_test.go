package datamodule

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ZanzyTHEbar/rxitect/rxitect/chem"
	"github.com/ZanzyTHEbar/rxitect/rxitect/config"
	"github.com/ZanzyTHEbar/rxitect/rxitect/dataset"
	"github.com/ZanzyTHEbar/rxitect/rxitect/tokenizer"
)

// moleculeSMILES returns the i-th of a family of distinct ethers, every
// other one chlorinated.
func moleculeSMILES(i int) string {
	s := strings.Repeat("C", i%10+1) + "O" + strings.Repeat("C", i/10+1)
	if i%2 == 0 {
		s = "Cl" + s
	}
	return s
}

func writeTable(t *testing.T, smiles []string) string {
	t.Helper()
	var sb strings.Builder
	sb.WriteString("chembl_id\tsmiles\n")
	for i, s := range smiles {
		fmt.Fprintf(&sb, "CHEMBL%d\t%s\n", i, s)
	}
	path := filepath.Join(t.TempDir(), "chembl.txt")
	require.NoError(t, os.WriteFile(path, []byte(sb.String()), 0o644))
	return path
}

func fixturePath(t *testing.T, n int) string {
	t.Helper()
	smiles := make([]string, n)
	for i := range smiles {
		smiles[i] = moleculeSMILES(i)
	}
	return writeTable(t, smiles)
}

func testConfig(path string) Config {
	return Config{
		DataFilepath:      path,
		SmilesColumn:      "smiles",
		TrainValTestSplit: [3]int{60, 20, 20},
		BatchSize:         8,
		RandomState:       42,
		BoundaryTokens:    true,
	}
}

func newReady(t *testing.T, cfg Config) *Module {
	t.Helper()
	m, err := New(cfg, WithLogger(zerolog.Nop()))
	require.NoError(t, err)
	ctx := context.Background()
	require.NoError(t, m.Prepare(ctx))
	require.NoError(t, m.Setup(ctx))
	require.Equal(t, PhaseReady, m.Phase())
	return m
}

func datasetSMILES(t *testing.T, m *Module) []string {
	t.Helper()
	ds, err := m.Dataset()
	require.NoError(t, err)
	return ds.Table().SMILES()
}

func TestSetup(t *testing.T) {
	path := fixturePath(t, 100)
	m := newReady(t, testConfig(path))

	splits, err := m.Splits()
	require.NoError(t, err)
	require.Len(t, splits, 3)
	assert.Equal(t, []string{"train", "val", "test"}, []string{splits[0].Name, splits[1].Name, splits[2].Name})
	assert.Equal(t, []int{60, 20, 20}, []int{splits[0].Len(), splits[1].Len(), splits[2].Len()})
	assert.NoError(t, dataset.ValidatePartition(splits, 100))

	tok, err := m.Tokenizer()
	require.NoError(t, err)
	assert.True(t, tok.Fitted())
	assert.Contains(t, tok.Tokens(), "Cl")
	assert.NotContains(t, tok.Tokens(), "l")

	ds, err := m.Dataset()
	require.NoError(t, err)
	ex, err := ds.Get(0)
	require.NoError(t, err)
	assert.Equal(t, tok.StartIndex(), ex.Input[0])
	assert.Equal(t, tok.EndIndex(), ex.Input[len(ex.Input)-1])

	again := newReady(t, testConfig(path))
	againSplits, err := again.Splits()
	require.NoError(t, err)
	assert.Equal(t, splits, againSplits)
	assert.Equal(t, datasetSMILES(t, m), datasetSMILES(t, again))

	other := testConfig(path)
	other.RandomState = 7
	reseeded := newReady(t, other)
	otherSplits, err := reseeded.Splits()
	require.NoError(t, err)
	assert.NotEqual(t, splits[0].Indices, otherSplits[0].Indices)
}

func TestSetupSamplesSubset(t *testing.T) {
	cfg := testConfig(fixturePath(t, 100))
	cfg.TrainValTestSplit = [3]int{6, 2, 2}
	m := newReady(t, cfg)

	got := datasetSMILES(t, m)
	require.Len(t, got, 10)
	all := make(map[string]bool)
	for i := 0; i < 100; i++ {
		all[moleculeSMILES(i)] = true
	}
	for _, s := range got {
		assert.True(t, all[s], "%q not in table", s)
	}
}

func TestPhases(t *testing.T) {
	ctx := context.Background()
	m, err := New(testConfig(fixturePath(t, 100)), WithLogger(zerolog.Nop()))
	require.NoError(t, err)
	assert.Equal(t, PhaseUninitialized, m.Phase())

	assert.ErrorIs(t, m.Setup(ctx), ErrPhase)
	_, err = m.TrainLoader()
	assert.ErrorIs(t, err, ErrPhase)
	_, err = m.Tokenizer()
	assert.ErrorIs(t, err, ErrPhase)

	require.NoError(t, m.Prepare(ctx))
	assert.Equal(t, PhasePrepared, m.Phase())
	assert.ErrorIs(t, m.Prepare(ctx), ErrPhase)
	_, err = m.Splits()
	assert.ErrorIs(t, err, ErrPhase)

	require.NoError(t, m.Setup(ctx))
	assert.ErrorIs(t, m.Setup(ctx), ErrPhase)
	assert.ErrorIs(t, m.Prepare(ctx), ErrPhase)

	for _, get := range []func() (*Loader, error){m.TrainLoader, m.ValLoader, m.TestLoader} {
		l, err := get()
		require.NoError(t, err)
		assert.NotNil(t, l)
	}
	assert.Equal(t, "ready", m.Phase().String())
}

func TestSetupFailures(t *testing.T) {
	withBadRow := writeTable(t, []string{"CCO", "CCN", "C1CC", "c1ccccc1", "CC(=O)O"})

	tests := []struct {
		name   string
		mutate func(*Config)
		want   []error
	}{
		{
			name:   "UnparseableSequential",
			mutate: func(c *Config) { c.DataFilepath = withBadRow; c.TrainValTestSplit = [3]int{3, 1, 1}; c.Augment = true },
			want:   []error{ErrSetupFailed, chem.ErrUnparseable},
		},
		{
			name: "UnparseablePartitioned",
			mutate: func(c *Config) {
				c.DataFilepath = withBadRow
				c.TrainValTestSplit = [3]int{3, 1, 1}
				c.Augment = true
				c.NPartitions = 2
			},
			want: []error{ErrSetupFailed, chem.ErrUnparseable},
		},
		{
			name:   "SampleTooLarge",
			mutate: func(c *Config) { c.TrainValTestSplit = [3]int{80, 20, 20} },
			want:   []error{ErrSetupFailed, dataset.ErrSampleTooLarge},
		},
		{
			name:   "MissingColumn",
			mutate: func(c *Config) { c.SmilesColumn = "canonical_smiles" },
			want:   []error{ErrSetupFailed, dataset.ErrMissingColumn},
		},
		{
			name:   "SequenceTooLong",
			mutate: func(c *Config) { c.MaxSeqLen = 4 },
			want:   []error{ErrSetupFailed, config.ErrInvalid},
		},
		{
			name:   "MissingFile",
			mutate: func(c *Config) { c.DataFilepath = filepath.Join(t.TempDir(), "absent.txt") },
			want:   []error{ErrSetupFailed, os.ErrNotExist},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig(fixturePath(t, 100))
			tt.mutate(&cfg)
			m, err := New(cfg, WithLogger(zerolog.Nop()))
			require.NoError(t, err)
			ctx := context.Background()
			require.NoError(t, m.Prepare(ctx))

			err = m.Setup(ctx)
			for _, want := range tt.want {
				assert.ErrorIs(t, err, want)
			}
			assert.Equal(t, PhaseFailed, m.Phase())
			assert.Error(t, m.Err())
			assert.ErrorIs(t, m.Setup(ctx), ErrPhase)
			_, err = m.ValLoader()
			assert.ErrorIs(t, err, ErrPhase)
		})
	}
}

func TestSetupCancelled(t *testing.T) {
	cfg := testConfig(fixturePath(t, 100))
	cfg.Augment = true
	cfg.NPartitions = 4
	m, err := New(cfg, WithLogger(zerolog.Nop()))
	require.NoError(t, err)
	require.NoError(t, m.Prepare(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err = m.Setup(ctx)
	assert.ErrorIs(t, err, ErrSetupFailed)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestAugment(t *testing.T) {
	path := fixturePath(t, 100)
	table, err := dataset.ReadTable(path, dataset.TableSpec{})
	require.NoError(t, err)
	sampled, err := table.Sample(100, 42)
	require.NoError(t, err)
	originals := sampled.SMILES()

	for _, partitions := range []int{0, 1, 3, 7} {
		t.Run(fmt.Sprintf("Partitions%d", partitions), func(t *testing.T) {
			cfg := testConfig(path)
			cfg.Augment = true
			cfg.NPartitions = partitions

			got := datasetSMILES(t, newReady(t, cfg))
			require.Len(t, got, len(originals))
			changed := 0
			for i, s := range got {
				want, err := chem.Canonical(originals[i])
				require.NoError(t, err)
				have, err := chem.Canonical(s)
				require.NoError(t, err)
				assert.Equal(t, want, have, "row %d: %q is not %q", i, s, originals[i])
				if s != originals[i] {
					changed++
				}
			}
			assert.Positive(t, changed)

			assert.Equal(t, got, datasetSMILES(t, newReady(t, cfg)))
		})
	}
}

func TestGroupAugmentedPairs(t *testing.T) {
	cfg := testConfig(fixturePath(t, 100))
	cfg.Augment = true
	cfg.NPartitions = 2
	cfg.GroupAugmentedPairs = true
	m := newReady(t, cfg)

	rows := datasetSMILES(t, m)
	require.Len(t, rows, 200)
	for i := 0; i < len(rows); i += 2 {
		a, err := chem.Canonical(rows[i])
		require.NoError(t, err)
		b, err := chem.Canonical(rows[i+1])
		require.NoError(t, err)
		assert.Equal(t, a, b, "pair %d", i/2)
	}

	splits, err := m.Splits()
	require.NoError(t, err)
	assert.Equal(t, []int{120, 40, 40}, []int{splits[0].Len(), splits[1].Len(), splits[2].Len()})
	require.NoError(t, dataset.ValidatePartition(splits, 200))
	for _, s := range splits {
		members := s.Bitmap()
		for _, idx := range s.Indices {
			assert.True(t, members.Contains(uint32(idx^1)), "%s holds row %d without its pair", s.Name, idx)
		}
	}
}

func TestWithFittedTokenizer(t *testing.T) {
	tok := tokenizer.New()
	require.NoError(t, tok.Fit([]string{"CCO"}))

	cfg := testConfig(fixturePath(t, 100))
	cfg.BoundaryTokens = false
	m, err := New(cfg, WithLogger(zerolog.Nop()), WithTokenizer(tok))
	require.NoError(t, err)
	ctx := context.Background()
	require.NoError(t, m.Prepare(ctx))
	require.NoError(t, m.Setup(ctx))

	got, err := m.Tokenizer()
	require.NoError(t, err)
	assert.Same(t, tok, got)
	assert.Equal(t, []string{tokenizer.PadToken, tokenizer.StartToken, tokenizer.EndToken, tokenizer.UnknownToken, "C", "O"}, got.Tokens())

	ds, err := m.Dataset()
	require.NoError(t, err)
	for i := 0; i < ds.Len(); i++ {
		ex, err := ds.Get(i)
		require.NoError(t, err)
		if strings.HasPrefix(ex.SMILES, "Cl") {
			assert.Equal(t, tok.UnknownIndex(), ex.Input[0])
		}
	}
}

func TestConfigCopied(t *testing.T) {
	cfg := testConfig(fixturePath(t, 100))
	cfg.MultiCharTokens = []string{"Cl", "Br"}
	m, err := New(cfg, WithLogger(zerolog.Nop()))
	require.NoError(t, err)

	cfg.MultiCharTokens[0] = "Xx"
	got := m.Config()
	assert.Equal(t, []string{"Cl", "Br"}, got.MultiCharTokens)

	got.MultiCharTokens[1] = "Yy"
	assert.Equal(t, []string{"Cl", "Br"}, m.Config().MultiCharTokens)
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"EmptyPath", func(c *Config) { c.DataFilepath = "" }},
		{"ZeroSplit", func(c *Config) { c.TrainValTestSplit = [3]int{60, 0, 20} }},
		{"NegativeSplit", func(c *Config) { c.TrainValTestSplit = [3]int{60, 20, -1} }},
		{"ZeroBatch", func(c *Config) { c.BatchSize = 0 }},
		{"NegativeWorkers", func(c *Config) { c.NumWorkers = -1 }},
		{"NegativePartitions", func(c *Config) { c.NPartitions = -2 }},
		{"NegativeMaxSeqLen", func(c *Config) { c.MaxSeqLen = -1 }},
		{"PairsWithoutAugment", func(c *Config) { c.GroupAugmentedPairs = true }},
	}

	assert.NoError(t, testConfig("chembl.txt").Validate())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig("chembl.txt")
			tt.mutate(&cfg)
			assert.ErrorIs(t, cfg.Validate(), config.ErrInvalid)
			_, err := New(cfg)
			assert.ErrorIs(t, err, config.ErrInvalid)
		})
	}
}

func TestFromConfig(t *testing.T) {
	c := &config.Config{
		Data: config.DataConfig{
			Filepath:          "chembl.txt",
			SmilesColumn:      "smiles",
			TrainValTestSplit: []int{60, 20, 20},
			Augment:           true,
			NPartitions:       4,
			RandomState:       42,
		},
		Loader:    config.LoaderConfig{BatchSize: 16, NumWorkers: 2, PinMemory: true, BoundaryTokens: true},
		Tokenizer: config.TokenizerConfig{MultiCharTokens: []string{"Cl", "Br"}, MaxSeqLen: 100},
	}
	cfg, err := FromConfig(c)
	require.NoError(t, err)
	assert.Equal(t, Config{
		DataFilepath:      "chembl.txt",
		SmilesColumn:      "smiles",
		TrainValTestSplit: [3]int{60, 20, 20},
		Augment:           true,
		NPartitions:       4,
		BatchSize:         16,
		NumWorkers:        2,
		PinMemory:         true,
		RandomState:       42,
		BoundaryTokens:    true,
		MaxSeqLen:         100,
		MultiCharTokens:   []string{"Cl", "Br"},
	}, cfg)
	assert.Equal(t, 100, cfg.Total())

	c.Data.TrainValTestSplit = []int{80, 20}
	_, err = FromConfig(c)
	assert.ErrorIs(t, err, config.ErrInvalid)
}
