package datamodule

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	internal "github.com/ZanzyTHEbar/rxitect/rxitect"
	"github.com/ZanzyTHEbar/rxitect/rxitect/chem"
	"github.com/ZanzyTHEbar/rxitect/rxitect/config"
	"github.com/ZanzyTHEbar/rxitect/rxitect/dataset"
	"github.com/ZanzyTHEbar/rxitect/rxitect/tokenizer"

	"github.com/rs/zerolog"
	"github.com/samber/lo"
	"github.com/sourcegraph/conc/pool"
)

var (
	// ErrPhase is returned when a lifecycle step is called out of order.
	ErrPhase = errors.New("data module is not in the required phase")
	// ErrSetupFailed wraps the cause of a failed setup. The module cannot
	// be used afterwards.
	ErrSetupFailed = errors.New("data module setup failed")
)

// Phase is a lifecycle state of a Module. Phases only move forward.
type Phase int

const (
	PhaseUninitialized Phase = iota
	PhasePrepared
	PhaseSetUp
	PhaseReady
	PhaseFailed
)

func (p Phase) String() string {
	switch p {
	case PhaseUninitialized:
		return "uninitialized"
	case PhasePrepared:
		return "prepared"
	case PhaseSetUp:
		return "setting up"
	case PhaseReady:
		return "ready"
	case PhaseFailed:
		return "failed"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}

// Module turns a table of SMILES strings into tokenized train, validation
// and test loaders.
type Module struct {
	cfg    Config
	logger zerolog.Logger

	mu     sync.Mutex
	phase  Phase
	err    error
	tok    *tokenizer.SmilesTokenizer
	data   *dataset.Dataset[[]int]
	splits []dataset.Split

	train, val, test *Loader
}

// Option configures a Module.
type Option func(*Module)

// WithLogger sets the logger used for setup progress.
func WithLogger(logger zerolog.Logger) Option {
	return func(m *Module) {
		m.logger = logger
	}
}

// WithTokenizer supplies the tokenizer. A fitted tokenizer keeps its
// vocabulary and setup skips fitting; tokens it has never seen encode as
// the unknown index.
func WithTokenizer(tok *tokenizer.SmilesTokenizer) Option {
	return func(m *Module) {
		m.tok = tok
	}
}

// New validates cfg and returns an uninitialized module.
func New(cfg Config, opts ...Option) (*Module, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg.MultiCharTokens = slices.Clone(cfg.MultiCharTokens)
	m := &Module{
		cfg:    cfg,
		logger: internal.GetLogger().Level(zerolog.InfoLevel),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = m.logger.With().Str("component", "datamodule").Logger()
	return m, nil
}

// Config returns a copy of the module settings.
func (m *Module) Config() Config {
	cfg := m.cfg
	cfg.MultiCharTokens = slices.Clone(cfg.MultiCharTokens)
	return cfg
}

// Phase returns the current lifecycle phase.
func (m *Module) Phase() Phase {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.phase
}

// Err returns the cause of a failed setup, or nil.
func (m *Module) Err() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.err
}

// Prepare moves an uninitialized module to the prepared phase. Nothing is
// downloaded or cached; the data file is read by Setup.
func (m *Module) Prepare(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.phase != PhaseUninitialized {
		return fmt.Errorf("%w: prepare called in phase %s", ErrPhase, m.phase)
	}
	m.phase = PhasePrepared
	return nil
}

// Setup loads and samples the table, optionally augments it, fits the
// tokenizer and splits the rows. On success the module becomes ready.
func (m *Module) Setup(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.phase != PhasePrepared {
		return fmt.Errorf("%w: setup called in phase %s", ErrPhase, m.phase)
	}
	m.phase = PhaseSetUp

	if err := m.setup(ctx); err != nil {
		m.phase = PhaseFailed
		m.err = err
		m.tok, m.data, m.splits = nil, nil, nil
		m.logger.Error().Err(err).Str("file", m.cfg.DataFilepath).Msg("setup failed")
		return fmt.Errorf("%w: %w", ErrSetupFailed, err)
	}
	m.phase = PhaseReady
	return nil
}

func (m *Module) setup(ctx context.Context) error {
	table, err := dataset.ReadTable(m.cfg.DataFilepath, dataset.TableSpec{SmilesColumn: m.cfg.SmilesColumn})
	if err != nil {
		return err
	}
	sampled, err := table.Sample(m.cfg.Total(), m.cfg.RandomState)
	if err != nil {
		return err
	}
	m.logger.Info().
		Int("rows", table.Len()).
		Int("dropped", table.Dropped).
		Int("sampled", sampled.Len()).
		Msg("table loaded")

	smiles := sampled.SMILES()
	var groups [][]int
	if m.cfg.Augment {
		variants, err := m.augment(ctx, smiles)
		if err != nil {
			return err
		}
		if m.cfg.GroupAugmentedPairs {
			smiles, groups = pairUp(smiles, variants)
		} else {
			smiles = variants
		}
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	tok := m.tok
	if tok == nil {
		var opts []tokenizer.Option
		if len(m.cfg.MultiCharTokens) > 0 {
			opts = append(opts, tokenizer.WithMultiCharTokens(m.cfg.MultiCharTokens...))
		}
		if m.cfg.MaxSeqLen > 0 {
			opts = append(opts, tokenizer.WithMaxSeqLen(m.cfg.MaxSeqLen))
		}
		tok = tokenizer.New(opts...)
	}
	if !tok.Fitted() {
		if err := tok.Fit(smiles); err != nil {
			return fmt.Errorf("fit tokenizer: %w", err)
		}
	}

	encode := tok.Encode
	if m.cfg.BoundaryTokens {
		encode = tok.EncodeWithBoundaries
	}
	if m.cfg.MaxSeqLen > 0 {
		for i, s := range smiles {
			if n := len(encode(s)); n > m.cfg.MaxSeqLen {
				return fmt.Errorf("%w: row %d encodes to %d tokens, limit is %d", config.ErrInvalid, i, n, m.cfg.MaxSeqLen)
			}
		}
	}

	rows := &dataset.Table{
		SmilesColumn: sampled.SmilesColumn,
		Records:      lo.Map(smiles, func(s string, _ int) dataset.Record { return dataset.Record{SMILES: s} }),
	}
	data := dataset.New(rows, dataset.TokenTransform(encode))

	var splits []dataset.Split
	if groups != nil {
		splits, err = dataset.RandomGroupSplit(groups, m.cfg.TrainValTestSplit[:], m.cfg.RandomState)
	} else {
		splits, err = dataset.RandomSplit(rows.Len(), m.cfg.TrainValTestSplit[:], m.cfg.RandomState)
	}
	if err != nil {
		return err
	}
	if err := dataset.ValidatePartition(splits, rows.Len()); err != nil {
		return err
	}

	m.tok, m.data, m.splits = tok, data, splits
	m.train = m.newLoader(splits[0], true)
	m.val = m.newLoader(splits[1], false)
	m.test = m.newLoader(splits[2], false)

	m.logger.Info().
		Int("vocab", tok.VocabSize()).
		Ints("splits", lo.Map(splits, func(s dataset.Split, _ int) int { return s.Len() })).
		Bool("augmented", m.cfg.Augment).
		Msg("data module ready")
	return nil
}

func (m *Module) newLoader(split dataset.Split, shuffle bool) *Loader {
	return NewLoader(dataset.NewSubset[[]int](m.data, split.Indices), LoaderOptions{
		Name:       split.Name,
		BatchSize:  m.cfg.BatchSize,
		Shuffle:    shuffle,
		NumWorkers: m.cfg.NumWorkers,
		PinMemory:  m.cfg.PinMemory,
		Pad:        m.tok.PadIndex(),
		Seed:       m.cfg.RandomState,
		Logger:     m.logger,
	})
}

// augment rewrites every string in a random atom order. Partition i draws
// from stream i+1 of RandomState, the sequential pass from stream 0.
func (m *Module) augment(ctx context.Context, smiles []string) ([]string, error) {
	out := make([]string, len(smiles))
	seed := uint64(m.cfg.RandomState)
	if m.cfg.NPartitions == 0 || len(smiles) == 0 {
		if err := randomizeRange(ctx, chem.NewSeededRandomizer(seed, 0), smiles, out, 0); err != nil {
			return nil, err
		}
		return out, nil
	}

	size := (len(smiles) + m.cfg.NPartitions - 1) / m.cfg.NPartitions
	p := pool.New().WithMaxGoroutines(m.cfg.NPartitions).WithContext(ctx).WithCancelOnError().WithFirstError()
	for part, idxs := range lo.Chunk(lo.Range(len(smiles)), size) {
		start, end := idxs[0], idxs[len(idxs)-1]+1
		p.Go(func(ctx context.Context) error {
			r := chem.NewSeededRandomizer(seed, uint64(part)+1)
			return randomizeRange(ctx, r, smiles[start:end], out[start:end], start)
		})
	}
	if err := p.Wait(); err != nil {
		return nil, err
	}
	m.logger.Debug().Int("partitions", m.cfg.NPartitions).Int("rows", len(smiles)).Msg("augmented")
	return out, nil
}

func randomizeRange(ctx context.Context, r *chem.Randomizer, in, out []string, offset int) error {
	for i, s := range in {
		if err := ctx.Err(); err != nil {
			return err
		}
		v, err := r.Randomize(s)
		if err != nil {
			return fmt.Errorf("augment row %d: %w", offset+i, err)
		}
		out[i] = v
	}
	return nil
}

// pairUp interleaves originals and variants so rows 2i and 2i+1 hold one
// molecule, and returns those pairs as split groups.
func pairUp(originals, variants []string) ([]string, [][]int) {
	rows := make([]string, 0, 2*len(originals))
	groups := make([][]int, len(originals))
	for i := range originals {
		rows = append(rows, originals[i], variants[i])
		groups[i] = []int{2 * i, 2*i + 1}
	}
	return rows, groups
}

func (m *Module) ready() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.phase != PhaseReady {
		return fmt.Errorf("%w: module is %s", ErrPhase, m.phase)
	}
	return nil
}

// Tokenizer returns the fitted tokenizer. Its vocabulary is fixed.
func (m *Module) Tokenizer() (*tokenizer.SmilesTokenizer, error) {
	if err := m.ready(); err != nil {
		return nil, err
	}
	return m.tok, nil
}

// Dataset returns the tokenized rows all splits index into.
func (m *Module) Dataset() (*dataset.Dataset[[]int], error) {
	if err := m.ready(); err != nil {
		return nil, err
	}
	return m.data, nil
}

// Splits returns copies of the train, validation and test index sets.
func (m *Module) Splits() ([]dataset.Split, error) {
	if err := m.ready(); err != nil {
		return nil, err
	}
	return lo.Map(m.splits, func(s dataset.Split, _ int) dataset.Split {
		return dataset.Split{Name: s.Name, Indices: slices.Clone(s.Indices)}
	}), nil
}

// TrainLoader returns the shuffling training loader.
func (m *Module) TrainLoader() (*Loader, error) {
	if err := m.ready(); err != nil {
		return nil, err
	}
	return m.train, nil
}

// ValLoader returns the validation loader.
func (m *Module) ValLoader() (*Loader, error) {
	if err := m.ready(); err != nil {
		return nil, err
	}
	return m.val, nil
}

// TestLoader returns the test loader.
func (m *Module) TestLoader() (*Loader, error) {
	if err := m.ready(); err != nil {
		return nil, err
	}
	return m.test, nil
}
