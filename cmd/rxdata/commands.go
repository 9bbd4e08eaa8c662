package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"

	internal "github.com/ZanzyTHEbar/rxitect/rxitect"
	"github.com/ZanzyTHEbar/rxitect/rxitect/chem"
	"github.com/ZanzyTHEbar/rxitect/rxitect/config"
	"github.com/ZanzyTHEbar/rxitect/rxitect/datamodule"
	"github.com/ZanzyTHEbar/rxitect/rxitect/store"
	"github.com/ZanzyTHEbar/rxitect/rxitect/tokenizer"

	"github.com/RoaringBitmap/roaring"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// flagKeys maps shared data flags onto configuration keys.
var flagKeys = map[string]string{
	"file":       "data.filepath",
	"augment":    "data.augment",
	"partitions": "data.npartitions",
	"seed":       "data.randomState",
	"batch-size": "loader.batchSize",
	"workers":    "loader.numWorkers",
	"store":      "store.dsn",
	"log-level":  "log.level",
}

func addDataFlags(flags *pflag.FlagSet) *string {
	configPath := flags.StringP("config", "c", "", "config file (searches ./config.yaml and the user config directory when empty)")
	flags.StringP("file", "f", "", "SMILES table to load")
	flags.Bool("augment", false, "randomize every SMILES before fitting")
	flags.Int("partitions", 0, "concurrent augmentation partitions (0 augments sequentially)")
	flags.Int64("seed", internal.DefaultRandomState, "random state for sampling, augmentation, splits and shuffling")
	flags.Int("batch-size", internal.DefaultBatchSize, "loader batch size")
	flags.Int("workers", 0, "concurrent batch collation workers")
	flags.String("store", internal.DefaultVocabDBPath, "vocabulary database")
	flags.String("log-level", "info", "log level")
	return configPath
}

// loadConfig reads the configuration with flags taking precedence over the
// file and the environment.
func loadConfig(flags *pflag.FlagSet, configPath string) (*config.Config, error) {
	v := viper.New()
	for name, key := range flagKeys {
		if f := flags.Lookup(name); f != nil {
			if err := v.BindPFlag(key, f); err != nil {
				return nil, fmt.Errorf("bind flag %s: %w", name, err)
			}
		}
	}
	cfg, err := config.Load(v, configPath)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func newLogger(level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	return internal.GetLogger().Level(lvl)
}

func setupModule(ctx context.Context, cfg *config.Config, tok *tokenizer.SmilesTokenizer) (*datamodule.Module, error) {
	mcfg, err := datamodule.FromConfig(cfg)
	if err != nil {
		return nil, err
	}
	opts := []datamodule.Option{datamodule.WithLogger(newLogger(cfg.Log.Level))}
	if tok != nil {
		opts = append(opts, datamodule.WithTokenizer(tok))
	}
	m, err := datamodule.New(mcfg, opts...)
	if err != nil {
		return nil, err
	}
	if err := m.Prepare(ctx); err != nil {
		return nil, err
	}
	if err := m.Setup(ctx); err != nil {
		return nil, err
	}
	return m, nil
}

// storedTokenizer resolves a vocabulary id, or "latest", in the store.
func storedTokenizer(s *store.Store, ref string) (*tokenizer.SmilesTokenizer, error) {
	if ref == "latest" {
		v, err := s.LatestVocabulary()
		if err != nil {
			return nil, err
		}
		return v.Tokenizer()
	}
	id, err := uuid.Parse(ref)
	if err != nil {
		return nil, fmt.Errorf("invalid vocabulary id %q: %w", ref, err)
	}
	return s.LoadVocabulary(id)
}

type setupCmd struct{}

func (*setupCmd) summary() string {
	return "load, augment, tokenize and split a table; print split sizes and the vocabulary"
}

func (*setupCmd) execute(ctx context.Context, args []string, flags *pflag.FlagSet, out io.Writer) error {
	configPath := addDataFlags(flags)
	save := flags.Bool("save", false, "save the fitted vocabulary to the store")
	reuse := flags.String("vocab", "", "reuse a stored vocabulary by id, or \"latest\"")
	if err := flags.Parse(args); err != nil {
		return err
	}
	cfg, err := loadConfig(flags, *configPath)
	if err != nil {
		return err
	}

	var s *store.Store
	if *save || *reuse != "" {
		s, err = store.Open(cfg.Store.DSN)
		if err != nil {
			return err
		}
		defer s.Close()
	}
	var tok *tokenizer.SmilesTokenizer
	if *reuse != "" {
		if tok, err = storedTokenizer(s, *reuse); err != nil {
			return err
		}
	}

	m, err := setupModule(ctx, cfg, tok)
	if err != nil {
		return err
	}
	splits, err := m.Splits()
	if err != nil {
		return err
	}
	fitted, err := m.Tokenizer()
	if err != nil {
		return err
	}
	loaders := []func() (*datamodule.Loader, error){m.TrainLoader, m.ValLoader, m.TestLoader}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	for i, split := range splits {
		l, err := loaders[i]()
		if err != nil {
			return err
		}
		fmt.Fprintf(tw, "%s\t%d\t%d batches\n", split.Name, split.Len(), l.Len())
	}
	fmt.Fprintf(tw, "vocabulary\t%d\t\n", fitted.VocabSize())
	if err := tw.Flush(); err != nil {
		return err
	}
	fmt.Fprintln(out, strings.Join(fitted.Tokens(), " "))

	if *save {
		id, err := s.SaveVocabulary(fitted, cfg.Data.Filepath)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "saved\t%s\n", id)
	}
	return nil
}

type vocabCmd struct{}

func (*vocabCmd) summary() string {
	return "write the vocabulary fitted on a table, or list stored vocabularies"
}

func (*vocabCmd) execute(ctx context.Context, args []string, flags *pflag.FlagSet, out io.Writer) error {
	configPath := addDataFlags(flags)
	dir := flags.String("save", "", "directory to write "+tokenizer.VocabFileName+" into")
	list := flags.Bool("list", false, "list the vocabularies in the store")
	if err := flags.Parse(args); err != nil {
		return err
	}
	cfg, err := loadConfig(flags, *configPath)
	if err != nil {
		return err
	}

	if *list {
		s, err := store.Open(cfg.Store.DSN)
		if err != nil {
			return err
		}
		defer s.Close()
		vocabs, err := s.ListVocabularies()
		if err != nil {
			return err
		}
		tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		for _, v := range vocabs {
			fmt.Fprintf(tw, "%s\t%s\t%d\t%s\n", v.ID, v.TakenAt.Format("2006-01-02 15:04:05"), len(v.Tokens), v.Source)
		}
		return tw.Flush()
	}

	if *dir == "" {
		return errors.New("--save or --list is required")
	}
	m, err := setupModule(ctx, cfg, nil)
	if err != nil {
		return err
	}
	tok, err := m.Tokenizer()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(*dir, 0o755); err != nil {
		return err
	}
	if err := tok.SaveVocab(*dir); err != nil {
		return err
	}
	fmt.Fprintln(out, filepath.Join(*dir, tokenizer.VocabFileName))
	return nil
}

type randomizeCmd struct{}

func (*randomizeCmd) summary() string { return "print random equivalent SMILES" }

func (*randomizeCmd) execute(_ context.Context, args []string, flags *pflag.FlagSet, out io.Writer) error {
	seed := flags.Uint64("seed", 0, "seed for reproducible output")
	count := flags.IntP("count", "n", 1, "variants per input")
	if err := flags.Parse(args); err != nil {
		return err
	}
	if flags.NArg() == 0 {
		return errors.New("no SMILES given")
	}
	r := chem.NewRandomizer(nil)
	if flags.Changed("seed") {
		r = chem.NewSeededRandomizer(*seed, 0)
	}
	for _, smiles := range flags.Args() {
		for i := 0; i < *count; i++ {
			v, err := r.Randomize(smiles)
			if err != nil {
				return err
			}
			fmt.Fprintln(out, v)
		}
	}
	return nil
}

type canonicalCmd struct{}

func (*canonicalCmd) summary() string { return "print the canonical form of each SMILES" }

func (*canonicalCmd) execute(_ context.Context, args []string, flags *pflag.FlagSet, out io.Writer) error {
	if err := flags.Parse(args); err != nil {
		return err
	}
	if flags.NArg() == 0 {
		return errors.New("no SMILES given")
	}
	for _, smiles := range flags.Args() {
		c, err := chem.Canonical(smiles)
		if err != nil {
			return err
		}
		fmt.Fprintln(out, c)
	}
	return nil
}

type similarityCmd struct{}

func (*similarityCmd) summary() string {
	return "print the Tanimoto similarity of two molecules' Morgan fingerprints"
}

func (*similarityCmd) execute(_ context.Context, args []string, flags *pflag.FlagSet, out io.Writer) error {
	radius := flags.Int("radius", internal.DefaultFingerprintRadius, "Morgan radius")
	bits := flags.Int("bits", internal.DefaultFingerprintBits, "fingerprint length")
	if err := flags.Parse(args); err != nil {
		return err
	}
	if flags.NArg() != 2 {
		return fmt.Errorf("want 2 SMILES, got %d", flags.NArg())
	}
	f := chem.NewMorganFingerprinter(*radius, *bits)
	var fps [2]*roaring.Bitmap
	for i, smiles := range flags.Args() {
		m, err := chem.Parse(smiles)
		if err != nil {
			return err
		}
		if fps[i], err = f.Bitmap(m); err != nil {
			return err
		}
	}
	fmt.Fprintf(out, "%.4f\n", chem.Tanimoto(fps[0], fps[1]))
	return nil
}
