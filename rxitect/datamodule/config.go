package datamodule

import (
	"errors"
	"fmt"

	"github.com/ZanzyTHEbar/rxitect/rxitect/config"
	"github.com/samber/lo"
)

// Config holds the settings of one data module. It is checked once by New
// and never changes afterwards.
type Config struct {
	DataFilepath string
	SmilesColumn string
	// TrainValTestSplit gives the number of molecules in each split. Their
	// sum is the number of rows sampled from the table.
	TrainValTestSplit [3]int
	Augment           bool
	// NPartitions is the number of concurrent augmentation partitions; 0
	// augments sequentially.
	NPartitions    int
	BatchSize      int
	NumWorkers     int
	PinMemory      bool
	RandomState    int64
	BoundaryTokens bool
	// GroupAugmentedPairs keeps each original string next to its variant
	// and splits the pairs together. It requires Augment.
	GroupAugmentedPairs bool
	// MaxSeqLen bounds the encoded length of every molecule; 0 means no
	// bound.
	MaxSeqLen       int
	MultiCharTokens []string
}

// FromConfig maps the application configuration onto a module Config.
func FromConfig(c *config.Config) (Config, error) {
	if len(c.Data.TrainValTestSplit) != 3 {
		return Config{}, fmt.Errorf("%w: data.trainValTestSplit needs 3 sizes, got %v", config.ErrInvalid, c.Data.TrainValTestSplit)
	}
	cfg := Config{
		DataFilepath:        c.Data.Filepath,
		SmilesColumn:        c.Data.SmilesColumn,
		Augment:             c.Data.Augment,
		NPartitions:         c.Data.NPartitions,
		BatchSize:           c.Loader.BatchSize,
		NumWorkers:          c.Loader.NumWorkers,
		PinMemory:           c.Loader.PinMemory,
		RandomState:         c.Data.RandomState,
		BoundaryTokens:      c.Loader.BoundaryTokens,
		GroupAugmentedPairs: c.Data.GroupAugmentedPairs,
		MaxSeqLen:           c.Tokenizer.MaxSeqLen,
		MultiCharTokens:     c.Tokenizer.MultiCharTokens,
	}
	copy(cfg.TrainValTestSplit[:], c.Data.TrainValTestSplit)
	return cfg, cfg.Validate()
}

// Validate reports every setting that can never lead to a successful setup.
func (c Config) Validate() error {
	var errs []error
	if c.DataFilepath == "" {
		errs = append(errs, errors.New("data file path is empty"))
	}
	if lo.SomeBy(c.TrainValTestSplit[:], func(n int) bool { return n <= 0 }) {
		errs = append(errs, fmt.Errorf("split sizes must be positive, got %v", c.TrainValTestSplit))
	}
	if c.BatchSize <= 0 {
		errs = append(errs, fmt.Errorf("batch size must be positive, got %d", c.BatchSize))
	}
	if c.NumWorkers < 0 {
		errs = append(errs, fmt.Errorf("worker count must not be negative, got %d", c.NumWorkers))
	}
	if c.NPartitions < 0 {
		errs = append(errs, fmt.Errorf("partition count must not be negative, got %d", c.NPartitions))
	}
	if c.MaxSeqLen < 0 {
		errs = append(errs, fmt.Errorf("max sequence length must not be negative, got %d", c.MaxSeqLen))
	}
	if c.GroupAugmentedPairs && !c.Augment {
		errs = append(errs, errors.New("grouping augmented pairs requires augment"))
	}
	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", config.ErrInvalid, errors.Join(errs...))
}

// Total returns the number of molecules drawn from the table.
func (c Config) Total() int { return lo.Sum(c.TrainValTestSplit[:]) }
