package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	internal "github.com/ZanzyTHEbar/rxitect/rxitect"

	"github.com/spf13/viper"
)

// ErrInvalid marks configuration errors: values that can never lead to a
// successful setup.
var ErrInvalid = errors.New("invalid configuration")

// Config stores all configuration of the application.
// The values are read by viper from a config file or environment variables.
type Config struct {
	Data        DataConfig        `mapstructure:"data"`
	Loader      LoaderConfig      `mapstructure:"loader"`
	Tokenizer   TokenizerConfig   `mapstructure:"tokenizer"`
	Fingerprint FingerprintConfig `mapstructure:"fingerprint"`
	Store       StoreConfig       `mapstructure:"store"`
	Log         LogConfig         `mapstructure:"log"`
}

// DataConfig stores the table source, sampling and augmentation settings.
type DataConfig struct {
	Filepath            string `mapstructure:"filepath"`
	SmilesColumn        string `mapstructure:"smilesColumn"`
	TrainValTestSplit   []int  `mapstructure:"trainValTestSplit"`
	Augment             bool   `mapstructure:"augment"`
	NPartitions         int    `mapstructure:"npartitions"`
	RandomState         int64  `mapstructure:"randomState"`
	GroupAugmentedPairs bool   `mapstructure:"groupAugmentedPairs"`
}

// LoaderConfig stores batch construction settings.
type LoaderConfig struct {
	BatchSize      int  `mapstructure:"batchSize"`
	NumWorkers     int  `mapstructure:"numWorkers"`
	PinMemory      bool `mapstructure:"pinMemory"`
	BoundaryTokens bool `mapstructure:"boundaryTokens"`
}

// TokenizerConfig stores vocabulary settings.
type TokenizerConfig struct {
	MultiCharTokens []string `mapstructure:"multiCharTokens"`
	MaxSeqLen       int      `mapstructure:"maxSeqLen"`
}

// FingerprintConfig stores Morgan fingerprint parameters.
type FingerprintConfig struct {
	Radius int `mapstructure:"radius"`
	Bits   int `mapstructure:"bits"`
}

// StoreConfig stores vocabulary snapshot database details.
type StoreConfig struct {
	DSN string `mapstructure:"dsn"`
}

// LogConfig stores logger settings.
type LogConfig struct {
	Level string `mapstructure:"level"`
}

var AppConfig Config

// LoadConfig reads configuration from file or environment variables into
// the global viper instance.
func LoadConfig(configPath string) (*Config, error) {
	cfg, err := Load(viper.GetViper(), configPath)
	if err != nil {
		return nil, err
	}
	AppConfig = *cfg
	return &AppConfig, nil
}

// Load reads configuration through v. An empty configPath searches the
// working directory, its parent and the user config directory.
func Load(v *viper.Viper, configPath string) (*Config, error) {
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.AddConfigPath(".")
		v.AddConfigPath("..")
		v.AddConfigPath(filepath.Join("etc", internal.DefaultAppName))
		v.AddConfigPath(internal.DefaultConfigPath)
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	SetDefaults(v)

	v.SetEnvPrefix(internal.DefaultEnvPrefix)
	v.AutomaticEnv()                                   // Read in environment variables that match
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_")) // loader.batchSize becomes RXITECT_LOADER_BATCHSIZE

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode into struct: %w", err)
	}
	return &cfg, nil
}

// SetDefaults registers a default for every known key, which also makes
// every key visible to AutomaticEnv.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("data.filepath", "")
	v.SetDefault("data.smilesColumn", internal.DefaultSmilesColumn)
	v.SetDefault("data.trainValTestSplit", []int{})
	v.SetDefault("data.augment", false)
	v.SetDefault("data.npartitions", 0)
	v.SetDefault("data.randomState", internal.DefaultRandomState)
	v.SetDefault("data.groupAugmentedPairs", false)

	v.SetDefault("loader.batchSize", internal.DefaultBatchSize)
	v.SetDefault("loader.numWorkers", 0)
	v.SetDefault("loader.pinMemory", false)
	v.SetDefault("loader.boundaryTokens", true)

	v.SetDefault("tokenizer.multiCharTokens", []string{"Cl", "Br"})
	v.SetDefault("tokenizer.maxSeqLen", 0)

	v.SetDefault("fingerprint.radius", internal.DefaultFingerprintRadius)
	v.SetDefault("fingerprint.bits", internal.DefaultFingerprintBits)

	v.SetDefault("store.dsn", internal.DefaultVocabDBPath)

	v.SetDefault("log.level", "info")
}

// Validate checks the settings that do not depend on the data file.
func (c *Config) Validate() error {
	var errs []error
	if c.Fingerprint.Bits <= 0 {
		errs = append(errs, fmt.Errorf("fingerprint.bits must be positive, got %d", c.Fingerprint.Bits))
	}
	if c.Fingerprint.Radius < 0 {
		errs = append(errs, fmt.Errorf("fingerprint.radius must not be negative, got %d", c.Fingerprint.Radius))
	}
	if c.Tokenizer.MaxSeqLen < 0 {
		errs = append(errs, fmt.Errorf("tokenizer.maxSeqLen must not be negative, got %d", c.Tokenizer.MaxSeqLen))
	}
	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrInvalid, errors.Join(errs...))
}
