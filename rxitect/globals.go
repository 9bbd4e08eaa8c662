package internal

import (
	"log"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
)

var (
	// DefaultAppName is used for config lookup paths and env prefixes
	DefaultAppName          = "rxitect"
	DefaultEnvPrefix        = "RXITECT"
	DefaultConfigPath       = filepath.Join(getHomeDir(), ".config", DefaultAppName)
	DefaultCacheDir         = filepath.Join(DefaultConfigPath, ".cache")
	DefaultVocabDBPath      = filepath.Join(DefaultConfigPath, "vocab.db")
	DefaultGlobalConfigFile = filepath.Join(DefaultConfigPath, "config.yaml")

	// Default data module settings
	DefaultSmilesColumn = "smiles"
	DefaultBatchSize    = 128
	DefaultRandomState  = int64(42)

	// Default fingerprint settings (2048 Morgan bits, radius 3)
	DefaultFingerprintBits   = 2048
	DefaultFingerprintRadius = 3
)

func getHomeDir() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		cwd, cwdErr := os.Getwd()
		if cwdErr != nil {
			log.Printf("Unable to get home or working directory, using /tmp: %v", err)
			return "/tmp"
		}
		log.Printf("Unable to get home directory, using current working directory: %v", err)
		return cwd
	}
	return homeDir
}

// GetLogger returns a properly configured zerolog logger instance
func GetLogger() zerolog.Logger {
	return zerolog.New(os.Stderr).With().Timestamp().Logger()
}
