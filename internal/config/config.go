// Package config loads the typed application configuration from viper.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"github.com/Veraticus/coffer/internal/common"
	"github.com/Veraticus/coffer/internal/crypto"
	"github.com/Veraticus/coffer/internal/ofx"
	"github.com/Veraticus/coffer/internal/storage"
)

// EnvPrefix prefixes every environment override, e.g. COFFER_STORAGE_DATA_DIR.
const EnvPrefix = "COFFER"

// Defaults.
const (
	DefaultDataDir  = "~/.local/share/coffer"
	DefaultPageSize = 25
)

// Config is the full application configuration.
type Config struct {
	Storage StorageConfig `mapstructure:"storage"`
	Logging LoggingConfig `mapstructure:"logging"`
	OFX     OFXConfig     `mapstructure:"ofx"`
	Import  ImportConfig  `mapstructure:"import"`
	KDF     KDFConfig     `mapstructure:"kdf"`
	UI      UIConfig      `mapstructure:"ui"`
}

// StorageConfig locates the store file.
type StorageConfig struct {
	DataDir  string `mapstructure:"data_dir"`
	FileName string `mapstructure:"file_name"`
}

// LoggingConfig controls the global logger.
type LoggingConfig struct {
	Level     string `mapstructure:"level"`
	Format    string `mapstructure:"format"`
	File      string `mapstructure:"file"`
	MaxSizeMB int    `mapstructure:"max_size_mb"`
	MaxFiles  int    `mapstructure:"max_files"`
}

// ImportConfig tunes bulk imports.
type ImportConfig struct {
	Sheet          string `mapstructure:"sheet"`
	AutoCheckpoint bool   `mapstructure:"auto_checkpoint"`
}

// OFXConfig fills the fields a statement file does not carry.
type OFXConfig struct {
	Bank     string `mapstructure:"bank"`
	Category string `mapstructure:"category"`
}

// KDFConfig holds the Argon2id parameters used when a store is created.
type KDFConfig struct {
	MemoryKiB   uint32 `mapstructure:"memory_kib"`
	Iterations  uint32 `mapstructure:"iterations"`
	Parallelism uint8  `mapstructure:"parallelism"`
}

// UIConfig tunes listing output.
type UIConfig struct {
	PageSize int `mapstructure:"page_size"`
}

// Configure registers defaults and environment overrides on v.
func Configure(v *viper.Viper) {
	kdf := crypto.DefaultArgon2Params()

	v.SetDefault("storage.data_dir", DefaultDataDir)
	v.SetDefault("storage.file_name", storage.DefaultFileName)
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")
	v.SetDefault("logging.file", "")
	v.SetDefault("logging.max_size_mb", 10)
	v.SetDefault("logging.max_files", 5)
	v.SetDefault("import.sheet", "")
	v.SetDefault("import.auto_checkpoint", true)
	v.SetDefault("ofx.bank", "")
	v.SetDefault("ofx.category", ofx.DefaultCategory)
	v.SetDefault("kdf.memory_kib", kdf.Memory)
	v.SetDefault("kdf.iterations", kdf.Iterations)
	v.SetDefault("kdf.parallelism", kdf.Parallelism)
	v.SetDefault("ui.page_size", DefaultPageSize)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
}

// Load decodes and validates the configuration held by v.
func Load(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("%w: %w", common.ErrInvalidConfig, err)
	}

	cfg.Storage.DataDir = ExpandPath(cfg.Storage.DataDir)
	cfg.Logging.File = ExpandPath(cfg.Logging.File)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the configuration for values the application cannot use.
func (c *Config) Validate() error {
	if c.Storage.DataDir == "" {
		return fmt.Errorf("%w: storage.data_dir is empty", common.ErrInvalidConfig)
	}
	if c.Storage.FileName == "" || strings.ContainsRune(c.Storage.FileName, filepath.Separator) {
		return fmt.Errorf("%w: storage.file_name %q must be a bare file name", common.ErrInvalidConfig, c.Storage.FileName)
	}
	if c.UI.PageSize <= 0 {
		return fmt.Errorf("%w: ui.page_size must be positive, got %d", common.ErrInvalidConfig, c.UI.PageSize)
	}
	if err := c.StorageOptions().KDF.Validate(); err != nil {
		return fmt.Errorf("%w: %w", common.ErrInvalidConfig, err)
	}
	if _, err := c.LogOptions(); err != nil {
		return err
	}
	return nil
}

// DBPath returns the store file location.
func (c *Config) DBPath() string {
	return filepath.Join(c.Storage.DataDir, c.Storage.FileName)
}

// StorageOptions returns the options used to create a store.
func (c *Config) StorageOptions() storage.Options {
	return storage.Options{KDF: crypto.Argon2Params{
		Memory:      c.KDF.MemoryKiB,
		Iterations:  c.KDF.Iterations,
		Parallelism: c.KDF.Parallelism,
	}}
}

// LogOptions returns the logger settings.
func (c *Config) LogOptions() (common.LogOptions, error) {
	level, err := common.ParseLevel(c.Logging.Level)
	if err != nil {
		return common.LogOptions{}, err
	}
	switch c.Logging.Format {
	case "", "console", "json":
	default:
		return common.LogOptions{}, fmt.Errorf("%w: log format %q", common.ErrInvalidConfig, c.Logging.Format)
	}
	return common.LogOptions{
		Level:     level,
		Format:    c.Logging.Format,
		File:      c.Logging.File,
		MaxSizeMB: c.Logging.MaxSizeMB,
		MaxFiles:  c.Logging.MaxFiles,
	}, nil
}

// OFXDefaults returns the statement import defaults.
func (c *Config) OFXDefaults() ofx.Defaults {
	return ofx.Defaults{Bank: c.OFX.Bank, Category: c.OFX.Category}
}

// ExpandPath expands a leading ~ and $VAR references in path.
func ExpandPath(path string) string {
	if path == "" {
		return path
	}

	if path == "~" || strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			path = filepath.Join(home, strings.TrimPrefix(path[1:], "/"))
		}
	}

	return os.ExpandEnv(path)
}
