// Package config loads epubshelf settings from flags, environment variables
// and an optional config file.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"github.com/yuanying/epubshelf/internal/logging"
)

// EnvPrefix prefixes every environment variable read by Load.
const EnvPrefix = "EPUBSHELF"

// Config holds app configuration
type Config struct {
	// DataDir holds imported books, cover thumbnails and the catalog database.
	DataDir string `mapstructure:"data_dir"`
	// CacheDir is the extraction cache root.
	CacheDir string `mapstructure:"cache_dir"`
	// Listen is the HTTP listen address of the serve command.
	Listen string `mapstructure:"listen"`

	Log       LogConfig       `mapstructure:"log"`
	Thumbnail ThumbnailConfig `mapstructure:"thumbnail"`
	Import    ImportConfig    `mapstructure:"import"`
}

type LogConfig struct {
	Level     string `mapstructure:"level"`
	Format    string `mapstructure:"format"`
	OutputDir string `mapstructure:"output_dir"`
}

type ThumbnailConfig struct {
	// MaxDimension bounds the longer side of a cover thumbnail, in pixels.
	MaxDimension int `mapstructure:"max_dimension"`
	// Quality is the JPEG quality (1-100).
	Quality int `mapstructure:"quality"`
}

type ImportConfig struct {
	// Workers bounds how many files are imported at once.
	Workers int `mapstructure:"workers"`
}

// DefaultDataDir returns <user data dir>/epubshelf.
func DefaultDataDir() string {
	if dir := os.Getenv("XDG_DATA_HOME"); dir != "" {
		return filepath.Join(dir, "epubshelf")
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".local", "share", "epubshelf")
	}
	return filepath.Join(os.TempDir(), "epubshelf")
}

// DefaultCacheDir returns <user cache dir>/epubshelf/ExtractedEPUBs.
func DefaultCacheDir() string {
	dir, err := os.UserCacheDir()
	if err != nil {
		dir = os.TempDir()
	}
	return filepath.Join(dir, "epubshelf", "ExtractedEPUBs")
}

// SetDefaults registers every key with its default value. Keys must be known
// to v for environment variables to reach Unmarshal.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("data_dir", DefaultDataDir())
	v.SetDefault("cache_dir", DefaultCacheDir())
	v.SetDefault("listen", "127.0.0.1:8080")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", logging.FormatText)
	v.SetDefault("log.output_dir", "")
	v.SetDefault("thumbnail.max_dimension", 512)
	v.SetDefault("thumbnail.quality", 80)
	v.SetDefault("import.workers", 4)
}

// Load reads cfgFile (or config.{toml,yaml,json} from the user config
// directory when cfgFile is empty), applies EPUBSHELF_* environment
// variables and returns the validated result. Flags bound to v beforehand
// take precedence over both.
func Load(v *viper.Viper, cfgFile string) (*Config, error) {
	SetDefaults(v)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		if dir, err := os.UserConfigDir(); err == nil {
			v.AddConfigPath(filepath.Join(dir, "epubshelf"))
		}
		v.SetConfigName("config")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.DataDir == "" {
		return fmt.Errorf("data_dir is required")
	}
	if c.CacheDir == "" {
		return fmt.Errorf("cache_dir is required")
	}
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("invalid log.level: %w", err)
	}
	if err := logging.ValidateFormat(c.Log.Format); err != nil {
		return fmt.Errorf("invalid log.format: %w", err)
	}
	if c.Thumbnail.MaxDimension <= 0 {
		return fmt.Errorf("thumbnail.max_dimension must be positive, got %d", c.Thumbnail.MaxDimension)
	}
	if c.Thumbnail.Quality < 1 || c.Thumbnail.Quality > 100 {
		return fmt.Errorf("thumbnail.quality must be between 1 and 100, got %d", c.Thumbnail.Quality)
	}
	if c.Import.Workers <= 0 {
		return fmt.Errorf("import.workers must be positive, got %d", c.Import.Workers)
	}
	return nil
}

// EbooksDir is where imported EPUB files are stored.
func (c *Config) EbooksDir() string {
	return filepath.Join(c.DataDir, "Ebooks")
}

// CoversDir is where cover thumbnails are stored.
func (c *Config) CoversDir() string {
	return filepath.Join(c.DataDir, "Covers")
}

// DatabasePath is the catalog database file.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.DataDir, "library.db")
}
