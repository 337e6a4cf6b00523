package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/yuanying/epubshelf/internal/cache"
	"github.com/yuanying/epubshelf/internal/config"
	"github.com/yuanying/epubshelf/internal/library"
	"github.com/yuanying/epubshelf/internal/logging"
)

// flagKeys maps command line flags to config keys.
var flagKeys = map[string]string{
	"data-dir":       "data_dir",
	"cache-dir":      "cache_dir",
	"log-level":      "log.level",
	"log-format":     "log.format",
	"log-output-dir": "log.output_dir",
	"listen":         "listen",
	"workers":        "import.workers",
}

type cliOptions struct {
	Config   *config.Config
	Logger   *slog.Logger
	closeLog func() error
}

func (o *cliOptions) Close() error {
	if o.closeLog == nil {
		return nil
	}
	return o.closeLog()
}

// readCLIOptions resolves the configuration of cmd from its flags, the
// environment and the config file, and builds the logger.
func readCLIOptions(cmd *cobra.Command) (*cliOptions, error) {
	flags := cmd.Flags()

	if f := flags.Lookup("log-level"); f != nil && f.Changed {
		if _, err := logging.ParseLevel(f.Value.String()); err != nil {
			return nil, fmt.Errorf("invalid --log-level: %w", err)
		}
	}
	if f := flags.Lookup("log-format"); f != nil && f.Changed {
		if err := logging.ValidateFormat(f.Value.String()); err != nil {
			return nil, fmt.Errorf("invalid --log-format: %w", err)
		}
	}

	v := viper.New()
	for name, key := range flagKeys {
		if f := flags.Lookup(name); f != nil {
			if err := v.BindPFlag(key, f); err != nil {
				return nil, fmt.Errorf("binding --%s: %w", name, err)
			}
		}
	}

	cfgFile, _ := flags.GetString("config")
	cfg, err := config.Load(v, cfgFile)
	if err != nil {
		return nil, err
	}

	if verbose, _ := flags.GetBool("verbose"); verbose {
		cfg.Log.Level = "debug"
	}

	logger, closeLog, err := logging.Setup(cmd.ErrOrStderr(), cfg.Log.Level, cfg.Log.Format, cfg.Log.OutputDir)
	if err != nil {
		return nil, fmt.Errorf("could not set up logging: %w", err)
	}

	return &cliOptions{Config: cfg, Logger: logger, closeLog: closeLog}, nil
}

func newCache(opts *cliOptions) *cache.Cache {
	return cache.New(opts.Config.CacheDir, cache.WithLogger(opts.Logger))
}

func openLibrary(opts *cliOptions) (*library.Library, error) {
	cfg := opts.Config
	lib, err := library.Open(library.Options{
		DatabasePath: cfg.DatabasePath(),
		EbooksDir:    cfg.EbooksDir(),
		CoversDir:    cfg.CoversDir(),
		Cache:        newCache(opts),
		Workers:      cfg.Import.Workers,
		MaxDimension: cfg.Thumbnail.MaxDimension,
		JPEGQuality:  cfg.Thumbnail.Quality,
		Logger:       opts.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("opening library: %w", err)
	}
	return lib, nil
}
