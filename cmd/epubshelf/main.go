package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "epubshelf",
		Short: "Keep and read a local library of EPUB books",
		Long: `epubshelf reads EPUB containers, imports them into a local library
and serves their extracted contents for reading.

Books are extracted once into a cache directory; later reads reuse the
extracted files without opening the archive again.`,
		SilenceUsage: true,
	}

	flags := cmd.PersistentFlags()
	flags.String("config", "", "Path to config file (default: <user config dir>/epubshelf/config.toml)")
	flags.String("data-dir", "", "Directory holding imported books, covers and the catalog")
	flags.String("cache-dir", "", "Extraction cache directory")
	flags.String("log-level", "", "Log level: debug, info, warn, error (default: info)")
	flags.String("log-format", "", "Log format: text, json (default: text)")
	flags.String("log-output-dir", "", "Also write JSON logs to a timestamped file in this directory")
	flags.BoolP("verbose", "v", false, "Enable debug logging (overrides --log-level)")

	cmd.AddCommand(
		newInfoCmd(),
		newTOCCmd(),
		newExtractCmd(),
		newImportCmd(),
		newListCmd(),
		newRemoveCmd(),
		newServeCmd(),
	)
	return cmd
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
