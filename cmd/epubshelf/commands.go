package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/yuanying/epubshelf/internal/epub"
	"github.com/yuanying/epubshelf/internal/server"
)

// Output formats of the info command.
const (
	formatText = "text"
	formatJSON = "json"
	formatYAML = "yaml"
)

type bookInfo struct {
	File       string   `json:"file" yaml:"file"`
	OPFPath    string   `json:"opf_path" yaml:"opf_path"`
	Title      string   `json:"title" yaml:"title"`
	Author     string   `json:"author" yaml:"author"`
	Subjects   []string `json:"subjects" yaml:"subjects"`
	CoverHref  string   `json:"cover_href,omitempty" yaml:"cover_href,omitempty"`
	CoverExt   string   `json:"cover_ext" yaml:"cover_ext"`
	CoverBytes int      `json:"cover_bytes" yaml:"cover_bytes"`
	Chapters   int      `json:"chapters" yaml:"chapters"`
}

func newInfoCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "info <epub>",
		Short: "Show the metadata of an EPUB file",
		Args:  cobra.ExactArgs(1),
		RunE:  runInfo,
	}
	cmd.Flags().StringP("format", "f", formatText, "Output format: text, json, yaml")
	cmd.Flags().String("cover", "", "Write the cover image to this file")
	return cmd
}

func runInfo(cmd *cobra.Command, args []string) error {
	opts, err := readCLIOptions(cmd)
	if err != nil {
		return err
	}
	defer opts.Close()

	format, _ := cmd.Flags().GetString("format")
	format = strings.ToLower(format)
	switch format {
	case formatText, formatJSON, formatYAML:
	default:
		return fmt.Errorf("invalid --format %q (want text, json or yaml)", format)
	}

	book, err := epub.Open(args[0])
	if err != nil {
		return err
	}
	defer book.Close()

	if err := book.ValidateMimetype(); err != nil {
		opts.Logger.Warn("mimetype check failed", "file", args[0], "error", err)
	}
	if err := book.Document().SyntaxError; err != nil {
		opts.Logger.Warn("package document is malformed, showing what was read", "file", args[0], "error", err)
	}

	md := book.Metadata()
	info := bookInfo{
		File:       args[0],
		OPFPath:    book.OPFPath(),
		Title:      md.Title,
		Author:     md.Author,
		Subjects:   md.Subjects,
		CoverHref:  md.CoverHref,
		CoverExt:   md.CoverExt,
		CoverBytes: len(md.Cover),
		Chapters:   len(book.Document().SpineItems()),
	}
	if info.Subjects == nil {
		info.Subjects = []string{}
	}

	if coverPath, _ := cmd.Flags().GetString("cover"); coverPath != "" {
		if len(md.Cover) == 0 {
			return fmt.Errorf("%s has no cover image", args[0])
		}
		if err := os.WriteFile(coverPath, md.Cover, 0o644); err != nil {
			return fmt.Errorf("failed to write cover: %w", err)
		}
		opts.Logger.Info("wrote cover", "path", coverPath, "bytes", len(md.Cover))
	}

	return writeInfo(cmd.OutOrStdout(), format, info)
}

func writeInfo(w io.Writer, format string, info bookInfo) error {
	switch format {
	case formatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(info)
	case formatYAML:
		enc := yaml.NewEncoder(w)
		defer enc.Close()
		return enc.Encode(info)
	}

	fmt.Fprintf(w, "File:     %s\n", info.File)
	fmt.Fprintf(w, "Package:  %s\n", info.OPFPath)
	fmt.Fprintf(w, "Title:    %s\n", info.Title)
	fmt.Fprintf(w, "Author:   %s\n", info.Author)
	fmt.Fprintf(w, "Subjects: %s\n", strings.Join(info.Subjects, ", "))
	if info.CoverHref != "" {
		fmt.Fprintf(w, "Cover:    %s (%d bytes)\n", info.CoverHref, info.CoverBytes)
	} else {
		fmt.Fprintln(w, "Cover:    none")
	}
	fmt.Fprintf(w, "Chapters: %d\n", info.Chapters)
	return nil
}

func newTOCCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "toc <epub>",
		Short: "List the reading order with chapter titles",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := readCLIOptions(cmd)
			if err != nil {
				return err
			}
			defer opts.Close()

			pkg, err := epub.Assemble(args[0])
			if err != nil {
				return err
			}
			if pkg.NavHref == "" && pkg.NCXHref != "" {
				opts.Logger.Warn("book only has an NCX table of contents; titles are unavailable", "ncx", pkg.NCXHref)
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			for i, href := range pkg.SpineHrefs {
				title, ok := pkg.Title(href)
				if !ok {
					title = "-"
				}
				fmt.Fprintf(w, "%d\t%s\t%s\n", i+1, title, epub.ResolveHref(pkg.BasePath, href))
			}
			return w.Flush()
		},
	}
}

func newExtractCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "extract <epub>",
		Short: "Extract an EPUB into the cache directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := readCLIOptions(cmd)
			if err != nil {
				return err
			}
			defer opts.Close()

			id, _ := cmd.Flags().GetString("id")
			if id == "" {
				base := filepath.Base(args[0])
				id = strings.TrimSuffix(base, filepath.Ext(base))
			}

			dir, err := newCache(opts).EnsureExtracted(args[0], id)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), dir)
			return nil
		},
	}
	cmd.Flags().String("id", "", "Book id naming the cache directory (default: file name without extension)")
	return cmd
}

func newImportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import <epub>...",
		Short: "Import EPUB files into the library",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := readCLIOptions(cmd)
			if err != nil {
				return err
			}
			defer opts.Close()

			lib, err := openLibrary(opts)
			if err != nil {
				return err
			}
			defer lib.Close()

			failed := 0
			out := cmd.OutOrStdout()
			for _, res := range lib.Import(cmd.Context(), args) {
				if res.Err != nil {
					failed++
					fmt.Fprintf(out, "FAIL %s: %v\n", res.Path, res.Err)
					continue
				}
				note := ""
				if res.Fallback {
					note = " (metadata guessed from file name)"
				}
				fmt.Fprintf(out, "ok   %s -> %s %q by %s%s\n", res.Path, res.Book.ID, res.Book.Title, res.Book.Author, note)
			}

			if failed > 0 {
				return fmt.Errorf("%d of %d files failed to import", failed, len(args))
			}
			return nil
		},
	}
	cmd.Flags().Int("workers", 0, "Number of files imported at once (default: 4)")
	return cmd
}

func newListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list [query]",
		Short: "List books in the library",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := readCLIOptions(cmd)
			if err != nil {
				return err
			}
			defer opts.Close()

			lib, err := openLibrary(opts)
			if err != nil {
				return err
			}
			defer lib.Close()

			query := ""
			if len(args) == 1 {
				query = args[0]
			}
			books, err := lib.List(cmd.Context(), query)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tTITLE\tAUTHOR\tGENRE")
			for _, b := range books {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", b.ID, b.Title, b.Author, b.Genre)
			}
			return w.Flush()
		},
	}
}

func newRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rm <id>...",
		Short: "Remove books from the library",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := readCLIOptions(cmd)
			if err != nil {
				return err
			}
			defer opts.Close()

			lib, err := openLibrary(opts)
			if err != nil {
				return err
			}
			defer lib.Close()

			var errs []error
			for _, id := range args {
				if err := lib.Delete(cmd.Context(), id); err != nil {
					errs = append(errs, err)
				}
			}
			return errors.Join(errs...)
		},
	}
}

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the library over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := readCLIOptions(cmd)
			if err != nil {
				return err
			}
			defer opts.Close()

			lib, err := openLibrary(opts)
			if err != nil {
				return err
			}
			defer lib.Close()

			srv := server.New(lib, opts.Logger)
			errCh := make(chan error, 1)
			go func() {
				errCh <- srv.Start(opts.Config.Listen)
			}()

			select {
			case err := <-errCh:
				return err
			case <-cmd.Context().Done():
			}

			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return srv.Shutdown(ctx)
		},
	}
	cmd.Flags().String("listen", "", "HTTP listen address (default: 127.0.0.1:8080)")
	return cmd
}
