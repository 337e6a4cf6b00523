// Package cache extracts EPUB archives into per-book directories under a
// cache root. A tree is trusted only once its completion marker exists.
package cache

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/yuanying/epubshelf/internal/archive"
	"github.com/yuanying/epubshelf/internal/metrics"
)

const (
	// MarkerName is the completion marker written after every entry.
	MarkerName    = ".done"
	markerContent = "ok"
)

var (
	ErrUnsafePath    = errors.New("archive entry escapes extraction directory")
	ErrInvalidBookID = errors.New("invalid book id")
)

// Source is an opened archive being extracted.
type Source interface {
	Names() []string
	ReadFile(name string) ([]byte, error)
	Close() error
}

// Opener opens the archive at path.
type Opener func(path string) (Source, error)

func openArchive(path string) (Source, error) {
	a, err := archive.Open(path)
	if err != nil {
		return nil, err
	}
	return a, nil
}

// Cache maps book ids to extracted trees below root. Concurrent calls for the
// same book id must be serialized by the caller.
type Cache struct {
	root   string
	open   Opener
	logger *slog.Logger
}

// Option configures a Cache.
type Option func(*Cache)

// WithOpener replaces the archive opener.
func WithOpener(open Opener) Option {
	return func(c *Cache) {
		c.open = open
	}
}

// WithLogger sets the logger used for extraction events.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Cache) {
		c.logger = logger
	}
}

// New returns a cache rooted at root. The directory is created on first
// extraction.
func New(root string, opts ...Option) *Cache {
	c := &Cache{
		root:   root,
		open:   openArchive,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Root returns the cache root directory.
func (c *Cache) Root() string {
	return c.root
}

// Dir returns the extraction directory of bookID without touching the disk.
func (c *Cache) Dir(bookID string) (string, error) {
	if bookID == "" || bookID == "." || bookID == ".." || strings.ContainsAny(bookID, `/\`) {
		return "", fmt.Errorf("%q: %w", bookID, ErrInvalidBookID)
	}
	return filepath.Join(c.root, bookID), nil
}

// IsExtracted reports whether the tree of bookID is complete.
func (c *Cache) IsExtracted(bookID string) bool {
	dir, err := c.Dir(bookID)
	if err != nil {
		return false
	}
	_, err = os.Stat(filepath.Join(dir, MarkerName))
	return err == nil
}

// EnsureExtracted returns the extraction directory of bookID, extracting
// archivePath first unless a completed tree is already present. An
// incomplete tree is discarded and rebuilt.
func (c *Cache) EnsureExtracted(archivePath, bookID string) (string, error) {
	dir, err := c.Dir(bookID)
	if err != nil {
		return "", err
	}

	if c.IsExtracted(bookID) {
		metrics.RecordCacheHit()
		return dir, nil
	}
	metrics.RecordCacheMiss()

	start := time.Now()
	n, err := c.extract(archivePath, dir)
	if err != nil {
		c.logger.Warn("extraction failed", "book_id", bookID, "archive", archivePath, "error", err)
		return "", err
	}
	elapsed := time.Since(start)
	metrics.RecordExtraction(n, elapsed)
	c.logger.Debug("extracted book", "book_id", bookID, "entries", n, "duration", elapsed)

	return dir, nil
}

// extract rebuilds dir from the archive and returns the number of files
// written. The marker is written last.
func (c *Cache) extract(archivePath, dir string) (int, error) {
	if err := os.RemoveAll(dir); err != nil {
		return 0, fmt.Errorf("failed to clear extraction directory: %w", err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return 0, fmt.Errorf("failed to create extraction directory: %w", err)
	}

	src, err := c.open(archivePath)
	if err != nil {
		return 0, fmt.Errorf("failed to open archive: %w", err)
	}
	defer src.Close()

	written := 0
	for _, name := range src.Names() {
		rel, err := EntryPath(name)
		if err != nil {
			return written, err
		}
		if rel == "" || rel == MarkerName {
			c.logger.Debug("skipping archive entry", "name", name)
			continue
		}
		target := filepath.Join(dir, filepath.FromSlash(rel))

		if strings.HasSuffix(name, "/") {
			if err := os.MkdirAll(target, 0o755); err != nil {
				return written, fmt.Errorf("failed to create directory %s: %w", rel, err)
			}
			continue
		}

		data, err := src.ReadFile(name)
		if err != nil {
			return written, fmt.Errorf("failed to extract %s: %w", name, err)
		}
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return written, fmt.Errorf("failed to create directory for %s: %w", rel, err)
		}
		if err := os.WriteFile(target, data, 0o644); err != nil {
			return written, fmt.Errorf("failed to write %s: %w", rel, err)
		}
		written++
	}

	if err := writeMarker(dir); err != nil {
		return written, err
	}
	return written, nil
}

// writeMarker writes the completion marker via a temp file and rename.
func writeMarker(dir string) error {
	tmp, err := os.CreateTemp(dir, ".done-*")
	if err != nil {
		return fmt.Errorf("failed to create marker: %w", err)
	}
	tmpPath := tmp.Name()

	success := false
	defer func() {
		if !success {
			_ = tmp.Close()
			_ = os.Remove(tmpPath)
		}
	}()

	if _, err := tmp.WriteString(markerContent); err != nil {
		return fmt.Errorf("failed to write marker: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close marker: %w", err)
	}
	if err := os.Rename(tmpPath, filepath.Join(dir, MarkerName)); err != nil {
		return fmt.Errorf("failed to rename marker: %w", err)
	}

	success = true
	return nil
}

// Remove deletes the extraction directory of bookID. A missing directory is
// not an error.
func (c *Cache) Remove(bookID string) error {
	dir, err := c.Dir(bookID)
	if err != nil {
		return err
	}
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("failed to remove extraction directory: %w", err)
	}
	return nil
}

// EntryPath cleans an archive path into a relative slash path. Names
// that are absolute or climb out of the extraction directory are rejected.
func EntryPath(name string) (string, error) {
	cleaned := path.Clean(strings.ReplaceAll(name, `\`, "/"))
	if strings.HasPrefix(cleaned, "/") || cleaned == ".." || strings.HasPrefix(cleaned, "../") ||
		filepath.VolumeName(cleaned) != "" {
		return "", fmt.Errorf("%q: %w", name, ErrUnsafePath)
	}
	if cleaned == "." {
		return "", nil
	}
	return cleaned, nil
}
