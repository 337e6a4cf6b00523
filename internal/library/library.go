// Package library keeps the book catalog: imported EPUB files, their cover
// thumbnails, reading progress and the extraction cache used for reading.
package library

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/yuanying/epubshelf/internal/cache"
)

var ErrNotFound = errors.New("book not found")

// Options configures a Library.
type Options struct {
	DatabasePath string
	EbooksDir    string
	CoversDir    string
	Cache        *cache.Cache

	// Workers bounds concurrent imports.
	Workers      int
	MaxDimension int
	JPEGQuality  int

	Logger *slog.Logger
}

// Library is safe for concurrent use.
type Library struct {
	db      *DB
	files   FileStore
	cache   *cache.Cache
	thumbs  *Thumbnailer
	workers int
	logger  *slog.Logger
	now     func() time.Time

	extract singleflight.Group
}

// Open opens the catalog described by opts.
func Open(opts Options) (*Library, error) {
	if opts.Cache == nil {
		return nil, fmt.Errorf("extraction cache is required")
	}

	db, err := OpenDB(opts.DatabasePath)
	if err != nil {
		return nil, err
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	workers := opts.Workers
	if workers <= 0 {
		workers = 1
	}

	return &Library{
		db:      db,
		files:   FileStore{EbooksDir: opts.EbooksDir, CoversDir: opts.CoversDir},
		cache:   opts.Cache,
		thumbs:  NewThumbnailer(opts.MaxDimension, opts.JPEGQuality),
		workers: workers,
		logger:  logger,
		now:     time.Now,
	}, nil
}

// Close closes the catalog database.
func (l *Library) Close() error {
	return l.db.Close()
}

// List returns books whose title, author or genre contains query, ignoring
// case.
func (l *Library) List(ctx context.Context, query string) ([]Book, error) {
	books, err := l.db.listBooks(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("listing books: %w", err)
	}
	return books, nil
}

// Get returns the book with id or ErrNotFound.
func (l *Library) Get(ctx context.Context, id string) (*Book, error) {
	return l.db.getBook(ctx, id)
}

// Update applies user edits and returns the updated book.
func (l *Library) Update(ctx context.Context, id string, u BookUpdate) (*Book, error) {
	if err := l.db.updateBook(ctx, id, u); err != nil {
		return nil, err
	}
	return l.db.getBook(ctx, id)
}

// SetProgress records the current chapter index and page within it.
func (l *Library) SetProgress(ctx context.Context, id string, index, page int) error {
	if index < 0 || page < 0 {
		return fmt.Errorf("invalid progress %d/%d", index, page)
	}
	return l.db.setProgress(ctx, id, index, page, l.now())
}

// Delete removes the book file, its cover, its extracted tree and its catalog
// row.
func (l *Library) Delete(ctx context.Context, id string) error {
	b, err := l.db.getBook(ctx, id)
	if err != nil {
		return err
	}

	if err := remove(l.files.BookPath(b.FileName)); err != nil {
		return fmt.Errorf("removing book file: %w", err)
	}
	if b.CoverFile != "" {
		if err := remove(l.files.CoverPath(b.CoverFile)); err != nil {
			return fmt.Errorf("removing cover: %w", err)
		}
	}
	if err := l.cache.Remove(id); err != nil {
		return fmt.Errorf("removing extracted files: %w", err)
	}

	if err := l.db.deleteBook(ctx, id); err != nil {
		return err
	}
	l.logger.Info("deleted book", "book_id", id, "file", b.FileName)
	return nil
}

// BookPath returns the stored EPUB file of b.
func (l *Library) BookPath(b *Book) string {
	return l.files.BookPath(b.FileName)
}

// CoverPath returns the stored cover of b, or "" when it has none.
func (l *Library) CoverPath(b *Book) string {
	if b.CoverFile == "" {
		return ""
	}
	return l.files.CoverPath(b.CoverFile)
}
