package library

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/yuanying/epubshelf/internal/archive"
	"github.com/yuanying/epubshelf/internal/epub"
	"github.com/yuanying/epubshelf/internal/metrics"
)

// ImportResult is the outcome of importing one file. Files fail
// independently.
type ImportResult struct {
	Path string
	Book *Book
	// Fallback is set when the package metadata could not be read and the
	// title and author were guessed from the file name.
	Fallback bool
	Err      error
}

// Import copies each file into the library and catalogs it, running up to
// Workers imports at once. Results are in input order.
func (l *Library) Import(ctx context.Context, paths []string) []ImportResult {
	results := make([]ImportResult, len(paths))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(l.workers)
	for i, path := range paths {
		i, path := i, path
		results[i].Path = path
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				results[i].Err = err
				return nil
			}
			book, fallback, err := l.importOne(ctx, path)
			results[i].Book, results[i].Fallback, results[i].Err = book, fallback, err

			switch {
			case err != nil:
				metrics.RecordImport(metrics.ImportFailed)
				l.logger.Warn("import failed", "path", path, "error", err)
			case fallback:
				metrics.RecordImport(metrics.ImportFallback)
			default:
				metrics.RecordImport(metrics.ImportOK)
			}
			return nil
		})
	}
	_ = g.Wait()

	return results
}

func (l *Library) importOne(ctx context.Context, path string) (*Book, bool, error) {
	fileName, err := l.files.SaveBook(path)
	if err != nil {
		return nil, false, err
	}
	stored := l.files.BookPath(fileName)

	fallback := false
	md, err := epub.ReadMetadata(stored)
	if err != nil {
		if errors.Is(err, archive.ErrNotAnArchive) {
			_ = remove(stored)
			return nil, false, fmt.Errorf("%s: %w", path, err)
		}
		l.logger.Warn("failed to read package metadata, guessing from file name",
			"path", path, "error", err)
		md = &epub.Metadata{}
		fallback = true
	}

	book := &Book{
		ID:        uuid.NewString(),
		Title:     md.Title,
		Author:    md.Author,
		Genre:     genreFor(md.Subjects),
		FileName:  fileName,
		DateAdded: l.now(),
	}
	if book.Title == "" || book.Author == "" {
		title, author := guessMetadata(fileName)
		if book.Title == "" {
			book.Title = title
		}
		if book.Author == "" {
			book.Author = author
		}
	}

	if len(md.Cover) > 0 {
		book.CoverFile = l.saveCover(book.ID, md)
	}

	if err := l.db.insertBook(ctx, book); err != nil {
		_ = remove(stored)
		if book.CoverFile != "" {
			_ = remove(l.files.CoverPath(book.CoverFile))
		}
		return nil, false, fmt.Errorf("saving book: %w", err)
	}

	l.logger.Info("imported book", "book_id", book.ID, "title", book.Title, "file", fileName)
	return book, fallback, nil
}

// saveCover stores the cover thumbnail and returns its file name, or "" when
// it could not be written.
func (l *Library) saveCover(id string, md *epub.Metadata) string {
	thumb, err := l.thumbs.Make(md.Cover, md.CoverExt)
	if err != nil {
		l.logger.Warn("failed to make cover thumbnail", "book_id", id, "error", err)
		return ""
	}
	if thumb.Warning != "" {
		l.logger.Debug("storing cover as-is", "book_id", id, "reason", thumb.Warning)
	}

	name, err := l.files.SaveCover(id, thumb.Data, thumb.Ext)
	if err != nil {
		l.logger.Warn("failed to save cover", "book_id", id, "error", err)
		return ""
	}
	return name
}
