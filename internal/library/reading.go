package library

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/yuanying/epubshelf/internal/epub"
)

// Chapter is one readable spine document.
type Chapter struct {
	// Href is the path of the document relative to ContentRoot, with "/"
	// separators.
	Href  string
	Path  string
	Title string
}

// Reading is an extracted book ready to be displayed.
type Reading struct {
	Book *Book
	// Root is the extraction directory of the book.
	Root string
	// ContentRoot is the directory of the package document; embedded
	// resources resolve against it.
	ContentRoot string
	Chapters    []Chapter
	// NCXOnly is set when the book has a legacy NCX table of contents but no
	// nav document, so titles come from the chapters themselves.
	NCXOnly bool
}

// OpenReading extracts the book if needed and returns its chapters in spine
// order. Spine documents missing from the extracted tree are skipped.
func (l *Library) OpenReading(ctx context.Context, id string) (*Reading, error) {
	b, err := l.db.getBook(ctx, id)
	if err != nil {
		return nil, err
	}

	root, err := l.extractBook(b)
	if err != nil {
		return nil, err
	}

	pkg, err := epub.Assemble(l.files.BookPath(b.FileName))
	if err != nil {
		return nil, err
	}
	return newReading(b, root, pkg), nil
}

// Extract returns the extraction directory of the book, extracting it first
// when needed.
func (l *Library) Extract(ctx context.Context, id string) (string, error) {
	b, err := l.db.getBook(ctx, id)
	if err != nil {
		return "", err
	}
	return l.extractBook(b)
}

// extractBook shares one extraction between concurrent callers for the same
// book.
func (l *Library) extractBook(b *Book) (string, error) {
	v, err, _ := l.extract.Do(b.ID, func() (any, error) {
		return l.cache.EnsureExtracted(l.files.BookPath(b.FileName), b.ID)
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

func newReading(b *Book, root string, pkg *epub.Package) *Reading {
	r := &Reading{
		Book:        b,
		Root:        root,
		ContentRoot: pkg.ContentRoot(root),
		Chapters:    []Chapter{},
		NCXOnly:     pkg.NavHref == "" && pkg.NCXHref != "",
	}

	files := pkg.SpineFiles(root)
	for i, href := range pkg.SpineHrefs {
		file := files[i]
		if file == "" {
			continue
		}
		if _, err := os.Stat(file); err != nil {
			continue
		}
		rel, err := filepath.Rel(r.ContentRoot, file)
		if err != nil {
			continue
		}
		r.Chapters = append(r.Chapters, Chapter{
			Href:  filepath.ToSlash(rel),
			Path:  file,
			Title: chapterTitle(pkg, href, file),
		})
	}
	return r
}

// chapterTitle picks the nav title, else the document's own title, else the
// file name with underscores turned into spaces.
func chapterTitle(pkg *epub.Package, href, file string) string {
	if title, ok := pkg.Title(href); ok {
		return title
	}
	if data, err := os.ReadFile(file); err == nil {
		if title := epub.ChapterTitle(data); title != "" {
			return title
		}
	}
	base := filepath.Base(file)
	return strings.ReplaceAll(strings.TrimSuffix(base, filepath.Ext(base)), "_", " ")
}
