package epub

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/yuanying/epubshelf/internal/archive"
	"github.com/yuanying/epubshelf/internal/cache"
)

// MimeType is the required content of the mimetype entry.
const MimeType = "application/epub+zip"

var (
	ErrMissingContainer       = errors.New("META-INF/container.xml not found")
	ErrMissingPackageDocument = errors.New("package document not found in archive")
	ErrInvalid                = errors.New("invalid EPUB structure")

	ErrInvalidMimetype    = errors.New("invalid mimetype: must be 'application/epub+zip'")
	ErrMimetypeCompressed = errors.New("mimetype must not be compressed")
	ErrMimetypeNotFound   = errors.New("mimetype file not found")
)

// Book is an opened EPUB: the archive index plus its parsed package document.
// It owns the archive handle and is not safe for concurrent use.
type Book struct {
	archive *archive.Archive
	opfPath string
	doc     *PackageDocument
}

// Open opens an EPUB file, locates its package document and parses it.
func Open(path string) (*Book, error) {
	a, err := archive.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open EPUB: %w", err)
	}

	b, err := newBook(a)
	if err != nil {
		a.Close()
		return nil, err
	}
	return b, nil
}

func newBook(a *archive.Archive) (*Book, error) {
	opfPath, err := LocateContainer(a)
	if err != nil {
		return nil, err
	}

	content, err := a.ReadFile(opfPath)
	if err != nil {
		if errors.Is(err, archive.ErrEntryNotFound) {
			return nil, fmt.Errorf("%s: %w", opfPath, ErrMissingPackageDocument)
		}
		return nil, fmt.Errorf("failed to read package document: %w", err)
	}

	doc, err := ParsePackage(content)
	if err != nil {
		return nil, err
	}

	return &Book{archive: a, opfPath: opfPath, doc: doc}, nil
}

// Close closes the underlying archive.
func (b *Book) Close() error {
	return b.archive.Close()
}

// OPFPath returns the path to the package document inside the archive.
func (b *Book) OPFPath() string {
	return b.opfPath
}

// BasePath returns the directory of the package document.
func (b *Book) BasePath() string {
	return BasePath(b.opfPath)
}

// Document returns the parsed package document.
func (b *Book) Document() *PackageDocument {
	return b.doc
}

// Archive returns the underlying archive index.
func (b *Book) Archive() *archive.Archive {
	return b.archive
}

// ReadFile reads an archive entry by exact name.
func (b *Book) ReadFile(name string) ([]byte, error) {
	return b.archive.ReadFile(name)
}

// Metadata returns title, author, subjects and the cover image bytes. A cover
// that cannot be read is reported as no cover.
func (b *Book) Metadata() *Metadata {
	md := b.doc.Metadata
	md.Subjects = append([]string{}, b.doc.Metadata.Subjects...)

	if md.CoverHref == "" {
		return &md
	}
	data, err := b.archive.ReadFile(ResolveHref(b.BasePath(), md.CoverHref))
	if err != nil {
		md.CoverHref = ""
		md.CoverExt = defaultCoverExt
		return &md
	}
	md.Cover = data
	return &md
}

// Package resolves the spine through the manifest and reads the nav
// document. Spine ids without a manifest entry are dropped; a missing or
// unreadable nav document yields an empty title map.
func (b *Book) Package() *Package {
	base := b.BasePath()
	p := &Package{
		BasePath:   base,
		SpineHrefs: []string{},
		NavTitles:  map[string]string{},
	}

	for _, item := range b.doc.SpineItems() {
		p.SpineHrefs = append(p.SpineHrefs, item.Href)
	}

	if item, ok := b.doc.NavItem(); ok {
		p.NavHref = ResolveHref(base, item.Href)
		if data, err := b.archive.ReadFile(p.NavHref); err == nil {
			p.NavTitles, p.NavOrder = parseNav(data)
		}
	}

	if item, ok := b.doc.NCXItem(); ok {
		p.NCXHref = ResolveHref(base, item.Href)
	}

	return p
}

// ValidateMimetype checks that the mimetype entry exists, is stored
// uncompressed and holds the EPUB media type.
func (b *Book) ValidateMimetype() error {
	e, ok := b.archive.Entry("mimetype")
	if !ok {
		return ErrMimetypeNotFound
	}

	if e.Method != archive.Stored {
		return ErrMimetypeCompressed
	}

	content, err := b.archive.ReadFile("mimetype")
	if err != nil {
		return fmt.Errorf("failed to read mimetype: %w", err)
	}

	if string(content) != MimeType {
		return ErrInvalidMimetype
	}

	return nil
}

// Assemble opens the EPUB at path and returns its resolved reading structure.
func Assemble(path string) (*Package, error) {
	b, err := Open(path)
	if err != nil {
		return nil, err
	}
	defer b.Close()

	return b.Package(), nil
}

// ReadMetadata returns the library metadata of the EPUB at path without
// resolving the spine or reading the nav document.
func ReadMetadata(path string) (*Metadata, error) {
	b, err := Open(path)
	if err != nil {
		return nil, err
	}
	defer b.Close()

	return b.Metadata(), nil
}

// SpinePaths returns the archive paths of the spine documents.
func (p *Package) SpinePaths() []string {
	paths := make([]string, 0, len(p.SpineHrefs))
	for _, href := range p.SpineHrefs {
		paths = append(paths, ResolveHref(p.BasePath, href))
	}
	return paths
}

// SpineFiles maps the spine documents to local files under an extraction
// root, index-aligned with SpineHrefs. A document whose path leaves the root
// maps to "".
func (p *Package) SpineFiles(root string) []string {
	files := make([]string, 0, len(p.SpineHrefs))
	for _, ap := range p.SpinePaths() {
		rel, err := cache.EntryPath(ap)
		if err != nil || rel == "" {
			files = append(files, "")
			continue
		}
		files = append(files, filepath.Join(root, filepath.FromSlash(rel)))
	}
	return files
}

// ContentRoot returns the local directory holding the package document under
// an extraction root. Chapter resources resolve against it.
func (p *Package) ContentRoot(root string) string {
	return filepath.Join(root, filepath.FromSlash(p.BasePath))
}
