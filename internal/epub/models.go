package epub

import (
	"strings"
)

// PackageDocument is the parsed OPF package document.
type PackageDocument struct {
	Metadata      Metadata
	Manifest      map[string]ManifestItem // id -> item
	ManifestOrder []string                // ids in document order
	Spine         []string                // itemref idrefs in document order
	TOCID         string                  // spine toc attribute (EPUB 2 NCX item id)

	// SyntaxError is the XML error that ended parsing early, nil when the
	// whole document was read.
	SyntaxError error
}

// Metadata is the library-facing subset of the package metadata.
type Metadata struct {
	Title    string
	Author   string
	Subjects []string

	// CoverHref is the manifest href of the detected cover image, relative to
	// the package document. Empty when no cover was found.
	CoverHref string
	// CoverExt is the cover file extension without the dot, "jpg" by default.
	CoverExt string
	// Cover holds the cover image bytes. Only ReadMetadata and Book.Metadata
	// fill it in.
	Cover []byte

	// CoverID is the EPUB 2.0 cover image manifest item ID (from meta name="cover")
	CoverID string
}

// ManifestItem represents an item in the manifest
type ManifestItem struct {
	ID         string
	Href       string
	MediaType  string
	Properties string // verbatim properties attribute
}

// HasProperty reports whether prop is one of the item's space-separated
// properties.
func (m ManifestItem) HasProperty(prop string) bool {
	for _, p := range strings.Fields(m.Properties) {
		if p == prop {
			return true
		}
	}
	return false
}

// Package is the resolved reading structure of a book.
type Package struct {
	// BasePath is the directory of the package document inside the archive,
	// "" when the package document sits at the archive root.
	BasePath string
	// SpineHrefs are manifest hrefs in reading order, relative to BasePath.
	SpineHrefs []string
	// NavHref is the archive path of the navigation document, if any.
	NavHref string
	// NavTitles maps nav anchor hrefs, as written in the nav document, to
	// their titles.
	NavTitles map[string]string
	// NavOrder lists the NavTitles keys in the order they appear in the nav
	// document.
	NavOrder []string
	// NCXHref is the archive path of a legacy NCX table of contents. It is
	// recorded but never parsed.
	NCXHref string
}
