package epub

import (
	"path"
	"strings"
)

const defaultCoverExt = "jpg"

// CoverInfo holds information about the detected cover image.
type CoverInfo struct {
	ManifestID      string
	Href            string
	MediaType       string
	DetectionMethod string // "properties", "filename", "meta"
}

// DetectCover detects the cover image from the manifest. Methods are tried in
// priority order, in manifest document order:
//  1. properties="cover-image" (EPUB 3.0)
//  2. href containing "cover" (case-insensitive) with a jpg/jpeg/png extension
//  3. meta name="cover" (EPUB 2.0)
//
// Returns nil if no cover image is found.
func (doc *PackageDocument) DetectCover() *CoverInfo {
	for _, id := range doc.ManifestOrder {
		item := doc.Manifest[id]
		if item.HasProperty("cover-image") {
			return newCoverInfo(item, "properties")
		}
	}

	for _, id := range doc.ManifestOrder {
		item := doc.Manifest[id]
		if strings.Contains(strings.ToLower(item.Href), "cover") && isCoverImageExt(item.Href) {
			return newCoverInfo(item, "filename")
		}
	}

	if doc.Metadata.CoverID != "" {
		if item, ok := doc.Manifest[doc.Metadata.CoverID]; ok {
			return newCoverInfo(item, "meta")
		}
	}

	return nil
}

func newCoverInfo(item ManifestItem, method string) *CoverInfo {
	return &CoverInfo{
		ManifestID:      item.ID,
		Href:            item.Href,
		MediaType:       item.MediaType,
		DetectionMethod: method,
	}
}

func isCoverImageExt(href string) bool {
	p, _ := splitFragment(href)
	switch strings.ToLower(path.Ext(p)) {
	case ".jpg", ".jpeg", ".png":
		return true
	}
	return false
}

// coverExt returns the href's extension without the dot, or "jpg".
func coverExt(href string) string {
	p, _ := splitFragment(href)
	ext := strings.TrimPrefix(path.Ext(p), ".")
	if ext == "" {
		return defaultCoverExt
	}
	return ext
}
