package epub

import (
	"fmt"
	"net/url"
	"path"
	"strings"
)

// packageHandler collects manifest, spine and metadata in one pass over the
// package document.
type packageHandler struct {
	doc *PackageDocument
	buf strings.Builder
}

func (h *packageHandler) startElement(name string, attrs map[string]string) error {
	h.buf.Reset()

	switch localName(name) {
	case "item":
		id, okID := attrs["id"]
		href, okHref := attrs["href"]
		if !okID || !okHref {
			return nil
		}
		if _, dup := h.doc.Manifest[id]; !dup {
			h.doc.ManifestOrder = append(h.doc.ManifestOrder, id)
		}
		h.doc.Manifest[id] = ManifestItem{
			ID:         id,
			Href:       href,
			MediaType:  attrs["media-type"],
			Properties: attrs["properties"],
		}
	case "itemref":
		if idref, ok := attrs["idref"]; ok {
			h.doc.Spine = append(h.doc.Spine, idref)
		}
	case "spine":
		h.doc.TOCID = attrs["toc"]
	case "meta":
		// EPUB 2.0 cover: <meta name="cover" content="item-id"/>
		if attrs["name"] == "cover" && attrs["content"] != "" && h.doc.Metadata.CoverID == "" {
			h.doc.Metadata.CoverID = attrs["content"]
		}
	}
	return nil
}

func (h *packageHandler) text(data []byte) {
	h.buf.Write(data)
}

func (h *packageHandler) endElement(name string) {
	text := strings.TrimSpace(h.buf.String())
	h.buf.Reset()
	if text == "" {
		return
	}

	md := &h.doc.Metadata
	local := localName(name)
	switch {
	case strings.HasSuffix(local, "title"):
		md.Title = text
	case strings.HasSuffix(local, "creator") || local == "author":
		md.Author = text
	case strings.HasSuffix(local, "subject"):
		md.Subjects = append(md.Subjects, text)
	}
}

// ParsePackage parses an OPF package document. Manifest hrefs are kept as
// written; use ResolveHref to map them to archive paths.
//
// An XML syntax error stops the pass without failing it: the manifest, spine
// and metadata read up to that point are kept and the error is recorded in
// SyntaxError.
func ParsePackage(content []byte) (*PackageDocument, error) {
	doc := &PackageDocument{
		Manifest: make(map[string]ManifestItem),
		Metadata: Metadata{
			Subjects: []string{},
			CoverExt: defaultCoverExt,
		},
	}

	h := &packageHandler{doc: doc}
	if err := walkXML(content, h); err != nil {
		doc.SyntaxError = fmt.Errorf("failed to parse OPF XML: %w", err)
	}

	if c := doc.DetectCover(); c != nil {
		doc.Metadata.CoverHref = c.Href
		doc.Metadata.CoverExt = coverExt(c.Href)
	}

	return doc, nil
}

// SpineItems maps the spine through the manifest. Idrefs without a manifest
// entry are skipped.
func (doc *PackageDocument) SpineItems() []ManifestItem {
	items := make([]ManifestItem, 0, len(doc.Spine))
	for _, id := range doc.Spine {
		if item, ok := doc.Manifest[id]; ok {
			items = append(items, item)
		}
	}
	return items
}

// NavItem returns the first manifest item flagged with the "nav" property.
func (doc *PackageDocument) NavItem() (ManifestItem, bool) {
	for _, id := range doc.ManifestOrder {
		if item := doc.Manifest[id]; item.HasProperty("nav") {
			return item, true
		}
	}
	return ManifestItem{}, false
}

// NCXItem returns the legacy NCX manifest item named by the spine toc
// attribute, or failing that the first item with the NCX media type.
func (doc *PackageDocument) NCXItem() (ManifestItem, bool) {
	if item, ok := doc.Manifest[doc.TOCID]; ok && doc.TOCID != "" {
		return item, true
	}
	for _, id := range doc.ManifestOrder {
		if item := doc.Manifest[id]; item.MediaType == "application/x-dtbncx+xml" {
			return item, true
		}
	}
	return ManifestItem{}, false
}

// BasePath returns the directory of an archive path, "" for the root.
func BasePath(p string) string {
	dir := path.Dir(p)
	if dir == "." || dir == "/" {
		return ""
	}
	return dir
}

// ResolveHref maps an href relative to base (an archive directory) to an
// archive path. Fragments are dropped and percent-escapes decoded.
func ResolveHref(base, href string) string {
	href, _ = splitFragment(href)
	if unescaped, err := url.PathUnescape(href); err == nil {
		href = unescaped
	}
	if href == "" {
		return ""
	}
	joined := path.Join(base, href)
	return strings.TrimPrefix(joined, "/")
}

// splitFragment splits a source path into the path and fragment identifier.
func splitFragment(src string) (p, fragment string) {
	if src == "" {
		return "", ""
	}
	parts := strings.SplitN(src, "#", 2)
	p = parts[0]
	if len(parts) == 2 {
		fragment = parts[1]
	}
	return p, fragment
}
