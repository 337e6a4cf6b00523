package epub

import (
	"bytes"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// ChapterTitle returns the title of an XHTML content document: its <title>,
// else its first heading. It returns "" when neither carries text.
func ChapterTitle(content []byte) string {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(content))
	if err != nil {
		return ""
	}

	if title := normalizeSpace(doc.Find("head title").First().Text()); title != "" {
		return title
	}

	return normalizeSpace(doc.Find("h1, h2, h3").First().Text())
}

// normalizeSpace trims s and collapses internal runs of whitespace.
func normalizeSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
