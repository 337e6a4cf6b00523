// Package epubtest builds EPUB archives for tests.
package epubtest

import (
	"archive/zip"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// File is a single archive entry. Directory entries end in "/".
type File struct {
	Name  string
	Body  string
	Store bool
}

// Chapter is a spine document of a generated book.
type Chapter struct {
	ID    string
	Href  string // relative to the package document
	Title string // nav title, omitted from the nav when empty
	Body  string // full XHTML document; generated from Title when empty
}

// Book describes a generated EPUB 3 book with its package document at
// OEBPS/content.opf.
type Book struct {
	Title    string
	Author   string
	Subjects []string
	Chapters []Chapter

	// CoverHref, when set, adds a cover-image manifest item with CoverData.
	CoverHref string
	CoverData []byte

	// NoNav leaves out the navigation document.
	NoNav bool
	// Extra entries appended after the generated ones.
	Extra []File
}

// DefaultBook returns a three chapter book with a nav document.
func DefaultBook() Book {
	return Book{
		Title:    "Test Book",
		Author:   "Jane Doe",
		Subjects: []string{"Fiction", "Mystery"},
		Chapters: []Chapter{
			{ID: "c1", Href: "text/ch1.xhtml", Title: "Chapter One"},
			{ID: "c2", Href: "text/ch2.xhtml", Title: "Chapter Two"},
			{ID: "c3", Href: "text/ch3.xhtml", Title: "Chapter Three"},
		},
	}
}

// Files returns the archive entries of b in write order.
func (b Book) Files() []File {
	var manifest, spine, nav strings.Builder

	for _, ch := range b.Chapters {
		fmt.Fprintf(&manifest, "    <item id=%q href=%q media-type=\"application/xhtml+xml\"/>\n", ch.ID, ch.Href)
		fmt.Fprintf(&spine, "    <itemref idref=%q/>\n", ch.ID)
		if ch.Title != "" {
			fmt.Fprintf(&nav, "      <li><a href=\"../%s\">%s</a></li>\n", ch.Href, ch.Title)
		}
	}
	if !b.NoNav {
		manifest.WriteString("    <item id=\"nav\" href=\"nav/nav.xhtml\" media-type=\"application/xhtml+xml\" properties=\"nav\"/>\n")
	}
	if b.CoverHref != "" {
		fmt.Fprintf(&manifest, "    <item id=\"cover-image\" href=%q media-type=\"image/jpeg\" properties=\"cover-image\"/>\n", b.CoverHref)
	}

	var metadata strings.Builder
	if b.Title != "" {
		fmt.Fprintf(&metadata, "    <dc:title>%s</dc:title>\n", b.Title)
	}
	if b.Author != "" {
		fmt.Fprintf(&metadata, "    <dc:creator>%s</dc:creator>\n", b.Author)
	}
	for _, s := range b.Subjects {
		fmt.Fprintf(&metadata, "    <dc:subject>%s</dc:subject>\n", s)
	}

	files := []File{
		{Name: "mimetype", Body: "application/epub+zip", Store: true},
		{Name: "META-INF/", Store: true},
		{Name: "META-INF/container.xml", Body: Container("OEBPS/content.opf")},
		{Name: "OEBPS/content.opf", Body: fmt.Sprintf(`<?xml version="1.0" encoding="UTF-8"?>
<package xmlns="http://www.idpf.org/2007/opf" version="3.0" unique-identifier="uid">
  <metadata xmlns:dc="http://purl.org/dc/elements/1.1/">
    <dc:identifier id="uid">urn:uuid:epubtest</dc:identifier>
%s  </metadata>
  <manifest>
%s  </manifest>
  <spine>
%s  </spine>
</package>`, metadata.String(), manifest.String(), spine.String())},
	}

	if !b.NoNav {
		files = append(files, File{Name: "OEBPS/nav/nav.xhtml", Body: fmt.Sprintf(`<?xml version="1.0" encoding="UTF-8"?>
<html xmlns="http://www.w3.org/1999/xhtml" xmlns:epub="http://www.idpf.org/2007/ops">
<head><title>Contents</title></head>
<body>
  <nav epub:type="toc">
    <ol>
%s    </ol>
  </nav>
</body>
</html>`, nav.String())})
	}

	for _, ch := range b.Chapters {
		body := ch.Body
		if body == "" {
			body = ChapterXHTML(ch.Title, "Text of "+ch.ID)
		}
		files = append(files, File{Name: "OEBPS/" + ch.Href, Body: body})
	}

	if b.CoverHref != "" {
		files = append(files, File{Name: "OEBPS/" + b.CoverHref, Body: string(b.CoverData), Store: true})
	}

	return append(files, b.Extra...)
}

// Container returns a container.xml pointing at opfPath.
func Container(opfPath string) string {
	return fmt.Sprintf(`<?xml version="1.0" encoding="UTF-8"?>
<container version="1.0" xmlns="urn:oasis:names:tc:opendocument:xmlns:container">
  <rootfiles>
    <rootfile full-path=%q media-type="application/oebps-package+xml"/>
  </rootfiles>
</container>`, opfPath)
}

// ChapterXHTML returns an XHTML content document.
func ChapterXHTML(title, text string) string {
	return fmt.Sprintf(`<?xml version="1.0" encoding="UTF-8"?>
<html xmlns="http://www.w3.org/1999/xhtml">
<head><title>%s</title></head>
<body><h1>%s</h1><p>%s</p></body>
</html>`, title, title, text)
}

// Write writes b as dir/name and returns the file path.
func Write(t testing.TB, dir, name string, b Book) string {
	t.Helper()
	path := filepath.Join(dir, name)
	WriteZip(t, path, b.Files())
	return path
}

// WriteZip writes files to a ZIP archive at path.
func WriteZip(t testing.TB, path string, files []File) {
	t.Helper()
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("failed to create test epub: %v", err)
	}
	defer f.Close()

	w := zip.NewWriter(f)
	for _, file := range files {
		method := zip.Deflate
		if file.Store {
			method = zip.Store
		}
		fw, err := w.CreateHeader(&zip.FileHeader{Name: file.Name, Method: method})
		if err != nil {
			t.Fatalf("failed to create %s: %v", file.Name, err)
		}
		if _, err := fw.Write([]byte(file.Body)); err != nil {
			t.Fatalf("failed to write %s: %v", file.Name, err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("failed to close test epub: %v", err)
	}
}
