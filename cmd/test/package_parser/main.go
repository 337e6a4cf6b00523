// Test program for package document and nav parsing
//
// Usage:
//
//	go run ./cmd/test/package_parser/main.go <epub-file-path>
//
// Example:
//
//	go run ./cmd/test/package_parser/main.go ~/Downloads/sample.epub
//
// This program will:
// - Open the EPUB file and locate the package document
// - Display metadata (title, author, subjects)
// - List manifest items
// - Show spine order with nav titles
// - Show the detected cover image

package main

import (
	"fmt"
	"os"

	"github.com/yuanying/epubshelf/internal/epub"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintf(os.Stderr, "Usage: %s <epub-file-path>\n", os.Args[0])
		os.Exit(1)
	}

	epubPath := os.Args[1]

	fmt.Println("=== EPUB Package Parser Test ===")
	fmt.Printf("File: %s\n\n", epubPath)

	book, err := epub.Open(epubPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening EPUB: %v\n", err)
		os.Exit(1)
	}
	defer book.Close()

	fmt.Printf("✓ EPUB opened successfully\n")
	fmt.Printf("Package document: %s\n", book.OPFPath())
	fmt.Printf("Base path:        %q\n\n", book.BasePath())

	if err := book.ValidateMimetype(); err != nil {
		fmt.Printf("⚠ mimetype: %v\n\n", err)
	}

	doc := book.Document()
	md := book.Metadata()

	if doc.SyntaxError != nil {
		fmt.Printf("⚠ package document: %v\n\n", doc.SyntaxError)
	}

	fmt.Println("--- Metadata ---")
	fmt.Printf("Title:  %s\n", md.Title)
	fmt.Printf("Author: %s\n", md.Author)
	if len(md.Subjects) > 0 {
		fmt.Println("Subjects:")
		for i, subject := range md.Subjects {
			fmt.Printf("  %d. %s\n", i+1, subject)
		}
	}

	fmt.Printf("\n--- Manifest ---\n")
	fmt.Printf("Total items: %d\n\n", len(doc.Manifest))
	for _, id := range doc.ManifestOrder {
		item := doc.Manifest[id]
		if item.Properties != "" {
			fmt.Printf("  %s: %s (properties: %s)\n", id, item.Href, item.Properties)
		} else {
			fmt.Printf("  %s: %s\n", id, item.Href)
		}
	}

	if md.CoverHref != "" {
		fmt.Printf("\nCover Image: %s (%s, %d bytes)\n", md.CoverHref, md.CoverExt, len(md.Cover))
	} else {
		fmt.Println("\nCover Image: (not found)")
	}

	pkg := book.Package()

	fmt.Printf("\n--- Spine ---\n")
	fmt.Printf("Total items: %d (declared %d)\n\n", len(pkg.SpineHrefs), len(doc.Spine))
	for i, href := range pkg.SpineHrefs {
		title, ok := pkg.Title(href)
		if !ok {
			title = "(no nav title)"
		}
		fmt.Printf("  %d. %s - %s\n", i+1, href, title)
	}

	fmt.Printf("\n--- Navigation ---\n")
	if pkg.NavHref != "" {
		fmt.Printf("Nav document: %s (%d entries)\n", pkg.NavHref, len(pkg.NavTitles))
	} else {
		fmt.Println("Nav document: (not found)")
	}
	if pkg.NCXHref != "" {
		fmt.Printf("NCX: %s (not parsed)\n", pkg.NCXHref)
	}

	fmt.Println("\n=== Test Completed Successfully ===")
}
