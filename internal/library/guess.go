package library

import (
	"path/filepath"
	"strings"
)

const (
	unknownAuthor = "Unknown"
	defaultGenre  = "Unsorted"
)

// guessMetadata derives a title and author from a file name of the form
// "Author - Title.epub". Other names yield the base name and an unknown
// author.
func guessMetadata(fileName string) (title, author string) {
	base := strings.TrimSuffix(fileName, filepath.Ext(fileName))

	if left, right, ok := strings.Cut(base, " - "); ok {
		left, right = strings.TrimSpace(left), strings.TrimSpace(right)
		if left != "" && right != "" {
			return right, left
		}
	}
	return strings.TrimSpace(base), unknownAuthor
}

// genreFor picks the first subject as genre.
func genreFor(subjects []string) string {
	for _, s := range subjects {
		if s = strings.TrimSpace(s); s != "" {
			return s
		}
	}
	return defaultGenre
}
