package library

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// maxNameAttempts bounds the "name (N).ext" search.
const maxNameAttempts = 10000

// FileStore keeps imported book files and cover thumbnails.
type FileStore struct {
	EbooksDir string
	CoversDir string
}

func (s FileStore) ensureDirs() error {
	for _, dir := range []string{s.EbooksDir, s.CoversDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("creating directory: %w", err)
		}
	}
	return nil
}

// BookPath returns the stored location of fileName.
func (s FileStore) BookPath(fileName string) string {
	return filepath.Join(s.EbooksDir, fileName)
}

// CoverPath returns the stored location of a cover file.
func (s FileStore) CoverPath(coverFile string) string {
	return filepath.Join(s.CoversDir, coverFile)
}

// SaveBook copies src into the ebooks directory under a name derived from its
// base name that no other file uses: "name.epub", then "name (2).epub" and so
// on. The name is reserved with O_EXCL so concurrent imports never collide.
func (s FileStore) SaveBook(src string) (string, error) {
	if err := s.ensureDirs(); err != nil {
		return "", err
	}

	in, err := os.Open(src)
	if err != nil {
		return "", fmt.Errorf("opening %s: %w", src, err)
	}
	defer in.Close()

	out, name, err := reserveFile(s.EbooksDir, filepath.Base(src))
	if err != nil {
		return "", err
	}

	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		_ = os.Remove(out.Name())
		return "", fmt.Errorf("copying book: %w", err)
	}
	if err := out.Close(); err != nil {
		_ = os.Remove(out.Name())
		return "", fmt.Errorf("closing book: %w", err)
	}
	return name, nil
}

// SaveCover writes cover data as <id>.<ext>.
func (s FileStore) SaveCover(id string, data []byte, ext string) (string, error) {
	if err := s.ensureDirs(); err != nil {
		return "", err
	}
	if ext == "" {
		ext = "jpg"
	}
	name := id + "." + ext

	tmp, err := os.CreateTemp(s.CoversDir, ".cover-*")
	if err != nil {
		return "", fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return "", fmt.Errorf("writing cover: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return "", fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Rename(tmpPath, s.CoverPath(name)); err != nil {
		_ = os.Remove(tmpPath)
		return "", fmt.Errorf("renaming cover: %w", err)
	}
	return name, nil
}

// remove deletes path. A missing file is not an error.
func remove(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

func reserveFile(dir, proposed string) (*os.File, string, error) {
	ext := filepath.Ext(proposed)
	name := strings.TrimSuffix(proposed, ext)
	ext = strings.TrimPrefix(ext, ".")
	if ext == "" {
		ext = "epub"
	}

	for i := 1; i <= maxNameAttempts; i++ {
		candidate := fmt.Sprintf("%s.%s", name, ext)
		if i > 1 {
			candidate = fmt.Sprintf("%s (%d).%s", name, i, ext)
		}
		f, err := os.OpenFile(filepath.Join(dir, candidate), os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
		if err == nil {
			return f, candidate, nil
		}
		if !errors.Is(err, os.ErrExist) {
			return nil, "", fmt.Errorf("creating %s: %w", candidate, err)
		}
	}
	return nil, "", fmt.Errorf("no free file name for %s", proposed)
}
