package epub

import (
	"errors"
	"fmt"
	"strings"

	"github.com/yuanying/epubshelf/internal/archive"
)

// ContainerPath is the fixed location of the EPUB container document.
const ContainerPath = "META-INF/container.xml"

// FileReader reads archive entries by exact name. *archive.Archive
// implements it.
type FileReader interface {
	ReadFile(name string) ([]byte, error)
}

// containerHandler records the full-path of the first rootfile element.
type containerHandler struct {
	fullPath string
}

func (h *containerHandler) startElement(name string, attrs map[string]string) error {
	if !strings.HasSuffix(localName(name), "rootfile") {
		return nil
	}
	p, ok := attrs["full-path"]
	if !ok {
		p, ok = attrs["fullpath"]
	}
	if !ok {
		return nil
	}
	h.fullPath = p
	return errStopWalk
}

func (h *containerHandler) text([]byte)       {}
func (h *containerHandler) endElement(string) {}

// LocateContainer reads META-INF/container.xml and returns the package
// document path it points at.
func LocateContainer(r FileReader) (string, error) {
	content, err := r.ReadFile(ContainerPath)
	if err != nil {
		if errors.Is(err, archive.ErrEntryNotFound) {
			return "", ErrMissingContainer
		}
		return "", fmt.Errorf("failed to read container.xml: %w", err)
	}

	return parseContainer(content)
}

func parseContainer(content []byte) (string, error) {
	var h containerHandler
	err := walkXML(content, &h)
	if h.fullPath != "" {
		return h.fullPath, nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to parse container.xml: %v: %w", err, ErrInvalid)
	}
	return "", fmt.Errorf("no rootfile full-path in container.xml: %w", ErrInvalid)
}
