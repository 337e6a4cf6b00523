// Package archive implements a minimal read-only ZIP reader: central directory
// indexing plus stored/deflate entry decompression. ZIP64 and encrypted
// archives are not supported.
package archive

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"unicode/utf8"
)

const (
	directoryEndLen    = 22
	directoryHeaderLen = 46
	fileHeaderLen      = 30

	directoryEndSignature    = 0x06054b50
	directoryHeaderSignature = 0x02014b50
	fileHeaderSignature      = 0x04034b50

	// maxCommentLen is the largest comment a ZIP trailer can carry.
	maxCommentLen = 65535
	// maxDirectoryEndSearch covers the EOCD record plus a maximal comment.
	maxDirectoryEndSearch = directoryEndLen + maxCommentLen
)

var (
	ErrNotAnArchive           = errors.New("not a zip archive")
	ErrTruncated              = errors.New("zip archive truncated")
	ErrUnsupportedCompression = errors.New("unsupported compression method")
	ErrEntryNotFound          = errors.New("entry not found in archive")
	ErrEntryTooLarge          = errors.New("entry exceeds decompression limit")
)

// Method is a ZIP compression method identifier.
type Method uint16

// Compression methods understood by ReadFile.
const (
	Stored  Method = 0
	Deflate Method = 8
)

func (m Method) String() string {
	switch m {
	case Stored:
		return "stored"
	case Deflate:
		return "deflate"
	default:
		return fmt.Sprintf("method(%d)", uint16(m))
	}
}

// Entry describes one central directory record.
type Entry struct {
	Name              string
	Method            Method
	LocalHeaderOffset uint32
	CompressedSize    uint32
	UncompressedSize  uint32
}

// IsDir reports whether the entry names a directory.
func (e *Entry) IsDir() bool {
	return len(e.Name) > 0 && e.Name[len(e.Name)-1] == '/'
}

// Archive is an indexed ZIP file. It owns its underlying handle and is not
// safe for concurrent use.
type Archive struct {
	r       io.ReaderAt
	size    int64
	closer  io.Closer
	entries map[string]*Entry
	names   []string
}

// Open opens the ZIP file at path and indexes its central directory.
// The caller must call Close when done.
func Open(path string) (*Archive, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open archive: %w", err)
	}

	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to stat archive: %w", err)
	}

	a, err := NewReader(f, fi.Size())
	if err != nil {
		f.Close()
		return nil, err
	}
	a.closer = f

	return a, nil
}

// NewReader indexes a ZIP archive of the given size read from r.
// The caller keeps ownership of r.
func NewReader(r io.ReaderAt, size int64) (*Archive, error) {
	a := &Archive{
		r:       r,
		size:    size,
		entries: make(map[string]*Entry),
	}

	if err := a.readCentralDirectory(); err != nil {
		return nil, err
	}

	return a, nil
}

// Close releases the underlying file when the archive was created by Open.
func (a *Archive) Close() error {
	if a.closer == nil {
		return nil
	}
	err := a.closer.Close()
	a.closer = nil
	return err
}

// Entry looks up an entry by exact, case-sensitive name.
func (a *Archive) Entry(name string) (*Entry, bool) {
	e, ok := a.entries[name]
	return e, ok
}

// Names returns entry names in central directory order. A name recorded more
// than once is listed at its first position.
func (a *Archive) Names() []string {
	out := make([]string, len(a.names))
	copy(out, a.names)
	return out
}

// Len returns the number of distinct entry names.
func (a *Archive) Len() int {
	return len(a.names)
}

// readCentralDirectory locates the EOCD record and walks the central directory.
func (a *Archive) readCentralDirectory() error {
	eocd, err := a.findDirectoryEnd()
	if err != nil {
		return err
	}

	cdSize := binary.LittleEndian.Uint32(eocd[12:16])
	cdOffset := binary.LittleEndian.Uint32(eocd[16:20])

	if int64(cdOffset)+int64(cdSize) > a.size {
		return fmt.Errorf("central directory at %d+%d beyond end of file (%d bytes): %w",
			cdOffset, cdSize, a.size, ErrTruncated)
	}

	cd := make([]byte, cdSize)
	if err := readFullAt(a.r, cd, int64(cdOffset)); err != nil {
		return fmt.Errorf("failed to read central directory: %w", err)
	}

	for cursor := 0; cursor+directoryHeaderLen <= len(cd); {
		h := cd[cursor:]
		if binary.LittleEndian.Uint32(h[0:4]) != directoryHeaderSignature {
			break
		}

		nameLen := int(binary.LittleEndian.Uint16(h[28:30]))
		extraLen := int(binary.LittleEndian.Uint16(h[30:32]))
		commentLen := int(binary.LittleEndian.Uint16(h[32:34]))

		nameEnd := directoryHeaderLen + nameLen
		if nameEnd > len(h) {
			return fmt.Errorf("central directory name at %d overruns directory: %w", cursor, ErrTruncated)
		}
		nameBytes := h[directoryHeaderLen:nameEnd]
		if !utf8.Valid(nameBytes) {
			return fmt.Errorf("central directory name at %d is not valid UTF-8: %w", cursor, ErrTruncated)
		}

		e := &Entry{
			Name:              string(nameBytes),
			Method:            Method(binary.LittleEndian.Uint16(h[10:12])),
			CompressedSize:    binary.LittleEndian.Uint32(h[20:24]),
			UncompressedSize:  binary.LittleEndian.Uint32(h[24:28]),
			LocalHeaderOffset: binary.LittleEndian.Uint32(h[42:46]),
		}
		if _, dup := a.entries[e.Name]; !dup {
			a.names = append(a.names, e.Name)
		}
		a.entries[e.Name] = e

		cursor += nameEnd + extraLen + commentLen
	}

	if len(a.entries) == 0 {
		return fmt.Errorf("central directory has no entries: %w", ErrTruncated)
	}

	return nil
}

// findDirectoryEnd returns the 22-byte EOCD record. The trailer may be
// followed by a comment, so the tail of the file is scanned backwards.
func (a *Archive) findDirectoryEnd() ([]byte, error) {
	if a.size < directoryEndLen {
		return nil, ErrNotAnArchive
	}

	tailLen := int64(maxDirectoryEndSearch)
	if a.size < tailLen {
		tailLen = a.size
	}

	tail := make([]byte, tailLen)
	if err := readFullAt(a.r, tail, a.size-tailLen); err != nil {
		return nil, fmt.Errorf("failed to read archive trailer: %w", err)
	}

	if i := findDirectoryEndInBlock(tail); i >= 0 {
		return tail[i : i+directoryEndLen], nil
	}

	return nil, ErrNotAnArchive
}

// findDirectoryEndInBlock returns the offset of the EOCD record in b, or -1.
// A record whose comment ends exactly at the end of b wins; the signature
// bytes can also occur inside a comment. Failing that, the match closest to
// the end whose record and comment fit in b is used, which tolerates trailing
// garbage after the archive. As a last resort the match closest to the end
// whose 22-byte record fits is used even if its comment length overruns b.
func findDirectoryEndInBlock(b []byte) int {
	fitting, last := -1, -1
	for i := len(b) - directoryEndLen; i >= 0; i-- {
		if binary.LittleEndian.Uint32(b[i:i+4]) != directoryEndSignature {
			continue
		}
		if last < 0 {
			last = i
		}
		end := i + directoryEndLen + int(binary.LittleEndian.Uint16(b[i+20:i+22]))
		if end == len(b) {
			return i
		}
		if end < len(b) && fitting < 0 {
			fitting = i
		}
	}
	if fitting >= 0 {
		return fitting
	}
	return last
}

// readFullAt fills buf from r at off. A short read caused by end of input is
// reported as ErrTruncated.
func readFullAt(r io.ReaderAt, buf []byte, off int64) error {
	n, err := r.ReadAt(buf, off)
	if n == len(buf) {
		return nil
	}
	if err == nil || errors.Is(err, io.EOF) {
		return ErrTruncated
	}
	return err
}
