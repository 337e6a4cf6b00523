package archive

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/klauspost/compress/flate"
)

// maxDecompressSize caps the inflated size of a single entry.
// The declared uncompressed size is only a hint, so the cap is enforced on
// the decoder output.
const maxDecompressSize = 256 * 1024 * 1024

// ReadFile returns the decompressed contents of the named entry.
func (a *Archive) ReadFile(name string) ([]byte, error) {
	e, ok := a.entries[name]
	if !ok {
		return nil, fmt.Errorf("%s: %w", name, ErrEntryNotFound)
	}

	payload, err := a.readPayload(e)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}

	switch e.Method {
	case Stored:
		return payload, nil
	case Deflate:
		data, err := inflate(payload, e.UncompressedSize, maxDecompressSize)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		return data, nil
	default:
		return nil, fmt.Errorf("%s: %v: %w", name, e.Method, ErrUnsupportedCompression)
	}
}

// readPayload returns the raw (possibly compressed) bytes of e. The local
// header's name and extra lengths may differ from the central directory's, so
// the payload offset is always computed from the local header itself.
func (a *Archive) readPayload(e *Entry) ([]byte, error) {
	var h [fileHeaderLen]byte
	if err := readFullAt(a.r, h[:], int64(e.LocalHeaderOffset)); err != nil {
		return nil, fmt.Errorf("failed to read local header: %w", err)
	}
	if binary.LittleEndian.Uint32(h[0:4]) != fileHeaderSignature {
		return nil, fmt.Errorf("bad local header signature at %d: %w", e.LocalHeaderOffset, ErrNotAnArchive)
	}

	nameLen := int64(binary.LittleEndian.Uint16(h[26:28]))
	extraLen := int64(binary.LittleEndian.Uint16(h[28:30]))
	start := int64(e.LocalHeaderOffset) + fileHeaderLen + nameLen + extraLen

	if start+int64(e.CompressedSize) > a.size {
		return nil, fmt.Errorf("entry data %d+%d beyond end of file: %w", start, e.CompressedSize, ErrTruncated)
	}

	payload := make([]byte, e.CompressedSize)
	if err := readFullAt(a.r, payload, start); err != nil {
		return nil, fmt.Errorf("failed to read entry data: %w", err)
	}

	return payload, nil
}

// inflate decodes a raw deflate stream. The output buffer starts at
// max(declared, 2*len(compressed)) and grows geometrically when that guess is
// too small; the returned length is whatever the decoder produced.
func inflate(compressed []byte, declared uint32, limit int64) ([]byte, error) {
	if len(compressed) == 0 {
		return []byte{}, nil
	}

	hint := int64(declared)
	if c := 2 * int64(len(compressed)); c > hint {
		hint = c
	}
	if hint > limit {
		hint = limit
	}

	buf := bytes.NewBuffer(make([]byte, 0, hint))
	fr := flate.NewReader(bytes.NewReader(compressed))
	defer fr.Close()

	n, err := io.Copy(buf, io.LimitReader(fr, limit+1))
	if err != nil {
		var corrupt flate.CorruptInputError
		if errors.As(err, &corrupt) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, fmt.Errorf("deflate stream: %v: %w", err, ErrTruncated)
		}
		return nil, fmt.Errorf("deflate stream: %w", err)
	}
	if n > limit {
		return nil, fmt.Errorf("inflated past %d bytes: %w", limit, ErrEntryTooLarge)
	}

	return buf.Bytes(), nil
}
