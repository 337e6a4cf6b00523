package archive

import (
	"archive/zip"
	"bytes"
	"encoding/binary"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/klauspost/compress/flate"
)

// rawEntry describes an entry for buildRawZip. data is written verbatim as
// the entry payload.
type rawEntry struct {
	name             string
	method           uint16
	data             []byte
	uncompressedSize uint32
	localExtra       []byte
	centralExtra     []byte
}

// buildRawZip assembles a ZIP archive byte by byte so tests can control
// fields that archive/zip.Writer never produces.
func buildRawZip(t *testing.T, entries []rawEntry, comment []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	le := binary.LittleEndian
	offsets := make([]uint32, len(entries))

	for i, e := range entries {
		offsets[i] = uint32(buf.Len())
		binary.Write(&buf, le, uint32(fileHeaderSignature))
		binary.Write(&buf, le, uint16(20)) // version needed
		binary.Write(&buf, le, uint16(0))  // flags
		binary.Write(&buf, le, e.method)
		binary.Write(&buf, le, uint16(0)) // time
		binary.Write(&buf, le, uint16(0)) // date
		binary.Write(&buf, le, uint32(0)) // crc32
		binary.Write(&buf, le, uint32(len(e.data)))
		binary.Write(&buf, le, e.uncompressedSize)
		binary.Write(&buf, le, uint16(len(e.name)))
		binary.Write(&buf, le, uint16(len(e.localExtra)))
		buf.WriteString(e.name)
		buf.Write(e.localExtra)
		buf.Write(e.data)
	}

	cdStart := buf.Len()
	for i, e := range entries {
		binary.Write(&buf, le, uint32(directoryHeaderSignature))
		binary.Write(&buf, le, uint16(20)) // version made by
		binary.Write(&buf, le, uint16(20)) // version needed
		binary.Write(&buf, le, uint16(0))  // flags
		binary.Write(&buf, le, e.method)
		binary.Write(&buf, le, uint16(0)) // time
		binary.Write(&buf, le, uint16(0)) // date
		binary.Write(&buf, le, uint32(0)) // crc32
		binary.Write(&buf, le, uint32(len(e.data)))
		binary.Write(&buf, le, e.uncompressedSize)
		binary.Write(&buf, le, uint16(len(e.name)))
		binary.Write(&buf, le, uint16(len(e.centralExtra)))
		binary.Write(&buf, le, uint16(0)) // comment length
		binary.Write(&buf, le, uint16(0)) // disk number
		binary.Write(&buf, le, uint16(0)) // internal attrs
		binary.Write(&buf, le, uint32(0)) // external attrs
		binary.Write(&buf, le, offsets[i])
		buf.WriteString(e.name)
		buf.Write(e.centralExtra)
	}
	cdSize := buf.Len() - cdStart

	binary.Write(&buf, le, uint32(directoryEndSignature))
	binary.Write(&buf, le, uint16(0))
	binary.Write(&buf, le, uint16(0))
	binary.Write(&buf, le, uint16(len(entries)))
	binary.Write(&buf, le, uint16(len(entries)))
	binary.Write(&buf, le, uint32(cdSize))
	binary.Write(&buf, le, uint32(cdStart))
	binary.Write(&buf, le, uint16(len(comment)))
	buf.Write(comment)

	return buf.Bytes()
}

func deflateBytes(t *testing.T, data []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	fw, err := flate.NewWriter(&buf, flate.BestCompression)
	if err != nil {
		t.Fatalf("flate.NewWriter() error = %v", err)
	}
	if _, err := fw.Write(data); err != nil {
		t.Fatalf("flate write error = %v", err)
	}
	if err := fw.Close(); err != nil {
		t.Fatalf("flate close error = %v", err)
	}
	return buf.Bytes()
}

type zipFixtureFile struct {
	name   string
	method uint16
	body   string
}

// buildStdZip writes an archive with archive/zip, the way real EPUB tools do.
func buildStdZip(t *testing.T, files []zipFixtureFile, comment string) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	for _, f := range files {
		fw, err := w.CreateHeader(&zip.FileHeader{Name: f.name, Method: f.method})
		if err != nil {
			t.Fatalf("CreateHeader(%q) error = %v", f.name, err)
		}
		if _, err := fw.Write([]byte(f.body)); err != nil {
			t.Fatalf("write %q error = %v", f.name, err)
		}
	}
	if comment != "" {
		if err := w.SetComment(comment); err != nil {
			t.Fatalf("SetComment() error = %v", err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("zip close error = %v", err)
	}
	return buf.Bytes()
}

func openBytes(t *testing.T, data []byte) (*Archive, error) {
	t.Helper()
	return NewReader(bytes.NewReader(data), int64(len(data)))
}

func TestReadFile_AllEntries(t *testing.T) {
	files := []zipFixtureFile{
		{name: "mimetype", method: zip.Store, body: "application/epub+zip"},
		{name: "OEBPS/", method: zip.Store},
		{name: "OEBPS/ch1.xhtml", method: zip.Deflate, body: strings.Repeat("<p>chapter one</p>", 200)},
		{name: "OEBPS/style.css", method: zip.Deflate, body: "body { margin: 0 }"},
		{name: "OEBPS/empty.txt", method: zip.Deflate, body: ""},
	}
	a, err := openBytes(t, buildStdZip(t, files, ""))
	if err != nil {
		t.Fatalf("NewReader() error = %v", err)
	}

	if a.Len() != len(files) {
		t.Fatalf("Len() = %d, want %d", a.Len(), len(files))
	}

	for i, name := range a.Names() {
		if name != files[i].name {
			t.Errorf("Names()[%d] = %q, want %q", i, name, files[i].name)
		}
	}

	for _, f := range files {
		got, err := a.ReadFile(f.name)
		if err != nil {
			t.Fatalf("ReadFile(%q) error = %v", f.name, err)
		}
		if string(got) != f.body {
			t.Errorf("ReadFile(%q) = %d bytes, want %d bytes", f.name, len(got), len(f.body))
		}

		e, ok := a.Entry(f.name)
		if !ok {
			t.Fatalf("Entry(%q) not found", f.name)
		}
		if e.Method == Stored && uint32(len(got)) != e.UncompressedSize {
			t.Errorf("stored %q returned %d bytes, header says %d", f.name, len(got), e.UncompressedSize)
		}
	}

	dir, _ := a.Entry("OEBPS/")
	if !dir.IsDir() {
		t.Error("OEBPS/ should be a directory entry")
	}
}

func TestReadFile_StoredIsByteIdentical(t *testing.T) {
	payload := []byte{0x00, 0xff, 'P', 'K', 0x03, 0x04, 0x10}
	data := buildRawZip(t, []rawEntry{
		{name: "bin", method: uint16(Stored), data: payload, uncompressedSize: uint32(len(payload))},
	}, nil)

	a, err := openBytes(t, data)
	if err != nil {
		t.Fatalf("NewReader() error = %v", err)
	}
	got, err := a.ReadFile("bin")
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Fatalf("ReadFile() = %v, want %v", got, payload)
	}
}

func TestOpen_TrailingComment(t *testing.T) {
	files := []zipFixtureFile{{name: "a.txt", method: zip.Store, body: "hello"}}

	tests := []struct {
		name       string
		commentLen int
	}{
		{name: "no comment", commentLen: 0},
		{name: "one byte", commentLen: 1},
		{name: "maximum length", commentLen: maxCommentLen},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := buildRawZip(t, []rawEntry{
				{name: "a.txt", method: uint16(Stored), data: []byte("hello"), uncompressedSize: 5},
			}, bytes.Repeat([]byte{'c'}, tt.commentLen))

			a, err := openBytes(t, data)
			if err != nil {
				t.Fatalf("NewReader() error = %v", err)
			}
			got, err := a.ReadFile(files[0].name)
			if err != nil {
				t.Fatalf("ReadFile() error = %v", err)
			}
			if string(got) != "hello" {
				t.Fatalf("ReadFile() = %q, want %q", got, "hello")
			}
		})
	}
}

func TestOpen_CommentViaArchiveZip(t *testing.T) {
	data := buildStdZip(t, []zipFixtureFile{{name: "a.txt", method: zip.Deflate, body: "hi"}}, "library export")
	a, err := openBytes(t, data)
	if err != nil {
		t.Fatalf("NewReader() error = %v", err)
	}
	if _, ok := a.Entry("a.txt"); !ok {
		t.Fatal("a.txt not indexed")
	}
}

func TestOpen_SignatureInsideComment(t *testing.T) {
	// A fake EOCD record embedded in the comment, with a zero comment length
	// of its own that does not reach the end of the file.
	fake := make([]byte, directoryEndLen)
	binary.LittleEndian.PutUint32(fake, directoryEndSignature)
	comment := append(append([]byte("prefix"), fake...), []byte("suffix-bytes")...)

	data := buildRawZip(t, []rawEntry{
		{name: "a.txt", method: uint16(Stored), data: []byte("ok"), uncompressedSize: 2},
	}, comment)

	a, err := openBytes(t, data)
	if err != nil {
		t.Fatalf("NewReader() error = %v", err)
	}
	if a.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", a.Len())
	}
}

func TestOpen_OverstatedCommentLength(t *testing.T) {
	data := buildStdZip(t, []zipFixtureFile{{name: "a.txt", method: zip.Deflate, body: "hello"}}, "")
	// Claim a 10-byte comment that is not there.
	binary.LittleEndian.PutUint16(data[len(data)-2:], 10)

	a, err := openBytes(t, data)
	if err != nil {
		t.Fatalf("NewReader() error = %v", err)
	}
	got, err := a.ReadFile("a.txt")
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	if string(got) != "hello" {
		t.Fatalf("ReadFile() = %q, want %q", got, "hello")
	}
}

func TestFindDirectoryEndInBlock(t *testing.T) {
	record := func(commentLen uint16) []byte {
		b := make([]byte, directoryEndLen)
		binary.LittleEndian.PutUint32(b, directoryEndSignature)
		binary.LittleEndian.PutUint16(b[20:], commentLen)
		return b
	}
	cat := func(parts ...[]byte) []byte { return bytes.Join(parts, nil) }

	tests := []struct {
		name string
		b    []byte
		want int
	}{
		{name: "exact fit", b: cat([]byte("xx"), record(3), []byte("abc")), want: 2},
		{name: "trailing garbage", b: cat(record(0), []byte("garbage")), want: 0},
		{name: "overstated comment", b: cat([]byte("xxxx"), record(50)), want: 4},
		{name: "fitting match beats overrun", b: cat(record(0), record(90)), want: 0},
		{name: "no signature", b: bytes.Repeat([]byte{'x'}, 40), want: -1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := findDirectoryEndInBlock(tt.b); got != tt.want {
				t.Errorf("findDirectoryEndInBlock() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestOpen_NotAnArchive(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{name: "empty", data: nil},
		{name: "shorter than trailer", data: []byte("PK\x05\x06")},
		{name: "plain text", data: bytes.Repeat([]byte("not a zip file "), 100)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := openBytes(t, tt.data)
			if !errors.Is(err, ErrNotAnArchive) {
				t.Fatalf("NewReader() error = %v, want ErrNotAnArchive", err)
			}
		})
	}
}

func TestOpen_EmptyCentralDirectory(t *testing.T) {
	data := buildRawZip(t, nil, nil)
	_, err := openBytes(t, data)
	if !errors.Is(err, ErrTruncated) {
		t.Fatalf("NewReader() error = %v, want ErrTruncated", err)
	}
}

func TestOpen_CentralDirectoryBeyondEOF(t *testing.T) {
	data := buildRawZip(t, []rawEntry{
		{name: "a.txt", method: uint16(Stored), data: []byte("ok"), uncompressedSize: 2},
	}, nil)
	// Bump the central directory size so it overruns the file.
	eocd := data[len(data)-directoryEndLen:]
	binary.LittleEndian.PutUint32(eocd[12:16], 1<<20)

	_, err := openBytes(t, data)
	if !errors.Is(err, ErrTruncated) {
		t.Fatalf("NewReader() error = %v, want ErrTruncated", err)
	}
}

func TestOpen_InvalidUTF8Name(t *testing.T) {
	data := buildRawZip(t, []rawEntry{
		{name: "bad\xff\xfe.txt", method: uint16(Stored), data: []byte("x"), uncompressedSize: 1},
	}, nil)
	_, err := openBytes(t, data)
	if !errors.Is(err, ErrTruncated) {
		t.Fatalf("NewReader() error = %v, want ErrTruncated", err)
	}
}

func TestOpen_DuplicateNameLastWins(t *testing.T) {
	data := buildRawZip(t, []rawEntry{
		{name: "dup.txt", method: uint16(Stored), data: []byte("first"), uncompressedSize: 5},
		{name: "other.txt", method: uint16(Stored), data: []byte("x"), uncompressedSize: 1},
		{name: "dup.txt", method: uint16(Stored), data: []byte("second"), uncompressedSize: 6},
	}, nil)

	a, err := openBytes(t, data)
	if err != nil {
		t.Fatalf("NewReader() error = %v", err)
	}
	if a.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", a.Len())
	}
	got, err := a.ReadFile("dup.txt")
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	if string(got) != "second" {
		t.Fatalf("ReadFile() = %q, want %q", got, "second")
	}
}

func TestEntry_CaseSensitive(t *testing.T) {
	data := buildRawZip(t, []rawEntry{
		{name: "META-INF/container.xml", method: uint16(Stored), data: []byte("<c/>"), uncompressedSize: 4},
	}, nil)
	a, err := openBytes(t, data)
	if err != nil {
		t.Fatalf("NewReader() error = %v", err)
	}
	if _, err := a.ReadFile("meta-inf/container.xml"); !errors.Is(err, ErrEntryNotFound) {
		t.Fatalf("ReadFile() error = %v, want ErrEntryNotFound", err)
	}
}

func TestReadFile_LocalExtraDiffersFromCentral(t *testing.T) {
	body := []byte("payload after a long local extra field")
	data := buildRawZip(t, []rawEntry{
		{
			name:             "a.txt",
			method:           uint16(Stored),
			data:             body,
			uncompressedSize: uint32(len(body)),
			localExtra:       bytes.Repeat([]byte{0xAA}, 28),
			centralExtra:     nil,
		},
		{
			name:             "b.txt",
			method:           uint16(Deflate),
			data:             deflateBytes(t, body),
			uncompressedSize: uint32(len(body)),
			localExtra:       nil,
			centralExtra:     bytes.Repeat([]byte{0xBB}, 12),
		},
	}, nil)

	a, err := openBytes(t, data)
	if err != nil {
		t.Fatalf("NewReader() error = %v", err)
	}
	for _, name := range []string{"a.txt", "b.txt"} {
		got, err := a.ReadFile(name)
		if err != nil {
			t.Fatalf("ReadFile(%q) error = %v", name, err)
		}
		if !bytes.Equal(got, body) {
			t.Errorf("ReadFile(%q) = %q, want %q", name, got, body)
		}
	}
}

func TestReadFile_DeflateWrongDeclaredSize(t *testing.T) {
	// Highly compressible content with a zero or understated declared size
	// must still inflate completely.
	body := bytes.Repeat([]byte("a"), 1<<20)
	compressed := deflateBytes(t, body)

	for _, declared := range []uint32{0, 10, uint32(len(body))} {
		data := buildRawZip(t, []rawEntry{
			{name: "big.txt", method: uint16(Deflate), data: compressed, uncompressedSize: declared},
		}, nil)
		a, err := openBytes(t, data)
		if err != nil {
			t.Fatalf("NewReader() error = %v", err)
		}
		got, err := a.ReadFile("big.txt")
		if err != nil {
			t.Fatalf("declared=%d: ReadFile() error = %v", declared, err)
		}
		if len(got) != len(body) {
			t.Fatalf("declared=%d: len = %d, want %d", declared, len(got), len(body))
		}
	}
}

func TestInflate_Limit(t *testing.T) {
	compressed := deflateBytes(t, bytes.Repeat([]byte("z"), 4096))
	if _, err := inflate(compressed, 0, 1024); !errors.Is(err, ErrEntryTooLarge) {
		t.Fatalf("inflate() error = %v, want ErrEntryTooLarge", err)
	}
}

func TestReadFile_Errors(t *testing.T) {
	good := deflateBytes(t, []byte("some text to compress"))

	tests := []struct {
		name    string
		entries []rawEntry
		corrupt func(data []byte)
		read    string
		wantErr error
	}{
		{
			name:    "missing entry",
			entries: []rawEntry{{name: "a", method: uint16(Stored), data: []byte("x"), uncompressedSize: 1}},
			read:    "b",
			wantErr: ErrEntryNotFound,
		},
		{
			name:    "unsupported method",
			entries: []rawEntry{{name: "a", method: 12, data: []byte("BZh"), uncompressedSize: 3}},
			read:    "a",
			wantErr: ErrUnsupportedCompression,
		},
		{
			name:    "bad local signature",
			entries: []rawEntry{{name: "a", method: uint16(Stored), data: []byte("x"), uncompressedSize: 1}},
			corrupt: func(data []byte) { data[0] = 'X' },
			read:    "a",
			wantErr: ErrNotAnArchive,
		},
		{
			name:    "corrupt deflate stream",
			entries: []rawEntry{{name: "a", method: uint16(Deflate), data: good[:len(good)/2], uncompressedSize: 21}},
			read:    "a",
			wantErr: ErrTruncated,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := buildRawZip(t, tt.entries, nil)
			if tt.corrupt != nil {
				tt.corrupt(data)
			}
			a, err := openBytes(t, data)
			if err != nil {
				t.Fatalf("NewReader() error = %v", err)
			}
			if _, err := a.ReadFile(tt.read); !errors.Is(err, tt.wantErr) {
				t.Fatalf("ReadFile() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestReadFile_PayloadBeyondEOF(t *testing.T) {
	data := buildRawZip(t, []rawEntry{
		{name: "a", method: uint16(Stored), data: []byte("xyz"), uncompressedSize: 3},
	}, nil)
	// Patch the central directory compressed size to something enormous.
	cdStart := binary.LittleEndian.Uint32(data[len(data)-6 : len(data)-2])
	binary.LittleEndian.PutUint32(data[cdStart+20:cdStart+24], 1<<24)

	a, err := openBytes(t, data)
	if err != nil {
		t.Fatalf("NewReader() error = %v", err)
	}
	if _, err := a.ReadFile("a"); !errors.Is(err, ErrTruncated) {
		t.Fatalf("ReadFile() error = %v, want ErrTruncated", err)
	}
}

func TestOpen_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "book.epub")
	data := buildStdZip(t, []zipFixtureFile{{name: "mimetype", method: zip.Store, body: "application/epub+zip"}}, "")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	a, err := Open(path)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	got, err := a.ReadFile("mimetype")
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	if string(got) != "application/epub+zip" {
		t.Fatalf("ReadFile() = %q", got)
	}
	if err := a.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := a.Close(); err != nil {
		t.Fatalf("second Close() error = %v", err)
	}
}

func TestOpen_MissingFile(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), "nope.epub"))
	if !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("Open() error = %v, want os.ErrNotExist", err)
	}
}
