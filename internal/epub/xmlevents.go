package epub

import (
	"bytes"
	"encoding/xml"
	"errors"
	"io"
	"strings"
)

// errStopWalk lets a handler end a walk early without reporting an error.
var errStopWalk = errors.New("stop walk")

// xmlHandler receives the events of one document. Element and attribute names
// are lowercased and keep their prefix ("dc:title", "epub:type"), so matching
// never depends on namespace declarations.
type xmlHandler interface {
	startElement(name string, attrs map[string]string) error
	text(data []byte)
	endElement(name string)
}

// walkXML streams data through h. Mismatched or unclosed tags are tolerated;
// a syntax error ends the walk and is returned after the events that preceded
// it have been delivered.
func walkXML(data []byte, h xmlHandler) error {
	d := xml.NewDecoder(bytes.NewReader(stripBOM(data)))
	d.Strict = false
	d.Entity = xml.HTMLEntity
	// Only UTF-8 is supported; other declared charsets are read as-is.
	d.CharsetReader = func(_ string, input io.Reader) (io.Reader, error) {
		return input, nil
	}

	for {
		tok, err := d.RawToken()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}

		switch t := tok.(type) {
		case xml.StartElement:
			attrs := make(map[string]string, len(t.Attr))
			for _, a := range t.Attr {
				attrs[qualifiedName(a.Name)] = a.Value
			}
			if err := h.startElement(qualifiedName(t.Name), attrs); err != nil {
				if errors.Is(err, errStopWalk) {
					return nil
				}
				return err
			}
		case xml.EndElement:
			h.endElement(qualifiedName(t.Name))
		case xml.CharData:
			h.text(t)
		}
	}
}

func qualifiedName(n xml.Name) string {
	if n.Space == "" {
		return strings.ToLower(n.Local)
	}
	return strings.ToLower(n.Space + ":" + n.Local)
}

// localName drops the namespace prefix from a qualified name.
func localName(name string) string {
	if i := strings.LastIndexByte(name, ':'); i >= 0 {
		return name[i+1:]
	}
	return name
}

func stripBOM(data []byte) []byte {
	return bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))
}
