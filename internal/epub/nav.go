package epub

import (
	"sort"
	"strings"
)

// navHandler captures anchor titles inside toc-typed nav elements.
type navHandler struct {
	// navs is the stack of open nav elements; true marks the one that opened
	// the capturing region.
	navs      []bool
	capturing bool

	href     string
	inAnchor bool
	title    strings.Builder

	titles map[string]string
	order  []string // hrefs in first-seen order
}

func (h *navHandler) startElement(name string, attrs map[string]string) error {
	switch localName(name) {
	case "nav":
		opens := false
		if !h.capturing {
			typ, ok := attrs["epub:type"]
			if !ok {
				typ = attrs["type"]
			}
			opens = strings.Contains(strings.ToLower(typ), "toc")
		}
		h.navs = append(h.navs, opens)
		h.capturing = h.capturing || opens
	case "a":
		if h.capturing {
			h.href, h.inAnchor = attrs["href"]
			h.title.Reset()
		}
	}
	return nil
}

func (h *navHandler) text(data []byte) {
	if h.capturing && h.inAnchor {
		h.title.Write(data)
	}
}

func (h *navHandler) endElement(name string) {
	switch localName(name) {
	case "a":
		if !h.inAnchor {
			return
		}
		if title := strings.TrimSpace(h.title.String()); title != "" {
			if _, seen := h.titles[h.href]; !seen {
				h.order = append(h.order, h.href)
			}
			h.titles[h.href] = title
		}
		h.href, h.inAnchor = "", false
		h.title.Reset()
	case "nav":
		if len(h.navs) == 0 {
			return
		}
		if h.navs[len(h.navs)-1] {
			h.capturing = false
		}
		h.navs = h.navs[:len(h.navs)-1]
	}
}

// ParseNav extracts href -> title pairs from the toc nav of an EPUB 3
// navigation document. Hrefs are returned as written in the document; an
// href listed twice keeps the last title. A malformed document yields
// whatever was captured before the error.
func ParseNav(content []byte) map[string]string {
	titles, _ := parseNav(content)
	return titles
}

// parseNav is ParseNav that also returns the titled hrefs in the order they
// first appear.
func parseNav(content []byte) (map[string]string, []string) {
	h := &navHandler{titles: make(map[string]string)}
	_ = walkXML(content, h)
	return h.titles, h.order
}

// Title returns the nav title for a spine href (relative to BasePath).
// Nav hrefs are resolved against the nav document's directory and their
// fragments ignored. An href without a fragment takes precedence, then the
// earliest fragment href in nav order.
func (p *Package) Title(spineHref string) (string, bool) {
	if len(p.NavTitles) == 0 {
		return "", false
	}
	target := ResolveHref(p.BasePath, spineHref)
	navBase := BasePath(p.NavHref)

	keys := p.NavOrder
	if len(keys) != len(p.NavTitles) {
		keys = make([]string, 0, len(p.NavTitles))
		for k := range p.NavTitles {
			keys = append(keys, k)
		}
		sort.Strings(keys)
	}

	var (
		title string
		found bool
	)
	for _, k := range keys {
		if ResolveHref(navBase, k) != target {
			continue
		}
		if !strings.Contains(k, "#") {
			return p.NavTitles[k], true
		}
		if !found {
			title, found = p.NavTitles[k], true
		}
	}
	return title, found
}
