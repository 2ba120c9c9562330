package extract

import (
	"bytes"
	"errors"
	"net/url"
	"strconv"
	"strings"
	"unicode"

	"github.com/PuerkitoBio/goquery"
	readability "github.com/go-shiori/go-readability"
	"golang.org/x/net/html"

	"github.com/hyperifyio/pagecopilot/internal/page"
)

// ErrEmptyDocument is returned when there is no markup to read.
var ErrEmptyDocument = errors.New("document is empty or inaccessible")

// Options tune how text is taken from the page.
type Options struct {
	// Readable takes the text from the main article as detected by
	// readability instead of the whole body.
	Readable bool
}

// FromHTML builds a snapshot from a loaded document. Collection stops as soon
// as a cap is reached, so work is bounded by the limits in package page
// rather than by the size of the page.
func FromHTML(doc page.Document, opts Options) (page.Snapshot, error) {
	if len(bytes.TrimSpace(doc.HTML)) == 0 {
		return page.Snapshot{}, ErrEmptyDocument
	}
	root, err := html.Parse(bytes.NewReader(doc.HTML))
	if err != nil || root == nil {
		return page.Snapshot{}, ErrEmptyDocument
	}
	dom := goquery.NewDocumentFromNode(root)
	base := baseURL(doc.URL, dom)

	snap := page.Snapshot{
		URL:      doc.URL,
		Title:    collapseSpaces(strings.TrimSpace(dom.Find("title").First().Text())),
		Images:   []page.Image{},
		Links:    []page.Link{},
		Metadata: metadataFrom(dom),
	}

	if opts.Readable {
		snap.Text = readableText(doc)
	}
	if snap.Text == "" {
		if body := findFirst(root, "body"); body != nil {
			w := &textWriter{max: page.MaxTextRunes}
			collectText(w, body, false)
			snap.Text = w.String()
		}
	}

	dom.Find("img").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		src := strings.TrimSpace(s.AttrOr("src", ""))
		if src == "" {
			return true
		}
		src = resolve(base, src)
		img := page.Image{
			Src:   src,
			Alt:   s.AttrOr("alt", ""),
			Title: s.AttrOr("title", ""),
		}
		if size, ok := doc.ImageSizes[src]; ok {
			img.Width, img.Height = size.Width, size.Height
		} else {
			img.Width = dimension(s.AttrOr("width", ""))
			img.Height = dimension(s.AttrOr("height", ""))
		}
		snap.Images = append(snap.Images, img)
		return len(snap.Images) < page.MaxImages
	})

	dom.Find("a[href]").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		text := page.TruncateRunes(collapseSpaces(strings.TrimSpace(s.Text())), page.MaxLinkRunes)
		if text == "" {
			return true
		}
		snap.Links = append(snap.Links, page.Link{
			Href:  resolve(base, strings.TrimSpace(s.AttrOr("href", ""))),
			Text:  text,
			Title: s.AttrOr("title", ""),
		})
		return len(snap.Links) < page.MaxLinks
	})

	return snap, nil
}

// metadataFrom maps <meta> tags onto the known fields. Later tags win.
func metadataFrom(dom *goquery.Document) page.Metadata {
	var md page.Metadata
	dom.Find("meta").Each(func(_ int, s *goquery.Selection) {
		name := s.AttrOr("name", "")
		if name == "" {
			name = s.AttrOr("property", "")
		}
		content := s.AttrOr("content", "")
		if name == "" || content == "" {
			return
		}
		switch strings.ToLower(strings.TrimSpace(name)) {
		case "description":
			md.Description = content
		case "keywords":
			md.Keywords = content
		case "author":
			md.Author = content
		case "og:title":
			md.OGTitle = content
		case "og:description":
			md.OGDescription = content
		case "og:image":
			md.OGImage = content
		}
	})
	return md
}

func readableText(doc page.Document) string {
	u, err := url.Parse(doc.URL)
	if err != nil {
		u = &url.URL{}
	}
	article, err := readability.FromReader(bytes.NewReader(doc.HTML), u)
	if err != nil {
		return ""
	}
	return page.TruncateRunes(normalizeWhitespace(article.TextContent), page.MaxTextRunes)
}

func baseURL(pageURL string, dom *goquery.Document) *url.URL {
	base, err := url.Parse(pageURL)
	if err != nil {
		base = nil
	}
	if href, ok := dom.Find("base[href]").First().Attr("href"); ok {
		if ref, err := url.Parse(strings.TrimSpace(href)); err == nil {
			if base != nil {
				return base.ResolveReference(ref)
			}
			return ref
		}
	}
	return base
}

func resolve(base *url.URL, ref string) string {
	if base == nil {
		return ref
	}
	u, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	return base.ResolveReference(u).String()
}

// dimension reads an HTML width/height attribute such as "640" or "640px".
func dimension(v string) int {
	v = strings.TrimSuffix(strings.TrimSpace(v), "px")
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0
	}
	return n
}

func findFirst(n *html.Node, tag string) *html.Node {
	if n.Type == html.ElementNode && strings.EqualFold(n.Data, tag) {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if res := findFirst(c, tag); res != nil {
			return res
		}
	}
	return nil
}

// collectText renders the visible text of n roughly the way innerText does:
// hidden elements are skipped, blocks start on a new line and paragraphs and
// headings are separated by a blank line.
func collectText(w *textWriter, n *html.Node, inPre bool) {
	if w.full() {
		return
	}
	if n.Type == html.ElementNode {
		switch strings.ToLower(n.Data) {
		case "script", "style", "noscript", "template", "head", "iframe", "svg":
			return
		case "pre", "textarea":
			inPre = true
		case "br":
			w.lineBreak(1)
		}
		if isParagraph(n.Data) {
			w.lineBreak(2)
		} else if isBlock(n.Data) {
			w.lineBreak(1)
		}
	}

	if n.Type == html.TextNode {
		if inPre {
			w.writePre(n.Data)
		} else {
			w.writeText(n.Data)
		}
	}

	for c := n.FirstChild; c != nil && !w.full(); c = c.NextSibling {
		collectText(w, c, inPre)
	}

	if n.Type == html.ElementNode {
		if isParagraph(n.Data) {
			w.lineBreak(2)
		} else if isBlock(n.Data) {
			w.lineBreak(1)
		}
	}
}

func isParagraph(tag string) bool {
	switch strings.ToLower(tag) {
	case "p", "h1", "h2", "h3", "h4", "h5", "h6":
		return true
	}
	return false
}

func isBlock(tag string) bool {
	switch strings.ToLower(tag) {
	case "div", "section", "article", "main", "header", "footer", "nav", "aside",
		"ul", "ol", "li", "dl", "dt", "dd", "table", "tr", "blockquote", "pre",
		"form", "fieldset", "figure", "figcaption", "address", "hr", "details", "summary":
		return true
	}
	return false
}

// textWriter accumulates text with whitespace collapsed on the fly and stops
// accepting runes once max is reached.
type textWriter struct {
	b         strings.Builder
	max       int
	n         int
	space     bool
	newlines  int
	lastBreak bool
}

func (w *textWriter) full() bool { return w.n >= w.max }

func (w *textWriter) lineBreak(n int) {
	if n > w.newlines {
		w.newlines = n
	}
}

func (w *textWriter) writeText(s string) {
	for _, r := range s {
		if w.full() {
			return
		}
		if unicode.IsSpace(r) {
			w.space = true
			continue
		}
		w.flush()
		w.emit(r)
	}
}

func (w *textWriter) writePre(s string) {
	for _, r := range s {
		if w.full() {
			return
		}
		if r == '\r' {
			continue
		}
		w.flush()
		w.emit(r)
	}
}

// flush writes pending separators before the next visible rune. Leading
// separators are dropped.
func (w *textWriter) flush() {
	if w.n == 0 {
		w.space, w.newlines = false, 0
		return
	}
	if w.newlines > 0 {
		for i := 0; i < w.newlines && !w.full(); i++ {
			w.emit('\n')
		}
	} else if w.space && !w.lastBreak {
		w.emit(' ')
	}
	w.space, w.newlines = false, 0
}

func (w *textWriter) emit(r rune) {
	if w.full() {
		return
	}
	w.b.WriteRune(r)
	w.n++
	w.lastBreak = r == '\n'
}

func (w *textWriter) String() string {
	return strings.TrimRightFunc(w.b.String(), unicode.IsSpace)
}

func normalizeWhitespace(s string) string {
	lines := strings.Split(s, "\n")
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			if len(out) > 0 && out[len(out)-1] == "" {
				continue
			}
			out = append(out, "")
			continue
		}
		out = append(out, collapseSpaces(trimmed))
	}
	for len(out) > 0 && out[0] == "" {
		out = out[1:]
	}
	for len(out) > 0 && out[len(out)-1] == "" {
		out = out[:len(out)-1]
	}
	return strings.Join(out, "\n")
}

func collapseSpaces(s string) string {
	var b strings.Builder
	lastSpace := false
	for _, r := range s {
		if unicode.IsSpace(r) {
			if !lastSpace {
				b.WriteByte(' ')
				lastSpace = true
			}
			continue
		}
		b.WriteRune(r)
		lastSpace = false
	}
	return b.String()
}
