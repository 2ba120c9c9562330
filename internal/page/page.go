// Package page holds the values that travel between the page loaders, the
// extractor and the orchestrator.
package page

import "context"

// Limits applied while a snapshot is collected.
const (
	MaxImages    = 100
	MaxLinks     = 200
	MaxTextRunes = 50000
	MaxLinkRunes = 200
)

// Snapshot is the structured view of one page. It is built once per
// extraction and never modified afterwards.
type Snapshot struct {
	URL      string   `json:"url"`
	Title    string   `json:"title"`
	Text     string   `json:"text"`
	Images   []Image  `json:"images"`
	Links    []Link   `json:"links"`
	Metadata Metadata `json:"metadata"`
}

type Image struct {
	Src    string `json:"src"`
	Alt    string `json:"alt"`
	Title  string `json:"title"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

type Link struct {
	Href  string `json:"href"`
	Text  string `json:"text"`
	Title string `json:"title"`
}

type Metadata struct {
	Description   string `json:"description"`
	Keywords      string `json:"keywords"`
	Author        string `json:"author"`
	OGTitle       string `json:"ogTitle"`
	OGDescription string `json:"ogDescription"`
	OGImage       string `json:"ogImage"`
}

// Size is a rendered image size in CSS pixels.
type Size struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Document is raw page markup as handed over by a Loader.
type Document struct {
	// URL is the final address after redirects; relative links resolve against it.
	URL  string
	HTML []byte
	// ImageSizes holds natural image sizes keyed by absolute src, when the
	// loader rendered the page.
	ImageSizes map[string]Size
}

// Loader fetches the document behind a target (a URL or a local path).
type Loader interface {
	Load(ctx context.Context, target string) (Document, error)
}

// TruncateRunes cuts s to at most n runes.
func TruncateRunes(s string, n int) string {
	if n <= 0 {
		return ""
	}
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}
