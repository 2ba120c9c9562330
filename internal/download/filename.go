// Package download turns generated content into files on disk.
package download

import (
	"strings"
	"time"
	"unicode"

	"golang.org/x/text/unicode/norm"

	"github.com/hyperifyio/pagecopilot/internal/page"
)

// DefaultName replaces titles that sanitise to nothing.
const DefaultName = "extracted_data"

// MaxNameRunes caps the sanitised title.
const MaxNameRunes = 100

// TimestampLayout renders the UTC save time in the file name.
const TimestampLayout = "2006-01-02T15-04-05"

var extensions = map[string]string{
	"csv":   "csv",
	"text":  "txt",
	"json":  "json",
	"links": "txt",
}

// Extension maps an output format to a file extension. Unknown formats save
// as plain text.
func Extension(format string) string {
	if ext, ok := extensions[strings.ToLower(strings.TrimSpace(format))]; ok {
		return ext
	}
	return "txt"
}

// SanitizeName makes a page title safe to use as a file name on every common
// filesystem. Characters outside letters, digits, '-', '.' and '_' become
// underscores, runs collapse, and the edges are trimmed.
func SanitizeName(title string) string {
	var b strings.Builder
	lastUnderscore := false
	for _, r := range norm.NFC.String(title) {
		if isSafe(r) && r != '_' {
			b.WriteRune(r)
			lastUnderscore = false
			continue
		}
		if !lastUnderscore {
			b.WriteByte('_')
			lastUnderscore = true
		}
	}
	name := trimEdges(b.String())
	name = trimEdges(page.TruncateRunes(name, MaxNameRunes))
	if name == "" {
		return DefaultName
	}
	return name
}

func isSafe(r rune) bool {
	switch {
	case r == '-' || r == '.' || r == '_':
		return true
	case unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.Is(unicode.Mn, r):
		return true
	}
	return false
}

func trimEdges(s string) string {
	return strings.Trim(s, "_.")
}

// Filename builds "<sanitised title>_<timestamp>.<ext>".
func Filename(title, format string, at time.Time) string {
	return SanitizeName(title) + "_" + at.UTC().Format(TimestampLayout) + "." + Extension(format)
}
