package orchestrator

import (
	"fmt"
	"strings"
	"testing"

	"github.com/hyperifyio/pagecopilot/internal/page"
)

func TestBuildPrompt_Layout(t *testing.T) {
	snap := page.Snapshot{
		URL:   "https://example.com/a",
		Title: "Example",
		Text:  "Body text",
		Images: []page.Image{
			{Src: "https://example.com/i.png", Alt: "logo", Width: 40, Height: 20},
		},
		Links: []page.Link{{Href: "https://example.com/b", Text: "Next"}},
		Metadata: page.Metadata{
			Description: "desc",
			OGTitle:     "OG",
		},
	}
	got := BuildPrompt(snap, "SYSTEM", "list the links", "csv")

	for _, want := range []string{
		"SYSTEM\n\nUSER REQUEST: list the links\n\nOUTPUT FORMAT: CSV\n\nWEBPAGE DATA:",
		"\nURL: https://example.com/a",
		"\nTitle: Example",
		"\nText Content: Body text",
		"\n- Description: desc",
		"\n- OG Title: OG",
		"Images (1 total, showing first 20):\n- https://example.com/i.png (Alt: logo, 40x20)",
		"Links (1 total, showing first 50):\n- https://example.com/b (Text: Next)",
	} {
		if !strings.Contains(got, want) {
			t.Fatalf("prompt missing %q:\n%s", want, got)
		}
	}
	if !strings.HasSuffix(got, closingInstruction) {
		t.Fatalf("prompt should end with the closing instruction")
	}
}

func TestBuildPrompt_TruncatesAndLimits(t *testing.T) {
	snap := page.Snapshot{URL: "https://example.com/", Title: "T", Text: strings.Repeat("é", PromptTextRunes+500)}
	for i := 0; i < 30; i++ {
		snap.Images = append(snap.Images, page.Image{Src: fmt.Sprintf("https://example.com/%d.png", i)})
	}
	for i := 0; i < 80; i++ {
		snap.Links = append(snap.Links, page.Link{Href: fmt.Sprintf("https://example.com/l%d", i), Text: "x"})
	}
	got := BuildPrompt(snap, "s", "u", "json")

	if !strings.Contains(got, "Text Content: "+strings.Repeat("é", PromptTextRunes)+"\n") {
		t.Fatal("text should be cut to the prompt limit")
	}
	if strings.Contains(got, strings.Repeat("é", PromptTextRunes+1)) {
		t.Fatal("text exceeds the prompt limit")
	}
	if !strings.Contains(got, "Images (30 total, showing first 20)") || !strings.Contains(got, "Links (80 total, showing first 50)") {
		t.Fatal("totals should reflect the full snapshot")
	}
	if strings.Contains(got, "/20.png") || !strings.Contains(got, "/19.png") {
		t.Fatal("only the first 20 images belong in the prompt")
	}
	if strings.Contains(got, "/l50 ") || !strings.Contains(got, "/l49 ") {
		t.Fatal("only the first 50 links belong in the prompt")
	}
}

func TestBuildPrompt_RoundTripsSnapshotFields(t *testing.T) {
	snap := page.Snapshot{URL: "https://example.org/x?y=1", Title: "Round trip", Text: strings.Repeat("abc ", 3000)}
	got := BuildPrompt(snap, "sys", "req", "text")

	url := between(got, "\nURL: ", "\n")
	title := between(got, "\nTitle: ", "\n")
	text := between(got, "\nText Content: ", "\n\nMetadata:")
	if url != snap.URL || title != snap.Title {
		t.Fatalf("url=%q title=%q", url, title)
	}
	if text != page.TruncateRunes(snap.Text, PromptTextRunes) {
		t.Fatalf("text does not round trip (len %d)", len(text))
	}
}

func between(s, start, end string) string {
	i := strings.Index(s, start)
	if i < 0 {
		return ""
	}
	rest := s[i+len(start):]
	j := strings.Index(rest, end)
	if j < 0 {
		return rest
	}
	return rest[:j]
}
