package orchestrator

import (
	"fmt"
	"strings"

	"github.com/hyperifyio/pagecopilot/internal/page"
)

// Limits applied when rendering a snapshot into a prompt. They are stricter
// than the extraction caps.
const (
	PromptTextRunes = 10000
	PromptImages    = 20
	PromptLinks     = 50
)

const closingInstruction = "Please process this data according to the user request and output in the specified format."

// BuildPrompt renders the system prompt, the user request, the output format
// and the snapshot into the single text sent to the model.
func BuildPrompt(snap page.Snapshot, systemPrompt, userPrompt, format string) string {
	var sb strings.Builder
	sb.WriteString(systemPrompt)
	sb.WriteString("\n\nUSER REQUEST: ")
	sb.WriteString(userPrompt)
	sb.WriteString("\n\nOUTPUT FORMAT: ")
	sb.WriteString(strings.ToUpper(format))

	sb.WriteString("\n\nWEBPAGE DATA:")
	sb.WriteString("\nURL: " + snap.URL)
	sb.WriteString("\nTitle: " + snap.Title)
	sb.WriteString("\nText Content: " + page.TruncateRunes(snap.Text, PromptTextRunes))

	m := snap.Metadata
	sb.WriteString("\n\nMetadata:")
	sb.WriteString("\n- Description: " + m.Description)
	sb.WriteString("\n- Keywords: " + m.Keywords)
	sb.WriteString("\n- Author: " + m.Author)
	sb.WriteString("\n- OG Title: " + m.OGTitle)
	sb.WriteString("\n- OG Description: " + m.OGDescription)
	sb.WriteString("\n- OG Image: " + m.OGImage)

	fmt.Fprintf(&sb, "\n\nImages (%d total, showing first %d):", len(snap.Images), PromptImages)
	for i, img := range snap.Images {
		if i >= PromptImages {
			break
		}
		fmt.Fprintf(&sb, "\n- %s (Alt: %s, %dx%d)", img.Src, img.Alt, img.Width, img.Height)
	}

	fmt.Fprintf(&sb, "\n\nLinks (%d total, showing first %d):", len(snap.Links), PromptLinks)
	for i, l := range snap.Links {
		if i >= PromptLinks {
			break
		}
		fmt.Fprintf(&sb, "\n- %s (Text: %s)", l.Href, l.Text)
	}

	sb.WriteString("\n\n")
	sb.WriteString(closingInstruction)
	return sb.String()
}
