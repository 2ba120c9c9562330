package template

import "strings"

// Format is an output format the model is asked to produce.
type Format string

const (
	CSV   Format = "csv"
	Text  Format = "text"
	JSON  Format = "json"
	Links Format = "links"
)

// DefaultFormat is used when no format was chosen or saved.
const DefaultFormat = Text

// DefaultSystemPrompt is the instruction sent ahead of every request unless
// the user supplies their own.
const DefaultSystemPrompt = "You are a precise web data extraction assistant. Use ONLY the webpage data provided. Do not invent content. Return only the requested output with no commentary."

// Profile describes one output format.
type Profile struct {
	Format      Format
	Name        string
	Description string
	// ExamplePrompt is a sample user request shown as a hint.
	ExamplePrompt string
	// SystemHint is appended to the system prompt to pin down the shape of
	// the answer.
	SystemHint string
}

// Formats lists every supported format in display order.
func Formats() []Format {
	return []Format{CSV, Text, JSON, Links}
}

// Parse maps user input to a supported Format. Matching ignores case and
// surrounding whitespace.
func Parse(s string) (Format, bool) {
	v := Format(strings.ToLower(strings.TrimSpace(s)))
	for _, f := range Formats() {
		if v == f {
			return f, true
		}
	}
	return "", false
}

// GetProfile returns the profile for format. Unknown formats get the text profile.
func GetProfile(format string) Profile {
	f, ok := Parse(format)
	if !ok {
		f = DefaultFormat
	}
	switch f {
	case CSV:
		return Profile{
			Format:        CSV,
			Name:          "CSV",
			Description:   "Comma separated rows with a header line",
			ExamplePrompt: "Extract product names, prices, and descriptions in CSV format",
			SystemHint:    "Answer with RFC 4180 CSV only: one header row, then one row per record.",
		}
	case JSON:
		return Profile{
			Format:        JSON,
			Name:          "JSON",
			Description:   "A single JSON document",
			ExamplePrompt: "Extract structured data and format as JSON",
			SystemHint:    "Answer with one valid JSON document and nothing else.",
		}
	case Links:
		return Profile{
			Format:        Links,
			Name:          "Links",
			Description:   "One link per line",
			ExamplePrompt: "Extract all links with their titles and descriptions",
			SystemHint:    "Answer with one link per line: the URL followed by its title and a short description.",
		}
	default:
		return Profile{
			Format:        Text,
			Name:          "Text",
			Description:   "Readable plain text",
			ExamplePrompt: "Extract all text content and format it as readable text",
			SystemHint:    "Answer in plain readable text without markup.",
		}
	}
}

// SystemPrompt returns the default system prompt tailored to format.
func SystemPrompt(format string) string {
	return DefaultSystemPrompt + " " + GetProfile(format).SystemHint
}
