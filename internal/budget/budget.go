// Package budget estimates whether a prompt fits a model's context window.
package budget

import (
	"math"
	"strings"
	"unicode/utf8"
)

// EstimateTokensFromChars converts a character count into an estimated token
// count using a conservative heuristic (~4 chars per token in English). The
// result is always at least 1 when chars > 0.
func EstimateTokensFromChars(charCount int) int {
	if charCount <= 0 {
		return 0
	}
	return int(math.Ceil(float64(charCount) / 4.0))
}

// EstimateTokens returns the estimated token count of a string, counting
// runes so non-Latin text is not overestimated by its UTF-8 length.
func EstimateTokens(s string) int {
	return EstimateTokensFromChars(utf8.RuneCountInString(s))
}

// DefaultContextTokens is assumed for unknown models.
const DefaultContextTokens = 32_768

// ModelContextTokens returns an estimated maximum context window for a model
// name. Unknown models fall back to DefaultContextTokens.
func ModelContextTokens(modelName string) int {
	name := strings.ToLower(strings.TrimSpace(modelName))
	name = strings.TrimPrefix(name, "models/")
	if name == "" {
		return DefaultContextTokens
	}
	if v, ok := knownModelMax[name]; ok {
		return v
	}
	// Versioned names such as gemini-1.5-flash-002 share the family window.
	for prefix, v := range familyMax {
		if strings.HasPrefix(name, prefix) {
			return v
		}
	}
	switch {
	case strings.HasSuffix(name, "1m"):
		return 1_000_000
	case strings.HasSuffix(name, "128k"):
		return 128_000
	case strings.HasSuffix(name, "32k"):
		return 32_768
	}
	return DefaultContextTokens
}

// RemainingContext computes the remaining input token budget given a model,
// a reservation for output generation, and the estimated prompt tokens. The
// result is never negative.
func RemainingContext(modelName string, reservedForOutput int, promptTokens int) int {
	if reservedForOutput < 0 {
		reservedForOutput = 0
	}
	remaining := ModelContextTokens(modelName) - reservedForOutput - promptTokens
	if remaining < 0 {
		return 0
	}
	return remaining
}

// FitsInContext reports whether the prompt fits when reserving output tokens.
func FitsInContext(modelName string, reservedForOutput int, promptTokens int) bool {
	return RemainingContext(modelName, reservedForOutput, promptTokens) > 0
}

// HeadroomTokens is the larger of 5% of the context window or 512 tokens,
// covering tokenizer drift and request framing.
func HeadroomTokens(modelName string) int {
	dyn := int(math.Ceil(float64(ModelContextTokens(modelName)) * 0.05))
	if dyn < 512 {
		return 512
	}
	return dyn
}

// RemainingContextWithHeadroom is RemainingContext minus HeadroomTokens.
func RemainingContextWithHeadroom(modelName string, reservedForOutput int, promptTokens int) int {
	return RemainingContext(modelName, reservedForOutput+HeadroomTokens(modelName), promptTokens)
}

var knownModelMax = map[string]int{
	"gemini-pro":            32_760,
	"gemini-1.0-pro":        32_760,
	"gemini-1.5-flash":      1_048_576,
	"gemini-1.5-flash-8b":   1_048_576,
	"gemini-1.5-pro":        2_097_152,
	"gemini-2.0-flash":      1_048_576,
	"gemini-2.0-flash-lite": 1_048_576,
	"gemini-2.5-flash":      1_048_576,
	"gemini-2.5-pro":        1_048_576,

	"gpt-4o":        128_000,
	"gpt-4o-mini":   128_000,
	"gpt-4-turbo":   128_000,
	"gpt-3.5-turbo": 16_384,
	"llama-3":       8_192,
	"llama-3.1":     128_000,
}

var familyMax = map[string]int{
	"gemini-1.5-pro":   2_097_152,
	"gemini-1.5-flash": 1_048_576,
	"gemini-2.":        1_048_576,
}
