// Package validate checks user input before any page is loaded or any
// request leaves the process.
package validate

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/hyperifyio/pagecopilot/internal/errs"
	"github.com/hyperifyio/pagecopilot/internal/template"
)

// Limits on user input.
const (
	MinAPIKeyLen       = 20
	MaxAPIKeyLen       = 100
	MaxUserPromptLen   = 5000
	MaxSystemPromptLen = 2000
)

var apiKeyRe = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// Input is everything a run needs from the user.
type Input struct {
	APIKey       string
	SystemPrompt string
	UserPrompt   string
	Format       string
	Target       string
}

// Check returns the first violated rule as an errs.Validation error, or nil.
func Check(in Input) error {
	checks := []func(Input) error{
		func(in Input) error { return APIKey(in.APIKey) },
		func(in Input) error { return Prompt("User prompt", in.UserPrompt, MaxUserPromptLen) },
		func(in Input) error { return Prompt("System prompt", in.SystemPrompt, MaxSystemPromptLen) },
		func(in Input) error { return Format(in.Format) },
		func(in Input) error { return Target(in.Target) },
	}
	for _, c := range checks {
		if err := c(in); err != nil {
			return err
		}
	}
	return nil
}

// APIKey checks presence, length and alphabet of an API key.
func APIKey(key string) error {
	key = strings.TrimSpace(key)
	switch n := len(key); {
	case n == 0:
		return errs.New(errs.Validation, "API key is required")
	case n < MinAPIKeyLen:
		return errs.New(errs.Validation, fmt.Sprintf("API key is too short (minimum %d characters)", MinAPIKeyLen))
	case n > MaxAPIKeyLen:
		return errs.New(errs.Validation, fmt.Sprintf("API key is too long (maximum %d characters)", MaxAPIKeyLen))
	}
	if !apiKeyRe.MatchString(key) {
		return errs.New(errs.Validation, "API key contains invalid characters (only letters, digits, '-' and '_' are allowed)")
	}
	return nil
}

// Prompt checks that a prompt is present and at most max characters long.
func Prompt(field, prompt string, max int) error {
	p := strings.TrimSpace(prompt)
	if p == "" {
		return errs.New(errs.Validation, field+" is required")
	}
	if utf8.RuneCountInString(p) > max {
		return errs.New(errs.Validation, fmt.Sprintf("%s is too long (maximum %d characters)", field, max))
	}
	return nil
}

// Format checks that format names a supported output format.
func Format(format string) error {
	if _, ok := template.Parse(format); ok {
		return nil
	}
	names := make([]string, 0, 4)
	for _, f := range template.Formats() {
		names = append(names, string(f))
	}
	return errs.New(errs.Validation, fmt.Sprintf("Output format %q is not supported (use one of %s)", format, strings.Join(names, ", ")))
}

// Target checks that a page URL or file was given.
func Target(target string) error {
	if strings.TrimSpace(target) == "" {
		return errs.New(errs.Validation, "A page URL or file path is required")
	}
	return nil
}
