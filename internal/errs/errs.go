package errs

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Kind classifies a pipeline failure.
type Kind string

const (
	Validation   Kind = "validation"
	Extraction   Kind = "extraction"
	TransientAPI Kind = "transient_api"
	FatalAPI     Kind = "fatal_api"
	Download     Kind = "download"
	Cancelled    Kind = "cancelled"
)

// Error is a classified failure. Msg is shown to the user; Err keeps the cause.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Msg != "" {
		return e.Msg
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return string(e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

// New returns a classified error with a message.
func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Msg: msg}
}

// Wrap classifies err. A nil err yields nil.
func Wrap(kind Kind, err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...), Err: err}
}

// KindOf returns the kind of the first classified error in the chain. Context
// cancellation is reported as Cancelled even when unclassified.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	if errors.Is(err, context.Canceled) {
		return Cancelled
	}
	return ""
}

// guidance maps substrings of raw error text to actionable messages. Order
// matters: the first match wins.
var guidance = []struct {
	needle string
	advice string
}{
	{"context canceled", "The run was cancelled before it finished"},
	{"deadline exceeded", "The request timed out. Check your connection and try again"},
	{"no such host", "Could not resolve the host. Check the URL and your network connection"},
	{"connection refused", "Could not connect. Make sure the page or service is reachable"},
	{"could not establish connection", "The page is not ready. Reload it and try again"},
	{"chrome not found", "Headless Chrome is not installed. Install Chrome or drop --browser"},
	{"executable file not found", "Headless Chrome is not installed. Install Chrome or drop --browser"},
	{"permission denied", "Permission denied. Check the API key permissions or the output directory"},
	{"unsupported content type", "The page is not HTML and cannot be extracted"},
	{"unsupported url scheme", "Only http and https URLs (or local files) can be extracted"},
}

// Friendly rewrites err into a message a user can act on. Validation and API
// errors already carry user-facing text and pass through unchanged. Unmatched
// errors keep their raw text.
func Friendly(err error) string {
	if err == nil {
		return ""
	}
	switch KindOf(err) {
	case Validation, FatalAPI, TransientAPI:
		return err.Error()
	}
	raw := err.Error()
	lower := strings.ToLower(raw)
	for _, g := range guidance {
		if strings.Contains(lower, g.needle) {
			return g.advice
		}
	}
	return raw
}
