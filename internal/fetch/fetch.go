package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/hyperifyio/pagecopilot/internal/page"
)

// DefaultMaxBodyBytes caps how much of a page is read.
const DefaultMaxBodyBytes = 5 << 20

// Client wraps http.Client and provides timeouts and limited retry on transient errors.
type Client struct {
	HTTPClient *http.Client
	UserAgent  string
	// MaxAttempts includes the initial attempt. Minimum 1.
	MaxAttempts int
	// PerRequestTimeout bounds each request.
	PerRequestTimeout time.Duration
	// RedirectMaxHops caps redirect following to avoid loops. Zero means default (5).
	RedirectMaxHops int
	// MaxBodyBytes caps the body read. Zero means DefaultMaxBodyBytes.
	MaxBodyBytes int64
}

// statusError reports a non-2xx response.
type statusError struct {
	code int
}

func (e *statusError) Error() string {
	if e.code >= 500 {
		return fmt.Sprintf("server error: %d", e.code)
	}
	return fmt.Sprintf("unexpected status: %d", e.code)
}

func (c *Client) getHTTPClient() *http.Client {
	if c.HTTPClient != nil {
		// Clone to attach our redirect policy without mutating caller's client
		base := *c.HTTPClient
		base.CheckRedirect = c.checkRedirectFunc()
		return &base
	}
	return &http.Client{Timeout: c.PerRequestTimeout, CheckRedirect: c.checkRedirectFunc()}
}

// Load implements page.Loader for http(s) targets.
func (c *Client) Load(ctx context.Context, target string) (page.Document, error) {
	body, finalURL, err := c.Get(ctx, target)
	if err != nil {
		return page.Document{}, err
	}
	return page.Document{URL: finalURL, HTML: body}, nil
}

// Get issues a GET with context, user-agent, and bounded retry for transient
// errors. It returns the body and the final URL after redirects.
func (c *Client) Get(ctx context.Context, rawURL string) ([]byte, string, error) {
	attempts := c.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}
	var lastErr error
	for i := 0; i < attempts; i++ {
		body, finalURL, err := c.tryOnce(ctx, rawURL)
		if err == nil {
			return body, finalURL, nil
		}
		if !isTransient(err) || i == attempts-1 {
			return nil, "", err
		}
		lastErr = err
		log.Debug().Err(err).Str("url", rawURL).Int("attempt", i+1).Msg("page fetch failed; retrying")
		select {
		case <-ctx.Done():
			return nil, "", ctx.Err()
		case <-time.After(time.Duration(i+1) * 200 * time.Millisecond):
		}
	}
	if lastErr == nil {
		lastErr = errors.New("unknown error")
	}
	return nil, "", lastErr
}

func (c *Client) tryOnce(ctx context.Context, rawURL string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, "", fmt.Errorf("new request: %w", err)
	}
	// Reject non-HTTP(S) schemes early
	if !isHTTPScheme(req.URL) {
		return nil, "", fmt.Errorf("unsupported URL scheme: %q", req.URL.String())
	}
	if c.UserAgent != "" {
		req.Header.Set("User-Agent", c.UserAgent)
	}
	req.Header.Set("Accept", "text/html,application/xhtml+xml;q=0.9,*/*;q=0.1")

	if c.PerRequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(req.Context(), c.PerRequestTimeout)
		defer cancel()
		req = req.WithContext(ctx)
	}

	resp, err := c.getHTTPClient().Do(req)
	if err != nil {
		return nil, "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, "", &statusError{code: resp.StatusCode}
	}
	contentType := resp.Header.Get("Content-Type")
	if !isAllowedHTMLContentType(contentType) {
		return nil, "", fmt.Errorf("unsupported content type: %s", contentType)
	}
	limit := c.MaxBodyBytes
	if limit <= 0 {
		limit = DefaultMaxBodyBytes
	}
	b, err := io.ReadAll(io.LimitReader(resp.Body, limit))
	if err != nil {
		return nil, "", fmt.Errorf("read body: %w", err)
	}
	finalURL := rawURL
	if resp.Request != nil && resp.Request.URL != nil {
		finalURL = resp.Request.URL.String()
	}
	return b, finalURL, nil
}

func isTransient(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var se *statusError
	if errors.As(err, &se) {
		return se.code >= 500 || se.code == http.StatusTooManyRequests
	}
	return false
}

func (c *Client) checkRedirectFunc() func(req *http.Request, via []*http.Request) error {
	max := c.RedirectMaxHops
	if max <= 0 {
		max = 5
	}
	return func(req *http.Request, via []*http.Request) error {
		if len(via) >= max {
			return errors.New("too many redirects")
		}
		// Only allow http/https during redirects
		if !isHTTPScheme(req.URL) {
			return errors.New("redirect to unsupported scheme")
		}
		return nil
	}
}

func isHTTPScheme(u *url.URL) bool {
	if u == nil {
		return false
	}
	scheme := strings.ToLower(u.Scheme)
	return scheme == "http" || scheme == "https"
}

func isAllowedHTMLContentType(ct string) bool {
	ct = strings.ToLower(strings.TrimSpace(ct))
	// An absent header is common for static hosts; let the parser decide.
	if ct == "" {
		return true
	}
	return strings.HasPrefix(ct, "text/html") || strings.HasPrefix(ct, "application/xhtml+xml")
}

// FileLoader reads a saved page from disk. Targets may be plain paths or
// file:// URLs.
type FileLoader struct {
	MaxBodyBytes int64
}

func (l FileLoader) Load(ctx context.Context, target string) (page.Document, error) {
	if err := ctx.Err(); err != nil {
		return page.Document{}, err
	}
	path := strings.TrimPrefix(target, "file://")
	abs, err := filepath.Abs(path)
	if err != nil {
		return page.Document{}, fmt.Errorf("resolve path: %w", err)
	}
	f, err := os.Open(abs)
	if err != nil {
		return page.Document{}, fmt.Errorf("open page: %w", err)
	}
	defer f.Close()
	limit := l.MaxBodyBytes
	if limit <= 0 {
		limit = DefaultMaxBodyBytes
	}
	b, err := io.ReadAll(io.LimitReader(f, limit))
	if err != nil {
		return page.Document{}, fmt.Errorf("read page: %w", err)
	}
	u := url.URL{Scheme: "file", Path: filepath.ToSlash(abs)}
	return page.Document{URL: u.String(), HTML: b}, nil
}

// IsLocal reports whether target names a file rather than a web address.
func IsLocal(target string) bool {
	if strings.HasPrefix(target, "file://") {
		return true
	}
	if u, err := url.Parse(target); err == nil && isHTTPScheme(u) {
		return false
	}
	_, err := os.Stat(target)
	return err == nil
}
