package orchestrator

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/hyperifyio/pagecopilot/internal/cache"
	"github.com/hyperifyio/pagecopilot/internal/download"
	"github.com/hyperifyio/pagecopilot/internal/errs"
	"github.com/hyperifyio/pagecopilot/internal/llm"
	"github.com/hyperifyio/pagecopilot/internal/page"
)

// scriptedClient replays errs in order and then answers with text.
type scriptedClient struct {
	mu    sync.Mutex
	errs  []error
	text  string
	calls []llm.Request
}

func (c *scriptedClient) Generate(_ context.Context, req llm.Request) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, req)
	if i := len(c.calls) - 1; i < len(c.errs) && c.errs[i] != nil {
		return "", c.errs[i]
	}
	return c.text, nil
}

type memDownloader struct {
	items []download.Item
	err   error
}

func (m *memDownloader) Download(_ context.Context, item download.Item) (string, error) {
	if m.err != nil {
		return "", m.err
	}
	m.items = append(m.items, item)
	return "/downloads/" + item.Filename, nil
}

type recordingSleep struct{ delays []time.Duration }

func (r *recordingSleep) sleep(_ context.Context, d time.Duration) error {
	r.delays = append(r.delays, d)
	return nil
}

var fixedNow = time.Date(2024, 3, 5, 14, 7, 9, 0, time.UTC)

func newTestOrchestrator(c llm.Client) (*Orchestrator, *memDownloader, *recordingSleep) {
	d := &memDownloader{}
	s := &recordingSleep{}
	return &Orchestrator{
		Client:     c,
		Downloader: d,
		Model:      "gemini-2.0-flash",
		Sleep:      s.sleep,
		Now:        func() time.Time { return fixedNow },
	}, d, s
}

func testRequest() Request {
	return Request{
		Snapshot:     page.Snapshot{URL: "https://example.com/", Title: "My Page!", Text: "hello"},
		APIKey:       "AIzaSyTestKey_0123456789",
		SystemPrompt: "You are a data extraction assistant.",
		UserPrompt:   "Summarise the page",
		Format:       "text",
	}
}

func apiErr(status int) error {
	return &llm.APIError{StatusCode: status, Message: "status"}
}

func TestGenerate_PersistentRateLimitExhaustsAfterFourAttempts(t *testing.T) {
	c := &scriptedClient{errs: []error{apiErr(429), apiErr(429), apiErr(429), apiErr(429), apiErr(429)}}
	o, d, s := newTestOrchestrator(c)

	_, err := o.Generate(context.Background(), testRequest())
	if err == nil {
		t.Fatal("expected error")
	}
	if len(c.calls) != 4 {
		t.Fatalf("attempts = %d, want 4", len(c.calls))
	}
	if diff := cmp.Diff([]time.Duration{time.Second, 2 * time.Second, 4 * time.Second}, s.delays); diff != "" {
		t.Fatalf("delays mismatch (-want +got):\n%s", diff)
	}
	if !errors.Is(err, ErrRetriesExhausted) {
		t.Fatalf("expected ErrRetriesExhausted, got %v", err)
	}
	if errs.KindOf(err) != errs.TransientAPI {
		t.Fatalf("kind = %q", errs.KindOf(err))
	}
	if !strings.Contains(err.Error(), "Rate limit") {
		t.Fatalf("message = %q", err.Error())
	}
	if len(d.items) != 0 {
		t.Fatal("nothing should be downloaded on failure")
	}
}

func TestGenerate_RecoversAfterTransientErrors(t *testing.T) {
	c := &scriptedClient{errs: []error{apiErr(503), errors.New("connection reset by peer")}, text: "done"}
	o, d, s := newTestOrchestrator(c)

	res, err := o.Generate(context.Background(), testRequest())
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if len(c.calls) != 3 || len(s.delays) != 2 {
		t.Fatalf("calls=%d delays=%v", len(c.calls), s.delays)
	}
	if res.Content != "done" || len(d.items) != 1 {
		t.Fatalf("unexpected result %+v", res)
	}
}

func TestGenerate_FatalStatusesAreNotRetried(t *testing.T) {
	cases := []struct {
		status int
		want   string
	}{
		{400, "malformed"},
		{401, "Invalid API key"},
		{403, "Permission denied"},
		{404, "status 404"},
	}
	for _, tc := range cases {
		c := &scriptedClient{errs: []error{apiErr(tc.status)}, text: "never"}
		o, _, s := newTestOrchestrator(c)
		_, err := o.Generate(context.Background(), testRequest())
		if err == nil {
			t.Fatalf("%d: expected error", tc.status)
		}
		if len(c.calls) != 1 || len(s.delays) != 0 {
			t.Fatalf("%d: calls=%d delays=%v", tc.status, len(c.calls), s.delays)
		}
		if errs.KindOf(err) != errs.FatalAPI {
			t.Fatalf("%d: kind = %q", tc.status, errs.KindOf(err))
		}
		if !strings.Contains(err.Error(), tc.want) {
			t.Fatalf("%d: message %q does not mention %q", tc.status, err.Error(), tc.want)
		}
	}
}

func TestGenerate_MalformedResponseIsFatal(t *testing.T) {
	c := &scriptedClient{errs: []error{llm.ErrMalformedResponse}}
	o, _, s := newTestOrchestrator(c)
	_, err := o.Generate(context.Background(), testRequest())
	if !errors.Is(err, llm.ErrMalformedResponse) {
		t.Fatalf("expected malformed response error, got %v", err)
	}
	if len(c.calls) != 1 || len(s.delays) != 0 {
		t.Fatalf("malformed response must not be retried")
	}
}

func TestGenerate_CancelledDuringBackoff(t *testing.T) {
	c := &scriptedClient{errs: []error{apiErr(500), apiErr(500)}}
	o, _, _ := newTestOrchestrator(c)
	ctx, cancel := context.WithCancel(context.Background())
	o.Sleep = func(ctx context.Context, d time.Duration) error {
		cancel()
		return Sleep(ctx, d)
	}
	_, err := o.Generate(ctx, testRequest())
	if errs.KindOf(err) != errs.Cancelled {
		t.Fatalf("kind = %q (%v)", errs.KindOf(err), err)
	}
	if len(c.calls) != 1 {
		t.Fatalf("calls = %d, want 1", len(c.calls))
	}
}

func TestGenerate_DownloadsWithSanitisedName(t *testing.T) {
	c := &scriptedClient{text: "hello summary"}
	o, d, _ := newTestOrchestrator(c)

	res, err := o.Generate(context.Background(), testRequest())
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if len(d.items) != 1 {
		t.Fatalf("downloads = %d", len(d.items))
	}
	name := d.items[0].Filename
	if !regexp.MustCompile(`^My_Page_\d{4}-\d{2}-\d{2}T\d{2}-\d{2}-\d{2}\.txt$`).MatchString(name) {
		t.Fatalf("filename = %q", name)
	}
	if name != "My_Page_2024-03-05T14-07-09.txt" {
		t.Fatalf("filename = %q", name)
	}
	if string(d.items[0].Data) != "hello summary" {
		t.Fatalf("data = %q", d.items[0].Data)
	}
	if res.File != "/downloads/"+name || !res.Success {
		t.Fatalf("result = %+v", res)
	}
	if got := c.calls[0]; got.APIKey != testRequest().APIKey || got.MaxOutputTokens != llm.DefaultMaxOutputTokens {
		t.Fatalf("request = %+v", got)
	}
}

func TestGenerate_DownloadFailure(t *testing.T) {
	c := &scriptedClient{text: "x"}
	o, d, _ := newTestOrchestrator(c)
	d.err = errors.New("disk full")
	_, err := o.Generate(context.Background(), testRequest())
	if errs.KindOf(err) != errs.Download {
		t.Fatalf("kind = %q (%v)", errs.KindOf(err), err)
	}
}

func TestGenerate_UsesResponseCache(t *testing.T) {
	c := &scriptedClient{text: "first"}
	o, d, _ := newTestOrchestrator(c)
	o.Cache = &cache.LLMCache{Dir: t.TempDir()}

	for i := 0; i < 2; i++ {
		if _, err := o.Generate(context.Background(), testRequest()); err != nil {
			t.Fatalf("run %d: %v", i, err)
		}
	}
	if len(c.calls) != 1 {
		t.Fatalf("model calls = %d, want 1", len(c.calls))
	}
	if len(d.items) != 2 || string(d.items[1].Data) != "first" {
		t.Fatalf("second run should download the cached content")
	}
}

func TestHandle_ReportsFailureInEnvelope(t *testing.T) {
	c := &scriptedClient{errs: []error{apiErr(401)}}
	o, _, _ := newTestOrchestrator(c)
	res, err := o.Handle(context.Background(), testRequest())
	if err != nil {
		t.Fatalf("handle must not return an error: %v", err)
	}
	if res.Success || res.Kind != errs.FatalAPI || !strings.Contains(res.Error, "Invalid API key") {
		t.Fatalf("result = %+v", res)
	}
}

func TestSleep_HonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	start := time.Now()
	if err := Sleep(ctx, time.Hour); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v", err)
	}
	if time.Since(start) > time.Second {
		t.Fatal("sleep ignored cancellation")
	}
}

func TestCheckBudget_ReservesHeadroom(t *testing.T) {
	tests := []struct {
		name   string
		model  string
		prompt string
		want   bool
	}{
		{"no model", "", strings.Repeat("a", 400_000), true},
		{"small prompt", "gemini-pro", "hello", true},
		// 23,500 tokens fits 32,760 - 8,192 but not once 1,638 tokens of headroom are held back.
		{"inside headroom", "gemini-pro", strings.Repeat("a", 94_000), false},
		{"large window", "gemini-1.5-flash", strings.Repeat("a", 94_000), true},
	}
	for _, tt := range tests {
		o := &Orchestrator{Model: tt.model}
		if got := o.checkBudget(tt.prompt); got != tt.want {
			t.Errorf("%s: checkBudget = %v, want %v", tt.name, got, tt.want)
		}
	}
}
