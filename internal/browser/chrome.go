// Package browser renders pages in headless Chrome so that script-built
// content and natural image sizes are visible to the extractor.
package browser

import (
	"context"
	"fmt"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"github.com/rs/zerolog/log"

	"github.com/hyperifyio/pagecopilot/internal/page"
)

// imageSizesJS collects natural sizes the way the page itself reports them.
const imageSizesJS = `Array.from(document.images)
  .filter(img => img.currentSrc || img.src)
  .map(img => ({src: img.currentSrc || img.src, width: img.naturalWidth, height: img.naturalHeight}))`

type imageSize struct {
	Src    string `json:"src"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

// ChromeLoader implements page.Loader with chromedp.
type ChromeLoader struct {
	// ExecPath overrides Chrome discovery when set.
	ExecPath string
	// Headless defaults to true through NewChromeLoader.
	Headless bool
	// Timeout bounds navigation plus capture. Zero means 30s.
	Timeout time.Duration
	// Settle waits after the load event so late scripts can render.
	Settle    time.Duration
	UserAgent string
	// AcceptLanguage, when set, is sent with every request the tab makes.
	AcceptLanguage string
}

func NewChromeLoader() *ChromeLoader {
	return &ChromeLoader{Headless: true, Timeout: 30 * time.Second, Settle: 500 * time.Millisecond}
}

func (l *ChromeLoader) allocatorOptions() []chromedp.ExecAllocatorOption {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", l.Headless),
		chromedp.Flag("disable-gpu", true),
	)
	if l.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(l.ExecPath))
	}
	if l.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(l.UserAgent))
	}
	return opts
}

// Load navigates to target and captures the rendered DOM.
func (l *ChromeLoader) Load(ctx context.Context, target string) (page.Document, error) {
	timeout := l.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, l.allocatorOptions()...)
	defer cancelAlloc()
	tabCtx, cancelTab := chromedp.NewContext(allocCtx)
	defer cancelTab()
	tabCtx, cancelTimeout := context.WithTimeout(tabCtx, timeout)
	defer cancelTimeout()

	var (
		html     string
		finalURL string
		sizes    []imageSize
	)
	var actions []chromedp.Action
	if l.AcceptLanguage != "" {
		actions = append(actions,
			network.Enable(),
			network.SetExtraHTTPHeaders(network.Headers{"Accept-Language": l.AcceptLanguage}),
		)
	}
	actions = append(actions,
		chromedp.Navigate(target),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Sleep(l.Settle),
		chromedp.Location(&finalURL),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
		chromedp.Evaluate(imageSizesJS, &sizes),
	)
	if err := chromedp.Run(tabCtx, actions...); err != nil {
		return page.Document{}, fmt.Errorf("render page: %w", err)
	}
	doc := page.Document{URL: finalURL, HTML: []byte(html), ImageSizes: make(map[string]page.Size, len(sizes))}
	for _, s := range sizes {
		doc.ImageSizes[s.Src] = page.Size{Width: s.Width, Height: s.Height}
	}
	log.Debug().Str("url", finalURL).Int("bytes", len(html)).Int("images", len(sizes)).Msg("page rendered")
	return doc, nil
}
