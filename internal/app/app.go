// Package app wires the page loaders, the extractor and the orchestrator into
// one run and owns user-facing validation, status and settings persistence.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/hyperifyio/pagecopilot/internal/browser"
	"github.com/hyperifyio/pagecopilot/internal/cache"
	"github.com/hyperifyio/pagecopilot/internal/channel"
	"github.com/hyperifyio/pagecopilot/internal/download"
	"github.com/hyperifyio/pagecopilot/internal/errs"
	"github.com/hyperifyio/pagecopilot/internal/extract"
	"github.com/hyperifyio/pagecopilot/internal/fetch"
	"github.com/hyperifyio/pagecopilot/internal/llm"
	"github.com/hyperifyio/pagecopilot/internal/orchestrator"
	"github.com/hyperifyio/pagecopilot/internal/page"
	"github.com/hyperifyio/pagecopilot/internal/settings"
	"github.com/hyperifyio/pagecopilot/internal/validate"
)

// Outcome is the envelope every run ends with. Error is set exactly when
// Success is false.
type Outcome struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
	File    string `json:"file,omitempty"`
	Content string `json:"-"`
}

// Controller drives one run: validate, extract, generate, persist.
type Controller struct {
	Extractor    channel.Channel[extract.Request, extract.Response]
	Orchestrator channel.Channel[orchestrator.Request, orchestrator.Result]
	// Store is optional. Without it nothing is persisted.
	Store    settings.Store
	Reporter Reporter
	Now      func() time.Time
}

// Run processes one page. It never returns a Go error; failures are folded
// into the Outcome with a user-facing message.
func (c *Controller) Run(ctx context.Context, in validate.Input) Outcome {
	c.report(StageValidate, "checking input")
	if err := validate.Check(in); err != nil {
		return c.fail(err)
	}

	c.report(StageExtract, "extracting "+strings.TrimSpace(in.Target))
	ext, err := c.Extractor.Send(ctx, extract.Request{Target: strings.TrimSpace(in.Target)})
	if err != nil {
		return c.fail(classify(ctx, errs.Extraction, err))
	}
	if !ext.Success || ext.Data == nil {
		msg := ext.Error
		if msg == "" {
			msg = "could not extract the page"
		}
		return c.fail(errs.New(errs.Extraction, msg))
	}
	snap := *ext.Data
	log.Debug().Str("url", snap.URL).Str("title", snap.Title).Msg("page extracted")

	c.report(StageGenerate, fmt.Sprintf("asking the model (%d images, %d links)", len(snap.Images), len(snap.Links)))
	res, err := c.Orchestrator.Send(ctx, orchestrator.Request{
		Snapshot:     snap,
		APIKey:       strings.TrimSpace(in.APIKey),
		SystemPrompt: strings.TrimSpace(in.SystemPrompt),
		UserPrompt:   strings.TrimSpace(in.UserPrompt),
		Format:       strings.ToLower(strings.TrimSpace(in.Format)),
	})
	if err != nil {
		return c.fail(classify(ctx, errs.FatalAPI, err))
	}
	if !res.Success {
		kind := res.Kind
		if kind == "" {
			kind = errs.FatalAPI
		}
		msg := res.Error
		if msg == "" {
			msg = "generation failed"
		}
		return c.fail(errs.New(kind, msg))
	}

	c.persist(ctx, in)
	c.report(StageDone, "saved "+res.File)
	return Outcome{Success: true, File: res.File, Content: res.Content}
}

// persist saves the input and records the prompt in the history. A failed
// save is logged but does not fail the run.
func (c *Controller) persist(ctx context.Context, in validate.Input) {
	if c.Store == nil {
		return
	}
	s, err := c.Store.Load(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("could not load settings; starting fresh")
		s = settings.Settings{}
	}
	s.APIKey = strings.TrimSpace(in.APIKey)
	s.UserPrompt = strings.TrimSpace(in.UserPrompt)
	s.Format = strings.ToLower(strings.TrimSpace(in.Format))
	// The per-format default is derived at startup, so only a custom
	// system prompt is worth remembering.
	s.SystemPrompt = strings.TrimSpace(in.SystemPrompt)
	if isDefaultSystemPrompt(s.SystemPrompt) {
		s.SystemPrompt = ""
	}
	s.RecordPrompt(s.UserPrompt, c.now())
	if err := c.Store.Save(ctx, s); err != nil {
		log.Warn().Err(err).Msg("could not save settings")
	}
}

func (c *Controller) fail(err error) Outcome {
	msg := errs.Friendly(err)
	log.Debug().Err(err).Str("kind", string(errs.KindOf(err))).Msg("run failed")
	c.report(StageFailed, msg)
	return Outcome{Error: msg}
}

func (c *Controller) report(stage Stage, msg string) {
	if c.Reporter == nil {
		logReporter{}.Report(stage, msg)
		return
	}
	c.Reporter.Report(stage, msg)
}

func (c *Controller) now() time.Time {
	if c.Now != nil {
		return c.Now()
	}
	return time.Now()
}

// classify tags a channel-level error, preferring cancellation.
func classify(ctx context.Context, kind errs.Kind, err error) error {
	if ctx.Err() != nil || errors.Is(err, context.Canceled) {
		return errs.Wrap(errs.Cancelled, err, "the run was cancelled")
	}
	if errs.KindOf(err) != "" {
		return err
	}
	return errs.Wrap(kind, err, "%v", err)
}

// App is a Controller wired from a Config.
type App struct {
	cfg        Config
	Controller *Controller
}

// New builds the loaders, the extractor, the model client and the
// orchestrator described by cfg, connected through isolated channels.
func New(ctx context.Context, cfg Config, store settings.Store, reporter Reporter) (*App, error) {
	if err := ValidateConfig(cfg); err != nil {
		return nil, err
	}
	httpClient := newHTTPClient(cfg.Timeout)

	var web page.Loader = &fetch.Client{HTTPClient: httpClient, UserAgent: userAgent, MaxAttempts: 2}
	if cfg.Browser {
		cl := browser.NewChromeLoader()
		cl.ExecPath = cfg.ChromePath
		cl.UserAgent = userAgent
		cl.AcceptLanguage = cfg.Language
		if cfg.Timeout > 0 {
			cl.Timeout = cfg.Timeout
		}
		web = cl
	}
	svc := &extract.Service{
		Loader:    Router{File: fetch.FileLoader{}, Web: web},
		Extractor: extract.DOMExtractor{Options: extract.Options{Readable: cfg.Readable}},
	}

	client, err := newLLMClient(cfg, httpClient)
	if err != nil {
		return nil, err
	}

	var dl download.Downloader = &download.Dir{Path: cfg.OutputDir, StrictPerms: cfg.StrictPerms}
	if cfg.PDF {
		dl = download.WithPDF{Next: dl}
	}

	orch := &orchestrator.Orchestrator{
		Client:     client,
		Downloader: dl,
		Model:      cfg.Model,
		Cache:      openCache(cfg),
	}

	log.Debug().
		Str("provider", cfg.Provider).
		Str("model", cfg.Model).
		Bool("browser", cfg.Browser).
		Str("output", cfg.OutputDir).
		Msg("pipeline ready")

	return &App{
		cfg: cfg,
		Controller: &Controller{
			Extractor:    channel.Isolated[extract.Request, extract.Response]{Next: channel.Func[extract.Request, extract.Response](svc.Handle)},
			Orchestrator: channel.Isolated[orchestrator.Request, orchestrator.Result]{Next: channel.Func[orchestrator.Request, orchestrator.Result](orch.Handle)},
			Store:        store,
			Reporter:     reporter,
		},
	}, nil
}

// Run processes cfg.Target with the configured input.
func (a *App) Run(ctx context.Context) Outcome {
	return a.Controller.Run(ctx, a.cfg.input())
}

func (c Config) input() validate.Input {
	return validate.Input{
		APIKey:       c.APIKey,
		SystemPrompt: c.SystemPrompt,
		UserPrompt:   c.UserPrompt,
		Format:       c.Format,
		Target:       c.Target,
	}
}

const userAgent = "pagecopilot/1.0 (+https://github.com/hyperifyio/pagecopilot)"

func newLLMClient(cfg Config, httpClient *http.Client) (llm.Client, error) {
	switch cfg.Provider {
	case ProviderGemini:
		return &llm.Gemini{Endpoint: cfg.Endpoint, Model: cfg.Model, HTTPClient: httpClient}, nil
	case ProviderOpenAI:
		return &llm.OpenAI{BaseURL: cfg.Endpoint, Model: cfg.Model, HTTPClient: httpClient}, nil
	}
	return nil, fmt.Errorf("unknown provider %q", cfg.Provider)
}

// openCache applies the cache maintenance flags and returns the response
// cache, or nil when caching is off.
func openCache(cfg Config) *cache.LLMCache {
	if strings.TrimSpace(cfg.CacheDir) == "" {
		return nil
	}
	if cfg.CacheClear {
		if err := cache.ClearDir(cfg.CacheDir); err != nil {
			log.Warn().Err(err).Msg("cache clear failed")
		}
	}
	if cfg.CacheMaxAge > 0 {
		if n, err := cache.PurgeByAge(cfg.CacheDir, cfg.CacheMaxAge); err != nil {
			log.Warn().Err(err).Msg("cache purge failed")
		} else if n > 0 {
			log.Debug().Int("removed", n).Msg("purged expired cache entries")
		}
	}
	return &cache.LLMCache{Dir: cfg.CacheDir, StrictPerms: cfg.CacheStrictPerms, MaxAge: cfg.CacheMaxAge}
}

// OpenStore opens the settings backend named by cfg. The returned close
// function is never nil.
func OpenStore(cfg Config) (settings.Store, func() error, error) {
	noop := func() error { return nil }
	path := cfg.SettingsPath
	if path == "" {
		p, err := settings.DefaultPath()
		if err != nil {
			return nil, noop, fmt.Errorf("settings path: %w", err)
		}
		path = p
		if cfg.SettingsBackend == BackendSQLite {
			path = strings.TrimSuffix(p, filepath.Ext(p)) + ".db"
		}
	}
	switch cfg.SettingsBackend {
	case BackendSQLite:
		s, err := settings.OpenSQLite(path)
		if err != nil {
			return nil, noop, err
		}
		return s, s.Close, nil
	case BackendFile, "":
		return &settings.FileStore{Path: path}, noop, nil
	}
	return nil, noop, fmt.Errorf("unknown settings backend %q", cfg.SettingsBackend)
}
