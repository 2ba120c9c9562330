package app

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/hyperifyio/pagecopilot/internal/llm"
	"github.com/hyperifyio/pagecopilot/internal/orchestrator"
	"github.com/hyperifyio/pagecopilot/internal/page"
	"github.com/hyperifyio/pagecopilot/internal/settings"
	"github.com/hyperifyio/pagecopilot/internal/template"
)

func TestApplyEnvToConfig(t *testing.T) {
	t.Setenv(EnvAPIKey, "")
	t.Setenv(EnvGeminiAPIKey, "gemini-fallback-key-0123")
	t.Setenv(EnvModel, "gemini-1.5-pro")
	t.Setenv(EnvCacheMaxAge, "2h")
	t.Setenv(EnvPDF, "yes")
	t.Setenv(EnvFormat, "json")

	cfg := Config{Format: "csv"}
	ApplyEnvToConfig(&cfg)

	if cfg.APIKey != "gemini-fallback-key-0123" {
		t.Fatalf("api key = %q", cfg.APIKey)
	}
	if cfg.Model != "gemini-1.5-pro" || cfg.CacheMaxAge != 2*time.Hour || !cfg.PDF {
		t.Fatalf("cfg = %+v", cfg)
	}
	if cfg.Format != "csv" {
		t.Fatalf("explicit value overridden by env: %q", cfg.Format)
	}
}

func TestApplyEnvToConfig_PrefersOwnKey(t *testing.T) {
	t.Setenv(EnvAPIKey, "own-key-0123456789abcd")
	t.Setenv(EnvGeminiAPIKey, "gemini-key-0123456789ab")
	var cfg Config
	ApplyEnvToConfig(&cfg)
	if cfg.APIKey != "own-key-0123456789abcd" {
		t.Fatalf("api key = %q", cfg.APIKey)
	}
}

func TestLoadConfigFile_YAMLAndJSON(t *testing.T) {
	dir := t.TempDir()
	yml := filepath.Join(dir, "pagecopilot.yaml")
	if err := os.WriteFile(yml, []byte(`
provider: openai
model: gpt-4o-mini
endpoint: http://localhost:11434/v1
output:
  dir: /tmp/out
  pdf: true
cache:
  dir: /tmp/cache
  maxAge: 1h
settings:
  backend: sqlite
`), 0o644); err != nil {
		t.Fatal(err)
	}
	fc, err := LoadConfigFile(yml)
	if err != nil {
		t.Fatalf("load yaml: %v", err)
	}
	var cfg Config
	ApplyFileConfig(&cfg, fc)
	want := Config{
		Provider:        ProviderOpenAI,
		Model:           "gpt-4o-mini",
		Endpoint:        "http://localhost:11434/v1",
		OutputDir:       "/tmp/out",
		PDF:             true,
		CacheDir:        "/tmp/cache",
		CacheMaxAge:     time.Hour,
		SettingsBackend: BackendSQLite,
	}
	if diff := cmp.Diff(want, cfg); diff != "" {
		t.Fatalf("config mismatch (-want +got):\n%s", diff)
	}

	js := filepath.Join(dir, "pagecopilot.json")
	if err := os.WriteFile(js, []byte(`{"format":"links","browser":{"enable":true}}`), 0o644); err != nil {
		t.Fatal(err)
	}
	fc, err = LoadConfigFile(js)
	if err != nil {
		t.Fatalf("load json: %v", err)
	}
	cfg = Config{Format: "csv"}
	ApplyFileConfig(&cfg, fc)
	if cfg.Format != "csv" || !cfg.Browser {
		t.Fatalf("cfg = %+v", cfg)
	}
}

func TestLoadConfigFile_Invalid(t *testing.T) {
	p := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(p, []byte("provider: [unclosed"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadConfigFile(p); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestApplySettingsThenDefaults(t *testing.T) {
	cfg := Config{UserPrompt: "from flag"}
	ApplySettings(&cfg, settings.Settings{APIKey: "saved-key", UserPrompt: "saved prompt", Format: "links"})
	ApplyDefaults(&cfg)
	if cfg.APIKey != "saved-key" || cfg.UserPrompt != "from flag" || cfg.Format != "links" {
		t.Fatalf("cfg = %+v", cfg)
	}
	if cfg.Provider != ProviderGemini || cfg.Model != llm.DefaultGeminiModel {
		t.Fatalf("provider defaults = %s/%s", cfg.Provider, cfg.Model)
	}
	if cfg.SystemPrompt != template.SystemPrompt("links") {
		t.Fatalf("system prompt = %q", cfg.SystemPrompt)
	}
	if cfg.SettingsBackend != BackendFile || cfg.Timeout != defaultTimeout || cfg.OutputDir == "" {
		t.Fatalf("cfg = %+v", cfg)
	}
}

func TestApplySettings_DefaultSystemPromptFollowsFormat(t *testing.T) {
	f := &fakes{}
	store := &memStore{}
	c, _ := f.controller(okSnapshot(), orchestrator.Result{Success: true, Content: "a,b"}, store)

	first := Config{APIKey: goodInput().APIKey, UserPrompt: "List the links", Format: "csv", Target: "https://example.com/"}
	ApplyDefaults(&first)
	if out := c.Run(context.Background(), first.input()); !out.Success {
		t.Fatalf("first run: %+v", out)
	}
	if store.s.SystemPrompt != "" {
		t.Fatalf("generated system prompt was saved: %q", store.s.SystemPrompt)
	}

	second := Config{Format: "json"}
	ApplySettings(&second, store.s)
	ApplyDefaults(&second)
	if second.SystemPrompt != template.SystemPrompt("json") {
		t.Fatalf("second run system prompt = %q", second.SystemPrompt)
	}
}

func TestApplySettings_IgnoresSavedDefaultSystemPrompt(t *testing.T) {
	cfg := Config{Format: "json"}
	ApplySettings(&cfg, settings.Settings{SystemPrompt: template.SystemPrompt("csv"), Format: "csv"})
	ApplyDefaults(&cfg)
	if cfg.SystemPrompt != template.SystemPrompt("json") {
		t.Fatalf("system prompt = %q", cfg.SystemPrompt)
	}

	cfg = Config{Format: "json"}
	ApplySettings(&cfg, settings.Settings{SystemPrompt: "Be terse.", Format: "csv"})
	ApplyDefaults(&cfg)
	if cfg.SystemPrompt != "Be terse." {
		t.Fatalf("custom system prompt lost: %q", cfg.SystemPrompt)
	}
}

func TestValidateConfig(t *testing.T) {
	base := Config{}
	ApplyDefaults(&base)
	if err := ValidateConfig(base); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"unknown provider", func(c *Config) { c.Provider = "claude" }, "unknown provider"},
		{"openai without model", func(c *Config) { c.Provider = ProviderOpenAI; c.Model = "" }, "model is required"},
		{"unknown backend", func(c *Config) { c.SettingsBackend = "redis" }, "unknown settings backend"},
		{"negative timeout", func(c *Config) { c.Timeout = -time.Second }, "negative"},
	}
	for _, tt := range tests {
		cfg := base
		tt.mutate(&cfg)
		err := ValidateConfig(cfg)
		if err == nil || !strings.Contains(err.Error(), tt.want) {
			t.Errorf("%s: err = %v, want %q", tt.name, err, tt.want)
		}
	}
}

func TestOpenStore(t *testing.T) {
	dir := t.TempDir()
	for _, backend := range []string{BackendFile, BackendSQLite} {
		cfg := Config{SettingsBackend: backend, SettingsPath: filepath.Join(dir, "settings-"+backend)}
		store, closeStore, err := OpenStore(cfg)
		if err != nil {
			t.Fatalf("%s: open: %v", backend, err)
		}
		want := settings.Settings{APIKey: "k", Format: "csv"}
		if err := store.Save(context.Background(), want); err != nil {
			t.Fatalf("%s: save: %v", backend, err)
		}
		got, err := store.Load(context.Background())
		if err != nil || got.APIKey != "k" || got.Format != "csv" {
			t.Fatalf("%s: load = %+v, %v", backend, got, err)
		}
		if err := closeStore(); err != nil {
			t.Fatalf("%s: close: %v", backend, err)
		}
	}
	if _, _, err := OpenStore(Config{SettingsBackend: "redis", SettingsPath: "x"}); err == nil {
		t.Fatal("expected error for unknown backend")
	}
}

type namedLoader string

func (n namedLoader) Load(_ context.Context, target string) (page.Document, error) {
	return page.Document{URL: string(n) + ":" + target}, nil
}

func TestRouter(t *testing.T) {
	local := filepath.Join(t.TempDir(), "page.html")
	if err := os.WriteFile(local, []byte("<p>x</p>"), 0o644); err != nil {
		t.Fatal(err)
	}
	r := Router{File: namedLoader("file"), Web: namedLoader("web")}
	tests := map[string]string{
		local:                  "file",
		"file://" + local:      "file",
		"https://example.com/": "web",
		"http://example.com/":  "web",
	}
	for target, want := range tests {
		doc, err := r.Load(context.Background(), target)
		if err != nil {
			t.Fatalf("%s: %v", target, err)
		}
		if !strings.HasPrefix(doc.URL, want+":") {
			t.Errorf("%s routed to %s", target, doc.URL)
		}
	}
}
