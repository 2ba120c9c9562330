package app

import (
	"os"
	"path/filepath"
	"time"

	"github.com/hyperifyio/pagecopilot/internal/llm"
	"github.com/hyperifyio/pagecopilot/internal/settings"
	"github.com/hyperifyio/pagecopilot/internal/template"
)

// Supported model backends.
const (
	ProviderGemini = "gemini"
	ProviderOpenAI = "openai"
)

// Supported settings backends.
const (
	BackendFile   = "file"
	BackendSQLite = "sqlite"
)

const defaultTimeout = 60 * time.Second

// Config holds runtime configuration for one run.
type Config struct {
	// Page to process: http(s) URL, file:// URL or local path.
	Target string

	// User input
	APIKey       string
	SystemPrompt string
	UserPrompt   string
	Format       string

	// Model backend
	Provider string
	Model    string
	Endpoint string
	Timeout  time.Duration

	// Page loading
	Browser    bool
	ChromePath string
	Language   string
	Readable   bool

	// Downloads
	OutputDir   string
	PDF         bool
	StrictPerms bool

	// Persistence
	SettingsBackend string
	SettingsPath    string
	NoSave          bool

	// Response cache
	CacheDir         string
	CacheMaxAge      time.Duration
	CacheClear       bool
	CacheStrictPerms bool

	Verbose bool
}

// ApplySettings fills unset user input from saved settings.
func ApplySettings(cfg *Config, s settings.Settings) {
	if cfg == nil {
		return
	}
	if cfg.APIKey == "" {
		cfg.APIKey = s.APIKey
	}
	if cfg.SystemPrompt == "" && !isDefaultSystemPrompt(s.SystemPrompt) {
		cfg.SystemPrompt = s.SystemPrompt
	}
	if cfg.UserPrompt == "" {
		cfg.UserPrompt = s.UserPrompt
	}
	if cfg.Format == "" {
		cfg.Format = s.Format
	}
}

// isDefaultSystemPrompt reports whether p is the generated default for some
// output format. Older settings files may still carry one.
func isDefaultSystemPrompt(p string) bool {
	if p == "" {
		return false
	}
	if p == template.DefaultSystemPrompt {
		return true
	}
	for _, f := range template.Formats() {
		if p == template.SystemPrompt(string(f)) {
			return true
		}
	}
	return false
}

// ApplyDefaults fills whatever is still unset after flags, environment,
// config file and saved settings.
func ApplyDefaults(cfg *Config) {
	if cfg == nil {
		return
	}
	if cfg.Provider == "" {
		cfg.Provider = ProviderGemini
	}
	if cfg.Model == "" && cfg.Provider == ProviderGemini {
		cfg.Model = llm.DefaultGeminiModel
	}
	if cfg.Format == "" {
		cfg.Format = string(template.DefaultFormat)
	}
	if cfg.SystemPrompt == "" {
		cfg.SystemPrompt = template.SystemPrompt(cfg.Format)
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.OutputDir == "" {
		cfg.OutputDir = DefaultOutputDir()
	}
	if cfg.SettingsBackend == "" {
		cfg.SettingsBackend = BackendFile
	}
}

// DefaultOutputDir is ~/Downloads when it exists, else the working directory.
func DefaultOutputDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	dir := filepath.Join(home, "Downloads")
	if info, err := os.Stat(dir); err == nil && info.IsDir() {
		return dir
	}
	return "."
}
