package app

import (
	"os"
	"strings"
	"time"
)

// Environment variables read by ApplyEnvToConfig.
const (
	EnvAPIKey          = "PAGECOPILOT_API_KEY"
	EnvGeminiAPIKey    = "GEMINI_API_KEY"
	EnvProvider        = "PAGECOPILOT_PROVIDER"
	EnvModel           = "PAGECOPILOT_MODEL"
	EnvEndpoint        = "PAGECOPILOT_ENDPOINT"
	EnvFormat          = "PAGECOPILOT_FORMAT"
	EnvSystemPrompt    = "PAGECOPILOT_SYSTEM_PROMPT"
	EnvOutputDir       = "PAGECOPILOT_OUTPUT_DIR"
	EnvChromePath      = "PAGECOPILOT_CHROME_PATH"
	EnvLanguage        = "PAGECOPILOT_LANGUAGE"
	EnvSettingsBackend = "PAGECOPILOT_SETTINGS_BACKEND"
	EnvSettingsPath    = "PAGECOPILOT_SETTINGS_PATH"
	EnvCacheDir        = "PAGECOPILOT_CACHE_DIR"
	EnvCacheMaxAge     = "PAGECOPILOT_CACHE_MAX_AGE"
	EnvTimeout         = "PAGECOPILOT_TIMEOUT"
	EnvBrowser         = "PAGECOPILOT_BROWSER"
	EnvReadable        = "PAGECOPILOT_READABLE"
	EnvPDF             = "PAGECOPILOT_PDF"
	EnvStrictPerms     = "PAGECOPILOT_STRICT_PERMS"
	EnvVerbose         = "PAGECOPILOT_VERBOSE"
)

// ApplyEnvToConfig populates unset fields of cfg from environment variables.
// Explicit cfg values take precedence over env.
func ApplyEnvToConfig(cfg *Config) {
	if cfg == nil {
		return
	}
	setString := func(dst *string, keys ...string) {
		if *dst != "" {
			return
		}
		for _, k := range keys {
			if v := strings.TrimSpace(os.Getenv(k)); v != "" {
				*dst = v
				return
			}
		}
	}
	setString(&cfg.APIKey, EnvAPIKey, EnvGeminiAPIKey)
	setString(&cfg.Provider, EnvProvider)
	setString(&cfg.Model, EnvModel)
	setString(&cfg.Endpoint, EnvEndpoint)
	setString(&cfg.Format, EnvFormat)
	setString(&cfg.SystemPrompt, EnvSystemPrompt)
	setString(&cfg.OutputDir, EnvOutputDir)
	setString(&cfg.ChromePath, EnvChromePath)
	setString(&cfg.Language, EnvLanguage)
	setString(&cfg.SettingsBackend, EnvSettingsBackend)
	setString(&cfg.SettingsPath, EnvSettingsPath)
	setString(&cfg.CacheDir, EnvCacheDir)

	setDuration := func(dst *time.Duration, key string) {
		if *dst != 0 {
			return
		}
		if d, err := time.ParseDuration(strings.TrimSpace(os.Getenv(key))); err == nil {
			*dst = d
		}
	}
	setDuration(&cfg.CacheMaxAge, EnvCacheMaxAge)
	setDuration(&cfg.Timeout, EnvTimeout)

	setBool := func(dst *bool, key string) {
		if *dst {
			return
		}
		switch strings.ToLower(strings.TrimSpace(os.Getenv(key))) {
		case "1", "true", "yes", "on":
			*dst = true
		}
	}
	setBool(&cfg.Browser, EnvBrowser)
	setBool(&cfg.Readable, EnvReadable)
	setBool(&cfg.PDF, EnvPDF)
	setBool(&cfg.StrictPerms, EnvStrictPerms)
	setBool(&cfg.Verbose, EnvVerbose)
}
