package app

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	yaml "gopkg.in/yaml.v3"
)

// FileConfig represents the single-file configuration schema.
type FileConfig struct {
	Provider     string `yaml:"provider" json:"provider"`
	Model        string `yaml:"model" json:"model"`
	Endpoint     string `yaml:"endpoint" json:"endpoint"`
	APIKey       string `yaml:"apiKey" json:"apiKey"`
	Format       string `yaml:"format" json:"format"`
	SystemPrompt string `yaml:"systemPrompt" json:"systemPrompt"`
	Readable     bool   `yaml:"readable" json:"readable"`
	Verbose      bool   `yaml:"verbose" json:"verbose"`

	Timeout time.Duration `yaml:"timeout" json:"timeout"`

	Output struct {
		Dir         string `yaml:"dir" json:"dir"`
		PDF         bool   `yaml:"pdf" json:"pdf"`
		StrictPerms bool   `yaml:"strictPerms" json:"strictPerms"`
	} `yaml:"output" json:"output"`

	Browser struct {
		Enable     bool   `yaml:"enable" json:"enable"`
		ChromePath string `yaml:"chromePath" json:"chromePath"`
		Language   string `yaml:"language" json:"language"`
	} `yaml:"browser" json:"browser"`

	Settings struct {
		Backend string `yaml:"backend" json:"backend"`
		Path    string `yaml:"path" json:"path"`
	} `yaml:"settings" json:"settings"`

	Cache struct {
		Dir         string        `yaml:"dir" json:"dir"`
		MaxAge      time.Duration `yaml:"maxAge" json:"maxAge"`
		StrictPerms bool          `yaml:"strictPerms" json:"strictPerms"`
	} `yaml:"cache" json:"cache"`
}

// LoadConfigFile reads YAML or JSON into FileConfig.
func LoadConfigFile(path string) (FileConfig, error) {
	var fc FileConfig
	b, err := os.ReadFile(path)
	if err != nil {
		return fc, err
	}
	switch ext := filepath.Ext(path); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(b, &fc); err != nil {
			return fc, fmt.Errorf("parse yaml: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(b, &fc); err != nil {
			return fc, fmt.Errorf("parse json: %w", err)
		}
	default:
		if err := yaml.Unmarshal(b, &fc); err != nil {
			if jerr := json.Unmarshal(b, &fc); jerr != nil {
				return fc, fmt.Errorf("parse config: %v (yaml) / %v (json)", err, jerr)
			}
		}
	}
	return fc, nil
}

// ApplyFileConfig overlays values from FileConfig into cfg for any fields that
// are still unset. Flags and environment have already been applied.
func ApplyFileConfig(cfg *Config, fc FileConfig) {
	if cfg == nil {
		return
	}
	setString := func(dst *string, v string) {
		if *dst == "" && v != "" {
			*dst = v
		}
	}
	setString(&cfg.Provider, fc.Provider)
	setString(&cfg.Model, fc.Model)
	setString(&cfg.Endpoint, fc.Endpoint)
	setString(&cfg.APIKey, fc.APIKey)
	setString(&cfg.Format, fc.Format)
	setString(&cfg.SystemPrompt, fc.SystemPrompt)
	setString(&cfg.OutputDir, fc.Output.Dir)
	setString(&cfg.ChromePath, fc.Browser.ChromePath)
	setString(&cfg.Language, fc.Browser.Language)
	setString(&cfg.SettingsBackend, fc.Settings.Backend)
	setString(&cfg.SettingsPath, fc.Settings.Path)
	setString(&cfg.CacheDir, fc.Cache.Dir)

	if cfg.Timeout == 0 && fc.Timeout > 0 {
		cfg.Timeout = fc.Timeout
	}
	if cfg.CacheMaxAge == 0 && fc.Cache.MaxAge > 0 {
		cfg.CacheMaxAge = fc.Cache.MaxAge
	}
	if !cfg.Readable && fc.Readable {
		cfg.Readable = true
	}
	if !cfg.Verbose && fc.Verbose {
		cfg.Verbose = true
	}
	if !cfg.PDF && fc.Output.PDF {
		cfg.PDF = true
	}
	if !cfg.StrictPerms && fc.Output.StrictPerms {
		cfg.StrictPerms = true
	}
	if !cfg.Browser && fc.Browser.Enable {
		cfg.Browser = true
	}
	if !cfg.CacheStrictPerms && fc.Cache.StrictPerms {
		cfg.CacheStrictPerms = true
	}
}

// ValidateConfig checks the settings that decide how the pipeline is wired.
// User input (key, prompts, format, target) is checked per run by the
// controller instead.
func ValidateConfig(cfg Config) error {
	switch cfg.Provider {
	case ProviderGemini:
	case ProviderOpenAI:
		if strings.TrimSpace(cfg.Model) == "" {
			return errors.New("config: model is required for the openai provider (or set PAGECOPILOT_MODEL)")
		}
	default:
		return fmt.Errorf("config: unknown provider %q (use %s or %s)", cfg.Provider, ProviderGemini, ProviderOpenAI)
	}
	switch cfg.SettingsBackend {
	case BackendFile, BackendSQLite:
	default:
		return fmt.Errorf("config: unknown settings backend %q (use %s or %s)", cfg.SettingsBackend, BackendFile, BackendSQLite)
	}
	if cfg.Timeout < 0 || cfg.CacheMaxAge < 0 {
		return errors.New("config: negative durations are not allowed")
	}
	return nil
}
