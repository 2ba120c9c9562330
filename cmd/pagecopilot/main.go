package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"
	"gopkg.in/natefinch/lumberjack.v2"
	yaml "gopkg.in/yaml.v3"

	"github.com/hyperifyio/pagecopilot/internal/app"
	"github.com/hyperifyio/pagecopilot/internal/settings"
	"github.com/hyperifyio/pagecopilot/internal/template"
)

func main() {
	zerolog.TimeFieldFormat = time.RFC3339

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Warn().Err(err).Msg("could not load .env")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newCLI(os.Stdout, os.Stderr).RunContext(ctx, os.Args); err != nil {
		log.Error().Err(err).Msg("pagecopilot failed")
		os.Exit(1)
	}
}

func newCLI(stdout, stderr io.Writer) *cli.App {
	return &cli.App{
		Name:      "pagecopilot",
		Usage:     "extract a web page and let a model turn it into CSV, text, JSON or a link list",
		Writer:    stdout,
		ErrWriter: stderr,
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Aliases: []string{"c"}, Usage: "YAML or JSON config file", EnvVars: []string{"PAGECOPILOT_CONFIG"}},
			&cli.StringFlag{Name: "settings.backend", Usage: "where settings are saved: file or sqlite"},
			&cli.StringFlag{Name: "settings.path", Usage: "settings file or database path"},
			&cli.BoolFlag{Name: "verbose", Aliases: []string{"v"}, Usage: "verbose logging"},
			&cli.StringFlag{Name: "log.file", Usage: "also write JSON logs to this rotating file"},
		},
		Before: setupLogging,
		Commands: []*cli.Command{
			runCommand(),
			settingsCommand(),
			historyCommand(),
			formatsCommand(),
		},
	}
}

func setupLogging(c *cli.Context) error {
	level := zerolog.InfoLevel
	if c.Bool("verbose") || truthy(os.Getenv(app.EnvVerbose)) {
		level = zerolog.DebugLevel
	}
	zerolog.SetGlobalLevel(level)

	var out io.Writer = zerolog.ConsoleWriter{Out: c.App.ErrWriter, TimeFormat: time.RFC3339}
	if p := strings.TrimSpace(c.String("log.file")); p != "" {
		out = zerolog.MultiLevelWriter(out, &lumberjack.Logger{
			Filename:   p,
			MaxSize:    10, // megabytes
			MaxBackups: 3,
			MaxAge:     28, // days
		})
	}
	log.Logger = zerolog.New(out).With().Timestamp().Str("run", uuid.NewString()).Logger()
	return nil
}

func runCommand() *cli.Command {
	return &cli.Command{
		Name:      "run",
		Usage:     "process one page and save the answer as a download",
		ArgsUsage: "<url-or-file>",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "prompt", Aliases: []string{"p"}, Usage: "what to extract (saved for next time)"},
			&cli.StringFlag{Name: "system", Usage: "system prompt (default depends on the format)"},
			&cli.StringFlag{Name: "format", Aliases: []string{"f"}, Usage: "output format: csv, text, json or links"},
			&cli.StringFlag{Name: "api-key", Usage: "model API key (or PAGECOPILOT_API_KEY / GEMINI_API_KEY)"},
			&cli.StringFlag{Name: "llm.provider", Usage: "gemini or openai"},
			&cli.StringFlag{Name: "llm.model", Usage: "model name"},
			&cli.StringFlag{Name: "llm.endpoint", Usage: "gemini generateContent URL or OpenAI-compatible base URL"},
			&cli.DurationFlag{Name: "timeout", Usage: "per-request timeout"},
			&cli.StringFlag{Name: "out", Aliases: []string{"o"}, Usage: "download directory"},
			&cli.BoolFlag{Name: "pdf", Usage: "also save a PDF copy"},
			&cli.BoolFlag{Name: "strict-perms", Usage: "save downloads with 0600 permissions"},
			&cli.BoolFlag{Name: "readable", Usage: "use the article text instead of the full body text"},
			&cli.BoolFlag{Name: "browser", Usage: "render the page in headless Chrome"},
			&cli.StringFlag{Name: "chrome.path", Usage: "Chrome executable"},
			&cli.StringFlag{Name: "lang", Usage: "Accept-Language for the browser, e.g. en-US or fi"},
			&cli.StringFlag{Name: "cache.dir", Usage: "cache model answers in this directory"},
			&cli.DurationFlag{Name: "cache.maxAge", Usage: "expire cached answers after this long"},
			&cli.BoolFlag{Name: "cache.clear", Usage: "clear the cache before running"},
			&cli.BoolFlag{Name: "cache.strictPerms", Usage: "restrict cache permissions (0700 dirs, 0600 files)"},
			&cli.BoolFlag{Name: "no-save", Usage: "do not persist settings after a successful run"},
			&cli.BoolFlag{Name: "print", Usage: "also print the answer to stdout"},
		},
		Action: runAction,
	}
}

func runAction(c *cli.Context) error {
	cfg := app.Config{
		Target:           strings.TrimSpace(c.Args().First()),
		APIKey:           c.String("api-key"),
		SystemPrompt:     c.String("system"),
		UserPrompt:       c.String("prompt"),
		Format:           c.String("format"),
		Provider:         c.String("llm.provider"),
		Model:            c.String("llm.model"),
		Endpoint:         c.String("llm.endpoint"),
		Timeout:          c.Duration("timeout"),
		Browser:          c.Bool("browser"),
		ChromePath:       c.String("chrome.path"),
		Language:         c.String("lang"),
		Readable:         c.Bool("readable"),
		OutputDir:        c.String("out"),
		PDF:              c.Bool("pdf"),
		StrictPerms:      c.Bool("strict-perms"),
		SettingsBackend:  c.String("settings.backend"),
		SettingsPath:     c.String("settings.path"),
		NoSave:           c.Bool("no-save"),
		CacheDir:         c.String("cache.dir"),
		CacheMaxAge:      c.Duration("cache.maxAge"),
		CacheClear:       c.Bool("cache.clear"),
		CacheStrictPerms: c.Bool("cache.strictPerms"),
		Verbose:          c.Bool("verbose"),
	}
	store, closeStore, err := loadConfig(c, &cfg)
	if err != nil {
		return cli.Exit(err.Error(), 2)
	}
	// verbose may also come from the config file, which is read after Before.
	if cfg.Verbose {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}
	defer closeStore()

	if cfg.NoSave {
		store = nil
	}
	a, err := app.New(c.Context, cfg, store, app.LineReporter{W: c.App.Writer})
	if err != nil {
		return cli.Exit(err.Error(), 2)
	}
	out := a.Run(c.Context)
	if !out.Success {
		return cli.Exit("error: "+out.Error, 1)
	}
	if c.Bool("print") {
		_, _ = fmt.Fprintln(c.App.Writer, out.Content)
	}
	return nil
}

// loadConfig layers environment, config file, saved settings and defaults
// under the flag values already in cfg, and opens the settings store.
func loadConfig(c *cli.Context, cfg *app.Config) (settings.Store, func() error, error) {
	app.ApplyEnvToConfig(cfg)
	if p := strings.TrimSpace(c.String("config")); p != "" {
		fc, err := app.LoadConfigFile(p)
		if err != nil {
			return nil, func() error { return nil }, fmt.Errorf("config file: %w", err)
		}
		app.ApplyFileConfig(cfg, fc)
	}
	if cfg.SettingsBackend == "" {
		cfg.SettingsBackend = app.BackendFile
	}
	store, closeStore, err := app.OpenStore(*cfg)
	if err != nil {
		return nil, closeStore, err
	}
	saved, err := store.Load(c.Context)
	if err != nil {
		log.Warn().Err(err).Msg("could not load saved settings")
	}
	app.ApplySettings(cfg, saved)
	app.ApplyDefaults(cfg)
	return store, closeStore, nil
}

func openStore(c *cli.Context) (settings.Store, func() error, error) {
	cfg := app.Config{
		SettingsBackend: c.String("settings.backend"),
		SettingsPath:    c.String("settings.path"),
	}
	app.ApplyEnvToConfig(&cfg)
	if cfg.SettingsBackend == "" {
		cfg.SettingsBackend = app.BackendFile
	}
	return app.OpenStore(cfg)
}

func settingsCommand() *cli.Command {
	return &cli.Command{
		Name:  "settings",
		Usage: "inspect or reset saved settings",
		Subcommands: []*cli.Command{
			{
				Name:  "show",
				Usage: "print saved settings with the API key masked",
				Action: func(c *cli.Context) error {
					store, closeStore, err := openStore(c)
					if err != nil {
						return cli.Exit(err.Error(), 2)
					}
					defer closeStore()
					s, err := store.Load(c.Context)
					if err != nil {
						return err
					}
					s.APIKey = maskKey(s.APIKey)
					b, err := yaml.Marshal(s)
					if err != nil {
						return err
					}
					_, err = c.App.Writer.Write(b)
					return err
				},
			},
			{
				Name:  "clear",
				Usage: "forget the saved key, prompts and history",
				Action: func(c *cli.Context) error {
					store, closeStore, err := openStore(c)
					if err != nil {
						return cli.Exit(err.Error(), 2)
					}
					defer closeStore()
					if err := store.Save(c.Context, settings.Settings{}); err != nil {
						return err
					}
					_, _ = fmt.Fprintln(c.App.Writer, "settings cleared")
					return nil
				},
			},
		},
	}
}

func historyCommand() *cli.Command {
	return &cli.Command{
		Name:  "history",
		Usage: "list recently used prompts, most recent first",
		Action: func(c *cli.Context) error {
			store, closeStore, err := openStore(c)
			if err != nil {
				return cli.Exit(err.Error(), 2)
			}
			defer closeStore()
			s, err := store.Load(c.Context)
			if err != nil {
				return err
			}
			if len(s.History) == 0 {
				_, _ = fmt.Fprintln(c.App.Writer, "no prompts yet")
				return nil
			}
			for i, h := range s.History {
				_, _ = fmt.Fprintf(c.App.Writer, "%2d. %s  (used %d times, last %s)\n", i+1, h.Prompt, h.UseCount, h.LastUsed.Local().Format("2006-01-02 15:04"))
			}
			return nil
		},
	}
}

func formatsCommand() *cli.Command {
	return &cli.Command{
		Name:  "formats",
		Usage: "list output formats with an example prompt for each",
		Action: func(c *cli.Context) error {
			for _, f := range template.Formats() {
				p := template.GetProfile(string(f))
				_, _ = fmt.Fprintf(c.App.Writer, "%-6s %s\n       e.g. %q\n", f, p.Description, p.ExamplePrompt)
			}
			return nil
		},
	}
}

func maskKey(k string) string {
	if len(k) <= 4 {
		return strings.Repeat("*", len(k))
	}
	return strings.Repeat("*", len(k)-4) + k[len(k)-4:]
}

func truthy(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "true", "yes", "on":
		return true
	}
	return false
}
