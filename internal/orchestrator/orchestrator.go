// Package orchestrator turns a page snapshot and a user request into a model
// answer saved as a download.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog/log"

	"github.com/hyperifyio/pagecopilot/internal/budget"
	"github.com/hyperifyio/pagecopilot/internal/cache"
	"github.com/hyperifyio/pagecopilot/internal/download"
	"github.com/hyperifyio/pagecopilot/internal/errs"
	"github.com/hyperifyio/pagecopilot/internal/llm"
	"github.com/hyperifyio/pagecopilot/internal/page"
)

// Retry schedule: three retries after the first attempt, waiting 1s, 2s, 4s.
const (
	MaxRetries   = 3
	InitialDelay = time.Second
)

// ErrRetriesExhausted is wrapped into the error returned when a transient
// failure persists through every retry.
var ErrRetriesExhausted = errors.New("retries exhausted")

// Request carries everything needed for one generation.
type Request struct {
	Snapshot     page.Snapshot `json:"pageData"`
	APIKey       string        `json:"apiKey"`
	SystemPrompt string        `json:"systemPrompt"`
	UserPrompt   string        `json:"userPrompt"`
	Format       string        `json:"format"`
}

// Result is the reply envelope. On failure Error holds a user-facing message
// and Kind its classification.
type Result struct {
	Success bool      `json:"success"`
	Content string    `json:"content,omitempty"`
	File    string    `json:"file,omitempty"`
	Error   string    `json:"error,omitempty"`
	Kind    errs.Kind `json:"kind,omitempty"`
}

// SleepFunc waits for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Orchestrator builds the prompt, calls the model with retry and saves the
// answer.
type Orchestrator struct {
	Client     llm.Client
	Downloader download.Downloader
	// Model names the backend model for the response cache and the context
	// budget check. It does not select the model; the Client does.
	Model string
	Cache *cache.LLMCache
	// Sleep and Now are replaced in tests.
	Sleep SleepFunc
	Now   func() time.Time
}

// Generate runs one generation end to end and returns the saved file path
// along with the content.
func (o *Orchestrator) Generate(ctx context.Context, req Request) (Result, error) {
	if o.Client == nil || o.Downloader == nil {
		return Result{}, errors.New("orchestrator not configured")
	}
	prompt := BuildPrompt(req.Snapshot, req.SystemPrompt, req.UserPrompt, req.Format)
	o.checkBudget(prompt)

	key := cache.KeyFrom(o.Model, prompt)
	content := ""
	if e, ok, err := o.Cache.Get(ctx, key); err != nil {
		log.Warn().Err(err).Msg("response cache read failed")
	} else if ok {
		log.Info().Str("model", o.Model).Msg("using cached response")
		content = e.Content
	}
	if content == "" {
		text, err := o.call(ctx, llm.NewRequest(req.APIKey, prompt))
		if err != nil {
			return Result{}, err
		}
		content = text
		if err := o.Cache.Save(ctx, key, cache.Entry{Model: o.Model, Content: content}); err != nil {
			log.Warn().Err(err).Msg("response cache write failed")
		}
	}

	name := download.Filename(req.Snapshot.Title, req.Format, o.now())
	path, err := o.Downloader.Download(ctx, download.Item{Data: []byte(content), Filename: name})
	if err != nil {
		if ctx.Err() != nil {
			return Result{}, errs.Wrap(errs.Cancelled, err, "the run was cancelled")
		}
		return Result{}, errs.Wrap(errs.Download, err, "could not save %s: %v", name, err)
	}
	return Result{Success: true, Content: content, File: path}, nil
}

// Handle serves Generate behind a channel. Failures travel in the envelope.
func (o *Orchestrator) Handle(ctx context.Context, req Request) (Result, error) {
	res, err := o.Generate(ctx, req)
	if err != nil {
		log.Warn().Err(err).Str("kind", string(errs.KindOf(err))).Msg("generation failed")
		return Result{Error: err.Error(), Kind: errs.KindOf(err)}, nil
	}
	return res, nil
}

// call issues the request, retrying transient failures on the schedule from
// newSchedule. Fatal failures return immediately.
func (o *Orchestrator) call(ctx context.Context, req llm.Request) (string, error) {
	schedule := newSchedule()
	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return "", errs.Wrap(errs.Cancelled, err, "the run was cancelled")
		}
		start := time.Now()
		text, err := o.Client.Generate(ctx, req)
		if err == nil {
			log.Debug().Int("attempt", attempt).Dur("duration", time.Since(start)).Msg("model answered")
			return text, nil
		}
		if ctx.Err() != nil {
			return "", errs.Wrap(errs.Cancelled, ctx.Err(), "the run was cancelled")
		}
		if !retryable(err) {
			return "", fatal(err)
		}
		delay := schedule.NextBackOff()
		if delay == backoff.Stop {
			return "", exhausted(err, attempt)
		}
		log.Warn().Err(err).Int("attempt", attempt).Dur("retry_in", delay).Msg("transient model error")
		if err := o.sleep(ctx, delay); err != nil {
			return "", errs.Wrap(errs.Cancelled, err, "the run was cancelled")
		}
	}
}

// newSchedule yields 1s, 2s, 4s and then backoff.Stop.
func newSchedule() backoff.BackOff {
	b := &backoff.ExponentialBackOff{
		InitialInterval:     InitialDelay,
		RandomizationFactor: 0,
		Multiplier:          2,
		MaxInterval:         time.Minute,
		MaxElapsedTime:      0,
		Stop:                backoff.Stop,
		Clock:               backoff.SystemClock,
	}
	b.Reset()
	return backoff.WithMaxRetries(b, MaxRetries)
}

// retryable reports whether err is a 429, a 5xx or a transport failure.
func retryable(err error) bool {
	if errors.Is(err, llm.ErrMalformedResponse) || errors.Is(err, llm.ErrNotConfigured) {
		return false
	}
	status := llm.StatusCode(err)
	if status == 0 {
		return true
	}
	return status == http.StatusTooManyRequests || status >= 500
}

func fatal(err error) error {
	if errors.Is(err, llm.ErrMalformedResponse) {
		return errs.Wrap(errs.FatalAPI, err, "Invalid response from the model API")
	}
	status := llm.StatusCode(err)
	if status == 0 {
		return errs.Wrap(errs.FatalAPI, err, "Model API error: %v", err)
	}
	return errs.Wrap(errs.FatalAPI, err, "%s", statusMessage(status, err))
}

func exhausted(err error, attempts int) error {
	cause := fmt.Errorf("%w after %d attempts: %w", ErrRetriesExhausted, attempts, err)
	status := llm.StatusCode(err)
	if status == 0 {
		return errs.Wrap(errs.TransientAPI, cause, "Could not reach the model API after %d attempts. Check your network connection", attempts)
	}
	return errs.Wrap(errs.TransientAPI, cause, "%s", statusMessage(status, err))
}

// statusMessage maps an HTTP status to the message shown to the user.
func statusMessage(status int, err error) string {
	switch {
	case status == http.StatusBadRequest:
		return "Bad request: the request to the model API was malformed. Check your prompts"
	case status == http.StatusUnauthorized:
		return "Invalid API key. Check the key and try again"
	case status == http.StatusForbidden:
		return "Permission denied: the API key is not allowed to use this model"
	case status == http.StatusTooManyRequests:
		return "Rate limit exceeded. Wait a moment and try again"
	case status >= 500:
		return "The model service is unavailable. Try again later"
	}
	detail := ""
	var apiErr *llm.APIError
	if errors.As(err, &apiErr) && strings.TrimSpace(apiErr.Message) != "" {
		detail = ": " + apiErr.Message
	}
	return fmt.Sprintf("Model API error (status %d)%s", status, detail)
}

// checkBudget warns when the prompt leaves no room for the reply once
// output tokens and tokenizer headroom are reserved. The request is still
// sent; the provider has the final word.
func (o *Orchestrator) checkBudget(prompt string) bool {
	if o.Model == "" {
		return true
	}
	tokens := budget.EstimateTokens(prompt)
	if budget.RemainingContextWithHeadroom(o.Model, llm.DefaultMaxOutputTokens, tokens) <= 0 {
		log.Warn().
			Str("model", o.Model).
			Int("prompt_tokens", tokens).
			Int("context_tokens", budget.ModelContextTokens(o.Model)).
			Int("headroom_tokens", budget.HeadroomTokens(o.Model)).
			Msg("prompt may exceed the model context window")
		return false
	}
	log.Debug().Int("prompt_tokens", tokens).Msg("prompt size")
	return true
}

func (o *Orchestrator) sleep(ctx context.Context, d time.Duration) error {
	if o.Sleep != nil {
		return o.Sleep(ctx, d)
	}
	return Sleep(ctx, d)
}

func (o *Orchestrator) now() time.Time {
	if o.Now != nil {
		return o.Now()
	}
	return time.Now()
}

// Sleep waits for d, returning early with ctx.Err() when ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
