package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAI adapts any OpenAI-compatible chat completion server to Client. TopK
// has no equivalent there and is ignored.
type OpenAI struct {
	BaseURL    string
	Model      string
	HTTPClient *http.Client
}

func (o *OpenAI) client(apiKey string) *openai.Client {
	cfg := openai.DefaultConfig(apiKey)
	if o.BaseURL != "" {
		cfg.BaseURL = o.BaseURL
	}
	if o.HTTPClient != nil {
		cfg.HTTPClient = o.HTTPClient
	}
	return openai.NewClientWithConfig(cfg)
}

func (o *OpenAI) Generate(ctx context.Context, req Request) (string, error) {
	if strings.TrimSpace(o.Model) == "" {
		return "", fmt.Errorf("%w: openai provider needs a model", ErrNotConfigured)
	}
	resp, err := o.client(req.APIKey).CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: o.Model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: req.Prompt},
		},
		Temperature: req.Temperature,
		TopP:        req.TopP,
		MaxTokens:   req.MaxOutputTokens,
		N:           1,
	})
	if err != nil {
		return "", mapOpenAIError(err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: no choices", ErrMalformedResponse)
	}
	text := resp.Choices[0].Message.Content
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("%w: empty content", ErrMalformedResponse)
	}
	return text, nil
}

// mapOpenAIError converts SDK status errors into APIError so the retry
// policy sees the same shape for every backend.
func mapOpenAIError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) && apiErr.HTTPStatusCode != 0 {
		return &APIError{StatusCode: apiErr.HTTPStatusCode, Message: apiErr.Message}
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) && reqErr.HTTPStatusCode != 0 {
		msg := http.StatusText(reqErr.HTTPStatusCode)
		if reqErr.Err != nil {
			msg = reqErr.Err.Error()
		}
		return &APIError{StatusCode: reqErr.HTTPStatusCode, Message: msg}
	}
	return err
}
