package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// DefaultGeminiModel is used when no model is configured.
const DefaultGeminiModel = "gemini-2.0-flash"

const geminiBaseURL = "https://generativelanguage.googleapis.com/v1beta/models"

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Parts []geminiPart `json:"parts"`
}

type geminiGenerationConfig struct {
	Temperature     float32 `json:"temperature"`
	TopK            int     `json:"topK"`
	TopP            float32 `json:"topP"`
	MaxOutputTokens int     `json:"maxOutputTokens"`
}

type geminiRequest struct {
	Contents         []geminiContent        `json:"contents"`
	GenerationConfig geminiGenerationConfig `json:"generationConfig"`
}

type geminiResponse struct {
	Candidates []struct {
		Content      *geminiContent `json:"content"`
		FinishReason string         `json:"finishReason"`
	} `json:"candidates"`
}

type geminiErrorBody struct {
	Error struct {
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

// Gemini calls the generateContent endpoint directly. The key travels in the
// x-goog-api-key header so it never shows up in URLs or access logs.
type Gemini struct {
	// Endpoint overrides the full generateContent URL (tests, proxies).
	Endpoint   string
	Model      string
	HTTPClient *http.Client
}

func (g *Gemini) endpoint() string {
	if g.Endpoint != "" {
		return g.Endpoint
	}
	model := strings.TrimSpace(g.Model)
	if model == "" {
		model = DefaultGeminiModel
	}
	return fmt.Sprintf("%s/%s:generateContent", geminiBaseURL, model)
}

func (g *Gemini) Generate(ctx context.Context, req Request) (string, error) {
	payload := geminiRequest{
		Contents: []geminiContent{{Parts: []geminiPart{{Text: req.Prompt}}}},
		GenerationConfig: geminiGenerationConfig{
			Temperature:     req.Temperature,
			TopK:            req.TopK,
			TopP:            req.TopP,
			MaxOutputTokens: req.MaxOutputTokens,
		},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, g.endpoint(), bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("new request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-goog-api-key", req.APIKey)

	client := g.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	start := time.Now()
	resp, err := client.Do(httpReq)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}
	log.Debug().Int("status", resp.StatusCode).Dur("duration", time.Since(start)).Msg("gemini response")

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var eb geminiErrorBody
		_ = json.Unmarshal(respBody, &eb)
		msg := eb.Error.Message
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return "", &APIError{StatusCode: resp.StatusCode, Message: msg}
	}

	var out geminiResponse
	if err := json.Unmarshal(respBody, &out); err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if len(out.Candidates) == 0 || out.Candidates[0].Content == nil || len(out.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("%w: no candidate content", ErrMalformedResponse)
	}
	text := out.Candidates[0].Content.Parts[0].Text
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("%w: empty text (finish reason %q)", ErrMalformedResponse, out.Candidates[0].FinishReason)
	}
	return text, nil
}
