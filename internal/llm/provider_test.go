package llm

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestGemini_RequestShape(t *testing.T) {
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		if r.Header.Get("x-goog-api-key") != "secret-key" {
			t.Errorf("missing API key header")
		}
		if strings.Contains(r.URL.RawQuery, "secret-key") {
			t.Errorf("API key leaked into URL: %s", r.URL.String())
		}
		b, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(b, &gotBody)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"candidates":[{"content":{"parts":[{"text":"a,b\n1,2"}]}}]}`))
	}))
	defer srv.Close()

	g := &Gemini{Endpoint: srv.URL}
	out, err := g.Generate(context.Background(), NewRequest("secret-key", "hello prompt"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != "a,b\n1,2" {
		t.Fatalf("unexpected output %q", out)
	}
	contents := gotBody["contents"].([]any)
	parts := contents[0].(map[string]any)["parts"].([]any)
	if parts[0].(map[string]any)["text"] != "hello prompt" {
		t.Fatalf("prompt not sent: %v", gotBody)
	}
	cfg := gotBody["generationConfig"].(map[string]any)
	if cfg["topK"].(float64) != 1 || cfg["topP"].(float64) != 1 || cfg["maxOutputTokens"].(float64) != 8192 {
		t.Fatalf("unexpected generation config %v", cfg)
	}
	if temp := cfg["temperature"].(float64); temp < 0.099 || temp > 0.101 {
		t.Fatalf("unexpected temperature %v", temp)
	}
}

func TestGemini_DefaultEndpoint(t *testing.T) {
	g := &Gemini{Model: "gemini-pro"}
	want := "https://generativelanguage.googleapis.com/v1beta/models/gemini-pro:generateContent"
	if g.endpoint() != want {
		t.Fatalf("got %q", g.endpoint())
	}
	if !strings.Contains((&Gemini{}).endpoint(), DefaultGeminiModel) {
		t.Fatalf("expected default model in endpoint")
	}
}

func TestGemini_StatusErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"message":"API key not valid","status":"UNAUTHENTICATED"}}`))
	}))
	defer srv.Close()

	_, err := (&Gemini{Endpoint: srv.URL}).Generate(context.Background(), NewRequest("k", "p"))
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.StatusCode != 401 || apiErr.Message != "API key not valid" {
		t.Fatalf("unexpected error %+v", apiErr)
	}
	if StatusCode(err) != 401 {
		t.Fatalf("StatusCode helper mismatch")
	}
}

func TestGemini_MalformedResponses(t *testing.T) {
	bodies := []string{
		`not json`,
		`{}`,
		`{"candidates":[]}`,
		`{"candidates":[{"finishReason":"SAFETY"}]}`,
		`{"candidates":[{"content":{"parts":[]}}]}`,
		`{"candidates":[{"content":{"parts":[{"text":"  "}]}}]}`,
	}
	for _, body := range bodies {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(body))
		}))
		_, err := (&Gemini{Endpoint: srv.URL}).Generate(context.Background(), NewRequest("k", "p"))
		srv.Close()
		if !errors.Is(err, ErrMalformedResponse) {
			t.Fatalf("body %q: expected ErrMalformedResponse, got %v", body, err)
		}
	}
}

func TestOpenAI_Generate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/chat/completions") {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer sk-test" {
			t.Errorf("missing bearer token")
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"1","object":"chat.completion","choices":[{"index":0,"message":{"role":"assistant","content":"done"},"finish_reason":"stop"}]}`))
	}))
	defer srv.Close()

	o := &OpenAI{BaseURL: srv.URL + "/v1", Model: "local"}
	out, err := o.Generate(context.Background(), NewRequest("sk-test", "p"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != "done" {
		t.Fatalf("unexpected output %q", out)
	}
}

func TestOpenAI_StatusMapping(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"message":"slow down","type":"rate_limit"}}`))
	}))
	defer srv.Close()

	o := &OpenAI{BaseURL: srv.URL + "/v1", Model: "local"}
	_, err := o.Generate(context.Background(), NewRequest("sk-test", "p"))
	if StatusCode(err) != http.StatusTooManyRequests {
		t.Fatalf("expected 429 APIError, got %v", err)
	}
}

func TestOpenAI_RequiresModel(t *testing.T) {
	_, err := (&OpenAI{}).Generate(context.Background(), NewRequest("k", "p"))
	if !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
}
