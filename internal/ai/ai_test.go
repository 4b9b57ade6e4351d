package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/swhefti/ai-news-intelligence-hub/internal/config"
)

func TestNewNotConfigured(t *testing.T) {
	if _, err := New(nil, "key"); !errors.Is(err, ErrNotConfigured) {
		t.Errorf("nil config: err = %v", err)
	}
	if _, err := New(&config.AIConfig{Provider: "claude"}, ""); !errors.Is(err, ErrNotConfigured) {
		t.Errorf("empty key: err = %v", err)
	}
	if _, err := New(&config.AIConfig{Provider: "llama"}, "key"); err == nil {
		t.Error("expected error for unknown provider")
	}
}

func TestNewDefaultModels(t *testing.T) {
	g, err := New(&config.AIConfig{Provider: "claude"}, "key")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if c := g.(*claudeProvider); c.model != defaultClaudeModel || c.endpoint != claudeURL {
		t.Errorf("unexpected claude provider %+v", c)
	}

	g, err = New(&config.AIConfig{Provider: "openai", Model: "gpt-custom"}, "key")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if o := g.(*openaiProvider); o.model != "gpt-custom" {
		t.Errorf("expected configured model, got %s", o.model)
	}

	g, err = New(&config.AIConfig{Provider: "gemini"}, "key")
	if err != nil {
		t.Fatalf("New gemini: %v", err)
	}
	gp := g.(*geminiProvider)
	if gp.model != defaultGeminiModel {
		t.Errorf("unexpected gemini model %s", gp.model)
	}
	gp.Close()
}

func testProvider(srv *httptest.Server) httpProvider {
	return httpProvider{client: srv.Client(), endpoint: srv.URL, attempts: 3}
}

func TestClaudeGenerate(t *testing.T) {
	var got claudeRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("x-api-key") != "secret" || r.Header.Get("anthropic-version") == "" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decoding request: %v", err)
		}
		fmt.Fprint(w, `{"content":[{"type":"text","text":"  The week in AI. "},{"type":"tool_use"},{"type":"text","text":"More."}]}`)
	}))
	defer srv.Close()

	c := &claudeProvider{httpProvider: testProvider(srv), apiKey: "secret", model: "m"}
	text, err := c.Generate(context.Background(), "Summarise", 512)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if text != "The week in AI. More." {
		t.Errorf("unexpected text %q", text)
	}
	if got.MaxTokens != 512 || got.Model != "m" || got.Messages[0].Content != "Summarise" {
		t.Errorf("unexpected request %+v", got)
	}
}

func TestOpenAIGenerate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		fmt.Fprint(w, `{"choices":[{"message":{"content":"Briefing text"}}]}`)
	}))
	defer srv.Close()

	o := &openaiProvider{httpProvider: testProvider(srv), apiKey: "secret", model: "m"}
	text, err := o.Generate(context.Background(), "prompt", 100)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if text != "Briefing text" {
		t.Errorf("unexpected text %q", text)
	}
}

func TestGenerateEmptyResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"choices":[]}`)
	}))
	defer srv.Close()

	o := &openaiProvider{httpProvider: testProvider(srv), apiKey: "k", model: "m"}
	if _, err := o.Generate(context.Background(), "p", 10); !errors.Is(err, ErrEmptyResponse) {
		t.Errorf("err = %v, want ErrEmptyResponse", err)
	}
}

func TestGenerateRetriesRateLimit(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		fmt.Fprint(w, `{"content":[{"type":"text","text":"ok"}]}`)
	}))
	defer srv.Close()

	c := &claudeProvider{httpProvider: testProvider(srv), apiKey: "k", model: "m"}
	text, err := c.Generate(context.Background(), "p", 10)
	if err != nil || text != "ok" {
		t.Fatalf("Generate = %q, %v", text, err)
	}
	if calls.Load() != 3 {
		t.Errorf("expected 3 calls, got %d", calls.Load())
	}
}

func TestGenerateDoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "bad request", http.StatusBadRequest)
	}))
	defer srv.Close()

	c := &claudeProvider{httpProvider: testProvider(srv), apiKey: "k", model: "m"}
	_, err := c.Generate(context.Background(), "p", 10)
	var se *statusError
	if !errors.As(err, &se) || se.code != http.StatusBadRequest {
		t.Fatalf("err = %v", err)
	}
	if calls.Load() != 1 {
		t.Errorf("expected 1 call, got %d", calls.Load())
	}
}
