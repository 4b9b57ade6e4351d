// Package ai sends prompts to a hosted language model.
package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github.com/swhefti/ai-news-intelligence-hub/internal/config"
)

var (
	ErrNotConfigured = errors.New("ai: not configured")
	ErrEmptyResponse = errors.New("ai: empty response")
)

// Generator turns a prompt into text.
type Generator interface {
	Generate(ctx context.Context, prompt string, maxTokens int) (string, error)
}

const (
	defaultClaudeModel = "claude-haiku-4-5-20251001"
	defaultOpenAIModel = "gpt-4o-mini"
	defaultGeminiModel = "gemini-1.5-flash"

	claudeURL = "https://api.anthropic.com/v1/messages"
	openaiURL = "https://api.openai.com/v1/chat/completions"
)

// New creates a Generator from the given AI config. Gemini generators hold a
// client connection and implement io.Closer.
func New(cfg *config.AIConfig, apiKey string) (Generator, error) {
	if cfg == nil || apiKey == "" {
		return nil, ErrNotConfigured
	}

	client := &http.Client{Timeout: 60 * time.Second}
	model := cfg.Model

	switch cfg.Provider {
	case "claude":
		if model == "" {
			model = defaultClaudeModel
		}
		return &claudeProvider{httpProvider: newHTTPProvider(client, claudeURL), apiKey: apiKey, model: model}, nil
	case "openai":
		if model == "" {
			model = defaultOpenAIModel
		}
		return &openaiProvider{httpProvider: newHTTPProvider(client, openaiURL), apiKey: apiKey, model: model}, nil
	case "gemini":
		if model == "" {
			model = defaultGeminiModel
		}
		g, err := newGeminiProvider(context.Background(), apiKey, model)
		if err != nil {
			return nil, err
		}
		return g, nil
	default:
		return nil, fmt.Errorf("unknown AI provider: %q (valid: claude, openai, gemini)", cfg.Provider)
	}
}

// statusError is a non-200 API reply.
type statusError struct {
	provider string
	code     int
	body     string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("%s API %d: %s", e.provider, e.code, e.body)
}

func (e *statusError) retryable() bool {
	return e.code == http.StatusTooManyRequests || e.code >= 500
}

// httpProvider carries the transport shared by the JSON-over-HTTP providers.
type httpProvider struct {
	client   *http.Client
	endpoint string
	attempts int
	delay    time.Duration
}

func newHTTPProvider(client *http.Client, endpoint string) httpProvider {
	return httpProvider{client: client, endpoint: endpoint, attempts: 3, delay: 2 * time.Second}
}

// post sends body as JSON and decodes a 200 reply into out. Rate limits and
// server errors are retried with a linearly growing delay.
func (h httpProvider) post(ctx context.Context, provider string, headers map[string]string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encoding %s request: %w", provider, err)
	}

	attempts := max(1, h.attempts)
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		lastErr = h.once(ctx, provider, headers, payload, out)
		var se *statusError
		if lastErr == nil || !errors.As(lastErr, &se) || !se.retryable() {
			return lastErr
		}
		if attempt == attempts {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(attempt) * h.delay):
		}
	}
	return fmt.Errorf("failed after %d attempts: %w", attempts, lastErr)
}

func (h httpProvider) once(ctx context.Context, provider string, headers map[string]string, payload []byte, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.endpoint, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s API error: %w", provider, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return &statusError{provider: provider, code: resp.StatusCode, body: strings.TrimSpace(string(b))}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding %s response: %w", provider, err)
	}
	return nil
}

// --- Claude provider ---

type claudeProvider struct {
	httpProvider
	apiKey string
	model  string
}

type claudeRequest struct {
	Model     string          `json:"model"`
	MaxTokens int             `json:"max_tokens"`
	Messages  []claudeMessage `json:"messages"`
}

type claudeMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type claudeResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
}

func (c *claudeProvider) Generate(ctx context.Context, prompt string, maxTokens int) (string, error) {
	var cr claudeResponse
	err := c.post(ctx, "claude", map[string]string{
		"x-api-key":         c.apiKey,
		"anthropic-version": "2023-06-01",
	}, claudeRequest{
		Model:     c.model,
		MaxTokens: maxTokens,
		Messages:  []claudeMessage{{Role: "user", Content: prompt}},
	}, &cr)
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	for _, block := range cr.Content {
		if block.Type == "" || block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	return nonEmpty("claude", sb.String())
}

// --- OpenAI provider ---

type openaiProvider struct {
	httpProvider
	apiKey string
	model  string
}

type openaiRequest struct {
	Model     string          `json:"model"`
	MaxTokens int             `json:"max_tokens,omitempty"`
	Messages  []openaiMessage `json:"messages"`
}

type openaiMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openaiResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

func (o *openaiProvider) Generate(ctx context.Context, prompt string, maxTokens int) (string, error) {
	var or openaiResponse
	err := o.post(ctx, "openai", map[string]string{
		"Authorization": "Bearer " + o.apiKey,
	}, openaiRequest{
		Model:     o.model,
		MaxTokens: maxTokens,
		Messages:  []openaiMessage{{Role: "user", Content: prompt}},
	}, &or)
	if err != nil {
		return "", err
	}
	if len(or.Choices) == 0 {
		return "", fmt.Errorf("openai: %w", ErrEmptyResponse)
	}
	return nonEmpty("openai", or.Choices[0].Message.Content)
}

// --- Gemini provider ---

type geminiProvider struct {
	client *genai.Client
	model  string
}

func newGeminiProvider(ctx context.Context, apiKey, model string, opts ...option.ClientOption) (*geminiProvider, error) {
	opts = append([]option.ClientOption{option.WithAPIKey(apiKey)}, opts...)
	client, err := genai.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating gemini client: %w", err)
	}
	return &geminiProvider{client: client, model: model}, nil
}

func (g *geminiProvider) Generate(ctx context.Context, prompt string, maxTokens int) (string, error) {
	model := g.client.GenerativeModel(g.model)
	if maxTokens > 0 {
		model.SetMaxOutputTokens(int32(maxTokens))
	}

	resp, err := model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return "", fmt.Errorf("gemini API error: %w", err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", fmt.Errorf("gemini: %w", ErrEmptyResponse)
	}

	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if t, ok := part.(genai.Text); ok {
			sb.WriteString(string(t))
		}
	}
	return nonEmpty("gemini", sb.String())
}

func (g *geminiProvider) Close() error {
	return g.client.Close()
}

func nonEmpty(provider, text string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", fmt.Errorf("%s: %w", provider, ErrEmptyResponse)
	}
	return text, nil
}
