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
)

// Config holds the settings for the OpenAI-compatible API client.
type Config struct {
	BaseURL         string // e.g. https://api.openai.com/v1
	APIKey          string
	EmbedModel      string // e.g. text-embedding-3-small
	CompletionModel string // e.g. gpt-5-nano
	Timeout         time.Duration
	MaxRetries      int // embedding retries on 429/5xx/transport errors
}

// OpenAIProvider implements port.AIProvider against the OpenAI REST API
// (embeddings + responses endpoints).
type OpenAIProvider struct {
	cfg        Config
	httpClient *http.Client
}

// NewOpenAIProvider creates a new OpenAI-backed AI provider.
func NewOpenAIProvider(cfg Config) *OpenAIProvider {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 120 * time.Second
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	return &OpenAIProvider{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}
}

// ModelName returns the completion model identifier.
func (o *OpenAIProvider) ModelName() string {
	return o.cfg.CompletionModel
}

// Embed generates a vector embedding for the given text.
func (o *OpenAIProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := o.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch generates embeddings for multiple texts in one call, preserving
// input order. Newlines are flattened to spaces before submission, which is
// what the embeddings endpoint expects. The call is idempotent, so transient
// failures are retried with backoff.
func (o *OpenAIProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	inputs := make([]string, len(texts))
	for i, t := range texts {
		inputs[i] = strings.ReplaceAll(t, "\n", " ")
	}
	payload := map[string]interface{}{
		"model": o.cfg.EmbedModel,
		"input": inputs,
	}

	body, err := o.postRetry(ctx, "/embeddings", payload)
	if err != nil {
		return nil, fmt.Errorf("openai embeddings: %w", err)
	}

	var resp struct {
		Data []struct {
			Index     int       `json:"index"`
			Embedding []float32 `json:"embedding"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("openai embeddings decode: %w", err)
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("openai embeddings: got %d vectors, want %d", len(resp.Data), len(texts))
	}

	out := make([][]float32, len(texts))
	for _, d := range resp.Data {
		if d.Index < 0 || d.Index >= len(out) {
			return nil, fmt.Errorf("openai embeddings: index %d out of range", d.Index)
		}
		out[d.Index] = d.Embedding
	}
	return out, nil
}

// Complete sends a prompt to the responses endpoint and extracts plain text
// from the reply, tolerating the response-shape variants the API has shipped.
func (o *OpenAIProvider) Complete(ctx context.Context, prompt string) (string, error) {
	payload := map[string]interface{}{
		"model": o.cfg.CompletionModel,
		"input": prompt,
	}

	body, err := o.post(ctx, "/responses", payload)
	if err != nil {
		return "", fmt.Errorf("openai responses: %w", err)
	}
	return extractOutputText(body), nil
}

// extractOutputText pulls the answer text out of a responses-API body. It
// tries the flat output_text field, then the structured output list, and
// finally falls back to the raw body so the caller always gets something.
func extractOutputText(body []byte) string {
	var flat struct {
		OutputText string `json:"output_text"`
	}
	if err := json.Unmarshal(body, &flat); err == nil && flat.OutputText != "" {
		return flat.OutputText
	}

	var structured struct {
		Output []struct {
			Content []struct {
				Text string `json:"text"`
			} `json:"content"`
		} `json:"output"`
	}
	if err := json.Unmarshal(body, &structured); err == nil {
		var b strings.Builder
		for _, out := range structured.Output {
			for _, c := range out.Content {
				b.WriteString(c.Text)
			}
		}
		if b.Len() > 0 {
			return b.String()
		}
	}

	return string(body)
}

// apiError carries the HTTP status so retry logic can tell transient
// failures from permanent ones.
type apiError struct {
	status int
	body   string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("API error (%d): %s", e.status, e.body)
}

func retryable(err error) bool {
	var ae *apiError
	if errors.As(err, &ae) {
		return ae.status == http.StatusTooManyRequests || ae.status >= 500
	}
	// transport-level failure
	return true
}

func retryDelay(attempt int) time.Duration {
	d := 500 * time.Millisecond << attempt
	if d > 8*time.Second {
		d = 8 * time.Second
	}
	return d
}

func (o *OpenAIProvider) postRetry(ctx context.Context, path string, payload interface{}) ([]byte, error) {
	var lastErr error
	for attempt := 0; attempt <= o.cfg.MaxRetries; attempt++ {
		body, err := o.post(ctx, path, payload)
		if err == nil {
			return body, nil
		}
		lastErr = err
		if !retryable(err) || attempt == o.cfg.MaxRetries {
			break
		}
		select {
		case <-time.After(retryDelay(attempt)):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return nil, lastErr
}

// post is a helper for POST requests to the API with bearer auth.
func (o *OpenAIProvider) post(ctx context.Context, path string, payload interface{}) ([]byte, error) {
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.cfg.BaseURL+path, bytes.NewReader(payloadBytes))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+o.cfg.APIKey)

	resp, err := o.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &apiError{status: resp.StatusCode, body: string(body)}
	}
	return body, nil
}
