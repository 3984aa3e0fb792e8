// Package llm is the OpenRouter side channel used by the assistant domain
// plugin. It enforces a hard per-request timeout and returns a sanitized
// error rather than ever panicking the pipeline.
//
// Grounded on the OpenRouterClient request shape in
// theRebelliousNerd-codenerd's internal/perception/client_openrouter.go,
// trimmed to the single-shot completion PCE needs (no streaming, no
// structured-output schema negotiation).
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
)

// Config configures the OpenRouter client; fields map directly onto the
// openrouter.* configuration keys.
type Config struct {
	APIKey      string
	Model       string
	BaseURL     string
	Timeout     time.Duration
	HTTPReferer string
	XTitle      string
}

func (c Config) withDefaults() Config {
	if c.BaseURL == "" {
		c.BaseURL = "https://openrouter.ai/api/v1"
	}
	if c.Timeout <= 0 {
		c.Timeout = 8 * time.Second
	}
	return c
}

// Client is a thin OpenRouter chat-completions wrapper.
type Client struct {
	cfg        Config
	httpClient *http.Client
}

func New(cfg Config) *Client {
	cfg = cfg.withDefaults()
	return &Client{cfg: cfg, httpClient: &http.Client{Timeout: cfg.Timeout}}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Complete sends one system+user turn and returns the model's reply. The
// caller's context deadline is honored as a hard timeout; on any failure
// the error is sanitized (no request/response bodies, no key material) so
// it can be safely recorded in metadata.explain.de.openrouter_error.
func (c *Client) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	if c.cfg.APIKey == "" {
		return "", &Error{reason: "api_key_missing"}
	}
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.Timeout)
		defer cancel()
	}

	body, err := json.Marshal(chatRequest{
		Model: c.cfg.Model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userPrompt},
		},
	})
	if err != nil {
		return "", &Error{reason: "encode_failed"}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", &Error{reason: "request_build_failed"}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	if c.cfg.HTTPReferer != "" {
		req.Header.Set("HTTP-Referer", c.cfg.HTTPReferer)
	}
	if c.cfg.XTitle != "" {
		req.Header.Set("X-Title", c.cfg.XTitle)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return "", &Error{reason: "timeout"}
		}
		return "", &Error{reason: "transport_error"}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", &Error{reason: "read_failed"}
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		return "", &Error{reason: "rate_limited"}
	}
	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return "", &Error{reason: "auth_failed"}
	}
	if resp.StatusCode != http.StatusOK {
		return "", &Error{reason: fmt.Sprintf("http_%d", resp.StatusCode)}
	}

	var parsed chatResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", &Error{reason: "decode_failed"}
	}
	if parsed.Error != nil {
		return "", &Error{reason: "provider_error"}
	}
	if len(parsed.Choices) == 0 {
		return "", &Error{reason: "empty_completion"}
	}
	return strings.TrimSpace(parsed.Choices[0].Message.Content), nil
}

// Error is a sanitized llm_provider_error; its Error() string never
// includes request/response bodies or credentials.
type Error struct {
	reason string
}

func (e *Error) Error() string { return "llm_provider_error: " + e.reason }

// Reason returns the short sanitized tag recorded in
// metadata.explain.de.openrouter_error.
func (e *Error) Reason() string { return e.reason }
