package ai

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"civicpulse/internal/config"
	"civicpulse/pkg/logger"
)

// Provider names accepted in oracle.provider
const (
	ProviderClaude = "claude"
	ProviderOpenAI = "openai"
	// ProviderHTTP is a dedicated verification service that speaks the verdict
	// JSON directly.
	ProviderHTTP = "http"
)

var defaultBaseURLs = map[string]string{
	ProviderClaude: "https://api.anthropic.com",
	ProviderOpenAI: "https://api.openai.com",
}

// LLMClient provides access to the vision model behind the verification oracle
type LLMClient struct {
	httpClient *http.Client
	logger     *logger.Logger
	config     LLMConfig
}

// LLMConfig holds LLM client configuration
type LLMConfig struct {
	Provider    string // claude, openai, http
	APIKey      string
	BaseURL     string
	Model       string
	Temperature float64
	MaxTokens   int
	Timeout     time.Duration
}

// LLMConfigFrom maps the oracle config section onto an LLMConfig
func LLMConfigFrom(cfg config.OracleConfig) LLMConfig {
	return LLMConfig{
		Provider: cfg.Provider,
		APIKey:   cfg.APIKey,
		BaseURL:  cfg.BaseURL,
		Model:    cfg.Model,
		Timeout:  cfg.Timeout,
	}
}

// NewLLMClient creates a new LLM client
func NewLLMClient(cfg LLMConfig, log *logger.Logger) *LLMClient {
	if cfg.Provider == "" {
		cfg.Provider = ProviderClaude
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 45 * time.Second
	}
	if cfg.Temperature == 0 {
		cfg.Temperature = 0.1
	}
	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = 1024
	}
	if cfg.Model == "" {
		switch cfg.Provider {
		case ProviderClaude:
			cfg.Model = "claude-3-5-sonnet-20241022"
		case ProviderOpenAI:
			cfg.Model = "gpt-4o"
		}
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURLs[cfg.Provider]
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	return &LLMClient{
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		logger: log.WithComponent("llm-client"),
		config: cfg,
	}
}

// Provider returns the configured provider name
func (c *LLMClient) Provider() string {
	return c.config.Provider
}

// APIError is a non-2xx answer from the model provider
type APIError struct {
	Provider   string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s API error %d: %s", e.Provider, e.StatusCode, e.Body)
}

// Temporary reports whether the request is worth retrying
func (e *APIError) Temporary() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// CompleteWithImage sends a system prompt, a user prompt and one image and
// returns the model's text answer.
func (c *LLMClient) CompleteWithImage(ctx context.Context, system, prompt string, image []byte, mimeType string) (string, error) {
	switch c.config.Provider {
	case ProviderClaude:
		return c.callClaude(ctx, system, prompt, image, mimeType)
	case ProviderOpenAI:
		return c.callOpenAI(ctx, system, prompt, image, mimeType)
	default:
		return "", fmt.Errorf("unsupported LLM provider: %s", c.config.Provider)
	}
}

// callClaude makes a request to the Claude messages API
func (c *LLMClient) callClaude(ctx context.Context, system, prompt string, image []byte, mimeType string) (string, error) {
	reqBody := map[string]any{
		"model":       c.config.Model,
		"max_tokens":  c.config.MaxTokens,
		"temperature": c.config.Temperature,
		"system":      system,
		"messages": []map[string]any{
			{
				"role": "user",
				"content": []map[string]any{
					{
						"type": "image",
						"source": map[string]string{
							"type":       "base64",
							"media_type": mimeType,
							"data":       base64.StdEncoding.EncodeToString(image),
						},
					},
					{"type": "text", "text": prompt},
				},
			},
		},
	}

	body, err := c.post(ctx, c.config.BaseURL+"/v1/messages", reqBody, map[string]string{
		"x-api-key":         c.config.APIKey,
		"anthropic-version": "2023-06-01",
	})
	if err != nil {
		return "", err
	}

	var claudeResp struct {
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
	}
	if err := json.Unmarshal(body, &claudeResp); err != nil {
		return "", fmt.Errorf("failed to decode Claude response: %w", err)
	}

	var content strings.Builder
	for _, part := range claudeResp.Content {
		if part.Type == "text" {
			content.WriteString(part.Text)
		}
	}
	return content.String(), nil
}

// callOpenAI makes a request to the OpenAI chat completions API
func (c *LLMClient) callOpenAI(ctx context.Context, system, prompt string, image []byte, mimeType string) (string, error) {
	reqBody := map[string]any{
		"model":       c.config.Model,
		"max_tokens":  c.config.MaxTokens,
		"temperature": c.config.Temperature,
		"messages": []map[string]any{
			{"role": "system", "content": system},
			{
				"role": "user",
				"content": []map[string]any{
					{"type": "text", "text": prompt},
					{
						"type": "image_url",
						"image_url": map[string]string{
							"url":    fmt.Sprintf("data:%s;base64,%s", mimeType, base64.StdEncoding.EncodeToString(image)),
							"detail": "high",
						},
					},
				},
			},
		},
	}

	body, err := c.post(ctx, c.config.BaseURL+"/v1/chat/completions", reqBody, map[string]string{
		"Authorization": "Bearer " + c.config.APIKey,
	})
	if err != nil {
		return "", err
	}

	var openAIResp struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(body, &openAIResp); err != nil {
		return "", fmt.Errorf("failed to decode OpenAI response: %w", err)
	}
	if len(openAIResp.Choices) == 0 {
		return "", fmt.Errorf("no response from OpenAI")
	}
	return openAIResp.Choices[0].Message.Content, nil
}

// post sends a JSON body and returns the raw response body of a 2xx answer
func (c *LLMClient) post(ctx context.Context, url string, payload any, headers map[string]string) ([]byte, error) {
	jsonBody, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonBody))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &APIError{Provider: c.config.Provider, StatusCode: resp.StatusCode, Body: truncate(string(body), 512)}
	}
	return body, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
