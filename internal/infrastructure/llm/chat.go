// Package llm holds the AI backends that can serve generation prompts.
package llm

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

	"github.com/cjhyy/interview-QA-help/internal/ports"
)

const (
	OpenAIEndpoint = "https://api.openai.com/v1/chat/completions"
	ZhipuEndpoint  = "https://open.bigmodel.cn/api/paas/v4/chat/completions"

	defaultHTTPTimeout = 60 * time.Second
	healthTimeout      = 15 * time.Second
	errorBodyLimit     = 1024
)

// ChatConfig describes one OpenAI-compatible chat completion backend.
type ChatConfig struct {
	Name         string
	Endpoint     string
	Model        string
	APIKey       string
	SystemPrompt string
	Timeout      time.Duration
}

// ChatClient implements ports.Provider on top of OpenAI-compatible APIs.
// OpenAI and Zhipu differ only by endpoint and model.
type ChatClient struct {
	cfg        ChatConfig
	httpClient *http.Client
	retry      retryPolicy
}

var _ ports.Provider = (*ChatClient)(nil)

// Option customizes a ChatClient.
type Option func(*ChatClient)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *ChatClient) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithRetry overrides attempts and backoff bounds.
func WithRetry(attempts int, baseDelay, maxDelay time.Duration) Option {
	return func(c *ChatClient) {
		c.retry.attempts = attempts
		c.retry.baseDelay = baseDelay
		c.retry.maxDelay = maxDelay
	}
}

// WithSleeper replaces how backoff waits are performed.
func WithSleeper(sleeper func(time.Duration)) Option {
	return func(c *ChatClient) {
		c.retry.sleeper = sleeper
	}
}

// NewChatClient builds a client from configuration.
func NewChatClient(cfg ChatConfig, opts ...Option) *ChatClient {
	cfg.Endpoint = strings.TrimSpace(cfg.Endpoint)
	cfg.Model = strings.TrimSpace(cfg.Model)
	cfg.APIKey = strings.TrimSpace(cfg.APIKey)
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultHTTPTimeout
	}
	c := &ChatClient{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		retry:      defaultRetryPolicy(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Name identifies the backend inside the selector.
func (c *ChatClient) Name() string {
	return c.cfg.Name
}

// Configured reports whether endpoint, model and key are all present.
func (c *ChatClient) Configured() bool {
	return c.cfg.APIKey != "" && c.cfg.Endpoint != "" && c.cfg.Model != ""
}

// Invoke sends prompt as a user message and returns the completion text.
func (c *ChatClient) Invoke(ctx context.Context, prompt string, opts ports.InvokeOptions) (string, error) {
	if !c.Configured() {
		return "", fmt.Errorf("%s client misconfigured", c.cfg.Name)
	}
	payload := chatRequest{
		Model: c.cfg.Model,
		Messages: []chatMessage{
			{Role: "system", Content: safePrompt(c.cfg.SystemPrompt)},
			{Role: "user", Content: prompt},
		},
		MaxTokens:   opts.MaxTokens,
		Temperature: opts.Temperature,
	}
	return c.retry.do(ctx, c.cfg.Name+" invoke", func() (string, error) {
		return c.send(ctx, payload)
	})
}

// HealthCheck issues a tiny single-attempt completion.
func (c *ChatClient) HealthCheck(ctx context.Context) bool {
	if !c.Configured() {
		return false
	}
	ctx, cancel := context.WithTimeout(ctx, healthTimeout)
	defer cancel()
	_, err := c.send(ctx, chatRequest{
		Model:     c.cfg.Model,
		Messages:  []chatMessage{{Role: "user", Content: "Reply with OK."}},
		MaxTokens: 5,
	})
	return err == nil
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature float64       `json:"temperature"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

func (c *ChatClient) send(ctx context.Context, payload chatRequest) (string, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal %s payload: %w", c.cfg.Name, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.Endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%s request: %w", c.cfg.Name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, errorBodyLimit))
		retryAfter, _ := parseRetryAfter(resp.Header.Get("Retry-After"))
		return "", &StatusError{
			Provider:   c.cfg.Name,
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(snippet)),
			RetryAfter: retryAfter,
		}
	}

	var completion chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&completion); err != nil {
		return "", fmt.Errorf("decode %s response: %w", c.cfg.Name, err)
	}
	if completion.Error != nil {
		return "", fmt.Errorf("%s api error: %s", c.cfg.Name, strings.TrimSpace(completion.Error.Message))
	}
	for _, choice := range completion.Choices {
		if content := strings.TrimSpace(choice.Message.Content); content != "" {
			return content, nil
		}
	}
	return "", errEmptyCompletion
}

var errEmptyCompletion = errors.New("empty completion")

func safePrompt(prompt string) string {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return "You are an expert interviewer who writes precise questions and answers as strict JSON."
	}
	return prompt
}
