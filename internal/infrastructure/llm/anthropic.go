package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aktagon/llmkit/anthropic"
	"github.com/aktagon/llmkit/anthropic/types"

	"github.com/cjhyy/interview-QA-help/internal/ports"
)

const DefaultAnthropicModel = "claude-3-5-haiku-latest"

// promptFunc sends one system/user exchange and returns the reply text.
type promptFunc func(systemPrompt, userPrompt, apiKey string, settings types.RequestSettings) (string, error)

// AnthropicClient implements ports.Provider using llmkit.
type AnthropicClient struct {
	apiKey       string
	model        string
	systemPrompt string
	prompt       promptFunc
}

var _ ports.Provider = (*AnthropicClient)(nil)

// NewAnthropicClient builds a client; an empty model falls back to the default.
func NewAnthropicClient(apiKey, model, systemPrompt string) *AnthropicClient {
	if strings.TrimSpace(model) == "" {
		model = DefaultAnthropicModel
	}
	return &AnthropicClient{
		apiKey:       strings.TrimSpace(apiKey),
		model:        model,
		systemPrompt: safePrompt(systemPrompt),
		prompt:       llmkitPrompt,
	}
}

func llmkitPrompt(systemPrompt, userPrompt, apiKey string, settings types.RequestSettings) (string, error) {
	response, err := anthropic.PromptWithSettings(systemPrompt, userPrompt, "", apiKey, settings)
	if err != nil {
		return "", err
	}
	if len(response.Content) == 0 {
		return "", errEmptyCompletion
	}
	return response.Content[0].Text, nil
}

// Name identifies the backend inside the selector.
func (c *AnthropicClient) Name() string {
	return "anthropic"
}

// Configured reports whether an API key is present.
func (c *AnthropicClient) Configured() bool {
	return c.apiKey != ""
}

// Invoke runs the prompt, giving up when ctx ends. llmkit calls are not
// cancellable, so an abandoned call finishes in the background.
func (c *AnthropicClient) Invoke(ctx context.Context, prompt string, opts ports.InvokeOptions) (string, error) {
	if !c.Configured() {
		return "", errors.New("anthropic client misconfigured")
	}
	settings := types.RequestSettings{
		Model:       c.model,
		MaxTokens:   opts.MaxTokens,
		Temperature: opts.Temperature,
	}

	type reply struct {
		text string
		err  error
	}
	done := make(chan reply, 1)
	go func() {
		text, err := c.prompt(c.systemPrompt, prompt, c.apiKey, settings)
		done <- reply{text: text, err: err}
	}()

	select {
	case <-ctx.Done():
		return "", fmt.Errorf("anthropic invoke: %w", ctx.Err())
	case r := <-done:
		if r.err != nil {
			return "", fmt.Errorf("anthropic invoke: %w", r.err)
		}
		text := strings.TrimSpace(r.text)
		if text == "" {
			return "", fmt.Errorf("anthropic invoke: %w", errEmptyCompletion)
		}
		return text, nil
	}
}

// HealthCheck sends a minimal prompt.
func (c *AnthropicClient) HealthCheck(ctx context.Context) bool {
	if !c.Configured() {
		return false
	}
	ctx, cancel := context.WithTimeout(ctx, healthTimeout)
	defer cancel()
	_, err := c.Invoke(ctx, "Reply with OK.", ports.InvokeOptions{MaxTokens: 5})
	return err == nil
}
